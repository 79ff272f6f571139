package models

import "time"

// AccessCode is a single-use onboarding code handed to prospective owners.
type AccessCode struct {
	ID uint64 `gorm:"primaryKey;autoIncrement"` // Primary key.

	Code string `gorm:"type:varchar(5);not null;uniqueIndex"` // Five uppercase alphanumerics.

	IsUsed   bool    `gorm:"not null;default:false"` // Whether the code has been redeemed.
	UsedByID *uint64 `gorm:"index"`                  // Owner who redeemed the code.
	UsedBy   *Owner  `gorm:"foreignKey:UsedByID"`    // Redeeming owner record.
	UsedAt   *time.Time // Redemption time.

	CreatedAt time.Time `gorm:"not null;autoCreateTime"` // Creation timestamp.
}
