package models

import "time"

// Subscriber is an end user purchasing access to an owner's server.
type Subscriber struct {
	ID uint64 `gorm:"primaryKey;autoIncrement"` // Primary key.

	DiscordID string `gorm:"type:varchar(255);not null;uniqueIndex"` // Discord account ID.
	Username  string `gorm:"type:varchar(255);not null"`             // Display name.
	Email     string `gorm:"type:varchar(255);not null"`             // Contact email.

	OwnerID uint64 `gorm:"not null;index"`                              // Owner the subscriber entered through.
	Owner   Owner  `gorm:"foreignKey:OwnerID;constraint:OnDelete:CASCADE"` // Owner relation.

	StripeCustomerID *string `gorm:"type:varchar(100)"` // Card processor customer, set on first card checkout.

	CreatedAt time.Time `gorm:"not null;autoCreateTime"` // Creation timestamp.
	UpdatedAt time.Time `gorm:"not null;autoUpdateTime"` // Last update timestamp.
}
