package models

import "time"

// Operator is a platform staff account for the settlement and admin API.
type Operator struct {
	ID uint64 `gorm:"primaryKey;autoIncrement"` // Primary key.

	Username     string `gorm:"type:varchar(255);not null;uniqueIndex"` // Login name.
	PasswordHash string `gorm:"type:varchar(255);not null"`             // bcrypt hash.

	CreatedAt time.Time `gorm:"not null;autoCreateTime"` // Creation timestamp.
	UpdatedAt time.Time `gorm:"not null;autoUpdateTime"` // Last update timestamp.
}
