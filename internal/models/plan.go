package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// PlanStatus marks whether a plan accepts new checkouts.
type PlanStatus string

// Plan statuses.
const (
	// PlanActive accepts new checkouts.
	PlanActive PlanStatus = "active"
	// PlanInactive refuses new checkouts; existing subscriptions run out.
	PlanInactive PlanStatus = "inactive"
)

// Plan is a priced subscription tier published by an owner.
// Plan names are unique per owner, case-insensitively; the store enforces it.
type Plan struct {
	ID uint64 `gorm:"primaryKey;autoIncrement"` // Primary key.

	OwnerID uint64 `gorm:"not null;index;uniqueIndex:idx_plans_owner_name"`    // Owning server owner.
	Owner   Owner  `gorm:"foreignKey:OwnerID;constraint:OnDelete:CASCADE"`     // Owner relation.
	Name    string `gorm:"type:varchar(100);not null;uniqueIndex:idx_plans_owner_name"` // Plan display name.

	Description    string          `gorm:"type:text"`                 // Optional marketing copy.
	Amount         decimal.Decimal `gorm:"type:decimal(9,2);not null"` // Price in USD per term.
	DurationMonths int             `gorm:"not null"`                  // Term length in calendar months, 1..12.

	Status PlanStatus `gorm:"type:varchar(16);not null;default:'active'"` // Whether new checkouts are accepted.

	SubscriberCount      int             `gorm:"not null;default:0"`                   // Count of currently ACTIVE subscriptions.
	SubscriptionEarnings decimal.Decimal `gorm:"type:decimal(9,2);not null;default:0"` // Lifetime USD earned by this plan.

	StripeProductID *string `gorm:"type:varchar(100)"` // Remote product ID, card mode only.
	StripePriceID   *string `gorm:"type:varchar(100)"` // Remote recurring price ID, card mode only.

	CreatedAt time.Time `gorm:"not null;autoCreateTime"` // Creation timestamp.
	UpdatedAt time.Time `gorm:"not null;autoUpdateTime"` // Last update timestamp.
}
