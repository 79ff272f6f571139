package models

import (
	"time"

	"github.com/shopspring/decimal"
	"gorm.io/datatypes"
)

// SubscriptionStatus is the lifecycle state of a subscription row.
type SubscriptionStatus string

// Subscription lifecycle states.
const (
	// SubscriptionPending awaits payment confirmation from the gateway.
	SubscriptionPending SubscriptionStatus = "pending"
	// SubscriptionActive has a confirmed payment and an unexpired term.
	SubscriptionActive SubscriptionStatus = "active"
	// SubscriptionExpired ran past its expiration date.
	SubscriptionExpired SubscriptionStatus = "expired"
	// SubscriptionCanceled stops renewing but keeps access until expiry.
	SubscriptionCanceled SubscriptionStatus = "canceled"
)

// Subscription ties a subscriber to a plan for one paid term.
type Subscription struct {
	ID uint64 `gorm:"primaryKey;autoIncrement"` // Primary key.

	SubscriberID uint64     `gorm:"not null;index"`                                      // Paying subscriber.
	Subscriber   Subscriber `gorm:"foreignKey:SubscriberID;constraint:OnDelete:CASCADE"` // Subscriber relation.
	OwnerID      uint64     `gorm:"not null;index"`                                      // Owner collecting the payment.
	Owner        Owner      `gorm:"foreignKey:OwnerID;constraint:OnDelete:CASCADE"`      // Owner relation.
	PlanID       uint64     `gorm:"not null;index"`                                      // Purchased plan.
	Plan         Plan       `gorm:"foreignKey:PlanID;constraint:OnDelete:CASCADE"`       // Plan relation.

	Status SubscriptionStatus `gorm:"type:varchar(16);not null;index"` // Lifecycle state.
	Mode   SettlementMode     `gorm:"type:varchar(16);not null"`       // Processor the checkout went through.

	ExternalID string `gorm:"type:varchar(200);index"` // Gateway subscription or transaction ID.

	SubscriptionDate *time.Time // Activation time, set when payment confirms.
	ExpirationDate   *time.Time `gorm:"index"` // End of the paid term.

	LTCAmount   decimal.NullDecimal `gorm:"type:decimal(20,8)"` // Quoted LTC price, crypto mode only.
	Address     string              `gorm:"type:varchar(255)"`  // Deposit address, crypto mode only.
	CheckoutURL string              `gorm:"type:varchar(500)"`  // Hosted checkout URL.
	StatusURL   string              `gorm:"type:varchar(500)"`  // Processor status page, crypto mode only.

	LastGatewayPayload datatypes.JSON `gorm:"type:jsonb"` // Raw payload of the last gateway event seen for this row.

	CreatedAt time.Time `gorm:"not null;autoCreateTime"` // Creation timestamp.
	UpdatedAt time.Time `gorm:"not null;autoUpdateTime"` // Last update timestamp.
}

// Live reports whether the subscription still grants access at the given
// time. Canceled terms stay live until their expiration date passes.
func (s *Subscription) Live(now time.Time) bool {
	switch s.Status {
	case SubscriptionActive:
		return true
	case SubscriptionCanceled:
		return s.ExpirationDate != nil && s.ExpirationDate.After(now)
	default:
		return false
	}
}
