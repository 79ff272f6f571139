package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// Affiliate is a subscriber promoted to earn commission on invitees.
type Affiliate struct {
	ID uint64 `gorm:"primaryKey;autoIncrement"` // Primary key.

	SubscriberID uint64     `gorm:"not null;uniqueIndex"`                                // Backing subscriber, 1:1.
	Subscriber   Subscriber `gorm:"foreignKey:SubscriberID;constraint:OnDelete:CASCADE"` // Subscriber relation.
	OwnerID      uint64     `gorm:"not null;index"`                                      // Owner whose plans the affiliate promotes.
	Owner        Owner      `gorm:"foreignKey:OwnerID;constraint:OnDelete:CASCADE"`      // Owner relation.

	PendingUSD decimal.Decimal `gorm:"type:decimal(9,2);not null;default:0"`  // Accrued, unsettled USD commission.
	PendingLTC decimal.Decimal `gorm:"type:decimal(20,8);not null;default:0"` // Accrued, unsettled LTC commission.
	PaidUSD    decimal.Decimal `gorm:"type:decimal(9,2);not null;default:0"`  // Lifetime USD commission settled.
	PaidLTC    decimal.Decimal `gorm:"type:decimal(20,8);not null;default:0"` // Lifetime LTC commission settled.

	LastPaymentDate *time.Time // Time of the most recent settlement.

	LTCAddress         string `gorm:"type:varchar(255)"` // On-chain payout address, crypto mode.
	PayoutInstructions string `gorm:"type:text"`         // Free-text payout detail, card mode.

	CreatedAt time.Time `gorm:"not null;autoCreateTime"` // Creation timestamp.
	UpdatedAt time.Time `gorm:"not null;autoUpdateTime"` // Last update timestamp.
}

// AffiliateInvitee attributes a joining subscriber to the affiliate who
// brought them in. An invitee Discord ID maps to at most one affiliate.
type AffiliateInvitee struct {
	ID uint64 `gorm:"primaryKey;autoIncrement"` // Primary key.

	AffiliateID uint64    `gorm:"not null;index"`                                     // Crediting affiliate.
	Affiliate   Affiliate `gorm:"foreignKey:AffiliateID;constraint:OnDelete:CASCADE"` // Affiliate relation.

	InviteeDiscordID string `gorm:"type:varchar(255);not null;uniqueIndex"` // Discord ID of the invited subscriber.

	CreatedAt time.Time `gorm:"not null;autoCreateTime"` // Creation timestamp.
}

// AffiliatePayment is a single commission accrual. It is created unpaid when
// an invitee's subscription activates and flips to paid exactly once, during
// the settlement that drains the matching pending totals.
type AffiliatePayment struct {
	ID uint64 `gorm:"primaryKey;autoIncrement"` // Primary key.

	OwnerID      uint64     `gorm:"not null;index"`                                      // Owner who owes the commission.
	Owner        Owner      `gorm:"foreignKey:OwnerID;constraint:OnDelete:CASCADE"`      // Owner relation.
	AffiliateID  uint64     `gorm:"not null;index"`                                      // Affiliate owed the commission.
	Affiliate    Affiliate  `gorm:"foreignKey:AffiliateID;constraint:OnDelete:CASCADE"`  // Affiliate relation.
	SubscriberID uint64     `gorm:"not null;index"`                                      // Invitee whose payment earned it.
	Subscriber   Subscriber `gorm:"foreignKey:SubscriberID;constraint:OnDelete:CASCADE"` // Subscriber relation.

	AmountUSD decimal.Decimal     `gorm:"type:decimal(9,2);not null"` // USD commission amount.
	AmountLTC decimal.NullDecimal `gorm:"type:decimal(20,8)"`         // LTC commission amount, crypto flows only.

	Paid          bool       `gorm:"not null;default:false;index"` // Whether the accrual has been settled.
	ConfirmedDate *time.Time // Settlement time, set together with Paid.

	CreatedAt time.Time `gorm:"not null;autoCreateTime"` // Creation timestamp.
}
