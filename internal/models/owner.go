package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// SettlementMode selects the payment processor an owner collects through.
type SettlementMode string

// Settlement modes supported at onboarding.
const (
	// SettlementCard settles through the card processor (Stripe).
	SettlementCard SettlementMode = "card"
	// SettlementCrypto settles through the crypto processor (CoinPayments, LTC).
	SettlementCrypto SettlementMode = "crypto"
)

// Owner is a Discord server operator selling subscriptions.
type Owner struct {
	ID uint64 `gorm:"primaryKey;autoIncrement"` // Primary key.

	DiscordID string `gorm:"type:varchar(255);not null;uniqueIndex"` // Discord account ID.
	Username  string `gorm:"type:varchar(255);not null"`             // Display name.
	Email     string `gorm:"type:varchar(255);not null"`             // Contact email.

	ReferralSlug      string         `gorm:"type:varchar(20);not null;uniqueIndex"` // Unique lowercase slug subscribers enter through.
	CommissionPercent int            `gorm:"not null"`                              // Affiliate commission percent, 1..99.
	SettlementMode    SettlementMode `gorm:"type:varchar(16);not null"`             // Processor the owner settles through.

	StripeAccountID  string `gorm:"type:varchar(100)"`      // Connected card account, card mode only.
	StripeOnboarding bool   `gorm:"not null;default:false"` // Whether the card account can charge and pay out.

	CoinPublicKey string `gorm:"type:varchar(255)"` // Crypto processor public API key.
	CoinSecretKey string `gorm:"type:varchar(255)"` // Crypto processor secret API key, HMAC signing key.

	TotalPendingUSD decimal.Decimal `gorm:"type:decimal(9,2);not null;default:0"`  // Unsettled USD commissions across all affiliates.
	TotalPendingLTC decimal.Decimal `gorm:"type:decimal(20,8);not null;default:0"` // Unsettled LTC commissions across all affiliates.
	TotalEarnings   decimal.Decimal `gorm:"type:decimal(9,2);not null;default:0"`  // Lifetime USD subscription earnings.

	CreatedAt time.Time `gorm:"not null;autoCreateTime"` // Creation timestamp.
	UpdatedAt time.Time `gorm:"not null;autoUpdateTime"` // Last update timestamp.
}
