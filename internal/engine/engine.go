// Package engine owns the subscription lifecycle and the affiliate
// commission bookkeeping. Every multi-row mutation here runs inside one
// store transaction; concurrent callers racing on the same subscription see
// exactly one winner.
package engine

import (
	"errors"
	"time"

	"github.com/guildpay/guildpay/internal/gateway"
	"github.com/guildpay/guildpay/internal/models"
	"github.com/guildpay/guildpay/internal/notify"
	"github.com/guildpay/guildpay/internal/store"
)

// ErrAlreadyActive rejects an activation for a subscriber who already holds
// a live subscription. The pending row is dropped and the gateway sees the
// event as already processed.
var ErrAlreadyActive = errors.New("subscriber already has an active subscription")

// Engine executes subscription state transitions and commission accounting.
type Engine struct {
	store   *store.Store
	card    gateway.PaymentGateway
	crypto  gateway.PaymentGateway
	courier *notify.Courier

	now func() time.Time
}

// New constructs an Engine over the ledger store, the two gateway variants
// and the notification courier.
func New(st *store.Store, card, crypto gateway.PaymentGateway, courier *notify.Courier) *Engine {
	return &Engine{
		store:   st,
		card:    card,
		crypto:  crypto,
		courier: courier,
		now:     func() time.Time { return time.Now().UTC() },
	}
}

// Store returns the underlying ledger store.
func (e *Engine) Store() *store.Store {
	return e.store
}

// gatewayFor selects the gateway variant for a settlement mode.
func (e *Engine) gatewayFor(mode models.SettlementMode) gateway.PaymentGateway {
	if mode == models.SettlementCrypto {
		return e.crypto
	}
	return e.card
}
