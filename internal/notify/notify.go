// Package notify hands outbound notification events to the email courier.
// The engine never drafts or sends mail; it appends one event per occurrence
// to a Redis stream the courier consumes.
package notify

import (
	"context"
	"time"

	"github.com/redis/go-redis/v9"
	log "github.com/sirupsen/logrus"
)

// StreamKey is the Redis stream the email courier consumes.
const StreamKey = "guildpay:notifications"

// Event kinds appended to the stream.
const (
	// KindPaymentFailed tells a subscriber their payment did not go through.
	KindPaymentFailed = "payment_failed"
	// KindCommissionPaid tells an affiliate a commission was settled.
	KindCommissionPaid = "commission_paid"
	// KindSubscriptionExpired tells a subscriber their term ran out.
	KindSubscriptionExpired = "subscription_expired"
	// KindSettlementFailed tells the operator an on-chain withdrawal failed.
	KindSettlementFailed = "settlement_failed"
)

// Courier appends notification events for the external email courier.
type Courier struct {
	rdb *redis.Client
}

// New constructs a Courier on an existing Redis client.
func New(rdb *redis.Client) *Courier {
	return &Courier{rdb: rdb}
}

// NewFromAddr constructs a Courier connecting to the given Redis address.
func NewFromAddr(addr string) *Courier {
	return &Courier{rdb: redis.NewClient(&redis.Options{Addr: addr})}
}

// PaymentFailed enqueues a payment-failed notice for a subscriber.
func (c *Courier) PaymentFailed(ctx context.Context, subscriberEmail string) {
	c.enqueue(ctx, KindPaymentFailed, map[string]any{
		"email": subscriberEmail,
	})
}

// CommissionPaid enqueues a commission-paid notice for an affiliate.
func (c *Courier) CommissionPaid(ctx context.Context, affiliateEmail, affiliateName, ownerName, amount, currency string) {
	c.enqueue(ctx, KindCommissionPaid, map[string]any{
		"email":     affiliateEmail,
		"affiliate": affiliateName,
		"owner":     ownerName,
		"amount":    amount,
		"currency":  currency,
	})
}

// SubscriptionExpired enqueues an expiry notice for a subscriber.
func (c *Courier) SubscriptionExpired(ctx context.Context, subscriberEmail string) {
	c.enqueue(ctx, KindSubscriptionExpired, map[string]any{
		"email": subscriberEmail,
	})
}

// SettlementFailed enqueues an operator notice about a failed withdrawal.
func (c *Courier) SettlementFailed(ctx context.Context, ownerName, affiliateName, reason string) {
	c.enqueue(ctx, KindSettlementFailed, map[string]any{
		"owner":     ownerName,
		"affiliate": affiliateName,
		"reason":    reason,
	})
}

// enqueue appends one event. Notification loss is logged, never propagated:
// money bookkeeping must not fail because the courier is down.
func (c *Courier) enqueue(ctx context.Context, kind string, fields map[string]any) {
	if c == nil || c.rdb == nil {
		return
	}
	values := map[string]any{
		"kind": kind,
		"at":   time.Now().UTC().Format(time.RFC3339),
	}
	for k, v := range fields {
		values[k] = v
	}
	if errAdd := c.rdb.XAdd(ctx, &redis.XAddArgs{
		Stream: StreamKey,
		Values: values,
	}).Err(); errAdd != nil {
		log.WithField("kind", kind).Warnf("notify: enqueue failed: %v", errAdd)
	}
}
