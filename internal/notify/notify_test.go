package notify

import (
	"context"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
)

func newTestCourier(t *testing.T) (*Courier, *redis.Client) {
	t.Helper()
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	return New(rdb), rdb
}

func TestCourierAppendsEvents(t *testing.T) {
	courier, rdb := newTestCourier(t)
	ctx := context.Background()

	courier.PaymentFailed(ctx, "sub@example.com")
	courier.CommissionPaid(ctx, "aff@example.com", "affiliate", "owner", "3.00", "USD")
	courier.SubscriptionExpired(ctx, "sub@example.com")
	courier.SettlementFailed(ctx, "owner", "affiliate", "transport error")

	entries, errRead := rdb.XRange(ctx, StreamKey, "-", "+").Result()
	if errRead != nil {
		t.Fatalf("read stream: %v", errRead)
	}
	if len(entries) != 4 {
		t.Fatalf("stream entries: got %d want 4", len(entries))
	}

	wantKinds := []string{KindPaymentFailed, KindCommissionPaid, KindSubscriptionExpired, KindSettlementFailed}
	for i, entry := range entries {
		if entry.Values["kind"] != wantKinds[i] {
			t.Fatalf("entry %d kind: got %v want %s", i, entry.Values["kind"], wantKinds[i])
		}
		if entry.Values["at"] == "" {
			t.Fatalf("entry %d missing timestamp", i)
		}
	}

	paid := entries[1].Values
	if paid["amount"] != "3.00" || paid["currency"] != "USD" || paid["owner"] != "owner" {
		t.Fatalf("commission paid fields: %v", paid)
	}
}

func TestCourierSurvivesBrokerOutage(t *testing.T) {
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	courier := New(rdb)
	mr.Close()

	// Must log and move on, never panic or propagate.
	courier.PaymentFailed(context.Background(), "sub@example.com")
}

func TestNilCourierIsSafe(t *testing.T) {
	var courier *Courier
	courier.PaymentFailed(context.Background(), "sub@example.com")
	New(nil).SubscriptionExpired(context.Background(), "sub@example.com")
}
