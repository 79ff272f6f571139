package engine

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/shopspring/decimal"

	"github.com/guildpay/guildpay/internal/gateway"
	"github.com/guildpay/guildpay/internal/models"
	"github.com/guildpay/guildpay/internal/store"
)

func TestCommissionRounding(t *testing.T) {
	cases := []struct {
		amount  string
		percent int
		want    string
	}{
		{"10.00", 30, "3"},
		{"9.99", 33, "3.3"},
		{"19.99", 7, "1.4"},
		{"10.00", 1, "0.1"},
	}
	for _, tc := range cases {
		got := commissionUSD(decimal.RequireFromString(tc.amount), tc.percent)
		if !got.Equal(decimal.RequireFromString(tc.want)) {
			t.Fatalf("commissionUSD(%s, %d): got %s want %s", tc.amount, tc.percent, got, tc.want)
		}
	}

	ltc := commissionLTC(decimal.RequireFromString("0.33333333"), 30)
	if !ltc.Equal(decimal.RequireFromString("0.1")) {
		t.Fatalf("commissionLTC: got %s want 0.1", ltc)
	}
}

func TestActivateWithoutInviteeSkipsCommission(t *testing.T) {
	eng := newTestEngine(t, &fakeGateway{}, &fakeGateway{})
	st := eng.Store()
	f := seedFixture(t, st, models.SettlementCard)

	// A subscriber nobody invited.
	organic := &models.Subscriber{
		DiscordID: "organic",
		Username:  "organic",
		Email:     "organic@example.com",
		OwnerID:   f.owner.ID,
	}
	if errCreate := st.CreateSubscriber(context.Background(), organic); errCreate != nil {
		t.Fatalf("seed organic: %v", errCreate)
	}
	if errCreate := st.DB().Create(&models.Subscription{
		SubscriberID: organic.ID,
		OwnerID:      f.owner.ID,
		PlanID:       f.plan.ID,
		Status:       models.SubscriptionPending,
		Mode:         models.SettlementCard,
		ExternalID:   "sub_organic",
	}).Error; errCreate != nil {
		t.Fatalf("seed pending: %v", errCreate)
	}

	if errActivate := eng.Activate(context.Background(), "sub_organic"); errActivate != nil {
		t.Fatalf("activate: %v", errActivate)
	}

	var payments int64
	if errCount := st.DB().Model(&models.AffiliatePayment{}).Count(&payments).Error; errCount != nil {
		t.Fatalf("count accruals: %v", errCount)
	}
	if payments != 0 {
		t.Fatalf("accrual rows: got %d want 0", payments)
	}
	wantDecimal(t, reloadPlan(t, st, f.plan.ID).SubscriptionEarnings, "10.00", "plan earnings still advance")
}

func TestSettleCardDrainsPending(t *testing.T) {
	eng := newTestEngine(t, &fakeGateway{}, &fakeGateway{})
	st := eng.Store()
	f := seedFixture(t, st, models.SettlementCard)
	seedPending(t, st, f, "sub_settle", "")
	if errActivate := eng.Activate(context.Background(), "sub_settle"); errActivate != nil {
		t.Fatalf("activate: %v", errActivate)
	}

	if errSettle := eng.Settle(context.Background(), f.owner.ID, f.affiliate.ID); errSettle != nil {
		t.Fatalf("settle: %v", errSettle)
	}

	affiliate := reloadAffiliate(t, st, f.affiliate.ID)
	wantDecimal(t, affiliate.PendingUSD, "0", "pending usd")
	wantDecimal(t, affiliate.PaidUSD, "3", "paid usd")
	if affiliate.LastPaymentDate == nil {
		t.Fatal("last payment date should be set")
	}

	owner := reloadOwner(t, st, f.owner.ID)
	wantDecimal(t, owner.TotalPendingUSD, "0", "owner pending usd")

	var payment models.AffiliatePayment
	if errFind := st.DB().Where("affiliate_id = ?", f.affiliate.ID).First(&payment).Error; errFind != nil {
		t.Fatalf("accrual: %v", errFind)
	}
	if !payment.Paid || payment.ConfirmedDate == nil {
		t.Fatalf("accrual should be settled: %+v", payment)
	}

	// Nothing left to settle.
	if errSettle := eng.Settle(context.Background(), f.owner.ID, f.affiliate.ID); !errors.Is(errSettle, store.ErrValidation) {
		t.Fatalf("second settle: got %v, want validation error", errSettle)
	}
}

func TestSettleCryptoWithdrawsPendingLTC(t *testing.T) {
	crypto := &fakeGateway{}
	eng := newTestEngine(t, &fakeGateway{}, crypto)
	st := eng.Store()
	f := seedFixture(t, st, models.SettlementCrypto)
	seedPending(t, st, f, "txn_settle", "0.50000000")
	if errActivate := eng.Activate(context.Background(), "txn_settle"); errActivate != nil {
		t.Fatalf("activate: %v", errActivate)
	}

	if errSettle := eng.Settle(context.Background(), f.owner.ID, f.affiliate.ID); errSettle != nil {
		t.Fatalf("settle: %v", errSettle)
	}

	if len(crypto.withdrawals) != 1 {
		t.Fatalf("withdrawals: got %d want 1", len(crypto.withdrawals))
	}
	if !crypto.withdrawals[0].Equal(decimal.RequireFromString("0.15")) {
		t.Fatalf("withdrawn amount: got %s want 0.15", crypto.withdrawals[0])
	}

	affiliate := reloadAffiliate(t, st, f.affiliate.ID)
	wantDecimal(t, affiliate.PendingLTC, "0", "pending ltc")
	wantDecimal(t, affiliate.PaidLTC, "0.15", "paid ltc")
	wantDecimal(t, affiliate.PendingUSD, "0", "pending usd")
	wantDecimal(t, affiliate.PaidUSD, "3", "paid usd")
}

func TestSettleCryptoWithoutLTCTrackSkipsWithdrawal(t *testing.T) {
	crypto := &fakeGateway{}
	eng := newTestEngine(t, &fakeGateway{}, crypto)
	st := eng.Store()
	f := seedFixture(t, st, models.SettlementCrypto)
	// A checkout whose LTC quote never persisted accrues the USD track only.
	seedPending(t, st, f, "txn_noquote", "")
	if errActivate := eng.Activate(context.Background(), "txn_noquote"); errActivate != nil {
		t.Fatalf("activate: %v", errActivate)
	}

	if errSettle := eng.Settle(context.Background(), f.owner.ID, f.affiliate.ID); errSettle != nil {
		t.Fatalf("settle: %v", errSettle)
	}

	if len(crypto.withdrawals) != 0 {
		t.Fatalf("withdrawals: got %d want 0", len(crypto.withdrawals))
	}

	affiliate := reloadAffiliate(t, st, f.affiliate.ID)
	wantDecimal(t, affiliate.PendingUSD, "0", "pending usd")
	wantDecimal(t, affiliate.PaidUSD, "3", "paid usd")
	wantDecimal(t, affiliate.PendingLTC, "0", "pending ltc")
	wantDecimal(t, affiliate.PaidLTC, "0", "paid ltc")
}

func TestSettleFailedWithdrawalLeavesBalances(t *testing.T) {
	crypto := &fakeGateway{withdrawErr: fmt.Errorf("%w: connection reset", gateway.ErrTransport)}
	eng := newTestEngine(t, &fakeGateway{}, crypto)
	st := eng.Store()
	f := seedFixture(t, st, models.SettlementCrypto)
	seedPending(t, st, f, "txn_rollback", "0.5")
	if errActivate := eng.Activate(context.Background(), "txn_rollback"); errActivate != nil {
		t.Fatalf("activate: %v", errActivate)
	}

	errSettle := eng.Settle(context.Background(), f.owner.ID, f.affiliate.ID)
	if !errors.Is(errSettle, gateway.ErrTransport) {
		t.Fatalf("got %v, want transport error", errSettle)
	}

	// The withdrawal failed; all bookkeeping rolled back.
	affiliate := reloadAffiliate(t, st, f.affiliate.ID)
	wantDecimal(t, affiliate.PendingUSD, "3", "pending usd untouched")
	wantDecimal(t, affiliate.PendingLTC, "0.15", "pending ltc untouched")
	wantDecimal(t, affiliate.PaidUSD, "0", "paid usd untouched")

	var payment models.AffiliatePayment
	if errFind := st.DB().Where("affiliate_id = ?", f.affiliate.ID).First(&payment).Error; errFind != nil {
		t.Fatalf("accrual: %v", errFind)
	}
	if payment.Paid {
		t.Fatal("accrual must stay unpaid after failed withdrawal")
	}
}

func TestSettleCryptoRequiresPayoutAddress(t *testing.T) {
	eng := newTestEngine(t, &fakeGateway{}, &fakeGateway{})
	st := eng.Store()
	f := seedFixture(t, st, models.SettlementCrypto)
	if errUpdate := st.DB().Model(&models.Affiliate{}).
		Where("id = ?", f.affiliate.ID).
		Update("ltc_address", "").Error; errUpdate != nil {
		t.Fatalf("clear address: %v", errUpdate)
	}
	seedPending(t, st, f, "txn_noaddr", "0.5")
	if errActivate := eng.Activate(context.Background(), "txn_noaddr"); errActivate != nil {
		t.Fatalf("activate: %v", errActivate)
	}

	if errSettle := eng.Settle(context.Background(), f.owner.ID, f.affiliate.ID); !errors.Is(errSettle, store.ErrValidation) {
		t.Fatalf("got %v, want validation error", errSettle)
	}
}

func TestSettleUnknownAffiliate(t *testing.T) {
	eng := newTestEngine(t, &fakeGateway{}, &fakeGateway{})
	f := seedFixture(t, eng.Store(), models.SettlementCard)

	if errSettle := eng.Settle(context.Background(), f.owner.ID, 9999); !store.IsNotFound(errSettle) {
		t.Fatalf("got %v, want not found", errSettle)
	}
}
