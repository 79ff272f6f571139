package engine

import (
	"context"
	"testing"
	"time"

	"github.com/glebarez/sqlite"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/guildpay/guildpay/internal/db"
	"github.com/guildpay/guildpay/internal/gateway"
	"github.com/guildpay/guildpay/internal/models"
	"github.com/guildpay/guildpay/internal/store"
)

// fakeGateway scripts gateway behavior for engine tests.
type fakeGateway struct {
	checkout    *gateway.Checkout
	checkoutErr error
	status      gateway.Status
	statusErr   error
	cancelErr   error
	withdrawErr error

	canceled    []string
	withdrawals []decimal.Decimal
}

func (f *fakeGateway) InitiateCheckout(ctx context.Context, owner *models.Owner, subscriber *models.Subscriber, plan *models.Plan) (*gateway.Checkout, error) {
	if f.checkoutErr != nil {
		return nil, f.checkoutErr
	}
	return f.checkout, nil
}

func (f *fakeGateway) PollStatus(ctx context.Context, owner *models.Owner, externalID string) (gateway.Status, error) {
	return f.status, f.statusErr
}

func (f *fakeGateway) Cancel(ctx context.Context, owner *models.Owner, externalID string) error {
	f.canceled = append(f.canceled, externalID)
	return f.cancelErr
}

func (f *fakeGateway) Withdraw(ctx context.Context, owner *models.Owner, address string, amountLTC decimal.Decimal) error {
	if f.withdrawErr != nil {
		return f.withdrawErr
	}
	f.withdrawals = append(f.withdrawals, amountLTC)
	return nil
}

func openTestStore(t *testing.T) *store.Store {
	t.Helper()
	conn, errOpen := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{})
	if errOpen != nil {
		t.Fatalf("open sqlite: %v", errOpen)
	}
	if errMigrate := db.Migrate(conn); errMigrate != nil {
		t.Fatalf("migrate: %v", errMigrate)
	}
	return store.New(conn)
}

func newTestEngine(t *testing.T, card, crypto *fakeGateway) *Engine {
	t.Helper()
	return New(openTestStore(t), card, crypto, nil)
}

type fixture struct {
	owner      *models.Owner
	subscriber *models.Subscriber
	plan       *models.Plan
	affiliate  *models.Affiliate
}

// seedFixture creates an owner at 30% commission, a $10/1-month plan, an
// invited subscriber and the crediting affiliate.
func seedFixture(t *testing.T, st *store.Store, mode models.SettlementMode) fixture {
	t.Helper()
	ctx := context.Background()

	owner := &models.Owner{
		DiscordID:         "owner-" + string(mode),
		Username:          "the owner",
		Email:             "owner@example.com",
		ReferralSlug:      "srv" + string(mode),
		CommissionPercent: 30,
		SettlementMode:    mode,
		StripeAccountID:   "acct_test",
		CoinPublicKey:     "pub",
		CoinSecretKey:     "sec",
	}
	if errCreate := st.CreateOwner(ctx, owner); errCreate != nil {
		t.Fatalf("seed owner: %v", errCreate)
	}

	referrer := &models.Subscriber{
		DiscordID: "referrer-" + string(mode),
		Username:  "the referrer",
		Email:     "referrer@example.com",
		OwnerID:   owner.ID,
	}
	if errCreate := st.CreateSubscriber(ctx, referrer); errCreate != nil {
		t.Fatalf("seed referrer: %v", errCreate)
	}
	affiliate := &models.Affiliate{
		SubscriberID: referrer.ID,
		OwnerID:      owner.ID,
		LTCAddress:   "LTCPayoutAddr",
	}
	if errCreate := st.CreateAffiliate(ctx, affiliate); errCreate != nil {
		t.Fatalf("seed affiliate: %v", errCreate)
	}

	subscriber := &models.Subscriber{
		DiscordID: "invitee-" + string(mode),
		Username:  "the invitee",
		Email:     "invitee@example.com",
		OwnerID:   owner.ID,
	}
	if errCreate := st.CreateSubscriber(ctx, subscriber); errCreate != nil {
		t.Fatalf("seed subscriber: %v", errCreate)
	}
	if errCreate := st.CreateInvitee(ctx, &models.AffiliateInvitee{
		AffiliateID:      affiliate.ID,
		InviteeDiscordID: subscriber.DiscordID,
	}); errCreate != nil {
		t.Fatalf("seed invitee: %v", errCreate)
	}

	plan := &models.Plan{
		OwnerID:        owner.ID,
		Name:           "Gold",
		Amount:         decimal.RequireFromString("10.00"),
		DurationMonths: 1,
	}
	if errCreate := st.CreatePlan(ctx, plan); errCreate != nil {
		t.Fatalf("seed plan: %v", errCreate)
	}

	return fixture{owner: owner, subscriber: subscriber, plan: plan, affiliate: affiliate}
}

// seedPending inserts a PENDING subscription row directly.
func seedPending(t *testing.T, st *store.Store, f fixture, externalID string, ltc string) *models.Subscription {
	t.Helper()
	sub := &models.Subscription{
		SubscriberID: f.subscriber.ID,
		OwnerID:      f.owner.ID,
		PlanID:       f.plan.ID,
		Status:       models.SubscriptionPending,
		Mode:         f.owner.SettlementMode,
		ExternalID:   externalID,
	}
	if ltc != "" {
		sub.LTCAmount = decimal.NewNullDecimal(decimal.RequireFromString(ltc))
	}
	if errCreate := st.DB().Create(sub).Error; errCreate != nil {
		t.Fatalf("seed pending: %v", errCreate)
	}
	return sub
}

func reloadSubscription(t *testing.T, st *store.Store, id uint64) *models.Subscription {
	t.Helper()
	var sub models.Subscription
	if errFind := st.DB().First(&sub, id).Error; errFind != nil {
		t.Fatalf("reload subscription %d: %v", id, errFind)
	}
	return &sub
}

func reloadPlan(t *testing.T, st *store.Store, id uint64) *models.Plan {
	t.Helper()
	var plan models.Plan
	if errFind := st.DB().First(&plan, id).Error; errFind != nil {
		t.Fatalf("reload plan %d: %v", id, errFind)
	}
	return &plan
}

func reloadOwner(t *testing.T, st *store.Store, id uint64) *models.Owner {
	t.Helper()
	var owner models.Owner
	if errFind := st.DB().First(&owner, id).Error; errFind != nil {
		t.Fatalf("reload owner %d: %v", id, errFind)
	}
	return &owner
}

func reloadAffiliate(t *testing.T, st *store.Store, id uint64) *models.Affiliate {
	t.Helper()
	var affiliate models.Affiliate
	if errFind := st.DB().First(&affiliate, id).Error; errFind != nil {
		t.Fatalf("reload affiliate %d: %v", id, errFind)
	}
	return &affiliate
}

func wantDecimal(t *testing.T, got decimal.Decimal, want string, label string) {
	t.Helper()
	if !got.Equal(decimal.RequireFromString(want)) {
		t.Fatalf("%s: got %s want %s", label, got.String(), want)
	}
}

// fixedClock pins the engine clock for deterministic expirations.
func fixedClock(eng *Engine, at time.Time) {
	eng.now = func() time.Time { return at }
}
