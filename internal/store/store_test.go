package store

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/glebarez/sqlite"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/guildpay/guildpay/internal/db"
	"github.com/guildpay/guildpay/internal/models"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	conn, errOpen := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{})
	if errOpen != nil {
		t.Fatalf("open sqlite: %v", errOpen)
	}
	if errMigrate := db.Migrate(conn); errMigrate != nil {
		t.Fatalf("migrate: %v", errMigrate)
	}
	return New(conn)
}

func seedOwner(t *testing.T, st *Store, slug string, mode models.SettlementMode) *models.Owner {
	t.Helper()
	owner := &models.Owner{
		DiscordID:         "owner-" + slug,
		Username:          "owner " + slug,
		Email:             slug + "@example.com",
		ReferralSlug:      slug,
		CommissionPercent: 30,
		SettlementMode:    mode,
	}
	if errCreate := st.CreateOwner(context.Background(), owner); errCreate != nil {
		t.Fatalf("seed owner: %v", errCreate)
	}
	return owner
}

func seedSubscriber(t *testing.T, st *Store, ownerID uint64, discordID string) *models.Subscriber {
	t.Helper()
	subscriber := &models.Subscriber{
		DiscordID: discordID,
		Username:  "user " + discordID,
		Email:     discordID + "@example.com",
		OwnerID:   ownerID,
	}
	if errCreate := st.CreateSubscriber(context.Background(), subscriber); errCreate != nil {
		t.Fatalf("seed subscriber: %v", errCreate)
	}
	return subscriber
}

func seedPlan(t *testing.T, st *Store, ownerID uint64, name string) *models.Plan {
	t.Helper()
	plan := &models.Plan{
		OwnerID:        ownerID,
		Name:           name,
		Amount:         decimal.RequireFromString("10.00"),
		DurationMonths: 1,
	}
	if errCreate := st.CreatePlan(context.Background(), plan); errCreate != nil {
		t.Fatalf("seed plan: %v", errCreate)
	}
	return plan
}

func TestCreateOwnerValidation(t *testing.T) {
	st := openTestStore(t)
	ctx := context.Background()

	base := func() *models.Owner {
		return &models.Owner{
			DiscordID:         "d1",
			Username:          "owner",
			Email:             "o@example.com",
			ReferralSlug:      "goodslug",
			CommissionPercent: 30,
			SettlementMode:    models.SettlementCard,
		}
	}

	bad := base()
	bad.ReferralSlug = "Bad Slug!"
	if errCreate := st.CreateOwner(ctx, bad); !errors.Is(errCreate, ErrValidation) {
		t.Fatalf("bad slug: got %v, want validation error", errCreate)
	}

	reserved := base()
	reserved.ReferralSlug = "admin"
	if errCreate := st.CreateOwner(ctx, reserved); !errors.Is(errCreate, ErrValidation) {
		t.Fatalf("reserved slug: got %v, want validation error", errCreate)
	}

	percent := base()
	percent.CommissionPercent = 100
	if errCreate := st.CreateOwner(ctx, percent); !errors.Is(errCreate, ErrValidation) {
		t.Fatalf("bad percent: got %v, want validation error", errCreate)
	}

	mode := base()
	mode.SettlementMode = "paypal"
	if errCreate := st.CreateOwner(ctx, mode); !errors.Is(errCreate, ErrValidation) {
		t.Fatalf("bad mode: got %v, want validation error", errCreate)
	}

	if errCreate := st.CreateOwner(ctx, base()); errCreate != nil {
		t.Fatalf("valid owner: %v", errCreate)
	}
}

func TestCreateOwnerDuplicateSlug(t *testing.T) {
	st := openTestStore(t)
	seedOwner(t, st, "myserver", models.SettlementCard)

	dup := &models.Owner{
		DiscordID:         "other",
		Username:          "other",
		Email:             "other@example.com",
		ReferralSlug:      "myserver",
		CommissionPercent: 10,
		SettlementMode:    models.SettlementCrypto,
	}
	if errCreate := st.CreateOwner(context.Background(), dup); !errors.Is(errCreate, ErrDuplicate) {
		t.Fatalf("duplicate slug: got %v, want duplicate error", errCreate)
	}
}

func TestCreatePlanNameUniquePerOwnerCaseInsensitive(t *testing.T) {
	st := openTestStore(t)
	owner := seedOwner(t, st, "caseowner", models.SettlementCard)
	other := seedOwner(t, st, "otherowner", models.SettlementCard)
	seedPlan(t, st, owner.ID, "Gold Tier")

	dup := &models.Plan{
		OwnerID:        owner.ID,
		Name:           "gold tier",
		Amount:         decimal.RequireFromString("5.00"),
		DurationMonths: 1,
	}
	if errCreate := st.CreatePlan(context.Background(), dup); !errors.Is(errCreate, ErrDuplicate) {
		t.Fatalf("case-insensitive duplicate: got %v, want duplicate error", errCreate)
	}

	// The same name under another owner is fine.
	seedPlan(t, st, other.ID, "Gold Tier")
}

func TestCreateSubscriptionRejectsInactivePlan(t *testing.T) {
	st := openTestStore(t)
	owner := seedOwner(t, st, "inactiveowner", models.SettlementCard)
	subscriber := seedSubscriber(t, st, owner.ID, "sub-1")
	plan := seedPlan(t, st, owner.ID, "Gold")

	if errUpdate := st.DB().Model(&models.Plan{}).
		Where("id = ?", plan.ID).
		Update("status", models.PlanInactive).Error; errUpdate != nil {
		t.Fatalf("deactivate plan: %v", errUpdate)
	}

	sub := &models.Subscription{
		SubscriberID: subscriber.ID,
		OwnerID:      owner.ID,
		PlanID:       plan.ID,
		Mode:         models.SettlementCard,
		ExternalID:   "ext-1",
	}
	if errCreate := st.CreateSubscription(context.Background(), sub); !errors.Is(errCreate, ErrValidation) {
		t.Fatalf("inactive plan: got %v, want validation error", errCreate)
	}
}

func TestHasActiveSubscription(t *testing.T) {
	st := openTestStore(t)
	ctx := context.Background()
	owner := seedOwner(t, st, "liveowner", models.SettlementCard)
	subscriber := seedSubscriber(t, st, owner.ID, "live-sub")
	plan := seedPlan(t, st, owner.ID, "Gold")

	check := func(want bool, label string) {
		t.Helper()
		got, errCheck := st.HasActiveSubscription(ctx, subscriber.ID)
		if errCheck != nil {
			t.Fatalf("%s: %v", label, errCheck)
		}
		if got != want {
			t.Fatalf("%s: got %v want %v", label, got, want)
		}
	}

	check(false, "no subscription")

	future := time.Now().UTC().Add(720 * time.Hour)
	past := time.Now().UTC().Add(-time.Hour)

	sub := models.Subscription{
		SubscriberID:   subscriber.ID,
		OwnerID:        owner.ID,
		PlanID:         plan.ID,
		Status:         models.SubscriptionActive,
		Mode:           models.SettlementCard,
		ExternalID:     "ext-live",
		ExpirationDate: &future,
	}
	if errCreate := st.DB().Create(&sub).Error; errCreate != nil {
		t.Fatalf("create sub: %v", errCreate)
	}
	check(true, "active subscription")

	// Canceled keeps access until the paid term runs out.
	if errUpdate := st.DB().Model(&sub).Update("status", models.SubscriptionCanceled).Error; errUpdate != nil {
		t.Fatalf("cancel sub: %v", errUpdate)
	}
	check(true, "canceled with future expiry")

	if errUpdate := st.DB().Model(&sub).Update("expiration_date", past).Error; errUpdate != nil {
		t.Fatalf("age sub: %v", errUpdate)
	}
	check(false, "canceled with past expiry")

	if errUpdate := st.DB().Model(&sub).Update("status", models.SubscriptionExpired).Error; errUpdate != nil {
		t.Fatalf("expire sub: %v", errUpdate)
	}
	check(false, "expired subscription")
}

func TestRedeemAccessCodeExactlyOnce(t *testing.T) {
	st := openTestStore(t)
	ctx := context.Background()
	owner := seedOwner(t, st, "codeowner", models.SettlementCard)

	if errCreate := st.CreateAccessCodes(ctx, []string{"AB12C"}); errCreate != nil {
		t.Fatalf("create codes: %v", errCreate)
	}

	if redeemable, errCheck := st.AccessCodeRedeemable(ctx, "AB12C"); errCheck != nil || !redeemable {
		t.Fatalf("fresh code redeemable: got %v, %v", redeemable, errCheck)
	}

	if errRedeem := st.RedeemAccessCode(ctx, "AB12C", owner.ID); errRedeem != nil {
		t.Fatalf("first redeem: %v", errRedeem)
	}

	// A spent code fails the redeemable check, unlike the existence check
	// the generator uses for uniqueness.
	if redeemable, errCheck := st.AccessCodeRedeemable(ctx, "AB12C"); errCheck != nil || redeemable {
		t.Fatalf("spent code redeemable: got %v, %v", redeemable, errCheck)
	}
	if exists, errCheck := st.AccessCodeExists(ctx, "AB12C"); errCheck != nil || !exists {
		t.Fatalf("spent code exists: got %v, %v", exists, errCheck)
	}
	if errRedeem := st.RedeemAccessCode(ctx, "AB12C", owner.ID); !errors.Is(errRedeem, ErrValidation) {
		t.Fatalf("second redeem: got %v, want validation error", errRedeem)
	}
	if errRedeem := st.RedeemAccessCode(ctx, "ZZZZZ", owner.ID); !IsNotFound(errRedeem) {
		t.Fatalf("unknown code: got %v, want not found", errRedeem)
	}

	var row models.AccessCode
	if errFind := st.DB().Where("code = ?", "AB12C").First(&row).Error; errFind != nil {
		t.Fatalf("reload code: %v", errFind)
	}
	if !row.IsUsed || row.UsedByID == nil || *row.UsedByID != owner.ID || row.UsedAt == nil {
		t.Fatalf("code not marked used: %+v", row)
	}
}
