package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"regexp"
	"strings"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	dbutil "github.com/guildpay/guildpay/internal/db"
	"github.com/guildpay/guildpay/internal/models"
)

// slugPattern constrains owner referral slugs.
var slugPattern = regexp.MustCompile(`^[a-z0-9_]{4,20}$`)

// reservedSlugs may not be claimed as referral slugs.
var reservedSlugs = map[string]struct{}{
	"www": {}, "api": {}, "app": {}, "admin": {}, "mail": {},
	"blog": {}, "shop": {}, "help": {}, "support": {}, "status": {},
	"dashboard": {}, "billing": {}, "webhook": {}, "static": {},
}

// Store is the durable ledger all engine components read and mutate through.
type Store struct {
	db *gorm.DB
}

// New constructs a Store backed by GORM.
func New(db *gorm.DB) *Store {
	return &Store{db: db}
}

// DB exposes the underlying connection for components that join tables
// themselves (scheduler sweeps, HTTP listings).
func (s *Store) DB() *gorm.DB {
	return s.db
}

// Transaction runs fn inside a single transaction. On PostgreSQL the
// transaction is serializable; SQLite serializes writers on its own.
func (s *Store) Transaction(ctx context.Context, fn func(tx *gorm.DB) error) error {
	if dbutil.IsSQLite(s.db) {
		return s.db.WithContext(ctx).Transaction(fn)
	}
	return s.db.WithContext(ctx).Transaction(fn, &sql.TxOptions{Isolation: sql.LevelSerializable})
}

// LockForUpdate adds a row lock on dialects that support it. SQLite holds a
// database-level writer lock for the whole transaction instead.
func LockForUpdate(tx *gorm.DB) *gorm.DB {
	if dbutil.IsSQLite(tx) {
		return tx
	}
	return tx.Clauses(clause.Locking{Strength: "UPDATE"})
}

// CreateOwner validates and persists a new owner.
func (s *Store) CreateOwner(ctx context.Context, owner *models.Owner) error {
	if owner == nil {
		return fmt.Errorf("%w: nil owner", ErrValidation)
	}
	owner.ReferralSlug = strings.ToLower(strings.TrimSpace(owner.ReferralSlug))
	if !slugPattern.MatchString(owner.ReferralSlug) {
		return fmt.Errorf("%w: referral slug must be 4-20 lowercase [a-z0-9_] characters", ErrValidation)
	}
	if _, reserved := reservedSlugs[owner.ReferralSlug]; reserved {
		return fmt.Errorf("%w: referral slug %q is reserved", ErrValidation, owner.ReferralSlug)
	}
	if owner.CommissionPercent < 1 || owner.CommissionPercent > 99 {
		return fmt.Errorf("%w: commission percent must be within 1..99", ErrValidation)
	}
	switch owner.SettlementMode {
	case models.SettlementCard, models.SettlementCrypto:
	default:
		return fmt.Errorf("%w: unknown settlement mode %q", ErrValidation, owner.SettlementMode)
	}
	return translateCreate(s.db.WithContext(ctx).Create(owner).Error)
}

// CreateSubscriber persists a new subscriber.
func (s *Store) CreateSubscriber(ctx context.Context, subscriber *models.Subscriber) error {
	if subscriber == nil || strings.TrimSpace(subscriber.DiscordID) == "" {
		return fmt.Errorf("%w: subscriber discord id is required", ErrValidation)
	}
	return translateCreate(s.db.WithContext(ctx).Create(subscriber).Error)
}

// CreatePlan validates and persists a new plan. Plan names are unique per
// owner, case-insensitively.
func (s *Store) CreatePlan(ctx context.Context, plan *models.Plan) error {
	if plan == nil {
		return fmt.Errorf("%w: nil plan", ErrValidation)
	}
	plan.Name = strings.TrimSpace(plan.Name)
	if plan.Name == "" {
		return fmt.Errorf("%w: plan name is required", ErrValidation)
	}
	if !plan.Amount.IsPositive() {
		return fmt.Errorf("%w: plan amount must be positive", ErrValidation)
	}
	if plan.DurationMonths < 1 || plan.DurationMonths > 12 {
		return fmt.Errorf("%w: plan duration must be within 1..12 months", ErrValidation)
	}
	if plan.Status == "" {
		plan.Status = models.PlanActive
	}

	return s.Transaction(ctx, func(tx *gorm.DB) error {
		var count int64
		if errCount := tx.Model(&models.Plan{}).
			Where("owner_id = ?", plan.OwnerID).
			Where(dbutil.CaseInsensitiveEqualExpr(tx, "name"), dbutil.NormalizeCaseValue(tx, plan.Name)).
			Count(&count).Error; errCount != nil {
			return errCount
		}
		if count > 0 {
			return fmt.Errorf("%w: plan name %q already exists for owner", ErrDuplicate, plan.Name)
		}
		return translateCreate(tx.Create(plan).Error)
	})
}

// CreateSubscription persists a new PENDING subscription. Inactive plans may
// not back new checkouts.
func (s *Store) CreateSubscription(ctx context.Context, sub *models.Subscription) error {
	if sub == nil {
		return fmt.Errorf("%w: nil subscription", ErrValidation)
	}
	if sub.Status == "" {
		sub.Status = models.SubscriptionPending
	}
	return s.Transaction(ctx, func(tx *gorm.DB) error {
		var plan models.Plan
		if errFind := tx.First(&plan, sub.PlanID).Error; errFind != nil {
			return translateFind(errFind)
		}
		if plan.Status != models.PlanActive {
			return fmt.Errorf("%w: plan %d is inactive", ErrValidation, plan.ID)
		}
		return translateCreate(tx.Create(sub).Error)
	})
}

// CreateAffiliate promotes a subscriber to affiliate.
func (s *Store) CreateAffiliate(ctx context.Context, affiliate *models.Affiliate) error {
	if affiliate == nil {
		return fmt.Errorf("%w: nil affiliate", ErrValidation)
	}
	return translateCreate(s.db.WithContext(ctx).Create(affiliate).Error)
}

// CreateInvitee attributes an invited Discord ID to an affiliate.
func (s *Store) CreateInvitee(ctx context.Context, invitee *models.AffiliateInvitee) error {
	if invitee == nil || strings.TrimSpace(invitee.InviteeDiscordID) == "" {
		return fmt.Errorf("%w: invitee discord id is required", ErrValidation)
	}
	return translateCreate(s.db.WithContext(ctx).Create(invitee).Error)
}

// OwnerByID returns an owner by primary key.
func (s *Store) OwnerByID(ctx context.Context, id uint64) (*models.Owner, error) {
	var owner models.Owner
	if errFind := s.db.WithContext(ctx).First(&owner, id).Error; errFind != nil {
		return nil, translateFind(errFind)
	}
	return &owner, nil
}

// OwnerBySlug returns an owner by referral slug.
func (s *Store) OwnerBySlug(ctx context.Context, slug string) (*models.Owner, error) {
	var owner models.Owner
	if errFind := s.db.WithContext(ctx).
		Where("referral_slug = ?", strings.ToLower(strings.TrimSpace(slug))).
		First(&owner).Error; errFind != nil {
		return nil, translateFind(errFind)
	}
	return &owner, nil
}

// OwnerByStripeAccount returns the owner holding a connected card account.
func (s *Store) OwnerByStripeAccount(ctx context.Context, accountID string) (*models.Owner, error) {
	var owner models.Owner
	if errFind := s.db.WithContext(ctx).
		Where("stripe_account_id = ?", accountID).
		First(&owner).Error; errFind != nil {
		return nil, translateFind(errFind)
	}
	return &owner, nil
}

// SubscriberByID returns a subscriber by primary key.
func (s *Store) SubscriberByID(ctx context.Context, id uint64) (*models.Subscriber, error) {
	var subscriber models.Subscriber
	if errFind := s.db.WithContext(ctx).First(&subscriber, id).Error; errFind != nil {
		return nil, translateFind(errFind)
	}
	return &subscriber, nil
}

// SubscriberByDiscordID returns a subscriber by Discord account ID.
func (s *Store) SubscriberByDiscordID(ctx context.Context, discordID string) (*models.Subscriber, error) {
	var subscriber models.Subscriber
	if errFind := s.db.WithContext(ctx).
		Where("discord_id = ?", discordID).
		First(&subscriber).Error; errFind != nil {
		return nil, translateFind(errFind)
	}
	return &subscriber, nil
}

// PlanByID returns a plan by primary key.
func (s *Store) PlanByID(ctx context.Context, id uint64) (*models.Plan, error) {
	var plan models.Plan
	if errFind := s.db.WithContext(ctx).First(&plan, id).Error; errFind != nil {
		return nil, translateFind(errFind)
	}
	return &plan, nil
}

// PlansByOwner returns all plans published by an owner.
func (s *Store) PlansByOwner(ctx context.Context, ownerID uint64) ([]models.Plan, error) {
	var plans []models.Plan
	if errFind := s.db.WithContext(ctx).
		Where("owner_id = ?", ownerID).
		Order("id ASC").
		Find(&plans).Error; errFind != nil {
		return nil, errFind
	}
	return plans, nil
}

// SubscriptionByExternalID returns a subscription by its gateway ID.
func (s *Store) SubscriptionByExternalID(ctx context.Context, externalID string) (*models.Subscription, error) {
	var sub models.Subscription
	if errFind := s.db.WithContext(ctx).
		Where("external_id = ?", externalID).
		First(&sub).Error; errFind != nil {
		return nil, translateFind(errFind)
	}
	return &sub, nil
}

// HasActiveSubscription reports whether the subscriber currently holds a live
// subscription. Canceled terms count until their expiration date passes; the
// one-live-subscription invariant is about access, not renewal intent.
func (s *Store) HasActiveSubscription(ctx context.Context, subscriberID uint64) (bool, error) {
	return HasActiveSubscriptionTx(s.db.WithContext(ctx), subscriberID, time.Now().UTC())
}

// HasActiveSubscriptionTx is the transaction-scoped form of
// HasActiveSubscription, for callers already holding row locks.
func HasActiveSubscriptionTx(tx *gorm.DB, subscriberID uint64, now time.Time) (bool, error) {
	var count int64
	errCount := tx.Model(&models.Subscription{}).
		Where("subscriber_id = ?", subscriberID).
		Where(
			tx.Session(&gorm.Session{NewDB: true}).
				Where("status = ?", models.SubscriptionActive).
				Or("status = ? AND expiration_date > ?", models.SubscriptionCanceled, now),
		).
		Count(&count).Error
	if errCount != nil {
		return false, errCount
	}
	return count > 0, nil
}

// LatestPending returns the subscriber's most recent PENDING subscription.
func (s *Store) LatestPending(ctx context.Context, subscriberID uint64) (*models.Subscription, error) {
	var sub models.Subscription
	if errFind := s.db.WithContext(ctx).
		Where("subscriber_id = ? AND status = ?", subscriberID, models.SubscriptionPending).
		Order("created_at DESC, id DESC").
		First(&sub).Error; errFind != nil {
		return nil, translateFind(errFind)
	}
	return &sub, nil
}

// InviteeFor returns the invitee record for a Discord ID with its affiliate
// preloaded, or ErrNotFound when the subscriber was not invited.
func (s *Store) InviteeFor(ctx context.Context, discordID string) (*models.AffiliateInvitee, error) {
	var invitee models.AffiliateInvitee
	if errFind := s.db.WithContext(ctx).
		Preload("Affiliate").
		Where("invitee_discord_id = ?", discordID).
		First(&invitee).Error; errFind != nil {
		return nil, translateFind(errFind)
	}
	return &invitee, nil
}

// AffiliateByID returns an affiliate by primary key.
func (s *Store) AffiliateByID(ctx context.Context, id uint64) (*models.Affiliate, error) {
	var affiliate models.Affiliate
	if errFind := s.db.WithContext(ctx).First(&affiliate, id).Error; errFind != nil {
		return nil, translateFind(errFind)
	}
	return &affiliate, nil
}

// PendingAffiliates returns the owner's affiliates holding unsettled
// commission in either currency.
func (s *Store) PendingAffiliates(ctx context.Context, ownerID uint64) ([]models.Affiliate, error) {
	var affiliates []models.Affiliate
	if errFind := s.db.WithContext(ctx).
		Where("owner_id = ?", ownerID).
		Where("pending_usd > 0 OR pending_ltc > 0").
		Order("id ASC").
		Find(&affiliates).Error; errFind != nil {
		return nil, errFind
	}
	return affiliates, nil
}

// UnsettledPayments returns the unpaid accruals for one (owner, affiliate)
// pair, oldest first.
func (s *Store) UnsettledPayments(ctx context.Context, ownerID, affiliateID uint64) ([]models.AffiliatePayment, error) {
	var payments []models.AffiliatePayment
	if errFind := s.db.WithContext(ctx).
		Where("owner_id = ? AND affiliate_id = ? AND paid = ?", ownerID, affiliateID, false).
		Order("id ASC").
		Find(&payments).Error; errFind != nil {
		return nil, errFind
	}
	return payments, nil
}

// PendingCryptoSubscriptions returns crypto-mode PENDING rows with the
// relations the poller needs, oldest first.
func (s *Store) PendingCryptoSubscriptions(ctx context.Context) ([]models.Subscription, error) {
	var subs []models.Subscription
	if errFind := s.db.WithContext(ctx).
		Preload("Owner").
		Preload("Subscriber").
		Preload("Plan").
		Where("mode = ? AND status = ?", models.SettlementCrypto, models.SubscriptionPending).
		Order("id ASC").
		Find(&subs).Error; errFind != nil {
		return nil, errFind
	}
	return subs, nil
}

// DeleteSubscription removes a subscription row.
func (s *Store) DeleteSubscription(ctx context.Context, id uint64) error {
	result := s.db.WithContext(ctx).Delete(&models.Subscription{}, id)
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

// CreateAccessCodes persists a batch of freshly generated codes.
func (s *Store) CreateAccessCodes(ctx context.Context, codes []string) error {
	if len(codes) == 0 {
		return nil
	}
	rows := make([]models.AccessCode, 0, len(codes))
	for _, code := range codes {
		rows = append(rows, models.AccessCode{Code: code})
	}
	return translateCreate(s.db.WithContext(ctx).Create(&rows).Error)
}

// AccessCodeExists reports whether a code value is already taken.
func (s *Store) AccessCodeExists(ctx context.Context, code string) (bool, error) {
	var count int64
	if errCount := s.db.WithContext(ctx).Model(&models.AccessCode{}).
		Where("code = ?", code).
		Count(&count).Error; errCount != nil {
		return false, errCount
	}
	return count > 0, nil
}

// AccessCodeRedeemable reports whether the code exists and has not been
// spent. Registration checks this before creating the owner row; redeeming
// still revalidates under a lock.
func (s *Store) AccessCodeRedeemable(ctx context.Context, code string) (bool, error) {
	var count int64
	if errCount := s.db.WithContext(ctx).Model(&models.AccessCode{}).
		Where("code = ? AND is_used = ?", code, false).
		Count(&count).Error; errCount != nil {
		return false, errCount
	}
	return count > 0, nil
}

// RedeemAccessCode marks a code used by the given owner. Each code is
// redeemable exactly once; the row lock makes concurrent redeemers lose.
func (s *Store) RedeemAccessCode(ctx context.Context, code string, ownerID uint64) error {
	return s.Transaction(ctx, func(tx *gorm.DB) error {
		var row models.AccessCode
		if errFind := LockForUpdate(tx).
			Where("code = ?", strings.ToUpper(strings.TrimSpace(code))).
			First(&row).Error; errFind != nil {
			return translateFind(errFind)
		}
		if row.IsUsed {
			return fmt.Errorf("%w: access code already used", ErrValidation)
		}
		now := time.Now().UTC()
		return tx.Model(&row).Updates(map[string]any{
			"is_used":    true,
			"used_by_id": ownerID,
			"used_at":    now,
		}).Error
	})
}

// IsNotFound reports whether err is the store's not-found kind.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound)
}
