package engine

import (
	"context"
	"errors"
	"fmt"

	log "github.com/sirupsen/logrus"
	"gorm.io/gorm"

	"github.com/guildpay/guildpay/internal/models"
	"github.com/guildpay/guildpay/internal/store"
)

// InitiateCheckout starts a checkout for (subscriber, plan) through the
// owner's gateway and persists the PENDING subscription row.
func (e *Engine) InitiateCheckout(ctx context.Context, subscriberID, planID uint64) (*models.Subscription, error) {
	subscriber, errSubscriber := e.store.SubscriberByID(ctx, subscriberID)
	if errSubscriber != nil {
		return nil, errSubscriber
	}
	plan, errPlan := e.store.PlanByID(ctx, planID)
	if errPlan != nil {
		return nil, errPlan
	}
	if plan.Status != models.PlanActive {
		return nil, fmt.Errorf("%w: plan %d is inactive", store.ErrValidation, plan.ID)
	}
	owner, errOwner := e.store.OwnerByID(ctx, plan.OwnerID)
	if errOwner != nil {
		return nil, errOwner
	}

	live, errLive := e.store.HasActiveSubscription(ctx, subscriber.ID)
	if errLive != nil {
		return nil, errLive
	}
	if live {
		return nil, ErrAlreadyActive
	}

	checkout, errCheckout := e.gatewayFor(owner.SettlementMode).InitiateCheckout(ctx, owner, subscriber, plan)
	if errCheckout != nil {
		return nil, errCheckout
	}

	sub := &models.Subscription{
		SubscriberID: subscriber.ID,
		OwnerID:      owner.ID,
		PlanID:       plan.ID,
		Status:       models.SubscriptionPending,
		Mode:         owner.SettlementMode,
		ExternalID:   checkout.ExternalID,
		LTCAmount:    checkout.LTCAmount,
		Address:      checkout.Address,
		CheckoutURL:  checkout.RedirectURL,
		StatusURL:    checkout.StatusURL,
	}
	if errCreate := e.store.CreateSubscription(ctx, sub); errCreate != nil {
		return nil, errCreate
	}

	// The card customer may have been created during checkout; keep it.
	if subscriber.StripeCustomerID != nil {
		_ = e.store.DB().WithContext(ctx).Model(&models.Subscriber{}).
			Where("id = ?", subscriber.ID).
			Update("stripe_customer_id", subscriber.StripeCustomerID).Error
	}

	log.WithFields(log.Fields{
		"subscription": sub.ID,
		"external_id":  sub.ExternalID,
		"mode":         sub.Mode,
	}).Info("checkout initiated")
	return sub, nil
}

// Activate performs the atomic PENDING to ACTIVE transition for the
// subscription carrying the given gateway ID, including the plan counters,
// owner earnings, and commission accrual. Activating a row that is no
// longer PENDING is a no-op, which makes gateway retries and poller
// double-runs safe.
func (e *Engine) Activate(ctx context.Context, externalID string) error {
	var alreadyActive bool
	errTx := e.store.Transaction(ctx, func(tx *gorm.DB) error {
		alreadyActive = false
		var sub models.Subscription
		if errFind := store.LockForUpdate(tx).
			Where("external_id = ?", externalID).
			First(&sub).Error; errFind != nil {
			if errors.Is(errFind, gorm.ErrRecordNotFound) {
				return store.ErrNotFound
			}
			return errFind
		}
		if sub.Status != models.SubscriptionPending {
			return nil
		}

		now := e.now()
		live, errLive := store.HasActiveSubscriptionTx(tx, sub.SubscriberID, now)
		if errLive != nil {
			return errLive
		}
		if live {
			// The invariant is enforced here, at write time. The stale
			// pending row is dropped so the gateway retry sees nothing.
			// The closure must return nil or the delete rolls back; the
			// outcome is carried out and surfaced after commit.
			if errDelete := tx.Delete(&models.Subscription{}, sub.ID).Error; errDelete != nil {
				return errDelete
			}
			alreadyActive = true
			return nil
		}

		var plan models.Plan
		if errPlan := store.LockForUpdate(tx).First(&plan, sub.PlanID).Error; errPlan != nil {
			return errPlan
		}
		var owner models.Owner
		if errOwner := store.LockForUpdate(tx).First(&owner, sub.OwnerID).Error; errOwner != nil {
			return errOwner
		}
		var subscriber models.Subscriber
		if errSubscriber := tx.First(&subscriber, sub.SubscriberID).Error; errSubscriber != nil {
			return errSubscriber
		}

		expiration := now.AddDate(0, plan.DurationMonths, 0)
		if errUpdate := tx.Model(&sub).Updates(map[string]any{
			"status":            models.SubscriptionActive,
			"subscription_date": now,
			"expiration_date":   expiration,
		}).Error; errUpdate != nil {
			return errUpdate
		}

		if errPlanUpdate := tx.Model(&plan).Updates(map[string]any{
			"subscriber_count":      gorm.Expr("subscriber_count + 1"),
			"subscription_earnings": gorm.Expr("subscription_earnings + ?", plan.Amount),
		}).Error; errPlanUpdate != nil {
			return errPlanUpdate
		}
		if errOwnerUpdate := tx.Model(&owner).
			Update("total_earnings", gorm.Expr("total_earnings + ?", plan.Amount)).Error; errOwnerUpdate != nil {
			return errOwnerUpdate
		}

		return e.accrueCommission(tx, &sub, &plan, &owner, &subscriber)
	})
	if errTx != nil {
		return errTx
	}
	if alreadyActive {
		return ErrAlreadyActive
	}

	log.WithField("external_id", externalID).Info("subscription activated")
	return nil
}

// FailPending handles a payment-failure event for the subscription carrying
// the given gateway ID. A PENDING row is deleted; an ACTIVE row (failed
// renewal) is expired immediately. The subscriber is notified either way.
func (e *Engine) FailPending(ctx context.Context, externalID string) error {
	var subscriberEmail string
	errTx := e.store.Transaction(ctx, func(tx *gorm.DB) error {
		var sub models.Subscription
		if errFind := store.LockForUpdate(tx).
			Where("external_id = ?", externalID).
			First(&sub).Error; errFind != nil {
			if errors.Is(errFind, gorm.ErrRecordNotFound) {
				return store.ErrNotFound
			}
			return errFind
		}

		var subscriber models.Subscriber
		if errSubscriber := tx.First(&subscriber, sub.SubscriberID).Error; errSubscriber != nil {
			return errSubscriber
		}
		subscriberEmail = subscriber.Email

		switch sub.Status {
		case models.SubscriptionPending:
			return tx.Delete(&models.Subscription{}, sub.ID).Error
		case models.SubscriptionActive:
			// Failed renewal: the term ends now.
			if errUpdate := tx.Model(&sub).Updates(map[string]any{
				"status":          models.SubscriptionExpired,
				"expiration_date": e.now(),
			}).Error; errUpdate != nil {
				return errUpdate
			}
			return tx.Model(&models.Plan{}).
				Where("id = ?", sub.PlanID).
				Update("subscriber_count", gorm.Expr("subscriber_count - 1")).Error
		default:
			return nil
		}
	})
	if errTx != nil {
		return errTx
	}

	e.courier.PaymentFailed(ctx, subscriberEmail)
	log.WithField("external_id", externalID).Info("subscription payment failed")
	return nil
}

// Cancel records the subscriber's intent to stop renewing. The term keeps
// running until its expiration date; no refund is issued. Card mode also
// tells the gateway to stop the remote subscription at period end.
func (e *Engine) Cancel(ctx context.Context, subscriptionID uint64) error {
	var sub models.Subscription
	if errFind := e.store.DB().WithContext(ctx).First(&sub, subscriptionID).Error; errFind != nil {
		if errors.Is(errFind, gorm.ErrRecordNotFound) {
			return store.ErrNotFound
		}
		return errFind
	}

	switch sub.Status {
	case models.SubscriptionPending:
		// Canceling an unpaid checkout just removes the row.
		return e.store.DeleteSubscription(ctx, sub.ID)
	case models.SubscriptionActive:
	default:
		return fmt.Errorf("%w: subscription %d is %s", store.ErrValidation, sub.ID, sub.Status)
	}

	if sub.Mode == models.SettlementCard {
		owner, errOwner := e.store.OwnerByID(ctx, sub.OwnerID)
		if errOwner != nil {
			return errOwner
		}
		if errCancel := e.card.Cancel(ctx, owner, sub.ExternalID); errCancel != nil {
			return errCancel
		}
	}

	return e.store.Transaction(ctx, func(tx *gorm.DB) error {
		result := tx.Model(&models.Subscription{}).
			Where("id = ? AND status = ?", sub.ID, models.SubscriptionActive).
			Update("status", models.SubscriptionCanceled)
		if result.Error != nil {
			return result.Error
		}
		if result.RowsAffected == 0 {
			return nil
		}
		return tx.Model(&models.Plan{}).
			Where("id = ?", sub.PlanID).
			Update("subscriber_count", gorm.Expr("subscriber_count - 1")).Error
	})
}

// ExpireSweep transitions every ACTIVE subscription whose term has run out
// to EXPIRED and rebalances the plan counters. The transition is constrained
// on the source status, so rerunning the sweep is a no-op. Returns the
// number of rows expired.
func (e *Engine) ExpireSweep(ctx context.Context) (int, error) {
	now := e.now()
	var expired []models.Subscription

	errTx := e.store.Transaction(ctx, func(tx *gorm.DB) error {
		expired = expired[:0]
		if errFind := store.LockForUpdate(tx).
			Preload("Subscriber").
			Where("status = ? AND expiration_date < ?", models.SubscriptionActive, now).
			Find(&expired).Error; errFind != nil {
			return errFind
		}
		if len(expired) == 0 {
			return nil
		}

		if errUpdate := tx.Model(&models.Subscription{}).
			Where("status = ? AND expiration_date < ?", models.SubscriptionActive, now).
			Update("status", models.SubscriptionExpired).Error; errUpdate != nil {
			return errUpdate
		}

		perPlan := map[uint64]int{}
		for _, sub := range expired {
			perPlan[sub.PlanID]++
		}
		for planID, count := range perPlan {
			if errPlan := tx.Model(&models.Plan{}).
				Where("id = ?", planID).
				Update("subscriber_count", gorm.Expr("subscriber_count - ?", count)).Error; errPlan != nil {
				return errPlan
			}
		}
		return nil
	})
	if errTx != nil {
		return 0, errTx
	}

	for _, sub := range expired {
		e.courier.SubscriptionExpired(ctx, sub.Subscriber.Email)
	}
	if len(expired) > 0 {
		log.WithField("count", len(expired)).Info("expiry sweep completed")
	}
	return len(expired), nil
}

// touchGatewayPayload stores the most recent raw gateway payload on the row.
func touchGatewayPayload(tx *gorm.DB, externalID string, payload []byte) {
	if len(payload) == 0 {
		return
	}
	_ = tx.Model(&models.Subscription{}).
		Where("external_id = ?", externalID).
		Update("last_gateway_payload", payload).Error
}

// RecordGatewayPayload persists the raw payload of the last gateway event
// seen for a subscription, for operator debugging.
func (e *Engine) RecordGatewayPayload(ctx context.Context, externalID string, payload []byte) {
	touchGatewayPayload(e.store.DB().WithContext(ctx), externalID, payload)
}
