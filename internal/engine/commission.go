package engine

import (
	"context"
	"errors"
	"fmt"

	"github.com/shopspring/decimal"
	log "github.com/sirupsen/logrus"
	"gorm.io/gorm"

	"github.com/guildpay/guildpay/internal/models"
	"github.com/guildpay/guildpay/internal/store"
)

// commissionUSD applies the owner's percent to a USD amount, 2 dp.
func commissionUSD(amount decimal.Decimal, percent int) decimal.Decimal {
	return amount.Mul(decimal.NewFromInt(int64(percent))).Div(decimal.NewFromInt(100)).Round(2)
}

// commissionLTC applies the owner's percent to an LTC amount, 8 dp.
func commissionLTC(amount decimal.Decimal, percent int) decimal.Decimal {
	return amount.Mul(decimal.NewFromInt(int64(percent))).Div(decimal.NewFromInt(100)).Round(8)
}

// accrueCommission runs inside the activation transaction. When the paying
// subscriber was invited, it creates the unpaid accrual row and advances the
// pending totals on both the affiliate and the owner. The USD track is
// always accrued; the LTC track only for crypto flows.
func (e *Engine) accrueCommission(tx *gorm.DB, sub *models.Subscription, plan *models.Plan, owner *models.Owner, subscriber *models.Subscriber) error {
	var invitee models.AffiliateInvitee
	if errFind := tx.Where("invitee_discord_id = ?", subscriber.DiscordID).
		First(&invitee).Error; errFind != nil {
		if errors.Is(errFind, gorm.ErrRecordNotFound) {
			return nil
		}
		return errFind
	}

	var affiliate models.Affiliate
	if errAffiliate := store.LockForUpdate(tx).First(&affiliate, invitee.AffiliateID).Error; errAffiliate != nil {
		return errAffiliate
	}

	usd := commissionUSD(plan.Amount, owner.CommissionPercent)
	payment := models.AffiliatePayment{
		OwnerID:      owner.ID,
		AffiliateID:  affiliate.ID,
		SubscriberID: subscriber.ID,
		AmountUSD:    usd,
	}

	affiliateUpdates := map[string]any{
		"pending_usd": gorm.Expr("pending_usd + ?", usd),
	}
	ownerUpdates := map[string]any{
		"total_pending_usd": gorm.Expr("total_pending_usd + ?", usd),
	}

	if sub.Mode == models.SettlementCrypto && sub.LTCAmount.Valid {
		ltc := commissionLTC(sub.LTCAmount.Decimal, owner.CommissionPercent)
		payment.AmountLTC = decimal.NewNullDecimal(ltc)
		affiliateUpdates["pending_ltc"] = gorm.Expr("pending_ltc + ?", ltc)
		ownerUpdates["total_pending_ltc"] = gorm.Expr("total_pending_ltc + ?", ltc)
	}

	if errCreate := tx.Create(&payment).Error; errCreate != nil {
		return errCreate
	}
	if errAffiliate := tx.Model(&affiliate).Updates(affiliateUpdates).Error; errAffiliate != nil {
		return errAffiliate
	}
	if errOwner := tx.Model(owner).Updates(ownerUpdates).Error; errOwner != nil {
		return errOwner
	}

	log.WithFields(log.Fields{
		"affiliate":  affiliate.ID,
		"subscriber": subscriber.ID,
		"usd":        usd.StringFixed(2),
	}).Info("commission accrued")
	return nil
}

// Settle drains one affiliate's unsettled accruals for the given owner.
// Card owners settle off-platform: only the bookkeeping runs. Crypto owners
// first withdraw the pending LTC on-chain; nothing changes unless the
// withdrawal succeeds. Bookkeeping and withdrawal share one transaction so
// the money is never counted twice or lost.
func (e *Engine) Settle(ctx context.Context, ownerID, affiliateID uint64) error {
	var (
		notifyEmail  string
		notifyName   string
		ownerName    string
		paidAmount   string
		paidCurrency string
	)

	errTx := e.store.Transaction(ctx, func(tx *gorm.DB) error {
		var owner models.Owner
		if errOwner := store.LockForUpdate(tx).First(&owner, ownerID).Error; errOwner != nil {
			if errors.Is(errOwner, gorm.ErrRecordNotFound) {
				return store.ErrNotFound
			}
			return errOwner
		}
		var affiliate models.Affiliate
		if errAffiliate := store.LockForUpdate(tx).
			Where("id = ? AND owner_id = ?", affiliateID, ownerID).
			First(&affiliate).Error; errAffiliate != nil {
			if errors.Is(errAffiliate, gorm.ErrRecordNotFound) {
				return store.ErrNotFound
			}
			return errAffiliate
		}

		var unsettled []models.AffiliatePayment
		if errFind := store.LockForUpdate(tx).
			Where("owner_id = ? AND affiliate_id = ? AND paid = ?", ownerID, affiliateID, false).
			Find(&unsettled).Error; errFind != nil {
			return errFind
		}
		if len(unsettled) == 0 {
			return fmt.Errorf("%w: no unsettled commissions for affiliate %d", store.ErrValidation, affiliateID)
		}

		sumUSD := decimal.Zero
		sumLTC := decimal.Zero
		for _, payment := range unsettled {
			sumUSD = sumUSD.Add(payment.AmountUSD)
			if payment.AmountLTC.Valid {
				sumLTC = sumLTC.Add(payment.AmountLTC.Decimal)
			}
		}

		// Accruals with no LTC track (the checkout never carried a quote)
		// leave nothing to push on-chain; only the bookkeeping runs then.
		if owner.SettlementMode == models.SettlementCrypto && !sumLTC.IsZero() {
			if affiliate.LTCAddress == "" {
				return fmt.Errorf("%w: affiliate %d has no payout address", store.ErrValidation, affiliate.ID)
			}
			// The withdrawal and the bookkeeping commit together; a failed
			// withdrawal rolls everything back untouched.
			if errWithdraw := e.crypto.Withdraw(ctx, &owner, affiliate.LTCAddress, sumLTC); errWithdraw != nil {
				return errWithdraw
			}
		}

		now := e.now()
		if errPaid := tx.Model(&models.AffiliatePayment{}).
			Where("owner_id = ? AND affiliate_id = ? AND paid = ?", ownerID, affiliateID, false).
			Updates(map[string]any{
				"paid":           true,
				"confirmed_date": now,
			}).Error; errPaid != nil {
			return errPaid
		}

		if errAffiliate := tx.Model(&affiliate).Updates(map[string]any{
			"pending_usd":       gorm.Expr("pending_usd - ?", sumUSD),
			"pending_ltc":       gorm.Expr("pending_ltc - ?", sumLTC),
			"paid_usd":          gorm.Expr("paid_usd + ?", sumUSD),
			"paid_ltc":          gorm.Expr("paid_ltc + ?", sumLTC),
			"last_payment_date": now,
		}).Error; errAffiliate != nil {
			return errAffiliate
		}
		if errOwner := tx.Model(&owner).Updates(map[string]any{
			"total_pending_usd": gorm.Expr("total_pending_usd - ?", sumUSD),
			"total_pending_ltc": gorm.Expr("total_pending_ltc - ?", sumLTC),
		}).Error; errOwner != nil {
			return errOwner
		}

		var subscriber models.Subscriber
		if errSubscriber := tx.First(&subscriber, affiliate.SubscriberID).Error; errSubscriber != nil {
			return errSubscriber
		}
		notifyEmail = subscriber.Email
		notifyName = subscriber.Username
		ownerName = owner.Username
		if owner.SettlementMode == models.SettlementCrypto {
			paidAmount = sumLTC.StringFixed(8)
			paidCurrency = "LTC"
		} else {
			paidAmount = sumUSD.StringFixed(2)
			paidCurrency = "USD"
		}
		return nil
	})
	if errTx != nil {
		if isGatewayFailure(errTx) {
			e.courier.SettlementFailed(ctx, settleOwnerName(ctx, e, ownerID), settleAffiliateName(ctx, e, affiliateID), errTx.Error())
		}
		return errTx
	}

	e.courier.CommissionPaid(ctx, notifyEmail, notifyName, ownerName, paidAmount, paidCurrency)
	log.WithFields(log.Fields{
		"owner":     ownerID,
		"affiliate": affiliateID,
		"amount":    paidAmount,
		"currency":  paidCurrency,
	}).Info("commission settled")
	return nil
}

func isGatewayFailure(err error) bool {
	return err != nil && !errors.Is(err, store.ErrNotFound) && !errors.Is(err, store.ErrValidation)
}

func settleOwnerName(ctx context.Context, e *Engine, ownerID uint64) string {
	if owner, errOwner := e.store.OwnerByID(ctx, ownerID); errOwner == nil {
		return owner.Username
	}
	return fmt.Sprintf("owner-%d", ownerID)
}

func settleAffiliateName(ctx context.Context, e *Engine, affiliateID uint64) string {
	affiliate, errAffiliate := e.store.AffiliateByID(ctx, affiliateID)
	if errAffiliate != nil {
		return fmt.Sprintf("affiliate-%d", affiliateID)
	}
	if subscriber, errSubscriber := e.store.SubscriberByID(ctx, affiliate.SubscriberID); errSubscriber == nil {
		return subscriber.Username
	}
	return fmt.Sprintf("affiliate-%d", affiliateID)
}
