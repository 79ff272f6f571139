package handlers

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"github.com/gin-gonic/gin"
	log "github.com/sirupsen/logrus"
	"github.com/stripe/stripe-go/v82/webhook"

	"github.com/guildpay/guildpay/internal/engine"
	"github.com/guildpay/guildpay/internal/models"
	"github.com/guildpay/guildpay/internal/store"
)

// WebhookHandler receives card processor events. Bad signatures get 400,
// events for unknown subscriptions get 404 so the processor retries, and
// replays of already-processed events get 200.
type WebhookHandler struct {
	engine *engine.Engine
	secret string
}

// NewWebhookHandler constructs a WebhookHandler.
func NewWebhookHandler(eng *engine.Engine, secret string) *WebhookHandler {
	return &WebhookHandler{engine: eng, secret: secret}
}

// checkoutSessionEvent is the slice of a checkout.session.completed payload
// this handler reads.
type checkoutSessionEvent struct {
	ID           string `json:"id"`
	Subscription string `json:"subscription"`
}

// invoiceEvent is the slice of an invoice event payload this handler
// reads. The subscription id moved under parent in newer API versions;
// both spots are tried.
type invoiceEvent struct {
	Subscription string `json:"subscription"`
	Parent       struct {
		SubscriptionDetails struct {
			Subscription string `json:"subscription"`
		} `json:"subscription_details"`
	} `json:"parent"`
}

func (e invoiceEvent) subscriptionID() string {
	if e.Subscription != "" {
		return e.Subscription
	}
	return e.Parent.SubscriptionDetails.Subscription
}

// accountEvent is the slice of an account.updated payload this handler
// reads.
type accountEvent struct {
	ID               string `json:"id"`
	ChargesEnabled   bool   `json:"charges_enabled"`
	PayoutsEnabled   bool   `json:"payouts_enabled"`
	DetailsSubmitted bool   `json:"details_submitted"`
}

// Handle verifies and dispatches one event.
func (h *WebhookHandler) Handle(c *gin.Context) {
	payload, errRead := io.ReadAll(io.LimitReader(c.Request.Body, 1<<20))
	if errRead != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "read body failed"})
		return
	}
	event, errVerify := webhook.ConstructEvent(payload, c.GetHeader("Stripe-Signature"), h.secret)
	if errVerify != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid signature"})
		return
	}

	ctx := c.Request.Context()
	switch event.Type {
	case "checkout.session.completed":
		var session checkoutSessionEvent
		if errParse := json.Unmarshal(event.Data.Raw, &session); errParse != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "malformed event"})
			return
		}
		h.engine.RecordGatewayPayload(ctx, session.ID, event.Data.Raw)
		errActivate := h.engine.Activate(ctx, session.ID)
		if errActivate == nil && session.Subscription != "" {
			// Later renewal events reference the processor subscription,
			// not the checkout session; rebind the row to it.
			if errSwap := h.engine.Store().DB().WithContext(ctx).
				Model(&models.Subscription{}).
				Where("external_id = ?", session.ID).
				Update("external_id", session.Subscription).Error; errSwap != nil {
				log.WithError(errSwap).WithField("session", session.ID).Error("rebind external id failed")
			}
		}
		h.respond(c, errActivate)

	case "invoice.paid":
		var invoice invoiceEvent
		if errParse := json.Unmarshal(event.Data.Raw, &invoice); errParse != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "malformed event"})
			return
		}
		subID := invoice.subscriptionID()
		if subID == "" {
			c.JSON(http.StatusOK, gin.H{"ignored": true})
			return
		}
		h.engine.RecordGatewayPayload(ctx, subID, event.Data.Raw)
		h.respond(c, h.engine.Activate(ctx, subID))

	case "invoice.payment_failed":
		var invoice invoiceEvent
		if errParse := json.Unmarshal(event.Data.Raw, &invoice); errParse != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "malformed event"})
			return
		}
		subID := invoice.subscriptionID()
		if subID == "" {
			c.JSON(http.StatusOK, gin.H{"ignored": true})
			return
		}
		h.engine.RecordGatewayPayload(ctx, subID, event.Data.Raw)
		h.respond(c, h.engine.FailPending(ctx, subID))

	case "account.updated":
		var account accountEvent
		if errParse := json.Unmarshal(event.Data.Raw, &account); errParse != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "malformed event"})
			return
		}
		h.handleAccountUpdated(c, account)

	default:
		c.JSON(http.StatusOK, gin.H{"ignored": true})
	}
}

// respond maps an engine outcome onto the webhook response contract.
func (h *WebhookHandler) respond(c *gin.Context, err error) {
	switch {
	case err == nil:
		c.JSON(http.StatusOK, gin.H{"processed": true})
	case errors.Is(err, engine.ErrAlreadyActive):
		// The pending row was dropped; from the processor's side the
		// event is handled.
		log.Info("webhook event for already-active subscriber")
		c.JSON(http.StatusOK, gin.H{"processed": true})
	case store.IsNotFound(err):
		c.JSON(http.StatusNotFound, gin.H{"error": "unknown subscription"})
	default:
		log.WithError(err).Error("webhook processing failed")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "processing failed"})
	}
}

// handleAccountUpdated flips the owner's card onboarding flag once the
// connected account can both charge and pay out.
func (h *WebhookHandler) handleAccountUpdated(c *gin.Context, account accountEvent) {
	ctx := c.Request.Context()
	owner, errFind := h.engine.Store().OwnerByStripeAccount(ctx, account.ID)
	if errFind != nil {
		if store.IsNotFound(errFind) {
			c.JSON(http.StatusOK, gin.H{"ignored": true})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": "owner lookup failed"})
		return
	}
	ready := account.ChargesEnabled && account.PayoutsEnabled && account.DetailsSubmitted
	if owner.StripeOnboarding == ready {
		c.JSON(http.StatusOK, gin.H{"processed": true})
		return
	}
	if errUpdate := h.engine.Store().DB().WithContext(ctx).
		Model(&models.Owner{}).
		Where("id = ?", owner.ID).
		Update("stripe_onboarding", ready).Error; errUpdate != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "update onboarding failed"})
		return
	}
	log.WithFields(log.Fields{"owner": owner.ID, "ready": ready}).Info("card onboarding updated")
	c.JSON(http.StatusOK, gin.H{"processed": true})
}
