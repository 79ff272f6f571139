package handlers

import (
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/guildpay/guildpay/internal/engine"
	"github.com/guildpay/guildpay/internal/models"
	"github.com/guildpay/guildpay/internal/store"
)

// CheckoutHandler handles subscriber registration and checkout.
type CheckoutHandler struct {
	engine *engine.Engine
}

// NewCheckoutHandler constructs a CheckoutHandler.
func NewCheckoutHandler(eng *engine.Engine) *CheckoutHandler {
	return &CheckoutHandler{engine: eng}
}

// registerSubscriberRequest defines the request body for subscriber signup.
type registerSubscriberRequest struct {
	ReferralSlug string `json:"referral_slug"`
	DiscordID    string `json:"discord_id"`
	Username     string `json:"username"`
	Email        string `json:"email"`
}

// RegisterSubscriber creates a subscriber under the owner whose referral
// slug they entered through. Registering an already known Discord ID
// returns the existing row.
func (h *CheckoutHandler) RegisterSubscriber(c *gin.Context) {
	var body registerSubscriberRequest
	if errBind := c.ShouldBindJSON(&body); errBind != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid json"})
		return
	}
	discordID := strings.TrimSpace(body.DiscordID)
	if discordID == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "missing discord_id"})
		return
	}
	st := h.engine.Store()

	if existing, errFind := st.SubscriberByDiscordID(c.Request.Context(), discordID); errFind == nil {
		c.JSON(http.StatusOK, gin.H{"id": existing.ID})
		return
	} else if !store.IsNotFound(errFind) {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "subscriber lookup failed"})
		return
	}

	owner, errOwner := st.OwnerBySlug(c.Request.Context(), strings.ToLower(strings.TrimSpace(body.ReferralSlug)))
	if errOwner != nil {
		storeError(c, errOwner, "owner lookup failed")
		return
	}
	subscriber := models.Subscriber{
		DiscordID: discordID,
		Username:  strings.TrimSpace(body.Username),
		Email:     strings.TrimSpace(body.Email),
		OwnerID:   owner.ID,
	}
	if errCreate := st.CreateSubscriber(c.Request.Context(), &subscriber); errCreate != nil {
		storeError(c, errCreate, "create subscriber failed")
		return
	}
	c.JSON(http.StatusCreated, gin.H{"id": subscriber.ID})
}

// checkoutRequest defines the request body for starting a checkout.
type checkoutRequest struct {
	DiscordID string `json:"discord_id"`
	PlanID    uint64 `json:"plan_id"`
}

// Create starts a checkout for a subscriber on a plan and returns the
// redirect URL plus, in crypto mode, the deposit address and LTC amount.
func (h *CheckoutHandler) Create(c *gin.Context) {
	var body checkoutRequest
	if errBind := c.ShouldBindJSON(&body); errBind != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid json"})
		return
	}
	subscriber, errFind := h.engine.Store().SubscriberByDiscordID(c.Request.Context(), strings.TrimSpace(body.DiscordID))
	if errFind != nil {
		storeError(c, errFind, "subscriber lookup failed")
		return
	}

	sub, errCheckout := h.engine.InitiateCheckout(c.Request.Context(), subscriber.ID, body.PlanID)
	if errCheckout != nil {
		if errors.Is(errCheckout, engine.ErrAlreadyActive) {
			c.JSON(http.StatusConflict, gin.H{"error": "subscriber already has an active subscription"})
			return
		}
		storeError(c, errCheckout, "checkout failed")
		return
	}

	resp := gin.H{
		"subscription_id": sub.ID,
		"checkout_url":    sub.CheckoutURL,
	}
	if sub.Mode == models.SettlementCrypto {
		resp["address"] = sub.Address
		resp["status_url"] = sub.StatusURL
		if sub.LTCAmount.Valid {
			resp["ltc_amount"] = sub.LTCAmount.Decimal.StringFixed(8)
		}
	}
	c.JSON(http.StatusCreated, resp)
}

// cancelRequest defines the request body for cancellation.
type cancelRequest struct {
	DiscordID string `json:"discord_id"`
}

// Cancel stops a subscription from renewing. The term already paid for
// stays live until its expiration date.
func (h *CheckoutHandler) Cancel(c *gin.Context) {
	subscriptionID, ok := pathID(c, "id")
	if !ok {
		return
	}
	var body cancelRequest
	if errBind := c.ShouldBindJSON(&body); errBind != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid json"})
		return
	}
	st := h.engine.Store()
	subscriber, errFind := st.SubscriberByDiscordID(c.Request.Context(), strings.TrimSpace(body.DiscordID))
	if errFind != nil {
		storeError(c, errFind, "subscriber lookup failed")
		return
	}

	var sub models.Subscription
	if errSub := st.DB().WithContext(c.Request.Context()).
		First(&sub, subscriptionID).Error; errSub != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "not found"})
		return
	}
	if sub.SubscriberID != subscriber.ID {
		c.JSON(http.StatusNotFound, gin.H{"error": "not found"})
		return
	}

	if errCancel := h.engine.Cancel(c.Request.Context(), sub.ID); errCancel != nil {
		storeError(c, errCancel, "cancel failed")
		return
	}
	c.JSON(http.StatusOK, gin.H{"id": sub.ID, "status": string(models.SubscriptionCanceled)})
}
