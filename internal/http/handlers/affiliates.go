package handlers

import (
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/guildpay/guildpay/internal/engine"
	"github.com/guildpay/guildpay/internal/gateway"
	"github.com/guildpay/guildpay/internal/models"
	"github.com/guildpay/guildpay/internal/store"
)

// AffiliateHandler handles affiliate promotion, invitee attribution and
// commission settlement.
type AffiliateHandler struct {
	engine *engine.Engine
}

// NewAffiliateHandler constructs an AffiliateHandler.
func NewAffiliateHandler(eng *engine.Engine) *AffiliateHandler {
	return &AffiliateHandler{engine: eng}
}

// promoteRequest defines the request body for promoting a subscriber.
type promoteRequest struct {
	SubscriberID       uint64 `json:"subscriber_id"`
	LTCAddress         string `json:"ltc_address"`
	PayoutInstructions string `json:"payout_instructions"`
}

// Promote turns one of the owner's subscribers into an affiliate.
func (h *AffiliateHandler) Promote(c *gin.Context) {
	ownerID := getOwnerID(c)
	var body promoteRequest
	if errBind := c.ShouldBindJSON(&body); errBind != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid json"})
		return
	}
	st := h.engine.Store()
	subscriber, errFind := st.SubscriberByID(c.Request.Context(), body.SubscriberID)
	if errFind != nil {
		storeError(c, errFind, "subscriber lookup failed")
		return
	}
	if subscriber.OwnerID != ownerID {
		c.JSON(http.StatusNotFound, gin.H{"error": "not found"})
		return
	}

	affiliate := models.Affiliate{
		SubscriberID:       subscriber.ID,
		OwnerID:            ownerID,
		LTCAddress:         strings.TrimSpace(body.LTCAddress),
		PayoutInstructions: strings.TrimSpace(body.PayoutInstructions),
	}
	if errCreate := st.CreateAffiliate(c.Request.Context(), &affiliate); errCreate != nil {
		storeError(c, errCreate, "create affiliate failed")
		return
	}
	c.JSON(http.StatusCreated, gin.H{"id": affiliate.ID})
}

// inviteRequest defines the request body for invitee attribution.
type inviteRequest struct {
	InviteeDiscordID string `json:"invitee_discord_id"`
}

// Invite records that a Discord user joined through an affiliate's link.
// First attribution wins; repeats for the same invitee are rejected.
func (h *AffiliateHandler) Invite(c *gin.Context) {
	affiliateID, ok := pathID(c, "id")
	if !ok {
		return
	}
	var body inviteRequest
	if errBind := c.ShouldBindJSON(&body); errBind != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid json"})
		return
	}
	discordID := strings.TrimSpace(body.InviteeDiscordID)
	if discordID == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "missing invitee_discord_id"})
		return
	}
	st := h.engine.Store()
	if _, errFind := st.AffiliateByID(c.Request.Context(), affiliateID); errFind != nil {
		storeError(c, errFind, "affiliate lookup failed")
		return
	}
	invitee := models.AffiliateInvitee{
		AffiliateID:      affiliateID,
		InviteeDiscordID: discordID,
	}
	if errCreate := st.CreateInvitee(c.Request.Context(), &invitee); errCreate != nil {
		storeError(c, errCreate, "create invitee failed")
		return
	}
	c.JSON(http.StatusCreated, gin.H{"id": invitee.ID})
}

// affiliateResponse is the affiliate shape returned to owners.
type affiliateResponse struct {
	ID              uint64 `json:"id"`
	SubscriberID    uint64 `json:"subscriber_id"`
	PendingUSD      string `json:"pending_usd"`
	PendingLTC      string `json:"pending_ltc"`
	PaidUSD         string `json:"paid_usd"`
	PaidLTC         string `json:"paid_ltc"`
	LastPaymentDate string `json:"last_payment_date,omitempty"`
}

// ListPending returns the owner's affiliates that carry unsettled
// commission.
func (h *AffiliateHandler) ListPending(c *gin.Context) {
	affiliates, errList := h.engine.Store().PendingAffiliates(c.Request.Context(), getOwnerID(c))
	if errList != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "list affiliates failed"})
		return
	}
	out := make([]affiliateResponse, 0, len(affiliates))
	for i := range affiliates {
		a := &affiliates[i]
		resp := affiliateResponse{
			ID:           a.ID,
			SubscriberID: a.SubscriberID,
			PendingUSD:   a.PendingUSD.StringFixed(2),
			PendingLTC:   a.PendingLTC.StringFixed(8),
			PaidUSD:      a.PaidUSD.StringFixed(2),
			PaidLTC:      a.PaidLTC.StringFixed(8),
		}
		if a.LastPaymentDate != nil {
			resp.LastPaymentDate = a.LastPaymentDate.UTC().Format("2006-01-02T15:04:05Z")
		}
		out = append(out, resp)
	}
	c.JSON(http.StatusOK, gin.H{"affiliates": out})
}

// Settle pays out an affiliate's full pending balance. Crypto owners push
// an on-chain withdrawal; card owners settle off-platform and this records
// the bookkeeping.
func (h *AffiliateHandler) Settle(c *gin.Context) {
	affiliateID, ok := pathID(c, "id")
	if !ok {
		return
	}
	errSettle := h.engine.Settle(c.Request.Context(), getOwnerID(c), affiliateID)
	if errSettle != nil {
		switch {
		case errors.Is(errSettle, gateway.ErrTransport),
			errors.Is(errSettle, gateway.ErrGatewayRejected),
			errors.Is(errSettle, gateway.ErrInvalidCredentials):
			c.JSON(http.StatusBadGateway, gin.H{"error": "withdrawal failed, balances untouched"})
		case store.IsNotFound(errSettle):
			c.JSON(http.StatusNotFound, gin.H{"error": "not found"})
		case errors.Is(errSettle, store.ErrValidation):
			c.JSON(http.StatusBadRequest, gin.H{"error": errSettle.Error()})
		default:
			c.JSON(http.StatusInternalServerError, gin.H{"error": "settlement failed"})
		}
		return
	}
	c.JSON(http.StatusOK, gin.H{"id": affiliateID, "settled": true})
}
