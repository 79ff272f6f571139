package handlers

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"
	log "github.com/sirupsen/logrus"

	"github.com/guildpay/guildpay/internal/gateway"
	"github.com/guildpay/guildpay/internal/models"
	"github.com/guildpay/guildpay/internal/store"
)

// PlanHandler handles owner plan management.
type PlanHandler struct {
	store *store.Store
	card  *gateway.StripeGateway
}

// NewPlanHandler constructs a PlanHandler.
func NewPlanHandler(st *store.Store, card *gateway.StripeGateway) *PlanHandler {
	return &PlanHandler{store: st, card: card}
}

// createPlanRequest defines the request body for plan creation.
type createPlanRequest struct {
	Name           string `json:"name"`
	Description    string `json:"description"`
	Amount         string `json:"amount"`
	DurationMonths int    `json:"duration_months"`
}

// planResponse is the plan shape returned to owners.
type planResponse struct {
	ID                   uint64 `json:"id"`
	Name                 string `json:"name"`
	Description          string `json:"description,omitempty"`
	Amount               string `json:"amount"`
	DurationMonths       int    `json:"duration_months"`
	Status               string `json:"status"`
	SubscriberCount      int    `json:"subscriber_count"`
	SubscriptionEarnings string `json:"subscription_earnings"`
}

func toPlanResponse(p *models.Plan) planResponse {
	return planResponse{
		ID:                   p.ID,
		Name:                 p.Name,
		Description:          p.Description,
		Amount:               p.Amount.StringFixed(2),
		DurationMonths:       p.DurationMonths,
		Status:               string(p.Status),
		SubscriberCount:      p.SubscriberCount,
		SubscriptionEarnings: p.SubscriptionEarnings.StringFixed(2),
	}
}

// Create adds a plan for the authenticated owner. Card-mode owners get the
// remote product and recurring price provisioned before the row persists.
func (h *PlanHandler) Create(c *gin.Context) {
	ownerID := getOwnerID(c)
	var body createPlanRequest
	if errBind := c.ShouldBindJSON(&body); errBind != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid json"})
		return
	}
	amount, errAmount := decimal.NewFromString(strings.TrimSpace(body.Amount))
	if errAmount != nil || amount.LessThanOrEqual(decimal.Zero) {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid amount"})
		return
	}
	if body.DurationMonths < 1 || body.DurationMonths > 12 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "duration must be 1..12 months"})
		return
	}

	owner, errOwner := h.store.OwnerByID(c.Request.Context(), ownerID)
	if errOwner != nil {
		storeError(c, errOwner, "owner lookup failed")
		return
	}

	plan := models.Plan{
		OwnerID:        owner.ID,
		Name:           strings.TrimSpace(body.Name),
		Description:    strings.TrimSpace(body.Description),
		Amount:         amount.Round(2),
		DurationMonths: body.DurationMonths,
		Status:         models.PlanActive,
	}
	if owner.SettlementMode == models.SettlementCard {
		if errPublish := h.card.PublishPlan(c.Request.Context(), owner, &plan); errPublish != nil {
			log.WithError(errPublish).WithField("owner", owner.ID).Error("publish plan failed")
			c.JSON(http.StatusBadGateway, gin.H{"error": "card processor rejected the plan"})
			return
		}
	}
	if errCreate := h.store.CreatePlan(c.Request.Context(), &plan); errCreate != nil {
		storeError(c, errCreate, "create plan failed")
		return
	}
	c.JSON(http.StatusCreated, toPlanResponse(&plan))
}

// List returns the authenticated owner's plans.
func (h *PlanHandler) List(c *gin.Context) {
	plans, errList := h.store.PlansByOwner(c.Request.Context(), getOwnerID(c))
	if errList != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "list plans failed"})
		return
	}
	out := make([]planResponse, 0, len(plans))
	for i := range plans {
		out = append(out, toPlanResponse(&plans[i]))
	}
	c.JSON(http.StatusOK, gin.H{"plans": out})
}

// Deactivate stops new checkouts on a plan. Running subscriptions keep
// their term.
func (h *PlanHandler) Deactivate(c *gin.Context) {
	planID, ok := pathID(c, "id")
	if !ok {
		return
	}
	plan, errFind := h.store.PlanByID(c.Request.Context(), planID)
	if errFind != nil {
		storeError(c, errFind, "plan lookup failed")
		return
	}
	if plan.OwnerID != getOwnerID(c) {
		c.JSON(http.StatusNotFound, gin.H{"error": "not found"})
		return
	}
	if errUpdate := h.store.DB().WithContext(c.Request.Context()).
		Model(&models.Plan{}).
		Where("id = ?", plan.ID).
		Update("status", models.PlanInactive).Error; errUpdate != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "deactivate failed"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"id": plan.ID, "status": string(models.PlanInactive)})
}

// ListPublic returns an owner's active plans by referral slug. This backs
// the checkout page.
func (h *PlanHandler) ListPublic(c *gin.Context) {
	slug := strings.ToLower(strings.TrimSpace(c.Param("slug")))
	owner, errOwner := h.store.OwnerBySlug(c.Request.Context(), slug)
	if errOwner != nil {
		storeError(c, errOwner, "owner lookup failed")
		return
	}
	plans, errList := h.store.PlansByOwner(c.Request.Context(), owner.ID)
	if errList != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "list plans failed"})
		return
	}
	out := make([]planResponse, 0, len(plans))
	for i := range plans {
		if plans[i].Status != models.PlanActive {
			continue
		}
		out = append(out, toPlanResponse(&plans[i]))
	}
	c.JSON(http.StatusOK, gin.H{"owner": owner.Username, "plans": out})
}
