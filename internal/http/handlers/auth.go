package handlers

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	log "github.com/sirupsen/logrus"

	"github.com/guildpay/guildpay/internal/config"
	"github.com/guildpay/guildpay/internal/models"
	"github.com/guildpay/guildpay/internal/security"
	"github.com/guildpay/guildpay/internal/store"
)

// AuthHandler handles owner onboarding and operator authentication.
type AuthHandler struct {
	store  *store.Store
	jwtCfg config.JWTConfig
}

// NewAuthHandler constructs an AuthHandler.
func NewAuthHandler(st *store.Store, jwtCfg config.JWTConfig) *AuthHandler {
	return &AuthHandler{store: st, jwtCfg: jwtCfg}
}

// registerOwnerRequest defines the request body for owner onboarding.
type registerOwnerRequest struct {
	AccessCode        string `json:"access_code"`
	DiscordID         string `json:"discord_id"`
	Username          string `json:"username"`
	Email             string `json:"email"`
	ReferralSlug      string `json:"referral_slug"`
	CommissionPercent int    `json:"commission_percent"`
	SettlementMode    string `json:"settlement_mode"`
	StripeAccountID   string `json:"stripe_account_id"`
	CoinPublicKey     string `json:"coin_public_key"`
	CoinSecretKey     string `json:"coin_secret_key"`
}

// RegisterOwner redeems an access code and creates the owner account. The
// response carries an owner JWT; re-issuance goes through the identity
// layer in front of this API.
func (h *AuthHandler) RegisterOwner(c *gin.Context) {
	var body registerOwnerRequest
	if errBind := c.ShouldBindJSON(&body); errBind != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid json"})
		return
	}
	code := strings.ToUpper(strings.TrimSpace(body.AccessCode))
	if code == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "missing access code"})
		return
	}
	redeemable, errCode := h.store.AccessCodeRedeemable(c.Request.Context(), code)
	if errCode != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "access code lookup failed"})
		return
	}
	if !redeemable {
		c.JSON(http.StatusForbidden, gin.H{"error": "invalid or used access code"})
		return
	}

	owner := models.Owner{
		DiscordID:         strings.TrimSpace(body.DiscordID),
		Username:          strings.TrimSpace(body.Username),
		Email:             strings.TrimSpace(body.Email),
		ReferralSlug:      strings.ToLower(strings.TrimSpace(body.ReferralSlug)),
		CommissionPercent: body.CommissionPercent,
		SettlementMode:    models.SettlementMode(body.SettlementMode),
		StripeAccountID:   strings.TrimSpace(body.StripeAccountID),
		CoinPublicKey:     strings.TrimSpace(body.CoinPublicKey),
		CoinSecretKey:     strings.TrimSpace(body.CoinSecretKey),
	}
	if errCreate := h.store.CreateOwner(c.Request.Context(), &owner); errCreate != nil {
		storeError(c, errCreate, "create owner failed")
		return
	}
	if errRedeem := h.store.RedeemAccessCode(c.Request.Context(), code, owner.ID); errRedeem != nil {
		// Lost the race on the code; roll the account back.
		_ = h.store.DB().WithContext(c.Request.Context()).Delete(&models.Owner{}, owner.ID).Error
		c.JSON(http.StatusForbidden, gin.H{"error": "invalid or used access code"})
		return
	}

	token, errToken := security.GenerateOwnerToken(h.jwtCfg.Secret, owner.ID, owner.Username, h.jwtCfg.Expiry())
	if errToken != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "sign token failed"})
		return
	}
	log.WithFields(log.Fields{"owner": owner.ID, "slug": owner.ReferralSlug}).Info("owner registered")
	c.JSON(http.StatusCreated, gin.H{
		"id":            owner.ID,
		"referral_slug": owner.ReferralSlug,
		"token":         token,
	})
}

// operatorLoginRequest defines the request body for operator login.
type operatorLoginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

// OperatorLogin authenticates a platform operator and issues a JWT.
func (h *AuthHandler) OperatorLogin(c *gin.Context) {
	var body operatorLoginRequest
	if errBind := c.ShouldBindJSON(&body); errBind != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid json"})
		return
	}
	username := strings.TrimSpace(body.Username)
	password := strings.TrimSpace(body.Password)
	if username == "" || password == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "missing username or password"})
		return
	}

	var operator models.Operator
	if errFind := h.store.DB().WithContext(c.Request.Context()).
		Where("username = ?", username).
		First(&operator).Error; errFind != nil {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid credentials"})
		return
	}
	if !security.CheckPassword(operator.PasswordHash, password) {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid credentials"})
		return
	}

	token, errToken := security.GenerateOperatorToken(h.jwtCfg.Secret, operator.ID, operator.Username, h.jwtCfg.Expiry())
	if errToken != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "sign token failed"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"token": token})
}
