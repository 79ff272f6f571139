package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	log "github.com/sirupsen/logrus"

	"github.com/guildpay/guildpay/internal/access"
	"github.com/guildpay/guildpay/internal/engine"
)

// OpsHandler exposes the operator-only maintenance endpoints.
type OpsHandler struct {
	engine *engine.Engine
}

// NewOpsHandler constructs an OpsHandler.
func NewOpsHandler(eng *engine.Engine) *OpsHandler {
	return &OpsHandler{engine: eng}
}

// generateCodesRequest defines the request body for code generation.
type generateCodesRequest struct {
	Count int `json:"count"`
}

// GenerateAccessCodes mints a batch of owner onboarding codes.
func (h *OpsHandler) GenerateAccessCodes(c *gin.Context) {
	var body generateCodesRequest
	if errBind := c.ShouldBindJSON(&body); errBind != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid json"})
		return
	}
	if body.Count < 1 || body.Count > 1000 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "count must be 1..1000"})
		return
	}
	codes, errGenerate := access.GenerateCodes(c.Request.Context(), h.engine.Store(), body.Count)
	if errGenerate != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "generate codes failed"})
		return
	}
	log.WithFields(log.Fields{"operator": getOperatorID(c), "count": len(codes)}).Info("access codes generated")
	c.JSON(http.StatusCreated, gin.H{"codes": codes})
}

// ExpireSweep runs the daily expiry sweep on demand.
func (h *OpsHandler) ExpireSweep(c *gin.Context) {
	expired, errSweep := h.engine.ExpireSweep(c.Request.Context())
	if errSweep != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "sweep failed"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"expired": expired})
}
