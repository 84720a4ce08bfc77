package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/grantflow/grantflow-backend/internal/service"
)

// TreasuryHandler обслуживает запись казначейства, политики и балансы.
type TreasuryHandler struct {
	treasury *service.TreasuryService
}

func NewTreasuryHandler(treasury *service.TreasuryService) *TreasuryHandler {
	return &TreasuryHandler{treasury: treasury}
}

// GetLedger GET /treasury
func (h *TreasuryHandler) GetLedger(c *gin.Context) {
	ledger, err := h.treasury.GetLedger(c.Request.Context())
	if err != nil {
		_ = c.Error(err)
		return
	}
	c.JSON(http.StatusOK, ledger)
}

// SetVoteDuration PUT /treasury/vote-duration
func (h *TreasuryHandler) SetVoteDuration(c *gin.Context) {
	actor, err := currentActor(c)
	if err != nil {
		c.JSON(http.StatusUnauthorized, gin.H{"error": err.Error()})
		return
	}

	var req struct {
		Seconds int64 `json:"seconds" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "seconds обязателен"})
		return
	}

	if err := h.treasury.SetVoteDuration(c.Request.Context(), actor, req.Seconds); err != nil {
		_ = c.Error(err)
		return
	}
	c.Status(http.StatusNoContent)
}

// SetThresholds PUT /treasury/thresholds
func (h *TreasuryHandler) SetThresholds(c *gin.Context) {
	actor, err := currentActor(c)
	if err != nil {
		c.JSON(http.StatusUnauthorized, gin.H{"error": err.Error()})
		return
	}

	var req struct {
		Quorum float64 `json:"quorum" binding:"required"`
		Yes    float64 `json:"yes" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "quorum и yes обязательны"})
		return
	}

	if err := h.treasury.SetThresholds(c.Request.Context(), actor, req.Quorum, req.Yes); err != nil {
		_ = c.Error(err)
		return
	}
	c.Status(http.StatusNoContent)
}

// SetRequestedBounds PUT /treasury/requested-bounds
func (h *TreasuryHandler) SetRequestedBounds(c *gin.Context) {
	actor, err := currentActor(c)
	if err != nil {
		c.JSON(http.StatusUnauthorized, gin.H{"error": err.Error()})
		return
	}

	var req struct {
		Min int64 `json:"min" binding:"required"`
		Max int64 `json:"max" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "min и max обязательны"})
		return
	}

	if err := h.treasury.SetRequestedBounds(c.Request.Context(), actor, req.Min, req.Max); err != nil {
		_ = c.Error(err)
		return
	}
	c.Status(http.StatusNoContent)
}

// AddCategory POST /treasury/categories
func (h *TreasuryHandler) AddCategory(c *gin.Context) {
	actor, err := currentActor(c)
	if err != nil {
		c.JSON(http.StatusUnauthorized, gin.H{"error": err.Error()})
		return
	}

	var req struct {
		Category string `json:"category" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "category обязателен"})
		return
	}

	if err := h.treasury.AddCategory(c.Request.Context(), actor, req.Category); err != nil {
		_ = c.Error(err)
		return
	}
	c.Status(http.StatusCreated)
}

// DeprecateCategory DELETE /treasury/categories/:category
func (h *TreasuryHandler) DeprecateCategory(c *gin.Context) {
	actor, err := currentActor(c)
	if err != nil {
		c.JSON(http.StatusUnauthorized, gin.H{"error": err.Error()})
		return
	}

	if err := h.treasury.DeprecateCategory(c.Request.Context(), actor, c.Param("category")); err != nil {
		_ = c.Error(err)
		return
	}
	c.Status(http.StatusNoContent)
}

// GetBalance GET /balance
func (h *TreasuryHandler) GetBalance(c *gin.Context) {
	actor, err := currentActor(c)
	if err != nil {
		c.JSON(http.StatusUnauthorized, gin.H{"error": err.Error()})
		return
	}

	balance, err := h.treasury.GetBalance(c.Request.Context(), actor.ID)
	if err != nil {
		_ = c.Error(err)
		return
	}
	c.JSON(http.StatusOK, balance)
}

// Withdraw POST /balance/withdraw
func (h *TreasuryHandler) Withdraw(c *gin.Context) {
	actor, err := currentActor(c)
	if err != nil {
		c.JSON(http.StatusUnauthorized, gin.H{"error": err.Error()})
		return
	}

	var req struct {
		Amount      int64  `json:"amount" binding:"required,gt=0"`
		Destination string `json:"destination" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "amount и destination обязательны"})
		return
	}

	balance, err := h.treasury.Withdraw(c.Request.Context(), actor, req.Amount, req.Destination)
	if err != nil {
		_ = c.Error(err)
		return
	}
	c.JSON(http.StatusOK, balance)
}

// DeleteBalance DELETE /balance/:owner
func (h *TreasuryHandler) DeleteBalance(c *gin.Context) {
	actor, err := currentActor(c)
	if err != nil {
		c.JSON(http.StatusUnauthorized, gin.H{"error": err.Error()})
		return
	}

	owner, err := uuid.Parse(c.Param("owner"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "неверный идентификатор владельца"})
		return
	}

	if err := h.treasury.DeleteBalance(c.Request.Context(), actor, owner); err != nil {
		_ = c.Error(err)
		return
	}
	c.Status(http.StatusNoContent)
}
