package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/grantflow/grantflow-backend/internal/service"
)

// WebhookHandler принимает обратные вызовы доверенных внешних сервисов:
// уведомления токен-сервиса о входящих переводах и итоги голосований.
type WebhookHandler struct {
	treasury  *service.TreasuryService
	reconcile *service.ReconcileService
}

func NewWebhookHandler(treasury *service.TreasuryService, reconcile *service.ReconcileService) *WebhookHandler {
	return &WebhookHandler{
		treasury:  treasury,
		reconcile: reconcile,
	}
}

// Transfer POST /webhooks/transfer
func (h *WebhookHandler) Transfer(c *gin.Context) {
	var req service.TransferNotice
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "неверное тело запроса"})
		return
	}

	if err := h.treasury.HandleTransfer(c.Request.Context(), req); err != nil {
		_ = c.Error(err)
		return
	}
	c.Status(http.StatusNoContent)
}

// VoteResult POST /webhooks/vote-result
func (h *WebhookHandler) VoteResult(c *gin.Context) {
	var req service.VoteBroadcast
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "неверное тело запроса"})
		return
	}

	prop, err := h.reconcile.Apply(c.Request.Context(), req)
	if err != nil {
		_ = c.Error(err)
		return
	}
	if prop == nil {
		// Неизвестное голосование: итог принят и проигнорирован.
		c.Status(http.StatusNoContent)
		return
	}
	c.JSON(http.StatusOK, prop)
}
