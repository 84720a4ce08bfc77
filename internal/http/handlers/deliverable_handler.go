package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/grantflow/grantflow-backend/internal/models"
	"github.com/grantflow/grantflow-backend/internal/service"
)

// DeliverableHandler обслуживает этапы работ внутри предложений.
type DeliverableHandler struct {
	deliverables *service.DeliverableService
}

func NewDeliverableHandler(deliverables *service.DeliverableService) *DeliverableHandler {
	return &DeliverableHandler{deliverables: deliverables}
}

type deliverableRequest struct {
	Requested        int64  `json:"requested" binding:"required,gt=0"`
	Recipient        string `json:"recipient" binding:"required"`
	SmallDescription string `json:"small_description"`
	DaysToComplete   int    `json:"days_to_complete" binding:"required,gt=0"`
}

func (r deliverableRequest) toInput() (models.DeliverableInput, error) {
	recipient, err := uuid.Parse(r.Recipient)
	if err != nil {
		return models.DeliverableInput{}, err
	}
	return models.DeliverableInput{
		Requested:        r.Requested,
		Recipient:        recipient,
		SmallDescription: r.SmallDescription,
		DaysToComplete:   r.DaysToComplete,
	}, nil
}

// List GET /proposals/:id/deliverables
func (h *DeliverableHandler) List(c *gin.Context) {
	proposalID, err := proposalIDParam(c)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	delivs, err := h.deliverables.List(c.Request.Context(), proposalID)
	if err != nil {
		_ = c.Error(err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"deliverables": delivs})
}

// Get GET /proposals/:id/deliverables/:deliverableId
func (h *DeliverableHandler) Get(c *gin.Context) {
	proposalID, err := proposalIDParam(c)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	deliverableID, err := deliverableIDParam(c)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	deliv, err := h.deliverables.Get(c.Request.Context(), proposalID, deliverableID)
	if err != nil {
		_ = c.Error(err)
		return
	}
	c.JSON(http.StatusOK, deliv)
}

// Add POST /proposals/:id/deliverables
func (h *DeliverableHandler) Add(c *gin.Context) {
	actor, err := currentActor(c)
	if err != nil {
		c.JSON(http.StatusUnauthorized, gin.H{"error": err.Error()})
		return
	}
	proposalID, err := proposalIDParam(c)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	var req deliverableRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "requested, recipient и days_to_complete обязательны"})
		return
	}
	in, err := req.toInput()
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "неверный идентификатор получателя"})
		return
	}

	deliv, err := h.deliverables.Add(c.Request.Context(), actor, proposalID, in)
	if err != nil {
		_ = c.Error(err)
		return
	}
	c.JSON(http.StatusCreated, deliv)
}

// Edit PUT /proposals/:id/deliverables/:deliverableId
func (h *DeliverableHandler) Edit(c *gin.Context) {
	actor, err := currentActor(c)
	if err != nil {
		c.JSON(http.StatusUnauthorized, gin.H{"error": err.Error()})
		return
	}
	proposalID, err := proposalIDParam(c)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	deliverableID, err := deliverableIDParam(c)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	var req deliverableRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "requested, recipient и days_to_complete обязательны"})
		return
	}
	in, err := req.toInput()
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "неверный идентификатор получателя"})
		return
	}

	deliv, err := h.deliverables.Edit(c.Request.Context(), actor, proposalID, deliverableID, in)
	if err != nil {
		_ = c.Error(err)
		return
	}
	c.JSON(http.StatusOK, deliv)
}

// Remove DELETE /proposals/:id/deliverables/:deliverableId
func (h *DeliverableHandler) Remove(c *gin.Context) {
	actor, err := currentActor(c)
	if err != nil {
		c.JSON(http.StatusUnauthorized, gin.H{"error": err.Error()})
		return
	}
	proposalID, err := proposalIDParam(c)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	deliverableID, err := deliverableIDParam(c)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	if err := h.deliverables.Remove(c.Request.Context(), actor, proposalID, deliverableID); err != nil {
		_ = c.Error(err)
		return
	}
	c.Status(http.StatusNoContent)
}

// SubmitReport POST /proposals/:id/deliverables/:deliverableId/report
func (h *DeliverableHandler) SubmitReport(c *gin.Context) {
	actor, err := currentActor(c)
	if err != nil {
		c.JSON(http.StatusUnauthorized, gin.H{"error": err.Error()})
		return
	}
	proposalID, err := proposalIDParam(c)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	deliverableID, err := deliverableIDParam(c)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	var req struct {
		Report string `json:"report" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "report обязателен"})
		return
	}

	deliv, err := h.deliverables.SubmitReport(c.Request.Context(), actor, proposalID, deliverableID, req.Report)
	if err != nil {
		_ = c.Error(err)
		return
	}
	c.JSON(http.StatusOK, deliv)
}

// Review POST /proposals/:id/deliverables/:deliverableId/review
func (h *DeliverableHandler) Review(c *gin.Context) {
	actor, err := currentActor(c)
	if err != nil {
		c.JSON(http.StatusUnauthorized, gin.H{"error": err.Error()})
		return
	}
	proposalID, err := proposalIDParam(c)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	deliverableID, err := deliverableIDParam(c)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	var req struct {
		Accept bool   `json:"accept"`
		Memo   string `json:"memo"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "неверное тело запроса"})
		return
	}

	deliv, err := h.deliverables.Review(c.Request.Context(), actor, proposalID, deliverableID, req.Accept, req.Memo)
	if err != nil {
		_ = c.Error(err)
		return
	}
	c.JSON(http.StatusOK, deliv)
}

// ClaimFunds POST /proposals/:id/deliverables/:deliverableId/claim
func (h *DeliverableHandler) ClaimFunds(c *gin.Context) {
	actor, err := currentActor(c)
	if err != nil {
		c.JSON(http.StatusUnauthorized, gin.H{"error": err.Error()})
		return
	}
	proposalID, err := proposalIDParam(c)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	deliverableID, err := deliverableIDParam(c)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	deliv, err := h.deliverables.ClaimFunds(c.Request.Context(), actor, proposalID, deliverableID)
	if err != nil {
		_ = c.Error(err)
		return
	}
	c.JSON(http.StatusOK, deliv)
}
