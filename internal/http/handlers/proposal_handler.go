package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/grantflow/grantflow-backend/internal/models"
	"github.com/grantflow/grantflow-backend/internal/service"
)

// ProposalHandler обслуживает жизненный цикл предложений.
type ProposalHandler struct {
	proposals *service.ProposalService
}

func NewProposalHandler(proposals *service.ProposalService) *ProposalHandler {
	return &ProposalHandler{proposals: proposals}
}

// List GET /proposals?status=&category=&limit=&offset=
func (h *ProposalHandler) List(c *gin.Context) {
	limit, offset := pageParams(c)

	props, err := h.proposals.List(c.Request.Context(), c.Query("status"), c.Query("category"), limit, offset)
	if err != nil {
		_ = c.Error(err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"proposals": props})
}

// ListRecent GET /proposals/recent
func (h *ProposalHandler) ListRecent(c *gin.Context) {
	limit, offset := pageParams(c)

	props, err := h.proposals.ListRecent(c.Request.Context(), limit, offset)
	if err != nil {
		_ = c.Error(err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"proposals": props})
}

// ListMine GET /proposals/mine
func (h *ProposalHandler) ListMine(c *gin.Context) {
	actor, err := currentActor(c)
	if err != nil {
		c.JSON(http.StatusUnauthorized, gin.H{"error": err.Error()})
		return
	}
	limit, offset := pageParams(c)

	props, err := h.proposals.ListByProposer(c.Request.Context(), actor.ID, limit, offset)
	if err != nil {
		_ = c.Error(err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"proposals": props})
}

// ListReviewing GET /proposals/reviewing
func (h *ProposalHandler) ListReviewing(c *gin.Context) {
	actor, err := currentActor(c)
	if err != nil {
		c.JSON(http.StatusUnauthorized, gin.H{"error": err.Error()})
		return
	}
	limit, offset := pageParams(c)

	props, err := h.proposals.ListByReviewer(c.Request.Context(), actor.ID, limit, offset)
	if err != nil {
		_ = c.Error(err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"proposals": props})
}

// Get GET /proposals/:id
func (h *ProposalHandler) Get(c *gin.Context) {
	id, err := proposalIDParam(c)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	prop, err := h.proposals.Get(c.Request.Context(), id)
	if err != nil {
		_ = c.Error(err)
		return
	}
	c.JSON(http.StatusOK, prop)
}

// GetBody GET /proposals/:id/body
func (h *ProposalHandler) GetBody(c *gin.Context) {
	id, err := proposalIDParam(c)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	body, err := h.proposals.GetBody(c.Request.Context(), id)
	if err != nil {
		_ = c.Error(err)
		return
	}
	c.JSON(http.StatusOK, body)
}

// CreateDraft POST /proposals
func (h *ProposalHandler) CreateDraft(c *gin.Context) {
	actor, err := currentActor(c)
	if err != nil {
		c.JSON(http.StatusUnauthorized, gin.H{"error": err.Error()})
		return
	}

	var req struct {
		Title         string `json:"title" binding:"required"`
		Description   string `json:"description"`
		Content       string `json:"content"`
		ImageURL      string `json:"image_url"`
		RoadMap       string `json:"road_map"`
		EstimatedTime int    `json:"estimated_time" binding:"required,gt=0"`
		Category      string `json:"category" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "title, category и estimated_time обязательны"})
		return
	}

	prop, err := h.proposals.CreateDraft(c.Request.Context(), actor, models.ProposalDraftInput{
		Title:         req.Title,
		Description:   req.Description,
		Content:       req.Content,
		ImageURL:      req.ImageURL,
		RoadMap:       req.RoadMap,
		EstimatedTime: req.EstimatedTime,
		Category:      req.Category,
	})
	if err != nil {
		_ = c.Error(err)
		return
	}
	c.JSON(http.StatusCreated, prop)
}

// EditDraft PATCH /proposals/:id
func (h *ProposalHandler) EditDraft(c *gin.Context) {
	actor, err := currentActor(c)
	if err != nil {
		c.JSON(http.StatusUnauthorized, gin.H{"error": err.Error()})
		return
	}
	id, err := proposalIDParam(c)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	var req struct {
		Title         *string `json:"title"`
		Description   *string `json:"description"`
		Content       *string `json:"content"`
		ImageURL      *string `json:"image_url"`
		RoadMap       *string `json:"road_map"`
		EstimatedTime *int    `json:"estimated_time"`
		Category      *string `json:"category"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "неверное тело запроса"})
		return
	}

	prop, err := h.proposals.EditDraft(c.Request.Context(), actor, id, models.ProposalEditInput{
		Title:         req.Title,
		Description:   req.Description,
		Content:       req.Content,
		ImageURL:      req.ImageURL,
		RoadMap:       req.RoadMap,
		EstimatedTime: req.EstimatedTime,
		Category:      req.Category,
	})
	if err != nil {
		_ = c.Error(err)
		return
	}
	c.JSON(http.StatusOK, prop)
}

// Submit POST /proposals/:id/submit
func (h *ProposalHandler) Submit(c *gin.Context) {
	h.lifecycle(c, func(actor service.Actor, id int64) (*models.Proposal, error) {
		return h.proposals.Submit(c.Request.Context(), actor, id)
	})
}

// Review POST /proposals/:id/review
func (h *ProposalHandler) Review(c *gin.Context) {
	actor, err := currentActor(c)
	if err != nil {
		c.JSON(http.StatusUnauthorized, gin.H{"error": err.Error()})
		return
	}
	id, err := proposalIDParam(c)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	var req struct {
		Approve bool   `json:"approve"`
		Memo    string `json:"memo"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "неверное тело запроса"})
		return
	}

	prop, err := h.proposals.Review(c.Request.Context(), actor, id, req.Approve, req.Memo)
	if err != nil {
		_ = c.Error(err)
		return
	}
	c.JSON(http.StatusOK, prop)
}

// SetReviewer PUT /proposals/:id/reviewer
func (h *ProposalHandler) SetReviewer(c *gin.Context) {
	actor, err := currentActor(c)
	if err != nil {
		c.JSON(http.StatusUnauthorized, gin.H{"error": err.Error()})
		return
	}
	id, err := proposalIDParam(c)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	var req struct {
		Reviewer string `json:"reviewer" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "reviewer обязателен"})
		return
	}
	reviewer, err := uuid.Parse(req.Reviewer)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "неверный идентификатор ревьюера"})
		return
	}

	prop, err := h.proposals.SetReviewer(c.Request.Context(), actor, id, reviewer)
	if err != nil {
		_ = c.Error(err)
		return
	}
	c.JSON(http.StatusOK, prop)
}

// BeginVoting POST /proposals/:id/voting
func (h *ProposalHandler) BeginVoting(c *gin.Context) {
	h.lifecycle(c, func(actor service.Actor, id int64) (*models.Proposal, error) {
		return h.proposals.BeginVoting(c.Request.Context(), actor, id)
	})
}

// EndVoting POST /proposals/:id/voting/end
func (h *ProposalHandler) EndVoting(c *gin.Context) {
	actor, err := currentActor(c)
	if err != nil {
		c.JSON(http.StatusUnauthorized, gin.H{"error": err.Error()})
		return
	}
	id, err := proposalIDParam(c)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	prop, err := h.proposals.EndVoting(c.Request.Context(), actor, id)
	if err != nil {
		_ = c.Error(err)
		return
	}
	c.JSON(http.StatusAccepted, prop)
}

// SkipVoting POST /proposals/:id/skip-voting
func (h *ProposalHandler) SkipVoting(c *gin.Context) {
	actor, err := currentActor(c)
	if err != nil {
		c.JSON(http.StatusUnauthorized, gin.H{"error": err.Error()})
		return
	}
	id, err := proposalIDParam(c)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	var req struct {
		Memo string `json:"memo"`
	}
	_ = c.ShouldBindJSON(&req)

	prop, err := h.proposals.SkipVoting(c.Request.Context(), actor, id, req.Memo)
	if err != nil {
		_ = c.Error(err)
		return
	}
	c.JSON(http.StatusOK, prop)
}

// Cancel POST /proposals/:id/cancel
func (h *ProposalHandler) Cancel(c *gin.Context) {
	actor, err := currentActor(c)
	if err != nil {
		c.JSON(http.StatusUnauthorized, gin.H{"error": err.Error()})
		return
	}
	id, err := proposalIDParam(c)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	var req struct {
		Memo string `json:"memo"`
	}
	_ = c.ShouldBindJSON(&req)

	prop, err := h.proposals.Cancel(c.Request.Context(), actor, id, req.Memo)
	if err != nil {
		_ = c.Error(err)
		return
	}
	c.JSON(http.StatusOK, prop)
}

// Delete DELETE /proposals/:id
func (h *ProposalHandler) Delete(c *gin.Context) {
	actor, err := currentActor(c)
	if err != nil {
		c.JSON(http.StatusUnauthorized, gin.H{"error": err.Error()})
		return
	}
	id, err := proposalIDParam(c)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	if err := h.proposals.Delete(c.Request.Context(), actor, id); err != nil {
		_ = c.Error(err)
		return
	}
	c.Status(http.StatusNoContent)
}

// lifecycle выполняет операцию жизненного цикла без тела запроса.
func (h *ProposalHandler) lifecycle(c *gin.Context, op func(service.Actor, int64) (*models.Proposal, error)) {
	actor, err := currentActor(c)
	if err != nil {
		c.JSON(http.StatusUnauthorized, gin.H{"error": err.Error()})
		return
	}
	id, err := proposalIDParam(c)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	prop, err := op(actor, id)
	if err != nil {
		_ = c.Error(err)
		return
	}
	c.JSON(http.StatusOK, prop)
}
