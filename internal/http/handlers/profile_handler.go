package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/grantflow/grantflow-backend/internal/service"
)

// ProfileHandler обслуживает профили участников.
type ProfileHandler struct {
	profiles *service.ProfileService
}

func NewProfileHandler(profiles *service.ProfileService) *ProfileHandler {
	return &ProfileHandler{profiles: profiles}
}

// Upsert PUT /profile
func (h *ProfileHandler) Upsert(c *gin.Context) {
	actor, err := currentActor(c)
	if err != nil {
		c.JSON(http.StatusUnauthorized, gin.H{"error": err.Error()})
		return
	}

	var req service.ProfileInput
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "неверное тело запроса"})
		return
	}

	profile, err := h.profiles.Upsert(c.Request.Context(), actor, req)
	if err != nil {
		_ = c.Error(err)
		return
	}

	c.JSON(http.StatusOK, profile)
}

// GetMe GET /profile
func (h *ProfileHandler) GetMe(c *gin.Context) {
	actor, err := currentActor(c)
	if err != nil {
		c.JSON(http.StatusUnauthorized, gin.H{"error": err.Error()})
		return
	}

	profile, err := h.profiles.Get(c.Request.Context(), actor.ID)
	if err != nil {
		_ = c.Error(err)
		return
	}

	c.JSON(http.StatusOK, profile)
}

// Get GET /profiles/:owner
func (h *ProfileHandler) Get(c *gin.Context) {
	owner, err := uuid.Parse(c.Param("owner"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "неверный идентификатор владельца"})
		return
	}

	profile, err := h.profiles.Get(c.Request.Context(), owner)
	if err != nil {
		_ = c.Error(err)
		return
	}

	c.JSON(http.StatusOK, profile)
}

// Delete DELETE /profile
func (h *ProfileHandler) Delete(c *gin.Context) {
	actor, err := currentActor(c)
	if err != nil {
		c.JSON(http.StatusUnauthorized, gin.H{"error": err.Error()})
		return
	}

	if err := h.profiles.Delete(c.Request.Context(), actor, actor.ID); err != nil {
		_ = c.Error(err)
		return
	}

	c.Status(http.StatusNoContent)
}
