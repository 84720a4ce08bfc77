package handlers

import (
	"errors"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/grantflow/grantflow-backend/internal/http/middleware"
	"github.com/grantflow/grantflow-backend/internal/service"
)

var errActorNotFound = errors.New("пользователь не найден в контексте")

// currentActor извлекает инициатора операции из контекста запроса.
func currentActor(c *gin.Context) (service.Actor, error) {
	rawID, exists := c.Get(middleware.ContextUserIDKey)
	if !exists {
		return service.Actor{}, errActorNotFound
	}
	userID, ok := rawID.(uuid.UUID)
	if !ok {
		return service.Actor{}, errActorNotFound
	}

	role, _ := c.Get(middleware.ContextRoleKey)
	roleStr, _ := role.(string)

	return service.Actor{ID: userID, Role: roleStr}, nil
}

// proposalIDParam разбирает числовой идентификатор предложения из пути.
func proposalIDParam(c *gin.Context) (int64, error) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil || id <= 0 {
		return 0, errors.New("неверный идентификатор предложения")
	}
	return id, nil
}

// deliverableIDParam разбирает числовой идентификатор этапа из пути.
func deliverableIDParam(c *gin.Context) (int64, error) {
	id, err := strconv.ParseInt(c.Param("deliverableId"), 10, 64)
	if err != nil || id <= 0 {
		return 0, errors.New("неверный идентификатор этапа")
	}
	return id, nil
}

// pageParams разбирает limit и offset из строки запроса.
func pageParams(c *gin.Context) (int, int) {
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "20"))
	offset, _ := strconv.Atoi(c.DefaultQuery("offset", "0"))
	return limit, offset
}
