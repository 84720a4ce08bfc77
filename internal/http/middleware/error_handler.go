package middleware

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"github.com/grantflow/grantflow-backend/internal/logger"
	"github.com/grantflow/grantflow-backend/internal/pkg/apperror"
)

// ErrorHandler обрабатывает ошибки централизованно. Внутренние ошибки
// маскируются, клиенту уходит понятное сообщение.
func ErrorHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Next()

		if c.Writer.Written() {
			return
		}

		if len(c.Errors) == 0 {
			return
		}

		err := c.Errors.Last()

		statusCode := http.StatusInternalServerError
		message := "внутренняя ошибка сервера"

		var appErr *apperror.AppError
		if errors.As(err.Err, &appErr) {
			statusCode = appErr.HTTPStatus
			message = appErr.Message
		}

		if logger.Log != nil {
			entry := logger.Log.WithFields(logrus.Fields{
				"error":  err.Error(),
				"path":   c.Request.URL.Path,
				"method": c.Request.Method,
				"status": statusCode,
			})
			if statusCode >= http.StatusInternalServerError {
				entry.Error("request error")
			} else {
				entry.Warn("request rejected")
			}
		}

		c.JSON(statusCode, gin.H{"error": message})
	}
}
