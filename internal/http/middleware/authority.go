package middleware

import (
	"crypto/subtle"
	"net/http"

	"github.com/gin-gonic/gin"
)

// Заголовок с общим секретом внешних сервисов.
const AuthorityTokenHeader = "X-Authority-Token"

// AuthorityOnly пропускает только запросы доверенных внешних сервисов
// (токен-сервис, сервис голосований) с общим секретом.
func AuthorityOnly(token string) gin.HandlerFunc {
	return func(c *gin.Context) {
		if token == "" {
			c.AbortWithStatusJSON(http.StatusForbidden, gin.H{"error": "обратные вызовы отключены"})
			return
		}

		got := c.GetHeader(AuthorityTokenHeader)
		if subtle.ConstantTimeCompare([]byte(got), []byte(token)) != 1 {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "неверный токен сервиса"})
			return
		}

		c.Next()
	}
}
