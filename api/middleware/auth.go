package middleware

import (
	"net/http"
	"strings"

	"sportsocial/services"

	"github.com/gin-gonic/gin"
)

const (
	UserIDKey   = "user_id"
	DeviceIDKey = "device_id"
)

func bearerToken(c *gin.Context) string {
	authHeader := c.GetHeader("Authorization")
	if !strings.HasPrefix(authHeader, "Bearer ") {
		return ""
	}
	return strings.TrimSpace(strings.TrimPrefix(authHeader, "Bearer "))
}

// AuthMiddleware - токен обязателен. Проверку подписи делает TokenDecoder
func AuthMiddleware(decoder services.TokenDecoder) gin.HandlerFunc {
	return func(c *gin.Context) {
		token := bearerToken(c)
		if token == "" {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "Authentication required: provide Authorization Bearer token"})
			c.Abort()
			return
		}
		identity, err := decoder.Decode(token)
		if err != nil {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "Invalid token"})
			c.Abort()
			return
		}
		c.Set(UserIDKey, identity.UserID)
		c.Set(DeviceIDKey, identity.DeviceID)
		c.Next()
	}
}

// OptionalAuthMiddleware - невалидный или отсутствующий токен означает анонима, запрос не отклоняется
func OptionalAuthMiddleware(decoder services.TokenDecoder) gin.HandlerFunc {
	return func(c *gin.Context) {
		if token := bearerToken(c); token != "" {
			if identity, err := decoder.Decode(token); err == nil {
				c.Set(UserIDKey, identity.UserID)
				c.Set(DeviceIDKey, identity.DeviceID)
			}
		}
		c.Next()
	}
}

// CurrentUserID - пустая строка для анонима
func CurrentUserID(c *gin.Context) string {
	return c.GetString(UserIDKey)
}
