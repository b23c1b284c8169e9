package handlers

import (
	"errors"
	"net/http"
	"strconv"

	"sportsocial/api/middleware"
	"sportsocial/services"
	"sportsocial/utils/log"

	"github.com/gin-gonic/gin"
)

// Services - зависимости обработчиков, собираются в server.go
type Services struct {
	Presence   services.Presence
	Feed       *services.FeedComposer
	Ledger     *services.EngagementLedger
	Social     *services.SocialService
	Interests  *services.InterestService
	Dispatcher *services.Dispatcher
	Devices    *services.DeviceService
	Otp        *services.OtpService
}

var svc Services

// Setup задает сервисы для всех обработчиков пакета
func Setup(s Services) {
	svc = s
}

// respondError переводит доменные ошибки в HTTP статусы
func respondError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, services.ErrValidation):
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
	case errors.Is(err, services.ErrNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
	case errors.Is(err, services.ErrConflict):
		c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
	case errors.Is(err, services.ErrUnauthorized):
		c.JSON(http.StatusUnauthorized, gin.H{"error": err.Error()})
	default:
		log.Log.WithError(err).WithField("path", c.FullPath()).Error("request failed")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
	}
}

func queryInt(c *gin.Context, name string, def int) int {
	raw := c.Query(name)
	if raw == "" {
		return def
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		return def
	}
	return v
}

// requireUser достает пользователя, выставленного AuthMiddleware
func requireUser(c *gin.Context) (string, bool) {
	userID := middleware.CurrentUserID(c)
	if userID == "" {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "Unauthorized"})
		return "", false
	}
	return userID, true
}
