package handlers

import (
	"net/http"

	"sportsocial/api/middleware"

	"github.com/gin-gonic/gin"
)

type RegisterDeviceRequest struct {
	DeviceID  string  `json:"deviceId"`
	PushToken *string `json:"pushToken"`
}

type OtpSendRequest struct {
	PhoneNumber string `json:"phoneNumber" binding:"required"`
	Purpose     string `json:"purpose"`
}

type OtpConfirmRequest struct {
	PhoneNumber string `json:"phoneNumber" binding:"required"`
	Purpose     string `json:"purpose"`
	Code        string `json:"code" binding:"required"`
}

// RegisterDevice сохраняет push токен устройства. deviceId берется из тела или из токена
func RegisterDevice(c *gin.Context) {
	userID, ok := requireUser(c)
	if !ok {
		return
	}
	var req RegisterDeviceRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request"})
		return
	}
	if req.DeviceID == "" {
		req.DeviceID = c.GetString(middleware.DeviceIDKey)
	}

	device, err := svc.Devices.RegisterDevice(c.Request.Context(), userID, req.DeviceID, req.PushToken)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, device)
}

func DeactivateDevice(c *gin.Context) {
	userID, ok := requireUser(c)
	if !ok {
		return
	}
	if err := svc.Devices.DeactivateDevice(c.Request.Context(), userID, c.Param("deviceId")); err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true})
}

// SendOtp отправляет код; провал всех провайдеров не ошибка запроса, он виден в ответе
func SendOtp(c *gin.Context) {
	var req OtpSendRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request", "details": err.Error()})
		return
	}
	result, err := svc.Otp.IssueOtp(c.Request.Context(), req.PhoneNumber, req.Purpose)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, result)
}

func ConfirmOtp(c *gin.Context) {
	var req OtpConfirmRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request", "details": err.Error()})
		return
	}
	if err := svc.Otp.ConfirmOtp(c.Request.Context(), req.PhoneNumber, req.Purpose, req.Code); err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true})
}
