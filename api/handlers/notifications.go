package handlers

import (
	"net/http"

	"sportsocial/services"

	"github.com/gin-gonic/gin"
)

// GetNotifications возвращает уведомления текущего пользователя, новые сверху
func GetNotifications(c *gin.Context) {
	userID, ok := requireUser(c)
	if !ok {
		return
	}
	page, err := svc.Dispatcher.GetUserNotifications(
		c.Request.Context(),
		userID,
		queryInt(c, "page", 1),
		queryInt(c, "limit", services.DEFAULT_PAGE_SIZE),
	)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, page)
}

// MarkNotificationRead - повторный вызов тоже успешен
func MarkNotificationRead(c *gin.Context) {
	userID, ok := requireUser(c)
	if !ok {
		return
	}
	if err := svc.Dispatcher.MarkAsRead(c.Request.Context(), c.Param("id"), userID); err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true})
}

func MarkAllNotificationsRead(c *gin.Context) {
	userID, ok := requireUser(c)
	if !ok {
		return
	}
	updated, err := svc.Dispatcher.MarkAllRead(c.Request.Context(), userID)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "updated": updated})
}

func GetUnreadCount(c *gin.Context) {
	userID, ok := requireUser(c)
	if !ok {
		return
	}
	count, err := svc.Dispatcher.UnreadCount(c.Request.Context(), userID)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"count": count})
}
