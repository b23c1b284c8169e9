package routes

import (
	"sportsocial/api/handlers"
	"sportsocial/api/middleware"
	"sportsocial/services"

	"github.com/gin-gonic/gin"
)

func PublicApi(router *gin.Engine, decoder services.TokenDecoder) *gin.RouterGroup {
	auth := middleware.AuthMiddleware(decoder)
	optionalAuth := middleware.OptionalAuthMiddleware(decoder)

	publicEndpoints := router.Group("/api/v1/")
	{
		// Лента и посты
		publicEndpoints.GET("posts", optionalAuth, handlers.GetFeed)
		publicEndpoints.POST("posts", auth, handlers.CreatePost)
		publicEndpoints.GET("posts/:id", optionalAuth, handlers.GetPost)
		publicEndpoints.POST("posts/:id", auth, handlers.UpdatePost)
		publicEndpoints.DELETE("posts/:id", auth, handlers.DeletePost)
		publicEndpoints.POST("posts/:id/likes", auth, handlers.ToggleLike)
		publicEndpoints.GET("posts/:id/comments", handlers.ListComments)
		publicEndpoints.POST("posts/:id/comments", auth, handlers.AddComment)
		publicEndpoints.DELETE("comments/:commentId", auth, handlers.DeleteComment)
		publicEndpoints.POST("posts/:id/shares", auth, handlers.SharePost)

		// Подписки и интересы
		publicEndpoints.POST("users/:id/follow", auth, handlers.FollowUser)
		publicEndpoints.DELETE("users/:id/follow", auth, handlers.UnfollowUser)
		publicEndpoints.GET("me/followers", auth, handlers.GetFollowers)
		publicEndpoints.GET("me/following", auth, handlers.GetFollowing)
		publicEndpoints.GET("me/interests", auth, handlers.GetInterests)
		publicEndpoints.PUT("me/interests", auth, handlers.SetInterests)

		// Уведомления
		publicEndpoints.GET("notifications", auth, handlers.GetNotifications)
		publicEndpoints.PATCH("notifications/read-all", auth, handlers.MarkAllNotificationsRead)
		publicEndpoints.PATCH("notifications/:id/read", auth, handlers.MarkNotificationRead)
		publicEndpoints.GET("notifications/unread-count", auth, handlers.GetUnreadCount)

		// Устройства и OTP
		publicEndpoints.POST("devices", auth, handlers.RegisterDevice)
		publicEndpoints.DELETE("devices/:deviceId", auth, handlers.DeactivateDevice)
		publicEndpoints.POST("otp/send", handlers.SendOtp)
		publicEndpoints.POST("otp/confirm", handlers.ConfirmOtp)

		publicEndpoints.GET("ws", handlers.WSHandler)
	}
	return publicEndpoints
}
