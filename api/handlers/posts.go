package handlers

import (
	"net/http"
	"time"

	"sportsocial/api/middleware"
	"sportsocial/services"

	"github.com/gin-gonic/gin"
)

const serviceName = "sportsocial"

// GetFeed - лента постов. Аноним видит только публичные посты
func GetFeed(c *gin.Context) {
	page, err := svc.Feed.ViewerFeed(
		c.Request.Context(),
		middleware.CurrentUserID(c),
		queryInt(c, "page", 1),
		queryInt(c, "limit", services.DEFAULT_PAGE_SIZE),
		c.Query("search"),
		c.Query("tag"),
	)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, page)
}

// CreatePost создает новый пост
func CreatePost(c *gin.Context) {
	userID, ok := requireUser(c)
	if !ok {
		return
	}
	var req services.CreatePostInput
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request"})
		return
	}

	post, err := svc.Ledger.CreatePost(c.Request.Context(), userID, req)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{
		"id":         post.ID,
		"userId":     post.UserID,
		"content":    post.Content,
		"tags":       post.TagNames(),
		"visibility": post.Visibility,
		"sector":     post.Sector,
		"createdAt":  post.CreatedAt,
	})
}

// GetPost - один пост глазами текущего зрителя
func GetPost(c *gin.Context) {
	post, err := svc.Feed.GetPost(c.Request.Context(), middleware.CurrentUserID(c), c.Param("id"))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, post)
}

func UpdatePost(c *gin.Context) {
	userID, ok := requireUser(c)
	if !ok {
		return
	}
	var req services.UpdatePostInput
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request"})
		return
	}

	post, err := svc.Ledger.UpdatePost(c.Request.Context(), c.Param("id"), userID, req)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"id":         post.ID,
		"userId":     post.UserID,
		"content":    post.Content,
		"tags":       post.TagNames(),
		"visibility": post.Visibility,
		"sector":     post.Sector,
		"createdAt":  post.CreatedAt,
		"updatedAt":  post.UpdatedAt,
	})
}

// DeletePost удаляет пост
func DeletePost(c *gin.Context) {
	userID, ok := requireUser(c)
	if !ok {
		return
	}
	if err := svc.Ledger.DeletePost(c.Request.Context(), c.Param("id"), userID); err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "Post deleted successfully"})
}

// ToggleLike ставит или снимает лайк
func ToggleLike(c *gin.Context) {
	userID, ok := requireUser(c)
	if !ok {
		return
	}
	start := time.Now()
	liked, err := svc.Ledger.ToggleLike(c.Request.Context(), c.Param("id"), userID)
	middleware.RecordEngagementOperation("like", serviceName, time.Since(start), err)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"liked": liked})
}

func AddComment(c *gin.Context) {
	userID, ok := requireUser(c)
	if !ok {
		return
	}
	var req struct {
		Content string `json:"content" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request"})
		return
	}

	start := time.Now()
	comment, err := svc.Ledger.AddComment(c.Request.Context(), c.Param("id"), userID, req.Content)
	middleware.RecordEngagementOperation("comment", serviceName, time.Since(start), err)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, comment)
}

func ListComments(c *gin.Context) {
	page, err := svc.Ledger.ListComments(
		c.Request.Context(),
		c.Param("id"),
		queryInt(c, "page", 1),
		queryInt(c, "limit", services.DEFAULT_PAGE_SIZE),
	)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, page)
}

func DeleteComment(c *gin.Context) {
	userID, ok := requireUser(c)
	if !ok {
		return
	}
	if err := svc.Ledger.DeleteComment(c.Request.Context(), c.Param("commentId"), userID); err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "Comment deleted successfully"})
}

// SharePost делает репост, описание необязательно
func SharePost(c *gin.Context) {
	userID, ok := requireUser(c)
	if !ok {
		return
	}
	var req struct {
		Description *string `json:"description"`
	}
	// пустое тело - репост без описания
	_ = c.ShouldBindJSON(&req)

	start := time.Now()
	share, err := svc.Ledger.SharePost(c.Request.Context(), c.Param("id"), userID, req.Description)
	middleware.RecordEngagementOperation("share", serviceName, time.Since(start), err)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, share)
}
