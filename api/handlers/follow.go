package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

// FollowUser - подписка на пользователя :id
func FollowUser(c *gin.Context) {
	userID, ok := requireUser(c)
	if !ok {
		return
	}
	created, err := svc.Social.FollowUser(c.Request.Context(), userID, c.Param("id"))
	if err != nil {
		respondError(c, err)
		return
	}
	status := http.StatusOK
	if created {
		status = http.StatusCreated
	}
	c.JSON(status, gin.H{"following": true})
}

func UnfollowUser(c *gin.Context) {
	userID, ok := requireUser(c)
	if !ok {
		return
	}
	if err := svc.Social.UnfollowUser(c.Request.Context(), userID, c.Param("id")); err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"following": false})
}

// GetFollowers - подписчики текущего пользователя
func GetFollowers(c *gin.Context) {
	userID, ok := requireUser(c)
	if !ok {
		return
	}
	users, err := svc.Social.ListFollowers(c.Request.Context(), userID)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": users, "total": len(users)})
}

func GetFollowing(c *gin.Context) {
	userID, ok := requireUser(c)
	if !ok {
		return
	}
	users, err := svc.Social.ListFollowing(c.Request.Context(), userID)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": users, "total": len(users)})
}

// GetInterests - секторы текущего пользователя
func GetInterests(c *gin.Context) {
	userID, ok := requireUser(c)
	if !ok {
		return
	}
	sectors, err := svc.Interests.GetByUser(c.Request.Context(), userID)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"sectors": sectors})
}

func SetInterests(c *gin.Context) {
	userID, ok := requireUser(c)
	if !ok {
		return
	}
	var req struct {
		Sectors []string `json:"sectors"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request"})
		return
	}
	if err := svc.Interests.SetForUser(c.Request.Context(), userID, req.Sectors); err != nil {
		respondError(c, err)
		return
	}
	sectors, err := svc.Interests.GetByUser(c.Request.Context(), userID)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"sectors": sectors})
}
