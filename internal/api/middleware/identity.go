package middleware

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

// UserIdentity reads the authenticated user from the X-User-ID header set by
// the API gateway, which terminates authentication upstream of this service.
func UserIdentity() gin.HandlerFunc {
	return func(c *gin.Context) {
		raw := c.GetHeader("X-User-ID")
		if raw == "" {
			c.JSON(http.StatusUnauthorized, gin.H{
				"error":      "Missing user identity",
				"request_id": c.GetString("request_id"),
			})
			c.Abort()
			return
		}
		userID, err := uuid.Parse(raw)
		if err != nil {
			c.JSON(http.StatusUnauthorized, gin.H{
				"error":      "Invalid user identity",
				"request_id": c.GetString("request_id"),
			})
			c.Abort()
			return
		}
		c.Set("user_id", userID)
		c.Next()
	}
}

// AdminIdentity additionally requires the gateway's admin role header
func AdminIdentity() gin.HandlerFunc {
	return func(c *gin.Context) {
		if c.GetHeader("X-User-Role") != "admin" {
			c.JSON(http.StatusForbidden, gin.H{
				"error":      "Admin privileges required",
				"request_id": c.GetString("request_id"),
			})
			c.Abort()
			return
		}
		c.Next()
	}
}
