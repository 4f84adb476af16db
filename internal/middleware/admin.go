package middleware

import (
	"net/http" // HTTP status codes

	"digital_wallet/internal/repository" // User lookups

	"github.com/gin-gonic/gin" // Gin web framework
)

// AdminOnlyMiddleware checks the user's role from the database on each request
func AdminOnlyMiddleware(users *repository.UserRepository) gin.HandlerFunc {
	return func(c *gin.Context) {
		userID, exists := CurrentUserID(c) // Get userID from context
		// Check if userID exists in context
		if !exists {
			// If not, abort with unauthorized status
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"code": "Unauthorized", "error": "Unauthorized"})
			return
		}
		user, err := users.FindByID(c.Request.Context(), userID) // Fetch user from database
		// The token role is informational; the stored role decides
		if err != nil || !user.IsAdmin() || !user.IsActive {
			c.AbortWithStatusJSON(http.StatusForbidden, gin.H{"code": "Forbidden", "error": "Admin access required"})
			return
		}
		// If admin, proceed to the next handler
		c.Next()
	}
}
