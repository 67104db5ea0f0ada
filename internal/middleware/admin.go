package middleware

import (
	"net/http" // HTTP status codes

	"medconsult/internal/config" // Admin allow-list
	"medconsult/internal/domain" // Error reasons

	"github.com/gin-gonic/gin"   // Gin web framework
	"github.com/sirupsen/logrus" // Logging library
	"golang.org/x/crypto/bcrypt" // Provider key hashing
)

// ProviderKeyHeader carries the payment provider's shared key
const ProviderKeyHeader = "X-Provider-Key"

// AdminOnlyMiddleware checks the verified caller against the admin allow-list loaded at start-up
func AdminOnlyMiddleware(admins config.AdminSet) gin.HandlerFunc {
	return func(c *gin.Context) {
		userID := UserID(c) // Get userID from context
		// Check if userID exists in context
		if userID == 0 {
			// If not, abort with unauthorized status
			abort(c, http.StatusUnauthorized, domain.ReasonNoAssertion)
			return
		}
		// Check if user is an admin
		if !admins.Contains(userID) {
			logrus.WithField("user_id", userID).Warn("Admin access denied")
			abort(c, http.StatusForbidden, domain.ReasonRoleDenied)
			return
		}
		// If admin, proceed to the next handler
		c.Next()
	}
}

// ProviderKeyMiddleware authenticates payment provider callbacks by a bcrypt-hashed shared key.
// An empty hash rejects every call.
func ProviderKeyMiddleware(keyHash string) gin.HandlerFunc {
	return func(c *gin.Context) {
		key := c.GetHeader(ProviderKeyHeader)
		if keyHash == "" || key == "" {
			abort(c, http.StatusUnauthorized, domain.ReasonNoAssertion)
			return
		}
		if err := bcrypt.CompareHashAndPassword([]byte(keyHash), []byte(key)); err != nil {
			logrus.WithField("client_ip", c.ClientIP()).Warn("Provider key rejected")
			abort(c, http.StatusForbidden, domain.ReasonRoleDenied)
			return
		}
		c.Next()
	}
}
