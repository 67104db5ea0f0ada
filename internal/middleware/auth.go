package middleware

import (
	"context"  // Resolver context
	"net/http" // HTTP status codes
	"strings"  // String manipulation

	"medconsult/internal/domain" // Error reasons
	"medconsult/internal/policy" // Viewer type
	"medconsult/internal/utils"  // initData verification

	"github.com/gin-gonic/gin"   // Gin web framework
	"github.com/sirupsen/logrus" // Logging library
)

// Context keys set by the auth middlewares
const (
	UserIDKey = "userID" // Verified Telegram id, int64
	ViewerKey = "viewer" // policy.Viewer
)

// InitDataHeader carries the raw Telegram WebApp initData
const InitDataHeader = "X-Telegram-Init-Data"

// InitDataAuthMiddleware verifies the Telegram initData assertion and extracts the caller id
func InitDataAuthMiddleware(verifier *utils.InitDataVerifier) gin.HandlerFunc {
	return func(c *gin.Context) {
		raw := c.GetHeader(InitDataHeader) // Preferred header
		// Fall back to "Authorization: tma <initData>"
		if raw == "" {
			if auth := c.GetHeader("Authorization"); strings.HasPrefix(auth, "tma ") {
				raw = strings.TrimPrefix(auth, "tma ")
			}
		}
		if raw == "" {
			abort(c, http.StatusUnauthorized, domain.ReasonNoAssertion)
			return
		}
		identity, err := verifier.Verify(raw) // Every check runs before the first failure is reported
		if err != nil {
			reason := domain.ReasonBadHash
			if e, ok := domain.AsError(err); ok {
				reason = e.Reason
			}
			abort(c, http.StatusUnauthorized, reason)
			return
		}
		c.Set(UserIDKey, identity.UserID) // Store userID in context
		c.Next()                          // Proceed to the next handler
	}
}

// ViewerResolver links a verified Telegram id to its doctor profile
type ViewerResolver interface {
	Viewer(ctx context.Context, userID int64) (policy.Viewer, error)
}

// ViewerMiddleware resolves the caller into a policy.Viewer once per request
func ViewerMiddleware(resolver ViewerResolver) gin.HandlerFunc {
	return func(c *gin.Context) {
		viewer, err := resolver.Viewer(c.Request.Context(), UserID(c))
		if err != nil {
			logrus.WithField("error", err.Error()).Error("Failed to resolve viewer")
			c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"ok": false, "error": "INTERNAL"})
			return
		}
		c.Set(ViewerKey, viewer)
		c.Next()
	}
}

// UserID returns the verified caller id, zero when the request is unauthenticated
func UserID(c *gin.Context) int64 {
	if v, ok := c.Get(UserIDKey); ok {
		if id, ok := v.(int64); ok {
			return id
		}
	}
	return 0
}

// Viewer returns the resolved viewer, falling back to a patient viewer
func Viewer(c *gin.Context) policy.Viewer {
	if v, ok := c.Get(ViewerKey); ok {
		if viewer, ok := v.(policy.Viewer); ok {
			return viewer
		}
	}
	return policy.Viewer{UserID: UserID(c)}
}

func abort(c *gin.Context, status int, reason string) {
	c.AbortWithStatusJSON(status, gin.H{"ok": false, "error": reason})
}
