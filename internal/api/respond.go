package api

import (
	"context"  // Deadline detection
	"errors"   // Error inspection
	"net/http" // HTTP status codes
	"strconv"  // String conversion

	"medconsult/internal/domain" // Tagged errors

	"github.com/gin-gonic/gin"   // Gin web framework
	"github.com/sirupsen/logrus" // Logging library
)

const (
	defaultPageSize = 20  // Default page size
	maxPageSize     = 100 // Largest page a client may request
)

// statusByKind maps error kinds to HTTP status codes
var statusByKind = map[domain.Kind]int{
	domain.KindAuth:          http.StatusUnauthorized,
	domain.KindAuthorization: http.StatusForbidden,
	domain.KindNotFound:      http.StatusNotFound,
	domain.KindState:         http.StatusConflict,
	domain.KindLedger:        http.StatusConflict,
	domain.KindValidation:    http.StatusBadRequest,
}

// respond writes a success envelope
func respond(c *gin.Context, status int, body gin.H) {
	if body == nil {
		body = gin.H{}
	}
	body["ok"] = true
	c.JSON(status, body)
}

// fail writes a failure envelope. Tagged errors are surfaced verbatim,
// anything else is logged and reported as INTERNAL.
func fail(c *gin.Context, err error) {
	if e, ok := domain.AsError(err); ok {
		status, known := statusByKind[e.Kind]
		if !known {
			status = http.StatusInternalServerError
		}
		body := gin.H{"ok": false, "error": e.Reason}
		if e.Hint != "" {
			body["hint"] = e.Hint
		}
		c.AbortWithStatusJSON(status, body)
		return
	}
	fields := logrus.Fields{
		"method": c.Request.Method, // Request method
		"path":   c.FullPath(),     // Route pattern, ids stay out of the log
		"error":  err.Error(),      // Error message
	}
	if errors.Is(err, context.DeadlineExceeded) {
		logrus.WithFields(fields).Warn("Request timed out")
		c.AbortWithStatusJSON(http.StatusServiceUnavailable, gin.H{"ok": false, "error": "TIMEOUT", "hint": "re-query state before retrying"})
		return
	}
	logrus.WithFields(fields).Error("Request failed")
	c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"ok": false, "error": "INTERNAL"})
}

// badRequest reports malformed input
func badRequest(c *gin.Context, hint string) {
	fail(c, domain.Invalid(hint))
}

// pagination reads page and page_size the same way for every listing
type pagination struct {
	Page     int
	PageSize int
}

func parsePagination(c *gin.Context) pagination {
	p := pagination{Page: 1, PageSize: defaultPageSize}
	// If page exists in query
	if v, err := strconv.Atoi(c.Query("page")); err == nil && v > 0 {
		p.Page = v // Set page if valid
	}
	// If page_size exists in query
	if v, err := strconv.Atoi(c.Query("page_size")); err == nil && v > 0 && v <= maxPageSize {
		p.PageSize = v // Set page size if valid
	}
	return p
}

func (p pagination) Offset() int { return (p.Page - 1) * p.PageSize }

// body builds the paginated response envelope
func (p pagination) body(key string, items any, total int64) gin.H {
	return gin.H{
		key:           items,
		"page":        p.Page,
		"page_size":   p.PageSize,
		"total":       total,
		"total_pages": (int(total) + p.PageSize - 1) / p.PageSize,
	}
}

// paramID parses a positive numeric path parameter
func paramID(c *gin.Context, name string) (uint, bool) {
	v, err := strconv.ParseUint(c.Param(name), 10, 64)
	if err != nil || v == 0 {
		badRequest(c, name+" must be a positive integer")
		return 0, false
	}
	return uint(v), true
}
