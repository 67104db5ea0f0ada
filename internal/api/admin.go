package api

import (
	"net/http" // HTTP status codes
	"strconv"  // String conversion
	"strings"  // String manipulation
	"time"     // Time durations

	"medconsult/internal/consultation" // Consultation lifecycle
	"medconsult/internal/doctors"      // Doctor profiles
	"medconsult/internal/ledger"       // Wallet ledger
	"medconsult/internal/qa"           // Question board
	"medconsult/internal/utils"        // Utility functions

	"github.com/gin-gonic/gin" // Gin web framework
)

// adminListTTL is short: admin listings are not invalidated on every ledger write
const adminListTTL = 10 * time.Second

// listingCacheKey builds a cache key from the listed query params
func listingCacheKey(prefix string, c *gin.Context, params ...string) string {
	var keyParts []string // Parts of the cache key
	// Append each query parameter to the key parts
	for _, k := range params {
		keyParts = append(keyParts, k+"="+c.DefaultQuery(k, "")) // Append key-value pair
	}
	return prefix + strings.Join(keyParts, ":") // Join key parts to form the final cache key
}

// cachedListing is the cached shape of a paginated listing
type cachedListing[T any] struct {
	Items      []T   `json:"items"`       // Listed entities
	Page       int   `json:"page"`        // Current page
	PageSize   int   `json:"page_size"`   // Page size
	Total      int64 `json:"total"`       // Total matching entities
	TotalPages int   `json:"total_pages"` // Total pages
}

func (l cachedListing[T]) body(key string) gin.H {
	return gin.H{
		key:           l.Items,
		"page":        l.Page,
		"page_size":   l.PageSize,
		"total":       l.Total,
		"total_pages": l.TotalPages,
	}
}

func newListing[T any](p pagination, items []T, total int64) cachedListing[T] {
	return cachedListing[T]{
		Items:      items,
		Page:       p.Page,
		PageSize:   p.PageSize,
		Total:      total,
		TotalPages: (int(total) + p.PageSize - 1) / p.PageSize,
	}
}

// ListPayoutsHandler returns payout requests, optionally filtered by status or doctor
func ListPayoutsHandler(l *ledger.Ledger, cache *utils.Cache) gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx := c.Request.Context()
		cacheKey := listingCacheKey("admin:payouts:", c, "doctor_id", "status", "page", "page_size")
		var cached cachedListing[any]
		// If cached data found, return it
		if found, err := cache.GetCache(ctx, cacheKey, &cached); err == nil && found {
			body := cached.body("payouts")
			body["cached"] = true // Indicate response is from cache
			respond(c, http.StatusOK, body)
			return
		}
		page := parsePagination(c)
		filter := ledger.PayoutFilter{Status: c.Query("status")}
		if v, err := strconv.ParseUint(c.Query("doctor_id"), 10, 64); err == nil {
			filter.DoctorID = uint(v) // Filter by doctor
		}
		payouts, total, err := l.Payouts(ctx, filter, page.Offset(), page.PageSize)
		if err != nil {
			fail(c, err)
			return
		}
		listing := newListing(page, payouts, total)
		_ = cache.SetCache(ctx, cacheKey, listing, adminListTTL) // Cache the response for future requests
		body := listing.body("payouts")
		body["cached"] = false // Indicate response is not from cache
		respond(c, http.StatusOK, body)
	}
}

// ListTransactionsHandler returns all ledger entries, with optional filtering by doctor, type, or date
func ListTransactionsHandler(l *ledger.Ledger, cache *utils.Cache) gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx := c.Request.Context()
		cacheKey := listingCacheKey("admin:txs:", c, "doctor_id", "type", "from", "to", "page", "page_size")
		var cached cachedListing[any]
		// If cached data found, return it
		if found, err := cache.GetCache(ctx, cacheKey, &cached); err == nil && found {
			body := cached.body("transactions")
			body["cached"] = true // Indicate response is from cache
			respond(c, http.StatusOK, body)
			return
		}
		page := parsePagination(c)
		filter := ledger.TransactionFilter{
			Type: c.Query("type"), // Filter by transaction type
			From: c.Query("from"), // Filter by start date
			To:   c.Query("to"),   // Filter by end date
		}
		if v, err := strconv.ParseUint(c.Query("doctor_id"), 10, 64); err == nil {
			filter.DoctorID = uint(v) // Filter by doctor
		}
		txs, total, err := l.AllTransactions(ctx, filter, page.Offset(), page.PageSize)
		if err != nil {
			fail(c, err)
			return
		}
		listing := newListing(page, txs, total)
		_ = cache.SetCache(ctx, cacheKey, listing, adminListTTL) // Cache the response for future requests
		body := listing.body("transactions")
		body["cached"] = false // Indicate response is not from cache
		respond(c, http.StatusOK, body)
	}
}

// SettleRequest carries the outcome reported for a payout
type SettleRequest struct {
	Outcome string `json:"outcome" binding:"required"` // success, failed or canceled
}

// SettlePayoutHandler settles a pending payout by id
func SettlePayoutHandler(l *ledger.Ledger, cache *utils.Cache) gin.HandlerFunc {
	return func(c *gin.Context) {
		id, ok := paramID(c, "id")
		if !ok {
			return
		}
		var req SettleRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			badRequest(c, "outcome is required")
			return
		}
		ctx := c.Request.Context()
		payout, wallet, err := l.SettlePayout(ctx, id, req.Outcome)
		if err != nil {
			fail(c, err)
			return
		}
		_ = cache.InvalidateWallet(ctx, payout.DoctorID) // Invalidate wallet cache
		respond(c, http.StatusOK, gin.H{"payout": payout, "wallet": wallet})
	}
}

// CreditRequest is a manual wallet adjustment
type CreditRequest struct {
	AmountRub *float64 `json:"amount_rub" binding:"required"` // Fractions are floored
	Note      string   `json:"note"`                          // Shown in the ledger
}

// CreditWalletHandler credits a doctor's wallet
func CreditWalletHandler(l *ledger.Ledger, cache *utils.Cache) gin.HandlerFunc {
	return func(c *gin.Context) {
		doctorID, ok := paramID(c, "doctorId")
		if !ok {
			return
		}
		var req CreditRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			badRequest(c, "amount_rub is required")
			return
		}
		amount, err := ledger.FloorAmount(*req.AmountRub)
		if err != nil {
			fail(c, err)
			return
		}
		ctx := c.Request.Context()
		wallet, err := l.Credit(ctx, doctorID, amount, req.Note)
		if err != nil {
			fail(c, err)
			return
		}
		_ = cache.InvalidateWallet(ctx, doctorID) // Invalidate wallet cache
		respond(c, http.StatusOK, gin.H{"wallet": wallet})
	}
}

// DoctorStatusRequest moderates a doctor
type DoctorStatusRequest struct {
	Status string `json:"status" binding:"required"` // approved or rejected
}

// SetDoctorStatusHandler approves or rejects a doctor profile
func SetDoctorStatusHandler(dir *doctors.Directory) gin.HandlerFunc {
	return func(c *gin.Context) {
		id, ok := paramID(c, "id")
		if !ok {
			return
		}
		var req DoctorStatusRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			badRequest(c, "status is required")
			return
		}
		doctor, err := dir.SetStatus(c.Request.Context(), id, req.Status)
		if err != nil {
			fail(c, err)
			return
		}
		respond(c, http.StatusOK, gin.H{"doctor": doctor})
	}
}

// MarkPaidHandler records a consultation payment. Shared by the admin and provider routes.
func MarkPaidHandler(svc *consultation.Service) gin.HandlerFunc {
	return func(c *gin.Context) {
		id, ok := paramID(c, "id")
		if !ok {
			return
		}
		cons, err := svc.MarkPaid(c.Request.Context(), id)
		if err != nil {
			fail(c, err)
			return
		}
		respond(c, http.StatusOK, gin.H{"consultation": cons})
	}
}

// DeleteAnswerHandler soft-deletes an answer
func DeleteAnswerHandler(svc *qa.Service) gin.HandlerFunc {
	return func(c *gin.Context) {
		id, ok := paramID(c, "id")
		if !ok {
			return
		}
		if err := svc.DeleteAnswer(c.Request.Context(), id); err != nil {
			fail(c, err)
			return
		}
		respond(c, http.StatusOK, gin.H{"deleted": id})
	}
}
