package api

import (
	"net/http" // HTTP status codes

	"medconsult/internal/domain"     // Importing domain models
	"medconsult/internal/ledger"     // Wallet ledger
	"medconsult/internal/middleware" // Request viewer
	"medconsult/internal/policy"     // Access rules
	"medconsult/internal/utils"      // Utility functions

	"github.com/gin-gonic/gin"   // Gin web framework
	"github.com/sirupsen/logrus" // Logging library
)

// currentDoctor returns the caller's doctor profile or writes ROLE_DENIED
func currentDoctor(c *gin.Context) (*domain.Doctor, bool) {
	viewer := middleware.Viewer(c)
	if viewer.Doctor == nil {
		fail(c, domain.ErrRoleDenied.WithHint("doctor profile required"))
		return nil, false
	}
	return viewer.Doctor, true
}

// GetWalletHandler returns the wallet of the calling doctor
func GetWalletHandler(l *ledger.Ledger, cache *utils.Cache) gin.HandlerFunc {
	return func(c *gin.Context) {
		doctor, ok := currentDoctor(c)
		if !ok {
			return
		}
		ctx := c.Request.Context()                           // Request scoped context
		cacheKey := utils.WalletCacheKey(doctor.ID)          // Cache key for wallet
		var wallet domain.Wallet                             // Wallet struct to hold data
		found, err := cache.GetCache(ctx, cacheKey, &wallet) // Try to get from cache
		// If found in cache, return it
		if err == nil && found {
			respond(c, http.StatusOK, gin.H{"wallet": wallet, "cached": true})
			return
		}
		w, err := l.Wallet(ctx, doctor.ID) // If not in cache, fetch from DB
		if err != nil {
			fail(c, err)
			return
		}
		_ = cache.SetCache(ctx, cacheKey, w, utils.DefaultCacheTTL) // Cache the wallet
		respond(c, http.StatusOK, gin.H{"wallet": w, "cached": false})
	}
}

// WalletTransactionsHandler returns the calling doctor's ledger entries, newest first
func WalletTransactionsHandler(l *ledger.Ledger) gin.HandlerFunc {
	return func(c *gin.Context) {
		doctor, ok := currentDoctor(c)
		if !ok {
			return
		}
		page := parsePagination(c)
		txs, total, err := l.Transactions(c.Request.Context(), doctor.ID, page.Offset(), page.PageSize)
		if err != nil {
			fail(c, err)
			return
		}
		respond(c, http.StatusOK, page.body("transactions", txs, total))
	}
}

// WalletPayoutsHandler returns the calling doctor's payout requests
func WalletPayoutsHandler(l *ledger.Ledger) gin.HandlerFunc {
	return func(c *gin.Context) {
		doctor, ok := currentDoctor(c)
		if !ok {
			return
		}
		page := parsePagination(c)
		filter := ledger.PayoutFilter{DoctorID: doctor.ID, Status: c.Query("status")}
		payouts, total, err := l.Payouts(c.Request.Context(), filter, page.Offset(), page.PageSize)
		if err != nil {
			fail(c, err)
			return
		}
		respond(c, http.StatusOK, page.body("payouts", payouts, total))
	}
}

// PayoutRequest is the body of a payout request
type PayoutRequest struct {
	AmountRub   *float64 `json:"amount_rub" binding:"required"`  // Fractions are floored
	Destination string   `json:"destination" binding:"required"` // Card or account
}

// RequestPayoutHandler moves funds from balance to pending for the calling doctor
func RequestPayoutHandler(l *ledger.Ledger, cache *utils.Cache) gin.HandlerFunc {
	return func(c *gin.Context) {
		viewer := middleware.Viewer(c)
		if err := policy.CanRequestPayout(viewer); err != nil {
			fail(c, err)
			return
		}
		var req PayoutRequest // Bind JSON request to struct
		if err := c.ShouldBindJSON(&req); err != nil {
			badRequest(c, "amount_rub and destination are required")
			return
		}
		amount, err := ledger.FloorAmount(*req.AmountRub)
		if err != nil {
			fail(c, err)
			return
		}
		ctx := c.Request.Context()
		payout, wallet, err := l.RequestPayout(ctx, viewer.Doctor.ID, amount, req.Destination)
		if err != nil {
			fail(c, err)
			return
		}
		_ = cache.InvalidateWallet(ctx, viewer.Doctor.ID) // Invalidate wallet cache
		logrus.WithFields(logrus.Fields{
			"doctor_id":  viewer.Doctor.ID,
			"payout_id":  payout.ID,
			"amount_rub": amount,
		}).Info("Payout requested via API")
		respond(c, http.StatusCreated, gin.H{"payout": payout, "wallet": wallet})
	}
}
