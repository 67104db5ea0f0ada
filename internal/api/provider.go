package api

import (
	"net/http" // HTTP status codes

	"medconsult/internal/ledger" // Wallet ledger
	"medconsult/internal/utils"  // Utility functions

	"github.com/gin-gonic/gin"   // Gin web framework
	"github.com/sirupsen/logrus" // Logging library
)

// ProviderSettleHandler is the payment provider callback for payouts. The provider
// only knows the public reference. A repeated callback answers ALREADY_SETTLED.
func ProviderSettleHandler(l *ledger.Ledger, cache *utils.Cache) gin.HandlerFunc {
	return func(c *gin.Context) {
		reference := c.Param("reference")
		var req SettleRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			badRequest(c, "outcome is required")
			return
		}
		ctx := c.Request.Context()
		payout, _, err := l.SettlePayoutByReference(ctx, reference, req.Outcome)
		if err != nil {
			fail(c, err)
			return
		}
		_ = cache.InvalidateWallet(ctx, payout.DoctorID) // Invalidate wallet cache
		logrus.WithFields(logrus.Fields{
			"payout_id": payout.ID,
			"status":    payout.Status,
		}).Info("Provider settled payout")
		respond(c, http.StatusOK, gin.H{"reference": payout.Reference, "status": payout.Status})
	}
}
