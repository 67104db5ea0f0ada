package api

import (
	"time" // CORS cache duration

	"medconsult/internal/config"       // Configuration
	"medconsult/internal/consultation" // Consultation lifecycle
	"medconsult/internal/doctors"      // Doctor profiles
	"medconsult/internal/ledger"       // Wallet ledger
	"medconsult/internal/middleware"   // Custom middleware
	"medconsult/internal/qa"           // Question board
	"medconsult/internal/utils"        // Utility functions

	"github.com/gin-contrib/cors" // CORS for the Mini-App origin
	"github.com/gin-gonic/gin"    // Gin web framework
	"gorm.io/gorm"                // GORM ORM library
)

// Deps is everything the router needs
type Deps struct {
	Config   *config.Config
	DB       *gorm.DB
	Cache    *utils.Cache
	Verifier *utils.InitDataVerifier
	Notifier consultation.Notifier
}

// NewRouter builds the gin engine with every route
func NewRouter(d Deps) *gin.Engine {
	cfg := d.Config
	r := gin.Default() // Gin router instance

	// Allow the Mini-App origins
	if len(cfg.CORSOrigins) > 0 {
		r.Use(cors.New(cors.Config{
			AllowOrigins: cfg.CORSOrigins,
			AllowMethods: []string{"GET", "POST", "DELETE", "OPTIONS"},
			AllowHeaders: []string{"Origin", "Content-Type", "Authorization", middleware.InitDataHeader},
			MaxAge:       12 * time.Hour,
		}))
	}
	r.Use(middleware.TimeoutMiddleware(cfg.RequestTimeout))

	dir := doctors.NewDirectory(d.DB)
	l := ledger.New(d.DB)
	board := qa.NewService(d.DB, cfg.AttachmentSecret)
	consultations := consultation.NewService(d.DB, d.Notifier)

	// Every user route re-verifies the Telegram assertion
	user := r.Group("")
	user.Use(middleware.InitDataAuthMiddleware(d.Verifier), middleware.ViewerMiddleware(dir))

	// Doctor routes
	user.POST("/doctors", RegisterDoctorHandler(dir)) // Registration endpoint
	user.GET("/doctors/me", MyDoctorHandler(dir))     // Own profile endpoint

	// Question routes
	user.POST("/questions", CreateQuestionHandler(board))
	user.GET("/questions/:id", GetQuestionHandler(board))
	user.GET("/questions/:id/attachments", QuestionAttachmentsHandler(board))
	user.POST("/questions/:id/answers", SubmitAnswerHandler(board))
	user.POST("/answers/:id/comments", PostCommentHandler(board))
	user.GET("/attachments/:token", ResolveAttachmentHandler(board))

	// Wallet routes (doctors only)
	walletGroup := user.Group("/wallet")
	walletGroup.GET("", GetWalletHandler(l, d.Cache))              // Get wallet endpoint
	walletGroup.GET("/transactions", WalletTransactionsHandler(l)) // Transaction history endpoint
	walletGroup.GET("/payouts", WalletPayoutsHandler(l))           // Payout history endpoint
	walletGroup.POST("/payouts", RequestPayoutHandler(l, d.Cache)) // Payout request endpoint

	// Consultation routes
	cg := user.Group("/consultations")
	cg.POST("", CreateConsultationHandler(consultations))
	cg.GET("", ListConsultationsHandler(consultations))
	cg.GET("/:id", GetConsultationHandler(consultations, cfg.Admins))
	cg.POST("/:id/submit", TransitionHandler(consultations.Submit))
	cg.POST("/:id/accept", TransitionHandler(consultations.Accept))
	cg.POST("/:id/decline", TransitionHandler(consultations.Decline))
	cg.POST("/:id/close", CloseConsultationHandler(consultations, d.Cache))
	cg.GET("/:id/messages", MessagesHandler(consultations, cfg.Admins))
	cg.POST("/:id/messages", PostMessageHandler(consultations))

	// Admin routes (protected, admin only)
	adminGroup := user.Group("/admin")
	adminGroup.Use(middleware.AdminOnlyMiddleware(cfg.Admins))
	adminGroup.GET("/payouts", ListPayoutsHandler(l, d.Cache))
	adminGroup.POST("/payouts/:id/settle", SettlePayoutHandler(l, d.Cache))
	adminGroup.GET("/transactions", ListTransactionsHandler(l, d.Cache))
	adminGroup.POST("/wallets/:doctorId/credit", CreditWalletHandler(l, d.Cache))
	adminGroup.POST("/doctors/:id/status", SetDoctorStatusHandler(dir))
	adminGroup.POST("/consultations/:id/paid", MarkPaidHandler(consultations))
	adminGroup.DELETE("/answers/:id", DeleteAnswerHandler(board))

	// Payment provider callbacks, authenticated by shared key instead of initData
	provider := r.Group("/provider")
	provider.Use(middleware.ProviderKeyMiddleware(cfg.ProviderKeyHash))
	provider.POST("/payouts/:reference/settle", ProviderSettleHandler(l, d.Cache))
	provider.POST("/consultations/:id/paid", MarkPaidHandler(consultations))

	return r
}
