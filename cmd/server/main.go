package main

import (
	"context" // context package is needed for Redis operations

	"medconsult/internal/api"          // Custom package for API handlers
	"medconsult/internal/config"       // Custom package for configuration
	"medconsult/internal/consultation" // Consultation notifier interface
	"medconsult/internal/db"           // Database connection
	"medconsult/internal/notify"       // Telegram notifications
	"medconsult/internal/utils"        // Cache and initData verification

	"github.com/gin-gonic/gin"     // Gin web framework
	"github.com/redis/go-redis/v9" // Redis client
	"github.com/sirupsen/logrus"   // Logrus for structured logging
)

// Main function to set up and run the server
func main() {
	cfg := config.LoadConfig() // Load configuration

	// Setup logger
	logrus.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	if cfg.IsProd {
		logrus.SetFormatter(&logrus.JSONFormatter{})
	}

	if cfg.BotToken == "" {
		logrus.Fatal("BOT_TOKEN is required") // initData cannot be verified without it
	}
	if cfg.Admins.Len() == 0 {
		logrus.Warn("ADMIN_IDS is empty, admin routes will deny everyone")
	}

	// Connect to the database
	gdb, err := db.Open(cfg)
	if err != nil {
		logrus.Fatalf("failed to connect to DB: %v", err) // Fatal error if DB connection fails
	}
	if cfg.DBDriver == "sqlite" {
		// Local runs migrate on start, MySQL deployments use cmd/migrate
		if err := db.Migrate(gdb); err != nil {
			logrus.Fatalf("failed to migrate: %v", err)
		}
	}

	// Setup cache: Redis when configured, in-process otherwise
	cache := utils.NewLocalCache()
	if cfg.RedisAddr != "" {
		redisClient := redis.NewClient(&redis.Options{
			Addr:     cfg.RedisAddr, // Redis server address
			Password: cfg.RedisPass, // Redis password
			DB:       cfg.RedisDB,   // Redis database number
		})
		// Test Redis connection
		if _, err := redisClient.Ping(context.Background()).Result(); err != nil {
			logrus.Fatalf("failed to connect to Redis: %v", err)
		}
		cache = utils.NewRedisCache(redisClient)
	}

	// Setup notifications
	var notifier consultation.Notifier = notify.Noop{}
	if cfg.NotifyEnabled {
		tg, err := notify.NewTelegramNotifier(cfg.BotToken)
		if err != nil {
			logrus.WithField("error", err.Error()).Warn("Telegram notifier unavailable, notifications disabled")
		} else {
			notifier = tg
		}
	}

	// Set Mode to Release if in production
	if cfg.IsProd {
		gin.SetMode(gin.ReleaseMode)
	}

	r := api.NewRouter(api.Deps{
		Config:   cfg,
		DB:       gdb,
		Cache:    cache,
		Verifier: utils.NewInitDataVerifier(cfg.BotToken, cfg.InitDataMaxAge),
		Notifier: notifier,
	})

	// Set trusted proxies for Gin
	if err := r.SetTrustedProxies([]string{"127.0.0.1"}); err != nil {
		logrus.Fatalf("failed to set trusted proxies: %v", err)
	}

	logrus.WithFields(logrus.Fields{
		"port":      cfg.AppPort,
		"db_driver": cfg.DBDriver,
		"admins":    cfg.Admins.Len(),
	}).Info("Server starting")
	if err := r.Run(":" + cfg.AppPort); err != nil { // Start the server on port cfg.AppPort
		logrus.Fatalf("server stopped: %v", err)
	}
}
