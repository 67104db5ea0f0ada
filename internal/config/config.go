package config

import (
	"os"      // For environment variables
	"strconv" // For string to int conversion
	"strings" // For splitting list values
	"time"    // For durations

	"github.com/joho/godotenv" // For loading .env files
)

const (
	defaultInitDataMaxAge = 24 * time.Hour   // How long a Telegram assertion stays valid
	defaultRequestTimeout = 30 * time.Second // Per-request deadline
	minRequestTimeout     = 25 * time.Second
	maxRequestTimeout     = 45 * time.Second
)

// Config holds the application configuration
type Config struct {
	AppPort          string        // Application port
	DBDriver         string        // mysql or sqlite
	DBUser           string        // Database user
	DBPassword       string        // Database password
	DBHost           string        // Database host
	DBPort           string        // Database port
	DBName           string        // Database name
	SQLitePath       string        // SQLite file, used when DBDriver is sqlite
	BotToken         string        // Telegram bot token, also the initData signing secret
	Admins           AdminSet      // Telegram ids allowed into /admin
	InitDataMaxAge   time.Duration // Maximum age of an accepted initData
	RequestTimeout   time.Duration // Deadline applied to every request
	RedisAddr        string        // Redis server address, empty means in-process cache
	RedisPass        string        // Redis password
	RedisDB          int           // Redis database number
	AttachmentSecret string        // HMAC secret for signed attachment links
	ProviderKeyHash  string        // bcrypt hash of the payment provider callback key
	NotifyEnabled    bool          // Send Telegram notifications
	CORSOrigins      []string      // Allowed Mini-App origins
	IsProd           bool          // Is production environment
}

// LoadConfig loads configuration from environment variables
func LoadConfig() *Config {
	_ = godotenv.Load() // Load .env file if present
	redisDB, _ := strconv.Atoi(os.Getenv("REDIS_DB"))
	return &Config{
		AppPort:          getEnv("APP_PORT", "8080"),
		DBDriver:         getEnv("DB_DRIVER", "mysql"),
		DBUser:           os.Getenv("DB_USER"),
		DBPassword:       os.Getenv("DB_PASSWORD"),
		DBHost:           os.Getenv("DB_HOST"),
		DBPort:           getEnv("DB_PORT", "3306"),
		DBName:           os.Getenv("DB_NAME"),
		SQLitePath:       getEnv("SQLITE_PATH", "medconsult.db"),
		BotToken:         os.Getenv("BOT_TOKEN"),
		Admins:           ParseAdminSet(os.Getenv("ADMIN_IDS")),
		InitDataMaxAge:   parseDuration(os.Getenv("INIT_DATA_MAX_AGE"), defaultInitDataMaxAge),
		RequestTimeout:   clampTimeout(parseDuration(os.Getenv("REQUEST_TIMEOUT"), defaultRequestTimeout)),
		RedisAddr:        os.Getenv("REDIS_ADDR"),
		RedisPass:        os.Getenv("REDIS_PASS"),
		RedisDB:          redisDB,
		AttachmentSecret: os.Getenv("ATTACHMENT_SECRET"),
		ProviderKeyHash:  os.Getenv("PROVIDER_KEY_HASH"),
		NotifyEnabled:    os.Getenv("NOTIFY_ENABLED") == "true",
		CORSOrigins:      splitList(os.Getenv("CORS_ORIGINS")),
		IsProd:           os.Getenv("IS_PROD") == "true",
	}
}

// DSN builds the MySQL data source name
func (c *Config) DSN() string {
	return c.DBUser + ":" + c.DBPassword + "@tcp(" + c.DBHost + ":" + c.DBPort + ")/" + c.DBName + "?parseTime=true"
}

// getEnv returns the variable or a fallback when it is unset
func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func parseDuration(raw string, fallback time.Duration) time.Duration {
	if raw == "" {
		return fallback
	}
	d, err := time.ParseDuration(raw)
	if err != nil || d <= 0 {
		return fallback
	}
	return d
}

func clampTimeout(d time.Duration) time.Duration {
	if d < minRequestTimeout {
		return minRequestTimeout
	}
	if d > maxRequestTimeout {
		return maxRequestTimeout
	}
	return d
}

func splitList(raw string) []string {
	var out []string
	for _, part := range strings.Split(raw, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}
