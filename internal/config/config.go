package config

import (
	"encoding/hex"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	Port        string
	GinMode     string
	BaseURL     string
	FrontendURL string
	CORSOrigins []string

	MongoURI string
	DBName   string

	// Redis Configuration
	RedisURL      string
	RedisPassword string
	RedisDB       int

	// JWT Token Secrets
	AccessSecret  string
	RefreshSecret string

	// Instagram / Graph API
	InstagramAppID       string
	InstagramAppSecret   string
	InstagramCallbackURL string
	WebhookVerifyToken   string
	GraphAPITimeout      time.Duration
	GraphAPIRPS          float64
	GraphAPIBurst        int

	// TokenEncryptionKey encrypts stored Instagram access tokens (32 bytes).
	TokenEncryptionKey []byte

	// HTTP rate limiting
	RateLimitReqs   int
	RateLimitWindow int

	// Sessions
	MaxConcurrentSessions int
	SessionIdleTimeout    time.Duration

	// Background processing
	WorkerConcurrency int
	TokenRefreshCron  string

	// Telemetry
	OTelEnabled     bool
	OTelEndpoint    string
	OTelSampleRatio float64
	LogLevel        string
}

func LoadConfig() (*Config, error) {
	// Load .env file if exists
	if _, err := os.Stat(".env"); err == nil {
		if err := godotenv.Load(); err != nil {
			return nil, fmt.Errorf("error loading .env file: %v", err)
		}
	}

	port := getEnv("PORT", "8080")
	frontendURL := getEnv("FRONTEND_URL", "http://localhost:3000")

	cfg := &Config{
		Port:        port,
		GinMode:     getEnv("GIN_MODE", "debug"),
		BaseURL:     getEnv("BASE_URL", "http://localhost:"+port),
		FrontendURL: frontendURL,
		CORSOrigins: strings.Split(getEnv("CORS_ORIGINS", frontendURL), ","),

		MongoURI: getEnv("MONGO_URI", "mongodb://localhost:27017/sociohiro"),
		DBName:   getEnv("DB_NAME", "sociohiro"),

		RedisURL:      getEnv("REDIS_URL", "localhost:6379"),
		RedisPassword: getEnv("REDIS_PASSWORD", ""),
		RedisDB:       getEnvInt("REDIS_DB", 0),

		AccessSecret:  getEnv("ACCESS_SECRET", ""),
		RefreshSecret: getEnv("REFRESH_SECRET", ""),

		InstagramAppID:       getEnv("INSTAGRAM_APP_ID", ""),
		InstagramAppSecret:   getEnv("INSTAGRAM_APP_SECRET", ""),
		InstagramCallbackURL: getEnv("INSTAGRAM_CALLBACK_URL", ""),
		WebhookVerifyToken:   getEnv("WEBHOOK_VERIFY_TOKEN", ""),
		GraphAPITimeout:      time.Duration(getEnvInt("GRAPH_API_TIMEOUT", 30)) * time.Second,
		GraphAPIRPS:          getEnvFloat64("GRAPH_API_RPS", 5),
		GraphAPIBurst:        getEnvInt("GRAPH_API_BURST", 10),

		RateLimitReqs:   getEnvInt("RATE_LIMIT_REQUESTS", 100),
		RateLimitWindow: getEnvInt("RATE_LIMIT_WINDOW", 60),

		MaxConcurrentSessions: getEnvInt("MAX_CONCURRENT_SESSIONS", 5),
		SessionIdleTimeout:    time.Duration(getEnvInt("SESSION_IDLE_TIMEOUT", 7*24*60)) * time.Minute,

		WorkerConcurrency: getEnvInt("WORKER_CONCURRENCY", 10),
		TokenRefreshCron:  getEnv("TOKEN_REFRESH_CRON", "0 3 * * *"),

		OTelEnabled:     getEnvBool("OTEL_ENABLED", false),
		OTelEndpoint:    getEnv("OTEL_ENDPOINT", "localhost:4317"),
		OTelSampleRatio: getEnvFloat64("OTEL_SAMPLE_RATIO", 0.1),
		LogLevel:        getEnv("LOG_LEVEL", ""),
	}

	if cfg.InstagramCallbackURL == "" {
		cfg.InstagramCallbackURL = strings.TrimRight(cfg.BaseURL, "/") + "/auth/instagram/callback"
	}

	key, err := parseKey(getEnv("TOKEN_ENCRYPTION_KEY", ""))
	if err != nil {
		return nil, err
	}
	cfg.TokenEncryptionKey = key

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// Validate checks the settings every process needs.
func (c *Config) Validate() error {
	if c.AccessSecret == "" {
		return fmt.Errorf("ACCESS_SECRET is required - set it in .env file")
	}

	if c.RefreshSecret == "" {
		return fmt.Errorf("REFRESH_SECRET is required - set it in .env file")
	}

	if c.InstagramAppID == "" || c.InstagramAppSecret == "" {
		return fmt.Errorf("INSTAGRAM_APP_ID and INSTAGRAM_APP_SECRET are required - set them in .env file")
	}

	if c.WebhookVerifyToken == "" {
		return fmt.Errorf("WEBHOOK_VERIFY_TOKEN is required - set it in .env file")
	}

	if len(c.TokenEncryptionKey) != 32 {
		return fmt.Errorf("TOKEN_ENCRYPTION_KEY is required and must be 32 bytes (raw or hex encoded)")
	}

	if c.MaxConcurrentSessions < 1 {
		return fmt.Errorf("MAX_CONCURRENT_SESSIONS must be at least 1")
	}

	return nil
}

// parseKey accepts a 64 character hex string or a raw 32 byte string.
func parseKey(value string) ([]byte, error) {
	if value == "" {
		return nil, nil
	}
	if len(value) == 64 {
		key, err := hex.DecodeString(value)
		if err != nil {
			return nil, fmt.Errorf("TOKEN_ENCRYPTION_KEY is not valid hex: %v", err)
		}
		return key, nil
	}
	return []byte(value), nil
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}

func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if boolValue, err := strconv.ParseBool(value); err == nil {
			return boolValue
		}
	}
	return defaultValue
}

func getEnvFloat64(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if floatValue, err := strconv.ParseFloat(value, 64); err == nil {
			return floatValue
		}
	}
	return defaultValue
}
