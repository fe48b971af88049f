package config

import (
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config holds application configuration.
type Config struct {
	AppName     string
	AppVersion  string
	Environment string

	HTTPAddr string

	AuthJWTSecret string
	AuthTokenTTL  time.Duration

	DBType            string
	DBHost            string
	DBPort            string
	DBName            string
	DBUser            string
	DBPassword        string
	DBSSLMode         string
	DBMaxIdleConn     int
	DBMaxOpenConn     int
	DBConnMaxLifetime int

	LLM       LLMConfig
	RateLimit RateLimitConfig

	WebhookSecret string
}

// LLMConfig configures the upstream generation endpoint.
type LLMConfig struct {
	BaseURL      string
	APIKey       string
	Model        string
	MaxTokens    int
	Temperature  float32
	SystemPrompt string
}

// RateLimitConfig configures the redis-backed generation limiter.
type RateLimitConfig struct {
	Enabled       bool
	RedisAddr     string
	RedisPassword string
	RedisDB       int

	GenerateRate  float64
	GenerateBurst int

	UserLockTTLSeconds int
}

// Load loads configuration from environment variables and .env file.
func Load() Config {
	_ = godotenv.Load()

	cfg := Config{
		AppName:     getenv("APP_SERVICE", "inkwise"),
		AppVersion:  getenv("APP_VERSION", "0.1.0"),
		Environment: getenv("ENVIRONMENT", "development"),

		HTTPAddr: getenv("HTTP_ADDR", ":8080"),

		AuthJWTSecret: strings.TrimSpace(getenv("AUTH_JWT_SECRET", "")),
		AuthTokenTTL:  time.Duration(getenvInt("AUTH_TOKEN_TTL_MINUTES", 60)) * time.Minute,

		DBType:            getenv("DATABASE_TYPE", "postgres"),
		DBHost:            getenv("DATABASE_HOST", "localhost"),
		DBPort:            getenv("DATABASE_PORT", "5432"),
		DBName:            getenv("DATABASE_NAME", "inkwise"),
		DBUser:            getenv("DATABASE_USER", "postgres"),
		DBPassword:        getenv("DATABASE_PASSWORD", ""),
		DBSSLMode:         getenv("DATABASE_SSLMODE", "disable"),
		DBMaxIdleConn:     getenvInt("DATABASE_MAX_IDLE_CONN", 5),
		DBMaxOpenConn:     getenvInt("DATABASE_MAX_OPEN_CONN", 20),
		DBConnMaxLifetime: getenvInt("DATABASE_CONN_MAX_LIFETIME", 3600),

		LLM: LLMConfig{
			BaseURL:      getenv("LLM_BASE_URL", "https://openrouter.ai/api/v1"),
			APIKey:       strings.TrimSpace(getenv("LLM_API_KEY", "")),
			Model:        getenv("LLM_MODEL", "mistralai/mistral-small-3.2-24b-instruct:free"),
			MaxTokens:    getenvInt("LLM_MAX_TOKENS", 1024),
			Temperature:  getenvFloat32("LLM_TEMPERATURE", 0.7),
			SystemPrompt: getenv("LLM_SYSTEM_PROMPT", defaultSystemPrompt),
		},

		RateLimit: RateLimitConfig{
			Enabled:            getenvBool("RATE_LIMIT_ENABLED", false),
			RedisAddr:          strings.TrimSpace(getenv("RATE_LIMIT_REDIS_ADDR", "")),
			RedisPassword:      getenv("RATE_LIMIT_REDIS_PASSWORD", ""),
			RedisDB:            getenvInt("RATE_LIMIT_REDIS_DB", 0),
			GenerateRate:       getenvFloat64("RATE_LIMIT_GENERATE_RATE", 1),
			GenerateBurst:      getenvInt("RATE_LIMIT_GENERATE_BURST", 5),
			UserLockTTLSeconds: getenvInt("RATE_LIMIT_USER_LOCK_TTL", 120),
		},

		WebhookSecret: strings.TrimSpace(getenv("WEBHOOK_SECRET", "")),
	}

	return cfg
}

const defaultSystemPrompt = "You are a helpful writing assistant. Answer concisely and format responses as plain text."

func getenv(key, def string) string {
	if value := os.Getenv(key); strings.TrimSpace(value) != "" {
		return value
	}
	return def
}

func getenvInt(key string, def int) int {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return def
	}
	value, err := strconv.Atoi(raw)
	if err != nil {
		return def
	}
	return value
}

func getenvBool(key string, def bool) bool {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return def
	}
	value, err := strconv.ParseBool(raw)
	if err != nil {
		return def
	}
	return value
}

func getenvFloat64(key string, def float64) float64 {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return def
	}
	value, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		return def
	}
	return value
}

func getenvFloat32(key string, def float32) float32 {
	return float32(getenvFloat64(key, float64(def)))
}
