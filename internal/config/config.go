package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

const (
	StorageBackendFile  = "file"
	StorageBackendMongo = "mongo"

	LLMProviderREST  = "rest"
	LLMProviderGenAI = "genai"
)

type Config struct {
	Port         string
	GinMode      string
	CORSOrigins  []string
	MaxBodyBytes int64

	// Storage
	StorageBackend      string
	DataDir             string
	CollectionCacheSize int
	MongoURI            string
	DBName              string
	ReviewsDBName       string

	// Redis Configuration
	RedisURL        string
	RedisPassword   string
	RedisDB         int
	RateLimitReqs   int
	RateLimitWindow int

	// Scraper executables
	ScraperInterpreter string
	ScraperScriptsDir  string
	ScraperTimeout     time.Duration

	// LLM
	LLMProvider  string
	GeminiAPIKey string
	GeminiAPIURL string
	GeminiModel  string
	LLMRPM       int

	// Async queue
	QueueEnabled      bool
	WorkerConcurrency int

	// Events
	NATSURL     string
	NATSSubject string

	// Periodic refresh, "platform:term;platform:term"
	RefreshTargets  []string
	RefreshInterval time.Duration

	// Telemetry
	OTELEnabled  bool
	OTELEndpoint string
}

func LoadConfig() (*Config, error) {
	// Load .env file if exists
	if _, err := os.Stat(".env"); err == nil {
		if err := godotenv.Load(); err != nil {
			return nil, fmt.Errorf("error loading .env file: %v", err)
		}
	}

	cfg := &Config{
		Port:         getEnv("PORT", "8080"),
		GinMode:      getEnv("GIN_MODE", "debug"),
		CORSOrigins:  splitList(getEnv("CORS_ORIGINS", "http://localhost:3000,http://localhost:8080"), ","),
		MaxBodyBytes: getEnvInt64("MAX_BODY_BYTES", 1048576), // 1MB

		StorageBackend:      strings.ToLower(getEnv("STORAGE_BACKEND", StorageBackendFile)),
		DataDir:             getEnv("DATA_DIR", "./data"),
		CollectionCacheSize: getEnvInt("COLLECTION_CACHE_SIZE", 128),
		MongoURI:            getEnv("MONGO_URI", "mongodb://localhost:27017"),
		DBName:              getEnv("DB_NAME", "ecommerce_analytics"),
		ReviewsDBName:       getEnv("REVIEWS_DB_NAME", "ecommerce_reviews"),

		RedisURL:        getEnv("REDIS_URL", ""),
		RedisPassword:   getEnv("REDIS_PASSWORD", ""),
		RedisDB:         getEnvInt("REDIS_DB", 0),
		RateLimitReqs:   getEnvInt("RATE_LIMIT_REQUESTS", 20),
		RateLimitWindow: getEnvInt("RATE_LIMIT_WINDOW", 60),

		ScraperInterpreter: getEnv("SCRAPER_INTERPRETER", "python3"),
		ScraperScriptsDir:  getEnv("SCRAPER_SCRIPTS_DIR", "./scripts"),
		ScraperTimeout:     time.Duration(getEnvInt64("SCRAPER_TIMEOUT_MS", 300000)) * time.Millisecond, // 5 minutes

		LLMProvider:  strings.ToLower(getEnv("LLM_PROVIDER", LLMProviderREST)),
		GeminiAPIKey: getEnv("GEMINI_API_KEY", ""),
		GeminiAPIURL: getEnv("GEMINI_API_URL", "https://generativelanguage.googleapis.com/v1beta/models/gemini-1.5-pro:generateContent"),
		GeminiModel:  getEnv("GEMINI_MODEL", "gemini-1.5-pro"),
		LLMRPM:       getEnvInt("LLM_RPM", 10),

		QueueEnabled:      getEnvBool("QUEUE_ENABLED", false),
		WorkerConcurrency: getEnvInt("WORKER_CONCURRENCY", 4),

		NATSURL:     getEnv("NATS_URL", ""),
		NATSSubject: getEnv("NATS_SUBJECT", "reviews.scrape.events"),

		RefreshTargets:  splitList(getEnv("REFRESH_TARGETS", ""), ";"),
		RefreshInterval: getEnvDuration("REFRESH_INTERVAL", 6*time.Hour),

		OTELEnabled:  getEnvBool("OTEL_ENABLED", false),
		OTELEndpoint: getEnv("OTEL_ENDPOINT", "localhost:4317"),
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// Validate ensures all configuration values are coherent.
func (c *Config) Validate() error {
	if c.StorageBackend != StorageBackendFile && c.StorageBackend != StorageBackendMongo {
		return fmt.Errorf("STORAGE_BACKEND must be file or mongo")
	}
	if c.StorageBackend == StorageBackendFile && c.DataDir == "" {
		return fmt.Errorf("DATA_DIR is required for the file storage backend")
	}
	if c.LLMProvider != LLMProviderREST && c.LLMProvider != LLMProviderGenAI {
		return fmt.Errorf("LLM_PROVIDER must be rest or genai")
	}
	if c.ScraperTimeout <= 0 {
		return fmt.Errorf("SCRAPER_TIMEOUT_MS must be positive")
	}
	if c.ScraperInterpreter == "" {
		return fmt.Errorf("SCRAPER_INTERPRETER cannot be empty")
	}
	if c.RateLimitReqs <= 0 || c.RateLimitWindow <= 0 {
		return fmt.Errorf("rate limit requests and window must be positive")
	}
	if c.QueueEnabled && c.RedisURL == "" {
		return fmt.Errorf("REDIS_URL is required when QUEUE_ENABLED is set")
	}
	if len(c.RefreshTargets) > 0 && c.RefreshInterval <= 0 {
		return fmt.Errorf("REFRESH_INTERVAL must be positive")
	}
	return nil
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

func getEnvInt64(key string, defaultValue int64) int64 {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.ParseInt(value, 10, 64); err == nil {
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

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return defaultValue
}

func splitList(value, sep string) []string {
	var out []string
	for _, part := range strings.Split(value, sep) {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
