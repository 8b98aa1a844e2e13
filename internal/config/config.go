package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
)

type Config struct {
	MongoURI string
	DBName   string
	Port     string
	GinMode  string

	CORSOrigins []string

	// Chunking parameters. Boundaries must be reproducible for a given
	// input, so these are fixed at startup.
	ChunkSize    int // target tokens per chunk
	ChunkOverlap int // tokens shared across adjacent chunk boundaries

	// Embeddings configuration
	EmbeddingsProvider    string // "google" (default), "openai"
	GoogleEmbeddingsModel string // e.g., "text-embedding-004"
	OpenAIAPIKey          string
	OpenAIAPIBase         string
	OpenAIEmbeddingsModel string
	VectorDimensions      int

	// Generative model configuration
	GeminiAPIKey string
	GeminiModel  string
	GeminiTier   string
	LLMMaxTokens int

	MaxDownloadSize int64

	// Retrieval / conversation bounds
	DefaultTopK        int
	MaxTopK            int
	HistoryMaxTurns    int
	HistoryTokenBudget int

	// Ingestion
	IngestConcurrency int
	SweepCron         string // cron spec for the re-ingestion sweep, empty disables

	// Redis Configuration (rate limiting + task queue)
	RedisURL        string
	RedisPassword   string
	RedisDB         int
	RateLimitReqs   int
	RateLimitWindow int

	// Telemetry
	OTLPEndpoint     string
	TracingEnabled   bool
	TraceSampleRatio float64
}

func LoadConfig() (*Config, error) {
	// Load .env file if exists
	if _, err := os.Stat(".env"); err == nil {
		if err := godotenv.Load(); err != nil {
			return nil, fmt.Errorf("error loading .env file: %v", err)
		}
	}

	cfg := &Config{
		MongoURI:    getEnv("MONGO_URI", "mongodb://localhost:27017/guidance_navigator"),
		DBName:      getEnv("DB_NAME", "guidance_navigator"),
		Port:        getEnv("PORT", "8080"),
		GinMode:     getEnv("GIN_MODE", "debug"),
		CORSOrigins: strings.Split(getEnv("CORS_ORIGINS", "http://localhost:3000,http://127.0.0.1:3000"), ","),

		ChunkSize:    getEnvInt("CHUNK_SIZE", 512),
		ChunkOverlap: getEnvInt("CHUNK_OVERLAP", 50),

		EmbeddingsProvider:    getEnv("EMBEDDINGS_PROVIDER", "google"),
		GoogleEmbeddingsModel: getEnv("GOOGLE_EMBEDDINGS_MODEL", "text-embedding-004"),
		OpenAIAPIKey:          getEnv("OPENAI_API_KEY", ""),
		OpenAIAPIBase:         getEnv("OPENAI_API_BASE", "https://api.openai.com/v1"),
		OpenAIEmbeddingsModel: getEnv("OPENAI_EMBEDDINGS_MODEL", "text-embedding-3-small"),
		VectorDimensions:      getEnvInt("VECTOR_DIM", 0),

		GeminiAPIKey: getEnv("GEMINI_API_KEY", ""),
		GeminiModel:  getEnv("GEMINI_MODEL", "gemini-2.0-flash"),
		GeminiTier:   getEnv("GEMINI_TIER", "free"),
		LLMMaxTokens: getEnvInt("LLM_MAX_TOKENS", 4096),

		MaxDownloadSize: getEnvInt64("MAX_DOWNLOAD_SIZE", 104857600), // 100MB cap per PDF

		DefaultTopK:        getEnvInt("DEFAULT_TOP_K", 5),
		MaxTopK:            getEnvInt("MAX_TOP_K", 20),
		HistoryMaxTurns:    getEnvInt("HISTORY_MAX_TURNS", 10),
		HistoryTokenBudget: getEnvInt("HISTORY_TOKEN_BUDGET", 4096),

		IngestConcurrency: getEnvInt("INGEST_CONCURRENCY", 4),
		SweepCron:         getEnv("SWEEP_CRON", ""),

		// Redis Configuration
		RedisURL:        getEnv("REDIS_URL", "localhost:6379"),
		RedisPassword:   getEnv("REDIS_PASSWORD", ""),
		RedisDB:         getEnvInt("REDIS_DB", 0),
		RateLimitReqs:   getEnvInt("RATE_LIMIT_REQUESTS", 100),
		RateLimitWindow: getEnvInt("RATE_LIMIT_WINDOW", 60),

		OTLPEndpoint:     getEnv("OTLP_ENDPOINT", "localhost:4317"),
		TracingEnabled:   getEnvBool("TRACING_ENABLED", false),
		TraceSampleRatio: getEnvFloat64("TRACE_SAMPLE_RATIO", 0.1),
	}

	// Validate required fields
	if cfg.GeminiAPIKey == "" {
		return nil, fmt.Errorf("GEMINI_API_KEY is required - set it in .env file")
	}

	// Queries must be embedded in the exact space used at ingestion, so the
	// dimension is pinned per provider and a mismatch is a startup error.
	switch cfg.EmbeddingsProvider {
	case "google", "":
		if cfg.VectorDimensions == 0 {
			cfg.VectorDimensions = 768
		}
	case "openai":
		if cfg.OpenAIAPIKey == "" {
			return nil, fmt.Errorf("OPENAI_API_KEY is required for openai embeddings")
		}
		if cfg.VectorDimensions == 0 {
			cfg.VectorDimensions = 1536
		}
	default:
		return nil, fmt.Errorf("unknown embeddings provider: %s", cfg.EmbeddingsProvider)
	}

	if cfg.ChunkOverlap >= cfg.ChunkSize {
		return nil, fmt.Errorf("CHUNK_OVERLAP (%d) must be smaller than CHUNK_SIZE (%d)", cfg.ChunkOverlap, cfg.ChunkSize)
	}

	return cfg, nil
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

func getEnvFloat64(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if floatValue, err := strconv.ParseFloat(value, 64); err == nil {
			return floatValue
		}
	}
	return defaultValue
}
