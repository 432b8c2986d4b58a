package config

import (
	"log"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	DatabaseURL  string
	AwsAccessKey string
	AwsSecretKey string
	AwsRegion    string
	BucketName   string
	AIAPIKey     string
	EmbedModel   string
	EmbedDim     int
	GenModel     string
	Port         string
	LogLevel     string
	LogFormat    string

	Ingest IngestConfig
}

// IngestConfig carries the ingestion pipeline tuning knobs.
//
// TimeBudget must stay safely below the caller's own execution ceiling so a
// run always has room for one in-flight embed plus one flush before being
// killed.
type IngestConfig struct {
	MaxChunkSize   int           // characters per chunk
	ChunkOverlap   int           // prose overlap carried between chunks
	MinChunkChars  int           // chunks trimmed below this are dropped
	MaxChunks      int           // safety cap on chunks per document
	CatalogRecords int           // records per chunk in catalog mode
	MaxChunkTokens int           // estimated-token ceiling before skipping
	BatchSize      int           // chunk records per storage write
	TimeBudget     time.Duration // wall-clock budget per run
	MaxAttempts    int           // embed attempts per chunk
	RetryBaseDelay time.Duration // first backoff delay, doubles per attempt
	EmbedWorkers   int           // concurrent embed calls per window
}

// LoadConfig loads the environment variables and returns config
func LoadConfig() *Config {

	_ = godotenv.Load()

	cfg := &Config{
		DatabaseURL:  getEnv("DATABASE_URL", ""),
		AwsAccessKey: getEnv("AWS_ACCESS_KEY", ""),
		AwsSecretKey: getEnv("AWS_SECRET_KEY", ""),
		AwsRegion:    getEnv("AWS_REGION", "us-east-2"),
		BucketName:   getEnv("BUCKET_NAME", "inkwell-docs"),
		AIAPIKey:     getEnv("GEMINI_API_KEY", ""),
		EmbedModel:   getEnv("EMBED_MODEL", "text-embedding-004"),
		EmbedDim:     getEnvInt("EMBED_DIM", 768),
		GenModel:     getEnv("GEN_MODEL", "gemini-1.5-flash"),
		Port:         getEnv("PORT", "8080"),
		LogLevel:     getEnv("LOG_LEVEL", "info"),
		LogFormat:    getEnv("LOG_FORMAT", "text"),
		Ingest: IngestConfig{
			MaxChunkSize:   getEnvInt("INGEST_MAX_CHUNK_SIZE", 4000),
			ChunkOverlap:   getEnvInt("INGEST_CHUNK_OVERLAP", 100),
			MinChunkChars:  getEnvInt("INGEST_MIN_CHUNK_CHARS", 50),
			MaxChunks:      getEnvInt("INGEST_MAX_CHUNKS", 500),
			CatalogRecords: getEnvInt("INGEST_CATALOG_RECORDS", 20),
			MaxChunkTokens: getEnvInt("INGEST_MAX_CHUNK_TOKENS", 8000),
			BatchSize:      getEnvInt("INGEST_BATCH_SIZE", 50),
			TimeBudget:     getEnvDuration("INGEST_TIME_BUDGET", 50*time.Second),
			MaxAttempts:    getEnvInt("INGEST_EMBED_ATTEMPTS", 3),
			RetryBaseDelay: getEnvDuration("INGEST_RETRY_BASE_DELAY", time.Second),
			EmbedWorkers:   getEnvInt("INGEST_EMBED_WORKERS", 4),
		},
	}

	if cfg.DatabaseURL == "" {
		log.Fatal("DATABASE_URL not set")
	}

	return cfg
}

// Helper to read environment variables with a default fallback
func getEnv(key, fallback string) string {
	if value, exists := os.LookupEnv(key); exists {
		return value
	}
	return fallback
}

func getEnvInt(key string, def int) int {
	v := getEnv(key, "")
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		log.Printf("WARN: %s=%q not an int, using default %d", key, v, def)
		return def
	}
	return n
}

func getEnvDuration(key string, def time.Duration) time.Duration {
	v := getEnv(key, "")
	if v == "" {
		return def
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		log.Printf("WARN: %s=%q not a duration, using default %s", key, v, def)
		return def
	}
	return d
}
