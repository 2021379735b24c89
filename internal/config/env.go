package config

import (
	"log"
	"os"
	"strconv"

	"github.com/joho/godotenv"
)

type Config struct {
	DatabaseURL  string
	Port         string
	JWTSecret    string
	AwsAccessKey string
	AwsSecretKey string
	AwsRegion    string
	BucketName   string
	AIAPIKey     string
	EmbedModel   string
	EmbedDim     int
	GenModel     string
	RedisAddr    string
	RedisPass    string
	RedisDB      int
	LogLevel     string
	LogFormat    string

	// Messaging provider send endpoint and bearer token.
	MsgSendURL   string
	MsgSendToken string

	// Tenant capacity defaults, applied when a business has no explicit plan values.
	MaxDocsPerBusiness   int
	MaxMessagesPerChat   int

	// Retrieval tunables.
	RetrieveBreadth int
	ReturnCap       int
	PerDocCap       int
	ScoreThreshold  float64

	// Ingestion tunables.
	ChunkTargetTokens int
	EmbedBatchSize    int
	MaxOpsPerCommit   int
}

// LoadConfig loads the environment variables and return config
func LoadConfig() *Config {

	_ = godotenv.Load()

	cfg := &Config{
		DatabaseURL:  getEnv("DATABASE_URL", ""),
		Port:         getEnv("PORT", "8080"),
		JWTSecret:    getEnv("JWT_SECRET", ""),
		AwsAccessKey: getEnv("AWS_ACCESS_KEY", ""),
		AwsSecretKey: getEnv("AWS_SECRET_KEY", ""),
		AwsRegion:    getEnv("AWS_REGION", "us-east-2"),
		BucketName:   getEnv("BUCKET_NAME", "nexdesk-sources"),
		AIAPIKey:     getEnv("GEMINI_API_KEY", ""),
		EmbedModel:   getEnv("EMBED_MODEL", "text-embedding-004"),
		EmbedDim:     getEnvInt("EMBED_DIM", 768),
		GenModel:     getEnv("GEN_MODEL", "gemini-1.5-flash"),
		RedisAddr:    getEnv("REDIS_ADDR", ""),
		RedisPass:    getEnv("REDIS_PASSWORD", ""),
		RedisDB:      getEnvInt("REDIS_DB", 0),
		LogLevel:     getEnv("LOG_LEVEL", "info"),
		LogFormat:    getEnv("LOG_FORMAT", "json"),

		MsgSendURL:   getEnv("MSG_SEND_URL", ""),
		MsgSendToken: getEnv("MSG_SEND_TOKEN", ""),

		MaxDocsPerBusiness: getEnvInt("MAX_DOCS_PER_BUSINESS", 50),
		MaxMessagesPerChat: getEnvInt("MAX_MESSAGES_PER_CHAT", 100),

		RetrieveBreadth: getEnvInt("RETRIEVE_BREADTH", 20),
		ReturnCap:       getEnvInt("RETURN_CAP", 8),
		PerDocCap:       getEnvInt("PER_DOC_CAP", 2),
		ScoreThreshold:  getEnvFloat("SCORE_THRESHOLD", 0.7),

		ChunkTargetTokens: getEnvInt("CHUNK_TARGET_TOKENS", 400),
		EmbedBatchSize:    getEnvInt("EMBED_BATCH_SIZE", 16),
		MaxOpsPerCommit:   getEnvInt("MAX_OPS_PER_COMMIT", 450),
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

func getEnvFloat(key string, def float64) float64 {
	v := getEnv(key, "")
	if v == "" {
		return def
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		log.Printf("WARN: %s=%q not a float, using default %g", key, v, def)
		return def
	}
	return f
}
