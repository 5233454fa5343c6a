// Package config provides application configuration loaded from environment variables.
package config

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// responseMargin is the part of HTTP_WRITE_TIMEOUT kept for writing the response after the handler deadline.
const responseMargin = 10 * time.Second

// minPipelineBudget is the time a synchronous analysis needs after transcription finishes.
const minPipelineBudget = 2 * time.Minute

// ErrMissingRequired is returned by Load when one or more required variables are unset.
var ErrMissingRequired = errors.New("required environment variables are not set")

// Config holds all application configuration.
type Config struct {
	DatabaseURL string
	Port        string
	APIKey      string
	LogLevel    string

	// Speech-to-text vendor (Gladia v2).
	GladiaAPIKey              string
	GladiaBaseURL             string
	TranscriptionPollInterval time.Duration
	TranscriptionMaxWait      time.Duration
	TranscriptionMaxPolls     int
	TranscriptSnapshotPath    string

	// OpenAI is used for chat, image generation and (by default) embeddings.
	OpenAIAPIKey       string
	OpenAIOrganization string
	OpenAIProject      string
	ChatModel          string
	RAGChatModel       string
	ImageModel         string
	LLMRateLimit       float64

	// Embeddings: EMBEDDING_PROVIDER selects openai or google.
	EmbeddingProvider   string
	EmbeddingModel      string
	EmbeddingDimensions int
	GoogleAPIKey        string

	// Vector store.
	VectorCollection string
	RAGTopK          int
	RAGAnswerFormat  string

	// Topic pipeline.
	PostAuthorID       string
	PostLimit          int
	TopicMinSize       int
	TopicComponents    int
	TopicKeywordsCount int
	TopicSeed          int64
	PromptsFile        string

	// Object store (S3 compatible).
	MinioEndpoint  string
	MinioAccessKey string
	MinioSecretKey string
	MinioBucket    string
	MinioUseSSL    bool

	// HTTP server. MaxRequestBodyBytes caps audio uploads, MaxJSONBodyBytes every other body.
	MaxRequestBodyBytes int64
	MaxJSONBodyBytes    int64
	HTTPWriteTimeout    time.Duration

	// River job queue.
	RiverWorkers     int
	RiverMaxAttempts int

	// Observability. Empty exporter values disable the signal.
	OtelTracesExporter  string
	OtelMetricsExporter string
}

// getEnv retrieves an environment variable or returns a default value.
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getEnvAsInt retrieves an environment variable as an integer or returns a default value.
func getEnvAsInt(key string, defaultValue int) int {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	value, err := strconv.Atoi(valueStr)
	if err != nil {
		return defaultValue
	}
	return value
}

// getEnvAsFloat retrieves an environment variable as a float or returns a default value.
func getEnvAsFloat(key string, defaultValue float64) float64 {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	value, err := strconv.ParseFloat(valueStr, 64)
	if err != nil {
		return defaultValue
	}
	return value
}

// getEnvAsBool retrieves an environment variable as a bool or returns a default value.
func getEnvAsBool(key string, defaultValue bool) bool {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	value, err := strconv.ParseBool(valueStr)
	if err != nil {
		return defaultValue
	}
	return value
}

// getEnvAsDuration parses a Go duration string (e.g. "1s", "30m") or returns a default value.
func getEnvAsDuration(key string, defaultValue time.Duration) time.Duration {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	value, err := time.ParseDuration(valueStr)
	if err != nil {
		return defaultValue
	}
	return value
}

// requiredKeys are the variables without which no vendor call can be made.
var requiredKeys = []string{
	"DATABASE_URL",
	"OPENAI_API_KEY",
	"GLADIA_API_KEY",
	"PGVECTOR_COLLECTION",
	"POST_AUTHOR_ID",
	"MINIO_ENDPOINT",
	"MINIO_ACCESS_KEY",
	"MINIO_SECRET_KEY",
	"MINIO_BUCKET",
}

// Load reads configuration from environment variables and returns a Config struct.
// It automatically loads .env file if it exists.
// Every key in requiredKeys must be set; the error lists all of the missing ones.
func Load() (*Config, error) {
	return LoadRequiring(requiredKeys...)
}

// LoadRequiring is Load with a caller-chosen set of required keys.
// insightctl uses it so that e.g. transcribe only needs GLADIA_API_KEY.
func LoadRequiring(required ...string) (*Config, error) {
	// Load .env file if it exists. Skip logging when absent (e.g. env from secrets/parameter store).
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		slog.Warn("Failed to load .env file", "error", err)
	}

	var missing []string
	for _, key := range required {
		if os.Getenv(key) == "" {
			missing = append(missing, key)
		}
	}

	if len(missing) > 0 {
		return nil, fmt.Errorf("%w: %s", ErrMissingRequired, strings.Join(missing, ", "))
	}

	cfg := &Config{
		DatabaseURL: os.Getenv("DATABASE_URL"),
		Port:        getEnv("PORT", "8080"),
		APIKey:      os.Getenv("API_KEY"),
		LogLevel:    getEnv("LOG_LEVEL", "info"),

		GladiaAPIKey:              os.Getenv("GLADIA_API_KEY"),
		GladiaBaseURL:             strings.TrimSuffix(getEnv("GLADIA_BASE_URL", "https://api.gladia.io"), "/"),
		TranscriptionPollInterval: getEnvAsDuration("TRANSCRIPTION_POLL_INTERVAL", time.Second),
		TranscriptionMaxWait:      getEnvAsDuration("TRANSCRIPTION_MAX_WAIT", 10*time.Minute),
		TranscriptionMaxPolls:     getEnvAsInt("TRANSCRIPTION_MAX_POLLS", 600),
		TranscriptSnapshotPath:    getEnv("TRANSCRIPT_SNAPSHOT_PATH", "output.csv"),

		OpenAIAPIKey:       os.Getenv("OPENAI_API_KEY"),
		OpenAIOrganization: os.Getenv("OPEN_AI_ORGANIZATION_ID"),
		OpenAIProject:      os.Getenv("OPEN_AI_PROJECT_ID"),
		ChatModel:          getEnv("CHAT_MODEL", "gpt-3.5-turbo"),
		RAGChatModel:       getEnv("RAG_CHAT_MODEL", "gpt-4o"),
		ImageModel:         getEnv("IMAGE_MODEL", "dall-e-3"),
		LLMRateLimit:       getEnvAsFloat("LLM_RATE_LIMIT", 5),

		EmbeddingProvider:   strings.ToLower(getEnv("EMBEDDING_PROVIDER", "openai")),
		EmbeddingModel:      getEnv("EMBEDDING_MODEL", "text-embedding-3-large"),
		EmbeddingDimensions: getEnvAsInt("EMBEDDING_DIMENSIONS", 3072),
		GoogleAPIKey:        os.Getenv("GOOGLE_API_KEY"),

		VectorCollection: os.Getenv("PGVECTOR_COLLECTION"),
		RAGTopK:          getEnvAsInt("RAG_TOP_K", 20),
		RAGAnswerFormat:  strings.ToLower(getEnv("RAG_ANSWER_FORMAT", "text")),

		PostAuthorID:       os.Getenv("POST_AUTHOR_ID"),
		PostLimit:          getEnvAsInt("POST_LIMIT", 10),
		TopicMinSize:       getEnvAsInt("TOPIC_MIN_SIZE", 15),
		TopicComponents:    getEnvAsInt("TOPIC_COMPONENTS", 5),
		TopicKeywordsCount: getEnvAsInt("TOPIC_KEYWORDS", 10),
		TopicSeed:          int64(getEnvAsInt("TOPIC_SEED", 42)),
		PromptsFile:        os.Getenv("PROMPTS_FILE"),

		MinioEndpoint:  os.Getenv("MINIO_ENDPOINT"),
		MinioAccessKey: os.Getenv("MINIO_ACCESS_KEY"),
		MinioSecretKey: os.Getenv("MINIO_SECRET_KEY"),
		MinioBucket:    os.Getenv("MINIO_BUCKET"),
		MinioUseSSL:    getEnvAsBool("MINIO_USE_SSL", true),

		MaxRequestBodyBytes: int64(getEnvAsInt("MAX_REQUEST_BODY_BYTES", 100<<20)),
		MaxJSONBodyBytes:    int64(getEnvAsInt("MAX_JSON_BODY_BYTES", 1<<20)),
		HTTPWriteTimeout:    getEnvAsDuration("HTTP_WRITE_TIMEOUT", 15*time.Minute),

		RiverWorkers:     getEnvAsInt("RIVER_WORKERS", 2),
		RiverMaxAttempts: getEnvAsInt("RIVER_MAX_ATTEMPTS", 3),

		OtelTracesExporter:  os.Getenv("OTEL_TRACES_EXPORTER"),
		OtelMetricsExporter: getEnv("OTEL_METRICS_EXPORTER", "prometheus"),
	}

	// Snapshots default to output.csv in the working directory; "off" disables them.
	if strings.EqualFold(cfg.TranscriptSnapshotPath, "off") {
		cfg.TranscriptSnapshotPath = ""
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

func (c *Config) validate() error {
	positive := map[string]int{
		"TRANSCRIPTION_MAX_POLLS": c.TranscriptionMaxPolls,
		"EMBEDDING_DIMENSIONS":    c.EmbeddingDimensions,
		"RAG_TOP_K":               c.RAGTopK,
		"POST_LIMIT":              c.PostLimit,
		"TOPIC_MIN_SIZE":          c.TopicMinSize,
		"TOPIC_COMPONENTS":        c.TopicComponents,
		"TOPIC_KEYWORDS":          c.TopicKeywordsCount,
		"RIVER_WORKERS":           c.RiverWorkers,
		"RIVER_MAX_ATTEMPTS":      c.RiverMaxAttempts,
	}
	for key, value := range positive {
		if value <= 0 {
			return fmt.Errorf("%s must be a positive integer", key)
		}
	}

	if c.TranscriptionPollInterval <= 0 {
		return errors.New("TRANSCRIPTION_POLL_INTERVAL must be a positive duration")
	}

	if c.HTTPWriteTimeout <= responseMargin {
		return fmt.Errorf("HTTP_WRITE_TIMEOUT must be longer than %s", responseMargin)
	}

	if budget := c.RequestTimeout(); c.TranscriptionMaxWait+minPipelineBudget > budget {
		return fmt.Errorf("TRANSCRIPTION_MAX_WAIT (%s) plus %s for the post pipeline must fit in the %s request budget; raise HTTP_WRITE_TIMEOUT or lower TRANSCRIPTION_MAX_WAIT",
			c.TranscriptionMaxWait, minPipelineBudget, budget)
	}

	if c.LLMRateLimit <= 0 {
		return errors.New("LLM_RATE_LIMIT must be positive")
	}

	switch c.EmbeddingProvider {
	case "openai":
	case "google":
		if c.GoogleAPIKey == "" {
			return errors.New("GOOGLE_API_KEY is required when EMBEDDING_PROVIDER=google")
		}
	default:
		return fmt.Errorf("unsupported EMBEDDING_PROVIDER %q (want openai or google)", c.EmbeddingProvider)
	}

	switch c.RAGAnswerFormat {
	case "text", "html":
	default:
		return fmt.Errorf("unsupported RAG_ANSWER_FORMAT %q (want text or html)", c.RAGAnswerFormat)
	}

	return nil
}

// RequestTimeout is the deadline for API handlers: HTTP_WRITE_TIMEOUT less the time needed to send the response.
func (c *Config) RequestTimeout() time.Duration {
	return c.HTTPWriteTimeout - responseMargin
}
