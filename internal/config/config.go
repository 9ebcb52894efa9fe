package config

import (
	"fmt"
	"log"
	"os"
	"time"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
)

type Config struct {
	Port  string `envconfig:"PORT" default:"8000"`
	Debug bool   `envconfig:"DEBUG" default:"false"`

	// API_KEY guards the HTTP API when set.
	APIKey string `envconfig:"API_KEY"`

	OpenAIAPIKey              string  `envconfig:"OPENAI_API_KEY"`
	OpenAIBaseURL             string  `envconfig:"OPENAI_BASE_URL"`
	OpenAIModel               string  `envconfig:"OPENAI_MODEL" default:"gpt-3.5-turbo"`
	OpenAIEmbeddingModel      string  `envconfig:"OPENAI_EMBEDDING_MODEL" default:"text-embedding-ada-002"`
	OpenAIEmbeddingDimensions int     `envconfig:"OPENAI_EMBEDDING_DIMENSIONS" default:"1536"`
	OpenAITemperature         float32 `envconfig:"OPENAI_TEMPERATURE" default:"0.7"`
	// OpenAIMaxAttempts above 1 retries 429 and 5xx answers.
	OpenAIMaxAttempts         int     `envconfig:"OPENAI_MAX_ATTEMPTS" default:"1"`

	GmailCredentialsPath   string   `envconfig:"GMAIL_CREDENTIALS_PATH" default:"credentials.json"`
	GmailTokenPath         string   `envconfig:"GMAIL_TOKEN_PATH" default:"token.json"`
	GmailScopes            []string `envconfig:"GMAIL_SCOPES" default:"https://www.googleapis.com/auth/gmail.modify"`
	GmailUser              string   `envconfig:"GMAIL_USER" default:"me"`
	GmailInteractiveAuth   bool     `envconfig:"GMAIL_INTERACTIVE_AUTH" default:"true"`
	GmailRequestsPerSecond float64  `envconfig:"GMAIL_REQUESTS_PER_SECOND" default:"2"`

	// DatabaseURL switches policy storage and the similarity index to Postgres/pgvector.
	DatabaseURL    string `envconfig:"DATABASE_URL"`
	MigrationsPath string `envconfig:"MIGRATIONS_PATH" default:"migrations"`

	RedisURL string        `envconfig:"REDIS_URL" default:"redis://localhost:6379"`
	CacheTTL time.Duration `envconfig:"CACHE_TTL" default:"1h"`

	MaxBatchSize      int           `envconfig:"MAX_BATCH_SIZE" default:"10"`
	ProcessingDelay   time.Duration `envconfig:"PROCESSING_DELAY" default:"2s"`
	InboxMaxResults   int           `envconfig:"INBOX_MAX_RESULTS" default:"10"`
	InboxQuery        string        `envconfig:"INBOX_QUERY"`
	InboxMarkRead     bool          `envconfig:"INBOX_MARK_READ" default:"true"`
	InboxPollInterval time.Duration `envconfig:"INBOX_POLL_INTERVAL" default:"0s"`

	SearchTopK   int `envconfig:"SEARCH_TOP_K" default:"3"`
	ChunkSize    int `envconfig:"CHUNK_SIZE" default:"1000"`
	ChunkOverlap int `envconfig:"CHUNK_OVERLAP" default:"200"`

	// PolicySeed is a YAML document path or s3://bucket/key; empty uses the built-in policies.
	PolicySeed string `envconfig:"POLICY_SEED"`

	// AutoRespondPolicy is a Rego file deciding which inbox messages get a reply.
	AutoRespondPolicy string `envconfig:"AUTORESPOND_POLICY"`

	SentryDSN   string `envconfig:"SENTRY_DSN"`
	Environment string `envconfig:"ENVIRONMENT" default:"development"`

	S3Endpoint  string `envconfig:"S3_ENDPOINT"`
	S3AccessKey string `envconfig:"S3_ACCESS_KEY_ID"`
	S3SecretKey string `envconfig:"S3_SECRET_ACCESS_KEY"`
	S3Bucket    string `envconfig:"S3_BUCKET" default:"autoreply-policies"`
	S3Region    string `envconfig:"S3_REGION" default:"us-east-1"`
}

// IndexDimensions is the width of the policy_chunks.embedding column created
// by migrations/000001_policies.up.sql.
const IndexDimensions = 1536

func Load() (*Config, error) {
	_ = godotenv.Load()

	var cfg Config
	if err := envconfig.Process("AUTOREPLY", &cfg); err != nil {
		return nil, fmt.Errorf("failed to process config: %w", err)
	}

	if cfg.MaxBatchSize <= 0 {
		return nil, fmt.Errorf("AUTOREPLY_MAX_BATCH_SIZE must be positive, got %d", cfg.MaxBatchSize)
	}
	if cfg.ChunkOverlap >= cfg.ChunkSize {
		return nil, fmt.Errorf("AUTOREPLY_CHUNK_OVERLAP (%d) must be smaller than AUTOREPLY_CHUNK_SIZE (%d)", cfg.ChunkOverlap, cfg.ChunkSize)
	}
	if cfg.HasDatabase() && cfg.OpenAIEmbeddingDimensions != IndexDimensions {
		return nil, fmt.Errorf("AUTOREPLY_OPENAI_EMBEDDING_DIMENSIONS must be %d when AUTOREPLY_DATABASE_URL is set, got %d",
			IndexDimensions, cfg.OpenAIEmbeddingDimensions)
	}

	return &cfg, nil
}

func MustLoad() *Config {
	cfg, err := Load()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}
	return cfg
}

func (c *Config) HasDatabase() bool {
	return c.DatabaseURL != ""
}

func (c *Config) HasS3() bool {
	return c.S3Endpoint != "" && c.S3AccessKey != "" && c.S3SecretKey != ""
}

func (c *Config) HasOpenAI() bool {
	return c.OpenAIAPIKey != ""
}

// HasGmail reports whether Gmail client credentials are present on disk.
func (c *Config) HasGmail() bool {
	if c.GmailCredentialsPath == "" {
		return false
	}
	_, err := os.Stat(c.GmailCredentialsPath)
	return err == nil
}
