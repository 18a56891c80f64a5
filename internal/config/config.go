package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
)

var ErrMissingRequired = errors.New("missing required configuration")

type Config struct {
	DBHost string `envconfig:"DB_HOST" default:"postgres"`
	DBPort int    `envconfig:"DB_PORT" default:"5432"`
	DBUser string `envconfig:"DB_USER" default:"domainwizard"`
	DBPass string `envconfig:"DB_PASS" default:"password"`
	DBName string `envconfig:"DB_NAME" default:"domainwizard"`

	NSQDHost   string `envconfig:"NSQD_HOST" default:"nsqd:4150"`
	NSQDHTTP   string `envconfig:"NSQD_HTTP" default:"nsqd:4151"`
	NSQLookupd string `envconfig:"NSQ_LOOKUPD" default:"nsqlookupd:4161"`

	OpenAIAPIKey  string `envconfig:"OPENAI_API_KEY"`
	OpenAIBaseURL string `envconfig:"OPENAI_BASE_URL" default:"https://api.openai.com"`
	GeminiAPIKey  string `envconfig:"GEMINI_API_KEY"`

	EmbeddingModel string `envconfig:"EMBEDDING_MODEL" default:"text-embedding-3-small"`
	EmbeddingDim   int    `envconfig:"EMBEDDING_DIM" default:"1536"`

	// Batch sizes bound statement/payload size, not run size.
	ReconcileChunkSize  int `envconfig:"RECONCILE_CHUNK_SIZE" default:"100000"`
	EmbedBatchSize      int `envconfig:"EMBED_BATCH_SIZE" default:"50000"`
	EmbedWriteBatchSize int `envconfig:"EMBED_WRITE_BATCH_SIZE" default:"5000"`
	DownloadMaxRetries  int `envconfig:"DOWNLOAD_MAX_RETRIES" default:"3"`
	ResubmitWindowHours int `envconfig:"RESUBMIT_WINDOW_HOURS" default:"48"`
	MatchLimit          int `envconfig:"MATCH_LIMIT" default:"100"`
	ProviderTimeoutSecs int `envconfig:"PROVIDER_TIMEOUT_SECONDS" default:"60"`
	SourceTimeoutSecs   int `envconfig:"SOURCE_TIMEOUT_SECONDS" default:"300"`
	DownloadConcurrency int `envconfig:"DOWNLOAD_CONCURRENCY" default:"4"`

	SMTPHost  string `envconfig:"SMTP_SERVER"`
	SMTPPort  int    `envconfig:"SMTP_PORT" default:"587"`
	EmailFrom string `envconfig:"EMAIL_FROM"`
	EmailPass string `envconfig:"EMAIL_PASSWORD"`

	MigrationPath string `envconfig:"MIGRATION_PATH" default:"file://migrations"`

	// Resilience
	BootstrapRetryAttempts     int `envconfig:"BOOTSTRAP_RETRY_ATTEMPTS" default:"10"`
	BootstrapRetryDelaySeconds int `envconfig:"BOOTSTRAP_RETRY_DELAY_SECONDS" default:"2"`
}

func Load() (*Config, error) {
	// .env is optional; shell environment wins either way.
	_ = godotenv.Load(".env")

	cwd, _ := os.Getwd()
	rootEnv := filepath.Join(cwd, "../.env")
	_ = godotenv.Load(rootEnv)

	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return nil, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

func (c *Config) Validate() error {
	if c.DBHost == "" {
		return fmt.Errorf("%w: DB_HOST", ErrMissingRequired)
	}
	if c.DBUser == "" {
		return fmt.Errorf("%w: DB_USER", ErrMissingRequired)
	}
	if c.DBName == "" {
		return fmt.Errorf("%w: DB_NAME", ErrMissingRequired)
	}
	if c.ReconcileChunkSize < 1 {
		return fmt.Errorf("%w: RECONCILE_CHUNK_SIZE must be positive", ErrMissingRequired)
	}
	if c.EmbedBatchSize < 1 {
		return fmt.Errorf("%w: EMBED_BATCH_SIZE must be positive", ErrMissingRequired)
	}
	return nil
}
