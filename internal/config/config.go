// Package config provides application configuration with multi-source priority.
//
// Configuration sources (highest to lowest priority):
//  1. Environment variables (runtime override)
//  2. Config file (~/.corpusd/config.yaml)
//  3. Default values
//
// Main categories:
//   - Storage: PostgreSQL connection (see storage.go)
//   - Queue: NATS connection and delivery policy
//   - Embedding: provider, model, and vector dimension
//   - Ingest: chunk size, blob directory, retry budget
//
// Security: the database password is never logged; it is masked in
// MarshalJSON and String. Validation is fail-fast with sentinel errors
// checked via errors.Is().
package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/spf13/viper"
)

var (
	// ErrInvalidPostgresHost indicates the PostgreSQL host is empty.
	ErrInvalidPostgresHost = errors.New("invalid PostgreSQL host")

	// ErrInvalidPostgresPort indicates the PostgreSQL port is out of range.
	ErrInvalidPostgresPort = errors.New("invalid PostgreSQL port")

	// ErrInvalidPostgresDBName indicates the PostgreSQL database name is empty.
	ErrInvalidPostgresDBName = errors.New("invalid PostgreSQL database name")

	// ErrInvalidNATSURL indicates the NATS URL is empty or malformed.
	ErrInvalidNATSURL = errors.New("invalid NATS URL")

	// ErrInvalidChunkSize indicates the chunk size is not positive.
	ErrInvalidChunkSize = errors.New("invalid chunk size")

	// ErrInvalidDimension indicates the embedding dimension is not positive.
	ErrInvalidDimension = errors.New("invalid embedding dimension")

	// ErrInvalidEmbedderModel indicates the embedder model is empty.
	ErrInvalidEmbedderModel = errors.New("invalid embedder model")

	// ErrInvalidProvider indicates the embedding provider is not supported.
	ErrInvalidProvider = errors.New("invalid provider")

	// ErrInvalidBlobDir indicates the blob directory is empty.
	ErrInvalidBlobDir = errors.New("invalid blob directory")

	// ErrInvalidRetryBudget indicates the embedding retry budget is negative.
	ErrInvalidRetryBudget = errors.New("invalid embedding retry budget")
)

// Embedding provider identifiers used in Config.Provider.
const (
	ProviderGemini = "gemini"
	ProviderOllama = "ollama"
)

const (
	// DefaultEmbeddingDimension matches the vector(384) column in the
	// initial schema migration. Changing it requires a schema migration
	// and full re-ingestion.
	DefaultEmbeddingDimension = 384

	// DefaultChunkSize is the ingestion span size in runes.
	DefaultChunkSize = 1024

	// DefaultSearchLimit is the number of matches returned when the caller
	// does not ask for a specific k.
	DefaultSearchLimit = 10

	// MaxSearchLimit bounds result size regardless of the caller's k.
	MaxSearchLimit = 100
)

// Config stores application configuration.
// SECURITY: the database password is masked in MarshalJSON.
type Config struct {
	// Storage configuration (see storage.go for DSN helpers)
	PostgresHost     string `mapstructure:"postgres_host" json:"postgres_host"`
	PostgresPort     int    `mapstructure:"postgres_port" json:"postgres_port"`
	PostgresUser     string `mapstructure:"postgres_user" json:"postgres_user"`
	PostgresPassword string `mapstructure:"postgres_password" json:"postgres_password"` // SENSITIVE: masked in MarshalJSON
	PostgresDBName   string `mapstructure:"postgres_db_name" json:"postgres_db_name"`
	PostgresSSLMode  string `mapstructure:"postgres_ssl_mode" json:"postgres_ssl_mode"`

	// Queue configuration
	NATSURL          string `mapstructure:"nats_url" json:"nats_url"`
	QueueMaxDeliver  int    `mapstructure:"queue_max_deliver" json:"queue_max_deliver"`
	QueueAckWaitSecs int    `mapstructure:"queue_ack_wait_secs" json:"queue_ack_wait_secs"`

	// Embedding configuration
	Provider           string  `mapstructure:"provider" json:"provider"` // "gemini" (default) or "ollama"
	EmbedderModel      string  `mapstructure:"embedder_model" json:"embedder_model"`
	EmbeddingDimension int     `mapstructure:"embedding_dimension" json:"embedding_dimension"`
	EmbedRatePerSecond float64 `mapstructure:"embed_rate_per_second" json:"embed_rate_per_second"`
	EmbedRetryBudget   int     `mapstructure:"embed_retry_budget" json:"embed_retry_budget"`
	OllamaHost         string  `mapstructure:"ollama_host" json:"ollama_host"`

	// Ingestion configuration
	ChunkSize int    `mapstructure:"chunk_size" json:"chunk_size"`
	BlobDir   string `mapstructure:"blob_dir" json:"blob_dir"`

	// Observability configuration (optional OTLP tracing)
	OTLPEndpoint string `mapstructure:"otlp_endpoint" json:"otlp_endpoint"`
	ServiceName  string `mapstructure:"service_name" json:"service_name"`
	Environment  string `mapstructure:"environment" json:"environment"`
}

// Load loads configuration.
// Priority: environment variables > configuration file > default values.
func Load() (*Config, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return nil, fmt.Errorf("getting user home directory: %w", err)
	}

	configDir := filepath.Join(home, ".corpusd")
	if err := os.MkdirAll(configDir, 0o750); err != nil {
		return nil, fmt.Errorf("creating config directory: %w", err)
	}

	viper.SetConfigName("config")
	viper.SetConfigType("yaml")
	viper.AddConfigPath(configDir)
	viper.AddConfigPath(".") // Also support current directory

	setDefaults()
	bindEnvVariables()

	if err := viper.ReadInConfig(); err != nil {
		// Missing config file is not an error; defaults apply.
		var configNotFound viper.ConfigFileNotFoundError
		if !errors.As(err, &configNotFound) {
			return nil, fmt.Errorf("reading config file: %w", err)
		}
		slog.Debug("configuration file not found, using default values",
			"search_paths", []string{configDir, "."})
	}

	var cfg Config
	if err := viper.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("parsing configuration: %w", err)
	}

	// DATABASE_URL, if set, overrides the individual postgres_* settings.
	if err := cfg.parseDatabaseURL(); err != nil {
		return nil, fmt.Errorf("parsing DATABASE_URL: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating configuration: %w", err)
	}

	return &cfg, nil
}

func setDefaults() {
	// PostgreSQL defaults (matching docker-compose.yml)
	viper.SetDefault("postgres_host", "localhost")
	viper.SetDefault("postgres_port", 5432)
	viper.SetDefault("postgres_user", "corpusd")
	viper.SetDefault("postgres_password", "corpusd_dev_password")
	viper.SetDefault("postgres_db_name", "corpusd")
	viper.SetDefault("postgres_ssl_mode", "disable")

	// Queue defaults
	viper.SetDefault("nats_url", "nats://localhost:4222")
	viper.SetDefault("queue_max_deliver", 5)
	viper.SetDefault("queue_ack_wait_secs", 120)

	// Embedding defaults
	viper.SetDefault("provider", ProviderGemini)
	viper.SetDefault("embedder_model", "gemini-embedding-001")
	viper.SetDefault("embedding_dimension", DefaultEmbeddingDimension)
	viper.SetDefault("embed_rate_per_second", 0) // unlimited
	viper.SetDefault("embed_retry_budget", 3)
	viper.SetDefault("ollama_host", "http://localhost:11434")

	// Ingestion defaults
	viper.SetDefault("chunk_size", DefaultChunkSize)
	viper.SetDefault("blob_dir", "blobs")

	// Observability defaults (empty endpoint = tracing disabled)
	viper.SetDefault("otlp_endpoint", "")
	viper.SetDefault("service_name", "corpusd")
	viper.SetDefault("environment", "dev")
}

// bindEnvVariables binds runtime override variables explicitly.
// GEMINI_API_KEY is read directly by Genkit, not via Viper.
func bindEnvVariables() {
	// Hardcoded keys cannot fail to bind; a panic here is a bug, not a
	// runtime error.
	mustBind := func(key, envVar string) {
		if err := viper.BindEnv(key, envVar); err != nil {
			panic(fmt.Sprintf("BUG: failed to bind %q to %q: %v", key, envVar, err))
		}
	}

	mustBind("nats_url", "NATS_URL")
	mustBind("provider", "CORPUSD_PROVIDER")
	mustBind("embedder_model", "CORPUSD_EMBEDDER_MODEL")
	mustBind("ollama_host", "CORPUSD_OLLAMA_HOST")
	mustBind("blob_dir", "CORPUSD_BLOB_DIR")
	mustBind("otlp_endpoint", "CORPUSD_OTLP_ENDPOINT")
}

// maskedValue is the placeholder for masked sensitive data.
const maskedValue = "████████"

// maskSecret masks a secret for safe logging. Secrets of 8 characters or
// fewer are fully masked; longer secrets keep the first and last 2 characters
// for debug utility.
func maskSecret(s string) string {
	if s == "" {
		return ""
	}
	if len(s) <= 8 {
		return maskedValue
	}
	return s[:2] + "<" + maskedValue + ">" + s[len(s)-2:]
}

// MarshalJSON implements json.Marshaler with sensitive field masking.
func (c Config) MarshalJSON() ([]byte, error) {
	type alias Config
	a := alias(c)
	a.PostgresPassword = maskSecret(a.PostgresPassword)
	data, err := json.Marshal(a)
	if err != nil {
		return nil, fmt.Errorf("marshal config: %w", err)
	}
	return data, nil
}

// String implements Stringer to prevent accidental printing of secrets.
func (c Config) String() string {
	data, err := c.MarshalJSON()
	if err != nil {
		return fmt.Sprintf("Config{error: %v}", err)
	}
	return string(data)
}
