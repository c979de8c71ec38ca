// Package config provides application configuration management with
// multi-source priority.
//
// Configuration sources (highest to lowest priority):
//  1. Environment variables (runtime override)
//  2. Config file (~/.askbase/config.yaml)
//  3. Default values
//
// Main configuration categories:
//   - AI: embedding provider and model selection
//   - Storage: PostgreSQL connection (see storage.go)
//   - Resolver: similarity threshold, candidate set size, snapshot refresh
//   - Router: domain partitions, pricing keywords (see partitions.go)
//   - Miner: clustering parameters
//   - Observability: OTLP trace export
//
// Sensitive data (passwords) is never logged; see MarshalJSON.
// Validation is fail-fast with sentinel errors checked via errors.Is().
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
	// ErrInvalidThreshold indicates the similarity threshold is out of range.
	ErrInvalidThreshold = errors.New("invalid similarity threshold")

	// ErrInvalidCandidateLimit indicates the candidate set size is out of range.
	ErrInvalidCandidateLimit = errors.New("invalid candidate limit")

	// ErrInvalidEmbedderModel indicates the embedder model is empty.
	ErrInvalidEmbedderModel = errors.New("invalid embedder model")

	// ErrInvalidProvider indicates the AI provider is not supported.
	ErrInvalidProvider = errors.New("invalid provider")

	// ErrInvalidPostgresHost indicates the PostgreSQL host is invalid.
	ErrInvalidPostgresHost = errors.New("invalid PostgreSQL host")

	// ErrInvalidPostgresPort indicates the PostgreSQL port is out of range.
	ErrInvalidPostgresPort = errors.New("invalid PostgreSQL port")

	// ErrInvalidPostgresDBName indicates the PostgreSQL database name is empty.
	ErrInvalidPostgresDBName = errors.New("invalid PostgreSQL database name")

	// ErrInvalidPostgresSSLMode indicates the PostgreSQL SSL mode is invalid.
	ErrInvalidPostgresSSLMode = errors.New("invalid PostgreSQL SSL mode")

	// ErrInvalidMinClusterSize indicates the miner minimum cluster size is too small.
	ErrInvalidMinClusterSize = errors.New("invalid minimum cluster size")
)

// AI provider identifiers used in Config.Provider.
const (
	ProviderGemini = "gemini"
	ProviderOllama = "ollama"
)

const (
	// DefaultEmbedderModel is the default Gemini embedder model. Output is
	// truncated to 384 dimensions via OutputDimensionality to match the
	// pgvector schema; see embedding.Dimension.
	DefaultEmbedderModel = "gemini-embedding-001"

	// DefaultSimilarityThreshold is the global semantic-match threshold.
	// A candidate at exactly this similarity counts as a hit.
	DefaultSimilarityThreshold = 0.80

	// DefaultCandidateLimit bounds the popularity-ordered candidate set
	// used by the semantic path.
	DefaultCandidateLimit = 100
)

// Config stores application configuration.
// Sensitive fields are explicitly masked in MarshalJSON(). When adding new
// sensitive fields, update MarshalJSON.
type Config struct {
	// AI provider and embedder configuration
	Provider      string `mapstructure:"provider" json:"provider"` // "gemini" (default) or "ollama"
	EmbedderModel string `mapstructure:"embedder_model" json:"embedder_model"`
	OllamaHost    string `mapstructure:"ollama_host" json:"ollama_host"`

	// Storage configuration (see storage.go)
	PostgresHost     string `mapstructure:"postgres_host" json:"postgres_host"`
	PostgresPort     int    `mapstructure:"postgres_port" json:"postgres_port"`
	PostgresUser     string `mapstructure:"postgres_user" json:"postgres_user"`
	PostgresPassword string `mapstructure:"postgres_password" json:"postgres_password"` // SENSITIVE: masked in MarshalJSON
	PostgresDBName   string `mapstructure:"postgres_db_name" json:"postgres_db_name"`
	PostgresSSLMode  string `mapstructure:"postgres_ssl_mode" json:"postgres_ssl_mode"`

	// Resolver configuration
	SimilarityThreshold    float64 `mapstructure:"similarity_threshold" json:"similarity_threshold"`
	CandidateLimit         int     `mapstructure:"candidate_limit" json:"candidate_limit"`
	SnapshotRefreshSeconds int     `mapstructure:"snapshot_refresh_seconds" json:"snapshot_refresh_seconds"`
	EmbedTimeoutSeconds    int     `mapstructure:"embed_timeout_seconds" json:"embed_timeout_seconds"`

	// Router configuration (see partitions.go)
	Partitions       []PartitionConfig `mapstructure:"partitions" json:"partitions"`
	DefaultPartition string            `mapstructure:"default_partition" json:"default_partition"`
	PricingKeywords  []string          `mapstructure:"pricing_keywords" json:"pricing_keywords"`

	// Miner configuration
	MinClusterSize     int     `mapstructure:"min_cluster_size" json:"min_cluster_size"`
	EmbedRatePerSecond float64 `mapstructure:"embed_rate_per_second" json:"embed_rate_per_second"`

	// HTTP server configuration
	ListenAddr string `mapstructure:"listen_addr" json:"listen_addr"`

	// Observability configuration
	OTLPAgentHost string `mapstructure:"otlp_agent_host" json:"otlp_agent_host"`
	Environment   string `mapstructure:"environment" json:"environment"`
	ServiceName   string `mapstructure:"service_name" json:"service_name"`
}

// Load loads configuration.
// Priority: Environment variables > Configuration file > Default values
func Load() (*Config, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return nil, fmt.Errorf("getting user home directory: %w", err)
	}

	configDir := filepath.Join(home, ".askbase")
	if err := os.MkdirAll(configDir, 0o750); err != nil {
		return nil, fmt.Errorf("creating config directory: %w", err)
	}

	v := viper.New()
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(configDir)
	v.AddConfigPath(".") // Also support current directory

	setDefaults(v)
	bindEnvVariables(v)

	if err := v.ReadInConfig(); err != nil {
		// Configuration file not found is not an error, use default values
		var configNotFound viper.ConfigFileNotFoundError
		if !errors.As(err, &configNotFound) {
			return nil, fmt.Errorf("reading config file: %w", err)
		}
		slog.Debug("configuration file not found, using default values",
			"search_paths", []string{configDir, "."})
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("parsing configuration: %w", err)
	}

	// DATABASE_URL overrides individual postgres_* settings.
	if err := cfg.parseDatabaseURL(); err != nil {
		return nil, fmt.Errorf("parsing DATABASE_URL: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating configuration: %w", err)
	}

	return &cfg, nil
}

// setDefaults sets all default configuration values.
func setDefaults(v *viper.Viper) {
	// AI defaults
	v.SetDefault("provider", ProviderGemini)
	v.SetDefault("embedder_model", DefaultEmbedderModel)
	v.SetDefault("ollama_host", "http://localhost:11434")

	// PostgreSQL defaults (matching docker-compose.yml)
	v.SetDefault("postgres_host", "localhost")
	v.SetDefault("postgres_port", 5432)
	v.SetDefault("postgres_user", "askbase")
	v.SetDefault("postgres_password", "askbase_dev_password")
	v.SetDefault("postgres_db_name", "askbase")
	v.SetDefault("postgres_ssl_mode", "disable")

	// Resolver defaults
	v.SetDefault("similarity_threshold", DefaultSimilarityThreshold)
	v.SetDefault("candidate_limit", DefaultCandidateLimit)
	v.SetDefault("snapshot_refresh_seconds", 30)
	v.SetDefault("embed_timeout_seconds", 5)

	// Router defaults (see partitions.go)
	v.SetDefault("default_partition", DefaultPartitionName)
	v.SetDefault("pricing_keywords", DefaultPricingKeywords)

	// Miner defaults
	v.SetDefault("min_cluster_size", 3)
	v.SetDefault("embed_rate_per_second", 10.0)

	// HTTP server defaults
	v.SetDefault("listen_addr", "127.0.0.1:3500")

	// Observability defaults
	v.SetDefault("otlp_agent_host", "")
	v.SetDefault("environment", "dev")
	v.SetDefault("service_name", "askbase")
}

// bindEnvVariables binds environment variable overrides explicitly.
func bindEnvVariables(v *viper.Viper) {
	// Hardcoded keys can't fail to bind; a failure here is a bug.
	mustBind := func(key, envVar string) {
		if err := v.BindEnv(key, envVar); err != nil {
			panic(fmt.Sprintf("BUG: failed to bind %q to %q: %v", key, envVar, err))
		}
	}

	mustBind("provider", "ASKBASE_PROVIDER")
	mustBind("embedder_model", "ASKBASE_EMBEDDER_MODEL")
	mustBind("ollama_host", "ASKBASE_OLLAMA_HOST")
	mustBind("listen_addr", "ASKBASE_LISTEN_ADDR")
	mustBind("otlp_agent_host", "ASKBASE_OTLP_AGENT_HOST")
	mustBind("environment", "ASKBASE_ENVIRONMENT")

	// NOTE: GEMINI_API_KEY is read directly by Genkit, not via Viper.
}

// maskedValue is the placeholder for masked sensitive data.
const maskedValue = "████████"

// maskSecret masks a secret string for safe logging. Short secrets are
// fully masked; longer ones keep the first and last 2 characters for
// debug utility.
func maskSecret(s string) string {
	if s == "" {
		return ""
	}
	if len(s) <= 8 {
		return maskedValue
	}
	return s[:2] + "<" + maskedValue + ">" + s[len(s)-2:]
}

// MarshalJSON implements json.Marshaler with explicit sensitive field masking.
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
