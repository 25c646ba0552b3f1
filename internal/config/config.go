// Package config provides application configuration management with multi-source priority.
//
// Configuration sources (highest to lowest priority):
//  1. Environment variables (runtime override)
//  2. Config file (~/.cartage/config.yaml)
//  3. Default values (sensible defaults for quick start)
//
// Main configuration categories:
//   - AI: provider, model selection, embedder
//   - Storage: PostgreSQL connection (see storage.go)
//   - Orchestration: reasoning-loop iteration cap and wall-clock turn budget
//   - Retrieval: top-k, relevance threshold, context character budget
//
// Security: Sensitive data (passwords) are never logged; config directory uses 0750 permissions.
// Validation: range checks in validation.go with clear error messages.
//
// Error Handling:
//   - Uses sentinel errors for Go-idiomatic error checking with errors.Is()
//   - Wrap with context using fmt.Errorf("%w: details", ErrXxx)
package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"
)

var (
	// ErrConfigNil indicates the configuration is nil.
	ErrConfigNil = errors.New("configuration is nil")

	// ErrMissingAPIKey indicates a required API key is missing.
	ErrMissingAPIKey = errors.New("missing API key")

	// ErrInvalidModelName indicates the model name is invalid.
	ErrInvalidModelName = errors.New("invalid model name")

	// ErrInvalidProvider indicates the AI provider is not supported.
	ErrInvalidProvider = errors.New("invalid provider")

	// ErrInvalidEmbedderModel indicates the embedder model is invalid.
	ErrInvalidEmbedderModel = errors.New("invalid embedder model")

	// ErrInvalidOllamaHost indicates the Ollama host is invalid.
	ErrInvalidOllamaHost = errors.New("invalid Ollama host")

	// ErrInvalidPostgresHost indicates the PostgreSQL host is invalid.
	ErrInvalidPostgresHost = errors.New("invalid PostgreSQL host")

	// ErrInvalidPostgresPort indicates the PostgreSQL port is out of range.
	ErrInvalidPostgresPort = errors.New("invalid PostgreSQL port")

	// ErrInvalidPostgresDBName indicates the PostgreSQL database name is invalid.
	ErrInvalidPostgresDBName = errors.New("invalid PostgreSQL database name")

	// ErrInvalidPostgresSSLMode indicates the PostgreSQL SSL mode is invalid.
	ErrInvalidPostgresSSLMode = errors.New("invalid PostgreSQL SSL mode")

	// ErrInvalidMaxToolIterations indicates the reasoning-loop iteration cap is out of range.
	ErrInvalidMaxToolIterations = errors.New("invalid max tool iterations")

	// ErrInvalidTurnTimeout indicates the per-turn wall-clock budget is out of range.
	ErrInvalidTurnTimeout = errors.New("invalid turn timeout")

	// ErrInvalidRetrievalTopK indicates the retrieval top-k is out of range.
	ErrInvalidRetrievalTopK = errors.New("invalid retrieval top-k")

	// ErrInvalidRetrievalMinScore indicates the relevance threshold is out of range.
	ErrInvalidRetrievalMinScore = errors.New("invalid retrieval min score")

	// ErrInvalidRetrievalCharBudget indicates the context character budget is out of range.
	ErrInvalidRetrievalCharBudget = errors.New("invalid retrieval char budget")
)

// AI provider identifiers used in Config.Provider.
const (
	ProviderGemini   = "gemini"
	ProviderOllama   = "ollama"
	ProviderOpenAI   = "openai"
	ProviderGoogleAI = "googleai"
)

const (
	// DefaultGeminiEmbedderModel is the default Gemini embedder model.
	// gemini-embedding-001 supports truncation to 768 dimensions, matching
	// the pgvector column in db/migrations.
	DefaultGeminiEmbedderModel = "gemini-embedding-001"

	// DefaultMaxToolIterations bounds the reasoning loop per turn.
	DefaultMaxToolIterations = 5

	// DefaultTurnTimeout is the wall-clock budget for one full turn,
	// covering all reasoning iterations, retrieval, and tool calls.
	DefaultTurnTimeout = 30 * time.Second

	// DefaultRetrievalTopK is the number of document chunks fetched per retrieval.
	DefaultRetrievalTopK = 4

	// DefaultRetrievalMinScore is the minimum cosine similarity for a chunk
	// to be considered relevant.
	DefaultRetrievalMinScore = 0.35

	// DefaultRetrievalCharBudget caps the total characters of retrieved
	// context injected into the reasoning call.
	DefaultRetrievalCharBudget = 6000
)

// Config stores application configuration.
// SECURITY: Sensitive fields are explicitly masked in MarshalJSON().
// When adding new sensitive fields (passwords, API keys, tokens), update MarshalJSON.
type Config struct {
	// AI provider and model configuration
	Provider  string `mapstructure:"provider" json:"provider"`     // "gemini" (default), "ollama", "openai"
	ModelName string `mapstructure:"model_name" json:"model_name"` // e.g. "gemini-2.5-flash", "llama3.3", "gpt-4o"
	Language  string `mapstructure:"language" json:"language"`

	// Ollama configuration (only used when provider is "ollama")
	OllamaHost string `mapstructure:"ollama_host" json:"ollama_host"`

	// Orchestration configuration
	MaxToolIterations int           `mapstructure:"max_tool_iterations" json:"max_tool_iterations"`
	TurnTimeout       time.Duration `mapstructure:"turn_timeout" json:"turn_timeout"`

	// Retrieval configuration
	EmbedderModel       string  `mapstructure:"embedder_model" json:"embedder_model"`
	RetrievalTopK       int     `mapstructure:"retrieval_top_k" json:"retrieval_top_k"`
	RetrievalMinScore   float64 `mapstructure:"retrieval_min_score" json:"retrieval_min_score"`
	RetrievalCharBudget int     `mapstructure:"retrieval_char_budget" json:"retrieval_char_budget"`

	// Storage configuration (see storage.go for documentation)
	PostgresHost     string `mapstructure:"postgres_host" json:"postgres_host"`
	PostgresPort     int    `mapstructure:"postgres_port" json:"postgres_port"`
	PostgresUser     string `mapstructure:"postgres_user" json:"postgres_user"`
	PostgresPassword string `mapstructure:"postgres_password" json:"postgres_password"` // SENSITIVE: masked in MarshalJSON
	PostgresDBName   string `mapstructure:"postgres_db_name" json:"postgres_db_name"`
	PostgresSSLMode  string `mapstructure:"postgres_ssl_mode" json:"postgres_ssl_mode"`

	// HTTP server configuration (serve mode only)
	ServerAddr string `mapstructure:"server_addr" json:"server_addr"`

	// Observability configuration
	TraceAgentHost   string `mapstructure:"trace_agent_host" json:"trace_agent_host"`
	TraceServiceName string `mapstructure:"trace_service_name" json:"trace_service_name"`
	TraceEnvironment string `mapstructure:"trace_environment" json:"trace_environment"`
}

// Load loads configuration.
// Priority: Environment variables > Configuration file > Default values
func Load() (*Config, error) {
	// Configuration directory: ~/.cartage/
	home, err := os.UserHomeDir()
	if err != nil {
		return nil, fmt.Errorf("getting user home directory: %w", err)
	}

	configDir := filepath.Join(home, ".cartage")

	// Ensure directory exists (use 0750 permission for better security)
	if err := os.MkdirAll(configDir, 0o750); err != nil {
		return nil, fmt.Errorf("creating config directory: %w", err)
	}

	// Configure Viper
	viper.SetConfigName("config")
	viper.SetConfigType("yaml")
	viper.AddConfigPath(configDir)
	viper.AddConfigPath(".") // Also support current directory

	setDefaults()
	bindEnvVariables()

	// Read configuration file (if exists)
	if err := viper.ReadInConfig(); err != nil {
		// Configuration file not found is not an error, use default values
		var configNotFound viper.ConfigFileNotFoundError
		if !errors.As(err, &configNotFound) {
			return nil, fmt.Errorf("reading config file: %w", err)
		}
		slog.Debug("configuration file not found, using default values",
			"search_paths", []string{configDir, "."},
			"config_name", "config.yaml")
	}

	// Use Unmarshal to automatically map to struct (type-safe)
	var cfg Config
	if err := viper.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("parsing configuration: %w", err)
	}

	// Parse DATABASE_URL if set (highest priority for PostgreSQL config)
	if err := cfg.parseDatabaseURL(); err != nil {
		return nil, fmt.Errorf("parsing DATABASE_URL: %w", err)
	}

	// CRITICAL: Validate immediately (fail-fast)
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating configuration: %w", err)
	}

	return &cfg, nil
}

// setDefaults sets all default configuration values.
func setDefaults() {
	// AI defaults
	viper.SetDefault("provider", ProviderGemini)
	viper.SetDefault("model_name", "gemini-2.5-flash")
	viper.SetDefault("language", "auto")

	// Ollama defaults
	viper.SetDefault("ollama_host", "http://localhost:11434")

	// Orchestration defaults
	viper.SetDefault("max_tool_iterations", DefaultMaxToolIterations)
	viper.SetDefault("turn_timeout", DefaultTurnTimeout)

	// Retrieval defaults
	viper.SetDefault("embedder_model", DefaultGeminiEmbedderModel)
	viper.SetDefault("retrieval_top_k", DefaultRetrievalTopK)
	viper.SetDefault("retrieval_min_score", DefaultRetrievalMinScore)
	viper.SetDefault("retrieval_char_budget", DefaultRetrievalCharBudget)

	// PostgreSQL defaults (matching docker-compose.yml)
	viper.SetDefault("postgres_host", "localhost")
	viper.SetDefault("postgres_port", 5432)
	viper.SetDefault("postgres_user", "cartage")
	viper.SetDefault("postgres_password", "cartage_dev_password")
	viper.SetDefault("postgres_db_name", "cartage")
	viper.SetDefault("postgres_ssl_mode", "disable")

	// HTTP server defaults
	viper.SetDefault("server_addr", "127.0.0.1:3500")

	// Trace defaults
	viper.SetDefault("trace_agent_host", "localhost:4318")
	viper.SetDefault("trace_service_name", "cartage")
	viper.SetDefault("trace_environment", "dev")
}

// bindEnvVariables binds environment variables explicitly.
// NOTE: GEMINI_API_KEY and OPENAI_API_KEY are read directly by the Genkit
// provider plugins, not via Viper. Validation checks their presence based
// on the selected provider in cfg.Validate().
func bindEnvVariables() {
	// Helper to panic on unexpected bind errors (hardcoded strings can't fail).
	// If this panics, it's a BUG in our code, not a runtime error.
	mustBind := func(key, envVar string) {
		if err := viper.BindEnv(key, envVar); err != nil {
			panic(fmt.Sprintf("BUG: failed to bind %q to %q: %v", key, envVar, err))
		}
	}

	mustBind("provider", "CARTAGE_PROVIDER")
	mustBind("model_name", "CARTAGE_MODEL_NAME")
	mustBind("ollama_host", "CARTAGE_OLLAMA_HOST")
	mustBind("server_addr", "CARTAGE_SERVER_ADDR")
	mustBind("postgres_password", "CARTAGE_POSTGRES_PASSWORD")
}

// maskedValue is the placeholder for masked sensitive data.
// Full-width blocks avoid accidental substring matches against real secrets.
const maskedValue = "████████"

// maskSecret masks a secret string for safe logging.
// Shows first 2 and last 2 characters, masks the rest.
// SECURITY: For secrets <=8 chars, fully masks to prevent substring attacks.
func maskSecret(s string) string {
	if s == "" {
		return ""
	}
	// Fully mask short secrets to prevent substring matching attacks
	if len(s) <= 8 {
		return maskedValue
	}
	// For longer secrets, show first/last 2 chars for debug utility
	prefix := make([]byte, 2)
	suffix := make([]byte, 2)
	copy(prefix, s[:2])
	copy(suffix, s[len(s)-2:])
	return string(prefix) + "<" + maskedValue + ">" + string(suffix)
}

// MarshalJSON implements json.Marshaler with explicit sensitive field masking.
//
// Sensitive fields masked:
//   - PostgresPassword
//
// When adding new sensitive fields, update this method.
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

// FullModelName returns the provider-qualified model name for Genkit.
// Examples: "googleai/gemini-2.5-flash", "ollama/llama3.3", "openai/gpt-4o".
// If ModelName already contains a "/", it is returned as-is.
func (c *Config) FullModelName() string {
	if strings.Contains(c.ModelName, "/") {
		return c.ModelName
	}
	switch c.Provider {
	case ProviderOllama:
		return ProviderOllama + "/" + c.ModelName
	case ProviderOpenAI:
		return ProviderOpenAI + "/" + c.ModelName
	default:
		return ProviderGoogleAI + "/" + c.ModelName
	}
}

// String implements Stringer to prevent accidental printing of secrets.
func (c Config) String() string {
	data, err := c.MarshalJSON()
	if err != nil {
		return fmt.Sprintf("Config{error: %v}", err)
	}
	return string(data)
}
