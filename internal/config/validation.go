package config

// validation.go centralizes configuration validation.
//
// Validate is called once in Load (fail-fast). Each check wraps a sentinel
// error from config.go so callers can branch with errors.Is().

import (
	"fmt"
	"os"
	"time"
)

// validSSLModes are the PostgreSQL sslmode values accepted by libpq/pgx.
var validSSLModes = map[string]bool{
	"disable":     true,
	"allow":       true,
	"prefer":      true,
	"require":     true,
	"verify-ca":   true,
	"verify-full": true,
}

// Validate checks all configuration values and returns the first violation.
func (c *Config) Validate() error {
	if c == nil {
		return ErrConfigNil
	}

	switch c.Provider {
	case ProviderGemini, ProviderGoogleAI:
		if os.Getenv("GEMINI_API_KEY") == "" && os.Getenv("GOOGLE_API_KEY") == "" {
			return fmt.Errorf("%w: GEMINI_API_KEY is required for provider %q", ErrMissingAPIKey, c.Provider)
		}
	case ProviderOpenAI:
		if os.Getenv("OPENAI_API_KEY") == "" {
			return fmt.Errorf("%w: OPENAI_API_KEY is required for provider %q", ErrMissingAPIKey, c.Provider)
		}
	case ProviderOllama:
		if c.OllamaHost == "" {
			return fmt.Errorf("%w: ollama_host must not be empty", ErrInvalidOllamaHost)
		}
	default:
		return fmt.Errorf("%w: %q (supported: gemini, ollama, openai)", ErrInvalidProvider, c.Provider)
	}

	if c.ModelName == "" {
		return fmt.Errorf("%w: model_name must not be empty", ErrInvalidModelName)
	}
	if c.EmbedderModel == "" {
		return fmt.Errorf("%w: embedder_model must not be empty", ErrInvalidEmbedderModel)
	}

	if c.MaxToolIterations < 1 || c.MaxToolIterations > 20 {
		return fmt.Errorf("%w: %d (must be 1-20)", ErrInvalidMaxToolIterations, c.MaxToolIterations)
	}
	if c.TurnTimeout < time.Second || c.TurnTimeout > 5*time.Minute {
		return fmt.Errorf("%w: %v (must be 1s-5m)", ErrInvalidTurnTimeout, c.TurnTimeout)
	}

	if c.RetrievalTopK < 1 || c.RetrievalTopK > 20 {
		return fmt.Errorf("%w: %d (must be 1-20)", ErrInvalidRetrievalTopK, c.RetrievalTopK)
	}
	if c.RetrievalMinScore < 0 || c.RetrievalMinScore > 1 {
		return fmt.Errorf("%w: %v (must be 0-1)", ErrInvalidRetrievalMinScore, c.RetrievalMinScore)
	}
	if c.RetrievalCharBudget < 100 || c.RetrievalCharBudget > 100_000 {
		return fmt.Errorf("%w: %d (must be 100-100000)", ErrInvalidRetrievalCharBudget, c.RetrievalCharBudget)
	}

	if c.PostgresHost == "" {
		return fmt.Errorf("%w: postgres_host must not be empty", ErrInvalidPostgresHost)
	}
	if c.PostgresPort < 1 || c.PostgresPort > 65535 {
		return fmt.Errorf("%w: %d (must be 1-65535)", ErrInvalidPostgresPort, c.PostgresPort)
	}
	if c.PostgresDBName == "" {
		return fmt.Errorf("%w: postgres_db_name must not be empty", ErrInvalidPostgresDBName)
	}
	if !validSSLModes[c.PostgresSSLMode] {
		return fmt.Errorf("%w: %q", ErrInvalidPostgresSSLMode, c.PostgresSSLMode)
	}

	return nil
}
