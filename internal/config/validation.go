package config

import (
	"fmt"
	"net/url"
)

// Validate checks the configuration for errors. Called by Load before the
// configuration reaches any component, so components may assume a valid
// Config.
func (c *Config) Validate() error {
	if c.PostgresHost == "" {
		return ErrInvalidPostgresHost
	}
	if c.PostgresPort < 1 || c.PostgresPort > 65535 {
		return fmt.Errorf("%w: %d (must be 1-65535)", ErrInvalidPostgresPort, c.PostgresPort)
	}
	if c.PostgresDBName == "" {
		return ErrInvalidPostgresDBName
	}

	if c.NATSURL == "" {
		return ErrInvalidNATSURL
	}
	if _, err := url.Parse(c.NATSURL); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidNATSURL, err)
	}

	switch c.Provider {
	case ProviderGemini, ProviderOllama:
	default:
		return fmt.Errorf("%w: %q (must be gemini or ollama)", ErrInvalidProvider, c.Provider)
	}
	if c.EmbedderModel == "" {
		return ErrInvalidEmbedderModel
	}
	if c.EmbeddingDimension <= 0 {
		return fmt.Errorf("%w: %d", ErrInvalidDimension, c.EmbeddingDimension)
	}
	if c.EmbedRetryBudget < 0 {
		return fmt.Errorf("%w: %d", ErrInvalidRetryBudget, c.EmbedRetryBudget)
	}

	if c.ChunkSize <= 0 {
		return fmt.Errorf("%w: %d", ErrInvalidChunkSize, c.ChunkSize)
	}
	if c.BlobDir == "" {
		return ErrInvalidBlobDir
	}

	return nil
}
