package config

import (
	"fmt"
	"strings"
)

// Validate performs comprehensive validation of the configuration.
// Called immediately after Load (fail-fast); returns the first violation found
// wrapped around the matching sentinel error.
func (c *Config) Validate() error {
	if c == nil {
		return ErrConfigNil
	}

	switch c.Provider {
	case ProviderGemini:
		if c.GeminiAPIKey == "" {
			return fmt.Errorf("%w: GEMINI_API_KEY is required for provider %q", ErrMissingAPIKey, c.Provider)
		}
	case ProviderOpenRouter:
		if c.OpenRouterAPIKey == "" {
			return fmt.Errorf("%w: OPENROUTER_API_KEY is required for provider %q", ErrMissingAPIKey, c.Provider)
		}
	default:
		return fmt.Errorf("%w: %q (supported: %s, %s)", ErrInvalidProvider, c.Provider, ProviderGemini, ProviderOpenRouter)
	}

	if strings.TrimSpace(c.ModelName) == "" {
		return fmt.Errorf("%w: model name is empty", ErrInvalidModelName)
	}

	if c.Temperature < 0 || c.Temperature > 2 {
		return fmt.Errorf("%w: %.2f (must be in [0, 2])", ErrInvalidTemperature, c.Temperature)
	}

	if c.MaxTokens < 1 || c.MaxTokens > 1<<20 {
		return fmt.Errorf("%w: %d", ErrInvalidMaxTokens, c.MaxTokens)
	}

	switch c.StorageDriver {
	case StorageSQLite:
		if strings.TrimSpace(c.SQLitePath) == "" {
			return fmt.Errorf("%w: sqlite_path is empty", ErrInvalidStorageDriver)
		}
	case StoragePostgres:
		if strings.TrimSpace(c.PostgresURL) == "" {
			return fmt.Errorf("%w: DATABASE_URL is required for postgres storage", ErrInvalidStorageDriver)
		}
	default:
		return fmt.Errorf("%w: %q (supported: %s, %s)", ErrInvalidStorageDriver, c.StorageDriver, StorageSQLite, StoragePostgres)
	}

	// Destructive tools refuse to run without their shared secrets; requiring
	// them here keeps the failure at startup instead of mid-conversation.
	if c.DeletePassword == "" {
		return fmt.Errorf("%w: set ORDERDESK_DELETE_PASSWORD", ErrMissingDeletePassword)
	}
	if c.WritePassword == "" {
		return fmt.Errorf("%w: set ORDERDESK_WRITE_PASSWORD", ErrMissingWritePassword)
	}

	if len(c.ReadAllowDirs) == 0 {
		return fmt.Errorf("%w: read_allow_dirs", ErrEmptyAllowList)
	}
	if len(c.WriteAllowDirs) == 0 {
		return fmt.Errorf("%w: write_allow_dirs", ErrEmptyAllowList)
	}

	return nil
}
