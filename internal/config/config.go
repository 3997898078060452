// Package config provides application configuration management with multi-source priority.
//
// Configuration sources (highest to lowest priority):
//  1. Environment variables (runtime override)
//  2. Config file (~/.orderdesk/config.yaml or ./config.yaml)
//  3. Default values (sensible defaults for quick start)
//
// Main configuration categories:
//   - LLM: provider selection, model, generation parameters
//   - Storage: SQLite path or PostgreSQL connection (see Validate)
//   - Tools: shared secrets for destructive tools, file-access allow/deny lists
//   - Server: listen address
//
// Security: Sensitive data (passwords, API keys) are never logged; the config
// directory uses 0750 permissions and MarshalJSON masks secret fields.
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

	"github.com/spf13/viper"
)

var (
	// ErrConfigNil indicates the configuration is nil.
	ErrConfigNil = errors.New("configuration is nil")

	// ErrMissingAPIKey indicates a required API key is missing.
	ErrMissingAPIKey = errors.New("missing API key")

	// ErrInvalidProvider indicates the LLM provider is not supported.
	ErrInvalidProvider = errors.New("invalid provider")

	// ErrInvalidModelName indicates the model name is invalid.
	ErrInvalidModelName = errors.New("invalid model name")

	// ErrInvalidTemperature indicates the temperature value is out of range.
	ErrInvalidTemperature = errors.New("invalid temperature")

	// ErrInvalidMaxTokens indicates the max tokens value is out of range.
	ErrInvalidMaxTokens = errors.New("invalid max tokens")

	// ErrInvalidStorageDriver indicates the storage driver is not supported.
	ErrInvalidStorageDriver = errors.New("invalid storage driver")

	// ErrMissingDeletePassword indicates the order-deletion password is not set.
	ErrMissingDeletePassword = errors.New("missing delete password")

	// ErrMissingWritePassword indicates the file-write password is not set.
	ErrMissingWritePassword = errors.New("missing write password")

	// ErrEmptyAllowList indicates a file-tool allow-list has no entries.
	ErrEmptyAllowList = errors.New("empty allow list")
)

// LLM provider identifiers used in Config.Provider.
const (
	ProviderGemini     = "gemini"
	ProviderOpenRouter = "openrouter"
)

// Storage driver identifiers used in Config.StorageDriver.
const (
	StorageSQLite   = "sqlite"
	StoragePostgres = "postgres"
)

// Config stores application configuration.
// SECURITY: Sensitive fields are explicitly masked in MarshalJSON().
// When adding new sensitive fields (passwords, API keys, tokens), update MarshalJSON.
type Config struct {
	// LLM provider and model configuration
	Provider    string  `mapstructure:"provider" json:"provider"`     // "gemini" (default) or "openrouter"
	ModelName   string  `mapstructure:"model_name" json:"model_name"` // e.g. "gemini-2.5-flash", "openai/gpt-4o-mini"
	Temperature float32 `mapstructure:"temperature" json:"temperature"`
	TopP        float32 `mapstructure:"top_p" json:"top_p"`
	MaxTokens   int     `mapstructure:"max_tokens" json:"max_tokens"`

	// Provider credentials
	GeminiAPIKey     string `mapstructure:"gemini_api_key" json:"gemini_api_key"`         // SENSITIVE: masked in MarshalJSON
	OpenRouterAPIKey string `mapstructure:"openrouter_api_key" json:"openrouter_api_key"` // SENSITIVE: masked in MarshalJSON
	OpenRouterURL    string `mapstructure:"openrouter_url" json:"openrouter_url"`

	// Storage configuration
	StorageDriver string `mapstructure:"storage_driver" json:"storage_driver"` // "sqlite" (default) or "postgres"
	SQLitePath    string `mapstructure:"sqlite_path" json:"sqlite_path"`
	PostgresURL   string `mapstructure:"postgres_url" json:"postgres_url"` // SENSITIVE: masked in MarshalJSON

	// Tool security configuration
	DeletePassword string `mapstructure:"delete_password" json:"delete_password"` // SENSITIVE: masked in MarshalJSON
	WritePassword  string `mapstructure:"write_password" json:"write_password"`   // SENSITIVE: masked in MarshalJSON

	// File-tool access policy. Paths are relative to ProjectRoot.
	ProjectRoot     string   `mapstructure:"project_root" json:"project_root"`
	ReadAllowDirs   []string `mapstructure:"read_allow_dirs" json:"read_allow_dirs"`
	WriteAllowDirs  []string `mapstructure:"write_allow_dirs" json:"write_allow_dirs"`
	BlockedPatterns []string `mapstructure:"blocked_patterns" json:"blocked_patterns"`

	// Order defaults
	DefaultCountry string `mapstructure:"default_country" json:"default_country"`
	DefaultStatus  string `mapstructure:"default_status" json:"default_status"`

	// HTTP server configuration
	Addr string `mapstructure:"addr" json:"addr"`
}

// Load loads configuration.
// Priority: Environment variables > Configuration file > Default values
func Load() (*Config, error) {
	// Configuration directory: ~/.orderdesk/
	home, err := os.UserHomeDir()
	if err != nil {
		return nil, fmt.Errorf("getting user home directory: %w", err)
	}

	configDir := filepath.Join(home, ".orderdesk")

	// Ensure directory exists (use 0750 permission for better security)
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

	// Read configuration file (if exists)
	if err := v.ReadInConfig(); err != nil {
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
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("parsing configuration: %w", err)
	}

	// CRITICAL: Validate immediately (fail-fast)
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating configuration: %w", err)
	}

	return &cfg, nil
}

// setDefaults sets all default configuration values.
func setDefaults(v *viper.Viper) {
	// LLM defaults (generation parameters match the upstream chat defaults)
	v.SetDefault("provider", ProviderGemini)
	v.SetDefault("model_name", "gemini-2.5-flash")
	v.SetDefault("temperature", 0.7)
	v.SetDefault("top_p", 0.95)
	v.SetDefault("max_tokens", 8192)
	v.SetDefault("openrouter_url", "https://openrouter.ai/api/v1/chat/completions")

	// Storage defaults
	v.SetDefault("storage_driver", StorageSQLite)
	v.SetDefault("sqlite_path", filepath.Join(".", "orderdesk.db"))

	// File-tool policy defaults
	v.SetDefault("project_root", ".")
	v.SetDefault("read_allow_dirs", []string{"app", "resources", "routes", "config", "database", "tests"})
	v.SetDefault("write_allow_dirs", []string{"app/tools", "resources/js/pages", "app/http"})
	v.SetDefault("blocked_patterns", []string{".env", ".env.*", "*.key", "*.pem", "storage/*", "vendor/*", "node_modules/*"})

	// Order defaults
	v.SetDefault("default_country", "Kenya")
	v.SetDefault("default_status", "Pending")

	// Server defaults
	v.SetDefault("addr", "127.0.0.1:3400")
}

// bindEnvVariables binds sensitive environment variables explicitly.
// Secrets are only accepted via environment, never committed to a config file.
func bindEnvVariables(v *viper.Viper) {
	// Helper to panic on unexpected bind errors (hardcoded strings can't fail)
	// If this panics, it's a BUG in our code, not a runtime error
	mustBind := func(key, envVar string) {
		if err := v.BindEnv(key, envVar); err != nil {
			panic(fmt.Sprintf("BUG: failed to bind %q to %q: %v", key, envVar, err))
		}
	}

	mustBind("gemini_api_key", "GEMINI_API_KEY")
	mustBind("openrouter_api_key", "OPENROUTER_API_KEY")
	mustBind("postgres_url", "DATABASE_URL")
	mustBind("delete_password", "ORDERDESK_DELETE_PASSWORD")
	mustBind("write_password", "ORDERDESK_WRITE_PASSWORD")

	// Non-secret runtime overrides
	mustBind("provider", "ORDERDESK_PROVIDER")
	mustBind("model_name", "ORDERDESK_MODEL_NAME")
	mustBind("storage_driver", "ORDERDESK_STORAGE_DRIVER")
	mustBind("sqlite_path", "ORDERDESK_SQLITE_PATH")
	mustBind("project_root", "ORDERDESK_PROJECT_ROOT")
	mustBind("addr", "ORDERDESK_ADDR")
}

// maskedValue is the placeholder for masked sensitive data.
// Using ████████ (full-width blocks U+2588) to avoid substring matching.
const maskedValue = "████████"

// maskSecret masks a secret string for safe logging.
// Shows first 2 and last 2 characters, masks the rest.
// SECURITY: For secrets <=8 chars, fully masks to prevent substring attacks.
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
//
// Sensitive fields masked:
//   - GeminiAPIKey, OpenRouterAPIKey
//   - PostgresURL (may embed credentials)
//   - DeletePassword, WritePassword
//
// When adding new sensitive fields, update this method.
func (c Config) MarshalJSON() ([]byte, error) {
	type alias Config
	a := alias(c)
	a.GeminiAPIKey = maskSecret(a.GeminiAPIKey)
	a.OpenRouterAPIKey = maskSecret(a.OpenRouterAPIKey)
	a.PostgresURL = maskSecret(a.PostgresURL)
	a.DeletePassword = maskSecret(a.DeletePassword)
	a.WritePassword = maskSecret(a.WritePassword)
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
