package cmd

import (
	"context"
	"fmt"
	"os/signal"
	"syscall"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/spf13/cobra"

	pgmigrate "github.com/kibocha/orderdesk/db"
	"github.com/kibocha/orderdesk/internal/api"
	"github.com/kibocha/orderdesk/internal/chat"
	"github.com/kibocha/orderdesk/internal/config"
	"github.com/kibocha/orderdesk/internal/database"
	"github.com/kibocha/orderdesk/internal/llm"
	"github.com/kibocha/orderdesk/internal/log"
	"github.com/kibocha/orderdesk/internal/order"
	"github.com/kibocha/orderdesk/internal/security"
	"github.com/kibocha/orderdesk/internal/tools"
)

var flagAddr string

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the HTTP API server",
	RunE: func(cmd *cobra.Command, _ []string) error {
		return runServe(cmd.Context())
	},
}

func init() {
	serveCmd.Flags().StringVar(&flagAddr, "addr", "", "listen address (host:port, overrides config)")
	rootCmd.AddCommand(serveCmd)
}

// runServe builds the full dependency graph and blocks until shutdown.
func runServe(parent context.Context) error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	level, err := parseLogLevel(flagLogLevel)
	if err != nil {
		return err
	}
	logger := log.New(log.Config{Level: level, JSON: flagLogJSON})
	logger.Info("starting orderdesk",
		"version", AppVersion,
		"provider", cfg.Provider,
		"storage", cfg.StorageDriver)

	ctx, cancel := signal.NotifyContext(parent, syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	store, ready, closeStore, err := openStore(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer closeStore()

	readPaths, err := security.NewPath(cfg.ProjectRoot, cfg.ReadAllowDirs, cfg.BlockedPatterns)
	if err != nil {
		return fmt.Errorf("building read-path validator: %w", err)
	}
	writePaths, err := security.NewPath(cfg.ProjectRoot, cfg.WriteAllowDirs, cfg.BlockedPatterns)
	if err != nil {
		return fmt.Errorf("building write-path validator: %w", err)
	}

	registry, err := tools.NewDefaultRegistry(store, readPaths, writePaths, tools.Config{
		DeletePassword: cfg.DeletePassword,
		WritePassword:  cfg.WritePassword,
		Defaults: tools.OrderDefaults{
			Country: cfg.DefaultCountry,
			Status:  cfg.DefaultStatus,
		},
	}, logger)
	if err != nil {
		return fmt.Errorf("building tool registry: %w", err)
	}

	provider, err := newProvider(ctx, cfg, logger)
	if err != nil {
		return err
	}

	orchestrator := chat.New(provider, registry, chat.Options{
		ReadDirs:       cfg.ReadAllowDirs,
		WriteDirs:      cfg.WriteAllowDirs,
		DefaultCountry: cfg.DefaultCountry,
		DefaultStatus:  cfg.DefaultStatus,
	}, logger)

	server, err := api.NewServer(orchestrator, ready, logger)
	if err != nil {
		return fmt.Errorf("creating API server: %w", err)
	}

	addr := flagAddr
	if addr == "" {
		addr = cfg.Addr
	}
	return server.Run(ctx, addr)
}

// openStore opens the configured storage backend and runs its migrations.
// It returns the store, a readiness probe, and a close func.
func openStore(ctx context.Context, cfg *config.Config, logger log.Logger) (order.Store, api.ReadyCheck, func(), error) {
	switch cfg.StorageDriver {
	case config.StorageSQLite:
		db, err := database.Open(cfg.SQLitePath)
		if err != nil {
			return nil, nil, nil, fmt.Errorf("opening sqlite database: %w", err)
		}
		if err := database.Migrate(db); err != nil {
			_ = db.Close()
			return nil, nil, nil, fmt.Errorf("migrating sqlite database: %w", err)
		}
		logger.Info("sqlite storage ready", "path", cfg.SQLitePath)
		return order.NewSQLiteStore(db), db.PingContext, func() { _ = db.Close() }, nil

	case config.StoragePostgres:
		if err := pgmigrate.Migrate(cfg.PostgresURL); err != nil {
			return nil, nil, nil, fmt.Errorf("migrating postgres database: %w", err)
		}
		pool, err := pgxpool.New(ctx, cfg.PostgresURL)
		if err != nil {
			return nil, nil, nil, fmt.Errorf("creating postgres pool: %w", err)
		}
		if err := pool.Ping(ctx); err != nil {
			pool.Close()
			return nil, nil, nil, fmt.Errorf("pinging postgres: %w", err)
		}
		logger.Info("postgres storage ready")
		return order.NewPostgresStore(pool), pool.Ping, pool.Close, nil

	default:
		return nil, nil, nil, fmt.Errorf("%w: %s", config.ErrInvalidStorageDriver, cfg.StorageDriver)
	}
}

// newProvider builds the configured LLM provider.
func newProvider(ctx context.Context, cfg *config.Config, logger log.Logger) (llm.Provider, error) {
	switch cfg.Provider {
	case config.ProviderGemini:
		provider, err := llm.NewGemini(ctx, llm.GeminiConfig{
			APIKey:      cfg.GeminiAPIKey,
			Model:       cfg.ModelName,
			Temperature: cfg.Temperature,
			TopP:        cfg.TopP,
			MaxTokens:   cfg.MaxTokens,
		}, logger)
		if err != nil {
			return nil, fmt.Errorf("creating gemini provider: %w", err)
		}
		return provider, nil

	case config.ProviderOpenRouter:
		return llm.NewOpenRouter(llm.OpenRouterConfig{
			APIKey:      cfg.OpenRouterAPIKey,
			URL:         cfg.OpenRouterURL,
			Model:       cfg.ModelName,
			Temperature: cfg.Temperature,
			TopP:        cfg.TopP,
			MaxTokens:   cfg.MaxTokens,
		}, logger), nil

	default:
		return nil, fmt.Errorf("%w: %s", config.ErrInvalidProvider, cfg.Provider)
	}
}
