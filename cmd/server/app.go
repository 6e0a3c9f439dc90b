package main

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"

	"github.com/phrazzld/modelgate/internal/config"
	"github.com/phrazzld/modelgate/internal/platform/postgres"
	"github.com/phrazzld/modelgate/internal/provider"
	"github.com/phrazzld/modelgate/internal/service/authgw"
	"github.com/phrazzld/modelgate/internal/store"
	"github.com/phrazzld/modelgate/internal/task"
)

// application holds the shared application dependencies to simplify wiring
// and ensure proper cleanup on shutdown.
type application struct {
	config *config.Config
	logger *slog.Logger
	db     *sql.DB

	taskStore store.TaskStore
	providers *provider.Registry

	queue        *task.Queue
	notifier     *task.CancelNotifier
	executor     *task.Executor
	orchestrator *task.Orchestrator

	authClient authgw.Client
}

// newApplication creates an application with all dependencies initialized
// and the executor started.
func newApplication(ctx context.Context, cfg *config.Config, logger *slog.Logger, db *sql.DB) (*application, error) {
	app := &application{
		config: cfg,
		logger: logger,
		db:     db,
	}

	app.taskStore = postgres.NewTaskStore(db)

	var err error
	app.providers, err = buildProviders(ctx, cfg, logger)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize providers: %w", err)
	}
	logger.Info("Providers initialized", "providers", app.providers.Names())

	app.queue = task.NewQueue(cfg.Queue.Size, logger.With("component", "queue"))
	app.notifier = task.NewCancelNotifier(logger.With("component", "cancel_notifier"))
	app.executor = task.NewExecutor(app.taskStore, app.providers, app.queue, app.notifier, task.ExecutorConfig{
		Workers:      cfg.Queue.Workers,
		TaskTimeout:  cfg.Queue.TaskTimeout,
		MaxAttempts:  cfg.Queue.MaxAttempts,
		RetryBase:    cfg.Queue.RetryBase,
		StaleAge:     cfg.Queue.StaleAge,
		ReapInterval: cfg.Queue.ReapInterval,
	}, logger.With("component", "executor"))

	app.orchestrator = task.NewOrchestrator(
		app.taskStore,
		app.providers,
		app.queue,
		app.executor,
		app.notifier,
		logger.With("component", "orchestrator"),
	)

	if cfg.Auth.Enabled {
		app.authClient = authgw.NewHTTPClient(cfg.Auth.GatewayURL, 0, logger.With("component", "authgw"))
		logger.Info("Auth gateway client initialized", "service", cfg.Auth.ServiceName)
	}

	if err := app.executor.Start(); err != nil {
		return nil, fmt.Errorf("failed to start executor: %w", err)
	}

	logger.Info("Application initialized successfully")
	return app, nil
}

// buildProviders constructs the provider registry from configuration.
// Providers without an API key are skipped so a partial deployment still
// serves the configured backends.
func buildProviders(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*provider.Registry, error) {
	var providers []provider.Provider

	if cfg.Providers.Aliyun.APIKey != "" {
		p, err := provider.NewAliyun(provider.AliyunConfig{
			APIKey:  cfg.Providers.Aliyun.APIKey,
			BaseURL: cfg.Providers.Aliyun.BaseURL,
			Models:  cfg.Providers.Aliyun.Models,
		}, logger.With("provider", "aliyun"))
		if err != nil {
			return nil, err
		}
		providers = append(providers, p)
	}

	if cfg.Providers.DeepSeek.APIKey != "" {
		p, err := provider.NewDeepSeek(provider.DeepSeekConfig{
			APIKey:  cfg.Providers.DeepSeek.APIKey,
			BaseURL: cfg.Providers.DeepSeek.BaseURL,
			Models:  cfg.Providers.DeepSeek.Models,
		}, logger.With("provider", "deepseek"))
		if err != nil {
			return nil, err
		}
		providers = append(providers, p)
	}

	if cfg.Providers.Gemini.APIKey != "" {
		p, err := provider.NewGemini(ctx, provider.GeminiConfig{
			APIKey: cfg.Providers.Gemini.APIKey,
			Models: cfg.Providers.Gemini.Models,
		}, logger.With("provider", "gemini"))
		if err != nil {
			return nil, err
		}
		providers = append(providers, p)
	}

	if len(providers) == 0 {
		return nil, fmt.Errorf("no providers configured; set at least one provider API key")
	}

	return provider.NewRegistry(providers...)
}

// Run starts the HTTP server and blocks until shutdown.
func (app *application) Run(ctx context.Context) error {
	router, err := app.setupRouter()
	if err != nil {
		return fmt.Errorf("failed to set up router: %w", err)
	}

	if err := app.startHTTPServer(ctx, router); err != nil {
		return fmt.Errorf("server error: %w", err)
	}
	return nil
}

// cleanup handles graceful shutdown of application resources: the queue
// stops accepting work, the executor drains, then the database closes.
func (app *application) cleanup() {
	if app.queue != nil {
		app.queue.Close()
	}
	if app.executor != nil {
		app.executor.Stop()
	}
	if app.db != nil {
		if err := app.db.Close(); err != nil {
			app.logger.Error("Error closing database connection", "error", err)
		}
	}
	app.logger.Info("Application shutdown completed")
}
