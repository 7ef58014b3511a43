// Package internal provides the main application initialization and runtime logic.
package internal

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"golang.org/x/sync/errgroup"

	"github.com/starford/mocsync/internal/api"
	"github.com/starford/mocsync/internal/bridge"
	"github.com/starford/mocsync/internal/index"
	"github.com/starford/mocsync/internal/lifecycle"
	"github.com/starford/mocsync/internal/mcpserver"
	"github.com/starford/mocsync/internal/metrics"
	"github.com/starford/mocsync/internal/notice"
	"github.com/starford/mocsync/internal/retry"
	"github.com/starford/mocsync/internal/settings"
	"github.com/starford/mocsync/internal/sse"
	"github.com/starford/mocsync/internal/storage"
)

// core holds the components shared by every run mode.
type core struct {
	cfg      *Config
	logger   *slog.Logger
	store    *storage.FS
	db       *index.DB
	cache    *index.Cache
	settings *settings.Store
	ctrl     *lifecycle.Controller
}

func newApplication(opts []Option) (*application, error) {
	app := &application{logOutput: os.Stdout, version: "dev"}
	for _, opt := range opts {
		opt(app)
	}
	if app.config == nil {
		return nil, fmt.Errorf("config is required")
	}
	return app, nil
}

// bootstrap opens storage and the index, loads settings and builds the
// lifecycle controller. The caller closes the returned core.
func bootstrap(ctx context.Context, app *application, notifier notice.Notifier) (*core, error) {
	cfg := app.config

	// Initialize structured JSON logger.
	logger := slog.New(slog.NewJSONHandler(app.logOutput, &slog.HandlerOptions{
		Level: cfg.App.LogLevel,
	}))
	slog.SetDefault(logger)

	logger.Info("Configuration loaded",
		slog.String("http_address", cfg.App.HTTP.Address()),
		slog.String("vault_path", cfg.Vault.Path),
		slog.String("sqlite_path", cfg.SQLite.Path),
		slog.String("marker_key", cfg.Hub.MarkerKey),
		slog.String("log_level", cfg.App.LogLevel.String()))

	// Ensure vault directory exists.
	if err := os.MkdirAll(cfg.Vault.Path, 0o755); err != nil {
		return nil, fmt.Errorf("create vault dir: %w", err)
	}

	// Initialize storage.
	var fsOpts []storage.FSOption
	if cfg.Vault.SystemTrash != "" {
		fsOpts = append(fsOpts, storage.WithSystemTrash(cfg.Vault.SystemTrash))
	}
	store, err := storage.NewFS(cfg.Vault.Path, fsOpts...)
	if err != nil {
		return nil, fmt.Errorf("init storage: %w", err)
	}

	// Initialize SQLite index.
	db, err := index.Open(cfg.SQLite.Path)
	if err != nil {
		return nil, fmt.Errorf("init index: %w", err)
	}

	cache := index.NewCache(db, store, cfg.Hub.MarkerKey, logger)
	if err := cache.Sync(ctx); err != nil {
		logger.Warn("initial sync failed", slog.String("error", err.Error()))
	}

	st, err := settings.Load(db, settings.Settings{
		TemplatesFolder: cfg.Hub.TemplatesFolder,
		ContainerPath:   cfg.Hub.ContainerPath,
	}, logger)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("init settings: %w", err)
	}

	if notifier == nil {
		notifier = notice.NewLogNotifier(logger)
	} else {
		notifier = notice.Multi{notice.NewLogNotifier(logger), notifier}
	}
	ctrl := lifecycle.New(store, cache, st, lifecycle.Options{
		AttachmentsFolder: cfg.Vault.AttachmentsFolder,
		DuplicateSuffix:   cfg.Hub.DuplicateSuffix,
		FlattenNested:     cfg.Hub.FlattenNestedItems,
		MarkerKey:         cfg.Hub.MarkerKey,
		Heading:           cfg.Hub.Heading,
		ConfirmPhrase:     cfg.Hub.ConfirmPhrase,
		Policy: retry.Policy{
			BaseDelay:   cfg.Sync.BaseDelay,
			MaxDelay:    cfg.Sync.MaxDelay,
			MaxAttempts: cfg.Sync.MaxAttempts,
		},
		Concurrency: cfg.Sync.Concurrency,
	}, notifier, logger)

	return &core{
		cfg:      cfg,
		logger:   logger,
		store:    store,
		db:       db,
		cache:    cache,
		settings: st,
		ctrl:     ctrl,
	}, nil
}

func (c *core) Close() error {
	return c.db.Close()
}

// Run starts the HTTP server, the vault watcher and the event bridge, and
// brings every hub up to date once.
func Run(ctx context.Context, opts ...Option) error {
	app, err := newApplication(opts)
	if err != nil {
		return err
	}

	// SSE broker, also the notice sink for connected clients.
	broker := sse.NewBroker(2 * time.Second)
	defer broker.Close()

	c, err := bootstrap(ctx, app, broker)
	if err != nil {
		return err
	}
	defer c.Close()
	cfg, logger := c.cfg, c.logger

	br := bridge.New(c.ctrl, c.cache, c.settings, cfg.Sync.SettleDelay, notice.Multi{notice.NewLogNotifier(logger), broker}, logger)
	br.SetReportSink(broker)

	apiRouter := api.NewRouter(c.ctrl, c.settings, cfg.Auth.AuthEnabled(), cfg.Auth.Token, broker)

	// Build chi router.
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)

	// Health check endpoints (unauthenticated).
	r.Get("/health/live", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"status":"ok"}`))
	})
	r.Get("/health/ready", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"status":"ok"}`))
	})
	r.Method(http.MethodGet, "/metrics", metrics.Handler())

	// Mount API routes under /api.
	r.Mount("/api", apiRouter)

	httpServer := &http.Server{
		Addr:    cfg.App.HTTP.Address(),
		Handler: r,
	}

	logger.Info("Server starting...", slog.String("http_address", cfg.App.HTTP.Address()))

	g, gCtx := errgroup.WithContext(ctx)

	// Event bridge: debounced per-hub updates.
	g.Go(func() error {
		return br.Run(gCtx)
	})

	// File watcher feeding the bridge and SSE clients.
	g.Go(func() error {
		err := index.Watch(gCtx, c.db, c.store, cfg.Vault.Path, cfg.Hub.MarkerKey, logger, func(ev index.Event) {
			br.Handle(ev)
			broker.PublishVaultEvent(ev)
		})
		if err != nil {
			logger.Error("watcher stopped", slog.String("error", err.Error()))
		}
		return nil
	})

	// Initial pass over every hub.
	g.Go(func() error {
		reports, err := c.ctrl.UpdateAll(gCtx)
		if err != nil {
			logger.Warn("initial update incomplete", slog.String("error", err.Error()))
		}
		logger.Info("initial update done", slog.Int("hubs", len(reports)))
		broker.Publish(sse.Event{Type: sse.TypeHubsChanged, Data: map[string]string{}})
		return nil
	})

	// Start HTTP server.
	g.Go(func() error {
		logger.Info("Starting HTTP server", slog.String("address", cfg.App.HTTP.Address()))
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("HTTP server error: %w", err)
		}
		return nil
	})

	// Handle shutdown signals.
	g.Go(func() error {
		quit := make(chan os.Signal, 1)
		signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
		defer signal.Stop(quit)

		select {
		case sig := <-quit:
			logger.Info("Received shutdown signal", slog.String("signal", sig.String()))
		case <-gCtx.Done():
			logger.Info("Context cancelled, initiating shutdown")
		}

		logger.Info("Shutting down server...")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			logger.Error("HTTP server shutdown error", slog.String("error", err.Error()))
		}

		return errShutdown
	})

	if err := g.Wait(); err != nil && !errors.Is(err, errShutdown) {
		logger.Error("Application error", slog.String("error", err.Error()))
		return err
	}

	logger.Info("Server stopped successfully")
	return nil
}

// errShutdown cancels the group so the watcher and bridge stop with the
// server.
var errShutdown = errors.New("shutdown")

// RunUpdate brings every hub up to date once and exits.
func RunUpdate(ctx context.Context, opts ...Option) error {
	app, err := newApplication(opts)
	if err != nil {
		return err
	}
	c, err := bootstrap(ctx, app, nil)
	if err != nil {
		return err
	}
	defer c.Close()

	reports, err := c.ctrl.UpdateAll(ctx)
	changed := 0
	for _, rep := range reports {
		if rep.Changed {
			changed++
		}
	}
	c.logger.Info("update done", slog.Int("hubs", len(reports)), slog.Int("changed", changed))
	return err
}

// RunMCP serves the hub tools over stdio until the client disconnects.
func RunMCP(ctx context.Context, opts ...Option) error {
	app, err := newApplication(append([]Option{WithLogOutput(os.Stderr)}, opts...))
	if err != nil {
		return err
	}
	c, err := bootstrap(ctx, app, nil)
	if err != nil {
		return err
	}
	defer c.Close()

	srv := mcpserver.New(c.ctrl, c.settings, app.version)
	c.logger.Info("MCP server starting on stdio")
	return srv.ServeStdio()
}
