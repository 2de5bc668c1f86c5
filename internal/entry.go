// Package internal provides the main application initialization and runtime logic.
package internal

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"golang.org/x/sync/errgroup"

	"github.com/starford/mimir/internal/api"
	"github.com/starford/mimir/internal/mcpserver"
	"github.com/starford/mimir/internal/metrics"
	"github.com/starford/mimir/internal/noteservice"
	"github.com/starford/mimir/internal/sse"
	"github.com/starford/mimir/internal/tools"
	"github.com/starford/mimir/internal/watcher"
)

func setup(opts []Option) (*application, *slog.Logger, error) {
	app := &application{logOutput: os.Stdout, version: "dev"}
	for _, opt := range opts {
		opt(app)
	}
	if app.config == nil {
		return nil, nil, fmt.Errorf("config is required")
	}

	// Initialize structured JSON logger.
	logger := slog.New(slog.NewJSONHandler(app.logOutput, &slog.HandlerOptions{
		Level: app.config.App.LogLevel,
	}))
	slog.SetDefault(logger)

	cfg := app.config
	logger.Info("Configuration loaded",
		slog.String("http_address", cfg.App.HTTP.Address()),
		slog.String("vault_path", cfg.Vault.Path),
		slog.String("vault_pattern", cfg.Vault.Pattern),
		slog.String("sqlite_path", cfg.SQLite.Resolve(cfg.Vault.Path)),
		slog.String("log_level", cfg.App.LogLevel.String()))
	return app, logger, nil
}

// Run starts the HTTP server with the given options.
func Run(ctx context.Context, opts ...Option) error {
	app, logger, err := setup(opts)
	if err != nil {
		return err
	}
	cfg := app.config

	// SSE broker receives committed note changes from the service.
	broker := sse.NewBroker(2*time.Second, sse.WithLogger(logger))
	defer broker.Close()

	rt, err := openRuntime(cfg, logger, noteservice.WithEventCallback(broker.PublishNoteEvent))
	if err != nil {
		return err
	}
	defer rt.Close()

	if cfg.Vault.ScanOnStart {
		if _, err := rt.svc.ScanAndIndexVault(ctx, ""); err != nil {
			logger.Warn("initial vault scan failed", slog.String("error", err.Error()))
		}
	}

	apiRouter := api.NewRouter(rt.svc, cfg.Auth.AuthEnabled(), cfg.Auth.Token, broker)

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
	r.Get("/health/ready", func(w http.ResponseWriter, req *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		if _, err := rt.db.ListNotes(req.Context()); err != nil {
			w.WriteHeader(http.StatusServiceUnavailable)
			_, _ = w.Write([]byte(`{"status":"unavailable"}`))
			return
		}
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"status":"ok"}`))
	})
	r.Handle("/metrics", metrics.Handler())

	r.Mount("/api", apiRouter)

	httpServer := &http.Server{
		Addr:              cfg.App.HTTP.Address(),
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}

	logger.Info("Server starting...", slog.String("http_address", cfg.App.HTTP.Address()))

	g, gCtx := errgroup.WithContext(ctx)

	if cfg.Vault.Watch {
		events, err := watcher.Watch(gCtx, cfg.Vault.Path,
			watcher.WithPattern(cfg.Vault.Pattern),
			watcher.WithLogger(logger))
		if err != nil {
			return fmt.Errorf("start watcher: %w", err)
		}
		g.Go(func() error {
			consumeVaultEvents(gCtx, rt.svc, events, broker, logger)
			return nil
		})
	}

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

// errShutdown cancels the group so the watcher consumer stops with the server.
var errShutdown = errors.New("shutdown")

// vaultScanner is the part of the service the watcher consumer needs.
type vaultScanner interface {
	ScanAndIndexVault(ctx context.Context, pathOverride string) (noteservice.ScanReport, error)
}

// consumeVaultEvents applies each watcher batch by running a vault scan, so
// new files go through the regular create path.
func consumeVaultEvents(ctx context.Context, svc vaultScanner, events <-chan []watcher.Event, broker *sse.Broker, logger *slog.Logger) {
	for batch := range events {
		logger.Debug("watcher: batch", slog.Int("events", len(batch)))
		report, err := svc.ScanAndIndexVault(ctx, "")
		if err != nil {
			logger.Warn("watcher: scan failed", slog.String("error", err.Error()))
			continue
		}
		if report.Imported > 0 && broker != nil {
			broker.Publish(sse.Event{Type: sse.TypeVaultScanned, Data: report})
		}
	}
}

// RunMCP serves the note tools over stdio until stdin closes.
func RunMCP(_ context.Context, opts ...Option) error {
	opts = append([]Option{WithLogOutput(os.Stderr)}, opts...)
	app, logger, err := setup(opts)
	if err != nil {
		return err
	}

	rt, err := openRuntime(app.config, logger)
	if err != nil {
		return err
	}
	defer rt.Close()

	srv := mcpserver.New(tools.New(rt.svc), app.version)
	logger.Info("MCP server starting on stdio")
	return srv.ServeStdio()
}

// RunScan imports the vault (or dir, relative to it) once and writes the
// report as JSON to out.
func RunScan(ctx context.Context, dir string, out io.Writer, opts ...Option) error {
	opts = append([]Option{WithLogOutput(os.Stderr)}, opts...)
	app, logger, err := setup(opts)
	if err != nil {
		return err
	}

	rt, err := openRuntime(app.config, logger)
	if err != nil {
		return err
	}
	defer rt.Close()

	report, err := rt.svc.ScanAndIndexVault(ctx, dir)
	if err != nil {
		return err
	}
	return json.NewEncoder(out).Encode(report)
}
