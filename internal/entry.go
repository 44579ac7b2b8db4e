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

	"github.com/K9kd22r8/logseq/internal/api"
	"github.com/K9kd22r8/logseq/internal/exporter"
	"github.com/K9kd22r8/logseq/internal/graphdb"
	"github.com/K9kd22r8/logseq/internal/importer"
	"github.com/K9kd22r8/logseq/internal/mcpserver"
	"github.com/K9kd22r8/logseq/internal/sse"
	"github.com/K9kd22r8/logseq/internal/storage"
)

// session is what every command needs: the graph directory, the database
// and the import session over both.
type session struct {
	cfg    *Config
	logger *slog.Logger
	store  *storage.FS
	db     *graphdb.DB
	svc    *importer.Service
	out    io.Writer
}

func (s *session) Close() error {
	return s.db.Close()
}

// open applies opts and opens the session. Logs go to logOut.
func open(logOut io.Writer, opts ...Option) (*session, error) {
	app := &application{out: os.Stdout}
	for _, opt := range opts {
		opt(app)
	}
	if app.config == nil {
		return nil, fmt.Errorf("config is required")
	}
	cfg := app.config

	// Initialize structured JSON logger.
	logger := slog.New(slog.NewJSONHandler(logOut, &slog.HandlerOptions{
		Level: cfg.App.LogLevel,
	}))
	slog.SetDefault(logger)

	logger.Info("Configuration loaded",
		slog.String("graph_path", cfg.Graph.Path),
		slog.String("sqlite_path", cfg.SQLite.Path),
		slog.String("log_level", cfg.App.LogLevel.String()))

	store, err := storage.NewFS(cfg.Graph.Path)
	if err != nil {
		return nil, fmt.Errorf("init storage: %w", err)
	}

	db, err := graphdb.Open(cfg.SQLite.Path)
	if err != nil {
		return nil, fmt.Errorf("init graph db: %w", err)
	}

	svc, err := importer.NewService(db, store, cfg.Graph.ExporterOptions(logger), logger)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("init import session: %w", err)
	}

	return &session{cfg: cfg, logger: logger, store: store, db: db, svc: svc, out: app.out}, nil
}

// RunImport imports the whole graph once and writes the report as JSON.
// It fails when any file failed to import.
func RunImport(ctx context.Context, opts ...Option) error {
	s, err := open(os.Stderr, opts...)
	if err != nil {
		return err
	}
	defer s.Close()

	report, err := s.svc.Sync(ctx)
	if err != nil {
		return fmt.Errorf("import: %w", err)
	}

	enc := json.NewEncoder(s.out)
	enc.SetIndent("", "  ")
	if err := enc.Encode(report); err != nil {
		return fmt.Errorf("write report: %w", err)
	}
	if n := len(report.Failed); n > 0 {
		return fmt.Errorf("import: %d file(s) failed", n)
	}
	return nil
}

// RunMCP serves the import session over stdio. Logs go to stderr since
// stdout carries the protocol.
func RunMCP(ctx context.Context, opts ...Option) error {
	s, err := open(os.Stderr, opts...)
	if err != nil {
		return err
	}
	defer s.Close()

	if _, err := s.svc.Sync(ctx); err != nil {
		s.logger.Warn("initial sync failed", slog.String("error", err.Error()))
	}

	s.logger.Info("MCP server starting on stdio")
	return mcpserver.New(s.svc, s.store).ServeStdio()
}

// Run starts the HTTP server with the given options: an initial sync, the
// directory watcher and the operator API.
func Run(ctx context.Context, opts ...Option) error {
	s, err := open(os.Stdout, opts...)
	if err != nil {
		return err
	}
	defer s.Close()

	cfg, logger := s.cfg, s.logger

	// Run initial sync.
	if report, err := s.svc.Sync(ctx); err != nil {
		logger.Warn("initial sync failed", slog.String("error", err.Error()))
	} else {
		logger.Info("initial sync done",
			slog.Int("imported", len(report.Imported)),
			slog.Int("failed", len(report.Failed)),
			slog.Int("ignored", len(report.Ignored)))
	}

	// SSE broker.
	broker := sse.NewBroker(2 * time.Second)
	defer broker.Close()
	notify := func(kind string, res *exporter.Result) {
		broker.PublishImportEvent(kind, importEvent(res))
	}

	apiRouter := api.NewRouter(s.svc, cfg.Auth.AuthEnabled(), cfg.Auth.Token, broker, notify)

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
		if err := s.db.Ping(); err != nil {
			http.Error(w, `{"status":"unavailable"}`, http.StatusServiceUnavailable)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"status":"ok"}`))
	})

	// Mount API routes under /api.
	r.Mount("/api", apiRouter)

	httpServer := &http.Server{
		Addr:    cfg.App.HTTP.Address(),
		Handler: r,
	}

	logger.Info("Server starting...", slog.String("http_address", cfg.App.HTTP.Address()))

	g, gCtx := errgroup.WithContext(ctx)

	// Keep the database in step with the graph directory.
	if cfg.Graph.Watch {
		g.Go(func() error {
			if err := s.svc.Watch(gCtx, notify); err != nil {
				logger.Error("watcher stopped", slog.String("error", err.Error()))
			}
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

// errShutdown cancels the group so the watcher stops with the server.
var errShutdown = errors.New("shutdown")

func importEvent(res *exporter.Result) sse.ImportEvent {
	if res == nil {
		return sse.ImportEvent{}
	}
	return sse.ImportEvent{
		File:   res.File,
		Pages:  res.Pages,
		Blocks: res.Blocks,
		Reason: res.SkipReason,
	}
}
