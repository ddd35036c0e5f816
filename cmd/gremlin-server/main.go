// Package main runs the gremlin content API server: the procedure
// dispatch layer wired to a content adapter, session provider and the
// transport middleware stack.
package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gremlinhq/gremlin/internal/app"
	"github.com/gremlinhq/gremlin/internal/auth"
	"github.com/gremlinhq/gremlin/internal/config"
	"github.com/gremlinhq/gremlin/internal/content"
	"github.com/gremlinhq/gremlin/internal/httpapi"
	"github.com/gremlinhq/gremlin/internal/logging"
	"github.com/gremlinhq/gremlin/internal/metrics"
	"github.com/gremlinhq/gremlin/internal/middleware"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	logger := logging.New("gremlin", cfg.LogLevel)
	m := metrics.New("gremlin")

	store, cleanup, err := buildStore(cfg, logger)
	if err != nil {
		logger.Fatalf("Failed to initialize content store: %v", err)
	}
	defer cleanup()

	var sessions auth.SessionProvider = auth.AnonymousProvider{}
	if cfg.JWTSecret != "" {
		sessions = auth.NewJWTProvider([]byte(cfg.JWTSecret))
		logger.Info("JWT session provider enabled")
	} else {
		logger.Warn("No JWT secret configured, all requests are anonymous")
	}

	api, err := httpapi.New(httpapi.Options{
		BasePath: cfg.BasePath,
		Content:  store,
		Auth:     sessions,
		Router:   app.NewRouter(store),
		Logger:   logger,
		Metrics:  m,
	})
	if err != nil {
		logger.Fatalf("Failed to build API handler: %v", err)
	}

	rl := middleware.NewRateLimiter(cfg.RateLimitPerSecond, cfg.RateLimitBurst, logger)

	mux := http.NewServeMux()
	mux.Handle("/metrics", m.Handler())
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	mux.Handle("/", chain(api,
		middleware.CORS(cfg.AllowedOrigins),
		rl.Handler,
		middleware.Logging(logger),
		middleware.Metrics(m),
	))

	server := &http.Server{
		Addr:         cfg.Addr,
		Handler:      mux,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  120 * time.Second,
	}

	go func() {
		logger.Infof("gremlin API listening on %s (base path %s)", cfg.Addr, cfg.BasePath)
		if err := server.ListenAndServe(); err != http.ErrServerClosed {
			logger.Fatalf("Server error: %v", err)
		}
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh

	logger.Info("Shutting down...")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Errorf("Server shutdown error: %v", err)
	}
	logger.Info("Server stopped")
}

// buildStore picks Postgres when DATABASE_URL is configured and the
// in-memory adapter otherwise. The cleanup func closes whatever was
// opened.
func buildStore(cfg *config.Config, logger *logging.Logger) (content.Adapter, func(), error) {
	if !cfg.UsePostgres() {
		logger.Info("Using in-memory content adapter")
		return content.NewMemoryAdapter(), func() {}, nil
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	pg, err := content.OpenPostgres(ctx, cfg.DatabaseURL)
	if err != nil {
		return nil, nil, err
	}
	if err := pg.EnsureSchema(ctx); err != nil {
		_ = pg.Close()
		return nil, nil, err
	}
	logger.Info("Using Postgres content adapter")
	return pg, func() { _ = pg.Close() }, nil
}

func chain(h http.Handler, outerToInner ...func(http.Handler) http.Handler) http.Handler {
	for i := len(outerToInner) - 1; i >= 0; i-- {
		h = outerToInner[i](h)
	}
	return h
}
