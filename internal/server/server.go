// Package server exposes the pipeline over HTTP.
package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"CVTailor/internal/ports"
	stdlog "CVTailor/pkg/logger"
)

// Options configures the HTTP surface.
type Options struct {
	Addr            string
	FrontendURL     string
	ShutdownTimeout time.Duration
}

// Server owns the gin engine and the listening http.Server.
type Server struct {
	opts   Options
	engine *gin.Engine
	logger *slog.Logger
}

// New builds the router. metrics may be nil to omit /metrics.
func New(opts Options, svc Service, importer ports.JobImporter, metrics http.Handler, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	if opts.Addr == "" {
		opts.Addr = ":8000"
	}
	if opts.ShutdownTimeout <= 0 {
		opts.ShutdownTimeout = 15 * time.Second
	}
	logger = logger.With("component", "http")

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(requestID())
	r.Use(requestLogger(logger))
	r.Use(corsFor(opts.FrontendURL))

	h := &handlers{svc: svc, importer: importer}

	r.GET("/health", health)
	if metrics != nil {
		r.GET("/metrics", gin.WrapH(metrics))
	}

	api := r.Group("/api")
	{
		api.POST("/cv/upload", h.upload)
		api.POST("/cv/process", h.process)
		api.POST("/cv/analyze", h.analyze)
		api.POST("/cv/apply", h.apply)
		api.GET("/cv/:id/:name", h.document)
		api.POST("/jobs/import", h.importJob)
	}

	return &Server{opts: opts, engine: r, logger: logger}
}

// Handler exposes the router for tests and embedding.
func (s *Server) Handler() http.Handler {
	return s.engine
}

// Run serves until ctx is cancelled, then drains in-flight requests.
func (s *Server) Run(ctx context.Context) error {
	srv := &http.Server{
		Addr:              s.opts.Addr,
		Handler:           s.engine,
		ReadHeaderTimeout: 10 * time.Second,
		ErrorLog:          stdlog.New(s.logger, "http_server", slog.LevelError),
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("listening", "addr", s.opts.Addr)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("listen: %w", err)
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), s.opts.ShutdownTimeout)
	defer cancel()
	s.logger.Info("shutting down")
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}
	return nil
}
