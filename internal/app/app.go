package app

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"

	"github.com/gin-gonic/gin"
	prom "github.com/prometheus/client_golang/prometheus"

	"CVTailor/internal/cache"
	"CVTailor/internal/compiler"
	"CVTailor/internal/config"
	"CVTailor/internal/domain"
	"CVTailor/internal/infrastructure/jobpage"
	"CVTailor/internal/infrastructure/llm"
	"CVTailor/internal/infrastructure/pdf"
	"CVTailor/internal/infrastructure/scheduler"
	"CVTailor/internal/infrastructure/storage"
	"CVTailor/internal/logging"
	"CVTailor/internal/metrics"
	"CVTailor/internal/server"
	"CVTailor/internal/usecase"
)

// Application wires configs to adapters, the pipeline and its surfaces.
type Application struct {
	cfg      config.Config
	logger   *slog.Logger
	pipeline *usecase.Pipeline
	compiler *compiler.Driver
	registry *storage.SQLiteRegistry
	recorder *metrics.PrometheusRecorder
	importer *jobpage.Importer
	janitor  *usecase.Janitor
}

// New builds the application. Missing external binaries or credentials are
// logged, not fatal: the affected stages fail per request instead.
func New(cfg config.Config, baseLogger *slog.Logger) (*Application, error) {
	if baseLogger == nil {
		baseLogger = logging.New(cfg.Logging.Level)
	}

	store, err := cache.NewFSStore(cfg.Storage.CacheDir(), baseLogger)
	if err != nil {
		return nil, fmt.Errorf("open stage cache: %w", err)
	}

	registry, err := storage.OpenSQLiteRegistry(cfg.Storage.RegistryFile())
	if err != nil {
		return nil, fmt.Errorf("open registry: %w", err)
	}

	driver := NewCompiler(cfg, baseLogger)
	if err := driver.AssertReady(); err != nil {
		baseLogger.Warn("compiler not ready", "error", err)
	}

	extractor := pdf.NewExtractor(pdf.Options{
		Binary:  cfg.Extractor.Binary,
		DPI:     cfg.Extractor.DPI,
		Timeout: cfg.Extractor.Timeout,
	}, baseLogger)
	if err := extractor.AssertReady(); err != nil {
		baseLogger.Warn("page extractor not ready", "error", err)
	}

	if cfg.Anthropic.APIKey == "" {
		baseLogger.Warn("ANTHROPIC_API_KEY is not set; generation stages will fail")
	}
	client := llm.NewAnthropicClient(cfg.Anthropic, baseLogger)

	defaultJob, err := LoadJob(cfg.Pipeline.DefaultJobPath)
	if err != nil && !errors.Is(err, os.ErrNotExist) {
		baseLogger.Warn("default job unreadable", "path", cfg.Pipeline.DefaultJobPath, "error", err)
	}

	mode, _ := cache.ParseIdentityMode(cfg.Identity.Mode)
	recorder := metrics.NewPrometheusRecorder(prom.NewRegistry())

	pipeline := usecase.NewPipeline(usecase.PipelineDeps{
		Cache:          store,
		Extractor:      extractor,
		Reproducer:     llm.NewReproducer(client, cfg.Anthropic.VisionModel, cfg.Anthropic.MaxTokens),
		Analyzer:       llm.NewAnalyzer(client, cfg.Anthropic.AnalysisModel, cfg.Anthropic.MaxTokens, baseLogger),
		Optimizer:      llm.NewOptimizer(client, cfg.Anthropic.OptimizationModel, cfg.Anthropic.MaxTokens),
		Compiler:       driver,
		Registry:       registry,
		Recorder:       recorder,
		Logger:         baseLogger,
		IdentityMode:   mode,
		MaxUploadBytes: cfg.Server.MaxUploadBytes,
		DefaultJob:     defaultJob,
		SingleFlight:   cfg.Pipeline.SingleFlightEnabled(),
	})

	return &Application{
		cfg:      cfg,
		logger:   baseLogger,
		pipeline: pipeline,
		compiler: driver,
		registry: registry,
		recorder: recorder,
		importer: jobpage.NewImporter(nil, baseLogger),
		janitor: usecase.NewJanitor(scheduler.NewTickerScheduler(cfg.Janitor.Interval),
			driver, cfg.Janitor.MaxAge, baseLogger),
	}, nil
}

// Pipeline exposes the orchestrator for one-shot commands.
func (a *Application) Pipeline() *usecase.Pipeline {
	return a.pipeline
}

// Compiler exposes the compiler driver for one-shot commands.
func (a *Application) Compiler() *compiler.Driver {
	return a.compiler
}

// Serve runs the HTTP surface and the janitor until ctx is cancelled.
func (a *Application) Serve(ctx context.Context) error {
	gin.SetMode(gin.ReleaseMode)

	if err := a.janitor.Start(ctx); err != nil {
		return fmt.Errorf("start janitor: %w", err)
	}
	defer func() {
		if err := a.janitor.Stop(context.Background()); err != nil {
			a.logger.Warn("stop janitor", "error", err)
		}
	}()

	srv := server.New(server.Options{
		Addr:        a.cfg.Server.Addr,
		FrontendURL: a.cfg.Server.FrontendURL,
	}, a.pipeline, a.importer, a.recorder.Handler(), a.logger)
	return srv.Run(ctx)
}

// Close releases the registry database.
func (a *Application) Close() error {
	if a.registry == nil {
		return nil
	}
	return a.registry.Close()
}

// NewCompiler builds the compiler driver from configuration.
func NewCompiler(cfg config.Config, logger *slog.Logger) *compiler.Driver {
	return compiler.New(compiler.Options{
		Binary:             cfg.Compiler.Binary,
		Passes:             cfg.Compiler.Passes,
		Timeout:            cfg.Compiler.Timeout,
		WorkRoot:           cfg.Compiler.WorkRoot,
		MaxDiagnosticLines: cfg.Compiler.MaxDiagnosticLines,
	}, logger)
}

// LoadJob reads a JSON job spec. An empty path yields a zero spec.
func LoadJob(path string) (domain.JobSpec, error) {
	var job domain.JobSpec
	if path == "" {
		return job, nil
	}
	raw, err := os.ReadFile(path)
	if err != nil {
		return job, fmt.Errorf("read job: %w", err)
	}
	if err := json.Unmarshal(raw, &job); err != nil {
		return job, fmt.Errorf("decode job %s: %w", path, err)
	}
	return jobpage.NormalizeSpec(job), nil
}
