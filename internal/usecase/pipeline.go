package usecase

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"path/filepath"
	"strings"
	"time"

	"golang.org/x/sync/singleflight"

	"CVTailor/internal/cache"
	"CVTailor/internal/domain"
	"CVTailor/internal/metrics"
	"CVTailor/internal/patch"
	"CVTailor/internal/ports"
)

// DefaultMaxUploadBytes caps accepted uploads when no limit is configured.
const DefaultMaxUploadBytes = 10 << 20

var pdfMagic = []byte("%PDF-")

// PipelineDeps wires all driven adapters into the orchestration pipeline.
type PipelineDeps struct {
	Cache      cache.Store
	Extractor  ports.PageExtractor
	Reproducer ports.Reproducer
	Analyzer   ports.Analyzer
	Optimizer  ports.Optimizer
	Compiler   ports.Compiler
	Registry   ports.DocumentRegistry
	Patcher    *patch.Engine
	Recorder   metrics.Recorder
	Logger     *slog.Logger

	IdentityMode   cache.IdentityMode
	MaxUploadBytes int64
	// DefaultJob is used by Process and Analyze when the request carries no job.
	DefaultJob domain.JobSpec
	// SingleFlight collapses identical concurrent stage computations into one call.
	SingleFlight bool
	Now          func() time.Time
}

// Pipeline orchestrates upload, reproduction, analysis or optimization,
// patching and compilation, consulting the stage cache at every boundary.
type Pipeline struct {
	store      cache.Store
	extractor  ports.PageExtractor
	reproducer ports.Reproducer
	analyzer   ports.Analyzer
	optimizer  ports.Optimizer
	compiler   ports.Compiler
	registry   ports.DocumentRegistry
	patcher    *patch.Engine
	recorder   metrics.Recorder
	logger     *slog.Logger

	identityMode   cache.IdentityMode
	maxUploadBytes int64
	defaultJob     domain.JobSpec
	singleFlight   bool
	flight         singleflight.Group
	now            func() time.Time
}

// NewPipeline constructs the orchestration component.
func NewPipeline(deps PipelineDeps) *Pipeline {
	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}
	recorder := deps.Recorder
	if recorder == nil {
		recorder = metrics.NoopRecorder{}
	}
	patcher := deps.Patcher
	if patcher == nil {
		patcher = patch.NewEngine(logger)
	}
	mode := deps.IdentityMode
	if mode == "" {
		mode = cache.IdentityContent
	}
	maxUpload := deps.MaxUploadBytes
	if maxUpload <= 0 {
		maxUpload = DefaultMaxUploadBytes
	}
	now := deps.Now
	if now == nil {
		now = time.Now
	}

	return &Pipeline{
		store:          deps.Cache,
		extractor:      deps.Extractor,
		reproducer:     deps.Reproducer,
		analyzer:       deps.Analyzer,
		optimizer:      deps.Optimizer,
		compiler:       deps.Compiler,
		registry:       deps.Registry,
		patcher:        patcher,
		recorder:       recorder,
		logger:         logger.With("component", "pipeline"),
		identityMode:   mode,
		maxUploadBytes: maxUpload,
		defaultJob:     deps.DefaultJob,
		singleFlight:   deps.SingleFlight,
		now:            now,
	}
}

// MaxUploadBytes reports the configured upload limit.
func (p *Pipeline) MaxUploadBytes() int64 {
	return p.maxUploadBytes
}

// Upload validates a PDF upload and stores it under its document identity.
// Content-addressed uploads are written once; a repeated upload reuses every
// artifact already derived from it.
func (p *Pipeline) Upload(ctx context.Context, filename, contentType string, data []byte) (domain.Upload, error) {
	if err := p.validateUpload(filename, contentType, data); err != nil {
		return domain.Upload{}, err
	}

	id := cache.DocumentIdentity(p.identityMode, data)
	key := cache.DocumentKey(id, cache.NameUpload)
	hit := p.store.Has(ctx, key)
	p.recorder.IncCacheLookup(string(domain.StageUploaded), hit)
	if !hit {
		if err := p.store.Write(ctx, key, data); err != nil {
			return domain.Upload{}, domain.NewStageError(domain.StageUploaded, domain.KindInternal, fmt.Errorf("store upload: %w", err))
		}
	}

	upload := domain.Upload{
		ID:        id,
		Filename:  filepath.Base(filename),
		Size:      int64(len(data)),
		CreatedAt: p.now().UTC(),
	}
	if p.registry != nil {
		if err := p.registry.RecordUpload(ctx, upload); err != nil {
			p.logger.Warn("record upload", "document_id", id, "error", err)
		}
	}

	p.logger.Info("document uploaded", "document_id", id, "size", upload.Size, "reused", hit)
	return upload, nil
}

func (p *Pipeline) validateUpload(filename, contentType string, data []byte) error {
	invalid := func(format string, args ...any) error {
		return domain.NewStageError(domain.StageUploaded, domain.KindInput,
			fmt.Errorf("%w: %s", domain.ErrInvalidInput, fmt.Sprintf(format, args...)))
	}

	if !strings.EqualFold(filepath.Ext(filename), ".pdf") {
		return invalid("only PDF files are accepted")
	}
	if ct := strings.ToLower(strings.TrimSpace(contentType)); ct != "" {
		if i := strings.IndexByte(ct, ';'); i >= 0 {
			ct = strings.TrimSpace(ct[:i])
		}
		switch ct {
		case "application/pdf", "application/x-pdf", "application/octet-stream":
		default:
			return invalid("unsupported content type %q", contentType)
		}
	}
	if len(data) == 0 {
		return invalid("empty upload")
	}
	if int64(len(data)) > p.maxUploadBytes {
		return domain.NewStageError(domain.StageUploaded, domain.KindInput,
			fmt.Errorf("%w: upload exceeds %d bytes", domain.ErrTooLarge, p.maxUploadBytes))
	}
	if !bytes.HasPrefix(data, pdfMagic) {
		return invalid("file is not a PDF document")
	}
	return nil
}

// resolveJob falls back to the default job and derives the job identity.
func (p *Pipeline) resolveJob(ctx context.Context, doc domain.DocumentID, job domain.JobSpec) (domain.JobSpec, domain.JobID, error) {
	if job.IsZero() {
		job = p.defaultJob
	}
	if job.IsZero() {
		return job, "", domain.NewStageError(domain.StageAnalyzed, domain.KindInput,
			fmt.Errorf("%w: job description is required", domain.ErrInvalidInput))
	}
	jobID, err := cache.JobIdentity(job)
	if err != nil {
		return job, "", domain.NewStageError(domain.StageAnalyzed, domain.KindInput, err)
	}

	key := cache.JobKey(doc, jobID, cache.NameJob)
	if !p.store.Has(ctx, key) {
		canonical, err := cache.CanonicalJob(job)
		if err == nil {
			err = p.store.Write(ctx, key, canonical)
		}
		if err != nil {
			p.logger.Warn("persist job spec", "document_id", doc, "job_id", jobID, "error", err)
		}
	}
	return job, jobID, nil
}

// requireDocument checks the identity shape and that the upload exists.
func (p *Pipeline) requireDocument(ctx context.Context, doc domain.DocumentID) error {
	if !cache.ValidIdentity(string(doc)) {
		return domain.NewStageError(domain.StageUploaded, domain.KindInput,
			fmt.Errorf("%w: malformed document id", domain.ErrInvalidInput))
	}
	if !p.store.Has(ctx, cache.DocumentKey(doc, cache.NameUpload)) {
		return domain.NewStageError(domain.StageUploaded, domain.KindNotFound,
			fmt.Errorf("document %s: %w", doc, domain.ErrNotFound))
	}
	return nil
}

func (p *Pipeline) writeLatest(ctx context.Context, doc domain.DocumentID, job domain.JobID, selection string) {
	latest := domain.LatestArtifacts{Job: job, Selection: selection, UpdatedAt: p.now().UTC()}
	if err := cache.WriteJSON(ctx, p.store, cache.DocumentKey(doc, cache.NameLatest), latest); err != nil {
		p.logger.Warn("write latest pointer", "document_id", doc, "error", err)
	}
}

func (p *Pipeline) logFailure(op string, err error, doc domain.DocumentID, job domain.JobID) {
	if err == nil {
		return
	}
	p.logger.Error(op+" failed",
		"stage", domain.StageOf(err),
		"kind", domain.KindOf(err),
		"document_id", doc,
		"job_id", job,
		"error", err,
	)
}

func (p *Pipeline) observe(stage domain.Stage, start time.Time, err error) {
	p.recorder.ObserveStageDuration(string(stage), time.Since(start))
	result := metrics.ResultSuccess
	if err != nil {
		result = metrics.ResultFailed
	}
	p.recorder.IncStageResult(string(stage), result)
}

// flight runs fn once per key among concurrent callers when single-flight is
// enabled. Joined callers share the first caller's result and context.
func flight[T any](p *Pipeline, key string, fn func() (T, error)) (T, error) {
	if !p.singleFlight {
		return fn()
	}
	v, err, shared := p.flight.Do(key, func() (any, error) {
		return fn()
	})
	if shared {
		p.logger.Debug("joined in-flight computation", "key", key)
	}
	out, _ := v.(T)
	return out, err
}

func artifactRefs(doc domain.DocumentID, job domain.JobID, selection string) []domain.ArtifactRef {
	return []domain.ArtifactRef{
		{Document: doc, Variant: domain.VariantOriginal},
		{Document: doc, Job: job, Selection: selection, Variant: domain.VariantOptimizedClean},
		{Document: doc, Job: job, Selection: selection, Variant: domain.VariantOptimizedAnnotated},
	}
}
