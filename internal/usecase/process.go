package usecase

import (
	"context"
	"fmt"
	"strings"
	"time"

	"CVTailor/internal/cache"
	"CVTailor/internal/domain"
	"CVTailor/internal/metrics"
	"CVTailor/internal/patch"
)

// ProcessResult describes a completed direct-optimize run.
type ProcessResult struct {
	Document  domain.DocumentID       `json:"document_id"`
	Job       domain.JobID            `json:"job_id"`
	Summary   string                  `json:"summary"`
	Form      domain.OptimizationForm `json:"form,omitempty"`
	Cached    bool                    `json:"cached"`
	Artifacts []domain.ArtifactRef    `json:"artifacts"`
}

// Process runs the direct-optimize flow for doc against job and compiles both
// variants. A run whose artifacts are all cached returns without contacting
// any collaborator. A failed run leaves earlier stages cached so a retry
// resumes from the last completed stage.
func (p *Pipeline) Process(ctx context.Context, doc domain.DocumentID, job domain.JobSpec) (res ProcessResult, err error) {
	var jobID domain.JobID
	defer func() { p.logFailure("process", err, doc, jobID) }()

	if err = p.requireDocument(ctx, doc); err != nil {
		return ProcessResult{}, err
	}
	job, jobID, err = p.resolveJob(ctx, doc, job)
	if err != nil {
		return ProcessResult{}, err
	}

	_, _, cleanPDF, annotatedPDF := cache.VariantKeys(doc, jobID, "")
	summaryKey := cache.OptimizedKey(doc, jobID, cache.NameSummary)
	res = ProcessResult{Document: doc, Job: jobID, Artifacts: artifactRefs(doc, jobID, "")}

	if cache.FullyCached(ctx, p.store, cleanPDF, annotatedPDF, summaryKey) {
		summary, _ := p.store.Read(ctx, summaryKey)
		res.Summary = string(summary)
		res.Cached = true
		p.recorder.IncStageResult(string(domain.StageDone), metrics.ResultCached)
		p.writeLatest(ctx, doc, jobID, "")
		p.logger.Info("process served from cache", "document_id", doc, "job_id", jobID)
		return res, nil
	}

	source, err := p.ensureSource(ctx, doc)
	if err != nil {
		return ProcessResult{}, err
	}
	opt, err := p.ensureOptimization(ctx, doc, jobID, job, source)
	if err != nil {
		return ProcessResult{}, err
	}

	if err = p.compileVariant(ctx, domain.StageCompiledClean, opt.Clean, cleanPDF); err != nil {
		return ProcessResult{}, err
	}
	if err = p.compileVariant(ctx, domain.StageCompiledAnnotated, opt.Annotated, annotatedPDF); err != nil {
		return ProcessResult{}, err
	}

	p.writeLatest(ctx, doc, jobID, "")
	p.recorder.IncStageResult(string(domain.StageDone), metrics.ResultSuccess)
	res.Summary = opt.Summary
	res.Form = opt.Form
	p.logger.Info("process complete", "document_id", doc, "job_id", jobID, "form", opt.Form)
	return res, nil
}

// ensureOptimization returns the cached optimization for (doc, job) or asks
// the optimizer for one.
func (p *Pipeline) ensureOptimization(ctx context.Context, doc domain.DocumentID, jobID domain.JobID, job domain.JobSpec, source string) (domain.Optimization, error) {
	cleanKey, annotatedKey, _, _ := cache.VariantKeys(doc, jobID, "")
	summaryKey := cache.OptimizedKey(doc, jobID, cache.NameSummary)

	if opt, ok := p.cachedOptimization(ctx, cleanKey, annotatedKey, summaryKey); ok {
		p.recorder.IncCacheLookup(string(domain.StageOptimized), true)
		return opt, nil
	}
	p.recorder.IncCacheLookup(string(domain.StageOptimized), false)

	return flight(p, "optimize:"+cleanKey.String(), func() (opt domain.Optimization, err error) {
		if cached, ok := p.cachedOptimization(ctx, cleanKey, annotatedKey, summaryKey); ok {
			return cached, nil
		}

		start := time.Now()
		defer func() { p.observe(domain.StageOptimized, start, err) }()

		if p.optimizer == nil {
			return opt, domain.NewStageError(domain.StageOptimized, domain.KindInternal, fmt.Errorf("no optimizer configured"))
		}
		opt, err = p.optimizer.Optimize(ctx, source, job)
		p.recorder.ObserveCollaboratorCall("optimizer", time.Since(start), err == nil)
		if err != nil {
			return opt, domain.NewStageError(domain.StageOptimized, domain.KindCollaborator, fmt.Errorf("optimize source: %w", err))
		}
		if strings.TrimSpace(opt.Clean) == "" {
			return opt, domain.NewStageError(domain.StageOptimized, domain.KindCollaborator, fmt.Errorf("optimizer returned an empty source"))
		}
		if opt.Form == domain.OptimizationFallback {
			p.logger.Warn("optimizer response had no section markers; using it as the clean source", "document_id", doc, "job_id", jobID)
		}

		opt = normalizeOptimization(opt)
		for _, entry := range []struct {
			key  cache.Key
			data string
		}{
			{cleanKey, opt.Clean},
			{annotatedKey, opt.Annotated},
			{summaryKey, opt.Summary},
		} {
			if err := p.store.Write(ctx, entry.key, []byte(entry.data)); err != nil {
				return opt, domain.NewStageError(domain.StageOptimized, domain.KindInternal, fmt.Errorf("store optimization: %w", err))
			}
		}
		return opt, nil
	})
}

func (p *Pipeline) cachedOptimization(ctx context.Context, cleanKey, annotatedKey, summaryKey cache.Key) (domain.Optimization, bool) {
	clean, ok := p.store.Read(ctx, cleanKey)
	if !ok {
		return domain.Optimization{}, false
	}
	annotated, ok := p.store.Read(ctx, annotatedKey)
	if !ok {
		return domain.Optimization{}, false
	}
	summary, ok := p.store.Read(ctx, summaryKey)
	if !ok {
		return domain.Optimization{}, false
	}
	return domain.Optimization{Clean: string(clean), Annotated: string(annotated), Summary: string(summary)}, true
}

// normalizeOptimization fills missing renderings and applies the same spacing
// and colour preparation the patch engine applies to its variants.
func normalizeOptimization(opt domain.Optimization) domain.Optimization {
	if strings.TrimSpace(opt.Annotated) == "" {
		opt.Annotated = opt.Clean
	}
	if strings.TrimSpace(opt.Summary) == "" {
		opt.Summary = domain.DefaultSummary
	}
	opt.Summary = strings.TrimSpace(opt.Summary)
	opt.Clean = patch.NormalizeSpacing(opt.Clean)
	opt.Annotated = patch.NormalizeSpacing(patch.EnsureColorSupport(opt.Annotated))
	return opt
}
