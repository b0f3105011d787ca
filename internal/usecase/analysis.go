package usecase

import (
	"context"
	"fmt"
	"time"

	"CVTailor/internal/cache"
	"CVTailor/internal/domain"
	"CVTailor/internal/metrics"
	"CVTailor/internal/patch"
)

// AnalyzeResult is the validated analysis of one document against one job.
type AnalyzeResult struct {
	Document domain.DocumentID        `json:"document_id"`
	Job      domain.JobID             `json:"job_id"`
	Analysis domain.AnalysisResult    `json:"analysis"`
	Dropped  []domain.DroppedProposal `json:"dropped,omitempty"`
	Cached   bool                     `json:"cached"`
}

// ApplyResult describes the artifacts compiled for an accepted-change selection.
type ApplyResult struct {
	Document  domain.DocumentID        `json:"document_id"`
	Job       domain.JobID             `json:"job_id"`
	Selection string                   `json:"selection"`
	Applied   []domain.ChangeProposal  `json:"applied"`
	Dropped   []domain.DroppedProposal `json:"dropped,omitempty"`
	Cached    bool                     `json:"cached"`
	Artifacts []domain.ArtifactRef     `json:"artifacts"`
}

// Analyze scores doc against job and returns the validated change proposals.
// Proposals whose original text does not occur in the source are dropped
// before the result is cached.
func (p *Pipeline) Analyze(ctx context.Context, doc domain.DocumentID, job domain.JobSpec) (res AnalyzeResult, err error) {
	var jobID domain.JobID
	defer func() { p.logFailure("analyze", err, doc, jobID) }()

	if err = p.requireDocument(ctx, doc); err != nil {
		return AnalyzeResult{}, err
	}
	job, jobID, err = p.resolveJob(ctx, doc, job)
	if err != nil {
		return AnalyzeResult{}, err
	}

	key := cache.JobKey(doc, jobID, cache.NameAnalysis)
	if analysis, ok := p.cachedAnalysis(ctx, key); ok {
		p.recorder.IncCacheLookup(string(domain.StageAnalyzed), true)
		return AnalyzeResult{Document: doc, Job: jobID, Analysis: analysis, Cached: true}, nil
	}
	p.recorder.IncCacheLookup(string(domain.StageAnalyzed), false)

	source, err := p.ensureSource(ctx, doc)
	if err != nil {
		return AnalyzeResult{}, err
	}

	return flight(p, "analyze:"+key.String(), func() (AnalyzeResult, error) {
		if analysis, ok := p.cachedAnalysis(ctx, key); ok {
			return AnalyzeResult{Document: doc, Job: jobID, Analysis: analysis, Cached: true}, nil
		}

		analysis, dropped, err := p.analyze(ctx, source, job)
		if err != nil {
			return AnalyzeResult{}, err
		}
		for _, d := range dropped {
			p.logger.Warn("dropping proposal", "document_id", doc, "job_id", jobID, "change_id", d.Proposal.ID, "reason", d.Reason)
			p.recorder.IncDroppedProposals(d.Reason, 1)
		}

		if err := cache.WriteJSON(ctx, p.store, key, analysis); err != nil {
			return AnalyzeResult{}, domain.NewStageError(domain.StageAnalyzed, domain.KindInternal, fmt.Errorf("store analysis: %w", err))
		}
		if p.registry != nil {
			record := domain.AnalysisRecord{
				DocumentID:  doc,
				JobID:       jobID,
				JobTitle:    job.Title,
				Score:       analysis.Score,
				ScoreLabel:  analysis.ScoreLabel,
				ChangeCount: len(analysis.Changes),
				CreatedAt:   p.now().UTC(),
			}
			if err := p.registry.RecordAnalysis(ctx, record); err != nil {
				p.logger.Warn("record analysis", "document_id", doc, "job_id", jobID, "error", err)
			}
		}

		p.logger.Info("analysis complete", "document_id", doc, "job_id", jobID,
			"score", analysis.Score, "changes", len(analysis.Changes), "dropped", len(dropped))
		return AnalyzeResult{Document: doc, Job: jobID, Analysis: analysis, Dropped: dropped}, nil
	})
}

func (p *Pipeline) analyze(ctx context.Context, source string, job domain.JobSpec) (analysis domain.AnalysisResult, dropped []domain.DroppedProposal, err error) {
	start := time.Now()
	defer func() { p.observe(domain.StageAnalyzed, start, err) }()

	if p.analyzer == nil {
		return analysis, nil, domain.NewStageError(domain.StageAnalyzed, domain.KindInternal, fmt.Errorf("no analyzer configured"))
	}
	analysis, err = p.analyzer.Analyze(ctx, source, job)
	p.recorder.ObserveCollaboratorCall("analyzer", time.Since(start), err == nil)
	if err != nil {
		return analysis, nil, domain.NewStageError(domain.StageAnalyzed, domain.KindCollaborator, fmt.Errorf("analyze source: %w", err))
	}

	analysis.Changes, dropped = patch.ValidateProposals(source, analysis.Changes)
	if analysis.Issues == nil {
		analysis.Issues = []domain.Issue{}
	}
	if analysis.Strengths == nil {
		analysis.Strengths = []domain.Strength{}
	}
	return analysis, dropped, nil
}

func (p *Pipeline) cachedAnalysis(ctx context.Context, key cache.Key) (domain.AnalysisResult, bool) {
	var analysis domain.AnalysisResult
	ok, err := cache.ReadJSON(ctx, p.store, key, &analysis)
	if err != nil {
		p.logger.Warn("discarding unreadable cached analysis", "key", key.String(), "error", err)
		return analysis, false
	}
	return analysis, ok
}

// Apply patches the accepted proposals of a cached analysis into the source
// and compiles the clean and annotated variants. Identical selections reuse
// their compiled artifacts.
func (p *Pipeline) Apply(ctx context.Context, doc domain.DocumentID, jobID domain.JobID, accepted []string) (res ApplyResult, err error) {
	defer func() { p.logFailure("apply", err, doc, jobID) }()

	if err = p.requireDocument(ctx, doc); err != nil {
		return ApplyResult{}, err
	}
	if !cache.ValidIdentity(string(jobID)) {
		return ApplyResult{}, domain.NewStageError(domain.StageAnalyzed, domain.KindInput,
			fmt.Errorf("%w: malformed job id", domain.ErrInvalidInput))
	}
	if len(accepted) == 0 {
		return ApplyResult{}, domain.NewStageError(domain.StagePatched, domain.KindInput,
			fmt.Errorf("%w: no changes accepted", domain.ErrInvalidInput))
	}

	analysis, ok := p.cachedAnalysis(ctx, cache.JobKey(doc, jobID, cache.NameAnalysis))
	if !ok {
		return ApplyResult{}, domain.NewStageError(domain.StageAnalyzed, domain.KindNotFound,
			fmt.Errorf("analysis for job %s: %w", jobID, domain.ErrNotFound))
	}
	accepted = proposedIDs(analysis.Changes, accepted)
	if len(accepted) == 0 {
		return ApplyResult{}, domain.NewStageError(domain.StagePatched, domain.KindInput,
			fmt.Errorf("%w: no accepted id matches a proposed change", domain.ErrInvalidInput))
	}

	source, err := p.ensureSource(ctx, doc)
	if err != nil {
		return ApplyResult{}, err
	}

	start := time.Now()
	patched, err := p.patcher.Apply(source, analysis.Changes, accepted)
	p.observe(domain.StagePatched, start, err)
	if err != nil {
		return ApplyResult{}, domain.NewStageError(domain.StagePatched, domain.KindCollaborator, err)
	}
	for _, d := range patched.Dropped {
		p.recorder.IncDroppedProposals(d.Reason, 1)
	}

	selection := cache.SelectionIdentity(accepted)
	cleanTex, annotatedTex, cleanPDF, annotatedPDF := cache.VariantKeys(doc, jobID, selection)
	cached := cache.FullyCached(ctx, p.store, cleanPDF, annotatedPDF)

	for _, entry := range []struct {
		key  cache.Key
		data string
	}{
		{cleanTex, patched.Clean},
		{annotatedTex, patched.Annotated},
	} {
		if p.store.Has(ctx, entry.key) {
			continue
		}
		if err := p.store.Write(ctx, entry.key, []byte(entry.data)); err != nil {
			return ApplyResult{}, domain.NewStageError(domain.StagePatched, domain.KindInternal, fmt.Errorf("store patched source: %w", err))
		}
	}

	if err = p.compileVariant(ctx, domain.StageCompiledClean, patched.Clean, cleanPDF); err != nil {
		return ApplyResult{}, err
	}
	if err = p.compileVariant(ctx, domain.StageCompiledAnnotated, patched.Annotated, annotatedPDF); err != nil {
		return ApplyResult{}, err
	}

	p.writeLatest(ctx, doc, jobID, selection)
	result := metrics.ResultSuccess
	if cached {
		result = metrics.ResultCached
	}
	p.recorder.IncStageResult(string(domain.StageDone), result)
	p.logger.Info("apply complete", "document_id", doc, "job_id", jobID, "selection", selection,
		"applied", len(patched.Applied), "dropped", len(patched.Dropped), "cached", cached)

	return ApplyResult{
		Document:  doc,
		Job:       jobID,
		Selection: selection,
		Applied:   patched.Applied,
		Dropped:   patched.Dropped,
		Cached:    cached,
		Artifacts: artifactRefs(doc, jobID, selection),
	}, nil
}

// proposedIDs keeps the accepted ids that name a proposal of the analysis, so
// unknown ids never change the selection identity.
func proposedIDs(changes []domain.ChangeProposal, accepted []string) []string {
	ids := make(map[string]struct{}, len(changes))
	for _, c := range changes {
		ids[c.ID] = struct{}{}
	}
	known := make([]string, 0, len(accepted))
	for _, id := range accepted {
		if _, ok := ids[id]; ok {
			known = append(known, id)
		}
	}
	return known
}
