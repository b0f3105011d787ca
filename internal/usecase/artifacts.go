package usecase

import (
	"context"
	"fmt"

	"CVTailor/internal/cache"
	"CVTailor/internal/domain"
)

// Artifact reads a compiled artifact. A job-specific variant requested without
// a job falls back to the latest completed run of the document.
func (p *Pipeline) Artifact(ctx context.Context, ref domain.ArtifactRef) (domain.ArtifactRef, []byte, error) {
	if !cache.ValidIdentity(string(ref.Document)) {
		return ref, nil, domain.NewStageError(domain.StageDone, domain.KindInput,
			fmt.Errorf("%w: malformed document id", domain.ErrInvalidInput))
	}

	if ref.Variant != domain.VariantOriginal && ref.Job == "" {
		latest, ok := p.Latest(ctx, ref.Document)
		if !ok {
			return ref, nil, domain.NewStageError(domain.StageDone, domain.KindNotFound,
				fmt.Errorf("no completed run for document %s: %w", ref.Document, domain.ErrNotFound))
		}
		ref.Job, ref.Selection = latest.Job, latest.Selection
	}
	if ref.Job != "" && !cache.ValidIdentity(string(ref.Job)) {
		return ref, nil, domain.NewStageError(domain.StageDone, domain.KindInput,
			fmt.Errorf("%w: malformed job id", domain.ErrInvalidInput))
	}
	if ref.Selection != "" && !cache.ValidIdentity(ref.Selection) {
		return ref, nil, domain.NewStageError(domain.StageDone, domain.KindInput,
			fmt.Errorf("%w: malformed selection", domain.ErrInvalidInput))
	}

	key, ok := cache.ArtifactKey(ref)
	if !ok {
		return ref, nil, domain.NewStageError(domain.StageDone, domain.KindInput,
			fmt.Errorf("%w: unknown variant %q", domain.ErrInvalidInput, ref.Variant))
	}
	data, ok := p.store.Read(ctx, key)
	if !ok {
		return ref, nil, domain.NewStageError(domain.StageDone, domain.KindNotFound,
			fmt.Errorf("%s artifact for document %s: %w", ref.Variant, ref.Document, domain.ErrNotFound))
	}
	return ref, data, nil
}

// Latest returns the pointer to the most recent completed run of doc.
func (p *Pipeline) Latest(ctx context.Context, doc domain.DocumentID) (domain.LatestArtifacts, bool) {
	var latest domain.LatestArtifacts
	ok, err := cache.ReadJSON(ctx, p.store, cache.DocumentKey(doc, cache.NameLatest), &latest)
	if err != nil {
		p.logger.Warn("discarding unreadable latest pointer", "document_id", doc, "error", err)
		return latest, false
	}
	return latest, ok && latest.Job != ""
}

// ListAnalyses returns the analyses recorded for doc, newest first.
func (p *Pipeline) ListAnalyses(ctx context.Context, doc domain.DocumentID) ([]domain.AnalysisRecord, error) {
	if err := p.requireDocument(ctx, doc); err != nil {
		return nil, err
	}
	if p.registry == nil {
		return []domain.AnalysisRecord{}, nil
	}
	records, err := p.registry.ListAnalyses(ctx, doc)
	if err != nil {
		return nil, domain.NewStageError(domain.StageAnalyzed, domain.KindInternal, fmt.Errorf("list analyses: %w", err))
	}
	return records, nil
}
