package usecase

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"CVTailor/internal/cache"
	"CVTailor/internal/domain"
	"CVTailor/internal/patch"
)

func TestAnalyzeValidatesAndCaches(t *testing.T) {
	t.Parallel()

	h := newHarness(t)
	ctx := context.Background()
	doc := h.upload(t)

	first, err := h.pipeline.Analyze(ctx, doc, backendJob)
	require.NoError(t, err)
	assert.False(t, first.Cached)
	assert.Equal(t, 62, first.Analysis.Score)
	require.Len(t, first.Analysis.Changes, 2)
	assert.Equal(t, "p1", first.Analysis.Changes[0].ID)
	assert.Equal(t, "p2", first.Analysis.Changes[1].ID)
	require.Len(t, first.Dropped, 1)
	assert.Equal(t, "p3", first.Dropped[0].Proposal.ID)
	assert.Equal(t, patch.ReasonNotFound, first.Dropped[0].Reason)

	second, err := h.pipeline.Analyze(ctx, doc, backendJob)
	require.NoError(t, err)
	assert.True(t, second.Cached)
	assert.Equal(t, first.Analysis, second.Analysis)
	assert.EqualValues(t, 1, h.analyzer.calls.Load())
	assert.EqualValues(t, 1, h.reproducer.calls.Load())

	records, err := h.pipeline.ListAnalyses(ctx, doc)
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.Equal(t, "Backend Engineer", records[0].JobTitle)
	assert.Equal(t, 2, records[0].ChangeCount)
}

func TestApplyCompilesSelectionOnce(t *testing.T) {
	t.Parallel()

	h := newHarness(t)
	ctx := context.Background()
	doc := h.upload(t)

	analysis, err := h.pipeline.Analyze(ctx, doc, backendJob)
	require.NoError(t, err)

	first, err := h.pipeline.Apply(ctx, doc, analysis.Job, []string{"p1", "p2"})
	require.NoError(t, err)
	assert.False(t, first.Cached)
	require.Len(t, first.Applied, 2)
	assert.Empty(t, first.Dropped)
	assert.EqualValues(t, 2, h.compiler.calls.Load())

	cleanKey, annotatedKey, _, _ := cache.VariantKeys(doc, analysis.Job, first.Selection)
	clean, ok := h.store.Read(ctx, cleanKey)
	require.True(t, ok)
	assert.Contains(t, string(clean), `services in Go \& Python`)
	assert.Contains(t, string(clean), `Led a team of five Go engineers.`)
	assert.Contains(t, string(clean), `\usepackage{color}`)

	annotated, ok := h.store.Read(ctx, annotatedKey)
	require.True(t, ok)
	assert.Contains(t, string(annotated), `\textcolor{OliveGreen}{\textbf{services in Go \& Python}}`)
	assert.Contains(t, string(annotated), `\usepackage{xcolor}`)

	second, err := h.pipeline.Apply(ctx, doc, analysis.Job, []string{"p2", "p1", "p1"})
	require.NoError(t, err)
	assert.True(t, second.Cached)
	assert.Equal(t, first.Selection, second.Selection)
	assert.EqualValues(t, 2, h.compiler.calls.Load())

	ref, data, err := h.pipeline.Artifact(ctx, domain.ArtifactRef{Document: doc, Variant: domain.VariantOptimizedAnnotated})
	require.NoError(t, err)
	assert.Equal(t, first.Selection, ref.Selection, "latest pointer follows the last apply")
	assert.NotEmpty(t, data)

	only, err := h.pipeline.Apply(ctx, doc, analysis.Job, []string{"p1"})
	require.NoError(t, err)
	assert.NotEqual(t, first.Selection, only.Selection)
	assert.EqualValues(t, 4, h.compiler.calls.Load())
}

func TestApplyIgnoresUnknownIDsInSelection(t *testing.T) {
	t.Parallel()

	h := newHarness(t)
	ctx := context.Background()
	doc := h.upload(t)

	analysis, err := h.pipeline.Analyze(ctx, doc, backendJob)
	require.NoError(t, err)

	first, err := h.pipeline.Apply(ctx, doc, analysis.Job, []string{"p1"})
	require.NoError(t, err)
	assert.EqualValues(t, 2, h.compiler.calls.Load())

	second, err := h.pipeline.Apply(ctx, doc, analysis.Job, []string{"p1", "bogus"})
	require.NoError(t, err)
	assert.Equal(t, first.Selection, second.Selection)
	assert.True(t, second.Cached)
	assert.EqualValues(t, 2, h.compiler.calls.Load(), "unknown ids reuse the compiled selection")
}

func TestApplyRejectsBadRequests(t *testing.T) {
	t.Parallel()

	h := newHarness(t)
	ctx := context.Background()
	doc := h.upload(t)
	jobID, err := cache.JobIdentity(backendJob)
	require.NoError(t, err)

	_, err = h.pipeline.Apply(ctx, doc, jobID, []string{"p1"})
	require.ErrorIs(t, err, domain.ErrNotFound, "apply needs a cached analysis")
	assert.Equal(t, domain.StageAnalyzed, domain.StageOf(err))

	_, err = h.pipeline.Analyze(ctx, doc, backendJob)
	require.NoError(t, err)

	_, err = h.pipeline.Apply(ctx, doc, "../escape", []string{"p1"})
	assert.Equal(t, domain.KindInput, domain.KindOf(err))

	_, err = h.pipeline.Apply(ctx, doc, jobID, nil)
	require.ErrorIs(t, err, domain.ErrInvalidInput)

	_, err = h.pipeline.Apply(ctx, doc, jobID, []string{"p3"})
	require.ErrorIs(t, err, domain.ErrInvalidInput, "p3 was dropped during validation")
	assert.EqualValues(t, 0, h.compiler.calls.Load())
}
