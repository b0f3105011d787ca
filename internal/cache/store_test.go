package cache

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"CVTailor/internal/domain"
)

func TestFSStoreRoundTrip(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	store, err := NewFSStore(t.TempDir(), nil)
	require.NoError(t, err)

	key := JobKey("doc1", "job1", NameAnalysis)
	assert.False(t, store.Has(ctx, key))

	require.NoError(t, store.Write(ctx, key, []byte(`{"score":80}`)))
	assert.True(t, store.Has(ctx, key))

	data, ok := store.Read(ctx, key)
	require.True(t, ok)
	assert.Equal(t, `{"score":80}`, string(data))

	require.NoError(t, store.Write(ctx, key, []byte(`{"score":90}`)))
	data, ok = store.Read(ctx, key)
	require.True(t, ok)
	assert.Equal(t, `{"score":90}`, string(data), "last write wins")
}

func TestFSStoreTreatsCorruptionAsMiss(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	root := t.TempDir()
	store, err := NewFSStore(root, nil)
	require.NoError(t, err)

	empty := DocumentKey("doc1", NameSource)
	require.NoError(t, os.MkdirAll(filepath.Join(root, "documents", "doc1"), 0o750))
	require.NoError(t, os.WriteFile(filepath.Join(root, "documents", "doc1", NameSource), nil, 0o600))

	assert.False(t, store.Has(ctx, empty))
	_, ok := store.Read(ctx, empty)
	assert.False(t, ok)

	// A directory where a file is expected cannot be read.
	dirKey := DocumentKey("doc1", NameLatest)
	require.NoError(t, os.MkdirAll(filepath.Join(root, "documents", "doc1", NameLatest), 0o750))
	_, ok = store.Read(ctx, dirKey)
	assert.False(t, ok)
	assert.False(t, store.Has(ctx, dirKey))
}

func TestReadJSONReportsUndecodableEntries(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	store := NewMemoryStore()
	key := JobKey("doc1", "job1", NameAnalysis)

	var result domain.AnalysisResult
	ok, err := ReadJSON(ctx, store, key, &result)
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, store.Write(ctx, key, []byte(`{"score":`)))
	ok, err = ReadJSON(ctx, store, key, &result)
	assert.Error(t, err)
	assert.False(t, ok)

	require.NoError(t, WriteJSON(ctx, store, key, domain.AnalysisResult{Score: 71, ScoreLabel: "Good Match"}))
	ok, err = ReadJSON(ctx, store, key, &result)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, 71, result.Score)
}

func TestFullyCached(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	store := NewMemoryStore()
	_, _, cleanPDF, annotatedPDF := VariantKeys("doc1", "job1", "")
	summary := OptimizedKey("doc1", "job1", NameSummary)

	assert.False(t, FullyCached(ctx, store))
	require.NoError(t, store.Write(ctx, cleanPDF, []byte("pdf")))
	require.NoError(t, store.Write(ctx, annotatedPDF, []byte("pdf")))
	assert.False(t, FullyCached(ctx, store, cleanPDF, annotatedPDF, summary))

	require.NoError(t, store.Write(ctx, summary, []byte("- tightened wording")))
	assert.True(t, FullyCached(ctx, store, cleanPDF, annotatedPDF, summary))
}

func TestKeysDoNotCollide(t *testing.T) {
	t.Parallel()

	optimized, _, _, _ := VariantKeys("doc1", "job1", "")
	applied, _, _, _ := VariantKeys("doc1", "job1", "sel1")
	otherJob, _, _, _ := VariantKeys("doc1", "job2", "")

	assert.Equal(t, "documents/doc1/jobs/job1/optimized/clean.tex", optimized.String())
	assert.Equal(t, "documents/doc1/jobs/job1/applied/sel1/clean.tex", applied.String())
	assert.NotEqual(t, optimized, otherJob)
}

func TestArtifactKey(t *testing.T) {
	t.Parallel()

	key, ok := ArtifactKey(domain.ArtifactRef{Document: "doc1", Variant: domain.VariantOriginal})
	require.True(t, ok)
	assert.Equal(t, "documents/doc1/upload.pdf", key.String())

	key, ok = ArtifactKey(domain.ArtifactRef{Document: "doc1", Job: "job1", Selection: "sel", Variant: domain.VariantOptimizedAnnotated})
	require.True(t, ok)
	assert.Equal(t, "documents/doc1/jobs/job1/applied/sel/annotated.pdf", key.String())

	_, ok = ArtifactKey(domain.ArtifactRef{Document: "doc1", Variant: domain.VariantOptimizedClean})
	assert.False(t, ok)
}
