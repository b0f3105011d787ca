package domain

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestStageErrorClassification(t *testing.T) {
	t.Parallel()

	cause := errors.New("vision backend overloaded")
	err := fmt.Errorf("process: %w", NewStageError(StageReproduced, KindCollaborator, cause))

	assert.Equal(t, KindCollaborator, KindOf(err))
	assert.Equal(t, StageReproduced, StageOf(err))
	assert.ErrorIs(t, err, cause)
	assert.Equal(t, "process: reproduced: vision backend overloaded", err.Error())

	again := NewStageError(StageDone, KindInternal, err)
	assert.Equal(t, StageReproduced, StageOf(again), "the innermost stage tag wins")
}

func TestKindOfSentinels(t *testing.T) {
	t.Parallel()

	assert.Equal(t, KindNotFound, KindOf(fmt.Errorf("upload: %w", ErrNotFound)))
	assert.Equal(t, KindInput, KindOf(fmt.Errorf("%w: bad", ErrInvalidInput)))
	assert.Equal(t, KindInput, KindOf(ErrTooLarge))
	assert.Equal(t, KindInternal, KindOf(errors.New("boom")))
	assert.Equal(t, Stage(""), StageOf(errors.New("boom")))
	assert.Equal(t, "boom", (&StageError{Kind: KindInternal, Err: errors.New("boom")}).Error())
}

func TestParseVariant(t *testing.T) {
	t.Parallel()

	for raw, want := range map[string]Variant{
		"original":            VariantOriginal,
		"optimized":           VariantOptimizedClean,
		"clean":               VariantOptimizedClean,
		"highlighted":         VariantOptimizedAnnotated,
		"optimized-annotated": VariantOptimizedAnnotated,
	} {
		got, ok := ParseVariant(raw)
		assert.True(t, ok, raw)
		assert.Equal(t, want, got, raw)
	}
	_, ok := ParseVariant("analyses")
	assert.False(t, ok)
}
