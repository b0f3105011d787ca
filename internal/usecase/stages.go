package usecase

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"CVTailor/internal/cache"
	"CVTailor/internal/domain"
)

var (
	errNoPages     = errors.New("extractor returned no pages")
	errEmptySource = errors.New("reproducer returned an empty source")
)

// ensureSource returns the reproduced markup source of doc, extracting and
// reproducing it on a cache miss. The source is job independent and written
// once.
func (p *Pipeline) ensureSource(ctx context.Context, doc domain.DocumentID) (string, error) {
	key := cache.DocumentKey(doc, cache.NameSource)
	if data, ok := p.store.Read(ctx, key); ok {
		p.recorder.IncCacheLookup(string(domain.StageReproduced), true)
		p.logger.Debug("source cache hit", "document_id", doc)
		return string(data), nil
	}
	p.recorder.IncCacheLookup(string(domain.StageReproduced), false)

	return flight(p, "source:"+key.String(), func() (string, error) {
		// A joined flight may have finished between the miss and this call.
		if data, ok := p.store.Read(ctx, key); ok {
			return string(data), nil
		}

		upload, ok := p.store.Read(ctx, cache.DocumentKey(doc, cache.NameUpload))
		if !ok {
			return "", domain.NewStageError(domain.StageUploaded, domain.KindNotFound,
				fmt.Errorf("document %s: %w", doc, domain.ErrNotFound))
		}

		pages, err := p.extract(ctx, upload)
		if err != nil {
			return "", err
		}
		source, err := p.reproduce(ctx, pages)
		if err != nil {
			return "", err
		}

		if err := p.store.Write(ctx, key, []byte(source)); err != nil {
			return "", domain.NewStageError(domain.StageReproduced, domain.KindInternal, fmt.Errorf("store source: %w", err))
		}
		p.logger.Info("source reproduced", "document_id", doc, "pages", len(pages), "bytes", len(source))
		return source, nil
	})
}

func (p *Pipeline) extract(ctx context.Context, upload []byte) (pages []domain.PageImage, err error) {
	start := time.Now()
	defer func() { p.observe(domain.StageExtracted, start, err) }()

	if p.extractor == nil {
		return nil, domain.NewStageError(domain.StageExtracted, domain.KindInternal, errors.New("no page extractor configured"))
	}
	pages, err = p.extractor.Extract(ctx, upload)
	p.recorder.ObserveCollaboratorCall("extractor", time.Since(start), err == nil)
	if err != nil {
		return nil, domain.NewStageError(domain.StageExtracted, domain.KindCollaborator, fmt.Errorf("extract pages: %w", err))
	}
	if len(pages) == 0 {
		return nil, domain.NewStageError(domain.StageExtracted, domain.KindCollaborator, errNoPages)
	}
	return pages, nil
}

func (p *Pipeline) reproduce(ctx context.Context, pages []domain.PageImage) (source string, err error) {
	start := time.Now()
	defer func() { p.observe(domain.StageReproduced, start, err) }()

	if p.reproducer == nil {
		return "", domain.NewStageError(domain.StageReproduced, domain.KindInternal, errors.New("no reproducer configured"))
	}
	source, err = p.reproducer.Reproduce(ctx, pages)
	p.recorder.ObserveCollaboratorCall("reproducer", time.Since(start), err == nil)
	if err != nil {
		return "", domain.NewStageError(domain.StageReproduced, domain.KindCollaborator, fmt.Errorf("reproduce source: %w", err))
	}
	if strings.TrimSpace(source) == "" {
		return "", domain.NewStageError(domain.StageReproduced, domain.KindCollaborator, errEmptySource)
	}
	return source, nil
}

// compileVariant compiles source into the artifact at key unless it is
// already cached. Only a complete artifact is ever written to the cache.
func (p *Pipeline) compileVariant(ctx context.Context, stage domain.Stage, source string, key cache.Key) error {
	hit := p.store.Has(ctx, key)
	p.recorder.IncCacheLookup(string(stage), hit)
	if hit {
		p.logger.Debug("artifact cache hit", "stage", stage, "key", key.String())
		return nil
	}

	_, err := flight(p, "compile:"+key.String(), func() (struct{}, error) {
		if p.store.Has(ctx, key) {
			return struct{}{}, nil
		}
		return struct{}{}, p.compile(ctx, stage, source, key)
	})
	return err
}

func (p *Pipeline) compile(ctx context.Context, stage domain.Stage, source string, key cache.Key) (err error) {
	start := time.Now()
	defer func() { p.observe(stage, start, err) }()

	if p.compiler == nil {
		return domain.NewStageError(stage, domain.KindInternal, errors.New("no compiler configured"))
	}
	doc, err := p.compiler.Compile(ctx, source)
	p.recorder.ObserveCollaboratorCall("compiler", time.Since(start), err == nil)
	if err != nil {
		return domain.NewStageError(stage, domain.KindCompiler, err)
	}
	defer func() {
		if rErr := p.compiler.Release(doc); rErr != nil {
			p.logger.Warn("release compiler work dir", "dir", doc.WorkDir, "error", rErr)
		}
	}()

	data, err := os.ReadFile(doc.Path)
	if err != nil {
		return domain.NewStageError(stage, domain.KindInternal, fmt.Errorf("read compiled artifact: %w", err))
	}
	if err := p.store.Write(ctx, key, data); err != nil {
		return domain.NewStageError(stage, domain.KindInternal, fmt.Errorf("store compiled artifact: %w", err))
	}
	p.logger.Info("artifact compiled", "stage", stage, "key", key.String(), "bytes", len(data), "duration", time.Since(start))
	return nil
}
