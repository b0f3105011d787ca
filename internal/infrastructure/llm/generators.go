package llm

import (
	"context"
	"encoding/base64"
	"fmt"
	"log/slog"
	"strings"

	"CVTailor/internal/domain"
	"CVTailor/internal/ports"
)

// Reproducer asks a vision model to reproduce page images as LaTeX.
type Reproducer struct {
	messenger Messenger
	model     string
	maxTokens int
}

var _ ports.Reproducer = (*Reproducer)(nil)

func NewReproducer(messenger Messenger, model string, maxTokens int) *Reproducer {
	return &Reproducer{messenger: messenger, model: model, maxTokens: maxTokens}
}

func (r *Reproducer) Reproduce(ctx context.Context, pages []domain.PageImage) (string, error) {
	if len(pages) == 0 {
		return "", fmt.Errorf("reproduce: no pages")
	}
	content := make([]ContentBlock, 0, len(pages)+1)
	for _, page := range pages {
		content = append(content, ContentBlock{
			Type: "image",
			Source: &ImageSource{
				Type:      "base64",
				MediaType: mediaType(page.Format),
				Data:      base64.StdEncoding.EncodeToString(page.Data),
			},
		})
	}
	content = append(content, TextBlock(reproducePrompt))

	reply, err := r.messenger.Message(ctx, MessageRequest{Model: r.model, MaxTokens: r.maxTokens, Content: content})
	if err != nil {
		return "", fmt.Errorf("reproduce: %w", err)
	}
	source := StripFences(reply)
	if source == "" {
		return "", fmt.Errorf("reproduce: %w: empty reply", ErrUnparseable)
	}
	return source, nil
}

func mediaType(format string) string {
	switch strings.ToLower(strings.TrimPrefix(format, ".")) {
	case "jpg", "jpeg":
		return "image/jpeg"
	case "gif":
		return "image/gif"
	case "webp":
		return "image/webp"
	default:
		return "image/png"
	}
}

// Analyzer scores a source against a job and proposes discrete changes.
type Analyzer struct {
	messenger Messenger
	model     string
	maxTokens int
	logger    *slog.Logger
}

var _ ports.Analyzer = (*Analyzer)(nil)

func NewAnalyzer(messenger Messenger, model string, maxTokens int, logger *slog.Logger) *Analyzer {
	if logger == nil {
		logger = slog.Default()
	}
	return &Analyzer{messenger: messenger, model: model, maxTokens: maxTokens, logger: logger.With("component", "llm.analyzer")}
}

func (a *Analyzer) Analyze(ctx context.Context, source string, job domain.JobSpec) (domain.AnalysisResult, error) {
	reply, err := a.messenger.Message(ctx, MessageRequest{
		Model:     a.model,
		MaxTokens: a.maxTokens,
		Content:   []ContentBlock{TextBlock(analyzePrompt(source, job))},
	})
	if err != nil {
		return domain.AnalysisResult{}, fmt.Errorf("analyze: %w", err)
	}
	result, err := ParseAnalysis(reply)
	if err != nil {
		a.logger.Error("analysis reply rejected", "error", err, "reply", truncate(reply, 2000))
		return domain.AnalysisResult{}, fmt.Errorf("analyze: %w", err)
	}
	return result, nil
}

// Optimizer rewrites a source for a job in one call.
type Optimizer struct {
	messenger Messenger
	model     string
	maxTokens int
}

var _ ports.Optimizer = (*Optimizer)(nil)

func NewOptimizer(messenger Messenger, model string, maxTokens int) *Optimizer {
	return &Optimizer{messenger: messenger, model: model, maxTokens: maxTokens}
}

func (o *Optimizer) Optimize(ctx context.Context, source string, job domain.JobSpec) (domain.Optimization, error) {
	reply, err := o.messenger.Message(ctx, MessageRequest{
		Model:     o.model,
		MaxTokens: o.maxTokens,
		Content:   []ContentBlock{TextBlock(optimizePrompt(source, job))},
	})
	if err != nil {
		return domain.Optimization{}, fmt.Errorf("optimize: %w", err)
	}
	opt, err := ParseOptimization(reply)
	if err != nil {
		return domain.Optimization{}, fmt.Errorf("optimize: %w", err)
	}
	return opt, nil
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}
