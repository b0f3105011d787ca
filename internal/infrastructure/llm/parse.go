package llm

import (
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"strings"

	"CVTailor/internal/domain"
)

// ErrUnparseable marks a reply that yields no usable content.
var ErrUnparseable = errors.New("unparseable generator output")

const (
	markerLatex     = "---LATEX---"
	markerAnnotated = "---ANNOTATED---"
	markerSummary   = "---SUMMARY---"
)

// StripFences removes a surrounding markdown code fence, if any.
func StripFences(text string) string {
	text = strings.TrimSpace(text)
	if !strings.HasPrefix(text, "```") {
		return text
	}
	lines := strings.Split(text, "\n")
	lines = lines[1:]
	if n := len(lines); n > 0 && strings.TrimSpace(lines[n-1]) == "```" {
		lines = lines[:n-1]
	}
	return strings.TrimSpace(strings.Join(lines, "\n"))
}

// ParseOptimization splits a sectioned optimizer reply. Replies without the
// clean and summary markers become the fallback form: the whole reply is the
// clean source and doubles as the annotated one.
func ParseOptimization(text string) (domain.Optimization, error) {
	latexAt := strings.Index(text, markerLatex)
	summaryAt := strings.Index(text, markerSummary)
	if latexAt < 0 || summaryAt < latexAt {
		clean := StripFences(text)
		if clean == "" {
			return domain.Optimization{}, fmt.Errorf("%w: empty optimization reply", ErrUnparseable)
		}
		return domain.Optimization{
			Form:      domain.OptimizationFallback,
			Clean:     clean,
			Annotated: clean,
			Summary:   domain.DefaultSummary,
		}, nil
	}

	body := text[latexAt+len(markerLatex) : summaryAt]
	summary := strings.TrimSpace(text[summaryAt+len(markerSummary):])

	clean, annotated := body, ""
	if i := strings.Index(body, markerAnnotated); i >= 0 {
		clean, annotated = body[:i], body[i+len(markerAnnotated):]
	}
	opt := domain.Optimization{
		Form:      domain.OptimizationDelimited,
		Clean:     StripFences(clean),
		Annotated: StripFences(annotated),
		Summary:   summary,
	}
	if opt.Clean == "" {
		return domain.Optimization{}, fmt.Errorf("%w: empty source section", ErrUnparseable)
	}
	if opt.Annotated == "" {
		opt.Annotated = opt.Clean
	}
	if opt.Summary == "" {
		opt.Summary = domain.DefaultSummary
	}
	return opt, nil
}

type analysisWire struct {
	Score           float64                 `json:"score"`
	ScoreLabel      string                  `json:"score_label"`
	MatchedKeywords []string                `json:"matched_keywords"`
	MissingKeywords []string                `json:"missing_keywords"`
	SectionScores   []domain.SectionScore   `json:"section_scores"`
	Issues          []domain.Issue          `json:"issues"`
	Strengths       []domain.Strength       `json:"strengths"`
	Changes         []domain.ChangeProposal `json:"changes"`
}

// ParseAnalysis decodes an analysis reply. Surrounding prose or fences are
// tolerated; a reply with no decodable JSON object is ErrUnparseable.
func ParseAnalysis(text string) (domain.AnalysisResult, error) {
	text = StripFences(text)

	var wire analysisWire
	err := json.Unmarshal([]byte(text), &wire)
	if err != nil {
		start, end := strings.IndexByte(text, '{'), strings.LastIndexByte(text, '}')
		if start < 0 || end <= start {
			return domain.AnalysisResult{}, fmt.Errorf("%w: %v", ErrUnparseable, err)
		}
		wire = analysisWire{}
		if err := json.Unmarshal([]byte(text[start:end+1]), &wire); err != nil {
			return domain.AnalysisResult{}, fmt.Errorf("%w: %v", ErrUnparseable, err)
		}
	}

	score := int(math.Round(wire.Score))
	score = max(0, min(100, score))

	changes := wire.Changes
	for i := range changes {
		if strings.TrimSpace(changes[i].ID) == "" {
			changes[i].ID = fmt.Sprintf("change-%d", i+1)
		}
	}

	return domain.AnalysisResult{
		Score:           score,
		ScoreLabel:      wire.ScoreLabel,
		MatchedKeywords: wire.MatchedKeywords,
		MissingKeywords: wire.MissingKeywords,
		SectionScores:   wire.SectionScores,
		Issues:          nonNil(wire.Issues),
		Strengths:       nonNil(wire.Strengths),
		Changes:         nonNil(changes),
	}, nil
}

func nonNil[T any](s []T) []T {
	if s == nil {
		return []T{}
	}
	return s
}
