// Package patch applies accepted change proposals to a markup source and
// renders the clean and annotated variants.
package patch

import (
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"unicode/utf8"

	"CVTailor/internal/domain"
)

// ErrMalformedInput is returned when the source or a proposal is not valid UTF-8.
var ErrMalformedInput = errors.New("malformed patch input")

// Result is the outcome of Engine.Apply.
type Result struct {
	Clean     string
	Annotated string
	// Applied lists the proposals that were spliced, in document order.
	Applied []domain.ChangeProposal
	Dropped []domain.DroppedProposal
}

// Engine applies proposals. The zero value is usable and logs nowhere.
type Engine struct {
	logger *slog.Logger
}

// NewEngine returns an engine that reports dropped proposals to logger.
func NewEngine(logger *slog.Logger) *Engine {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Engine{logger: logger.With("component", "patch")}
}

type located struct {
	proposal domain.ChangeProposal
	start    int
	end      int
}

// Apply splices every accepted proposal into source. Each proposal replaces the
// first occurrence of its original text in the unmodified source. Splicing runs
// from the highest offset down so earlier offsets stay valid; when two spans
// overlap the one starting later wins and the other is dropped. Proposals that
// cannot be located are dropped and logged rather than failing the call.
func (e *Engine) Apply(source string, proposals []domain.ChangeProposal, accepted []string) (Result, error) {
	logger := e.log()
	if !utf8.ValidString(source) {
		return Result{}, fmt.Errorf("source: %w", ErrMalformedInput)
	}

	acceptedSet := make(map[string]struct{}, len(accepted))
	for _, id := range accepted {
		acceptedSet[id] = struct{}{}
	}

	var res Result
	drop := func(p domain.ChangeProposal, reason string) {
		logger.Warn("dropping proposal", "proposal_id", p.ID, "reason", reason)
		res.Dropped = append(res.Dropped, domain.DroppedProposal{Proposal: p, Reason: reason})
	}

	seen := make(map[string]struct{}, len(accepted))
	spans := make([]located, 0, len(accepted))
	for _, p := range proposals {
		if _, ok := acceptedSet[p.ID]; !ok {
			continue
		}
		if !utf8.ValidString(p.OriginalText) || !utf8.ValidString(p.ProposedText) {
			return Result{}, fmt.Errorf("proposal %q: %w", p.ID, ErrMalformedInput)
		}
		if _, dup := seen[p.ID]; dup {
			drop(p, ReasonDuplicateID)
			continue
		}
		seen[p.ID] = struct{}{}

		if p.OriginalText == "" {
			drop(p, ReasonEmptyOriginal)
			continue
		}
		idx := strings.Index(source, p.OriginalText)
		if idx < 0 {
			drop(p, ReasonNotFound)
			continue
		}
		spans = append(spans, located{proposal: p, start: idx, end: idx + len(p.OriginalText)})
	}

	for id := range acceptedSet {
		if _, ok := seen[id]; !ok {
			logger.Debug("accepted id matches no proposal", "proposal_id", id)
		}
	}

	sort.SliceStable(spans, func(i, j int) bool {
		return spans[i].start > spans[j].start
	})

	clean, annotated := source, source
	floor := len(source)
	var floorID string
	applied := make([]domain.ChangeProposal, 0, len(spans))
	for _, s := range spans {
		if s.end > floor {
			drop(s.proposal, ReasonOverlapsPrefix+floorID)
			continue
		}
		replacement := EscapeMarkup(s.proposal.ProposedText)
		clean = clean[:s.start] + replacement + clean[s.end:]
		annotated = annotated[:s.start] + Annotate(replacement) + annotated[s.end:]
		floor, floorID = s.start, s.proposal.ID
		applied = append(applied, s.proposal)
	}

	for i, j := 0, len(applied)-1; i < j; i, j = i+1, j-1 {
		applied[i], applied[j] = applied[j], applied[i]
	}

	res.Clean = NormalizeSpacing(clean)
	res.Annotated = NormalizeSpacing(EnsureColorSupport(annotated))
	res.Applied = applied

	logger.Info("proposals applied", "applied", len(applied), "dropped", len(res.Dropped))
	return res, nil
}

func (e *Engine) log() *slog.Logger {
	if e == nil || e.logger == nil {
		return slog.New(slog.DiscardHandler)
	}
	return e.logger
}
