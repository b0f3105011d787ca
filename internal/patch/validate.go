package patch

import (
	"strings"

	"CVTailor/internal/domain"
)

// Drop reasons reported by ValidateProposals and Engine.Apply.
const (
	ReasonMissingID      = "missing id"
	ReasonDuplicateID    = "duplicate id"
	ReasonEmptyOriginal  = "empty original text"
	ReasonNotFound       = "original text not found in source"
	ReasonNoChange       = "proposed text equals original text"
	ReasonOverlapsPrefix = "overlaps "
)

// ValidateProposals keeps the proposals whose original text occurs verbatim in
// source. A proposal that only matches after trimming surrounding whitespace is
// kept with its original text rewritten to the trimmed form.
func ValidateProposals(source string, proposals []domain.ChangeProposal) ([]domain.ChangeProposal, []domain.DroppedProposal) {
	valid := make([]domain.ChangeProposal, 0, len(proposals))
	var dropped []domain.DroppedProposal
	seen := make(map[string]struct{}, len(proposals))

	drop := func(p domain.ChangeProposal, reason string) {
		dropped = append(dropped, domain.DroppedProposal{Proposal: p, Reason: reason})
	}

	for _, p := range proposals {
		if strings.TrimSpace(p.ID) == "" {
			drop(p, ReasonMissingID)
			continue
		}
		if _, dup := seen[p.ID]; dup {
			drop(p, ReasonDuplicateID)
			continue
		}

		original := p.OriginalText
		if strings.TrimSpace(original) == "" {
			drop(p, ReasonEmptyOriginal)
			continue
		}
		if !strings.Contains(source, original) {
			trimmed := strings.TrimSpace(original)
			if !strings.Contains(source, trimmed) {
				drop(p, ReasonNotFound)
				continue
			}
			p.OriginalText = trimmed
		}
		if p.ProposedText == p.OriginalText {
			drop(p, ReasonNoChange)
			continue
		}

		seen[p.ID] = struct{}{}
		valid = append(valid, p)
	}

	return valid, dropped
}
