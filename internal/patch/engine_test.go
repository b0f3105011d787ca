package patch

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"CVTailor/internal/domain"
)

func proposal(id, original, proposed string) domain.ChangeProposal {
	return domain.ChangeProposal{ID: id, Section: "Experience", OriginalText: original, ProposedText: proposed}
}

func TestApplySplicesFromTheEnd(t *testing.T) {
	t.Parallel()

	p1 := proposal("p1", "AAA", "A1")
	p2 := proposal("p2", "CCC", "C1")

	tests := []struct {
		name      string
		proposals []domain.ChangeProposal
		accepted  []string
	}{
		{name: "document order", proposals: []domain.ChangeProposal{p1, p2}, accepted: []string{"p1", "p2"}},
		{name: "reversed proposals", proposals: []domain.ChangeProposal{p2, p1}, accepted: []string{"p1", "p2"}},
		{name: "reversed accepted ids", proposals: []domain.ChangeProposal{p1, p2}, accepted: []string{"p2", "p1"}},
		{name: "both reversed", proposals: []domain.ChangeProposal{p2, p1}, accepted: []string{"p2", "p1"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			res, err := NewEngine(nil).Apply("AAA BBB CCC", tt.proposals, tt.accepted)
			require.NoError(t, err)

			assert.Equal(t, "A1 BBB C1", res.Clean)
			assert.Equal(t, `\textcolor{OliveGreen}{\textbf{A1}} BBB \textcolor{OliveGreen}{\textbf{C1}}`, res.Annotated)
			require.Len(t, res.Applied, 2)
			assert.Equal(t, "p1", res.Applied[0].ID)
			assert.Equal(t, "p2", res.Applied[1].ID)
			assert.Empty(t, res.Dropped)
		})
	}
}

func TestApplyOnlyAccepted(t *testing.T) {
	t.Parallel()

	proposals := []domain.ChangeProposal{
		proposal("p1", "AAA", "A1"),
		proposal("p2", "CCC", "C1"),
	}
	engine := NewEngine(nil)

	res, err := engine.Apply("AAA BBB CCC", proposals, []string{"p1"})
	require.NoError(t, err)
	assert.Equal(t, "A1 BBB CCC", res.Clean)

	res, err = engine.Apply("AAA BBB CCC", proposals, nil)
	require.NoError(t, err)
	assert.Equal(t, "AAA BBB CCC", res.Clean)
	assert.Equal(t, "AAA BBB CCC", res.Annotated)
	assert.Empty(t, res.Applied)
}

func TestApplyReplacesFirstOccurrenceOnly(t *testing.T) {
	t.Parallel()

	source := "X fox X"
	res, err := NewEngine(nil).Apply(source, []domain.ChangeProposal{proposal("p1", "X", "Y")}, []string{"p1"})
	require.NoError(t, err)

	assert.Equal(t, "Y fox X", res.Clean)
	assert.Equal(t, strings.Count(source, "X")-1, strings.Count(res.Clean, "X"))
}

func TestApplyDropsUnlocatedProposal(t *testing.T) {
	t.Parallel()

	proposals := []domain.ChangeProposal{
		proposal("p1", "AAA", "A1"),
		proposal("p3", "ZZZ", "Z1"),
		proposal("p4", "", "nothing"),
	}

	res, err := NewEngine(nil).Apply("AAA BBB CCC", proposals, []string{"p1", "p3", "p4"})
	require.NoError(t, err)

	assert.Equal(t, "A1 BBB CCC", res.Clean)
	require.Len(t, res.Dropped, 2)
	assert.Equal(t, "p3", res.Dropped[0].Proposal.ID)
	assert.Equal(t, ReasonNotFound, res.Dropped[0].Reason)
	assert.Equal(t, ReasonEmptyOriginal, res.Dropped[1].Reason)
}

func TestApplyOverlapLaterSpanWins(t *testing.T) {
	t.Parallel()

	proposals := []domain.ChangeProposal{
		proposal("p1", "one two", "1 2"),
		proposal("p2", "two three", "2 3"),
	}

	res, err := NewEngine(nil).Apply("one two three", proposals, []string{"p1", "p2"})
	require.NoError(t, err)

	assert.Equal(t, "one 2 3", res.Clean)
	require.Len(t, res.Dropped, 1)
	assert.Equal(t, "p1", res.Dropped[0].Proposal.ID)
	assert.Equal(t, ReasonOverlapsPrefix+"p2", res.Dropped[0].Reason)
}

func TestApplyContainedSpanIsDropped(t *testing.T) {
	t.Parallel()

	proposals := []domain.ChangeProposal{
		proposal("outer", "Go developer", "Rust developer"),
		proposal("inner", "Go", "Golang"),
	}

	res, err := NewEngine(nil).Apply("Go developer", proposals, []string{"outer", "inner"})
	require.NoError(t, err)

	assert.Equal(t, "Rust developer", res.Clean)
	require.Len(t, res.Dropped, 1)
	assert.Equal(t, "inner", res.Dropped[0].Proposal.ID)
}

func TestApplyEscapesProposedText(t *testing.T) {
	t.Parallel()

	proposals := []domain.ChangeProposal{
		proposal("p1", "half done", "50% done"),
		proposal("p2", "R and D", `R \& D`),
	}

	res, err := NewEngine(nil).Apply("half done, R and D", proposals, []string{"p1", "p2"})
	require.NoError(t, err)

	assert.Equal(t, `50\% done, R \& D`, res.Clean)
}

func TestApplyRejectsMalformedInput(t *testing.T) {
	t.Parallel()

	engine := NewEngine(nil)

	_, err := engine.Apply("bad \xff source", nil, nil)
	require.ErrorIs(t, err, ErrMalformedInput)

	_, err = engine.Apply("fine", []domain.ChangeProposal{proposal("p1", "fine", "\xfe")}, []string{"p1"})
	require.ErrorIs(t, err, ErrMalformedInput)
}

func TestApplyFullDocument(t *testing.T) {
	t.Parallel()

	source := strings.Join([]string{
		`\documentclass{article}`,
		`\usepackage[usenames,dvipsnames]{color}`,
		`\begin{document}`,
		`Built services in Python.`,
		`\vspace{-12pt}`,
		`\end{document}`,
		``,
	}, "\n")
	proposals := []domain.ChangeProposal{proposal("p1", "Python", "Go & Python")}

	res, err := NewEngine(nil).Apply(source, proposals, []string{"p1"})
	require.NoError(t, err)

	assert.Contains(t, res.Clean, `Built services in Go \& Python.`)
	assert.NotContains(t, res.Clean, `\vspace{-12pt}`)
	assert.Contains(t, res.Clean, `{color}`, "clean variant keeps its preamble")

	assert.Contains(t, res.Annotated, `\usepackage[usenames,dvipsnames]{xcolor}`)
	assert.Contains(t, res.Annotated, provideColor)
	assert.Contains(t, res.Annotated, `\textcolor{OliveGreen}{\textbf{Go \& Python}}`)
}
