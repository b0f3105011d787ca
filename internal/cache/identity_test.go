package cache

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"CVTailor/internal/domain"
)

func TestJobIdentityIgnoresFieldOrder(t *testing.T) {
	t.Parallel()

	var a, b domain.JobSpec
	require.NoError(t, json.Unmarshal([]byte(`{"title":"Data Engineer","company":"H&M","keywords":["SQL","Python"]}`), &a))
	require.NoError(t, json.Unmarshal([]byte(`{"keywords":["Python","SQL"],"company":"H&M","title":"Data Engineer"}`), &b))

	idA, err := JobIdentity(a)
	require.NoError(t, err)
	idB, err := JobIdentity(b)
	require.NoError(t, err)

	assert.Equal(t, idA, idB)
	assert.Len(t, string(idA), 16)
}

func TestJobIdentityDistinguishesContent(t *testing.T) {
	t.Parallel()

	a, err := JobIdentity(domain.JobSpec{Title: "Backend Engineer"})
	require.NoError(t, err)
	b, err := JobIdentity(domain.JobSpec{Title: "Frontend Engineer"})
	require.NoError(t, err)

	assert.NotEqual(t, a, b)
}

func TestCanonicalJobNormalisesText(t *testing.T) {
	t.Parallel()

	// "é" composed vs. "e" + combining acute accent.
	composed := domain.JobSpec{Title: "Caf\u00e9 Lead ", Keywords: []string{"go", " go", "Rust"}}
	decomposed := domain.JobSpec{Title: "Cafe\u0301 Lead", Keywords: []string{"Rust", "go"}}

	a, err := CanonicalJob(composed)
	require.NoError(t, err)
	b, err := CanonicalJob(decomposed)
	require.NoError(t, err)

	assert.Equal(t, string(a), string(b))
	assert.Equal(t, "{\"keywords\":[\"Rust\",\"go\"],\"title\":\"Caf\u00e9 Lead\"}", string(a))
}

func TestCanonicalJobKeepsAmpersandsReadable(t *testing.T) {
	t.Parallel()

	raw, err := CanonicalJob(domain.JobSpec{Company: "H&M <Group>"})
	require.NoError(t, err)
	assert.Equal(t, `{"company":"H&M <Group>"}`, string(raw))
}

func TestDocumentIdentityModes(t *testing.T) {
	t.Parallel()

	data := []byte("%PDF-1.4 sample")
	assert.Equal(t, DocumentIdentity(IdentityContent, data), DocumentIdentity(IdentityContent, data))
	assert.NotEqual(t, DocumentIdentity(IdentityRandom, data), DocumentIdentity(IdentityRandom, data))
	assert.True(t, ValidIdentity(string(DocumentIdentity(IdentityRandom, data))))
}

func TestSelectionIdentityIsOrderIndependent(t *testing.T) {
	t.Parallel()

	assert.Equal(t,
		SelectionIdentity([]string{"change-2", "change-1"}),
		SelectionIdentity([]string{"change-1", "change-2", "change-1"}))
	assert.NotEqual(t,
		SelectionIdentity([]string{"change-1"}),
		SelectionIdentity([]string{"change-2"}))
}

func TestValidIdentity(t *testing.T) {
	t.Parallel()

	cases := map[string]bool{
		"a1b2c3d4e5f60718":                     true,
		"3f2a9c1e-8b7d-4e6f-a5b4-c3d2e1f0a9b8": true,
		"":                                     false,
		"../etc":                               false,
		"abc/def":                              false,
		"with space":                           false,
	}
	for input, want := range cases {
		assert.Equal(t, want, ValidIdentity(input), input)
	}
}

func TestParseIdentityMode(t *testing.T) {
	t.Parallel()

	mode, ok := ParseIdentityMode(" Random ")
	require.True(t, ok)
	assert.Equal(t, IdentityRandom, mode)

	_, ok = ParseIdentityMode("sequential")
	assert.False(t, ok)
}
