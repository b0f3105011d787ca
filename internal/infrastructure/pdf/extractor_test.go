package pdf

import (
	"context"
	"os"
	"path/filepath"
	"runtime"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// The fake rasterizer receives: -r DPI -png INPUT PREFIX.
const (
	renderingScript = `#!/bin/sh
prefix="$5"
for n in 1 2 10; do
  printf "page$n" > "$prefix-$n.png"
done
`
	emptyScript = `#!/bin/sh
exit 0
`
	crashingScript = `#!/bin/sh
echo "Syntax Error: Couldn't find trailer dictionary" >&2
exit 1
`
)

func fakeRasterizer(t *testing.T, script string) string {
	t.Helper()
	if runtime.GOOS == "windows" {
		t.Skip("shell scripts are not executable on windows")
	}
	path := filepath.Join(t.TempDir(), "fakepdftoppm")
	require.NoError(t, os.WriteFile(path, []byte(script), 0o755))
	return path
}

func TestExtractOrdersPagesNumerically(t *testing.T) {
	ex := NewExtractor(Options{Binary: fakeRasterizer(t, renderingScript), WorkDir: t.TempDir()}, nil)

	pages, err := ex.Extract(context.Background(), []byte("%PDF-1.4"))
	require.NoError(t, err)
	require.Len(t, pages, 3)
	assert.Equal(t, "page1", string(pages[0].Data))
	assert.Equal(t, "page2", string(pages[1].Data))
	assert.Equal(t, "page10", string(pages[2].Data))
	assert.Equal(t, "png", pages[0].Format)
}

func TestExtractFailures(t *testing.T) {
	ctx := context.Background()

	_, err := NewExtractor(Options{Binary: fakeRasterizer(t, emptyScript), WorkDir: t.TempDir()}, nil).Extract(ctx, []byte("%PDF"))
	require.ErrorIs(t, err, ErrExtraction)

	_, err = NewExtractor(Options{Binary: fakeRasterizer(t, crashingScript), WorkDir: t.TempDir()}, nil).Extract(ctx, []byte("%PDF"))
	require.ErrorIs(t, err, ErrExtraction)
	assert.Contains(t, err.Error(), "trailer dictionary")

	_, err = NewExtractor(Options{WorkDir: t.TempDir()}, nil).Extract(ctx, nil)
	require.ErrorIs(t, err, ErrExtraction)
}

func TestExtractTimeout(t *testing.T) {
	ex := NewExtractor(Options{
		Binary:  fakeRasterizer(t, "#!/bin/sh\nexec sleep 30\n"),
		Timeout: 200 * time.Millisecond,
		WorkDir: t.TempDir(),
	}, nil)

	_, err := ex.Extract(context.Background(), []byte("%PDF"))
	require.ErrorIs(t, err, ErrExtraction)
	assert.Contains(t, err.Error(), "timed out")
}

func TestExtractRemovesWorkDir(t *testing.T) {
	work := t.TempDir()
	ex := NewExtractor(Options{Binary: fakeRasterizer(t, renderingScript), WorkDir: work}, nil)

	_, err := ex.Extract(context.Background(), []byte("%PDF"))
	require.NoError(t, err)

	entries, err := os.ReadDir(work)
	require.NoError(t, err)
	assert.Empty(t, entries)
}
