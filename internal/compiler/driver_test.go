package compiler

import (
	"context"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"CVTailor/internal/domain"
)

// The fake compiler scripts run in the working directory the driver creates.
const (
	succeedingScript = `#!/bin/sh
echo pass >> passes.txt
printf '%%PDF-1.4 fake\n' > document.pdf
exit 1
`
	failingScript = `#!/bin/sh
if grep -q BROKEN document.tex; then
  printf 'This is a fake compiler\n! Undefined control sequence.\nl.3 \\BROKEN\nLaTeX Error: Emergency stop.\nOutput written nowhere.\n' > document.log
  exit 1
fi
printf '%%PDF-1.4 fake\n' > document.pdf
`
	hangingScript = `#!/bin/sh
exec sleep 30
`
)

func fakeCompiler(t *testing.T, script string) string {
	t.Helper()
	if runtime.GOOS == "windows" {
		t.Skip("shell scripts are not executable on windows")
	}
	path := filepath.Join(t.TempDir(), "fakelatex")
	require.NoError(t, os.WriteFile(path, []byte(script), 0o755))
	return path
}

func newDriver(t *testing.T, binary string, timeout time.Duration) *Driver {
	t.Helper()
	return New(Options{Binary: binary, Timeout: timeout, WorkRoot: t.TempDir()}, nil)
}

func TestCompileRunsTwoPasses(t *testing.T) {
	d := newDriver(t, fakeCompiler(t, succeedingScript), 10*time.Second)

	doc, err := d.Compile(context.Background(), "\\setmainfont{Garamond}\n\\begin{document}Hi\\end{document}\n")
	require.NoError(t, err, "non-zero exit with output present is a success")

	assert.FileExists(t, doc.Path)
	passes, err := os.ReadFile(filepath.Join(doc.WorkDir, "passes.txt"))
	require.NoError(t, err)
	assert.Equal(t, 2, strings.Count(string(passes), "pass"))

	written, err := os.ReadFile(filepath.Join(doc.WorkDir, sourceName))
	require.NoError(t, err)
	assert.Contains(t, string(written), `\setmainfont{DejaVu Serif}`)

	require.NoError(t, d.Release(doc))
	assert.NoDirExists(t, doc.WorkDir)
}

func TestCompileFailureSurfacesDiagnostics(t *testing.T) {
	d := newDriver(t, fakeCompiler(t, failingScript), 10*time.Second)

	_, err := d.Compile(context.Background(), "\\begin{document}\n\\BROKEN\n\\end{document}\n")
	require.Error(t, err)
	require.ErrorIs(t, err, ErrNoOutput)

	var cerr *Error
	require.ErrorAs(t, err, &cerr)
	assert.Equal(t, "! Undefined control sequence.\nLaTeX Error: Emergency stop.", cerr.Diagnostics)
	assert.LessOrEqual(t, len(err.Error()), 2100)

	entries, err := os.ReadDir(d.opts.WorkRoot)
	require.NoError(t, err)
	assert.Empty(t, entries, "failed compilations leave nothing behind")
}

func TestCompileTimeout(t *testing.T) {
	d := newDriver(t, fakeCompiler(t, hangingScript), 200*time.Millisecond)

	start := time.Now()
	_, err := d.Compile(context.Background(), "\\begin{document}\\end{document}")
	require.ErrorIs(t, err, ErrTimeout)
	assert.Less(t, time.Since(start), 10*time.Second)

	entries, err := os.ReadDir(d.opts.WorkRoot)
	require.NoError(t, err)
	assert.Empty(t, entries)
}

func TestCompileMissingBinary(t *testing.T) {
	d := newDriver(t, filepath.Join(t.TempDir(), "does-not-exist"), time.Second)

	_, err := d.Compile(context.Background(), "x")
	require.ErrorIs(t, err, ErrBinaryNotFound)
	require.ErrorIs(t, d.AssertReady(), ErrBinaryNotFound)
}

func TestReleaseRefusesForeignDirectory(t *testing.T) {
	d := newDriver(t, "xelatex", time.Second)
	foreign := t.TempDir()

	require.Error(t, d.Release(documentIn(foreign)))
	assert.DirExists(t, foreign)
}

func TestReleaseRefusesWorkRoot(t *testing.T) {
	d := newDriver(t, "xelatex", time.Second)
	keep := filepath.Join(d.opts.WorkRoot, "compile-keep")
	require.NoError(t, os.MkdirAll(keep, 0o750))

	require.Error(t, d.Release(documentIn(d.opts.WorkRoot)))
	require.Error(t, d.Release(documentIn(d.opts.WorkRoot+string(filepath.Separator))))
	assert.DirExists(t, keep)
}

func TestSweepRemovesStaleWorkDirs(t *testing.T) {
	d := newDriver(t, "xelatex", time.Second)
	root := d.opts.WorkRoot

	stale := filepath.Join(root, "compile-old")
	fresh := filepath.Join(root, "compile-new")
	other := filepath.Join(root, "keep-me")
	for _, dir := range []string{stale, fresh, other} {
		require.NoError(t, os.MkdirAll(dir, 0o750))
	}
	old := time.Now().Add(-2 * time.Hour)
	require.NoError(t, os.Chtimes(stale, old, old))
	require.NoError(t, os.Chtimes(other, old, old))

	removed, err := d.Sweep(context.Background(), time.Hour)
	require.NoError(t, err)
	assert.Equal(t, 1, removed)
	assert.NoDirExists(t, stale)
	assert.DirExists(t, fresh)
	assert.DirExists(t, other)
}

func TestExtractDiagnostics(t *testing.T) {
	t.Parallel()

	var log strings.Builder
	for i := 0; i < 30; i++ {
		log.WriteString("! Error number\n")
		log.WriteString("ordinary line\n")
	}

	got := ExtractDiagnostics(log.String(), 10, 2000)
	assert.Len(t, strings.Split(got, "\n"), 10)

	got = ExtractDiagnostics(strings.Repeat("! "+strings.Repeat("x", 500)+"\n", 10), 10, 2000)
	assert.LessOrEqual(t, len(got), 2000)
	assert.True(t, strings.HasSuffix(got, "..."))

	assert.Equal(t, noDiagnostics, ExtractDiagnostics("all fine\n", 10, 2000))
}

func documentIn(dir string) domain.CompiledDocument {
	return domain.CompiledDocument{Path: filepath.Join(dir, outputName), WorkDir: dir}
}
