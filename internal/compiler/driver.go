// Package compiler drives an external markup compiler binary.
package compiler

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"time"

	"CVTailor/internal/domain"
)

const (
	sourceName = "document.tex"
	outputName = "document.pdf"
	logName    = "document.log"

	workDirPattern = "compile-*"
)

var (
	ErrTimeout        = errors.New("compiler timed out")
	ErrNoOutput       = errors.New("compiler produced no output")
	ErrBinaryNotFound = errors.New("compiler binary not found")
)

// Error carries the diagnostic excerpt of a failed compilation.
type Error struct {
	Cause       error
	Diagnostics string
}

func (e *Error) Error() string {
	if e.Diagnostics == "" {
		return e.Cause.Error()
	}
	return fmt.Sprintf("%v: %s", e.Cause, e.Diagnostics)
}

func (e *Error) Unwrap() error {
	return e.Cause
}

// Options configures a Driver.
type Options struct {
	Binary             string
	Passes             int
	Timeout            time.Duration
	WorkRoot           string
	MaxDiagnosticLines int
	MaxDiagnosticBytes int
}

func (o Options) withDefaults() Options {
	if o.Binary == "" {
		o.Binary = "xelatex"
	}
	if o.Passes < 1 {
		o.Passes = 2
	}
	if o.Timeout <= 0 {
		o.Timeout = 60 * time.Second
	}
	if o.WorkRoot == "" {
		o.WorkRoot = filepath.Join(os.TempDir(), "cvtailor-compile")
	}
	if o.MaxDiagnosticLines <= 0 {
		o.MaxDiagnosticLines = 10
	}
	if o.MaxDiagnosticBytes <= 0 {
		o.MaxDiagnosticBytes = 2000
	}
	return o
}

// Driver compiles markup sources in throwaway working directories.
type Driver struct {
	opts   Options
	logger *slog.Logger
}

func New(opts Options, logger *slog.Logger) *Driver {
	if logger == nil {
		logger = slog.Default()
	}
	opts = opts.withDefaults()
	return &Driver{
		opts:   opts,
		logger: logger.With("component", "compiler", "binary", opts.Binary),
	}
}

// AssertReady checks that the compiler binary resolves and the work root is writable.
func (d *Driver) AssertReady() error {
	if _, err := exec.LookPath(d.opts.Binary); err != nil {
		return fmt.Errorf("%w: %q: %v", ErrBinaryNotFound, d.opts.Binary, err)
	}
	if err := os.MkdirAll(d.opts.WorkRoot, 0o750); err != nil {
		return fmt.Errorf("create work root: %w", err)
	}
	return nil
}

// Compile writes source into a fresh working directory and runs the compiler
// the configured number of passes. Success is decided by the presence of the
// output file, not by the exit status. On failure the working directory is
// removed; on success the caller releases it with Release once the artifact
// has been copied.
func (d *Driver) Compile(ctx context.Context, source string) (domain.CompiledDocument, error) {
	binary, err := exec.LookPath(d.opts.Binary)
	if err != nil {
		return domain.CompiledDocument{}, &Error{Cause: ErrBinaryNotFound, Diagnostics: d.opts.Binary}
	}

	source, rewrites := RewriteFonts(source)
	for _, r := range rewrites {
		d.logger.Info("font substituted", "directive", r.Directive, "from", r.From, "to", r.To, "dropped_options", r.DroppedOptions)
	}

	if err := os.MkdirAll(d.opts.WorkRoot, 0o750); err != nil {
		return domain.CompiledDocument{}, fmt.Errorf("create work root: %w", err)
	}
	dir, err := os.MkdirTemp(d.opts.WorkRoot, workDirPattern)
	if err != nil {
		return domain.CompiledDocument{}, fmt.Errorf("create work dir: %w", err)
	}
	fail := func(err error) (domain.CompiledDocument, error) {
		if rmErr := os.RemoveAll(dir); rmErr != nil {
			d.logger.Warn("remove work dir", "dir", dir, "error", rmErr)
		}
		return domain.CompiledDocument{}, err
	}

	if err := os.WriteFile(filepath.Join(dir, sourceName), []byte(source), 0o600); err != nil {
		return fail(fmt.Errorf("write source: %w", err))
	}

	var lastOutput []byte
	for pass := 1; pass <= d.opts.Passes; pass++ {
		out, err := d.run(ctx, binary, dir)
		lastOutput = out
		if errors.Is(err, ErrTimeout) {
			d.logger.Warn("compiler timed out", "pass", pass, "timeout", d.opts.Timeout)
			return fail(&Error{Cause: ErrTimeout, Diagnostics: fmt.Sprintf("pass %d exceeded %s", pass, d.opts.Timeout)})
		}
		if ctxErr := ctx.Err(); ctxErr != nil {
			return fail(fmt.Errorf("compile: %w", ctxErr))
		}
		if err != nil {
			// Non-zero exit is common on warnings; the output check below decides.
			d.logger.Debug("compiler pass exited with error", "pass", pass, "error", err)
		}
	}

	pdfPath := filepath.Join(dir, outputName)
	if info, err := os.Stat(pdfPath); err != nil || info.Size() == 0 {
		diag := d.diagnostics(dir, lastOutput)
		d.logger.Warn("compilation failed", "diagnostics", diag)
		return fail(&Error{Cause: ErrNoOutput, Diagnostics: diag})
	}

	return domain.CompiledDocument{Path: pdfPath, WorkDir: dir}, nil
}

// Release removes the working directory of a compiled document.
func (d *Driver) Release(doc domain.CompiledDocument) error {
	if doc.WorkDir == "" {
		return nil
	}
	rel, err := filepath.Rel(d.opts.WorkRoot, doc.WorkDir)
	if err != nil || rel == "." || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return fmt.Errorf("work dir %q is outside %q", doc.WorkDir, d.opts.WorkRoot)
	}
	return os.RemoveAll(doc.WorkDir)
}

func (d *Driver) run(ctx context.Context, binary, dir string) ([]byte, error) {
	ctx, cancel := context.WithTimeout(ctx, d.opts.Timeout)
	defer cancel()

	cmd := exec.CommandContext(ctx, binary,
		"-interaction=nonstopmode",
		"-halt-on-error",
		"-output-directory", dir,
		sourceName,
	)
	cmd.Dir = dir
	cmd.WaitDelay = 2 * time.Second

	out, err := cmd.CombinedOutput()
	if errors.Is(ctx.Err(), context.DeadlineExceeded) {
		return out, ErrTimeout
	}
	return out, err
}

func (d *Driver) diagnostics(dir string, output []byte) string {
	logData, err := os.ReadFile(filepath.Join(dir, logName))
	if err != nil || len(logData) == 0 {
		logData = output
	}
	return ExtractDiagnostics(string(logData), d.opts.MaxDiagnosticLines, d.opts.MaxDiagnosticBytes)
}

const noDiagnostics = "no error lines found in the compiler log"

// ExtractDiagnostics keeps the lines of a compiler log that report errors:
// lines starting with "!" or containing "Error". At most maxLines lines and
// maxBytes bytes are returned. The result is never empty.
func ExtractDiagnostics(log string, maxLines, maxBytes int) string {
	var picked []string
	for _, line := range strings.Split(log, "\n") {
		line = strings.TrimRight(line, "\r")
		if strings.HasPrefix(line, "!") || strings.Contains(line, "Error") {
			picked = append(picked, strings.TrimSpace(line))
			if len(picked) == maxLines {
				break
			}
		}
	}
	if len(picked) == 0 {
		return noDiagnostics
	}

	out := strings.Join(picked, "\n")
	if len(out) > maxBytes {
		out = truncate(out, maxBytes)
	}
	return out
}

func truncate(s string, max int) string {
	const ellipsis = "..."
	if max <= len(ellipsis) {
		return s[:max]
	}
	cut := max - len(ellipsis)
	for cut > 0 && !utf8Start(s[cut]) {
		cut--
	}
	return s[:cut] + ellipsis
}

func utf8Start(b byte) bool {
	return b&0xC0 != 0x80
}
