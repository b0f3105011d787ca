// Package pdf renders uploaded documents into page images with an external
// rasterizer.
package pdf

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"time"

	"CVTailor/internal/domain"
	"CVTailor/internal/ports"
)

const (
	inputName  = "input.pdf"
	pagePrefix = "page"
)

// ErrExtraction marks a rasterizer run that produced no usable pages.
var ErrExtraction = errors.New("page extraction failed")

// Options configures the extractor.
type Options struct {
	Binary  string
	DPI     int
	Timeout time.Duration
	WorkDir string
}

// Extractor shells out to pdftoppm (or a compatible binary) and returns one
// PNG per page in page order.
type Extractor struct {
	opts   Options
	logger *slog.Logger
}

var _ ports.PageExtractor = (*Extractor)(nil)

func NewExtractor(opts Options, logger *slog.Logger) *Extractor {
	if opts.Binary == "" {
		opts.Binary = "pdftoppm"
	}
	if opts.DPI <= 0 {
		opts.DPI = 200
	}
	if opts.Timeout <= 0 {
		opts.Timeout = 2 * time.Minute
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Extractor{opts: opts, logger: logger.With("component", "pdf_extractor")}
}

// AssertReady checks that the rasterizer resolves on PATH.
func (e *Extractor) AssertReady() error {
	if _, err := exec.LookPath(e.opts.Binary); err != nil {
		return fmt.Errorf("%w: %q not found: %v", ErrExtraction, e.opts.Binary, err)
	}
	return nil
}

func (e *Extractor) Extract(ctx context.Context, data []byte) ([]domain.PageImage, error) {
	if len(data) == 0 {
		return nil, fmt.Errorf("%w: empty document", ErrExtraction)
	}

	dir, err := os.MkdirTemp(e.opts.WorkDir, "extract-*")
	if err != nil {
		return nil, fmt.Errorf("create extract dir: %w", err)
	}
	defer func() {
		if err := os.RemoveAll(dir); err != nil {
			e.logger.Warn("remove extract dir", "dir", dir, "error", err)
		}
	}()

	input := filepath.Join(dir, inputName)
	if err := os.WriteFile(input, data, 0o600); err != nil {
		return nil, fmt.Errorf("write input: %w", err)
	}

	runCtx, cancel := context.WithTimeout(ctx, e.opts.Timeout)
	defer cancel()

	var stderr bytes.Buffer
	cmd := exec.CommandContext(runCtx, e.opts.Binary,
		"-r", strconv.Itoa(e.opts.DPI),
		"-png",
		input,
		filepath.Join(dir, pagePrefix),
	)
	cmd.Dir = dir
	cmd.Stderr = &stderr
	cmd.WaitDelay = 2 * time.Second

	start := time.Now()
	if err := cmd.Run(); err != nil {
		if errors.Is(runCtx.Err(), context.DeadlineExceeded) {
			return nil, fmt.Errorf("%w: timed out after %s", ErrExtraction, e.opts.Timeout)
		}
		return nil, fmt.Errorf("%w: %v: %s", ErrExtraction, err, strings.TrimSpace(stderr.String()))
	}

	pages, err := readPages(dir)
	if err != nil {
		return nil, err
	}
	if len(pages) == 0 {
		return nil, fmt.Errorf("%w: no pages rendered", ErrExtraction)
	}
	e.logger.Debug("pages extracted", "pages", len(pages), "duration", time.Since(start))
	return pages, nil
}

// readPages collects page-N.png files ordered by their page number. The
// rasterizer zero-pads numbers only to the width of the last page, so a
// lexical sort is not enough.
func readPages(dir string) ([]domain.PageImage, error) {
	matches, err := filepath.Glob(filepath.Join(dir, pagePrefix+"-*.png"))
	if err != nil {
		return nil, fmt.Errorf("list pages: %w", err)
	}

	type numbered struct {
		n    int
		path string
	}
	files := make([]numbered, 0, len(matches))
	for _, path := range matches {
		base := strings.TrimSuffix(filepath.Base(path), ".png")
		n, err := strconv.Atoi(strings.TrimPrefix(base, pagePrefix+"-"))
		if err != nil {
			continue
		}
		files = append(files, numbered{n: n, path: path})
	}
	sort.Slice(files, func(i, j int) bool { return files[i].n < files[j].n })

	pages := make([]domain.PageImage, 0, len(files))
	for _, f := range files {
		raw, err := os.ReadFile(f.path)
		if err != nil {
			return nil, fmt.Errorf("read page %d: %w", f.n, err)
		}
		pages = append(pages, domain.PageImage{Data: raw, Format: "png"})
	}
	return pages, nil
}
