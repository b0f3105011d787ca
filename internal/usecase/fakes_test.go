package usecase

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"CVTailor/internal/cache"
	"CVTailor/internal/compiler"
	"CVTailor/internal/domain"
)

type fakeExtractor struct {
	calls atomic.Int32
	mu    sync.Mutex
	err   error
}

func (f *fakeExtractor) Extract(_ context.Context, document []byte) ([]domain.PageImage, error) {
	f.calls.Add(1)
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return nil, f.err
	}
	return []domain.PageImage{{Data: document[:5], Format: "png"}}, nil
}

func (f *fakeExtractor) setErr(err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.err = err
}

type fakeReproducer struct {
	calls  atomic.Int32
	source string
	delay  time.Duration
}

func (f *fakeReproducer) Reproduce(ctx context.Context, pages []domain.PageImage) (string, error) {
	f.calls.Add(1)
	if f.delay > 0 {
		select {
		case <-time.After(f.delay):
		case <-ctx.Done():
			return "", ctx.Err()
		}
	}
	return f.source, nil
}

type fakeAnalyzer struct {
	calls  atomic.Int32
	result domain.AnalysisResult
}

func (f *fakeAnalyzer) Analyze(context.Context, string, domain.JobSpec) (domain.AnalysisResult, error) {
	f.calls.Add(1)
	res := f.result
	res.Changes = append([]domain.ChangeProposal(nil), f.result.Changes...)
	return res, nil
}

type fakeOptimizer struct {
	calls atomic.Int32
	opt   domain.Optimization
}

func (f *fakeOptimizer) Optimize(_ context.Context, source string, job domain.JobSpec) (domain.Optimization, error) {
	f.calls.Add(1)
	opt := f.opt
	opt.Clean = strings.Replace(opt.Clean, "{{TITLE}}", job.Title, 1)
	return opt, nil
}

// fakeCompiler writes a PDF-looking file whose body is derived from the source.
type fakeCompiler struct {
	root     string
	calls    atomic.Int32
	released atomic.Int32
	mu       sync.Mutex
	failOn   string
}

func newFakeCompiler(t *testing.T) *fakeCompiler {
	t.Helper()
	return &fakeCompiler{root: t.TempDir()}
}

func (f *fakeCompiler) Compile(_ context.Context, source string) (domain.CompiledDocument, error) {
	f.calls.Add(1)
	f.mu.Lock()
	failOn := f.failOn
	f.mu.Unlock()
	if failOn != "" && strings.Contains(source, failOn) {
		return domain.CompiledDocument{}, &compiler.Error{Cause: compiler.ErrNoOutput, Diagnostics: "! Undefined control sequence."}
	}

	dir, err := os.MkdirTemp(f.root, "compile-*")
	if err != nil {
		return domain.CompiledDocument{}, err
	}
	sum := sha256.Sum256([]byte(source))
	path := filepath.Join(dir, "document.pdf")
	if err := os.WriteFile(path, []byte("%PDF-1.4\n"+hex.EncodeToString(sum[:])), 0o600); err != nil {
		return domain.CompiledDocument{}, err
	}
	return domain.CompiledDocument{Path: path, WorkDir: dir}, nil
}

func (f *fakeCompiler) Release(doc domain.CompiledDocument) error {
	f.released.Add(1)
	return os.RemoveAll(doc.WorkDir)
}

func (f *fakeCompiler) setFailOn(marker string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.failOn = marker
}

type fakeRegistry struct {
	mu       sync.Mutex
	uploads  []domain.Upload
	analyses []domain.AnalysisRecord
}

func (f *fakeRegistry) RecordUpload(_ context.Context, upload domain.Upload) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.uploads = append(f.uploads, upload)
	return nil
}

func (f *fakeRegistry) RecordAnalysis(_ context.Context, record domain.AnalysisRecord) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.analyses = append(f.analyses, record)
	return nil
}

func (f *fakeRegistry) ListAnalyses(_ context.Context, doc domain.DocumentID) ([]domain.AnalysisRecord, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []domain.AnalysisRecord
	for _, r := range f.analyses {
		if r.DocumentID == doc {
			out = append(out, r)
		}
	}
	return out, nil
}

const testSource = `\documentclass{article}
\usepackage{color}
\begin{document}
Senior engineer building services in Python.
Led a team of five.
\end{document}
`

var samplePDF = []byte("%PDF-1.4\nsample cv body\n%%EOF\n")

type harness struct {
	pipeline   *Pipeline
	store      *cache.MemoryStore
	extractor  *fakeExtractor
	reproducer *fakeReproducer
	analyzer   *fakeAnalyzer
	optimizer  *fakeOptimizer
	compiler   *fakeCompiler
	registry   *fakeRegistry
}

func newHarness(t *testing.T, mutate ...func(*PipelineDeps)) *harness {
	t.Helper()
	h := &harness{
		store:      cache.NewMemoryStore(),
		extractor:  &fakeExtractor{},
		reproducer: &fakeReproducer{source: testSource},
		analyzer: &fakeAnalyzer{result: domain.AnalysisResult{
			Score:      62,
			ScoreLabel: "Fair",
			Issues:     []domain.Issue{{Text: "No Go experience listed", Severity: "high"}},
			Strengths:  []domain.Strength{{Text: "Team leadership"}},
			Changes: []domain.ChangeProposal{
				{ID: "p1", Section: "Summary", OriginalText: "services in Python", ProposedText: "services in Go & Python"},
				{ID: "p2", Section: "Summary", OriginalText: "Led a team of five.", ProposedText: "Led a team of five Go engineers."},
				{ID: "p3", Section: "Skills", OriginalText: "Kubernetes expert", ProposedText: "Kubernetes"},
			},
		}},
		optimizer: &fakeOptimizer{opt: domain.Optimization{
			Form:      domain.OptimizationDelimited,
			Clean:     "\\begin{document}\nOptimized for {{TITLE}}\n\\end{document}\n",
			Annotated: "\\begin{document}\n\\textcolor{OliveGreen}{\\textbf{Optimized}}\n\\end{document}\n",
			Summary:   "Emphasised Go experience.",
		}},
		registry: &fakeRegistry{},
	}
	h.compiler = newFakeCompiler(t)

	deps := PipelineDeps{
		Cache:      h.store,
		Extractor:  h.extractor,
		Reproducer: h.reproducer,
		Analyzer:   h.analyzer,
		Optimizer:  h.optimizer,
		Compiler:   h.compiler,
		Registry:   h.registry,
	}
	for _, m := range mutate {
		m(&deps)
	}
	h.pipeline = NewPipeline(deps)
	return h
}

func (h *harness) upload(t *testing.T) domain.DocumentID {
	t.Helper()
	up, err := h.pipeline.Upload(context.Background(), "cv.pdf", "application/pdf", samplePDF)
	require.NoError(t, err)
	return up.ID
}

var backendJob = domain.JobSpec{
	Title:       "Backend Engineer",
	Company:     "Acme",
	Description: "Build Go services.",
	Keywords:    []string{"go", "kubernetes"},
}
