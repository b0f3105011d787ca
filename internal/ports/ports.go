package ports

import (
	"context"
	"time"

	"CVTailor/internal/domain"
)

// PageExtractor renders an uploaded document into ordered page images.
type PageExtractor interface {
	Extract(ctx context.Context, document []byte) ([]domain.PageImage, error)
}

// Reproducer turns page images into a markup source.
type Reproducer interface {
	Reproduce(ctx context.Context, pages []domain.PageImage) (string, error)
}

// Analyzer scores a markup source against a job and proposes discrete edits.
// Its output is untrusted.
type Analyzer interface {
	Analyze(ctx context.Context, source string, job domain.JobSpec) (domain.AnalysisResult, error)
}

// Optimizer rewrites a markup source for a job in one shot.
type Optimizer interface {
	Optimize(ctx context.Context, source string, job domain.JobSpec) (domain.Optimization, error)
}

// Compiler turns a markup source into a binary document. Release frees the
// working directory once the caller has copied the artifact.
type Compiler interface {
	Compile(ctx context.Context, source string) (domain.CompiledDocument, error)
	Release(doc domain.CompiledDocument) error
}

// DocumentRegistry keeps queryable metadata about uploads and analyses.
type DocumentRegistry interface {
	RecordUpload(ctx context.Context, upload domain.Upload) error
	RecordAnalysis(ctx context.Context, record domain.AnalysisRecord) error
	ListAnalyses(ctx context.Context, doc domain.DocumentID) ([]domain.AnalysisRecord, error)
}

// JobImporter fetches a job posting and maps it to a JobSpec.
type JobImporter interface {
	Import(ctx context.Context, url string) (domain.JobSpec, error)
}

// Scheduler controls when recurring jobs execute.
type Scheduler interface {
	Start(ctx context.Context, job func(time.Time)) error
	Stop(ctx context.Context) error
}

// Sweeper removes leftovers older than maxAge and reports how many it removed.
type Sweeper interface {
	Sweep(ctx context.Context, maxAge time.Duration) (int, error)
}
