package cache

import (
	"path"

	"CVTailor/internal/domain"
)

// Artifact names inside a key partition.
const (
	NameUpload       = "upload.pdf"
	NameSource       = "source.tex"
	NameLatest       = "latest.json"
	NameJob          = "job.json"
	NameAnalysis     = "analysis.json"
	NameCleanTex     = "clean.tex"
	NameAnnotatedTex = "annotated.tex"
	NameSummary      = "summary.txt"
	NameCleanPDF     = "clean.pdf"
	NameAnnotatedPDF = "annotated.pdf"
)

const (
	documentsDir = "documents"
	jobsDir      = "jobs"
	optimizedDir = "optimized"
	appliedDir   = "applied"
)

// Key is a hierarchical, slash separated cache path. Keys are built only through
// the constructors below so that every component is a validated identity.
type Key struct {
	path string
}

// String returns the slash separated path of the key.
func (k Key) String() string {
	return k.path
}

// IsZero reports whether the key was never constructed.
func (k Key) IsZero() bool {
	return k.path == ""
}

// DocumentKey addresses a job-independent artifact such as the upload or the reproduced source.
func DocumentKey(doc domain.DocumentID, name string) Key {
	return Key{path: path.Join(documentsDir, string(doc), name)}
}

// JobKey addresses an artifact in the (document, job) partition.
func JobKey(doc domain.DocumentID, job domain.JobID, name string) Key {
	return Key{path: path.Join(documentsDir, string(doc), jobsDir, string(job), name)}
}

// OptimizedKey addresses an artifact of the direct-optimize flow.
func OptimizedKey(doc domain.DocumentID, job domain.JobID, name string) Key {
	return Key{path: path.Join(documentsDir, string(doc), jobsDir, string(job), optimizedDir, name)}
}

// AppliedKey addresses an artifact produced from an accepted-change selection.
func AppliedKey(doc domain.DocumentID, job domain.JobID, selection, name string) Key {
	return Key{path: path.Join(documentsDir, string(doc), jobsDir, string(job), appliedDir, selection, name)}
}

// VariantKeys returns the source and compiled keys for a run. An empty selection
// selects the direct-optimize partition.
func VariantKeys(doc domain.DocumentID, job domain.JobID, selection string) (cleanTex, annotatedTex, cleanPDF, annotatedPDF Key) {
	build := func(name string) Key {
		if selection == "" {
			return OptimizedKey(doc, job, name)
		}
		return AppliedKey(doc, job, selection, name)
	}
	return build(NameCleanTex), build(NameAnnotatedTex), build(NameCleanPDF), build(NameAnnotatedPDF)
}

// ArtifactKey maps a compiled artifact reference to its cache key.
func ArtifactKey(ref domain.ArtifactRef) (Key, bool) {
	if ref.Variant == domain.VariantOriginal {
		return DocumentKey(ref.Document, NameUpload), true
	}
	if ref.Job == "" {
		return Key{}, false
	}
	_, _, cleanPDF, annotatedPDF := VariantKeys(ref.Document, ref.Job, ref.Selection)
	switch ref.Variant {
	case domain.VariantOptimizedClean:
		return cleanPDF, true
	case domain.VariantOptimizedAnnotated:
		return annotatedPDF, true
	default:
		return Key{}, false
	}
}
