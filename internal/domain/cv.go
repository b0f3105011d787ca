package domain

import "time"

// DocumentID identifies an uploaded CV. Depending on deployment mode it is either
// a digest of the upload bytes or a random token.
type DocumentID string

// JobID is the digest of a job's canonical JSON form.
type JobID string

// JobSpec describes the role a CV is tailored for.
type JobSpec struct {
	Title       string   `json:"title,omitempty"`
	Company     string   `json:"company,omitempty"`
	Location    string   `json:"location,omitempty"`
	Type        string   `json:"type,omitempty"`
	Description string   `json:"description,omitempty"`
	Keywords    []string `json:"keywords,omitempty"`
	URL         string   `json:"url,omitempty"`
}

// IsZero reports whether the job carries no usable text.
func (j JobSpec) IsZero() bool {
	return j.Title == "" && j.Description == "" && len(j.Keywords) == 0
}

// Upload is the registry record of an accepted source document.
type Upload struct {
	ID        DocumentID
	Filename  string
	Size      int64
	CreatedAt time.Time
}

// PageImage is one rendered page of an uploaded document.
type PageImage struct {
	Data   []byte
	Format string
}

// ChangeProposal is a single text substitution suggested by the analysis generator.
type ChangeProposal struct {
	ID           string `json:"id"`
	Section      string `json:"section"`
	OriginalText string `json:"original_text"`
	ProposedText string `json:"proposed_text"`
	Reason       string `json:"reason"`
	Impact       string `json:"impact"`
}

// DroppedProposal records why a proposal was filtered out.
type DroppedProposal struct {
	Proposal ChangeProposal `json:"proposal"`
	Reason   string         `json:"reason"`
}

// Issue is a gap between the CV and the job.
type Issue struct {
	Text     string `json:"text"`
	Severity string `json:"severity,omitempty"`
}

// Strength is something the CV already does well for the job.
type Strength struct {
	Text string `json:"text"`
}

// SectionScore rates a CV section's relevance to the job.
type SectionScore struct {
	Section   string `json:"section"`
	Relevance string `json:"relevance"`
}

// AnalysisResult is the persisted outcome of analysing one CV against one job.
type AnalysisResult struct {
	Score           int              `json:"score"`
	ScoreLabel      string           `json:"score_label"`
	MatchedKeywords []string         `json:"matched_keywords,omitempty"`
	MissingKeywords []string         `json:"missing_keywords,omitempty"`
	SectionScores   []SectionScore   `json:"section_scores,omitempty"`
	Issues          []Issue          `json:"issues"`
	Strengths       []Strength       `json:"strengths"`
	Changes         []ChangeProposal `json:"changes"`
}

// AnalysisRecord is the registry summary of a cached analysis.
type AnalysisRecord struct {
	DocumentID  DocumentID
	JobID       JobID
	JobTitle    string
	Score       int
	ScoreLabel  string
	ChangeCount int
	CreatedAt   time.Time
}

// OptimizationForm tells whether the optimizer honoured the sectioned response format.
type OptimizationForm string

const (
	OptimizationDelimited OptimizationForm = "delimited"
	OptimizationFallback  OptimizationForm = "fallback"
)

// DefaultSummary stands in when an optimizer reports no summary.
const DefaultSummary = "CV optimized for the target job description."

// Optimization is the direct-optimize flow result: a rewritten source in two
// renderings plus a human-readable summary.
type Optimization struct {
	Form      OptimizationForm
	Clean     string
	Annotated string
	Summary   string
}

// CompiledDocument points at a freshly produced artifact inside a compiler working directory.
type CompiledDocument struct {
	Path    string
	WorkDir string
}

// Variant names a retrievable artifact rendering.
type Variant string

const (
	VariantOriginal           Variant = "original"
	VariantOptimizedClean     Variant = "optimized"
	VariantOptimizedAnnotated Variant = "highlighted"
)

// ParseVariant accepts the public variant names and their long aliases.
func ParseVariant(raw string) (Variant, bool) {
	switch raw {
	case "original":
		return VariantOriginal, true
	case "optimized", "optimized-clean", "clean":
		return VariantOptimizedClean, true
	case "highlighted", "optimized-annotated", "annotated":
		return VariantOptimizedAnnotated, true
	default:
		return "", false
	}
}

// ArtifactRef addresses one compiled artifact. An empty Selection refers to the
// direct-optimize flow; a non-empty one to an accepted-change set.
type ArtifactRef struct {
	Document  DocumentID `json:"document_id"`
	Job       JobID      `json:"job_id,omitempty"`
	Selection string     `json:"selection,omitempty"`
	Variant   Variant    `json:"variant"`
}

// LatestArtifacts points at the artifacts of the most recent completed run for a document.
type LatestArtifacts struct {
	Job       JobID     `json:"job_id"`
	Selection string    `json:"selection,omitempty"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Stage enumerates pipeline milestones.
type Stage string

const (
	StageUploaded          Stage = "uploaded"
	StageExtracted         Stage = "extracted"
	StageReproduced        Stage = "reproduced"
	StageAnalyzed          Stage = "analyzed"
	StageOptimized         Stage = "optimized"
	StagePatched           Stage = "patched"
	StageCompiledClean     Stage = "compiled_clean"
	StageCompiledAnnotated Stage = "compiled_annotated"
	StageDone              Stage = "done"
)
