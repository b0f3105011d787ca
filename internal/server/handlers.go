package server

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"

	"github.com/gin-gonic/gin"

	"CVTailor/internal/cache"
	"CVTailor/internal/domain"
	"CVTailor/internal/infrastructure/jobpage"
	"CVTailor/internal/ports"
	"CVTailor/internal/usecase"
)

// Service is the orchestrator surface the handlers drive.
type Service interface {
	MaxUploadBytes() int64
	Upload(ctx context.Context, filename, contentType string, data []byte) (domain.Upload, error)
	Process(ctx context.Context, doc domain.DocumentID, job domain.JobSpec) (usecase.ProcessResult, error)
	Analyze(ctx context.Context, doc domain.DocumentID, job domain.JobSpec) (usecase.AnalyzeResult, error)
	Apply(ctx context.Context, doc domain.DocumentID, jobID domain.JobID, accepted []string) (usecase.ApplyResult, error)
	Artifact(ctx context.Context, ref domain.ArtifactRef) (domain.ArtifactRef, []byte, error)
	ListAnalyses(ctx context.Context, doc domain.DocumentID) ([]domain.AnalysisRecord, error)
}

// multipart framing allowance on top of the upload limit
const multipartOverhead = 1 << 20

type handlers struct {
	svc      Service
	importer ports.JobImporter
}

type uploadResponse struct {
	ID       domain.DocumentID `json:"id"`
	Filename string            `json:"filename"`
	Size     int64             `json:"size"`
}

func (h *handlers) upload(c *gin.Context) {
	limit := h.svc.MaxUploadBytes()
	c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, limit+multipartOverhead)

	file, header, err := c.Request.FormFile("file")
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			respondError(c, fmt.Errorf("%w: upload exceeds %d bytes", domain.ErrTooLarge, limit))
			return
		}
		badRequest(c, fmt.Errorf("multipart field \"file\" is required: %v", err))
		return
	}
	defer file.Close()

	data, err := io.ReadAll(io.LimitReader(file, limit+1))
	if err != nil {
		badRequest(c, fmt.Errorf("read upload: %v", err))
		return
	}
	if int64(len(data)) > limit {
		respondError(c, fmt.Errorf("%w: upload exceeds %d bytes", domain.ErrTooLarge, limit))
		return
	}

	up, err := h.svc.Upload(c.Request.Context(), header.Filename, header.Header.Get("Content-Type"), data)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, uploadResponse{ID: up.ID, Filename: up.Filename, Size: up.Size})
}

type processRequest struct {
	ID  domain.DocumentID `json:"id" binding:"required"`
	Job *domain.JobSpec   `json:"job"`
}

type processResponse struct {
	ID                domain.DocumentID       `json:"id"`
	JobID             domain.JobID            `json:"job_id"`
	OriginalPDFURL    string                  `json:"original_pdf_url"`
	OptimizedPDFURL   string                  `json:"optimized_pdf_url"`
	HighlightedPDFURL string                  `json:"highlighted_pdf_url"`
	ChangesSummary    string                  `json:"changes_summary"`
	Form              domain.OptimizationForm `json:"form,omitempty"`
	Cached            bool                    `json:"cached"`
}

func (h *handlers) process(c *gin.Context) {
	var req processRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}
	var job domain.JobSpec
	if req.Job != nil {
		job = jobpage.NormalizeSpec(*req.Job)
	}

	res, err := h.svc.Process(c.Request.Context(), req.ID, job)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, processResponse{
		ID:                res.Document,
		JobID:             res.Job,
		OriginalPDFURL:    artifactURL(res.Document, domain.VariantOriginal, "", ""),
		OptimizedPDFURL:   artifactURL(res.Document, domain.VariantOptimizedClean, res.Job, ""),
		HighlightedPDFURL: artifactURL(res.Document, domain.VariantOptimizedAnnotated, res.Job, ""),
		ChangesSummary:    res.Summary,
		Form:              res.Form,
		Cached:            res.Cached,
	})
}

type analyzeRequest struct {
	CVID domain.DocumentID `json:"cv_id" binding:"required"`
	Job  domain.JobSpec    `json:"job"`
}

type analyzeResponse struct {
	CVID  domain.DocumentID `json:"cv_id"`
	JobID domain.JobID      `json:"job_id"`
	domain.AnalysisResult
	Dropped []domain.DroppedProposal `json:"dropped,omitempty"`
	Cached  bool                     `json:"cached"`
}

func (h *handlers) analyze(c *gin.Context) {
	var req analyzeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}

	res, err := h.svc.Analyze(c.Request.Context(), req.CVID, jobpage.NormalizeSpec(req.Job))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, analyzeResponse{
		CVID:           res.Document,
		JobID:          res.Job,
		AnalysisResult: res.Analysis,
		Dropped:        res.Dropped,
		Cached:         res.Cached,
	})
}

type applyRequest struct {
	CVID              domain.DocumentID `json:"cv_id" binding:"required"`
	JobID             domain.JobID      `json:"job_id" binding:"required"`
	AcceptedChangeIDs []string          `json:"accepted_change_ids"`
}

type applyResponse struct {
	CVID              domain.DocumentID        `json:"cv_id"`
	JobID             domain.JobID             `json:"job_id"`
	Selection         string                   `json:"selection"`
	OriginalPDFURL    string                   `json:"original_pdf_url"`
	OptimizedPDFURL   string                   `json:"optimized_pdf_url"`
	HighlightedPDFURL string                   `json:"highlighted_pdf_url"`
	Applied           []domain.ChangeProposal  `json:"applied"`
	Dropped           []domain.DroppedProposal `json:"dropped,omitempty"`
	Cached            bool                     `json:"cached"`
}

func (h *handlers) apply(c *gin.Context) {
	var req applyRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}

	res, err := h.svc.Apply(c.Request.Context(), req.CVID, req.JobID, req.AcceptedChangeIDs)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, applyResponse{
		CVID:              res.Document,
		JobID:             res.Job,
		Selection:         res.Selection,
		OriginalPDFURL:    artifactURL(res.Document, domain.VariantOriginal, "", ""),
		OptimizedPDFURL:   artifactURL(res.Document, domain.VariantOptimizedClean, res.Job, res.Selection),
		HighlightedPDFURL: artifactURL(res.Document, domain.VariantOptimizedAnnotated, res.Job, res.Selection),
		Applied:           res.Applied,
		Dropped:           res.Dropped,
		Cached:            res.Cached,
	})
}

// document serves GET /api/cv/:id/:name where name is a variant or "analyses".
func (h *handlers) document(c *gin.Context) {
	doc := domain.DocumentID(c.Param("id"))
	name := c.Param("name")
	if name == "analyses" {
		h.analyses(c, doc)
		return
	}

	variant, ok := domain.ParseVariant(name)
	if !ok {
		respondErrorStatus(c, http.StatusNotFound,
			fmt.Errorf("%w: unknown artifact %q", domain.ErrNotFound, name))
		return
	}

	ref, data, err := h.svc.Artifact(c.Request.Context(), domain.ArtifactRef{
		Document:  doc,
		Job:       domain.JobID(c.Query("job")),
		Selection: c.Query("selection"),
		Variant:   variant,
	})
	if err != nil {
		respondError(c, err)
		return
	}
	c.Header("Content-Disposition", fmt.Sprintf(`attachment; filename="%s_%s.pdf"`, ref.Document, ref.Variant))
	c.Data(http.StatusOK, "application/pdf", data)
}

type analysisRecord struct {
	JobID       domain.JobID `json:"job_id"`
	JobTitle    string       `json:"job_title,omitempty"`
	Score       int          `json:"score"`
	ScoreLabel  string       `json:"score_label"`
	ChangeCount int          `json:"change_count"`
	CreatedAt   string       `json:"created_at"`
}

func (h *handlers) analyses(c *gin.Context, doc domain.DocumentID) {
	records, err := h.svc.ListAnalyses(c.Request.Context(), doc)
	if err != nil {
		respondError(c, err)
		return
	}
	out := make([]analysisRecord, 0, len(records))
	for _, r := range records {
		out = append(out, analysisRecord{
			JobID:       r.JobID,
			JobTitle:    r.JobTitle,
			Score:       r.Score,
			ScoreLabel:  r.ScoreLabel,
			ChangeCount: r.ChangeCount,
			CreatedAt:   r.CreatedAt.UTC().Format("2006-01-02T15:04:05Z"),
		})
	}
	c.JSON(http.StatusOK, gin.H{"cv_id": doc, "analyses": out})
}

type importRequest struct {
	URL string `json:"url" binding:"required"`
}

func (h *handlers) importJob(c *gin.Context) {
	if h.importer == nil {
		respondErrorStatus(c, http.StatusNotImplemented, errors.New("job import is not configured"))
		return
	}
	var req importRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}

	job, err := h.importer.Import(c.Request.Context(), req.URL)
	if err != nil {
		if domain.KindOf(err) == domain.KindInput {
			respondError(c, err)
			return
		}
		respondError(c, &domain.StageError{Kind: domain.KindCollaborator, Err: fmt.Errorf("import job: %w", err)})
		return
	}
	jobID, err := cache.JobIdentity(job)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"job_id": jobID, "job": job})
}

func health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

// artifactURL builds the retrieval URL of a variant. The original variant
// ignores job and selection.
func artifactURL(doc domain.DocumentID, variant domain.Variant, job domain.JobID, selection string) string {
	path := "/api/cv/" + url.PathEscape(string(doc)) + "/" + string(variant)
	q := url.Values{}
	if job != "" {
		q.Set("job", string(job))
	}
	if selection != "" {
		q.Set("selection", selection)
	}
	if len(q) == 0 {
		return path
	}
	return path + "?" + q.Encode()
}
