// Package jobpage imports job postings from public web pages.
package jobpage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"

	"CVTailor/internal/domain"
	"CVTailor/internal/ports"
)

const (
	userAgent      = "CVTailor/1.0 (+job import)"
	maxPageBytes   = 4 << 20
	maxDescription = 20000
	jobPostingType = "JobPosting"
	jsonLDSelector = `script[type="application/ld+json"]`
	blockElements  = "p, div, li, h1, h2, h3, h4, h5, h6, ul, ol, tr, section, blockquote"
	// lineBreak marks structural breaks while whitespace is squeezed.
	lineBreak = "\uE000"
)

var contentSelectors = []string{"main", "article", "[role=main]", "body"}

var ErrNoPosting = errors.New("page carries no job posting")

// Importer fetches a posting page and maps it to a JobSpec. Structured
// JobPosting data wins; Open Graph tags and the page body fill the gaps.
type Importer struct {
	client *http.Client
	logger *slog.Logger
}

var _ ports.JobImporter = (*Importer)(nil)

// NewImporter wires an HTTP client; a nil client gets a 20s timeout.
func NewImporter(client *http.Client, logger *slog.Logger) *Importer {
	if client == nil {
		client = &http.Client{Timeout: 20 * time.Second}
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Importer{client: client, logger: logger.With("component", "job_importer")}
}

func (i *Importer) Import(ctx context.Context, rawURL string) (domain.JobSpec, error) {
	pageURL, err := validateURL(rawURL)
	if err != nil {
		return domain.JobSpec{}, err
	}

	doc, err := i.fetchDocument(ctx, pageURL)
	if err != nil {
		return domain.JobSpec{}, err
	}

	job := fromStructuredData(doc)
	fillFromMeta(doc, &job)
	job.URL = pageURL
	job.Description = truncate(job.Description, maxDescription)

	if job.IsZero() {
		return domain.JobSpec{}, fmt.Errorf("%s: %w", pageURL, ErrNoPosting)
	}
	i.logger.Info("job imported", "url", pageURL, "title", job.Title, "company", job.Company)
	return job, nil
}

func validateURL(raw string) (string, error) {
	parsed, err := url.Parse(strings.TrimSpace(raw))
	if err != nil {
		return "", fmt.Errorf("%w: job url: %v", domain.ErrInvalidInput, err)
	}
	if parsed.Scheme != "http" && parsed.Scheme != "https" {
		return "", fmt.Errorf("%w: job url must be http or https", domain.ErrInvalidInput)
	}
	if parsed.Host == "" {
		return "", fmt.Errorf("%w: job url has no host", domain.ErrInvalidInput)
	}
	return parsed.String(), nil
}

func (i *Importer) fetchDocument(ctx context.Context, pageURL string) (*goquery.Document, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, pageURL, nil)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("User-Agent", userAgent)
	req.Header.Set("Accept", "text/html,application/xhtml+xml")

	resp, err := i.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request posting: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("posting page returned %s", resp.Status)
	}

	doc, err := goquery.NewDocumentFromReader(io.LimitReader(resp.Body, maxPageBytes))
	if err != nil {
		return nil, fmt.Errorf("parse document: %w", err)
	}
	return doc, nil
}

type jobPosting struct {
	Type               any    `json:"@type"`
	Title              string `json:"title"`
	Description        string `json:"description"`
	EmploymentType     any    `json:"employmentType"`
	Skills             any    `json:"skills"`
	HiringOrganization struct {
		Name string `json:"name"`
	} `json:"hiringOrganization"`
	JobLocation     json.RawMessage   `json:"jobLocation"`
	JobLocationType string            `json:"jobLocationType"`
	Graph           []json.RawMessage `json:"@graph"`
}

type place struct {
	Address struct {
		Locality string `json:"addressLocality"`
		Region   string `json:"addressRegion"`
		Country  any    `json:"addressCountry"`
	} `json:"address"`
}

func fromStructuredData(doc *goquery.Document) domain.JobSpec {
	var job domain.JobSpec
	doc.Find(jsonLDSelector).EachWithBreak(func(_ int, s *goquery.Selection) bool {
		posting, ok := findPosting(json.RawMessage(strings.TrimSpace(s.Text())))
		if !ok {
			return true
		}
		job = domain.JobSpec{
			Title:       strings.TrimSpace(posting.Title),
			Company:     strings.TrimSpace(posting.HiringOrganization.Name),
			Location:    location(posting),
			Type:        strings.Join(stringList(posting.EmploymentType), ", "),
			Description: PlainText(posting.Description),
			Keywords:    stringList(posting.Skills),
		}
		return false
	})
	return job
}

// findPosting walks a JSON-LD payload, which may be an object, an array or
// an @graph container, and returns the first JobPosting in it.
func findPosting(raw json.RawMessage) (jobPosting, bool) {
	if len(raw) == 0 {
		return jobPosting{}, false
	}
	if raw[0] == '[' {
		var items []json.RawMessage
		if json.Unmarshal(raw, &items) != nil {
			return jobPosting{}, false
		}
		for _, item := range items {
			if p, ok := findPosting(item); ok {
				return p, true
			}
		}
		return jobPosting{}, false
	}

	var p jobPosting
	if json.Unmarshal(raw, &p) != nil {
		return jobPosting{}, false
	}
	for _, t := range stringList(p.Type) {
		if t == jobPostingType {
			return p, true
		}
	}
	for _, item := range p.Graph {
		if found, ok := findPosting(item); ok {
			return found, true
		}
	}
	return jobPosting{}, false
}

func location(p jobPosting) string {
	var places []place
	if len(p.JobLocation) > 0 {
		if p.JobLocation[0] == '[' {
			_ = json.Unmarshal(p.JobLocation, &places)
		} else {
			var single place
			if json.Unmarshal(p.JobLocation, &single) == nil {
				places = append(places, single)
			}
		}
	}
	for _, pl := range places {
		parts := make([]string, 0, 3)
		for _, v := range []string{pl.Address.Locality, pl.Address.Region, countryName(pl.Address.Country)} {
			if v = strings.TrimSpace(v); v != "" {
				parts = append(parts, v)
			}
		}
		if len(parts) > 0 {
			return strings.Join(parts, ", ")
		}
	}
	if p.JobLocationType == "TELECOMMUTE" {
		return "Remote"
	}
	return ""
}

func countryName(v any) string {
	switch c := v.(type) {
	case string:
		return c
	case map[string]any:
		if name, ok := c["name"].(string); ok {
			return name
		}
	}
	return ""
}

// stringList accepts a string, a comma list or an array of strings.
func stringList(v any) []string {
	var out []string
	switch val := v.(type) {
	case string:
		for _, part := range strings.Split(val, ",") {
			if part = strings.TrimSpace(part); part != "" {
				out = append(out, part)
			}
		}
	case []any:
		for _, item := range val {
			if s, ok := item.(string); ok && strings.TrimSpace(s) != "" {
				out = append(out, strings.TrimSpace(s))
			}
		}
	}
	return out
}

func fillFromMeta(doc *goquery.Document, job *domain.JobSpec) {
	if job.Title == "" {
		job.Title = firstNonEmpty(
			metaContent(doc, `meta[property="og:title"]`),
			strings.TrimSpace(doc.Find("h1").First().Text()),
			strings.TrimSpace(doc.Find("title").First().Text()),
		)
	}
	if job.Company == "" {
		job.Company = metaContent(doc, `meta[property="og:site_name"]`)
	}
	if job.Description != "" {
		return
	}
	for _, selector := range contentSelectors {
		content := doc.Find(selector).First()
		if content.Length() == 0 {
			continue
		}
		content = content.Clone()
		content.Find("nav, header, footer, form").Remove()
		if job.Description = textOf(content); job.Description != "" {
			return
		}
	}
	job.Description = firstNonEmpty(
		metaContent(doc, `meta[property="og:description"]`),
		metaContent(doc, `meta[name="description"]`),
	)
}

func metaContent(doc *goquery.Document, selector string) string {
	v, _ := doc.Find(selector).First().Attr("content")
	return strings.TrimSpace(v)
}

// PlainText converts an HTML fragment to readable text: block elements and
// line breaks become newlines, list items get a bullet.
func PlainText(fragment string) string {
	if !strings.ContainsAny(fragment, "<&") {
		return collapse(strings.ReplaceAll(fragment, "\n", lineBreak))
	}
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(fragment))
	if err != nil {
		return collapse(fragment)
	}
	return textOf(doc.Selection)
}

// textOf renders s as text. Source whitespace, newlines included, is
// squeezed; only markup structure produces line breaks.
func textOf(s *goquery.Selection) string {
	s.Find("script, style, noscript, template").Remove()
	s.Find("br").ReplaceWithHtml(lineBreak)
	s.Find("li").Each(func(_ int, li *goquery.Selection) {
		li.PrependHtml("- ")
	})
	s.Find(blockElements).Each(func(_ int, block *goquery.Selection) {
		block.AppendHtml(lineBreak)
	})
	return collapse(s.Text())
}

// collapse splits on lineBreak, squeezes whitespace per line and drops blank lines.
func collapse(text string) string {
	parts := strings.Split(text, lineBreak)
	out := make([]string, 0, len(parts))
	for _, part := range parts {
		line := strings.Join(strings.Fields(part), " ")
		if line == "" {
			continue
		}
		out = append(out, line)
	}
	return strings.Join(out, "\n")
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n])
}

// NormalizeSpec renders an HTML description as text so markup differences
// between sources do not change the job identity.
func NormalizeSpec(job domain.JobSpec) domain.JobSpec {
	if strings.Contains(job.Description, "<") {
		job.Description = PlainText(job.Description)
	}
	return job
}
