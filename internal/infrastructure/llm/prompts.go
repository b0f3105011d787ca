package llm

import (
	"encoding/json"
	"fmt"
	"strings"

	"CVTailor/internal/domain"
)

const reproducePrompt = `Reproduce this CV exactly as a complete LaTeX document.
Requirements:
- Output ONLY the LaTeX code, no explanations or markdown fences
- Use \documentclass{article} with standard packages
- Must compile with xelatex
- Faithfully reproduce the layout, formatting, sections, and all text content
- Use packages like geometry, enumitem, titlesec, hyperref as needed
- For fonts: use fontspec with ONLY DejaVu fonts (DejaVu Sans, DejaVu Serif, DejaVu Sans Mono) or the default Latin Modern fonts. Do NOT use any other font names.
- Ensure all special characters are properly escaped
- The document must be complete (\begin{document} to \end{document})`

const analyzeInstructions = `INSTRUCTIONS:
1. Score the CV's match to the job (0-100) and give a label (e.g. 'Good Match', 'Needs Work').
2. List the job keywords the CV already contains (matched_keywords) and the ones it misses (missing_keywords).
3. Rate each major CV section's relevance to the job as 'strong', 'moderate' or 'weak' in section_scores.
4. List issues with severity 'high', 'medium' or 'low', and list strengths.
5. Propose specific text changes targeting the inner text of an item, not the LaTeX wrapper commands.

PAGE LENGTH: proposed_text must be about the same length as original_text or shorter. The CV must keep its page count.

original_text MUST be an exact, character-for-character substring of the LaTeX source above. Copy it verbatim, preserving every space and special character, and make it unique enough to match a single location.

proposed_text is inserted into LaTeX: escape & # % $ _ and keep any LaTeX commands present in the original text.

Respond with ONLY valid JSON (no markdown fences, no explanation) in this structure:
{
  "score": <integer 0-100>,
  "score_label": "<label>",
  "matched_keywords": ["..."],
  "missing_keywords": ["..."],
  "section_scores": [{"section": "Experience", "relevance": "strong|moderate|weak"}],
  "issues": [{"text": "<issue>", "severity": "high|medium|low"}],
  "strengths": [{"text": "<strength>"}],
  "changes": [
    {
      "id": "change-1",
      "section": "<section name>",
      "original_text": "<EXACT substring of the LaTeX source>",
      "proposed_text": "<replacement text>",
      "reason": "<why this helps>",
      "impact": "high|medium|low"
    }
  ]
}`

const optimizeInstructions = `Make minimal, targeted changes to this CV's content to better match the job description. Keep the same LaTeX structure and formatting. Only adjust wording, add relevant keywords or slightly rephrase bullet points. Do NOT change the layout or add or remove sections.

Respond in exactly this format:
` + markerLatex + `
<the complete modified LaTeX document>
` + markerAnnotated + `
<the same document with every changed span wrapped in \textcolor{OliveGreen}{\textbf{...}}>
` + markerSummary + `
<bullet-point summary of the changes>`

func jobJSON(job domain.JobSpec) string {
	raw, err := json.MarshalIndent(job, "", "  ")
	if err != nil {
		return job.Description
	}
	return string(raw)
}

func analyzePrompt(source string, job domain.JobSpec) string {
	var b strings.Builder
	b.WriteString("You are a CV optimization analyst. Analyze the following CV (in LaTeX) against the job description and return a structured JSON response.\n\n")
	fmt.Fprintf(&b, "=== JOB DESCRIPTION ===\n%s\n\n", jobJSON(job))
	fmt.Fprintf(&b, "=== FULL CV LATEX ===\n%s\n\n", source)
	b.WriteString(analyzeInstructions)
	return b.String()
}

func optimizePrompt(source string, job domain.JobSpec) string {
	var b strings.Builder
	b.WriteString("You are a CV optimization expert.\n\n")
	fmt.Fprintf(&b, "=== JOB DESCRIPTION ===\n%s\n\n", jobJSON(job))
	fmt.Fprintf(&b, "=== ORIGINAL CV LATEX ===\n%s\n\n", source)
	b.WriteString(optimizeInstructions)
	return b.String()
}
