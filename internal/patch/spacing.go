package patch

import (
	"strconv"
	"strings"

	"CVTailor/internal/texscan"
)

// spacingLimits holds, per unit, the largest negative vertical adjustment left
// in place. Anything tighter squeezes content into neighbouring lines once
// proposals lengthen the text.
var spacingLimits = map[string]float64{
	"pt": 7,
	"bp": 7,
	"mm": 2.5,
	"cm": 0.25,
	"in": 0.1,
	"em": 0.7,
	"ex": 1.5,
}

// NormalizeSpacing removes standalone \vspace lines in the document body whose
// negative amount exceeds the per-unit limit. The preamble and inline spacing
// commands are not touched.
func NormalizeSpacing(source string) string {
	bodyStart := strings.Index(source, beginDocument)
	if bodyStart < 0 {
		return source
	}

	head, body := source[:bodyStart], source[bodyStart:]
	var b strings.Builder
	b.Grow(len(body))
	changed := false
	for len(body) > 0 {
		line := body
		if nl := strings.IndexByte(body, '\n'); nl >= 0 {
			line = body[:nl+1]
		}
		body = body[len(line):]
		if excessiveVSpace(strings.TrimSpace(line)) {
			changed = true
			continue
		}
		b.WriteString(line)
	}
	if !changed {
		return source
	}
	return head + b.String()
}

func excessiveVSpace(line string) bool {
	rest, ok := strings.CutPrefix(line, `\vspace`)
	if !ok {
		return false
	}
	rest = strings.TrimPrefix(rest, "*")
	rest = strings.TrimLeft(rest, " \t")
	if !strings.HasPrefix(rest, "{") || !strings.HasSuffix(rest, "}") {
		return false
	}
	amount := strings.TrimSpace(rest[1 : len(rest)-1])
	amount, negative := strings.CutPrefix(amount, "-")
	if !negative {
		return false
	}
	amount = strings.TrimSpace(amount)

	split := len(amount)
	for split > 0 && texscan.IsLetter(amount[split-1]) {
		split--
	}
	unit := amount[split:]
	limit, known := spacingLimits[unit]
	if !known {
		return false
	}
	value, err := strconv.ParseFloat(strings.TrimSpace(amount[:split]), 64)
	if err != nil {
		return false
	}
	return value > limit
}
