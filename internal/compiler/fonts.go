package compiler

import (
	"strings"

	"CVTailor/internal/texscan"
)

// FontCategory groups typefaces for substitution.
type FontCategory string

const (
	FontSerif FontCategory = "serif"
	FontSans  FontCategory = "sans"
	FontMono  FontCategory = "mono"
)

// safeFonts are the families every supported compiler image ships with.
var safeFonts = map[string]FontCategory{
	"dejavu serif":       FontSerif,
	"dejavu sans":        FontSans,
	"dejavu sans mono":   FontMono,
	"latin modern roman": FontSerif,
	"latin modern sans":  FontSans,
	"latin modern mono":  FontMono,
	"tex gyre termes":    FontSerif,
	"tex gyre heros":     FontSans,
	"tex gyre cursor":    FontMono,
}

var fallbackFonts = map[FontCategory]string{
	FontSerif: "DejaVu Serif",
	FontSans:  "DejaVu Sans",
	FontMono:  "DejaVu Sans Mono",
}

// fontDirectives maps a font selection command to the category it implies.
// An empty category means the name decides.
var fontDirectives = map[string]FontCategory{
	"setmainfont":   "",
	"setromanfont":  "",
	"setsansfont":   FontSans,
	"setmonofont":   FontMono,
	"fontspec":      "",
	"newfontfamily": "",
}

var (
	monoHints = []string{"mono", "code", "courier", "consol", "cursor", "menlo", "typewriter", "inconsolata"}
	sansHints = []string{"sans", "helvetica", "arial", "heros", "roboto", "lato", "open", "inter", "calibri", "verdana", "segoe", "montserrat", "raleway", "grotesk", "gothic"}
)

// FontRewrite records one substituted font reference.
type FontRewrite struct {
	Directive      string
	From           string
	To             string
	DroppedOptions []string
}

// IsSafeFont reports whether name is in the allowlist.
func IsSafeFont(name string) bool {
	_, ok := safeFonts[strings.ToLower(strings.TrimSpace(name))]
	return ok
}

// ClassifyFont guesses the category of an arbitrary family name.
func ClassifyFont(name string) FontCategory {
	lower := strings.ToLower(name)
	if cat, ok := safeFonts[strings.TrimSpace(lower)]; ok {
		return cat
	}
	for _, h := range monoHints {
		if strings.Contains(lower, h) {
			return FontMono
		}
	}
	for _, h := range sansHints {
		if strings.Contains(lower, h) {
			return FontSans
		}
	}
	return FontSerif
}

// fileOptions are the fontspec keys that locate font files by name. They are
// meaningless once the family is substituted and would make the fallback resolve
// to a file that does not exist.
var fileOptions = map[string]bool{
	"path":                true,
	"extension":           true,
	"uprightfont":         true,
	"boldfont":            true,
	"italicfont":          true,
	"bolditalicfont":      true,
	"slantedfont":         true,
	"boldslantedfont":     true,
	"smallcapsfont":       true,
	"fontface":            true,
	"uprightfeatures":     true,
	"boldfeatures":        true,
	"italicfeatures":      true,
	"bolditalicfeatures":  true,
	"slantedfeatures":     true,
	"boldslantedfeatures": true,
	"smallcapsfeatures":   true,
}

// RewriteFonts replaces every font family argument of a font selection command
// that is not in the allowlist with the fallback for its category. File-locating
// options of a substituted directive are removed, the rest of the command is
// preserved. Commented lines are skipped.
func RewriteFonts(source string) (string, []FontRewrite) {
	var (
		b        strings.Builder
		rewrites []FontRewrite
		last     int
	)

	for i := 0; i < len(source); i++ {
		if source[i] != '\\' {
			continue
		}
		j := i + 1
		for j < len(source) && texscan.IsLetter(source[j]) {
			j++
		}
		if j == i+1 {
			i++
			continue
		}
		directive := source[i+1 : j]
		category, known := fontDirectives[directive]
		if !known || texscan.InComment(source, i) {
			i = j - 1
			continue
		}

		arg, ok := fontArgument(source, j, directive == "newfontfamily")
		if !ok {
			i = j - 1
			continue
		}

		name := strings.TrimSpace(source[arg.nameStart:arg.nameEnd])
		if name != "" && !IsSafeFont(name) {
			if category == "" {
				category = ClassifyFont(name)
			}
			replacement := fallbackFonts[category]
			rewrite := FontRewrite{Directive: directive, From: name, To: replacement}

			if arg.optStart >= 0 {
				kept, dropped := stripFileOptions(source[arg.optStart+1 : arg.optEnd])
				rewrite.DroppedOptions = dropped
				b.WriteString(source[last:arg.optStart])
				if len(dropped) == 0 {
					b.WriteString(source[arg.optStart : arg.optEnd+1])
				} else if kept != "" {
					b.WriteString("[" + kept + "]")
				}
				b.WriteString(source[arg.optEnd+1 : arg.nameStart])
			} else {
				b.WriteString(source[last:arg.nameStart])
			}
			b.WriteString(replacement)
			last = arg.nameEnd
			rewrites = append(rewrites, rewrite)
		}
		i = arg.nameEnd
	}

	if len(rewrites) == 0 {
		return source, nil
	}
	b.WriteString(source[last:])
	return b.String(), rewrites
}

// stripFileOptions drops file-locating keys from a key=value option list and
// returns the remaining options joined back together along with the dropped keys.
func stripFileOptions(options string) (string, []string) {
	var kept, dropped []string
	for _, opt := range splitOptions(options) {
		trimmed := strings.TrimSpace(opt)
		if trimmed == "" {
			continue
		}
		key, _, _ := strings.Cut(trimmed, "=")
		key = strings.TrimSpace(key)
		if fileOptions[strings.ToLower(key)] {
			dropped = append(dropped, key)
			continue
		}
		kept = append(kept, trimmed)
	}
	return strings.Join(kept, ", "), dropped
}

// splitOptions splits on commas outside braces.
func splitOptions(s string) []string {
	var parts []string
	depth, start := 0, 0
	for i := 0; i < len(s); i++ {
		switch s[i] {
		case '{':
			depth++
		case '}':
			depth--
		case ',':
			if depth == 0 {
				parts = append(parts, s[start:i])
				start = i + 1
			}
		}
	}
	return append(parts, s[start:])
}

// fontArg holds byte offsets of a directive's arguments. optStart and optEnd
// index the brackets of the option group, or are -1 when there is none;
// nameStart and nameEnd bound the text inside the family braces.
type fontArg struct {
	optStart, optEnd   int
	nameStart, nameEnd int
}

// fontArgument locates the family name braces following a directive, skipping
// the family command of \newfontfamily and an optional [options] group.
func fontArgument(s string, i int, familyCommand bool) (fontArg, bool) {
	arg := fontArg{optStart: -1, optEnd: -1}
	i = texscan.SkipSpaces(s, i)
	if familyCommand {
		switch {
		case i < len(s) && s[i] == '\\':
			i++
			for i < len(s) && texscan.IsLetter(s[i]) {
				i++
			}
		case i < len(s) && s[i] == '{':
			end := strings.IndexByte(s[i:], '}')
			if end < 0 {
				return arg, false
			}
			i += end + 1
		default:
			return arg, false
		}
		i = texscan.SkipSpaces(s, i)
	}

	if i < len(s) && s[i] == '[' {
		end, ok := texscan.Matching(s, i, '[', ']')
		if !ok {
			return arg, false
		}
		arg.optStart, arg.optEnd = i, end
		i = texscan.SkipSpaces(s, end+1)
	}

	if i >= len(s) || s[i] != '{' {
		return arg, false
	}
	end, ok := texscan.Matching(s, i, '{', '}')
	if !ok {
		return arg, false
	}
	arg.nameStart, arg.nameEnd = i+1, end
	return arg, true
}
