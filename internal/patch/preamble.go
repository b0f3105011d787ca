package patch

import (
	"strings"

	"CVTailor/internal/texscan"
)

const (
	beginDocument = `\begin{document}`

	// AnnotationColor is the colour name used by the annotation marker.
	AnnotationColor = "OliveGreen"
	provideColor    = `\providecolor{OliveGreen}{cmyk}{0.64,0,0.95,0.40}`
	// No options: a later load must not clash with one made by the class or tikz.
	xcolorPackage = `\usepackage{xcolor}`
)

var packageCommands = []string{`\usepackage`, `\RequirePackage`}

// Annotate wraps text in the emphasis marker used by the annotated variant.
func Annotate(text string) string {
	return `\textcolor{` + AnnotationColor + `}{\textbf{` + text + `}}`
}

// EnsureColorSupport makes the preamble able to render annotation spans. A
// plain color package declaration is swapped for xcolor with its options kept;
// when no colour package is loaded xcolor is added. The annotation colour is
// provided in every case. Sources without a document body are returned as is.
func EnsureColorSupport(source string) string {
	bodyStart := strings.Index(source, beginDocument)
	if bodyStart < 0 {
		return source
	}
	preamble, body := source[:bodyStart], source[bodyStart:]

	hasXcolor := false
	var edits []packageDecl
	for _, decl := range scanPackages(preamble) {
		for _, name := range decl.names {
			switch name {
			case "xcolor":
				hasXcolor = true
			case "color":
				edits = append(edits, decl)
			}
		}
	}

	if !hasXcolor && len(edits) > 0 {
		decl := edits[0]
		preamble = preamble[:decl.argStart] + swapColor(preamble[decl.argStart:decl.argEnd]) + preamble[decl.argEnd:]
		hasXcolor = true
	}

	var extra strings.Builder
	if !hasXcolor {
		extra.WriteString(xcolorPackage)
		extra.WriteByte('\n')
	}
	if !strings.Contains(preamble, provideColor) {
		extra.WriteString(provideColor)
		extra.WriteByte('\n')
	}
	if extra.Len() > 0 && !strings.HasSuffix(preamble, "\n") && preamble != "" {
		preamble += "\n"
	}
	return preamble + extra.String() + body
}

type packageDecl struct {
	names    []string
	argStart int
	argEnd   int
}

// scanPackages finds uncommented \usepackage and \RequirePackage declarations
// and the byte range of their mandatory argument (including braces), in source order.
func scanPackages(preamble string) []packageDecl {
	var decls []packageDecl
	for pos := 0; pos < len(preamble); pos++ {
		if preamble[pos] != '\\' {
			continue
		}
		command := ""
		for _, c := range packageCommands {
			if strings.HasPrefix(preamble[pos:], c) {
				command = c
				break
			}
		}
		end := pos + len(command)
		if command == "" || (end < len(preamble) && texscan.IsLetter(preamble[end])) || texscan.InComment(preamble, pos) {
			continue
		}

		i := texscan.SkipSpaces(preamble, end)
		if i < len(preamble) && preamble[i] == '[' {
			closing := strings.IndexByte(preamble[i:], ']')
			if closing < 0 {
				return decls
			}
			i = texscan.SkipSpaces(preamble, i+closing+1)
		}
		if i >= len(preamble) || preamble[i] != '{' {
			continue
		}
		closing := strings.IndexByte(preamble[i:], '}')
		if closing < 0 {
			return decls
		}
		argEnd := i + closing + 1
		var names []string
		for _, name := range strings.Split(preamble[i+1:argEnd-1], ",") {
			names = append(names, strings.TrimSpace(name))
		}
		decls = append(decls, packageDecl{names: names, argStart: i, argEnd: argEnd})
		pos = argEnd - 1
	}
	return decls
}

func swapColor(arg string) string {
	inner := strings.Split(arg[1:len(arg)-1], ",")
	for i, name := range inner {
		if strings.TrimSpace(name) == "color" {
			inner[i] = strings.Replace(name, "color", "xcolor", 1)
		}
	}
	return "{" + strings.Join(inner, ",") + "}"
}
