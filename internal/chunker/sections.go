package chunker

import "strings"

// Section is one heading-delimited span of a reference document.
type Section struct {
	// Title is the heading text, or PreambleTitle for the leading span.
	Title string
	// Content is the heading line plus the following non-empty lines.
	Content string
}

// SplitSections splits text on top-level "# " headings. Each section holds
// its heading line and every non-empty line up to the next heading. Text
// before the first heading becomes a PreambleTitle section. Blank lines are
// dropped before accumulation, so blank runs never produce empty sections.
func SplitSections(text string) []Section {
	var (
		sections []Section
		title    = PreambleTitle
		lines    []string
	)
	flush := func() {
		if len(lines) > 0 {
			sections = append(sections, Section{Title: title, Content: strings.Join(lines, "\n")})
		}
	}

	for raw := range strings.Lines(text) {
		line := strings.TrimSpace(raw)
		if line == "" {
			continue
		}
		if heading, ok := parseHeading(line); ok {
			flush()
			title = heading
			lines = []string{line}
			continue
		}
		lines = append(lines, line)
	}
	flush()

	return sections
}

// parseHeading reports whether line is a top-level heading and returns its text.
func parseHeading(line string) (string, bool) {
	rest, ok := strings.CutPrefix(line, "# ")
	if !ok {
		return "", false
	}
	rest = strings.TrimSpace(rest)
	if rest == "" {
		return "", false
	}
	return rest, true
}
