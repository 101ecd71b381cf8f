package ingestion

import (
	"regexp"
	"strings"
	"unicode"
)

var (
	inlineSpace = regexp.MustCompile(`[ \t\x{00a0}]+`)
	blankRuns   = regexp.MustCompile(`\n{3,}`)
	// bullet glyphs that postings and PDF exports use in place of "-"
	bulletGlyphs = regexp.MustCompile(`^[•·▪●◦‣∙]\s*`)
)

// CleanText normalizes posting and resume text while preserving structure:
// line endings become LF, runs of spaces collapse, bullet glyphs become "- ",
// control characters are dropped and at most one blank line separates blocks.
func CleanText(content string) string {
	if content == "" {
		return ""
	}

	content = strings.ReplaceAll(content, "\r\n", "\n")
	content = strings.ReplaceAll(content, "\r", "\n")

	lines := strings.Split(content, "\n")
	for i, line := range lines {
		lines[i] = cleanLine(line)
	}

	result := blankRuns.ReplaceAllString(strings.Join(lines, "\n"), "\n\n")
	return strings.TrimSpace(result)
}

func cleanLine(line string) string {
	line = strings.Map(func(r rune) rune {
		if r == '\t' || !unicode.IsControl(r) {
			return r
		}
		return -1
	}, line)

	trimmed := strings.TrimSpace(line)
	if trimmed == "" {
		return ""
	}

	// Markdown headings are kept flush left
	if strings.HasPrefix(trimmed, "#") {
		return inlineSpace.ReplaceAllString(trimmed, " ")
	}

	trimmed = bulletGlyphs.ReplaceAllString(trimmed, "- ")
	indent := len(line) - len(strings.TrimLeft(line, " \t"))
	content := inlineSpace.ReplaceAllString(trimmed, " ")
	if indent > 0 && isBulletLine(content) {
		return strings.Repeat(" ", indent) + content
	}
	return content
}

// isBulletLine checks if a line is a bullet list item
func isBulletLine(line string) bool {
	trimmed := strings.TrimLeft(line, " \t")
	return strings.HasPrefix(trimmed, "- ") || strings.HasPrefix(trimmed, "* ")
}
