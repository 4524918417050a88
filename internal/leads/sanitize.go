package leads

import (
	"regexp"
	"strings"
	"unicode"
)

var (
	tagRe        = regexp.MustCompile(`<[^>]*>`)
	whitespaceRe = regexp.MustCompile(`\s+`)
	utmExtraRe   = regexp.MustCompile(`[^a-z0-9_-]`)
)

// SanitizeText strips markup and control characters and collapses
// whitespace onto a single line.
func SanitizeText(s string) string {
	s = tagRe.ReplaceAllString(s, "")
	s = stripControl(s, false)
	return strings.TrimSpace(whitespaceRe.ReplaceAllString(s, " "))
}

// SanitizeTextarea is SanitizeText that keeps line breaks.
func SanitizeTextarea(s string) string {
	s = tagRe.ReplaceAllString(s, "")
	s = stripControl(s, true)
	lines := strings.Split(strings.ReplaceAll(s, "\r\n", "\n"), "\n")
	for i, line := range lines {
		lines[i] = strings.TrimSpace(whitespaceRe.ReplaceAllString(line, " "))
	}
	return strings.TrimSpace(strings.Join(lines, "\n"))
}

// SanitizeUTMExtra reduces campaign/term/content to a slug alphabet.
func SanitizeUTMExtra(s string) string {
	return utmExtraRe.ReplaceAllString(strings.ToLower(strings.TrimSpace(s)), "")
}

func stripControl(s string, keepNewlines bool) string {
	return strings.Map(func(r rune) rune {
		if r == '\n' && keepNewlines {
			return r
		}
		if r == '\t' || r == '\n' || r == '\r' {
			return ' '
		}
		if unicode.IsControl(r) {
			return -1
		}
		return r
	}, s)
}
