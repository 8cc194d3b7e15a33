// Package sanitize cleans strings read from untrusted archives before they
// are rendered into markdown handed to MCP clients. Foreign .sav files can
// carry arbitrary experiment names, models and colors.
package sanitize

import (
	"regexp"
	"strings"
	"unicode/utf8"
)

// MaxInlineLength is the longest string Inline returns, in bytes, before
// the ellipsis.
const MaxInlineLength = 120

var (
	// reXMLTag matches XML/HTML tags and processing instructions.
	reXMLTag = regexp.MustCompile(`<[/?!]?[a-zA-Z][a-zA-Z0-9]*(?:\s+[^>]*)?/?>|<\?[^?]*\?>`)

	// reHeading matches leading markdown heading markers.
	reHeading = regexp.MustCompile(`^#{1,6}\s+`)

	reSpaces = regexp.MustCompile(`\s{2,}`)
)

// Inline returns s as a single line of plain text: control characters and
// newlines become spaces, tags are dropped, backticks are removed so the
// result can sit inside a code span, and long values are truncated.
func Inline(s string) string {
	if s == "" {
		return ""
	}

	s = stripControlChars(s)
	s = reXMLTag.ReplaceAllString(s, "")
	s = strings.ReplaceAll(s, "`", "")
	s = reSpaces.ReplaceAllString(strings.TrimSpace(s), " ")
	s = reHeading.ReplaceAllString(s, "")

	if len(s) > MaxInlineLength {
		s = truncate(s, MaxInlineLength) + "..."
	}
	return s
}

// stripControlChars replaces ASCII control characters, including newlines
// and tabs, with spaces.
func stripControlChars(s string) string {
	var b strings.Builder
	b.Grow(len(s))
	for _, r := range s {
		if r < 0x20 || r == 0x7f {
			b.WriteByte(' ')
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}

// truncate cuts s to at most n bytes without splitting a rune.
func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	for n > 0 && !utf8.RuneStart(s[n]) {
		n--
	}
	return s[:n]
}
