// Package sanitize cleans user-supplied labels (run and scenario names)
// before they are stored, exported, or echoed back to an agent. It strips
// control characters and markup while keeping the readable text.
package sanitize

import (
	"regexp"
	"strings"
	"unicode/utf8"
)

// MaxNameLength is the maximum allowed length for names, in runes.
const MaxNameLength = 80

var (
	// reXMLTag matches XML/HTML tags including those with attributes and self-closing tags.
	// It also matches XML processing instructions like <?xml ...?>.
	reXMLTag = regexp.MustCompile(`<[/?!]?[a-zA-Z][a-zA-Z0-9]*(?:\s+[^>]*)?/?>|<\?[^?]*\?>`)

	reBackticks = regexp.MustCompile("`+")

	reWhitespace = regexp.MustCompile(`\s+`)
)

// Name sanitizes a run or scenario name for storage and display.
//
// The pipeline runs in this order:
//  1. Drop invalid UTF-8 and control characters
//  2. Strip XML/HTML tags and backticks
//  3. Collapse whitespace (including newlines) to single spaces
//  4. Trim and truncate to MaxNameLength runes
func Name(input string) string {
	if input == "" {
		return ""
	}

	s := strings.ToValidUTF8(input, "")
	s = stripControlChars(s)
	s = reXMLTag.ReplaceAllString(s, "")
	s = reBackticks.ReplaceAllString(s, "")
	s = reWhitespace.ReplaceAllString(s, " ")
	s = strings.TrimSpace(s)

	if utf8.RuneCountInString(s) > MaxNameLength {
		s = strings.TrimSpace(string([]rune(s)[:MaxNameLength]))
	}
	return s
}

// stripControlChars replaces ASCII control characters with spaces so that
// words on either side stay separated. DEL is dropped.
func stripControlChars(s string) string {
	var b strings.Builder
	b.Grow(len(s))
	for _, r := range s {
		switch {
		case r == 0x7f:
			continue
		case r < 0x20:
			b.WriteByte(' ')
		default:
			b.WriteRune(r)
		}
	}
	return b.String()
}
