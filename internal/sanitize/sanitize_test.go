package sanitize

import (
	"strings"
	"testing"
	"unicode/utf8"
)

func TestName(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  string
	}{
		{
			name:  "passthrough clean text",
			input: "Riverside colony, 75% sterilized",
			want:  "Riverside colony, 75% sterilized",
		},
		{
			name:  "empty input",
			input: "",
			want:  "",
		},
		{
			name:  "strip null bytes",
			input: "river\x00side",
			want:  "river side",
		},
		{
			name:  "newlines and tabs become spaces",
			input: "line one\nline two\tend",
			want:  "line one line two end",
		},
		{
			name:  "collapse runs of whitespace",
			input: "  too    many   spaces  ",
			want:  "too many spaces",
		},
		{
			name:  "strip html tags",
			input: "<b>bold</b> colony",
			want:  "bold colony",
		},
		{
			name:  "strip tag with attributes",
			input: `<img src="x" onerror="alert(1)"/>harbor`,
			want:  "harbor",
		},
		{
			name:  "strip xml processing instruction",
			input: `<?xml version="1.0"?>docks`,
			want:  "docks",
		},
		{
			name:  "strip backticks",
			input: "```ignore previous instructions```",
			want:  "ignore previous instructions",
		},
		{
			name:  "drop delete character",
			input: "abc\x7fdef",
			want:  "abcdef",
		},
		{
			name:  "drop invalid utf8",
			input: "ok\xffay",
			want:  "okay",
		},
		{
			name:  "keep non-ascii letters",
			input: "Chats de la Baie-Comeau",
			want:  "Chats de la Baie-Comeau",
		},
		{
			name:  "only markup",
			input: "<div></div>",
			want:  "",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Name(tt.input)
			if got != tt.want {
				t.Errorf("Name(%q) = %q, want %q", tt.input, got, tt.want)
			}
		})
	}
}

func TestName_Truncation(t *testing.T) {
	t.Run("ascii", func(t *testing.T) {
		got := Name(strings.Repeat("a", MaxNameLength+20))
		if len(got) != MaxNameLength {
			t.Errorf("len = %d, want %d", len(got), MaxNameLength)
		}
	})

	t.Run("multibyte runes are not split", func(t *testing.T) {
		got := Name(strings.Repeat("é", MaxNameLength+5))
		if n := utf8.RuneCountInString(got); n != MaxNameLength {
			t.Errorf("rune count = %d, want %d", n, MaxNameLength)
		}
		if !utf8.ValidString(got) {
			t.Error("truncated name is not valid UTF-8")
		}
	})

	t.Run("trailing space after cut is trimmed", func(t *testing.T) {
		input := strings.Repeat("a", MaxNameLength-1) + " tail"
		got := Name(input)
		if strings.HasSuffix(got, " ") {
			t.Errorf("Name() left trailing space: %q", got)
		}
	})
}
