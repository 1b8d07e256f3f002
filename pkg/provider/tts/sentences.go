package tts

import (
	"strings"
	"unicode"
)

// SplitSentences breaks text into sentences at '.', '!' and '?' followed by
// whitespace or the end of the text. "3.14" stays intact, "Dr. Smith" does
// not. Empty sentences are dropped.
func SplitSentences(text string) []string {
	var out []string
	rest := text
	for {
		i := sentenceBoundary(rest)
		if i < 0 {
			break
		}
		if s := strings.TrimSpace(rest[:i+1]); s != "" {
			out = append(out, s)
		}
		rest = rest[i+1:]
	}
	if s := strings.TrimSpace(rest); s != "" {
		out = append(out, s)
	}
	return out
}

// sentenceBoundary returns the index of the first sentence-ending character
// at the end of s or followed by whitespace, or -1.
func sentenceBoundary(s string) int {
	for i := 0; i < len(s); i++ {
		switch s[i] {
		case '.', '!', '?':
			if i+1 >= len(s) || unicode.IsSpace(rune(s[i+1])) {
				return i
			}
		}
	}
	return -1
}
