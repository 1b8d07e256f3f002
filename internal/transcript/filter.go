// Package transcript decides what to do with a transcribed utterance before it
// reaches the language model.
//
// [IsSilenceMarker] and [IsHallucination] reject transcripts that carry no
// real speech: annotation-only output such as "[BLANK_AUDIO]" and the
// low-entropy loops whisper models produce on noise. [KeywordDetector]
// recognises the voice commands that end the session or hand the turn to the
// assistant.
package transcript

import (
	"log/slog"
	"regexp"
	"strings"

	"github.com/lazybeaver/entropy"
)

const (
	// MinHallucinationLen is the length above which the entropy check runs.
	// Shorter texts do not have enough symbols for a stable estimate.
	MinHallucinationLen = 80

	// MinEntropy is the Shannon entropy, in bits per character, below which a
	// long transcript is treated as a hallucination.
	MinEntropy = 3.63

	// minSpeechChars is the number of characters outside annotations needed
	// for a transcript with annotations to count as speech.
	minSpeechChars = 5
)

// silenceMarkers are matched anywhere in the lower-cased transcript.
var silenceMarkers = []string{
	"[silence]",
	"[noise]",
	"[inaudible]",
	"[blank_audio]",
	"[applause]",
	"[music]",
	"[laughter]",
	"background noise",
	"silence",
}

var annotation = regexp.MustCompile(`\[[^\]]*\]|\([^)]*\)`)

// IsSilenceMarker reports whether text contains no usable speech: it is empty
// or just dots, contains a known non-speech marker, is a single bracketed or
// parenthesised annotation, or has fewer than five characters left once all
// annotations are removed.
func IsSilenceMarker(text string) bool {
	t := strings.ToLower(strings.TrimSpace(text))
	switch t {
	case "", ".", "...":
		return true
	}
	for _, m := range silenceMarkers {
		if strings.Contains(t, m) {
			return true
		}
	}
	if (t[0] == '(' && t[len(t)-1] == ')') || (t[0] == '[' && t[len(t)-1] == ']') {
		return true
	}
	if !annotation.MatchString(t) {
		return false
	}
	outside := strings.TrimSpace(annotation.ReplaceAllString(t, ""))
	return len(outside) < minSpeechChars
}

// IsHallucination reports whether text looks like model output that was not
// driven by speech: a run of nothing but exclamation marks, or a long text
// whose character entropy is below [MinEntropy].
func IsHallucination(text string) bool {
	t := strings.TrimSpace(text)
	if t != "" && strings.Trim(t, "! ") == "" {
		return true
	}
	if len(t) <= MinHallucinationLen {
		return false
	}
	e, err := entropy.Shannon(t)
	if err != nil {
		slog.Warn("transcript: entropy check failed", "err", err)
		return false
	}
	if e < MinEntropy {
		slog.Debug("transcript: low entropy, treating as hallucination", "entropy", e, "len", len(t))
		return true
	}
	return false
}

// Usable reports whether text should be passed on as user speech.
func Usable(text string) bool {
	return !IsSilenceMarker(text) && !IsHallucination(text)
}
