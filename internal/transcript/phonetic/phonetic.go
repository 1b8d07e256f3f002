// Package phonetic matches misheard words against a small vocabulary by
// pronunciation.
//
// A candidate is accepted in one of two ways:
//
//  1. Sound-alike: the Double Metaphone codes of the spoken word and of the
//     vocabulary entry share at least one code, and their Jaro-Winkler
//     similarity reaches the phonetic threshold (default 0.70).
//  2. Look-alike: no sound-alike candidate exists and the Jaro-Winkler
//     similarity alone reaches the fuzzy threshold (default 0.85). This pass
//     can be switched off with [WithPhoneticOnly].
//
// Phrases are compared token by token as well as whole, so "good bye" can be
// scored against "goodbye".
package phonetic

import (
	"strings"

	"github.com/antzucaro/matchr"
)

const (
	defaultPhoneticThreshold = 0.70
	defaultFuzzyThreshold    = 0.85
)

// Option configures a [Matcher].
type Option func(*Matcher)

// WithPhoneticThreshold sets the minimum Jaro-Winkler score for a sound-alike
// candidate.
func WithPhoneticThreshold(threshold float64) Option {
	return func(m *Matcher) { m.phoneticThreshold = threshold }
}

// WithFuzzyThreshold sets the minimum Jaro-Winkler score for a look-alike
// candidate.
func WithFuzzyThreshold(threshold float64) Option {
	return func(m *Matcher) { m.fuzzyThreshold = threshold }
}

// WithPhoneticOnly disables the look-alike pass. Only candidates whose
// metaphone codes overlap with the input are considered.
func WithPhoneticOnly() Option {
	return func(m *Matcher) { m.phoneticOnly = true }
}

// Matcher is read-only after construction and safe for concurrent use.
type Matcher struct {
	phoneticThreshold float64
	fuzzyThreshold    float64
	phoneticOnly      bool
}

// New returns a Matcher with default thresholds adjusted by opts.
func New(opts ...Option) *Matcher {
	m := &Matcher{
		phoneticThreshold: defaultPhoneticThreshold,
		fuzzyThreshold:    defaultFuzzyThreshold,
	}
	for _, o := range opts {
		o(m)
	}
	return m
}

// Match returns the vocabulary entry closest to word, its similarity score
// and whether it cleared a threshold. When nothing matches, word is returned
// unchanged with a score of 0.
func (m *Matcher) Match(word string, vocabulary []string) (string, float64, bool) {
	spoken := strings.ToLower(strings.TrimSpace(word))
	if spoken == "" || len(vocabulary) == 0 {
		return word, 0, false
	}
	spokenTokens := strings.Fields(spoken)
	spokenCodes := metaphoneCodes(spokenTokens)

	var (
		best      string
		bestScore float64
		bestSound bool
	)
	for _, entry := range vocabulary {
		target := strings.ToLower(strings.TrimSpace(entry))
		if target == "" {
			continue
		}
		targetTokens := strings.Fields(target)
		score := similarity(spokenTokens, targetTokens, spoken, target)

		if shareCode(spokenCodes, metaphoneCodes(targetTokens)) {
			if score < m.phoneticThreshold {
				continue
			}
			if !bestSound || score > bestScore {
				best, bestScore, bestSound = entry, score, true
			}
			continue
		}
		if m.phoneticOnly || bestSound {
			continue
		}
		if score >= m.fuzzyThreshold && score > bestScore {
			best, bestScore = entry, score
		}
	}

	if best == "" {
		return word, 0, false
	}
	return best, bestScore, true
}

// metaphoneCodes collects the non-empty primary and secondary Double
// Metaphone codes of every token.
func metaphoneCodes(tokens []string) map[string]struct{} {
	codes := make(map[string]struct{}, 2*len(tokens))
	for _, t := range tokens {
		primary, secondary := matchr.DoubleMetaphone(t)
		for _, c := range [...]string{primary, secondary} {
			if c != "" {
				codes[c] = struct{}{}
			}
		}
	}
	return codes
}

func shareCode(a, b map[string]struct{}) bool {
	if len(a) > len(b) {
		a, b = b, a
	}
	for c := range a {
		if _, ok := b[c]; ok {
			return true
		}
	}
	return false
}

// similarity is the best Jaro-Winkler score over the whole strings, the
// strings with spaces removed, and every token pair.
func similarity(spokenTokens, targetTokens []string, spoken, target string) float64 {
	best := matchr.JaroWinkler(spoken, target, false)
	if len(spokenTokens) > 1 || len(targetTokens) > 1 {
		joined := matchr.JaroWinkler(strings.Join(spokenTokens, ""), strings.Join(targetTokens, ""), false)
		best = max(best, joined)
	}
	for _, s := range spokenTokens {
		for _, t := range targetTokens {
			best = max(best, matchr.JaroWinkler(s, t, false))
		}
	}
	return best
}
