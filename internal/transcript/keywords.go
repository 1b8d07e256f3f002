package transcript

import (
	"strings"
	"unicode"

	"github.com/MrWong99/hark/internal/transcript/phonetic"
)

// DefaultTurnKeyword ends a user turn when spoken as the last word.
const DefaultTurnKeyword = "over"

// DefaultExitKeywords end the session when they appear anywhere in a
// transcript.
var DefaultExitKeywords = []string{"exit", "quit", "goodbye", "bye bye", "end conversation"}

// minFuzzyLen is the shortest single-word keyword and spoken token that take
// part in fuzzy matching. Shorter words have too many sound-alikes ("quit",
// "quite").
const minFuzzyLen = 5

// KeywordOption configures a [KeywordDetector].
type KeywordOption func(*KeywordDetector)

// WithExitKeywords replaces the exit keyword list.
func WithExitKeywords(keywords ...string) KeywordOption {
	return func(d *KeywordDetector) { d.exit = normaliseAll(keywords) }
}

// WithTurnKeyword replaces the turn keyword. An empty keyword disables turn
// detection.
func WithTurnKeyword(keyword string) KeywordOption {
	return func(d *KeywordDetector) { d.turn = normalise(keyword) }
}

// WithMatcher sets the matcher used to catch misheard single-word exit
// keywords. A nil matcher disables fuzzy matching.
func WithMatcher(m *phonetic.Matcher) KeywordOption {
	return func(d *KeywordDetector) { d.matcher = m }
}

// KeywordDetector recognises exit and turn keywords in transcripts. Matching
// is case-insensitive and ignores punctuation. It is safe for concurrent use.
type KeywordDetector struct {
	exit    []string
	turn    string
	matcher *phonetic.Matcher
}

// NewKeywordDetector returns a detector for [DefaultExitKeywords] and
// [DefaultTurnKeyword] with a strict sound-alike matcher.
func NewKeywordDetector(opts ...KeywordOption) *KeywordDetector {
	d := &KeywordDetector{
		exit:    normaliseAll(DefaultExitKeywords),
		turn:    DefaultTurnKeyword,
		matcher: phonetic.New(phonetic.WithPhoneticOnly(), phonetic.WithPhoneticThreshold(0.95)),
	}
	for _, o := range opts {
		o(d)
	}
	return d
}

// IsExit reports whether text contains an exit keyword as whole words. When a
// matcher is configured, single words and adjacent word pairs are also
// compared by sound against the single-word exit keywords, so "good bye" and
// "goodby" still end the session.
func (d *KeywordDetector) IsExit(text string) bool {
	words := strings.Fields(normalise(text))
	if len(words) == 0 {
		return false
	}
	padded := " " + strings.Join(words, " ") + " "
	for _, kw := range d.exit {
		if kw != "" && strings.Contains(padded, " "+kw+" ") {
			return true
		}
	}
	if d.matcher == nil {
		return false
	}

	var vocabulary []string
	for _, kw := range d.exit {
		if len(kw) >= minFuzzyLen && !strings.Contains(kw, " ") {
			vocabulary = append(vocabulary, kw)
		}
	}
	if len(vocabulary) == 0 {
		return false
	}
	for i, w := range words {
		if len(w) >= minFuzzyLen {
			if _, _, ok := d.matcher.Match(w, vocabulary); ok {
				return true
			}
		}
		if i+1 < len(words) {
			if pair := w + words[i+1]; len(pair) >= minFuzzyLen {
				if _, _, ok := d.matcher.Match(pair, vocabulary); ok {
					return true
				}
			}
		}
	}
	return false
}

// HasTurnKeyword reports whether text ends with the turn keyword, which may be
// several words, and at least one word precedes it.
func (d *KeywordDetector) HasTurnKeyword(text string) bool {
	_, ok := d.turnKeywordAt(text)
	return ok
}

// StripTurnKeyword removes a trailing turn keyword, with any punctuation
// around it, from text. Text without the keyword is returned trimmed but
// otherwise unchanged.
func (d *KeywordDetector) StripTurnKeyword(text string) string {
	t := strings.TrimSpace(text)
	cut, ok := d.turnKeywordAt(t)
	if !ok {
		return t
	}
	return strings.TrimRightFunc(t[:cut], isSeparator)
}

// turnKeywordAt returns the byte offset in text where a trailing turn keyword
// starts.
func (d *KeywordDetector) turnKeywordAt(text string) (int, bool) {
	if d.turn == "" {
		return 0, false
	}
	kw := strings.Fields(d.turn)
	toks := tokenize(text)
	if len(toks) <= len(kw) {
		return 0, false
	}
	tail := toks[len(toks)-len(kw):]
	for i, w := range kw {
		if tail[i].norm != w {
			return 0, false
		}
	}
	return tail[0].start, true
}

// token is one word of a transcript: its normalised form and where it starts
// in the original text.
type token struct {
	norm  string
	start int
}

// tokenize splits text into words the same way [normalise] does, keeping
// their byte offsets.
func tokenize(text string) []token {
	var (
		toks  []token
		b     strings.Builder
		start = -1
	)
	flush := func() {
		if start >= 0 && b.Len() > 0 {
			toks = append(toks, token{norm: b.String(), start: start})
		}
		b.Reset()
		start = -1
	}
	for i, r := range text {
		switch {
		case r == '\'' || r == '’':
			if start < 0 {
				start = i
			}
		case unicode.IsSpace(r) || unicode.IsPunct(r) || unicode.IsSymbol(r):
			flush()
		default:
			if start < 0 {
				start = i
			}
			b.WriteString(strings.ToLower(string(r)))
		}
	}
	flush()
	return toks
}

func isSeparator(r rune) bool {
	return unicode.IsSpace(r) || unicode.IsPunct(r)
}

// normalise lower-cases s and turns punctuation into spaces so "over." and
// "Over!" compare equal to "over". Apostrophes are dropped.
func normalise(s string) string {
	var b strings.Builder
	b.Grow(len(s))
	for _, r := range strings.ToLower(s) {
		switch {
		case r == '\'' || r == '’':
		case unicode.IsPunct(r) || unicode.IsSymbol(r):
			b.WriteByte(' ')
		default:
			b.WriteRune(r)
		}
	}
	return strings.Join(strings.Fields(b.String()), " ")
}

func normaliseAll(keywords []string) []string {
	out := make([]string, 0, len(keywords))
	for _, kw := range keywords {
		if n := normalise(kw); n != "" {
			out = append(out, n)
		}
	}
	return out
}
