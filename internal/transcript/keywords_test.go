package transcript_test

import (
	"testing"

	"github.com/MrWong99/hark/internal/transcript"
)

func TestKeywordDetector_IsExit(t *testing.T) {
	t.Parallel()

	tests := []struct {
		text string
		want bool
	}{
		{"Goodbye.", true},
		{"okay, EXIT now", true},
		{"please quit", true},
		{"Bye bye!", true},
		{"let's end conversation here", true},
		{"end the conversation", false},
		{"good bye", true},
		{"Goodby", true},
		{"that was quite exciting", false},
		{"good morning", false},
		{"what is the weather", false},
		{"", false},
	}
	d := transcript.NewKeywordDetector()
	for _, tt := range tests {
		if got := d.IsExit(tt.text); got != tt.want {
			t.Errorf("IsExit(%q) = %v, want %v", tt.text, got, tt.want)
		}
	}
}

func TestKeywordDetector_WithoutMatcher(t *testing.T) {
	t.Parallel()

	d := transcript.NewKeywordDetector(transcript.WithMatcher(nil))
	if d.IsExit("goodby") {
		t.Error("IsExit(goodby) = true without a matcher")
	}
	if !d.IsExit("goodbye") {
		t.Error("IsExit(goodbye) = false without a matcher")
	}
}

func TestKeywordDetector_CustomExitKeywords(t *testing.T) {
	t.Parallel()

	d := transcript.NewKeywordDetector(transcript.WithExitKeywords("stop listening"))
	if !d.IsExit("Stop listening, please.") {
		t.Error("custom exit phrase not detected")
	}
	if d.IsExit("goodbye") {
		t.Error("default exit keyword still active after replacement")
	}
}

func TestKeywordDetector_TurnKeyword(t *testing.T) {
	t.Parallel()

	tests := []struct {
		text     string
		has      bool
		stripped string
	}{
		{"What time is it over", true, "What time is it"},
		{"What time is it? Over.", true, "What time is it"},
		{"Tell me a joke, over!", true, "Tell me a joke"},
		{"  tell me more OVER  ", true, "tell me more"},
		{"Over.", false, "Over."},
		{"is the game over yet", false, "is the game over yet"},
		{"It's all over the place", false, "It's all over the place"},
		{"take it over", true, "take it"},
		{"", false, ""},
	}
	d := transcript.NewKeywordDetector()
	for _, tt := range tests {
		if got := d.HasTurnKeyword(tt.text); got != tt.has {
			t.Errorf("HasTurnKeyword(%q) = %v, want %v", tt.text, got, tt.has)
		}
		if got := d.StripTurnKeyword(tt.text); got != tt.stripped {
			t.Errorf("StripTurnKeyword(%q) = %q, want %q", tt.text, got, tt.stripped)
		}
	}
}

func TestKeywordDetector_DisabledTurnKeyword(t *testing.T) {
	t.Parallel()

	d := transcript.NewKeywordDetector(transcript.WithTurnKeyword(""))
	if d.HasTurnKeyword("what time is it over") {
		t.Error("HasTurnKeyword = true with the keyword disabled")
	}
}

func TestKeywordDetector_MultiWordTurnKeyword(t *testing.T) {
	t.Parallel()

	tests := []struct {
		keyword  string
		text     string
		has      bool
		stripped string
	}{
		{"over and out", "Is it raining, over and out.", true, "Is it raining"},
		{"over and out", "Is it raining? Over, and... OUT!", true, "Is it raining"},
		{"over and out", "is it raining out", false, "is it raining out"},
		{"over and out", "over and out", false, "over and out"},
		{"Over and Out", "play something over and out ♪", true, "play something"},
		{"that's all", "Read me the news. Thats all", true, "Read me the news"},
		{"that's all", "read me the news that’s all!", true, "read me the news"},
		// A multi-byte word before the keyword must survive the cut intact.
		{"over", "Grüße … über over ♪", true, "Grüße … über"},
	}
	for _, tt := range tests {
		d := transcript.NewKeywordDetector(transcript.WithTurnKeyword(tt.keyword))
		if got := d.HasTurnKeyword(tt.text); got != tt.has {
			t.Errorf("keyword %q: HasTurnKeyword(%q) = %v, want %v", tt.keyword, tt.text, got, tt.has)
		}
		if got := d.StripTurnKeyword(tt.text); got != tt.stripped {
			t.Errorf("keyword %q: StripTurnKeyword(%q) = %q, want %q", tt.keyword, tt.text, got, tt.stripped)
		}
	}
}
