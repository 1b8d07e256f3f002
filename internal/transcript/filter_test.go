package transcript_test

import (
	"strings"
	"testing"

	"github.com/MrWong99/hark/internal/transcript"
)

func TestIsSilenceMarker(t *testing.T) {
	t.Parallel()

	tests := []struct {
		text string
		want bool
	}{
		{"", true},
		{"   ", true},
		{".", true},
		{" ... ", true},
		{"[BLANK_AUDIO]", true},
		{"[Silence]", true},
		{"(wind blowing)", true},
		{"[door slams]", true},
		{"There is some background noise here", true},
		{"[music] la la", true},
		{"(coughs) okay", true},
		{"What time is it?", false},
		{"[click] what time is it", false},
		{"Tell me a joke (please)", false},
		{"hi", false},
	}
	for _, tt := range tests {
		if got := transcript.IsSilenceMarker(tt.text); got != tt.want {
			t.Errorf("IsSilenceMarker(%q) = %v, want %v", tt.text, got, tt.want)
		}
	}
}

func TestIsHallucination(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		text string
		want bool
	}{
		{
			name: "repeated phrase",
			text: strings.Repeat("the the ", 15),
			want: true,
		},
		{
			name: "exclamation run",
			text: "!!!!!!",
			want: true,
		},
		{
			name: "natural sentence",
			text: "The quick brown fox jumps over the lazy dog while a curious cat watches from the sunny windowsill.",
			want: false,
		},
		{
			name: "short repetition below length gate",
			text: "no no no no no",
			want: false,
		},
		{
			name: "empty",
			text: "",
			want: false,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			if got := transcript.IsHallucination(tt.text); got != tt.want {
				t.Errorf("IsHallucination(%q) = %v, want %v", tt.text, got, tt.want)
			}
		})
	}
}

func TestUsable(t *testing.T) {
	t.Parallel()

	if !transcript.Usable("What is the weather like today?") {
		t.Error("ordinary question rejected")
	}
	if transcript.Usable("[BLANK_AUDIO]") {
		t.Error("blank audio marker accepted")
	}
	if transcript.Usable(strings.Repeat("ha ", 40)) {
		t.Error("low entropy loop accepted")
	}
}
