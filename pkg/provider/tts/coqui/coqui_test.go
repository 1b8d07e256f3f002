package coqui

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/MrWong99/hark/pkg/audio"
)

// ---- test helpers ----

// testWAV returns a mono WAV of n samples, each set to value.
func testWAV(t *testing.T, n int, value int16, rate int) []byte {
	t.Helper()
	pcm := make([]int16, n)
	for i := range pcm {
		pcm[i] = value
	}
	wav, err := audio.EncodeWAV(audio.Clip{PCM: pcm, SampleRate: rate, Channels: 1})
	if err != nil {
		t.Fatalf("EncodeWAV: %v", err)
	}
	return wav
}

// mustNew is a test helper that calls New and fails the test on error.
func mustNew(t *testing.T, serverURL string, opts ...Option) *Engine {
	t.Helper()
	e, err := New(serverURL, opts...)
	if err != nil {
		t.Fatalf("New(%q): unexpected error: %v", serverURL, err)
	}
	return e
}

// ---- construction ----

func TestNew(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name    string
		url     string
		opts    []Option
		wantErr bool
	}{
		{name: "empty url", url: "", wantErr: true},
		{name: "defaults", url: "http://localhost:5002"},
		{name: "xtts without speaker", url: "http://x", opts: []Option{WithAPIMode(APIModeXTTS)}, wantErr: true},
		{name: "xtts with speaker", url: "http://x", opts: []Option{WithAPIMode(APIModeXTTS), WithSpeaker("alice.wav")}},
		{name: "unknown mode", url: "http://x", opts: []Option{WithAPIMode("grpc")}, wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			_, err := New(tt.url, tt.opts...)
			if (err != nil) != tt.wantErr {
				t.Fatalf("New() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestNew_Defaults(t *testing.T) {
	t.Parallel()
	e := mustNew(t, "http://localhost:5002/", WithTimeout(5*time.Second))
	if e.serverURL != "http://localhost:5002" {
		t.Errorf("serverURL = %q, want trailing slash trimmed", e.serverURL)
	}
	if e.apiMode != APIModeStandard || e.language != "en" {
		t.Errorf("mode %q language %q", e.apiMode, e.language)
	}
	if e.httpClient.Timeout != 5*time.Second {
		t.Errorf("timeout = %v", e.httpClient.Timeout)
	}
}

// ---- standard API ----

func TestSynthesize_StandardAPI(t *testing.T) {
	t.Parallel()

	var (
		mu    sync.Mutex
		texts []string
		query []string
	)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != apiTTSEndpoint || r.Method != http.MethodGet {
			http.NotFound(w, r)
			return
		}
		q := r.URL.Query()
		mu.Lock()
		texts = append(texts, q.Get("text"))
		query = append(query, q.Get("speaker_id")+"/"+q.Get("language_id"))
		mu.Unlock()

		// First sentence is short, second long, so order is visible.
		n := 100
		if q.Get("text") == "How can I help?" {
			n = 300
		}
		w.Header().Set("Content-Type", "audio/wav")
		_, _ = w.Write(testWAV(t, n, int16(n), 22050))
	}))
	defer srv.Close()

	e := mustNew(t, srv.URL, WithSpeaker("p225"), WithLanguage("en"))
	clip, err := e.Synthesize(context.Background(), "Hello there. How can I help?")
	if err != nil {
		t.Fatalf("Synthesize: %v", err)
	}

	if clip.SampleRate != 22050 || clip.Channels != 1 {
		t.Errorf("format = %s", audio.FormatString(clip.SampleRate, clip.Channels))
	}
	if len(clip.PCM) != 400 {
		t.Fatalf("len(PCM) = %d, want 400", len(clip.PCM))
	}
	if clip.PCM[0] != 100 || clip.PCM[99] != 100 || clip.PCM[100] != 300 {
		t.Errorf("sentences joined out of order: %d %d %d", clip.PCM[0], clip.PCM[99], clip.PCM[100])
	}

	mu.Lock()
	defer mu.Unlock()
	sort.Strings(texts)
	if len(texts) != 2 || texts[0] != "Hello there." || texts[1] != "How can I help?" {
		t.Errorf("server texts = %q", texts)
	}
	for _, q := range query {
		if q != "p225/en" {
			t.Errorf("speaker/language = %q, want p225/en", q)
		}
	}
}

func TestSynthesize_OutputSampleRate(t *testing.T) {
	t.Parallel()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write(testWAV(t, 2205, 1000, 22050))
	}))
	defer srv.Close()

	e := mustNew(t, srv.URL, WithOutputSampleRate(16000))
	clip, err := e.Synthesize(context.Background(), "Hi.")
	if err != nil {
		t.Fatalf("Synthesize: %v", err)
	}
	if clip.SampleRate != 16000 {
		t.Errorf("SampleRate = %d, want 16000", clip.SampleRate)
	}
	if len(clip.PCM) != 1600 {
		t.Errorf("len(PCM) = %d, want 1600", len(clip.PCM))
	}
}

// ---- XTTS API ----

func TestSynthesize_XTTS(t *testing.T) {
	t.Parallel()
	var got xttsRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != ttsEndpoint || r.Method != http.MethodPost {
			http.NotFound(w, r)
			return
		}
		if ct := r.Header.Get("Content-Type"); ct != "application/json" {
			http.Error(w, "bad content type "+ct, http.StatusBadRequest)
			return
		}
		_ = json.NewDecoder(r.Body).Decode(&got)
		_, _ = w.Write(testWAV(t, 10, 5, 24000))
	}))
	defer srv.Close()

	e := mustNew(t, srv.URL, WithAPIMode(APIModeXTTS), WithSpeaker("alice.wav"), WithLanguage("de"))
	clip, err := e.Synthesize(context.Background(), "Guten Morgen")
	if err != nil {
		t.Fatalf("Synthesize: %v", err)
	}
	if len(clip.PCM) != 10 || clip.SampleRate != 24000 {
		t.Errorf("clip = %d samples at %d Hz", len(clip.PCM), clip.SampleRate)
	}
	if got.Text != "Guten Morgen" || got.SpeakerWav != "alice.wav" || got.Language != "de" {
		t.Errorf("request = %+v", got)
	}
}

// ---- errors ----

func TestSynthesize_Errors(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name    string
		handler http.HandlerFunc
	}{
		{"server error", func(w http.ResponseWriter, _ *http.Request) {
			http.Error(w, "boom", http.StatusInternalServerError)
		}},
		{"not a wav", func(w http.ResponseWriter, _ *http.Request) {
			_, _ = w.Write([]byte("definitely not RIFF"))
		}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			srv := httptest.NewServer(tt.handler)
			defer srv.Close()
			if _, err := mustNew(t, srv.URL).Synthesize(context.Background(), "One. Two."); err == nil {
				t.Fatal("expected error")
			}
		})
	}
}

func TestSynthesize_MixedFormats(t *testing.T) {
	t.Parallel()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		rate := 16000
		if r.URL.Query().Get("text") == "Two." {
			rate = 22050
		}
		_, _ = w.Write(testWAV(t, 10, 1, rate))
	}))
	defer srv.Close()

	if _, err := mustNew(t, srv.URL).Synthesize(context.Background(), "One. Two."); err == nil {
		t.Fatal("expected error for mixed sample rates")
	}
}

func TestSynthesize_EmptyText(t *testing.T) {
	t.Parallel()
	e := mustNew(t, "http://127.0.0.1:1")
	clip, err := e.Synthesize(context.Background(), "   ")
	if err != nil || len(clip.PCM) != 0 {
		t.Errorf("Synthesize = %d samples, %v", len(clip.PCM), err)
	}
}

func TestSynthesize_ContextCancelled(t *testing.T) {
	t.Parallel()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write(testWAV(t, 10, 1, 16000))
	}))
	defer srv.Close()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := mustNew(t, srv.URL).Synthesize(ctx, "Hello."); err == nil {
		t.Fatal("expected error for cancelled context")
	}
}
