package whisper_test

import (
	"context"
	"encoding/json"
	"io"
	"math"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/MrWong99/hark/pkg/audio"
	"github.com/MrWong99/hark/pkg/provider/stt/whisper"
)

// ---- helpers ----------------------------------------------------------------

// inferenceRequest captures what the fake server received.
type inferenceRequest struct {
	fields map[string]string
	clip   audio.Clip
}

// newMockServer answers POST /inference with responseText and records each
// decoded request.
func newMockServer(t *testing.T, responseText string) (*httptest.Server, func() []inferenceRequest) {
	t.Helper()
	var (
		mu   sync.Mutex
		reqs []inferenceRequest
	)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost || r.URL.Path != "/inference" {
			http.Error(w, "not found", http.StatusNotFound)
			return
		}
		if err := r.ParseMultipartForm(1 << 22); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		f, _, err := r.FormFile("file")
		if err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		data, _ := io.ReadAll(f)
		clip, err := audio.DecodeWAVBytes(data)
		if err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		got := inferenceRequest{fields: map[string]string{}, clip: clip}
		for k, v := range r.MultipartForm.Value {
			got.fields[k] = v[0]
		}
		mu.Lock()
		reqs = append(reqs, got)
		mu.Unlock()

		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]string{"text": responseText})
	}))
	t.Cleanup(srv.Close)
	return srv, func() []inferenceRequest {
		mu.Lock()
		defer mu.Unlock()
		return append([]inferenceRequest(nil), reqs...)
	}
}

// tone returns n samples of a 440 Hz sine at the given rate.
func tone(n, rate int) []float32 {
	out := make([]float32, n)
	for i := range out {
		out[i] = float32(0.5 * math.Sin(2*math.Pi*440*float64(i)/float64(rate)))
	}
	return out
}

// ---- tests ------------------------------------------------------------------

func TestNew_EmptyServerURL_ReturnsError(t *testing.T) {
	t.Parallel()
	if _, err := whisper.New(""); err == nil {
		t.Fatal("expected error for empty serverURL")
	}
}

func TestTranscribe_UploadsWAVAndReturnsText(t *testing.T) {
	t.Parallel()
	srv, requests := newMockServer(t, "  hello there  ")

	p, err := whisper.New(srv.URL+"/", whisper.WithModel("base.en"), whisper.WithLanguage("de"))
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	tr, err := p.Transcribe(context.Background(), tone(16000, 16000), 16000)
	if err != nil {
		t.Fatalf("Transcribe: %v", err)
	}
	if tr.Text != "hello there" {
		t.Errorf("Text = %q, want %q", tr.Text, "hello there")
	}
	if tr.Duration != time.Second {
		t.Errorf("Duration = %v, want 1s", tr.Duration)
	}
	if tr.Language != "de" {
		t.Errorf("Language = %q, want de", tr.Language)
	}

	reqs := requests()
	if len(reqs) != 1 {
		t.Fatalf("server saw %d requests, want 1", len(reqs))
	}
	got := reqs[0]
	if got.fields["model"] != "base.en" || got.fields["language"] != "de" {
		t.Errorf("fields = %v", got.fields)
	}
	if got.fields["response_format"] != "json" {
		t.Errorf("response_format = %q, want json", got.fields["response_format"])
	}
	if got.clip.SampleRate != 16000 || got.clip.Channels != 1 || len(got.clip.PCM) != 16000 {
		t.Errorf("uploaded clip = %dHz %dch %d samples", got.clip.SampleRate, got.clip.Channels, len(got.clip.PCM))
	}
}

func TestTranscribe_ResamplesTo16k(t *testing.T) {
	t.Parallel()
	srv, requests := newMockServer(t, "ok")
	p, _ := whisper.New(srv.URL)

	if _, err := p.Transcribe(context.Background(), tone(44100, 44100), 44100); err != nil {
		t.Fatalf("Transcribe: %v", err)
	}
	clip := requests()[0].clip
	if clip.SampleRate != 16000 {
		t.Errorf("SampleRate = %d, want 16000", clip.SampleRate)
	}
	if len(clip.PCM) != 16000 {
		t.Errorf("len(PCM) = %d, want 16000", len(clip.PCM))
	}
}

func TestTranscribe_EmptySegmentSkipsServer(t *testing.T) {
	t.Parallel()
	srv, requests := newMockServer(t, "unused")
	p, _ := whisper.New(srv.URL)

	tr, err := p.Transcribe(context.Background(), nil, 16000)
	if err != nil {
		t.Fatalf("Transcribe: %v", err)
	}
	if !tr.Empty() {
		t.Errorf("Text = %q, want empty", tr.Text)
	}
	if n := len(requests()); n != 0 {
		t.Errorf("server saw %d requests, want 0", n)
	}
}

func TestTranscribe_InvalidSampleRate(t *testing.T) {
	t.Parallel()
	p, _ := whisper.New("http://127.0.0.1:0")
	if _, err := p.Transcribe(context.Background(), tone(10, 16000), 0); err == nil {
		t.Fatal("expected error for zero sample rate")
	}
}

func TestTranscribe_ServerErrors(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		handler http.HandlerFunc
		wantSub string
	}{
		{
			name: "http 500",
			handler: func(w http.ResponseWriter, _ *http.Request) {
				http.Error(w, "model not loaded", http.StatusInternalServerError)
			},
			wantSub: "HTTP 500",
		},
		{
			name: "malformed json",
			handler: func(w http.ResponseWriter, _ *http.Request) {
				_, _ = w.Write([]byte("{not json"))
			},
			wantSub: "parse JSON",
		},
		{
			name: "error field",
			handler: func(w http.ResponseWriter, _ *http.Request) {
				_, _ = w.Write([]byte(`{"error":"failed to read WAV file"}`))
			},
			wantSub: "failed to read WAV file",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			srv := httptest.NewServer(tt.handler)
			defer srv.Close()

			p, _ := whisper.New(srv.URL)
			_, err := p.Transcribe(context.Background(), tone(1600, 16000), 16000)
			if err == nil {
				t.Fatal("expected error")
			}
			if !strings.Contains(err.Error(), tt.wantSub) {
				t.Errorf("error = %v, want substring %q", err, tt.wantSub)
			}
		})
	}
}

func TestTranscribe_ContextCancelled(t *testing.T) {
	t.Parallel()
	srv, _ := newMockServer(t, "late")
	p, _ := whisper.New(srv.URL)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := p.Transcribe(ctx, tone(1600, 16000), 16000); err == nil {
		t.Fatal("expected error for cancelled context")
	}
}
