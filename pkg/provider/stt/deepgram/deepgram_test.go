package deepgram

import (
	"context"
	"encoding/binary"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/MrWong99/hark/pkg/provider/stt"
	"github.com/coder/websocket"
)

// ---- URL / query-param tests ----

func TestBuildURL_Defaults(t *testing.T) {
	t.Parallel()
	p, err := New("test-key")
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	rawURL, err := p.buildURL(16000)
	if err != nil {
		t.Fatalf("buildURL: %v", err)
	}
	u, err := url.Parse(rawURL)
	if err != nil {
		t.Fatalf("parse URL: %v", err)
	}
	q := u.Query()

	assertEqual(t, "host", "api.deepgram.com", u.Host)
	assertEqual(t, "model", "nova-3", q.Get("model"))
	assertEqual(t, "language", "en", q.Get("language"))
	assertEqual(t, "punctuate", "true", q.Get("punctuate"))
	assertEqual(t, "interim_results", "false", q.Get("interim_results"))
	assertEqual(t, "encoding", "linear16", q.Get("encoding"))
	assertEqual(t, "sample_rate", "16000", q.Get("sample_rate"))
	assertEqual(t, "channels", "1", q.Get("channels"))
	if _, ok := q["keywords"]; ok {
		t.Error("expected no 'keywords' param when none provided")
	}
}

func TestBuildURL_Options(t *testing.T) {
	t.Parallel()
	p, err := New("key",
		WithModel("base"),
		WithLanguage("de-DE"),
		WithKeywords(stt.KeywordBoost{Keyword: "goodbye", Boost: 2}, stt.KeywordBoost{Keyword: "over", Boost: 1.5}),
	)
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	rawURL, err := p.buildURL(44100)
	if err != nil {
		t.Fatalf("buildURL: %v", err)
	}
	u, _ := url.Parse(rawURL)
	q := u.Query()

	assertEqual(t, "model", "base", q.Get("model"))
	assertEqual(t, "language", "de-DE", q.Get("language"))
	assertEqual(t, "sample_rate", "44100", q.Get("sample_rate"))

	kws := q["keywords"]
	if len(kws) != 2 {
		t.Fatalf("expected 2 keywords, got %d: %v", len(kws), kws)
	}
	assertEqual(t, "keywords[0]", "goodbye:2", kws[0])
	assertEqual(t, "keywords[1]", "over:1.5", kws[1])
}

func TestNew_EmptyAPIKey(t *testing.T) {
	t.Parallel()
	if _, err := New(""); err == nil {
		t.Fatal("expected error for empty API key")
	}
}

// ---- JSON parsing tests ----

func TestParseResponse_Final(t *testing.T) {
	t.Parallel()
	raw := []byte(`{
		"type": "Results",
		"is_final": true,
		"channel": {
			"alternatives": [{
				"transcript": "Hello world",
				"confidence": 0.95,
				"words": [
					{"word": "Hello", "start": 0.1, "end": 0.5, "confidence": 0.97},
					{"word": "world", "start": 0.6, "end": 1.0, "confidence": 0.93}
				]
			}]
		}
	}`)

	r, ok := parseResponse(raw)
	if !ok {
		t.Fatal("expected ok=true for valid Results message")
	}
	if !r.final {
		t.Error("expected final=true")
	}
	assertEqual(t, "text", "Hello world", r.transcript.Text)
	if r.transcript.Confidence != 0.95 {
		t.Errorf("expected confidence 0.95, got %f", r.transcript.Confidence)
	}
	if len(r.transcript.Words) != 2 {
		t.Fatalf("expected 2 words, got %d", len(r.transcript.Words))
	}
	if r.transcript.Words[0].Start != time.Duration(0.1*float64(time.Second)) {
		t.Errorf("unexpected start: %v", r.transcript.Words[0].Start)
	}
}

func TestParseResponse_Variants(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name     string
		raw      string
		wantOK   bool
		wantKind string
	}{
		{name: "metadata", raw: `{"type":"Metadata","request_id":"abc"}`, wantOK: true, wantKind: "Metadata"},
		{name: "speech started", raw: `{"type":"SpeechStarted"}`, wantOK: true, wantKind: "SpeechStarted"},
		{name: "no alternatives", raw: `{"type":"Results","is_final":true,"channel":{"alternatives":[]}}`, wantOK: false},
		{name: "invalid json", raw: `not json`, wantOK: false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			r, ok := parseResponse([]byte(tt.raw))
			if ok != tt.wantOK {
				t.Fatalf("ok = %v, want %v", ok, tt.wantOK)
			}
			if ok && r.kind != tt.wantKind {
				t.Errorf("kind = %q, want %q", r.kind, tt.wantKind)
			}
		})
	}
}

func TestJoin(t *testing.T) {
	t.Parallel()
	finals := []result{
		{kind: "Results", final: true, transcript: stt.Transcript{Text: "turn on", Confidence: 0.8}},
		{kind: "Results", final: true, transcript: stt.Transcript{Text: "  "}},
		{kind: "Results", final: true, transcript: stt.Transcript{Text: "the lights", Confidence: 0.6}},
	}
	tr := join(finals)
	assertEqual(t, "text", "turn on the lights", tr.Text)
	if d := tr.Confidence - 0.7; d > 1e-9 || d < -1e-9 {
		t.Errorf("confidence = %f, want 0.7", tr.Confidence)
	}
	if !join(nil).Empty() {
		t.Error("join(nil) should be empty")
	}
}

// ---- streaming round trip ----

// fakeDeepgram is a WebSocket server that records the audio it receives and
// answers CloseStream with the scripted messages.
type fakeDeepgram struct {
	mu     sync.Mutex
	auth   string
	query  url.Values
	pcm    []byte
	chunks int
	closed bool

	replies []string
}

func (f *fakeDeepgram) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	f.mu.Lock()
	f.auth = r.Header.Get("Authorization")
	f.query = r.URL.Query()
	f.mu.Unlock()

	c, err := websocket.Accept(w, r, nil)
	if err != nil {
		return
	}
	defer func() { _ = c.CloseNow() }()

	ctx := r.Context()
	for {
		typ, data, err := c.Read(ctx)
		if err != nil {
			return
		}
		if typ == websocket.MessageText {
			if strings.Contains(string(data), "CloseStream") {
				f.mu.Lock()
				f.closed = true
				f.mu.Unlock()
				break
			}
			continue
		}
		f.mu.Lock()
		f.pcm = append(f.pcm, data...)
		f.chunks++
		f.mu.Unlock()
	}

	for _, msg := range f.replies {
		if err := c.Write(ctx, websocket.MessageText, []byte(msg)); err != nil {
			return
		}
	}
	_ = c.Close(websocket.StatusNormalClosure, "")
}

func wsURL(srv *httptest.Server) string {
	return "ws" + strings.TrimPrefix(srv.URL, "http")
}

func TestTranscribe_RoundTrip(t *testing.T) {
	t.Parallel()

	fake := &fakeDeepgram{replies: []string{
		`{"type":"Results","is_final":false,"channel":{"alternatives":[{"transcript":"what","confidence":0.4}]}}`,
		`{"type":"Results","is_final":true,"channel":{"alternatives":[{"transcript":"what time","confidence":0.9}]}}`,
		`{"type":"Results","is_final":true,"channel":{"alternatives":[{"transcript":"is it over","confidence":0.7}]}}`,
		`{"type":"Metadata","request_id":"r1"}`,
	}}
	srv := httptest.NewServer(fake)
	defer srv.Close()

	p, err := New("secret", WithEndpoint(wsURL(srv)))
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	samples := make([]float32, 4000)
	samples[0] = 0.5
	samples[3999] = -0.5

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	tr, err := p.Transcribe(ctx, samples, 16000)
	if err != nil {
		t.Fatalf("Transcribe: %v", err)
	}

	assertEqual(t, "text", "what time is it over", tr.Text)
	if d := tr.Confidence - 0.8; d > 1e-9 || d < -1e-9 {
		t.Errorf("confidence = %f, want 0.8", tr.Confidence)
	}
	if tr.Duration != 250*time.Millisecond {
		t.Errorf("duration = %v, want 250ms", tr.Duration)
	}

	fake.mu.Lock()
	defer fake.mu.Unlock()
	assertEqual(t, "auth", "Token secret", fake.auth)
	assertEqual(t, "sample_rate", "16000", fake.query.Get("sample_rate"))
	if !fake.closed {
		t.Error("server never received CloseStream")
	}
	if len(fake.pcm) != 8000 {
		t.Fatalf("server received %d bytes, want 8000", len(fake.pcm))
	}
	// 100 ms chunks at 16 kHz: 1600 samples each.
	if fake.chunks != 3 {
		t.Errorf("chunks = %d, want 3", fake.chunks)
	}
	if got := int16(binary.LittleEndian.Uint16(fake.pcm[0:])); got != 16384 {
		t.Errorf("first sample = %d, want 16384", got)
	}
	if got := int16(binary.LittleEndian.Uint16(fake.pcm[7998:])); got != -16384 {
		t.Errorf("last sample = %d, want -16384", got)
	}
}

func TestTranscribe_ServerClosesWithoutResults(t *testing.T) {
	t.Parallel()
	srv := httptest.NewServer(&fakeDeepgram{})
	defer srv.Close()

	p, _ := New("k", WithEndpoint(wsURL(srv)))
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	tr, err := p.Transcribe(ctx, make([]float32, 1600), 16000)
	if err != nil {
		t.Fatalf("Transcribe: %v", err)
	}
	if !tr.Empty() {
		t.Errorf("text = %q, want empty", tr.Text)
	}
}

func TestTranscribe_DialFailure(t *testing.T) {
	t.Parallel()
	srv := httptest.NewServer(http.NotFoundHandler())
	defer srv.Close()

	p, _ := New("k", WithEndpoint(wsURL(srv)))
	if _, err := p.Transcribe(context.Background(), make([]float32, 160), 16000); err == nil {
		t.Fatal("expected dial error")
	}
}

func TestTranscribe_EmptySegment(t *testing.T) {
	t.Parallel()
	p, _ := New("k", WithEndpoint("ws://127.0.0.1:1"))
	tr, err := p.Transcribe(context.Background(), nil, 16000)
	if err != nil || !tr.Empty() {
		t.Fatalf("Transcribe(nil) = %+v, %v", tr, err)
	}
}

// ---- helpers ----

func assertEqual(t *testing.T, field, want, got string) {
	t.Helper()
	if want != got {
		t.Errorf("%s: want %q, got %q", field, want, got)
	}
}
