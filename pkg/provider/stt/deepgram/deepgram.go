// Package deepgram provides a Deepgram-backed STT provider.
//
// Deepgram is a streaming engine. Transcribe opens one WebSocket stream per
// segment, sends the PCM in chunks, asks the server to flush with a
// CloseStream message and collects every final result until the server
// closes the stream.
package deepgram

import (
	"context"
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/MrWong99/hark/pkg/audio"
	"github.com/MrWong99/hark/pkg/provider/stt"
	"github.com/coder/websocket"
)

const (
	defaultEndpoint = "wss://api.deepgram.com/v1/listen"
	defaultModel    = "nova-3"
	defaultLanguage = "en"

	// chunkMs is the amount of audio sent per binary WebSocket message.
	chunkMs = 100
)

// Compile-time assertion that Provider implements stt.Provider.
var _ stt.Provider = (*Provider)(nil)

// Option is a functional option for configuring the Deepgram Provider.
type Option func(*Provider)

// WithModel sets the Deepgram model to use (e.g., "nova-3", "base").
func WithModel(model string) Option {
	return func(p *Provider) {
		p.model = model
	}
}

// WithLanguage sets the language code for recognition (e.g., "en", "de-DE").
func WithLanguage(language string) Option {
	return func(p *Provider) {
		p.language = language
	}
}

// WithKeywords boosts recognition of the given terms.
func WithKeywords(keywords ...stt.KeywordBoost) Option {
	return func(p *Provider) {
		p.keywords = append(p.keywords, keywords...)
	}
}

// WithEndpoint overrides the streaming endpoint URL.
func WithEndpoint(endpoint string) Option {
	return func(p *Provider) {
		p.endpoint = endpoint
	}
}

// Provider implements stt.Provider backed by the Deepgram streaming API.
type Provider struct {
	apiKey   string
	endpoint string
	model    string
	language string
	keywords []stt.KeywordBoost
}

// New creates a new Deepgram Provider. apiKey must be non-empty.
func New(apiKey string, opts ...Option) (*Provider, error) {
	if apiKey == "" {
		return nil, errors.New("deepgram: apiKey must not be empty")
	}
	p := &Provider{
		apiKey:   apiKey,
		endpoint: defaultEndpoint,
		model:    defaultModel,
		language: defaultLanguage,
	}
	for _, o := range opts {
		o(p)
	}
	return p, nil
}

// Transcribe streams samples to Deepgram and returns the joined final results.
func (p *Provider) Transcribe(ctx context.Context, samples []float32, sampleRate int) (stt.Transcript, error) {
	if sampleRate <= 0 {
		return stt.Transcript{}, fmt.Errorf("deepgram: invalid sample rate %d", sampleRate)
	}
	if len(samples) == 0 {
		return stt.Transcript{}, nil
	}

	wsURL, err := p.buildURL(sampleRate)
	if err != nil {
		return stt.Transcript{}, fmt.Errorf("deepgram: build URL: %w", err)
	}

	headers := http.Header{}
	headers.Set("Authorization", "Token "+p.apiKey)

	conn, _, err := websocket.Dial(ctx, wsURL, &websocket.DialOptions{
		HTTPHeader: headers,
	})
	if err != nil {
		return stt.Transcript{}, fmt.Errorf("deepgram: dial: %w", err)
	}
	defer func() { _ = conn.CloseNow() }()

	results := make(chan []result, 1)
	go func() { results <- readResults(ctx, conn) }()

	if err := sendPCM(ctx, conn, audio.Float32ToS16(samples), sampleRate*chunkMs/1000); err != nil {
		return stt.Transcript{}, fmt.Errorf("deepgram: send audio: %w", err)
	}
	if err := conn.Write(ctx, websocket.MessageText, []byte(`{"type":"CloseStream"}`)); err != nil {
		return stt.Transcript{}, fmt.Errorf("deepgram: close stream: %w", err)
	}

	var finals []result
	select {
	case finals = <-results:
	case <-ctx.Done():
		return stt.Transcript{}, fmt.Errorf("deepgram: %w", ctx.Err())
	}
	_ = conn.Close(websocket.StatusNormalClosure, "segment done")

	tr := join(finals)
	tr.Language = p.language
	tr.Duration = stt.SegmentDuration(len(samples), sampleRate)
	return tr, nil
}

// buildURL constructs the streaming endpoint URL for one segment.
func (p *Provider) buildURL(sampleRate int) (string, error) {
	u, err := url.Parse(p.endpoint)
	if err != nil {
		return "", err
	}

	q := u.Query()
	q.Set("model", p.model)
	q.Set("language", p.language)
	q.Set("punctuate", "true")
	q.Set("interim_results", "false")
	q.Set("encoding", "linear16")
	q.Set("sample_rate", strconv.Itoa(sampleRate))
	q.Set("channels", "1")

	for _, kw := range p.keywords {
		// Deepgram keyword format: word:boost (e.g., "computer:5")
		q.Add("keywords", fmt.Sprintf("%s:%g", kw.Keyword, kw.Boost))
	}

	u.RawQuery = q.Encode()
	return u.String(), nil
}

// sendPCM writes pcm as little-endian linear16 in chunks of chunkSamples.
func sendPCM(ctx context.Context, conn *websocket.Conn, pcm []int16, chunkSamples int) error {
	if chunkSamples < 1 {
		chunkSamples = len(pcm)
	}
	buf := make([]byte, 0, chunkSamples*2)
	for start := 0; start < len(pcm); start += chunkSamples {
		end := min(start+chunkSamples, len(pcm))
		buf = buf[:0]
		for _, s := range pcm[start:end] {
			buf = binary.LittleEndian.AppendUint16(buf, uint16(s))
		}
		if err := conn.Write(ctx, websocket.MessageBinary, buf); err != nil {
			return err
		}
	}
	return nil
}

// readResults collects final results until the server sends its Metadata
// summary or closes the stream.
func readResults(ctx context.Context, conn *websocket.Conn) []result {
	var finals []result
	for {
		_, msg, err := conn.Read(ctx)
		if err != nil {
			// Normal close or context cancellation.
			return finals
		}
		r, ok := parseResponse(msg)
		if !ok {
			continue
		}
		switch {
		case r.kind == "Metadata":
			return finals
		case r.kind == "Results" && r.final:
			finals = append(finals, r)
		}
	}
}

// join concatenates final results into a single transcript. Confidence is the
// mean over the non-empty results.
func join(finals []result) stt.Transcript {
	var (
		parts []string
		tr    stt.Transcript
		conf  float64
	)
	for _, r := range finals {
		text := strings.TrimSpace(r.transcript.Text)
		if text == "" {
			continue
		}
		parts = append(parts, text)
		conf += r.transcript.Confidence
		tr.Words = append(tr.Words, r.transcript.Words...)
	}
	if len(parts) == 0 {
		return stt.Transcript{}
	}
	tr.Text = strings.Join(parts, " ")
	tr.Confidence = conf / float64(len(parts))
	return tr
}

// ---- wire format ----

// deepgramResponse is the JSON structure of a Deepgram stream message.
type deepgramResponse struct {
	Type    string `json:"type"`
	IsFinal bool   `json:"is_final"`
	Channel struct {
		Alternatives []struct {
			Transcript string  `json:"transcript"`
			Confidence float64 `json:"confidence"`
			Words      []struct {
				Word       string  `json:"word"`
				Start      float64 `json:"start"`
				End        float64 `json:"end"`
				Confidence float64 `json:"confidence"`
			} `json:"words"`
		} `json:"alternatives"`
	} `json:"channel"`
}

// result is one parsed stream message.
type result struct {
	kind       string
	final      bool
	transcript stt.Transcript
}

// parseResponse parses a raw Deepgram message. It returns false for
// malformed JSON and for Results messages without alternatives.
func parseResponse(data []byte) (result, bool) {
	var resp deepgramResponse
	if err := json.Unmarshal(data, &resp); err != nil {
		return result{}, false
	}
	if resp.Type != "Results" {
		return result{kind: resp.Type}, true
	}
	if len(resp.Channel.Alternatives) == 0 {
		return result{}, false
	}

	alt := resp.Channel.Alternatives[0]
	words := make([]stt.WordDetail, 0, len(alt.Words))
	for _, w := range alt.Words {
		words = append(words, stt.WordDetail{
			Word:       w.Word,
			Start:      time.Duration(w.Start * float64(time.Second)),
			End:        time.Duration(w.End * float64(time.Second)),
			Confidence: w.Confidence,
		})
	}

	return result{
		kind:  resp.Type,
		final: resp.IsFinal,
		transcript: stt.Transcript{
			Text:       alt.Transcript,
			Confidence: alt.Confidence,
			Words:      words,
		},
	}, true
}
