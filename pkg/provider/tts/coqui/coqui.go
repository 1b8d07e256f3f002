// Package coqui provides a Coqui TTS engine that talks to either a standard
// Coqui TTS server or a Coqui XTTS v2 server over their REST APIs.
//
// Two API modes are supported:
//
//   - APIModeStandard (default): the standard Coqui TTS server
//     (ghcr.io/coqui-ai/tts-cpu). Synthesis is GET /api/tts with URL query
//     parameters.
//
//   - APIModeXTTS: the XTTS v2 API server. Synthesis is POST /tts_to_audio/
//     with a JSON body.
//
// Both servers work one utterance per request, so Synthesize splits the text
// into sentences, requests them concurrently with a small lookahead and
// joins the results in order.
//
//	e, err := coqui.New("http://localhost:5002", coqui.WithSpeaker("p225"))
//	clip, err := e.Synthesize(ctx, "Hello there. How can I help?")
package coqui

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/MrWong99/hark/pkg/audio"
	"github.com/MrWong99/hark/pkg/provider/tts"
)

// Compile-time interface assertion.
var _ tts.Synthesizer = (*Engine)(nil)

const (
	defaultLanguage = "en"
	defaultTimeout  = 30 * time.Second
	ttsEndpoint     = "/tts_to_audio/"
	apiTTSEndpoint  = "/api/tts"

	// sentenceLookahead caps the number of synthesis requests in flight.
	sentenceLookahead = 4
)

// APIMode selects which Coqui server API the engine targets.
type APIMode string

const (
	// APIModeXTTS targets the Coqui XTTS v2 API server (/tts_to_audio/).
	APIModeXTTS APIMode = "xtts"

	// APIModeStandard targets the standard Coqui TTS server (/api/tts).
	APIModeStandard APIMode = "standard"
)

// Option is a functional option for configuring an Engine.
type Option func(*Engine)

// WithLanguage sets the language code sent to the server. Defaults to "en".
func WithLanguage(lang string) Option {
	return func(e *Engine) {
		e.language = lang
	}
}

// WithSpeaker sets the speaker: a speaker_id in standard mode, a speaker
// WAV name in XTTS mode.
func WithSpeaker(id string) Option {
	return func(e *Engine) {
		e.speaker = id
	}
}

// WithTimeout sets the per-request HTTP timeout. Defaults to 30 s.
func WithTimeout(d time.Duration) Option {
	return func(e *Engine) {
		e.httpClient.Timeout = d
	}
}

// WithAPIMode sets the server API mode. Defaults to APIModeStandard.
func WithAPIMode(mode APIMode) Option {
	return func(e *Engine) {
		e.apiMode = mode
	}
}

// WithOutputSampleRate resamples mono output to rate. Zero (the default)
// keeps the model's native rate.
func WithOutputSampleRate(rate int) Option {
	return func(e *Engine) {
		e.outputRate = rate
	}
}

// Engine implements tts.Synthesizer backed by a Coqui TTS server.
type Engine struct {
	serverURL  string
	language   string
	speaker    string
	httpClient *http.Client
	apiMode    APIMode
	outputRate int
}

// New creates an Engine for the server at serverURL
// (e.g., "http://localhost:5002").
func New(serverURL string, opts ...Option) (*Engine, error) {
	if serverURL == "" {
		return nil, errors.New("coqui: serverURL must not be empty")
	}
	e := &Engine{
		serverURL:  strings.TrimRight(serverURL, "/"),
		language:   defaultLanguage,
		apiMode:    APIModeStandard,
		httpClient: &http.Client{Timeout: defaultTimeout},
	}
	for _, o := range opts {
		o(e)
	}
	switch e.apiMode {
	case APIModeStandard, APIModeXTTS:
	default:
		return nil, fmt.Errorf("coqui: unknown API mode %q", e.apiMode)
	}
	if e.apiMode == APIModeXTTS && e.speaker == "" {
		return nil, errors.New("coqui: XTTS mode requires a speaker")
	}
	return e, nil
}

// Synthesize renders text sentence by sentence and joins the clips.
func (e *Engine) Synthesize(ctx context.Context, text string) (audio.Clip, error) {
	sentences := tts.SplitSentences(text)
	if len(sentences) == 0 {
		return audio.Clip{}, nil
	}

	clips := make([]audio.Clip, len(sentences))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(sentenceLookahead)
	for i, s := range sentences {
		g.Go(func() error {
			clip, err := e.synthesize(gctx, s)
			if err != nil {
				return err
			}
			clips[i] = clip
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return audio.Clip{}, err
	}
	return concat(clips)
}

// synthesize performs one request and decodes the WAV response.
func (e *Engine) synthesize(ctx context.Context, sentence string) (audio.Clip, error) {
	var (
		req *http.Request
		err error
	)
	if e.apiMode == APIModeStandard {
		req, err = e.standardRequest(ctx, sentence)
	} else {
		req, err = e.xttsRequest(ctx, sentence)
	}
	if err != nil {
		return audio.Clip{}, fmt.Errorf("coqui: create tts request: %w", err)
	}
	req.Header.Set("Accept", "audio/wav")

	resp, err := e.httpClient.Do(req)
	if err != nil {
		return audio.Clip{}, fmt.Errorf("coqui: %s %s: %w", req.Method, req.URL.Path, err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		return audio.Clip{}, fmt.Errorf("coqui: %s %s returned status %d", req.Method, req.URL.Path, resp.StatusCode)
	}
	wav, err := io.ReadAll(resp.Body)
	if err != nil {
		return audio.Clip{}, fmt.Errorf("coqui: read WAV response: %w", err)
	}
	clip, err := audio.DecodeWAVBytes(wav)
	if err != nil {
		return audio.Clip{}, fmt.Errorf("coqui: %w", err)
	}
	if e.outputRate > 0 && clip.Channels == 1 && clip.SampleRate != e.outputRate {
		clip.PCM = audio.ResampleS16(clip.PCM, clip.SampleRate, e.outputRate)
		clip.SampleRate = e.outputRate
	}
	return clip, nil
}

// standardRequest builds GET /api/tts for the standard server.
func (e *Engine) standardRequest(ctx context.Context, sentence string) (*http.Request, error) {
	params := url.Values{}
	params.Set("text", sentence)
	if e.speaker != "" {
		params.Set("speaker_id", e.speaker)
	}
	if e.language != "" {
		params.Set("language_id", e.language)
	}
	return http.NewRequestWithContext(ctx, http.MethodGet, e.serverURL+apiTTSEndpoint+"?"+params.Encode(), nil)
}

// xttsRequest is the JSON body of POST /tts_to_audio/.
type xttsRequest struct {
	Text       string `json:"text"`
	SpeakerWav string `json:"speaker_wav"`
	Language   string `json:"language"`
}

// xttsRequest builds POST /tts_to_audio/ for the XTTS server.
func (e *Engine) xttsRequest(ctx context.Context, sentence string) (*http.Request, error) {
	data, err := json.Marshal(xttsRequest{Text: sentence, SpeakerWav: e.speaker, Language: e.language})
	if err != nil {
		return nil, err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, e.serverURL+ttsEndpoint, bytes.NewReader(data))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	return req, nil
}

// concat joins clips that share one format.
func concat(clips []audio.Clip) (audio.Clip, error) {
	out := audio.Clip{SampleRate: clips[0].SampleRate, Channels: clips[0].Channels}
	for _, c := range clips {
		if c.SampleRate != out.SampleRate || c.Channels != out.Channels {
			return audio.Clip{}, fmt.Errorf("coqui: mixed formats %s and %s",
				audio.FormatString(out.SampleRate, out.Channels), audio.FormatString(c.SampleRate, c.Channels))
		}
		out.PCM = append(out.PCM, c.PCM...)
	}
	return out, nil
}
