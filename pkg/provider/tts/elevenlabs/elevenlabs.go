// Package elevenlabs provides an ElevenLabs TTS engine using the ElevenLabs
// stream-input WebSocket API.
//
// Synthesize opens one stream per call, sends the whole text followed by the
// empty flush message and collects the base64 PCM chunks until the server
// marks the stream final.
package elevenlabs

import (
	"context"
	"encoding/base64"
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"strconv"
	"strings"

	"github.com/coder/websocket"

	"github.com/MrWong99/hark/pkg/audio"
	"github.com/MrWong99/hark/pkg/provider/tts"
)

const (
	defaultBaseURL   = "wss://api.elevenlabs.io"
	defaultModel     = "eleven_flash_v2_5"
	defaultOutputFmt = "pcm_16000"

	// maxMessageBytes bounds a single server message; audio chunks arrive
	// base64 encoded.
	maxMessageBytes = 4 << 20
)

var _ tts.Synthesizer = (*Engine)(nil)

// Option is a functional option for configuring an Engine.
type Option func(*Engine)

// WithModel sets the ElevenLabs model ID (e.g., "eleven_flash_v2_5").
func WithModel(model string) Option {
	return func(e *Engine) {
		e.model = model
	}
}

// WithOutputFormat sets the PCM output format (e.g., "pcm_16000",
// "pcm_24000"). Only pcm_* formats are accepted.
func WithOutputFormat(format string) Option {
	return func(e *Engine) {
		e.outputFormat = format
	}
}

// WithVoiceSettings sets stability and similarity boost (0-1).
func WithVoiceSettings(stability, similarity float64) Option {
	return func(e *Engine) {
		e.settings = voiceSettings{Stability: stability, SimilarityBoost: similarity}
	}
}

// WithBaseURL overrides the WebSocket base URL.
func WithBaseURL(base string) Option {
	return func(e *Engine) {
		e.baseURL = strings.TrimRight(base, "/")
	}
}

// Engine implements tts.Synthesizer backed by the ElevenLabs streaming API.
type Engine struct {
	apiKey       string
	voiceID      string
	baseURL      string
	model        string
	outputFormat string
	sampleRate   int
	settings     voiceSettings
}

// New creates an Engine speaking with voiceID. apiKey and voiceID must be
// non-empty.
func New(apiKey, voiceID string, opts ...Option) (*Engine, error) {
	if apiKey == "" {
		return nil, errors.New("elevenlabs: apiKey must not be empty")
	}
	if voiceID == "" {
		return nil, errors.New("elevenlabs: voiceID must not be empty")
	}
	e := &Engine{
		apiKey:       apiKey,
		voiceID:      voiceID,
		baseURL:      defaultBaseURL,
		model:        defaultModel,
		outputFormat: defaultOutputFmt,
		settings:     voiceSettings{Stability: 0.5, SimilarityBoost: 0.75},
	}
	for _, o := range opts {
		o(e)
	}
	rate, err := pcmRate(e.outputFormat)
	if err != nil {
		return nil, err
	}
	e.sampleRate = rate
	return e, nil
}

// ---- WebSocket message types ----

// voiceSettings mirrors the ElevenLabs voice_settings object.
type voiceSettings struct {
	Stability       float64 `json:"stability"`
	SimilarityBoost float64 `json:"similarity_boost"`
}

// textMessage is one text message sent on the stream. The first one carries
// the API key and voice settings; an empty Text flushes the stream.
type textMessage struct {
	Text          string         `json:"text"`
	VoiceSettings *voiceSettings `json:"voice_settings,omitempty"`
	XiAPIKey      string         `json:"xi_api_key,omitempty"`
}

// audioResponse is a message received from ElevenLabs.
type audioResponse struct {
	Audio   string `json:"audio"` // base64-encoded PCM
	IsFinal bool   `json:"isFinal"`
	Message string `json:"message,omitempty"`
	Error   string `json:"error,omitempty"`
}

// Synthesize streams text to ElevenLabs and returns the collected PCM.
func (e *Engine) Synthesize(ctx context.Context, text string) (audio.Clip, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return audio.Clip{}, nil
	}

	conn, _, err := websocket.Dial(ctx, e.streamURL(), nil)
	if err != nil {
		return audio.Clip{}, fmt.Errorf("elevenlabs: dial: %w", err)
	}
	defer func() { _ = conn.CloseNow() }()
	conn.SetReadLimit(maxMessageBytes)

	// ElevenLabs requires a single space as the first text value.
	msgs := []textMessage{
		{Text: " ", VoiceSettings: &e.settings, XiAPIKey: e.apiKey},
		{Text: text + " "},
		{Text: ""},
	}
	for _, m := range msgs {
		data, err := json.Marshal(m)
		if err != nil {
			return audio.Clip{}, fmt.Errorf("elevenlabs: marshal: %w", err)
		}
		if err := conn.Write(ctx, websocket.MessageText, data); err != nil {
			return audio.Clip{}, fmt.Errorf("elevenlabs: send text: %w", err)
		}
	}

	var pcm []byte
	for {
		_, msg, err := conn.Read(ctx)
		if err != nil {
			if websocket.CloseStatus(err) == websocket.StatusNormalClosure {
				break
			}
			return audio.Clip{}, fmt.Errorf("elevenlabs: read: %w", err)
		}
		var resp audioResponse
		if err := json.Unmarshal(msg, &resp); err != nil {
			continue
		}
		if resp.Error != "" {
			return audio.Clip{}, fmt.Errorf("elevenlabs: server error: %s: %s", resp.Error, resp.Message)
		}
		if resp.Audio != "" {
			chunk, err := base64.StdEncoding.DecodeString(resp.Audio)
			if err != nil {
				return audio.Clip{}, fmt.Errorf("elevenlabs: decode audio: %w", err)
			}
			pcm = append(pcm, chunk...)
		}
		if resp.IsFinal {
			break
		}
	}
	_ = conn.Close(websocket.StatusNormalClosure, "done")

	return audio.Clip{PCM: decodePCM(pcm), SampleRate: e.sampleRate, Channels: 1}, nil
}

// streamURL constructs the stream-input URL for the configured voice.
func (e *Engine) streamURL() string {
	q := url.Values{}
	q.Set("model_id", e.model)
	q.Set("output_format", e.outputFormat)
	return fmt.Sprintf("%s/v1/text-to-speech/%s/stream-input?%s", e.baseURL, url.PathEscape(e.voiceID), q.Encode())
}

// pcmRate extracts the sample rate from a "pcm_<rate>" output format.
func pcmRate(format string) (int, error) {
	rest, ok := strings.CutPrefix(format, "pcm_")
	if !ok {
		return 0, fmt.Errorf("elevenlabs: unsupported output format %q, want pcm_<rate>", format)
	}
	rate, err := strconv.Atoi(rest)
	if err != nil || rate <= 0 {
		return 0, fmt.Errorf("elevenlabs: invalid sample rate in output format %q", format)
	}
	return rate, nil
}

// decodePCM converts little-endian 16-bit bytes to samples. A trailing odd
// byte is dropped.
func decodePCM(b []byte) []int16 {
	out := make([]int16, len(b)/2)
	for i := range out {
		out[i] = int16(binary.LittleEndian.Uint16(b[i*2:]))
	}
	return out
}
