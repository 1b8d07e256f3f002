package audio

import (
	"bytes"
	"errors"
	"fmt"
	"io"

	goaudio "github.com/go-audio/audio"
	"github.com/go-audio/wav"
)

// wavFormatPCM is the WAVE format tag for uncompressed integer PCM.
const wavFormatPCM = 1

// EncodeWAV wraps clip in a RIFF/WAVE container with 16-bit PCM samples.
func EncodeWAV(clip Clip) ([]byte, error) {
	if clip.SampleRate <= 0 || clip.Channels <= 0 {
		return nil, fmt.Errorf("audio: encode wav: invalid format %s", FormatString(clip.SampleRate, clip.Channels))
	}

	ws := &seekBuffer{}
	enc := wav.NewEncoder(ws, clip.SampleRate, 16, clip.Channels, wavFormatPCM)

	data := make([]int, len(clip.PCM))
	for i, s := range clip.PCM {
		data[i] = int(s)
	}
	buf := &goaudio.IntBuffer{
		Format:         &goaudio.Format{NumChannels: clip.Channels, SampleRate: clip.SampleRate},
		Data:           data,
		SourceBitDepth: 16,
	}
	if err := enc.Write(buf); err != nil {
		return nil, fmt.Errorf("audio: encode wav: %w", err)
	}
	if err := enc.Close(); err != nil {
		return nil, fmt.Errorf("audio: encode wav: close: %w", err)
	}
	return ws.Bytes(), nil
}

// EncodeWAVFloat encodes normalised mono samples as a 16-bit WAV.
func EncodeWAVFloat(samples []float32, sampleRate int) ([]byte, error) {
	return EncodeWAV(Clip{PCM: Float32ToS16(samples), SampleRate: sampleRate, Channels: 1})
}

// DecodeWAV reads a complete WAV stream and returns its samples converted to
// 16-bit PCM. 8, 16, 24 and 32-bit integer sources are supported.
func DecodeWAV(r io.ReadSeeker) (Clip, error) {
	dec := wav.NewDecoder(r)
	if !dec.IsValidFile() {
		return Clip{}, errors.New("audio: decode wav: not a valid WAV stream")
	}
	buf, err := dec.FullPCMBuffer()
	if err != nil {
		return Clip{}, fmt.Errorf("audio: decode wav: %w", err)
	}

	pcm := make([]int16, len(buf.Data))
	for i, v := range buf.Data {
		pcm[i] = ToS16(v, int(dec.BitDepth))
	}
	return Clip{
		PCM:        pcm,
		SampleRate: int(dec.SampleRate),
		Channels:   int(dec.NumChans),
	}, nil
}

// DecodeWAVBytes is [DecodeWAV] for an in-memory WAV file.
func DecodeWAVBytes(data []byte) (Clip, error) {
	return DecodeWAV(bytes.NewReader(data))
}

// ToS16 rescales an integer sample of the given bit depth to 16 bits.
func ToS16(v, bitDepth int) int16 {
	switch bitDepth {
	case 8:
		// 8-bit WAV samples are unsigned.
		return int16((v - 128) << 8)
	case 24:
		return int16(v >> 8)
	case 32:
		return int16(v >> 16)
	default:
		return int16(v)
	}
}

// seekBuffer is an in-memory io.WriteSeeker; the WAV encoder seeks back to
// patch the RIFF and data chunk sizes on Close.
type seekBuffer struct {
	buf []byte
	pos int
}

func (b *seekBuffer) Write(p []byte) (int, error) {
	if need := b.pos + len(p); need > len(b.buf) {
		b.buf = append(b.buf, make([]byte, need-len(b.buf))...)
	}
	n := copy(b.buf[b.pos:], p)
	b.pos += n
	return n, nil
}

func (b *seekBuffer) Seek(offset int64, whence int) (int64, error) {
	var abs int64
	switch whence {
	case io.SeekStart:
		abs = offset
	case io.SeekCurrent:
		abs = int64(b.pos) + offset
	case io.SeekEnd:
		abs = int64(len(b.buf)) + offset
	default:
		return 0, errors.New("audio: seek: invalid whence")
	}
	if abs < 0 {
		return 0, errors.New("audio: seek: negative position")
	}
	b.pos = int(abs)
	return abs, nil
}

func (b *seekBuffer) Bytes() []byte { return b.buf }
