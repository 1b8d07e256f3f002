package audio

import (
	"fmt"
	"math"
)

// s16Scale is the divisor that maps the int16 range onto [-1, 1).
const s16Scale = 32768.0

// S16ToFloat32 converts signed 16-bit samples to normalised float32 samples
// in [-1, 1). dst is reused when it has enough capacity; the (possibly
// reallocated) slice is returned.
func S16ToFloat32(dst []float32, src []int16) []float32 {
	if cap(dst) < len(src) {
		dst = make([]float32, len(src))
	}
	dst = dst[:len(src)]
	for i, s := range src {
		dst[i] = float32(s) / s16Scale
	}
	return dst
}

// Float32ToS16 converts normalised float32 samples to signed 16-bit samples.
// Values outside [-1, 1] are clamped.
func Float32ToS16(src []float32) []int16 {
	out := make([]int16, len(src))
	for i, s := range src {
		v := math.Round(float64(s) * s16Scale)
		if v > math.MaxInt16 {
			v = math.MaxInt16
		} else if v < math.MinInt16 {
			v = math.MinInt16
		}
		out[i] = int16(v)
	}
	return out
}

// DownmixToMono averages interleaved frames of the given channel count into a
// single channel. Uses int32 arithmetic so the average cannot overflow.
// If channels <= 1 the input is returned unchanged.
func DownmixToMono(pcm []int16, channels int) []int16 {
	if channels <= 1 {
		return pcm
	}
	frames := len(pcm) / channels
	out := make([]int16, frames)
	for i := range frames {
		var sum int32
		for c := range channels {
			sum += int32(pcm[i*channels+c])
		}
		out[i] = int16(sum / int32(channels))
	}
	return out
}

// MonoToStereo duplicates each mono sample into an L+R pair.
func MonoToStereo(pcm []int16) []int16 {
	out := make([]int16, len(pcm)*2)
	for i, s := range pcm {
		out[i*2] = s
		out[i*2+1] = s
	}
	return out
}

// Resample converts mono float32 samples from srcRate to dstRate using linear
// interpolation. If the rates are equal or invalid the input is returned
// unchanged.
func Resample(samples []float32, srcRate, dstRate int) []float32 {
	if srcRate <= 0 || dstRate <= 0 || srcRate == dstRate || len(samples) == 0 {
		return samples
	}
	dstLen := int(int64(len(samples)) * int64(dstRate) / int64(srcRate))
	if dstLen == 0 {
		return nil
	}

	out := make([]float32, dstLen)
	ratio := float64(srcRate) / float64(dstRate)
	for i := range dstLen {
		pos := float64(i) * ratio
		idx := int(pos)
		frac := float32(pos - float64(idx))

		s0 := samples[idx]
		s1 := s0
		if idx+1 < len(samples) {
			s1 = samples[idx+1]
		}
		out[i] = s0*(1-frac) + s1*frac
	}
	return out
}

// ResampleS16 is [Resample] for 16-bit mono PCM.
func ResampleS16(pcm []int16, srcRate, dstRate int) []int16 {
	if srcRate <= 0 || dstRate <= 0 || srcRate == dstRate {
		return pcm
	}
	return Float32ToS16(Resample(S16ToFloat32(nil, pcm), srcRate, dstRate))
}

// FormatString returns a human-readable description of a sample rate and
// channel count, e.g. "16000Hz mono".
func FormatString(rate, channels int) string {
	ch := "mono"
	if channels == 2 {
		ch = "stereo"
	} else if channels > 2 {
		ch = fmt.Sprintf("%dch", channels)
	}
	return fmt.Sprintf("%dHz %s", rate, ch)
}
