package audio

import (
	"bytes"
	"fmt"
	"io"
	"math"

	"github.com/youpy/go-wav"
)

const (
	// SampleRate is the rate the recognizer expects.
	SampleRate = 16000

	bitsPerSample = 16
)

// Downmix averages interleaved multi-channel samples into mono. Mono input is
// returned as-is.
func Downmix(samples []float32, channels int) []float32 {
	if channels <= 1 {
		return samples
	}
	frames := len(samples) / channels
	mono := make([]float32, frames)
	for i := 0; i < frames; i++ {
		var sum float32
		for c := 0; c < channels; c++ {
			sum += samples[i*channels+c]
		}
		mono[i] = sum / float32(channels)
	}
	return mono
}

// Resample converts mono samples from one rate to another using linear
// interpolation. Rates must be positive; equal rates return the input.
func Resample(samples []float32, fromRate, toRate int) []float32 {
	if fromRate == toRate || len(samples) == 0 {
		return samples
	}
	ratio := float64(fromRate) / float64(toRate)
	outLen := int(math.Floor(float64(len(samples)) / ratio))
	if outLen < 1 {
		outLen = 1
	}
	out := make([]float32, outLen)
	for i := range out {
		pos := float64(i) * ratio
		idx := int(pos)
		if idx >= len(samples)-1 {
			out[i] = samples[len(samples)-1]
			continue
		}
		frac := float32(pos - float64(idx))
		out[i] = samples[idx]*(1-frac) + samples[idx+1]*frac
	}
	return out
}

// FloatToPCM16 converts float32 samples in [-1, 1] to little-endian int16
// bytes, clipping out-of-range values.
func FloatToPCM16(samples []float32) []byte {
	out := make([]byte, len(samples)*2)
	for i, s := range samples {
		if s > 1 {
			s = 1
		} else if s < -1 {
			s = -1
		}
		v := int16(s * 32767)
		out[i*2] = byte(v)
		out[i*2+1] = byte(v >> 8)
	}
	return out
}

// DecodeWav reads a WAV stream and returns mono float32 samples at
// SampleRate, downmixing and resampling as needed.
func DecodeWav(r io.Reader) ([]float32, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("failed to read wav data: %w", err)
	}
	reader := wav.NewReader(bytes.NewReader(data))
	format, err := reader.Format()
	if err != nil {
		return nil, fmt.Errorf("failed to read wav format: %w", err)
	}
	if format.NumChannels == 0 || format.SampleRate == 0 {
		return nil, fmt.Errorf("invalid wav format: %d channels at %d Hz", format.NumChannels, format.SampleRate)
	}

	var samples []float32
	for {
		batch, err := reader.ReadSamples()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("failed to read wav samples: %w", err)
		}
		for _, s := range batch {
			for c := uint16(0); c < format.NumChannels; c++ {
				samples = append(samples, float32(reader.FloatValue(s, uint(c))))
			}
		}
	}

	mono := Downmix(samples, int(format.NumChannels))
	return Resample(mono, int(format.SampleRate), SampleRate), nil
}

// EncodeWav writes mono float32 samples as a 16-bit PCM WAV stream.
func EncodeWav(w io.Writer, samples []float32, sampleRate int) error {
	writer := wav.NewWriter(w, uint32(len(samples)), 1, uint32(sampleRate), bitsPerSample)

	out := make([]wav.Sample, len(samples))
	for i, s := range samples {
		if s > 1 {
			s = 1
		} else if s < -1 {
			s = -1
		}
		v := int(s * 32767)
		out[i] = wav.Sample{Values: [2]int{v, v}}
	}
	if err := writer.WriteSamples(out); err != nil {
		return fmt.Errorf("failed to write wav samples: %w", err)
	}
	return nil
}
