package resampler

import (
	"encoding/binary"
	"fmt"

	resampling "github.com/tphakala/go-audio-resampling"
)

// Format describes a 16-bit signed integer PCM layout.
type Format struct {
	SampleRate int
	Stereo     bool
}

// Mono16K is the recognition input format.
var Mono16K = Format{SampleRate: 16000}

func (f Format) channels() int {
	if f.Stereo {
		return 2
	}
	return 1
}

func (f Format) sampleBytes() int {
	return 2 * f.channels()
}

// Resample converts data from src to dst. Trailing bytes that do not form a
// whole sample frame are dropped. When the formats match, data is returned
// unchanged.
func Resample(data []byte, src, dst Format) ([]byte, error) {
	if src.SampleRate <= 0 || dst.SampleRate <= 0 {
		return nil, fmt.Errorf("resampler: invalid sample rate %d -> %d", src.SampleRate, dst.SampleRate)
	}
	if src == dst {
		return data, nil
	}
	data = data[:len(data)-len(data)%src.sampleBytes()]

	samples := toFloat(data)
	switch {
	case src.Stereo && !dst.Stereo:
		samples = stereoToMono(samples)
	case !src.Stereo && dst.Stereo:
		samples = monoToStereo(samples)
	}

	if src.SampleRate != dst.SampleRate && len(samples) > 0 {
		r, err := resampling.New(&resampling.Config{
			InputRate:  float64(src.SampleRate),
			OutputRate: float64(dst.SampleRate),
			Channels:   dst.channels(),
			Quality:    resampling.QualitySpec{Preset: resampling.QualityHigh},
		})
		if err != nil {
			return nil, fmt.Errorf("resampler: create: %w", err)
		}
		samples, err = r.Process(samples)
		if err != nil {
			return nil, fmt.Errorf("resampler: process: %w", err)
		}
	}
	return fromFloat(samples), nil
}

func toFloat(data []byte) []float64 {
	out := make([]float64, len(data)/2)
	for i := range out {
		out[i] = float64(int16(binary.LittleEndian.Uint16(data[2*i:]))) / 32768.0
	}
	return out
}

func fromFloat(samples []float64) []byte {
	out := make([]byte, len(samples)*2)
	for i, s := range samples {
		v := s * 32767.0
		if v > 32767 {
			v = 32767
		} else if v < -32768 {
			v = -32768
		}
		binary.LittleEndian.PutUint16(out[2*i:], uint16(int16(v)))
	}
	return out
}

func stereoToMono(in []float64) []float64 {
	out := make([]float64, len(in)/2)
	for i := range out {
		out[i] = (in[2*i] + in[2*i+1]) / 2
	}
	return out
}

func monoToStereo(in []float64) []float64 {
	out := make([]float64, len(in)*2)
	for i, s := range in {
		out[2*i] = s
		out[2*i+1] = s
	}
	return out
}
