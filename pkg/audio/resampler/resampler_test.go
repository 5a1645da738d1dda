package resampler

import (
	"bytes"
	"encoding/binary"
	"math"
	"testing"
)

func pcm16(samples ...int16) []byte {
	b := make([]byte, len(samples)*2)
	for i, s := range samples {
		binary.LittleEndian.PutUint16(b[2*i:], uint16(s))
	}
	return b
}

func TestFormat(t *testing.T) {
	if got := (Format{SampleRate: 44100}).sampleBytes(); got != 2 {
		t.Errorf("mono sampleBytes = %d, want 2", got)
	}
	if got := (Format{SampleRate: 48000, Stereo: true}).sampleBytes(); got != 4 {
		t.Errorf("stereo sampleBytes = %d, want 4", got)
	}
}

func TestResampleSameFormat(t *testing.T) {
	in := pcm16(1, 2, 3)
	out, err := Resample(in, Mono16K, Mono16K)
	if err != nil {
		t.Fatal(err)
	}
	if !bytes.Equal(out, in) {
		t.Fatalf("Resample changed data: %v", out)
	}
}

func TestResampleStereoToMono(t *testing.T) {
	src := Format{SampleRate: 16000, Stereo: true}
	out, err := Resample(pcm16(1000, 3000, -2000, -4000), src, Mono16K)
	if err != nil {
		t.Fatal(err)
	}
	if len(out) != 4 {
		t.Fatalf("len = %d, want 4", len(out))
	}
	got0 := int16(binary.LittleEndian.Uint16(out))
	got1 := int16(binary.LittleEndian.Uint16(out[2:]))
	if math.Abs(float64(got0-2000)) > 1 || math.Abs(float64(got1+3000)) > 1 {
		t.Fatalf("mono = %d, %d; want ~2000, ~-3000", got0, got1)
	}
}

func TestResampleRate(t *testing.T) {
	const n = 48000 // 1s at 48kHz
	samples := make([]int16, n)
	for i := range samples {
		samples[i] = int16(8000 * math.Sin(2*math.Pi*440*float64(i)/48000))
	}
	out, err := Resample(pcm16(samples...), Format{SampleRate: 48000}, Mono16K)
	if err != nil {
		t.Fatal(err)
	}
	got := len(out) / 2
	// Filter delay may hold back a few samples.
	if got < 15000 || got > 16100 {
		t.Fatalf("got %d samples, want about 16000", got)
	}
}

func TestResampleInvalidRate(t *testing.T) {
	if _, err := Resample(nil, Format{}, Mono16K); err == nil {
		t.Fatal("Resample with zero rate succeeded")
	}
}
