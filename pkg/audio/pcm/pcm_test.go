package pcm

import (
	"bytes"
	"errors"
	"slices"
	"testing"
	"time"
)

func TestFormat(t *testing.T) {
	tests := []struct {
		f     Format
		rate  int
		bytes int64 // bytes in 20ms
	}{
		{L16Mono16K, 16000, 640},
		{L16Mono24K, 24000, 960},
		{L16Mono48K, 48000, 1920},
	}
	for _, tt := range tests {
		t.Run(tt.f.String(), func(t *testing.T) {
			if got := tt.f.SampleRate(); got != tt.rate {
				t.Errorf("SampleRate = %d; want %d", got, tt.rate)
			}
			if got := tt.f.BytesInDuration(20 * time.Millisecond); got != tt.bytes {
				t.Errorf("BytesInDuration(20ms) = %d; want %d", got, tt.bytes)
			}
			if got := tt.f.Duration(tt.bytes); got != 20*time.Millisecond {
				t.Errorf("Duration(%d) = %v; want 20ms", tt.bytes, got)
			}
			f, err := FormatForRate(tt.rate)
			if err != nil || f != tt.f {
				t.Errorf("FormatForRate(%d) = %v, %v; want %v", tt.rate, f, err, tt.f)
			}
		})
	}
	if _, err := FormatForRate(8000); err == nil {
		t.Error("FormatForRate(8000) succeeded; want error")
	}
	if got := L16Mono16K.FrameBytes(512); got != 1024 {
		t.Errorf("FrameBytes(512) = %d; want 1024", got)
	}
}

func TestSampleConversion(t *testing.T) {
	in := []int16{0, 1, -1, 32767, -32768, 1234}
	if got := Int16s(Bytes(in)); !slices.Equal(got, in) {
		t.Fatalf("Int16s(Bytes(x)) = %v; want %v", got, in)
	}
	if got := Bytes([]int16{0x0102}); !bytes.Equal(got, []byte{0x02, 0x01}) {
		t.Fatalf("Bytes = %v; want little-endian", got)
	}
}

func TestNormalize(t *testing.T) {
	t.Run("peak 10000 is raised to 30000", func(t *testing.T) {
		in := Bytes([]int16{10000, -5000, 0, 2500})
		out := Normalize(in)
		got := Int16s(out)
		want := []int16{30000, -15000, 0, 7500}
		if !slices.Equal(got, want) {
			t.Fatalf("Normalize = %v; want %v", got, want)
		}
		if Peak(out) != 30000 {
			t.Fatalf("Peak = %d; want 30000", Peak(out))
		}
	})

	t.Run("gain is capped at 3", func(t *testing.T) {
		got := Int16s(Normalize(Bytes([]int16{100, -200})))
		want := []int16{300, -600}
		if !slices.Equal(got, want) {
			t.Fatalf("Normalize = %v; want %v", got, want)
		}
	})

	t.Run("loud audio is unchanged", func(t *testing.T) {
		for _, peak := range []int16{30000, 31000, 32767, -32768} {
			in := Bytes([]int16{peak, 5, -7})
			out := Normalize(in)
			if !bytes.Equal(out, in) {
				t.Fatalf("peak %d: Normalize changed the frame", peak)
			}
		}
	})

	t.Run("silence is unchanged", func(t *testing.T) {
		in := make([]byte, 64)
		if out := Normalize(in); !bytes.Equal(out, in) {
			t.Fatal("Normalize changed a silent frame")
		}
	})

	t.Run("samples are clipped", func(t *testing.T) {
		if got := clip16(40000); got != 32767 {
			t.Errorf("clip16(40000) = %d", got)
		}
		if got := clip16(-40000); got != -32768 {
			t.Errorf("clip16(-40000) = %d", got)
		}
		out := Int16s(Normalize(Bytes([]int16{12000, -12000})))
		if want := []int16{30000, -30000}; !slices.Equal(out, want) {
			t.Fatalf("Normalize = %v; want %v", out, want)
		}
	})

	t.Run("odd trailing byte is kept", func(t *testing.T) {
		in := append(Bytes([]int16{1000}), 0x7f)
		out := Normalize(in)
		if len(out) != len(in) || out[len(out)-1] != 0x7f {
			t.Fatalf("Normalize = %v; trailing byte lost", out)
		}
	})

	t.Run("input is not modified", func(t *testing.T) {
		in := Bytes([]int16{1000})
		orig := bytes.Clone(in)
		Normalize(in)
		if !bytes.Equal(in, orig) {
			t.Fatal("Normalize modified its input")
		}
	})
}

func TestFramer(t *testing.T) {
	f := NewFramer(4) // 8 bytes per frame
	stream := make([]byte, 30)
	for i := range stream {
		stream[i] = byte(i)
	}

	var frames [][]byte
	for _, chunk := range [][]byte{stream[:3], stream[3:11], stream[11:12], stream[12:30]} {
		frames = append(frames, f.Feed(chunk)...)
	}

	if len(frames) != 3 {
		t.Fatalf("got %d frames; want 3", len(frames))
	}
	for i, fr := range frames {
		if !bytes.Equal(fr, stream[i*8:(i+1)*8]) {
			t.Errorf("frame %d = %v; want %v", i, fr, stream[i*8:(i+1)*8])
		}
	}
	if got := f.Pending(); got != 6 {
		t.Fatalf("Pending = %d; want 6", got)
	}

	// Completing the pending frame yields it first.
	next := f.Feed([]byte{30, 31})
	if len(next) != 1 || !bytes.Equal(next[0], []byte{24, 25, 26, 27, 28, 29, 30, 31}) {
		t.Fatalf("Feed = %v", next)
	}

	f.Feed([]byte{1, 2, 3})
	f.Reset()
	if f.Pending() != 0 {
		t.Fatalf("Pending after Reset = %d", f.Pending())
	}
}

func TestFramerFramesDoNotAlias(t *testing.T) {
	f := NewFramer(1)
	chunk := []byte{1, 2, 3, 4}
	frames := f.Feed(chunk)
	chunk[0] = 99
	frames[1][0] = 77
	if frames[0][0] != 1 {
		t.Fatalf("frame aliases input chunk")
	}
	more := f.Feed([]byte{5, 6})
	if more[0][0] != 5 {
		t.Fatalf("frame aliases previous frame")
	}
}

func TestWAVRoundTrip(t *testing.T) {
	data := Bytes([]int16{1, 2, 3, -4})
	encoded := L16Mono16K.EncodeWAV(data)
	if len(encoded) != 44+len(data) {
		t.Fatalf("len = %d; want %d", len(encoded), 44+len(data))
	}
	w, err := DecodeWAV(encoded)
	if err != nil {
		t.Fatalf("DecodeWAV: %v", err)
	}
	if w.SampleRate != 16000 || w.Channels != 1 || w.BitsPerSample != 16 {
		t.Fatalf("header = %+v", w)
	}
	if !bytes.Equal(w.Data, data) {
		t.Fatalf("Data = %v; want %v", w.Data, data)
	}
}

func TestDecodeWAVSkipsUnknownChunks(t *testing.T) {
	data := Bytes([]int16{7, 8})
	enc := EncodeWAV(data, 44100, 2)
	// Insert a LIST chunk with an odd size between fmt and data.
	list := []byte{'L', 'I', 'S', 'T', 3, 0, 0, 0, 'a', 'b', 'c', 0}
	withList := append(append(bytes.Clone(enc[:36]), list...), enc[36:]...)

	w, err := DecodeWAV(withList)
	if err != nil {
		t.Fatalf("DecodeWAV: %v", err)
	}
	if w.SampleRate != 44100 || w.Channels != 2 {
		t.Fatalf("header = %+v", w)
	}
	if !bytes.Equal(w.Data, data) {
		t.Fatalf("Data = %v", w.Data)
	}
}

func TestDecodeWAVErrors(t *testing.T) {
	if _, err := DecodeWAV([]byte("not a wav file")); !errors.Is(err, ErrNotWAV) {
		t.Errorf("DecodeWAV(garbage) = %v; want ErrNotWAV", err)
	}
	enc := EncodeWAV(nil, 16000, 1)
	enc[34] = 8 // 8-bit
	if _, err := DecodeWAV(enc); err == nil {
		t.Error("DecodeWAV(8-bit) succeeded; want error")
	}
}
