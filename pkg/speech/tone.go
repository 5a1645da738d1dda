package speech

import (
	"context"
	"math"
	"unicode/utf8"

	"github.com/haivivi/voicegate/pkg/audio/pcm"
)

// Tone is an offline synthesizer that renders one short beep per word. It
// produces PCM formats only and backs the server's echo mode.
type Tone struct {
	// Hz is the beep frequency; zero means 440.
	Hz float64
}

func (t Tone) Synthesize(ctx context.Context, req Request) (*Audio, error) {
	req = req.Normalize()
	f, err := LookupFormat(req.Format)
	if err != nil {
		return nil, err
	}
	if !f.PCM() {
		return nil, ErrUnsupportedFormat
	}
	hz := t.Hz
	if hz == 0 {
		hz = 440
	}

	beep := f.SampleRate / 8 // 125ms
	gap := f.SampleRate / 16
	var samples []int16
	inWord := false
	for _, r := range req.Text {
		if r == ' ' || r == '\t' || r == '\n' || r == utf8.RuneError {
			inWord = false
			continue
		}
		if inWord {
			continue
		}
		inWord = true
		for i := range beep {
			v := 8000 * math.Sin(2*math.Pi*hz*float64(i)/float64(f.SampleRate))
			samples = append(samples, int16(v))
		}
		samples = append(samples, make([]int16, gap)...)
	}

	data := pcm.Bytes(samples)
	if f.Container == ContainerRIFF {
		data = pcm.EncodeWAV(data, f.SampleRate, 1)
	}
	return &Audio{Data: data, Format: f}, nil
}
