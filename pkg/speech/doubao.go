package speech

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/googleapis/gax-go/v2"

	"github.com/haivivi/voicegate/pkg/audio/pcm"
	"github.com/haivivi/voicegate/pkg/doubaospeech"
)

// Doubao synthesizes with the Doubao classic TTS API. RIFF formats are
// produced by wrapping PCM in a WAV header.
type Doubao struct {
	Client *doubaospeech.Client
	// Voice replaces the request voice when the request uses DefaultVoice,
	// which the Doubao service does not know.
	Voice string
	// Attempts bounds the number of tries for retryable errors; zero means 3.
	Attempts int
	// Backoff paces retries.
	Backoff gax.Backoff
}

// NewDoubao returns a synthesizer using c with voice as the default voice.
func NewDoubao(c *doubaospeech.Client, voice string) *Doubao {
	return &Doubao{
		Client:   c,
		Voice:    voice,
		Attempts: 3,
		Backoff: gax.Backoff{
			Initial:    200 * time.Millisecond,
			Max:        2 * time.Second,
			Multiplier: 2,
		},
	}
}

func (d *Doubao) Synthesize(ctx context.Context, req Request) (*Audio, error) {
	req = req.Normalize()
	f, err := LookupFormat(req.Format)
	if err != nil {
		return nil, err
	}
	voice := req.Voice
	if voice == DefaultVoice && d.Voice != "" {
		voice = d.Voice
	}
	treq := &doubaospeech.TTSRequest{
		Text:       req.Text,
		VoiceType:  voice,
		Cluster:    req.Deployment,
		Encoding:   f.Codec,
		SampleRate: f.SampleRate,
	}

	attempts := d.Attempts
	if attempts <= 0 {
		attempts = 3
	}
	bo := d.Backoff
	var resp *doubaospeech.TTSResponse
	for i := 1; ; i++ {
		resp, err = d.Client.Synthesize(ctx, treq)
		if err == nil {
			break
		}
		e, ok := doubaospeech.AsError(err)
		if !ok || !e.Retryable() || i >= attempts {
			return nil, fmt.Errorf("speech: doubao synthesize: %w", err)
		}
		pause := bo.Pause()
		slog.Warn("speech: retrying synthesis", "attempt", i, "pause", pause, "error", err)
		if err := gax.Sleep(ctx, pause); err != nil {
			return nil, err
		}
	}

	data := resp.Audio
	if f.Container == ContainerRIFF {
		data = pcm.EncodeWAV(data, f.SampleRate, 1)
	}
	return &Audio{Data: data, Format: f}, nil
}
