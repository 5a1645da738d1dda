package recognizer

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"

	"github.com/haivivi/voicegate/pkg/doubaospeech"
)

// Doubao is an Engine backed by the Doubao streaming recognizer.
type Doubao struct {
	Client *doubaospeech.Client
	// Punctuation enables punctuation and inverse text normalization.
	Punctuation bool
}

// NewDoubao returns a Doubao engine using c.
func NewDoubao(c *doubaospeech.Client) *Doubao {
	return &Doubao{Client: c, Punctuation: true}
}

func (d *Doubao) streamConfig(cfg Config) *doubaospeech.StreamConfig {
	return &doubaospeech.StreamConfig{
		Format:      "pcm",
		SampleRate:  cfg.SampleRate,
		Channels:    cfg.Channels,
		Bits:        cfg.BitsPerSample,
		Language:    cfg.Language,
		EnablePunc:  d.Punctuation,
		EnableITN:   d.Punctuation,
		Hotwords:    cfg.Phrases,
		EndWindowMS: int(cfg.EndSilence.Milliseconds()),
		ResourceID:  cfg.Profile,
	}
}

// Open starts a streaming session. The service reports utterances with
// timestamps; word timings are always present, so cfg.WordTimestamps needs
// no request option. The service has no initial-silence limit and
// cfg.InitialSilence is not enforced.
func (d *Doubao) Open(ctx context.Context, cfg Config) (Session, error) {
	cfg = cfg.WithDefaults()
	stream, err := d.Client.OpenStream(ctx, d.streamConfig(cfg))
	if err != nil {
		return nil, fmt.Errorf("recognizer: open doubao stream: %w", err)
	}
	s := &doubaoSession{
		stream: stream,
		events: NewEvents(64),
		done:   make(chan struct{}),
	}
	go s.run()
	return s, nil
}

type doubaoSession struct {
	stream *doubaospeech.Stream
	events *Events
	done   chan struct{}

	audioOnce sync.Once
	stopOnce  sync.Once
}

func (s *doubaoSession) Events() *Events { return s.events }

func (s *doubaoSession) Write(pcm []byte) error {
	if err := s.stream.Send(pcm, false); err != nil {
		if errors.Is(err, doubaospeech.ErrStreamFinished) {
			return ErrAudioClosed
		}
		return err
	}
	return nil
}

func (s *doubaoSession) CloseAudio() error {
	var err error
	s.audioOnce.Do(func() {
		err = s.stream.Send(nil, true)
	})
	return err
}

func (s *doubaoSession) Stop(ctx context.Context) error {
	s.stopOnce.Do(func() {
		s.stream.Close()
		s.events.Shutdown()
	})
	select {
	case <-s.done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// run turns stream results into session events. Definite utterances become
// final results; the rest of the text is reported as a partial.
func (s *doubaoSession) run() {
	defer close(s.done)
	ev := s.events
	ev.EmitSessionStarted()
	defer ev.EmitSessionStopped()

	lastEnd := -1
	var partial string
	for r, err := range s.stream.Recv() {
		if err != nil {
			c := Canceled{Reason: CancelError, Detail: err.Error()}
			if e, ok := doubaospeech.AsError(err); ok {
				c.Code, c.Detail = e.Code, e.Message
			}
			slog.Warn("recognizer: doubao stream failed", "error", err)
			ev.EmitCanceled(c)
			return
		}
		var pending []string
		for _, u := range r.Utterances {
			switch {
			case u.Definite && u.EndTime > lastEnd:
				lastEnd = u.EndTime
				partial = ""
				if !ev.EmitRecognized(Result{Text: u.Text, Raw: r.Raw}) {
					return
				}
			case !u.Definite && u.Text != "":
				pending = append(pending, u.Text)
			}
		}
		if len(r.Utterances) == 0 && r.Text != "" {
			pending = append(pending, r.Text)
		}
		if p := strings.Join(pending, " "); p != "" && p != partial {
			partial = p
			if !ev.EmitRecognizing(Result{Text: p}) {
				return
			}
		}
		if r.Last {
			ev.EmitCanceled(Canceled{Reason: EndOfStream})
			return
		}
	}
}

// RecognizeOnce streams pcm and returns the first final utterance.
func (d *Doubao) RecognizeOnce(ctx context.Context, pcm []byte, cfg Config) (Result, error) {
	cfg = cfg.WithDefaults()
	stream, err := d.Client.OpenStream(ctx, d.streamConfig(cfg))
	if err != nil {
		return Result{}, fmt.Errorf("recognizer: open doubao stream: %w", err)
	}
	defer stream.Close()

	go func() {
		// 100ms chunks
		chunk := cfg.SampleRate * cfg.Channels * cfg.BitsPerSample / 8 / 10
		for off := 0; off < len(pcm); off += chunk {
			if stream.Send(pcm[off:min(off+chunk, len(pcm))], false) != nil {
				return
			}
		}
		stream.Send(nil, true)
	}()

	var last Result
	for r, err := range stream.Recv() {
		if err != nil {
			return Result{}, fmt.Errorf("recognizer: doubao recognize: %w", err)
		}
		for _, u := range r.Utterances {
			if u.Definite && u.Text != "" {
				return Result{Text: u.Text, Raw: r.Raw}, nil
			}
		}
		if r.Last && r.Text != "" {
			last = Result{Text: r.Text, Raw: r.Raw}
		}
	}
	if last.Text == "" {
		return Result{}, ErrNoMatch
	}
	return last, nil
}
