package recognizer

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
)

// Fake is an in-process Engine for tests and the server's echo mode.
//
// Every written chunk produces a partial result reporting how many bytes the
// current utterance holds. After FinalAfter chunks the utterance is
// finalized. Closing the audio produces an end-of-stream cancellation.
type Fake struct {
	// FinalAfter is the number of chunks per utterance; zero never
	// finalizes.
	FinalAfter int
	// OpenErr, when set, is returned by Open.
	OpenErr error
	// Once overrides RecognizeOnce.
	Once func(pcm []byte, cfg Config) (Result, error)

	mu       sync.Mutex
	sessions []*FakeSession
}

// Sessions returns every session opened so far.
func (f *Fake) Sessions() []*FakeSession {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]*FakeSession(nil), f.sessions...)
}

// Open starts a fake session.
func (f *Fake) Open(ctx context.Context, cfg Config) (Session, error) {
	if f.OpenErr != nil {
		return nil, f.OpenErr
	}
	s := &FakeSession{
		Config:     cfg.WithDefaults(),
		finalAfter: f.FinalAfter,
		events:     NewEvents(64),
		in:         make(chan fakeInput, 64),
		done:       make(chan struct{}),
		closed:     make(chan struct{}),
	}
	f.mu.Lock()
	f.sessions = append(f.sessions, s)
	f.mu.Unlock()
	go s.run()
	return s, nil
}

// RecognizeOnce reports the number of samples in pcm, or calls f.Once.
func (f *Fake) RecognizeOnce(ctx context.Context, pcm []byte, cfg Config) (Result, error) {
	if f.Once != nil {
		return f.Once(pcm, cfg)
	}
	if len(pcm) == 0 {
		return Result{}, ErrNoMatch
	}
	text := fmt.Sprintf("%d samples", len(pcm)/2)
	raw, _ := json.Marshal(map[string]any{"DisplayText": text, "Language": cfg.Language})
	return Result{Text: text, Raw: raw}, nil
}

type fakeInput struct {
	pcm []byte
	eos bool
	err *Canceled
}

// FakeSession is a session opened by Fake.
type FakeSession struct {
	Config Config

	finalAfter int
	events     *Events
	in         chan fakeInput
	done       chan struct{}

	mu      sync.Mutex
	audio   []byte
	chunks  int
	eos     bool
	stopped bool
	closed  chan struct{}
}

func (s *FakeSession) Events() *Events { return s.events }

func (s *FakeSession) Write(pcm []byte) error {
	s.mu.Lock()
	if s.eos || s.stopped {
		s.mu.Unlock()
		return ErrAudioClosed
	}
	s.audio = append(s.audio, pcm...)
	s.chunks++
	s.mu.Unlock()
	return s.push(fakeInput{pcm: pcm})
}

func (s *FakeSession) CloseAudio() error {
	s.mu.Lock()
	if s.eos || s.stopped {
		s.mu.Unlock()
		return nil
	}
	s.eos = true
	s.mu.Unlock()
	return s.push(fakeInput{eos: true})
}

// Fail makes the engine report an error cancellation.
func (s *FakeSession) Fail(code int, detail string) {
	s.push(fakeInput{err: &Canceled{Reason: CancelError, Code: code, Detail: detail}})
}

func (s *FakeSession) push(in fakeInput) error {
	select {
	case s.in <- in:
		return nil
	case <-s.closed:
		return ErrAudioClosed
	}
}

func (s *FakeSession) Stop(ctx context.Context) error {
	s.mu.Lock()
	if !s.stopped {
		s.stopped = true
		close(s.closed)
		s.events.Shutdown()
	}
	s.mu.Unlock()
	select {
	case <-s.done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Audio returns a copy of everything written so far.
func (s *FakeSession) Audio() []byte {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]byte(nil), s.audio...)
}

// Chunks returns the number of Write calls accepted.
func (s *FakeSession) Chunks() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.chunks
}

// Stopped reports whether Stop was called.
func (s *FakeSession) Stopped() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.stopped
}

func (s *FakeSession) run() {
	defer close(s.done)
	ev := s.events
	if !ev.EmitSessionStarted() {
		return
	}
	var n, size int
	for {
		var in fakeInput
		select {
		case in = <-s.in:
		case <-s.closed:
			return
		}
		switch {
		case in.err != nil:
			ev.EmitCanceled(*in.err)
		case in.eos:
			if ev.EmitCanceled(Canceled{Reason: EndOfStream}) {
				ev.EmitSessionStopped()
			}
		default:
			n++
			size += len(in.pcm)
			ev.EmitRecognizing(Result{Text: fmt.Sprintf("%d bytes", size)})
			if s.finalAfter > 0 && n == s.finalAfter {
				text := fmt.Sprintf("%d chunks", n)
				raw, _ := json.Marshal(map[string]any{"DisplayText": text, "Bytes": size})
				ev.EmitRecognized(Result{Text: text, Raw: raw})
				n, size = 0, 0
			}
		}
	}
}
