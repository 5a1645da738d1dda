// Package recognizer defines the streaming speech recognition engine used by
// the server, and the events an engine session fires.
//
// A [Session] accepts pushed PCM audio and reports results on five
// independent channels (see [Events]). Engines send on those channels from
// their own goroutines; consumers drain each channel separately.
package recognizer

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"time"
)

// ErrNoMatch is returned by RecognizeOnce when no speech was recognized.
var ErrNoMatch = errors.New("recognizer: no speech recognized")

// ErrAudioClosed is returned by Session.Write after CloseAudio.
var ErrAudioClosed = errors.New("recognizer: audio stream closed")

// Default session parameters.
const (
	DefaultSampleRate     = 16000
	DefaultBitsPerSample  = 16
	DefaultChannels       = 1
	DefaultEndSilence     = 800 * time.Millisecond
	DefaultInitialSilence = 4000 * time.Millisecond
)

// Config configures one recognition session.
type Config struct {
	Language string `json:"language,omitempty" yaml:"language,omitempty"`
	// Profile selects a custom model or endpoint; empty uses the default.
	Profile string `json:"profile,omitempty" yaml:"profile,omitempty"`

	SampleRate    int `json:"sample_rate,omitempty" yaml:"sample_rate,omitempty"`
	BitsPerSample int `json:"bits_per_sample,omitempty" yaml:"bits_per_sample,omitempty"`
	Channels      int `json:"channels,omitempty" yaml:"channels,omitempty"`

	EndSilence     time.Duration `json:"end_silence,omitempty" yaml:"end_silence,omitempty"`
	InitialSilence time.Duration `json:"initial_silence,omitempty" yaml:"initial_silence,omitempty"`
	WordTimestamps bool          `json:"word_timestamps,omitempty" yaml:"word_timestamps,omitempty"`

	// Phrases biases recognition towards the given phrases.
	Phrases []string `json:"phrases,omitempty" yaml:"phrases,omitempty"`
}

// DefaultConfig returns a 16kHz 16-bit mono configuration with the default
// silence timeouts and word timestamps enabled.
func DefaultConfig() Config {
	return Config{
		SampleRate:     DefaultSampleRate,
		BitsPerSample:  DefaultBitsPerSample,
		Channels:       DefaultChannels,
		EndSilence:     DefaultEndSilence,
		InitialSilence: DefaultInitialSilence,
		WordTimestamps: true,
	}
}

// WithDefaults fills zero fields from DefaultConfig.
func (c Config) WithDefaults() Config {
	d := DefaultConfig()
	if c.SampleRate == 0 {
		c.SampleRate = d.SampleRate
	}
	if c.BitsPerSample == 0 {
		c.BitsPerSample = d.BitsPerSample
	}
	if c.Channels == 0 {
		c.Channels = d.Channels
	}
	if c.EndSilence == 0 {
		c.EndSilence = d.EndSilence
	}
	if c.InitialSilence == 0 {
		c.InitialSilence = d.InitialSilence
	}
	return c
}

// Result is a recognized (or partially recognized) utterance.
type Result struct {
	Text string
	// Raw is the engine's JSON description of the result, if any.
	Raw json.RawMessage
}

// CancelReason tells why a session was canceled.
type CancelReason int

const (
	// EndOfStream means the audio ended normally.
	EndOfStream CancelReason = iota
	// CancelError means the engine failed.
	CancelError
)

func (r CancelReason) String() string {
	switch r {
	case EndOfStream:
		return "EndOfStream"
	case CancelError:
		return "Error"
	default:
		return "Unknown"
	}
}

// Canceled describes a cancellation.
type Canceled struct {
	Reason CancelReason
	Code   int
	Detail string
}

// Events carries the five event classes fired by a session. Each channel is
// written by the engine in emission order.
type Events struct {
	Recognizing    chan Result
	Recognized     chan Result
	Canceled       chan Canceled
	SessionStarted chan struct{}
	SessionStopped chan struct{}

	done     chan struct{}
	doneOnce sync.Once
}

// NewEvents creates Events whose channels buffer up to size events each.
func NewEvents(size int) *Events {
	return &Events{
		Recognizing:    make(chan Result, size),
		Recognized:     make(chan Result, size),
		Canceled:       make(chan Canceled, size),
		SessionStarted: make(chan struct{}, size),
		SessionStopped: make(chan struct{}, size),
		done:           make(chan struct{}),
	}
}

// Done is closed by Shutdown. Once it is closed no more events are
// delivered.
func (e *Events) Done() <-chan struct{} { return e.done }

// Shutdown releases engine goroutines blocked on a full channel. It is
// idempotent.
func (e *Events) Shutdown() {
	e.doneOnce.Do(func() { close(e.done) })
}

func send[T any](e *Events, ch chan T, v T) bool {
	select {
	case <-e.done:
		return false
	default:
	}
	select {
	case ch <- v:
		return true
	case <-e.done:
		return false
	}
}

// EmitRecognizing delivers a partial result. It blocks while the channel is
// full and reports false once the events are shut down.
func (e *Events) EmitRecognizing(r Result) bool { return send(e, e.Recognizing, r) }

// EmitRecognized delivers a final result.
func (e *Events) EmitRecognized(r Result) bool { return send(e, e.Recognized, r) }

// EmitCanceled delivers a cancellation.
func (e *Events) EmitCanceled(c Canceled) bool { return send(e, e.Canceled, c) }

// EmitSessionStarted delivers a session start.
func (e *Events) EmitSessionStarted() bool { return send(e, e.SessionStarted, struct{}{}) }

// EmitSessionStopped delivers a session stop.
func (e *Events) EmitSessionStopped() bool { return send(e, e.SessionStopped, struct{}{}) }

// Session is one continuous recognition session.
type Session interface {
	// Write pushes PCM audio in the session's configured format.
	Write(pcm []byte) error
	// CloseAudio signals the end of the audio stream. It is idempotent.
	CloseAudio() error
	// Events returns the session's event channels.
	Events() *Events
	// Stop ends recognition and releases the session. It is idempotent.
	Stop(ctx context.Context) error
}

// Engine opens recognition sessions.
type Engine interface {
	// Open starts continuous recognition.
	Open(ctx context.Context, cfg Config) (Session, error)
	// RecognizeOnce recognizes the first utterance in pcm.
	RecognizeOnce(ctx context.Context, pcm []byte, cfg Config) (Result, error)
}
