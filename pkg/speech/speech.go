// Package speech synthesizes spoken audio from text.
//
// Output formats are named the way clients request them, for example
// "riff-16khz-16bit-mono-pcm". Names map to an explicit table (see
// [LookupFormat]); an unknown name is an error, never a silent fallback.
package speech

import (
	"context"
	"errors"
)

// Defaults for requests that leave fields empty.
const (
	DefaultVoice  = "ru-RU-DmitryNeural"
	DefaultFormat = "riff-16khz-16bit-mono-pcm"
)

// ErrUnknownFormat is returned for an output format name not in the table.
var ErrUnknownFormat = errors.New("speech: unknown output format")

// ErrUnsupportedFormat is returned by a synthesizer that cannot produce a
// known format.
var ErrUnsupportedFormat = errors.New("speech: output format not supported by synthesizer")

// Request is a synthesis request.
type Request struct {
	Text   string `json:"text" yaml:"text"`
	Voice  string `json:"voiceName,omitempty" yaml:"voiceName,omitempty"`
	Format string `json:"format,omitempty" yaml:"format,omitempty"`
	// Deployment selects a custom voice deployment, if the engine has one.
	Deployment string `json:"deploymentId,omitempty" yaml:"deploymentId,omitempty"`
}

// Audio is synthesized audio in the requested format.
type Audio struct {
	Data   []byte
	Format Format
}

// Synthesizer converts text to audio.
type Synthesizer interface {
	Synthesize(ctx context.Context, req Request) (*Audio, error)
}

// SynthesizeFunc adapts a function to the Synthesizer interface.
type SynthesizeFunc func(ctx context.Context, req Request) (*Audio, error)

func (f SynthesizeFunc) Synthesize(ctx context.Context, req Request) (*Audio, error) {
	return f(ctx, req)
}

// Normalize fills empty voice and format fields with the defaults.
func (r Request) Normalize() Request {
	if r.Voice == "" {
		r.Voice = DefaultVoice
	}
	if r.Format == "" {
		r.Format = DefaultFormat
	}
	return r
}
