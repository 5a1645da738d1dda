package wakeword

import (
	"errors"
	"fmt"

	porcupine "github.com/Picovoice/porcupine/binding/go/v3"
)

// PorcupineConfig configures a Picovoice Porcupine detector.
type PorcupineConfig struct {
	AccessKey string
	// KeywordPaths are custom .ppn model files.
	KeywordPaths []string
	// BuiltIn names built-in keywords such as "porcupine" or "jarvis".
	BuiltIn []string
	// Sensitivity applies to every keyword; zero means 0.5.
	Sensitivity float32
}

// Porcupine is a Detector backed by the Porcupine engine.
type Porcupine struct {
	p porcupine.Porcupine
}

// NewPorcupine initializes a Porcupine detector.
func NewPorcupine(cfg PorcupineConfig) (*Porcupine, error) {
	if cfg.AccessKey == "" {
		return nil, errors.New("wakeword: porcupine access key is required")
	}
	n := len(cfg.KeywordPaths) + len(cfg.BuiltIn)
	if n == 0 {
		return nil, errors.New("wakeword: no keywords configured")
	}
	sens := cfg.Sensitivity
	if sens == 0 {
		sens = 0.5
	}
	p := porcupine.Porcupine{
		AccessKey:    cfg.AccessKey,
		KeywordPaths: cfg.KeywordPaths,
	}
	for _, kw := range cfg.BuiltIn {
		p.BuiltInKeywords = append(p.BuiltInKeywords, porcupine.BuiltInKeyword(kw))
	}
	for range n {
		p.Sensitivities = append(p.Sensitivities, sens)
	}
	if err := p.Init(); err != nil {
		return nil, fmt.Errorf("wakeword: init porcupine: %w", err)
	}
	return &Porcupine{p: p}, nil
}

// Process returns the index of the keyword heard in frame, or None.
// Built-in keywords are numbered after keyword paths.
func (d *Porcupine) Process(frame []int16) (int, error) {
	idx, err := d.p.Process(frame)
	if err != nil {
		return None, err
	}
	if idx < 0 {
		return None, nil
	}
	return idx, nil
}

func (d *Porcupine) FrameLength() int { return porcupine.FrameLength }
func (d *Porcupine) SampleRate() int  { return porcupine.SampleRate }

func (d *Porcupine) Close() error {
	return d.p.Delete()
}
