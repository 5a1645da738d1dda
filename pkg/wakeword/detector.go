// Package wakeword detects a spoken keyword in fixed-size PCM frames.
//
// Detectors are fed one frame at a time by the client gate while it is idle.
// Frame length and sample rate are fixed when the detector is created and
// determine the frame size of the whole capture pipeline.
package wakeword

// None is the keyword index reported when nothing was detected.
const None = -1

// Detector is a wake-word engine.
type Detector interface {
	// Process inspects one frame of exactly FrameLength samples and returns
	// the index of the detected keyword, or None.
	Process(frame []int16) (int, error)
	FrameLength() int
	SampleRate() int
	Close() error
}

// Func adapts a function to the Detector interface.
type Func struct {
	Frames int
	Rate   int
	Fn     func(frame []int16) (int, error)
}

func (f Func) Process(frame []int16) (int, error) { return f.Fn(frame) }
func (f Func) FrameLength() int                   { return f.Frames }
func (f Func) SampleRate() int                    { return f.Rate }
func (f Func) Close() error                       { return nil }

// Never returns a detector that never fires, for manual start mode.
func Never(frameLen, sampleRate int) Detector {
	return Func{
		Frames: frameLen,
		Rate:   sampleRate,
		Fn:     func([]int16) (int, error) { return None, nil },
	}
}
