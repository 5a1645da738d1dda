package wakeword

import "math"

// Energy fires when the RMS level of Frames consecutive frames stays above
// Threshold. It needs no model and is used when no Porcupine access key is
// configured: any sustained speech acts as the wake word.
type Energy struct {
	Threshold float64
	Frames    int
	Length    int
	Rate      int

	run int
}

// NewEnergy returns an Energy detector with frameLen-sample frames at
// sampleRate, firing after n loud frames in a row.
func NewEnergy(threshold float64, n, frameLen, sampleRate int) *Energy {
	if n < 1 {
		n = 1
	}
	return &Energy{Threshold: threshold, Frames: n, Length: frameLen, Rate: sampleRate}
}

func (e *Energy) Process(frame []int16) (int, error) {
	if RMS(frame) < e.Threshold {
		e.run = 0
		return None, nil
	}
	e.run++
	if e.run < e.Frames {
		return None, nil
	}
	e.run = 0
	return 0, nil
}

func (e *Energy) FrameLength() int { return e.Length }
func (e *Energy) SampleRate() int  { return e.Rate }
func (e *Energy) Close() error     { return nil }

// RMS returns the root mean square of samples on the int16 scale.
func RMS(samples []int16) float64 {
	if len(samples) == 0 {
		return 0
	}
	var sum float64
	for _, s := range samples {
		v := float64(s)
		sum += v * v
	}
	return math.Sqrt(sum / float64(len(samples)))
}
