package portaudio

import (
	"context"
	"errors"
	"log/slog"
	"sync"
)

// Capture reads mono 16-bit blocks from the default input device.
type Capture struct {
	s      *stream
	done   chan struct{}
	stopMu sync.Once
	err    error
}

// StartCapture opens the default input device at sampleRate and calls cb
// with every block of exactly frameLen samples until Stop is called.
//
// cb runs on the capture goroutine. The slice passed to cb is owned by the
// callee.
func StartCapture(sampleRate, frameLen int, cb func([]int16)) (*Capture, error) {
	if frameLen <= 0 {
		return nil, errors.New("portaudio: frame length must be positive")
	}
	s, err := openStream(true, sampleRate, frameLen)
	if err != nil {
		return nil, err
	}
	c := &Capture{s: s, done: make(chan struct{})}
	go c.loop(frameLen, cb)
	return c, nil
}

func (c *Capture) loop(frameLen int, cb func([]int16)) {
	defer close(c.done)
	for {
		block := make([]int16, frameLen)
		if err := c.s.read(block); err != nil {
			if !errors.Is(err, errStreamClosed) {
				slog.Warn("portaudio: capture read failed", "error", err)
				c.err = err
			}
			return
		}
		cb(block)
	}
}

// Stop closes the device and waits for the capture goroutine to exit.
// It is idempotent.
func (c *Capture) Stop() error {
	var err error
	c.stopMu.Do(func() {
		err = c.s.close()
		<-c.done
	})
	return err
}

// Err returns the read error that ended capture, if any.
func (c *Capture) Err() error {
	<-c.done
	return c.err
}

// Play writes samples to the default output device at sampleRate and blocks
// until they are played or ctx is canceled.
func Play(ctx context.Context, samples []int16, sampleRate int) error {
	const block = 1024
	s, err := openStream(false, sampleRate, block)
	if err != nil {
		return err
	}
	defer s.close()
	for off := 0; off < len(samples); off += block {
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := s.write(samples[off:min(off+block, len(samples))]); err != nil {
			return err
		}
	}
	return nil
}
