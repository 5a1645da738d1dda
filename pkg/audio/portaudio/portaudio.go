// Package portaudio captures microphone audio and plays back PCM through the
// PortAudio C library.
//
// Capture hands every block the device produces to a callback on a dedicated
// goroutine; the callback is expected to do a non-blocking enqueue and return.
//
// Building requires portaudio to be installed and visible to pkg-config
// (brew install portaudio, apt install portaudio19-dev).
package portaudio

/*
#cgo pkg-config: portaudio-2.0

#include <portaudio.h>
#include <stdlib.h>
#include <string.h>

// Wrapper functions using void* to avoid CGO type issues with PaStream
static PaError pa_open_stream(void **stream,
                              const PaStreamParameters *inputParams,
                              const PaStreamParameters *outputParams,
                              double sampleRate,
                              unsigned long framesPerBuffer,
                              PaStreamFlags streamFlags) {
    return Pa_OpenStream((PaStream**)stream, inputParams, outputParams, sampleRate,
                         framesPerBuffer, streamFlags, NULL, NULL);
}

static PaError pa_start_stream(void *stream) {
    return Pa_StartStream((PaStream*)stream);
}

static PaError pa_abort_stream(void *stream) {
    return Pa_AbortStream((PaStream*)stream);
}

static PaError pa_close_stream(void *stream) {
    return Pa_CloseStream((PaStream*)stream);
}

static PaError pa_read_stream(void *stream, void *buffer, unsigned long frames) {
    return Pa_ReadStream((PaStream*)stream, buffer, frames);
}

static PaError pa_write_stream(void *stream, const void *buffer, unsigned long frames) {
    return Pa_WriteStream((PaStream*)stream, buffer, frames);
}
*/
import "C"

import (
	"errors"
	"sync"
	"unsafe"
)

var (
	initOnce sync.Once
	initErr  error
)

// ErrNoDevice is returned when the host has no default device of the
// requested direction.
var ErrNoDevice = errors.New("portaudio: no default device")

func paError(code C.PaError) error {
	if code == C.paNoError {
		return nil
	}
	return errors.New("portaudio: " + C.GoString(C.Pa_GetErrorText(code)))
}

// Initialize initializes the PortAudio library.
// It is safe to call multiple times.
func Initialize() error {
	initOnce.Do(func() {
		initErr = paError(C.Pa_Initialize())
	})
	return initErr
}

// Terminate releases the PortAudio library.
func Terminate() error {
	return paError(C.Pa_Terminate())
}

// Device describes one host audio device.
type Device struct {
	Index             int     `json:"index"`
	Name              string  `json:"name"`
	MaxInputChannels  int     `json:"max_input_channels"`
	MaxOutputChannels int     `json:"max_output_channels"`
	DefaultSampleRate float64 `json:"default_sample_rate"`
	IsDefaultInput    bool    `json:"is_default_input,omitempty"`
	IsDefaultOutput   bool    `json:"is_default_output,omitempty"`
}

// Devices lists the host audio devices. Initialize must have been called.
func Devices() ([]Device, error) {
	count := int(C.Pa_GetDeviceCount())
	if count < 0 {
		return nil, paError(C.PaError(count))
	}
	defIn := int(C.Pa_GetDefaultInputDevice())
	defOut := int(C.Pa_GetDefaultOutputDevice())

	devices := make([]Device, 0, count)
	for i := range count {
		info := C.Pa_GetDeviceInfo(C.PaDeviceIndex(i))
		if info == nil {
			continue
		}
		devices = append(devices, Device{
			Index:             i,
			Name:              C.GoString(info.name),
			MaxInputChannels:  int(info.maxInputChannels),
			MaxOutputChannels: int(info.maxOutputChannels),
			DefaultSampleRate: float64(info.defaultSampleRate),
			IsDefaultInput:    i == defIn,
			IsDefaultOutput:   i == defOut,
		})
	}
	return devices, nil
}

// stream is a blocking-I/O PortAudio stream of mono int16 samples.
type stream struct {
	mu     sync.Mutex
	pa     unsafe.Pointer
	buf    unsafe.Pointer
	frames int
	closed bool
}

func defaultParams(input bool) (*C.PaStreamParameters, error) {
	var dev C.PaDeviceIndex
	if input {
		dev = C.Pa_GetDefaultInputDevice()
	} else {
		dev = C.Pa_GetDefaultOutputDevice()
	}
	if dev == C.paNoDevice {
		return nil, ErrNoDevice
	}
	info := C.Pa_GetDeviceInfo(dev)
	latency := info.defaultLowOutputLatency
	if input {
		latency = info.defaultLowInputLatency
	}
	return &C.PaStreamParameters{
		device:                    dev,
		channelCount:              1,
		sampleFormat:              C.paInt16,
		suggestedLatency:          latency,
		hostApiSpecificStreamInfo: nil,
	}, nil
}

// openStream opens and starts a mono stream on the default input or output
// device.
func openStream(input bool, sampleRate, frames int) (*stream, error) {
	if err := Initialize(); err != nil {
		return nil, err
	}
	params, err := defaultParams(input)
	if err != nil {
		return nil, err
	}
	var in, out *C.PaStreamParameters
	if input {
		in = params
	} else {
		out = params
	}

	var pa unsafe.Pointer
	if err := paError(C.pa_open_stream(&pa, in, out, C.double(sampleRate), C.ulong(frames), C.paClipOff)); err != nil {
		return nil, err
	}
	if err := paError(C.pa_start_stream(pa)); err != nil {
		C.pa_close_stream(pa)
		return nil, err
	}
	return &stream{
		pa:     pa,
		buf:    C.malloc(C.size_t(frames * 2)),
		frames: frames,
	}, nil
}

// read blocks until one block of frames samples is available and copies it
// into dst, which must hold at least frames samples.
func (s *stream) read(dst []int16) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return errStreamClosed
	}
	if err := paError(C.pa_read_stream(s.pa, s.buf, C.ulong(s.frames))); err != nil {
		return err
	}
	C.memcpy(unsafe.Pointer(&dst[0]), s.buf, C.size_t(s.frames*2))
	return nil
}

// write plays up to frames samples from src.
func (s *stream) write(src []int16) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return errStreamClosed
	}
	n := min(len(src), s.frames)
	C.memset(s.buf, 0, C.size_t(s.frames*2))
	if n > 0 {
		C.memcpy(s.buf, unsafe.Pointer(&src[0]), C.size_t(n*2))
	}
	return paError(C.pa_write_stream(s.pa, s.buf, C.ulong(s.frames)))
}

// close aborts and closes the stream. It is idempotent.
func (s *stream) close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}
	s.closed = true
	C.pa_abort_stream(s.pa)
	err := paError(C.pa_close_stream(s.pa))
	C.free(s.buf)
	return err
}

var errStreamClosed = errors.New("portaudio: stream closed")
