// Package client is the capture side of the streaming recognizer.
//
// Audio from the device is queued into a [Gate], which runs the wake-word
// detector while idle and forwards frames to a [Sender] while recording. A
// [Listener] reads the server's messages, renders them on a [Display] and
// tells the gate when an utterance has been finalized. All three run on
// their own goroutines and talk only through bounded queues.
package client

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/haivivi/voicegate/pkg/audio/pcm"
	"github.com/haivivi/voicegate/pkg/protocol"
	"github.com/haivivi/voicegate/pkg/wakeword"
)

// DefaultQueueSize bounds the capture and send queues.
const DefaultQueueSize = 20

// ErrUnauthorized is returned by Dial when the server rejects the API key.
var ErrUnauthorized = errors.New("client: unauthorized")

const (
	handshakeTimeout = 10 * time.Second
	shutdownTimeout  = 3 * time.Second
)

// Config configures a streaming session.
type Config struct {
	// URL is the websocket endpoint, e.g. ws://host:8000/v1/speech/stt/stream.
	URL       string
	APIKey    string
	Language  string
	Normalize bool

	Detector wakeword.Detector
	// Manual enables the start key; with a wake-word detector recording
	// starts on detection alone.
	Manual bool

	CaptureQueue int
	SendQueue    int

	Output io.Writer
	// Keys is read for key commands; nil disables them.
	Keys  io.Reader
	Theme *Theme

	// OnState, when set, observes gate transitions.
	OnState func(State)
}

// Source starts audio capture. cb receives blocks of frameLen samples and
// must not block.
type Source interface {
	Start(sampleRate, frameLen int, cb func([]int16)) (Capture, error)
}

// Capture is a running capture.
type Capture interface {
	Stop() error
}

// SourceFunc adapts a function to the Source interface.
type SourceFunc func(sampleRate, frameLen int, cb func([]int16)) (Capture, error)

func (f SourceFunc) Start(sampleRate, frameLen int, cb func([]int16)) (Capture, error) {
	return f(sampleRate, frameLen, cb)
}

// Dial opens the stream and waits for the server's ready message.
func Dial(ctx context.Context, cfg Config) (*websocket.Conn, error) {
	u, err := url.Parse(cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("client: url: %w", err)
	}
	q := u.Query()
	if cfg.Language != "" {
		q.Set("language", cfg.Language)
	}
	if cfg.APIKey != "" {
		q.Set("api_key", cfg.APIKey)
	}
	if cfg.Normalize {
		q.Set("normalize", "1")
	} else {
		q.Set("normalize", "0")
	}
	u.RawQuery = q.Encode()

	h := http.Header{}
	if cfg.APIKey != "" {
		h.Set("X-API-Key", cfg.APIKey)
	}
	conn, resp, err := websocket.DefaultDialer.DialContext(ctx, u.String(), h)
	if err != nil {
		if resp != nil {
			return nil, fmt.Errorf("client: dial %s: %w (status %d)", u.Host, err, resp.StatusCode)
		}
		return nil, fmt.Errorf("client: dial %s: %w", u.Host, err)
	}
	if resp != nil {
		slog.Debug("client: connected", "session", resp.Header.Get("X-Session-Id"))
	}

	conn.SetReadDeadline(time.Now().Add(handshakeTimeout))
	_, data, err := conn.ReadMessage()
	if err != nil {
		conn.Close()
		if websocket.IsCloseError(err, protocol.CloseUnauthorized) {
			return nil, ErrUnauthorized
		}
		return nil, fmt.Errorf("client: handshake: %w", err)
	}
	conn.SetReadDeadline(time.Time{})
	m, err := protocol.ParseMessage(data)
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("client: handshake: %w", err)
	}
	switch {
	case m.Type == protocol.TypeReady:
		return conn, nil
	case m.Type == protocol.TypeError && m.Error == protocol.ErrUnauthorized:
		conn.Close()
		return nil, ErrUnauthorized
	case m.Type == protocol.TypeError:
		conn.Close()
		return nil, fmt.Errorf("client: server error: %s", m.Error)
	default:
		conn.Close()
		return nil, fmt.Errorf("client: handshake: unexpected %q message", m.Type)
	}
}

// Run streams audio from src until the quit key, a connection failure or ctx
// ends the session. A session ended by the user returns nil.
func Run(ctx context.Context, cfg Config, src Source) error {
	if cfg.Detector == nil {
		return errors.New("client: no wake word detector")
	}
	out := cfg.Output
	if out == nil {
		out = io.Discard
	}
	theme := DefaultTheme
	if cfg.Theme != nil {
		theme = *cfg.Theme
	}
	display := NewDisplay(out, theme)

	conn, err := Dial(ctx, cfg)
	if err != nil {
		return err
	}
	defer conn.Close()
	display.Info("ready, language %s", orDefault(cfg.Language, "server default"))

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	sender := NewSender(conn, cfg.SendQueue)
	gate := NewGate(cfg.Detector, sender, cfg.CaptureQueue)
	gate.OnChange = func(_, to State) {
		display.State(to)
		if cfg.OnState != nil {
			cfg.OnState(to)
		}
	}
	listener := NewListener(conn, display, func(string) { gate.EndOfUtterance() })

	var wg sync.WaitGroup
	sendDone := make(chan error, 1)
	listenDone := make(chan error, 1)
	wg.Go(func() { sendDone <- sender.Run(ctx) })
	wg.Go(func() { listenDone <- listener.Run(ctx) })
	wg.Go(func() { gate.Run(ctx) })

	capture, err := src.Start(cfg.Detector.SampleRate(), cfg.Detector.FrameLength(), func(block []int16) {
		gate.Feed(pcm.Bytes(block))
	})
	if err != nil {
		cancel()
		conn.Close()
		wg.Wait()
		return fmt.Errorf("client: start capture: %w", err)
	}

	quit := make(chan struct{})
	if cfg.Keys != nil {
		keys := Keys{Quit: func() { close(quit) }, Cancel: gate.Cancel}
		if cfg.Manual {
			keys.Start = gate.Start
		}
		go ReadKeys(ctx, cfg.Keys, keys)
	}

	var runErr error
	listenerDone := false
	select {
	case <-quit:
	case <-ctx.Done():
	case runErr = <-sendDone:
		sendDone <- runErr
	case runErr = <-listenDone:
		listenerDone = true
	}

	if err := capture.Stop(); err != nil {
		slog.Warn("client: stop capture", "err", err)
	}
	sender.Control(protocol.Stop())
	sender.Close()
	select {
	case err := <-sendDone:
		if runErr == nil && !listenerDone && err != nil && !errors.Is(err, context.Canceled) {
			runErr = err
		}
	case <-time.After(shutdownTimeout):
	}
	if !listenerDone {
		msg := websocket.FormatCloseMessage(websocket.CloseNormalClosure, "")
		conn.WriteControl(websocket.CloseMessage, msg, time.Now().Add(time.Second))
		select {
		case <-listenDone:
		case <-time.After(shutdownTimeout):
		}
	}
	cancel()
	conn.Close()
	wg.Wait()

	if d := gate.Dropped() + sender.Dropped(); d > 0 {
		slog.Info("client: frames dropped", "capture", gate.Dropped(), "send", sender.Dropped())
	}
	if errors.Is(runErr, context.Canceled) {
		return nil
	}
	return runErr
}

func orDefault(s, def string) string {
	if s == "" {
		return def
	}
	return s
}
