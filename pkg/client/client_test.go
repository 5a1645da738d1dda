package client

import (
	"bytes"
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"slices"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"github.com/haivivi/voicegate/pkg/audio/pcm"
	"github.com/haivivi/voicegate/pkg/protocol"
	"github.com/haivivi/voicegate/pkg/recognizer"
	"github.com/haivivi/voicegate/pkg/server"
	"github.com/haivivi/voicegate/pkg/wakeword"
)

func init() {
	slog.SetDefault(slog.New(slog.DiscardHandler))
}

func samples(v int16, n int) []int16 {
	f := make([]int16, n)
	for i := range f {
		f[i] = v
	}
	return f
}

// wakeOn fires when the first sample of a frame equals v.
func wakeOn(v int16, frameLen int) wakeword.Detector {
	return wakeword.Func{
		Frames: frameLen,
		Rate:   16000,
		Fn: func(f []int16) (int, error) {
			if f[0] == v {
				return 0, nil
			}
			return wakeword.None, nil
		},
	}
}

type recorder struct {
	frames   [][]byte
	controls []protocol.Control
	full     bool
}

func (r *recorder) Forward(f []byte) bool {
	if r.full {
		return false
	}
	r.frames = append(r.frames, f)
	return true
}

func (r *recorder) Control(c protocol.Control) bool {
	r.controls = append(r.controls, c)
	return true
}

func TestGate(t *testing.T) {
	const n = 4
	rec := &recorder{}
	g := NewGate(wakeOn(9, n), rec, 4)
	var changes []State
	g.OnChange = func(_, to State) { changes = append(changes, to) }

	for v := int16(1); v <= 3; v++ {
		g.process(pcm.Bytes(samples(v, n)))
	}
	if len(rec.frames) != 0 || g.state != Idle {
		t.Fatalf("idle gate forwarded %d frames, state %v", len(rec.frames), g.state)
	}

	g.process(pcm.Bytes(samples(9, n)))
	if g.state != Recording {
		t.Fatalf("state = %v after wake word, want recording", g.state)
	}
	if len(rec.frames) != 0 {
		t.Fatal("wake word frame was forwarded")
	}

	g.process(pcm.Bytes(samples(10, n)))
	g.process(pcm.Bytes(samples(11, n)))

	// Misaligned chunks are reassembled into whole frames.
	b := pcm.Bytes(samples(12, n))
	g.process(b[:3])
	g.process(b[3:7])
	if len(rec.frames) != 2 {
		t.Fatalf("forwarded %d frames before the last byte, want 2", len(rec.frames))
	}
	g.process(b[7:])

	want := [][]byte{
		pcm.Bytes(samples(10, n)),
		pcm.Bytes(samples(11, n)),
		pcm.Bytes(samples(12, n)),
	}
	if !slices.EqualFunc(rec.frames, want, bytes.Equal) {
		t.Fatalf("frames = %v, want %v", rec.frames, want)
	}

	// End of utterance: the next frame is still forwarded, then idle.
	g.EndOfUtterance()
	g.process(pcm.Bytes(samples(13, n)))
	if g.state != Idle {
		t.Fatalf("state = %v after end of utterance, want idle", g.state)
	}
	g.process(pcm.Bytes(samples(14, n)))
	if len(rec.frames) != 4 {
		t.Fatalf("forwarded %d frames, want 4", len(rec.frames))
	}

	// Manual start and cancel.
	g.Start()
	g.process(pcm.Bytes(samples(15, n)))
	g.Cancel()
	g.drainCommands()
	if g.state != Idle {
		t.Fatalf("state = %v after cancel, want idle", g.state)
	}
	if len(rec.controls) != 1 || rec.controls[0].Event != protocol.EventStop {
		t.Fatalf("controls = %v, want one stop", rec.controls)
	}
	g.process(pcm.Bytes(samples(16, n)))
	if len(rec.frames) != 5 {
		t.Fatalf("forwarded %d frames, want 5", len(rec.frames))
	}

	wantChanges := []State{Recording, Idle, Recording, Idle}
	if !slices.Equal(changes, wantChanges) {
		t.Errorf("transitions = %v, want %v", changes, wantChanges)
	}
}

func TestGateEndOfUtteranceWhileIdle(t *testing.T) {
	rec := &recorder{}
	g := NewGate(wakeOn(1, 2), rec, 4)
	g.EndOfUtterance()
	g.process(pcm.Bytes(samples(1, 2)))
	g.process(pcm.Bytes(samples(2, 2)))
	g.process(pcm.Bytes(samples(3, 2)))
	if g.state != Recording {
		t.Fatalf("state = %v, want recording", g.state)
	}
	if len(rec.frames) != 2 {
		t.Fatalf("forwarded %d frames, want 2", len(rec.frames))
	}
}

func TestGateDetectorError(t *testing.T) {
	rec := &recorder{}
	det := wakeword.Func{Frames: 2, Rate: 16000, Fn: func([]int16) (int, error) {
		return 0, errors.New("model not loaded")
	}}
	g := NewGate(det, rec, 4)
	g.process(pcm.Bytes(samples(1, 2)))
	if g.state != Idle || len(rec.frames) != 0 {
		t.Fatalf("state %v, %d frames after detector error", g.state, len(rec.frames))
	}
}

func TestGateDropsWhenFull(t *testing.T) {
	g := NewGate(wakeword.Never(2, 16000), &recorder{}, 1)
	if !g.Feed([]byte{1, 2, 3, 4}) {
		t.Fatal("first Feed dropped")
	}
	if g.Feed([]byte{1, 2, 3, 4}) {
		t.Fatal("Feed on a full queue succeeded")
	}
	if g.Dropped() != 1 {
		t.Errorf("Dropped = %d, want 1", g.Dropped())
	}

	rec := &recorder{full: true}
	g = NewGate(wakeOn(1, 2), rec, 4)
	g.process(pcm.Bytes(samples(1, 2)))
	g.process(pcm.Bytes(samples(2, 2)))
	if g.Forwarded() != 0 || g.state != Recording {
		t.Errorf("Forwarded = %d, state %v; a full send queue must not stall the gate", g.Forwarded(), g.state)
	}
}

func TestGateRun(t *testing.T) {
	rec := make(chan State, 4)
	g := NewGate(wakeOn(7, 2), &recorder{}, 4)
	g.OnChange = func(_, to State) { rec <- to }
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- g.Run(ctx) }()

	g.Feed(pcm.Bytes(samples(7, 2)))
	select {
	case s := <-rec:
		if s != Recording {
			t.Fatalf("state = %v, want recording", s)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("no transition")
	}
	s, err := g.State(ctx)
	if err != nil || s != Recording {
		t.Fatalf("State = %v, %v", s, err)
	}
	cancel()
	if err := <-done; !errors.Is(err, context.Canceled) {
		t.Errorf("Run = %v, want context.Canceled", err)
	}
}

// wsPair returns a client connection to a server running handle.
func wsPair(t *testing.T, handle func(*websocket.Conn)) *websocket.Conn {
	t.Helper()
	up := websocket.Upgrader{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		c, err := up.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer c.Close()
		handle(c)
	}))
	t.Cleanup(srv.Close)
	conn, _, err := websocket.DefaultDialer.Dial("ws"+strings.TrimPrefix(srv.URL, "http"), nil)
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { conn.Close() })
	return conn
}

type received struct {
	typ  int
	data []byte
}

func TestSenderOrder(t *testing.T) {
	got := make(chan received, 16)
	conn := wsPair(t, func(c *websocket.Conn) {
		for {
			typ, data, err := c.ReadMessage()
			if err != nil {
				close(got)
				return
			}
			got <- received{typ, data}
		}
	})

	s := NewSender(conn, 8)
	s.Forward([]byte{1, 2})
	s.Forward([]byte{3, 4})
	s.Control(protocol.Stop())
	s.Close()
	if s.Forward([]byte{5, 6}) {
		t.Error("Forward after Close succeeded")
	}
	if s.Control(protocol.Stop()) {
		t.Error("Control after Close succeeded")
	}
	if err := s.Run(context.Background()); err != nil {
		t.Fatalf("Run = %v", err)
	}
	conn.Close()

	var msgs []received
	for m := range got {
		msgs = append(msgs, m)
	}
	if len(msgs) != 3 {
		t.Fatalf("got %d messages, want 3", len(msgs))
	}
	// Control events go ahead of queued audio; audio keeps its order.
	if msgs[0].typ != websocket.TextMessage || string(msgs[0].data) != `{"event":"stop"}`+"\n" {
		t.Errorf("msg 0 = %q", msgs[0].data)
	}
	if msgs[1].typ != websocket.BinaryMessage || !bytes.Equal(msgs[1].data, []byte{1, 2}) {
		t.Errorf("msg 1 = %v", msgs[1])
	}
	if msgs[2].typ != websocket.BinaryMessage || !bytes.Equal(msgs[2].data, []byte{3, 4}) {
		t.Errorf("msg 2 = %v", msgs[2])
	}
}

func TestGateCancelWithFullSendQueue(t *testing.T) {
	got := make(chan received, 16)
	conn := wsPair(t, func(c *websocket.Conn) {
		for {
			typ, data, err := c.ReadMessage()
			if err != nil {
				close(got)
				return
			}
			got <- received{typ, data}
		}
	})

	s := NewSender(conn, 4)
	g := NewGate(wakeOn(1, 2), s, 4)
	g.process(pcm.Bytes(samples(1, 2)))
	for v := int16(2); v <= 6; v++ {
		g.process(pcm.Bytes(samples(v, 2)))
	}
	if s.Dropped() != 1 {
		t.Fatalf("send queue dropped %d frames, want 1", s.Dropped())
	}

	g.handle(gateCmd{op: cmdCancel})
	if g.state != Idle {
		t.Fatalf("state after cancel = %v, want idle", g.state)
	}
	s.Close()
	if err := s.Run(context.Background()); err != nil {
		t.Fatalf("Run = %v", err)
	}
	conn.Close()

	var msgs []received
	for m := range got {
		msgs = append(msgs, m)
	}
	if len(msgs) != 5 {
		t.Fatalf("got %d messages, want stop and 4 frames", len(msgs))
	}
	if msgs[0].typ != websocket.TextMessage || string(msgs[0].data) != `{"event":"stop"}`+"\n" {
		t.Errorf("first message = %q, want the stop event", msgs[0].data)
	}
	for i, m := range msgs[1:] {
		want := pcm.Bytes(samples(int16(i+2), 2))
		if m.typ != websocket.BinaryMessage || !bytes.Equal(m.data, want) {
			t.Errorf("frame %d = %v, want %v", i, m.data, want)
		}
	}
}

func TestGateLogsDrops(t *testing.T) {
	var buf syncBuffer
	prev := slog.Default()
	slog.SetDefault(slog.New(slog.NewTextHandler(&buf, nil)))
	t.Cleanup(func() { slog.SetDefault(prev) })

	g := NewGate(wakeword.Never(2, 16000), &recorder{}, 1)
	for range dropLogEvery + 1 {
		g.Feed([]byte{1, 2, 3, 4})
	}
	out := buf.String()
	if n := strings.Count(out, "capture queue full"); n != 2 {
		t.Errorf("logged %d drop warnings, want 2:\n%s", n, out)
	}
	if !strings.Contains(out, "dropped=1") || !strings.Contains(out, "dropped=50") {
		t.Errorf("drop counts missing:\n%s", out)
	}

	g = NewGate(wakeOn(1, 2), &recorder{full: true}, 4)
	g.process(pcm.Bytes(samples(1, 2)))
	g.process(pcm.Bytes(samples(2, 2)))
	if !strings.Contains(buf.String(), "send queue full") {
		t.Errorf("send drop not logged:\n%s", buf.String())
	}
}

func TestSenderWriteError(t *testing.T) {
	conn := wsPair(t, func(c *websocket.Conn) { c.ReadMessage() })
	s := NewSender(conn, 4)
	conn.Close()
	s.Forward([]byte{1, 2})
	if err := s.Run(context.Background()); err == nil {
		t.Fatal("Run on a closed connection returned nil")
	}
	if s.Forward([]byte{3, 4}) {
		t.Error("Forward after a write failure succeeded")
	}
}

type syncBuffer struct {
	mu sync.Mutex
	b  bytes.Buffer
}

func (s *syncBuffer) Write(p []byte) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.b.Write(p)
}

func (s *syncBuffer) String() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.b.String()
}

func TestListener(t *testing.T) {
	conn := wsPair(t, func(c *websocket.Conn) {
		c.WriteJSON(protocol.Partial("hel"))
		c.WriteMessage(websocket.BinaryMessage, []byte("binary payload"))
		c.WriteMessage(websocket.TextMessage, []byte("not json"))
		c.WriteJSON(protocol.Final("", []byte(`{"DisplayText":"from raw"}`)))
		c.WriteJSON(protocol.Final("hello", nil))
		c.WriteJSON(protocol.Canceled("Error", "quota exceeded"))
		c.WriteJSON(protocol.Info(protocol.EventStopAck))
		c.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
		c.ReadMessage()
	})

	var out syncBuffer
	var finals []string
	l := NewListener(conn, NewDisplay(&out, DefaultTheme), func(text string) { finals = append(finals, text) })
	if err := l.Run(context.Background()); err != nil {
		t.Fatalf("Run = %v", err)
	}
	if want := []string{"from raw", "hello"}; !slices.Equal(finals, want) {
		t.Errorf("finals = %q, want %q", finals, want)
	}
	s := out.String()
	for _, want := range []string{"[partial]", "hel", "binary payload", "not json", "[final]", "[error]", "Error: quota exceeded", "info: stop_ack"} {
		if !strings.Contains(s, want) {
			t.Errorf("output missing %q:\n%s", want, s)
		}
	}
}

func TestRawText(t *testing.T) {
	tests := []struct {
		raw  string
		want string
	}{
		{`{"DisplayText":"a"}`, "a"},
		{`{"result":{"text":"b"}}`, "b"},
		{`{"other":1}`, ""},
		{`42`, ""},
	}
	for _, tt := range tests {
		if got := rawText([]byte(tt.raw)); got != tt.want {
			t.Errorf("rawText(%s) = %q, want %q", tt.raw, got, tt.want)
		}
	}
}

func TestReadKeys(t *testing.T) {
	var start, cancel, quit int
	k := Keys{
		Start:  func() { start++ },
		Cancel: func() { cancel++ },
		Quit:   func() { quit++ },
	}
	err := ReadKeys(context.Background(), strings.NewReader("s\n\nx\nz\nQ\nx\n"), k)
	if err != nil {
		t.Fatalf("ReadKeys = %v", err)
	}
	if start != 2 || cancel != 1 || quit != 1 {
		t.Errorf("start %d cancel %d quit %d, want 2 1 1", start, cancel, quit)
	}

	ctx, done := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer done()
	if err := ReadKeys(ctx, strings.NewReader(""), k); !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("ReadKeys after EOF = %v, want deadline exceeded", err)
	}
}

// fakeSource hands the capture callback to the test.
type fakeSource struct {
	cb      chan func([]int16)
	stopped atomic.Bool
}

func newFakeSource() *fakeSource {
	return &fakeSource{cb: make(chan func([]int16), 1)}
}

func (s *fakeSource) Start(_, _ int, cb func([]int16)) (Capture, error) {
	s.cb <- cb
	return s, nil
}

func (s *fakeSource) Stop() error {
	s.stopped.Store(true)
	return nil
}

const testKey = "secret"

type session struct {
	engine *recognizer.Fake
	url    string
	src    *fakeSource
	out    *syncBuffer
	states chan State
	keys   *io.PipeWriter
	done   chan error
	cb     func([]int16)
}

func startSession(t *testing.T, finalAfter int, det wakeword.Detector) *session {
	t.Helper()
	engine := &recognizer.Fake{FinalAfter: finalAfter}
	srv := httptest.NewServer(server.New(server.Config{APIKey: testKey}, engine).Handler())
	t.Cleanup(srv.Close)

	kr, kw := io.Pipe()
	t.Cleanup(func() { kw.Close() })
	s := &session{
		engine: engine,
		url:    "ws" + strings.TrimPrefix(srv.URL, "http") + protocol.Path,
		src:    newFakeSource(),
		out:    &syncBuffer{},
		states: make(chan State, 16),
		keys:   kw,
		done:   make(chan error, 1),
	}
	cfg := Config{
		URL:          s.url,
		APIKey:       testKey,
		Language:     "kk-KZ",
		Detector:     det,
		CaptureQueue: 64,
		SendQueue:    64,
		Output:       s.out,
		Keys:         kr,
		OnState:      func(st State) { s.states <- st },
	}
	go func() { s.done <- Run(context.Background(), cfg, s.src) }()
	select {
	case s.cb = <-s.src.cb:
	case err := <-s.done:
		t.Fatalf("Run = %v before capture started", err)
	case <-time.After(5 * time.Second):
		t.Fatal("capture not started")
	}
	return s
}

func (s *session) push(from, to int16, n int) {
	for v := from; v <= to; v++ {
		s.cb(samples(v, n))
	}
}

func (s *session) expectState(t *testing.T, want State) {
	t.Helper()
	select {
	case got := <-s.states:
		if got != want {
			t.Fatalf("state = %v, want %v", got, want)
		}
	case <-time.After(5 * time.Second):
		t.Fatalf("no transition to %v", want)
	}
}

func (s *session) quit(t *testing.T) {
	t.Helper()
	if _, err := io.WriteString(s.keys, "q\n"); err != nil {
		t.Fatal(err)
	}
	select {
	case err := <-s.done:
		if err != nil {
			t.Fatalf("Run = %v", err)
		}
	case <-time.After(10 * time.Second):
		t.Fatal("Run did not return after quit")
	}
	if !s.src.stopped.Load() {
		t.Error("capture not stopped")
	}
}

func (s *session) recognizerSession(t *testing.T) *recognizer.FakeSession {
	t.Helper()
	waitFor(t, "recognition session", func() bool { return len(s.engine.Sessions()) == 1 })
	return s.engine.Sessions()[0]
}

func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatalf("timed out waiting for %s", what)
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func framesBytes(from, to int16, n int) []byte {
	var b []byte
	for v := from; v <= to; v++ {
		b = append(b, pcm.Bytes(samples(v, n))...)
	}
	return b
}

func TestRunUtterance(t *testing.T) {
	const n = 512
	s := startSession(t, 15, wakeOn(5, n))

	s.push(1, 20, n)
	s.expectState(t, Recording)
	waitFor(t, "final", func() bool { return strings.Contains(s.out.String(), "15 chunks") })

	// The final is already queued to the gate: frame 21 is the last one
	// forwarded and the later frames hit an idle gate.
	s.push(21, 25, n)
	s.expectState(t, Idle)

	sess := s.recognizerSession(t)
	waitFor(t, "16 chunks", func() bool { return sess.Chunks() == 16 })
	s.quit(t)

	if got, want := sess.Audio(), framesBytes(6, 21, n); !bytes.Equal(got, want) {
		t.Errorf("server received %d bytes, want frames 6..21 (%d bytes)", len(got), len(want))
	}
	if sess.Config.Language != "kk-KZ" {
		t.Errorf("language = %q", sess.Config.Language)
	}
	out := s.out.String()
	for _, want := range []string{"ready", "[final]", "15 chunks", "session: started"} {
		if !strings.Contains(out, want) {
			t.Errorf("output missing %q:\n%s", want, out)
		}
	}
}

func TestRunCancel(t *testing.T) {
	const n = 256
	s := startSession(t, 0, wakeOn(1, n))

	s.push(1, 1, n)
	s.expectState(t, Recording)
	s.push(2, 3, n)
	sess := s.recognizerSession(t)
	waitFor(t, "2 chunks", func() bool { return sess.Chunks() == 2 })

	io.WriteString(s.keys, "x\n")
	s.expectState(t, Idle)
	waitFor(t, "stop_ack", func() bool { return strings.Contains(s.out.String(), "stop_ack") })
	if sess.Stopped() {
		t.Fatal("stop must not end the recognition session")
	}

	s.push(4, 6, n)
	s.quit(t)
	if got, want := sess.Audio(), framesBytes(2, 3, n); !bytes.Equal(got, want) {
		t.Errorf("server received %d bytes, want frames 2..3 (%d bytes)", len(got), len(want))
	}
}

func TestDialUnauthorized(t *testing.T) {
	engine := &recognizer.Fake{}
	srv := httptest.NewServer(server.New(server.Config{APIKey: testKey}, engine).Handler())
	defer srv.Close()

	cfg := Config{URL: "ws" + strings.TrimPrefix(srv.URL, "http") + protocol.Path, APIKey: "wrong"}
	_, err := Dial(context.Background(), cfg)
	if !errors.Is(err, ErrUnauthorized) {
		t.Fatalf("Dial = %v, want ErrUnauthorized", err)
	}
	if len(engine.Sessions()) != 0 {
		t.Error("session opened for a rejected key")
	}
}
