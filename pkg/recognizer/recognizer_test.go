package recognizer

import (
	"context"
	"encoding/binary"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"github.com/haivivi/voicegate/pkg/doubaospeech"
)

func TestConfigDefaults(t *testing.T) {
	c := Config{Language: "ru-RU", EndSilence: time.Second}.WithDefaults()
	if c.SampleRate != 16000 || c.BitsPerSample != 16 || c.Channels != 1 {
		t.Fatalf("format = %d/%d/%d", c.SampleRate, c.BitsPerSample, c.Channels)
	}
	if c.EndSilence != time.Second || c.InitialSilence != 4*time.Second {
		t.Fatalf("silence = %v/%v", c.EndSilence, c.InitialSilence)
	}
	d := DefaultConfig()
	if d.EndSilence != 800*time.Millisecond || !d.WordTimestamps {
		t.Fatalf("DefaultConfig = %+v", d)
	}
}

func TestCancelReasonString(t *testing.T) {
	if EndOfStream.String() != "EndOfStream" || CancelError.String() != "Error" {
		t.Fatal("unexpected CancelReason names")
	}
}

func TestEventsShutdown(t *testing.T) {
	ev := NewEvents(1)
	if !ev.EmitRecognized(Result{Text: "a"}) {
		t.Fatal("first emit failed")
	}
	blocked := make(chan bool)
	go func() { blocked <- ev.EmitRecognized(Result{Text: "b"}) }()
	ev.Shutdown()
	ev.Shutdown()
	if <-blocked {
		t.Fatal("emit on a full channel succeeded after Shutdown")
	}
	if ev.EmitSessionStarted() {
		t.Fatal("emit after Shutdown succeeded")
	}
}

func recv[T any](t *testing.T, ch <-chan T) T {
	t.Helper()
	select {
	case v := <-ch:
		return v
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for event")
		panic("unreachable")
	}
}

func TestFakeSession(t *testing.T) {
	f := &Fake{FinalAfter: 2}
	ctx := context.Background()
	s, err := f.Open(ctx, Config{Language: "kk-KZ"})
	if err != nil {
		t.Fatal(err)
	}
	ev := s.Events()
	recv(t, ev.SessionStarted)

	for range 4 {
		if err := s.Write(make([]byte, 10)); err != nil {
			t.Fatal(err)
		}
	}
	for _, want := range []string{"10 bytes", "20 bytes", "10 bytes", "20 bytes"} {
		if got := recv(t, ev.Recognizing).Text; got != want {
			t.Fatalf("partial = %q, want %q", got, want)
		}
	}
	for range 2 {
		r := recv(t, ev.Recognized)
		if r.Text != "2 chunks" || !json.Valid(r.Raw) {
			t.Fatalf("final = %+v", r)
		}
	}

	if err := s.CloseAudio(); err != nil {
		t.Fatal(err)
	}
	if c := recv(t, ev.Canceled); c.Reason != EndOfStream {
		t.Fatalf("canceled = %+v", c)
	}
	recv(t, ev.SessionStopped)
	if err := s.Write([]byte{1}); !errors.Is(err, ErrAudioClosed) {
		t.Fatalf("Write after CloseAudio = %v", err)
	}

	if err := s.Stop(ctx); err != nil {
		t.Fatal(err)
	}
	if err := s.Stop(ctx); err != nil {
		t.Fatal(err)
	}
	fs := f.Sessions()[0]
	if !fs.Stopped() || fs.Chunks() != 4 || len(fs.Audio()) != 40 || fs.Config.Language != "kk-KZ" {
		t.Fatalf("session state = %v %d %d %+v", fs.Stopped(), fs.Chunks(), len(fs.Audio()), fs.Config)
	}
}

func TestFakeFail(t *testing.T) {
	f := &Fake{}
	s, _ := f.Open(context.Background(), Config{})
	defer s.Stop(context.Background())
	f.Sessions()[0].Fail(401, "bad key")
	c := recv(t, s.Events().Canceled)
	if c.Reason != CancelError || c.Detail != "bad key" || c.Code != 401 {
		t.Fatalf("canceled = %+v", c)
	}
}

func TestFakeRecognizeOnce(t *testing.T) {
	f := &Fake{}
	r, err := f.RecognizeOnce(context.Background(), make([]byte, 3200), Config{})
	if err != nil || r.Text != "1600 samples" {
		t.Fatalf("RecognizeOnce = %+v, %v", r, err)
	}
	if _, err := f.RecognizeOnce(context.Background(), nil, Config{}); !errors.Is(err, ErrNoMatch) {
		t.Fatalf("RecognizeOnce(nil) = %v", err)
	}
}

// saucFrame encodes a server result frame.
func saucFrame(flags byte, seq int32, payload string) []byte {
	b := []byte{0x11, 0x90 | flags, 0x10, 0x00}
	b = binary.BigEndian.AppendUint32(b, uint32(seq))
	b = binary.BigEndian.AppendUint32(b, uint32(len(payload)))
	return append(b, payload...)
}

func saucServer(t *testing.T, script func(conn *websocket.Conn)) *doubaospeech.Client {
	up := websocket.Upgrader{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := up.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()
		if _, _, err := conn.ReadMessage(); err != nil { // session start
			return
		}
		script(conn)
	}))
	t.Cleanup(srv.Close)
	return doubaospeech.NewClient("app", doubaospeech.WithToken("tok"),
		doubaospeech.WithWebSocketURL("ws"+strings.TrimPrefix(srv.URL, "http")))
}

func TestDoubaoSession(t *testing.T) {
	client := saucServer(t, func(conn *websocket.Conn) {
		conn.ReadMessage() // audio
		conn.WriteMessage(websocket.BinaryMessage, saucFrame(1, 1,
			`{"result":{"text":"hel","utterances":[{"text":"hel","definite":false}]}}`))
		conn.WriteMessage(websocket.BinaryMessage, saucFrame(1, 2,
			`{"result":{"text":"hello","utterances":[{"text":"hello","definite":true,"end_time":900}]}}`))
		conn.ReadMessage() // last audio
		conn.WriteMessage(websocket.BinaryMessage, saucFrame(3, -3,
			`{"result":{"text":"hello","utterances":[{"text":"hello","definite":true,"end_time":900}]}}`))
	})

	ctx := context.Background()
	s, err := NewDoubao(client).Open(ctx, Config{Language: "en-US"})
	if err != nil {
		t.Fatal(err)
	}
	ev := s.Events()
	recv(t, ev.SessionStarted)
	if err := s.Write(make([]byte, 320)); err != nil {
		t.Fatal(err)
	}
	if p := recv(t, ev.Recognizing); p.Text != "hel" {
		t.Fatalf("partial = %q", p.Text)
	}
	if r := recv(t, ev.Recognized); r.Text != "hello" || len(r.Raw) == 0 {
		t.Fatalf("final = %+v", r)
	}
	if err := s.CloseAudio(); err != nil {
		t.Fatal(err)
	}
	if c := recv(t, ev.Canceled); c.Reason != EndOfStream {
		t.Fatalf("canceled = %+v", c)
	}
	recv(t, ev.SessionStopped)
	select {
	case r := <-ev.Recognized:
		t.Fatalf("repeated final %+v", r)
	default:
	}
	if err := s.Write([]byte{0, 0}); !errors.Is(err, ErrAudioClosed) {
		t.Fatalf("Write after CloseAudio = %v", err)
	}
	if err := s.Stop(ctx); err != nil {
		t.Fatal(err)
	}
}

func TestDoubaoSessionError(t *testing.T) {
	client := saucServer(t, func(conn *websocket.Conn) {
		payload := `{"code":45000002,"message":"empty audio"}`
		b := []byte{0x11, 0xF0, 0x10, 0x00}
		b = binary.BigEndian.AppendUint32(b, 45000002)
		b = binary.BigEndian.AppendUint32(b, uint32(len(payload)))
		conn.WriteMessage(websocket.BinaryMessage, append(b, payload...))
	})
	s, err := NewDoubao(client).Open(context.Background(), Config{})
	if err != nil {
		t.Fatal(err)
	}
	defer s.Stop(context.Background())
	c := recv(t, s.Events().Canceled)
	if c.Reason != CancelError || c.Code != 45000002 || c.Detail != "empty audio" {
		t.Fatalf("canceled = %+v", c)
	}
}

func TestDoubaoRecognizeOnce(t *testing.T) {
	client := saucServer(t, func(conn *websocket.Conn) {
		for {
			_, data, err := conn.ReadMessage()
			if err != nil {
				return
			}
			if data[1]&0x0F == 0x2 {
				break
			}
		}
		conn.WriteMessage(websocket.BinaryMessage, saucFrame(3, -1,
			`{"result":{"text":"one","utterances":[{"text":"one","definite":true}]}}`))
	})
	r, err := NewDoubao(client).RecognizeOnce(context.Background(), make([]byte, 8000), Config{})
	if err != nil || r.Text != "one" {
		t.Fatalf("RecognizeOnce = %+v, %v", r, err)
	}
}
