package protocol

import (
	"encoding/json"
	"testing"
)

func TestMessageJSON(t *testing.T) {
	tests := []struct {
		msg  Message
		want string
	}{
		{Ready(), `{"type":"ready"}`},
		{Partial("hel"), `{"type":"partial","text":"hel"}`},
		{Partial(""), `{"type":"partial","text":""}`},
		{Final("hello", nil), `{"type":"final","text":"hello","reason":"RecognizedSpeech"}`},
		{Final("hi", json.RawMessage(`{"DisplayText":"Hi."}`)), `{"type":"final","text":"hi","reason":"RecognizedSpeech","raw":{"DisplayText":"Hi."}}`},
		{Error(ErrUnauthorized), `{"type":"error","error":"unauthorized"}`},
		{Canceled("Error", ""), `{"type":"error","reason":"Error","error":"unknown"}`},
		{Session(EventStarted), `{"type":"session","event":"started"}`},
		{Session(EventStopped), `{"type":"session","event":"stopped"}`},
		{Info(EventStopAck), `{"type":"info","event":"stop_ack"}`},
	}
	for _, tt := range tests {
		b, err := json.Marshal(tt.msg)
		if err != nil {
			t.Fatal(err)
		}
		if string(b) != tt.want {
			t.Errorf("Marshal = %s, want %s", b, tt.want)
		}
	}
}

func TestParseControl(t *testing.T) {
	c, err := ParseControl([]byte(`{"event":"stop"}`))
	if err != nil || c.Event != EventStop {
		t.Fatalf("ParseControl = %+v, %v", c, err)
	}
	for _, bad := range []string{``, `stop`, `[]`, `{}`, `{"event":""}`, `{"event":1}`} {
		if _, err := ParseControl([]byte(bad)); err == nil {
			t.Errorf("ParseControl(%q) succeeded", bad)
		}
	}
}

func TestParseMessage(t *testing.T) {
	m, err := ParseMessage([]byte(`{"type":"final","text":"","raw":{"DisplayText":"x"}}`))
	if err != nil {
		t.Fatal(err)
	}
	if m.Type != TypeFinal || m.TextValue() != "" || string(m.Raw) != `{"DisplayText":"x"}` {
		t.Fatalf("ParseMessage = %+v", m)
	}
	if _, err := ParseMessage([]byte(`{"text":"x"}`)); err == nil {
		t.Fatal("ParseMessage without type succeeded")
	}
}
