// Package protocol defines the JSON messages exchanged on the streaming
// speech websocket.
//
// The server sends [Message] values as text frames. The client sends raw
// little-endian 16-bit mono PCM as binary frames and [Control] values as
// text frames.
package protocol

import (
	"encoding/json"
	"errors"
)

// Path is the websocket endpoint of the streaming recognizer.
const Path = "/v1/speech/stt/stream"

// Message types sent from server to client.
const (
	TypeReady   = "ready"
	TypePartial = "partial"
	TypeFinal   = "final"
	TypeError   = "error"
	TypeSession = "session"
	TypeInfo    = "info"
)

// Event values carried by session, info and control messages.
const (
	EventStarted = "started"
	EventStopped = "stopped"
	EventStop    = "stop"
	EventStopAck = "stop_ack"
)

// ReasonRecognizedSpeech is the reason attached to final results.
const ReasonRecognizedSpeech = "RecognizedSpeech"

// ErrUnauthorized is the error text sent before closing an unauthenticated
// connection.
const ErrUnauthorized = "unauthorized"

// CloseUnauthorized is the websocket close code for a rejected credential.
const CloseUnauthorized = 4401

// Message is a server to client message. Which fields are set depends on
// Type.
type Message struct {
	Type   string          `json:"type"`
	Text   *string         `json:"text,omitempty"`
	Reason string          `json:"reason,omitempty"`
	Raw    json.RawMessage `json:"raw,omitempty"`
	Error  string          `json:"error,omitempty"`
	Event  string          `json:"event,omitempty"`
}

// Ready is sent once per connection, before any other message.
func Ready() Message { return Message{Type: TypeReady} }

// Partial carries an interim hypothesis.
func Partial(text string) Message {
	return Message{Type: TypePartial, Text: &text}
}

// Final carries a recognized utterance. raw is the engine's JSON result and
// may be nil.
func Final(text string, raw json.RawMessage) Message {
	return Message{Type: TypeFinal, Text: &text, Reason: ReasonRecognizedSpeech, Raw: raw}
}

// Error reports a failure to the client.
func Error(detail string) Message {
	return Message{Type: TypeError, Error: detail}
}

// Canceled reports an engine cancellation caused by an error.
func Canceled(reason, detail string) Message {
	if detail == "" {
		detail = "unknown"
	}
	return Message{Type: TypeError, Reason: reason, Error: detail}
}

// Session reports a recognition session lifecycle event.
func Session(event string) Message {
	return Message{Type: TypeSession, Event: event}
}

// Info carries an acknowledgement.
func Info(event string) Message {
	return Message{Type: TypeInfo, Event: event}
}

// TextValue returns the message text, or "" if none was sent.
func (m Message) TextValue() string {
	if m.Text == nil {
		return ""
	}
	return *m.Text
}

// Control is a client to server control message.
type Control struct {
	Event string `json:"event"`
}

// Stop asks the server to acknowledge the end of the current utterance.
// The recognition session is kept open.
func Stop() Control { return Control{Event: EventStop} }

var errNotControl = errors.New("protocol: not a control message")

// ParseControl decodes a control message. Payloads that are not a JSON
// object with a non-empty event are rejected.
func ParseControl(data []byte) (Control, error) {
	var c Control
	if err := json.Unmarshal(data, &c); err != nil {
		return Control{}, err
	}
	if c.Event == "" {
		return Control{}, errNotControl
	}
	return c, nil
}

// ParseMessage decodes a server message.
func ParseMessage(data []byte) (Message, error) {
	var m Message
	if err := json.Unmarshal(data, &m); err != nil {
		return Message{}, err
	}
	if m.Type == "" {
		return Message{}, errors.New("protocol: message has no type")
	}
	return m, nil
}
