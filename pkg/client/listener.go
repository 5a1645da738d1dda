package client

import (
	"context"
	"errors"
	"log/slog"

	"github.com/gorilla/websocket"

	"github.com/haivivi/voicegate/pkg/cli"
	"github.com/haivivi/voicegate/pkg/protocol"
)

// finalTextQuery extracts display text from an engine result when a final
// message arrives without text.
const finalTextQuery = `.DisplayText // .result.text // ""`

// Listener is the only reader of the connection.
type Listener struct {
	conn    *websocket.Conn
	display *Display
	// OnFinal is called with the text of every final result, before it is
	// displayed.
	OnFinal func(text string)
}

// NewListener returns a listener rendering to display.
func NewListener(conn *websocket.Conn, display *Display, onFinal func(string)) *Listener {
	return &Listener{conn: conn, display: display, OnFinal: onFinal}
}

// Run reads messages until the connection closes. A normal close returns
// nil. Messages that cannot be decoded are shown raw and skipped.
func (l *Listener) Run(ctx context.Context) error {
	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		typ, data, err := l.conn.ReadMessage()
		if err != nil {
			if websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				return nil
			}
			var ce *websocket.CloseError
			if errors.As(err, &ce) {
				l.display.Error(ce.Error())
			}
			return err
		}
		if typ != websocket.TextMessage {
			l.display.Raw(data)
			continue
		}
		m, err := protocol.ParseMessage(data)
		if err != nil {
			slog.Debug("client: undecodable message", "err", err)
			l.display.Raw(data)
			continue
		}
		l.dispatch(m)
	}
}

func (l *Listener) dispatch(m protocol.Message) {
	switch m.Type {
	case protocol.TypePartial:
		l.display.Partial(m.TextValue())
	case protocol.TypeFinal:
		text := m.TextValue()
		if text == "" && len(m.Raw) > 0 {
			text = rawText(m.Raw)
		}
		if l.OnFinal != nil {
			l.OnFinal(text)
		}
		l.display.Final(text)
	case protocol.TypeError:
		if m.Reason != "" {
			l.display.Error(m.Reason + ": " + m.Error)
		} else {
			l.display.Error(m.Error)
		}
	case protocol.TypeReady:
		l.display.Info("ready")
	case protocol.TypeSession, protocol.TypeInfo:
		l.display.Info("%s: %s", m.Type, m.Event)
	default:
		l.display.Info("%s", m.Type)
	}
}

func rawText(raw []byte) string {
	out, err := cli.Query(raw, finalTextQuery)
	if err != nil || len(out) == 0 {
		return ""
	}
	s, _ := out[0].(string)
	return s
}
