package doubaospeech

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"iter"
	"sync"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
)

// StreamConfig configures a streaming recognition session.
type StreamConfig struct {
	Format     string   `json:"format" yaml:"format"`
	SampleRate int      `json:"sample_rate" yaml:"sample_rate"`
	Channels   int      `json:"channels,omitempty" yaml:"channels,omitempty"`
	Bits       int      `json:"bits,omitempty" yaml:"bits,omitempty"`
	Language   string   `json:"language,omitempty" yaml:"language,omitempty"`
	EnablePunc bool     `json:"enable_punc,omitempty" yaml:"enable_punc,omitempty"`
	EnableITN  bool     `json:"enable_itn,omitempty" yaml:"enable_itn,omitempty"`
	Hotwords   []string `json:"hotwords,omitempty" yaml:"hotwords,omitempty"`
	// EndWindowMS is the trailing silence, in milliseconds, after which the
	// service closes an utterance. Zero leaves the service default.
	EndWindowMS int `json:"end_window_size,omitempty" yaml:"end_window_size,omitempty"`
	// ResourceID overrides the client's resource for this session.
	ResourceID string `json:"resource_id,omitempty" yaml:"resource_id,omitempty"`
}

// Result is one recognition update.
type Result struct {
	Text       string      `json:"text"`
	Utterances []Utterance `json:"utterances,omitempty"`
	Duration   int         `json:"duration,omitempty"`
	// Last is set on the service's final frame, sent after the last audio.
	Last bool `json:"last,omitempty"`
	// Raw is the JSON payload as received.
	Raw json.RawMessage `json:"-"`
}

// Utterance is a sentence within a result. Definite utterances will not
// change any more.
type Utterance struct {
	Text      string `json:"text"`
	StartTime int    `json:"start_time"`
	EndTime   int    `json:"end_time"`
	Definite  bool   `json:"definite"`
	Words     []Word `json:"words,omitempty"`
}

// Word is a word with its timing in milliseconds.
type Word struct {
	Text      string `json:"text"`
	StartTime int    `json:"start_time"`
	EndTime   int    `json:"end_time"`
}

// Stream is an open streaming recognition session.
//
// Send may be called from one goroutine while another ranges over Recv.
type Stream struct {
	conn  *websocket.Conn
	reqID string

	writeMu sync.Mutex
	sent    bool // last audio sent

	results chan *Result
	err     error // read error, valid after results is closed

	closeOnce sync.Once
	closed    chan struct{}
}

// OpenStream dials the streaming recognizer and sends the session request.
func (c *Client) OpenStream(ctx context.Context, cfg *StreamConfig) (*Stream, error) {
	connectID := uuid.NewString()
	headers := c.wsHeaders(connectID)
	if cfg.ResourceID != "" {
		headers.Set("X-Api-Resource-Id", cfg.ResourceID)
	}
	conn, resp, err := websocket.DefaultDialer.DialContext(ctx, c.wsURL+"/api/v3/sauc/bigmodel", headers)
	if err != nil {
		if resp != nil {
			body, _ := io.ReadAll(resp.Body)
			return nil, parseAPIError(resp.StatusCode, body, resp.Header.Get("X-Tt-Logid"))
		}
		return nil, fmt.Errorf("doubaospeech: dial: %w", err)
	}

	s := &Stream{
		conn:    conn,
		reqID:   connectID,
		results: make(chan *Result, 64),
		closed:  make(chan struct{}),
	}
	if err := s.sendStart(c.userID, cfg); err != nil {
		conn.Close()
		return nil, fmt.Errorf("doubaospeech: session start: %w", err)
	}
	go s.readLoop()
	return s, nil
}

func (s *Stream) sendStart(uid string, cfg *StreamConfig) error {
	audio := map[string]any{
		"format":      cfg.Format,
		"sample_rate": cfg.SampleRate,
		"channel":     1,
		"bits":        16,
	}
	if cfg.Format == "" {
		audio["format"] = "pcm"
	}
	if cfg.Channels > 0 {
		audio["channel"] = cfg.Channels
	}
	if cfg.Bits > 0 {
		audio["bits"] = cfg.Bits
	}
	request := map[string]any{
		"reqid":           s.reqID,
		"sequence":        1,
		"show_utterances": true,
		"result_type":     "single",
	}
	if cfg.Language != "" {
		request["language"] = cfg.Language
	}
	if cfg.EnablePunc {
		request["enable_punc"] = true
	}
	if cfg.EnableITN {
		request["enable_itn"] = true
	}
	if len(cfg.Hotwords) > 0 {
		request["hotwords"] = cfg.Hotwords
	}
	if cfg.EndWindowMS > 0 {
		request["end_window_size"] = cfg.EndWindowMS
	}
	payload, err := json.Marshal(map[string]any{
		"user":    map[string]any{"uid": uid},
		"audio":   audio,
		"request": request,
	})
	if err != nil {
		return err
	}
	return s.write(&frame{msgType: msgFullClient, flags: flagNoSeq, serial: serialJSON, payload: payload})
}

func (s *Stream) write(f *frame) error {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	return s.conn.WriteMessage(websocket.BinaryMessage, f.marshal())
}

// ErrStreamFinished is returned by Send after the last audio was sent.
var ErrStreamFinished = errors.New("doubaospeech: audio stream already finished")

// Send sends a chunk of audio. last marks the end of the audio; the service
// then flushes pending results and ends the stream.
func (s *Stream) Send(audio []byte, last bool) error {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	if s.sent {
		return ErrStreamFinished
	}
	f := &frame{msgType: msgAudioClient, flags: flagNoSeq, serial: serialNone, compress: compressNone, payload: audio}
	if last {
		f.flags = flagLast
		s.sent = true
	}
	if err := s.conn.WriteMessage(websocket.BinaryMessage, f.marshal()); err != nil {
		return fmt.Errorf("doubaospeech: send audio: %w", err)
	}
	return nil
}

// Recv yields results until the service ends the stream, the stream is
// closed or an error occurs. A nil error at the end is never yielded.
func (s *Stream) Recv() iter.Seq2[*Result, error] {
	return func(yield func(*Result, error) bool) {
		for r := range s.results {
			if !yield(r, nil) {
				return
			}
		}
		if s.err != nil {
			yield(nil, s.err)
		}
	}
}

// Close closes the connection. It is idempotent.
func (s *Stream) Close() error {
	var err error
	s.closeOnce.Do(func() {
		close(s.closed)
		err = s.conn.Close()
	})
	return err
}

func (s *Stream) readLoop() {
	defer close(s.results)
	for {
		mt, data, err := s.conn.ReadMessage()
		if err != nil {
			select {
			case <-s.closed:
			default:
				if !websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
					s.err = fmt.Errorf("doubaospeech: read: %w", err)
				}
			}
			return
		}
		if mt != websocket.BinaryMessage {
			s.err = &Error{Code: -1, Message: string(data)}
			return
		}
		f, err := unmarshalFrame(data)
		if err != nil {
			continue
		}
		switch f.msgType {
		case msgFullServer:
			r, err := decodeResult(f.payload)
			if err != nil {
				continue
			}
			r.Last = f.last()
			select {
			case s.results <- r:
			case <-s.closed:
				return
			}
			if r.Last {
				return
			}
		case msgError:
			e := &Error{Code: int(f.errorCode), Message: string(f.payload), ReqID: s.reqID}
			var body struct {
				Code    int    `json:"code"`
				Message string `json:"message"`
			}
			if json.Unmarshal(f.payload, &body) == nil && body.Message != "" {
				e.Message = body.Message
				if body.Code != 0 {
					e.Code = body.Code
				}
			}
			s.err = e
			return
		}
	}
}

func decodeResult(payload []byte) (*Result, error) {
	var resp struct {
		AudioInfo struct {
			Duration int `json:"duration"`
		} `json:"audio_info"`
		Result struct {
			Text       string      `json:"text"`
			Utterances []Utterance `json:"utterances"`
		} `json:"result"`
	}
	if err := json.Unmarshal(payload, &resp); err != nil {
		return nil, err
	}
	return &Result{
		Text:       resp.Result.Text,
		Utterances: resp.Result.Utterances,
		Duration:   resp.AudioInfo.Duration,
		Raw:        json.RawMessage(payload),
	}, nil
}
