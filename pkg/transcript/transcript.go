// Package transcript keeps every message a streaming session sent to its
// client.
//
// Records are msgpack-encoded and stored in a kv.Store under
//
//	transcript/{session}/{seq:08d}  → Record
//	session/{session}               → Summary
package transcript

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/vmihailenco/msgpack/v5"

	"github.com/haivivi/voicegate/pkg/kv"
)

// Kind is the type of the outbound message a record was made from.
type Kind string

const (
	KindPartial Kind = "partial"
	KindFinal   Kind = "final"
	KindError   Kind = "error"
	KindSession Kind = "session"
	KindInfo    Kind = "info"
)

// Record is one transcript line. Detail holds the event of session and info
// messages and the error text of error messages.
type Record struct {
	Session string    `json:"session" msgpack:"session"`
	Seq     int       `json:"seq" msgpack:"seq"`
	Kind    Kind      `json:"kind" msgpack:"kind"`
	Text    string    `json:"text,omitempty" msgpack:"text,omitempty"`
	Detail  string    `json:"detail,omitempty" msgpack:"detail,omitempty"`
	At      time.Time `json:"at" msgpack:"at"`
}

// Summary describes a session.
type Summary struct {
	ID        string    `json:"id" msgpack:"id"`
	Remote    string    `json:"remote,omitempty" msgpack:"remote,omitempty"`
	StartedAt time.Time `json:"started_at" msgpack:"started_at"`
	EndedAt   time.Time `json:"ended_at,omitzero" msgpack:"ended_at,omitempty"`
	Finals    int       `json:"finals" msgpack:"finals"`
	Audio     string    `json:"audio,omitempty" msgpack:"audio,omitempty"`
	Bytes     int64     `json:"bytes" msgpack:"bytes"`
}

// ErrNotFound is returned for unknown sessions.
var ErrNotFound = errors.New("transcript: session not found")

// Log stores transcripts. A zero TTL keeps them forever.
type Log struct {
	store kv.Store
	ttl   time.Duration
	now   func() time.Time
}

// NewLog returns a Log over store.
func NewLog(store kv.Store, ttl time.Duration) *Log {
	return &Log{store: store, ttl: ttl, now: time.Now}
}

func recordKey(session string, seq int) kv.Key {
	return kv.Key{"transcript", session, fmt.Sprintf("%08d", seq)}
}

func summaryKey(session string) kv.Key { return kv.Key{"session", session} }

// Writer appends records for one session. It is safe for concurrent use.
type Writer struct {
	log     *Log
	mu      sync.Mutex
	summary Summary
	seq     int
}

// Begin records the start of a session.
func (l *Log) Begin(ctx context.Context, session, remote string) (*Writer, error) {
	w := &Writer{log: l, summary: Summary{ID: session, Remote: remote, StartedAt: l.now()}}
	if err := w.putSummary(ctx); err != nil {
		return nil, err
	}
	return w, nil
}

func (w *Writer) putSummary(ctx context.Context) error {
	data, err := msgpack.Marshal(&w.summary)
	if err != nil {
		return err
	}
	return w.log.store.Put(ctx, summaryKey(w.summary.ID), data, w.log.ttl)
}

// Append stores a record and returns its sequence number.
func (w *Writer) Append(ctx context.Context, kind Kind, text, detail string) (int, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.seq++
	r := Record{Session: w.summary.ID, Seq: w.seq, Kind: kind, Text: text, Detail: detail, At: w.log.now()}
	data, err := msgpack.Marshal(&r)
	if err != nil {
		return 0, err
	}
	if err := w.log.store.Put(ctx, recordKey(w.summary.ID, r.Seq), data, w.log.ttl); err != nil {
		return 0, fmt.Errorf("transcript: append: %w", err)
	}
	if kind == KindFinal {
		w.summary.Finals++
	}
	return r.Seq, nil
}

// End closes the session summary with the archived audio path and size.
func (w *Writer) End(ctx context.Context, audioPath string, bytes int64) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.summary.EndedAt = w.log.now()
	w.summary.Audio = audioPath
	w.summary.Bytes = bytes
	return w.putSummary(ctx)
}

// Session returns the summary of a session.
func (l *Log) Session(ctx context.Context, session string) (*Summary, error) {
	data, err := l.store.Get(ctx, summaryKey(session))
	if errors.Is(err, kv.ErrNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	var s Summary
	if err := msgpack.Unmarshal(data, &s); err != nil {
		return nil, fmt.Errorf("transcript: decode summary: %w", err)
	}
	return &s, nil
}

// Records returns the records of a session in order.
func (l *Log) Records(ctx context.Context, session string) ([]Record, error) {
	var out []Record
	for e, err := range l.store.Scan(ctx, kv.Key{"transcript", session}) {
		if err != nil {
			return nil, err
		}
		var r Record
		if err := msgpack.Unmarshal(e.Value, &r); err != nil {
			continue
		}
		out = append(out, r)
	}
	return out, nil
}

// Sessions lists all session summaries.
func (l *Log) Sessions(ctx context.Context) ([]Summary, error) {
	var out []Summary
	for e, err := range l.store.Scan(ctx, kv.Key{"session"}) {
		if err != nil {
			return nil, err
		}
		var s Summary
		if err := msgpack.Unmarshal(e.Value, &s); err != nil {
			continue
		}
		out = append(out, s)
	}
	return out, nil
}

// Text joins the final phrases of a session with spaces.
func Text(records []Record) string {
	var b []byte
	for _, r := range records {
		if r.Kind != KindFinal || r.Text == "" {
			continue
		}
		if len(b) > 0 {
			b = append(b, ' ')
		}
		b = append(b, r.Text...)
	}
	return string(b)
}
