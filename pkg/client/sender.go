package client

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/haivivi/voicegate/pkg/buffer"
	"github.com/haivivi/voicegate/pkg/protocol"
)

const (
	writeTimeout = 10 * time.Second
	// controlQueueSize bounds pending control events. Every control event
	// is a stop today, so a few slots are plenty.
	controlQueueSize = 4
)

// Sender is the only writer of data messages on the connection. Audio
// frames go through a bounded FIFO; control events have their own channel
// and are written before any audio still waiting in the queue.
type Sender struct {
	conn   *websocket.Conn
	q      *buffer.Queue[[]byte]
	ctrl   chan protocol.Control
	mu     sync.Mutex
	closed bool
}

// NewSender returns a sender with an audio queue of the given size.
func NewSender(conn *websocket.Conn, queue int) *Sender {
	if queue <= 0 {
		queue = DefaultQueueSize
	}
	return &Sender{
		conn: conn,
		q:    buffer.NewQueue[[]byte](queue),
		ctrl: make(chan protocol.Control, controlQueueSize),
	}
}

// Forward queues an audio frame, dropping it when the queue is full.
func (s *Sender) Forward(frame []byte) bool {
	return s.q.TryPush(frame)
}

// Control queues a control event ahead of the pending audio. It does not
// block and does not compete with audio for queue space; it reports false
// only after Close or when controlQueueSize events are already pending.
func (s *Sender) Control(c protocol.Control) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return false
	}
	select {
	case s.ctrl <- c:
		return true
	default:
		return false
	}
}

// Dropped returns how many audio frames were rejected because the queue
// was full.
func (s *Sender) Dropped() int64 { return s.q.Dropped() }

// Close stops accepting items. Run writes what is pending and returns.
func (s *Sender) Close() {
	s.mu.Lock()
	s.closed = true
	s.mu.Unlock()
	s.q.CloseWrite()
}

// Run writes pending items until Close has been called and everything is
// written, a write fails, or ctx is done. Audio keeps its FIFO order;
// pending control events are written first.
func (s *Sender) Run(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	frames := make(chan []byte)
	popErr := make(chan error, 1)
	go s.pop(ctx, frames, popErr)

	for {
		if err := s.flushControl(); err != nil {
			return s.fail(err)
		}
		select {
		case c := <-s.ctrl:
			if err := s.writeControl(c); err != nil {
				return s.fail(err)
			}
		case f, ok := <-frames:
			if !ok {
				err := <-popErr
				if !errors.Is(err, buffer.ErrIteratorDone) {
					return err
				}
				if err := s.flushControl(); err != nil {
					return s.fail(err)
				}
				return nil
			}
			if err := s.writeAudio(f); err != nil {
				return s.fail(err)
			}
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

// pop moves frames from the queue to Run one at a time.
func (s *Sender) pop(ctx context.Context, frames chan<- []byte, errc chan<- error) {
	defer close(frames)
	for {
		f, err := s.q.Pop(ctx)
		if err != nil {
			errc <- err
			return
		}
		select {
		case frames <- f:
		case <-ctx.Done():
			errc <- ctx.Err()
			return
		}
	}
}

func (s *Sender) flushControl() error {
	for {
		select {
		case c := <-s.ctrl:
			if err := s.writeControl(c); err != nil {
				return err
			}
		default:
			return nil
		}
	}
}

func (s *Sender) fail(err error) error {
	s.q.CloseWithError(err)
	return err
}

func (s *Sender) writeControl(c protocol.Control) error {
	s.conn.SetWriteDeadline(time.Now().Add(writeTimeout))
	if err := s.conn.WriteJSON(c); err != nil {
		return fmt.Errorf("client: write %s: %w", c.Event, err)
	}
	return nil
}

func (s *Sender) writeAudio(frame []byte) error {
	s.conn.SetWriteDeadline(time.Now().Add(writeTimeout))
	if err := s.conn.WriteMessage(websocket.BinaryMessage, frame); err != nil {
		return fmt.Errorf("client: write audio: %w", err)
	}
	return nil
}
