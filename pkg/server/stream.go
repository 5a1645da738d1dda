package server

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/haivivi/voicegate/pkg/audio/pcm"
	"github.com/haivivi/voicegate/pkg/buffer"
	"github.com/haivivi/voicegate/pkg/protocol"
	"github.com/haivivi/voicegate/pkg/recognizer"
	"github.com/haivivi/voicegate/pkg/storage"
	"github.com/haivivi/voicegate/pkg/transcript"
)

const (
	writeTimeout = 10 * time.Second
	stopTimeout  = 5 * time.Second
)

// HeaderSessionID carries the session id in the upgrade response.
const HeaderSessionID = "X-Session-Id"

func parseFlag(v string) bool {
	switch strings.ToLower(v) {
	case "1", "true", "yes":
		return true
	}
	return false
}

func (s *Server) handleStream(w http.ResponseWriter, r *http.Request) {
	id := uuid.NewString()
	conn, err := s.upgrader.Upgrade(w, r, http.Header{HeaderSessionID: {id}})
	if err != nil {
		slog.Warn("server: upgrade failed", "remote", r.RemoteAddr, "err", err)
		return
	}
	defer conn.Close()
	log := slog.With("session", id, "remote", r.RemoteAddr)

	if !s.validKey(streamKey(r)) {
		log.Info("server: rejected stream credential")
		conn.SetWriteDeadline(time.Now().Add(writeTimeout))
		conn.WriteJSON(protocol.Error(protocol.ErrUnauthorized))
		conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(protocol.CloseUnauthorized, protocol.ErrUnauthorized),
			time.Now().Add(writeTimeout))
		return
	}

	q := r.URL.Query()
	cfg := s.cfg.recognizerConfig(q.Get("language"), q.Get("endpoint_id"))
	// A hijacked connection outlives the request context.
	ctx := context.WithoutCancel(r.Context())

	sess, err := s.engine.Open(ctx, cfg)
	if err != nil {
		log.Error("server: open recognition session", "err", err)
		conn.SetWriteDeadline(time.Now().Add(writeTimeout))
		conn.WriteJSON(protocol.Error(err.Error()))
		conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseInternalServerErr, "session failed"),
			time.Now().Add(writeTimeout))
		return
	}

	st := &stream{
		id:        id,
		conn:      conn,
		sess:      sess,
		normalize: parseFlag(q.Get("normalize")),
		out:       buffer.NewQueue[protocol.Message](s.cfg.OutboundQueue),
		log:       log,
		archive:   s.archive,
		maxAudio:  s.cfg.MaxArchiveBytes,
	}
	if s.transcripts != nil {
		st.transcript, err = s.transcripts.Begin(ctx, id, r.RemoteAddr)
		if err != nil {
			log.Warn("server: transcript disabled for session", "err", err)
		}
	}
	log.Info("server: stream started", "language", cfg.Language, "profile", cfg.Profile, "normalize", st.normalize)
	st.run(ctx)
	log.Info("server: stream ended", "audio", pcm.L16Mono16K.Duration(st.received), "dropped_partials", st.out.Dropped())
}

// stream is one websocket connection bound to one recognition session.
//
// The socket has one reader (readLoop) and one writer (writeLoop). The five
// engine event classes each have a fan-in goroutine that turns events into
// messages on the outbound queue, so messages of one class keep their order
// while different classes interleave.
type stream struct {
	id        string
	conn      *websocket.Conn
	sess      recognizer.Session
	normalize bool
	out       *buffer.Queue[protocol.Message]
	log       *slog.Logger

	transcript *transcript.Writer
	archive    storage.Archive
	maxAudio   int
	audio      bytes.Buffer
	received   int64
}

func (st *stream) run(ctx context.Context) {
	// Ready goes first; nothing else can be queued before the fan-ins start.
	st.out.TryPush(protocol.Ready())

	writerDone := make(chan struct{})
	go func() {
		defer close(writerDone)
		st.writeLoop(ctx)
	}()

	fanCtx, cancelFan := context.WithCancel(ctx)
	var wg sync.WaitGroup
	ev := st.sess.Events()
	wg.Go(func() {
		fanIn(fanCtx, ev.Recognizing, func(r recognizer.Result) protocol.Message {
			return protocol.Partial(r.Text)
		}, st.send)
	})
	wg.Go(func() {
		fanIn(fanCtx, ev.Recognized, func(r recognizer.Result) protocol.Message {
			return protocol.Final(r.Text, r.Raw)
		}, st.send)
	})
	wg.Go(func() { fanIn(fanCtx, ev.Canceled, canceledMessage, st.send) })
	wg.Go(func() {
		fanIn(fanCtx, ev.SessionStarted, func(struct{}) protocol.Message {
			return protocol.Session(protocol.EventStarted)
		}, st.send)
	})
	wg.Go(func() {
		fanIn(fanCtx, ev.SessionStopped, func(struct{}) protocol.Message {
			return protocol.Session(protocol.EventStopped)
		}, st.send)
	})

	st.readLoop(fanCtx)

	// End of stream first, so the engine can flush, then stop the session.
	if err := st.sess.CloseAudio(); err != nil {
		st.log.Debug("server: close audio", "err", err)
	}
	stopCtx, cancel := context.WithTimeout(ctx, stopTimeout)
	if err := st.sess.Stop(stopCtx); err != nil {
		st.log.Warn("server: stop recognition session", "err", err)
	}
	cancel()
	cancelFan()
	wg.Wait()
	st.out.CloseWrite()
	<-writerDone
	st.finish(ctx)
}

// canceledMessage maps a cancellation to a message. End of stream is a
// normal session end, not an error.
func canceledMessage(c recognizer.Canceled) protocol.Message {
	if c.Reason == recognizer.EndOfStream {
		return protocol.Session(protocol.EventStopped)
	}
	return protocol.Canceled(c.Reason.String(), c.Detail)
}

// fanIn drains one event class until ctx is done or emit fails.
func fanIn[T any](ctx context.Context, ch <-chan T, toMessage func(T) protocol.Message, emit func(context.Context, protocol.Message) error) {
	for {
		select {
		case <-ctx.Done():
			return
		case v := <-ch:
			if err := emit(ctx, toMessage(v)); err != nil {
				return
			}
		}
	}
}

// send queues a message for the writer. Partials are dropped when the queue
// is full; every other message waits for room.
func (st *stream) send(ctx context.Context, m protocol.Message) error {
	if m.Type == protocol.TypePartial {
		if !st.out.TryPush(m) {
			st.log.Debug("server: outbound queue full, partial dropped")
		}
		return nil
	}
	return st.out.Push(ctx, m)
}

func (st *stream) writeLoop(ctx context.Context) {
	for {
		m, err := st.out.Pop(ctx)
		if err != nil {
			if !errors.Is(err, buffer.ErrIteratorDone) {
				st.log.Debug("server: writer stopped", "err", err)
			}
			return
		}
		st.conn.SetWriteDeadline(time.Now().Add(writeTimeout))
		if err := st.conn.WriteJSON(m); err != nil {
			st.log.Info("server: write failed, closing stream", "err", err)
			st.out.CloseWithError(err)
			// Unblocks readLoop.
			st.conn.Close()
			return
		}
		st.record(ctx, m)
	}
}

// readLoop routes inbound frames until the peer disconnects: binary frames
// are audio for the engine and text frames are control messages.
func (st *stream) readLoop(ctx context.Context) {
	for {
		mt, data, err := st.conn.ReadMessage()
		if err != nil {
			if !websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway, websocket.CloseNoStatusReceived) {
				st.log.Debug("server: read ended", "err", err)
			}
			return
		}
		switch mt {
		case websocket.TextMessage:
			c, err := protocol.ParseControl(data)
			if err != nil {
				st.log.Debug("server: ignoring malformed control message", "err", err)
				continue
			}
			if c.Event == protocol.EventStop {
				// The recognition session keeps running.
				if err := st.send(ctx, protocol.Info(protocol.EventStopAck)); err != nil {
					return
				}
			}
		case websocket.BinaryMessage:
			if len(data) == 0 {
				continue
			}
			if st.normalize {
				data = pcm.Normalize(data)
			}
			st.keepAudio(data)
			if err := st.sess.Write(data); err != nil {
				st.log.Debug("server: engine rejected audio", "err", err)
			}
		}
	}
}

func (st *stream) keepAudio(data []byte) {
	st.received += int64(len(data))
	if st.archive == nil || st.audio.Len()+len(data) > st.maxAudio {
		return
	}
	st.audio.Write(data)
}

func (st *stream) record(ctx context.Context, m protocol.Message) {
	if st.transcript == nil || m.Type == protocol.TypeReady {
		return
	}
	detail := m.Event
	if m.Error != "" {
		detail = m.Error
	}
	if _, err := st.transcript.Append(ctx, transcript.Kind(m.Type), m.TextValue(), detail); err != nil {
		st.log.Warn("server: transcript append", "err", err)
	}
}

// finish archives the session audio and closes the transcript.
func (st *stream) finish(ctx context.Context) {
	var path string
	if st.archive != nil && st.audio.Len() > 0 {
		path = storage.SessionPath(st.id)
		wav := pcm.L16Mono16K.EncodeWAV(st.audio.Bytes())
		if err := st.archive.Put(ctx, path, wav, "audio/wav"); err != nil {
			st.log.Warn("server: archive session audio", "err", err)
			path = ""
		}
	}
	if st.transcript != nil {
		if err := st.transcript.End(ctx, path, st.received); err != nil {
			st.log.Warn("server: close transcript", "err", err)
		}
	}
}
