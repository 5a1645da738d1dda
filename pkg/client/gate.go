package client

import (
	"context"
	"log/slog"
	"sync/atomic"

	"github.com/haivivi/voicegate/pkg/audio/pcm"
	"github.com/haivivi/voicegate/pkg/protocol"
	"github.com/haivivi/voicegate/pkg/wakeword"
)

// State is the gate's recording state.
type State int

const (
	Idle State = iota
	Recording
)

func (s State) String() string {
	switch s {
	case Idle:
		return "idle"
	case Recording:
		return "recording"
	default:
		return "unknown"
	}
}

// Forwarder receives the frames and control events the gate lets through.
// Both methods must not block.
type Forwarder interface {
	Forward(frame []byte) bool
	Control(c protocol.Control) bool
}

type command int

const (
	cmdStart command = iota
	cmdCancel
	cmdEndOfUtterance
	cmdState
)

type gateCmd struct {
	op    command
	reply chan State
}

// Gate owns the client's Idle/Recording state. Captured audio and state
// requests reach it only through channels; the state itself is touched by
// the Run goroutine alone.
type Gate struct {
	// OnChange, when set, is called from the Run goroutine on every
	// transition.
	OnChange func(from, to State)

	det    wakeword.Detector
	out    Forwarder
	framer *pcm.Framer
	audio  chan []byte
	cmds   chan gateCmd

	state     State
	endSignal bool

	dropped     atomic.Int64
	sendDropped atomic.Int64
	forwarded   atomic.Int64
}

// dropLogEvery rate-limits drop warnings: the first drop and every
// dropLogEvery-th after it are logged.
const dropLogEvery = 50

func logDrop(n int64) bool { return n == 1 || n%dropLogEvery == 0 }

// NewGate returns a gate that frames audio by the detector's frame length
// and forwards recorded frames to out. queue bounds the captured audio
// waiting to be processed.
func NewGate(det wakeword.Detector, out Forwarder, queue int) *Gate {
	if queue <= 0 {
		queue = DefaultQueueSize
	}
	return &Gate{
		det:    det,
		out:    out,
		framer: pcm.NewFramer(det.FrameLength()),
		audio:  make(chan []byte, queue),
		cmds:   make(chan gateCmd, 16),
	}
}

// Feed queues captured audio without blocking. It reports false and counts
// the chunk as dropped when the queue is full. Feed is safe to call from the
// audio device callback.
func (g *Gate) Feed(chunk []byte) bool {
	select {
	case g.audio <- chunk:
		return true
	default:
		if n := g.dropped.Add(1); logDrop(n) {
			slog.Warn("client: capture queue full, chunk dropped", "dropped", n)
		}
		return false
	}
}

// Start requests Idle to Recording without a wake word.
func (g *Gate) Start() { g.send(cmdStart) }

// Cancel forces the gate to Idle and emits a stop event.
func (g *Gate) Cancel() { g.send(cmdCancel) }

// EndOfUtterance signals that the server finalized the current utterance.
// The gate returns to Idle after forwarding its next frame.
func (g *Gate) EndOfUtterance() { g.send(cmdEndOfUtterance) }

func (g *Gate) send(op command) {
	select {
	case g.cmds <- gateCmd{op: op}:
	default:
		slog.Warn("client: gate command dropped", "op", int(op))
	}
}

// State returns the current state as seen by the Run goroutine.
func (g *Gate) State(ctx context.Context) (State, error) {
	reply := make(chan State, 1)
	select {
	case g.cmds <- gateCmd{op: cmdState, reply: reply}:
	case <-ctx.Done():
		return Idle, ctx.Err()
	}
	select {
	case s := <-reply:
		return s, nil
	case <-ctx.Done():
		return Idle, ctx.Err()
	}
}

// Dropped returns how many captured chunks Feed rejected.
func (g *Gate) Dropped() int64 { return g.dropped.Load() }

// Forwarded returns how many frames were handed to the forwarder.
func (g *Gate) Forwarded() int64 { return g.forwarded.Load() }

// Run processes audio and commands until ctx is done.
func (g *Gate) Run(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case c := <-g.cmds:
			g.handle(c)
		case chunk := <-g.audio:
			g.process(chunk)
		}
	}
}

func (g *Gate) process(chunk []byte) {
	// Commands queued before this chunk arrived apply to it.
	g.drainCommands()
	for _, f := range g.framer.Feed(chunk) {
		g.frame(f)
	}
}

func (g *Gate) drainCommands() {
	for {
		select {
		case c := <-g.cmds:
			g.handle(c)
		default:
			return
		}
	}
}

func (g *Gate) handle(c gateCmd) {
	switch c.op {
	case cmdStart:
		if g.state == Idle {
			g.setState(Recording)
		}
	case cmdCancel:
		g.setState(Idle)
		if !g.out.Control(protocol.Stop()) {
			slog.Warn("client: stop event not queued")
		}
	case cmdEndOfUtterance:
		if g.state == Recording {
			g.endSignal = true
		}
	case cmdState:
		c.reply <- g.state
	}
}

func (g *Gate) frame(f []byte) {
	switch g.state {
	case Idle:
		idx, err := g.det.Process(pcm.Int16s(f))
		if err != nil {
			slog.Warn("client: wake word detector failed", "err", err)
			return
		}
		if idx >= 0 {
			slog.Info("client: wake word detected", "keyword", idx)
			g.setState(Recording)
		}
	case Recording:
		if g.out.Forward(f) {
			g.forwarded.Add(1)
		} else if n := g.sendDropped.Add(1); logDrop(n) {
			slog.Warn("client: send queue full, frame dropped", "dropped", n)
		}
		if g.endSignal {
			g.setState(Idle)
		}
	}
}

func (g *Gate) setState(s State) {
	g.endSignal = false
	if s == g.state {
		return
	}
	from := g.state
	g.state = s
	if g.OnChange != nil {
		g.OnChange(from, s)
	}
}
