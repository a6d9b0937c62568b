package worker

import (
	"context"
	"io"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"storyforge/internal/sse"
	"storyforge/internal/state"
)

func utcNow() time.Time { return time.Now().UTC() }

// Opener issues the streaming call and returns the raw event stream.
type Opener func(ctx context.Context) (io.ReadCloser, error)

// StreamManager owns at most one live streaming subscription.
type StreamManager struct {
	mu     sync.Mutex
	active *streamHandle
	closed bool

	enqueue func(state.Intent) error
	spawn   func(func()) error
	track   func() func()
	now     func() time.Time
	log     zerolog.Logger
}

type streamHandle struct {
	session   uint64
	traceID   string
	cancel    context.CancelFunc
	end       func()
	done      chan struct{}
	finalized atomic.Bool
	run       atomic.Int32
}

// consumer lifecycle, held in streamHandle.run
const (
	consumerQueued int32 = iota
	consumerRunning
	consumerDropped
)

// NewStreamManager wires the manager to the queue it reports into. spawn
// runs the consumer asynchronously; track marks it in flight.
func NewStreamManager(enqueue func(state.Intent) error, spawn func(func()) error, track func() func(), log zerolog.Logger) *StreamManager {
	if track == nil {
		track = func() func() { return func() {} }
	}
	return &StreamManager{enqueue: enqueue, spawn: spawn, track: track, now: utcNow, log: log}
}

// Start cancels any active subscription, waits for it to wind down, then
// opens session. Deltas of a superseded session are never enqueued after
// Start returns.
func (m *StreamManager) Start(session uint64, open Opener) {
	m.cancelActive()

	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return
	}
	ctx, cancel := context.WithCancel(context.Background())
	h := &streamHandle{
		session: session,
		traceID: uuid.NewString(),
		cancel:  cancel,
		done:    make(chan struct{}),
	}
	m.active = h
	m.mu.Unlock()

	log := m.log.With().Uint64("session", session).Str("stream_id", h.traceID).Logger()
	log.Debug().Msg("stream open")

	h.end = sync.OnceFunc(m.track())
	err := m.spawn(func() {
		defer close(h.done)
		defer h.end()
		if !h.run.CompareAndSwap(consumerQueued, consumerRunning) {
			return
		}
		m.consume(ctx, h, open, log)
	})
	if err != nil {
		h.end()
		close(h.done)
		cancel()
		m.finalize(h, state.ErrorDuringStream{Session: session, Err: err.Error()})
	}
}

func (m *StreamManager) consume(ctx context.Context, h *streamHandle, open Opener, log zerolog.Logger) {
	defer h.cancel()

	body, err := open(ctx)
	if err != nil {
		if ctx.Err() != nil {
			return
		}
		log.Warn().Err(err).Msg("stream open failed")
		m.finalize(h, state.ErrorDuringStream{Session: h.session, Err: err.Error()})
		return
	}
	defer body.Close()
	// closing the body unblocks a read parked on the transport
	stop := context.AfterFunc(ctx, func() { body.Close() })
	defer stop()

	count := 0
	for delta, err := range sse.Deltas(body) {
		if ctx.Err() != nil {
			log.Debug().Int("deltas", count).Msg("stream cancelled")
			return
		}
		if err != nil {
			log.Warn().Err(err).Int("deltas", count).Msg("stream failed")
			m.finalize(h, state.ErrorDuringStream{Session: h.session, Err: err.Error()})
			return
		}
		count++
		if err := m.enqueue(state.AppendStreamDelta{Session: h.session, Text: delta}); err != nil {
			return
		}
	}
	if ctx.Err() != nil {
		log.Debug().Int("deltas", count).Msg("stream cancelled")
		return
	}
	log.Debug().Int("deltas", count).Msg("stream complete")
	m.finalize(h, state.CompleteStream{Session: h.session, At: m.now()})
}

// finalize emits the terminal intent of h at most once and clears the
// handle.
func (m *StreamManager) finalize(h *streamHandle, in state.Intent) {
	if !h.finalized.CompareAndSwap(false, true) {
		return
	}
	m.mu.Lock()
	if m.active == h {
		m.active = nil
	}
	m.mu.Unlock()
	if err := m.enqueue(in); err != nil {
		m.log.Debug().Err(err).Str("intent", in.Name()).Msg("finalize dropped")
	}
}

// Stop cancels session without emitting a terminal intent. It is a no-op
// when session is not the active one.
func (m *StreamManager) Stop(session uint64) {
	m.mu.Lock()
	h := m.active
	if h == nil || h.session != session {
		m.mu.Unlock()
		return
	}
	m.active = nil
	m.mu.Unlock()
	m.halt(h)
}

// Active reports the session of the live subscription, or zero.
func (m *StreamManager) Active() uint64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.active == nil {
		return 0
	}
	return m.active.session
}

// Close cancels the active subscription without finalizing it; later
// Starts are ignored.
func (m *StreamManager) Close() {
	m.mu.Lock()
	m.closed = true
	m.mu.Unlock()
	m.cancelActive()
}

func (m *StreamManager) cancelActive() {
	m.mu.Lock()
	h := m.active
	m.active = nil
	m.mu.Unlock()
	if h != nil {
		m.halt(h)
	}
}

func (m *StreamManager) halt(h *streamHandle) {
	// a cancelled stream never finalizes
	h.finalized.Store(true)
	h.cancel()
	// a consumer still waiting for a worker is dropped, not awaited
	if h.run.CompareAndSwap(consumerQueued, consumerDropped) {
		h.end()
		m.log.Debug().Uint64("session", h.session).Str("stream_id", h.traceID).Msg("stream dropped before start")
		return
	}
	<-h.done
	m.log.Debug().Uint64("session", h.session).Str("stream_id", h.traceID).Msg("stream closed")
}
