package worker

import (
	"context"
	"errors"
	"sync"

	"github.com/rs/zerolog"

	"storyforge/internal/state"
)

// ErrDispatcherClosed is returned by Enqueue after Close.
var ErrDispatcherClosed = errors.New("dispatcher closed")

// Handler runs on the dispatcher goroutine after an intent has been
// applied. It must not block on the dispatcher itself.
type Handler func(in state.Intent, prev, next state.Snapshot)

// Observer receives every published snapshot, in order.
type Observer func(state.Snapshot)

// Dispatcher is a single-writer FIFO: intents are reduced strictly in the
// order they were enqueued, on one goroutine.
type Dispatcher struct {
	mu        sync.Mutex
	cond      *sync.Cond
	queue     []state.Intent
	current   state.Snapshot
	handler   Handler
	observers map[int]Observer
	nextObs   int
	busy      bool
	inflight  int
	closed    bool

	wake chan struct{}
	done chan struct{}
	log  zerolog.Logger
}

func NewDispatcher(initial state.Snapshot, handler Handler, log zerolog.Logger) *Dispatcher {
	d := &Dispatcher{
		current:   initial,
		handler:   handler,
		observers: make(map[int]Observer),
		wake:      make(chan struct{}, 1),
		done:      make(chan struct{}),
		log:       log,
	}
	d.cond = sync.NewCond(&d.mu)
	go d.run()
	return d
}

// Enqueue appends an intent to the queue. It never blocks.
func (d *Dispatcher) Enqueue(in state.Intent) error {
	d.mu.Lock()
	if d.closed {
		d.mu.Unlock()
		return ErrDispatcherClosed
	}
	d.queue = append(d.queue, in)
	d.mu.Unlock()

	select {
	case d.wake <- struct{}{}:
	default:
	}
	return nil
}

func (d *Dispatcher) run() {
	defer close(d.done)
	for {
		in, ok := d.next()
		if !ok {
			return
		}
		if in == nil {
			<-d.wake
			continue
		}
		d.apply(in)
	}
}

// next pops the head of the queue. A nil intent means the queue is empty.
func (d *Dispatcher) next() (state.Intent, bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if len(d.queue) == 0 {
		d.busy = false
		d.cond.Broadcast()
		if d.closed {
			return nil, false
		}
		return nil, true
	}
	in := d.queue[0]
	d.queue[0] = nil
	d.queue = d.queue[1:]
	d.busy = true
	return in, true
}

func (d *Dispatcher) apply(in state.Intent) {
	d.mu.Lock()
	prev := d.current
	next := state.Reduce(prev, in)
	d.current = next
	observers := make([]Observer, 0, len(d.observers))
	for i := 0; i < d.nextObs; i++ {
		if obs, ok := d.observers[i]; ok {
			observers = append(observers, obs)
		}
	}
	d.mu.Unlock()

	d.log.Debug().
		Str("intent", in.Name()).
		Stringer("from", prev.Status).
		Stringer("to", next.Status).
		Msg("applied")

	if d.handler != nil {
		d.handler(in, prev, next)
	}
	for _, obs := range observers {
		obs(next.Clone())
	}
}

// Snapshot returns the latest published snapshot.
func (d *Dispatcher) Snapshot() state.Snapshot {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.current.Clone()
}

// Subscribe registers an observer and returns its cancel function.
func (d *Dispatcher) Subscribe(obs Observer) func() {
	d.mu.Lock()
	id := d.nextObs
	d.nextObs++
	d.observers[id] = obs
	d.mu.Unlock()
	return func() {
		d.mu.Lock()
		delete(d.observers, id)
		d.mu.Unlock()
	}
}

// Track marks one asynchronous call in flight; the returned func ends it.
// Calls that re-enter through Enqueue must do so before ending.
func (d *Dispatcher) Track() func() {
	d.mu.Lock()
	d.inflight++
	d.mu.Unlock()
	var once sync.Once
	return func() {
		once.Do(func() {
			d.mu.Lock()
			d.inflight--
			d.cond.Broadcast()
			d.mu.Unlock()
		})
	}
}

// WaitIdle blocks until the queue is drained and no tracked call is in
// flight.
func (d *Dispatcher) WaitIdle(ctx context.Context) error {
	stop := context.AfterFunc(ctx, func() {
		d.mu.Lock()
		d.cond.Broadcast()
		d.mu.Unlock()
	})
	defer stop()

	d.mu.Lock()
	defer d.mu.Unlock()
	for d.busy || len(d.queue) > 0 || d.inflight > 0 {
		if d.closed && len(d.queue) == 0 && !d.busy {
			return ErrDispatcherClosed
		}
		if err := ctx.Err(); err != nil {
			return err
		}
		d.cond.Wait()
	}
	return nil
}

// Close rejects further intents, lets the queued ones drain and waits for
// the dispatcher goroutine to exit.
func (d *Dispatcher) Close() {
	d.mu.Lock()
	if d.closed {
		d.mu.Unlock()
		<-d.done
		return
	}
	d.closed = true
	d.mu.Unlock()

	select {
	case d.wake <- struct{}{}:
	default:
	}
	<-d.done
}
