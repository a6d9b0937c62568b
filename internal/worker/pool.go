package worker

import (
	"errors"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

// ErrPoolClosed is returned when work is submitted after Close.
var ErrPoolClosed = errors.New("worker pool closed")

type workerMeta struct {
	id        int
	ch        chan Job
	lastUsed  time.Time
	enqueued  bool // is in the idle queue
	discarded bool // is targeted as delete
}

type jobChannelPool struct {
	mu       sync.Mutex
	idle     []*workerMeta
	backlog  []func()
	metadata map[chan Job]*workerMeta
	min      int
	max      int
	running  int
	nextID   int
	expiry   time.Duration
	closed   bool
	stop     chan struct{}
	log      zerolog.Logger
}

const (
	defaultWorkerIdle = 30 * time.Second
	defaultMinWorkers = 1
	defaultMaxWorkers = 8
)

func newJobChannelPool(minWorkers, maxWorkers int, idle time.Duration, log zerolog.Logger) *jobChannelPool {
	if idle <= 0 {
		idle = defaultWorkerIdle
	}
	if minWorkers < 0 {
		minWorkers = 0
	}
	if maxWorkers <= 0 {
		maxWorkers = defaultMaxWorkers
	}
	if maxWorkers < minWorkers {
		maxWorkers = minWorkers
	}
	p := &jobChannelPool{
		metadata: make(map[chan Job]*workerMeta),
		min:      minWorkers,
		max:      maxWorkers,
		expiry:   idle,
		stop:     make(chan struct{}),
		log:      log,
	}
	go p.purgeStaleWorkers()
	return p
}

// spawnWorker add a new worker, great for patch spawn
func (p *jobChannelPool) spawnWorker() {
	p.mu.Lock()
	if p.closed || p.running >= p.max {
		p.mu.Unlock()
		return
	}
	worker := p.newWorkerLocked()
	p.mu.Unlock()
	worker.Start()
}

func (p *jobChannelPool) newWorkerLocked() *Worker {
	p.nextID++
	worker := NewWorker(p.nextID, p)
	p.metadata[worker.jobChannel] = &workerMeta{id: p.nextID, ch: worker.jobChannel}
	p.running++
	return worker
}

// submit hands fn to an idle worker, or queues it in the backlog when
// every worker is busy. It never waits for a worker to free up.
func (p *jobChannelPool) submit(fn func()) error {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return ErrPoolClosed
	}
	// get an idle worker
	if meta := p.popIdleLocked(); meta != nil {
		p.mu.Unlock()
		p.log.Debug().Int("worker", meta.id).Msg("assign job")
		meta.ch <- Job{Type: Run, Fn: fn}
		return nil
	}
	p.backlog = append(p.backlog, fn)
	queued := len(p.backlog)
	var spawned *Worker
	// the new worker takes the backlog head on its first Release
	if p.running < p.max {
		spawned = p.newWorkerLocked()
	}
	p.mu.Unlock()

	if spawned != nil {
		spawned.Start()
		return nil
	}
	p.log.Debug().Int("backlog", queued).Msg("all workers busy, job queued")
	return nil
}

// Release is called by a worker between jobs. It returns the next queued
// job when there is one; otherwise the worker is parked as idle and must
// read its channel. ok is false when the worker should exit instead.
func (p *jobChannelPool) Release(ch chan Job) (next func(), ok bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	meta, found := p.metadata[ch]
	if !found || meta.discarded {
		return nil, false
	}
	if p.closed {
		meta.discarded = true
		return nil, false
	}
	if len(p.backlog) > 0 {
		next = p.backlog[0]
		p.backlog[0] = nil
		p.backlog = p.backlog[1:]
		return next, true
	}
	if !meta.enqueued {
		meta.enqueued = true
		meta.lastUsed = time.Now()
		p.idle = append(p.idle, meta)
	}
	return nil, true
}

// retire delete a worker
func (p *jobChannelPool) retire(ch chan Job) {
	p.mu.Lock()
	if meta, ok := p.metadata[ch]; ok {
		delete(p.metadata, ch)
		meta.discarded = true
		if p.running > 0 {
			p.running--
		}
	}
	p.mu.Unlock()
}

// popIdleLocked check if pool has an idle worker, then return
func (p *jobChannelPool) popIdleLocked() *workerMeta {
	for len(p.idle) > 0 {
		meta := p.idle[0]
		p.idle = p.idle[1:]
		if meta.discarded {
			continue
		}
		meta.enqueued = false
		return meta
	}
	return nil
}

// purgeStaleWorkers call shutdownExpired when expiry time comes
func (p *jobChannelPool) purgeStaleWorkers() {
	ticker := time.NewTicker(p.expiry)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			p.shutdownExpired()
		case <-p.stop:
			return
		}
	}
}

// shutdownExpired retire all the expired worker
func (p *jobChannelPool) shutdownExpired() {
	var stale []*workerMeta
	now := time.Now()

	p.mu.Lock()
	if len(p.idle) == 0 || p.running <= p.min {
		p.mu.Unlock()
		return
	}
	remaining := p.idle[:0] // keep the original array
	for _, meta := range p.idle {
		if meta.discarded {
			continue
		}
		if now.Sub(meta.lastUsed) >= p.expiry && p.running-len(stale) > p.min {
			meta.discarded = true
			meta.enqueued = false
			stale = append(stale, meta)
			continue
		}
		remaining = append(remaining, meta)
	}
	p.idle = remaining
	p.mu.Unlock()

	for _, meta := range stale {
		p.log.Debug().Int("worker", meta.id).Msg("retire idle worker")
		meta.ch <- Job{Type: Stop}
	}
}

// Close stops idle workers, drops the backlog and rejects new work. Busy
// workers stop once their current job returns.
func (p *jobChannelPool) Close() {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return
	}
	p.closed = true
	close(p.stop)
	idle := p.idle
	p.idle = nil
	for _, meta := range idle {
		meta.discarded = true
		meta.enqueued = false
	}
	dropped := len(p.backlog)
	p.backlog = nil
	p.mu.Unlock()

	if dropped > 0 {
		p.log.Debug().Int("jobs", dropped).Msg("backlog dropped")
	}

	for _, meta := range idle {
		meta.ch <- Job{Type: Stop}
	}
}

func (p *jobChannelPool) size() (running, idle int) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.running, len(p.idle)
}

func (p *jobChannelPool) pending() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.backlog)
}
