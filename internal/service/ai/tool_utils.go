package ai

import (
	"context"
	"errors"
	"slices"
	"sync"
	"time"
)

const (
	ToolCallLimit  = 6
	ToolCallWindow = time.Minute
)

var errToolBudget = errors.New("tool call limit exceeded for this generation, continue without tools")

type toolRunContextKey struct{}

// toolRun collects the tools invoked during one generation.
type toolRun struct {
	id      string
	limiter *toolRateLimiter

	mu   sync.Mutex
	used []string
}

type toolRateLimiter struct {
	limit  int
	window time.Duration
	mu     sync.Mutex
	hits   map[string][]time.Time
}

func newToolRateLimiter(limit int, window time.Duration) *toolRateLimiter {
	return &toolRateLimiter{limit: limit, window: window, hits: make(map[string][]time.Time)}
}

func (l *toolRateLimiter) Allow(key string) bool {
	now := time.Now()
	l.mu.Lock()
	defer l.mu.Unlock()
	queue := l.hits[key]
	cutoff := now.Add(-l.window)
	idx := 0
	for _, t := range queue {
		if t.After(cutoff) {
			break
		}
		idx++
	}
	if idx > 0 {
		queue = queue[idx:]
	}
	if len(queue) >= l.limit {
		l.hits[key] = queue
		return false
	}
	queue = append(queue, now)
	l.hits[key] = queue
	return true
}

// Forget drops the history of key.
func (l *toolRateLimiter) Forget(key string) {
	l.mu.Lock()
	delete(l.hits, key)
	l.mu.Unlock()
}

// withToolRun attaches a fresh tool run to ctx.
func withToolRun(ctx context.Context, id string, limiter *toolRateLimiter) (context.Context, *toolRun) {
	run := &toolRun{id: id, limiter: limiter}
	return context.WithValue(ctx, toolRunContextKey{}, run), run
}

func toolRunFromContext(ctx context.Context) *toolRun {
	run, _ := ctx.Value(toolRunContextKey{}).(*toolRun)
	return run
}

// allowTool records name against the run in ctx and enforces its budget.
// Calls outside a generation are always allowed.
func allowTool(ctx context.Context, name string) error {
	run := toolRunFromContext(ctx)
	if run == nil {
		return nil
	}
	if run.limiter != nil && !run.limiter.Allow(run.id) {
		return errToolBudget
	}
	run.mu.Lock()
	run.used = append(run.used, name)
	run.mu.Unlock()
	return nil
}

// Used lists the distinct tools in first-call order.
func (r *toolRun) Used() []string {
	if r == nil {
		return nil
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []string
	for _, name := range r.used {
		if !slices.Contains(out, name) {
			out = append(out, name)
		}
	}
	return out
}

func (r *toolRun) close() {
	if r != nil && r.limiter != nil {
		r.limiter.Forget(r.id)
	}
}

func sortedKeys(m map[string][]string) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	slices.Sort(keys)
	return keys
}
