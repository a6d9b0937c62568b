package commands

import (
	"context"
	"encoding/base64"
	"fmt"
	"io"
	"os"
	"sync"

	"github.com/charmbracelet/lipgloss"
	"github.com/pkg/errors"
	"github.com/rs/zerolog"

	"storyforge/internal/client"
	"storyforge/internal/logging"
	"storyforge/internal/state"
	"storyforge/internal/worker"
)

var (
	primary = lipgloss.Color("#00ff9f")
	dim     = lipgloss.Color("#6e7681")
	danger  = lipgloss.Color("#ff5f5f")

	titleStyle = lipgloss.NewStyle().Bold(true).Foreground(primary)
	helpStyle  = lipgloss.NewStyle().Foreground(dim)
	errorStyle = lipgloss.NewStyle().Bold(true).Foreground(danger)
)

// session couples one orchestration manager with terminal output.
type session struct {
	mgr     *worker.Manager
	out     io.Writer
	opts    *options
	stream  *streamPrinter
	failure *failureWatch
	unwatch []func()
}

func (o *options) newSession(out io.Writer) *session {
	logger := zerolog.Nop()
	if o.verbose {
		logger = logging.SetupWriter(os.Stderr, "debug", "console")
	}
	c := client.New(o.server, client.WithTimeout(o.timeout))
	mgr := worker.NewManager(c, c, o.dispatcherConfig(&logger))
	s := &session{
		mgr:     mgr,
		out:     out,
		opts:    o,
		stream:  &streamPrinter{out: out},
		failure: &failureWatch{},
	}
	s.unwatch = []func(){
		mgr.Subscribe(s.stream.observe),
		mgr.Subscribe(s.failure.observe),
	}
	return s
}

func (o *options) dispatcherConfig(logger *zerolog.Logger) worker.DispatcherConfig {
	return worker.DispatcherConfig{
		MinWorkers:  o.minWorkers,
		MaxWorkers:  o.maxWorkers,
		IdleTimeout: o.workerIdle,
		Defaults: state.Defaults{
			Model:      o.model,
			Genre:      o.genre,
			Voice:      o.voice,
			ImageStyle: o.style,
		},
		Logger: logger,
	}
}

func (s *session) Close() {
	for _, stop := range s.unwatch {
		stop()
	}
	s.mgr.Close()
}

// do submits one intent and waits for the session to settle. Entering the
// error status while waiting is reported as an error.
func (s *session) do(ctx context.Context, submit func() error) (state.Snapshot, error) {
	s.failure.reset()
	if err := submit(); err != nil {
		return state.Snapshot{}, err
	}
	waitCtx, cancel := context.WithTimeout(ctx, s.opts.timeout)
	defer cancel()
	if err := s.mgr.Settle(waitCtx); err != nil {
		return s.mgr.Snapshot(), errors.Wrap(err, "wait for backend")
	}
	snap := s.mgr.Snapshot()
	if msg, failed := s.failure.take(); failed {
		return snap, errors.New(msg)
	}
	return snap, nil
}

// failureWatch records transitions into the error status. Selections keep
// an earlier error in place, so the final status alone is not enough.
type failureWatch struct {
	mu     sync.Mutex
	last   state.Status
	msg    string
	failed bool
}

func (w *failureWatch) observe(s state.Snapshot) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if s.Status == state.Error && w.last != state.Error {
		w.msg, w.failed = s.Error, true
	}
	w.last = s.Status
}

func (w *failureWatch) reset() {
	w.mu.Lock()
	w.msg, w.failed = "", false
	w.mu.Unlock()
}

func (w *failureWatch) take() (string, bool) {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.msg, w.failed
}

// streamStory runs a streamed continuation, echoing deltas as they arrive.
func (s *session) streamStory(ctx context.Context, prompt string) (state.Snapshot, error) {
	snap, err := s.do(ctx, func() error { return s.mgr.StartStream(prompt) })
	if s.stream.finish() {
		fmt.Fprintln(s.out)
	}
	return snap, err
}

// streamPrinter prints the growth of the streaming buffer.
type streamPrinter struct {
	mu      sync.Mutex
	out     io.Writer
	session uint64
	printed int
	wrote   bool
}

func (p *streamPrinter) observe(s state.Snapshot) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if s.StreamSession != p.session {
		p.session = s.StreamSession
		p.printed = 0
	}
	if s.StreamSession == 0 {
		return
	}
	if buf := s.StreamingBuffer; len(buf) > p.printed {
		fmt.Fprint(p.out, buf[p.printed:])
		p.printed = len(buf)
		p.wrote = true
	}
}

// finish reports whether anything was printed since the last call.
func (p *streamPrinter) finish() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	wrote := p.wrote
	p.wrote = false
	return wrote
}

// writeBase64 decodes payload into path.
func writeBase64(path, payload string) error {
	raw, err := base64.StdEncoding.DecodeString(payload)
	if err != nil {
		return errors.Wrap(err, "decode media")
	}
	if err := os.WriteFile(path, raw, 0o644); err != nil {
		return errors.Wrapf(err, "write %s", path)
	}
	return nil
}
