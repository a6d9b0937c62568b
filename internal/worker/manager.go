package worker

import (
	"context"
	"errors"
	"io"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"storyforge/internal/models"
	"storyforge/internal/state"
)

// GenerationService is the remote text, image and speech capability.
type GenerationService interface {
	ListModels(ctx context.Context) ([]models.ModelInfo, error)
	Generate(ctx context.Context, req models.GenerateRequest) (*models.GenerateResult, error)
	Stream(ctx context.Context, req models.GenerateRequest) (io.ReadCloser, error)
	Illustrate(ctx context.Context, scene, style string) (*models.IllustrationResult, error)
	Narrate(ctx context.Context, text, voice string) (*models.NarrationResult, error)
}

// StoryStore persists stories. Get reports an unknown id with
// models.ErrStoryNotFound.
type StoryStore interface {
	Save(ctx context.Context, story *models.Story) (int64, error)
	History(ctx context.Context) ([]models.StorySummary, error)
	Get(ctx context.Context, id int64) (*models.Story, error)
	Delete(ctx context.Context, id int64) (bool, error)
}

type DispatcherConfig struct {
	MinWorkers  int
	MaxWorkers  int
	IdleTimeout time.Duration
	Defaults    state.Defaults
	Logger      *zerolog.Logger
}

const untitledStory = "Untitled Story"

// Manager orchestrates one generation session: it owns the dispatcher,
// the stream manager and the worker pool that runs capability calls.
type Manager struct {
	gen        GenerationService
	store      StoryStore
	dispatcher *Dispatcher
	streams    *StreamManager
	pool       *jobChannelPool
	now        func() time.Time
	log        zerolog.Logger
}

func NewManager(gen GenerationService, store StoryStore, cfg DispatcherConfig) *Manager {
	id := uuid.NewString()
	base := zerolog.Nop()
	if cfg.Logger != nil {
		base = *cfg.Logger
	}
	base = base.With().Str("manager", id).Logger()
	if cfg.MinWorkers <= 0 {
		cfg.MinWorkers = defaultMinWorkers
	}

	m := &Manager{
		gen:   gen,
		store: store,
		now:   utcNow,
		log:   base.With().Str("component", "manager").Logger(),
	}
	m.pool = newJobChannelPool(cfg.MinWorkers, cfg.MaxWorkers, cfg.IdleTimeout, base.With().Str("component", "pool").Logger())
	// warm up MinWorkers workers
	for i := 0; i < cfg.MinWorkers; i++ {
		m.pool.spawnWorker()
	}
	m.dispatcher = NewDispatcher(state.New(cfg.Defaults), m.handle, base.With().Str("component", "dispatcher").Logger())
	m.streams = NewStreamManager(m.dispatcher.Enqueue, m.pool.submit, m.dispatcher.Track, base.With().Str("component", "stream").Logger())
	m.streams.now = m.now
	return m
}

func (m *Manager) LoadModels() error { return m.enqueue(state.LoadModels{Phase: state.Start}) }

func (m *Manager) SelectModel(id string) error { return m.enqueue(state.SelectModel{ID: id}) }

func (m *Manager) SelectGenre(genre string) error { return m.enqueue(state.SelectGenre{Genre: genre}) }

func (m *Manager) SelectVoice(voice string) error { return m.enqueue(state.SelectVoice{Voice: voice}) }

func (m *Manager) SelectImageStyle(style string) error {
	return m.enqueue(state.SelectImageStyle{Style: style})
}

// GenerateStory requests one blocking continuation of the story.
func (m *Manager) GenerateStory(prompt string) error {
	return m.enqueue(state.GenerateStory{Phase: state.Start, Prompt: prompt, At: m.now()})
}

// StartStream requests a token-streamed continuation, superseding any
// stream in progress.
func (m *Manager) StartStream(prompt string) error {
	return m.enqueue(state.StartStream{Prompt: prompt, At: m.now()})
}

// FinalizeStream flushes the active stream as if it had completed.
func (m *Manager) FinalizeStream() error {
	return m.enqueue(finalizeStream{})
}

// GenerateIllustration illustrates scene, or the latest story passage
// when scene is empty.
func (m *Manager) GenerateIllustration(scene string) error {
	return m.enqueue(state.GenerateIllustration{Phase: state.Start, Scene: scene})
}

// GenerateNarration narrates text, or the whole story when text is empty.
func (m *Manager) GenerateNarration(text string) error {
	return m.enqueue(state.GenerateNarration{Phase: state.Start, Text: text})
}

// SaveStory persists the assistant turns of the conversation.
func (m *Manager) SaveStory(title string) error {
	return m.enqueue(state.SaveStory{Phase: state.Start, Title: title})
}

func (m *Manager) LoadHistory() error { return m.enqueue(state.LoadHistory{Phase: state.Start}) }

func (m *Manager) LoadStory(id int64) error {
	return m.enqueue(state.LoadStory{Phase: state.Start, ID: id})
}

func (m *Manager) DeleteStory(id int64) error { return m.enqueue(state.DeleteStory{ID: id}) }

func (m *Manager) ClearConversation() error { return m.enqueue(state.ClearConversation{}) }

func (m *Manager) NewStory() error { return m.enqueue(state.NewStory{}) }

// Snapshot returns the latest state.
func (m *Manager) Snapshot() state.Snapshot { return m.dispatcher.Snapshot() }

// Subscribe registers fn for every published snapshot.
func (m *Manager) Subscribe(fn func(state.Snapshot)) func() { return m.dispatcher.Subscribe(fn) }

// Settle waits until every queued intent has been applied and no
// capability call is in flight.
func (m *Manager) Settle(ctx context.Context) error { return m.dispatcher.WaitIdle(ctx) }

// Close cancels the active stream without finalizing it and stops the
// pool and the dispatcher. Queued calls never start and results of calls
// still in flight are dropped.
func (m *Manager) Close() {
	m.streams.Close()
	m.pool.Close()
	m.dispatcher.Close()
	m.log.Debug().Msg("closed")
}

func (m *Manager) enqueue(in state.Intent) error {
	return m.dispatcher.Enqueue(in)
}

// finalizeStream resolves to CompleteStream of whatever session is
// current when it reaches the head of the queue.
type finalizeStream struct{}

func (finalizeStream) Name() string { return "finalize_stream" }

// handle runs on the dispatcher goroutine after each transition.
func (m *Manager) handle(in state.Intent, prev, next state.Snapshot) {
	if prev.StreamSession != 0 && prev.StreamSession != next.StreamSession {
		m.streams.Stop(prev.StreamSession)
	}

	switch in := in.(type) {
	case finalizeStream:
		if next.StreamSession != 0 {
			m.enqueue(state.CompleteStream{Session: next.StreamSession, At: m.now()})
		}

	case state.LoadModels:
		if in.Phase == state.Start {
			m.loadModels()
		}
	case state.NewStory:
		m.loadModels()

	case state.GenerateStory:
		if in.Phase == state.Start {
			m.generate(m.request(in.Prompt, prev))
		}

	case state.StartStream:
		req := m.request(in.Prompt, prev)
		m.streams.Start(next.StreamSession, func(ctx context.Context) (io.ReadCloser, error) {
			return m.gen.Stream(ctx, req)
		})

	case state.GenerateIllustration:
		if in.Phase == state.Start {
			scene := in.Scene
			if strings.TrimSpace(scene) == "" {
				scene = latestPassage(prev)
			}
			m.illustrate(scene, prev.ImageStyle)
		}

	case state.GenerateNarration:
		if in.Phase == state.Start {
			text := in.Text
			if strings.TrimSpace(text) == "" {
				text = prev.StoryContent()
			}
			m.narrate(text, prev.Voice)
		}

	case state.SaveStory:
		switch in.Phase {
		case state.Start:
			title := strings.TrimSpace(in.Title)
			if title == "" {
				title = untitledStory
			}
			m.save(&models.Story{
				Title:     title,
				Content:   prev.StoryContent(),
				Genre:     prev.Genre,
				ModelUsed: prev.SelectedModel,
			})
		case state.Succeeded:
			m.enqueue(state.LoadHistory{Phase: state.Start})
		}

	case state.LoadHistory:
		if in.Phase == state.Start {
			m.history()
		}

	case state.LoadStory:
		if in.Phase == state.Start {
			m.loadStory(in.ID)
		}

	case state.DeleteStory:
		m.deleteStory(in.ID)
	}
}

func (m *Manager) request(prompt string, s state.Snapshot) models.GenerateRequest {
	return models.GenerateRequest{
		Prompt:  prompt,
		History: s.Messages,
		Model:   s.SelectedModel,
		Genre:   s.Genre,
	}
}

// async runs call on the pool. call reports its outcome as an intent.
func (m *Manager) async(op string, call func(ctx context.Context) state.Intent) {
	end := m.dispatcher.Track()
	err := m.pool.submit(func() {
		defer end()
		started := time.Now()
		out := call(context.Background())
		m.log.Debug().Str("op", op).Str("result", out.Name()).Dur("took", time.Since(started)).Msg("call finished")
		if err := m.dispatcher.Enqueue(out); err != nil {
			m.log.Debug().Err(err).Str("op", op).Msg("result dropped")
		}
	})
	switch {
	case errors.Is(err, ErrPoolClosed):
		end()
		m.log.Debug().Str("op", op).Msg("call not started, closing")
	case err != nil:
		end()
		m.log.Warn().Err(err).Str("op", op).Msg("call not started")
	}
}

func (m *Manager) loadModels() {
	m.async("list_models", func(ctx context.Context) state.Intent {
		list, err := m.gen.ListModels(ctx)
		if err != nil {
			return state.LoadModels{Phase: state.Failed, Err: err.Error()}
		}
		return state.LoadModels{Phase: state.Succeeded, Models: list}
	})
}

func (m *Manager) generate(req models.GenerateRequest) {
	m.async("generate", func(ctx context.Context) state.Intent {
		res, err := m.gen.Generate(ctx, req)
		if err != nil {
			return state.GenerateStory{Phase: state.Failed, Err: err.Error()}
		}
		if !res.Success {
			return state.GenerateStory{Phase: state.Failed, Err: deref(res.Error)}
		}
		return state.GenerateStory{Phase: state.Succeeded, Content: deref(res.Content), At: m.now()}
	})
}

func (m *Manager) illustrate(scene, style string) {
	m.async("illustrate", func(ctx context.Context) state.Intent {
		res, err := m.gen.Illustrate(ctx, scene, style)
		if err != nil {
			return state.GenerateIllustration{Phase: state.Failed, Err: err.Error()}
		}
		if !res.Success {
			return state.GenerateIllustration{Phase: state.Failed, Err: deref(res.Error)}
		}
		if res.ImageBase64 == nil || *res.ImageBase64 == "" {
			return state.GenerateIllustration{Phase: state.Failed, Err: "no image returned"}
		}
		return state.GenerateIllustration{Phase: state.Succeeded, ImageRef: *res.ImageBase64}
	})
}

func (m *Manager) narrate(text, voice string) {
	m.async("narrate", func(ctx context.Context) state.Intent {
		res, err := m.gen.Narrate(ctx, text, voice)
		if err != nil {
			return state.GenerateNarration{Phase: state.Failed, Err: err.Error()}
		}
		if res.AudioBase64 == "" {
			return state.GenerateNarration{Phase: state.Failed, Err: "no audio returned"}
		}
		return state.GenerateNarration{Phase: state.Succeeded, AudioRef: res.AudioBase64}
	})
}

func (m *Manager) save(story *models.Story) {
	m.async("save", func(ctx context.Context) state.Intent {
		id, err := m.store.Save(ctx, story)
		if err != nil {
			return state.SaveStory{Phase: state.Failed, Err: err.Error()}
		}
		return state.SaveStory{Phase: state.Succeeded, ID: id}
	})
}

func (m *Manager) history() {
	m.async("history", func(ctx context.Context) state.Intent {
		list, err := m.store.History(ctx)
		if err != nil {
			return state.LoadHistory{Phase: state.Failed, Err: err.Error()}
		}
		return state.LoadHistory{Phase: state.Succeeded, Stories: list}
	})
}

func (m *Manager) loadStory(id int64) {
	m.async("get_story", func(ctx context.Context) state.Intent {
		story, err := m.store.Get(ctx, id)
		if errors.Is(err, models.ErrStoryNotFound) {
			return state.LoadStory{Phase: state.Failed, ID: id, Err: "Story not found"}
		}
		if err != nil {
			return state.LoadStory{Phase: state.Failed, ID: id, Err: err.Error()}
		}
		return state.LoadStory{Phase: state.Succeeded, ID: id, Story: story, At: m.now()}
	})
}

func (m *Manager) deleteStory(id int64) {
	m.async("delete_story", func(ctx context.Context) state.Intent {
		ok, err := m.store.Delete(ctx, id)
		switch {
		case err != nil:
			m.log.Warn().Err(err).Int64("story", id).Msg("delete failed")
		case !ok:
			m.log.Info().Int64("story", id).Msg("delete: no such story")
		}
		return state.LoadHistory{Phase: state.Start}
	})
}

// latestPassage is the last assistant turn, or the last message at all.
func latestPassage(s state.Snapshot) string {
	for i := len(s.Messages) - 1; i >= 0; i-- {
		if s.Messages[i].Role == models.RoleAssistant && s.Messages[i].Content != "" {
			return s.Messages[i].Content
		}
	}
	if last, ok := s.LastMessage(); ok {
		return last.Content
	}
	return ""
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
