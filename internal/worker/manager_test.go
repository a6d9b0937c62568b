package worker

import (
	"context"
	"errors"
	"io"
	"strings"
	"sync"
	"testing"
	"testing/iotest"
	"time"

	"storyforge/internal/models"
	"storyforge/internal/sse"
	"storyforge/internal/state"
)

func TestManagerStreamCompletionFlush(t *testing.T) {
	gen := newFakeGen()
	gen.stream = func(ctx context.Context, req models.GenerateRequest) (io.ReadCloser, error) {
		return frames("once upon", " a time"), nil
	}
	manager := newTestManager(t, gen, newFakeStore())

	if err := manager.StartStream("go"); err != nil {
		t.Fatalf("StartStream error: %v", err)
	}
	settleManager(t, manager)

	snap := manager.Snapshot()
	if snap.Status != state.Success {
		t.Fatalf("expected success, got %s (%s)", snap.Status, snap.Error)
	}
	last, ok := snap.LastMessage()
	if !ok || last.Role != models.RoleAssistant || last.Content != "once upon a time" {
		t.Fatalf("unexpected last message: %#v", last)
	}
	if snap.StreamingBuffer != "" || snap.StreamSession != 0 {
		t.Fatalf("stream not released: %q %d", snap.StreamingBuffer, snap.StreamSession)
	}
	if got := gen.lastRequest(); got.Prompt != "go" || got.Model != state.DefaultModel || got.Genre != state.DefaultGenre {
		t.Fatalf("unexpected stream request: %#v", got)
	}
}

func TestManagerStreamErrorDiscardsBuffer(t *testing.T) {
	gen := newFakeGen()
	gen.stream = func(ctx context.Context, req models.GenerateRequest) (io.ReadCloser, error) {
		body := io.MultiReader(strings.NewReader(string(sse.Frame("partial"))), iotest.ErrReader(errors.New("boom")))
		return io.NopCloser(body), nil
	}
	manager := newTestManager(t, gen, newFakeStore())

	_ = manager.StartStream("x")
	settleManager(t, manager)

	snap := manager.Snapshot()
	if snap.Status != state.Error || snap.Error != "boom" {
		t.Fatalf("expected error boom, got %s %q", snap.Status, snap.Error)
	}
	if snap.StreamingBuffer != "" {
		t.Fatalf("buffer should be dropped, got %q", snap.StreamingBuffer)
	}
	for _, msg := range snap.Messages {
		if msg.Role == models.RoleAssistant {
			t.Fatalf("partial content must not become a message: %#v", msg)
		}
	}
}

func TestManagerStreamSupersede(t *testing.T) {
	gen := newFakeGen()
	firstBody, firstWriter := io.Pipe()
	var calls int
	gen.stream = func(ctx context.Context, req models.GenerateRequest) (io.ReadCloser, error) {
		calls++
		if calls == 1 {
			return firstBody, nil
		}
		return frames("b"), nil
	}
	manager := newTestManager(t, gen, newFakeStore())

	_ = manager.StartStream("first")
	if _, err := firstWriter.Write(sse.Frame("a1")); err != nil {
		t.Fatalf("write first delta: %v", err)
	}
	_ = manager.StartStream("second")
	settleManager(t, manager)

	// the first transport was torn down before the second call was issued
	if _, err := firstWriter.Write(sse.Frame("a2")); err == nil {
		t.Fatalf("superseded stream still readable")
	}

	snap := manager.Snapshot()
	if snap.Status != state.Success {
		t.Fatalf("expected success, got %s", snap.Status)
	}
	if len(snap.Messages) != 3 {
		t.Fatalf("expected 3 messages, got %#v", snap.Messages)
	}
	if snap.Messages[2].Content != "b" {
		t.Fatalf("expected second stream content, got %q", snap.Messages[2].Content)
	}
	for _, msg := range snap.Messages {
		if strings.Contains(msg.Content, "a1") || strings.Contains(msg.Content, "a2") {
			t.Fatalf("delta of superseded stream applied: %#v", msg)
		}
	}
}

func TestManagerFinalizeStreamIsIdempotent(t *testing.T) {
	gen := newFakeGen()
	body, writer := io.Pipe()
	gen.stream = func(ctx context.Context, req models.GenerateRequest) (io.ReadCloser, error) {
		return body, nil
	}
	manager := newTestManager(t, gen, newFakeStore())

	_ = manager.StartStream("go")
	if _, err := writer.Write(sse.Frame("partial")); err != nil {
		t.Fatalf("write delta: %v", err)
	}
	waitFor(t, manager, func(s state.Snapshot) bool { return s.StreamingBuffer == "partial" })

	_ = manager.FinalizeStream()
	_ = manager.FinalizeStream()
	settleManager(t, manager)

	snap := manager.Snapshot()
	assistant := 0
	for _, msg := range snap.Messages {
		if msg.Role == models.RoleAssistant {
			assistant++
		}
	}
	if assistant != 1 || snap.Messages[len(snap.Messages)-1].Content != "partial" {
		t.Fatalf("expected one flushed message, got %#v", snap.Messages)
	}
	if snap.Status != state.Success {
		t.Fatalf("expected success, got %s", snap.Status)
	}
	if _, err := writer.Write(sse.Frame("late")); err == nil {
		t.Fatalf("finalized stream should be closed")
	}
}

func TestManagerOtherOperationAbandonsStream(t *testing.T) {
	gen := newFakeGen()
	body, writer := io.Pipe()
	gen.stream = func(ctx context.Context, req models.GenerateRequest) (io.ReadCloser, error) {
		return body, nil
	}
	manager := newTestManager(t, gen, newFakeStore())

	_ = manager.StartStream("go")
	if _, err := writer.Write(sse.Frame("partial")); err != nil {
		t.Fatalf("write delta: %v", err)
	}
	_ = manager.GenerateIllustration("a castle")
	settleManager(t, manager)

	snap := manager.Snapshot()
	if snap.Status != state.Success || snap.ImageRef != "aW1n" {
		t.Fatalf("unexpected state: %s %q", snap.Status, snap.ImageRef)
	}
	if _, err := writer.Write(sse.Frame("late")); err == nil {
		t.Fatalf("abandoned stream should be closed")
	}
}

func TestManagerGenerateStory(t *testing.T) {
	gen := newFakeGen()
	manager := newTestManager(t, gen, newFakeStore())

	_ = manager.SelectGenre("horror")
	_ = manager.SelectModel("claude-3-haiku-20240307")
	_ = manager.GenerateStory("a haunted lighthouse")
	settleManager(t, manager)
	_ = manager.GenerateStory("continue")
	settleManager(t, manager)

	snap := manager.Snapshot()
	if snap.Status != state.Success || len(snap.Messages) != 4 {
		t.Fatalf("unexpected state: %s %#v", snap.Status, snap.Messages)
	}
	req := gen.lastRequest()
	if req.Genre != "horror" || req.Model != "claude-3-haiku-20240307" {
		t.Fatalf("selection not forwarded: %#v", req)
	}
	if len(req.History) != 2 || req.History[1].Content != "story: a haunted lighthouse" {
		t.Fatalf("history should hold prior turns only: %#v", req.History)
	}
}

func TestManagerGenerateRemoteFailure(t *testing.T) {
	gen := newFakeGen()
	gen.generate = func(req models.GenerateRequest) (*models.GenerateResult, error) {
		return &models.GenerateResult{Success: false, Error: models.StringPtr("rate limit exceeded"), Model: req.Model}, nil
	}
	manager := newTestManager(t, gen, newFakeStore())

	_ = manager.GenerateStory("hi")
	settleManager(t, manager)

	snap := manager.Snapshot()
	if snap.Status != state.Error || snap.Error != "rate limit exceeded" {
		t.Fatalf("expected remote error, got %s %q", snap.Status, snap.Error)
	}
	if len(snap.Messages) != 1 {
		t.Fatalf("user prompt should be retained: %#v", snap.Messages)
	}
}

func TestManagerSaveReloadsHistory(t *testing.T) {
	store := newFakeStore()
	manager := newTestManager(t, newFakeGen(), store)

	_ = manager.GenerateStory("dragons")
	settleManager(t, manager)
	_ = manager.SaveStory("")
	settleManager(t, manager)

	snap := manager.Snapshot()
	if snap.Status != state.Success || len(snap.History) != 1 {
		t.Fatalf("history not reloaded: %s %#v", snap.Status, snap.History)
	}
	if snap.LastSavedID != snap.History[0].ID {
		t.Fatalf("saved id %d not reported, history %#v", snap.LastSavedID, snap.History)
	}
	saved, err := store.Get(context.Background(), snap.LastSavedID)
	if err != nil {
		t.Fatalf("saved story missing: %v", err)
	}
	if saved.Title != untitledStory || saved.Content != "story: dragons" || saved.Genre != state.DefaultGenre || saved.ModelUsed != state.DefaultModel {
		t.Fatalf("unexpected saved story: %#v", saved)
	}
}

func TestManagerDeleteReloadsHistoryRegardless(t *testing.T) {
	store := newFakeStore()
	store.deleteErr = errors.New("disk I/O error")
	manager := newTestManager(t, newFakeGen(), store)

	_ = manager.DeleteStory(42)
	settleManager(t, manager)

	if store.historyCalls() != 1 {
		t.Fatalf("expected history reload after failed delete, got %d", store.historyCalls())
	}
	if snap := manager.Snapshot(); snap.Status != state.Success {
		t.Fatalf("expected success after reload, got %s", snap.Status)
	}
}

func TestManagerLoadStory(t *testing.T) {
	store := newFakeStore()
	id, _ := store.Save(context.Background(), &models.Story{Title: "Old", Content: "It was a dark night.", Genre: "mystery"})
	manager := newTestManager(t, newFakeGen(), store)

	_ = manager.GenerateStory("something else")
	settleManager(t, manager)
	_ = manager.LoadStory(id)
	settleManager(t, manager)

	snap := manager.Snapshot()
	if len(snap.Messages) != 1 || snap.Messages[0].Content != "It was a dark night." || snap.Genre != "mystery" {
		t.Fatalf("story not loaded: %#v", snap)
	}

	_ = manager.LoadStory(id + 100)
	settleManager(t, manager)
	if snap := manager.Snapshot(); snap.Status != state.Error || snap.Error != "Story not found" {
		t.Fatalf("expected not found, got %s %q", snap.Status, snap.Error)
	}
}

func TestManagerNewStoryResets(t *testing.T) {
	gen := newFakeGen()
	release := make(chan struct{})
	gen.listGate = release
	manager := newTestManager(t, gen, newFakeStore())

	_ = manager.SelectGenre("romance")
	_ = manager.GenerateStory("hello")
	settleManager(t, manager)
	_ = manager.NewStory()
	waitFor(t, manager, func(s state.Snapshot) bool { return s.Status == state.LoadingModels })

	snap := manager.Snapshot()
	if len(snap.Messages) != 0 || snap.Genre != state.DefaultGenre {
		t.Fatalf("snapshot not reset: %#v", snap)
	}
	close(release)
	settleManager(t, manager)

	snap = manager.Snapshot()
	if snap.Status != state.Success || len(snap.Models) != 2 || snap.SelectedModel != "gpt-4o-mini" {
		t.Fatalf("models not loaded: %#v", snap)
	}
}

func TestManagerStaysResponsiveDuringCalls(t *testing.T) {
	gen := newFakeGen()
	release := make(chan struct{})
	gen.listGate = release
	manager := newTestManager(t, gen, newFakeStore())

	_ = manager.LoadModels()
	_ = manager.SelectVoice("nova")
	waitFor(t, manager, func(s state.Snapshot) bool { return s.Voice == "nova" })
	if snap := manager.Snapshot(); snap.Status != state.LoadingModels {
		t.Fatalf("expected loading models, got %s", snap.Status)
	}
	close(release)
	settleManager(t, manager)
}

func TestManagerStaysResponsiveWithPoolSaturated(t *testing.T) {
	gen := newFakeGen()
	release := make(chan struct{})
	gen.listGate = release
	manager := NewManager(gen, newFakeStore(), DispatcherConfig{MinWorkers: 1, MaxWorkers: 2})
	t.Cleanup(manager.Close)

	for i := 0; i < 5; i++ {
		_ = manager.LoadModels()
	}
	_ = manager.SelectGenre("horror")
	waitFor(t, manager, func(s state.Snapshot) bool { return s.Genre == "horror" })
	if snap := manager.Snapshot(); snap.Status != state.LoadingModels {
		t.Fatalf("expected loading models, got %s", snap.Status)
	}

	close(release)
	settleManager(t, manager)
	if snap := manager.Snapshot(); snap.Status != state.Success || len(snap.Models) != 2 {
		t.Fatalf("queued calls did not finish: %#v", snap)
	}
}

func TestManagerCloseWithPoolSaturated(t *testing.T) {
	gen := newFakeGen()
	release := make(chan struct{})
	gen.listGate = release
	defer close(release)
	manager := NewManager(gen, newFakeStore(), DispatcherConfig{MinWorkers: 1, MaxWorkers: 1})

	_ = manager.LoadModels()
	_ = manager.LoadHistory()
	_ = manager.SelectVoice("nova")
	waitFor(t, manager, func(s state.Snapshot) bool { return s.Voice == "nova" })

	closed := make(chan struct{})
	go func() {
		manager.Close()
		close(closed)
	}()
	select {
	case <-closed:
	case <-time.After(time.Second):
		t.Fatalf("Close blocked behind a running call")
	}
	if err := manager.LoadHistory(); !errors.Is(err, ErrDispatcherClosed) {
		t.Fatalf("expected ErrDispatcherClosed, got %v", err)
	}
}

func TestManagerMediaUsesSelections(t *testing.T) {
	gen := newFakeGen()
	manager := newTestManager(t, gen, newFakeStore())

	_ = manager.SelectVoice("fable")
	_ = manager.SelectImageStyle("watercolor")
	_ = manager.GenerateStory("a fox")
	settleManager(t, manager)
	_ = manager.GenerateIllustration("")
	settleManager(t, manager)
	_ = manager.GenerateNarration("")
	settleManager(t, manager)

	gen.mu.Lock()
	scene, style, text, voice := gen.scene, gen.style, gen.text, gen.voice
	gen.mu.Unlock()
	if scene != "story: a fox" || style != "watercolor" {
		t.Fatalf("unexpected illustrate call: %q %q", scene, style)
	}
	if text != "story: a fox" || voice != "fable" {
		t.Fatalf("unexpected narrate call: %q %q", text, voice)
	}
	snap := manager.Snapshot()
	if snap.ImageRef != "aW1n" || snap.AudioRef != "bXAz" {
		t.Fatalf("media refs not set: %#v", snap)
	}
}

func TestManagerCloseCancelsWithoutFinalize(t *testing.T) {
	gen := newFakeGen()
	body, writer := io.Pipe()
	opened := make(chan struct{})
	gen.stream = func(ctx context.Context, req models.GenerateRequest) (io.ReadCloser, error) {
		close(opened)
		return body, nil
	}
	manager := NewManager(gen, newFakeStore(), DispatcherConfig{MinWorkers: 1, MaxWorkers: 4})

	_ = manager.StartStream("go")
	select {
	case <-opened:
	case <-time.After(time.Second):
		t.Fatalf("stream never opened")
	}
	manager.Close()

	if snap := manager.Snapshot(); snap.Status != state.Streaming {
		t.Fatalf("close must not finalize, got %s", snap.Status)
	}
	if _, err := writer.Write(sse.Frame("late")); err == nil {
		t.Fatalf("stream should be cancelled")
	}
	if err := manager.SelectGenre("horror"); !errors.Is(err, ErrDispatcherClosed) {
		t.Fatalf("expected ErrDispatcherClosed, got %v", err)
	}
}

// --- helpers ---

func newTestManager(t *testing.T, gen GenerationService, store StoryStore) *Manager {
	t.Helper()
	manager := NewManager(gen, store, DispatcherConfig{MinWorkers: 2, MaxWorkers: 4})
	t.Cleanup(manager.Close)
	return manager
}

func settleManager(t *testing.T, manager *Manager) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := manager.Settle(ctx); err != nil {
		t.Fatalf("settle: %v", err)
	}
}

func waitFor(t *testing.T, manager *Manager, cond func(state.Snapshot) bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond(manager.Snapshot()) {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("condition not reached, last snapshot %#v", manager.Snapshot())
}

func frames(deltas ...string) io.ReadCloser {
	var b strings.Builder
	for _, d := range deltas {
		b.Write(sse.Frame(d))
	}
	b.Write(sse.DoneFrame())
	return io.NopCloser(strings.NewReader(b.String()))
}

type fakeGen struct {
	mu       sync.Mutex
	requests []models.GenerateRequest
	listGate chan struct{}
	generate func(req models.GenerateRequest) (*models.GenerateResult, error)
	stream   func(ctx context.Context, req models.GenerateRequest) (io.ReadCloser, error)

	scene, style string
	text, voice  string
}

func newFakeGen() *fakeGen {
	return &fakeGen{}
}

func (f *fakeGen) ListModels(ctx context.Context) ([]models.ModelInfo, error) {
	if f.listGate != nil {
		<-f.listGate
	}
	return []models.ModelInfo{
		{ID: "gpt-4o-mini", Name: "GPT-4o Mini", Provider: "OpenAI"},
		{ID: "gpt-4o", Name: "GPT-4o", Provider: "OpenAI"},
	}, nil
}

func (f *fakeGen) Generate(ctx context.Context, req models.GenerateRequest) (*models.GenerateResult, error) {
	f.mu.Lock()
	f.requests = append(f.requests, req)
	fn := f.generate
	f.mu.Unlock()
	if fn != nil {
		return fn(req)
	}
	return &models.GenerateResult{Success: true, Content: models.StringPtr("story: " + req.Prompt), Model: req.Model}, nil
}

func (f *fakeGen) Stream(ctx context.Context, req models.GenerateRequest) (io.ReadCloser, error) {
	f.mu.Lock()
	f.requests = append(f.requests, req)
	fn := f.stream
	f.mu.Unlock()
	if fn == nil {
		return frames(), nil
	}
	return fn(ctx, req)
}

func (f *fakeGen) Illustrate(ctx context.Context, scene, style string) (*models.IllustrationResult, error) {
	f.mu.Lock()
	f.scene, f.style = scene, style
	f.mu.Unlock()
	return &models.IllustrationResult{Success: true, ImageBase64: models.StringPtr("aW1n"), Style: models.StringPtr(style)}, nil
}

func (f *fakeGen) Narrate(ctx context.Context, text, voice string) (*models.NarrationResult, error) {
	f.mu.Lock()
	f.text, f.voice = text, voice
	f.mu.Unlock()
	return &models.NarrationResult{AudioBase64: "bXAz", Format: "mp3"}, nil
}

func (f *fakeGen) lastRequest() models.GenerateRequest {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.requests) == 0 {
		return models.GenerateRequest{}
	}
	return f.requests[len(f.requests)-1]
}

type fakeStore struct {
	mu        sync.Mutex
	nextID    int64
	stories   map[int64]*models.Story
	deleteErr error
	histories int
}

func newFakeStore() *fakeStore {
	return &fakeStore{stories: make(map[int64]*models.Story)}
}

func (s *fakeStore) Save(ctx context.Context, story *models.Story) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.nextID++
	cp := *story
	cp.ID = s.nextID
	cp.WordCount = models.CountWords(cp.Content)
	s.stories[cp.ID] = &cp
	return cp.ID, nil
}

func (s *fakeStore) History(ctx context.Context) ([]models.StorySummary, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.histories++
	out := make([]models.StorySummary, 0, len(s.stories))
	for _, story := range s.stories {
		out = append(out, story.Summary())
	}
	return out, nil
}

func (s *fakeStore) Get(ctx context.Context, id int64) (*models.Story, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	story, ok := s.stories[id]
	if !ok {
		return nil, models.ErrStoryNotFound
	}
	cp := *story
	return &cp, nil
}

func (s *fakeStore) Delete(ctx context.Context, id int64) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.deleteErr != nil {
		return false, s.deleteErr
	}
	_, ok := s.stories[id]
	delete(s.stories, id)
	return ok, nil
}

func (s *fakeStore) historyCalls() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.histories
}
