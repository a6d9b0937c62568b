package state

import (
	"time"

	"storyforge/internal/models"
)

// Intent is a discrete request to change state: a user action or the
// result of an earlier capability call.
type Intent interface {
	Name() string
}

// Phase marks the lifecycle step of an asynchronous operation.
type Phase int

const (
	Start Phase = iota
	Succeeded
	Failed
)

func (p Phase) String() string {
	switch p {
	case Start:
		return "start"
	case Succeeded:
		return "success"
	case Failed:
		return "failure"
	}
	return "unknown"
}

type LoadModels struct {
	Phase  Phase
	Models []models.ModelInfo
	Err    string
}

type SelectModel struct{ ID string }

type SelectGenre struct{ Genre string }

type SelectVoice struct{ Voice string }

type SelectImageStyle struct{ Style string }

// GenerateStory appends the prompt on start and the reply on success,
// both stamped with At.
type GenerateStory struct {
	Phase   Phase
	Prompt  string
	Content string
	Err     string
	At      time.Time
}

// StartStream opens a new stream session. Any active one is superseded.
type StartStream struct {
	Prompt string
	At     time.Time
}

// AppendStreamDelta carries one content delta of stream Session.
type AppendStreamDelta struct {
	Session uint64
	Text    string
}

// CompleteStream finalizes stream Session, flushing its buffer as a
// message stamped with At.
type CompleteStream struct {
	Session uint64
	At      time.Time
}

// ErrorDuringStream finalizes stream Session with a failure; the buffer is
// dropped.
type ErrorDuringStream struct {
	Session uint64
	Err     string
}

type GenerateIllustration struct {
	Phase    Phase
	Scene    string
	ImageRef string
	Err      string
}

type GenerateNarration struct {
	Phase    Phase
	Text     string
	AudioRef string
	Err      string
}

type SaveStory struct {
	Phase Phase
	Title string
	ID    int64
	Err   string
}

type LoadHistory struct {
	Phase   Phase
	Stories []models.StorySummary
	Err     string
}

type LoadStory struct {
	Phase Phase
	ID    int64
	Story *models.Story
	Err   string
	At    time.Time
}

// DeleteStory does not change state by itself; a LoadHistory follows it.
type DeleteStory struct{ ID int64 }

type ClearConversation struct{}

type NewStory struct{}

func (LoadModels) Name() string           { return "load_models" }
func (SelectModel) Name() string          { return "select_model" }
func (SelectGenre) Name() string          { return "select_genre" }
func (SelectVoice) Name() string          { return "select_voice" }
func (SelectImageStyle) Name() string     { return "select_image_style" }
func (GenerateStory) Name() string        { return "generate_story" }
func (StartStream) Name() string          { return "start_stream" }
func (AppendStreamDelta) Name() string    { return "append_stream_delta" }
func (CompleteStream) Name() string       { return "complete_stream" }
func (ErrorDuringStream) Name() string    { return "error_during_stream" }
func (GenerateIllustration) Name() string { return "generate_illustration" }
func (GenerateNarration) Name() string    { return "generate_narration" }
func (SaveStory) Name() string            { return "save_story" }
func (LoadHistory) Name() string          { return "load_history" }
func (LoadStory) Name() string            { return "load_story" }
func (DeleteStory) Name() string          { return "delete_story" }
func (ClearConversation) Name() string    { return "clear_conversation" }
func (NewStory) Name() string             { return "new_story" }
