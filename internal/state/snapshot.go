package state

import (
	"slices"

	"storyforge/internal/models"
)

const (
	DefaultModel      = "gpt-4o-mini"
	DefaultGenre      = "fantasy"
	DefaultVoice      = "onyx"
	DefaultImageStyle = "digital fantasy art, vibrant colors"
)

// Snapshot is the complete, immutable state of one generation session.
// Reduce never mutates a Snapshot in place; slices are copied on write.
type Snapshot struct {
	Status Status
	// Error is non-empty iff Status == Error.
	Error string

	Models        []models.ModelInfo
	SelectedModel string
	Genre         string
	Voice         string
	ImageStyle    string

	Messages        []models.Message
	StreamingBuffer string
	ImageRef        string
	AudioRef        string
	History         []models.StorySummary

	// LastSavedID is the id assigned by the latest successful save.
	LastSavedID int64

	// StreamSession identifies the stream whose deltas are accepted; zero
	// when no stream is active. LastStream only ever grows.
	StreamSession uint64
	LastStream    uint64

	// Defaults are restored by NewStory.
	Defaults Defaults
}

// Defaults holds the initial selections of a new session.
type Defaults struct {
	Model      string
	Genre      string
	Voice      string
	ImageStyle string
}

// DefaultSelections returns the stock defaults.
func DefaultSelections() Defaults {
	return Defaults{
		Model:      DefaultModel,
		Genre:      DefaultGenre,
		Voice:      DefaultVoice,
		ImageStyle: DefaultImageStyle,
	}
}

// New builds the initial snapshot.
func New(d Defaults) Snapshot {
	fallback := DefaultSelections()
	if d.Model == "" {
		d.Model = fallback.Model
	}
	if d.Genre == "" {
		d.Genre = fallback.Genre
	}
	if d.Voice == "" {
		d.Voice = fallback.Voice
	}
	if d.ImageStyle == "" {
		d.ImageStyle = fallback.ImageStyle
	}
	return Snapshot{
		Status:        Idle,
		SelectedModel: d.Model,
		Genre:         d.Genre,
		Voice:         d.Voice,
		ImageStyle:    d.ImageStyle,
		Defaults:      d,
	}
}

// LastMessage returns the trailing conversation message, if any.
func (s Snapshot) LastMessage() (models.Message, bool) {
	if len(s.Messages) == 0 {
		return models.Message{}, false
	}
	return s.Messages[len(s.Messages)-1], true
}

// StoryContent joins the assistant messages into the text that gets saved.
func (s Snapshot) StoryContent() string {
	var out []byte
	for _, msg := range s.Messages {
		if msg.Role != models.RoleAssistant || msg.Content == "" {
			continue
		}
		if len(out) > 0 {
			out = append(out, "\n\n"...)
		}
		out = append(out, msg.Content...)
	}
	return string(out)
}

func (s Snapshot) withMessage(msg models.Message) Snapshot {
	msgs := make([]models.Message, 0, len(s.Messages)+1)
	msgs = append(msgs, s.Messages...)
	s.Messages = append(msgs, msg)
	return s
}

// Clone returns a deep copy that shares nothing with s.
func (s Snapshot) Clone() Snapshot {
	s.Models = slices.Clone(s.Models)
	s.Messages = slices.Clone(s.Messages)
	s.History = slices.Clone(s.History)
	return s
}
