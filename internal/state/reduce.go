package state

import (
	"storyforge/internal/models"
)

const unknownError = "unknown error"

// Reduce applies one intent to a snapshot and returns the next snapshot.
// It performs no I/O, reads no clock and never mutates s. Message times
// come from the intent.
func Reduce(s Snapshot, in Intent) Snapshot {
	return normalize(apply(s, in))
}

// ReduceAll folds intents over s in order.
func ReduceAll(s Snapshot, intents ...Intent) Snapshot {
	for _, in := range intents {
		s = Reduce(s, in)
	}
	return s
}

func apply(s Snapshot, in Intent) Snapshot {
	switch in := in.(type) {
	case LoadModels:
		switch in.Phase {
		case Start:
			s.Status = LoadingModels
		case Succeeded:
			s.Models = append([]models.ModelInfo(nil), in.Models...)
			if len(in.Models) > 0 && !offers(in.Models, s.SelectedModel) {
				s.SelectedModel = in.Models[0].ID
			}
			s.Status = Success
		case Failed:
			s = fail(s, in.Err)
		}

	case SelectModel:
		s.SelectedModel = in.ID
	case SelectGenre:
		s.Genre = in.Genre
	case SelectVoice:
		s.Voice = in.Voice
	case SelectImageStyle:
		s.ImageStyle = in.Style

	case GenerateStory:
		switch in.Phase {
		case Start:
			s = s.withMessage(models.NewMessage(models.RoleUser, in.Prompt, in.At))
			s.Status = Generating
		case Succeeded:
			s = s.withMessage(models.NewMessage(models.RoleAssistant, in.Content, in.At))
			s.Status = Success
		case Failed:
			s = fail(s, in.Err)
		}

	case StartStream:
		s = s.withMessage(models.NewMessage(models.RoleUser, in.Prompt, in.At))
		s.Status = Streaming
		s.StreamingBuffer = ""
		s.LastStream++
		s.StreamSession = s.LastStream

	case AppendStreamDelta:
		if !s.streamActive(in.Session) {
			return s
		}
		s.StreamingBuffer += in.Text

	case CompleteStream:
		if !s.streamActive(in.Session) {
			return s
		}
		if s.StreamingBuffer != "" {
			s = s.withMessage(models.NewMessage(models.RoleAssistant, s.StreamingBuffer, in.At))
		}
		s.StreamingBuffer = ""
		s.Status = Success

	case ErrorDuringStream:
		if !s.streamActive(in.Session) {
			return s
		}
		s = fail(s, in.Err)

	case GenerateIllustration:
		switch in.Phase {
		case Start:
			s.ImageRef = ""
			s.Status = GeneratingImage
		case Succeeded:
			s.ImageRef = in.ImageRef
			s.Status = Success
		case Failed:
			s = fail(s, in.Err)
		}

	case GenerateNarration:
		switch in.Phase {
		case Start:
			s.AudioRef = ""
			s.Status = GeneratingAudio
		case Succeeded:
			s.AudioRef = in.AudioRef
			s.Status = Success
		case Failed:
			s = fail(s, in.Err)
		}

	case SaveStory:
		s = phased(s, in.Phase, Saving, in.Err)
		if in.Phase == Succeeded {
			s.LastSavedID = in.ID
		}

	case LoadHistory:
		s = phased(s, in.Phase, LoadingHistory, in.Err)
		if in.Phase == Succeeded {
			s.History = append([]models.StorySummary(nil), in.Stories...)
		}

	case LoadStory:
		s = phased(s, in.Phase, LoadingHistory, in.Err)
		if in.Phase == Succeeded && in.Story != nil {
			s.Messages = []models.Message{models.NewMessage(models.RoleAssistant, in.Story.Content, in.At)}
			if in.Story.Genre != "" {
				s.Genre = in.Story.Genre
			}
		}

	case DeleteStory:
		// state is refreshed by the LoadHistory that follows

	case ClearConversation:
		s.Messages = nil
		s.StreamingBuffer = ""
		s.ImageRef = ""
		s.AudioRef = ""

	case NewStory:
		next := New(s.Defaults)
		next.LastStream = s.LastStream
		s = apply(next, LoadModels{Phase: Start})
	}
	return s
}

func offers(list []models.ModelInfo, id string) bool {
	for _, m := range list {
		if m.ID == id {
			return true
		}
	}
	return false
}

func phased(s Snapshot, p Phase, running Status, msg string) Snapshot {
	switch p {
	case Start:
		s.Status = running
	case Succeeded:
		s.Status = Success
	case Failed:
		s = fail(s, msg)
	}
	return s
}

func fail(s Snapshot, msg string) Snapshot {
	if msg == "" {
		msg = unknownError
	}
	s.Status = Error
	s.Error = msg
	return s
}

func (s Snapshot) streamActive(session uint64) bool {
	return s.Status == Streaming && session != 0 && session == s.StreamSession
}

// normalize enforces the cross-field invariants after every transition.
func normalize(s Snapshot) Snapshot {
	if s.Status != Error {
		s.Error = ""
	}
	if s.Status != Streaming {
		s.StreamingBuffer = ""
		s.StreamSession = 0
	}
	return s
}
