package media

import (
	"context"
	"encoding/base64"
	"fmt"
	"io"
	"strings"
	"unicode/utf8"

	"github.com/openai/openai-go"

	"storyforge/internal/models"
)

const (
	DefaultVoice   = "onyx"
	NarrationLimit = 4000
	audioFormat    = "mp3"
)

type voice struct {
	id             string
	description    string
	recommendedFor string
}

// voices keeps the listing order stable.
var voices = []voice{
	{"alloy", "Neutral and balanced", "General narration, neutral stories"},
	{"echo", "Warm and conversational", "Dialogue-heavy stories, conversations"},
	{"fable", "Expressive and dramatic (British)", "Fantasy, dramatic stories, British settings"},
	{"onyx", "Deep and authoritative", "Epic tales, serious narratives, male protagonists"},
	{"nova", "Friendly and upbeat", "Children's stories, light-hearted adventures"},
	{"shimmer", "Clear and gentle", "Romance, gentle stories, female protagonists"},
}

// VoiceSuggestion names the best voices for a genre.
type VoiceSuggestion struct {
	Primary     string `json:"primary"`
	Alternative string `json:"alternative"`
	Reason      string `json:"reason"`
}

var genreVoices = map[string]VoiceSuggestion{
	"fantasy":   {"fable", "onyx", "Fable's expressive British tone suits fantasy narratives"},
	"sci-fi":    {"alloy", "echo", "Alloy's neutral tone works well for technical sci-fi"},
	"mystery":   {"onyx", "echo", "Onyx's deep voice creates suspenseful atmosphere"},
	"romance":   {"shimmer", "nova", "Shimmer's gentle tone enhances romantic moments"},
	"horror":    {"onyx", "fable", "Onyx's authoritative depth builds tension"},
	"adventure": {"nova", "echo", "Nova's upbeat energy matches adventure excitement"},
}

var fallbackVoice = VoiceSuggestion{"onyx", "alloy", "Onyx is versatile for most story types"}

// Narrate speaks text with voice and returns base64 encoded mp3 audio.
// Unknown voices fall back to onyx and long input is truncated.
func (s *Service) Narrate(ctx context.Context, text, voiceID string) (*models.NarrationResult, error) {
	if s.client == nil {
		return nil, ErrNotConfigured
	}
	resp, err := s.client.Audio.Speech.New(ctx, openai.AudioSpeechNewParams{
		Model:          openai.SpeechModel(s.cfg.SpeechModel),
		Voice:          openai.AudioSpeechNewParamsVoice(ValidVoice(voiceID)),
		Input:          TruncateNarration(text),
		ResponseFormat: openai.AudioSpeechNewParamsResponseFormatMP3,
	})
	if err != nil {
		return nil, fmt.Errorf("generate audio: %w", err)
	}
	defer resp.Body.Close()

	audio, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read audio: %w", err)
	}
	return &models.NarrationResult{
		AudioBase64: base64.StdEncoding.EncodeToString(audio),
		Format:      audioFormat,
	}, nil
}

// ValidVoice returns voiceID when it is a known voice and onyx otherwise.
func ValidVoice(voiceID string) string {
	for _, v := range voices {
		if v.id == voiceID {
			return voiceID
		}
	}
	return DefaultVoice
}

// TruncateNarration caps text at NarrationLimit characters plus an ellipsis.
func TruncateNarration(text string) string {
	if utf8.RuneCountInString(text) <= NarrationLimit {
		return text
	}
	return string([]rune(text)[:NarrationLimit]) + "..."
}

// Voices lists the narration voices with descriptions.
func Voices() []models.VoiceInfo {
	out := make([]models.VoiceInfo, 0, len(voices))
	for _, v := range voices {
		out = append(out, models.VoiceInfo{ID: v.id, Description: v.description, RecommendedFor: v.recommendedFor})
	}
	return out
}

// SuggestVoice picks voices for genre.
func SuggestVoice(genre string) VoiceSuggestion {
	if s, ok := genreVoices[strings.ToLower(strings.TrimSpace(genre))]; ok {
		return s
	}
	return fallbackVoice
}
