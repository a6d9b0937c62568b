package models

import (
	"errors"
	"strings"
	"time"
)

// ErrStoryNotFound reports an unknown story id.
var ErrStoryNotFound = errors.New("story not found")

// Story is a persisted story record.
type Story struct {
	ID         int64     `json:"id"`
	Title      string    `json:"title"`
	Content    string    `json:"content"`
	Genre      string    `json:"genre"`
	ModelUsed  string    `json:"model_used"`
	CreatedAt  time.Time `json:"created_at"`
	UpdatedAt  time.Time `json:"updated_at"`
	WordCount  int       `json:"word_count"`
	IsFavorite bool      `json:"is_favorite"`
}

// StorySummary is the history listing of a story, without its content.
type StorySummary struct {
	ID         int64     `json:"id"`
	Title      string    `json:"title"`
	Genre      string    `json:"genre"`
	ModelUsed  string    `json:"model_used"`
	CreatedAt  time.Time `json:"created_at"`
	WordCount  int       `json:"word_count"`
	IsFavorite bool      `json:"is_favorite"`
}

// StoryStats aggregates the stored stories.
type StoryStats struct {
	TotalStories     int            `json:"total_stories"`
	TotalWords       int            `json:"total_words"`
	StoriesByGenre   map[string]int `json:"stories_by_genre"`
	StoriesByModel   map[string]int `json:"stories_by_model"`
	AverageWordCount int            `json:"average_word_count"`
}

// Summary drops the content of the story.
func (s *Story) Summary() StorySummary {
	return StorySummary{
		ID:         s.ID,
		Title:      s.Title,
		Genre:      s.Genre,
		ModelUsed:  s.ModelUsed,
		CreatedAt:  s.CreatedAt,
		WordCount:  s.WordCount,
		IsFavorite: s.IsFavorite,
	}
}

// CountWords counts whitespace separated words.
func CountWords(content string) int {
	return len(strings.Fields(content))
}

// StoryImage is an illustration stored alongside a story.
type StoryImage struct {
	ID               int64     `json:"id"`
	StoryID          int64     `json:"story_id"`
	SceneDescription string    `json:"scene_description"`
	Style            string    `json:"style"`
	ImageBase64      string    `json:"image_base64"`
	CreatedAt        time.Time `json:"created_at"`
}
