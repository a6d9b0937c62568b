package story

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"storyforge/internal/models"
)

const (
	DefaultHistoryLimit = 50
	DefaultTitle        = "Untitled Story"
	DefaultGenre        = "general"
	DefaultModel        = "unknown"
)

// ErrStoryNotFound is returned when a story id does not exist.
var ErrStoryNotFound = models.ErrStoryNotFound

// Store persists stories and their illustrations.
type Store struct {
	db           *sql.DB
	historyLimit int
	cache        *Cache

	// afterHistoryQuery runs between the history query and caching its
	// result. Tests use it to interleave writes.
	afterHistoryQuery func()
}

// Option customises a Store.
type Option func(*Store)

// WithHistoryLimit caps the number of summaries returned by History.
func WithHistoryLimit(limit int) Option {
	return func(s *Store) {
		if limit > 0 {
			s.historyLimit = limit
		}
	}
}

// WithCache serves History from the given cache and invalidates it on writes.
func WithCache(c *Cache) Option {
	return func(s *Store) {
		s.cache = c
	}
}

func NewStore(db *sql.DB, opts ...Option) *Store {
	s := &Store{db: db, historyLimit: DefaultHistoryLimit}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Save inserts a story and returns its id. Missing title, genre and model
// fall back to their defaults.
func (s *Store) Save(ctx context.Context, st *models.Story) (int64, error) {
	if st == nil || strings.TrimSpace(st.Content) == "" {
		return 0, errors.New("content is required")
	}
	title := strings.TrimSpace(st.Title)
	if title == "" {
		title = DefaultTitle
	}
	genre := orDefault(st.Genre, DefaultGenre)
	modelUsed := orDefault(st.ModelUsed, DefaultModel)
	words := models.CountWords(st.Content)
	now := time.Now().UTC()

	res, err := s.db.ExecContext(ctx,
		`INSERT INTO stories (title, content, genre, model_used, created_at, updated_at, word_count, is_favorite)
		 VALUES (?, ?, ?, ?, ?, ?, ?, 0)`,
		title, st.Content, genre, modelUsed, now, now, words,
	)
	if err != nil {
		return 0, fmt.Errorf("insert story: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("story id: %w", err)
	}
	st.ID = id
	st.Title = title
	st.Genre = genre
	st.ModelUsed = modelUsed
	st.WordCount = words
	st.CreatedAt = now
	st.UpdatedAt = now
	s.invalidate(ctx)
	return id, nil
}

// History lists the most recent stories, newest first.
func (s *Store) History(ctx context.Context) ([]models.StorySummary, error) {
	if cached, ok := s.cache.load(ctx); ok {
		return cached, nil
	}
	gen := s.cache.generation()
	list, err := s.querySummaries(ctx,
		`SELECT id, title, genre, model_used, created_at, word_count, is_favorite
		 FROM stories ORDER BY created_at DESC, id DESC LIMIT ?`,
		s.historyLimit,
	)
	if err != nil {
		return nil, fmt.Errorf("list stories: %w", err)
	}
	if s.afterHistoryQuery != nil {
		s.afterHistoryQuery()
	}
	s.cache.store(ctx, gen, list)
	return list, nil
}

// Get returns one story including its content.
func (s *Store) Get(ctx context.Context, id int64) (*models.Story, error) {
	var st models.Story
	err := s.db.QueryRowContext(ctx,
		`SELECT id, title, content, genre, model_used, created_at, updated_at, word_count, is_favorite
		 FROM stories WHERE id = ?`,
		id,
	).Scan(&st.ID, &st.Title, &st.Content, &st.Genre, &st.ModelUsed, &st.CreatedAt, &st.UpdatedAt, &st.WordCount, &st.IsFavorite)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrStoryNotFound
		}
		return nil, fmt.Errorf("get story: %w", err)
	}
	return &st, nil
}

// Delete removes a story and its illustrations. The bool reports whether a
// row existed.
func (s *Store) Delete(ctx context.Context, id int64) (bool, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return false, fmt.Errorf("begin tx: %w", err)
	}
	defer func() {
		if err != nil {
			tx.Rollback()
		}
	}()

	if _, err = tx.ExecContext(ctx, `DELETE FROM images WHERE story_id = ?`, id); err != nil {
		return false, fmt.Errorf("delete images: %w", err)
	}
	res, err := tx.ExecContext(ctx, `DELETE FROM stories WHERE id = ?`, id)
	if err != nil {
		return false, fmt.Errorf("delete story: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("story rows affected: %w", err)
	}
	if err = tx.Commit(); err != nil {
		return false, fmt.Errorf("commit delete story: %w", err)
	}
	if affected > 0 {
		s.invalidate(ctx)
	}
	return affected > 0, nil
}

// Update changes the title and/or content of a story. Empty arguments are
// left untouched; a content change recomputes the word count.
func (s *Store) Update(ctx context.Context, id int64, title, content string) (bool, error) {
	var (
		sets []string
		args []any
	)
	if title = strings.TrimSpace(title); title != "" {
		sets = append(sets, "title = ?")
		args = append(args, title)
	}
	if strings.TrimSpace(content) != "" {
		sets = append(sets, "content = ?", "word_count = ?")
		args = append(args, content, models.CountWords(content))
	}
	if len(sets) == 0 {
		return false, nil
	}
	sets = append(sets, "updated_at = ?")
	args = append(args, time.Now().UTC(), id)

	res, err := s.db.ExecContext(ctx,
		`UPDATE stories SET `+strings.Join(sets, ", ")+` WHERE id = ?`,
		args...,
	)
	if err != nil {
		return false, fmt.Errorf("update story: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("story rows affected: %w", err)
	}
	if affected > 0 {
		s.invalidate(ctx)
	}
	return affected > 0, nil
}

// ToggleFavorite flips the favorite flag of a story.
func (s *Store) ToggleFavorite(ctx context.Context, id int64) (bool, error) {
	res, err := s.db.ExecContext(ctx,
		`UPDATE stories SET is_favorite = CASE WHEN is_favorite = 1 THEN 0 ELSE 1 END WHERE id = ?`,
		id,
	)
	if err != nil {
		return false, fmt.Errorf("toggle favorite: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("story rows affected: %w", err)
	}
	if affected > 0 {
		s.invalidate(ctx)
	}
	return affected > 0, nil
}

// Favorites lists the stories marked as favorite, newest first.
func (s *Store) Favorites(ctx context.Context) ([]models.StorySummary, error) {
	list, err := s.querySummaries(ctx,
		`SELECT id, title, genre, model_used, created_at, word_count, is_favorite
		 FROM stories WHERE is_favorite = 1 ORDER BY created_at DESC, id DESC`,
	)
	if err != nil {
		return nil, fmt.Errorf("list favorites: %w", err)
	}
	return list, nil
}

// Search matches query against titles and contents.
func (s *Store) Search(ctx context.Context, query string) ([]models.StorySummary, error) {
	pattern := "%" + query + "%"
	list, err := s.querySummaries(ctx,
		`SELECT id, title, genre, model_used, created_at, word_count, is_favorite
		 FROM stories WHERE title LIKE ? OR content LIKE ? ORDER BY created_at DESC, id DESC`,
		pattern, pattern,
	)
	if err != nil {
		return nil, fmt.Errorf("search stories: %w", err)
	}
	return list, nil
}

// Statistics aggregates counts over all stories.
func (s *Store) Statistics(ctx context.Context) (*models.StoryStats, error) {
	stats := &models.StoryStats{
		StoriesByGenre: map[string]int{},
		StoriesByModel: map[string]int{},
	}
	var total sql.NullInt64
	if err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*), SUM(word_count) FROM stories`,
	).Scan(&stats.TotalStories, &total); err != nil {
		return nil, fmt.Errorf("count stories: %w", err)
	}
	stats.TotalWords = int(total.Int64)

	if err := s.countBy(ctx, "genre", stats.StoriesByGenre); err != nil {
		return nil, err
	}
	if err := s.countBy(ctx, "model_used", stats.StoriesByModel); err != nil {
		return nil, err
	}
	stats.AverageWordCount = averageWords(stats.TotalWords, stats.TotalStories)
	return stats, nil
}

// SaveImage records an illustration generated for a story.
func (s *Store) SaveImage(ctx context.Context, storyID int64, scene, style, imageBase64 string) (int64, error) {
	res, err := s.db.ExecContext(ctx,
		`INSERT INTO images (story_id, scene_description, style, image_base64, created_at) VALUES (?, ?, ?, ?, ?)`,
		storyID, scene, style, imageBase64, time.Now().UTC(),
	)
	if err != nil {
		return 0, fmt.Errorf("insert image: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("image id: %w", err)
	}
	return id, nil
}

// Images lists the illustrations of a story in creation order.
func (s *Store) Images(ctx context.Context, storyID int64) ([]models.StoryImage, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, story_id, scene_description, style, image_base64, created_at
		 FROM images WHERE story_id = ? ORDER BY created_at ASC, id ASC`,
		storyID,
	)
	if err != nil {
		return nil, fmt.Errorf("list images: %w", err)
	}
	defer rows.Close()

	images := make([]models.StoryImage, 0)
	for rows.Next() {
		var img models.StoryImage
		if err := rows.Scan(&img.ID, &img.StoryID, &img.SceneDescription, &img.Style, &img.ImageBase64, &img.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan image: %w", err)
		}
		images = append(images, img)
	}
	return images, rows.Err()
}

func (s *Store) querySummaries(ctx context.Context, query string, args ...any) ([]models.StorySummary, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	list := []models.StorySummary{}
	for rows.Next() {
		var sum models.StorySummary
		if err := rows.Scan(&sum.ID, &sum.Title, &sum.Genre, &sum.ModelUsed, &sum.CreatedAt, &sum.WordCount, &sum.IsFavorite); err != nil {
			return nil, fmt.Errorf("scan story: %w", err)
		}
		list = append(list, sum)
	}
	return list, rows.Err()
}

// column is one of a fixed set of identifiers, never user input.
func (s *Store) countBy(ctx context.Context, column string, into map[string]int) error {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+column+`, COUNT(*) FROM stories GROUP BY `+column,
	)
	if err != nil {
		return fmt.Errorf("group stories by %s: %w", column, err)
	}
	defer rows.Close()
	for rows.Next() {
		var (
			key   string
			count int
		)
		if err := rows.Scan(&key, &count); err != nil {
			return fmt.Errorf("scan %s count: %w", column, err)
		}
		into[key] = count
	}
	return rows.Err()
}

func (s *Store) invalidate(ctx context.Context) {
	s.cache.invalidate(ctx)
}

// averageWords divides rounding half to even.
func averageWords(total, count int) int {
	if count < 1 {
		count = 1
	}
	q, r := total/count, total%count
	switch {
	case 2*r > count:
		q++
	case 2*r == count && q%2 == 1:
		q++
	}
	return q
}

func orDefault(v, def string) string {
	if v = strings.TrimSpace(v); v == "" {
		return def
	}
	return v
}
