package api

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"storyforge/internal/logging"
	"storyforge/internal/models"
	"storyforge/internal/service/ai"
	"storyforge/internal/service/media"
	"storyforge/internal/sse"
)

const (
	appName       = "StoryForge AI"
	appVersion    = "1.0.0"
	streamTimeout = 2 * time.Minute
)

// Generator produces story text.
type Generator interface {
	ListModels() []models.ModelInfo
	Generate(ctx context.Context, req models.GenerateRequest) *models.GenerateResult
	Stream(ctx context.Context, req models.GenerateRequest, onDelta func(string) error) error
}

// Synthesizer renders illustrations and narrations.
type Synthesizer interface {
	Illustrate(ctx context.Context, scene, style string) *models.IllustrationResult
	Narrate(ctx context.Context, text, voice string) (*models.NarrationResult, error)
}

// Stories is the persistence the routes need.
type Stories interface {
	Save(ctx context.Context, st *models.Story) (int64, error)
	History(ctx context.Context) ([]models.StorySummary, error)
	Get(ctx context.Context, id int64) (*models.Story, error)
	Delete(ctx context.Context, id int64) (bool, error)
	Update(ctx context.Context, id int64, title, content string) (bool, error)
	ToggleFavorite(ctx context.Context, id int64) (bool, error)
	Favorites(ctx context.Context) ([]models.StorySummary, error)
	Search(ctx context.Context, query string) ([]models.StorySummary, error)
	Statistics(ctx context.Context) (*models.StoryStats, error)
	SaveImage(ctx context.Context, storyID int64, scene, style, imageBase64 string) (int64, error)
	Images(ctx context.Context, storyID int64) ([]models.StoryImage, error)
}

// Handler wires HTTP routes to the generation, media and story services.
type Handler struct {
	gen     Generator
	media   Synthesizer
	stories Stories
	log     zerolog.Logger
}

// NewHandler constructs a Handler instance.
func NewHandler(gen Generator, synth Synthesizer, stories Stories, log zerolog.Logger) *Handler {
	return &Handler{
		gen:     gen,
		media:   synth,
		stories: stories,
		log:     logging.Component(log, "api"),
	}
}

// RegisterRoutes attaches all HTTP routes to the router.
func (h *Handler) RegisterRoutes(router *gin.Engine) {
	router.GET("/", h.root)
	api := router.Group("/api")
	api.GET("/models", h.listModels)
	api.GET("/voices", h.listVoices)
	api.GET("/styles/:genre", h.listStyles)

	story := api.Group("/story")
	story.POST("/generate", h.generateStory)
	story.POST("/generate/stream", h.generateStoryStream)
	story.POST("/illustrate", h.illustrateStory)
	story.POST("/narrate", h.narrateStory)
	story.POST("/save", h.saveStory)
	story.GET("/history", h.storyHistory)
	story.GET("/favorites", h.favoriteStories)
	story.GET("/search", h.searchStories)
	story.GET("/stats", h.storyStats)
	story.GET("/:id", h.getStory)
	story.PUT("/:id", h.updateStory)
	story.DELETE("/:id", h.deleteStory)
	story.POST("/:id/favorite", h.toggleFavorite)
	story.GET("/:id/images", h.storyImages)
}

func (h *Handler) root(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"app":     appName,
		"version": appVersion,
		"status":  "running",
		"endpoints": []string{
			"POST /api/story/generate",
			"POST /api/story/generate/stream",
			"POST /api/story/illustrate",
			"POST /api/story/narrate",
			"POST /api/story/save",
			"GET /api/story/history",
			"GET /api/models",
		},
	})
}

func (h *Handler) listModels(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"models": h.gen.ListModels()})
}

type generateRequest struct {
	Prompt  string `json:"prompt"`
	History []struct {
		Role    string `json:"role"`
		Content string `json:"content"`
	} `json:"history"`
	Model string `json:"model"`
	Genre string `json:"genre"`
}

func (r generateRequest) toModel() models.GenerateRequest {
	out := models.GenerateRequest{
		Prompt:  r.Prompt,
		Model:   r.Model,
		Genre:   r.Genre,
		History: make([]models.Message, 0, len(r.History)),
	}
	if out.Model == "" {
		out.Model = ai.DefaultModel
	}
	if out.Genre == "" {
		out.Genre = ai.DefaultGenre
	}
	for _, m := range r.History {
		out.History = append(out.History, models.Message{Role: models.Role(m.Role), Content: m.Content})
	}
	return out
}

// bindGenerate answers 400 itself when the body is unusable.
func bindGenerate(c *gin.Context) (models.GenerateRequest, bool) {
	var req generateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
		return models.GenerateRequest{}, false
	}
	if strings.TrimSpace(req.Prompt) == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Prompt is required"})
		return models.GenerateRequest{}, false
	}
	return req.toModel(), true
}

func (h *Handler) generateStory(c *gin.Context) {
	req, ok := bindGenerate(c)
	if !ok {
		return
	}
	c.JSON(http.StatusOK, h.gen.Generate(c.Request.Context(), req))
}

func (h *Handler) generateStoryStream(c *gin.Context) {
	req, ok := bindGenerate(c)
	if !ok {
		return
	}
	flusher, ok := c.Writer.(http.Flusher)
	if !ok {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "streaming not supported"})
		return
	}
	streamCtx, cancel := context.WithTimeout(c.Request.Context(), streamTimeout)
	defer cancel()

	c.Writer.Header().Set("Content-Type", "text/event-stream")
	c.Writer.Header().Set("Cache-Control", "no-cache")
	c.Writer.Header().Set("Connection", "keep-alive")
	c.Writer.Header().Set("X-Accel-Buffering", "no")
	c.Status(http.StatusOK)

	var writeErr error
	err := h.gen.Stream(streamCtx, req, func(delta string) error {
		if writeErr = sse.WriteFrame(c.Writer, delta); writeErr != nil {
			return writeErr
		}
		flusher.Flush()
		return nil
	})
	if writeErr != nil {
		h.log.Debug().Err(writeErr).Msg("stream client went away")
		return
	}
	if err != nil {
		h.log.Warn().Err(err).Str("model", req.Model).Msg("stream generation failed")
		if werr := sse.WriteFrame(c.Writer, "[Error: "+err.Error()+"]"); werr != nil {
			return
		}
	}
	if err := sse.WriteDone(c.Writer); err != nil {
		return
	}
	flusher.Flush()
}

type illustrateRequest struct {
	SceneDescription string `json:"scene_description"`
	Style            string `json:"style"`
	StoryID          int64  `json:"story_id"`
}

func (h *Handler) illustrateStory(c *gin.Context) {
	var req illustrateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
		return
	}
	if strings.TrimSpace(req.SceneDescription) == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Scene description is required"})
		return
	}
	if req.Style == "" {
		req.Style = media.DefaultStyle
	}
	res := h.media.Illustrate(c.Request.Context(), req.SceneDescription, req.Style)
	if res.Success && req.StoryID > 0 && res.ImageBase64 != nil {
		if _, err := h.stories.SaveImage(c.Request.Context(), req.StoryID, req.SceneDescription, req.Style, *res.ImageBase64); err != nil {
			h.log.Warn().Err(err).Int64("story_id", req.StoryID).Msg("store illustration failed")
		}
	}
	c.JSON(http.StatusOK, res)
}

type narrateRequest struct {
	Text  string `json:"text"`
	Voice string `json:"voice"`
}

func (h *Handler) narrateStory(c *gin.Context) {
	var req narrateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
		return
	}
	if strings.TrimSpace(req.Text) == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Text is required"})
		return
	}
	if req.Voice == "" {
		req.Voice = media.DefaultVoice
	}
	res, err := h.media.Narrate(c.Request.Context(), req.Text, req.Voice)
	if err != nil {
		h.log.Warn().Err(err).Msg("narration failed")
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, res)
}

func (h *Handler) listVoices(c *gin.Context) {
	payload := gin.H{"voices": media.Voices(), "default": media.DefaultVoice}
	if genre := c.Query("genre"); genre != "" {
		payload["suggestion"] = media.SuggestVoice(genre)
	}
	c.JSON(http.StatusOK, payload)
}

func (h *Handler) listStyles(c *gin.Context) {
	genre := c.Param("genre")
	c.JSON(http.StatusOK, gin.H{"genre": genre, "styles": media.StyleSuggestions(genre)})
}

type saveRequest struct {
	Title     string `json:"title"`
	Content   string `json:"content"`
	Genre     string `json:"genre"`
	ModelUsed string `json:"model_used"`
}

func (h *Handler) saveStory(c *gin.Context) {
	var req saveRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
		return
	}
	if strings.TrimSpace(req.Content) == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Content is required"})
		return
	}
	id, err := h.stories.Save(c.Request.Context(), &models.Story{
		Title:     req.Title,
		Content:   req.Content,
		Genre:     req.Genre,
		ModelUsed: req.ModelUsed,
	})
	if err != nil {
		h.internalError(c, "save story", err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"success":  true,
		"story_id": id,
		"message":  "Story saved successfully",
	})
}

func (h *Handler) storyHistory(c *gin.Context) {
	list, err := h.stories.History(c.Request.Context())
	if err != nil {
		h.internalError(c, "story history", err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"stories": list})
}

func (h *Handler) favoriteStories(c *gin.Context) {
	list, err := h.stories.Favorites(c.Request.Context())
	if err != nil {
		h.internalError(c, "favorite stories", err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"stories": list})
}

func (h *Handler) searchStories(c *gin.Context) {
	query := strings.TrimSpace(c.Query("q"))
	if query == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Query is required"})
		return
	}
	list, err := h.stories.Search(c.Request.Context(), query)
	if err != nil {
		h.internalError(c, "search stories", err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"stories": list, "query": query})
}

func (h *Handler) storyStats(c *gin.Context) {
	stats, err := h.stories.Statistics(c.Request.Context())
	if err != nil {
		h.internalError(c, "story statistics", err)
		return
	}
	c.JSON(http.StatusOK, stats)
}

func (h *Handler) getStory(c *gin.Context) {
	id, ok := storyID(c)
	if !ok {
		return
	}
	st, err := h.stories.Get(c.Request.Context(), id)
	if err != nil {
		if errors.Is(err, models.ErrStoryNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "Story not found"})
			return
		}
		h.internalError(c, "get story", err)
		return
	}
	c.JSON(http.StatusOK, st)
}

type updateRequest struct {
	Title   string `json:"title"`
	Content string `json:"content"`
}

func (h *Handler) updateStory(c *gin.Context) {
	id, ok := storyID(c)
	if !ok {
		return
	}
	var req updateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
		return
	}
	if req.Title == "" && req.Content == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Title or content is required"})
		return
	}
	updated, err := h.stories.Update(c.Request.Context(), id, req.Title, req.Content)
	if err != nil {
		h.internalError(c, "update story", err)
		return
	}
	if !updated {
		c.JSON(http.StatusNotFound, gin.H{"error": "Story not found"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "message": "Story updated"})
}

func (h *Handler) deleteStory(c *gin.Context) {
	id, ok := storyID(c)
	if !ok {
		return
	}
	deleted, err := h.stories.Delete(c.Request.Context(), id)
	if err != nil {
		h.internalError(c, "delete story", err)
		return
	}
	if !deleted {
		c.JSON(http.StatusNotFound, gin.H{"error": "Story not found"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "message": "Story deleted"})
}

func (h *Handler) toggleFavorite(c *gin.Context) {
	id, ok := storyID(c)
	if !ok {
		return
	}
	toggled, err := h.stories.ToggleFavorite(c.Request.Context(), id)
	if err != nil {
		h.internalError(c, "toggle favorite", err)
		return
	}
	if !toggled {
		c.JSON(http.StatusNotFound, gin.H{"error": "Story not found"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true})
}

func (h *Handler) storyImages(c *gin.Context) {
	id, ok := storyID(c)
	if !ok {
		return
	}
	images, err := h.stories.Images(c.Request.Context(), id)
	if err != nil {
		h.internalError(c, "story images", err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"images": images})
}

func storyID(c *gin.Context) (int64, bool) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil || id <= 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid story id"})
		return 0, false
	}
	return id, true
}

func (h *Handler) internalError(c *gin.Context, op string, err error) {
	h.log.Error().Err(err).Str("op", op).Msg("request failed")
	c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
}
