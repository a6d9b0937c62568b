// Package client talks to the StoryForge backend over HTTP. It implements
// both capability surfaces the orchestration manager depends on.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/pkg/errors"
	"github.com/tidwall/gjson"

	"storyforge/internal/models"
)

const (
	DefaultBaseURL = "http://127.0.0.1:5001"
	userAgent      = "storyforge-go/1.0"
	maxErrorBody   = 64 * 1024
)

// ErrDecode marks a response body that does not match its expected shape.
var ErrDecode = errors.New("unexpected response shape")

// RemoteError is a non-2xx answer from the backend.
type RemoteError struct {
	Status  int
	Message string
}

func (e *RemoteError) Error() string {
	return fmt.Sprintf("backend returned %d: %s", e.Status, e.Message)
}

// Client is safe for concurrent use.
type Client struct {
	baseURL string
	unary   *http.Client
	stream  *http.Client
}

type Option func(*Client)

// WithHTTPClient replaces the transport. Its Timeout applies to unary calls
// only; streams are bounded by their context.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) {
		if hc == nil {
			return
		}
		c.unary = hc
		streamClient := *hc
		streamClient.Timeout = 0
		c.stream = &streamClient
	}
}

// WithTimeout bounds unary calls.
func WithTimeout(d time.Duration) Option {
	return func(c *Client) {
		unary := *c.unary
		unary.Timeout = d
		c.unary = &unary
	}
}

func New(baseURL string, opts ...Option) *Client {
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	c := &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		unary:   &http.Client{},
		stream:  &http.Client{},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// ListModels fetches the selectable models.
func (c *Client) ListModels(ctx context.Context) ([]models.ModelInfo, error) {
	var out struct {
		Models *[]models.ModelInfo `json:"models"`
	}
	if err := c.do(ctx, http.MethodGet, "/api/models", nil, &out); err != nil {
		return nil, errors.Wrap(err, "list models")
	}
	if out.Models == nil {
		return nil, errors.Wrap(ErrDecode, "list models: missing models")
	}
	return *out.Models, nil
}

type generateBody struct {
	Prompt  string           `json:"prompt"`
	History []historyMessage `json:"history"`
	Model   string           `json:"model,omitempty"`
	Genre   string           `json:"genre,omitempty"`
}

type historyMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

func newGenerateBody(req models.GenerateRequest) generateBody {
	history := make([]historyMessage, 0, len(req.History))
	for _, m := range req.History {
		history = append(history, historyMessage{Role: string(m.Role), Content: m.Content})
	}
	return generateBody{Prompt: req.Prompt, History: history, Model: req.Model, Genre: req.Genre}
}

// Generate requests one blocking continuation.
func (c *Client) Generate(ctx context.Context, req models.GenerateRequest) (*models.GenerateResult, error) {
	var out struct {
		Success   *bool         `json:"success"`
		Content   *string       `json:"content"`
		Error     *string       `json:"error"`
		Model     *string       `json:"model"`
		ToolsUsed []string      `json:"tools_used"`
		Usage     *models.Usage `json:"usage"`
	}
	if err := c.do(ctx, http.MethodPost, "/api/story/generate", newGenerateBody(req), &out); err != nil {
		return nil, errors.Wrap(err, "generate")
	}
	if out.Success == nil {
		return nil, errors.Wrap(ErrDecode, "generate: missing success")
	}
	res := &models.GenerateResult{
		Success:   *out.Success,
		Content:   out.Content,
		Error:     out.Error,
		ToolsUsed: out.ToolsUsed,
		Usage:     out.Usage,
	}
	if out.Model != nil {
		res.Model = *out.Model
	}
	if res.Success && res.Content == nil {
		return nil, errors.Wrap(ErrDecode, "generate: success without content")
	}
	return res, nil
}

// Stream opens a streamed continuation and returns the raw event stream.
// The caller owns the body.
func (c *Client) Stream(ctx context.Context, req models.GenerateRequest) (io.ReadCloser, error) {
	httpReq, err := c.newRequest(ctx, http.MethodPost, "/api/story/generate/stream", newGenerateBody(req))
	if err != nil {
		return nil, errors.Wrap(err, "stream")
	}
	httpReq.Header.Set("Accept", "text/event-stream")
	resp, err := c.stream.Do(httpReq)
	if err != nil {
		return nil, errors.Wrap(err, "stream")
	}
	if resp.StatusCode != http.StatusOK {
		defer resp.Body.Close()
		return nil, errors.Wrap(remoteError(resp), "stream")
	}
	return resp.Body, nil
}

// Illustrate requests an image for scene.
func (c *Client) Illustrate(ctx context.Context, scene, style string) (*models.IllustrationResult, error) {
	body := map[string]string{"scene_description": scene}
	if style != "" {
		body["style"] = style
	}
	var out struct {
		Success       *bool   `json:"success"`
		ImageBase64   *string `json:"image_base64"`
		Error         *string `json:"error"`
		RevisedPrompt *string `json:"revised_prompt"`
		Style         *string `json:"style"`
		Size          *string `json:"size"`
	}
	if err := c.do(ctx, http.MethodPost, "/api/story/illustrate", body, &out); err != nil {
		return nil, errors.Wrap(err, "illustrate")
	}
	if out.Success == nil {
		return nil, errors.Wrap(ErrDecode, "illustrate: missing success")
	}
	return &models.IllustrationResult{
		Success:       *out.Success,
		ImageBase64:   out.ImageBase64,
		Error:         out.Error,
		RevisedPrompt: out.RevisedPrompt,
		Style:         out.Style,
		Size:          out.Size,
	}, nil
}

// Narrate requests speech audio for text.
func (c *Client) Narrate(ctx context.Context, text, voice string) (*models.NarrationResult, error) {
	body := map[string]string{"text": text}
	if voice != "" {
		body["voice"] = voice
	}
	var out struct {
		AudioBase64 *string `json:"audio_base64"`
		Format      *string `json:"format"`
	}
	if err := c.do(ctx, http.MethodPost, "/api/story/narrate", body, &out); err != nil {
		return nil, errors.Wrap(err, "narrate")
	}
	if out.AudioBase64 == nil || out.Format == nil {
		return nil, errors.Wrap(ErrDecode, "narrate: missing audio")
	}
	return &models.NarrationResult{AudioBase64: *out.AudioBase64, Format: *out.Format}, nil
}

// Save persists a story and returns its id.
func (c *Client) Save(ctx context.Context, st *models.Story) (int64, error) {
	if st == nil {
		return 0, errors.New("save: nil story")
	}
	body := map[string]string{
		"title":      st.Title,
		"content":    st.Content,
		"genre":      st.Genre,
		"model_used": st.ModelUsed,
	}
	var out struct {
		Success *bool   `json:"success"`
		StoryID *int64  `json:"story_id"`
		Message *string `json:"message"`
	}
	if err := c.do(ctx, http.MethodPost, "/api/story/save", body, &out); err != nil {
		return 0, errors.Wrap(err, "save")
	}
	if out.Success == nil || out.StoryID == nil {
		return 0, errors.Wrap(ErrDecode, "save: missing story_id")
	}
	if !*out.Success {
		return 0, errors.Errorf("save: %s", deref(out.Message))
	}
	return *out.StoryID, nil
}

// History lists saved stories, newest first.
func (c *Client) History(ctx context.Context) ([]models.StorySummary, error) {
	var out struct {
		Stories *[]models.StorySummary `json:"stories"`
	}
	if err := c.do(ctx, http.MethodGet, "/api/story/history", nil, &out); err != nil {
		return nil, errors.Wrap(err, "history")
	}
	if out.Stories == nil {
		return nil, errors.Wrap(ErrDecode, "history: missing stories")
	}
	return *out.Stories, nil
}

// Get fetches one story. A missing story is models.ErrStoryNotFound.
func (c *Client) Get(ctx context.Context, id int64) (*models.Story, error) {
	var st models.Story
	err := c.do(ctx, http.MethodGet, "/api/story/"+strconv.FormatInt(id, 10), nil, &st)
	if isNotFound(err) {
		return nil, models.ErrStoryNotFound
	}
	if err != nil {
		return nil, errors.Wrapf(err, "get story %d", id)
	}
	if st.ID == 0 {
		return nil, errors.Wrapf(ErrDecode, "get story %d: missing id", id)
	}
	return &st, nil
}

// Delete removes a story. The bool reports whether it existed.
func (c *Client) Delete(ctx context.Context, id int64) (bool, error) {
	var out struct {
		Success *bool   `json:"success"`
		Message *string `json:"message"`
	}
	err := c.do(ctx, http.MethodDelete, "/api/story/"+strconv.FormatInt(id, 10), nil, &out)
	if isNotFound(err) {
		return false, nil
	}
	if err != nil {
		return false, errors.Wrapf(err, "delete story %d", id)
	}
	if out.Success == nil {
		return false, errors.Wrapf(ErrDecode, "delete story %d: missing success", id)
	}
	return *out.Success, nil
}

func (c *Client) newRequest(ctx context.Context, method, path string, body any) (*http.Request, error) {
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return nil, errors.Wrap(err, "marshal request body")
		}
		reader = bytes.NewReader(data)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return nil, errors.Wrap(err, "create request")
	}
	req.Header.Set("User-Agent", userAgent)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	return req, nil
}

func (c *Client) do(ctx context.Context, method, path string, body, result any) error {
	req, err := c.newRequest(ctx, method, path, body)
	if err != nil {
		return err
	}
	resp, err := c.unary.Do(req)
	if err != nil {
		return errors.Wrap(err, "do request")
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return remoteError(resp)
	}
	dec := json.NewDecoder(resp.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(result); err != nil {
		return errors.Wrapf(ErrDecode, "%s %s: %v", method, path, err)
	}
	return nil
}

// remoteError reads the error message of a failed response, preferring the
// JSON "error" field.
func remoteError(resp *http.Response) error {
	raw, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
	msg := strings.TrimSpace(string(raw))
	if gjson.ValidBytes(raw) {
		if field := gjson.GetBytes(raw, "error"); field.Type == gjson.String {
			msg = field.String()
		}
	}
	if msg == "" {
		msg = http.StatusText(resp.StatusCode)
	}
	return &RemoteError{Status: resp.StatusCode, Message: msg}
}

func isNotFound(err error) bool {
	var remote *RemoteError
	return errors.As(err, &remote) && remote.Status == http.StatusNotFound
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
