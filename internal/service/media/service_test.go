package media

import (
	"context"
	"encoding/base64"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"unicode/utf8"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tidwall/gjson"

	"storyforge/internal/config"
)

type fakeOpenAI struct {
	mu       sync.Mutex
	requests map[string]string
	status   int
	body     string
}

func (f *fakeOpenAI) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	payload, _ := io.ReadAll(r.Body)
	f.mu.Lock()
	f.requests[r.URL.Path] = string(payload)
	status, body := f.status, f.body
	f.mu.Unlock()

	if status != 0 && status != http.StatusOK {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		io.WriteString(w, body)
		return
	}
	switch {
	case strings.HasSuffix(r.URL.Path, "/images/generations"):
		w.Header().Set("Content-Type", "application/json")
		io.WriteString(w, `{"created":1,"data":[{"b64_json":"aW1hZ2U=","revised_prompt":"a calmer dragon"}]}`)
	case strings.HasSuffix(r.URL.Path, "/audio/speech"):
		w.Header().Set("Content-Type", "audio/mpeg")
		io.WriteString(w, "ID3-audio")
	default:
		http.NotFound(w, r)
	}
}

func (f *fakeOpenAI) request(suffix string) string {
	f.mu.Lock()
	defer f.mu.Unlock()
	for path, body := range f.requests {
		if strings.HasSuffix(path, suffix) {
			return body
		}
	}
	return ""
}

func newTestService(t *testing.T, fake *fakeOpenAI) *Service {
	t.Helper()
	fake.requests = map[string]string{}
	srv := httptest.NewServer(fake)
	t.Cleanup(srv.Close)
	return NewService(config.MediaConfig{
		APIKey:  "test-key",
		BaseURL: srv.URL + "/v1/",
	}, zerolog.Nop(), WithHTTPClient(srv.Client()), WithMaxRetries(0))
}

func TestIllustrateSendsCraftedPrompt(t *testing.T) {
	fake := &fakeOpenAI{}
	svc := newTestService(t, fake)

	res := svc.Illustrate(context.Background(), "A knight faces a dragon.", "")
	require.True(t, res.Success)
	assert.Equal(t, "aW1hZ2U=", *res.ImageBase64)
	assert.Equal(t, "a calmer dragon", *res.RevisedPrompt)
	assert.Equal(t, DefaultStyle, *res.Style)
	assert.Equal(t, DefaultImageSize, *res.Size)
	assert.Nil(t, res.Error)

	req := fake.request("/images/generations")
	assert.Equal(t, DefaultImageModel, gjson.Get(req, "model").String())
	assert.Equal(t, "b64_json", gjson.Get(req, "response_format").String())
	assert.Equal(t, "standard", gjson.Get(req, "quality").String())
	assert.Equal(t, CraftImagePrompt("A knight faces a dragon.", DefaultStyle), gjson.Get(req, "prompt").String())
}

func TestIllustrateMapsContentPolicy(t *testing.T) {
	fake := &fakeOpenAI{
		status: http.StatusBadRequest,
		body:   `{"error":{"message":"Your request was rejected","type":"invalid_request_error","code":"content_policy_violation"}}`,
	}
	svc := newTestService(t, fake)

	res := svc.Illustrate(context.Background(), "scene", "ink")
	assert.False(t, res.Success)
	require.NotNil(t, res.Error)
	assert.Equal(t, msgContentPolicy, *res.Error)
	assert.Nil(t, res.ImageBase64)
}

func TestIllustrateMapsRateLimit(t *testing.T) {
	fake := &fakeOpenAI{
		status: http.StatusTooManyRequests,
		body:   `{"error":{"message":"slow down","type":"requests","code":"rate_limit_exceeded"}}`,
	}
	svc := newTestService(t, fake)

	res := svc.Illustrate(context.Background(), "scene", "ink")
	assert.False(t, res.Success)
	assert.Equal(t, msgRateLimited, *res.Error)
}

func TestIllustrateWithoutKey(t *testing.T) {
	svc := NewService(config.MediaConfig{}, zerolog.Nop())
	assert.False(t, svc.Enabled())
	res := svc.Illustrate(context.Background(), "scene", "")
	assert.False(t, res.Success)
	assert.Equal(t, ErrNotConfigured.Error(), *res.Error)
}

func TestNarrateEncodesAudio(t *testing.T) {
	fake := &fakeOpenAI{}
	svc := newTestService(t, fake)

	res, err := svc.Narrate(context.Background(), "Once upon a time.", "whisper")
	require.NoError(t, err)
	assert.Equal(t, "mp3", res.Format)
	raw, err := base64.StdEncoding.DecodeString(res.AudioBase64)
	require.NoError(t, err)
	assert.Equal(t, "ID3-audio", string(raw))

	req := fake.request("/audio/speech")
	assert.Equal(t, DefaultVoice, gjson.Get(req, "voice").String())
	assert.Equal(t, DefaultSpeechModel, gjson.Get(req, "model").String())
	assert.Equal(t, "Once upon a time.", gjson.Get(req, "input").String())
}

func TestNarrateWithoutKey(t *testing.T) {
	svc := NewService(config.MediaConfig{}, zerolog.Nop())
	_, err := svc.Narrate(context.Background(), "text", "onyx")
	assert.ErrorIs(t, err, ErrNotConfigured)
}

func TestTruncateNarration(t *testing.T) {
	short := strings.Repeat("a", NarrationLimit)
	assert.Equal(t, short, TruncateNarration(short))

	long := strings.Repeat("é", NarrationLimit+10)
	got := TruncateNarration(long)
	assert.Equal(t, NarrationLimit+3, utf8.RuneCountInString(got))
	assert.True(t, strings.HasSuffix(got, "..."))
}

func TestVoicesAndSuggestions(t *testing.T) {
	list := Voices()
	require.Len(t, list, 6)
	assert.Equal(t, "alloy", list[0].ID)
	assert.Equal(t, "Deep and authoritative", list[3].Description)

	assert.Equal(t, "fable", ValidVoice("fable"))
	assert.Equal(t, DefaultVoice, ValidVoice("FABLE"))

	assert.Equal(t, "shimmer", SuggestVoice("Romance").Primary)
	assert.Equal(t, fallbackVoice, SuggestVoice("western"))

	assert.Equal(t, "dark gothic illustration", StyleSuggestions("horror")[0])
	assert.Equal(t, StyleSuggestions("fantasy"), StyleSuggestions("unknown"))
}
