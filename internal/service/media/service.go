package media

import (
	"errors"
	"net/http"
	"strings"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
	"github.com/rs/zerolog"

	"storyforge/internal/config"
	"storyforge/internal/logging"
)

const (
	DefaultImageModel   = "dall-e-3"
	DefaultImageSize    = "1024x1024"
	DefaultImageQuality = "standard"
	DefaultSpeechModel  = "tts-1"
	DefaultStyle        = "digital fantasy art, vibrant colors"
)

// ErrNotConfigured is reported when no OpenAI key is available.
var ErrNotConfigured = errors.New("OpenAI API key not configured")

// Service synthesizes illustrations and narrations through the OpenAI API.
type Service struct {
	client *openai.Client
	cfg    config.MediaConfig
	log    zerolog.Logger
}

type Option func(*serviceOptions)

type serviceOptions struct {
	httpClient *http.Client
	maxRetries int
}

// WithHTTPClient sets the transport used for API calls.
func WithHTTPClient(c *http.Client) Option {
	return func(o *serviceOptions) {
		o.httpClient = c
	}
}

// WithMaxRetries overrides the SDK retry count.
func WithMaxRetries(n int) Option {
	return func(o *serviceOptions) {
		o.maxRetries = n
	}
}

func NewService(cfg config.MediaConfig, log zerolog.Logger, opts ...Option) *Service {
	o := serviceOptions{httpClient: http.DefaultClient, maxRetries: -1}
	for _, opt := range opts {
		opt(&o)
	}
	if cfg.ImageModel == "" {
		cfg.ImageModel = DefaultImageModel
	}
	if cfg.ImageSize == "" {
		cfg.ImageSize = DefaultImageSize
	}
	if cfg.ImageQuality == "" {
		cfg.ImageQuality = DefaultImageQuality
	}
	if cfg.SpeechModel == "" {
		cfg.SpeechModel = DefaultSpeechModel
	}

	s := &Service{cfg: cfg, log: logging.Component(log, "media")}
	if cfg.APIKey == "" {
		s.log.Warn().Msg("media synthesis disabled: no OpenAI API key")
		return s
	}
	clientOpts := []option.RequestOption{
		option.WithAPIKey(cfg.APIKey),
		option.WithHTTPClient(o.httpClient),
	}
	if cfg.BaseURL != "" {
		clientOpts = append(clientOpts, option.WithBaseURL(cfg.BaseURL))
	}
	if o.maxRetries >= 0 {
		clientOpts = append(clientOpts, option.WithMaxRetries(o.maxRetries))
	}
	client := openai.NewClient(clientOpts...)
	s.client = &client
	return s
}

// Enabled reports whether an API key is configured.
func (s *Service) Enabled() bool {
	return s.client != nil
}

// isAPIError matches code or a substring of the error text.
func isAPIError(err error, code string) bool {
	var apiErr *openai.Error
	if errors.As(err, &apiErr) && apiErr.Code == code {
		return true
	}
	return strings.Contains(strings.ToLower(err.Error()), code)
}

func isRateLimited(err error) bool {
	var apiErr *openai.Error
	if errors.As(err, &apiErr) && apiErr.StatusCode == http.StatusTooManyRequests {
		return true
	}
	return isAPIError(err, "rate_limit")
}
