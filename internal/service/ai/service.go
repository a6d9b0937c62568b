package ai

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"sync"

	"github.com/cloudwego/eino-ext/components/model/claude"
	"github.com/cloudwego/eino-ext/components/model/gemini"
	"github.com/cloudwego/eino-ext/components/model/openai"
	"github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/components/tool"
	"github.com/cloudwego/eino/compose"
	"github.com/cloudwego/eino/flow/agent/react"
	"github.com/cloudwego/eino/schema"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"google.golang.org/genai"

	"storyforge/internal/config"
	"storyforge/internal/logging"
	"storyforge/internal/models"
)

const (
	DefaultModel     = "gpt-4o-mini"
	claudeMaxTokens  = 3000
	placeholderLabel = " (API key required)"
)

const systemPrompt = `You are a creative storyteller AI assistant called StoryForge.
Your role is to help users create engaging, imaginative stories.

Guidelines:
- Write vivid, descriptive prose that brings scenes to life
- Develop interesting characters with depth
- Create engaging plot twists and conflicts
- Match the tone and style to the requested genre
- Continue stories naturally from where they left off
- Keep responses focused and between 150-300 words unless asked for more
- Use proper formatting with paragraphs for readability

When using tools:
- Use suggest_character_name when introducing new characters
- Use suggest_plot_twist when the story needs excitement
- Use get_genre_elements to ensure genre authenticity
`

// providerOrder fixes the order of the model listing.
var providerOrder = []string{config.ProviderOpenAI, config.ProviderGemini, config.ProviderAnthropic}

var providerLabels = map[string]string{
	config.ProviderOpenAI:    "OpenAI",
	config.ProviderGemini:    "Google",
	config.ProviderAnthropic: "Anthropic",
}

var defaultModels = map[string][]config.ModelConfig{
	config.ProviderOpenAI: {
		{ID: "gpt-4o-mini", Name: "GPT-4o Mini"},
		{ID: "gpt-4o", Name: "GPT-4o"},
		{ID: "gpt-4-turbo", Name: "GPT-4 Turbo"},
	},
	config.ProviderGemini: {
		{ID: "gemini/gemini-1.5-flash", Name: "Gemini 1.5 Flash"},
		{ID: "gemini/gemini-1.5-pro", Name: "Gemini 1.5 Pro"},
	},
	config.ProviderAnthropic: {
		{ID: "claude-3-5-sonnet-20241022", Name: "Claude 3.5 Sonnet"},
		{ID: "claude-3-haiku-20240307", Name: "Claude 3 Haiku"},
	},
}

// ModelFactory builds a chat model for one provider.
type ModelFactory func(ctx context.Context, provider, modelName string, cfg config.ProviderConfig) (model.ToolCallingChatModel, error)

// Service generates story text through the configured providers.
type Service struct {
	cfg      *config.Config
	log      zerolog.Logger
	tools    []tool.BaseTool
	limiter  *toolRateLimiter
	newModel ModelFactory

	mu         sync.Mutex
	chatModels map[string]model.ToolCallingChatModel
	agents     map[string]*react.Agent
}

type Option func(*Service)

// WithModelFactory replaces the provider model constructor.
func WithModelFactory(f ModelFactory) Option {
	return func(s *Service) {
		if f != nil {
			s.newModel = f
		}
	}
}

// WithTools sets the function-calling tools. An empty list disables tool
// calling.
func WithTools(tools []tool.BaseTool) Option {
	return func(s *Service) {
		s.tools = tools
	}
}

func NewService(cfg *config.Config, log zerolog.Logger, opts ...Option) *Service {
	if cfg == nil {
		cfg = config.Default()
	}
	s := &Service{
		cfg:        cfg,
		log:        logging.Component(log, "ai"),
		tools:      InitToolsChain(nil),
		limiter:    newToolRateLimiter(ToolCallLimit, ToolCallWindow),
		newModel:   newProviderModel,
		chatModels: make(map[string]model.ToolCallingChatModel),
		agents:     make(map[string]*react.Agent),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// ListModels returns the models of every provider with an API key. Without
// any key a single placeholder entry is returned.
func (s *Service) ListModels() []models.ModelInfo {
	var list []models.ModelInfo
	for _, provider := range providerOrder {
		p, ok := s.cfg.Providers[provider]
		if !ok || p.APIKey == "" {
			continue
		}
		entries := p.Models
		if len(entries) == 0 {
			entries = defaultModels[provider]
		}
		for _, m := range entries {
			list = append(list, models.ModelInfo{ID: m.ID, Name: m.Name, Provider: providerLabels[provider]})
		}
	}
	if len(list) == 0 {
		first := defaultModels[config.ProviderOpenAI][0]
		list = []models.ModelInfo{{
			ID:       first.ID,
			Name:     first.Name + placeholderLabel,
			Provider: providerLabels[config.ProviderOpenAI],
		}}
	}
	return list
}

// Generate produces one continuation, letting the model call the story
// tools. Provider failures are reported in the result, not as an error.
func (s *Service) Generate(ctx context.Context, req models.GenerateRequest) *models.GenerateResult {
	modelID := orDefault(req.Model, DefaultModel)
	result := &models.GenerateResult{Model: modelID}

	ctx, run := withToolRun(ctx, uuid.NewString(), s.limiter)
	defer run.close()

	msg, err := s.generate(ctx, modelID, buildMessages(req))
	if err != nil {
		s.log.Warn().Err(err).Str("model", modelID).Msg("generate failed")
		result.Error = models.StringPtr(err.Error())
		return result
	}
	result.Success = true
	result.Content = models.StringPtr(msg.Content)
	result.ToolsUsed = run.Used()
	result.Usage = usageOf(msg)
	return result
}

func (s *Service) generate(ctx context.Context, modelID string, msgs []*schema.Message) (*schema.Message, error) {
	if len(s.tools) > 0 {
		agent, err := s.agentFor(ctx, modelID)
		if err != nil {
			return nil, err
		}
		return agent.Generate(ctx, msgs)
	}
	chatModel, err := s.modelFor(ctx, modelID)
	if err != nil {
		return nil, err
	}
	return chatModel.Generate(ctx, msgs)
}

// Stream generates a continuation without tools, calling onDelta with each
// content increment in order. An error from onDelta stops the stream.
func (s *Service) Stream(ctx context.Context, req models.GenerateRequest, onDelta func(string) error) error {
	modelID := orDefault(req.Model, DefaultModel)
	chatModel, err := s.modelFor(ctx, modelID)
	if err != nil {
		return err
	}
	reader, err := chatModel.Stream(ctx, buildMessages(req))
	if err != nil {
		return fmt.Errorf("open stream: %w", err)
	}
	defer reader.Close()

	for {
		chunk, err := reader.Recv()
		if errors.Is(err, io.EOF) {
			return nil
		}
		if err != nil {
			return fmt.Errorf("receive stream: %w", err)
		}
		if chunk == nil || chunk.Content == "" {
			continue
		}
		if err := onDelta(chunk.Content); err != nil {
			return err
		}
	}
}

func (s *Service) modelFor(ctx context.Context, modelID string) (model.ToolCallingChatModel, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if m, ok := s.chatModels[modelID]; ok {
		return m, nil
	}
	provider, name := ResolveModel(modelID)
	p := s.cfg.Providers[provider]
	if p.APIKey == "" {
		return nil, fmt.Errorf("no API key configured for %s", providerLabels[provider])
	}
	m, err := s.newModel(ctx, provider, name, p)
	if err != nil {
		return nil, fmt.Errorf("init %s model %s: %w", provider, name, err)
	}
	s.chatModels[modelID] = m
	s.log.Debug().Str("provider", provider).Str("model", name).Msg("chat model ready")
	return m, nil
}

func (s *Service) agentFor(ctx context.Context, modelID string) (*react.Agent, error) {
	chatModel, err := s.modelFor(ctx, modelID)
	if err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if agent, ok := s.agents[modelID]; ok {
		return agent, nil
	}
	agent, err := react.NewAgent(ctx, &react.AgentConfig{
		ToolCallingModel: chatModel,
		ToolsConfig: compose.ToolsNodeConfig{
			Tools: s.tools,
		},
	})
	if err != nil {
		return nil, fmt.Errorf("init react agent: %w", err)
	}
	s.agents[modelID] = agent
	return agent, nil
}

// ResolveModel maps a model id to its provider and provider-side name.
func ResolveModel(modelID string) (provider, name string) {
	id := strings.TrimSpace(modelID)
	lower := strings.ToLower(id)
	switch {
	case strings.HasPrefix(lower, "gemini/"):
		return config.ProviderGemini, id[len("gemini/"):]
	case strings.HasPrefix(lower, "gemini"):
		return config.ProviderGemini, id
	case strings.HasPrefix(lower, "anthropic/"):
		return config.ProviderAnthropic, id[len("anthropic/"):]
	case strings.HasPrefix(lower, "claude"):
		return config.ProviderAnthropic, id
	case strings.HasPrefix(lower, "openai/"):
		return config.ProviderOpenAI, id[len("openai/"):]
	default:
		return config.ProviderOpenAI, id
	}
}

func newProviderModel(ctx context.Context, provider, modelName string, p config.ProviderConfig) (model.ToolCallingChatModel, error) {
	switch provider {
	case config.ProviderOpenAI:
		return openai.NewChatModel(ctx, &openai.ChatModelConfig{
			BaseURL: p.BaseURL,
			Model:   modelName,
			APIKey:  p.APIKey,
		})
	case config.ProviderGemini:
		client, err := genai.NewClient(ctx, &genai.ClientConfig{
			APIKey: p.APIKey,
		})
		if err != nil {
			return nil, fmt.Errorf("gemini client: %w", err)
		}
		return gemini.NewChatModel(ctx, &gemini.Config{
			Client: client,
			Model:  modelName,
		})
	case config.ProviderAnthropic:
		var baseURL *string
		if p.BaseURL != "" {
			baseURL = &p.BaseURL
		}
		return claude.NewChatModel(ctx, &claude.Config{
			APIKey:    p.APIKey,
			Model:     modelName,
			BaseURL:   baseURL,
			MaxTokens: claudeMaxTokens,
		})
	default:
		return nil, fmt.Errorf("invalid provider: %s", provider)
	}
}

// buildMessages prepends the genre-aware system prompt and forwards the
// conversation history before the new prompt.
func buildMessages(req models.GenerateRequest) []*schema.Message {
	genre := orDefault(req.Genre, DefaultGenre)
	msgs := make([]*schema.Message, 0, len(req.History)+2)
	msgs = append(msgs, schema.SystemMessage(
		systemPrompt+fmt.Sprintf("\n[Current genre: %s. Maintain this style throughout.]", genre),
	))
	for _, m := range req.History {
		var role schema.RoleType
		switch m.Role {
		case models.RoleAssistant:
			role = schema.Assistant
		case models.RoleSystem:
			role = schema.System
		default:
			role = schema.User
		}
		msgs = append(msgs, &schema.Message{Role: role, Content: m.Content})
	}
	msgs = append(msgs, schema.UserMessage(req.Prompt))
	return msgs
}

func usageOf(msg *schema.Message) *models.Usage {
	if msg == nil || msg.ResponseMeta == nil || msg.ResponseMeta.Usage == nil {
		return nil
	}
	u := msg.ResponseMeta.Usage
	return &models.Usage{
		PromptTokens:     u.PromptTokens,
		CompletionTokens: u.CompletionTokens,
		TotalTokens:      u.TotalTokens,
	}
}

func orDefault(v, def string) string {
	if v = strings.TrimSpace(v); v == "" {
		return def
	}
	return v
}
