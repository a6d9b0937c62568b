package media

import (
	"context"
	"strings"

	"github.com/openai/openai-go"

	"storyforge/internal/models"
)

const (
	msgContentPolicy = "The scene description contains content that cannot be illustrated. Please try a different description."
	msgRateLimited   = "Image generation rate limit reached. Please wait a moment and try again."
)

var styleSuggestions = map[string][]string{
	"fantasy": {
		"digital fantasy art, vibrant colors",
		"watercolor fairy tale illustration",
		"epic fantasy oil painting style",
		"anime fantasy style",
		"classic storybook illustration",
	},
	"sci-fi": {
		"sleek sci-fi digital art",
		"retro futuristic illustration",
		"cyberpunk neon aesthetic",
		"realistic space art",
		"conceptual sci-fi design",
	},
	"mystery": {
		"noir film style, high contrast",
		"moody atmospheric illustration",
		"vintage detective story art",
		"dark cinematic style",
		"shadowy dramatic lighting",
	},
	"romance": {
		"soft romantic watercolor",
		"dreamy pastel illustration",
		"elegant classic art style",
		"warm golden hour aesthetic",
		"tender emotional portrait style",
	},
	"horror": {
		"dark gothic illustration",
		"eerie atmospheric horror art",
		"creepy unsettling style",
		"dramatic chiaroscuro",
		"supernatural dark fantasy",
	},
	"adventure": {
		"dynamic action illustration",
		"Indiana Jones movie poster style",
		"vibrant adventure comic art",
		"epic landscape painting",
		"exciting pulp adventure style",
	},
}

// Illustrate renders scene in style. Failures are described in the result.
func (s *Service) Illustrate(ctx context.Context, scene, style string) *models.IllustrationResult {
	if s.client == nil {
		return failed(ErrNotConfigured.Error())
	}
	if strings.TrimSpace(style) == "" {
		style = DefaultStyle
	}

	resp, err := s.client.Images.Generate(ctx, openai.ImageGenerateParams{
		Model:          openai.ImageModel(s.cfg.ImageModel),
		Prompt:         CraftImagePrompt(scene, style),
		Size:           openai.ImageGenerateParamsSize(s.cfg.ImageSize),
		Quality:        openai.ImageGenerateParamsQuality(s.cfg.ImageQuality),
		N:              openai.Int(1),
		ResponseFormat: openai.ImageGenerateParamsResponseFormatB64JSON,
	})
	if err != nil {
		s.log.Warn().Err(err).Msg("image generation failed")
		switch {
		case isAPIError(err, "content_policy_violation"):
			return failed(msgContentPolicy)
		case isRateLimited(err):
			return failed(msgRateLimited)
		default:
			return failed("Failed to generate image: " + err.Error())
		}
	}
	if resp == nil || len(resp.Data) == 0 || resp.Data[0].B64JSON == "" {
		return failed("Failed to generate image: empty response")
	}

	img := resp.Data[0]
	result := &models.IllustrationResult{
		Success:     true,
		ImageBase64: models.StringPtr(img.B64JSON),
		Style:       models.StringPtr(style),
		Size:        models.StringPtr(s.cfg.ImageSize),
	}
	if img.RevisedPrompt != "" {
		result.RevisedPrompt = models.StringPtr(img.RevisedPrompt)
	}
	return result
}

// CraftImagePrompt wraps a scene description with storybook directions.
func CraftImagePrompt(scene, style string) string {
	return strings.Join([]string{
		"Create a " + style + " illustration:",
		scene,
		"The image should be highly detailed and visually striking.",
		"Suitable for a storybook illustration.",
		"No text or letters in the image.",
	}, " ")
}

// StyleSuggestions lists art styles that fit genre, fantasy by default.
func StyleSuggestions(genre string) []string {
	if list, ok := styleSuggestions[strings.ToLower(strings.TrimSpace(genre))]; ok {
		return list
	}
	return styleSuggestions["fantasy"]
}

func failed(msg string) *models.IllustrationResult {
	return &models.IllustrationResult{Success: false, Error: models.StringPtr(msg)}
}
