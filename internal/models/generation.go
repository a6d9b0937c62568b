package models

// ModelInfo describes one selectable text model.
type ModelInfo struct {
	ID       string `json:"id"`
	Name     string `json:"name"`
	Provider string `json:"provider"`
}

// Usage reports token accounting of a generation.
type Usage struct {
	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens"`
	TotalTokens      int `json:"total_tokens"`
}

// GenerateRequest is the input of both blocking and streamed generation.
type GenerateRequest struct {
	Prompt  string    `json:"prompt"`
	History []Message `json:"history"`
	Model   string    `json:"model"`
	Genre   string    `json:"genre"`
}

// GenerateResult is the outcome of a blocking generation. Optional fields
// are pointers so absence stays distinguishable from the zero value.
type GenerateResult struct {
	Success   bool     `json:"success"`
	Content   *string  `json:"content,omitempty"`
	Error     *string  `json:"error,omitempty"`
	Model     string   `json:"model"`
	ToolsUsed []string `json:"tools_used,omitempty"`
	Usage     *Usage   `json:"usage,omitempty"`
}

// IllustrationResult is the outcome of an image synthesis call.
type IllustrationResult struct {
	Success       bool    `json:"success"`
	ImageBase64   *string `json:"image_base64,omitempty"`
	Error         *string `json:"error,omitempty"`
	RevisedPrompt *string `json:"revised_prompt,omitempty"`
	Style         *string `json:"style,omitempty"`
	Size          *string `json:"size,omitempty"`
}

// NarrationResult is the outcome of a speech synthesis call.
type NarrationResult struct {
	AudioBase64 string `json:"audio_base64"`
	Format      string `json:"format"`
}

// VoiceInfo describes a narration voice.
type VoiceInfo struct {
	ID             string `json:"id"`
	Description    string `json:"description"`
	RecommendedFor string `json:"recommended_for"`
}

// StringPtr is a helper for optional string fields.
func StringPtr(s string) *string {
	return &s
}
