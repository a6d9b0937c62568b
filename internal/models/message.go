package models

import "time"

// Role is the author of a conversation message.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
	RoleSystem    Role = "system"
)

// Message is one entry of the conversation history.
type Message struct {
	Role      Role      `json:"role"`
	Content   string    `json:"content"`
	CreatedAt time.Time `json:"created_at"`
	ImageRef  string    `json:"image_ref,omitempty"`
	AudioRef  string    `json:"audio_ref,omitempty"`
}

// NewMessage builds a message created at at.
func NewMessage(role Role, content string, at time.Time) Message {
	return Message{Role: role, Content: content, CreatedAt: at}
}
