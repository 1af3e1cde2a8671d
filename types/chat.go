package types

import (
	"fmt"
)

// Message roles accepted in a chat history.
const (
	RoleUser      = "user"
	RoleAssistant = "assistant"
	RoleSystem    = "system"
)

// ChatMessage is a single entry in a conversation history.
type ChatMessage struct {
	Role    string `json:"role" validate:"required,oneof=user assistant system"`
	Content string `json:"content" validate:"required"`
}

// ChatRequest is the caller-supplied payload of a gated completion request.
type ChatRequest struct {
	// Model is the caller's requested model identifier. Unrecognized values
	// are resolved to the configured default rather than rejected.
	Model string `json:"model"`

	// Messages is the ordered conversation history. Must be non-empty by the
	// time the request reaches the completion stage.
	Messages []ChatMessage `json:"messages" validate:"required,min=1,dive"`
}

// Validate checks the structural invariants of a chat request.
func (r *ChatRequest) Validate() error {
	if len(r.Messages) == 0 {
		return fmt.Errorf("chatRequest.messages must not be empty")
	}

	for i, m := range r.Messages {
		switch m.Role {
		case RoleUser, RoleAssistant, RoleSystem:
		default:
			return fmt.Errorf("chatRequest.messages[%d].role %q is not one of user, assistant, system", i, m.Role)
		}

		if m.Content == "" {
			return fmt.Errorf("chatRequest.messages[%d].content is required", i)
		}
	}

	return nil
}
