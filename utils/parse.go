package utils

import (
	"encoding/json"
	"fmt"

	"github.com/go-playground/validator/v10"
	"github.com/vitwit/x402-chat/types"
)

var validate *validator.Validate

func init() {
	validate = validator.New()
}

// ParseChatRequest parses and validates a ChatRequest from JSON.
// Malformed bodies come back as an X402Error with code INVALID_CHAT_REQUEST
// so handlers can map them to a client error.
func ParseChatRequest(data []byte) (*types.ChatRequest, error) {
	var req types.ChatRequest

	if err := json.Unmarshal(data, &req); err != nil {
		return nil, &types.X402Error{
			Code:    types.ErrInvalidChatRequest,
			Message: fmt.Sprintf("failed to parse chat request: %v", err),
		}
	}

	// Validate using struct tags
	if err := validate.Struct(&req); err != nil {
		return nil, &types.X402Error{
			Code:    types.ErrInvalidChatRequest,
			Message: fmt.Sprintf("validation failed: %v", err),
		}
	}

	// Role and content semantics beyond what tags express
	if err := req.Validate(); err != nil {
		return nil, &types.X402Error{
			Code:    types.ErrInvalidChatRequest,
			Message: err.Error(),
		}
	}

	return &req, nil
}

// ParseX402Response parses a 402 body and validates each offered requirement.
// Used by the paying client when it receives a challenge.
func ParseX402Response(data []byte) (*types.X402Response, error) {
	var resp types.X402Response

	if err := json.Unmarshal(data, &resp); err != nil {
		return nil, &types.X402Error{
			Code:    types.ErrInvalidRequirements,
			Message: fmt.Sprintf("failed to parse x402 response: %v", err),
		}
	}

	for i := range resp.Accepts {
		if err := resp.Accepts[i].Validate(); err != nil {
			return nil, &types.X402Error{
				Code:    types.ErrInvalidRequirements,
				Message: fmt.Sprintf("accepts[%d]: %v", i, err),
			}
		}
	}

	return &resp, nil
}
