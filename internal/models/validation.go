package models

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
)

// Payload validation errors
var (
	ErrMissingPrompt = errors.New("missing prompt")
	ErrInvalidBody   = errors.New("invalid JSON body")
)

// ParsePromptPayload decodes a POST body and validates the prompt.
// The prompt must be a JSON string that is non-empty after trimming; it is returned untrimmed.
// A model that is not a string is ignored.
func ParsePromptPayload(body []byte) (*PromptPayload, error) {
	if len(bytes.TrimSpace(body)) == 0 {
		return nil, ErrMissingPrompt
	}

	var fields map[string]json.RawMessage
	if err := json.Unmarshal(body, &fields); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidBody, err)
	}

	rawPrompt, ok := fields["prompt"]
	if !ok {
		return nil, ErrMissingPrompt
	}

	var prompt string
	if err := json.Unmarshal(rawPrompt, &prompt); err != nil {
		return nil, ErrMissingPrompt
	}
	if strings.TrimSpace(prompt) == "" {
		return nil, ErrMissingPrompt
	}

	payload := &PromptPayload{Prompt: prompt}

	if rawModel, ok := fields["model"]; ok {
		var model string
		if err := json.Unmarshal(rawModel, &model); err == nil {
			payload.Model = strings.TrimSpace(model)
		}
	}

	return payload, nil
}
