package models

import (
	"bytes"
	"encoding/json"
	"fmt"
)

// InboundRequest is the transport-neutral request handed to the prompt relay.
// Both the gin handler and the Lambda entrypoint build one of these.
type InboundRequest struct {
	Method string `json:"method"`
	Body   []byte `json:"-"`
	// Credential is the bearer token presented by the caller, if any
	Credential string `json:"-"`
}

// PromptPayload is the decoded body of a POST request
type PromptPayload struct {
	Prompt string `json:"prompt"`
	Model  string `json:"model,omitempty"`
}

// GenerationParameters are fixed per deployment and never taken from the caller
type GenerationParameters struct {
	Temperature     float64 `json:"temperature"`
	TopP            float64 `json:"topP"`
	MaxOutputTokens int     `json:"maxOutputTokens"`
}

// UpstreamCall is everything needed to issue one generateContent call
type UpstreamCall struct {
	APIKey  string
	ModelID string
	Request *GenerateContentRequest
}

// String describes the call without the API key
func (c *UpstreamCall) String() string {
	return fmt.Sprintf("generateContent(model=%s)", c.ModelID)
}

// UpstreamResult is the raw outcome of a completed upstream exchange
type UpstreamResult struct {
	StatusCode int
	Body       []byte
}

// IsSuccess reports whether the upstream status is in the 2xx range
func (r *UpstreamResult) IsSuccess() bool {
	return r.StatusCode >= 200 && r.StatusCode < 300
}

// OutboundResponse is the single response produced for an inbound request
type OutboundResponse struct {
	StatusCode int               `json:"status_code"`
	Headers    map[string]string `json:"headers"`
	Body       []byte            `json:"body"`
}

// ErrorBody is the JSON shape of every failed relay response
type ErrorBody struct {
	Error  string          `json:"error"`
	Raw    json.RawMessage `json:"raw,omitempty"`
	Detail string          `json:"detail,omitempty"`
}

// TextBody is the projected success shape
type TextBody struct {
	Text string `json:"text"`
}

// HealthBody is returned by GET when the healthcheck is enabled
type HealthBody struct {
	OK        bool   `json:"ok"`
	Service   string `json:"service"`
	Timestamp string `json:"ts"`
}

// EncodeJSON marshals v without HTML escaping so relayed text keeps its exact bytes
func EncodeJSON(v interface{}) ([]byte, error) {
	var buf bytes.Buffer
	encoder := json.NewEncoder(&buf)
	encoder.SetEscapeHTML(false)
	if err := encoder.Encode(v); err != nil {
		return nil, err
	}
	return bytes.TrimRight(buf.Bytes(), "\n"), nil
}
