package models

import (
	"strings"
)

// Gemini roles
const (
	RoleUser  = "user"
	RoleModel = "model"
)

// GenerateContentRequest is the body of models/{model}:generateContent
type GenerateContentRequest struct {
	Contents         []Content             `json:"contents"`
	GenerationConfig *GenerationParameters `json:"generationConfig,omitempty"`
}

// Content is one conversational turn
type Content struct {
	Role  string `json:"role,omitempty"`
	Parts []Part `json:"parts"`
}

// Part is a fragment of content. Only text parts are produced or projected.
type Part struct {
	Text string `json:"text"`
}

// Candidate is one generated response option
type Candidate struct {
	Content      Content `json:"content"`
	FinishReason string  `json:"finishReason,omitempty"`
	Index        int     `json:"index"`
}

// UsageMetadata reports token counts for a call
type UsageMetadata struct {
	PromptTokenCount     int `json:"promptTokenCount"`
	CandidatesTokenCount int `json:"candidatesTokenCount"`
	TotalTokenCount      int `json:"totalTokenCount"`
}

// GenerateContentResponse is the success body of generateContent
type GenerateContentResponse struct {
	Candidates    []Candidate    `json:"candidates"`
	UsageMetadata *UsageMetadata `json:"usageMetadata,omitempty"`
	ModelVersion  string         `json:"modelVersion,omitempty"`
}

// ErrorEnvelope is the failure body of the Google APIs
type ErrorEnvelope struct {
	Error *struct {
		Code    int    `json:"code"`
		Message string `json:"message"`
		Status  string `json:"status"`
	} `json:"error"`
}

// NewGenerateContentRequest builds a single-turn user request
func NewGenerateContentRequest(prompt string, params GenerationParameters) *GenerateContentRequest {
	return &GenerateContentRequest{
		Contents: []Content{
			{
				Role:  RoleUser,
				Parts: []Part{{Text: prompt}},
			},
		},
		GenerationConfig: &params,
	}
}

// Text concatenates every text part of the first candidate, unmodified.
// It returns an empty string when there is no candidate.
func (r *GenerateContentResponse) Text() string {
	if r == nil || len(r.Candidates) == 0 {
		return ""
	}

	var sb strings.Builder
	for _, part := range r.Candidates[0].Content.Parts {
		sb.WriteString(part.Text)
	}
	return sb.String()
}

// Message returns error.message, or an empty string when the envelope has none
func (e *ErrorEnvelope) Message() string {
	if e == nil || e.Error == nil {
		return ""
	}
	return e.Error.Message
}
