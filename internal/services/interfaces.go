package services

import (
	"context"

	"gemini-relay-api/internal/models"
)

// PromptRelay turns one inbound request into exactly one outbound response
type PromptRelay interface {
	// Handle never returns nil and never panics; every failure is rendered as a JSON error body
	Handle(ctx context.Context, req *models.InboundRequest) *models.OutboundResponse
}

// UpstreamClient performs a single generateContent exchange with the provider.
// An error means the exchange could not be completed; any HTTP status, including non-2xx,
// is reported through the result.
type UpstreamClient interface {
	GenerateContent(ctx context.Context, call *models.UpstreamCall) (*models.UpstreamResult, error)
}

// UpstreamFunc adapts a plain function to UpstreamClient
type UpstreamFunc func(ctx context.Context, call *models.UpstreamCall) (*models.UpstreamResult, error)

// GenerateContent calls f
func (f UpstreamFunc) GenerateContent(ctx context.Context, call *models.UpstreamCall) (*models.UpstreamResult, error) {
	return f(ctx, call)
}

// KeySource provides the provider API key. It is consulted once per relayed call.
type KeySource interface {
	APIKey(ctx context.Context) (string, error)
}

// KeyFunc adapts a plain function to KeySource
type KeyFunc func(ctx context.Context) (string, error)

// APIKey calls f
func (f KeyFunc) APIKey(ctx context.Context) (string, error) {
	return f(ctx)
}

// Authorizer checks the bearer credential presented with a POST
type Authorizer interface {
	Authorize(token string) error
}
