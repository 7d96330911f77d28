package models

import (
	"time"
)

// Common constants
const (
	// FallbackModelID is used when neither the caller nor the deployment names a model
	FallbackModelID = "gemini-2.5-flash"

	// DefaultServiceName is reported by the healthcheck
	DefaultServiceName = "gemini"

	// DefaultUpstreamBaseURL is the public Generative Language API host
	DefaultUpstreamBaseURL = "https://generativelanguage.googleapis.com"

	// DefaultUpstreamTimeout bounds a single generateContent call
	DefaultUpstreamTimeout = 60 * time.Second

	// MaxRequestBodyBytes caps inbound prompt bodies (1 MiB)
	MaxRequestBodyBytes = 1 << 20
)

// DefaultAllowedModels are the models callers may select when no allow-list is configured
var DefaultAllowedModels = []string{
	"gemini-2.5-flash",
	"gemini-2.5-pro",
	"gemini-2.0-flash",
	"gemini-2.0-flash-lite",
}

// Projection selects the shape of a successful relay response
type Projection string

const (
	// ProjectionText returns {"text": ...} built from the first candidate
	ProjectionText Projection = "text"
	// ProjectionRaw returns the provider JSON unchanged
	ProjectionRaw Projection = "raw"
)

// IsValid reports whether the projection is one the relay knows how to build
func (p Projection) IsValid() bool {
	return p == ProjectionText || p == ProjectionRaw
}

// DefaultGenerationParameters returns the generation settings used when none are configured
func DefaultGenerationParameters() GenerationParameters {
	return GenerationParameters{
		Temperature:     0.7,
		TopP:            0.95,
		MaxOutputTokens: 2048,
	}
}

// CORSPolicy describes the cross-origin headers attached to every relay response
type CORSPolicy struct {
	Enabled      bool   `json:"enabled"`
	AllowOrigin  string `json:"allow_origin"`
	AllowMethods string `json:"allow_methods"`
	AllowHeaders string `json:"allow_headers"`
}

// DefaultCORSPolicy returns the permissive policy browsers need to call the relay directly
func DefaultCORSPolicy() CORSPolicy {
	return CORSPolicy{
		Enabled:      true,
		AllowOrigin:  "*",
		AllowMethods: "POST, OPTIONS",
		AllowHeaders: "Content-Type",
	}
}

// Headers returns the policy as response headers. A disabled policy yields an empty map.
func (p CORSPolicy) Headers() map[string]string {
	headers := make(map[string]string, 3)
	if !p.Enabled {
		return headers
	}
	headers["Access-Control-Allow-Origin"] = p.AllowOrigin
	headers["Access-Control-Allow-Methods"] = p.AllowMethods
	headers["Access-Control-Allow-Headers"] = p.AllowHeaders
	return headers
}
