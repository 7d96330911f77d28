package services

import (
	"strings"

	"gemini-relay-api/internal/models"
)

// ModelPolicy decides which model a call is sent to
type ModelPolicy struct {
	// AllowList holds the models callers may select explicitly
	AllowList []string
	// Default is the deployment's configured model, may be empty
	Default string
	// Fallback is used when no default is configured
	Fallback string
}

// DefaultModelPolicy returns the policy used when nothing is configured
func DefaultModelPolicy() ModelPolicy {
	allow := make([]string, len(models.DefaultAllowedModels))
	copy(allow, models.DefaultAllowedModels)
	return ModelPolicy{
		AllowList: allow,
		Fallback:  models.FallbackModelID,
	}
}

// Allows reports whether model is on the allow-list
func (p ModelPolicy) Allows(model string) bool {
	for _, allowed := range p.AllowList {
		if allowed == model {
			return true
		}
	}
	return false
}

// ResolveModel picks the model for a call: the requested model if allowed,
// then the configured default, then the fallback.
func ResolveModel(requested string, policy ModelPolicy) string {
	requested = strings.TrimSpace(requested)
	if requested != "" && policy.Allows(requested) {
		return requested
	}
	if def := strings.TrimSpace(policy.Default); def != "" {
		return def
	}
	if fallback := strings.TrimSpace(policy.Fallback); fallback != "" {
		return fallback
	}
	return models.FallbackModelID
}
