package services

import (
	"fmt"
)

// ServiceContainer holds all service instances
type ServiceContainer struct {
	PromptRelay PromptRelay
}

// ServiceConfig holds the collaborators and options the services are built from
type ServiceConfig struct {
	Upstream UpstreamClient
	Keys     KeySource
	Relay    RelayOptions
}

// NewServiceContainer creates a new service container with all services
func NewServiceContainer(config *ServiceConfig) (*ServiceContainer, error) {
	if config == nil {
		return nil, fmt.Errorf("service config cannot be nil")
	}

	relay, err := NewPromptRelay(config.Upstream, config.Keys, config.Relay)
	if err != nil {
		return nil, fmt.Errorf("failed to create prompt relay: %w", err)
	}

	return &ServiceContainer{
		PromptRelay: relay,
	}, nil
}

// Validate validates that all services are properly initialized
func (sc *ServiceContainer) Validate() error {
	if sc.PromptRelay == nil {
		return fmt.Errorf("prompt relay is nil")
	}
	return nil
}

// Close performs cleanup for all services
func (sc *ServiceContainer) Close() error {
	// The relay holds no resources; the upstream client is closed by its owner
	return nil
}
