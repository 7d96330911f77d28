package server

import (
	"context"
	"fmt"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/sirupsen/logrus"

	"gemini-relay-api/internal/adapters/gemini"
	"gemini-relay-api/internal/adapters/secrets"
	"gemini-relay-api/internal/config"
	"gemini-relay-api/internal/metrics"
	"gemini-relay-api/internal/middleware"
	"gemini-relay-api/internal/models"
	"gemini-relay-api/internal/services"
)

// Container holds all application dependencies
type Container struct {
	Config      *config.Config
	Logger      *logrus.Logger
	PromptRelay services.PromptRelay
	// Authorizer is nil when no shared secret is configured
	Authorizer *middleware.SharedSecretAuth

	// Internal dependencies
	upstream *gemini.Client
	keys     secrets.Source
	services *services.ServiceContainer
}

// Options overrides collaborators that are otherwise built from configuration
type Options struct {
	Logger     *logrus.Logger
	Registerer prometheus.Registerer
	Upstream   services.UpstreamClient
	Keys       services.KeySource
}

// NewContainer creates a new dependency injection container
func NewContainer(cfg *config.Config) (*Container, error) {
	return NewContainerWithOptions(context.Background(), cfg, nil)
}

// NewContainerWithOptions creates a container, using any collaborators set in opts
func NewContainerWithOptions(ctx context.Context, cfg *config.Config, opts *Options) (*Container, error) {
	if cfg == nil {
		return nil, fmt.Errorf("config cannot be nil")
	}
	if opts == nil {
		opts = &Options{}
	}

	logger := opts.Logger
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	cfg.ConfigureLogging(logger)

	registerer := opts.Registerer
	if registerer == nil {
		registerer = prometheus.DefaultRegisterer
	}
	if err := metrics.Register(registerer); err != nil {
		return nil, fmt.Errorf("failed to register metrics: %w", err)
	}

	container := &Container{
		Config: cfg,
		Logger: logger,
	}

	keys := opts.Keys
	if keys == nil {
		source, err := secrets.NewSource(ctx, &secrets.SourceConfig{
			Type:     cfg.KeySource.Type,
			SecretID: cfg.KeySource.SecretID,
			Field:    cfg.KeySource.Field,
			Region:   cfg.KeySource.Region,
		})
		if err != nil {
			return nil, fmt.Errorf("failed to create key source: %w", err)
		}
		container.keys = source
		keys = source
	}

	upstream := opts.Upstream
	if upstream == nil {
		container.upstream = gemini.NewClient(gemini.Config{
			BaseURL:             cfg.Upstream.BaseURL,
			Timeout:             cfg.Upstream.Timeout,
			MaxResponseBodySize: cfg.Upstream.MaxResponseBodySize,
			MaxConnsPerHost:     cfg.Upstream.MaxConnsPerHost,
		}, logger)
		upstream = container.upstream
	}

	relayOpts := services.DefaultRelayOptions()
	relayOpts.Projection = models.Projection(cfg.Relay.Projection)
	relayOpts.Healthcheck = cfg.Relay.HealthcheckEnabled
	relayOpts.ServiceName = cfg.Relay.ServiceName
	relayOpts.CORS = cfg.RelayCORS()
	relayOpts.Generation = cfg.GenerationParameters()
	relayOpts.Logger = logger
	relayOpts.Models = services.ModelPolicy{
		AllowList: cfg.Model.AllowList,
		Default:   cfg.Model.Default,
		Fallback:  models.FallbackModelID,
	}

	if cfg.AuthEnabled() {
		auth, err := middleware.NewSharedSecretAuth(&middleware.AuthConfig{
			Secret:        cfg.Auth.SharedSecret,
			TokenDuration: cfg.Auth.TokenTTL,
			Issuer:        cfg.Auth.Issuer,
		})
		if err != nil {
			return nil, fmt.Errorf("failed to create authorizer: %w", err)
		}
		container.Authorizer = auth
		relayOpts.Authorizer = auth
	}

	serviceContainer, err := services.NewServiceContainer(&services.ServiceConfig{
		Upstream: upstream,
		Keys:     keys,
		Relay:    relayOpts,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create service container: %w", err)
	}

	container.PromptRelay = serviceContainer.PromptRelay
	container.services = serviceContainer

	logger.WithFields(logrus.Fields{
		"environment": cfg.Environment,
		"key_source":  cfg.KeySource.Type,
		"projection":  cfg.Relay.Projection,
		"auth":        cfg.AuthEnabled(),
	}).Info("Container initialized")

	return container, nil
}

// Close cleans up all resources
func (c *Container) Close() error {
	if c.services != nil {
		if err := c.services.Close(); err != nil {
			return fmt.Errorf("failed to close services: %w", err)
		}
	}

	if c.upstream != nil {
		c.upstream.CloseIdleConnections()
	}

	return nil
}
