package secrets

import (
	"context"
	"fmt"
	"strings"

	"github.com/spf13/viper"
)

// SourceType represents where the provider key is read from
type SourceType string

const (
	SourceTypeEnv            SourceType = "env"
	SourceTypeSecretsManager SourceType = "aws-secretsmanager"
)

// Source provides the provider API key
type Source interface {
	APIKey(ctx context.Context) (string, error)
}

// SourceConfig selects and configures a key source
type SourceConfig struct {
	Type     string
	SecretID string
	Field    string
	Region   string
	// Viper is used by the env source; nil means the global instance
	Viper *viper.Viper
}

// NewSource creates a key source based on the provided configuration
func NewSource(ctx context.Context, config *SourceConfig) (Source, error) {
	if config == nil {
		return nil, fmt.Errorf("key source config is required")
	}

	switch SourceType(strings.ToLower(strings.TrimSpace(config.Type))) {
	case "", SourceTypeEnv:
		return NewEnvSource(config.Viper), nil
	case SourceTypeSecretsManager:
		source, err := NewSecretsManagerSourceFromEnv(ctx, config.Region, config.SecretID, config.Field)
		if err != nil {
			return nil, fmt.Errorf("failed to create %s key source: %w", config.Type, err)
		}
		return source, nil
	default:
		return nil, fmt.Errorf("unsupported key source: %s", config.Type)
	}
}
