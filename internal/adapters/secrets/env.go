package secrets

import (
	"context"
	"strings"

	"github.com/spf13/viper"
)

// Environment variables holding the key, in lookup order
var envKeyNames = []string{"API_KEY", "GEMINI_API_KEY"}

// EnvSource reads the key from the environment through viper on every call,
// so a rotated value is picked up without a restart.
type EnvSource struct {
	v *viper.Viper
}

// NewEnvSource creates a key source over v, or over the global viper instance when v is nil
func NewEnvSource(v *viper.Viper) *EnvSource {
	if v == nil {
		v = viper.GetViper()
	}
	v.AutomaticEnv()
	return &EnvSource{v: v}
}

// APIKey returns the first non-blank key variable
func (s *EnvSource) APIKey(ctx context.Context) (string, error) {
	for _, name := range envKeyNames {
		if key := strings.TrimSpace(s.v.GetString(name)); key != "" {
			return key, nil
		}
	}
	return "", NewSecretError("LookupEnv", strings.Join(envKeyNames, "|"), ErrSecretNotFound, false)
}
