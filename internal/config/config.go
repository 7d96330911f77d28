package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
	"github.com/sirupsen/logrus"
	"github.com/spf13/viper"

	"gemini-relay-api/internal/models"
)

// Config holds all configuration for the application
type Config struct {
	Environment string `validate:"required"`
	Port        string `validate:"required,numeric"`
	Endpoint    string `validate:"required,startswith=/"`
	Logging     LoggingConfig
	KeySource   KeySourceConfig
	Model       ModelConfig
	Upstream    UpstreamConfig
	Generation  GenerationConfig
	Relay       RelayConfig
	CORS        CORSConfig
	Auth        AuthConfig
	RateLimit   RateLimitConfig
	Metrics     MetricsConfig
}

// LoggingConfig holds logrus settings
type LoggingConfig struct {
	Level  string `validate:"required,oneof=trace debug info warn warning error fatal panic"`
	Format string `validate:"required,oneof=text json"`
}

// KeySourceConfig says where the provider API key is read from.
// The key itself is never stored here; it is read per call.
type KeySourceConfig struct {
	Type     string `validate:"required,oneof=env aws-secretsmanager"`
	SecretID string `validate:"required_if=Type aws-secretsmanager"`
	Field    string
	Region   string
}

// ModelConfig holds model selection settings
type ModelConfig struct {
	Default   string
	AllowList []string `validate:"dive,required"`
}

// UpstreamConfig holds provider client settings
type UpstreamConfig struct {
	BaseURL             string        `validate:"required,url"`
	Timeout             time.Duration `validate:"min=1ms"`
	MaxResponseBodySize int           `validate:"min=1024"`
	MaxConnsPerHost     int           `validate:"min=0"`
}

// GenerationConfig holds the fixed generation parameters
type GenerationConfig struct {
	Temperature     float64 `validate:"min=0,max=2"`
	TopP            float64 `validate:"min=0,max=1"`
	MaxOutputTokens int     `validate:"min=1"`
}

// RelayConfig holds response shaping settings
type RelayConfig struct {
	Projection         string `validate:"required,oneof=text raw"`
	HealthcheckEnabled bool
	ServiceName        string `validate:"required"`
}

// CORSConfig holds the cross-origin headers attached to relay responses
type CORSConfig struct {
	Enabled      bool
	AllowOrigin  string
	AllowMethods string
	AllowHeaders string
}

// AuthConfig holds shared-secret bearer token settings
type AuthConfig struct {
	SharedSecret string
	TokenTTL     time.Duration `validate:"min=1m"`
	Issuer       string
}

// RateLimitConfig holds server-mode rate limiting. RPS 0 disables it.
type RateLimitConfig struct {
	RPS   float64 `validate:"min=0"`
	Burst int     `validate:"min=1"`
}

// MetricsConfig holds prometheus exposure settings
type MetricsConfig struct {
	Enabled bool
	Path    string `validate:"required,startswith=/"`
}

// Load loads configuration from environment variables and config files
func Load() (*Config, error) {
	// Load .env file if it exists
	_ = godotenv.Load()

	// Set up Viper
	viper.AutomaticEnv()
	viper.SetDefault("ENVIRONMENT", "development")
	viper.SetDefault("PORT", "8081")
	viper.SetDefault("RELAY_ENDPOINT", "/api/gemini")
	viper.SetDefault("LOG_LEVEL", "info")
	viper.SetDefault("LOG_FORMAT", "text")
	viper.SetDefault("API_KEY_SOURCE", "env")
	viper.SetDefault("MODEL_ALLOW_LIST", strings.Join(models.DefaultAllowedModels, ","))
	viper.SetDefault("UPSTREAM_BASE_URL", models.DefaultUpstreamBaseURL)
	viper.SetDefault("UPSTREAM_TIMEOUT", models.DefaultUpstreamTimeout.String())
	viper.SetDefault("UPSTREAM_MAX_RESPONSE_BYTES", 8<<20)
	viper.SetDefault("UPSTREAM_MAX_CONNS_PER_HOST", 0)
	viper.SetDefault("GENERATION_TEMPERATURE", 0.7)
	viper.SetDefault("GENERATION_TOP_P", 0.95)
	viper.SetDefault("GENERATION_MAX_OUTPUT_TOKENS", 2048)
	viper.SetDefault("RESPONSE_PROJECTION", string(models.ProjectionText))
	viper.SetDefault("HEALTHCHECK_ENABLED", true)
	viper.SetDefault("SERVICE_NAME", models.DefaultServiceName)
	viper.SetDefault("CORS_ENABLED", true)
	viper.SetDefault("CORS_ALLOW_ORIGIN", "*")
	viper.SetDefault("CORS_ALLOW_METHODS", "POST, OPTIONS")
	viper.SetDefault("CORS_ALLOW_HEADERS", "Content-Type")
	viper.SetDefault("AUTH_TOKEN_TTL", "24h")
	viper.SetDefault("AUTH_TOKEN_ISSUER", "gemini-relay-api")
	viper.SetDefault("RATE_LIMIT_RPS", 0)
	viper.SetDefault("RATE_LIMIT_BURST", 10)
	viper.SetDefault("METRICS_ENABLED", true)
	viper.SetDefault("METRICS_PATH", "/metrics")

	config := &Config{
		Environment: viper.GetString("ENVIRONMENT"),
		Port:        viper.GetString("PORT"),
		Endpoint:    viper.GetString("RELAY_ENDPOINT"),
		Logging: LoggingConfig{
			Level:  strings.ToLower(viper.GetString("LOG_LEVEL")),
			Format: strings.ToLower(viper.GetString("LOG_FORMAT")),
		},
		KeySource: KeySourceConfig{
			Type:     strings.ToLower(viper.GetString("API_KEY_SOURCE")),
			SecretID: viper.GetString("API_KEY_SECRET_ID"),
			Field:    viper.GetString("API_KEY_SECRET_FIELD"),
			Region:   viper.GetString("AWS_REGION"),
		},
		Model: ModelConfig{
			Default:   firstNonEmpty(viper.GetString("MODEL_ID"), viper.GetString("GEMINI_MODEL")),
			AllowList: splitList(viper.GetString("MODEL_ALLOW_LIST")),
		},
		Upstream: UpstreamConfig{
			BaseURL:             viper.GetString("UPSTREAM_BASE_URL"),
			Timeout:             viper.GetDuration("UPSTREAM_TIMEOUT"),
			MaxResponseBodySize: viper.GetInt("UPSTREAM_MAX_RESPONSE_BYTES"),
			MaxConnsPerHost:     viper.GetInt("UPSTREAM_MAX_CONNS_PER_HOST"),
		},
		Generation: GenerationConfig{
			Temperature:     viper.GetFloat64("GENERATION_TEMPERATURE"),
			TopP:            viper.GetFloat64("GENERATION_TOP_P"),
			MaxOutputTokens: viper.GetInt("GENERATION_MAX_OUTPUT_TOKENS"),
		},
		Relay: RelayConfig{
			Projection:         strings.ToLower(viper.GetString("RESPONSE_PROJECTION")),
			HealthcheckEnabled: viper.GetBool("HEALTHCHECK_ENABLED"),
			ServiceName:        viper.GetString("SERVICE_NAME"),
		},
		CORS: CORSConfig{
			Enabled:      viper.GetBool("CORS_ENABLED"),
			AllowOrigin:  viper.GetString("CORS_ALLOW_ORIGIN"),
			AllowMethods: viper.GetString("CORS_ALLOW_METHODS"),
			AllowHeaders: viper.GetString("CORS_ALLOW_HEADERS"),
		},
		Auth: AuthConfig{
			SharedSecret: viper.GetString("RELAY_SHARED_SECRET"),
			TokenTTL:     viper.GetDuration("AUTH_TOKEN_TTL"),
			Issuer:       viper.GetString("AUTH_TOKEN_ISSUER"),
		},
		RateLimit: RateLimitConfig{
			RPS:   viper.GetFloat64("RATE_LIMIT_RPS"),
			Burst: viper.GetInt("RATE_LIMIT_BURST"),
		},
		Metrics: MetricsConfig{
			Enabled: viper.GetBool("METRICS_ENABLED"),
			Path:    viper.GetString("METRICS_PATH"),
		},
	}

	if err := config.Validate(); err != nil {
		return nil, err
	}

	return config, nil
}

// Validate checks the configuration against its struct tags
func (c *Config) Validate() error {
	if err := validator.New().Struct(c); err != nil {
		var validationErrs validator.ValidationErrors
		if errors.As(err, &validationErrs) {
			problems := make([]string, 0, len(validationErrs))
			for _, fe := range validationErrs {
				problems = append(problems, fmt.Sprintf("%s failed '%s'", fe.Namespace(), fe.Tag()))
			}
			return fmt.Errorf("invalid configuration: %s", strings.Join(problems, "; "))
		}
		return fmt.Errorf("invalid configuration: %w", err)
	}
	return nil
}

// IsProduction reports whether the service runs in production
func (c *Config) IsProduction() bool {
	return c.Environment == "production"
}

// AuthEnabled reports whether POST requests need a bearer token
func (c *Config) AuthEnabled() bool {
	return c.Auth.SharedSecret != ""
}

// ConfigureLogging applies the logging settings to logger
func (c *Config) ConfigureLogging(logger *logrus.Logger) {
	level, err := logrus.ParseLevel(c.Logging.Level)
	if err != nil {
		level = logrus.InfoLevel
	}
	logger.SetLevel(level)

	if c.Logging.Format == "json" || c.IsProduction() {
		logger.SetFormatter(&logrus.JSONFormatter{TimestampFormat: time.RFC3339Nano})
	} else {
		logger.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	}
}

// RelayCORS converts the CORS settings to the relay's policy type
func (c *Config) RelayCORS() models.CORSPolicy {
	return models.CORSPolicy{
		Enabled:      c.CORS.Enabled,
		AllowOrigin:  c.CORS.AllowOrigin,
		AllowMethods: c.CORS.AllowMethods,
		AllowHeaders: c.CORS.AllowHeaders,
	}
}

// GenerationParameters converts the generation settings to the wire type
func (c *Config) GenerationParameters() models.GenerationParameters {
	return models.GenerationParameters{
		Temperature:     c.Generation.Temperature,
		TopP:            c.Generation.TopP,
		MaxOutputTokens: c.Generation.MaxOutputTokens,
	}
}

// GetEnv gets an environment variable with a fallback value
func GetEnv(key, fallback string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return fallback
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v = strings.TrimSpace(v); v != "" {
			return v
		}
	}
	return ""
}

func splitList(raw string) []string {
	var out []string
	for _, item := range strings.Split(raw, ",") {
		if item = strings.TrimSpace(item); item != "" {
			out = append(out, item)
		}
	}
	return out
}
