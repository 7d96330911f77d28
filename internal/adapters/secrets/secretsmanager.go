package secrets

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/secretsmanager"
	"github.com/aws/aws-sdk-go-v2/service/secretsmanager/types"
	"github.com/aws/smithy-go"
)

// SecretsManagerAPI is the subset of the Secrets Manager client used here
type SecretsManagerAPI interface {
	GetSecretValue(ctx context.Context, params *secretsmanager.GetSecretValueInput, optFns ...func(*secretsmanager.Options)) (*secretsmanager.GetSecretValueOutput, error)
}

// SecretsManagerSource reads the key from AWS Secrets Manager on every call.
// When Field is set the secret string is a JSON object and the key is that field.
type SecretsManagerSource struct {
	api      SecretsManagerAPI
	secretID string
	field    string
	retry    *RetryConfig
}

// NewSecretsManagerSource creates a key source over an existing client
func NewSecretsManagerSource(api SecretsManagerAPI, secretID, field string, retry *RetryConfig) (*SecretsManagerSource, error) {
	if api == nil {
		return nil, fmt.Errorf("secrets manager client is required")
	}
	if strings.TrimSpace(secretID) == "" {
		return nil, fmt.Errorf("secret id is required")
	}
	if retry == nil {
		retry = DefaultRetryConfig()
	}
	return &SecretsManagerSource{
		api:      api,
		secretID: secretID,
		field:    field,
		retry:    retry,
	}, nil
}

// NewSecretsManagerSourceFromEnv builds the AWS client from the default credential chain
func NewSecretsManagerSourceFromEnv(ctx context.Context, region, secretID, field string) (*SecretsManagerSource, error) {
	var opts []func(*awsconfig.LoadOptions) error
	if region != "" {
		opts = append(opts, awsconfig.WithRegion(region))
	}

	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS config: %w", err)
	}

	return NewSecretsManagerSource(secretsmanager.NewFromConfig(awsCfg), secretID, field, nil)
}

// APIKey fetches the current secret value
func (s *SecretsManagerSource) APIKey(ctx context.Context) (string, error) {
	var secret string
	err := WithRetry(ctx, s.retry, func(ctx context.Context) error {
		out, err := s.api.GetSecretValue(ctx, &secretsmanager.GetSecretValueInput{
			SecretId: aws.String(s.secretID),
		})
		if err != nil {
			return s.classify(err)
		}
		secret = aws.ToString(out.SecretString)
		return nil
	})
	if err != nil {
		return "", err
	}

	if s.field != "" {
		return s.extractField(secret)
	}

	if strings.TrimSpace(secret) == "" {
		return "", NewSecretError("GetSecretValue", s.secretID, ErrSecretEmpty, false)
	}
	return strings.TrimSpace(secret), nil
}

func (s *SecretsManagerSource) extractField(secret string) (string, error) {
	var fields map[string]interface{}
	if err := json.Unmarshal([]byte(secret), &fields); err != nil {
		return "", NewSecretError("DecodeSecret", s.secretID, ErrInvalidSecret, false)
	}

	value, ok := fields[s.field].(string)
	if !ok || strings.TrimSpace(value) == "" {
		return "", NewSecretError("DecodeSecret", s.secretID, fmt.Errorf("%w: %s", ErrFieldNotFound, s.field), false)
	}
	return strings.TrimSpace(value), nil
}

// classify maps AWS errors onto the package sentinels
func (s *SecretsManagerSource) classify(err error) error {
	var notFound *types.ResourceNotFoundException
	if errors.As(err, &notFound) {
		return NewSecretError("GetSecretValue", s.secretID, ErrSecretNotFound, false)
	}

	var internal *types.InternalServiceError
	if errors.As(err, &internal) {
		return NewSecretError("GetSecretValue", s.secretID, fmt.Errorf("%w: %v", ErrSourceUnavailable, err), true)
	}

	var apiErr smithy.APIError
	if errors.As(err, &apiErr) && apiErr.ErrorCode() == "ThrottlingException" {
		return NewSecretError("GetSecretValue", s.secretID, fmt.Errorf("%w: %v", ErrThrottled, err), true)
	}

	return NewSecretError("GetSecretValue", s.secretID, err, false)
}
