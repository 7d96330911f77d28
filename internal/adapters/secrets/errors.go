package secrets

import (
	"errors"
	"fmt"
)

// Common key source errors
var (
	ErrSecretNotFound    = errors.New("secret not found")
	ErrSecretEmpty       = errors.New("secret is empty")
	ErrFieldNotFound     = errors.New("secret field not found")
	ErrInvalidSecret     = errors.New("secret is not a JSON object")
	ErrSourceUnavailable = errors.New("secret source unavailable")
	ErrThrottled         = errors.New("secret source throttled")
)

// SecretError represents a key source error with additional context
type SecretError struct {
	Op        string // Operation that failed (e.g., "GetSecretValue")
	SecretID  string // Secret involved in the operation, never the secret value
	Err       error  // Underlying error
	Retryable bool   // Whether the operation can be retried
}

func (e *SecretError) Error() string {
	if e.SecretID != "" {
		return fmt.Sprintf("secrets %s failed for '%s': %v", e.Op, e.SecretID, e.Err)
	}
	return fmt.Sprintf("secrets %s failed: %v", e.Op, e.Err)
}

func (e *SecretError) Unwrap() error {
	return e.Err
}

// NewSecretError creates a new SecretError
func NewSecretError(op, secretID string, err error, retryable bool) *SecretError {
	return &SecretError{
		Op:        op,
		SecretID:  secretID,
		Err:       err,
		Retryable: retryable,
	}
}

// IsNotFound returns true if the key is absent from its source
func IsNotFound(err error) bool {
	return errors.Is(err, ErrSecretNotFound) || errors.Is(err, ErrSecretEmpty) || errors.Is(err, ErrFieldNotFound)
}

// IsRetryable returns true if the error indicates a retryable condition
func IsRetryable(err error) bool {
	var secretErr *SecretError
	if errors.As(err, &secretErr) {
		return secretErr.Retryable
	}
	return errors.Is(err, ErrSourceUnavailable) || errors.Is(err, ErrThrottled)
}
