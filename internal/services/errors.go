package services

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
)

// ErrorKind classifies relay failures
type ErrorKind string

const (
	KindInvalidArgument      ErrorKind = "invalid_argument"
	KindMethodNotAllowed     ErrorKind = "method_not_allowed"
	KindUnauthorized         ErrorKind = "unauthorized"
	KindMisconfiguredService ErrorKind = "misconfigured_service"
	KindUpstreamError        ErrorKind = "upstream_error"
	KindInternalError        ErrorKind = "internal_error"
)

// Messages returned in the error field of relay responses
const (
	MsgMethodNotAllowed  = "method not allowed"
	MsgMissingPrompt     = "missing prompt"
	MsgInvalidBody       = "invalid JSON body"
	MsgBodyTooLarge      = "request body too large"
	MsgUnauthorized      = "unauthorized"
	MsgMissingAPIKey     = "missing API key"
	MsgUpstreamFallback  = "upstream request failed"
	MsgInternalError     = "internal error"
	MsgMalformedUpstream = "malformed upstream response"
)

// RelayError is a failure that maps onto one HTTP response
type RelayError struct {
	Kind    ErrorKind
	Status  int
	Message string
	// Raw is the upstream error body, only set for upstream errors
	Raw json.RawMessage
	// Detail carries diagnostic text for internal errors
	Detail string
	Err    error
}

func (e *RelayError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *RelayError) Unwrap() error {
	return e.Err
}

// cause is the loggable reason. Detail is preferred because it is already free of secrets.
func (e *RelayError) cause() string {
	if e.Detail != "" {
		return e.Detail
	}
	if e.Err != nil {
		return e.Err.Error()
	}
	return ""
}

// NewInvalidArgumentError creates a 400 error
func NewInvalidArgumentError(message string, err error) *RelayError {
	return &RelayError{Kind: KindInvalidArgument, Status: http.StatusBadRequest, Message: message, Err: err}
}

// NewMethodNotAllowedError creates a 405 error
func NewMethodNotAllowedError(method string) *RelayError {
	return &RelayError{
		Kind:    KindMethodNotAllowed,
		Status:  http.StatusMethodNotAllowed,
		Message: MsgMethodNotAllowed,
		Err:     fmt.Errorf("method %q", method),
	}
}

// NewUnauthorizedError creates a 401 error
func NewUnauthorizedError(err error) *RelayError {
	return &RelayError{Kind: KindUnauthorized, Status: http.StatusUnauthorized, Message: MsgUnauthorized, Err: err}
}

// NewMisconfiguredServiceError creates a 500 error for operator mistakes
func NewMisconfiguredServiceError(message string, err error) *RelayError {
	return &RelayError{Kind: KindMisconfiguredService, Status: http.StatusInternalServerError, Message: message, Err: err}
}

// NewUpstreamError relays the provider's own status and body
func NewUpstreamError(status int, message string, raw json.RawMessage) *RelayError {
	if message == "" {
		message = MsgUpstreamFallback
	}
	return &RelayError{Kind: KindUpstreamError, Status: status, Message: message, Raw: raw}
}

// NewInternalError creates a 500 error carrying diagnostic detail
func NewInternalError(message, detail string, err error) *RelayError {
	if message == "" {
		message = MsgInternalError
	}
	return &RelayError{Kind: KindInternalError, Status: http.StatusInternalServerError, Message: message, Detail: detail, Err: err}
}

// AsRelayError converts any error into a RelayError, treating unknown errors as internal
func AsRelayError(err error) *RelayError {
	var relayErr *RelayError
	if errors.As(err, &relayErr) {
		return relayErr
	}
	return NewInternalError(MsgInternalError, err.Error(), err)
}
