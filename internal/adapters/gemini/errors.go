package gemini

import (
	"errors"
)

// Client errors
var (
	ErrInvalidCall      = errors.New("invalid upstream call")
	ErrEncodeRequest    = errors.New("failed to encode generateContent request")
	ErrRequestFailed    = errors.New("generateContent request failed")
	ErrRequestTimeout   = errors.New("generateContent request timed out")
	ErrRequestCancelled = errors.New("generateContent request cancelled")
)
