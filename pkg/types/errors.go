package types

import (
	"errors"
	"fmt"
)

// ErrorKind classifies extraction failures so the HTTP layer can map
// each one to an appropriate client-facing status.
type ErrorKind string

const (
	ErrNotFound        ErrorKind = "not_found"
	ErrForbidden       ErrorKind = "forbidden_or_blocked"
	ErrAntiBot         ErrorKind = "anti_bot_detected"
	ErrMalformedURL    ErrorKind = "malformed_url"
	ErrDataNotFound    ErrorKind = "data_not_found"
	ErrRecordNotFound  ErrorKind = "record_not_found"
	ErrNoPlayableMedia ErrorKind = "no_playable_media"
	ErrFetchFailed     ErrorKind = "fetch_failed"
)

// ExtractError is a classified extraction failure.
// Status is only set for ErrFetchFailed and carries the upstream HTTP status.
type ExtractError struct {
	Kind    ErrorKind
	Status  int
	Message string
	Err     error
}

func (e *ExtractError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *ExtractError) Unwrap() error {
	return e.Err
}

// NewExtractError creates a classified error with the given kind.
func NewExtractError(kind ErrorKind, message string) *ExtractError {
	return &ExtractError{Kind: kind, Message: message}
}

// WrapExtractError classifies an underlying error, typically a network failure.
func WrapExtractError(kind ErrorKind, message string, err error) *ExtractError {
	return &ExtractError{Kind: kind, Message: message, Err: err}
}

// FetchFailed creates a fetch_failed error carrying the upstream HTTP status.
func FetchFailed(status int) *ExtractError {
	return &ExtractError{
		Kind:    ErrFetchFailed,
		Status:  status,
		Message: fmt.Sprintf("unexpected HTTP status %d", status),
	}
}

// KindOf returns the classification of err, or "" if it is unclassified.
func KindOf(err error) ErrorKind {
	var ee *ExtractError
	if errors.As(err, &ee) {
		return ee.Kind
	}
	return ""
}
