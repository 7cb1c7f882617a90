package core

import (
	"fmt"
	"time"
)

// ErrorCode classifies a failure for routing decisions (retry, DLQ,
// HTTP status). Codes are stable strings carried on DLQ records and
// metrics labels.
type ErrorCode string

const (
	ErrorCodeValidation     ErrorCode = "validation"
	ErrorCodeAuthentication ErrorCode = "authentication"
	ErrorCodeRateLimited    ErrorCode = "rate_limited"
	ErrorCodeTransient      ErrorCode = "transient"
	ErrorCodePermanent      ErrorCode = "permanent"
	ErrorCodeBus            ErrorCode = "bus"
	ErrorCodeDuplicate      ErrorCode = "duplicate"
	ErrorCodeUnsupported    ErrorCode = "unsupported"
	ErrorCodeInternal       ErrorCode = "internal"
)

// DomainError is the generic domain failure carrying a stable code
// and, for rate-limited failures, the delay after which a retry may
// succeed.
type DomainError struct {
	Code       ErrorCode
	Message    string
	RetryAfter time.Duration
	Err        error
}

func (e *DomainError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *DomainError) Unwrap() error { return e.Err }

// ErrAdapterNotFound indicates that no adapter descriptor matches the
// requested name or platform.
type ErrAdapterNotFound struct {
	Name     string
	Platform Platform
}

func (e *ErrAdapterNotFound) Error() string {
	if e.Name != "" {
		return fmt.Sprintf("adapter %q not registered", e.Name)
	}
	return fmt.Sprintf("no egress adapter for platform %s", e.Platform)
}

// ErrUnsupportedOperation indicates that an adapter was asked for an
// operation its declared kind does not allow.
type ErrUnsupportedOperation struct {
	Adapter   string
	Operation string
}

func (e *ErrUnsupportedOperation) Error() string {
	return fmt.Sprintf("adapter %q does not support %s", e.Adapter, e.Operation)
}

// ErrInvalidInput indicates a domain-level input validation failure.
type ErrInvalidInput struct {
	Field   string
	Message string
}

func (e *ErrInvalidInput) Error() string {
	if e.Field != "" {
		return fmt.Sprintf("invalid %s: %s", e.Field, e.Message)
	}
	return e.Message
}
