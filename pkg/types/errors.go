package types

import (
	"errors"
	"fmt"
	"time"
)

// ValidationError represents an error that occurs during structural
// validation of a snapshot payload or configuration.
type ValidationError struct {
	Message string
}

// Error returns the error message.
func (e *ValidationError) Error() string {
	return e.Message
}

// NewValidationError creates a new ValidationError with the given message.
func NewValidationError(message string) *ValidationError {
	return &ValidationError{Message: message}
}

// IsValidationError checks if an error is a ValidationError.
func IsValidationError(err error) bool {
	var ve *ValidationError
	return errors.As(err, &ve)
}

// FetchError represents a failure to obtain a usable snapshot from the
// control plane: a network error, a non-2xx response, or a payload that
// failed structural validation.
type FetchError struct {
	Reason string
	// Poisoned marks payloads rejected for carrying reserved structural
	// keys. These are logged at elevated severity since they may indicate
	// a compromised upstream.
	Poisoned bool
	Err      error
}

// Error returns the error message.
func (e *FetchError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("snapshot fetch failed: %s: %v", e.Reason, e.Err)
	}
	return fmt.Sprintf("snapshot fetch failed: %s", e.Reason)
}

// Unwrap returns the underlying cause.
func (e *FetchError) Unwrap() error {
	return e.Err
}

// NewFetchError creates a FetchError with the given reason and cause.
func NewFetchError(reason string, err error) *FetchError {
	return &FetchError{Reason: reason, Err: err}
}

// NewPoisonedPayloadError creates a FetchError for a payload whose
// mapping carries a reserved structural key.
func NewPoisonedPayloadError(mapping, key string) *FetchError {
	return &FetchError{
		Reason:   fmt.Sprintf("poisoned payload: reserved key %q in %s mapping", key, mapping),
		Poisoned: true,
	}
}

// IsPoisonedPayload checks if an error is a FetchError raised for a
// poisoned payload.
func IsPoisonedPayload(err error) bool {
	var fe *FetchError
	return errors.As(err, &fe) && fe.Poisoned
}

// DenyCode identifies why a request was denied admission.
type DenyCode string

const (
	DenySnapshotUnavailable DenyCode = "SNAPSHOT_UNAVAILABLE"
	DenyProjectNotFound     DenyCode = "PROJECT_NOT_FOUND"
	DenyProjectSuspended    DenyCode = "PROJECT_SUSPENDED"
	DenyProjectArchived     DenyCode = "PROJECT_ARCHIVED"
	DenyProjectDeleted      DenyCode = "PROJECT_DELETED"
	DenyServiceDisabled     DenyCode = "SERVICE_DISABLED"
	DenyOriginNotAllowed    DenyCode = "ORIGIN_NOT_ALLOWED"
	DenyRateLimitExceeded   DenyCode = "RATE_LIMIT_EXCEEDED"
)

// AdmissionError is the typed denial produced by the enforcement
// pipeline. It carries everything a response formatter needs to render a
// wire-level error without inspecting pipeline internals.
//
// Lifecycle denials deliberately share a status code family and carry no
// project-identifying detail, so an external prober cannot distinguish
// "does not exist" from "exists but blocked".
type AdmissionError struct {
	Code       DenyCode
	Message    string
	HTTPStatus int
	Retryable  bool
	RetryAfter time.Duration
}

// Error returns the error message.
func (e *AdmissionError) Error() string {
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// AsAdmissionError extracts an AdmissionError from err, if present.
func AsAdmissionError(err error) (*AdmissionError, bool) {
	var ae *AdmissionError
	ok := errors.As(err, &ae)
	return ae, ok
}

// NewSnapshotUnavailableError creates the denial used whenever tenant
// state is unknown or too stale to trust. Always retryable.
func NewSnapshotUnavailableError() *AdmissionError {
	return &AdmissionError{
		Code:       DenySnapshotUnavailable,
		Message:    "tenant state temporarily unavailable",
		HTTPStatus: 503,
		Retryable:  true,
	}
}

// NewProjectNotFoundError creates the denial for an unknown project id.
// The message is deliberately generic and never echoes the submitted id.
func NewProjectNotFoundError() *AdmissionError {
	return &AdmissionError{
		Code:       DenyProjectNotFound,
		Message:    "project access denied",
		HTTPStatus: 403,
	}
}

// NewProjectSuspendedError creates the denial for a suspended project.
func NewProjectSuspendedError() *AdmissionError {
	return &AdmissionError{
		Code:       DenyProjectSuspended,
		Message:    "project access denied",
		HTTPStatus: 403,
	}
}

// NewProjectArchivedError creates the denial for an archived project.
func NewProjectArchivedError() *AdmissionError {
	return &AdmissionError{
		Code:       DenyProjectArchived,
		Message:    "project access denied",
		HTTPStatus: 403,
	}
}

// NewProjectDeletedError creates the denial for a deleted project.
func NewProjectDeletedError() *AdmissionError {
	return &AdmissionError{
		Code:       DenyProjectDeleted,
		Message:    "project access denied",
		HTTPStatus: 403,
	}
}

// NewServiceDisabledError creates the denial for a service that is not
// enabled for the resolved project.
func NewServiceDisabledError(service string) *AdmissionError {
	return &AdmissionError{
		Code:       DenyServiceDisabled,
		Message:    fmt.Sprintf("service %q is not available for this project", service),
		HTTPStatus: 403,
	}
}

// NewOriginNotAllowedError creates the denial for a request origin that
// is not on the project's allow list.
func NewOriginNotAllowedError() *AdmissionError {
	return &AdmissionError{
		Code:       DenyOriginNotAllowed,
		Message:    "origin not allowed",
		HTTPStatus: 403,
	}
}

// NewRateLimitExceededError creates the denial for an exhausted rate
// limit window. Retryable after retryAfter.
func NewRateLimitExceededError(retryAfter time.Duration) *AdmissionError {
	return &AdmissionError{
		Code:       DenyRateLimitExceeded,
		Message:    "rate limit exceeded",
		HTTPStatus: 429,
		Retryable:  true,
		RetryAfter: retryAfter,
	}
}
