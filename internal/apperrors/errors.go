// Package apperrors defines the error kinds returned by the workflow services.
package apperrors

import (
	"context"
	"errors"
	"fmt"
)

// Kind classifies a workflow failure
type Kind string

const (
	KindNotFound          Kind = "not_found"
	KindForbidden         Kind = "forbidden"
	KindInvalidTransition Kind = "invalid_transition"
	KindConflict          Kind = "conflict"
	KindUpstreamFailure   Kind = "upstream_failure"
	KindValidation        Kind = "validation_error"
	KindPartialFailure    Kind = "partial_failure"
)

// Sentinel values for errors.Is checks against a kind
var (
	ErrNotFound          = &Error{Kind: KindNotFound}
	ErrForbidden         = &Error{Kind: KindForbidden}
	ErrInvalidTransition = &Error{Kind: KindInvalidTransition}
	ErrConflict          = &Error{Kind: KindConflict}
	ErrUpstreamFailure   = &Error{Kind: KindUpstreamFailure}
	ErrValidation        = &Error{Kind: KindValidation}
	ErrPartialFailure    = &Error{Kind: KindPartialFailure}
)

// Upstream reasons
const (
	ReasonTimeout     = "timeout"
	ReasonUnavailable = "unavailable"
)

// Error is a classified workflow error
type Error struct {
	Kind    Kind
	Message string
	// Field names the offending input for validation errors
	Field string
	// Reason is a machine readable code, e.g. "checklist_incomplete"
	Reason  string
	Details interface{}
	cause   error
}

func (e *Error) Error() string {
	if e.Message == "" {
		return string(e.Kind)
	}
	if e.cause != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.cause)
	}
	return e.Message
}

// Unwrap returns the underlying cause
func (e *Error) Unwrap() error {
	return e.cause
}

// Is matches any *Error of the same kind
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return t.Kind == e.Kind
}

// NotFound reports a missing entity. Also used when the entity exists outside the caller's tenant.
func NotFound(entity string, id interface{}) *Error {
	return &Error{Kind: KindNotFound, Message: fmt.Sprintf("%s %v not found", entity, id)}
}

// Forbidden reports that the actor's role or scope does not permit the action
func Forbidden(action string) *Error {
	return &Error{Kind: KindForbidden, Message: fmt.Sprintf("not permitted to %s", action), Reason: action}
}

// InvalidTransition reports a guard failure. The report is left untouched.
func InvalidTransition(reason, message string, details interface{}) *Error {
	return &Error{Kind: KindInvalidTransition, Message: message, Reason: reason, Details: details}
}

// Conflict reports a concurrent modification. Retryable once.
func Conflict(message string) *Error {
	return &Error{Kind: KindConflict, Message: message}
}

// Upstream wraps a failure of an external collaborator
func Upstream(reason, message string, cause error) *Error {
	return &Error{Kind: KindUpstreamFailure, Message: message, Reason: reason, cause: cause}
}

// Validation reports malformed input on field
func Validation(field, message string) *Error {
	return &Error{Kind: KindValidation, Message: message, Field: field}
}

// OrTimeout reports an expired operation deadline as an upstream timeout and
// returns err unchanged otherwise
func OrTimeout(ctx context.Context, err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(ctx.Err(), context.DeadlineExceeded) {
		if _, ok := As(err); ok && !errors.Is(err, context.DeadlineExceeded) {
			return err
		}
		return Upstream(ReasonTimeout, "operation timed out", err)
	}
	return err
}

// OrUnavailable classifies a failed call to an external collaborator:
// deadline expiry becomes a timeout and anything unclassified becomes unavailable
func OrUnavailable(ctx context.Context, err error, message string) error {
	if err == nil {
		return nil
	}
	if _, ok := As(err); ok {
		return OrTimeout(ctx, err)
	}
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(ctx.Err(), context.DeadlineExceeded) {
		return Upstream(ReasonTimeout, "operation timed out", err)
	}
	return Upstream(ReasonUnavailable, message, err)
}

// KindOf returns the kind of err, or "" when err is not classified
func KindOf(err error) Kind {
	var pf *PartialFailure
	if errors.As(err, &pf) {
		return KindPartialFailure
	}
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return ""
}

// As returns err as *Error when it is one
func As(err error) (*Error, bool) {
	var e *Error
	if errors.As(err, &e) {
		return e, true
	}
	return nil, false
}

// ItemFailure is one failed entry of a batch operation
type ItemFailure struct {
	ID     string `json:"id"`
	Reason string `json:"reason"`
}

// PartialFailure is returned by batch operations when some items failed
type PartialFailure struct {
	Succeeded []string      `json:"succeeded"`
	Failed    []ItemFailure `json:"failed"`
}

func (p *PartialFailure) Error() string {
	return fmt.Sprintf("partial failure: %d succeeded, %d failed", len(p.Succeeded), len(p.Failed))
}

// Is matches ErrPartialFailure
func (p *PartialFailure) Is(target error) bool {
	t, ok := target.(*Error)
	return ok && t.Kind == KindPartialFailure
}
