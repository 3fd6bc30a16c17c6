package model

import (
	"errors"
	"fmt"
	"time"
)

var (
	ErrInvalidInput     = errors.New("invalid input")
	ErrUnsafeInput      = errors.New("unsafe input")
	ErrPermissionDenied = errors.New("permission denied")
	ErrRateLimited      = errors.New("rate limit exceeded")
	ErrEntityNotFound   = errors.New("entity not found")
	ErrEntityAmbiguous  = errors.New("entity reference is ambiguous")
	ErrUpstream         = errors.New("upstream request failed")
	ErrUpstreamTimeout  = errors.New("upstream request timed out")
	ErrInternal         = errors.New("internal error")
)

type ErrorKind string

const (
	KindValidation       ErrorKind = "validation_error"
	KindPermission       ErrorKind = "permission_denied"
	KindRateLimit        ErrorKind = "rate_limited"
	KindEntityResolution ErrorKind = "entity_resolution"
	KindUpstream         ErrorKind = "upstream_error"
	KindInternal         ErrorKind = "internal_error"
)

// PipelineError is the typed failure every pipeline stage returns.
// Detail is the only text that may reach the caller; Err stays server side.
type PipelineError struct {
	Kind   ErrorKind
	Op     string
	Err    error
	Detail string
	Intent Intent

	Fields     []FieldError
	Threats    []ThreatKind
	RetryAfter time.Duration
	Remaining  int
	Timeout    bool
	Allowed    []Intent
	Candidates []Entity
	Called     []string
}

func (e *PipelineError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Op, e.Kind, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Op, e.Kind)
}

func (e *PipelineError) Unwrap() error { return e.Err }

func NewValidationError(op string, fields []FieldError, threats []ThreatKind) *PipelineError {
	err := ErrInvalidInput
	if len(threats) > 0 {
		err = ErrUnsafeInput
	}
	return &PipelineError{Kind: KindValidation, Op: op, Err: err, Fields: fields, Threats: threats}
}

func NewPermissionError(op string, intent Intent, allowed []Intent) *PipelineError {
	return &PipelineError{Kind: KindPermission, Op: op, Err: ErrPermissionDenied, Intent: intent, Allowed: allowed}
}

func NewRateLimitError(op string, retryAfter time.Duration) *PipelineError {
	return &PipelineError{Kind: KindRateLimit, Op: op, Err: ErrRateLimited, RetryAfter: retryAfter}
}

func NewEntityError(op string, err error, detail string, candidates []Entity) *PipelineError {
	return &PipelineError{Kind: KindEntityResolution, Op: op, Err: err, Detail: detail, Candidates: candidates}
}

// NewUpstreamError wraps a collaborator failure. Timeouts are detected from the cause.
func NewUpstreamError(op string, intent Intent, cause error, detail string) *PipelineError {
	return &PipelineError{
		Kind:    KindUpstream,
		Op:      op,
		Err:     cause,
		Detail:  detail,
		Intent:  intent,
		Timeout: IsTimeout(cause),
	}
}

// IsTimeout reports whether err stems from a deadline rather than a refusal.
func IsTimeout(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, ErrUpstreamTimeout) {
		return true
	}
	var te interface{ Timeout() bool }
	if errors.As(err, &te) && te.Timeout() {
		return true
	}
	return false
}

// KindOf returns the taxonomy entry for err, InternalError when unrecognised.
func KindOf(err error) ErrorKind {
	var pe *PipelineError
	if errors.As(err, &pe) {
		return pe.Kind
	}
	switch {
	case errors.Is(err, ErrInvalidInput), errors.Is(err, ErrUnsafeInput):
		return KindValidation
	case errors.Is(err, ErrPermissionDenied):
		return KindPermission
	case errors.Is(err, ErrRateLimited):
		return KindRateLimit
	case errors.Is(err, ErrEntityNotFound), errors.Is(err, ErrEntityAmbiguous):
		return KindEntityResolution
	case errors.Is(err, ErrUpstream), IsTimeout(err):
		return KindUpstream
	}
	return KindInternal
}
