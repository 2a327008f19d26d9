package domain

import "errors"

// Common domain errors
var (
	ErrConfigInvalid       = errors.New("invalid configuration")
	ErrUnknownHost         = errors.New("unrecognized host")
	ErrInvalidRequest      = errors.New("invalid request")
	ErrUnsupportedMode     = errors.New("operation not supported in this backend mode")
	ErrDisabledInDemo      = errors.New("service disabled in demo mode")
	ErrMissingEnv          = errors.New("missing environment variable")
	ErrSessionInvalid      = errors.New("session cookie rejected")
	ErrUpstreamUnreachable = errors.New("upstream service unreachable")
)

// DomainError wraps errors with additional context.
//
//nolint:revive // Name is intentionally verbose to distinguish domain-layer errors
type DomainError struct {
	Err     error
	Code    string
	Message string
	Details map[string]any
}

func (e *DomainError) Error() string {
	if e.Message != "" {
		return e.Message
	}
	return e.Err.Error()
}

func (e *DomainError) Unwrap() error {
	return e.Err
}

// ErrorResponse defines the standard JSON error model returned by the data and admin planes.
// TraceID carries the current OpenTelemetry trace identifier when available.
type ErrorResponse struct {
	Code    string `json:"code"`               // Machine-readable error code (e.g., UPSTREAM_UNREACHABLE)
	Message string `json:"message"`            // Human-readable message (safe for logs)
	TraceID string `json:"trace_id,omitempty"` // Optional trace/correlation ID
}
