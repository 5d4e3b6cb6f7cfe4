package tripo

import "fmt"

// ErrorCode classifies every failure the client can surface.
type ErrorCode string

const (
	// ErrLocalIO: a local file could not be opened, read, or written.
	ErrLocalIO ErrorCode = "LOCAL_IO"
	// ErrTransport: the HTTP request itself failed, or the service answered
	// with a non-2xx status.
	ErrTransport ErrorCode = "TRANSPORT"
	// ErrServiceRejection: the service envelope carried code != 0.
	ErrServiceRejection ErrorCode = "SERVICE_REJECTION"
	// ErrMalformedResponse: an expected field was missing from the envelope.
	ErrMalformedResponse ErrorCode = "MALFORMED_RESPONSE"
	// ErrJobTimeout: the local wall clock expired; the remote job may still
	// be running.
	ErrJobTimeout ErrorCode = "JOB_TIMEOUT"
	// ErrJobFailed: the job reached a terminal failure status.
	ErrJobFailed ErrorCode = "JOB_FAILED"
	// ErrNoArtifact: a successful job carried no usable output URL.
	ErrNoArtifact ErrorCode = "NO_ARTIFACT"
)

// Error is the structured error returned by every client operation.
// None of these are retried by the client; callers decide.
type Error struct {
	Code       ErrorCode  `json:"code"`
	Message    string     `json:"message"`
	HTTPStatus int        `json:"http_status,omitempty"`
	TaskStatus TaskStatus `json:"task_status,omitempty"`
	Cause      error      `json:"-"`
}

// Error implements the error interface.
func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("[%s] %s: %v", e.Code, e.Message, e.Cause)
	}
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

// Unwrap returns the underlying cause.
func (e *Error) Unwrap() error {
	return e.Cause
}

// NewError creates a new Error with the given code and message.
func NewError(code ErrorCode, message string) *Error {
	return &Error{Code: code, Message: message}
}

// Errorf creates a new Error with a formatted message.
func Errorf(code ErrorCode, format string, args ...any) *Error {
	return &Error{Code: code, Message: fmt.Sprintf(format, args...)}
}

// WithCause attaches the underlying cause.
func (e *Error) WithCause(cause error) *Error {
	e.Cause = cause
	return e
}

// WithHTTPStatus records the HTTP status that produced the error.
func (e *Error) WithHTTPStatus(status int) *Error {
	e.HTTPStatus = status
	return e
}

// WithTaskStatus records the terminal task status that produced the error.
func (e *Error) WithTaskStatus(status TaskStatus) *Error {
	e.TaskStatus = status
	return e
}

// CodeOf extracts the error code from err, or "" if err is not a *Error.
func CodeOf(err error) ErrorCode {
	if e, ok := err.(*Error); ok {
		return e.Code
	}
	return ""
}
