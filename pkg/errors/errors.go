package errors

import (
	"errors"
	"fmt"
	"runtime"
	"strings"
)

// Common sentinel errors for quick checks
var (
	// ErrNotFound is returned when an account or schema does not exist remotely.
	ErrNotFound = errors.New("not found")

	// ErrInvalidInput is returned when local input is malformed.
	ErrInvalidInput = errors.New("invalid input")

	// ErrUnavailable is returned when the remote service cannot be reached.
	ErrUnavailable = errors.New("service unavailable")
)

// Error is the base interface for all custom errors in the harness.
// It extends the standard error interface with additional context.
type Error interface {
	error
	// Code returns the error code
	Code() string
	// Message returns the human-readable error message
	Message() string
	// Unwrap returns the underlying cause
	Unwrap() error
}

// BaseError provides a foundation for all typed errors.
type BaseError struct {
	code    string
	message string
	cause   error
	stack   []uintptr
}

// Error implements the error interface.
func (e *BaseError) Error() string {
	if e.cause != nil {
		return fmt.Sprintf("%s: %v", e.message, e.cause)
	}
	return e.message
}

// Code returns the error code.
func (e *BaseError) Code() string {
	return e.code
}

// Message returns the error message.
func (e *BaseError) Message() string {
	return e.message
}

// Unwrap returns the underlying cause.
func (e *BaseError) Unwrap() error {
	return e.cause
}

// Stack returns the captured stack trace.
func (e *BaseError) Stack() []uintptr {
	return e.stack
}

// captureStack captures the current stack trace.
func captureStack(skip int) []uintptr {
	const maxDepth = 32
	stack := make([]uintptr, maxDepth)
	n := runtime.Callers(skip+2, stack)
	return stack[:n]
}

// StackTrace returns a formatted stack trace string.
func (e *BaseError) StackTrace() string {
	if len(e.stack) == 0 {
		return ""
	}

	var buf strings.Builder
	frames := runtime.CallersFrames(e.stack)
	for {
		frame, more := frames.Next()
		if !strings.Contains(frame.File, "runtime/") {
			fmt.Fprintf(&buf, "%s\n\t%s:%d\n", frame.Function, frame.File, frame.Line)
		}
		if !more {
			break
		}
	}
	return buf.String()
}

// ValidationError represents malformed local input (bad account name, payload
// that does not fit the schema, and so on).
type ValidationError struct {
	*BaseError
	Field string
	Value interface{}
}

// NewValidationError creates a new validation error.
func NewValidationError(field, message string, value interface{}) *ValidationError {
	return &ValidationError{
		BaseError: &BaseError{
			code:    CodeValidation,
			message: message,
			stack:   captureStack(1),
		},
		Field: field,
		Value: value,
	}
}

// Error implements the error interface.
func (e *ValidationError) Error() string {
	if e.Field != "" {
		return fmt.Sprintf("validation error: %s: %s", e.Field, e.message)
	}
	return fmt.Sprintf("validation error: %s", e.message)
}

// ConfigurationError is returned when the harness cannot be configured, most
// commonly because a signing key is malformed.
type ConfigurationError struct {
	*BaseError
	Setting string
}

// NewConfigurationError creates a new configuration error.
func NewConfigurationError(setting, message string, cause error) *ConfigurationError {
	if message == "" {
		message = "invalid configuration"
	}
	return &ConfigurationError{
		BaseError: &BaseError{
			code:    CodeConfigError,
			message: message,
			cause:   cause,
			stack:   captureStack(1),
		},
		Setting: setting,
	}
}

// Error implements the error interface.
func (e *ConfigurationError) Error() string {
	msg := e.message
	if e.Setting != "" {
		msg = fmt.Sprintf("%s: %s", e.Setting, msg)
	}
	if e.cause != nil {
		return fmt.Sprintf("configuration error: %s: %v", msg, e.cause)
	}
	return fmt.Sprintf("configuration error: %s", msg)
}

// NotFoundError represents an account or schema that the remote service does not know.
type NotFoundError struct {
	*BaseError
	Resource string
	ID       string
}

// NewNotFoundError creates a new not found error.
func NewNotFoundError(resource, id string) *NotFoundError {
	return &NotFoundError{
		BaseError: &BaseError{
			code:    CodeNotFound,
			message: fmt.Sprintf("%s not found", resource),
			stack:   captureStack(1),
		},
		Resource: resource,
		ID:       id,
	}
}

// Error implements the error interface.
func (e *NotFoundError) Error() string {
	if e.ID != "" {
		return fmt.Sprintf("%s '%s' not found", e.Resource, e.ID)
	}
	return fmt.Sprintf("%s not found", e.Resource)
}

// Is lets errors.Is(err, ErrNotFound) match typed not-found errors.
func (e *NotFoundError) Is(target error) bool {
	return target == ErrNotFound
}

// Capability kinds reported by UnknownCapabilityError.
const (
	CapabilityAction = "action"
	CapabilityTable  = "table"
)

// UnknownCapabilityError is returned when an action or table name is not part
// of an account's current schema. No remote call is made in that case.
type UnknownCapabilityError struct {
	*BaseError
	Account string
	Kind    string
	Name    string
}

// NewUnknownCapabilityError creates a new unknown capability error.
func NewUnknownCapabilityError(account, kind, name string) *UnknownCapabilityError {
	return &UnknownCapabilityError{
		BaseError: &BaseError{
			code:    CodeUnknownCapability,
			message: fmt.Sprintf("account %s has no %s named %s", account, kind, name),
			stack:   captureStack(1),
		},
		Account: account,
		Kind:    kind,
		Name:    name,
	}
}

// SubmissionRejectedError carries the remote service's rejection reason.
// Reason is kept byte-for-byte as the service sent it and Error() includes it
// unaltered, so callers may match on substrings such as "already taken".
type SubmissionRejectedError struct {
	*BaseError
	Reason     string
	RemoteCode int
	RemoteName string
	StatusCode int
}

// NewSubmissionRejectedError creates a new rejection error.
func NewSubmissionRejectedError(reason string, statusCode int) *SubmissionRejectedError {
	return &SubmissionRejectedError{
		BaseError: &BaseError{
			code:    CodeSubmissionRejected,
			message: reason,
			stack:   captureStack(1),
		},
		Reason:     reason,
		StatusCode: statusCode,
	}
}

// WithRemote records the service-side error code and name.
func (e *SubmissionRejectedError) WithRemote(code int, name string) *SubmissionRejectedError {
	e.RemoteCode = code
	e.RemoteName = name
	return e
}

// Error implements the error interface.
func (e *SubmissionRejectedError) Error() string {
	return e.Reason
}

// TransportError represents a connectivity or protocol failure, i.e. a failure
// for which the remote service issued no reason of its own.
type TransportError struct {
	*BaseError
	Endpoint   string
	StatusCode int
}

// NewTransportError creates a new transport error.
func NewTransportError(endpoint string, statusCode int, cause error) *TransportError {
	message := fmt.Sprintf("%s request failed", endpoint)
	if statusCode != 0 {
		message = fmt.Sprintf("%s request failed with status %d", endpoint, statusCode)
	}
	return &TransportError{
		BaseError: &BaseError{
			code:    CodeNetworkError,
			message: message,
			cause:   cause,
			stack:   captureStack(1),
		},
		Endpoint:   endpoint,
		StatusCode: statusCode,
	}
}

// Is lets errors.Is(err, ErrUnavailable) match transport errors.
func (e *TransportError) Is(target error) bool {
	return target == ErrUnavailable
}

// DeploymentError reports a failed contract deployment. The remote account may
// be partially updated (code set, schema not set); nothing is rolled back.
type DeploymentError struct {
	*BaseError
	Account string
	Package string
	Step    string
}

// NewDeploymentError creates a new deployment error.
func NewDeploymentError(account, pkg, step string, cause error) *DeploymentError {
	return &DeploymentError{
		BaseError: &BaseError{
			code:    CodeDeploymentError,
			message: fmt.Sprintf("deploy %s to %s failed at %s", pkg, account, step),
			cause:   cause,
			stack:   captureStack(1),
		},
		Account: account,
		Package: pkg,
		Step:    step,
	}
}

// Wrap wraps an error with additional context.
// If the error is already one of our custom types, it preserves the code
// and adds the cause chain. Otherwise the code is CodeInternal.
func Wrap(err error, message string) error {
	if err == nil {
		return nil
	}

	code := CodeInternal
	var e Error
	if errors.As(err, &e) {
		code = e.Code()
	}

	return &BaseError{
		code:    code,
		message: message,
		cause:   err,
		stack:   captureStack(1),
	}
}

// Wrapf wraps an error with a formatted message.
func Wrapf(err error, format string, args ...interface{}) error {
	return Wrap(err, fmt.Sprintf(format, args...))
}

// New creates a new error with a message.
func New(message string) error {
	return &BaseError{
		code:    CodeInternal,
		message: message,
		stack:   captureStack(1),
	}
}

// Newf creates a new error with a formatted message.
func Newf(format string, args ...interface{}) error {
	return New(fmt.Sprintf(format, args...))
}
