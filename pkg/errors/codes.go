package errors

// Error codes for categorizing errors.
const (
	// CodeOK indicates success (not an error).
	CodeOK = "OK"

	// CodeInternal indicates internal errors.
	CodeInternal = "INTERNAL"

	// CodeNotFound indicates an account or schema was not found.
	CodeNotFound = "NOT_FOUND"

	// CodeValidation indicates local input validation failed.
	CodeValidation = "VALIDATION_ERROR"

	// CodeConfigError indicates a configuration error (e.g. a malformed signing key).
	CodeConfigError = "CONFIG_ERROR"

	// CodeUnknownCapability indicates an action or table is not part of the schema.
	CodeUnknownCapability = "UNKNOWN_CAPABILITY"

	// CodeSubmissionRejected indicates the remote service rejected a request.
	CodeSubmissionRejected = "SUBMISSION_REJECTED"

	// CodeNetworkError indicates a network operation failed.
	CodeNetworkError = "NETWORK_ERROR"

	// CodeDeploymentError indicates a contract deployment failed.
	CodeDeploymentError = "DEPLOYMENT_ERROR"

	// CodeSerializationError indicates binary encoding or decoding failed.
	CodeSerializationError = "SERIALIZATION_ERROR"
)

// ErrorCategory represents a high-level error category.
type ErrorCategory string

const (
	// CategoryCaller indicates the caller asked for something invalid.
	CategoryCaller ErrorCategory = "CALLER_ERROR"

	// CategoryRemote indicates the remote service refused the request.
	CategoryRemote ErrorCategory = "REMOTE_ERROR"

	// CategoryNetwork indicates a network-related error.
	CategoryNetwork ErrorCategory = "NETWORK_ERROR"

	// CategoryInternal indicates a bug or unexpected local state.
	CategoryInternal ErrorCategory = "INTERNAL_ERROR"
)

// GetCategory returns the category for an error code.
func GetCategory(code string) ErrorCategory {
	switch code {
	case CodeValidation, CodeConfigError, CodeUnknownCapability:
		return CategoryCaller

	case CodeSubmissionRejected, CodeNotFound:
		return CategoryRemote

	case CodeNetworkError:
		return CategoryNetwork

	default:
		return CategoryInternal
	}
}
