package errors

import (
	"errors"
	"strings"
)

// IsNotFound checks if an error indicates an account or schema was not found.
func IsNotFound(err error) bool {
	if err == nil {
		return false
	}

	var notFoundErr *NotFoundError
	return errors.As(err, &notFoundErr) || errors.Is(err, ErrNotFound)
}

// IsValidation checks if an error is a validation error.
func IsValidation(err error) bool {
	if err == nil {
		return false
	}

	var validationErr *ValidationError
	return errors.As(err, &validationErr) || errors.Is(err, ErrInvalidInput)
}

// IsConfiguration checks if an error is a configuration error.
func IsConfiguration(err error) bool {
	if err == nil {
		return false
	}

	var configErr *ConfigurationError
	return errors.As(err, &configErr)
}

// IsUnknownCapability checks if an error reports an action or table missing from a schema.
func IsUnknownCapability(err error) bool {
	if err == nil {
		return false
	}

	var capErr *UnknownCapabilityError
	return errors.As(err, &capErr)
}

// IsSubmissionRejected checks if the remote service rejected the request.
func IsSubmissionRejected(err error) bool {
	if err == nil {
		return false
	}

	var rejected *SubmissionRejectedError
	return errors.As(err, &rejected)
}

// IsTransport checks if an error is a connectivity or protocol failure.
func IsTransport(err error) bool {
	if err == nil {
		return false
	}

	var transportErr *TransportError
	return errors.As(err, &transportErr) || errors.Is(err, ErrUnavailable)
}

// IsDeployment checks if an error came out of a contract deployment.
func IsDeployment(err error) bool {
	if err == nil {
		return false
	}

	var deployErr *DeploymentError
	return errors.As(err, &deployErr)
}

// RejectionReason returns the verbatim remote rejection text carried by err.
func RejectionReason(err error) (string, bool) {
	var rejected *SubmissionRejectedError
	if errors.As(err, &rejected) {
		return rejected.Reason, true
	}
	return "", false
}

// alreadyExistsMarkers are the rejection fragments the ledger uses for
// idempotent conditions (account name taken, symbol created, same code).
var alreadyExistsMarkers = []string{
	"already taken",
	"already exists",
	"already running",
}

// IsAlreadyExists reports whether err is a remote rejection for something that
// already exists. Callers provisioning fixtures treat these as non-fatal.
func IsAlreadyExists(err error) bool {
	reason, ok := RejectionReason(err)
	if !ok {
		return false
	}
	for _, marker := range alreadyExistsMarkers {
		if strings.Contains(reason, marker) {
			return true
		}
	}
	return false
}

// GetErrorCode extracts the error code from an error.
func GetErrorCode(err error) string {
	if err == nil {
		return CodeOK
	}

	var customErr Error
	if errors.As(err, &customErr) {
		return customErr.Code()
	}

	switch {
	case IsNotFound(err):
		return CodeNotFound
	case IsTransport(err):
		return CodeNetworkError
	case errors.Is(err, ErrInvalidInput):
		return CodeValidation
	default:
		return CodeInternal
	}
}

// Is reports whether any error in err's chain matches target.
func Is(err, target error) bool {
	return errors.Is(err, target)
}

// As finds the first error in err's chain that matches target.
func As(err error, target any) bool {
	return errors.As(err, target)
}
