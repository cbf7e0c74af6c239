package errors

import (
	"errors"
	"fmt"
	"strings"
	"testing"
)

func TestNotFoundError(t *testing.T) {
	tests := []struct {
		name          string
		resource      string
		id            string
		expectedError string
	}{
		{
			name:          "with ID",
			resource:      "account",
			id:            "alice",
			expectedError: "account 'alice' not found",
		},
		{
			name:          "without ID",
			resource:      "schema",
			id:            "",
			expectedError: "schema not found",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := NewNotFoundError(tt.resource, tt.id)
			if err.Error() != tt.expectedError {
				t.Errorf("Expected error %q, got %q", tt.expectedError, err.Error())
			}
			if err.Code() != CodeNotFound {
				t.Errorf("Expected code %q, got %q", CodeNotFound, err.Code())
			}
			if !errors.Is(err, ErrNotFound) {
				t.Error("Expected errors.Is(err, ErrNotFound)")
			}
		})
	}
}

func TestSubmissionRejectedKeepsReasonVerbatim(t *testing.T) {
	reason := "Cannot create account named alice, as that name is already taken"
	err := NewSubmissionRejectedError(reason, 500).WithRemote(3050001, "account_name_exists_exception")

	if err.Error() != reason {
		t.Fatalf("Expected error text to equal the reason, got %q", err.Error())
	}
	if err.RemoteCode != 3050001 || err.RemoteName != "account_name_exists_exception" {
		t.Errorf("Remote details not recorded: %+v", err)
	}

	wrapped := fmt.Errorf("failed to create account: %w", err)
	got, ok := RejectionReason(wrapped)
	if !ok || got != reason {
		t.Fatalf("Expected reason %q through wrapping, got %q (ok=%v)", reason, got, ok)
	}
	if !strings.Contains(wrapped.Error(), reason) {
		t.Errorf("Wrapped error lost the reason: %q", wrapped.Error())
	}
}

func TestIsAlreadyExists(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{"name taken", NewSubmissionRejectedError("as that name is already taken", 500), true},
		{"symbol exists", NewSubmissionRejectedError("assertion failure with message: Symbol already exists", 500), true},
		{"same code", NewSubmissionRejectedError("contract is already running this version of code", 500), true},
		{"other rejection", NewSubmissionRejectedError("assertion failure with message: overdrawn balance", 500), false},
		{"transport", NewTransportError("get_info", 0, errors.New("connection refused: already exists")), false},
		{"nil", nil, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := IsAlreadyExists(tt.err); got != tt.want {
				t.Errorf("IsAlreadyExists() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestErrorKindsAreDistinct(t *testing.T) {
	capErr := NewUnknownCapabilityError("alice", CapabilityAction, "transfer")
	rejected := NewSubmissionRejectedError("missing authority of alice", 500)
	transport := NewTransportError("push_transaction", 502, errors.New("bad gateway"))
	config := NewConfigurationError("keys.private_keys[0]", "invalid private key", errors.New("checksum mismatch"))

	if !IsUnknownCapability(capErr) || IsSubmissionRejected(capErr) {
		t.Error("unknown capability must not look like a rejection")
	}
	if !IsSubmissionRejected(rejected) || IsTransport(rejected) {
		t.Error("rejection must not look like a transport failure")
	}
	if !IsTransport(transport) || IsSubmissionRejected(transport) {
		t.Error("transport failure must not look like a rejection")
	}
	if !IsConfiguration(config) {
		t.Error("expected configuration error")
	}

	if got := capErr.Error(); got != "account alice has no action named transfer" {
		t.Errorf("unexpected message %q", got)
	}
	if !strings.Contains(transport.Error(), "status 502") {
		t.Errorf("expected status in transport message, got %q", transport.Error())
	}
}

func TestDeploymentErrorUnwrapsCause(t *testing.T) {
	rejected := NewSubmissionRejectedError("contract is already running this version of code", 500)
	err := NewDeploymentError("getbit", "getbit", "setcode", rejected)

	if !IsDeployment(err) {
		t.Fatal("expected deployment error")
	}
	if !IsSubmissionRejected(err) {
		t.Fatal("expected the rejection to stay reachable")
	}
	if !IsAlreadyExists(err) {
		t.Error("expected already-running rejection to be detected through the deployment error")
	}
	if GetErrorCode(err) != CodeDeploymentError {
		t.Errorf("expected code %q, got %q", CodeDeploymentError, GetErrorCode(err))
	}
}

func TestWrapPreservesCode(t *testing.T) {
	base := NewNotFoundError("account", "bob")
	wrapped := Wrap(base, "resolve failed")

	if GetErrorCode(wrapped) != CodeNotFound {
		t.Errorf("expected code %q, got %q", CodeNotFound, GetErrorCode(wrapped))
	}
	if !IsNotFound(wrapped) {
		t.Error("expected wrapped error to still be not found")
	}
	if Wrap(nil, "x") != nil {
		t.Error("Wrap(nil) should be nil")
	}
	if !Is(wrapped, base) {
		t.Error("the original error should stay reachable")
	}
	if got := Wrapf(base, "resolve %s", "bob").Error(); !strings.HasPrefix(got, "resolve bob: ") {
		t.Errorf("unexpected message %q", got)
	}
}

func TestGetCategory(t *testing.T) {
	tests := []struct {
		code string
		want ErrorCategory
	}{
		{CodeUnknownCapability, CategoryCaller},
		{CodeConfigError, CategoryCaller},
		{CodeSubmissionRejected, CategoryRemote},
		{CodeNetworkError, CategoryNetwork},
		{CodeInternal, CategoryInternal},
	}
	for _, tt := range tests {
		if got := GetCategory(tt.code); got != tt.want {
			t.Errorf("GetCategory(%q) = %q, want %q", tt.code, got, tt.want)
		}
	}
}

func TestStackTrace(t *testing.T) {
	err := NewValidationError("name", "invalid account name", "UPPER")
	if err.StackTrace() == "" {
		t.Error("expected a captured stack trace")
	}
	if err.Error() != "validation error: name: invalid account name" {
		t.Errorf("unexpected message %q", err.Error())
	}
}
