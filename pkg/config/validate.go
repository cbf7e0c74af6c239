package config

import (
	"fmt"
	"strings"

	"github.com/DeBrosOfficial/ledgerharness/pkg/abi"
)

// ValidationError represents a single validation error with context.
type ValidationError struct {
	Path    string // e.g., "endpoint.port" or "keys.private_keys[0]"
	Message string // e.g., "must be between 1 and 65535"
	Hint    string // e.g., "the ledger RPC usually listens on 8888"
}

func (e ValidationError) Error() string {
	if e.Hint != "" {
		return fmt.Sprintf("%s: %s; %s", e.Path, e.Message, e.Hint)
	}
	return fmt.Sprintf("%s: %s", e.Path, e.Message)
}

// Validate performs validation of the entire config.
// It aggregates all errors so the caller can report every issue at once.
// Signing keys are checked when the keyring is built, not here.
func (c *Config) Validate() []error {
	var errs []error

	errs = append(errs, c.validateEndpoint()...)
	errs = append(errs, c.validateChain()...)
	errs = append(errs, c.validateKeys()...)
	errs = append(errs, c.validateLogging()...)

	return errs
}

func (c *Config) validateEndpoint() []error {
	var errs []error
	ep := c.Endpoint

	switch ep.Scheme {
	case "", "http", "https":
	default:
		errs = append(errs, ValidationError{
			Path:    "endpoint.scheme",
			Message: fmt.Sprintf("unsupported scheme %q", ep.Scheme),
			Hint:    "use http or https",
		})
	}

	if strings.TrimSpace(ep.Host) == "" {
		errs = append(errs, ValidationError{
			Path:    "endpoint.host",
			Message: "must not be empty",
		})
	}

	if ep.Port < 1 || ep.Port > 65535 {
		errs = append(errs, ValidationError{
			Path:    "endpoint.port",
			Message: fmt.Sprintf("invalid port %d", ep.Port),
			Hint:    "port must be between 1 and 65535",
		})
	}

	if ep.Timeout < 0 {
		errs = append(errs, ValidationError{
			Path:    "endpoint.timeout",
			Message: "must not be negative",
		})
	}

	return errs
}

func (c *Config) validateChain() []error {
	var errs []error
	cc := c.Chain

	if !abi.IsValidName(cc.SystemAccount) || cc.SystemAccount == "" {
		errs = append(errs, ValidationError{
			Path:    "chain.system_account",
			Message: fmt.Sprintf("invalid account name %q", cc.SystemAccount),
			Hint:    "names use a-z, 1-5 and '.', at most 12 characters",
		})
	}
	if !abi.IsValidName(cc.DefaultCreator) || cc.DefaultCreator == "" {
		errs = append(errs, ValidationError{
			Path:    "chain.default_creator",
			Message: fmt.Sprintf("invalid account name %q", cc.DefaultCreator),
		})
	}
	if cc.BlocksBehind < 0 {
		errs = append(errs, ValidationError{
			Path:    "chain.blocks_behind",
			Message: fmt.Sprintf("must be >= 0; got %d", cc.BlocksBehind),
		})
	}
	if cc.ExpireSeconds <= 0 {
		errs = append(errs, ValidationError{
			Path:    "chain.expire_seconds",
			Message: fmt.Sprintf("must be > 0; got %d", cc.ExpireSeconds),
		})
	}

	return errs
}

func (c *Config) validateKeys() []error {
	var errs []error

	if c.Keys.SkipDefaults && len(c.Keys.PrivateKeys) == 0 {
		errs = append(errs, ValidationError{
			Path:    "keys.private_keys",
			Message: "must not be empty when skip_defaults is set",
			Hint:    "the keyring needs at least one signing key",
		})
	}
	for i, k := range c.Keys.PrivateKeys {
		if strings.TrimSpace(k) == "" {
			errs = append(errs, ValidationError{
				Path:    fmt.Sprintf("keys.private_keys[%d]", i),
				Message: "must not be empty",
			})
		}
	}

	return errs
}

func (c *Config) validateLogging() []error {
	var errs []error
	lc := c.Logging

	switch strings.ToLower(lc.Level) {
	case "", "debug", "info", "warn", "warning", "error":
	default:
		errs = append(errs, ValidationError{
			Path:    "logging.level",
			Message: fmt.Sprintf("unknown level %q", lc.Level),
			Hint:    "use debug, info, warn or error",
		})
	}

	switch strings.ToLower(lc.Format) {
	case "", "console", "json":
	default:
		errs = append(errs, ValidationError{
			Path:    "logging.format",
			Message: fmt.Sprintf("unknown format %q", lc.Format),
			Hint:    "use console or json",
		})
	}

	return errs
}
