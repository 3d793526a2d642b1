// Copyright 2026 Jeremy Hahn
// SPDX-License-Identifier: MIT

package policy

import (
	"errors"
	"fmt"
)

var (
	// ErrMalformedPolicy indicates the policy source could not be decoded.
	ErrMalformedPolicy = errors.New("policy: malformed policy source")

	// ErrNoDomains indicates the policy source declares no domain entries.
	ErrNoDomains = errors.New("policy: no domains configured")

	// ErrMissingDomain indicates a domain entry has an empty domain name.
	ErrMissingDomain = errors.New("policy: domain name is required")

	// ErrInvalidDomain indicates a domain name is syntactically unusable.
	ErrInvalidDomain = errors.New("policy: invalid domain name")

	// ErrDuplicateDomain indicates two entries were declared for the same domain.
	ErrDuplicateDomain = errors.New("policy: duplicate domain")

	// ErrNoPins indicates a pinning-enabled domain has an empty pin set.
	ErrNoPins = errors.New("policy: no pins configured for domain")

	// ErrInvalidPin indicates a pin could not be parsed.
	ErrInvalidPin = errors.New("policy: invalid pin")

	// ErrInvalidExpiration indicates the expiration date could not be parsed.
	ErrInvalidExpiration = errors.New("policy: invalid expiration")

	// ErrInvalidReportURI indicates a report URI is not an absolute http(s) URL.
	ErrInvalidReportURI = errors.New("policy: invalid report URI")

	// ErrInvalidDebugCertificate indicates a debug-override certificate could
	// not be parsed.
	ErrInvalidDebugCertificate = errors.New("policy: invalid debug-override certificate")
)

// ConfigurationError reports a malformed or inconsistent policy. It is
// fatal to initialization.
type ConfigurationError struct {
	// Domain is the domain entry the error relates to, if any.
	Domain string

	// Err is the underlying sentinel or decoding error.
	Err error
}

// Error returns a formatted message including the domain when known.
func (e *ConfigurationError) Error() string {
	if e.Domain == "" {
		return fmt.Sprintf("policy configuration: %v", e.Err)
	}
	return fmt.Sprintf("policy configuration for %q: %v", e.Domain, e.Err)
}

// Unwrap returns the underlying error for use with errors.Is/As.
func (e *ConfigurationError) Unwrap() error {
	return e.Err
}

func configError(domain string, err error) error {
	return &ConfigurationError{Domain: domain, Err: err}
}
