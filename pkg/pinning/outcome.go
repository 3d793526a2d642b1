// Copyright 2026 Jeremy Hahn
// SPDX-License-Identifier: MIT

package pinning

import (
	"crypto/x509"
	"fmt"

	"github.com/jeremyhahn/go-trustpin/pkg/policy"
	"github.com/jeremyhahn/go-trustpin/pkg/spkipin"
)

// Result classifies a validation outcome.
type Result int

const (
	// ResultSuccess means the chain is trusted and, if a policy applies,
	// at least one pin matched.
	ResultSuccess Result = iota

	// ResultPinMismatch means the chain is trusted but none of its keys
	// match the applicable policy.
	ResultPinMismatch

	// ResultChainInvalid means standard chain-of-trust validation failed.
	ResultChainInvalid
)

// String returns the name used in logs and reports.
func (r Result) String() string {
	switch r {
	case ResultSuccess:
		return "success"
	case ResultPinMismatch:
		return "pin_mismatch"
	case ResultChainInvalid:
		return "chain_invalid"
	default:
		return fmt.Sprintf("Result(%d)", int(r))
	}
}

// Outcome is the result of validating one handshake. It is produced by
// value and never modified afterwards.
type Outcome struct {
	// Result is the validation verdict.
	Result Result

	// Hostname is the server name the chain was validated for.
	Hostname string

	// Policy is the active pinning policy for Hostname, or nil when the
	// host is not pinned, its policy expired, or it is disabled.
	Policy *policy.Policy

	// PresentedPins are the fingerprints computed over the validated chain.
	// Empty unless pin matching ran.
	PresentedPins spkipin.PinSet

	// ExpectedPins are the policy's pins. Empty unless pin matching ran.
	ExpectedPins spkipin.PinSet

	// ServedChain is the chain as presented by the peer, leaf first.
	ServedChain []*x509.Certificate

	// ValidatedChain is the chain built to a trust anchor, leaf first.
	// Nil when chain validation failed.
	ValidatedChain []*x509.Certificate

	// Reason is the chain validation error for ResultChainInvalid.
	Reason error

	// PinsOverridden is set when debug overrides skipped pin matching.
	PinsOverridden bool
}

// Rejects reports whether the TLS layer must fail the connection. Chain
// failures always reject; pin mismatches reject unless the policy is
// report-only.
func (o Outcome) Rejects() bool {
	switch o.Result {
	case ResultSuccess:
		return false
	case ResultPinMismatch:
		return o.Policy == nil || o.Policy.Enforce
	default:
		return true
	}
}

// Domain returns the policy domain the outcome was matched under, or the
// normalized hostname when no policy applies.
func (o Outcome) Domain() string {
	if o.Policy != nil {
		return o.Policy.Domain
	}
	return policy.NormalizeHostname(o.Hostname)
}
