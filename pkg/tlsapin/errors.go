// Copyright 2026 Jeremy Hahn
// SPDX-License-Identifier: MIT

// Package tlsapin discovers SPKI pins published in DNS as RFC 6698 TLSA
// records, so that a pinning policy can be seeded from a zone the operator
// already maintains.
package tlsapin

import "errors"

var (
	// ErrResolverConfig indicates the resolver configuration is invalid.
	ErrResolverConfig = errors.New("tlsapin: invalid resolver configuration")

	// ErrInvalidHostname indicates an empty or malformed hostname.
	ErrInvalidHostname = errors.New("tlsapin: invalid hostname")

	// ErrInvalidPort indicates port number zero.
	ErrInvalidPort = errors.New("tlsapin: invalid port")

	// ErrDNSLookupFailed indicates the TLSA query failed.
	ErrDNSLookupFailed = errors.New("tlsapin: DNS lookup failed")

	// ErrDNSSECRequired indicates the response lacked the Authenticated
	// Data flag while RequireAD was set.
	ErrDNSSECRequired = errors.New("tlsapin: DNSSEC validation required but AD flag not set")

	// ErrNoTLSARecords indicates the name has no TLSA records.
	ErrNoTLSARecords = errors.New("tlsapin: no TLSA records found")

	// ErrNoUsablePins indicates TLSA records exist but none hash the
	// SubjectPublicKeyInfo with a supported algorithm.
	ErrNoUsablePins = errors.New("tlsapin: no SPKI hash records found")

	// ErrUnsupportedRecord indicates a record cannot be expressed as a pin.
	ErrUnsupportedRecord = errors.New("tlsapin: record is not an SPKI hash")
)
