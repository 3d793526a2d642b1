// Copyright 2026 Jeremy Hahn
// SPDX-License-Identifier: MIT

package pinning

import "errors"

var (
	// ErrInvalidConfig indicates the validator configuration is missing
	// required fields.
	ErrInvalidConfig = errors.New("pinning: invalid configuration")

	// ErrTrustStore indicates the system root store could not be loaded.
	ErrTrustStore = errors.New("pinning: system trust store unavailable")

	// ErrNoCertificates indicates the peer presented no certificates.
	ErrNoCertificates = errors.New("pinning: no certificates presented")

	// ErrMalformedCertificate indicates a presented certificate could not be parsed.
	ErrMalformedCertificate = errors.New("pinning: malformed certificate")

	// ErrNoServerName indicates the handshake carried no server name to
	// validate the chain against.
	ErrNoServerName = errors.New("pinning: no server name")

	// ErrTrustFailure is the only error surfaced to the TLS stack when a
	// connection is rejected. Pin details are never part of it.
	ErrTrustFailure = errors.New("pinning: certificate not trusted")
)
