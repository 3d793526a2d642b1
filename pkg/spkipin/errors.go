// Copyright 2026 Jeremy Hahn
// SPDX-License-Identifier: MIT

// Package spkipin provides Subject Public Key Info pin computation, parsing
// and matching. A pin is a hash of a certificate's DER-encoded SPKI tagged
// with the hash algorithm that produced it.
package spkipin

import "errors"

var (
	// ErrNoPinConfigured is returned when the SPKI pin is empty or not provided.
	ErrNoPinConfigured = errors.New("spkipin: no SPKI pin configured")

	// ErrInvalidPinFormat is returned when a pin is not in "<algorithm>/<base64>"
	// form, is not valid base64, or has the wrong digest length.
	ErrInvalidPinFormat = errors.New("spkipin: invalid pin format")

	// ErrUnsupportedAlgorithm is returned when a pin names a hash algorithm
	// that has no registered hasher.
	ErrUnsupportedAlgorithm = errors.New("spkipin: unsupported hash algorithm")

	// ErrInvalidCertificate is returned when a nil certificate is supplied.
	ErrInvalidCertificate = errors.New("spkipin: invalid certificate")
)
