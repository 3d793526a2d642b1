// Copyright 2026 Jeremy Hahn
// SPDX-License-Identifier: MIT

package trustpin

import "errors"

var (
	// ErrAlreadyInitialized is returned by Initialize after the process
	// has been initialized. The first instance stays in effect.
	ErrAlreadyInitialized = errors.New("trustpin: already initialized")

	// ErrNotInitialized is returned by GetInstance before a successful
	// Initialize.
	ErrNotInitialized = errors.New("trustpin: not initialized")

	// ErrInvalidConfig indicates the configuration is missing required fields.
	ErrInvalidConfig = errors.New("trustpin: invalid configuration")

	// ErrPolicySource indicates the policy source could not be read.
	ErrPolicySource = errors.New("trustpin: policy source unreadable")
)
