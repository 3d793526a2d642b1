// Copyright 2026 Jeremy Hahn
// SPDX-License-Identifier: MIT

package main

import "errors"

// Exit codes for the CLI.
const (
	// ExitSuccess indicates the command completed successfully.
	ExitSuccess = 0

	// ExitFailure indicates a lookup failed or a connection was rejected.
	ExitFailure = 1

	// ExitConfigError indicates a configuration or input validation error.
	ExitConfigError = 2
)

// Sentinel errors for CLI operations.
var (
	// ErrInvalidInput is returned when required input parameters are missing or invalid.
	ErrInvalidInput = errors.New("invalid input")

	// ErrInvalidPolicy is returned when a policy file fails to parse.
	ErrInvalidPolicy = errors.New("invalid policy")

	// ErrLookupFailed is returned when a TLSA lookup fails.
	ErrLookupFailed = errors.New("lookup failed")

	// ErrConnectFailed is returned when the TLS handshake cannot be
	// attempted or fails for reasons other than the pinning policy.
	ErrConnectFailed = errors.New("connect failed")

	// ErrConnectionRejected is returned when the pinning policy rejects a
	// server's certificate chain.
	ErrConnectionRejected = errors.New("connection rejected")

	// ErrFileOperation is returned when a file read or write operation fails.
	ErrFileOperation = errors.New("file operation failed")
)

// exitCode maps a command error onto a process exit code.
func exitCode(err error) int {
	switch {
	case err == nil:
		return ExitSuccess
	case errors.Is(err, ErrInvalidInput), errors.Is(err, ErrInvalidPolicy):
		return ExitConfigError
	default:
		return ExitFailure
	}
}
