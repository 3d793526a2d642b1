// Copyright 2026 Jeremy Hahn
// SPDX-License-Identifier: MIT

package identity

import "errors"

var (
	// ErrNotFound indicates the requested key is not in the store.
	ErrNotFound = errors.New("identity: key not found")

	// ErrInvalidStore indicates a nil store was supplied.
	ErrInvalidStore = errors.New("identity: invalid store")

	// ErrInvalidPath indicates a file store was created without a path.
	ErrInvalidPath = errors.New("identity: invalid store path")

	// ErrStore indicates the backing store failed to read or write.
	ErrStore = errors.New("identity: store failure")

	// ErrVersionUnavailable indicates the host could not report the
	// application version.
	ErrVersionUnavailable = errors.New("identity: version unavailable")
)
