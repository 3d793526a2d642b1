// Copyright 2026 Jeremy Hahn
// SPDX-License-Identifier: MIT

package trustpin

// reset returns the process to the uninitialized state.
func reset() {
	initMu.Lock()
	defer initMu.Unlock()
	current.Store(nil)
}
