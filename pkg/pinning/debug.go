// Copyright 2026 Jeremy Hahn
// SPDX-License-Identifier: MIT

package pinning

import (
	"log/slog"

	"github.com/jeremyhahn/go-trustpin/pkg/policy"
)

// ResolveDebugOverrides returns the debug overrides that may be honoured.
// When debuggable is false the result is always nil and the configured
// overrides are never inspected; release builds must not trust debug
// anchors or skip pins.
func ResolveDebugOverrides(debuggable bool, cfg *policy.Configuration, logger *slog.Logger) *policy.DebugOverrides {
	if !debuggable || cfg == nil {
		return nil
	}
	overrides := cfg.DebugOverrides()
	if overrides == nil {
		return nil
	}
	if logger == nil {
		logger = slog.Default()
	}
	logger.Info("app is debuggable, processing debug overrides",
		"component", "debug_overrides",
		"extra_anchors", len(overrides.Certificates),
		"override_pins", overrides.OverridePins)
	return overrides
}
