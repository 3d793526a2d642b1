// Copyright 2026 Jeremy Hahn
// SPDX-License-Identifier: MIT

package reporting

import "errors"

var (
	// ErrInvalidConfig indicates the reporter or channel configuration is
	// missing required fields.
	ErrInvalidConfig = errors.New("reporting: invalid configuration")

	// ErrDeliveryFailed indicates a report could not be uploaded.
	ErrDeliveryFailed = errors.New("reporting: delivery failed")

	// ErrRateLimited indicates an upload was skipped because the
	// destination exceeded its report rate.
	ErrRateLimited = errors.New("reporting: rate limited")
)
