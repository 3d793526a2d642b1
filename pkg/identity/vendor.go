// Copyright 2026 Jeremy Hahn
// SPDX-License-Identifier: MIT

package identity

import (
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/google/uuid"
)

// VendorIDKey is the store key holding the vendor identifier.
const VendorIDKey = "TRUSTPIN_VENDOR_ID"

// vendorMu serializes read-generate-persist across the process so that
// concurrent first calls agree on one identifier.
var vendorMu sync.Mutex

// GetOrCreateVendorIdentifier returns the installation's vendor identifier,
// generating and persisting a random UUID on first use. The identifier is
// stable for as long as the store keeps it.
func GetOrCreateVendorIdentifier(store Store, logger *slog.Logger) (string, error) {
	if store == nil {
		return "", ErrInvalidStore
	}
	if logger == nil {
		logger = slog.Default()
	}

	vendorMu.Lock()
	defer vendorMu.Unlock()

	id, err := store.Get(VendorIDKey)
	switch {
	case err == nil && id != "":
		return id, nil
	case err != nil && !errors.Is(err, ErrNotFound):
		return "", fmt.Errorf("%w: read vendor identifier: %w", ErrStore, err)
	}

	id = uuid.NewString()
	if err := store.Set(VendorIDKey, id); err != nil {
		return "", fmt.Errorf("%w: persist vendor identifier: %w", ErrStore, err)
	}
	logger.Info("generated new vendor identifier", "component", "identity", "vendor_id", id)
	return id, nil
}
