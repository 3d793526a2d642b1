// Copyright 2026 Jeremy Hahn
// SPDX-License-Identifier: MIT

package reporting

import (
	"sync"
	"time"

	"github.com/jeremyhahn/go-trustpin/pkg/pinning"
)

// dedupKey identifies reports that are considered the same event.
type dedupKey struct {
	domain string
	result pinning.Result
}

// dedupCache suppresses repeated reports for the same key within a window.
// Stale entries are swept at most once per window.
type dedupCache struct {
	mu        sync.Mutex
	entries   map[dedupKey]time.Time
	window    time.Duration
	lastSweep time.Time
}

func newDedupCache(window time.Duration) *dedupCache {
	return &dedupCache{
		entries: make(map[dedupKey]time.Time),
		window:  window,
	}
}

// admit reports whether key has not been seen within the window ending at
// now, and records it if so.
func (c *dedupCache) admit(key dedupKey, now time.Time) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.sweepLocked(now)
	if seen, ok := c.entries[key]; ok && now.Sub(seen) < c.window {
		return false
	}
	c.entries[key] = now
	return true
}

// forget removes key so the next occurrence is admitted.
func (c *dedupCache) forget(key dedupKey) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.entries, key)
}

func (c *dedupCache) sweepLocked(now time.Time) {
	if now.Sub(c.lastSweep) < c.window {
		return
	}
	c.lastSweep = now
	for key, seen := range c.entries {
		if now.Sub(seen) >= c.window {
			delete(c.entries, key)
		}
	}
}

func (c *dedupCache) size() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}
