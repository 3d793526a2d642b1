// Copyright 2026 Jeremy Hahn
// SPDX-License-Identifier: MIT

// Package policy is the pinning configuration model: an immutable mapping
// from domain to pinning policy plus the debug-override settings, built
// once from a declarative policy source.
//
// Policies are matched against a TLS server name by exact domain first and
// then by the nearest enclosing ancestor that includes subdomains.
package policy

import (
	"crypto/x509"
	"sort"
	"strings"
	"time"

	"github.com/jeremyhahn/go-trustpin/pkg/spkipin"
)

// Policy is the pinning policy for one domain. Values returned by a
// Configuration are shared and must be treated as read-only.
type Policy struct {
	// Domain is the lower-cased domain name without a trailing dot.
	Domain string

	// Pins is the set of accepted public key fingerprints.
	Pins spkipin.PinSet

	// Expiration is the instant after which the policy is ignored. The zero
	// value means the policy never expires.
	Expiration time.Time

	// Enforce selects report-and-reject (true) or report-only (false).
	Enforce bool

	// IncludeSubdomains applies the policy to every subdomain of Domain
	// that has no closer policy of its own.
	IncludeSubdomains bool

	// Disabled turns pinning off for Domain (and its subdomains when
	// IncludeSubdomains is set), overriding any ancestor policy.
	Disabled bool

	// ReportURIs are the endpoints validation reports for this domain
	// are sent to.
	ReportURIs []string
}

// Expired reports whether the policy has an expiration at or before now.
func (p *Policy) Expired(now time.Time) bool {
	return !p.Expiration.IsZero() && !now.Before(p.Expiration)
}

// DebugOverrides holds the development-only trust settings. They must only
// be honoured when the host reports a debuggable build.
type DebugOverrides struct {
	// Certificates are additional trust anchors.
	Certificates []*x509.Certificate

	// OverridePins disables pin matching entirely.
	OverridePins bool
}

// Configuration is the parsed, immutable pinning configuration.
type Configuration struct {
	policies map[string]*Policy
	debug    *DebugOverrides
}

// Lookup returns the policy that applies to hostname: the exact domain
// entry if present, otherwise the longest ancestor entry that includes
// subdomains.
func (c *Configuration) Lookup(hostname string) (*Policy, bool) {
	host := NormalizeHostname(hostname)
	if host == "" {
		return nil, false
	}
	if p, ok := c.policies[host]; ok {
		return p, true
	}
	for {
		i := strings.IndexByte(host, '.')
		if i < 0 {
			return nil, false
		}
		host = host[i+1:]
		if p, ok := c.policies[host]; ok && p.IncludeSubdomains {
			return p, true
		}
	}
}

// Policy returns the entry declared for exactly domain.
func (c *Configuration) Policy(domain string) (*Policy, bool) {
	p, ok := c.policies[NormalizeHostname(domain)]
	return p, ok
}

// Policies returns all declared policies sorted by domain.
func (c *Configuration) Policies() []*Policy {
	out := make([]*Policy, 0, len(c.policies))
	for _, p := range c.policies {
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Domain < out[j].Domain })
	return out
}

// DebugOverrides returns the configured debug overrides, or nil when the
// policy source has none. Callers decide whether they may be honoured.
func (c *Configuration) DebugOverrides() *DebugOverrides {
	return c.debug
}

// NormalizeHostname lower-cases a host name and strips a trailing dot.
func NormalizeHostname(hostname string) string {
	return strings.TrimSuffix(strings.ToLower(strings.TrimSpace(hostname)), ".")
}
