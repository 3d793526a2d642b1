// Copyright 2026 Jeremy Hahn
// SPDX-License-Identifier: MIT

// Package pinning builds the certificate chain validator that enforces
// public key pinning on top of standard X.509 chain-of-trust validation.
//
// A Validator is assembled once from the parsed policy configuration and
// the resolved debug overrides. Its trust anchors are the system root store
// plus any debug-override roots. Validate is synchronous, lock-free and safe
// for concurrent use by any number of handshakes; it returns an Outcome
// rather than an error so the TLS layer can apply report-only policies.
package pinning

import (
	"crypto/x509"
	"fmt"
	"log/slog"
	"time"

	"github.com/jeremyhahn/go-trustpin/pkg/policy"
	"github.com/jeremyhahn/go-trustpin/pkg/spkipin"
)

// ValidatorConfig configures NewValidator.
type ValidatorConfig struct {
	// Configuration is the parsed pinning configuration. Required.
	Configuration *policy.Configuration

	// DebugOverrides are the overrides returned by ResolveDebugOverrides.
	// Nil in release builds.
	DebugOverrides *policy.DebugOverrides

	// SystemRoots replaces the operating system root store. Nil loads
	// x509.SystemCertPool. The pool is cloned, never modified.
	SystemRoots *x509.CertPool

	// Now supplies the validation time. Defaults to time.Now.
	Now func() time.Time

	// Logger for structured logging. If nil, slog.Default() is used.
	Logger *slog.Logger
}

// Validator performs chain validation augmented with pin matching.
type Validator struct {
	config       *policy.Configuration
	roots        *x509.CertPool
	overridePins bool
	now          func() time.Time
	logger       *slog.Logger
}

// NewValidator assembles the trust anchors (system roots plus debug
// override roots) and returns an immutable Validator.
func NewValidator(cfg *ValidatorConfig) (*Validator, error) {
	if cfg == nil || cfg.Configuration == nil {
		return nil, ErrInvalidConfig
	}

	var roots *x509.CertPool
	if cfg.SystemRoots != nil {
		roots = cfg.SystemRoots.Clone()
	} else {
		pool, err := x509.SystemCertPool()
		if err != nil {
			return nil, fmt.Errorf("%w: %w", ErrTrustStore, err)
		}
		roots = pool
	}

	overridePins := false
	if cfg.DebugOverrides != nil {
		for _, cert := range cfg.DebugOverrides.Certificates {
			roots.AddCert(cert)
		}
		overridePins = cfg.DebugOverrides.OverridePins
	}

	now := cfg.Now
	if now == nil {
		now = time.Now
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	return &Validator{
		config:       cfg.Configuration,
		roots:        roots,
		overridePins: overridePins,
		now:          now,
		logger:       logger.With("component", "pinning_validator"),
	}, nil
}

// Validate checks chain (leaf first) for hostname. Standard chain
// validation always runs first and fails closed. Pin matching is skipped
// when debug overrides disable it, when no policy applies, or when the
// applicable policy is expired or disabled.
func (v *Validator) Validate(chain []*x509.Certificate, hostname string) Outcome {
	now := v.now()
	out := Outcome{
		Hostname:    hostname,
		ServedChain: chain,
		Policy:      v.activePolicy(hostname, now),
	}

	chains, err := v.verifyChain(chain, hostname, now)
	if err != nil {
		out.Result = ResultChainInvalid
		out.Reason = err
		return out
	}
	out.ValidatedChain = chains[0]

	if v.overridePins {
		out.Result = ResultSuccess
		out.PinsOverridden = true
		return out
	}
	if out.Policy == nil {
		out.Result = ResultSuccess
		return out
	}

	expected := out.Policy.Pins
	algs := expected.Algorithms()
	out.ExpectedPins = expected

	// Any verified path whose keys intersect the pin set is accepted; the
	// reported fingerprints come from the first path otherwise.
	for i, c := range chains {
		presented, err := spkipin.ComputeChainPins(c, algs)
		if err != nil {
			out.Result = ResultChainInvalid
			out.Reason = err
			return out
		}
		if i == 0 {
			out.PresentedPins = presented
		}
		if expected.Intersects(presented) {
			out.Result = ResultSuccess
			out.ValidatedChain = c
			out.PresentedPins = presented
			return out
		}
	}
	out.Result = ResultPinMismatch
	return out
}

// ValidateRaw parses DER certificates (leaf first) and validates them.
// Any unparseable certificate yields ResultChainInvalid.
func (v *Validator) ValidateRaw(rawCerts [][]byte, hostname string) Outcome {
	chain := make([]*x509.Certificate, 0, len(rawCerts))
	for _, raw := range rawCerts {
		cert, err := x509.ParseCertificate(raw)
		if err != nil {
			return Outcome{
				Result:   ResultChainInvalid,
				Hostname: hostname,
				Policy:   v.activePolicy(hostname, v.now()),
				Reason:   fmt.Errorf("%w: %w", ErrMalformedCertificate, err),
			}
		}
		chain = append(chain, cert)
	}
	return v.Validate(chain, hostname)
}

// Configuration returns the policy configuration the validator enforces.
func (v *Validator) Configuration() *policy.Configuration {
	return v.config
}

// activePolicy returns the policy to enforce for hostname at now, or nil.
// Expired policies fall back to chain-only validation so a stale policy
// cannot lock clients out.
func (v *Validator) activePolicy(hostname string, now time.Time) *policy.Policy {
	p, ok := v.config.Lookup(hostname)
	if !ok || p.Disabled || p.Expired(now) {
		return nil
	}
	return p
}

func (v *Validator) verifyChain(chain []*x509.Certificate, hostname string, now time.Time) ([][]*x509.Certificate, error) {
	if len(chain) == 0 || chain[0] == nil {
		return nil, ErrNoCertificates
	}
	if policy.NormalizeHostname(hostname) == "" {
		return nil, ErrNoServerName
	}
	intermediates := x509.NewCertPool()
	for _, cert := range chain[1:] {
		if cert != nil {
			intermediates.AddCert(cert)
		}
	}
	return chain[0].Verify(x509.VerifyOptions{
		DNSName:       hostname,
		Roots:         v.roots,
		Intermediates: intermediates,
		CurrentTime:   now,
		KeyUsages:     []x509.ExtKeyUsage{x509.ExtKeyUsageServerAuth},
	})
}
