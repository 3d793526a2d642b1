// Copyright 2026 Jeremy Hahn
// SPDX-License-Identifier: MIT

package policy

import (
	"bytes"
	"crypto/x509"
	"encoding/pem"
	"errors"
	"fmt"
	"io"
	"net/url"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/jeremyhahn/go-trustpin/pkg/spkipin"
)

const pemCertificateType = "CERTIFICATE"

// expirationLayouts are the accepted expiration formats, tried in order.
var expirationLayouts = []string{"2006-01-02", time.RFC3339}

type document struct {
	Domains        []domainEntry `yaml:"domains"`
	DebugOverrides *debugEntry   `yaml:"debug_overrides"`
}

type domainEntry struct {
	Domain            string   `yaml:"domain"`
	IncludeSubdomains bool     `yaml:"include_subdomains"`
	Enforce           *bool    `yaml:"enforce"` // nil = true
	Disabled          bool     `yaml:"disabled"`
	Expiration        string   `yaml:"expiration"`
	Pins              []string `yaml:"pins"`
	ReportURIs        []string `yaml:"report_uris"`
}

type debugEntry struct {
	OverridePins bool   `yaml:"override_pins"`
	Certificates string `yaml:"certificates"`
}

// Load reads the policy file at path and parses it with Parse.
func Load(path string) (*Configuration, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, configError("", fmt.Errorf("%w: %w", ErrMalformedPolicy, err))
	}
	return Parse(data)
}

// Parse builds a Configuration from a YAML policy document. Unknown keys
// are rejected. Parse performs no I/O.
func Parse(data []byte) (*Configuration, error) {
	var doc document
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&doc); err != nil {
		if errors.Is(err, io.EOF) {
			return nil, configError("", ErrNoDomains)
		}
		return nil, configError("", fmt.Errorf("%w: %w", ErrMalformedPolicy, err))
	}
	if len(doc.Domains) == 0 {
		return nil, configError("", ErrNoDomains)
	}

	cfg := &Configuration{policies: make(map[string]*Policy, len(doc.Domains))}
	for i := range doc.Domains {
		p, err := buildPolicy(&doc.Domains[i])
		if err != nil {
			return nil, err
		}
		if _, dup := cfg.policies[p.Domain]; dup {
			return nil, configError(p.Domain, ErrDuplicateDomain)
		}
		cfg.policies[p.Domain] = p
	}

	if doc.DebugOverrides != nil {
		certs, err := parseCertificates(doc.DebugOverrides.Certificates)
		if err != nil {
			return nil, configError("", err)
		}
		cfg.debug = &DebugOverrides{
			Certificates: certs,
			OverridePins: doc.DebugOverrides.OverridePins,
		}
	}
	return cfg, nil
}

func buildPolicy(e *domainEntry) (*Policy, error) {
	domain := NormalizeHostname(e.Domain)
	if domain == "" {
		return nil, configError("", ErrMissingDomain)
	}
	if err := validateDomain(domain, e.IncludeSubdomains); err != nil {
		return nil, configError(domain, err)
	}

	p := &Policy{
		Domain:            domain,
		Enforce:           e.Enforce == nil || *e.Enforce,
		IncludeSubdomains: e.IncludeSubdomains,
		Disabled:          e.Disabled,
	}

	if !p.Disabled && len(e.Pins) == 0 {
		return nil, configError(domain, ErrNoPins)
	}
	pins, err := spkipin.ParsePinSet(e.Pins)
	if err != nil {
		return nil, configError(domain, fmt.Errorf("%w: %w", ErrInvalidPin, err))
	}
	p.Pins = pins

	if e.Expiration != "" {
		exp, err := parseExpiration(e.Expiration)
		if err != nil {
			return nil, configError(domain, err)
		}
		p.Expiration = exp
	}

	for _, raw := range e.ReportURIs {
		u, err := url.Parse(raw)
		if err != nil || (u.Scheme != "https" && u.Scheme != "http") || u.Host == "" {
			return nil, configError(domain, fmt.Errorf("%w: %q", ErrInvalidReportURI, raw))
		}
		p.ReportURIs = append(p.ReportURIs, u.String())
	}
	return p, nil
}

func validateDomain(domain string, includeSubdomains bool) error {
	if strings.ContainsAny(domain, " */:@\x00") || strings.HasPrefix(domain, ".") ||
		strings.Contains(domain, "..") || len(domain) > 253 {
		return fmt.Errorf("%w: %q", ErrInvalidDomain, domain)
	}
	// Pinning a whole top-level domain would capture every site under it.
	if includeSubdomains && !strings.Contains(domain, ".") {
		return fmt.Errorf("%w: include_subdomains on top-level domain %q", ErrInvalidDomain, domain)
	}
	return nil
}

func parseExpiration(s string) (time.Time, error) {
	for _, layout := range expirationLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("%w: %q", ErrInvalidExpiration, s)
}

// parseCertificates decodes every CERTIFICATE block of a PEM bundle. An
// empty bundle yields no certificates; a non-empty bundle without any
// certificate is an error.
func parseCertificates(bundle string) ([]*x509.Certificate, error) {
	if strings.TrimSpace(bundle) == "" {
		return nil, nil
	}
	var certs []*x509.Certificate
	rest := []byte(bundle)
	for {
		var block *pem.Block
		block, rest = pem.Decode(rest)
		if block == nil {
			break
		}
		if block.Type != pemCertificateType {
			continue
		}
		cert, err := x509.ParseCertificate(block.Bytes)
		if err != nil {
			return nil, fmt.Errorf("%w: %w", ErrInvalidDebugCertificate, err)
		}
		certs = append(certs, cert)
	}
	if len(certs) == 0 {
		return nil, fmt.Errorf("%w: no PEM certificate found", ErrInvalidDebugCertificate)
	}
	return certs, nil
}
