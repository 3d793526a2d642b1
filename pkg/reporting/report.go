// Copyright 2026 Jeremy Hahn
// SPDX-License-Identifier: MIT

package reporting

import (
	"crypto/x509"
	"encoding/pem"
	"time"

	"github.com/jeremyhahn/go-trustpin/pkg/identity"
	"github.com/jeremyhahn/go-trustpin/pkg/pinning"
)

// Report is a pin validation report. Field names follow the HPKP violation
// report format extended with application identity. A Report is built once
// and never modified.
type Report struct {
	AppBundleID               string    `json:"app-bundle-id"`
	AppVersion                string    `json:"app-version"`
	AppVendorID               string    `json:"app-vendor-id"`
	AppPlatform               string    `json:"app-platform"`
	DateTime                  time.Time `json:"date-time"`
	Hostname                  string    `json:"hostname"`
	NotedHostname             string    `json:"noted-hostname"`
	IncludeSubdomains         bool      `json:"include-subdomains"`
	EnforcePinning            bool      `json:"enforce-pinning"`
	EffectiveExpirationDate   string    `json:"effective-expiration-date,omitempty"`
	ServedCertificateChain    []string  `json:"served-certificate-chain"`
	ValidatedCertificateChain []string  `json:"validated-certificate-chain"`
	KnownPins                 []string  `json:"known-pins"`
	ValidationResult          string    `json:"validation-result"`

	// ReportURIs are the policy's upload destinations. Not serialized.
	ReportURIs []string `json:"-"`
}

// NewReport builds a Report from a validation outcome.
func NewReport(out pinning.Outcome, app identity.AppInfo, vendorID string, now time.Time) *Report {
	r := &Report{
		AppBundleID:               app.PackageName,
		AppVersion:                app.Version,
		AppVendorID:               vendorID,
		AppPlatform:               app.Platform,
		DateTime:                  now.UTC(),
		Hostname:                  out.Hostname,
		NotedHostname:             out.Domain(),
		ServedCertificateChain:    encodeChain(out.ServedChain),
		ValidatedCertificateChain: encodeChain(out.ValidatedChain),
		KnownPins:                 []string{},
		ValidationResult:          out.Result.String(),
	}
	if p := out.Policy; p != nil {
		r.IncludeSubdomains = p.IncludeSubdomains
		r.EnforcePinning = p.Enforce
		r.KnownPins = p.Pins.Strings()
		r.ReportURIs = append([]string(nil), p.ReportURIs...)
		if !p.Expiration.IsZero() {
			r.EffectiveExpirationDate = p.Expiration.UTC().Format(time.RFC3339)
		}
	}
	return r
}

func encodeChain(chain []*x509.Certificate) []string {
	out := make([]string, 0, len(chain))
	for _, cert := range chain {
		if cert == nil {
			continue
		}
		out = append(out, string(pem.EncodeToMemory(&pem.Block{Type: "CERTIFICATE", Bytes: cert.Raw})))
	}
	return out
}
