// Copyright 2026 Jeremy Hahn
// SPDX-License-Identifier: MIT

package main

import (
	"fmt"
	"io"
	"log/slog"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/jeremyhahn/go-trustpin/pkg/policy"
)

var policyCmd = &cobra.Command{
	Use:   "policy",
	Short: "Pinning policy operations",
}

var policyLintCmd = &cobra.Command{
	Use:   "lint",
	Short: "Validate a pinning policy file",
	Long: `Parse a policy file with the same rules applied at initialization and
print a summary of every domain. Warnings are printed for policies that
have already expired, that are about to expire, or that carry a single pin
and therefore no backup key.`,
	RunE: runPolicyLint,
}

// expiryWarning is how far ahead lint warns about expiring policies.
const expiryWarning = 30 * 24 * time.Hour

// lintNow is replaced in tests.
var lintNow = time.Now

func init() {
	policyCmd.AddCommand(policyLintCmd)
	policyLintCmd.Flags().String("policy", "", "path to YAML policy file (required)")
}

// lintDomain summarizes one policy entry.
type lintDomain struct {
	Domain            string   `json:"domain" yaml:"domain"`
	IncludeSubdomains bool     `json:"include_subdomains" yaml:"include_subdomains"`
	Enforce           bool     `json:"enforce" yaml:"enforce"`
	Disabled          bool     `json:"disabled" yaml:"disabled"`
	Expiration        string   `json:"expiration,omitempty" yaml:"expiration,omitempty"`
	Pins              int      `json:"pins" yaml:"pins"`
	ReportURIs        []string `json:"report_uris,omitempty" yaml:"report_uris,omitempty"`
	Warnings          []string `json:"warnings,omitempty" yaml:"warnings,omitempty"`
}

// lintReport is the policy lint output.
type lintReport struct {
	Domains      []lintDomain `json:"domains" yaml:"domains"`
	DebugAnchors int          `json:"debug_anchors" yaml:"debug_anchors"`
	OverridePins bool         `json:"override_pins" yaml:"override_pins"`
}

func runPolicyLint(cmd *cobra.Command, args []string) error {
	path, _ := cmd.Flags().GetString("policy")
	if path == "" {
		return fmt.Errorf("%w: --policy is required", ErrInvalidInput)
	}

	cfg, err := policy.Load(path)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidPolicy, err)
	}

	report := lintPolicy(cfg, lintNow())
	for _, d := range report.Domains {
		for _, w := range d.Warnings {
			slog.Warn("policy warning", "domain", d.Domain, "warning", w)
		}
	}

	return render(report, func(w io.Writer) {
		for _, d := range report.Domains {
			state := "enforce"
			switch {
			case d.Disabled:
				state = "disabled"
			case !d.Enforce:
				state = "report-only"
			}
			scope := ""
			if d.IncludeSubdomains {
				scope = " (+subdomains)"
			}
			fmt.Fprintf(w, "%s%s: %s, %d pin(s)", d.Domain, scope, state, d.Pins)
			if d.Expiration != "" {
				fmt.Fprintf(w, ", expires %s", d.Expiration)
			}
			fmt.Fprintln(w)
			for _, warning := range d.Warnings {
				fmt.Fprintf(w, "  warning: %s\n", warning)
			}
		}
		if report.DebugAnchors > 0 || report.OverridePins {
			fmt.Fprintf(w, "debug overrides: %d anchor(s), override pins %t\n", report.DebugAnchors, report.OverridePins)
		}
		fmt.Fprintf(w, "%d domain(s) OK\n", len(report.Domains))
	})
}

func lintPolicy(cfg *policy.Configuration, now time.Time) lintReport {
	var report lintReport
	for _, p := range cfg.Policies() {
		d := lintDomain{
			Domain:            p.Domain,
			IncludeSubdomains: p.IncludeSubdomains,
			Enforce:           p.Enforce,
			Disabled:          p.Disabled,
			Pins:              len(p.Pins),
			ReportURIs:        p.ReportURIs,
		}
		if !p.Expiration.IsZero() {
			d.Expiration = p.Expiration.UTC().Format(time.RFC3339)
		}
		if !p.Disabled {
			switch {
			case p.Expired(now):
				d.Warnings = append(d.Warnings, "policy has expired and is not enforced")
			case !p.Expiration.IsZero() && p.Expiration.Sub(now) < expiryWarning:
				d.Warnings = append(d.Warnings, "policy expires within 30 days")
			}
			if len(p.Pins) < 2 {
				d.Warnings = append(d.Warnings, "single pin configured, add a backup pin")
			}
		}
		report.Domains = append(report.Domains, d)
	}
	if dbg := cfg.DebugOverrides(); dbg != nil {
		report.DebugAnchors = len(dbg.Certificates)
		report.OverridePins = dbg.OverridePins
	}
	return report
}

// joinPins renders pins for single-line output.
func joinPins(pins []string) string {
	if len(pins) == 0 {
		return "(none)"
	}
	return strings.Join(pins, ", ")
}
