// Copyright 2026 Jeremy Hahn
// SPDX-License-Identifier: MIT

package main

import (
	"bytes"
	"crypto/sha256"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jeremyhahn/go-trustpin/pkg/policy"
	"github.com/jeremyhahn/go-trustpin/pkg/spkipin"
)

func lintPin(b byte) string {
	return spkipin.Pin{Algorithm: spkipin.SHA256, Digest: bytes.Repeat([]byte{b}, sha256.Size)}.String()
}

func writePolicyFile(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "policy.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0644))
	return path
}

var lintPolicyYAML = `domains:
  - domain: api.example.com
    pins: [` + lintPin(1) + `, ` + lintPin(2) + `]
    report_uris: [https://reports.example.com/pin]
  - domain: example.com
    include_subdomains: true
    enforce: false
    expiration: "2026-11-01"
    pins: [` + lintPin(3) + `]
  - domain: legacy.example.com
    disabled: true
  - domain: old.example.org
    expiration: "2025-01-01"
    pins: [` + lintPin(4) + `, ` + lintPin(5) + `]
`

func TestLintPolicy_Warnings(t *testing.T) {
	cfg, err := policy.Parse([]byte(lintPolicyYAML))
	require.NoError(t, err)

	now := time.Date(2026, 10, 15, 0, 0, 0, 0, time.UTC)
	report := lintPolicy(cfg, now)
	require.Len(t, report.Domains, 4)

	byDomain := make(map[string]lintDomain)
	for _, d := range report.Domains {
		byDomain[d.Domain] = d
	}

	api := byDomain["api.example.com"]
	assert.True(t, api.Enforce)
	assert.Equal(t, 2, api.Pins)
	assert.Equal(t, []string{"https://reports.example.com/pin"}, api.ReportURIs)
	assert.Empty(t, api.Warnings)

	parent := byDomain["example.com"]
	assert.True(t, parent.IncludeSubdomains)
	assert.False(t, parent.Enforce)
	assert.Equal(t, "2026-11-01T00:00:00Z", parent.Expiration)
	assert.ElementsMatch(t, []string{
		"policy expires within 30 days",
		"single pin configured, add a backup pin",
	}, parent.Warnings)

	legacy := byDomain["legacy.example.com"]
	assert.True(t, legacy.Disabled)
	assert.Empty(t, legacy.Warnings)

	old := byDomain["old.example.org"]
	assert.Equal(t, []string{"policy has expired and is not enforced"}, old.Warnings)

	assert.Zero(t, report.DebugAnchors)
	assert.False(t, report.OverridePins)
}

func TestLintPolicy_DebugOverrides(t *testing.T) {
	cfg, err := policy.Parse([]byte("domains:\n  - domain: example.com\n    pins: [" +
		lintPin(1) + ", " + lintPin(2) + "]\ndebug_overrides:\n  override_pins: true\n"))
	require.NoError(t, err)

	report := lintPolicy(cfg, time.Now())
	assert.True(t, report.OverridePins)
	assert.Zero(t, report.DebugAnchors)
}

func TestPolicyLint_Command(t *testing.T) {
	oldNow := lintNow
	lintNow = func() time.Time { return time.Date(2026, 10, 15, 0, 0, 0, 0, time.UTC) }
	defer func() { lintNow = oldNow }()

	require.NoError(t, policyLintCmd.Flags().Set("policy", writePolicyFile(t, lintPolicyYAML)))

	t.Run("text", func(t *testing.T) {
		path := captureOutput(t, "text")
		require.NoError(t, runPolicyLint(policyLintCmd, nil))

		out := string(readOutput(t, path))
		assert.Contains(t, out, "api.example.com: enforce, 2 pin(s)\n")
		assert.Contains(t, out, "example.com (+subdomains): report-only, 1 pin(s), expires 2026-11-01T00:00:00Z\n")
		assert.Contains(t, out, "legacy.example.com: disabled, 0 pin(s)\n")
		assert.Contains(t, out, "  warning: policy has expired and is not enforced\n")
		assert.Contains(t, out, "4 domain(s) OK\n")
	})

	t.Run("json", func(t *testing.T) {
		path := captureOutput(t, "json")
		require.NoError(t, runPolicyLint(policyLintCmd, nil))

		var got lintReport
		require.NoError(t, json.Unmarshal(readOutput(t, path), &got))
		assert.Len(t, got.Domains, 4)
	})
}

func TestPolicyLint_MissingFlag(t *testing.T) {
	require.NoError(t, policyLintCmd.Flags().Set("policy", ""))

	err := runPolicyLint(policyLintCmd, nil)
	assert.ErrorIs(t, err, ErrInvalidInput)
}

func TestPolicyLint_InvalidPolicy(t *testing.T) {
	tests := map[string]string{
		"no pins":        "domains:\n  - domain: example.com\n",
		"unknown key":    "domains:\n  - domain: example.com\n    pinz: []\n",
		"malformed pin":  "domains:\n  - domain: example.com\n    pins: [md5/abc]\n",
		"tld subdomains": "domains:\n  - domain: com\n    include_subdomains: true\n    pins: [" + lintPin(1) + "]\n",
	}
	for name, body := range tests {
		t.Run(name, func(t *testing.T) {
			require.NoError(t, policyLintCmd.Flags().Set("policy", writePolicyFile(t, body)))

			err := runPolicyLint(policyLintCmd, nil)
			assert.ErrorIs(t, err, ErrInvalidPolicy)
			assert.Equal(t, ExitConfigError, exitCode(err))
		})
	}
}

func TestPolicyLint_MissingFile(t *testing.T) {
	require.NoError(t, policyLintCmd.Flags().Set("policy", "/nonexistent/policy.yaml"))

	err := runPolicyLint(policyLintCmd, nil)
	assert.ErrorIs(t, err, ErrInvalidPolicy)
}

func TestJoinPins(t *testing.T) {
	assert.Equal(t, "(none)", joinPins(nil))
	assert.Equal(t, "a, b", joinPins([]string{"a", "b"}))
}
