// Copyright 2026 Jeremy Hahn
// SPDX-License-Identifier: MIT

package main

import (
	"context"
	"crypto/tls"
	"crypto/x509"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/jeremyhahn/go-trustpin/pkg/identity"
	"github.com/jeremyhahn/go-trustpin/pkg/pinning"
	"github.com/jeremyhahn/go-trustpin/pkg/reporting"
	"github.com/jeremyhahn/go-trustpin/pkg/trustpin"
)

const (
	// defaultCheckTimeout bounds the dial and handshake.
	defaultCheckTimeout = 15 * time.Second

	// cliPackageName identifies the CLI in reports.
	cliPackageName = "trustpin-cli"
)

var checkCmd = &cobra.Command{
	Use:   "check",
	Short: "Connect to a server and apply a pinning policy",
	Long: `Perform a TLS handshake with --addr, validate the served chain against
the policy file and print the decision. The command exits non-zero when the
policy rejects the connection.

With --report, a validation report for pinned domains is delivered to the
policy's report URIs (or --report-uri) and logged.`,
	RunE: runCheck,
}

func init() {
	checkCmd.Flags().String("policy", "", "path to YAML policy file (required)")
	checkCmd.Flags().String("addr", "", "server address host:port (required)")
	checkCmd.Flags().String("server-name", "", "TLS server name (default: host of --addr)")
	checkCmd.Flags().Bool("debuggable", false, "honour the policy's debug overrides")
	checkCmd.Flags().String("state-file", "", "file persisting the vendor identifier")
	checkCmd.Flags().String("roots-file", "", "PEM file replacing the system root store")
	checkCmd.Flags().Duration("timeout", defaultCheckTimeout, "dial and handshake timeout")
	checkCmd.Flags().Bool("report", false, "deliver a validation report")
	checkCmd.Flags().String("report-uri", "", "report URI for domains without report_uris")
}

// checkResult is the check command output.
type checkResult struct {
	Hostname       string   `json:"hostname" yaml:"hostname"`
	Address        string   `json:"address" yaml:"address"`
	Result         string   `json:"result" yaml:"result"`
	Accepted       bool     `json:"accepted" yaml:"accepted"`
	Domain         string   `json:"domain,omitempty" yaml:"domain,omitempty"`
	Enforced       bool     `json:"enforced" yaml:"enforced"`
	PinsOverridden bool     `json:"pins_overridden,omitempty" yaml:"pins_overridden,omitempty"`
	Reason         string   `json:"reason,omitempty" yaml:"reason,omitempty"`
	PresentedPins  []string `json:"presented_pins,omitempty" yaml:"presented_pins,omitempty"`
	ExpectedPins   []string `json:"expected_pins,omitempty" yaml:"expected_pins,omitempty"`
	Chain          []string `json:"chain" yaml:"chain"`
	VendorID       string   `json:"vendor_id" yaml:"vendor_id"`
}

func runCheck(cmd *cobra.Command, args []string) error {
	policyFile, _ := cmd.Flags().GetString("policy")
	addr, _ := cmd.Flags().GetString("addr")
	serverName, _ := cmd.Flags().GetString("server-name")
	debuggable, _ := cmd.Flags().GetBool("debuggable")
	stateFile, _ := cmd.Flags().GetString("state-file")
	rootsFile, _ := cmd.Flags().GetString("roots-file")
	timeout, _ := cmd.Flags().GetDuration("timeout")
	report, _ := cmd.Flags().GetBool("report")
	reportURI, _ := cmd.Flags().GetString("report-uri")

	if policyFile == "" {
		return fmt.Errorf("%w: --policy is required", ErrInvalidInput)
	}
	if addr == "" {
		return fmt.Errorf("%w: --addr is required", ErrInvalidInput)
	}
	host, _, err := net.SplitHostPort(addr)
	if err != nil {
		return fmt.Errorf("%w: --addr: %w", ErrInvalidInput, err)
	}
	if serverName == "" {
		serverName = host
	}
	if timeout <= 0 {
		return fmt.Errorf("%w: --timeout must be positive", ErrInvalidInput)
	}

	var roots *x509.CertPool
	if rootsFile != "" {
		certs, err := loadCertsFromPEMFile(rootsFile)
		if err != nil {
			return err
		}
		roots = x509.NewCertPool()
		for _, c := range certs {
			roots.AddCert(c)
		}
	}

	var store identity.Store
	if stateFile != "" {
		fs, err := identity.NewFileStore(stateFile)
		if err != nil {
			return fmt.Errorf("%w: %w", ErrFileOperation, err)
		}
		store = fs
	}

	channel := reporting.Channel(reporting.ChannelFunc(func(context.Context, *reporting.Report) error { return nil }))
	if report {
		httpChannel, err := reporting.NewHTTPChannel(&reporting.HTTPConfig{DefaultURI: reportURI})
		if err != nil {
			return fmt.Errorf("%w: %w", ErrInvalidInput, err)
		}
		channel = reporting.Multi(reporting.NewLogChannel(slog.Default()), httpChannel)
	}

	f, err := os.Open(policyFile)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrFileOperation, err)
	}
	defer f.Close()

	inst, err := trustpin.Initialize(&trustpin.Config{
		PolicySource: f,
		Debuggable:   debuggable,
		Host:         identity.StaticHost{Name: cliPackageName, AppVersion: resolveVersion()},
		Store:        store,
		Channel:      channel,
		SystemRoots:  roots,
	})
	if err != nil {
		if errors.Is(err, trustpin.ErrAlreadyInitialized) {
			return err
		}
		return fmt.Errorf("%w: %w", ErrInvalidPolicy, err)
	}

	sigCtx, sigStop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer sigStop()

	ctx, cancel := context.WithTimeout(sigCtx, timeout)
	defer cancel()
	defer func() {
		if err := inst.Close(ctx); err != nil {
			slog.Debug("closing reporter", "error", err)
		}
	}()

	var deliver reporting.Channel
	if report {
		deliver = channel
	}

	result, err := checkTarget(ctx, inst, deliver, addr, serverName)
	if err != nil {
		return err
	}

	if renderErr := render(result, func(w io.Writer) { writeCheckText(w, result) }); renderErr != nil {
		return renderErr
	}
	if !result.Accepted {
		return fmt.Errorf("%w: %s: %s", ErrConnectionRejected, result.Hostname, result.Result)
	}
	return nil
}

// checkTarget performs one handshake with addr and returns the pinning
// decision. When deliver is non-nil a report for a pinned domain is sent
// before returning.
func checkTarget(ctx context.Context, inst *trustpin.Instance, deliver reporting.Channel, addr, serverName string) (*checkResult, error) {
	var (
		outcome  pinning.Outcome
		observed bool
	)
	tlsConfig := inst.Validator().TLSConfigFor(serverName, pinning.ObserverFunc(func(o pinning.Outcome) {
		outcome = o
		observed = true
	}))

	dialer := &tls.Dialer{Config: tlsConfig}
	conn, dialErr := dialer.DialContext(ctx, "tcp", addr)
	if conn != nil {
		_ = conn.Close()
	}
	if !observed {
		if dialErr == nil {
			dialErr = errors.New("handshake completed without validation")
		}
		return nil, fmt.Errorf("%w: %s: %w", ErrConnectFailed, addr, dialErr)
	}

	slog.Debug("handshake completed", "addr", addr, "server_name", serverName,
		"result", outcome.Result.String(), "error", dialErr)

	result := &checkResult{
		Hostname:       outcome.Hostname,
		Address:        addr,
		Result:         outcome.Result.String(),
		Accepted:       !outcome.Rejects(),
		PinsOverridden: outcome.PinsOverridden,
		PresentedPins:  outcome.PresentedPins.Strings(),
		ExpectedPins:   outcome.ExpectedPins.Strings(),
		VendorID:       inst.VendorID(),
	}
	if outcome.Policy != nil {
		result.Domain = outcome.Policy.Domain
		result.Enforced = outcome.Policy.Enforce
	}
	if outcome.Reason != nil {
		result.Reason = outcome.Reason.Error()
	}
	chain := outcome.ValidatedChain
	if chain == nil {
		chain = outcome.ServedChain
	}
	for _, c := range chain {
		result.Chain = append(result.Chain, c.Subject.String())
	}

	if deliver != nil && outcome.Policy != nil {
		r := reporting.NewReport(outcome, inst.App(), inst.VendorID(), time.Now())
		if err := deliver.Deliver(ctx, r); err != nil {
			slog.Warn("report delivery failed", "hostname", r.Hostname, "error", err)
		}
	}

	return result, nil
}

func writeCheckText(w io.Writer, r *checkResult) {
	decision := "ACCEPTED"
	if !r.Accepted {
		decision = "REJECTED"
	}
	fmt.Fprintf(w, "%s %s (%s): %s\n", decision, r.Hostname, r.Address, r.Result)
	if r.Domain != "" {
		mode := "report-only"
		if r.Enforced {
			mode = "enforce"
		}
		fmt.Fprintf(w, "Policy:    %s (%s)\n", r.Domain, mode)
	} else {
		fmt.Fprintln(w, "Policy:    none")
	}
	if r.PinsOverridden {
		fmt.Fprintln(w, "Pins:      overridden by debug configuration")
	}
	if r.Reason != "" {
		fmt.Fprintf(w, "Reason:    %s\n", r.Reason)
	}
	if len(r.ExpectedPins) > 0 {
		fmt.Fprintf(w, "Expected:  %s\n", joinPins(r.ExpectedPins))
		fmt.Fprintf(w, "Presented: %s\n", joinPins(r.PresentedPins))
	}
	for i, subject := range r.Chain {
		fmt.Fprintf(w, "Chain[%d]:  %s\n", i, subject)
	}
	fmt.Fprintf(w, "Vendor ID: %s\n", r.VendorID)
}
