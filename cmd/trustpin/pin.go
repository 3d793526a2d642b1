// Copyright 2026 Jeremy Hahn
// SPDX-License-Identifier: MIT

package main

import (
	"context"
	"crypto/x509"
	"encoding/pem"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/jeremyhahn/go-trustpin/pkg/spkipin"
	"github.com/jeremyhahn/go-trustpin/pkg/tlsapin"
)

const (
	// defaultTLSPort is the default port for TLSA names.
	defaultTLSPort = 443

	// defaultLookupTimeout bounds a TLSA lookup.
	defaultLookupTimeout = 10 * time.Second
)

// pinCmd is the parent command for pin operations.
var pinCmd = &cobra.Command{
	Use:   "pin",
	Short: "SPKI pin operations",
	Long: `Tools for computing SPKI pins and discovering them in DNS.

Subcommands:
  show - compute pins from a PEM certificate file
  tlsa - read pins published as DANE TLSA records`,
}

var pinShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Show the SPKI pins of the certificates in a PEM file",
	Long: `Compute the pins of every certificate in a PEM file. The output can be
pasted into the pins list of a policy file. With --tlsa-host the matching
TLSA zone file records are printed as well.`,
	RunE: runPinShow,
}

var pinTLSACmd = &cobra.Command{
	Use:   "tlsa",
	Short: "Discover SPKI pins from DANE TLSA records",
	Long: `Query _<port>._tcp.<host> TLSA records and print the pins of every
SubjectPublicKeyInfo hash record (selector 1, matching type 1 or 2).
Use --format yaml to emit a policy domain entry.`,
	RunE: runPinTLSA,
}

func init() {
	pinCmd.AddCommand(pinShowCmd)
	pinCmd.AddCommand(pinTLSACmd)

	pinShowCmd.Flags().String("cert-file", "", "path to PEM certificate file (required)")
	pinShowCmd.Flags().String("algorithm", string(spkipin.SHA256), "pin algorithm (sha256|sha512|all)")
	pinShowCmd.Flags().String("tlsa-host", "", "also print TLSA records for this hostname")
	pinShowCmd.Flags().Int("port", defaultTLSPort, "port for TLSA records")

	pinTLSACmd.Flags().String("host", "", "hostname to query (required)")
	pinTLSACmd.Flags().Int("port", defaultTLSPort, "port of the TLS service")
	pinTLSACmd.Flags().String("dns-server", "", "DNS server address (e.g., 1.1.1.1:53)")
	pinTLSACmd.Flags().Bool("dns-over-tls", false, "use DNS-over-TLS for the lookup")
	pinTLSACmd.Flags().String("dns-tls-server-name", "", "TLS server name for DNS-over-TLS")
	pinTLSACmd.Flags().Bool("require-dnssec", false, "require the DNSSEC authenticated data flag")
	pinTLSACmd.Flags().Duration("timeout", defaultLookupTimeout, "lookup timeout")
}

// certPins is the pin show output for one certificate.
type certPins struct {
	Subject string   `json:"subject" yaml:"subject"`
	Issuer  string   `json:"issuer" yaml:"issuer"`
	CA      bool     `json:"ca" yaml:"ca"`
	Pins    []string `json:"pins" yaml:"pins"`
	HexPin  string   `json:"spki_sha256_hex" yaml:"spki_sha256_hex"`
	TLSA    []string `json:"tlsa,omitempty" yaml:"tlsa,omitempty"`
}

// pinAlgorithms maps the --algorithm flag onto pin algorithms.
var pinAlgorithms = map[string][]spkipin.Algorithm{
	"sha256": {spkipin.SHA256},
	"sha512": {spkipin.SHA512},
	"all":    {spkipin.SHA256, spkipin.SHA512},
}

func runPinShow(cmd *cobra.Command, args []string) error {
	certFile, _ := cmd.Flags().GetString("cert-file")
	algorithm, _ := cmd.Flags().GetString("algorithm")
	tlsaHost, _ := cmd.Flags().GetString("tlsa-host")
	port, _ := cmd.Flags().GetInt("port")

	if certFile == "" {
		return fmt.Errorf("%w: --cert-file is required", ErrInvalidInput)
	}
	algs, ok := pinAlgorithms[strings.ToLower(algorithm)]
	if !ok {
		return fmt.Errorf("%w: unsupported algorithm %q", ErrInvalidInput, algorithm)
	}
	if tlsaHost != "" && (port <= 0 || port > 65535) {
		return fmt.Errorf("%w: invalid port %d", ErrInvalidInput, port)
	}

	certs, err := loadCertsFromPEMFile(certFile)
	if err != nil {
		return err
	}

	out := make([]certPins, 0, len(certs))
	for _, cert := range certs {
		pins, err := spkipin.ComputeChainPins([]*x509.Certificate{cert}, algs)
		if err != nil {
			return fmt.Errorf("%w: %w", ErrInvalidInput, err)
		}
		entry := certPins{
			Subject: cert.Subject.String(),
			Issuer:  cert.Issuer.String(),
			CA:      cert.IsCA,
			Pins:    pins.Strings(),
			HexPin:  spkipin.ComputeSPKIPin(cert),
		}
		if tlsaHost != "" {
			usage := tlsapin.UsageDANEEE
			if cert.IsCA {
				usage = tlsapin.UsageDANETA
			}
			for _, pin := range pins {
				rec, err := tlsapin.FormatRecord(pin, tlsaHost, uint16(port), usage)
				if err != nil {
					return fmt.Errorf("%w: %w", ErrInvalidInput, err)
				}
				entry.TLSA = append(entry.TLSA, rec.Line)
			}
		}
		out = append(out, entry)
	}

	slog.Debug("computed pins", "cert_file", certFile, "certificates", len(out))

	return render(out, func(w io.Writer) {
		for i, c := range out {
			if i > 0 {
				fmt.Fprintln(w)
			}
			fmt.Fprintf(w, "Subject: %s\n", c.Subject)
			fmt.Fprintf(w, "Issuer:  %s\n", c.Issuer)
			for _, p := range c.Pins {
				fmt.Fprintf(w, "Pin:     %s\n", p)
			}
			fmt.Fprintf(w, "SPKI SHA-256 (hex): %s\n", c.HexPin)
			for _, line := range c.TLSA {
				fmt.Fprintf(w, "TLSA:    %s\n", line)
			}
		}
	})
}

// tlsaPins is the pin tlsa output. Its YAML form is a policy domain entry.
type tlsaPins struct {
	Domain string   `json:"domain" yaml:"domain"`
	Pins   []string `json:"pins" yaml:"pins"`
}

func runPinTLSA(cmd *cobra.Command, args []string) error {
	host, _ := cmd.Flags().GetString("host")
	port, _ := cmd.Flags().GetInt("port")
	dnsServer, _ := cmd.Flags().GetString("dns-server")
	dnsOverTLS, _ := cmd.Flags().GetBool("dns-over-tls")
	dnsTLSServerName, _ := cmd.Flags().GetString("dns-tls-server-name")
	requireDNSSEC, _ := cmd.Flags().GetBool("require-dnssec")
	timeout, _ := cmd.Flags().GetDuration("timeout")

	if host == "" {
		return fmt.Errorf("%w: --host is required", ErrInvalidInput)
	}
	if port <= 0 || port > 65535 {
		return fmt.Errorf("%w: invalid port %d", ErrInvalidInput, port)
	}
	if timeout <= 0 {
		timeout = defaultLookupTimeout
	}

	resolver, err := tlsapin.NewResolver(&tlsapin.ResolverConfig{
		Server:        dnsServer,
		UseTLS:        dnsOverTLS,
		TLSServerName: dnsTLSServerName,
		RequireAD:     requireDNSSEC,
		Timeout:       timeout,
		Logger:        slog.Default(),
	})
	if err != nil {
		return fmt.Errorf("%w: resolver: %w", ErrInvalidInput, err)
	}

	sigCtx, sigStop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer sigStop()

	ctx, cancel := context.WithTimeout(sigCtx, timeout)
	defer cancel()

	slog.Debug("querying TLSA records", "host", host, "port", port, "dns_server", resolver.Server())

	pins, err := resolver.LookupPins(ctx, host, uint16(port))
	if err != nil {
		return fmt.Errorf("%w: %w", ErrLookupFailed, err)
	}

	out := tlsaPins{Domain: strings.TrimSuffix(strings.ToLower(host), "."), Pins: pins.Strings()}
	return render(out, func(w io.Writer) {
		for _, p := range out.Pins {
			fmt.Fprintln(w, p)
		}
	})
}

// loadCertsFromPEMFile reads every certificate from a PEM file.
func loadCertsFromPEMFile(certFile string) ([]*x509.Certificate, error) {
	data, err := os.ReadFile(certFile)
	if err != nil {
		return nil, fmt.Errorf("%w: reading %s: %w", ErrFileOperation, certFile, err)
	}

	var certs []*x509.Certificate
	for rest := data; ; {
		var block *pem.Block
		block, rest = pem.Decode(rest)
		if block == nil {
			break
		}
		if block.Type != "CERTIFICATE" {
			continue
		}
		cert, err := x509.ParseCertificate(block.Bytes)
		if err != nil {
			return nil, fmt.Errorf("%w: parsing certificate: %w", ErrInvalidInput, err)
		}
		certs = append(certs, cert)
	}
	if len(certs) == 0 {
		return nil, fmt.Errorf("%w: no certificates found in %s", ErrInvalidInput, certFile)
	}
	return certs, nil
}
