// Copyright 2026 Jeremy Hahn
// SPDX-License-Identifier: MIT

package tlsapin

import (
	"context"
	"crypto/tls"
	"encoding/hex"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"time"

	"github.com/miekg/dns"

	"github.com/jeremyhahn/go-trustpin/pkg/spkipin"
)

const (
	// DefaultTimeout is the default DNS query timeout.
	DefaultTimeout = 5 * time.Second

	defaultDNSPort = "53"
	defaultDoTPort = "853"
)

// resolvConfPath is replaced in tests.
var resolvConfPath = "/etc/resolv.conf"

// ResolverConfig configures NewResolver.
type ResolverConfig struct {
	// Server is the DNS resolver address, e.g. "1.1.1.1:53". When empty
	// the first nameserver in /etc/resolv.conf is used.
	Server string

	// UseTLS queries over DNS-over-TLS.
	UseTLS bool

	// TLSServerName is the SNI for DNS-over-TLS.
	TLSServerName string

	// RequireAD rejects responses without the Authenticated Data flag.
	RequireAD bool

	// Timeout bounds each query. Default: 5s.
	Timeout time.Duration

	// Logger for structured logging. If nil, slog.Default() is used.
	Logger *slog.Logger
}

// Resolver looks up TLSA records and converts them to pins.
type Resolver struct {
	client    *dns.Client
	server    string
	requireAD bool
	logger    *slog.Logger
}

// NewResolver creates a Resolver from cfg.
func NewResolver(cfg *ResolverConfig) (*Resolver, error) {
	if cfg == nil {
		return nil, ErrResolverConfig
	}

	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	client := &dns.Client{Net: "udp", Timeout: timeout}
	port := defaultDNSPort
	if cfg.UseTLS {
		client.Net = "tcp-tls"
		client.TLSConfig = &tls.Config{MinVersion: tls.VersionTLS12, ServerName: cfg.TLSServerName}
		port = defaultDoTPort
	}

	server := cfg.Server
	if server == "" {
		sys, err := dns.ClientConfigFromFile(resolvConfPath)
		if err != nil {
			return nil, fmt.Errorf("%w: %w", ErrResolverConfig, err)
		}
		if len(sys.Servers) == 0 {
			return nil, fmt.Errorf("%w: no nameservers in %s", ErrResolverConfig, resolvConfPath)
		}
		server = sys.Servers[0]
		if sys.Port != "" && !cfg.UseTLS {
			port = sys.Port
		}
	}
	if _, _, err := net.SplitHostPort(server); err != nil {
		server = net.JoinHostPort(server, port)
	}

	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	return &Resolver{
		client:    client,
		server:    server,
		requireAD: cfg.RequireAD,
		logger:    logger.With("component", "tlsa_resolver"),
	}, nil
}

// Server returns the resolver address queries are sent to.
func (r *Resolver) Server() string { return r.server }

// LookupTLSA returns the TLSA records published for hostname and port.
func (r *Resolver) LookupTLSA(ctx context.Context, hostname string, port uint16) ([]*Record, error) {
	if err := validateName(hostname); err != nil {
		return nil, err
	}
	if port == 0 {
		return nil, ErrInvalidPort
	}

	msg := new(dns.Msg)
	msg.SetQuestion(dns.Fqdn(tlsaName(hostname, port)), dns.TypeTLSA)
	msg.SetEdns0(4096, true)
	msg.RecursionDesired = true

	resp, _, err := r.client.ExchangeContext(ctx, msg, r.server)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrDNSLookupFailed, err)
	}
	if resp == nil {
		return nil, ErrDNSLookupFailed
	}
	if resp.Rcode == dns.RcodeNameError {
		return nil, ErrNoTLSARecords
	}
	if resp.Rcode != dns.RcodeSuccess {
		return nil, fmt.Errorf("%w: rcode %s", ErrDNSLookupFailed, dns.RcodeToString[resp.Rcode])
	}
	if r.requireAD && !resp.AuthenticatedData {
		return nil, ErrDNSSECRequired
	}

	records := make([]*Record, 0, len(resp.Answer))
	for _, rr := range resp.Answer {
		tlsa, ok := rr.(*dns.TLSA)
		if !ok {
			continue
		}
		data, err := hex.DecodeString(tlsa.Certificate)
		if err != nil {
			r.logger.Debug("skipping TLSA record with malformed data", "name", tlsa.Hdr.Name, "error", err)
			continue
		}
		records = append(records, &Record{
			Usage:        tlsa.Usage,
			Selector:     tlsa.Selector,
			MatchingType: tlsa.MatchingType,
			Data:         data,
		})
	}
	if len(records) == 0 {
		return nil, ErrNoTLSARecords
	}
	return records, nil
}

// LookupPins returns the SPKI pins published for hostname and port. Only
// records hashing the SubjectPublicKeyInfo with SHA-256 or SHA-512 are
// used; other records are skipped.
func (r *Resolver) LookupPins(ctx context.Context, hostname string, port uint16) (spkipin.PinSet, error) {
	records, err := r.LookupTLSA(ctx, hostname, port)
	if err != nil {
		return nil, err
	}

	var pins spkipin.PinSet
	for _, rec := range records {
		pin, err := rec.Pin()
		if err != nil {
			if !errors.Is(err, ErrUnsupportedRecord) {
				r.logger.Debug("skipping TLSA record", "hostname", hostname, "error", err)
			}
			continue
		}
		pins = pins.Add(pin)
	}
	if len(pins) == 0 {
		return nil, ErrNoUsablePins
	}

	r.logger.Debug("discovered pins from TLSA", "hostname", hostname, "port", port, "pins", len(pins))
	return pins, nil
}
