// Copyright 2026 Jeremy Hahn
// SPDX-License-Identifier: MIT

package pinning

import (
	"context"
	"crypto/tls"
	"net"
	"net/http"
	"time"
)

const (
	// DefaultHTTPTimeout is the default overall timeout for HTTPClient.
	DefaultHTTPTimeout = 30 * time.Second

	defaultDialTimeout      = 30 * time.Second
	defaultHandshakeTimeout = 10 * time.Second
)

// Observer receives every validation outcome before the accept/reject
// decision is applied. Implementations must not block.
type Observer interface {
	Observe(Outcome)
}

// ObserverFunc adapts a function to the Observer interface.
type ObserverFunc func(Outcome)

// Observe calls f(o).
func (f ObserverFunc) Observe(o Outcome) { f(o) }

// TLSConfig returns a client TLS configuration in which the validator is
// the sole chain-validation authority. The standard verifier is disabled
// and replaced by a VerifyConnection hook that runs Validate against the
// handshake's SNI server name, notifies observer, and fails the handshake
// with ErrTrustFailure when the outcome rejects.
//
// IP literals are never sent as SNI, so servers dialed by address need
// TLSConfigFor.
func (v *Validator) TLSConfig(observer Observer) *tls.Config {
	return v.newTLSConfig(func(cs tls.ConnectionState) string { return cs.ServerName }, observer)
}

// TLSConfigFor is TLSConfig bound to host. The chain is validated against
// host whether or not it was sent as SNI, which makes it the variant to
// use for IP-addressed servers.
func (v *Validator) TLSConfigFor(host string, observer Observer) *tls.Config {
	cfg := v.newTLSConfig(func(tls.ConnectionState) string { return host }, observer)
	cfg.ServerName = host
	return cfg
}

func (v *Validator) newTLSConfig(hostname func(tls.ConnectionState) string, observer Observer) *tls.Config {
	return &tls.Config{
		MinVersion:         tls.VersionTLS12,
		InsecureSkipVerify: true, //nolint:gosec // Verification is performed by VerifyConnection.
		VerifyConnection: func(cs tls.ConnectionState) error {
			return v.verifyConnection(cs, hostname(cs), observer)
		},
	}
}

func (v *Validator) verifyConnection(cs tls.ConnectionState, hostname string, observer Observer) error {
	out := v.Validate(cs.PeerCertificates, hostname)
	if observer != nil {
		observer.Observe(out)
	}

	switch {
	case out.Result == ResultSuccess:
		v.logger.Debug("certificate chain trusted",
			"hostname", out.Hostname, "pinned", out.Policy != nil, "pins_overridden", out.PinsOverridden)
	case out.Rejects():
		v.logger.Warn("rejecting connection",
			"hostname", out.Hostname, "result", out.Result.String(), "reason", out.Reason)
		return ErrTrustFailure
	default:
		v.logger.Warn("pin mismatch on report-only policy, allowing connection",
			"hostname", out.Hostname, "domain", out.Domain())
	}
	return nil
}

// HTTPClient returns an HTTP client that applies the validator to every
// HTTPS connection. Direct connections are verified against the request
// host, including IP literals. Connections tunnelled through a proxy use
// TLSConfig. A timeout <= 0 selects DefaultHTTPTimeout.
func (v *Validator) HTTPClient(observer Observer, timeout time.Duration) *http.Client {
	if timeout <= 0 {
		timeout = DefaultHTTPTimeout
	}
	dialer := &net.Dialer{Timeout: defaultDialTimeout, KeepAlive: defaultDialTimeout}
	tr := &http.Transport{
		Proxy:               http.ProxyFromEnvironment,
		DialContext:         dialer.DialContext,
		TLSClientConfig:     v.TLSConfig(observer),
		TLSHandshakeTimeout: defaultHandshakeTimeout,
	}
	tr.DialTLSContext = func(ctx context.Context, network, addr string) (net.Conn, error) {
		host, _, err := net.SplitHostPort(addr)
		if err != nil {
			return nil, err
		}
		raw, err := tr.DialContext(ctx, network, addr)
		if err != nil {
			return nil, err
		}
		hsCtx, cancel := context.WithTimeout(ctx, defaultHandshakeTimeout)
		defer cancel()
		conn := tls.Client(raw, v.TLSConfigFor(host, observer))
		if err := conn.HandshakeContext(hsCtx); err != nil {
			_ = raw.Close()
			return nil, err
		}
		return conn, nil
	}
	return &http.Client{Timeout: timeout, Transport: tr}
}
