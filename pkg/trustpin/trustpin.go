// Copyright 2026 Jeremy Hahn
// SPDX-License-Identifier: MIT

// Package trustpin is the process-wide entry point for certificate pinning.
//
// Initialize is called once at startup with the pinning policy. It resolves
// the application identity and vendor identifier, applies debug overrides
// when the build is debuggable, builds the validator and starts the
// background reporter. Any component may then call GetInstance to obtain
// the TLS configuration that enforces the policy.
package trustpin

import (
	"context"
	"crypto/tls"
	"crypto/x509"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/jeremyhahn/go-trustpin/pkg/identity"
	"github.com/jeremyhahn/go-trustpin/pkg/pinning"
	"github.com/jeremyhahn/go-trustpin/pkg/policy"
	"github.com/jeremyhahn/go-trustpin/pkg/reporting"
)

// maxPolicySize caps how much of the policy source is read (1 MB).
const maxPolicySize = 1 << 20

var (
	initMu  sync.Mutex
	current atomic.Pointer[Instance]
)

// Config configures Initialize.
type Config struct {
	// PolicySource supplies the YAML pinning policy. Required.
	PolicySource io.Reader

	// Debuggable enables the policy's debug overrides. Must be false in
	// release builds.
	Debuggable bool

	// Host supplies the application name and version.
	// Default: identity.BuildInfoHost.
	Host identity.HostProvider

	// Store persists the vendor identifier. Default: an in-memory store,
	// which yields a new identifier per process.
	Store identity.Store

	// Channel delivers reports. Default: a log channel plus an HTTP
	// channel posting to each policy's report URIs.
	Channel reporting.Channel

	// SystemRoots replaces the operating system root store.
	SystemRoots *x509.CertPool

	// ReportQueueSize is the report queue capacity. Default: 32.
	ReportQueueSize int

	// DedupWindow suppresses duplicate reports. Default: 24h.
	DedupWindow time.Duration

	// ReportSuccess also reports successful validations of pinned domains.
	ReportSuccess bool

	// Logger for structured logging. If nil, slog.Default() is used.
	Logger *slog.Logger
}

// Instance is the initialized pinning context. All methods are safe for
// concurrent use.
type Instance struct {
	config    *policy.Configuration
	validator *pinning.Validator
	reporter  *reporting.Reporter
	vendorID  string
	app       identity.AppInfo
	logger    *slog.Logger
}

// Initialize builds the process-wide Instance. It fails with
// ErrAlreadyInitialized if called more than once. A failed Initialize
// leaves the process uninitialized and may be retried.
func Initialize(cfg *Config) (*Instance, error) {
	initMu.Lock()
	defer initMu.Unlock()

	if current.Load() != nil {
		return nil, ErrAlreadyInitialized
	}

	inst, err := newInstance(cfg)
	if err != nil {
		return nil, err
	}
	current.Store(inst)

	inst.logger.Info("certificate pinning initialized",
		"domains", len(inst.config.Policies()),
		"app", inst.app.PackageName,
		"version", inst.app.Version)
	return inst, nil
}

// GetInstance returns the Instance created by Initialize, or
// ErrNotInitialized.
func GetInstance() (*Instance, error) {
	inst := current.Load()
	if inst == nil {
		return nil, ErrNotInitialized
	}
	return inst, nil
}

func newInstance(cfg *Config) (*Instance, error) {
	if cfg == nil || cfg.PolicySource == nil {
		return nil, fmt.Errorf("%w: policy source required", ErrInvalidConfig)
	}

	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	data, err := io.ReadAll(io.LimitReader(cfg.PolicySource, maxPolicySize+1))
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrPolicySource, err)
	}
	if len(data) > maxPolicySize {
		return nil, fmt.Errorf("%w: policy exceeds %d bytes", ErrPolicySource, maxPolicySize)
	}

	config, err := policy.Parse(data)
	if err != nil {
		return nil, err
	}

	app := identity.ResolveAppInfo(cfg.Host)

	store := cfg.Store
	if store == nil {
		store = identity.NewMemoryStore()
	}
	vendorID, err := identity.GetOrCreateVendorIdentifier(store, logger)
	if err != nil {
		return nil, err
	}

	validator, err := pinning.NewValidator(&pinning.ValidatorConfig{
		Configuration:  config,
		DebugOverrides: pinning.ResolveDebugOverrides(cfg.Debuggable, config, logger),
		SystemRoots:    cfg.SystemRoots,
		Logger:         logger,
	})
	if err != nil {
		return nil, err
	}

	channel := cfg.Channel
	if channel == nil {
		httpChannel, err := reporting.NewHTTPChannel(&reporting.HTTPConfig{Logger: logger})
		if err != nil {
			return nil, err
		}
		channel = reporting.Multi(reporting.NewLogChannel(logger), httpChannel)
	}

	reporter, err := reporting.New(&reporting.Config{
		Channel:       channel,
		App:           app,
		VendorID:      vendorID,
		QueueSize:     cfg.ReportQueueSize,
		DedupWindow:   cfg.DedupWindow,
		ReportSuccess: cfg.ReportSuccess,
		Logger:        logger,
	})
	if err != nil {
		return nil, err
	}

	return &Instance{
		config:    config,
		validator: validator,
		reporter:  reporter,
		vendorID:  vendorID,
		app:       app,
		logger:    logger.With("component", "trustpin"),
	}, nil
}

// Configuration returns the parsed pinning policy.
func (i *Instance) Configuration() *policy.Configuration { return i.config }

// Validator returns the chain validator.
func (i *Instance) Validator() *pinning.Validator { return i.validator }

// Reporter returns the background reporter.
func (i *Instance) Reporter() *reporting.Reporter { return i.reporter }

// VendorID returns the installation's vendor identifier.
func (i *Instance) VendorID() string { return i.vendorID }

// App returns the resolved application metadata.
func (i *Instance) App() identity.AppInfo { return i.app }

// TLSConfig returns a new client TLS configuration that enforces the
// pinning policy against the handshake's SNI name and reports every
// outcome. Callers may set ServerName and other fields on the returned
// value.
func (i *Instance) TLSConfig() *tls.Config {
	return i.validator.TLSConfig(i.reporter)
}

// TLSConfigFor is TLSConfig bound to host, for servers dialed by IP
// address or under a name other than the SNI value.
func (i *Instance) TLSConfigFor(host string) *tls.Config {
	return i.validator.TLSConfigFor(host, i.reporter)
}

// HTTPClient returns an HTTP client enforcing the pinning policy. A zero
// timeout selects pinning.DefaultHTTPTimeout.
func (i *Instance) HTTPClient(timeout time.Duration) *http.Client {
	return i.validator.HTTPClient(i.reporter, timeout)
}

// Close stops the background reporter. The instance remains the process
// instance and its TLS configurations keep enforcing the policy.
func (i *Instance) Close(ctx context.Context) error {
	return i.reporter.Close(ctx)
}
