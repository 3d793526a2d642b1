// Copyright 2026 Jeremy Hahn
// SPDX-License-Identifier: MIT

package reporting

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

const (
	// DefaultUploadTimeout bounds a single HTTP report upload.
	DefaultUploadTimeout = 10 * time.Second

	// DefaultUploadInterval is the steady-state spacing between uploads to
	// one report host.
	DefaultUploadInterval = 6 * time.Second

	// DefaultUploadBurst is the number of uploads allowed to one report
	// host before DefaultUploadInterval pacing applies.
	DefaultUploadBurst = 10

	// maxErrorBodySize caps how much of a failed response is read.
	maxErrorBodySize = 4 << 10
)

// Channel delivers reports to their destination. Deliver is only called
// from the reporter's worker goroutine.
type Channel interface {
	Deliver(ctx context.Context, r *Report) error
}

// ChannelFunc adapts a function to the Channel interface.
type ChannelFunc func(ctx context.Context, r *Report) error

// Deliver calls f(ctx, r).
func (f ChannelFunc) Deliver(ctx context.Context, r *Report) error { return f(ctx, r) }

// multiChannel fans a report out to several channels.
type multiChannel []Channel

// Multi returns a Channel delivering to each of channels in order. All
// channels are attempted; their errors are joined.
func Multi(channels ...Channel) Channel {
	return multiChannel(channels)
}

func (m multiChannel) Deliver(ctx context.Context, r *Report) error {
	var errs []error
	for _, ch := range m {
		if ch == nil {
			continue
		}
		if err := ch.Deliver(ctx, r); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// LogChannel writes reports to a structured logger.
type LogChannel struct {
	logger *slog.Logger
}

// NewLogChannel returns a LogChannel. If logger is nil, slog.Default() is used.
func NewLogChannel(logger *slog.Logger) *LogChannel {
	if logger == nil {
		logger = slog.Default()
	}
	return &LogChannel{logger: logger.With("component", "pin_report")}
}

// Deliver logs r. Successful validations are logged at Info, failures at
// Warn.
func (c *LogChannel) Deliver(ctx context.Context, r *Report) error {
	level := slog.LevelWarn
	if r.ValidationResult == "success" {
		level = slog.LevelInfo
	}
	c.logger.LogAttrs(ctx, level, "pin validation report",
		slog.String("hostname", r.Hostname),
		slog.String("noted_hostname", r.NotedHostname),
		slog.String("validation_result", r.ValidationResult),
		slog.Bool("enforce_pinning", r.EnforcePinning),
		slog.Any("known_pins", r.KnownPins),
		slog.String("app_bundle_id", r.AppBundleID),
		slog.String("app_version", r.AppVersion),
		slog.String("app_vendor_id", r.AppVendorID),
	)
	return nil
}

// HTTPConfig configures NewHTTPChannel.
type HTTPConfig struct {
	// DefaultURI receives reports whose policy names no report URIs.
	// Optional; such reports are skipped when empty.
	DefaultURI string

	// Client performs the uploads. Default: a client with
	// DefaultUploadTimeout.
	Client *http.Client

	// Interval is the steady-state spacing between uploads to one host.
	// Default: DefaultUploadInterval.
	Interval time.Duration

	// Burst is the number of uploads allowed to one host before pacing
	// applies. Default: DefaultUploadBurst.
	Burst int

	// Logger for structured logging. If nil, slog.Default() is used.
	Logger *slog.Logger
}

// HTTPChannel POSTs reports as JSON to their report URIs.
type HTTPChannel struct {
	client     *http.Client
	defaultURI string
	limiter    *hostLimiter
	logger     *slog.Logger
}

// NewHTTPChannel creates an HTTPChannel from cfg. A nil cfg uses defaults.
func NewHTTPChannel(cfg *HTTPConfig) (*HTTPChannel, error) {
	if cfg == nil {
		cfg = &HTTPConfig{}
	}
	if cfg.DefaultURI != "" {
		u, err := url.Parse(cfg.DefaultURI)
		if err != nil || (u.Scheme != "https" && u.Scheme != "http") || u.Host == "" {
			return nil, fmt.Errorf("%w: default report URI %q", ErrInvalidConfig, cfg.DefaultURI)
		}
	}

	client := cfg.Client
	if client == nil {
		client = &http.Client{Timeout: DefaultUploadTimeout}
	}
	interval := cfg.Interval
	if interval <= 0 {
		interval = DefaultUploadInterval
	}
	burst := cfg.Burst
	if burst <= 0 {
		burst = DefaultUploadBurst
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	return &HTTPChannel{
		client:     client,
		defaultURI: cfg.DefaultURI,
		limiter:    newHostLimiter(rate.Every(interval), burst, 10*interval),
		logger:     logger.With("component", "http_report_channel"),
	}, nil
}

// Deliver uploads r to each of its report URIs, or to the default URI when
// it has none. Every destination is attempted; failures are joined.
func (c *HTTPChannel) Deliver(ctx context.Context, r *Report) error {
	uris := r.ReportURIs
	if len(uris) == 0 && c.defaultURI != "" {
		uris = []string{c.defaultURI}
	}
	if len(uris) == 0 {
		c.logger.Debug("no report URI configured, skipping upload", "hostname", r.Hostname)
		return nil
	}

	body, err := json.Marshal(r)
	if err != nil {
		return fmt.Errorf("%w: encode: %w", ErrDeliveryFailed, err)
	}

	var errs []error
	for _, uri := range uris {
		if err := c.post(ctx, uri, body); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func (c *HTTPChannel) post(ctx context.Context, uri string, body []byte) error {
	u, err := url.Parse(uri)
	if err != nil {
		return fmt.Errorf("%w: %s: %w", ErrDeliveryFailed, uri, err)
	}
	if !c.limiter.Allow(u.Host) {
		return fmt.Errorf("%w: %s", ErrRateLimited, u.Host)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, uri, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("%w: %s: %w", ErrDeliveryFailed, uri, err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %s: %w", ErrDeliveryFailed, uri, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBodySize))
		return fmt.Errorf("%w: %s returned %d: %s", ErrDeliveryFailed, uri, resp.StatusCode, bytes.TrimSpace(msg))
	}
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, maxErrorBodySize))

	c.logger.Debug("report uploaded", "uri", uri, "status", resp.StatusCode)
	return nil
}

// hostEntry holds a per-host limiter and the last time it was used.
type hostEntry struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// hostLimiter is a per-host token bucket. Idle hosts are evicted lazily
// once they have not been seen for staleAge.
type hostLimiter struct {
	mu        sync.Mutex
	entries   map[string]*hostEntry
	limit     rate.Limit
	burst     int
	staleAge  time.Duration
	lastSweep time.Time
}

func newHostLimiter(limit rate.Limit, burst int, staleAge time.Duration) *hostLimiter {
	return &hostLimiter{
		entries:  make(map[string]*hostEntry),
		limit:    limit,
		burst:    burst,
		staleAge: staleAge,
	}
}

// Allow reports whether an upload to host may proceed now.
func (l *hostLimiter) Allow(host string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := time.Now()
	if now.Sub(l.lastSweep) > l.staleAge {
		l.lastSweep = now
		for h, e := range l.entries {
			if now.Sub(e.lastSeen) > l.staleAge {
				delete(l.entries, h)
			}
		}
	}

	e, ok := l.entries[host]
	if !ok {
		e = &hostEntry{limiter: rate.NewLimiter(l.limit, l.burst)}
		l.entries[host] = e
	}
	e.lastSeen = now
	return e.limiter.AllowN(now, 1)
}
