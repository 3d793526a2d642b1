// Copyright 2026 Jeremy Hahn
// SPDX-License-Identifier: MIT

// Package reporting delivers pin validation reports off the handshake path.
//
// Report is called synchronously from TLS verification and must return
// immediately: it deduplicates and hands the outcome to a bounded queue. A
// single worker goroutine drains the queue, builds each immutable Report and
// passes it to a Channel. When the queue is full the outcome is dropped.
// Delivery failures are logged and never reach the caller.
package reporting

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/jeremyhahn/go-trustpin/pkg/identity"
	"github.com/jeremyhahn/go-trustpin/pkg/pinning"
)

const (
	// DefaultQueueSize is the default capacity of the report queue.
	DefaultQueueSize = 32

	// DefaultDedupWindow is the default period during which repeated
	// reports for the same domain and result are suppressed.
	DefaultDedupWindow = 24 * time.Hour

	// DefaultDeliveryTimeout bounds a single Channel.Deliver call.
	DefaultDeliveryTimeout = 30 * time.Second
)

// Config configures New.
type Config struct {
	// Channel delivers reports. Required.
	Channel Channel

	// App is copied into every report.
	App identity.AppInfo

	// VendorID is copied into every report.
	VendorID string

	// QueueSize is the report queue capacity. Default: 32.
	QueueSize int

	// DedupWindow suppresses duplicate reports. Default: 24h.
	DedupWindow time.Duration

	// DeliveryTimeout bounds each delivery. Default: 30s.
	DeliveryTimeout time.Duration

	// ReportSuccess also reports successful validations of pinned domains.
	ReportSuccess bool

	// Now supplies report timestamps. Defaults to time.Now.
	Now func() time.Time

	// Logger for structured logging. If nil, slog.Default() is used.
	Logger *slog.Logger
}

// queuedOutcome is an admitted outcome awaiting report construction.
type queuedOutcome struct {
	out pinning.Outcome
	at  time.Time
}

// Reporter queues validation outcomes for background delivery.
type Reporter struct {
	channel         Channel
	app             identity.AppInfo
	vendorID        string
	reportSuccess   bool
	deliveryTimeout time.Duration
	dedup           *dedupCache
	queue           chan queuedOutcome
	now             func() time.Time
	logger          *slog.Logger

	ctx       context.Context
	cancel    context.CancelFunc
	done      chan struct{}
	closed    atomic.Bool
	closeOnce sync.Once
}

// New creates a Reporter and starts its delivery worker.
func New(cfg *Config) (*Reporter, error) {
	if cfg == nil {
		return nil, ErrInvalidConfig
	}
	if cfg.Channel == nil {
		return nil, fmt.Errorf("%w: channel required", ErrInvalidConfig)
	}

	queueSize := cfg.QueueSize
	if queueSize <= 0 {
		queueSize = DefaultQueueSize
	}
	window := cfg.DedupWindow
	if window <= 0 {
		window = DefaultDedupWindow
	}
	timeout := cfg.DeliveryTimeout
	if timeout <= 0 {
		timeout = DefaultDeliveryTimeout
	}
	now := cfg.Now
	if now == nil {
		now = time.Now
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	ctx, cancel := context.WithCancel(context.Background())
	r := &Reporter{
		channel:         cfg.Channel,
		app:             cfg.App,
		vendorID:        cfg.VendorID,
		reportSuccess:   cfg.ReportSuccess,
		deliveryTimeout: timeout,
		dedup:           newDedupCache(window),
		queue:           make(chan queuedOutcome, queueSize),
		now:             now,
		logger:          logger.With("component", "pin_reporter"),
		ctx:             ctx,
		cancel:          cancel,
		done:            make(chan struct{}),
	}
	go r.run()
	return r, nil
}

// Report queues a report for out. It never blocks and never fails; the
// report is silently skipped when the outcome is not reportable or was
// reported recently, and dropped with a warning when the queue is full.
func (r *Reporter) Report(out pinning.Outcome) {
	defer func() {
		if p := recover(); p != nil {
			r.logger.Error("recovered panic while queuing report", "hostname", out.Hostname, "panic", p)
		}
	}()

	if !r.reportable(out) {
		return
	}
	if r.closed.Load() {
		r.logger.Debug("reporter closed, discarding report", "hostname", out.Hostname)
		return
	}

	now := r.now()
	key := dedupKey{domain: out.Domain(), result: out.Result}
	if !r.dedup.admit(key, now) {
		r.logger.Debug("suppressing duplicate report", "domain", key.domain, "result", out.Result.String())
		return
	}

	select {
	case r.queue <- queuedOutcome{out: out, at: now}:
	default:
		r.dedup.forget(key)
		r.logger.Warn("report queue full, dropping report",
			"hostname", out.Hostname, "result", out.Result.String(), "capacity", cap(r.queue))
	}
}

// Observe implements pinning.Observer.
func (r *Reporter) Observe(out pinning.Outcome) { r.Report(out) }

// Pending returns the number of queued, undelivered reports.
func (r *Reporter) Pending() int { return len(r.queue) }

// Close stops the worker and waits for it to exit or for ctx to end.
// Queued reports are abandoned. Close is idempotent.
func (r *Reporter) Close(ctx context.Context) error {
	r.closeOnce.Do(func() {
		r.closed.Store(true)
		r.cancel()
	})
	select {
	case <-r.done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// reportable limits reports to domains with an active pinning policy.
// Successes are reported only when enabled.
func (r *Reporter) reportable(out pinning.Outcome) bool {
	if out.Policy == nil {
		return false
	}
	return out.Result != pinning.ResultSuccess || r.reportSuccess
}

func (r *Reporter) run() {
	defer close(r.done)
	for {
		select {
		case <-r.ctx.Done():
			return
		case item := <-r.queue:
			r.deliver(item)
		}
	}
}

// deliver builds the report for item and hands it to the channel. The
// report timestamp is the time the outcome was admitted.
func (r *Reporter) deliver(item queuedOutcome) {
	defer func() {
		if p := recover(); p != nil {
			r.logger.Error("recovered panic in report channel", "hostname", item.out.Hostname, "panic", p)
		}
	}()

	report := NewReport(item.out, r.app, r.vendorID, item.at)

	ctx, cancel := context.WithTimeout(r.ctx, r.deliveryTimeout)
	defer cancel()

	if err := r.channel.Deliver(ctx, report); err != nil {
		r.logger.Warn("report delivery failed", "hostname", report.Hostname, "error", err)
		return
	}
	r.logger.Debug("report delivered", "hostname", report.Hostname, "result", report.ValidationResult)
}
