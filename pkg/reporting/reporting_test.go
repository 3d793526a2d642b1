// Copyright 2026 Jeremy Hahn
// SPDX-License-Identifier: MIT

package reporting

import (
	"bytes"
	"context"
	"crypto/x509"
	"encoding/json"
	"encoding/pem"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jeremyhahn/go-trustpin/internal/testpki"
	"github.com/jeremyhahn/go-trustpin/pkg/identity"
	"github.com/jeremyhahn/go-trustpin/pkg/pinning"
	"github.com/jeremyhahn/go-trustpin/pkg/policy"
	"github.com/jeremyhahn/go-trustpin/pkg/spkipin"
)

// syncBuffer is a bytes.Buffer safe for use as a log sink across goroutines.
type syncBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *syncBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *syncBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}

func newTestLogger(buf io.Writer) *slog.Logger {
	return slog.New(slog.NewTextHandler(buf, &slog.HandlerOptions{Level: slog.LevelDebug}))
}

// fakeClock is a manually advanced clock.
type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

var testApp = identity.AppInfo{PackageName: "com.example.app", Version: "1.0.0", Platform: "linux/amd64"}

// mismatchOutcome returns a pin mismatch outcome for host under domain.
func mismatchOutcome(t *testing.T, domain, host string, reportURIs ...string) pinning.Outcome {
	t.Helper()
	root := testpki.NewRoot(t, "Report Root")
	leaf := root.NewLeaf(t, host)
	known := spkipin.Pin{Algorithm: spkipin.SHA256, Digest: bytes.Repeat([]byte{0x01}, 32)}
	return pinning.Outcome{
		Result:   pinning.ResultPinMismatch,
		Hostname: host,
		Policy: &policy.Policy{
			Domain:            domain,
			Pins:              spkipin.NewPinSet(known),
			Enforce:           true,
			IncludeSubdomains: true,
			ReportURIs:        reportURIs,
		},
		PresentedPins:  spkipin.NewPinSet(testpki.Pin(t, leaf.Cert), testpki.Pin(t, root.Cert)),
		ExpectedPins:   spkipin.NewPinSet(known),
		ServedChain:    []*x509.Certificate{leaf.Cert},
		ValidatedChain: []*x509.Certificate{leaf.Cert, root.Cert},
	}
}

// collector is a Channel that forwards reports onto a channel.
func collector() (Channel, <-chan *Report) {
	ch := make(chan *Report, 64)
	return ChannelFunc(func(_ context.Context, r *Report) error {
		ch <- r
		return nil
	}), ch
}

func newTestReporter(t *testing.T, cfg *Config) *Reporter {
	t.Helper()
	r, err := New(cfg)
	require.NoError(t, err)
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = r.Close(ctx)
	})
	return r
}

func receive(t *testing.T, ch <-chan *Report) *Report {
	t.Helper()
	select {
	case r := <-ch:
		return r
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for report delivery")
		return nil
	}
}

func assertNoDelivery(t *testing.T, ch <-chan *Report) {
	t.Helper()
	select {
	case r := <-ch:
		t.Fatalf("unexpected report delivered for %s", r.Hostname)
	case <-time.After(100 * time.Millisecond):
	}
}

func TestNew_InvalidConfig(t *testing.T) {
	_, err := New(nil)
	assert.ErrorIs(t, err, ErrInvalidConfig)

	_, err = New(&Config{})
	assert.ErrorIs(t, err, ErrInvalidConfig)
}

func TestNew_Defaults(t *testing.T) {
	ch, _ := collector()
	r := newTestReporter(t, &Config{Channel: ch})
	assert.Equal(t, DefaultQueueSize, cap(r.queue))
	assert.Equal(t, DefaultDedupWindow, r.dedup.window)
	assert.Equal(t, DefaultDeliveryTimeout, r.deliveryTimeout)
}

func TestNewReport(t *testing.T) {
	out := mismatchOutcome(t, "example.com", "api.example.com", "https://reports.example.com/pin")
	out.Policy.Expiration = time.Date(2027, 6, 1, 0, 0, 0, 0, time.UTC)
	at := time.Date(2026, 10, 15, 12, 0, 0, 0, time.UTC)

	r := NewReport(out, testApp, "vendor-1", at)
	assert.Equal(t, "com.example.app", r.AppBundleID)
	assert.Equal(t, "1.0.0", r.AppVersion)
	assert.Equal(t, "vendor-1", r.AppVendorID)
	assert.Equal(t, "linux/amd64", r.AppPlatform)
	assert.Equal(t, at, r.DateTime)
	assert.Equal(t, "api.example.com", r.Hostname)
	assert.Equal(t, "example.com", r.NotedHostname)
	assert.True(t, r.IncludeSubdomains)
	assert.True(t, r.EnforcePinning)
	assert.Equal(t, "2027-06-01T00:00:00Z", r.EffectiveExpirationDate)
	assert.Equal(t, out.Policy.Pins.Strings(), r.KnownPins)
	assert.Equal(t, "pin_mismatch", r.ValidationResult)
	assert.Equal(t, []string{"https://reports.example.com/pin"}, r.ReportURIs)

	require.Len(t, r.ServedCertificateChain, 1)
	require.Len(t, r.ValidatedCertificateChain, 2)
	block, _ := pem.Decode([]byte(r.ValidatedCertificateChain[1]))
	require.NotNil(t, block)
	assert.Equal(t, out.ValidatedChain[1].Raw, block.Bytes)

	// Mutating the policy afterwards must not affect the report.
	out.Policy.ReportURIs[0] = "https://changed.example.com"
	assert.Equal(t, "https://reports.example.com/pin", r.ReportURIs[0])
}

func TestReport_JSONFieldNames(t *testing.T) {
	out := mismatchOutcome(t, "example.com", "api.example.com", "https://reports.example.com/pin")
	data, err := json.Marshal(NewReport(out, testApp, "vendor-1", time.Now()))
	require.NoError(t, err)

	var fields map[string]any
	require.NoError(t, json.Unmarshal(data, &fields))
	for _, name := range []string{
		"app-bundle-id", "app-version", "app-vendor-id", "app-platform",
		"date-time", "hostname", "noted-hostname", "include-subdomains",
		"enforce-pinning", "served-certificate-chain", "validated-certificate-chain",
		"known-pins", "validation-result",
	} {
		assert.Contains(t, fields, name)
	}
	assert.NotContains(t, fields, "ReportURIs")
	assert.NotContains(t, fields, "effective-expiration-date")
}

func TestReporter_DeliversInBackground(t *testing.T) {
	ch, delivered := collector()
	r := newTestReporter(t, &Config{Channel: ch, App: testApp, VendorID: "vendor-1"})

	r.Report(mismatchOutcome(t, "example.com", "api.example.com"))

	got := receive(t, delivered)
	assert.Equal(t, "api.example.com", got.Hostname)
	assert.Equal(t, "vendor-1", got.AppVendorID)
	assert.Equal(t, "pin_mismatch", got.ValidationResult)
}

func TestReporter_ObserverInterface(t *testing.T) {
	ch, delivered := collector()
	r := newTestReporter(t, &Config{Channel: ch})

	var obs pinning.Observer = r
	obs.Observe(mismatchOutcome(t, "example.com", "example.com"))
	assert.Equal(t, "example.com", receive(t, delivered).Hostname)
}

func TestReporter_SkipsUnreportableOutcomes(t *testing.T) {
	ch, delivered := collector()
	r := newTestReporter(t, &Config{Channel: ch})

	unpinned := mismatchOutcome(t, "example.com", "other.test")
	unpinned.Policy = nil
	unpinned.Result = pinning.ResultChainInvalid
	r.Report(unpinned)

	success := mismatchOutcome(t, "example.com", "example.com")
	success.Result = pinning.ResultSuccess
	r.Report(success)

	assertNoDelivery(t, delivered)
}

func TestReporter_ReportSuccess(t *testing.T) {
	ch, delivered := collector()
	r := newTestReporter(t, &Config{Channel: ch, ReportSuccess: true})

	success := mismatchOutcome(t, "example.com", "example.com")
	success.Result = pinning.ResultSuccess
	r.Report(success)

	assert.Equal(t, "success", receive(t, delivered).ValidationResult)
}

func TestReporter_Deduplicates(t *testing.T) {
	clock := &fakeClock{now: time.Date(2026, 10, 15, 0, 0, 0, 0, time.UTC)}
	ch, delivered := collector()
	r := newTestReporter(t, &Config{Channel: ch, DedupWindow: time.Hour, Now: clock.Now})

	out := mismatchOutcome(t, "example.com", "api.example.com")
	r.Report(out)
	receive(t, delivered)

	// Same domain and result within the window.
	sibling := out
	sibling.Hostname = "www.example.com"
	r.Report(out)
	r.Report(sibling)
	assertNoDelivery(t, delivered)

	// A different result for the same domain is a distinct event.
	invalid := out
	invalid.Result = pinning.ResultChainInvalid
	r.Report(invalid)
	assert.Equal(t, "chain_invalid", receive(t, delivered).ValidationResult)

	clock.Advance(time.Hour)
	r.Report(out)
	assert.Equal(t, "pin_mismatch", receive(t, delivered).ValidationResult)
}

func TestReporter_DropsWhenQueueFull(t *testing.T) {
	started := make(chan string, 8)
	release := make(chan struct{})
	var delivered sync.Map
	ch := ChannelFunc(func(ctx context.Context, rep *Report) error {
		started <- rep.Hostname
		select {
		case <-release:
		case <-ctx.Done():
		}
		delivered.Store(rep.Hostname, true)
		return nil
	})

	logs := &syncBuffer{}
	r := newTestReporter(t, &Config{Channel: ch, QueueSize: 1, Logger: newTestLogger(logs)})

	r.Report(mismatchOutcome(t, "a.example", "a.example"))
	select {
	case <-started:
	case <-time.After(5 * time.Second):
		t.Fatal("worker did not pick up first report")
	}

	// Worker is busy; one slot in the queue, the third report is dropped.
	r.Report(mismatchOutcome(t, "b.example", "b.example"))
	done := make(chan struct{})
	go func() {
		r.Report(mismatchOutcome(t, "c.example", "c.example"))
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("Report blocked on a full queue")
	}
	assert.Contains(t, logs.String(), "report queue full")
	assert.Equal(t, 1, r.Pending())

	close(release)
	assert.Eventually(t, func() bool {
		_, a := delivered.Load("a.example")
		_, b := delivered.Load("b.example")
		return a && b
	}, 5*time.Second, 10*time.Millisecond)
	_, c := delivered.Load("c.example")
	assert.False(t, c)

	// A dropped report is not remembered by the dedup window.
	assert.Equal(t, 2, r.dedup.size())
}

func TestReporter_BuildsReportOnWorker(t *testing.T) {
	at := time.Date(2026, 10, 15, 8, 30, 0, 0, time.UTC)
	release := make(chan struct{})
	reports := make(chan *Report, 4)
	ch := ChannelFunc(func(ctx context.Context, rep *Report) error {
		reports <- rep
		select {
		case <-release:
		case <-ctx.Done():
		}
		return nil
	})
	r := newTestReporter(t, &Config{
		Channel:  ch,
		App:      testApp,
		VendorID: "vendor-1",
		Now:      func() time.Time { return at },
	})

	r.Report(mismatchOutcome(t, "a.example", "a.example"))
	receive(t, reports)

	// The worker is busy, so the second outcome stays queued unbuilt.
	r.Report(mismatchOutcome(t, "b.example", "b.example"))
	require.Equal(t, 1, r.Pending())
	item := <-r.queue
	assert.Equal(t, "b.example", item.out.Hostname)
	assert.Equal(t, at, item.at)
	close(release)

	r.deliver(item)
	got := receive(t, reports)
	assert.Equal(t, "b.example", got.Hostname)
	assert.Equal(t, at, got.DateTime)
	assert.Equal(t, "vendor-1", got.AppVendorID)
	require.Len(t, got.ServedCertificateChain, 1)
	assert.Contains(t, got.ServedCertificateChain[0], "BEGIN CERTIFICATE")
	assert.Len(t, got.ValidatedCertificateChain, 2)
}

func TestReporter_DeliveryErrorsAreLogged(t *testing.T) {
	logs := &syncBuffer{}
	attempts := make(chan struct{}, 4)
	ch := ChannelFunc(func(context.Context, *Report) error {
		attempts <- struct{}{}
		return errors.New("collector unavailable")
	})
	r := newTestReporter(t, &Config{Channel: ch, Logger: newTestLogger(logs)})

	r.Report(mismatchOutcome(t, "example.com", "example.com"))
	<-attempts
	assert.Eventually(t, func() bool {
		return strings.Contains(logs.String(), "collector unavailable")
	}, 5*time.Second, 10*time.Millisecond)
}

func TestReporter_RecoversChannelPanic(t *testing.T) {
	logs := &syncBuffer{}
	var calls sync.Mutex
	n := 0
	delivered := make(chan string, 4)
	ch := ChannelFunc(func(_ context.Context, rep *Report) error {
		calls.Lock()
		n++
		first := n == 1
		calls.Unlock()
		if first {
			panic("channel bug")
		}
		delivered <- rep.Hostname
		return nil
	})
	r := newTestReporter(t, &Config{Channel: ch, Logger: newTestLogger(logs)})

	r.Report(mismatchOutcome(t, "a.example", "a.example"))
	r.Report(mismatchOutcome(t, "b.example", "b.example"))

	select {
	case host := <-delivered:
		assert.Equal(t, "b.example", host)
	case <-time.After(5 * time.Second):
		t.Fatal("worker did not survive a channel panic")
	}
	assert.Contains(t, logs.String(), "recovered panic in report channel")
}

func TestReporter_RecoversConstructionPanic(t *testing.T) {
	logs := &syncBuffer{}
	ch, _ := collector()
	r := newTestReporter(t, &Config{
		Channel: ch,
		Logger:  newTestLogger(logs),
		Now:     func() time.Time { panic("clock failure") },
	})

	assert.NotPanics(t, func() { r.Report(mismatchOutcome(t, "example.com", "example.com")) })
	assert.Contains(t, logs.String(), "recovered panic while queuing report")
}

func TestReporter_Close(t *testing.T) {
	ch, delivered := collector()
	r, err := New(&Config{Channel: ch})
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.NoError(t, r.Close(ctx))
	require.NoError(t, r.Close(ctx))

	r.Report(mismatchOutcome(t, "example.com", "example.com"))
	assert.Equal(t, 0, r.Pending())
	assertNoDelivery(t, delivered)
}

func TestReporter_CloseHonoursContext(t *testing.T) {
	block := make(chan struct{})
	started := make(chan struct{})
	ch := ChannelFunc(func(context.Context, *Report) error {
		close(started)
		<-block
		return nil
	})
	r, err := New(&Config{Channel: ch})
	require.NoError(t, err)
	r.Report(mismatchOutcome(t, "example.com", "example.com"))
	<-started

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	assert.ErrorIs(t, r.Close(ctx), context.DeadlineExceeded)

	close(block)
	require.NoError(t, r.Close(context.Background()))
}

func TestDedupCache_Sweep(t *testing.T) {
	c := newDedupCache(time.Minute)
	start := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)

	assert.True(t, c.admit(dedupKey{"a", pinning.ResultPinMismatch}, start))
	assert.True(t, c.admit(dedupKey{"b", pinning.ResultPinMismatch}, start.Add(30*time.Second)))
	assert.False(t, c.admit(dedupKey{"a", pinning.ResultPinMismatch}, start.Add(59*time.Second)))
	assert.Equal(t, 2, c.size())

	assert.True(t, c.admit(dedupKey{"c", pinning.ResultPinMismatch}, start.Add(2*time.Minute)))
	assert.Equal(t, 1, c.size(), "stale entries are swept")
}

func TestHTTPChannel_PostsJSON(t *testing.T) {
	type received struct {
		contentType string
		report      map[string]any
	}
	got := make(chan received, 4)
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
		assert.Equal(t, http.MethodPost, req.Method)
		var body map[string]any
		assert.NoError(t, json.NewDecoder(req.Body).Decode(&body))
		got <- received{contentType: req.Header.Get("Content-Type"), report: body}
		w.WriteHeader(http.StatusNoContent)
	}))
	defer server.Close()

	hc, err := NewHTTPChannel(&HTTPConfig{Client: server.Client()})
	require.NoError(t, err)

	out := mismatchOutcome(t, "example.com", "api.example.com", server.URL+"/one", server.URL+"/two")
	require.NoError(t, hc.Deliver(context.Background(), NewReport(out, testApp, "vendor-1", time.Now())))

	for range 2 {
		r := <-got
		assert.Equal(t, "application/json", r.contentType)
		assert.Equal(t, "api.example.com", r.report["hostname"])
		assert.Equal(t, "example.com", r.report["noted-hostname"])
		assert.Equal(t, "vendor-1", r.report["app-vendor-id"])
	}
}

func TestHTTPChannel_DefaultURI(t *testing.T) {
	hits := make(chan string, 1)
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
		hits <- req.URL.Path
	}))
	defer server.Close()

	hc, err := NewHTTPChannel(&HTTPConfig{DefaultURI: server.URL + "/default", Client: server.Client()})
	require.NoError(t, err)

	out := mismatchOutcome(t, "example.com", "example.com")
	require.NoError(t, hc.Deliver(context.Background(), NewReport(out, testApp, "", time.Now())))
	assert.Equal(t, "/default", <-hits)
}

func TestHTTPChannel_NoDestination(t *testing.T) {
	hc, err := NewHTTPChannel(nil)
	require.NoError(t, err)
	out := mismatchOutcome(t, "example.com", "example.com")
	assert.NoError(t, hc.Deliver(context.Background(), NewReport(out, testApp, "", time.Now())))
}

func TestHTTPChannel_ServerError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, "collector overloaded", http.StatusServiceUnavailable)
	}))
	defer server.Close()

	hc, err := NewHTTPChannel(&HTTPConfig{Client: server.Client()})
	require.NoError(t, err)

	out := mismatchOutcome(t, "example.com", "example.com", server.URL)
	err = hc.Deliver(context.Background(), NewReport(out, testApp, "", time.Now()))
	assert.ErrorIs(t, err, ErrDeliveryFailed)
	assert.Contains(t, err.Error(), "503")
	assert.Contains(t, err.Error(), "collector overloaded")
}

func TestHTTPChannel_RateLimited(t *testing.T) {
	var mu sync.Mutex
	hits := 0
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		mu.Lock()
		hits++
		mu.Unlock()
	}))
	defer server.Close()

	hc, err := NewHTTPChannel(&HTTPConfig{Client: server.Client(), Interval: time.Hour, Burst: 1})
	require.NoError(t, err)

	report := NewReport(mismatchOutcome(t, "example.com", "example.com", server.URL), testApp, "", time.Now())
	require.NoError(t, hc.Deliver(context.Background(), report))
	assert.ErrorIs(t, hc.Deliver(context.Background(), report), ErrRateLimited)

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, 1, hits)
}

func TestNewHTTPChannel_InvalidDefaultURI(t *testing.T) {
	for _, uri := range []string{"ftp://reports.example.com", "not a url", "https://"} {
		_, err := NewHTTPChannel(&HTTPConfig{DefaultURI: uri})
		assert.ErrorIs(t, err, ErrInvalidConfig, uri)
	}
}

func TestLogChannel(t *testing.T) {
	var buf bytes.Buffer
	lc := NewLogChannel(newTestLogger(&buf))

	out := mismatchOutcome(t, "example.com", "api.example.com")
	require.NoError(t, lc.Deliver(context.Background(), NewReport(out, testApp, "vendor-1", time.Now())))
	assert.Contains(t, buf.String(), "level=WARN")
	assert.Contains(t, buf.String(), "hostname=api.example.com")
	assert.Contains(t, buf.String(), "validation_result=pin_mismatch")

	buf.Reset()
	out.Result = pinning.ResultSuccess
	require.NoError(t, lc.Deliver(context.Background(), NewReport(out, testApp, "vendor-1", time.Now())))
	assert.Contains(t, buf.String(), "level=INFO")
}

func TestMulti(t *testing.T) {
	first, firstCh := collector()
	boom := errors.New("boom")
	failing := ChannelFunc(func(context.Context, *Report) error { return boom })
	second, secondCh := collector()

	m := Multi(first, failing, nil, second)
	report := NewReport(mismatchOutcome(t, "example.com", "example.com"), testApp, "", time.Now())
	err := m.Deliver(context.Background(), report)
	assert.ErrorIs(t, err, boom)
	assert.Same(t, report, <-firstCh)
	assert.Same(t, report, <-secondCh)
}
