package mirror

import (
	"context"
	"io"
	"log/slog"
	"net"
	"sync"
	"sync/atomic"
	"time"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

type recordingObserver struct {
	mu         sync.Mutex
	sources    []string
	probes     []HealthProbeResult
	selections []Selection
	failures   []error
	stale      []bool
	retries    []int
}

func (o *recordingObserver) Discovered(source string, _ []string) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.sources = append(o.sources, source)
}

func (o *recordingObserver) ProbeCompleted(r HealthProbeResult) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.probes = append(o.probes, r)
}

func (o *recordingObserver) MirrorSelected(sel Selection, _ int) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.selections = append(o.selections, sel)
}

func (o *recordingObserver) SelectionFailed(err error, staleServed bool) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.failures = append(o.failures, err)
	o.stale = append(o.stale, staleServed)
}

func (o *recordingObserver) RetryScheduled(attempt int, _ time.Duration, _ error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.retries = append(o.retries, attempt)
}

type fakeResolver struct {
	srv    []*net.SRV
	srvErr error
	ips    []net.IP
	ipErr  error
	names  map[string][]string
}

func (f *fakeResolver) LookupSRV(ctx context.Context, service, proto, name string) (string, []*net.SRV, error) {
	if f.srvErr != nil {
		return "", nil, f.srvErr
	}
	// copy so sorting in discovery does not disturb the fixture
	out := make([]*net.SRV, len(f.srv))
	copy(out, f.srv)
	return "_" + service + "._" + proto + "." + name + ".", out, nil
}

func (f *fakeResolver) LookupIP(ctx context.Context, network, host string) ([]net.IP, error) {
	if f.ipErr != nil {
		return nil, f.ipErr
	}
	return f.ips, nil
}

func (f *fakeResolver) LookupAddr(ctx context.Context, addr string) ([]string, error) {
	names, ok := f.names[addr]
	if !ok {
		return nil, &net.DNSError{Err: "no such host", Name: addr, IsNotFound: true}
	}
	return names, nil
}

// staticSource hands out a fixed candidate list and counts discovery rounds.
type staticSource struct {
	mirrors  []string
	fallback []string
	rounds   atomic.Int32
}

func (s *staticSource) Discover(ctx context.Context) []string {
	s.rounds.Add(1)
	return append([]string(nil), s.mirrors...)
}

func (s *staticSource) Fallback() []string {
	return append([]string(nil), s.fallback...)
}

// fakeProber answers from a table; mirrors missing from it are unhealthy.
type fakeProber struct {
	mu      sync.Mutex
	latency map[string]time.Duration
	calls   []string
	gate    chan struct{}
	entered chan struct{}
}

func newFakeProber(latency map[string]time.Duration) *fakeProber {
	return &fakeProber{latency: latency}
}

func (p *fakeProber) Probe(ctx context.Context, mirror string, timeout time.Duration) HealthProbeResult {
	p.mu.Lock()
	p.calls = append(p.calls, mirror)
	gate, entered := p.gate, p.entered
	p.mu.Unlock()

	if entered != nil {
		select {
		case entered <- struct{}{}:
		default:
		}
	}
	if gate != nil {
		<-gate
	}

	if d, ok := p.latency[mirror]; ok {
		return HealthProbeResult{Mirror: mirror, Healthy: true, Latency: d, ObservedAt: time.Now()}
	}
	return HealthProbeResult{Mirror: mirror, Latency: Unreachable, Error: "connection refused", ObservedAt: time.Now()}
}

func (p *fakeProber) Calls() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]string(nil), p.calls...)
}

type fakeSelector struct {
	mu    sync.Mutex
	sel   Selection
	err   error
	calls int
}

func (f *fakeSelector) SelectBest(ctx context.Context) (Selection, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	if f.err != nil {
		return Selection{}, f.err
	}
	return f.sel, nil
}

func (f *fakeSelector) set(sel Selection, err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sel, f.err = sel, err
}

func (f *fakeSelector) Calls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}
