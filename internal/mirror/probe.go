package mirror

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"sync"
	"time"

	"github.com/benbjohnson/clock"

	"github.com/BadgerOps/tuner/internal/safety"
)

const (
	// probePath is a cheap enumeration endpoint; limit=1 keeps the body tiny.
	probePath         = "/json/stations?limit=1"
	maxProbeBodyBytes = 64 * 1024
)

// HealthProber measures one mirror.
type HealthProber interface {
	Probe(ctx context.Context, mirror string, timeout time.Duration) HealthProbeResult
}

// HealthStats holds the most recent probe result per mirror.
type HealthStats struct {
	mu      sync.RWMutex
	results map[string]HealthProbeResult
}

// NewHealthStats creates an empty HealthStats.
func NewHealthStats() *HealthStats {
	return &HealthStats{results: make(map[string]HealthProbeResult)}
}

// Record upserts r, replacing any earlier result for the same mirror.
func (h *HealthStats) Record(r HealthProbeResult) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.results[r.Mirror] = r
}

// Get returns the latest result for mirror.
func (h *HealthStats) Get(mirror string) (HealthProbeResult, bool) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	r, ok := h.results[mirror]
	return r, ok
}

// Snapshot returns a copy of every recorded result.
func (h *HealthStats) Snapshot() map[string]HealthProbeResult {
	h.mu.RLock()
	defer h.mu.RUnlock()
	out := make(map[string]HealthProbeResult, len(h.results))
	for k, v := range h.results {
		out[k] = v
	}
	return out
}

// Prober issues health probes against mirrors and records every outcome in
// the shared HealthStats.
type Prober struct {
	transport http.RoundTripper
	userAgent string
	stats     *HealthStats
	observer  Observer
	clock     clock.Clock
}

// NewProber creates a Prober. A nil transport uses safety.NewTransport.
func NewProber(rt http.RoundTripper, userAgent string, stats *HealthStats, observer Observer) *Prober {
	if rt == nil {
		rt = safety.NewTransport()
	}
	if stats == nil {
		stats = NewHealthStats()
	}
	if observer == nil {
		observer = NopObserver{}
	}
	return &Prober{
		transport: rt,
		userAgent: userAgent,
		stats:     stats,
		observer:  observer,
		clock:     clock.New(),
	}
}

// Stats returns the HealthStats the prober writes to.
func (p *Prober) Stats() *HealthStats {
	return p.stats
}

// Probe sends one GET to mirror with a client bounded by timeout.
func (p *Prober) Probe(ctx context.Context, mirror string, timeout time.Duration) HealthProbeResult {
	start := p.clock.Now()
	err := p.probe(ctx, mirror, timeout)
	elapsed := p.clock.Since(start)

	result := HealthProbeResult{
		Mirror:     mirror,
		Healthy:    err == nil,
		Latency:    elapsed,
		ObservedAt: p.clock.Now(),
	}
	if err != nil {
		result.Latency = Unreachable
		result.Error = err.Error()
	}

	p.stats.Record(result)
	p.observer.ProbeCompleted(result)
	return result
}

func (p *Prober) probe(ctx context.Context, mirror string, timeout time.Duration) error {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	client := &http.Client{Transport: p.transport, Timeout: timeout}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, mirror+probePath, nil)
	if err != nil {
		return fmt.Errorf("creating probe request: %w", err)
	}
	req.Header.Set("User-Agent", p.userAgent)
	req.Header.Set("Accept", "application/json")

	resp, err := client.Do(req)
	if err != nil {
		return fmt.Errorf("probe request failed: %w", err)
	}
	defer func() {
		_ = resp.Body.Close()
	}()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("unexpected status %d", resp.StatusCode)
	}

	if _, err := io.Copy(io.Discard, io.LimitReader(resp.Body, maxProbeBodyBytes)); err != nil {
		return fmt.Errorf("reading probe response: %w", err)
	}
	return nil
}
