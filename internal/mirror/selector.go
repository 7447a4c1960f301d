package mirror

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/benbjohnson/clock"
	"golang.org/x/sync/singleflight"
)

const (
	// MaxBackups is how many healthy runner-ups a selection keeps.
	MaxBackups = 3

	defaultProbeTimeout = 5 * time.Second
	defaultProbeGrace   = time.Second
	maxConcurrentProbes = 16
	selectFlightKey     = "select"
)

var (
	// ErrNoHealthyMirror means no discovered mirror passed its probe.
	ErrNoHealthyMirror = errors.New("no healthy mirrors")
	// ErrAllMirrorsUnavailable means the fallback list was exhausted as well.
	ErrAllMirrorsUnavailable = errors.New("all mirrors unavailable")
)

// CandidateSource supplies mirrors to probe. *Discovery implements it.
type CandidateSource interface {
	Discover(ctx context.Context) []string
	Fallback() []string
}

// Selector ranks mirrors by live probe latency. Concurrent SelectBest calls
// share one discovery and probe round.
type Selector struct {
	source       CandidateSource
	prober       HealthProber
	probeTimeout time.Duration
	probeGrace   time.Duration
	logger       *slog.Logger
	observer     Observer
	clock        clock.Clock
	group        singleflight.Group
}

// NewSelector creates a Selector. Each probe gets probeTimeout; the selector
// gives up on a probe that has not returned shortly after that.
func NewSelector(source CandidateSource, prober HealthProber, probeTimeout time.Duration, logger *slog.Logger, observer Observer) *Selector {
	if probeTimeout <= 0 {
		probeTimeout = defaultProbeTimeout
	}
	if logger == nil {
		logger = slog.Default()
	}
	if observer == nil {
		observer = NopObserver{}
	}
	return &Selector{
		source:       source,
		prober:       prober,
		probeTimeout: probeTimeout,
		probeGrace:   defaultProbeGrace,
		logger:       logger,
		observer:     observer,
		clock:        clock.New(),
	}
}

// ProbeTimeout returns the per-probe timeout.
func (s *Selector) ProbeTimeout() time.Duration {
	return s.probeTimeout
}

// SelectBest returns the fastest healthy mirror. If a round is already in
// flight the caller waits for its outcome instead of starting another. The
// round itself is not cancelled when ctx is; only this caller stops waiting.
func (s *Selector) SelectBest(ctx context.Context) (Selection, error) {
	ch := s.group.DoChan(selectFlightKey, func() (interface{}, error) {
		return s.selectRound(context.WithoutCancel(ctx))
	})

	select {
	case res := <-ch:
		if res.Err != nil {
			return Selection{}, res.Err
		}
		return res.Val.(Selection), nil
	case <-ctx.Done():
		return Selection{}, ctx.Err()
	}
}

// ProbeAll probes mirrors concurrently and returns results in input order
// once every probe has finished or timed out.
func (s *Selector) ProbeAll(ctx context.Context, mirrors []string) []HealthProbeResult {
	results := make([]HealthProbeResult, len(mirrors))
	sem := make(chan struct{}, maxConcurrentProbes)
	var wg sync.WaitGroup

	for i, m := range mirrors {
		wg.Add(1)
		go func(idx int, mirror string) {
			defer wg.Done()
			sem <- struct{}{}
			defer func() { <-sem }()

			results[idx] = s.probeWithDeadline(ctx, mirror)
		}(i, m)
	}

	wg.Wait()
	return results
}

func (s *Selector) selectRound(ctx context.Context) (Selection, error) {
	candidates := s.source.Discover(ctx)
	results := s.ProbeAll(ctx, candidates)

	healthy := RankHealthy(results)
	if len(healthy) == 0 {
		s.logger.Warn("no discovered mirror is healthy, probing fallback list", "candidates", len(candidates))
		return s.selectFallback(ctx)
	}

	backups := healthy[1:]
	if len(backups) > MaxBackups {
		backups = backups[:MaxBackups]
	}
	sel := Selection{
		Mirror:  healthy[0].Mirror,
		Backups: append([]HealthProbeResult(nil), backups...),
	}
	s.observer.MirrorSelected(sel, len(candidates))
	return sel, nil
}

// selectFallback walks the fallback list one mirror at a time and takes the
// first that answers.
func (s *Selector) selectFallback(ctx context.Context) (Selection, error) {
	fallback := s.source.Fallback()
	for _, m := range fallback {
		r := s.probeWithDeadline(ctx, m)
		if r.Healthy {
			sel := Selection{Mirror: m}
			s.observer.MirrorSelected(sel, len(fallback))
			return sel, nil
		}
	}
	return Selection{}, fmt.Errorf("%w: %w (tried %d fallback mirrors)", ErrNoHealthyMirror, ErrAllMirrorsUnavailable, len(fallback))
}

// probeWithDeadline races the probe against a slightly longer deadline. When
// the deadline wins, the probe's context is cancelled so its request does not
// linger.
func (s *Selector) probeWithDeadline(ctx context.Context, mirror string) HealthProbeResult {
	ctx, cancel := context.WithTimeout(ctx, s.probeTimeout+s.probeGrace)
	defer cancel()

	done := make(chan HealthProbeResult, 1)
	go func() {
		done <- s.prober.Probe(ctx, mirror, s.probeTimeout)
	}()

	select {
	case r := <-done:
		return r
	case <-ctx.Done():
		return HealthProbeResult{
			Mirror:     mirror,
			Healthy:    false,
			Latency:    Unreachable,
			Error:      "probe timed out",
			ObservedAt: s.clock.Now(),
		}
	}
}

// RankHealthy returns the healthy results sorted by ascending latency. Ties
// keep their input order.
func RankHealthy(results []HealthProbeResult) []HealthProbeResult {
	var healthy []HealthProbeResult
	for _, r := range results {
		if r.Healthy {
			healthy = append(healthy, r)
		}
	}
	sort.SliceStable(healthy, func(i, j int) bool {
		return healthy[i].Latency < healthy[j].Latency
	})
	return healthy
}
