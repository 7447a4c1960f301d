package mirror

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/benbjohnson/clock"
)

// DefaultTTL is how long a selected mirror is trusted before re-selection.
const DefaultTTL = 10 * time.Minute

// MirrorSelector picks a mirror. *Selector implements it.
type MirrorSelector interface {
	SelectBest(ctx context.Context) (Selection, error)
}

// SelectionCache holds the currently selected mirror for one gateway.
type SelectionCache struct {
	selector MirrorSelector
	stats    *HealthStats
	ttl      time.Duration
	clock    clock.Clock
	logger   *slog.Logger
	observer Observer

	mu         sync.RWMutex
	selected   string
	selectedAt time.Time
	backups    []HealthProbeResult
}

// NewSelectionCache creates an empty cache. stats is only read, for snapshots.
func NewSelectionCache(selector MirrorSelector, stats *HealthStats, ttl time.Duration, logger *slog.Logger, observer Observer) *SelectionCache {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	if stats == nil {
		stats = NewHealthStats()
	}
	if logger == nil {
		logger = slog.Default()
	}
	if observer == nil {
		observer = NopObserver{}
	}
	return &SelectionCache{
		selector: selector,
		stats:    stats,
		ttl:      ttl,
		clock:    clock.New(),
		logger:   logger,
		observer: observer,
	}
}

// GetMirror returns the cached mirror, running a selector round when
// forceRefresh is set, nothing is cached, or the selection is older than the
// TTL. A failed round without forceRefresh falls back to the stale mirror if
// there is one; with forceRefresh the error is returned.
func (c *SelectionCache) GetMirror(ctx context.Context, forceRefresh bool) (string, error) {
	if !forceRefresh {
		if m, ok := c.fresh(); ok {
			return m, nil
		}
	}

	sel, err := c.selector.SelectBest(ctx)
	if err != nil {
		stale := c.Current()
		if !forceRefresh && stale != "" {
			c.observer.SelectionFailed(err, true)
			return stale, nil
		}
		c.observer.SelectionFailed(err, false)
		return "", fmt.Errorf("selecting mirror: %w", err)
	}

	c.mu.Lock()
	c.selected = sel.Mirror
	c.selectedAt = c.clock.Now()
	c.backups = sel.Backups
	c.mu.Unlock()

	return sel.Mirror, nil
}

// Refresh forces a new selector round.
func (c *SelectionCache) Refresh(ctx context.Context) (string, error) {
	return c.GetMirror(ctx, true)
}

// Invalidate drops the current selection.
func (c *SelectionCache) Invalidate() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.selected = ""
	c.selectedAt = time.Time{}
	c.backups = nil
}

// Current returns the cached mirror regardless of age, or "".
func (c *SelectionCache) Current() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.selected
}

// Backups returns a copy of the runner-ups from the last successful round.
func (c *SelectionCache) Backups() []HealthProbeResult {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return append([]HealthProbeResult(nil), c.backups...)
}

// TTL returns the configured time-to-live.
func (c *SelectionCache) TTL() time.Duration {
	return c.ttl
}

// Snapshot returns the cache state together with the latest health stats.
func (c *SelectionCache) Snapshot() CacheSnapshot {
	c.mu.RLock()
	defer c.mu.RUnlock()

	snap := CacheSnapshot{
		SelectedMirror: c.selected,
		SelectedAt:     c.selectedAt,
		TTL:            c.ttl,
		Backups:        append([]HealthProbeResult{}, c.backups...),
		HealthStats:    c.stats.Snapshot(),
	}
	if c.selected != "" {
		snap.Age = c.clock.Since(c.selectedAt)
		snap.Expired = snap.Age > c.ttl
	}
	return snap
}

func (c *SelectionCache) fresh() (string, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.selected == "" {
		return "", false
	}
	if c.clock.Since(c.selectedAt) > c.ttl {
		return "", false
	}
	return c.selected, true
}
