package radio

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"strconv"
	"strings"
	"sync/atomic"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/hashicorp/golang-lru/v2/expirable"

	"github.com/BadgerOps/tuner/internal/mirror"
	"github.com/BadgerOps/tuner/internal/upstream"
)

const (
	DefaultListTTL  = time.Hour
	DefaultListSize = 64

	orderClickCount = "clickcount"
	countriesKey    = "countries"
)

var (
	// ErrInvalidArgument is returned when a required argument is empty after
	// sanitizing.
	ErrInvalidArgument = errors.New("invalid argument")
	// ErrStationNotFound is returned when the directory has no such station.
	ErrStationNotFound = errors.New("station not found")
)

// Executor runs a request against the current mirror with failover.
// *upstream.Executor implements it.
type Executor interface {
	Execute(ctx context.Context, fn upstream.RequestFunc) ([]byte, error)
	ExecuteWithRetries(ctx context.Context, fn upstream.RequestFunc, maxRetries int) ([]byte, error)
}

// MirrorCache is the part of *mirror.SelectionCache the gateway needs.
type MirrorCache interface {
	GetMirror(ctx context.Context, forceRefresh bool) (string, error)
	Invalidate()
	Snapshot() mirror.CacheSnapshot
}

// OrderObserver is told when a list requested in descending click order
// comes back out of order.
type OrderObserver interface {
	OrderViolation(endpoint string)
}

// Options configures a Gateway. Zero values take defaults.
type Options struct {
	Limits        Limits
	ListTTL       time.Duration
	ListSize      int
	ProbeTimeout  time.Duration
	OrderObserver OrderObserver
}

// Gateway is the station directory API as seen by the rest of the program.
type Gateway struct {
	exec         Executor
	cache        MirrorCache
	prober       mirror.HealthProber
	limits       Limits
	probeTimeout time.Duration
	logger       *slog.Logger
	clock        clock.Clock
	orderObs     OrderObserver

	countries *expirable.LRU[string, []Country]
	tags      *expirable.LRU[int, []Tag]

	orderViolations atomic.Int64
}

// NewGateway wires a Gateway. prober is used by HealthCheck only.
func NewGateway(exec Executor, cache MirrorCache, prober mirror.HealthProber, opts Options, logger *slog.Logger) *Gateway {
	if logger == nil {
		logger = slog.Default()
	}
	if opts.ListTTL <= 0 {
		opts.ListTTL = DefaultListTTL
	}
	if opts.ListSize <= 0 {
		opts.ListSize = DefaultListSize
	}
	if opts.ProbeTimeout <= 0 {
		opts.ProbeTimeout = 5 * time.Second
	}

	return &Gateway{
		exec:         exec,
		cache:        cache,
		prober:       prober,
		limits:       opts.Limits.normalized(),
		probeTimeout: opts.ProbeTimeout,
		logger:       logger,
		clock:        clock.New(),
		orderObs:     opts.OrderObserver,
		countries:    expirable.NewLRU[string, []Country](1, nil, opts.ListTTL),
		tags:         expirable.NewLRU[int, []Tag](opts.ListSize, nil, opts.ListTTL),
	}
}

// Limits returns the page size bounds in effect.
func (g *Gateway) Limits() Limits {
	return g.limits
}

// ==========================================================================
// Station queries
// ==========================================================================

// GetRadioStations runs a station search with caller-supplied filters.
func (g *Gateway) GetRadioStations(ctx context.Context, q url.Values) ([]Station, error) {
	p := ValidateParams(q, g.limits)
	stations, err := g.fetchStations(ctx, "/json/stations/search", p.Query())
	if err != nil {
		return nil, err
	}
	if p.Order == orderClickCount && p.Reverse {
		g.checkClickOrder("search", stations)
	}
	return stations, nil
}

// SearchStationsByName returns stations whose name matches query, most
// clicked first.
func (g *Gateway) SearchStationsByName(ctx context.Context, query string, limit int) ([]Station, error) {
	name := Sanitize(query)
	if name == "" {
		return nil, fmt.Errorf("%w: empty search query", ErrInvalidArgument)
	}
	p := g.byClicks(limit)
	p.Name = name
	stations, err := g.fetchStations(ctx, "/json/stations/search", p.Query())
	if err != nil {
		return nil, err
	}
	g.checkClickOrder("search", stations)
	return stations, nil
}

// GetStationsByCountry returns stations for an exact ISO 3166-1 code.
func (g *Gateway) GetStationsByCountry(ctx context.Context, code string, limit int) ([]Station, error) {
	code = strings.ToUpper(Sanitize(code))
	if code == "" {
		return nil, fmt.Errorf("%w: empty country code", ErrInvalidArgument)
	}
	stations, err := g.fetchStations(ctx, "/json/stations/bycountrycodeexact/"+url.PathEscape(code), g.byClicks(limit).Query())
	if err != nil {
		return nil, err
	}
	g.checkClickOrder("country", stations)
	return stations, nil
}

// GetStationsByTag returns stations carrying tag.
func (g *Gateway) GetStationsByTag(ctx context.Context, tag string, limit int) ([]Station, error) {
	tag = Sanitize(tag)
	if tag == "" {
		return nil, fmt.Errorf("%w: empty tag", ErrInvalidArgument)
	}
	stations, err := g.fetchStations(ctx, "/json/stations/bytag/"+url.PathEscape(tag), g.byClicks(limit).Query())
	if err != nil {
		return nil, err
	}
	g.checkClickOrder("tag", stations)
	return stations, nil
}

// GetPopularStations returns the most clicked stations.
func (g *Gateway) GetPopularStations(ctx context.Context, limit int) ([]Station, error) {
	stations, err := g.fetchStations(ctx, "/json/stations/search", g.byClicks(limit).Query())
	if err != nil {
		return nil, err
	}
	g.checkClickOrder("popular", stations)
	return stations, nil
}

// GetStationByUUID looks up a single station.
func (g *Gateway) GetStationByUUID(ctx context.Context, stationUUID string) (*Station, error) {
	id := Sanitize(stationUUID)
	if id == "" {
		return nil, fmt.Errorf("%w: empty station uuid", ErrInvalidArgument)
	}
	stations, err := g.fetchStations(ctx, "/json/stations/byuuid/"+url.PathEscape(id), nil)
	if err != nil {
		return nil, err
	}
	if len(stations) == 0 {
		return nil, fmt.Errorf("%w: %s", ErrStationNotFound, id)
	}
	return &stations[0], nil
}

func (g *Gateway) byClicks(limit int) ValidatedParams {
	return ValidatedParams{
		Limit:   ClampLimit(limit, g.limits),
		Order:   orderClickCount,
		Reverse: true,
	}
}

func (g *Gateway) fetchStations(ctx context.Context, path string, query url.Values) ([]Station, error) {
	body, err := g.exec.Execute(ctx, getter(path, query))
	if err != nil {
		return nil, fmt.Errorf("fetching %s: %w", path, err)
	}
	return upstream.Decode[[]Station](body)
}

// checkClickOrder verifies that stations are in non-increasing click order.
// Out-of-order lists are reported and passed through untouched.
func (g *Gateway) checkClickOrder(endpoint string, stations []Station) {
	for i := 1; i < len(stations); i++ {
		if stations[i].ClickCount > stations[i-1].ClickCount {
			g.orderViolations.Add(1)
			g.logger.Warn("upstream returned stations out of click order",
				"endpoint", endpoint,
				"index", i,
				"previous", stations[i-1].ClickCount,
				"current", stations[i].ClickCount,
			)
			if g.orderObs != nil {
				g.orderObs.OrderViolation(endpoint)
			}
			return
		}
	}
}

// OrderViolations returns how many responses failed the click order check.
func (g *Gateway) OrderViolations() int64 {
	return g.orderViolations.Load()
}

// ==========================================================================
// Reference lists
// ==========================================================================

// GetCountries returns every country with stations. The result is memoized.
func (g *Gateway) GetCountries(ctx context.Context) ([]Country, error) {
	if cached, ok := g.countries.Get(countriesKey); ok {
		return cached, nil
	}

	body, err := g.exec.Execute(ctx, getter("/json/countries", nil))
	if err != nil {
		return nil, fmt.Errorf("fetching countries: %w", err)
	}
	countries, err := upstream.Decode[[]Country](body)
	if err != nil {
		return nil, err
	}
	g.countries.Add(countriesKey, countries)
	return countries, nil
}

// GetTags returns the most used tags. Results are memoized per limit.
func (g *Gateway) GetTags(ctx context.Context, limit int) ([]Tag, error) {
	limit = ClampLimit(limit, g.limits)
	if cached, ok := g.tags.Get(limit); ok {
		return cached, nil
	}

	q := url.Values{}
	q.Set("order", "stationcount")
	q.Set("reverse", "true")
	q.Set("limit", strconv.Itoa(limit))

	body, err := g.exec.Execute(ctx, getter("/json/tags", q))
	if err != nil {
		return nil, fmt.Errorf("fetching tags: %w", err)
	}
	tags, err := upstream.Decode[[]Tag](body)
	if err != nil {
		return nil, err
	}
	g.tags.Add(limit, tags)
	return tags, nil
}

// PurgeLists drops memoized country and tag lists.
func (g *Gateway) PurgeLists() {
	g.countries.Purge()
	g.tags.Purge()
}

// ==========================================================================
// Clicks
// ==========================================================================

// RecordStationClick registers a play with the directory. It makes a single
// attempt and reports false on any failure.
func (g *Gateway) RecordStationClick(ctx context.Context, stationUUID string) bool {
	id := Sanitize(stationUUID)
	if id == "" {
		return false
	}

	body, err := g.exec.ExecuteWithRetries(ctx, getter("/json/url/"+url.PathEscape(id), nil), 0)
	if err != nil {
		g.logger.Warn("recording station click failed", "station", id, "error", err)
		return false
	}
	res, err := upstream.Decode[ClickResult](body)
	if err != nil {
		g.logger.Warn("recording station click failed", "station", id, "error", err)
		return false
	}
	return res.OK
}

// ==========================================================================
// Mirror administration
// ==========================================================================

// HealthCheck probes the currently selected mirror once.
func (g *Gateway) HealthCheck(ctx context.Context) HealthStatus {
	status := HealthStatus{Status: StatusUnhealthy, Timestamp: g.clock.Now().UTC()}

	m, err := g.cache.GetMirror(ctx, false)
	if err != nil {
		status.Error = err.Error()
		return status
	}
	status.Mirror = m

	r := g.prober.Probe(ctx, m, g.probeTimeout)
	if !r.Healthy {
		status.Error = r.Error
		return status
	}
	ms := r.Latency.Milliseconds()
	status.Status = StatusHealthy
	status.ResponseTimeMs = &ms
	return status
}

// ServerInfo reports the selection cache state.
func (g *Gateway) ServerInfo() ServerInfo {
	snap := g.cache.Snapshot()
	info := ServerInfo{
		CurrentMirror:   snap.SelectedMirror,
		CacheTTLSeconds: snap.TTL.Seconds(),
		CacheAgeSeconds: snap.Age.Seconds(),
		CacheExpired:    snap.Expired,
		Backups:         snap.Backups,
		HealthStats:     snap.HealthStats,
		OrderViolations: g.OrderViolations(),
	}
	if !snap.SelectedAt.IsZero() {
		at := snap.SelectedAt
		info.SelectedAt = &at
	}
	return info
}

// RefreshServerCache drops the current selection and selects again.
func (g *Gateway) RefreshServerCache(ctx context.Context) (string, error) {
	g.cache.Invalidate()
	m, err := g.cache.GetMirror(ctx, true)
	if err != nil {
		return "", err
	}
	g.PurgeLists()
	g.logger.Info("mirror cache refreshed", "mirror", m)
	return m, nil
}

func getter(path string, query url.Values) upstream.RequestFunc {
	return func(ctx context.Context, c *upstream.Client) ([]byte, error) {
		return c.Get(ctx, path, query)
	}
}
