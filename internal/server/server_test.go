package server

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/BadgerOps/tuner/internal/metrics"
	"github.com/BadgerOps/tuner/internal/radio"
	"github.com/BadgerOps/tuner/internal/store"
)

const jazzUUID = "960e57c5-0601-11e8-ae97-52543be04c81"

// fakeGateway records the arguments it was called with and answers from
// canned data.
type fakeGateway struct {
	mu          sync.Mutex
	err         error
	stations    []radio.Station
	clickOK     bool
	health      radio.HealthStatus
	lastQuery   url.Values
	lastArg     string
	lastLimit   int
	hadDeadline bool
}

func (f *fakeGateway) record(ctx context.Context, arg string, limit int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.lastArg, f.lastLimit = arg, limit
	_, f.hadDeadline = ctx.Deadline()
}

func (f *fakeGateway) GetRadioStations(ctx context.Context, q url.Values) ([]radio.Station, error) {
	f.record(ctx, "", 0)
	f.lastQuery = q
	return f.stations, f.err
}

func (f *fakeGateway) SearchStationsByName(ctx context.Context, query string, limit int) ([]radio.Station, error) {
	f.record(ctx, query, limit)
	return f.stations, f.err
}

func (f *fakeGateway) GetStationsByCountry(ctx context.Context, code string, limit int) ([]radio.Station, error) {
	f.record(ctx, code, limit)
	return f.stations, f.err
}

func (f *fakeGateway) GetStationsByTag(ctx context.Context, tag string, limit int) ([]radio.Station, error) {
	f.record(ctx, tag, limit)
	return f.stations, f.err
}

func (f *fakeGateway) GetPopularStations(ctx context.Context, limit int) ([]radio.Station, error) {
	f.record(ctx, "", limit)
	return f.stations, f.err
}

func (f *fakeGateway) GetCountries(ctx context.Context) ([]radio.Country, error) {
	if f.err != nil {
		return nil, f.err
	}
	return []radio.Country{{Name: "Germany", ISO3166_1: "DE", StationCount: 10}}, nil
}

func (f *fakeGateway) GetTags(ctx context.Context, limit int) ([]radio.Tag, error) {
	f.record(ctx, "", limit)
	if f.err != nil {
		return nil, f.err
	}
	return []radio.Tag{{Name: "jazz", StationCount: 3}}, nil
}

func (f *fakeGateway) RecordStationClick(ctx context.Context, id string) bool {
	f.record(ctx, id, 0)
	return f.clickOK
}

func (f *fakeGateway) HealthCheck(ctx context.Context) radio.HealthStatus {
	return f.health
}

func (f *fakeGateway) ServerInfo() radio.ServerInfo {
	return radio.ServerInfo{CurrentMirror: "https://de1.api.radio-browser.info", CacheTTLSeconds: 600}
}

func (f *fakeGateway) RefreshServerCache(ctx context.Context) (string, error) {
	if f.err != nil {
		return "", f.err
	}
	return "https://nl1.api.radio-browser.info", nil
}

func (f *fakeGateway) Limits() radio.Limits {
	return radio.DefaultLimits()
}

func setupTestServer(t *testing.T, gw *fakeGateway, opts Options) (*Server, http.Handler) {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	st, err := store.New(":memory:", logger)
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() {
		if err := st.Close(); err != nil {
			t.Fatalf("failed to close store: %v", err)
		}
	})

	srv := NewServer(gw, st, opts, logger)
	return srv, srv.Handler()
}

func do(h http.Handler, method, target string, body io.Reader) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, target, body)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)
	return w
}

func decodeError(t *testing.T, w *httptest.ResponseRecorder) string {
	t.Helper()
	var body map[string]string
	if err := json.NewDecoder(w.Body).Decode(&body); err != nil {
		t.Fatalf("failed to decode error body: %v", err)
	}
	return body["error"]
}

// ============================================================================
// Station routes
// ============================================================================

func TestHandleStationsForwardsQuery(t *testing.T) {
	gw := &fakeGateway{stations: []radio.Station{{StationUUID: "a", Name: "One"}}}
	_, h := setupTestServer(t, gw, Options{})

	w := do(h, "GET", "/api/stations?name=jazz&limit=5000", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", w.Code, w.Body.String())
	}
	if gw.lastQuery.Get("name") != "jazz" || gw.lastQuery.Get("limit") != "5000" {
		t.Errorf("query not forwarded: %v", gw.lastQuery)
	}

	var stations []radio.Station
	if err := json.NewDecoder(w.Body).Decode(&stations); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if len(stations) != 1 || stations[0].Name != "One" {
		t.Errorf("unexpected stations: %+v", stations)
	}
}

func TestHandleSearchRequiresQuery(t *testing.T) {
	_, h := setupTestServer(t, &fakeGateway{}, Options{})

	for _, target := range []string{"/api/stations/search", "/api/stations/search?q=%20%20"} {
		w := do(h, "GET", target, nil)
		if w.Code != http.StatusBadRequest {
			t.Errorf("%s: expected 400, got %d", target, w.Code)
		}
	}
}

func TestHandleSearchUsesLimit(t *testing.T) {
	gw := &fakeGateway{}
	_, h := setupTestServer(t, gw, Options{})

	w := do(h, "GET", "/api/stations/search?q=jazz&limit=7", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}
	if gw.lastArg != "jazz" || gw.lastLimit != 7 {
		t.Errorf("got arg %q limit %d", gw.lastArg, gw.lastLimit)
	}

	do(h, "GET", "/api/stations/search?q=jazz&limit=lots", nil)
	if gw.lastLimit != radio.DefaultLimit {
		t.Errorf("malformed limit should use default, got %d", gw.lastLimit)
	}
}

func TestHandleStationsByCountryAndTag(t *testing.T) {
	gw := &fakeGateway{}
	_, h := setupTestServer(t, gw, Options{})

	if w := do(h, "GET", "/api/stations/country/de", nil); w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}
	if gw.lastArg != "de" || gw.lastLimit != radio.DefaultLimit {
		t.Errorf("country: got %q / %d", gw.lastArg, gw.lastLimit)
	}

	if w := do(h, "GET", "/api/stations/tag/classic%20rock?limit=3", nil); w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}
	if gw.lastArg != "classic rock" || gw.lastLimit != 3 {
		t.Errorf("tag: got %q / %d", gw.lastArg, gw.lastLimit)
	}
}

func TestGatewayFailureIs503(t *testing.T) {
	gw := &fakeGateway{err: errors.New("upstream request failed after 4 attempts: http error 502")}
	_, h := setupTestServer(t, gw, Options{})

	for _, target := range []string{
		"/api/stations",
		"/api/stations/popular",
		"/api/stations/search?q=x",
		"/api/countries",
		"/api/tags",
	} {
		w := do(h, "GET", target, nil)
		if w.Code != http.StatusServiceUnavailable {
			t.Errorf("%s: expected 503, got %d", target, w.Code)
			continue
		}
		if msg := decodeError(t, w); msg != "service temporarily unavailable" {
			t.Errorf("%s: unexpected error message %q", target, msg)
		}
	}
}

func TestInvalidArgumentIs400(t *testing.T) {
	gw := &fakeGateway{err: fmt.Errorf("%w: empty tag", radio.ErrInvalidArgument)}
	_, h := setupTestServer(t, gw, Options{})

	w := do(h, "GET", "/api/stations/tag/x", nil)
	if w.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", w.Code)
	}
}

func TestHandleStationClick(t *testing.T) {
	gw := &fakeGateway{clickOK: false}
	_, h := setupTestServer(t, gw, Options{})

	w := do(h, "POST", "/api/stations/bad-uuid/click", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}
	var resp map[string]bool
	if err := json.NewDecoder(w.Body).Decode(&resp); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if resp["success"] {
		t.Error("expected success=false")
	}
	if gw.lastArg != "bad-uuid" {
		t.Errorf("click forwarded %q", gw.lastArg)
	}

	gw.clickOK = true
	w = do(h, "POST", "/api/stations/"+jazzUUID+"/click", nil)
	if !strings.Contains(w.Body.String(), `"success":true`) {
		t.Errorf("expected success=true, got %s", w.Body.String())
	}
}

// ============================================================================
// Health and admin routes
// ============================================================================

func TestHandleHealth(t *testing.T) {
	ms := int64(42)
	gw := &fakeGateway{health: radio.HealthStatus{Status: radio.StatusHealthy, Mirror: "https://de1", ResponseTimeMs: &ms}}
	_, h := setupTestServer(t, gw, Options{})

	w := do(h, "GET", "/api/health", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}
	var status radio.HealthStatus
	if err := json.NewDecoder(w.Body).Decode(&status); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if status.Mirror != "https://de1" || status.ResponseTimeMs == nil || *status.ResponseTimeMs != 42 {
		t.Errorf("unexpected status: %+v", status)
	}

	gw.health = radio.HealthStatus{Status: radio.StatusUnhealthy, Error: "probe timed out"}
	w = do(h, "GET", "/api/health", nil)
	if w.Code != http.StatusServiceUnavailable {
		t.Fatalf("expected 503, got %d", w.Code)
	}
}

func TestHandleMirrorsAndRefresh(t *testing.T) {
	gw := &fakeGateway{}
	_, h := setupTestServer(t, gw, Options{})

	w := do(h, "GET", "/api/admin/mirrors", nil)
	if w.Code != http.StatusOK || !strings.Contains(w.Body.String(), "de1.api.radio-browser.info") {
		t.Fatalf("unexpected mirrors response %d: %s", w.Code, w.Body.String())
	}

	w = do(h, "POST", "/api/admin/mirrors/refresh", nil)
	if w.Code != http.StatusOK || !strings.Contains(w.Body.String(), "nl1.api.radio-browser.info") {
		t.Fatalf("unexpected refresh response %d: %s", w.Code, w.Body.String())
	}

	gw.err = errors.New("all mirrors unavailable")
	w = do(h, "POST", "/api/admin/mirrors/refresh", nil)
	if w.Code != http.StatusServiceUnavailable {
		t.Fatalf("expected 503, got %d", w.Code)
	}
}

// ============================================================================
// Favorites
// ============================================================================

func TestFavoritesLifecycle(t *testing.T) {
	_, h := setupTestServer(t, &fakeGateway{}, Options{})

	body := `{"stationuuid":"` + jazzUUID + `","name":"Jazz FM","url":"http://jazz.example","countrycode":"gb"}`
	w := do(h, "POST", "/api/favorites", bytes.NewBufferString(body))
	if w.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d: %s", w.Code, w.Body.String())
	}

	w = do(h, "GET", "/api/favorites", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}
	var favorites []store.Favorite
	if err := json.NewDecoder(w.Body).Decode(&favorites); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if len(favorites) != 1 || favorites[0].StationUUID != jazzUUID || favorites[0].CountryCode != "GB" {
		t.Fatalf("unexpected favorites: %+v", favorites)
	}

	w = do(h, "DELETE", "/api/favorites/"+jazzUUID, nil)
	if w.Code != http.StatusNoContent {
		t.Fatalf("expected 204, got %d", w.Code)
	}

	w = do(h, "DELETE", "/api/favorites/"+jazzUUID, nil)
	if w.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", w.Code)
	}
}

func TestAddFavoriteValidation(t *testing.T) {
	_, h := setupTestServer(t, &fakeGateway{}, Options{})

	tests := []struct {
		name string
		body string
	}{
		{"invalid json", `{`},
		{"missing name", `{"stationuuid":"` + jazzUUID + `"}`},
		{"bad uuid", `{"stationuuid":"bad-uuid","name":"x"}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := do(h, "POST", "/api/favorites", bytes.NewBufferString(tt.body))
			if w.Code != http.StatusBadRequest {
				t.Errorf("expected 400, got %d: %s", w.Code, w.Body.String())
			}
		})
	}

	if w := do(h, "DELETE", "/api/favorites/bad-uuid", nil); w.Code != http.StatusBadRequest {
		t.Errorf("expected 400 for bad uuid delete, got %d", w.Code)
	}
	if w := do(h, "GET", "/api/favorites?limit=-1", nil); w.Code != http.StatusBadRequest {
		t.Errorf("expected 400 for negative limit, got %d", w.Code)
	}
}

// ============================================================================
// Middleware
// ============================================================================

func TestRateLimit(t *testing.T) {
	_, h := setupTestServer(t, &fakeGateway{}, Options{RateLimit: 0.001, RateBurst: 1})

	if w := do(h, "GET", "/api/countries", nil); w.Code != http.StatusOK {
		t.Fatalf("first request: expected 200, got %d", w.Code)
	}
	w := do(h, "GET", "/api/countries", nil)
	if w.Code != http.StatusTooManyRequests {
		t.Fatalf("second request: expected 429, got %d", w.Code)
	}
	if w.Header().Get("Retry-After") == "" {
		t.Error("expected Retry-After header")
	}
}

func TestRequestTimeoutAppliesDeadline(t *testing.T) {
	gw := &fakeGateway{}
	_, h := setupTestServer(t, gw, Options{RequestTimeout: time.Minute})

	do(h, "GET", "/api/stations/popular", nil)
	if !gw.hadDeadline {
		t.Error("expected gateway context to carry a deadline")
	}
}

func TestMetricsEndpoint(t *testing.T) {
	reg := prometheus.NewRegistry()
	collector, err := metrics.New(reg)
	if err != nil {
		t.Fatal(err)
	}
	_, h := setupTestServer(t, &fakeGateway{}, Options{Gatherer: reg, Requests: collector})

	do(h, "GET", "/api/countries", nil)

	w := do(h, "GET", "/metrics", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}
	if !strings.Contains(w.Body.String(), `tuner_http_requests_total{code="200",route="/api/countries"} 1`) {
		t.Errorf("request metric missing from output:\n%s", w.Body.String())
	}
}
