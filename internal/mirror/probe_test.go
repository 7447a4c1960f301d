package mirror

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestProbeHealthyMirror(t *testing.T) {
	var gotPath, gotLimit, gotUA, gotAccept string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		gotLimit = r.URL.Query().Get("limit")
		gotUA = r.Header.Get("User-Agent")
		gotAccept = r.Header.Get("Accept")
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`[{"stationuuid":"x"}]`))
	}))
	defer srv.Close()

	obs := &recordingObserver{}
	stats := NewHealthStats()
	p := NewProber(nil, "tuner-test/1.0", stats, obs)

	r := p.Probe(context.Background(), srv.URL, time.Second)

	assert.True(t, r.Healthy)
	assert.Empty(t, r.Error)
	assert.GreaterOrEqual(t, r.Latency, time.Duration(0))
	assert.NotEqual(t, Unreachable, r.Latency)
	assert.False(t, r.ObservedAt.IsZero())

	assert.Equal(t, "/json/stations", gotPath)
	assert.Equal(t, "1", gotLimit)
	assert.Equal(t, "tuner-test/1.0", gotUA)
	assert.Equal(t, "application/json", gotAccept)

	recorded, ok := stats.Get(srv.URL)
	require.True(t, ok)
	assert.Equal(t, r, recorded)
	require.Len(t, obs.probes, 1)
}

func TestProbeNon2xxIsUnhealthy(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "maintenance", http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	p := NewProber(nil, "tuner-test/1.0", nil, nil)
	r := p.Probe(context.Background(), srv.URL, time.Second)

	assert.False(t, r.Healthy)
	assert.Equal(t, Unreachable, r.Latency)
	assert.Contains(t, r.Error, "503")
}

func TestProbeTimeout(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-r.Context().Done():
		case <-time.After(2 * time.Second):
		}
	}))
	defer srv.Close()

	p := NewProber(nil, "tuner-test/1.0", nil, nil)

	start := time.Now()
	r := p.Probe(context.Background(), srv.URL, 50*time.Millisecond)

	assert.False(t, r.Healthy)
	assert.NotEmpty(t, r.Error)
	assert.Less(t, time.Since(start), time.Second)
}

func TestProbeUnreachableMirror(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	url := srv.URL
	srv.Close()

	p := NewProber(nil, "tuner-test/1.0", nil, nil)
	r := p.Probe(context.Background(), url, time.Second)

	assert.False(t, r.Healthy)
	assert.Equal(t, url, r.Mirror)
}

func TestProbeOverwritesPreviousResult(t *testing.T) {
	var failing atomic.Bool
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if failing.Load() {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		_, _ = w.Write([]byte("[]"))
	}))
	defer srv.Close()

	stats := NewHealthStats()
	p := NewProber(nil, "tuner-test/1.0", stats, nil)

	first := p.Probe(context.Background(), srv.URL, time.Second)
	require.True(t, first.Healthy)

	failing.Store(true)
	second := p.Probe(context.Background(), srv.URL, time.Second)
	require.False(t, second.Healthy)

	snap := stats.Snapshot()
	require.Len(t, snap, 1)
	assert.False(t, snap[srv.URL].Healthy, "most recent probe should win")
}

func TestHealthStatsSnapshotIsCopy(t *testing.T) {
	stats := NewHealthStats()
	stats.Record(HealthProbeResult{Mirror: "https://a", Healthy: true, Latency: time.Millisecond})

	snap := stats.Snapshot()
	delete(snap, "https://a")

	_, ok := stats.Get("https://a")
	assert.True(t, ok)
}
