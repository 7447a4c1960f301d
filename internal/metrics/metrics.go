package metrics

import (
	"fmt"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/BadgerOps/tuner/internal/mirror"
)

const namespace = "tuner"

// Collector exports gateway telemetry to Prometheus. It implements
// mirror.Observer and radio.OrderObserver.
type Collector struct {
	discoveries       *prometheus.CounterVec
	probes            *prometheus.CounterVec
	probeLatency      prometheus.Histogram
	selections        prometheus.Counter
	selectionFailures *prometheus.CounterVec
	selectedMirror    *prometheus.GaugeVec
	candidates        prometheus.Gauge
	backups           prometheus.Gauge
	retries           prometheus.Counter
	retryDelay        prometheus.Histogram
	orderViolations   *prometheus.CounterVec
	httpRequests      *prometheus.CounterVec
	httpDuration      *prometheus.HistogramVec
}

// New creates a Collector and registers it with reg.
func New(reg prometheus.Registerer) (*Collector, error) {
	c := &Collector{
		discoveries: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "mirror_discoveries_total",
			Help:      "Discovery rounds by the tier that produced the candidates.",
		}, []string{"source"}),
		probes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "mirror_probes_total",
			Help:      "Mirror health probes by outcome.",
		}, []string{"result"}),
		probeLatency: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "mirror_probe_duration_seconds",
			Help:      "Latency of successful mirror health probes.",
			Buckets:   []float64{.025, .05, .1, .25, .5, 1, 2.5, 5},
		}),
		selections: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "mirror_selections_total",
			Help:      "Successful mirror selection rounds.",
		}),
		selectionFailures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "mirror_selection_failures_total",
			Help:      "Failed mirror selections, split by whether a stale mirror was served.",
		}, []string{"stale_served"}),
		selectedMirror: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "mirror_selected",
			Help:      "Set to 1 for the currently selected mirror.",
		}, []string{"mirror"}),
		candidates: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "mirror_candidates",
			Help:      "Candidates probed in the last selection round.",
		}),
		backups: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "mirror_backups",
			Help:      "Healthy runner-ups kept by the last selection round.",
		}),
		retries: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "upstream_retries_total",
			Help:      "Upstream request retries.",
		}),
		retryDelay: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "upstream_retry_delay_seconds",
			Help:      "Backoff delays scheduled before retries.",
			Buckets:   prometheus.ExponentialBuckets(0.5, 2, 6),
		}),
		orderViolations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "station_order_violations_total",
			Help:      "Station lists returned out of click order.",
		}, []string{"endpoint"}),
		httpRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "http_requests_total",
			Help:      "API requests by route and status code.",
		}, []string{"route", "code"}),
		httpDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "http_request_duration_seconds",
			Help:      "API request latency by route.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"route"}),
	}

	for _, col := range []prometheus.Collector{
		c.discoveries, c.probes, c.probeLatency, c.selections, c.selectionFailures,
		c.selectedMirror, c.candidates, c.backups, c.retries, c.retryDelay,
		c.orderViolations, c.httpRequests, c.httpDuration,
	} {
		if err := reg.Register(col); err != nil {
			return nil, fmt.Errorf("registering metrics: %w", err)
		}
	}
	return c, nil
}

func (c *Collector) Discovered(source string, _ []string) {
	c.discoveries.WithLabelValues(source).Inc()
}

func (c *Collector) ProbeCompleted(r mirror.HealthProbeResult) {
	if !r.Healthy {
		c.probes.WithLabelValues("unhealthy").Inc()
		return
	}
	c.probes.WithLabelValues("healthy").Inc()
	c.probeLatency.Observe(r.Latency.Seconds())
}

func (c *Collector) MirrorSelected(sel mirror.Selection, candidates int) {
	c.selections.Inc()
	c.selectedMirror.Reset()
	c.selectedMirror.WithLabelValues(sel.Mirror).Set(1)
	c.candidates.Set(float64(candidates))
	c.backups.Set(float64(len(sel.Backups)))
}

func (c *Collector) SelectionFailed(_ error, staleServed bool) {
	c.selectionFailures.WithLabelValues(strconv.FormatBool(staleServed)).Inc()
}

func (c *Collector) RetryScheduled(_ int, delay time.Duration, _ error) {
	c.retries.Inc()
	c.retryDelay.Observe(delay.Seconds())
}

// OrderViolation counts a station list that came back out of click order.
func (c *Collector) OrderViolation(endpoint string) {
	c.orderViolations.WithLabelValues(endpoint).Inc()
}

// ObserveRequest records one served API request.
func (c *Collector) ObserveRequest(route string, code int, elapsed time.Duration) {
	c.httpRequests.WithLabelValues(route, strconv.Itoa(code)).Inc()
	c.httpDuration.WithLabelValues(route).Observe(elapsed.Seconds())
}
