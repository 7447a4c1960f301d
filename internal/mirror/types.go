package mirror

import (
	"encoding/json"
	"math"
	"time"
)

// Unreachable is the latency recorded for a mirror that failed its probe.
// It sorts after every real measurement.
const Unreachable = time.Duration(math.MaxInt64)

// HealthProbeResult is the outcome of probing a single mirror.
type HealthProbeResult struct {
	Mirror     string
	Healthy    bool
	Latency    time.Duration
	Error      string
	ObservedAt time.Time
}

// LatencyMs returns the latency in milliseconds, or +Inf when the mirror was
// not reachable.
func (r HealthProbeResult) LatencyMs() float64 {
	if !r.Healthy || r.Latency == Unreachable {
		return math.Inf(1)
	}
	return float64(r.Latency) / float64(time.Millisecond)
}

type probeResultJSON struct {
	Mirror         string    `json:"mirror"`
	Healthy        bool      `json:"healthy"`
	ResponseTimeMs *int64    `json:"response_time_ms"`
	Error          string    `json:"error,omitempty"`
	ObservedAt     time.Time `json:"observed_at"`
}

// MarshalJSON renders unreachable latency as null, since JSON has no infinity.
func (r HealthProbeResult) MarshalJSON() ([]byte, error) {
	out := probeResultJSON{
		Mirror:     r.Mirror,
		Healthy:    r.Healthy,
		Error:      r.Error,
		ObservedAt: r.ObservedAt,
	}
	if r.Healthy && r.Latency != Unreachable {
		ms := r.Latency.Milliseconds()
		out.ResponseTimeMs = &ms
	}
	return json.Marshal(out)
}

// UnmarshalJSON is the inverse of MarshalJSON.
func (r *HealthProbeResult) UnmarshalJSON(data []byte) error {
	var in probeResultJSON
	if err := json.Unmarshal(data, &in); err != nil {
		return err
	}
	*r = HealthProbeResult{
		Mirror:     in.Mirror,
		Healthy:    in.Healthy,
		Latency:    Unreachable,
		Error:      in.Error,
		ObservedAt: in.ObservedAt,
	}
	if in.ResponseTimeMs != nil {
		r.Latency = time.Duration(*in.ResponseTimeMs) * time.Millisecond
	}
	return nil
}

// Selection is the outcome of one selector round: the fastest healthy mirror
// plus up to MaxBackups healthy runner-ups in ascending latency order.
type Selection struct {
	Mirror  string              `json:"mirror"`
	Backups []HealthProbeResult `json:"backups"`
}

// CacheSnapshot is a point-in-time copy of the selection cache state.
type CacheSnapshot struct {
	SelectedMirror string                       `json:"selected_mirror,omitempty"`
	SelectedAt     time.Time                    `json:"selected_at,omitempty"`
	TTL            time.Duration                `json:"ttl"`
	Age            time.Duration                `json:"age"`
	Expired        bool                         `json:"expired"`
	Backups        []HealthProbeResult          `json:"backups"`
	HealthStats    map[string]HealthProbeResult `json:"health_stats"`
}
