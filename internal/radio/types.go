package radio

import (
	"time"

	"github.com/BadgerOps/tuner/internal/mirror"
)

// Station is one entry of the station directory.
type Station struct {
	ChangeUUID     string  `json:"changeuuid,omitempty"`
	StationUUID    string  `json:"stationuuid"`
	Name           string  `json:"name"`
	URL            string  `json:"url"`
	URLResolved    string  `json:"url_resolved"`
	Homepage       string  `json:"homepage"`
	Favicon        string  `json:"favicon"`
	Tags           string  `json:"tags"`
	Country        string  `json:"country"`
	CountryCode    string  `json:"countrycode"`
	State          string  `json:"state"`
	Language       string  `json:"language"`
	Votes          int     `json:"votes"`
	Codec          string  `json:"codec"`
	Bitrate        int     `json:"bitrate"`
	HLS            int     `json:"hls"`
	LastCheckOK    int     `json:"lastcheckok"`
	LastCheckTime  string  `json:"lastchecktime,omitempty"`
	ClickTimestamp string  `json:"clicktimestamp,omitempty"`
	ClickCount     int     `json:"clickcount"`
	ClickTrend     int     `json:"clicktrend"`
	GeoLat         float64 `json:"geo_lat,omitempty"`
	GeoLong        float64 `json:"geo_long,omitempty"`
}

// Country is a country with the number of stations it has.
type Country struct {
	Name         string `json:"name"`
	ISO3166_1    string `json:"iso_3166_1"`
	StationCount int    `json:"stationcount"`
}

// Tag is a station tag with its usage count.
type Tag struct {
	Name         string `json:"name"`
	StationCount int    `json:"stationcount"`
}

// ClickResult is the directory's answer to a click registration.
type ClickResult struct {
	OK          bool   `json:"ok"`
	Message     string `json:"message"`
	StationUUID string `json:"stationuuid"`
	Name        string `json:"name"`
	URL         string `json:"url"`
}

const (
	StatusHealthy   = "healthy"
	StatusUnhealthy = "unhealthy"
)

// HealthStatus reports whether the currently selected mirror answers.
type HealthStatus struct {
	Status         string    `json:"status"`
	Mirror         string    `json:"mirror,omitempty"`
	Timestamp      time.Time `json:"timestamp"`
	ResponseTimeMs *int64    `json:"response_time_ms"`
	Error          string    `json:"error,omitempty"`
}

// Healthy reports whether Status is StatusHealthy.
func (h HealthStatus) Healthy() bool {
	return h.Status == StatusHealthy
}

// ServerInfo describes the selection cache for operators.
type ServerInfo struct {
	CurrentMirror   string                              `json:"current_mirror"`
	SelectedAt      *time.Time                          `json:"selected_at"`
	CacheTTLSeconds float64                             `json:"cache_ttl_seconds"`
	CacheAgeSeconds float64                             `json:"cache_age_seconds"`
	CacheExpired    bool                                `json:"cache_expired"`
	Backups         []mirror.HealthProbeResult          `json:"backups"`
	HealthStats     map[string]mirror.HealthProbeResult `json:"health_stats"`
	OrderViolations int64                               `json:"order_violations"`
}
