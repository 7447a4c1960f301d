package mirror

import (
	"log/slog"
	"time"
)

// Observer receives gateway telemetry. Implementations must be safe for
// concurrent use and must not block.
type Observer interface {
	// Discovered reports which discovery tier produced the candidate list.
	Discovered(source string, mirrors []string)
	// ProbeCompleted is called once per probe, healthy or not.
	ProbeCompleted(result HealthProbeResult)
	// MirrorSelected is called when a selector round picks a mirror.
	MirrorSelected(sel Selection, candidates int)
	// SelectionFailed is called when a round ends without a usable mirror,
	// or when the cache falls back to a stale selection.
	SelectionFailed(err error, staleServed bool)
	// RetryScheduled is called before the executor sleeps for a retry.
	RetryScheduled(attempt int, delay time.Duration, err error)
}

// NopObserver discards everything.
type NopObserver struct{}

func (NopObserver) Discovered(string, []string) {}
func (NopObserver) ProbeCompleted(HealthProbeResult) {}
func (NopObserver) MirrorSelected(Selection, int) {}
func (NopObserver) SelectionFailed(error, bool) {}
func (NopObserver) RetryScheduled(int, time.Duration, error) {}

// Observers fans every event out to each member in order.
type Observers []Observer

func (o Observers) Discovered(source string, mirrors []string) {
	for _, ob := range o {
		ob.Discovered(source, mirrors)
	}
}

func (o Observers) ProbeCompleted(result HealthProbeResult) {
	for _, ob := range o {
		ob.ProbeCompleted(result)
	}
}

func (o Observers) MirrorSelected(sel Selection, candidates int) {
	for _, ob := range o {
		ob.MirrorSelected(sel, candidates)
	}
}

func (o Observers) SelectionFailed(err error, staleServed bool) {
	for _, ob := range o {
		ob.SelectionFailed(err, staleServed)
	}
}

func (o Observers) RetryScheduled(attempt int, delay time.Duration, err error) {
	for _, ob := range o {
		ob.RetryScheduled(attempt, delay, err)
	}
}

// LogObserver writes events to a slog.Logger.
type LogObserver struct {
	logger *slog.Logger
}

// NewLogObserver creates a LogObserver; a nil logger uses slog.Default().
func NewLogObserver(logger *slog.Logger) *LogObserver {
	if logger == nil {
		logger = slog.Default()
	}
	return &LogObserver{logger: logger}
}

func (l *LogObserver) Discovered(source string, mirrors []string) {
	l.logger.Info("mirrors discovered", "source", source, "count", len(mirrors))
}

func (l *LogObserver) ProbeCompleted(r HealthProbeResult) {
	if r.Healthy {
		l.logger.Debug("mirror probe succeeded", "mirror", r.Mirror, "latency", r.Latency)
		return
	}
	l.logger.Debug("mirror probe failed", "mirror", r.Mirror, "error", r.Error)
}

func (l *LogObserver) MirrorSelected(sel Selection, candidates int) {
	l.logger.Info("mirror selected", "mirror", sel.Mirror, "candidates", candidates, "backups", len(sel.Backups))
}

func (l *LogObserver) SelectionFailed(err error, staleServed bool) {
	if staleServed {
		l.logger.Warn("mirror refresh failed, serving stale selection", "error", err)
		return
	}
	l.logger.Warn("mirror selection failed", "error", err)
}

func (l *LogObserver) RetryScheduled(attempt int, delay time.Duration, err error) {
	l.logger.Warn("upstream request failed, retrying with a fresh mirror", "attempt", attempt, "delay", delay, "error", err)
}
