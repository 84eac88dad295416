// Package telemetry provides Prometheus metrics and correlation-id aware logging helpers.
package telemetry

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	once sync.Once

	// Counters
	MessagesReceived  prometheus.Counter
	EventsClassified  *prometheus.CounterVec // kind, reason
	AlertRetractions  prometheus.Counter
	Reconnects        *prometheus.CounterVec // class
	JournalAppends    prometheus.Counter
	JournalErrors     prometheus.Counter
	ReplayLines       prometheus.Counter
	StandingsExports  *prometheus.CounterVec // result
	HTTPRequestsTotal *prometheus.CounterVec // method, route, code

	// Histograms (seconds)
	JournalAppendDuration prometheus.Observer
	ReplayDuration        prometheus.Observer

	// Gauges
	SupervisorStateGauge prometheus.Gauge
	StoredEventsGauge    *prometheus.GaugeVec // kind
	LastMessageGauge     prometheus.Gauge
)

// Init registers metrics (idempotent).
func Init() {
	once.Do(func() {
		MessagesReceived = promauto.NewCounter(prometheus.CounterOpts{Name: "mergetracker_messages_received_total", Help: "Raw messages read from the push feed"})
		EventsClassified = promauto.NewCounterVec(prometheus.CounterOpts{Name: "mergetracker_events_classified_total", Help: "Classified messages by kind and outcome"}, []string{"kind", "reason"})
		AlertRetractions = promauto.NewCounter(prometheus.CounterOpts{Name: "mergetracker_alert_retractions_total", Help: "Alert wins removed by a sudden-death start"})
		Reconnects = promauto.NewCounterVec(prometheus.CounterOpts{Name: "mergetracker_reconnects_total", Help: "Connection failures that led to a reconnect attempt"}, []string{"class"})
		JournalAppends = promauto.NewCounter(prometheus.CounterOpts{Name: "mergetracker_journal_appends_total", Help: "Lines appended to the journal"})
		JournalErrors = promauto.NewCounter(prometheus.CounterOpts{Name: "mergetracker_journal_errors_total", Help: "Journal write or sync failures"})
		ReplayLines = promauto.NewCounter(prometheus.CounterOpts{Name: "mergetracker_replay_lines_total", Help: "Journal lines fed through the classifier during replay"})
		StandingsExports = promauto.NewCounterVec(prometheus.CounterOpts{Name: "mergetracker_standings_exports_total", Help: "Standings export runs by result"}, []string{"result"})
		HTTPRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{Name: "mergetracker_http_requests_total", Help: "HTTP requests served"}, []string{"method", "route", "code"})
		JournalAppendDuration = promauto.NewHistogram(prometheus.HistogramOpts{Name: "mergetracker_journal_append_duration_seconds", Help: "Journal append+fsync duration seconds", Buckets: []float64{0.0005, 0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1}})
		ReplayDuration = promauto.NewHistogram(prometheus.HistogramOpts{Name: "mergetracker_replay_duration_seconds", Help: "Startup journal replay duration seconds", Buckets: prometheus.DefBuckets})
		SupervisorStateGauge = promauto.NewGauge(prometheus.GaugeOpts{Name: "mergetracker_supervisor_state", Help: "Supervisor state (0 idle,1 connecting,2 subscribed,3 receiving,4 reconnecting,5 closed)"})
		StoredEventsGauge = promauto.NewGaugeVec(prometheus.GaugeOpts{Name: "mergetracker_stored_events", Help: "Events currently held in the aggregate store"}, []string{"kind"})
		LastMessageGauge = promauto.NewGauge(prometheus.GaugeOpts{Name: "mergetracker_last_message_timestamp_seconds", Help: "Unix time of the last message received"})
	})
}

// RecordClassified counts one classification outcome.
func RecordClassified(kind, reason string) {
	if EventsClassified != nil {
		EventsClassified.WithLabelValues(kind, reason).Inc()
	}
}

// RecordReconnect counts a reconnect caused by an error of the given class.
func RecordReconnect(class string) {
	if Reconnects != nil {
		Reconnects.WithLabelValues(class).Inc()
	}
}

// SetSupervisorState records the supervisor's current state number.
func SetSupervisorState(n int) {
	if SupervisorStateGauge != nil {
		SupervisorStateGauge.Set(float64(n))
	}
}

// SetStoredEvents records how many captures and alert wins the store holds.
func SetStoredEvents(captures, alerts int) {
	if StoredEventsGauge != nil {
		StoredEventsGauge.WithLabelValues("capture").Set(float64(captures))
		StoredEventsGauge.WithLabelValues("alert").Set(float64(alerts))
	}
}

// MarkMessage counts a received message and stamps its arrival time.
func MarkMessage(at time.Time) {
	if MessagesReceived != nil {
		MessagesReceived.Inc()
	}
	if LastMessageGauge != nil {
		LastMessageGauge.Set(float64(at.Unix()))
	}
}

// TimeFunc measures the duration of fn and records in observer if non-nil.
func TimeFunc(obs prometheus.Observer, fn func()) time.Duration {
	start := time.Now()
	fn()
	d := time.Since(start)
	if obs != nil {
		obs.Observe(d.Seconds())
	}
	return d
}

// Correlation ID helpers ----------------------------------------------------
type corrKeyType struct{}

var corrKey corrKeyType

// WithCorrelation returns a new context embedding the correlation id.
func WithCorrelation(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, corrKey, id)
}

// GetCorrelation returns correlation id or empty string.
func GetCorrelation(ctx context.Context) string {
	v := ctx.Value(corrKey)
	if s, ok := v.(string); ok {
		return s
	}
	return ""
}

// LoggerWithCorr returns a logger with corr attribute if present.
func LoggerWithCorr(ctx context.Context) *slog.Logger {
	if id := GetCorrelation(ctx); id != "" {
		return slog.Default().With(slog.String("corr", id))
	}
	return slog.Default()
}
