// Package metrics exposes Prometheus instruments for the bridge.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics contains all Prometheus metrics for the call archiver
type Metrics struct {
	// Peer connection metrics
	PeerConnected    prometheus.Gauge
	PeerReconnects   prometheus.Counter
	FramesReceived   prometheus.Counter
	ReleasesReceived prometheus.Counter
	UnknownReleases  prometheus.Counter
	ParseErrors      prometheus.Counter

	// Call session metrics
	ActiveSessions    prometheus.Gauge
	SessionsCreated   prometheus.Counter
	SessionsFinalized prometheus.Counter
	SessionLifetime   prometheus.Histogram

	// Export metrics
	ExportQueueDepth  prometheus.Gauge
	ExportsInFlight   prometheus.Gauge
	ExportsDropped    prometheus.Counter
	RecordingBytes    prometheus.Histogram
	RecordingDuration prometheus.Histogram

	// Upload metrics
	UploadRequests  prometheus.Counter
	UploadSuccesses prometheus.Counter
	UploadFailures  prometheus.Counter
	UploadRetries   prometheus.Counter
	UploadDuration  prometheus.Histogram

	// HTTP API metrics
	HTTPRequests        *prometheus.CounterVec
	HTTPRequestDuration *prometheus.HistogramVec
}

// NewMetrics creates all metrics and registers them with reg
func NewMetrics(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)

	return &Metrics{
		// Peer connection metrics
		PeerConnected: factory.NewGauge(prometheus.GaugeOpts{
			Name: "wlrdio_peer_connected",
			Help: "Whether the master connection is currently open (1) or not (0)",
		}),
		PeerReconnects: factory.NewCounter(prometheus.CounterOpts{
			Name: "wlrdio_peer_reconnects_total",
			Help: "Total number of master reconnection attempts",
		}),
		FramesReceived: factory.NewCounter(prometheus.CounterOpts{
			Name: "wlrdio_voice_frames_received_total",
			Help: "Total number of voice frames received",
		}),
		ReleasesReceived: factory.NewCounter(prometheus.CounterOpts{
			Name: "wlrdio_channel_releases_received_total",
			Help: "Total number of voice channel releases received",
		}),
		UnknownReleases: factory.NewCounter(prometheus.CounterOpts{
			Name: "wlrdio_unknown_releases_total",
			Help: "Total number of releases for calls with no active session",
		}),
		ParseErrors: factory.NewCounter(prometheus.CounterOpts{
			Name: "wlrdio_parse_errors_total",
			Help: "Total number of master messages that failed to parse",
		}),

		// Call session metrics
		ActiveSessions: factory.NewGauge(prometheus.GaugeOpts{
			Name: "wlrdio_active_sessions",
			Help: "Current number of calls being recorded",
		}),
		SessionsCreated: factory.NewCounter(prometheus.CounterOpts{
			Name: "wlrdio_sessions_created_total",
			Help: "Total number of call sessions created",
		}),
		SessionsFinalized: factory.NewCounter(prometheus.CounterOpts{
			Name: "wlrdio_sessions_finalized_total",
			Help: "Total number of call sessions finalized",
		}),
		SessionLifetime: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "wlrdio_session_lifetime_seconds",
			Help:    "Wall-clock time from first voice frame to finalize",
			Buckets: prometheus.ExponentialBuckets(0.5, 2, 10), // 0.5s to ~4 minutes
		}),

		// Export metrics
		ExportQueueDepth: factory.NewGauge(prometheus.GaugeOpts{
			Name: "wlrdio_export_queue_depth",
			Help: "Finalized calls waiting for an export worker",
		}),
		ExportsInFlight: factory.NewGauge(prometheus.GaugeOpts{
			Name: "wlrdio_exports_in_flight",
			Help: "Calls currently being encoded or uploaded",
		}),
		ExportsDropped: factory.NewCounter(prometheus.CounterOpts{
			Name: "wlrdio_exports_dropped_total",
			Help: "Finalized calls dropped because the export queue was full or closed",
		}),
		RecordingBytes: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "wlrdio_recording_size_bytes",
			Help:    "Size of encoded call recordings",
			Buckets: prometheus.ExponentialBuckets(1024, 2, 12), // 1KB to ~4MB
		}),
		RecordingDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "wlrdio_recording_duration_seconds",
			Help:    "Audio length of call recordings",
			Buckets: prometheus.ExponentialBuckets(0.5, 2, 10),
		}),

		// Upload metrics
		UploadRequests: factory.NewCounter(prometheus.CounterOpts{
			Name: "wlrdio_upload_requests_total",
			Help: "Total number of upload attempts",
		}),
		UploadSuccesses: factory.NewCounter(prometheus.CounterOpts{
			Name: "wlrdio_upload_successes_total",
			Help: "Total number of successful uploads",
		}),
		UploadFailures: factory.NewCounter(prometheus.CounterOpts{
			Name: "wlrdio_upload_failures_total",
			Help: "Total number of recordings that could not be delivered",
		}),
		UploadRetries: factory.NewCounter(prometheus.CounterOpts{
			Name: "wlrdio_upload_retries_total",
			Help: "Total number of upload retries",
		}),
		UploadDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "wlrdio_upload_duration_seconds",
			Help:    "Duration of upload requests",
			Buckets: prometheus.ExponentialBuckets(0.05, 2, 10), // 50ms to ~25s
		}),

		// HTTP API metrics
		HTTPRequests: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "wlrdio_http_requests_total",
			Help: "Total number of HTTP requests",
		}, []string{"method", "endpoint", "status_code"}),
		HTTPRequestDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "wlrdio_http_request_duration_seconds",
			Help:    "Duration of HTTP requests",
			Buckets: prometheus.DefBuckets,
		}, []string{"method", "endpoint"}),
	}
}

// SetPeerConnected records the master connection state
func (m *Metrics) SetPeerConnected(connected bool) {
	if connected {
		m.PeerConnected.Set(1)
	} else {
		m.PeerConnected.Set(0)
	}
}

// RecordReconnect increments the reconnect counter
func (m *Metrics) RecordReconnect() {
	m.PeerReconnects.Inc()
}

// RecordFrame increments the voice frames counter
func (m *Metrics) RecordFrame() {
	m.FramesReceived.Inc()
}

// RecordRelease increments the release counter, and the unknown counter when
// no session matched
func (m *Metrics) RecordRelease(matched bool) {
	m.ReleasesReceived.Inc()
	if !matched {
		m.UnknownReleases.Inc()
	}
}

// RecordParseError increments the parse errors counter
func (m *Metrics) RecordParseError() {
	m.ParseErrors.Inc()
}

// SessionCreated implements session.Observer
func (m *Metrics) SessionCreated() {
	m.SessionsCreated.Inc()
	m.ActiveSessions.Inc()
}

// SessionFinalized implements session.Observer
func (m *Metrics) SessionFinalized(lifetime time.Duration) {
	m.SessionsFinalized.Inc()
	m.ActiveSessions.Dec()
	m.SessionLifetime.Observe(lifetime.Seconds())
}

// SetQueueDepth sets the current export queue depth
func (m *Metrics) SetQueueDepth(depth int) {
	m.ExportQueueDepth.Set(float64(depth))
}

// ExportStarted marks an export as in flight
func (m *Metrics) ExportStarted() {
	m.ExportsInFlight.Inc()
}

// ExportFinished marks an export as no longer in flight
func (m *Metrics) ExportFinished() {
	m.ExportsInFlight.Dec()
}

// RecordDropped increments the dropped exports counter
func (m *Metrics) RecordDropped() {
	m.ExportsDropped.Inc()
}

// RecordRecording records the size and audio length of an encoded call
func (m *Metrics) RecordRecording(sizeBytes int, audioLength time.Duration) {
	m.RecordingBytes.Observe(float64(sizeBytes))
	m.RecordingDuration.Observe(audioLength.Seconds())
}

// RecordUploadAttempt records one upload request and its outcome
func (m *Metrics) RecordUploadAttempt(retry bool, duration time.Duration) {
	m.UploadRequests.Inc()
	if retry {
		m.UploadRetries.Inc()
	}
	m.UploadDuration.Observe(duration.Seconds())
}

// RecordUploadResult records the final delivery outcome of a recording
func (m *Metrics) RecordUploadResult(success bool) {
	if success {
		m.UploadSuccesses.Inc()
	} else {
		m.UploadFailures.Inc()
	}
}

// RecordHTTPRequest records an HTTP request
func (m *Metrics) RecordHTTPRequest(method, endpoint, statusCode string, durationSeconds float64) {
	m.HTTPRequests.WithLabelValues(method, endpoint, statusCode).Inc()
	m.HTTPRequestDuration.WithLabelValues(method, endpoint).Observe(durationSeconds)
}
