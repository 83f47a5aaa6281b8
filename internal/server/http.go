package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/WhackerLink/WhackerLinkRdioScanner/internal/config"
	"github.com/WhackerLink/WhackerLinkRdioScanner/internal/export"
	"github.com/WhackerLink/WhackerLinkRdioScanner/internal/metrics"
	"github.com/WhackerLink/WhackerLinkRdioScanner/internal/peer"
	"github.com/WhackerLink/WhackerLinkRdioScanner/internal/rdio"
	"github.com/WhackerLink/WhackerLinkRdioScanner/internal/session"
)

// PeerStatus reports the master connection state
type PeerStatus interface {
	Connected() bool
}

// SessionSource exposes the active call sessions
type SessionSource interface {
	Len() int
	Snapshot() []session.SessionInfo
}

// ExportSource exposes export pipeline counters
type ExportSource interface {
	Stats() export.Stats
}

// UploadSource exposes upload client counters
type UploadSource interface {
	GetStats() rdio.ClientStats
}

// ServiceInfo identifies the running service in API responses
type ServiceInfo struct {
	Name    string
	Version string
}

// Sources are the components the API reports on
type Sources struct {
	Peer     PeerStatus
	Sessions SessionSource
	Exporter ExportSource
	Uploads  UploadSource
	Gatherer prometheus.Gatherer
}

// HTTPServer provides HTTP API endpoints for monitoring
type HTTPServer struct {
	server  *http.Server
	handler http.Handler
	service ServiceInfo
	logger  *slog.Logger
	config  *config.Config
	sources Sources
	metrics *metrics.Metrics

	startTime time.Time
}

// NewHTTPServer creates a new HTTP API server
func NewHTTPServer(service ServiceInfo, cfg config.HTTPConfig, logger *slog.Logger, appConfig *config.Config, sources Sources, m *metrics.Metrics) *HTTPServer {
	h := &HTTPServer{
		service:   service,
		logger:    logger,
		config:    appConfig,
		sources:   sources,
		metrics:   m,
		startTime: time.Now(),
	}

	mux := http.NewServeMux()
	h.setupRoutes(mux)
	h.handler = mux

	h.server = &http.Server{
		Addr:         net.JoinHostPort(cfg.Address, strconv.Itoa(cfg.Port)),
		Handler:      mux,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	return h
}

// Handler returns the API handler
func (h *HTTPServer) Handler() http.Handler {
	return h.handler
}

func (h *HTTPServer) setupRoutes(mux *http.ServeMux) {
	mux.HandleFunc("/health", h.withMetrics("/health", h.handleHealth))

	mux.HandleFunc("/sessions", h.withMetrics("/sessions", h.handleSessions))
	mux.HandleFunc("/sessions/", h.withMetrics("/sessions/{src}/{dst}", h.handleSessionDetail))

	mux.HandleFunc("/config", h.withMetrics("/config", h.handleConfig))
	mux.HandleFunc("/stats", h.withMetrics("/stats", h.handleStats))

	gatherer := h.sources.Gatherer
	if gatherer == nil {
		gatherer = prometheus.DefaultGatherer
	}
	mux.Handle("/metrics", promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{}))

	mux.HandleFunc("/", h.withMetrics("/", h.handleRoot))
}

// withMetrics wraps an HTTP handler with metrics collection
func (h *HTTPServer) withMetrics(endpoint string, handler http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()

		ww := &responseWriter{ResponseWriter: w, statusCode: http.StatusOK}
		handler(ww, r)

		if h.metrics != nil {
			h.metrics.RecordHTTPRequest(r.Method, endpoint, strconv.Itoa(ww.statusCode), time.Since(start).Seconds())
		}
	}
}

// responseWriter wraps http.ResponseWriter to capture status code
type responseWriter struct {
	http.ResponseWriter
	statusCode int
}

func (rw *responseWriter) WriteHeader(code int) {
	rw.statusCode = code
	rw.ResponseWriter.WriteHeader(code)
}

// Start binds the listen address and serves in the background
func (h *HTTPServer) Start() error {
	ln, err := net.Listen("tcp", h.server.Addr)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", h.server.Addr, err)
	}

	h.logger.Info("Starting HTTP API server", slog.String("address", ln.Addr().String()))

	go func() {
		if err := h.server.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			h.logger.Error("HTTP server error", slog.String("error", err.Error()))
		}
	}()

	return nil
}

// Stop gracefully stops the HTTP server
func (h *HTTPServer) Stop(ctx context.Context) error {
	h.logger.Info("Stopping HTTP API server...")
	return h.server.Shutdown(ctx)
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(v)
}

func (h *HTTPServer) handleHealth(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	connected := h.sources.Peer != nil && h.sources.Peer.Connected()
	status := "healthy"
	if !connected {
		status = "degraded"
	}

	exportStats := h.sources.Exporter.Stats()

	health := map[string]interface{}{
		"status":    status,
		"timestamp": time.Now().UTC(),
		"uptime":    time.Since(h.startTime).String(),
		"service": map[string]interface{}{
			"name":    h.service.Name,
			"version": h.service.Version,
		},
		"components": map[string]interface{}{
			"peer": map[string]interface{}{
				"connected": connected,
				"url":       peer.URL(h.config.Master.Address, h.config.Master.Port),
			},
			"sessions": map[string]interface{}{
				"active": h.sources.Sessions.Len(),
			},
			"export": map[string]interface{}{
				"queue_depth":    exportStats.QueueDepth,
				"queue_capacity": exportStats.QueueCapacity,
				"in_flight":      exportStats.InFlight,
			},
		},
	}

	writeJSON(w, health)
}

func (h *HTTPServer) handleSessions(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	sessions := h.sources.Sessions.Snapshot()

	writeJSON(w, map[string]interface{}{
		"total_sessions": len(sessions),
		"timestamp":      time.Now().UTC(),
		"sessions":       sessions,
	})
}

// handleSessionDetail implements /sessions/{src}/{dst}
func (h *HTTPServer) handleSessionDetail(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	parts := strings.Split(strings.TrimPrefix(r.URL.Path, "/sessions/"), "/")
	if len(parts) != 2 || parts[0] == "" || parts[1] == "" {
		http.Error(w, "Source and destination IDs required", http.StatusBadRequest)
		return
	}

	for _, info := range h.sources.Sessions.Snapshot() {
		if info.SourceID == parts[0] && info.DestinationID == parts[1] {
			writeJSON(w, info)
			return
		}
	}

	http.Error(w, "Session not found", http.StatusNotFound)
}

func (h *HTTPServer) handleConfig(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	c := h.config

	// API key and auth key are omitted
	sanitized := map[string]interface{}{
		"master": map[string]interface{}{
			"address":  c.Master.Address,
			"port":     c.Master.Port,
			"radio_id": c.Master.RadioID,
		},
		"talkgroups": c.Talkgroups,
		"rdio": map[string]interface{}{
			"endpoint":     c.Rdio.Endpoint,
			"system_id":    c.Rdio.SystemID,
			"system_label": c.Rdio.SystemLabel,
			"timeout":      c.Rdio.Timeout,
		},
		"export": map[string]interface{}{
			"workers":         c.Export.Workers,
			"queue_size":      c.Export.QueueSize,
			"enqueue_timeout": c.Export.EnqueueTimeout,
			"spool_dir":       c.Export.SpoolDir,
			"keep_failed":     c.Export.KeepFailed,
			"max_attempts":    c.Export.MaxAttempts,
			"retry_backoff":   c.Export.RetryBackoff,
		},
		"peer": map[string]interface{}{
			"reconnect_min": c.Peer.ReconnectMin,
			"reconnect_max": c.Peer.ReconnectMax,
		},
		"logging": map[string]interface{}{
			"level":  c.Logging.Level,
			"format": c.Logging.Format,
			"output": c.Logging.Output,
		},
	}

	writeJSON(w, sanitized)
}

func (h *HTTPServer) handleStats(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	stats := map[string]interface{}{
		"uptime":    time.Since(h.startTime).String(),
		"timestamp": time.Now().UTC(),
		"sessions": map[string]interface{}{
			"active_count": h.sources.Sessions.Len(),
		},
		"export": h.sources.Exporter.Stats(),
	}
	if h.sources.Uploads != nil {
		stats["upload"] = h.sources.Uploads.GetStats()
	}

	writeJSON(w, stats)
}

// handleRoot implements the / endpoint with API documentation
func (h *HTTPServer) handleRoot(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	if r.URL.Path != "/" {
		http.NotFound(w, r)
		return
	}

	writeJSON(w, map[string]interface{}{
		"service": h.service.Name,
		"version": h.service.Version,
		"endpoints": map[string]interface{}{
			"GET /":                     "API documentation",
			"GET /health":               "Service health check",
			"GET /sessions":             "List active call sessions",
			"GET /sessions/{src}/{dst}": "Get one active call session",
			"GET /config":               "Get service configuration",
			"GET /stats":                "Get export and upload statistics",
			"GET /metrics":              "Prometheus metrics",
		},
		"timestamp": time.Now().UTC(),
	})
}
