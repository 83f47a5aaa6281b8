package server

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/WhackerLink/WhackerLinkRdioScanner/internal/config"
	"github.com/WhackerLink/WhackerLinkRdioScanner/internal/export"
	"github.com/WhackerLink/WhackerLinkRdioScanner/internal/metrics"
	"github.com/WhackerLink/WhackerLinkRdioScanner/internal/rdio"
	"github.com/WhackerLink/WhackerLinkRdioScanner/internal/session"
)

type fakePeer struct{ connected bool }

func (p fakePeer) Connected() bool { return p.connected }

type fakeExporter struct{ stats export.Stats }

func (e fakeExporter) Stats() export.Stats { return e.stats }

type fakeUploads struct{}

func (fakeUploads) GetStats() rdio.ClientStats {
	return rdio.ClientStats{TotalRequests: 3, SuccessRequests: 2, FailedRequests: 1}
}

func newTestServer(t *testing.T, connected bool) (*HTTPServer, *session.Registry, *metrics.Metrics) {
	t.Helper()

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	reg := prometheus.NewRegistry()
	m := metrics.NewMetrics(reg)
	registry := session.NewRegistry(logger, m)

	cfg := &config.Config{
		Master:     config.MasterConfig{Address: "10.0.0.1", Port: 3000, AuthKey: "hunter2", RadioID: "1"},
		Talkgroups: []string{"1", "2"},
		Rdio:       config.RdioConfig{Endpoint: "http://rdio", APIKey: "SECRET-KEY", SystemID: "1", Timeout: 30},
	}

	h := NewHTTPServer(ServiceInfo{Name: "whackerlink-rdio", Version: "1.2.3"}, config.HTTPConfig{Address: "127.0.0.1", Port: 0}, logger, cfg, Sources{
		Peer:     fakePeer{connected: connected},
		Sessions: registry,
		Exporter: fakeExporter{stats: export.Stats{Submitted: 4, Delivered: 3, QueueDepth: 1, QueueCapacity: 8}},
		Uploads:  fakeUploads{},
		Gatherer: reg,
	}, m)

	return h, registry, m
}

func get(t *testing.T, h http.Handler, path string) *httptest.ResponseRecorder {
	t.Helper()
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, path, nil))
	return rec
}

func decode(t *testing.T, rec *httptest.ResponseRecorder) map[string]interface{} {
	t.Helper()
	var body map[string]interface{}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	return body
}

func TestHealth(t *testing.T) {
	h, registry, _ := newTestServer(t, true)
	registry.Append(session.CallIdentity{SourceID: "1001", DestinationID: "2"}, []byte{1, 2}, "F1")

	rec := get(t, h.Handler(), "/health")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))

	body := decode(t, rec)
	assert.Equal(t, "healthy", body["status"])
	assert.Equal(t, map[string]interface{}{"name": "whackerlink-rdio", "version": "1.2.3"}, body["service"])

	components := body["components"].(map[string]interface{})
	assert.Equal(t, true, components["peer"].(map[string]interface{})["connected"])
	assert.Equal(t, "ws://10.0.0.1:3000/", components["peer"].(map[string]interface{})["url"])
	assert.Equal(t, float64(1), components["sessions"].(map[string]interface{})["active"])
	assert.Equal(t, float64(1), components["export"].(map[string]interface{})["queue_depth"])
}

func TestHealthDegradedWhenDisconnected(t *testing.T) {
	h, _, _ := newTestServer(t, false)
	body := decode(t, get(t, h.Handler(), "/health"))
	assert.Equal(t, "degraded", body["status"])
}

func TestSessions(t *testing.T) {
	h, registry, _ := newTestServer(t, true)
	registry.Append(session.CallIdentity{SourceID: "1001", DestinationID: "2"}, []byte{1, 2}, "F1")
	registry.Append(session.CallIdentity{SourceID: "1002", DestinationID: "3"}, []byte{1, 2, 3, 4}, "F2")

	body := decode(t, get(t, h.Handler(), "/sessions"))
	assert.Equal(t, float64(2), body["total_sessions"])
	assert.Len(t, body["sessions"], 2)

	rec := get(t, h.Handler(), "/sessions/1002/3")
	require.Equal(t, http.StatusOK, rec.Code)
	detail := decode(t, rec)
	assert.Equal(t, "F2", detail["channel_label"])
	assert.Equal(t, float64(4), detail["bytes"])

	assert.Equal(t, http.StatusNotFound, get(t, h.Handler(), "/sessions/9/9").Code)
	assert.Equal(t, http.StatusBadRequest, get(t, h.Handler(), "/sessions/9").Code)
}

func TestConfigOmitsSecrets(t *testing.T) {
	h, _, _ := newTestServer(t, true)

	rec := get(t, h.Handler(), "/config")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.NotContains(t, rec.Body.String(), "SECRET-KEY")
	assert.NotContains(t, rec.Body.String(), "hunter2")

	body := decode(t, rec)
	assert.Equal(t, "http://rdio", body["rdio"].(map[string]interface{})["endpoint"])
}

func TestStats(t *testing.T) {
	h, _, _ := newTestServer(t, true)

	body := decode(t, get(t, h.Handler(), "/stats"))
	exportStats := body["export"].(map[string]interface{})
	assert.Equal(t, float64(4), exportStats["submitted"])
	assert.Equal(t, float64(3), exportStats["delivered"])

	upload := body["upload"].(map[string]interface{})
	assert.Equal(t, float64(3), upload["total_requests"])
}

func TestMetricsEndpoint(t *testing.T) {
	h, registry, m := newTestServer(t, true)
	registry.Append(session.CallIdentity{SourceID: "1", DestinationID: "2"}, nil, "F1")

	get(t, h.Handler(), "/health")
	assert.Equal(t, float64(1), testutil.ToFloat64(m.HTTPRequests.WithLabelValues("GET", "/health", "200")))

	rec := get(t, h.Handler(), "/metrics")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.True(t, strings.Contains(rec.Body.String(), "wlrdio_active_sessions 1"))
}

func TestRootAndMethods(t *testing.T) {
	h, _, _ := newTestServer(t, true)

	body := decode(t, get(t, h.Handler(), "/"))
	assert.Equal(t, "whackerlink-rdio", body["service"])
	assert.Equal(t, "1.2.3", body["version"])
	assert.Contains(t, body["endpoints"], "GET /sessions")

	assert.Equal(t, http.StatusNotFound, get(t, h.Handler(), "/nope").Code)

	rec := httptest.NewRecorder()
	h.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/health", nil))
	assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)
}

func TestStartStop(t *testing.T) {
	h, _, _ := newTestServer(t, true)
	require.NoError(t, h.Start())

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	assert.NoError(t, h.Stop(ctx))
}
