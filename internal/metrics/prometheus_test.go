package metrics

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
)

func TestSessionObserverTracksActiveSessions(t *testing.T) {
	m := NewMetrics(prometheus.NewRegistry())

	m.SessionCreated()
	m.SessionCreated()
	m.SessionFinalized(3 * time.Second)

	assert.Equal(t, float64(1), testutil.ToFloat64(m.ActiveSessions))
	assert.Equal(t, float64(2), testutil.ToFloat64(m.SessionsCreated))
	assert.Equal(t, float64(1), testutil.ToFloat64(m.SessionsFinalized))
}

func TestRecordRelease(t *testing.T) {
	m := NewMetrics(prometheus.NewRegistry())

	m.RecordRelease(true)
	m.RecordRelease(false)

	assert.Equal(t, float64(2), testutil.ToFloat64(m.ReleasesReceived))
	assert.Equal(t, float64(1), testutil.ToFloat64(m.UnknownReleases))
}

func TestUploadCounters(t *testing.T) {
	m := NewMetrics(prometheus.NewRegistry())

	m.RecordUploadAttempt(false, 100*time.Millisecond)
	m.RecordUploadAttempt(true, 200*time.Millisecond)
	m.RecordUploadResult(false)

	assert.Equal(t, float64(2), testutil.ToFloat64(m.UploadRequests))
	assert.Equal(t, float64(1), testutil.ToFloat64(m.UploadRetries))
	assert.Equal(t, float64(1), testutil.ToFloat64(m.UploadFailures))
	assert.Equal(t, float64(0), testutil.ToFloat64(m.UploadSuccesses))
}

func TestPeerConnectedGauge(t *testing.T) {
	m := NewMetrics(prometheus.NewRegistry())

	m.SetPeerConnected(true)
	assert.Equal(t, float64(1), testutil.ToFloat64(m.PeerConnected))

	m.SetPeerConnected(false)
	assert.Equal(t, float64(0), testutil.ToFloat64(m.PeerConnected))
}

func TestSeparateRegistries(t *testing.T) {
	// Each registry gets its own instruments, so building twice must not panic
	assert.NotPanics(t, func() {
		NewMetrics(prometheus.NewRegistry())
		NewMetrics(prometheus.NewRegistry())
	})
}
