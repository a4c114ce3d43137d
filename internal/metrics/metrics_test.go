package metrics

import (
	"errors"
	"io"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"krishi/internal/types"
)

func TestCollector_Counts(t *testing.T) {
	c := New(prometheus.NewRegistry())

	c.RecordRequest("GET", "/v1/advisories/irrigation", "200", 15*time.Millisecond)
	c.RecordRequest("GET", "/v1/advisories/irrigation", "200", 5*time.Millisecond)
	c.ObserveDeviceMessage("accepted")
	c.ObserveDeviceMessage("replayed")
	c.ObserveDeviceMessage("accepted")
	c.ObserveReadingSource(types.SourceDemo)
	c.ObserveIntent(types.IntentIrrigation, 0.75)
	c.ObserveSync(12, nil)
	c.ObserveSync(0, errors.New("db down"))
	c.SetBreakerState("vision", 2)

	assert.Equal(t, 2.0, testutil.ToFloat64(c.requests.WithLabelValues("GET", "/v1/advisories/irrigation", "200")))
	assert.Equal(t, 2.0, testutil.ToFloat64(c.deviceMessages.WithLabelValues("accepted")))
	assert.Equal(t, 1.0, testutil.ToFloat64(c.deviceMessages.WithLabelValues("replayed")))
	assert.Equal(t, 1.0, testutil.ToFloat64(c.readingSources.WithLabelValues("demo")))
	assert.Equal(t, 1.0, testutil.ToFloat64(c.intents.WithLabelValues("irrigation")))
	assert.Equal(t, 12.0, testutil.ToFloat64(c.syncedReadings))
	assert.Equal(t, 1.0, testutil.ToFloat64(c.syncFailures))
	assert.Equal(t, 2.0, testutil.ToFloat64(c.breakerState.WithLabelValues("vision")))
}

func TestCollector_NilIsNoop(t *testing.T) {
	var c *Collector
	assert.NotPanics(t, func() {
		c.RecordRequest("GET", "/", "200", time.Millisecond)
		c.ObserveDeviceMessage("accepted")
		c.ObserveReadingSource(types.SourceLive)
		c.ObserveIntent(types.IntentGeneral, 0)
		c.ObserveSync(1, nil)
		c.SetBreakerState("vision", 0)
	})
}

func TestCollector_Handler(t *testing.T) {
	c := New(prometheus.NewRegistry())
	c.ObserveIntent(types.IntentWeather, 1)

	rec := httptest.NewRecorder()
	c.Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))

	body, err := io.ReadAll(rec.Body)
	require.NoError(t, err)
	assert.Contains(t, string(body), `krishi_voice_intents_total{intent="weather"} 1`)
}
