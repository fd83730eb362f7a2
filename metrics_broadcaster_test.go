package serialcomm

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fixedSource struct {
	snap MetricsSnapshot
}

func (f fixedSource) MetricsSnapshot() MetricsSnapshot { return f.snap }

func TestNewMetricsBroadcaster_Limits(t *testing.T) {
	_, err := NewMetricsBroadcaster(fixedSource{}, MaxMetricsChannelSize+1, time.Second)
	assert.Error(t, err)

	_, err = NewMetricsBroadcaster(fixedSource{}, 0, 0)
	assert.Error(t, err)

	mb, err := NewMetricsBroadcaster(fixedSource{}, 0, time.Second)
	require.NoError(t, err)
	assert.Equal(t, defaultMetricsChannelSize, cap(mb.metricsChannel))
}

func TestMetricsBroadcaster_Ticks(t *testing.T) {
	src := fixedSource{snap: MetricsSnapshot{HealthStatus: HealthStatusHealthy}}
	mb, err := NewMetricsBroadcaster(src, 4, 5*time.Millisecond)
	require.NoError(t, err)

	mb.Start()
	mb.Start()

	select {
	case s := <-mb.Channel():
		assert.Equal(t, HealthStatusHealthy, s.HealthStatus)
	case <-time.After(time.Second):
		t.Fatal("no snapshot broadcast")
	}

	mb.Stop()
	mb.Stop()
	for range mb.Channel() {
	}
}

func TestMetricsBroadcaster_ImmediateRequiresStart(t *testing.T) {
	mb, err := NewMetricsBroadcaster(fixedSource{}, 1, time.Hour)
	require.NoError(t, err)

	mb.BroadcastImmediate()
	assert.Empty(t, mb.Channel())

	mb.Start()
	mb.BroadcastImmediate()
	mb.BroadcastImmediate() // channel full, dropped
	assert.Len(t, mb.Channel(), 1)

	mb.Stop()
	mb.BroadcastImmediate()
}

func TestMetricsBroadcaster_AdapterSource(t *testing.T) {
	a := New(newMockTransport(), Config{})
	mb, err := NewMetricsBroadcaster(a, 1, time.Hour)
	require.NoError(t, err)
	mb.Start()
	defer mb.Stop()

	mb.BroadcastImmediate()
	s := <-mb.Channel()
	assert.Equal(t, HealthStatusDown, s.HealthStatus)
}
