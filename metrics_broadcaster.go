package serialcomm

import (
	"fmt"
	"sync"
	"time"

	"go.uber.org/atomic"
)

// MaxMetricsChannelSize bounds the buffered snapshot channel.
const MaxMetricsChannelSize = 10000

const defaultMetricsChannelSize = 50

// SnapshotSource is anything that can report a MetricsSnapshot, usually an Adapter.
type SnapshotSource interface {
	MetricsSnapshot() MetricsSnapshot
}

// MetricsBroadcaster handles channel-based metrics broadcasting
type MetricsBroadcaster struct {
	source           SnapshotSource
	metricsChannel   chan MetricsSnapshot
	emissionInterval time.Duration
	enabled          atomic.Bool
	stopCh           chan struct{}
	stopOnce         sync.Once

	// guards sends against the close in Stop
	mu sync.Mutex
}

// NewMetricsBroadcaster creates a broadcaster emitting a snapshot of source
// every interval. A channelSize of zero selects the default.
func NewMetricsBroadcaster(source SnapshotSource, channelSize int, interval time.Duration) (*MetricsBroadcaster, error) {
	if channelSize <= 0 {
		channelSize = defaultMetricsChannelSize
	} else if channelSize > MaxMetricsChannelSize {
		return nil, fmt.Errorf("metrics channel size too large: %d (max %d)", channelSize, MaxMetricsChannelSize)
	}
	if interval <= 0 {
		return nil, fmt.Errorf("metrics interval must be positive, got %v", interval)
	}
	return &MetricsBroadcaster{
		source:           source,
		metricsChannel:   make(chan MetricsSnapshot, channelSize),
		emissionInterval: interval,
		stopCh:           make(chan struct{}),
	}, nil
}

// Start begins broadcasting metrics to the channel
func (mb *MetricsBroadcaster) Start() {
	if !mb.enabled.CompareAndSwap(false, true) {
		return // Already running
	}

	ticker := time.NewTicker(mb.emissionInterval)
	go func() {
		defer ticker.Stop()
		for {
			select {
			case <-mb.stopCh:
				return
			case <-ticker.C:
				mb.broadcast()
			}
		}
	}()
}

// Stop ends broadcasting and closes the channel. A stopped broadcaster
// cannot be restarted.
func (mb *MetricsBroadcaster) Stop() {
	mb.stopOnce.Do(func() {
		mb.enabled.Store(false)
		close(mb.stopCh)

		mb.mu.Lock()
		close(mb.metricsChannel)
		mb.mu.Unlock()
	})
}

// BroadcastImmediate sends a snapshot now (for critical events)
func (mb *MetricsBroadcaster) BroadcastImmediate() {
	mb.broadcast()
}

// Channel returns the read-only metrics channel for consumers
func (mb *MetricsBroadcaster) Channel() <-chan MetricsSnapshot {
	return mb.metricsChannel
}

func (mb *MetricsBroadcaster) broadcast() {
	mb.mu.Lock()
	defer mb.mu.Unlock()
	if !mb.enabled.Load() {
		return
	}

	// Non-blocking: a slow consumer misses snapshots rather than stalling the ticker
	select {
	case mb.metricsChannel <- mb.source.MetricsSnapshot():
	default:
	}
}
