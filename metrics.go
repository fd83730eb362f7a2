package serialcomm

import (
	"time"

	"go.uber.org/atomic"
)

// Metrics tracks serial communication health statistics for one Adapter
type Metrics struct {
	// Connection Statistics
	ConnectionAttempts  atomic.Int64 // Total connection attempts
	SuccessfulConnects  atomic.Int64 // Successful connections
	ConnectionFailures  atomic.Int64 // Failed connections
	Disconnections      atomic.Int64 // Total disconnects
	LastConnectTime     atomic.Int64 // Unix timestamp of last connect
	LastDisconnectTime  atomic.Int64 // Unix timestamp of last disconnect
	TotalUptime         atomic.Int64 // Total connected time in nanoseconds
	ConnectionStartTime atomic.Int64 // When current connection started

	// Read path
	TransportReads atomic.Int64 // Transport reads that returned data
	BytesRead      atomic.Int64 // Raw bytes read from the transport
	ChunksReceived atomic.Int64 // Decoded chunks delivered to the receive callback
	ReadErrors     atomic.Int64 // Read path failures
	LastReadTime   atomic.Int64 // Unix timestamp of last chunk

	// Write path
	WriteOperations  atomic.Int64 // Total Write calls with data
	SuccessfulWrites atomic.Int64 // Write calls accepted by the outbound pipe
	WriteErrors      atomic.Int64 // Write failures, including transport failures
	BytesWritten     atomic.Int64 // Raw bytes handed to the transport
	TotalWriteTime   atomic.Int64 // Total time spent in Write (ns)
	MaxWriteTime     atomic.Int64 // Slowest Write (ns)
	LastWriteTime    atomic.Int64 // Unix timestamp of last write

	// Health Indicators
	ConsecutiveFailures atomic.Int64 // Consecutive operation failures
	LastErrorTime       atomic.Int64 // Timestamp of last error
}

// HealthStatus represents the overall health of serial communication
type HealthStatus string

const (
	HealthStatusHealthy   HealthStatus = "healthy"
	HealthStatusDegraded  HealthStatus = "degraded"
	HealthStatusUnhealthy HealthStatus = "unhealthy"
	HealthStatusDown      HealthStatus = "down"
)

// MetricsSnapshot is a point-in-time copy of Metrics with derived values.
type MetricsSnapshot struct {
	Timestamp           time.Time     `json:"timestamp"`
	IsConnected         bool          `json:"is_connected"`
	ConnectionSuccess   float64       `json:"connection_success"`
	WriteSuccessRate    float64       `json:"write_success_rate"`
	AverageWriteLatency time.Duration `json:"average_write_latency"`
	MaxWriteLatency     time.Duration `json:"max_write_latency"`
	BytesPerSecond      float64       `json:"bytes_per_second"`
	UptimeSeconds       float64       `json:"uptime_seconds"`
	TotalBytesRead      int64         `json:"total_bytes_read"`
	TotalBytesWritten   int64         `json:"total_bytes_written"`
	TotalChunks         int64         `json:"total_chunks"`
	TotalWrites         int64         `json:"total_writes"`
	TotalErrors         int64         `json:"total_errors"`
	ConsecutiveFailures int64         `json:"consecutive_failures"`
	HealthStatus        HealthStatus  `json:"health_status"`
	HealthScore         float64       `json:"health_score"`
}

func (m *Metrics) recordConnect(now time.Time) {
	m.SuccessfulConnects.Inc()
	m.LastConnectTime.Store(now.Unix())
	m.ConnectionStartTime.Store(now.UnixNano())
	m.ConsecutiveFailures.Store(0)
}

func (m *Metrics) recordConnectFailure(now time.Time) {
	m.ConnectionFailures.Inc()
	m.recordFailure(now)
}

func (m *Metrics) recordDisconnect(now time.Time) {
	if start := m.ConnectionStartTime.Swap(0); start > 0 {
		m.TotalUptime.Add(now.UnixNano() - start)
	}
	m.Disconnections.Inc()
	m.LastDisconnectTime.Store(now.Unix())
}

func (m *Metrics) recordChunk(now time.Time) {
	m.ChunksReceived.Inc()
	m.LastReadTime.Store(now.Unix())
}

func (m *Metrics) recordReadError(now time.Time) {
	m.ReadErrors.Inc()
	m.recordFailure(now)
}

func (m *Metrics) recordWrite(err error, duration time.Duration, now time.Time) {
	m.WriteOperations.Inc()
	m.TotalWriteTime.Add(int64(duration))
	for {
		current := m.MaxWriteTime.Load()
		if int64(duration) <= current || m.MaxWriteTime.CompareAndSwap(current, int64(duration)) {
			break
		}
	}
	m.LastWriteTime.Store(now.Unix())
	if err != nil {
		m.WriteErrors.Inc()
		m.recordFailure(now)
		return
	}
	m.SuccessfulWrites.Inc()
	m.ConsecutiveFailures.Store(0)
}

func (m *Metrics) recordFailure(now time.Time) {
	m.ConsecutiveFailures.Inc()
	m.LastErrorTime.Store(now.Unix())
}

// Snapshot computes derived values at now.
func (m *Metrics) Snapshot(isConnected bool, now time.Time) MetricsSnapshot {
	s := MetricsSnapshot{
		Timestamp:           now,
		IsConnected:         isConnected,
		ConnectionSuccess:   m.calculateConnectionSuccessRate(),
		WriteSuccessRate:    m.calculateWriteSuccessRate(),
		AverageWriteLatency: m.calculateAverageWriteLatency(),
		MaxWriteLatency:     time.Duration(m.MaxWriteTime.Load()),
		TotalBytesRead:      m.BytesRead.Load(),
		TotalBytesWritten:   m.BytesWritten.Load(),
		TotalChunks:         m.ChunksReceived.Load(),
		TotalWrites:         m.WriteOperations.Load(),
		TotalErrors:         m.ReadErrors.Load() + m.WriteErrors.Load(),
		ConsecutiveFailures: m.ConsecutiveFailures.Load(),
	}

	start := m.ConnectionStartTime.Load()
	if isConnected && start > 0 {
		if d := now.UnixNano() - start; d > 0 {
			s.UptimeSeconds = float64(d) / float64(time.Second)
			s.BytesPerSecond = float64(s.TotalBytesRead+s.TotalBytesWritten) / s.UptimeSeconds
		}
	}

	s.HealthStatus = m.assessHealthStatus(&s)
	s.HealthScore = m.calculateHealthScore(&s)
	return s
}

func (m *Metrics) calculateConnectionSuccessRate() float64 {
	attempts := m.ConnectionAttempts.Load()
	if attempts == 0 {
		return 100.0
	}
	return float64(m.SuccessfulConnects.Load()) / float64(attempts) * 100
}

func (m *Metrics) calculateWriteSuccessRate() float64 {
	writes := m.WriteOperations.Load()
	if writes == 0 {
		return 100.0
	}
	return float64(m.SuccessfulWrites.Load()) / float64(writes) * 100
}

func (m *Metrics) calculateAverageWriteLatency() time.Duration {
	writes := m.WriteOperations.Load()
	if writes == 0 {
		return 0
	}
	return time.Duration(m.TotalWriteTime.Load() / writes)
}

func (m *Metrics) assessHealthStatus(s *MetricsSnapshot) HealthStatus {
	if !s.IsConnected {
		return HealthStatusDown
	}
	if s.ConsecutiveFailures > 5 || s.WriteSuccessRate < 50.0 {
		return HealthStatusUnhealthy
	}
	if s.ConsecutiveFailures > 0 || s.WriteSuccessRate < 90.0 {
		return HealthStatusDegraded
	}
	return HealthStatusHealthy
}

func (m *Metrics) calculateHealthScore(s *MetricsSnapshot) float64 {
	if !s.IsConnected {
		return 0.0
	}

	score := 100.0
	score -= (100.0 - s.WriteSuccessRate) * 2
	// Consecutive failures carry a heavier penalty
	score -= float64(s.ConsecutiveFailures) * 10

	if score < 0 {
		score = 0
	}
	return score
}
