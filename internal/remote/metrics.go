package remote

import (
	"sync"
	"time"
)

// metricsCapacity bounds the sample buffer; older samples are overwritten.
const metricsCapacity = 1000

// Sample records one completed request attempt (or cache hit).
type Sample struct {
	Method   string        `json:"method"`
	Endpoint string        `json:"endpoint"`
	Status   int           `json:"status"` // 0 for network failures
	Latency  time.Duration `json:"latency"`
	Cached   bool          `json:"cached"`
	At       time.Time     `json:"at"`
}

// Metrics is a fixed ring buffer holding the last metricsCapacity samples.
type Metrics struct {
	mu    sync.Mutex
	buf   [metricsCapacity]Sample
	next  int
	count int
}

// NewMetrics creates an empty metrics buffer.
func NewMetrics() *Metrics {
	return &Metrics{}
}

// Record appends a sample, overwriting the oldest once at capacity.
func (m *Metrics) Record(s Sample) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.buf[m.next] = s
	m.next = (m.next + 1) % metricsCapacity
	if m.count < metricsCapacity {
		m.count++
	}
}

// Samples returns the recorded samples, oldest first.
func (m *Metrics) Samples() []Sample {
	m.mu.Lock()
	defer m.mu.Unlock()

	out := make([]Sample, 0, m.count)
	start := 0
	if m.count == metricsCapacity {
		start = m.next
	}
	for i := range m.count {
		out = append(out, m.buf[(start+i)%metricsCapacity])
	}
	return out
}

// Len returns the number of stored samples.
func (m *Metrics) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.count
}
