package junction

import "sync/atomic"

// Metrics tracks atomic transfer/termination/wait counters for a
// Junction. It deliberately stays flat rather than broken out per
// freight variant (octets/sockets/ports/datagrams) or per cause; that
// finer-grained breakdown belongs to PrometheusObserver's labeled
// counters instead of duplicating it here.
type Metrics struct {
	TransferCount  atomic.Uint64
	TransferBytes  atomic.Uint64
	TransferErrors atomic.Uint64

	TerminateCount atomic.Uint64

	WaitCount        atomic.Uint64
	WaitBlockedCount atomic.Uint64
	WaitLatencyNs    atomic.Uint64
}

// NewMetrics creates a new, zeroed Metrics.
func NewMetrics() *Metrics {
	return &Metrics{}
}

// RecordTransfer records one freight I/O attempt (phase 7).
func (m *Metrics) RecordTransfer(freight string, bytes uint64, success bool) {
	m.TransferCount.Add(1)
	m.TransferBytes.Add(bytes)
	if !success {
		m.TransferErrors.Add(1)
	}
}

// RecordTerminate records one Channel reaching tev_terminate.
func (m *Metrics) RecordTerminate(freight string, cause string) {
	m.TerminateCount.Add(1)
}

// RecordWait records one phase-5 collect call.
func (m *Metrics) RecordWait(blocked bool, latencyNs uint64) {
	m.WaitCount.Add(1)
	if blocked {
		m.WaitBlockedCount.Add(1)
	}
	m.WaitLatencyNs.Add(latencyNs)
}

// MetricsSnapshot is a point-in-time copy of Metrics, safe to read without
// racing concurrent Record* calls.
type MetricsSnapshot struct {
	TransferCount    uint64
	TransferBytes    uint64
	TransferErrors   uint64
	TerminateCount   uint64
	WaitCount        uint64
	WaitBlockedCount uint64
	AvgWaitLatencyNs uint64
}

// Snapshot takes a consistent read of the atomic counters.
func (m *Metrics) Snapshot() MetricsSnapshot {
	s := MetricsSnapshot{
		TransferCount:    m.TransferCount.Load(),
		TransferBytes:    m.TransferBytes.Load(),
		TransferErrors:   m.TransferErrors.Load(),
		TerminateCount:   m.TerminateCount.Load(),
		WaitCount:        m.WaitCount.Load(),
		WaitBlockedCount: m.WaitBlockedCount.Load(),
	}
	if s.WaitCount > 0 {
		s.AvgWaitLatencyNs = m.WaitLatencyNs.Load() / s.WaitCount
	}
	return s
}

// MetricsObserver implements interfaces.Observer by recording into a
// Metrics.
type MetricsObserver struct {
	metrics *Metrics
}

// NewMetricsObserver creates an Observer that records into m.
func NewMetricsObserver(m *Metrics) *MetricsObserver {
	return &MetricsObserver{metrics: m}
}

func (o *MetricsObserver) ObserveTransfer(freight string, bytes uint64, latencyNs uint64, success bool) {
	o.metrics.RecordTransfer(freight, bytes, success)
}

func (o *MetricsObserver) ObserveTerminate(freight string, cause string) {
	o.metrics.RecordTerminate(freight, cause)
}

func (o *MetricsObserver) ObserveWait(willWait bool, latencyNs uint64) {
	o.metrics.RecordWait(willWait, latencyNs)
}

func (o *MetricsObserver) ObserveQueueDepth(depth int) {}

// NoOpObserver discards every observation.
type NoOpObserver struct{}

func (NoOpObserver) ObserveTransfer(string, uint64, uint64, bool) {}
func (NoOpObserver) ObserveTerminate(string, string)              {}
func (NoOpObserver) ObserveWait(bool, uint64)                     {}
func (NoOpObserver) ObserveQueueDepth(int)                        {}
