package channeld

import (
	"sync/atomic"
	"time"

	"github.com/spice-project/channeld/internal/interfaces"
)

// LatencyBuckets defines the async-completion latency histogram buckets
// in nanoseconds, covering 1us to 10s with logarithmic spacing, applied
// here to the dispatch-to-completion interval rather than raw I/O.
var LatencyBuckets = []uint64{
	1_000,
	10_000,
	100_000,
	1_000_000,
	10_000_000,
	100_000_000,
	1_000_000_000,
	10_000_000_000,
}

const numLatencyBuckets = 8

// Metrics tracks dispatch/channel/bridge statistics for a running
// channeld instance.
type Metrics struct {
	// Dispatch counters
	DispatchCount      atomic.Uint64 // total Send calls, sync + async
	AsyncDispatchCount atomic.Uint64 // Send calls for an async tag
	AsyncCompletions   atomic.Uint64 // AsyncRegistry.Complete calls that found a cookie
	UnknownCookies     atomic.Uint64 // RecordUnknownCookie calls; AsyncRegistry.Complete does not report unknown cookies to the Observer, so only direct callers feed it
	PendingCollapses   atomic.Uint64 // WAKEUP/OOM sends skipped because already pending (P3)

	// Channel/bridge counters
	BridgeReadMessages atomic.Uint64
	BridgeReadBytes    atomic.Uint64
	BridgeWriteSuccess atomic.Uint64
	BridgeWriteFailure atomic.Uint64
	BridgeWriteBytes   atomic.Uint64

	// Queue depth statistics
	QueueDepthTotal atomic.Uint64
	QueueDepthCount atomic.Uint64
	MaxQueueDepth   atomic.Uint32

	// Async-completion latency
	TotalLatencyNs atomic.Uint64
	OpCount        atomic.Uint64
	LatencyHist    [numLatencyBuckets]atomic.Uint64

	StartTime atomic.Int64
}

// NewMetrics creates a Metrics instance with StartTime set to now.
func NewMetrics() *Metrics {
	m := &Metrics{}
	m.StartTime.Store(time.Now().UnixNano())
	return m
}

// RecordDispatch records one Queue.Send call.
func (m *Metrics) RecordDispatch(async bool) {
	m.DispatchCount.Add(1)
	if async {
		m.AsyncDispatchCount.Add(1)
	}
}

// RecordAsyncComplete records one AsyncRegistry.Complete call that
// resolved a known cookie, with its dispatch-to-completion latency.
func (m *Metrics) RecordAsyncComplete(latencyNs uint64) {
	m.AsyncCompletions.Add(1)
	m.TotalLatencyNs.Add(latencyNs)
	m.OpCount.Add(1)
	for i, bucket := range LatencyBuckets {
		if latencyNs <= bucket {
			m.LatencyHist[i].Add(1)
		}
	}
}

// RecordUnknownCookie records a Complete call for a cookie the registry
// no longer (or never did) recognize.
func (m *Metrics) RecordUnknownCookie() {
	m.UnknownCookies.Add(1)
}

// RecordPendingCollapse records a WAKEUP/OOM send skipped because the
// corresponding pending bit was already set.
func (m *Metrics) RecordPendingCollapse() {
	m.PendingCollapses.Add(1)
}

// RecordBridgeRead records one complete message assembled off a
// character device.
func (m *Metrics) RecordBridgeRead(bytes int) {
	m.BridgeReadMessages.Add(1)
	m.BridgeReadBytes.Add(uint64(bytes))
}

// RecordBridgeWrite records one write attempt to a character device.
func (m *Metrics) RecordBridgeWrite(bytes int, success bool) {
	m.BridgeWriteBytes.Add(uint64(bytes))
	if success {
		m.BridgeWriteSuccess.Add(1)
	} else {
		m.BridgeWriteFailure.Add(1)
	}
}

// RecordQueueDepth records a queue-depth sample.
func (m *Metrics) RecordQueueDepth(depth int) {
	m.QueueDepthTotal.Add(uint64(depth))
	m.QueueDepthCount.Add(1)
	d := uint32(depth)
	for {
		current := m.MaxQueueDepth.Load()
		if d <= current {
			break
		}
		if m.MaxQueueDepth.CompareAndSwap(current, d) {
			break
		}
	}
}

// MetricsSnapshot is a point-in-time read of Metrics' atomics.
type MetricsSnapshot struct {
	DispatchCount      uint64
	AsyncDispatchCount uint64
	AsyncCompletions   uint64
	UnknownCookies     uint64
	PendingCollapses   uint64

	BridgeReadMessages uint64
	BridgeReadBytes    uint64
	BridgeWriteSuccess uint64
	BridgeWriteFailure uint64
	BridgeWriteBytes   uint64

	AvgQueueDepth float64
	MaxQueueDepth uint32

	AvgLatencyNs     uint64
	LatencyHistogram [numLatencyBuckets]uint64

	UptimeNs uint64
}

// Snapshot returns a consistent-enough point-in-time copy of the
// counters: no global lock, atomics are read independently.
func (m *Metrics) Snapshot() MetricsSnapshot {
	snap := MetricsSnapshot{
		DispatchCount:      m.DispatchCount.Load(),
		AsyncDispatchCount: m.AsyncDispatchCount.Load(),
		AsyncCompletions:   m.AsyncCompletions.Load(),
		UnknownCookies:     m.UnknownCookies.Load(),
		PendingCollapses:   m.PendingCollapses.Load(),
		BridgeReadMessages: m.BridgeReadMessages.Load(),
		BridgeReadBytes:    m.BridgeReadBytes.Load(),
		BridgeWriteSuccess: m.BridgeWriteSuccess.Load(),
		BridgeWriteFailure: m.BridgeWriteFailure.Load(),
		BridgeWriteBytes:   m.BridgeWriteBytes.Load(),
		MaxQueueDepth:      m.MaxQueueDepth.Load(),
		UptimeNs:           uint64(time.Now().UnixNano() - m.StartTime.Load()),
	}

	if count := m.QueueDepthCount.Load(); count > 0 {
		snap.AvgQueueDepth = float64(m.QueueDepthTotal.Load()) / float64(count)
	}
	if opCount := m.OpCount.Load(); opCount > 0 {
		snap.AvgLatencyNs = m.TotalLatencyNs.Load() / opCount
	}
	for i := 0; i < numLatencyBuckets; i++ {
		snap.LatencyHistogram[i] = m.LatencyHist[i].Load()
	}
	return snap
}

// Reset zeroes every counter. Tests only.
func (m *Metrics) Reset() {
	*m = Metrics{}
	m.StartTime.Store(time.Now().UnixNano())
}

// MetricsObserver adapts Metrics to internal/interfaces.Observer so it
// can be handed to internal/dispatch, internal/worker and
// internal/smartcard without those packages importing the root package.
type MetricsObserver struct {
	metrics *Metrics
}

// NewMetricsObserver wraps m as an Observer.
func NewMetricsObserver(m *Metrics) *MetricsObserver {
	return &MetricsObserver{metrics: m}
}

func (o *MetricsObserver) ObserveDispatch(tag string, async bool) {
	o.metrics.RecordDispatch(async)
}

func (o *MetricsObserver) ObserveAsyncComplete(tag string, latencyNs uint64) {
	o.metrics.RecordAsyncComplete(latencyNs)
}

func (o *MetricsObserver) ObservePendingCollapse(tag string) {
	o.metrics.RecordPendingCollapse()
}

func (o *MetricsObserver) ObserveBridgeRead(bytes int, messages int) {
	for i := 0; i < messages; i++ {
		o.metrics.RecordBridgeRead(bytes)
	}
}

func (o *MetricsObserver) ObserveBridgeWrite(bytes int, success bool) {
	o.metrics.RecordBridgeWrite(bytes, success)
}

func (o *MetricsObserver) ObserveQueueDepth(depth int) {
	o.metrics.RecordQueueDepth(depth)
}

var _ interfaces.Observer = (*MetricsObserver)(nil)
