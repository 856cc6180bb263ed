package channeld

import "github.com/prometheus/client_golang/prometheus"

// prometheusDescs are the fixed descriptors Metrics exposes as a
// prometheus.Collector. Grounded on aistore's pattern of implementing
// Collector directly over an existing atomics-based stats struct rather
// than maintaining a second, parallel set of prometheus metric objects.
var (
	dispatchCountDesc = prometheus.NewDesc(
		"channeld_dispatch_total", "Total Queue.Send calls.", nil, nil)
	asyncDispatchCountDesc = prometheus.NewDesc(
		"channeld_async_dispatch_total", "Queue.Send calls for an async tag.", nil, nil)
	asyncCompletionsDesc = prometheus.NewDesc(
		"channeld_async_completions_total", "AsyncRegistry.Complete calls that resolved a known cookie.", nil, nil)
	unknownCookiesDesc = prometheus.NewDesc(
		"channeld_unknown_cookies_total", "AsyncRegistry.Complete calls for an unrecognized cookie.", nil, nil)
	pendingCollapsesDesc = prometheus.NewDesc(
		"channeld_pending_collapses_total", "WAKEUP/OOM sends skipped because the pending bit was already set.", nil, nil)
	bridgeReadMessagesDesc = prometheus.NewDesc(
		"channeld_bridge_read_messages_total", "Complete messages assembled off a character device.", nil, nil)
	bridgeReadBytesDesc = prometheus.NewDesc(
		"channeld_bridge_read_bytes_total", "Bytes read from character devices.", nil, nil)
	bridgeWriteSuccessDesc = prometheus.NewDesc(
		"channeld_bridge_write_success_total", "Successful character-device writes.", nil, nil)
	bridgeWriteFailureDesc = prometheus.NewDesc(
		"channeld_bridge_write_failure_total", "Failed character-device writes.", nil, nil)
	queueDepthDesc = prometheus.NewDesc(
		"channeld_queue_depth", "Average observed dispatch queue depth.", nil, nil)
	asyncLatencyDesc = prometheus.NewDesc(
		"channeld_async_latency_seconds", "Average dispatch-to-completion latency for async commands.", nil, nil)
)

// Describe implements prometheus.Collector.
func (m *Metrics) Describe(ch chan<- *prometheus.Desc) {
	ch <- dispatchCountDesc
	ch <- asyncDispatchCountDesc
	ch <- asyncCompletionsDesc
	ch <- unknownCookiesDesc
	ch <- pendingCollapsesDesc
	ch <- bridgeReadMessagesDesc
	ch <- bridgeReadBytesDesc
	ch <- bridgeWriteSuccessDesc
	ch <- bridgeWriteFailureDesc
	ch <- queueDepthDesc
	ch <- asyncLatencyDesc
}

// Collect implements prometheus.Collector, scraping a fresh Snapshot on
// every call.
func (m *Metrics) Collect(ch chan<- prometheus.Metric) {
	snap := m.Snapshot()
	ch <- prometheus.MustNewConstMetric(dispatchCountDesc, prometheus.CounterValue, float64(snap.DispatchCount))
	ch <- prometheus.MustNewConstMetric(asyncDispatchCountDesc, prometheus.CounterValue, float64(snap.AsyncDispatchCount))
	ch <- prometheus.MustNewConstMetric(asyncCompletionsDesc, prometheus.CounterValue, float64(snap.AsyncCompletions))
	ch <- prometheus.MustNewConstMetric(unknownCookiesDesc, prometheus.CounterValue, float64(snap.UnknownCookies))
	ch <- prometheus.MustNewConstMetric(pendingCollapsesDesc, prometheus.CounterValue, float64(snap.PendingCollapses))
	ch <- prometheus.MustNewConstMetric(bridgeReadMessagesDesc, prometheus.CounterValue, float64(snap.BridgeReadMessages))
	ch <- prometheus.MustNewConstMetric(bridgeReadBytesDesc, prometheus.CounterValue, float64(snap.BridgeReadBytes))
	ch <- prometheus.MustNewConstMetric(bridgeWriteSuccessDesc, prometheus.CounterValue, float64(snap.BridgeWriteSuccess))
	ch <- prometheus.MustNewConstMetric(bridgeWriteFailureDesc, prometheus.CounterValue, float64(snap.BridgeWriteFailure))
	ch <- prometheus.MustNewConstMetric(queueDepthDesc, prometheus.GaugeValue, snap.AvgQueueDepth)
	ch <- prometheus.MustNewConstMetric(asyncLatencyDesc, prometheus.GaugeValue, float64(snap.AvgLatencyNs)/1e9)
}

var _ prometheus.Collector = (*Metrics)(nil)
