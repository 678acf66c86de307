package search

import (
	"sync/atomic"
	"time"
)

type MetricsSnapshot struct {
	QueriesTotal      int64   `json:"queries_total"`
	QueriesErrors     int64   `json:"queries_errors"`
	RangesServed      int64   `json:"ranges_served"`
	BytesServed       int64   `json:"bytes_served"`
	BytesSkipped      int64   `json:"bytes_skipped"`
	AvgQueryLatencyMs float64 `json:"avg_query_latency_ms"`
}

type metricsCounters struct {
	queriesTotal   atomic.Int64
	queriesErrors  atomic.Int64
	rangesServed   atomic.Int64
	bytesServed    atomic.Int64
	bytesSkipped   atomic.Int64
	totalLatencyNs atomic.Int64
	latencySamples atomic.Int64
}

func (m *metricsCounters) recordQuery(d time.Duration) {
	m.totalLatencyNs.Add(d.Nanoseconds())
	m.latencySamples.Add(1)
}

func (e *Engine) SnapshotMetrics() MetricsSnapshot {
	samples := e.metrics.latencySamples.Load()
	avg := 0.0
	if samples > 0 {
		avg = float64(e.metrics.totalLatencyNs.Load()) / float64(samples) / 1e6
	}
	return MetricsSnapshot{
		QueriesTotal:      e.metrics.queriesTotal.Load(),
		QueriesErrors:     e.metrics.queriesErrors.Load(),
		RangesServed:      e.metrics.rangesServed.Load(),
		BytesServed:       e.metrics.bytesServed.Load(),
		BytesSkipped:      e.metrics.bytesSkipped.Load(),
		AvgQueryLatencyMs: avg,
	}
}
