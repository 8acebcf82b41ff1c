package validator

import (
	"sync/atomic"
	"time"
)

// latencyBucketBoundsMs are the inclusive upper bounds, in milliseconds,
// of each receive-latency histogram bucket; one implicit +Inf bucket
// follows the last bound. Grounded on the atomic-counter metrics idiom
// of certenIO-certen-validator's liteclient/types/metrics.go, extended
// with bucketed counts for the histogram spec.md §4.10 calls for.
var latencyBucketBoundsMs = [...]int64{1, 5, 10, 25, 50, 100, 250, 500, 1000}

// Metrics accumulates the pre-consensus ingress counters spec.md §4.10
// names: transactions_received, transactions_received_failed, and a
// receive-latency histogram.
type Metrics struct {
	transactionsReceived       int64
	transactionsReceivedFailed int64
	latencyBuckets             [len(latencyBucketBoundsMs) + 1]int64
}

// NewMetrics returns a zeroed metrics accumulator.
func NewMetrics() *Metrics {
	return &Metrics{}
}

func (m *Metrics) recordReceived() {
	atomic.AddInt64(&m.transactionsReceived, 1)
}

func (m *Metrics) recordReceivedFailed() {
	atomic.AddInt64(&m.transactionsReceivedFailed, 1)
}

func (m *Metrics) observeReceiveLatency(d time.Duration) {
	ms := d.Milliseconds()
	for i, bound := range latencyBucketBoundsMs {
		if ms <= bound {
			atomic.AddInt64(&m.latencyBuckets[i], 1)
			return
		}
	}
	atomic.AddInt64(&m.latencyBuckets[len(latencyBucketBoundsMs)], 1)
}

// Snapshot is a point-in-time, race-free read of every counter.
type Snapshot struct {
	TransactionsReceived       int64
	TransactionsReceivedFailed int64
	// LatencyBuckets[i] counts observations <= latencyBucketBoundsMs[i];
	// the final entry counts everything above the largest bound.
	LatencyBuckets []int64
}

// Snapshot reads every counter atomically.
func (m *Metrics) Snapshot() Snapshot {
	buckets := make([]int64, len(m.latencyBuckets))
	for i := range buckets {
		buckets[i] = atomic.LoadInt64(&m.latencyBuckets[i])
	}
	return Snapshot{
		TransactionsReceived:       atomic.LoadInt64(&m.transactionsReceived),
		TransactionsReceivedFailed: atomic.LoadInt64(&m.transactionsReceivedFailed),
		LatencyBuckets:             buckets,
	}
}
