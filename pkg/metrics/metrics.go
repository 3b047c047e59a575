// Package metrics provides Prometheus instrumentation for recordflow.
//
// All collectors are registered with the default registry on package load
// and exposed by the CLI through promhttp when --metrics-addr is set.
//
// # Basic Usage
//
//	// Count records leaving a processor
//	metrics.RecordsProcessed.WithLabelValues("main", "add_tags", metrics.StatusSuccess).Add(float64(n))
//
//	// Track processing latency
//	timer := metrics.NewTimer("add_tags")
//	out := proc.Process(ctx, batch)
//	metrics.ProcessingLatency.WithLabelValues("main", "add_tags").Observe(timer.Stop().Seconds())
//
//	// Track throughput of a stream
//	tracker := metrics.NewThroughputTracker("main")
//	tracker.Increment(int64(len(batch)))
//	rps := tracker.GetAndReset()
package metrics

import (
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Label values shared by several collectors.
const (
	StatusSuccess = "success"
	StatusInvalid = "invalid"
	StatusFailure = "failure"

	OutcomeInitialized = "initialized"
	OutcomeFailed      = "failed"
	OutcomeAbsent      = "absent"

	CacheHit   = "hit"
	CacheMiss  = "miss"
	CacheEvict = "evict"
)

var (
	// RecordsProcessed counts records emitted by each processor.
	// Labels: stream, processor, status (success/invalid)
	RecordsProcessed = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "recordflow_records_processed_total",
			Help: "Total number of records emitted by processors",
		},
		[]string{"stream", "processor", "status"},
	)

	// ProcessingLatency tracks the time a processor spends on one batch.
	ProcessingLatency = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name: "recordflow_processing_latency_seconds",
			Help: "Processor batch latency in seconds",
			Buckets: []float64{
				0.00001, // 10μs
				0.0001,  // 100μs
				0.001,   // 1ms
				0.01,    // 10ms
				0.1,     // 100ms
				1,       // 1s
				10,      // 10s
			},
		},
		[]string{"stream", "processor"},
	)

	// RecordErrors counts errors attached to records, by kind.
	RecordErrors = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "recordflow_record_errors_total",
			Help: "Total number of errors attached to records",
		},
		[]string{"stream", "processor", "kind"},
	)

	// ServiceResolutions counts controller service resolution outcomes.
	// Labels: class, outcome (initialized/failed/absent)
	ServiceResolutions = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "recordflow_service_resolutions_total",
			Help: "Controller service resolution outcomes",
		},
		[]string{"class", "outcome"},
	)

	// ActiveServices is the number of initialized controller services.
	ActiveServices = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "recordflow_active_services",
			Help: "Number of initialized controller services",
		},
	)

	// CacheOperations counts cache service lookups and evictions.
	CacheOperations = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "recordflow_cache_operations_total",
			Help: "Cache service operations by result",
		},
		[]string{"service", "result"},
	)

	// RecordsPublished counts records handed to sink services.
	RecordsPublished = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "recordflow_records_published_total",
			Help: "Records published by sink services",
		},
		[]string{"service", "status"},
	)

	// BytesSerialized counts encoded bytes by format and direction.
	BytesSerialized = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "recordflow_serialized_bytes_total",
			Help: "Bytes written or read by record serializers",
		},
		[]string{"format", "direction"},
	)

	// Throughput tracks records per second per stream.
	Throughput = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "recordflow_throughput_records_per_second",
			Help: "Current throughput in records per second",
		},
		[]string{"stream"},
	)
)

// Timer measures operation durations.
type Timer struct {
	start time.Time
	name  string
}

// NewTimer creates a new timer and starts timing immediately.
func NewTimer(name string) *Timer {
	return &Timer{
		start: time.Now(),
		name:  name,
	}
}

// Name returns the timer name.
func (t *Timer) Name() string {
	return t.name
}

// Stop returns the elapsed time since creation. It may be called repeatedly.
func (t *Timer) Stop() time.Duration {
	return time.Since(t.start)
}

// ThroughputTracker tracks records per second over time windows.
// Safe for concurrent use.
type ThroughputTracker struct {
	mu        sync.Mutex
	count     int64
	total     int64
	lastReset time.Time
	stream    string
}

// NewThroughputTracker creates a tracker for the named stream.
func NewThroughputTracker(stream string) *ThroughputTracker {
	return &ThroughputTracker{
		lastReset: time.Now(),
		stream:    stream,
	}
}

// Increment adds n to the record count.
func (t *ThroughputTracker) Increment(n int64) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.count += n
	t.total += n
}

// Total returns the number of records counted since creation.
func (t *ThroughputTracker) Total() int64 {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.total
}

// GetAndReset computes records/second since the last reset, publishes it
// to the Throughput gauge and starts a new window.
func (t *ThroughputTracker) GetAndReset() float64 {
	t.mu.Lock()
	defer t.mu.Unlock()

	elapsed := time.Since(t.lastReset).Seconds()
	if elapsed == 0 {
		return 0
	}

	throughput := float64(t.count) / elapsed

	t.count = 0
	t.lastReset = time.Now()

	Throughput.WithLabelValues(t.stream).Set(throughput)

	return throughput
}
