package metrics

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
)

func TestThroughputTracker(t *testing.T) {
	tracker := NewThroughputTracker("metrics_test")
	tracker.Increment(10)
	tracker.Increment(5)
	time.Sleep(5 * time.Millisecond)

	rps := tracker.GetAndReset()
	assert.Greater(t, rps, 0.0)
	assert.Equal(t, int64(15), tracker.Total())
	assert.Equal(t, rps, testutil.ToFloat64(Throughput.WithLabelValues("metrics_test")))
}

func TestTimer(t *testing.T) {
	timer := NewTimer("op")
	time.Sleep(time.Millisecond)
	assert.Equal(t, "op", timer.Name())
	assert.GreaterOrEqual(t, timer.Stop(), time.Millisecond)
}

func TestCounters(t *testing.T) {
	before := testutil.ToFloat64(ServiceResolutions.WithLabelValues("metrics.test", OutcomeFailed))
	ServiceResolutions.WithLabelValues("metrics.test", OutcomeFailed).Inc()
	assert.Equal(t, before+1, testutil.ToFloat64(ServiceResolutions.WithLabelValues("metrics.test", OutcomeFailed)))
}
