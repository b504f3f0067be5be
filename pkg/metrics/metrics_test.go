package metrics

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
)

func TestInit_Idempotent(t *testing.T) {
	assert.NotPanics(t, func() {
		Init()
		Init()
	})
}

func TestRecordSourceFetch(t *testing.T) {
	before := testutil.ToFloat64(SourceFetchesTotal.WithLabelValues("metrics-test", "network_failure"))

	RecordSourceFetch("metrics-test", "network_failure", 150*time.Millisecond)

	after := testutil.ToFloat64(SourceFetchesTotal.WithLabelValues("metrics-test", "network_failure"))
	assert.Equal(t, before+1, after)
}

func TestRecordBreakerState(t *testing.T) {
	RecordBreakerState("metrics-test", true)
	assert.Equal(t, 1.0, testutil.ToFloat64(BreakerOpen.WithLabelValues("metrics-test")))

	RecordBreakerState("metrics-test", false)
	assert.Equal(t, 0.0, testutil.ToFloat64(BreakerOpen.WithLabelValues("metrics-test")))
}

func TestRecordCacheLookup(t *testing.T) {
	before := testutil.ToFloat64(CacheLookupsTotal.WithLabelValues("hit"))
	RecordCacheLookup("hit")
	RecordCacheLookup("hit")
	assert.Equal(t, before+2, testutil.ToFloat64(CacheLookupsTotal.WithLabelValues("hit")))
}
