package metrics

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestIngestMetrics_Record(t *testing.T) {
	registry := prometheus.NewRegistry()
	m, err := NewIngestMetrics(registry, Config{ServiceName: "threatintel", Environment: "test"})
	require.NoError(t, err)

	m.RecordReconcile(OutcomeCreated)
	m.RecordReconcile(OutcomeCreated)
	m.RecordReconcile(OutcomeSkipped)
	m.RecordLookup(3)
	m.RecordFeedBatch(FeedStatusDone, 20*time.Millisecond)

	assert.Equal(t, 2.0, testutil.ToFloat64(m.reconcile.WithLabelValues(OutcomeCreated)))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.reconcile.WithLabelValues(OutcomeSkipped)))
	assert.Equal(t, 0.0, testutil.ToFloat64(m.reconcile.WithLabelValues(OutcomeUpdated)))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.lookups))
	assert.Equal(t, 3.0, testutil.ToFloat64(m.lookupValues))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.feedBatches.WithLabelValues(FeedStatusDone)))
}

func TestIngestMetrics_ReusesRegisteredCollectors(t *testing.T) {
	registry := prometheus.NewRegistry()
	cfg := Config{ServiceName: "threatintel", Environment: "test"}

	first, err := NewIngestMetrics(registry, cfg)
	require.NoError(t, err)
	second, err := NewIngestMetrics(registry, cfg)
	require.NoError(t, err)

	first.RecordReconcile(OutcomeUpdated)
	second.RecordReconcile(OutcomeUpdated)

	assert.Equal(t, 2.0, testutil.ToFloat64(first.reconcile.WithLabelValues(OutcomeUpdated)))
}

func TestIngestMetrics_NilSafe(t *testing.T) {
	var m *IngestMetrics
	assert.NotPanics(t, func() {
		m.RecordReconcile(OutcomeCreated)
		m.RecordLookup(1)
		m.RecordFeedBatch(FeedStatusFailed, time.Second)
	})
}
