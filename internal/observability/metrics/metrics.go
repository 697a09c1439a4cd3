package metrics

import (
	"errors"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const (
	OutcomeCreated       = "created"
	OutcomeUpdated       = "updated"
	OutcomeSkipped       = "skipped"
	OutcomeConflictRetry = "conflict_retry"
)

const (
	FeedStatusDone   = "done"
	FeedStatusFailed = "failed"
)

// Config carries the constant labels stamped on every series.
type Config struct {
	ServiceName string
	Environment string
}

// IngestMetrics captures indicator reconciliation and feed ingestion signals.
type IngestMetrics struct {
	reconcile    *prometheus.CounterVec
	lookups      prometheus.Counter
	lookupValues prometheus.Counter
	feedBatches  *prometheus.CounterVec
	feedDuration prometheus.Observer
}

func NewIngestMetrics(registerer prometheus.Registerer, cfg Config) (*IngestMetrics, error) {
	if registerer == nil {
		registerer = prometheus.DefaultRegisterer
	}

	serviceName := strings.TrimSpace(cfg.ServiceName)
	if serviceName == "" {
		serviceName = "threatintel"
	}
	environment := strings.TrimSpace(cfg.Environment)
	if environment == "" {
		environment = "unknown"
	}
	constLabels := prometheus.Labels{
		"service": serviceName,
		"env":     environment,
	}

	reconcile := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name:        "threatintel_indicator_reconcile_total",
		Help:        "Indicator inputs reconciled, by outcome.",
		ConstLabels: constLabels,
	}, []string{"outcome"})
	lookups := prometheus.NewCounter(prometheus.CounterOpts{
		Name:        "threatintel_indicator_lookup_total",
		Help:        "Lookup-by-value calls.",
		ConstLabels: constLabels,
	})
	lookupValues := prometheus.NewCounter(prometheus.CounterOpts{
		Name:        "threatintel_indicator_lookup_values_total",
		Help:        "Normalized values requested across lookup calls.",
		ConstLabels: constLabels,
	})
	feedBatches := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name:        "threatintel_feed_batches_total",
		Help:        "Feed batch files processed, by status.",
		ConstLabels: constLabels,
	}, []string{"status"})
	feedDuration := prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:        "threatintel_feed_batch_duration_seconds",
		Help:        "Wall time spent loading one feed batch.",
		Buckets:     []float64{0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30, 60, 120},
		ConstLabels: constLabels,
	})

	var err error
	if reconcile, err = register(registerer, reconcile); err != nil {
		return nil, err
	}
	if lookups, err = register(registerer, lookups); err != nil {
		return nil, err
	}
	if lookupValues, err = register(registerer, lookupValues); err != nil {
		return nil, err
	}
	if feedBatches, err = register(registerer, feedBatches); err != nil {
		return nil, err
	}
	if feedDuration, err = register(registerer, feedDuration); err != nil {
		return nil, err
	}

	return &IngestMetrics{
		reconcile:    reconcile,
		lookups:      lookups,
		lookupValues: lookupValues,
		feedBatches:  feedBatches,
		feedDuration: feedDuration,
	}, nil
}

// register returns the already-registered collector when an identical one exists.
func register[C prometheus.Collector](registerer prometheus.Registerer, c C) (C, error) {
	if err := registerer.Register(c); err != nil {
		var are prometheus.AlreadyRegisteredError
		if errors.As(err, &are) {
			if existing, ok := are.ExistingCollector.(C); ok {
				return existing, nil
			}
		}
		return c, err
	}
	return c, nil
}

func (m *IngestMetrics) RecordReconcile(outcome string) {
	if m == nil {
		return
	}
	m.reconcile.WithLabelValues(outcome).Inc()
}

func (m *IngestMetrics) RecordLookup(values int) {
	if m == nil {
		return
	}
	m.lookups.Inc()
	m.lookupValues.Add(float64(values))
}

func (m *IngestMetrics) RecordFeedBatch(status string, elapsed time.Duration) {
	if m == nil {
		return
	}
	m.feedBatches.WithLabelValues(status).Inc()
	m.feedDuration.Observe(elapsed.Seconds())
}
