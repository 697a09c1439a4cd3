package feed

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/oklog/ulid/v2"
	"github.com/smallbiznis/threatintel/internal/clock"
	"github.com/smallbiznis/threatintel/internal/config"
	indicatordomain "github.com/smallbiznis/threatintel/internal/indicator/domain"
	malwaredomain "github.com/smallbiznis/threatintel/internal/malware/domain"
	obslogger "github.com/smallbiznis/threatintel/internal/observability/logger"
	obsmetrics "github.com/smallbiznis/threatintel/internal/observability/metrics"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

var tracer = otel.Tracer("threatintel/feed")

type LoaderParams struct {
	fx.In

	Log          *zap.Logger
	Clock        clock.Clock
	Ingest       *config.IngestConfigHolder
	IndicatorSvc indicatordomain.Service
	MalwareSvc   malwaredomain.Service
	Metrics      *obsmetrics.IngestMetrics `optional:"true"`
}

type Loader struct {
	log          *zap.Logger
	clock        clock.Clock
	ingest       *config.IngestConfigHolder
	indicatorSvc indicatordomain.Service
	malwareSvc   malwaredomain.Service
	metrics      *obsmetrics.IngestMetrics
}

func NewLoader(p LoaderParams) *Loader {
	return &Loader{
		log:          p.Log.Named("feed.loader"),
		clock:        p.Clock,
		ingest:       p.Ingest,
		indicatorSvc: p.IndicatorSvc,
		malwareSvc:   p.MalwareSvc,
		metrics:      p.Metrics,
	}
}

func (l *Loader) LoadFile(ctx context.Context, path string) (*Result, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	batch, err := Decode(f)
	if err != nil {
		l.metrics.RecordFeedBatch(obsmetrics.FeedStatusFailed, 0)
		return nil, fmt.Errorf("%s: %w", filepath.Base(path), err)
	}
	if batch.Source == "" {
		batch.Source = filepath.Base(path)
	}
	return l.Load(ctx, batch)
}

// Load reconciles one batch. Indicators are applied before malware entries;
// a failure stops the batch and leaves earlier writes in place.
func (l *Loader) Load(ctx context.Context, batch *Batch) (result *Result, err error) {
	if batch == nil {
		return nil, ErrInvalidBatch
	}

	started := time.Now()
	runID := ulid.Make().String()
	log := obslogger.WithRun(l.log, runID, batch.Source)

	ctx, span := tracer.Start(ctx, "feed.Load")
	span.SetAttributes(
		attribute.String("feed.run_id", runID),
		attribute.String("feed.source", batch.Source),
		attribute.Int("feed.size", batch.Size()),
	)
	defer func() {
		status := obsmetrics.FeedStatusDone
		if err != nil {
			status = obsmetrics.FeedStatusFailed
			span.RecordError(err)
			span.SetStatus(codes.Error, "feed batch failed")
			log.Warn("feed batch failed", zap.Error(err))
		}
		l.metrics.RecordFeedBatch(status, time.Since(started))
		span.End()
	}()

	limit := l.ingest.Get().MaxBatchSize
	if size := batch.Size(); size > limit {
		return nil, fmt.Errorf("%w: %d indicators, limit %d", ErrBatchTooLarge, size, limit)
	}

	if batch.TTLDays < 0 {
		return nil, fmt.Errorf("%w: negative ttlDays %d", ErrInvalidBatch, batch.TTLDays)
	}

	now := clock.EpochNow(l.clock)
	var expires *int64
	if batch.TTLDays > 0 {
		at := clock.DaysAgo(l.clock, -batch.TTLDays)
		expires = &at
	}
	result = &Result{
		RunID:        runID,
		Source:       batch.Source,
		IndicatorIDs: []string{},
		MalwareIDs:   make([]string, 0, len(batch.Malware)),
	}

	ids, err := l.indicatorSvc.EnsureIndicators(ctx, withDefaultDates(batch.Indicators, now, expires))
	if err != nil {
		return nil, err
	}
	result.IndicatorIDs = ids

	for _, entry := range batch.Malware {
		entry.Indicators = withDefaultDates(entry.Indicators, now, expires)
		resp, err := l.malwareSvc.Upsert(ctx, entry)
		if err != nil {
			return nil, fmt.Errorf("malware %q: %w", entry.Name, err)
		}
		result.MalwareIDs = append(result.MalwareIDs, resp.ID)
	}

	log.Info("feed batch loaded",
		zap.Int("indicators", len(result.IndicatorIDs)),
		zap.Int("malware", len(result.MalwareIDs)),
		zap.Duration("elapsed", time.Since(started)),
	)
	return result, nil
}

// withDefaultDates fills missing timestamps with now. UpdatedDate falls back
// to CreatedDate when only the latter is given. A nil expires leaves
// ExpirationDate untouched.
func withDefaultDates(inputs []indicatordomain.IndicatorInput, now int64, expires *int64) []indicatordomain.IndicatorInput {
	out := make([]indicatordomain.IndicatorInput, len(inputs))
	for i, in := range inputs {
		if in.CreatedDate == 0 {
			in.CreatedDate = now
		}
		if in.UpdatedDate == 0 {
			in.UpdatedDate = in.CreatedDate
		}
		if in.ExpirationDate == nil && expires != nil {
			at := *expires
			in.ExpirationDate = &at
		}
		out[i] = in
	}
	return out
}
