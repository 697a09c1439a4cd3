package service

import (
	"context"
	"fmt"
	"strings"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/threatintel/internal/indicator/domain"
	obsmetrics "github.com/smallbiznis/threatintel/internal/observability/metrics"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

var tracer = otel.Tracer("threatintel/indicator")

type Params struct {
	fx.In

	DB      *gorm.DB
	Log     *zap.Logger
	GenID   *snowflake.Node
	Repo    domain.Repository
	Metrics *obsmetrics.IngestMetrics `optional:"true"`
}

type Service struct {
	db      *gorm.DB
	log     *zap.Logger
	repo    domain.Repository
	genID   *snowflake.Node
	metrics *obsmetrics.IngestMetrics
}

func New(p Params) domain.Service {
	return &Service{
		db:      p.DB,
		log:     p.Log.Named("indicator.service"),
		repo:    p.Repo,
		genID:   p.GenID,
		metrics: p.Metrics,
	}
}

type normalizedInput struct {
	Type           string
	Value          string
	ValueLower     string
	CreatedDate    int64
	UpdatedDate    int64
	ExpirationDate *int64
}

func normalizeInput(in domain.IndicatorInput) normalizedInput {
	value := strings.TrimSpace(in.Value)
	return normalizedInput{
		Type:           strings.ToLower(strings.TrimSpace(in.Type)),
		Value:          value,
		ValueLower:     strings.ToLower(value),
		CreatedDate:    in.CreatedDate,
		UpdatedDate:    in.UpdatedDate,
		ExpirationDate: in.ExpirationDate,
	}
}

func normalizeLookupValues(values []string) []string {
	out := make([]string, 0, len(values))
	for _, v := range values {
		v = strings.ToLower(strings.TrimSpace(v))
		if v == "" {
			continue
		}
		out = append(out, v)
	}
	return out
}

func (s *Service) EnsureIndicators(ctx context.Context, inputs []domain.IndicatorInput) ([]string, error) {
	ctx, span := tracer.Start(ctx, "indicator.EnsureIndicators",
		trace.WithAttributes(attribute.Int("indicator.inputs", len(inputs))))
	defer span.End()

	ids := make([]string, 0, len(inputs))
	var created, updated, skipped int

	for i, raw := range inputs {
		in := normalizeInput(raw)
		if in.Value == "" {
			skipped++
			s.metrics.RecordReconcile(obsmetrics.OutcomeSkipped)
			continue
		}

		id, wasCreated, err := s.reconcile(ctx, in)
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, "reconcile failed")
			s.log.Warn("indicator batch aborted",
				zap.Int("position", i),
				zap.Int("applied", len(ids)),
				zap.Error(err),
			)
			return nil, err
		}

		if wasCreated {
			created++
		} else {
			updated++
		}
		ids = append(ids, id)
	}

	span.SetAttributes(
		attribute.Int("indicator.created", created),
		attribute.Int("indicator.updated", updated),
		attribute.Int("indicator.skipped", skipped),
	)
	s.log.Debug("indicators reconciled",
		zap.Int("created", created),
		zap.Int("updated", updated),
		zap.Int("skipped", skipped),
	)

	return ids, nil
}

// reconcile applies one normalized input: insert when value is unseen,
// otherwise refresh the mutable fields. An insert that loses a race against a
// concurrent writer is retried once as an update.
func (s *Service) reconcile(ctx context.Context, in normalizedInput) (string, bool, error) {
	existing, err := s.repo.FindByValue(ctx, s.db, in.Value)
	if err != nil {
		return "", false, fmt.Errorf("%w: find indicator: %w", domain.ErrStorageUnavailable, err)
	}

	if existing == nil {
		record := &domain.Indicator{
			ID:             s.genID.Generate(),
			Value:          in.Value,
			ValueLower:     in.ValueLower,
			Type:           in.Type,
			CreatedDate:    in.CreatedDate,
			UpdatedDate:    in.UpdatedDate,
			ExpirationDate: in.ExpirationDate,
		}

		inserted, err := s.repo.Insert(ctx, s.db, record)
		if err != nil {
			return "", false, fmt.Errorf("%w: insert indicator: %w", domain.ErrStorageUnavailable, err)
		}
		if inserted {
			s.metrics.RecordReconcile(obsmetrics.OutcomeCreated)
			return record.ID.String(), true, nil
		}

		s.metrics.RecordReconcile(obsmetrics.OutcomeConflictRetry)
		s.log.Debug("indicator insert conflicted, retrying as update")
	}

	item, err := s.repo.UpdateByValue(ctx, s.db, domain.Update{
		Value:          in.Value,
		ValueLower:     in.ValueLower,
		UpdatedDate:    in.UpdatedDate,
		ExpirationDate: in.ExpirationDate,
	})
	if err != nil {
		return "", false, fmt.Errorf("%w: update indicator: %w", domain.ErrStorageUnavailable, err)
	}
	if item == nil {
		return "", false, domain.ErrStorageConflict
	}

	s.metrics.RecordReconcile(obsmetrics.OutcomeUpdated)
	return item.ID.String(), false, nil
}

func (s *Service) FindByValues(ctx context.Context, values []string) ([]domain.Indicator, error) {
	ctx, span := tracer.Start(ctx, "indicator.FindByValues")
	defer span.End()

	normalized := normalizeLookupValues(values)
	span.SetAttributes(attribute.Int("indicator.values", len(normalized)))
	if len(normalized) == 0 {
		return []domain.Indicator{}, nil
	}
	s.metrics.RecordLookup(len(normalized))

	items, err := s.repo.ListByValueLower(ctx, s.db, normalized)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "lookup failed")
		return nil, fmt.Errorf("%w: list indicators: %w", domain.ErrStorageUnavailable, err)
	}
	return items, nil
}
