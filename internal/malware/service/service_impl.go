package service

import (
	"context"
	"errors"
	"strings"

	"github.com/bwmarrin/snowflake"
	"github.com/gosimple/slug"
	"github.com/smallbiznis/threatintel/internal/clock"
	indicatordomain "github.com/smallbiznis/threatintel/internal/indicator/domain"
	"github.com/smallbiznis/threatintel/internal/malware/domain"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

type Params struct {
	fx.In

	DB           *gorm.DB
	Log          *zap.Logger
	GenID        *snowflake.Node
	Clock        clock.Clock
	Repo         domain.Repository
	IndicatorSvc indicatordomain.Service
}

type Service struct {
	db           *gorm.DB
	log          *zap.Logger
	genID        *snowflake.Node
	clock        clock.Clock
	repo         domain.Repository
	indicatorSvc indicatordomain.Service
}

func New(p Params) domain.Service {
	return &Service{
		db:           p.DB,
		log:          p.Log.Named("malware.service"),
		genID:        p.GenID,
		clock:        p.Clock,
		repo:         p.Repo,
		indicatorSvc: p.IndicatorSvc,
	}
}

func (s *Service) Upsert(ctx context.Context, req domain.UpsertRequest) (*domain.Response, error) {
	name := strings.TrimSpace(req.Name)
	if name == "" {
		return nil, domain.ErrInvalidName
	}
	key := slug.Make(name)
	if key == "" {
		return nil, domain.ErrInvalidName
	}

	indicatorIDs, err := s.indicatorSvc.EnsureIndicators(ctx, req.Indicators)
	if err != nil {
		return nil, err
	}
	parsedIDs := make([]snowflake.ID, 0, len(indicatorIDs))
	for _, id := range indicatorIDs {
		parsed, err := snowflake.ParseString(id)
		if err != nil {
			return nil, domain.ErrInvalidIndicatorID
		}
		parsedIDs = append(parsedIDs, parsed)
	}

	now := clock.EpochNow(s.clock)
	family := trimOptional(req.Family)

	var record *domain.Malware
	var linked []snowflake.ID
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		existing, err := s.repo.FindBySlug(ctx, tx, key)
		if err != nil {
			return err
		}

		if existing == nil {
			candidate := &domain.Malware{
				ID:          s.genID.Generate(),
				Name:        name,
				Slug:        key,
				Family:      family,
				CreatedDate: now,
				UpdatedDate: now,
			}
			if req.Metadata != nil {
				candidate.Metadata = datatypes.JSONMap(req.Metadata)
			}

			inserted, err := s.repo.Insert(ctx, tx, candidate)
			if err != nil {
				return err
			}
			if inserted {
				record = candidate
			} else {
				existing, err = s.repo.FindBySlug(ctx, tx, key)
				if err != nil {
					return err
				}
				if existing == nil {
					return domain.ErrConflict
				}
			}
		}

		if record == nil {
			existing.Name = name
			if family != nil {
				existing.Family = family
			}
			if req.Metadata != nil {
				existing.Metadata = datatypes.JSONMap(req.Metadata)
			}
			existing.UpdatedDate = now
			if err := s.repo.Update(ctx, tx, existing); err != nil {
				return err
			}
			record = existing
		}

		if err := s.repo.LinkIndicators(ctx, tx, record.ID, parsedIDs, now); err != nil {
			return err
		}

		linked, err = s.repo.ListIndicatorIDs(ctx, tx, record.ID)
		return err
	})
	if err != nil {
		if errors.Is(err, domain.ErrConflict) {
			return nil, err
		}
		s.log.Error("malware upsert failed", zap.String("slug", key), zap.Error(err))
		return nil, err
	}

	s.log.Debug("malware upserted",
		zap.String("malware_id", record.ID.String()),
		zap.String("slug", key),
		zap.Int("indicators", len(parsedIDs)),
	)

	resp := toResponse(record, linked)
	return &resp, nil
}

func (s *Service) ListByIndicator(ctx context.Context, indicatorID string) ([]domain.Response, error) {
	id, err := snowflake.ParseString(strings.TrimSpace(indicatorID))
	if err != nil || id == 0 {
		return nil, domain.ErrInvalidIndicatorID
	}

	items, err := s.repo.ListByIndicator(ctx, s.db, id)
	if err != nil {
		return nil, err
	}
	return s.withIndicatorIDs(ctx, items)
}

func (s *Service) ListRecent(ctx context.Context, limit int) ([]domain.Response, error) {
	items, err := s.repo.ListRecent(ctx, s.db, limit)
	if err != nil {
		return nil, err
	}
	return s.withIndicatorIDs(ctx, items)
}

func (s *Service) withIndicatorIDs(ctx context.Context, items []domain.Malware) ([]domain.Response, error) {
	resp := make([]domain.Response, 0, len(items))
	for i := range items {
		linked, err := s.repo.ListIndicatorIDs(ctx, s.db, items[i].ID)
		if err != nil {
			return nil, err
		}
		resp = append(resp, toResponse(&items[i], linked))
	}
	return resp, nil
}

func toResponse(m *domain.Malware, indicatorIDs []snowflake.ID) domain.Response {
	ids := make([]string, 0, len(indicatorIDs))
	for _, id := range indicatorIDs {
		ids = append(ids, id.String())
	}
	resp := domain.Response{
		ID:           m.ID.String(),
		Name:         m.Name,
		Slug:         m.Slug,
		Family:       m.Family,
		IndicatorIDs: ids,
		CreatedDate:  m.CreatedDate,
		UpdatedDate:  m.UpdatedDate,
	}
	if len(m.Metadata) > 0 {
		resp.Metadata = map[string]any(m.Metadata)
	}
	return resp
}

func trimOptional(value *string) *string {
	if value == nil {
		return nil
	}
	trimmed := strings.TrimSpace(*value)
	if trimmed == "" {
		return nil
	}
	return &trimmed
}
