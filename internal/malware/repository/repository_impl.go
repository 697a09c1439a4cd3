package repository

import (
	"context"
	"errors"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/threatintel/internal/malware/domain"
	"github.com/smallbiznis/threatintel/pkg/db"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

const defaultRecentLimit = 50

type repo struct{}

func Provide() domain.Repository {
	return &repo{}
}

func (r *repo) FindBySlug(ctx context.Context, conn *gorm.DB, slug string) (*domain.Malware, error) {
	var item domain.Malware
	err := conn.WithContext(ctx).
		Where("slug = ?", slug).
		First(&item).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &item, nil
}

func (r *repo) Insert(ctx context.Context, conn *gorm.DB, malware *domain.Malware) (bool, error) {
	if malware == nil {
		return false, gorm.ErrInvalidData
	}
	result := conn.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "slug"}},
			DoNothing: true,
		}).
		Create(malware)
	if result.Error != nil {
		if db.IsDuplicateKeyErr(result.Error) {
			return false, nil
		}
		return false, result.Error
	}
	return result.RowsAffected > 0, nil
}

func (r *repo) Update(ctx context.Context, conn *gorm.DB, malware *domain.Malware) error {
	if malware == nil {
		return gorm.ErrInvalidData
	}
	return conn.WithContext(ctx).
		Model(&domain.Malware{}).
		Where("id = ?", malware.ID).
		Updates(map[string]any{
			"name":         malware.Name,
			"family":       malware.Family,
			"metadata":     malware.Metadata,
			"updated_date": malware.UpdatedDate,
		}).Error
}

func (r *repo) LinkIndicators(ctx context.Context, conn *gorm.DB, malwareID snowflake.ID, indicatorIDs []snowflake.ID, at int64) error {
	if len(indicatorIDs) == 0 {
		return nil
	}

	seen := make(map[snowflake.ID]struct{}, len(indicatorIDs))
	links := make([]domain.MalwareIndicator, 0, len(indicatorIDs))
	for _, id := range indicatorIDs {
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		links = append(links, domain.MalwareIndicator{
			MalwareID:   malwareID,
			IndicatorID: id,
			CreatedDate: at,
		})
	}

	return conn.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "malware_id"}, {Name: "indicator_id"}},
			DoNothing: true,
		}).
		Create(&links).Error
}

func (r *repo) ListIndicatorIDs(ctx context.Context, conn *gorm.DB, malwareID snowflake.ID) ([]snowflake.ID, error) {
	var ids []snowflake.ID
	err := conn.WithContext(ctx).
		Model(&domain.MalwareIndicator{}).
		Where("malware_id = ?", malwareID).
		Order("created_date ASC, indicator_id ASC").
		Pluck("indicator_id", &ids).Error
	if err != nil {
		return nil, err
	}
	return ids, nil
}

func (r *repo) ListByIndicator(ctx context.Context, conn *gorm.DB, indicatorID snowflake.ID) ([]domain.Malware, error) {
	var items []domain.Malware
	err := conn.WithContext(ctx).
		Where("id IN (?)", conn.Model(&domain.MalwareIndicator{}).
			Select("malware_id").
			Where("indicator_id = ?", indicatorID)).
		Order("updated_date DESC").
		Find(&items).Error
	if err != nil {
		return nil, err
	}
	return items, nil
}

func (r *repo) ListRecent(ctx context.Context, conn *gorm.DB, limit int) ([]domain.Malware, error) {
	if limit <= 0 {
		limit = defaultRecentLimit
	}
	var items []domain.Malware
	err := conn.WithContext(ctx).
		Order("updated_date DESC").
		Limit(limit).
		Find(&items).Error
	if err != nil {
		return nil, err
	}
	return items, nil
}
