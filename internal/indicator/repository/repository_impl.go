package repository

import (
	"context"
	"errors"

	"github.com/smallbiznis/threatintel/internal/indicator/domain"
	"github.com/smallbiznis/threatintel/pkg/db"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type repo struct{}

func Provide() domain.Repository {
	return &repo{}
}

func (r *repo) FindByValue(ctx context.Context, conn *gorm.DB, value string) (*domain.Indicator, error) {
	var item domain.Indicator
	err := conn.WithContext(ctx).
		Where("value = ?", value).
		First(&item).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &item, nil
}

func (r *repo) Insert(ctx context.Context, conn *gorm.DB, indicator *domain.Indicator) (bool, error) {
	if indicator == nil {
		return false, gorm.ErrInvalidData
	}
	result := conn.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "value"}},
			DoNothing: true,
		}).
		Create(indicator)
	if result.Error != nil {
		if db.IsDuplicateKeyErr(result.Error) {
			return false, nil
		}
		return false, result.Error
	}
	return result.RowsAffected > 0, nil
}

func (r *repo) UpdateByValue(ctx context.Context, conn *gorm.DB, update domain.Update) (*domain.Indicator, error) {
	fields := map[string]any{
		"updated_date": update.UpdatedDate,
		"value_lower":  update.ValueLower,
	}
	if update.ExpirationDate != nil {
		fields["expiration_date"] = *update.ExpirationDate
	}

	var item *domain.Indicator
	err := conn.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Model(&domain.Indicator{}).
			Where("value = ?", update.Value).
			Updates(fields).Error; err != nil {
			return err
		}

		// RowsAffected is unreliable on mysql when nothing changed, so the
		// post-update row is always read back.
		var err error
		item, err = r.FindByValue(ctx, tx, update.Value)
		return err
	})
	if err != nil {
		return nil, err
	}
	return item, nil
}

func (r *repo) ListByValueLower(ctx context.Context, conn *gorm.DB, values []string) ([]domain.Indicator, error) {
	if len(values) == 0 {
		return []domain.Indicator{}, nil
	}
	var items []domain.Indicator
	err := conn.WithContext(ctx).
		Where("value_lower IN ?", values).
		Find(&items).Error
	if err != nil {
		return nil, err
	}
	return items, nil
}
