package domain

import (
	"context"

	"gorm.io/gorm"
)

type Repository interface {
	FindByValue(ctx context.Context, db *gorm.DB, value string) (*Indicator, error)
	// Insert reports false when a row with the same value already exists.
	Insert(ctx context.Context, db *gorm.DB, indicator *Indicator) (bool, error)
	// UpdateByValue returns the row after the update, or nil when no row matches.
	UpdateByValue(ctx context.Context, db *gorm.DB, update Update) (*Indicator, error)
	ListByValueLower(ctx context.Context, db *gorm.DB, values []string) ([]Indicator, error)
}
