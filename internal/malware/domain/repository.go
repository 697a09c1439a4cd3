package domain

import (
	"context"

	"github.com/bwmarrin/snowflake"
	"gorm.io/gorm"
)

type Repository interface {
	FindBySlug(ctx context.Context, db *gorm.DB, slug string) (*Malware, error)
	// Insert reports false when a row with the same slug already exists.
	Insert(ctx context.Context, db *gorm.DB, malware *Malware) (bool, error)
	Update(ctx context.Context, db *gorm.DB, malware *Malware) error
	LinkIndicators(ctx context.Context, db *gorm.DB, malwareID snowflake.ID, indicatorIDs []snowflake.ID, at int64) error
	ListIndicatorIDs(ctx context.Context, db *gorm.DB, malwareID snowflake.ID) ([]snowflake.ID, error)
	ListByIndicator(ctx context.Context, db *gorm.DB, indicatorID snowflake.ID) ([]Malware, error)
	ListRecent(ctx context.Context, db *gorm.DB, limit int) ([]Malware, error)
}
