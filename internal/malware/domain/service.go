package domain

import (
	"context"
	"errors"

	indicatordomain "github.com/smallbiznis/threatintel/internal/indicator/domain"
)

type Service interface {
	Upsert(ctx context.Context, req UpsertRequest) (*Response, error)
	ListByIndicator(ctx context.Context, indicatorID string) ([]Response, error)
	ListRecent(ctx context.Context, limit int) ([]Response, error)
}

type UpsertRequest struct {
	Name       string                           `json:"name"`
	Family     *string                          `json:"family,omitempty"`
	Metadata   map[string]any                   `json:"metadata,omitempty"`
	Indicators []indicatordomain.IndicatorInput `json:"indicators"`
}

type Response struct {
	ID           string         `json:"id"`
	Name         string         `json:"name"`
	Slug         string         `json:"slug"`
	Family       *string        `json:"family,omitempty"`
	Metadata     map[string]any `json:"metadata,omitempty"`
	IndicatorIDs []string       `json:"indicator_ids"`
	CreatedDate  int64          `json:"created_date"`
	UpdatedDate  int64          `json:"updated_date"`
}

var (
	ErrInvalidName        = errors.New("invalid_name")
	ErrInvalidIndicatorID = errors.New("invalid_indicator_id")
	ErrConflict           = errors.New("conflict")
)
