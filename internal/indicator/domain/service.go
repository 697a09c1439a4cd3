package domain

import (
	"context"
	"errors"
)

type Service interface {
	// EnsureIndicators reconciles inputs in order and returns one id per
	// non-blank input. Storage errors abort the rest of the batch; inputs
	// already applied stay applied.
	EnsureIndicators(ctx context.Context, inputs []IndicatorInput) ([]string, error)
	FindByValues(ctx context.Context, values []string) ([]Indicator, error)
}

var (
	ErrStorageConflict    = errors.New("storage_conflict")
	ErrStorageUnavailable = errors.New("storage_unavailable")
)
