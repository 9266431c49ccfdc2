package cache

import (
	"context"
	"time"

	"krishantraders/backend/internal/domain"
)

// StockSummaryCache holds the per-company aggregated stock view, which is the
// most frequently read (and most expensive) dashboard query.
type StockSummaryCache interface {
	Get(ctx context.Context, companyID string) ([]domain.CompanyStockGroup, bool, error)
	Set(ctx context.Context, companyID string, groups []domain.CompanyStockGroup, ttl time.Duration) error
	Invalidate(ctx context.Context, companyID string) error
}

type NoopStockSummaryCache struct{}

func (NoopStockSummaryCache) Get(_ context.Context, _ string) ([]domain.CompanyStockGroup, bool, error) {
	return nil, false, nil
}

func (NoopStockSummaryCache) Set(_ context.Context, _ string, _ []domain.CompanyStockGroup, _ time.Duration) error {
	return nil
}

func (NoopStockSummaryCache) Invalidate(_ context.Context, _ string) error {
	return nil
}
