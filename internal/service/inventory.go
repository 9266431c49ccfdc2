package service

import (
	"context"
	"log"

	"krishantraders/backend/internal/domain"
	"krishantraders/backend/internal/store"
)

func (s *Service) ListStock(ctx context.Context, filter domain.StockFilter) ([]domain.StockView, error) {
	return s.repo.ListStock(ctx, filter)
}

func (s *Service) GetStock(ctx context.Context, id string) (domain.Stock, error) {
	stock, err := s.repo.GetStock(ctx, id)
	if err != nil {
		return domain.Stock{}, err
	}
	return *stock, nil
}

func (s *Service) UpdateStock(ctx context.Context, id string, patch domain.StockPatch) (domain.Stock, error) {
	if patch.Status != nil {
		switch *patch.Status {
		case domain.StockStatusPending, domain.StockStatusAvailable, domain.StockStatusSold,
			domain.StockStatusExpired, domain.StockStatusRejected:
		default:
			return domain.Stock{}, store.ErrInvalidInput
		}
	}
	if patch.Quantity != nil && *patch.Quantity < 0 {
		return domain.Stock{}, store.ErrInvalidInput
	}

	updated, err := s.repo.UpdateStock(ctx, id, patch)
	if err != nil {
		return domain.Stock{}, err
	}
	s.invalidateSummaryForSize(ctx, updated.SizeID)
	return *updated, nil
}

func (s *Service) DeleteStock(ctx context.Context, id string) error {
	existing, err := s.repo.GetStock(ctx, id)
	if err != nil {
		return err
	}
	if err := s.repo.DeleteStock(ctx, id); err != nil {
		return err
	}
	s.invalidateSummaryForSize(ctx, existing.SizeID)
	return nil
}

// CompanyStockSummary serves the per-company dashboard, cached for a short
// TTL since it aggregates across every lot of the company.
func (s *Service) CompanyStockSummary(ctx context.Context, companyID string) ([]domain.CompanyStockGroup, error) {
	if companyID == "" {
		return nil, store.ErrInvalidInput
	}

	if groups, ok, err := s.summaries.Get(ctx, companyID); err == nil && ok {
		return groups, nil
	} else if err != nil {
		log.Printf("[service] WARN: stock summary cache read failed company=%s: %v", companyID, err)
	}

	groups, err := s.repo.AggregateStockByCompany(ctx, companyID)
	if err != nil {
		return nil, err
	}

	if err := s.summaries.Set(ctx, companyID, groups, s.summaryTTL); err != nil {
		log.Printf("[service] WARN: stock summary cache write failed company=%s: %v", companyID, err)
	}
	return groups, nil
}

func (s *Service) invalidateSummary(ctx context.Context, companyID string) {
	if companyID == "" {
		return
	}
	if err := s.summaries.Invalidate(ctx, companyID); err != nil {
		log.Printf("[service] WARN: stock summary invalidation failed company=%s: %v", companyID, err)
	}
}

// invalidateSummaryForSize resolves size -> product -> company and drops that
// company's cached summary. Resolution failures only cost cache freshness.
func (s *Service) invalidateSummaryForSize(ctx context.Context, sizeID string) {
	if sizeID == "" {
		return
	}
	size, err := s.repo.GetSize(ctx, sizeID)
	if err != nil {
		return
	}
	product, err := s.repo.GetProduct(ctx, size.ProductID)
	if err != nil {
		return
	}
	s.invalidateSummary(ctx, product.CompanyID)
}
