package service

import (
	"context"
	"strings"
	"time"

	"krishantraders/backend/internal/cache"
	"krishantraders/backend/internal/domain"
	"krishantraders/backend/internal/store"
)

type actorContextKey struct{}

func WithActor(ctx context.Context, actor domain.Actor) context.Context {
	return context.WithValue(ctx, actorContextKey{}, actor)
}

func ActorFromContext(ctx context.Context) (domain.Actor, bool) {
	actor, ok := ctx.Value(actorContextKey{}).(domain.Actor)
	return actor, ok
}

type Service struct {
	repo       store.Repository
	summaries  cache.StockSummaryCache
	summaryTTL time.Duration
}

func New(repo store.Repository, summaries cache.StockSummaryCache, summaryTTL time.Duration) *Service {
	if summaries == nil {
		summaries = cache.NoopStockSummaryCache{}
	}
	if summaryTTL <= 0 {
		summaryTTL = 30 * time.Second
	}

	return &Service{
		repo:       repo,
		summaries:  summaries,
		summaryTTL: summaryTTL,
	}
}

// --- Companies ---

func (s *Service) ListCompanies(ctx context.Context) ([]domain.Company, error) {
	return s.repo.ListCompanies(ctx)
}

func (s *Service) CreateCompany(ctx context.Context, name string) (domain.Company, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return domain.Company{}, store.ErrInvalidInput
	}

	created, err := s.repo.CreateCompany(ctx, domain.Company{Name: name})
	if err != nil {
		return domain.Company{}, err
	}
	return *created, nil
}

func (s *Service) GetCompany(ctx context.Context, id string) (domain.Company, error) {
	company, err := s.repo.GetCompany(ctx, id)
	if err != nil {
		return domain.Company{}, err
	}
	return *company, nil
}

func (s *Service) UpdateCompany(ctx context.Context, id string, name string, disabled *bool) (domain.Company, error) {
	existing, err := s.repo.GetCompany(ctx, id)
	if err != nil {
		return domain.Company{}, err
	}

	updated := *existing
	if name = strings.TrimSpace(name); name != "" {
		updated.Name = name
	}
	if disabled != nil {
		updated.Disabled = *disabled
	}

	saved, err := s.repo.UpdateCompany(ctx, updated)
	if err != nil {
		return domain.Company{}, err
	}
	s.invalidateSummary(ctx, id)
	return *saved, nil
}

func (s *Service) DeleteCompany(ctx context.Context, id string) error {
	if err := s.repo.DeleteCompany(ctx, id); err != nil {
		return err
	}
	s.invalidateSummary(ctx, id)
	return nil
}

// --- Products ---

func (s *Service) ListProducts(ctx context.Context, companyID string) ([]domain.ProductView, error) {
	return s.repo.ListProducts(ctx, companyID)
}

func (s *Service) CreateProduct(ctx context.Context, companyID string, name string) (domain.Product, error) {
	name = strings.TrimSpace(name)
	if name == "" || companyID == "" {
		return domain.Product{}, store.ErrInvalidInput
	}

	created, err := s.repo.CreateProduct(ctx, domain.Product{CompanyID: companyID, Name: name})
	if err != nil {
		return domain.Product{}, err
	}
	return *created, nil
}

func (s *Service) GetProduct(ctx context.Context, id string) (domain.Product, error) {
	product, err := s.repo.GetProduct(ctx, id)
	if err != nil {
		return domain.Product{}, err
	}
	return *product, nil
}

func (s *Service) UpdateProduct(ctx context.Context, id string, name string, disabled *bool) (domain.Product, error) {
	existing, err := s.repo.GetProduct(ctx, id)
	if err != nil {
		return domain.Product{}, err
	}

	updated := *existing
	if name = strings.TrimSpace(name); name != "" {
		updated.Name = name
	}
	if disabled != nil {
		updated.Disabled = *disabled
	}

	saved, err := s.repo.UpdateProduct(ctx, updated)
	if err != nil {
		return domain.Product{}, err
	}
	s.invalidateSummary(ctx, saved.CompanyID)
	return *saved, nil
}

func (s *Service) DeleteProduct(ctx context.Context, id string) error {
	existing, err := s.repo.GetProduct(ctx, id)
	if err != nil {
		return err
	}
	if err := s.repo.DeleteProduct(ctx, id); err != nil {
		return err
	}
	s.invalidateSummary(ctx, existing.CompanyID)
	return nil
}

// --- Sizes ---

func (s *Service) ListSizes(ctx context.Context, productID string) ([]domain.SizeView, error) {
	return s.repo.ListSizes(ctx, productID)
}

func (s *Service) CreateSize(ctx context.Context, size domain.Size) (domain.Size, error) {
	size.Label = strings.TrimSpace(size.Label)
	if size.Label == "" || size.ProductID == "" || !domain.ValidUnit(size.Unit) {
		return domain.Size{}, store.ErrInvalidInput
	}
	if size.UnitQuantity < 1 || size.BuyingPriceCents < 0 || size.SellingPriceCents < 0 {
		return domain.Size{}, store.ErrInvalidInput
	}
	size.Active = true

	created, err := s.repo.CreateSize(ctx, size)
	if err != nil {
		return domain.Size{}, err
	}
	return *created, nil
}

func (s *Service) GetSize(ctx context.Context, id string) (domain.Size, error) {
	size, err := s.repo.GetSize(ctx, id)
	if err != nil {
		return domain.Size{}, err
	}
	return *size, nil
}

func (s *Service) UpdateSize(ctx context.Context, id string, patch domain.Size) (domain.Size, error) {
	existing, err := s.repo.GetSize(ctx, id)
	if err != nil {
		return domain.Size{}, err
	}

	updated := *existing
	if label := strings.TrimSpace(patch.Label); label != "" {
		updated.Label = label
	}
	if patch.Unit != "" {
		if !domain.ValidUnit(patch.Unit) {
			return domain.Size{}, store.ErrInvalidInput
		}
		updated.Unit = patch.Unit
	}
	if patch.UnitQuantity > 0 {
		updated.UnitQuantity = patch.UnitQuantity
	}
	if patch.StackCount > 0 {
		updated.StackCount = patch.StackCount
	}
	if patch.BuyingPriceCents > 0 {
		updated.BuyingPriceCents = patch.BuyingPriceCents
	}
	if patch.SellingPriceCents > 0 {
		updated.SellingPriceCents = patch.SellingPriceCents
	}

	saved, err := s.repo.UpdateSize(ctx, updated)
	if err != nil {
		return domain.Size{}, err
	}
	return *saved, nil
}

func (s *Service) DeleteSize(ctx context.Context, id string) error {
	return s.repo.DeleteSize(ctx, id)
}
