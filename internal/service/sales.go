package service

import (
	"context"
	"strings"
	"time"

	"krishantraders/backend/internal/domain"
	"krishantraders/backend/internal/store"
)

func validateSaleInput(lines []domain.SaleLine, soldTo domain.SoldTo, accountID string) error {
	if len(lines) == 0 || accountID == "" {
		return store.ErrInvalidInput
	}
	for _, line := range lines {
		if line.StockID == "" || line.Quantity < 1 {
			return store.ErrInvalidInput
		}
	}
	return validateSoldTo(soldTo)
}

// CreateSale is the direct admin path; it runs the same sale routine that
// accepting a staff sale request does.
func (s *Service) CreateSale(ctx context.Context, req domain.SaleCreateRequest) ([]domain.Sell, error) {
	actor, ok := ActorFromContext(ctx)
	if !ok {
		return nil, store.ErrInvalidInput
	}
	if err := validateSaleInput(req.Lines, req.SoldTo, req.AccountID); err != nil {
		return nil, err
	}
	if req.SoldTo.Kind == domain.SoldToCustomer {
		if _, err := s.repo.GetCustomer(ctx, req.SoldTo.CustomerID); err != nil {
			return nil, err
		}
	}

	sells, err := s.repo.CreateSale(ctx, store.SaleInput{
		Lines:     req.Lines,
		SoldTo:    req.SoldTo,
		AccountID: req.AccountID,
		ActorID:   actor.UserID,
		SoldDate:  time.Now().UTC(),
	})
	if err != nil {
		return nil, err
	}
	for _, sell := range sells {
		s.invalidateSummaryForSize(ctx, sell.SizeID)
	}
	return sells, nil
}

func (s *Service) ListSells(ctx context.Context, page int, limit int) ([]domain.Sell, domain.ListMeta, error) {
	page, limit = normalizePage(page, limit)
	sells, total, err := s.repo.ListSells(ctx, page, limit)
	if err != nil {
		return nil, domain.ListMeta{}, err
	}
	return sells, listMeta(page, limit, total), nil
}

func (s *Service) GetSell(ctx context.Context, id string) (domain.Sell, error) {
	sell, err := s.repo.GetSell(ctx, id)
	if err != nil {
		return domain.Sell{}, err
	}
	return *sell, nil
}

func (s *Service) UpdateSell(ctx context.Context, id string, patch domain.SellPatch) (domain.Sell, error) {
	if patch.SoldTo != nil {
		if err := validateSoldTo(*patch.SoldTo); err != nil {
			return domain.Sell{}, err
		}
	}
	updated, err := s.repo.UpdateSell(ctx, id, patch)
	if err != nil {
		return domain.Sell{}, err
	}
	return *updated, nil
}

func validateSoldTo(soldTo domain.SoldTo) error {
	switch soldTo.Kind {
	case domain.SoldToWalkIn:
		if strings.TrimSpace(soldTo.Name) == "" {
			return store.ErrInvalidInput
		}
	case domain.SoldToCustomer:
		if soldTo.CustomerID == "" {
			return store.ErrInvalidInput
		}
	default:
		return store.ErrInvalidInput
	}
	return nil
}

func (s *Service) DeleteSell(ctx context.Context, id string) error {
	return s.repo.DeleteSell(ctx, id)
}

func (s *Service) ListRecords(ctx context.Context, recordType string, page int, limit int) ([]domain.Record, domain.ListMeta, error) {
	switch recordType {
	case "", domain.RecordTypeStockIn, domain.RecordTypeSale:
	default:
		return nil, domain.ListMeta{}, store.ErrInvalidInput
	}

	page, limit = normalizePage(page, limit)
	records, total, err := s.repo.ListRecords(ctx, recordType, page, limit)
	if err != nil {
		return nil, domain.ListMeta{}, err
	}
	return records, listMeta(page, limit, total), nil
}

// --- Customers ---

func (s *Service) CreateCustomer(ctx context.Context, req domain.CustomerCreateRequest) (domain.Customer, error) {
	req.PhoneNumber = strings.TrimSpace(req.PhoneNumber)
	if req.PhoneNumber == "" {
		return domain.Customer{}, store.ErrInvalidInput
	}

	created, err := s.repo.CreateCustomer(ctx, domain.Customer{
		Name:        strings.TrimSpace(req.Name),
		Email:       strings.TrimSpace(req.Email),
		PhoneNumber: req.PhoneNumber,
		Address:     strings.TrimSpace(req.Address),
	})
	if err != nil {
		return domain.Customer{}, err
	}
	return *created, nil
}

func (s *Service) ListCustomers(ctx context.Context) ([]domain.Customer, error) {
	return s.repo.ListCustomers(ctx)
}

func (s *Service) GetCustomer(ctx context.Context, id string) (domain.Customer, error) {
	customer, err := s.repo.GetCustomer(ctx, id)
	if err != nil {
		return domain.Customer{}, err
	}
	return *customer, nil
}
