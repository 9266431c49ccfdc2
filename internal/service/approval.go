package service

import (
	"context"
	"time"

	"krishantraders/backend/internal/domain"
	"krishantraders/backend/internal/store"
)

// DecisionResult carries the outcome of an accepted or rejected request. At
// most one of Stock/Sells is set, depending on the request kind.
type DecisionResult struct {
	Status string        `json:"status"`
	Stock  *domain.Stock `json:"stock,omitempty"`
	Sells  []domain.Sell `json:"sells,omitempty"`
}

func (s *Service) CreateStockAddRequest(ctx context.Context, req domain.StockAddRequestCreate) (domain.StockAddRequest, error) {
	actor, ok := ActorFromContext(ctx)
	if !ok {
		return domain.StockAddRequest{}, store.ErrInvalidInput
	}
	if req.SizeID == "" || req.Quantity < 1 {
		return domain.StockAddRequest{}, store.ErrInvalidInput
	}
	if req.BuyingPriceCents < 0 || req.SellingPriceCents < 0 {
		return domain.StockAddRequest{}, store.ErrInvalidInput
	}

	created, err := s.repo.CreateStockAddRequest(ctx, domain.StockAddRequest{
		SizeID:            req.SizeID,
		Quantity:          req.Quantity,
		ExpiryDate:        req.ExpiryDate,
		BatchNo:           req.BatchNo,
		BuyingPriceCents:  req.BuyingPriceCents,
		SellingPriceCents: req.SellingPriceCents,
		ImageURL:          req.ImageURL,
		RequestedBy:       actor.UserID,
	})
	if err != nil {
		return domain.StockAddRequest{}, err
	}
	return *created, nil
}

func (s *Service) ListStockAddRequests(ctx context.Context, status string) ([]domain.StockAddRequest, error) {
	return s.repo.ListStockAddRequests(ctx, status)
}

func (s *Service) GetStockAddRequest(ctx context.Context, id string) (domain.StockAddRequest, error) {
	req, err := s.repo.GetStockAddRequest(ctx, id)
	if err != nil {
		return domain.StockAddRequest{}, err
	}
	return *req, nil
}

func (s *Service) DecideStockAddRequest(ctx context.Context, id string, decision string) (DecisionResult, error) {
	now := time.Now().UTC()
	switch decision {
	case domain.RequestStatusAccepted:
		req, err := s.repo.GetStockAddRequest(ctx, id)
		if err != nil {
			return DecisionResult{}, err
		}
		stock, err := s.repo.AcceptStockAddRequest(ctx, id, now)
		if err != nil {
			return DecisionResult{}, err
		}
		s.invalidateSummaryForSize(ctx, req.SizeID)
		return DecisionResult{Status: domain.RequestStatusAccepted, Stock: stock}, nil
	case domain.RequestStatusRejected:
		if _, err := s.repo.RejectStockAddRequest(ctx, id, now); err != nil {
			return DecisionResult{}, err
		}
		return DecisionResult{Status: domain.RequestStatusRejected}, nil
	default:
		return DecisionResult{}, store.ErrInvalidInput
	}
}

func (s *Service) CreateSaleRequest(ctx context.Context, req domain.SaleRequestCreate) (domain.SaleRequest, error) {
	actor, ok := ActorFromContext(ctx)
	if !ok {
		return domain.SaleRequest{}, store.ErrInvalidInput
	}
	if err := validateSaleInput(req.Lines, req.SoldTo, req.AccountID); err != nil {
		return domain.SaleRequest{}, err
	}

	created, err := s.repo.CreateSaleRequest(ctx, domain.SaleRequest{
		Lines:       req.Lines,
		SoldTo:      req.SoldTo,
		AccountID:   req.AccountID,
		RequestedBy: actor.UserID,
	})
	if err != nil {
		return domain.SaleRequest{}, err
	}
	return *created, nil
}

func (s *Service) ListSaleRequests(ctx context.Context, status string) ([]domain.SaleRequest, error) {
	return s.repo.ListSaleRequests(ctx, status)
}

func (s *Service) GetSaleRequest(ctx context.Context, id string) (domain.SaleRequest, error) {
	req, err := s.repo.GetSaleRequest(ctx, id)
	if err != nil {
		return domain.SaleRequest{}, err
	}
	return *req, nil
}

func (s *Service) DecideSaleRequest(ctx context.Context, id string, decision string) (DecisionResult, error) {
	now := time.Now().UTC()
	switch decision {
	case domain.RequestStatusAccepted:
		sells, err := s.repo.AcceptSaleRequest(ctx, id, now)
		if err != nil {
			return DecisionResult{}, err
		}
		for _, sell := range sells {
			s.invalidateSummaryForSize(ctx, sell.SizeID)
		}
		return DecisionResult{Status: domain.RequestStatusAccepted, Sells: sells}, nil
	case domain.RequestStatusRejected:
		if _, err := s.repo.RejectSaleRequest(ctx, id, now); err != nil {
			return DecisionResult{}, err
		}
		return DecisionResult{Status: domain.RequestStatusRejected}, nil
	default:
		return DecisionResult{}, store.ErrInvalidInput
	}
}
