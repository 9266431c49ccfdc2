package service

import (
	"context"
	"strings"

	"krishantraders/backend/internal/domain"
	"krishantraders/backend/internal/store"
)

func (s *Service) CreateAccount(ctx context.Context, req domain.AccountCreateRequest) (domain.Account, error) {
	req.Name = strings.TrimSpace(req.Name)
	if req.Name == "" || !domain.ValidAccountType(req.Type) {
		return domain.Account{}, store.ErrInvalidInput
	}
	if req.OpeningBalanceCents < 0 {
		return domain.Account{}, store.ErrInvalidInput
	}
	if req.Type != domain.AccountTypeCash && strings.TrimSpace(req.AccountNumber) == "" {
		return domain.Account{}, store.ErrInvalidInput
	}

	created, err := s.repo.CreateAccount(ctx, domain.Account{
		Name:                req.Name,
		Type:                req.Type,
		AccountNumber:       strings.TrimSpace(req.AccountNumber),
		BankName:            strings.TrimSpace(req.BankName),
		OpeningBalanceCents: req.OpeningBalanceCents,
		Note:                strings.TrimSpace(req.Note),
	})
	if err != nil {
		return domain.Account{}, err
	}
	return *created, nil
}

func (s *Service) ListAccounts(ctx context.Context) ([]domain.Account, error) {
	return s.repo.ListAccounts(ctx)
}

func (s *Service) GetAccount(ctx context.Context, id string) (domain.Account, error) {
	account, err := s.repo.GetAccount(ctx, id)
	if err != nil {
		return domain.Account{}, err
	}
	return *account, nil
}

func (s *Service) UpdateAccount(ctx context.Context, id string, patch domain.AccountPatch) (domain.Account, error) {
	updated, err := s.repo.UpdateAccount(ctx, id, patch)
	if err != nil {
		return domain.Account{}, err
	}
	return *updated, nil
}

func (s *Service) CreateTransaction(ctx context.Context, req domain.TransactionCreateRequest) (domain.AccountTransaction, error) {
	if req.AccountID == "" || req.AmountCents <= 0 {
		return domain.AccountTransaction{}, store.ErrInvalidInput
	}
	if !domain.ValidTxType(req.Type) || !domain.ValidTxReason(req.Reason) {
		return domain.AccountTransaction{}, store.ErrInvalidInput
	}

	created, err := s.repo.CreateAccountTransaction(ctx, domain.AccountTransaction{
		AccountID:   req.AccountID,
		Type:        req.Type,
		AmountCents: req.AmountCents,
		Reason:      req.Reason,
		Note:        strings.TrimSpace(req.Note),
	})
	if err != nil {
		return domain.AccountTransaction{}, err
	}
	return *created, nil
}

func (s *Service) ListTransactions(ctx context.Context, accountID string, page int, limit int) ([]domain.AccountTransaction, domain.ListMeta, error) {
	page, limit = normalizePage(page, limit)
	txs, total, err := s.repo.ListAccountTransactions(ctx, accountID, page, limit)
	if err != nil {
		return nil, domain.ListMeta{}, err
	}
	return txs, listMeta(page, limit, total), nil
}

func (s *Service) GetTransaction(ctx context.Context, id string) (domain.AccountTransaction, error) {
	tx, err := s.repo.GetAccountTransaction(ctx, id)
	if err != nil {
		return domain.AccountTransaction{}, err
	}
	return *tx, nil
}

func (s *Service) UpdateTransaction(ctx context.Context, id string, patch domain.TransactionPatch) (domain.AccountTransaction, error) {
	updated, err := s.repo.UpdateAccountTransaction(ctx, id, patch)
	if err != nil {
		return domain.AccountTransaction{}, err
	}
	return *updated, nil
}

func (s *Service) DeleteTransaction(ctx context.Context, id string) error {
	return s.repo.DeleteAccountTransaction(ctx, id)
}

func normalizePage(page int, limit int) (int, int) {
	if page < 1 {
		page = 1
	}
	if limit < 1 || limit > 200 {
		limit = 50
	}
	return page, limit
}

func listMeta(page int, limit int, total int) domain.ListMeta {
	totalPage := total / limit
	if total%limit != 0 {
		totalPage++
	}
	if totalPage < 1 {
		totalPage = 1
	}
	return domain.ListMeta{Page: page, Limit: limit, TotalPage: totalPage, TotalData: total}
}
