package postgres

import (
	"context"
	"fmt"
	"os"
	"testing"
	"time"

	"krishantraders/backend/internal/domain"
	"krishantraders/backend/internal/store"
)

func TestCreateSaleDebitsStockAndCreditsAccount(t *testing.T) {
	databaseURL := os.Getenv("KRISHANTRADERS_TEST_DATABASE_URL")
	if databaseURL == "" {
		t.Skip("set KRISHANTRADERS_TEST_DATABASE_URL to run postgres integration test")
	}

	ctx := context.Background()
	s, err := New(ctx, databaseURL)
	if err != nil {
		t.Fatalf("new store: %v", err)
	}
	t.Cleanup(func() {
		_ = s.Close()
	})

	stamp := time.Now().UnixNano()
	companyID := fmt.Sprintf("comp-it-%d", stamp)
	productID := fmt.Sprintf("prod-it-%d", stamp)
	sizeID := fmt.Sprintf("size-it-%d", stamp)
	stockID := fmt.Sprintf("stk-it-%d", stamp)
	accountID := fmt.Sprintf("acc-it-%d", stamp)

	t.Cleanup(func() {
		_, _ = s.db.ExecContext(ctx, `DELETE FROM sells WHERE stock_id = $1`, stockID)
		_, _ = s.db.ExecContext(ctx, `DELETE FROM records WHERE stock_id = $1`, stockID)
		_, _ = s.db.ExecContext(ctx, `DELETE FROM account_transactions WHERE account_id = $1`, accountID)
		_, _ = s.db.ExecContext(ctx, `DELETE FROM accounts WHERE id = $1`, accountID)
		_, _ = s.db.ExecContext(ctx, `DELETE FROM stocks WHERE id = $1`, stockID)
		_, _ = s.db.ExecContext(ctx, `DELETE FROM sizes WHERE id = $1`, sizeID)
		_, _ = s.db.ExecContext(ctx, `DELETE FROM products WHERE id = $1`, productID)
		_, _ = s.db.ExecContext(ctx, `DELETE FROM companies WHERE id = $1`, companyID)
	})

	if _, err := s.db.ExecContext(ctx, `
		INSERT INTO companies (id, name, is_disabled, created_at)
		VALUES ($1, $2, false, now())
	`, companyID, fmt.Sprintf("IT Supplier %d", stamp)); err != nil {
		t.Fatalf("insert company: %v", err)
	}

	if _, err := s.db.ExecContext(ctx, `
		INSERT INTO products (id, company_id, name, is_disabled, created_at)
		VALUES ($1, $2, 'IT Product', false, now())
	`, productID, companyID); err != nil {
		t.Fatalf("insert product: %v", err)
	}

	if _, err := s.db.ExecContext(ctx, `
		INSERT INTO sizes (
			id, product_id, label, unit, unit_quantity, stack_count,
			buying_price_cents, selling_price_cents, is_active, created_at
		)
		VALUES ($1, $2, '1kg pack', 'kg', 1, 10, 60, 100, true, now())
	`, sizeID, productID); err != nil {
		t.Fatalf("insert size: %v", err)
	}

	if _, err := s.db.ExecContext(ctx, `
		INSERT INTO stocks (
			id, size_id, batch_no, quantity, stocked_by, stocked_date,
			expiry_date, status, buying_price_cents, selling_price_cents, img_url
		)
		VALUES ($1, $2, 'B-IT', 10, 'user-it', now(), NULL, 'available', 60, 100, NULL)
	`, stockID, sizeID); err != nil {
		t.Fatalf("insert stock: %v", err)
	}

	if _, err := s.db.ExecContext(ctx, `
		INSERT INTO accounts (
			id, name, type, account_number, bank_name,
			opening_balance_cents, current_balance_cents, note, created_at
		)
		VALUES ($1, 'IT Cash', 'cash', NULL, NULL, 0, 0, NULL, now())
	`, accountID); err != nil {
		t.Fatalf("insert account: %v", err)
	}

	sells, err := s.CreateSale(ctx, store.SaleInput{
		Lines:     []domain.SaleLine{{StockID: stockID, Quantity: 3}},
		SoldTo:    domain.SoldTo{Kind: domain.SoldToWalkIn, Name: "IT Buyer"},
		AccountID: accountID,
		ActorID:   "user-it",
		SoldDate:  time.Now().UTC(),
	})
	if err != nil {
		t.Fatalf("create sale: %v", err)
	}
	if len(sells) != 1 || sells[0].ProfitCents != 120 || sells[0].TotalCents != 300 {
		t.Fatalf("unexpected sells %+v", sells)
	}

	var qty int
	if err := s.db.QueryRowContext(ctx, `
		SELECT quantity FROM stocks WHERE id = $1
	`, stockID).Scan(&qty); err != nil {
		t.Fatalf("query stock: %v", err)
	}
	if qty != 7 {
		t.Fatalf("expected stock 7 after sale, got %d", qty)
	}

	var balance int64
	if err := s.db.QueryRowContext(ctx, `
		SELECT current_balance_cents FROM accounts WHERE id = $1
	`, accountID).Scan(&balance); err != nil {
		t.Fatalf("query account: %v", err)
	}
	if balance != 300 {
		t.Fatalf("expected balance 300 after sale, got %d", balance)
	}

	var txCount int
	if err := s.db.QueryRowContext(ctx, `
		SELECT count(*) FROM account_transactions WHERE account_id = $1 AND reason = 'sale'
	`, accountID).Scan(&txCount); err != nil {
		t.Fatalf("query transactions: %v", err)
	}
	if txCount != 1 {
		t.Fatalf("expected one sale ledger entry, got %d", txCount)
	}

	if _, err := s.CreateSale(ctx, store.SaleInput{
		Lines:     []domain.SaleLine{{StockID: stockID, Quantity: 50}},
		SoldTo:    domain.SoldTo{Kind: domain.SoldToWalkIn, Name: "IT Buyer"},
		AccountID: accountID,
		ActorID:   "user-it",
		SoldDate:  time.Now().UTC(),
	}); err != store.ErrInsufficientStock {
		t.Fatalf("expected ErrInsufficientStock for oversell, got %v", err)
	}
}
