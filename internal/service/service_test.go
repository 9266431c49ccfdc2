package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"krishantraders/backend/internal/cache"
	"krishantraders/backend/internal/domain"
	"krishantraders/backend/internal/store"
	"krishantraders/backend/internal/store/memory"
)

func newTestService() *Service {
	return New(memory.NewSeeded(), cache.NoopStockSummaryCache{}, 5*time.Second)
}

func adminCtx() context.Context {
	return WithActor(context.Background(), domain.Actor{
		UserID: "user-admin",
		Name:   "Krishan Admin",
		Role:   domain.RoleAdmin,
	})
}

func staffCtx() context.Context {
	return WithActor(context.Background(), domain.Actor{
		UserID: "user-staff",
		Name:   "Counter Staff",
		Role:   domain.RoleStaff,
	})
}

// seedLot pushes a fresh stock lot through the request/approval path and
// returns its id.
func seedLot(t *testing.T, svc *Service, sizeID string, qty int, buyCents, sellCents int64, expiry *time.Time) string {
	t.Helper()

	req, err := svc.CreateStockAddRequest(staffCtx(), domain.StockAddRequestCreate{
		SizeID:            sizeID,
		Quantity:          qty,
		ExpiryDate:        expiry,
		BatchNo:           "B-TEST",
		BuyingPriceCents:  buyCents,
		SellingPriceCents: sellCents,
	})
	if err != nil {
		t.Fatalf("create stock add request failed: %v", err)
	}

	result, err := svc.DecideStockAddRequest(adminCtx(), req.ID, domain.RequestStatusAccepted)
	if err != nil {
		t.Fatalf("accept stock add request failed: %v", err)
	}
	if result.Stock == nil {
		t.Fatalf("expected accepted request to yield a stock lot")
	}
	return result.Stock.ID
}

func TestDirectSaleComputesProfitAndCreditsAccount(t *testing.T) {
	svc := newTestService()
	ctx := adminCtx()

	expiry := time.Now().UTC().AddDate(0, 6, 0)
	stockID := seedLot(t, svc, "size-urea-1kg", 10, 60, 100, &expiry)

	sells, err := svc.CreateSale(ctx, domain.SaleCreateRequest{
		Lines:     []domain.SaleLine{{StockID: stockID, Quantity: 3}},
		SoldTo:    domain.SoldTo{Kind: domain.SoldToWalkIn, Name: "Ramesh"},
		AccountID: "acc-cash",
	})
	if err != nil {
		t.Fatalf("sale failed: %v", err)
	}
	if len(sells) != 1 {
		t.Fatalf("expected 1 sell row, got %d", len(sells))
	}
	if sells[0].ProfitCents != 120 {
		t.Fatalf("expected profit 120, got %d", sells[0].ProfitCents)
	}
	if sells[0].TotalCents != 300 {
		t.Fatalf("expected total 300, got %d", sells[0].TotalCents)
	}
	if sells[0].SoldBy != "user-admin" {
		t.Fatalf("expected sold_by user-admin, got %s", sells[0].SoldBy)
	}

	stock, err := svc.GetStock(ctx, stockID)
	if err != nil {
		t.Fatalf("get stock failed: %v", err)
	}
	if stock.Quantity != 7 {
		t.Fatalf("expected remaining quantity 7, got %d", stock.Quantity)
	}

	account, err := svc.GetAccount(ctx, "acc-cash")
	if err != nil {
		t.Fatalf("get account failed: %v", err)
	}
	if account.CurrentBalanceCents != 300 {
		t.Fatalf("expected account balance 300, got %d", account.CurrentBalanceCents)
	}

	records, _, err := svc.ListRecords(ctx, domain.RecordTypeSale, 1, 50)
	if err != nil {
		t.Fatalf("list records failed: %v", err)
	}
	if len(records) != 1 {
		t.Fatalf("expected 1 sale record, got %d", len(records))
	}
}

func TestDirectSaleRejectsOversell(t *testing.T) {
	svc := newTestService()
	ctx := adminCtx()

	_, err := svc.CreateSale(ctx, domain.SaleCreateRequest{
		Lines:     []domain.SaleLine{{StockID: "stk-pesto-500ml-a", Quantity: 13}},
		SoldTo:    domain.SoldTo{Kind: domain.SoldToWalkIn, Name: "Walk-in"},
		AccountID: "acc-cash",
	})
	if !errors.Is(err, store.ErrInsufficientStock) {
		t.Fatalf("expected ErrInsufficientStock, got %v", err)
	}

	stock, err := svc.GetStock(ctx, "stk-pesto-500ml-a")
	if err != nil {
		t.Fatalf("get stock failed: %v", err)
	}
	if stock.Quantity != 12 {
		t.Fatalf("expected quantity untouched at 12, got %d", stock.Quantity)
	}

	account, err := svc.GetAccount(ctx, "acc-cash")
	if err != nil {
		t.Fatalf("get account failed: %v", err)
	}
	if account.CurrentBalanceCents != 0 {
		t.Fatalf("expected balance untouched at 0, got %d", account.CurrentBalanceCents)
	}

	sells, _, err := svc.ListSells(ctx, 1, 50)
	if err != nil {
		t.Fatalf("list sells failed: %v", err)
	}
	if len(sells) != 0 {
		t.Fatalf("expected no sells after rejected sale, got %d", len(sells))
	}
}

func TestMultiLineSaleIsAtomic(t *testing.T) {
	svc := newTestService()
	ctx := adminCtx()

	_, err := svc.CreateSale(ctx, domain.SaleCreateRequest{
		Lines: []domain.SaleLine{
			{StockID: "stk-urea-1kg-a", Quantity: 2},
			{StockID: "stk-pesto-500ml-a", Quantity: 99},
		},
		SoldTo:    domain.SoldTo{Kind: domain.SoldToWalkIn, Name: "Walk-in"},
		AccountID: "acc-cash",
	})
	if !errors.Is(err, store.ErrInsufficientStock) {
		t.Fatalf("expected ErrInsufficientStock, got %v", err)
	}

	stock, err := svc.GetStock(ctx, "stk-urea-1kg-a")
	if err != nil {
		t.Fatalf("get stock failed: %v", err)
	}
	if stock.Quantity != 40 {
		t.Fatalf("expected first line to be rolled back, quantity 40, got %d", stock.Quantity)
	}
}

func TestSaleRejectsDuplicateLinesExceedingLot(t *testing.T) {
	svc := newTestService()
	ctx := adminCtx()

	_, err := svc.CreateSale(ctx, domain.SaleCreateRequest{
		Lines: []domain.SaleLine{
			{StockID: "stk-pesto-500ml-a", Quantity: 8},
			{StockID: "stk-pesto-500ml-a", Quantity: 8},
		},
		SoldTo:    domain.SoldTo{Kind: domain.SoldToWalkIn, Name: "Walk-in"},
		AccountID: "acc-cash",
	})
	if !errors.Is(err, store.ErrInsufficientStock) {
		t.Fatalf("expected ErrInsufficientStock for repeated lines over the lot, got %v", err)
	}

	stock, err := svc.GetStock(ctx, "stk-pesto-500ml-a")
	if err != nil {
		t.Fatalf("get stock failed: %v", err)
	}
	if stock.Quantity != 12 {
		t.Fatalf("expected quantity untouched at 12, got %d", stock.Quantity)
	}
	if got := mustBalance(t, svc, "acc-cash"); got != 0 {
		t.Fatalf("expected balance untouched at 0, got %d", got)
	}
	sells, _, err := svc.ListSells(ctx, 1, 50)
	if err != nil {
		t.Fatalf("list sells failed: %v", err)
	}
	if len(sells) != 0 {
		t.Fatalf("expected no sells, got %d", len(sells))
	}
}

func TestSaleAllowsRepeatedLinesWithinLot(t *testing.T) {
	svc := newTestService()
	ctx := adminCtx()

	sells, err := svc.CreateSale(ctx, domain.SaleCreateRequest{
		Lines: []domain.SaleLine{
			{StockID: "stk-pesto-500ml-a", Quantity: 5},
			{StockID: "stk-pesto-500ml-a", Quantity: 7},
		},
		SoldTo:    domain.SoldTo{Kind: domain.SoldToWalkIn, Name: "Walk-in"},
		AccountID: "acc-cash",
	})
	if err != nil {
		t.Fatalf("sale failed: %v", err)
	}
	if len(sells) != 2 {
		t.Fatalf("expected 2 sell rows, got %d", len(sells))
	}

	stock, err := svc.GetStock(ctx, "stk-pesto-500ml-a")
	if err != nil {
		t.Fatalf("get stock failed: %v", err)
	}
	if stock.Quantity != 0 {
		t.Fatalf("expected lot fully depleted, got %d", stock.Quantity)
	}
	if stock.Status != domain.StockStatusSold {
		t.Fatalf("expected status sold, got %s", stock.Status)
	}
	if got := mustBalance(t, svc, "acc-cash"); got != 12*41000 {
		t.Fatalf("expected balance %d, got %d", 12*41000, got)
	}
}

func TestSaleDepletesLotToSoldStatus(t *testing.T) {
	svc := newTestService()
	ctx := adminCtx()

	_, err := svc.CreateSale(ctx, domain.SaleCreateRequest{
		Lines:     []domain.SaleLine{{StockID: "stk-pesto-500ml-a", Quantity: 12}},
		SoldTo:    domain.SoldTo{Kind: domain.SoldToWalkIn, Name: "Walk-in"},
		AccountID: "acc-cash",
	})
	if err != nil {
		t.Fatalf("sale failed: %v", err)
	}

	stock, err := svc.GetStock(ctx, "stk-pesto-500ml-a")
	if err != nil {
		t.Fatalf("get stock failed: %v", err)
	}
	if stock.Quantity != 0 {
		t.Fatalf("expected quantity 0, got %d", stock.Quantity)
	}
	if stock.Status != domain.StockStatusSold {
		t.Fatalf("expected status sold, got %s", stock.Status)
	}
}

func TestSaleRequestDecisionIsTerminal(t *testing.T) {
	svc := newTestService()

	req, err := svc.CreateSaleRequest(staffCtx(), domain.SaleRequestCreate{
		Lines:     []domain.SaleLine{{StockID: "stk-urea-1kg-a", Quantity: 5}},
		SoldTo:    domain.SoldTo{Kind: domain.SoldToWalkIn, Name: "Walk-in"},
		AccountID: "acc-cash",
	})
	if err != nil {
		t.Fatalf("create sale request failed: %v", err)
	}
	if req.RequestedBy != "user-staff" {
		t.Fatalf("expected requested_by user-staff, got %s", req.RequestedBy)
	}

	result, err := svc.DecideSaleRequest(adminCtx(), req.ID, domain.RequestStatusAccepted)
	if err != nil {
		t.Fatalf("accept sale request failed: %v", err)
	}
	if len(result.Sells) != 1 {
		t.Fatalf("expected 1 sell from accepted request, got %d", len(result.Sells))
	}
	if result.Sells[0].SoldBy != "user-staff" {
		t.Fatalf("expected sale attributed to requester, got %s", result.Sells[0].SoldBy)
	}

	balanceAfter := mustBalance(t, svc, "acc-cash")

	_, err = svc.DecideSaleRequest(adminCtx(), req.ID, domain.RequestStatusAccepted)
	if !errors.Is(err, store.ErrAlreadyProcessed) {
		t.Fatalf("expected ErrAlreadyProcessed on re-accept, got %v", err)
	}
	_, err = svc.DecideSaleRequest(adminCtx(), req.ID, domain.RequestStatusRejected)
	if !errors.Is(err, store.ErrAlreadyProcessed) {
		t.Fatalf("expected ErrAlreadyProcessed on reject after accept, got %v", err)
	}

	if got := mustBalance(t, svc, "acc-cash"); got != balanceAfter {
		t.Fatalf("expected balance unchanged by re-decide, got %d want %d", got, balanceAfter)
	}

	stock, err := svc.GetStock(adminCtx(), "stk-urea-1kg-a")
	if err != nil {
		t.Fatalf("get stock failed: %v", err)
	}
	if stock.Quantity != 35 {
		t.Fatalf("expected stock decremented exactly once to 35, got %d", stock.Quantity)
	}
}

func TestRejectedSaleRequestLeavesStateUntouched(t *testing.T) {
	svc := newTestService()

	req, err := svc.CreateSaleRequest(staffCtx(), domain.SaleRequestCreate{
		Lines:     []domain.SaleLine{{StockID: "stk-urea-1kg-a", Quantity: 5}},
		SoldTo:    domain.SoldTo{Kind: domain.SoldToWalkIn, Name: "Walk-in"},
		AccountID: "acc-cash",
	})
	if err != nil {
		t.Fatalf("create sale request failed: %v", err)
	}

	result, err := svc.DecideSaleRequest(adminCtx(), req.ID, domain.RequestStatusRejected)
	if err != nil {
		t.Fatalf("reject sale request failed: %v", err)
	}
	if result.Status != domain.RequestStatusRejected {
		t.Fatalf("expected rejected status, got %s", result.Status)
	}

	stock, err := svc.GetStock(adminCtx(), "stk-urea-1kg-a")
	if err != nil {
		t.Fatalf("get stock failed: %v", err)
	}
	if stock.Quantity != 40 {
		t.Fatalf("expected quantity untouched at 40, got %d", stock.Quantity)
	}
	if got := mustBalance(t, svc, "acc-cash"); got != 0 {
		t.Fatalf("expected balance untouched at 0, got %d", got)
	}

	_, err = svc.DecideSaleRequest(adminCtx(), req.ID, domain.RequestStatusAccepted)
	if !errors.Is(err, store.ErrAlreadyProcessed) {
		t.Fatalf("expected ErrAlreadyProcessed on accept after reject, got %v", err)
	}
}

func TestStockAddRequestMergesMatchingLot(t *testing.T) {
	svc := newTestService()

	expiry := time.Now().UTC().AddDate(2, 0, 0)
	firstID := seedLot(t, svc, "size-urea-1kg", 10, 4500, 6000, &expiry)

	req, err := svc.CreateStockAddRequest(staffCtx(), domain.StockAddRequestCreate{
		SizeID:            "size-urea-1kg",
		Quantity:          15,
		ExpiryDate:        &expiry,
		BatchNo:           "B-TEST-2",
		BuyingPriceCents:  4500,
		SellingPriceCents: 6000,
	})
	if err != nil {
		t.Fatalf("create second request failed: %v", err)
	}

	result, err := svc.DecideStockAddRequest(adminCtx(), req.ID, domain.RequestStatusAccepted)
	if err != nil {
		t.Fatalf("accept second request failed: %v", err)
	}
	if result.Stock.ID != firstID {
		t.Fatalf("expected merge into lot %s, got new lot %s", firstID, result.Stock.ID)
	}
	if result.Stock.Quantity != 25 {
		t.Fatalf("expected merged quantity 25, got %d", result.Stock.Quantity)
	}
}

func TestStockAddRequestDifferentExpiryOpensNewLot(t *testing.T) {
	svc := newTestService()

	nearExpiry := time.Now().UTC().AddDate(0, 3, 0)
	farExpiry := time.Now().UTC().AddDate(2, 0, 0)

	firstID := seedLot(t, svc, "size-pesto-500ml", 10, 32000, 41000, &nearExpiry)
	secondID := seedLot(t, svc, "size-pesto-500ml", 10, 32000, 41000, &farExpiry)

	if firstID == secondID {
		t.Fatalf("expected distinct lots for distinct expiry dates")
	}
}

func TestAccountBalanceTracksTransactionHistory(t *testing.T) {
	svc := newTestService()
	ctx := adminCtx()

	account, err := svc.CreateAccount(ctx, domain.AccountCreateRequest{
		Name:                "Till Drawer",
		Type:                domain.AccountTypeCash,
		OpeningBalanceCents: 1000,
	})
	if err != nil {
		t.Fatalf("create account failed: %v", err)
	}
	if account.CurrentBalanceCents != 1000 {
		t.Fatalf("expected opening balance 1000, got %d", account.CurrentBalanceCents)
	}

	ops := []struct {
		txType string
		amount int64
	}{
		{domain.TxTypeCredit, 500},
		{domain.TxTypeDebit, 200},
		{domain.TxTypeCredit, 75},
		{domain.TxTypeDebit, 1300},
		{domain.TxTypeCredit, 40},
	}
	want := account.CurrentBalanceCents
	for _, op := range ops {
		_, err := svc.CreateTransaction(ctx, domain.TransactionCreateRequest{
			AccountID:   account.ID,
			Type:        op.txType,
			AmountCents: op.amount,
			Reason:      domain.TxReasonAdjustment,
		})
		if err != nil {
			t.Fatalf("create transaction failed: %v", err)
		}
		if op.txType == domain.TxTypeCredit {
			want += op.amount
		} else {
			want -= op.amount
		}
		if got := mustBalance(t, svc, account.ID); got != want {
			t.Fatalf("balance diverged from history: got %d want %d", got, want)
		}
	}

	txs, meta, err := svc.ListTransactions(ctx, account.ID, 1, 50)
	if err != nil {
		t.Fatalf("list transactions failed: %v", err)
	}
	if len(txs) != len(ops)+1 {
		t.Fatalf("expected %d transactions including opening, got %d", len(ops)+1, len(txs))
	}
	if meta.TotalData != len(ops)+1 {
		t.Fatalf("expected meta total %d, got %d", len(ops)+1, meta.TotalData)
	}

	var sum int64
	for _, tx := range txs {
		sum += tx.SignedCents()
	}
	if got := mustBalance(t, svc, account.ID); got != sum {
		t.Fatalf("balance %d does not equal signed sum %d", got, sum)
	}
}

func TestTransactionUpdateReconcilesBalance(t *testing.T) {
	svc := newTestService()
	ctx := adminCtx()

	tx, err := svc.CreateTransaction(ctx, domain.TransactionCreateRequest{
		AccountID:   "acc-cash",
		Type:        domain.TxTypeCredit,
		AmountCents: 500,
		Reason:      domain.TxReasonAdjustment,
	})
	if err != nil {
		t.Fatalf("create transaction failed: %v", err)
	}
	if got := mustBalance(t, svc, "acc-cash"); got != 500 {
		t.Fatalf("expected balance 500, got %d", got)
	}

	amount := int64(300)
	if _, err := svc.UpdateTransaction(ctx, tx.ID, domain.TransactionPatch{AmountCents: &amount}); err != nil {
		t.Fatalf("update transaction failed: %v", err)
	}
	if got := mustBalance(t, svc, "acc-cash"); got != 300 {
		t.Fatalf("expected reconciled balance 300, got %d", got)
	}

	debit := domain.TxTypeDebit
	if _, err := svc.UpdateTransaction(ctx, tx.ID, domain.TransactionPatch{Type: &debit}); err != nil {
		t.Fatalf("retype transaction failed: %v", err)
	}
	if got := mustBalance(t, svc, "acc-cash"); got != -300 {
		t.Fatalf("expected reconciled balance -300 after retype, got %d", got)
	}
}

func TestTransactionDeleteReversesEffect(t *testing.T) {
	svc := newTestService()
	ctx := adminCtx()

	tx, err := svc.CreateTransaction(ctx, domain.TransactionCreateRequest{
		AccountID:   "acc-cash",
		Type:        domain.TxTypeCredit,
		AmountCents: 750,
		Reason:      domain.TxReasonAdjustment,
	})
	if err != nil {
		t.Fatalf("create transaction failed: %v", err)
	}

	if err := svc.DeleteTransaction(ctx, tx.ID); err != nil {
		t.Fatalf("delete transaction failed: %v", err)
	}
	if got := mustBalance(t, svc, "acc-cash"); got != 0 {
		t.Fatalf("expected balance back to 0 after delete, got %d", got)
	}
}

func TestWalkInSaleRequiresName(t *testing.T) {
	svc := newTestService()

	_, err := svc.CreateSale(adminCtx(), domain.SaleCreateRequest{
		Lines:     []domain.SaleLine{{StockID: "stk-urea-1kg-a", Quantity: 1}},
		SoldTo:    domain.SoldTo{Kind: domain.SoldToWalkIn},
		AccountID: "acc-cash",
	})
	if !errors.Is(err, store.ErrInvalidInput) {
		t.Fatalf("expected ErrInvalidInput for nameless walk-in, got %v", err)
	}
}

func TestCustomerSaleRequiresRegisteredCustomer(t *testing.T) {
	svc := newTestService()
	ctx := adminCtx()

	_, err := svc.CreateSale(ctx, domain.SaleCreateRequest{
		Lines:     []domain.SaleLine{{StockID: "stk-urea-1kg-a", Quantity: 1}},
		SoldTo:    domain.SoldTo{Kind: domain.SoldToCustomer, CustomerID: "cust-missing"},
		AccountID: "acc-cash",
	})
	if !errors.Is(err, store.ErrNotFound) {
		t.Fatalf("expected ErrNotFound for unknown customer, got %v", err)
	}

	customer, err := svc.CreateCustomer(ctx, domain.CustomerCreateRequest{
		Name:        "Sita Devi",
		PhoneNumber: "9812345670",
	})
	if err != nil {
		t.Fatalf("create customer failed: %v", err)
	}

	sells, err := svc.CreateSale(ctx, domain.SaleCreateRequest{
		Lines:     []domain.SaleLine{{StockID: "stk-urea-1kg-a", Quantity: 1}},
		SoldTo:    domain.SoldTo{Kind: domain.SoldToCustomer, CustomerID: customer.ID},
		AccountID: "acc-cash",
	})
	if err != nil {
		t.Fatalf("customer sale failed: %v", err)
	}
	if sells[0].SoldTo.CustomerID != customer.ID {
		t.Fatalf("expected sale tagged with customer id %s", customer.ID)
	}
}

func TestCompanyStockSummaryAggregatesAcrossLots(t *testing.T) {
	svc := newTestService()
	ctx := adminCtx()

	expiry := time.Now().UTC().AddDate(0, 9, 0)
	seedLot(t, svc, "size-urea-1kg", 10, 4600, 6100, &expiry)

	groups, err := svc.CompanyStockSummary(ctx, "comp-greengro")
	if err != nil {
		t.Fatalf("stock summary failed: %v", err)
	}

	found := false
	for _, group := range groups {
		if group.SizeID == "size-urea-1kg" {
			found = true
			if group.TotalQuantity != 50 {
				t.Fatalf("expected total quantity 50 across lots, got %d", group.TotalQuantity)
			}
		}
	}
	if !found {
		t.Fatalf("expected summary group for size-urea-1kg")
	}
}

func TestNonCashAccountRequiresAccountNumber(t *testing.T) {
	svc := newTestService()

	_, err := svc.CreateAccount(adminCtx(), domain.AccountCreateRequest{
		Name: "Himalayan Bank",
		Type: domain.AccountTypeBank,
	})
	if !errors.Is(err, store.ErrInvalidInput) {
		t.Fatalf("expected ErrInvalidInput for bank account without number, got %v", err)
	}
}

func mustBalance(t *testing.T, svc *Service, accountID string) int64 {
	t.Helper()
	account, err := svc.GetAccount(adminCtx(), accountID)
	if err != nil {
		t.Fatalf("get account failed: %v", err)
	}
	return account.CurrentBalanceCents
}
