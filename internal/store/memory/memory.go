package memory

import (
	"context"
	"log"
	"os"
	"sort"
	"strings"
	"sync"
	"time"

	"golang.org/x/crypto/bcrypt"

	"krishantraders/backend/internal/domain"
	"krishantraders/backend/internal/store"
	"krishantraders/backend/internal/xid"
)

// Store is a mutex-guarded in-memory Repository used for dev mode and tests.
// Every multi-entity operation validates fully before its first mutation, so
// a failing call leaves no partial state behind.
type Store struct {
	mu           sync.RWMutex
	companies    map[string]domain.Company
	products     map[string]domain.Product
	sizes        map[string]domain.Size
	stocks       map[string]domain.Stock
	accounts     map[string]domain.Account
	accountTxs   map[string]domain.AccountTransaction
	stockAddReqs map[string]domain.StockAddRequest
	saleReqs     map[string]domain.SaleRequest
	sells        map[string]domain.Sell
	records      []domain.Record
	users        map[string]domain.User
	customers    map[string]domain.Customer
}

func New() *Store {
	return &Store{
		companies:    make(map[string]domain.Company),
		products:     make(map[string]domain.Product),
		sizes:        make(map[string]domain.Size),
		stocks:       make(map[string]domain.Stock),
		accounts:     make(map[string]domain.Account),
		accountTxs:   make(map[string]domain.AccountTransaction),
		stockAddReqs: make(map[string]domain.StockAddRequest),
		saleReqs:     make(map[string]domain.SaleRequest),
		sells:        make(map[string]domain.Sell),
		users:        make(map[string]domain.User),
		customers:    make(map[string]domain.Customer),
	}
}

// NewSeeded returns a store preloaded with a small catalog, two user accounts
// and a cash account so the server is usable without Postgres. Credentials
// come from SEED_ADMIN_PASSWORD / SEED_STAFF_PASSWORD, with dev defaults.
func NewSeeded() *Store {
	s := New()
	now := time.Now().UTC()

	adminPwd := envOr("SEED_ADMIN_PASSWORD", "admin123")
	staffPwd := envOr("SEED_STAFF_PASSWORD", "staff123")
	if os.Getenv("SEED_ADMIN_PASSWORD") == "" || os.Getenv("SEED_STAFF_PASSWORD") == "" {
		log.Println("[memory-store] WARNING: using default dev credentials. Set SEED_ADMIN_PASSWORD and SEED_STAFF_PASSWORD to override.")
	}

	for _, u := range []struct {
		id, name, email, password, role string
	}{
		{"user-admin", "Krishan Admin", "admin@krishantraders.com", adminPwd, domain.RoleAdmin},
		{"user-staff", "Counter Staff", "staff@krishantraders.com", staffPwd, domain.RoleStaff},
	} {
		hash, err := bcrypt.GenerateFromPassword([]byte(u.password), bcrypt.DefaultCost)
		if err != nil {
			log.Fatalf("[memory-store] failed to hash seed password for %s: %v", u.email, err)
		}
		s.users[u.id] = domain.User{
			ID:        u.id,
			Name:      u.name,
			Email:     u.email,
			Password:  string(hash),
			Role:      u.role,
			Status:    domain.UserStatusActive,
			CreatedAt: now,
		}
	}

	s.companies["comp-greengro"] = domain.Company{ID: "comp-greengro", Name: "GreenGro Fertilizers", CreatedAt: now}
	s.companies["comp-agrolux"] = domain.Company{ID: "comp-agrolux", Name: "AgroLux Crop Care", CreatedAt: now}

	s.products["prod-urea"] = domain.Product{ID: "prod-urea", CompanyID: "comp-greengro", Name: "Urea Plus", CreatedAt: now}
	s.products["prod-pesto"] = domain.Product{ID: "prod-pesto", CompanyID: "comp-agrolux", Name: "Pestoguard", CreatedAt: now}

	s.sizes["size-urea-1kg"] = domain.Size{
		ID: "size-urea-1kg", ProductID: "prod-urea", Label: "1kg pack", Unit: domain.UnitKG,
		UnitQuantity: 1, StackCount: 20, BuyingPriceCents: 4500, SellingPriceCents: 6000,
		Active: true, CreatedAt: now,
	}
	s.sizes["size-urea-50kg"] = domain.Size{
		ID: "size-urea-50kg", ProductID: "prod-urea", Label: "50kg bag", Unit: domain.UnitKG,
		UnitQuantity: 50, StackCount: 1, BuyingPriceCents: 195000, SellingPriceCents: 240000,
		Active: true, CreatedAt: now,
	}
	s.sizes["size-pesto-500ml"] = domain.Size{
		ID: "size-pesto-500ml", ProductID: "prod-pesto", Label: "500ml bottle", Unit: domain.UnitML,
		UnitQuantity: 500, StackCount: 24, BuyingPriceCents: 32000, SellingPriceCents: 41000,
		Active: true, CreatedAt: now,
	}

	expiry := now.AddDate(1, 0, 0)
	s.stocks["stk-urea-1kg-a"] = domain.Stock{
		ID: "stk-urea-1kg-a", SizeID: "size-urea-1kg", BatchNo: "B-2401", Quantity: 40,
		StockedBy: "user-admin", StockedDate: now, ExpiryDate: &expiry,
		Status: domain.StockStatusAvailable, BuyingPriceCents: 4500, SellingPriceCents: 6000,
	}
	s.stocks["stk-pesto-500ml-a"] = domain.Stock{
		ID: "stk-pesto-500ml-a", SizeID: "size-pesto-500ml", BatchNo: "B-2402", Quantity: 12,
		StockedBy: "user-admin", StockedDate: now, ExpiryDate: &expiry,
		Status: domain.StockStatusAvailable, BuyingPriceCents: 32000, SellingPriceCents: 41000,
	}

	s.accounts["acc-cash"] = domain.Account{
		ID: "acc-cash", Name: "Shop Cash", Type: domain.AccountTypeCash, CreatedAt: now,
	}

	return s
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

// --- Catalog ---

func (m *Store) CreateCompany(_ context.Context, company domain.Company) (*domain.Company, error) {
	if strings.TrimSpace(company.Name) == "" {
		return nil, store.ErrInvalidInput
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	for _, existing := range m.companies {
		if strings.EqualFold(existing.Name, company.Name) {
			return nil, store.ErrDuplicateKey
		}
	}
	if company.ID == "" {
		company.ID = xid.New("comp")
	}
	if company.CreatedAt.IsZero() {
		company.CreatedAt = time.Now().UTC()
	}
	m.companies[company.ID] = company
	created := company
	return &created, nil
}

func (m *Store) ListCompanies(_ context.Context) ([]domain.Company, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	companies := make([]domain.Company, 0, len(m.companies))
	for _, c := range m.companies {
		companies = append(companies, c)
	}
	sort.Slice(companies, func(i, j int) bool { return companies[i].Name < companies[j].Name })
	return companies, nil
}

func (m *Store) GetCompany(_ context.Context, id string) (*domain.Company, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	company, ok := m.companies[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	found := company
	return &found, nil
}

func (m *Store) UpdateCompany(_ context.Context, company domain.Company) (*domain.Company, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	existing, ok := m.companies[company.ID]
	if !ok {
		return nil, store.ErrNotFound
	}
	for id, other := range m.companies {
		if id != company.ID && strings.EqualFold(other.Name, company.Name) {
			return nil, store.ErrDuplicateKey
		}
	}
	company.CreatedAt = existing.CreatedAt
	m.companies[company.ID] = company
	updated := company
	return &updated, nil
}

func (m *Store) DeleteCompany(_ context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.companies[id]; !ok {
		return store.ErrNotFound
	}
	// Hard delete, no cascade: dependent products keep their company_id.
	delete(m.companies, id)
	return nil
}

func (m *Store) CreateProduct(_ context.Context, product domain.Product) (*domain.Product, error) {
	if strings.TrimSpace(product.Name) == "" || product.CompanyID == "" {
		return nil, store.ErrInvalidInput
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.companies[product.CompanyID]; !ok {
		return nil, store.ErrNotFound
	}
	if product.ID == "" {
		product.ID = xid.New("prod")
	}
	if product.CreatedAt.IsZero() {
		product.CreatedAt = time.Now().UTC()
	}
	m.products[product.ID] = product
	created := product
	return &created, nil
}

func (m *Store) ListProducts(_ context.Context, companyID string) ([]domain.ProductView, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	views := make([]domain.ProductView, 0, len(m.products))
	for _, p := range m.products {
		if companyID != "" && p.CompanyID != companyID {
			continue
		}
		view := domain.ProductView{Product: p}
		if company, ok := m.companies[p.CompanyID]; ok {
			view.CompanyName = company.Name
		}
		views = append(views, view)
	}
	sort.Slice(views, func(i, j int) bool { return views[i].Name < views[j].Name })
	return views, nil
}

func (m *Store) GetProduct(_ context.Context, id string) (*domain.Product, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	product, ok := m.products[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	found := product
	return &found, nil
}

func (m *Store) UpdateProduct(_ context.Context, product domain.Product) (*domain.Product, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	existing, ok := m.products[product.ID]
	if !ok {
		return nil, store.ErrNotFound
	}
	product.CreatedAt = existing.CreatedAt
	m.products[product.ID] = product
	updated := product
	return &updated, nil
}

func (m *Store) DeleteProduct(_ context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.products[id]; !ok {
		return store.ErrNotFound
	}
	delete(m.products, id)
	return nil
}

func (m *Store) CreateSize(_ context.Context, size domain.Size) (*domain.Size, error) {
	if strings.TrimSpace(size.Label) == "" || size.ProductID == "" || !domain.ValidUnit(size.Unit) {
		return nil, store.ErrInvalidInput
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.products[size.ProductID]; !ok {
		return nil, store.ErrNotFound
	}
	if size.ID == "" {
		size.ID = xid.New("size")
	}
	if size.CreatedAt.IsZero() {
		size.CreatedAt = time.Now().UTC()
	}
	m.sizes[size.ID] = size
	created := size
	return &created, nil
}

func (m *Store) ListSizes(_ context.Context, productID string) ([]domain.SizeView, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	views := make([]domain.SizeView, 0, len(m.sizes))
	for _, size := range m.sizes {
		if productID != "" && size.ProductID != productID {
			continue
		}
		views = append(views, m.sizeViewLocked(size))
	}
	sort.Slice(views, func(i, j int) bool { return views[i].Label < views[j].Label })
	return views, nil
}

func (m *Store) sizeViewLocked(size domain.Size) domain.SizeView {
	view := domain.SizeView{Size: size}
	if product, ok := m.products[size.ProductID]; ok {
		view.ProductName = product.Name
		view.CompanyID = product.CompanyID
		if company, ok := m.companies[product.CompanyID]; ok {
			view.CompanyName = company.Name
		}
	}
	return view
}

func (m *Store) GetSize(_ context.Context, id string) (*domain.Size, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	size, ok := m.sizes[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	found := size
	return &found, nil
}

func (m *Store) UpdateSize(_ context.Context, size domain.Size) (*domain.Size, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	existing, ok := m.sizes[size.ID]
	if !ok {
		return nil, store.ErrNotFound
	}
	size.CreatedAt = existing.CreatedAt
	m.sizes[size.ID] = size
	updated := size
	return &updated, nil
}

func (m *Store) DeleteSize(_ context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.sizes[id]; !ok {
		return store.ErrNotFound
	}
	delete(m.sizes, id)
	return nil
}

// --- Inventory ledger ---

func (m *Store) ListStock(_ context.Context, filter domain.StockFilter) ([]domain.StockView, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	views := make([]domain.StockView, 0, len(m.stocks))
	for _, stock := range m.stocks {
		if filter.Status != "" && stock.Status != filter.Status {
			continue
		}
		if filter.SizeID != "" && stock.SizeID != filter.SizeID {
			continue
		}
		views = append(views, m.stockViewLocked(stock))
	}

	switch filter.Sort {
	case "expiry":
		sort.Slice(views, func(i, j int) bool {
			left, right := views[i].ExpiryDate, views[j].ExpiryDate
			if left == nil {
				return false
			}
			if right == nil {
				return true
			}
			return left.Before(*right)
		})
	default:
		sort.Slice(views, func(i, j int) bool { return views[i].StockedDate.After(views[j].StockedDate) })
	}
	return views, nil
}

func (m *Store) stockViewLocked(stock domain.Stock) domain.StockView {
	view := domain.StockView{Stock: stock}
	if size, ok := m.sizes[stock.SizeID]; ok {
		view.SizeLabel = size.Label
		view.ProductID = size.ProductID
		if product, ok := m.products[size.ProductID]; ok {
			view.ProductName = product.Name
			view.CompanyID = product.CompanyID
			if company, ok := m.companies[product.CompanyID]; ok {
				view.CompanyName = company.Name
			}
		}
	}
	if user, ok := m.users[stock.StockedBy]; ok {
		view.StockedByName = user.Name
	}
	return view
}

func (m *Store) GetStock(_ context.Context, id string) (*domain.Stock, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	stock, ok := m.stocks[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	found := stock
	return &found, nil
}

func (m *Store) UpdateStock(_ context.Context, id string, patch domain.StockPatch) (*domain.Stock, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	stock, ok := m.stocks[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	applyStockPatch(&stock, patch)
	if stock.Quantity < 0 {
		return nil, store.ErrInvalidInput
	}
	m.stocks[id] = stock
	updated := stock
	return &updated, nil
}

func applyStockPatch(stock *domain.Stock, patch domain.StockPatch) {
	if patch.BatchNo != nil {
		stock.BatchNo = *patch.BatchNo
	}
	if patch.Quantity != nil {
		stock.Quantity = *patch.Quantity
	}
	if patch.ExpiryDate != nil {
		expiry := patch.ExpiryDate.UTC()
		stock.ExpiryDate = &expiry
	}
	if patch.Status != nil {
		stock.Status = *patch.Status
	}
	if patch.BuyingPriceCents != nil {
		stock.BuyingPriceCents = *patch.BuyingPriceCents
	}
	if patch.SellingPriceCents != nil {
		stock.SellingPriceCents = *patch.SellingPriceCents
	}
	if patch.ImageURL != nil {
		stock.ImageURL = *patch.ImageURL
	}
}

func (m *Store) DeleteStock(_ context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.stocks[id]; !ok {
		return store.ErrNotFound
	}
	// Historical Sell/Record rows keep their stock reference.
	delete(m.stocks, id)
	return nil
}

func (m *Store) AggregateStockByCompany(_ context.Context, companyID string) ([]domain.CompanyStockGroup, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if _, ok := m.companies[companyID]; !ok {
		return nil, store.ErrNotFound
	}

	ids := make([]string, 0, len(m.stocks))
	for id := range m.stocks {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	groups := make(map[string]*domain.CompanyStockGroup)
	order := make([]string, 0)
	for _, id := range ids {
		stock := m.stocks[id]
		size, ok := m.sizes[stock.SizeID]
		if !ok {
			continue
		}
		product, ok := m.products[size.ProductID]
		if !ok || product.CompanyID != companyID {
			continue
		}
		key := product.ID + "/" + size.ID
		group, ok := groups[key]
		if !ok {
			// First lot of a group supplies the label and prices; lots of the
			// same size share them by construction.
			group = &domain.CompanyStockGroup{
				ProductID:         product.ID,
				ProductName:       product.Name,
				SizeID:            size.ID,
				SizeLabel:         size.Label,
				BuyingPriceCents:  stock.BuyingPriceCents,
				SellingPriceCents: stock.SellingPriceCents,
			}
			groups[key] = group
			order = append(order, key)
		}
		group.TotalQuantity += stock.Quantity
	}

	result := make([]domain.CompanyStockGroup, 0, len(order))
	for _, key := range order {
		result = append(result, *groups[key])
	}
	return result, nil
}

// --- Account ledger ---

func (m *Store) CreateAccount(_ context.Context, account domain.Account) (*domain.Account, error) {
	if strings.TrimSpace(account.Name) == "" || !domain.ValidAccountType(account.Type) || account.OpeningBalanceCents < 0 {
		return nil, store.ErrInvalidInput
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if account.ID == "" {
		account.ID = xid.New("acc")
	}
	if account.CreatedAt.IsZero() {
		account.CreatedAt = time.Now().UTC()
	}
	account.CurrentBalanceCents = account.OpeningBalanceCents
	m.accounts[account.ID] = account

	if account.OpeningBalanceCents > 0 {
		opening := domain.AccountTransaction{
			ID:          xid.New("atx"),
			AccountID:   account.ID,
			Type:        domain.TxTypeCredit,
			AmountCents: account.OpeningBalanceCents,
			Reason:      domain.TxReasonAdjustment,
			Note:        "Opening Balance",
			CreatedAt:   account.CreatedAt,
		}
		m.accountTxs[opening.ID] = opening
	}

	created := account
	return &created, nil
}

func (m *Store) ListAccounts(_ context.Context) ([]domain.Account, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	accounts := make([]domain.Account, 0, len(m.accounts))
	for _, account := range m.accounts {
		accounts = append(accounts, account)
	}
	sort.Slice(accounts, func(i, j int) bool { return accounts[i].Name < accounts[j].Name })
	return accounts, nil
}

func (m *Store) GetAccount(_ context.Context, id string) (*domain.Account, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	account, ok := m.accounts[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	found := account
	return &found, nil
}

func (m *Store) UpdateAccount(_ context.Context, id string, patch domain.AccountPatch) (*domain.Account, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	account, ok := m.accounts[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	if patch.Name != nil {
		if strings.TrimSpace(*patch.Name) == "" {
			return nil, store.ErrInvalidInput
		}
		account.Name = *patch.Name
	}
	if patch.AccountNumber != nil {
		account.AccountNumber = *patch.AccountNumber
	}
	if patch.BankName != nil {
		account.BankName = *patch.BankName
	}
	if patch.Note != nil {
		account.Note = *patch.Note
	}
	m.accounts[id] = account
	updated := account
	return &updated, nil
}

func (m *Store) CreateAccountTransaction(_ context.Context, tx domain.AccountTransaction) (*domain.AccountTransaction, error) {
	if tx.AmountCents <= 0 || !domain.ValidTxType(tx.Type) || !domain.ValidTxReason(tx.Reason) {
		return nil, store.ErrInvalidInput
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	account, ok := m.accounts[tx.AccountID]
	if !ok {
		return nil, store.ErrNotFound
	}
	if tx.ID == "" {
		tx.ID = xid.New("atx")
	}
	if tx.CreatedAt.IsZero() {
		tx.CreatedAt = time.Now().UTC()
	}

	account.CurrentBalanceCents += tx.SignedCents()
	m.accounts[account.ID] = account
	m.accountTxs[tx.ID] = tx

	created := tx
	return &created, nil
}

func (m *Store) ListAccountTransactions(_ context.Context, accountID string, page int, limit int) ([]domain.AccountTransaction, int, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	txs := make([]domain.AccountTransaction, 0, len(m.accountTxs))
	for _, tx := range m.accountTxs {
		if accountID != "" && tx.AccountID != accountID {
			continue
		}
		txs = append(txs, tx)
	}
	sort.Slice(txs, func(i, j int) bool {
		if txs[i].CreatedAt.Equal(txs[j].CreatedAt) {
			return txs[i].ID < txs[j].ID
		}
		return txs[i].CreatedAt.After(txs[j].CreatedAt)
	})

	total := len(txs)
	start, end := pageBounds(total, page, limit)
	return txs[start:end], total, nil
}

func (m *Store) GetAccountTransaction(_ context.Context, id string) (*domain.AccountTransaction, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	tx, ok := m.accountTxs[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	found := tx
	return &found, nil
}

func (m *Store) UpdateAccountTransaction(_ context.Context, id string, patch domain.TransactionPatch) (*domain.AccountTransaction, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	tx, ok := m.accountTxs[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	account, ok := m.accounts[tx.AccountID]
	if !ok {
		return nil, store.ErrNotFound
	}

	updated := tx
	if patch.Type != nil {
		if !domain.ValidTxType(*patch.Type) {
			return nil, store.ErrInvalidInput
		}
		updated.Type = *patch.Type
	}
	if patch.AmountCents != nil {
		if *patch.AmountCents <= 0 {
			return nil, store.ErrInvalidInput
		}
		updated.AmountCents = *patch.AmountCents
	}
	if patch.Reason != nil {
		if !domain.ValidTxReason(*patch.Reason) {
			return nil, store.ErrInvalidInput
		}
		updated.Reason = *patch.Reason
	}
	if patch.Note != nil {
		updated.Note = *patch.Note
	}

	// Reconcile the balance by the diff of the old and new signed effects.
	account.CurrentBalanceCents += updated.SignedCents() - tx.SignedCents()
	m.accounts[account.ID] = account
	m.accountTxs[id] = updated

	result := updated
	return &result, nil
}

func (m *Store) DeleteAccountTransaction(_ context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	tx, ok := m.accountTxs[id]
	if !ok {
		return store.ErrNotFound
	}
	account, ok := m.accounts[tx.AccountID]
	if !ok {
		return store.ErrNotFound
	}

	account.CurrentBalanceCents -= tx.SignedCents()
	m.accounts[account.ID] = account
	delete(m.accountTxs, id)
	return nil
}

// --- Request / approval state machine ---

func (m *Store) CreateStockAddRequest(_ context.Context, req domain.StockAddRequest) (*domain.StockAddRequest, error) {
	if req.Quantity < 1 || req.SizeID == "" {
		return nil, store.ErrInvalidInput
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.sizes[req.SizeID]; !ok {
		return nil, store.ErrNotFound
	}
	if req.ID == "" {
		req.ID = xid.New("sar")
	}
	if req.CreatedAt.IsZero() {
		req.CreatedAt = time.Now().UTC()
	}
	req.Status = domain.RequestStatusPending
	m.stockAddReqs[req.ID] = req

	created := req
	return &created, nil
}

func (m *Store) ListStockAddRequests(_ context.Context, status string) ([]domain.StockAddRequest, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	reqs := make([]domain.StockAddRequest, 0, len(m.stockAddReqs))
	for _, req := range m.stockAddReqs {
		if status != "" && req.Status != status {
			continue
		}
		reqs = append(reqs, req)
	}
	sort.Slice(reqs, func(i, j int) bool { return reqs[i].CreatedAt.After(reqs[j].CreatedAt) })
	return reqs, nil
}

func (m *Store) GetStockAddRequest(_ context.Context, id string) (*domain.StockAddRequest, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	req, ok := m.stockAddReqs[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	found := req
	return &found, nil
}

func (m *Store) AcceptStockAddRequest(_ context.Context, id string, decidedAt time.Time) (*domain.Stock, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	req, ok := m.stockAddReqs[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	if req.Status != domain.RequestStatusPending {
		return nil, store.ErrAlreadyProcessed
	}

	// Merge into an existing lot of the same size and expiry, else create one.
	var target *domain.Stock
	for stockID, stock := range m.stocks {
		if stock.SizeID == req.SizeID && sameExpiry(stock.ExpiryDate, req.ExpiryDate) && stock.Status == domain.StockStatusAvailable {
			merged := m.stocks[stockID]
			target = &merged
			break
		}
	}
	if target != nil {
		target.Quantity += req.Quantity
	} else {
		target = &domain.Stock{
			ID:                xid.New("stk"),
			SizeID:            req.SizeID,
			BatchNo:           req.BatchNo,
			Quantity:          req.Quantity,
			StockedBy:         req.RequestedBy,
			StockedDate:       decidedAt,
			ExpiryDate:        req.ExpiryDate,
			Status:            domain.StockStatusAvailable,
			BuyingPriceCents:  req.BuyingPriceCents,
			SellingPriceCents: req.SellingPriceCents,
			ImageURL:          req.ImageURL,
		}
	}
	m.stocks[target.ID] = *target

	m.records = append(m.records, domain.Record{
		ID:                xid.New("rec"),
		Type:              domain.RecordTypeStockIn,
		SizeID:            req.SizeID,
		StockID:           target.ID,
		Quantity:          req.Quantity,
		StockedDate:       decidedAt,
		ExpiryDate:        req.ExpiryDate,
		BuyingPriceCents:  req.BuyingPriceCents,
		SellingPriceCents: req.SellingPriceCents,
		Status:            domain.StockStatusAvailable,
		InteractedBy:      req.RequestedBy,
		CreatedAt:         decidedAt,
	})

	req.Status = domain.RequestStatusAccepted
	req.DecidedAt = &decidedAt
	m.stockAddReqs[id] = req

	result := *target
	return &result, nil
}

func (m *Store) RejectStockAddRequest(_ context.Context, id string, decidedAt time.Time) (*domain.StockAddRequest, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	req, ok := m.stockAddReqs[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	if req.Status != domain.RequestStatusPending {
		return nil, store.ErrAlreadyProcessed
	}
	req.Status = domain.RequestStatusRejected
	req.DecidedAt = &decidedAt
	m.stockAddReqs[id] = req

	rejected := req
	return &rejected, nil
}

func (m *Store) CreateSaleRequest(_ context.Context, req domain.SaleRequest) (*domain.SaleRequest, error) {
	if len(req.Lines) == 0 || req.AccountID == "" {
		return nil, store.ErrInvalidInput
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.accounts[req.AccountID]; !ok {
		return nil, store.ErrNotFound
	}
	for _, line := range req.Lines {
		if line.Quantity < 1 {
			return nil, store.ErrInvalidInput
		}
		if _, ok := m.stocks[line.StockID]; !ok {
			return nil, store.ErrNotFound
		}
	}
	if req.ID == "" {
		req.ID = xid.New("slr")
	}
	if req.CreatedAt.IsZero() {
		req.CreatedAt = time.Now().UTC()
	}
	req.Status = domain.RequestStatusPending
	m.saleReqs[req.ID] = req

	created := req
	return &created, nil
}

func (m *Store) ListSaleRequests(_ context.Context, status string) ([]domain.SaleRequest, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	reqs := make([]domain.SaleRequest, 0, len(m.saleReqs))
	for _, req := range m.saleReqs {
		if status != "" && req.Status != status {
			continue
		}
		reqs = append(reqs, req)
	}
	sort.Slice(reqs, func(i, j int) bool { return reqs[i].CreatedAt.After(reqs[j].CreatedAt) })
	return reqs, nil
}

func (m *Store) GetSaleRequest(_ context.Context, id string) (*domain.SaleRequest, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	req, ok := m.saleReqs[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	found := req
	return &found, nil
}

func (m *Store) AcceptSaleRequest(_ context.Context, id string, decidedAt time.Time) ([]domain.Sell, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	req, ok := m.saleReqs[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	if req.Status != domain.RequestStatusPending {
		return nil, store.ErrAlreadyProcessed
	}

	sells, err := m.applySaleLocked(store.SaleInput{
		Lines:     req.Lines,
		SoldTo:    req.SoldTo,
		AccountID: req.AccountID,
		ActorID:   req.RequestedBy,
		SoldDate:  decidedAt,
	})
	if err != nil {
		// Nothing was mutated; the request stays pending.
		return nil, err
	}

	req.Status = domain.RequestStatusAccepted
	req.DecidedAt = &decidedAt
	m.saleReqs[id] = req
	return sells, nil
}

func (m *Store) RejectSaleRequest(_ context.Context, id string, decidedAt time.Time) (*domain.SaleRequest, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	req, ok := m.saleReqs[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	if req.Status != domain.RequestStatusPending {
		return nil, store.ErrAlreadyProcessed
	}
	req.Status = domain.RequestStatusRejected
	req.DecidedAt = &decidedAt
	m.saleReqs[id] = req

	rejected := req
	return &rejected, nil
}

// --- Sales ---

func (m *Store) CreateSale(_ context.Context, input store.SaleInput) ([]domain.Sell, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	return m.applySaleLocked(input)
}

// applySaleLocked runs the unified sale routine under the store lock. The
// validation phase touches nothing, so any error leaves the store unchanged.
func (m *Store) applySaleLocked(input store.SaleInput) ([]domain.Sell, error) {
	if len(input.Lines) == 0 {
		return nil, store.ErrInvalidInput
	}
	account, ok := m.accounts[input.AccountID]
	if !ok {
		return nil, store.ErrNotFound
	}

	// Requested quantities are summed per lot so a sale that names the same
	// stock ID in several lines is checked against the running remainder.
	requested := make(map[string]int, len(input.Lines))
	for _, line := range input.Lines {
		if line.Quantity < 1 {
			return nil, store.ErrInvalidInput
		}
		stock, ok := m.stocks[line.StockID]
		if !ok {
			return nil, store.ErrNotFound
		}
		requested[line.StockID] += line.Quantity
		if stock.Quantity < requested[line.StockID] {
			return nil, store.ErrInsufficientStock
		}
	}

	soldDate := input.SoldDate
	if soldDate.IsZero() {
		soldDate = time.Now().UTC()
	}

	sells := make([]domain.Sell, 0, len(input.Lines))
	grandTotal := int64(0)
	for _, line := range input.Lines {
		stock := m.stocks[line.StockID]
		stock.Quantity -= line.Quantity
		if stock.Quantity == 0 {
			stock.Status = domain.StockStatusSold
		}
		m.stocks[stock.ID] = stock

		sell := domain.Sell{
			ID:                xid.New("sell"),
			StockID:           stock.ID,
			SizeID:            stock.SizeID,
			Quantity:          line.Quantity,
			SellingPriceCents: stock.SellingPriceCents,
			BuyingPriceCents:  stock.BuyingPriceCents,
			ProfitCents:       (stock.SellingPriceCents - stock.BuyingPriceCents) * int64(line.Quantity),
			TotalCents:        stock.SellingPriceCents * int64(line.Quantity),
			SoldTo:            input.SoldTo,
			AccountID:         input.AccountID,
			SoldBy:            input.ActorID,
			SoldDate:          soldDate,
		}
		m.sells[sell.ID] = sell
		sells = append(sells, sell)
		grandTotal += sell.TotalCents

		m.records = append(m.records, domain.Record{
			ID:                xid.New("rec"),
			Type:              domain.RecordTypeSale,
			SizeID:            stock.SizeID,
			StockID:           stock.ID,
			Quantity:          line.Quantity,
			StockedDate:       soldDate,
			ExpiryDate:        stock.ExpiryDate,
			BuyingPriceCents:  stock.BuyingPriceCents,
			SellingPriceCents: stock.SellingPriceCents,
			Status:            stock.Status,
			InteractedBy:      input.ActorID,
			CreatedAt:         soldDate,
		})
	}

	account.CurrentBalanceCents += grandTotal
	m.accounts[account.ID] = account

	saleTx := domain.AccountTransaction{
		ID:          xid.New("atx"),
		AccountID:   account.ID,
		Type:        domain.TxTypeCredit,
		AmountCents: grandTotal,
		Reason:      domain.TxReasonSale,
		CreatedAt:   soldDate,
	}
	m.accountTxs[saleTx.ID] = saleTx

	return sells, nil
}

func (m *Store) ListSells(_ context.Context, page int, limit int) ([]domain.Sell, int, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	sells := make([]domain.Sell, 0, len(m.sells))
	for _, sell := range m.sells {
		sells = append(sells, sell)
	}
	sort.Slice(sells, func(i, j int) bool {
		if sells[i].SoldDate.Equal(sells[j].SoldDate) {
			return sells[i].ID < sells[j].ID
		}
		return sells[i].SoldDate.After(sells[j].SoldDate)
	})

	total := len(sells)
	start, end := pageBounds(total, page, limit)
	return sells[start:end], total, nil
}

func (m *Store) GetSell(_ context.Context, id string) (*domain.Sell, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	sell, ok := m.sells[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	found := sell
	return &found, nil
}

func (m *Store) UpdateSell(_ context.Context, id string, patch domain.SellPatch) (*domain.Sell, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	sell, ok := m.sells[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	if patch.Quantity != nil {
		if *patch.Quantity < 1 {
			return nil, store.ErrInvalidInput
		}
		sell.Quantity = *patch.Quantity
	}
	if patch.SellingPriceCents != nil {
		sell.SellingPriceCents = *patch.SellingPriceCents
	}
	if patch.BuyingPriceCents != nil {
		sell.BuyingPriceCents = *patch.BuyingPriceCents
	}
	if patch.SoldTo != nil {
		sell.SoldTo = *patch.SoldTo
	}
	sell.ProfitCents = (sell.SellingPriceCents - sell.BuyingPriceCents) * int64(sell.Quantity)
	sell.TotalCents = sell.SellingPriceCents * int64(sell.Quantity)
	m.sells[id] = sell

	updated := sell
	return &updated, nil
}

func (m *Store) DeleteSell(_ context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.sells[id]; !ok {
		return store.ErrNotFound
	}
	delete(m.sells, id)
	return nil
}

func (m *Store) ListRecords(_ context.Context, recordType string, page int, limit int) ([]domain.Record, int, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	records := make([]domain.Record, 0, len(m.records))
	for _, record := range m.records {
		if recordType != "" && record.Type != recordType {
			continue
		}
		records = append(records, record)
	}
	// Append-only slice is already in creation order; newest first for display.
	for i, j := 0, len(records)-1; i < j; i, j = i+1, j-1 {
		records[i], records[j] = records[j], records[i]
	}

	total := len(records)
	start, end := pageBounds(total, page, limit)
	return records[start:end], total, nil
}

// --- Users / customers ---

func (m *Store) CreateUser(_ context.Context, user domain.User) (*domain.User, error) {
	if strings.TrimSpace(user.Email) == "" || user.Password == "" || !domain.ValidRole(user.Role) {
		return nil, store.ErrInvalidInput
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	for _, existing := range m.users {
		if strings.EqualFold(existing.Email, user.Email) {
			return nil, store.ErrDuplicateKey
		}
	}
	if user.ID == "" {
		user.ID = xid.New("user")
	}
	if user.CreatedAt.IsZero() {
		user.CreatedAt = time.Now().UTC()
	}
	if user.Status == "" {
		user.Status = domain.UserStatusActive
	}
	m.users[user.ID] = user

	created := user
	return &created, nil
}

func (m *Store) ListUsers(_ context.Context) ([]domain.User, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	users := make([]domain.User, 0, len(m.users))
	for _, user := range m.users {
		users = append(users, user)
	}
	sort.Slice(users, func(i, j int) bool { return users[i].Email < users[j].Email })
	return users, nil
}

func (m *Store) GetUserByEmail(_ context.Context, email string) (*domain.User, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	for _, user := range m.users {
		if strings.EqualFold(user.Email, email) {
			found := user
			return &found, nil
		}
	}
	return nil, store.ErrNotFound
}

func (m *Store) UpdateUser(_ context.Context, id string, patch domain.UserPatch) (*domain.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	user, ok := m.users[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	if patch.Name != nil {
		user.Name = *patch.Name
	}
	if patch.Role != nil {
		if !domain.ValidRole(*patch.Role) {
			return nil, store.ErrInvalidInput
		}
		user.Role = *patch.Role
	}
	if patch.Status != nil {
		if *patch.Status != domain.UserStatusActive && *patch.Status != domain.UserStatusBlocked {
			return nil, store.ErrInvalidInput
		}
		user.Status = *patch.Status
	}
	if patch.Deleted != nil {
		user.Deleted = *patch.Deleted
	}
	m.users[id] = user

	updated := user
	return &updated, nil
}

func (m *Store) CreateCustomer(_ context.Context, customer domain.Customer) (*domain.Customer, error) {
	if strings.TrimSpace(customer.PhoneNumber) == "" {
		return nil, store.ErrInvalidInput
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	for _, existing := range m.customers {
		if existing.PhoneNumber == customer.PhoneNumber {
			return nil, store.ErrDuplicateKey
		}
	}
	if customer.ID == "" {
		customer.ID = xid.New("cust")
	}
	if customer.CreatedAt.IsZero() {
		customer.CreatedAt = time.Now().UTC()
	}
	m.customers[customer.ID] = customer

	created := customer
	return &created, nil
}

func (m *Store) ListCustomers(_ context.Context) ([]domain.Customer, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	customers := make([]domain.Customer, 0, len(m.customers))
	for _, customer := range m.customers {
		customers = append(customers, customer)
	}
	sort.Slice(customers, func(i, j int) bool { return customers[i].PhoneNumber < customers[j].PhoneNumber })
	return customers, nil
}

func (m *Store) GetCustomer(_ context.Context, id string) (*domain.Customer, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	customer, ok := m.customers[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	found := customer
	return &found, nil
}

// --- helpers ---

func sameExpiry(a *time.Time, b *time.Time) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	ay, am, ad := a.UTC().Date()
	by, bm, bd := b.UTC().Date()
	return ay == by && am == bm && ad == bd
}

func pageBounds(total int, page int, limit int) (int, int) {
	if limit < 1 {
		return 0, total
	}
	if page < 1 {
		page = 1
	}
	start := (page - 1) * limit
	if start > total {
		start = total
	}
	end := start + limit
	if end > total {
		end = total
	}
	return start, end
}
