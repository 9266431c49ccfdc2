package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"strings"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	_ "github.com/jackc/pgx/v5/stdlib"

	"krishantraders/backend/internal/domain"
	"krishantraders/backend/internal/store"
	"krishantraders/backend/internal/xid"
)

type Store struct {
	db *sql.DB
}

func New(ctx context.Context, databaseURL string) (*Store, error) {
	db, err := sql.Open("pgx", databaseURL)
	if err != nil {
		return nil, err
	}

	db.SetMaxIdleConns(8)
	db.SetMaxOpenConns(30)
	db.SetConnMaxLifetime(30 * time.Minute)

	pingCtx, cancel := context.WithTimeout(ctx, 6*time.Second)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		_ = db.Close()
		return nil, err
	}

	return &Store{db: db}, nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

// --- Catalog ---

func (s *Store) CreateCompany(ctx context.Context, company domain.Company) (*domain.Company, error) {
	if strings.TrimSpace(company.Name) == "" {
		return nil, store.ErrInvalidInput
	}
	if company.ID == "" {
		company.ID = xid.New("comp")
	}
	if company.CreatedAt.IsZero() {
		company.CreatedAt = time.Now().UTC()
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO companies (id, name, is_disabled, created_at)
		VALUES ($1,$2,$3,$4)
	`, company.ID, company.Name, company.Disabled, company.CreatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return nil, store.ErrDuplicateKey
		}
		return nil, err
	}

	created := company
	return &created, nil
}

func (s *Store) ListCompanies(ctx context.Context) ([]domain.Company, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, name, is_disabled, created_at
		FROM companies
		ORDER BY name
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	companies := make([]domain.Company, 0, 32)
	for rows.Next() {
		var c domain.Company
		if err := rows.Scan(&c.ID, &c.Name, &c.Disabled, &c.CreatedAt); err != nil {
			return nil, err
		}
		c.CreatedAt = c.CreatedAt.UTC()
		companies = append(companies, c)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return companies, nil
}

func (s *Store) GetCompany(ctx context.Context, id string) (*domain.Company, error) {
	var company domain.Company
	err := s.db.QueryRowContext(ctx, `
		SELECT id, name, is_disabled, created_at
		FROM companies
		WHERE id = $1
	`, id).Scan(&company.ID, &company.Name, &company.Disabled, &company.CreatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		return nil, err
	}
	company.CreatedAt = company.CreatedAt.UTC()
	return &company, nil
}

func (s *Store) UpdateCompany(ctx context.Context, company domain.Company) (*domain.Company, error) {
	if strings.TrimSpace(company.Name) == "" {
		return nil, store.ErrInvalidInput
	}

	res, err := s.db.ExecContext(ctx, `
		UPDATE companies
		SET name = $2, is_disabled = $3
		WHERE id = $1
	`, company.ID, company.Name, company.Disabled)
	if err != nil {
		if isUniqueViolation(err) {
			return nil, store.ErrDuplicateKey
		}
		return nil, err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return nil, err
	}
	if affected == 0 {
		return nil, store.ErrNotFound
	}

	updated := company
	return &updated, nil
}

func (s *Store) DeleteCompany(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM companies WHERE id = $1`, id)
	if err != nil {
		return err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return store.ErrNotFound
	}
	return nil
}

func (s *Store) CreateProduct(ctx context.Context, product domain.Product) (*domain.Product, error) {
	if strings.TrimSpace(product.Name) == "" || product.CompanyID == "" {
		return nil, store.ErrInvalidInput
	}
	if _, err := s.GetCompany(ctx, product.CompanyID); err != nil {
		return nil, err
	}
	if product.ID == "" {
		product.ID = xid.New("prod")
	}
	if product.CreatedAt.IsZero() {
		product.CreatedAt = time.Now().UTC()
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO products (id, company_id, name, is_disabled, created_at)
		VALUES ($1,$2,$3,$4,$5)
	`, product.ID, product.CompanyID, product.Name, product.Disabled, product.CreatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return nil, store.ErrDuplicateKey
		}
		return nil, err
	}

	created := product
	return &created, nil
}

func (s *Store) ListProducts(ctx context.Context, companyID string) ([]domain.ProductView, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT p.id, p.company_id, p.name, p.is_disabled, p.created_at, COALESCE(c.name,'')
		FROM products p
		LEFT JOIN companies c ON c.id = p.company_id
		WHERE ($1 = '' OR p.company_id = $1)
		ORDER BY p.name
	`, companyID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	views := make([]domain.ProductView, 0, 64)
	for rows.Next() {
		var v domain.ProductView
		if err := rows.Scan(&v.ID, &v.CompanyID, &v.Name, &v.Disabled, &v.CreatedAt, &v.CompanyName); err != nil {
			return nil, err
		}
		v.CreatedAt = v.CreatedAt.UTC()
		views = append(views, v)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return views, nil
}

func (s *Store) GetProduct(ctx context.Context, id string) (*domain.Product, error) {
	var product domain.Product
	err := s.db.QueryRowContext(ctx, `
		SELECT id, company_id, name, is_disabled, created_at
		FROM products
		WHERE id = $1
	`, id).Scan(&product.ID, &product.CompanyID, &product.Name, &product.Disabled, &product.CreatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		return nil, err
	}
	product.CreatedAt = product.CreatedAt.UTC()
	return &product, nil
}

func (s *Store) UpdateProduct(ctx context.Context, product domain.Product) (*domain.Product, error) {
	if strings.TrimSpace(product.Name) == "" {
		return nil, store.ErrInvalidInput
	}

	res, err := s.db.ExecContext(ctx, `
		UPDATE products
		SET company_id = $2, name = $3, is_disabled = $4
		WHERE id = $1
	`, product.ID, product.CompanyID, product.Name, product.Disabled)
	if err != nil {
		return nil, err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return nil, err
	}
	if affected == 0 {
		return nil, store.ErrNotFound
	}

	updated := product
	return &updated, nil
}

func (s *Store) DeleteProduct(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM products WHERE id = $1`, id)
	if err != nil {
		return err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return store.ErrNotFound
	}
	return nil
}

func (s *Store) CreateSize(ctx context.Context, size domain.Size) (*domain.Size, error) {
	if strings.TrimSpace(size.Label) == "" || size.ProductID == "" || !domain.ValidUnit(size.Unit) {
		return nil, store.ErrInvalidInput
	}
	if _, err := s.GetProduct(ctx, size.ProductID); err != nil {
		return nil, err
	}
	if size.ID == "" {
		size.ID = xid.New("size")
	}
	if size.CreatedAt.IsZero() {
		size.CreatedAt = time.Now().UTC()
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO sizes (
			id, product_id, label, unit, unit_quantity, stack_count,
			buying_price_cents, selling_price_cents, is_active, created_at
		)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10)
	`, size.ID, size.ProductID, size.Label, size.Unit, size.UnitQuantity, size.StackCount,
		size.BuyingPriceCents, size.SellingPriceCents, size.Active, size.CreatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return nil, store.ErrDuplicateKey
		}
		return nil, err
	}

	created := size
	return &created, nil
}

func (s *Store) ListSizes(ctx context.Context, productID string) ([]domain.SizeView, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT z.id, z.product_id, z.label, z.unit, z.unit_quantity, z.stack_count,
			z.buying_price_cents, z.selling_price_cents, z.is_active, z.created_at,
			COALESCE(p.name,''), COALESCE(p.company_id,''), COALESCE(c.name,'')
		FROM sizes z
		LEFT JOIN products p ON p.id = z.product_id
		LEFT JOIN companies c ON c.id = p.company_id
		WHERE ($1 = '' OR z.product_id = $1)
		ORDER BY z.label
	`, productID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	views := make([]domain.SizeView, 0, 64)
	for rows.Next() {
		var v domain.SizeView
		if err := rows.Scan(&v.ID, &v.ProductID, &v.Label, &v.Unit, &v.UnitQuantity, &v.StackCount,
			&v.BuyingPriceCents, &v.SellingPriceCents, &v.Active, &v.CreatedAt,
			&v.ProductName, &v.CompanyID, &v.CompanyName); err != nil {
			return nil, err
		}
		v.CreatedAt = v.CreatedAt.UTC()
		views = append(views, v)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return views, nil
}

func (s *Store) GetSize(ctx context.Context, id string) (*domain.Size, error) {
	var size domain.Size
	err := s.db.QueryRowContext(ctx, `
		SELECT id, product_id, label, unit, unit_quantity, stack_count,
			buying_price_cents, selling_price_cents, is_active, created_at
		FROM sizes
		WHERE id = $1
	`, id).Scan(&size.ID, &size.ProductID, &size.Label, &size.Unit, &size.UnitQuantity, &size.StackCount,
		&size.BuyingPriceCents, &size.SellingPriceCents, &size.Active, &size.CreatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		return nil, err
	}
	size.CreatedAt = size.CreatedAt.UTC()
	return &size, nil
}

func (s *Store) UpdateSize(ctx context.Context, size domain.Size) (*domain.Size, error) {
	if strings.TrimSpace(size.Label) == "" || !domain.ValidUnit(size.Unit) {
		return nil, store.ErrInvalidInput
	}

	res, err := s.db.ExecContext(ctx, `
		UPDATE sizes
		SET label = $2, unit = $3, unit_quantity = $4, stack_count = $5,
			buying_price_cents = $6, selling_price_cents = $7, is_active = $8
		WHERE id = $1
	`, size.ID, size.Label, size.Unit, size.UnitQuantity, size.StackCount,
		size.BuyingPriceCents, size.SellingPriceCents, size.Active)
	if err != nil {
		return nil, err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return nil, err
	}
	if affected == 0 {
		return nil, store.ErrNotFound
	}

	updated := size
	return &updated, nil
}

func (s *Store) DeleteSize(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM sizes WHERE id = $1`, id)
	if err != nil {
		return err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return store.ErrNotFound
	}
	return nil
}

// --- Inventory ledger ---

const stockViewSelect = `
	SELECT st.id, st.size_id, COALESCE(st.batch_no,''), st.quantity, st.stocked_by,
		st.stocked_date, st.expiry_date, st.status, st.buying_price_cents,
		st.selling_price_cents, COALESCE(st.img_url,''),
		COALESCE(z.label,''), COALESCE(z.product_id,''), COALESCE(p.name,''),
		COALESCE(p.company_id,''), COALESCE(c.name,''), COALESCE(u.name,'')
	FROM stocks st
	LEFT JOIN sizes z ON z.id = st.size_id
	LEFT JOIN products p ON p.id = z.product_id
	LEFT JOIN companies c ON c.id = p.company_id
	LEFT JOIN users u ON u.id = st.stocked_by
`

func (s *Store) ListStock(ctx context.Context, filter domain.StockFilter) ([]domain.StockView, error) {
	query := stockViewSelect + `
	WHERE ($1 = '' OR st.status = $1)
		AND ($2 = '' OR st.size_id = $2)
	`
	switch filter.Sort {
	case "expiry":
		query += ` ORDER BY st.expiry_date ASC NULLS LAST`
	default:
		query += ` ORDER BY st.stocked_date DESC`
	}

	rows, err := s.db.QueryContext(ctx, query, filter.Status, filter.SizeID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	views := make([]domain.StockView, 0, 128)
	for rows.Next() {
		view, err := scanStockView(rows)
		if err != nil {
			return nil, err
		}
		views = append(views, *view)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return views, nil
}

func scanStockView(rows *sql.Rows) (*domain.StockView, error) {
	var v domain.StockView
	var expiry sql.NullTime
	if err := rows.Scan(&v.ID, &v.SizeID, &v.BatchNo, &v.Quantity, &v.StockedBy,
		&v.StockedDate, &expiry, &v.Status, &v.BuyingPriceCents,
		&v.SellingPriceCents, &v.ImageURL,
		&v.SizeLabel, &v.ProductID, &v.ProductName,
		&v.CompanyID, &v.CompanyName, &v.StockedByName); err != nil {
		return nil, err
	}
	v.StockedDate = v.StockedDate.UTC()
	if expiry.Valid {
		e := dateUTC(expiry.Time)
		v.ExpiryDate = &e
	}
	return &v, nil
}

func (s *Store) GetStock(ctx context.Context, id string) (*domain.Stock, error) {
	var stock domain.Stock
	var expiry sql.NullTime
	err := s.db.QueryRowContext(ctx, `
		SELECT id, size_id, COALESCE(batch_no,''), quantity, stocked_by, stocked_date,
			expiry_date, status, buying_price_cents, selling_price_cents, COALESCE(img_url,'')
		FROM stocks
		WHERE id = $1
	`, id).Scan(&stock.ID, &stock.SizeID, &stock.BatchNo, &stock.Quantity, &stock.StockedBy,
		&stock.StockedDate, &expiry, &stock.Status, &stock.BuyingPriceCents,
		&stock.SellingPriceCents, &stock.ImageURL)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		return nil, err
	}
	stock.StockedDate = stock.StockedDate.UTC()
	if expiry.Valid {
		e := dateUTC(expiry.Time)
		stock.ExpiryDate = &e
	}
	return &stock, nil
}

func (s *Store) UpdateStock(ctx context.Context, id string, patch domain.StockPatch) (*domain.Stock, error) {
	tx, err := s.db.BeginTx(ctx, &sql.TxOptions{Isolation: sql.LevelSerializable})
	if err != nil {
		return nil, err
	}
	defer func() { _ = tx.Rollback() }()

	var stock domain.Stock
	var expiry sql.NullTime
	err = tx.QueryRowContext(ctx, `
		SELECT id, size_id, COALESCE(batch_no,''), quantity, stocked_by, stocked_date,
			expiry_date, status, buying_price_cents, selling_price_cents, COALESCE(img_url,'')
		FROM stocks
		WHERE id = $1
		FOR UPDATE
	`, id).Scan(&stock.ID, &stock.SizeID, &stock.BatchNo, &stock.Quantity, &stock.StockedBy,
		&stock.StockedDate, &expiry, &stock.Status, &stock.BuyingPriceCents,
		&stock.SellingPriceCents, &stock.ImageURL)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		return nil, err
	}
	if expiry.Valid {
		e := dateUTC(expiry.Time)
		stock.ExpiryDate = &e
	}

	if patch.BatchNo != nil {
		stock.BatchNo = *patch.BatchNo
	}
	if patch.Quantity != nil {
		stock.Quantity = *patch.Quantity
	}
	if patch.ExpiryDate != nil {
		e := dateUTC(*patch.ExpiryDate)
		stock.ExpiryDate = &e
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
	if stock.Quantity < 0 {
		return nil, store.ErrInvalidInput
	}

	_, err = tx.ExecContext(ctx, `
		UPDATE stocks
		SET batch_no = $2, quantity = $3, expiry_date = $4, status = $5,
			buying_price_cents = $6, selling_price_cents = $7, img_url = $8
		WHERE id = $1
	`, id, nullIfEmpty(stock.BatchNo), stock.Quantity, nullDate(stock.ExpiryDate), stock.Status,
		stock.BuyingPriceCents, stock.SellingPriceCents, nullIfEmpty(stock.ImageURL))
	if err != nil {
		return nil, err
	}

	if err := tx.Commit(); err != nil {
		return nil, err
	}
	stock.StockedDate = stock.StockedDate.UTC()
	return &stock, nil
}

func (s *Store) DeleteStock(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM stocks WHERE id = $1`, id)
	if err != nil {
		return err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return store.ErrNotFound
	}
	return nil
}

func (s *Store) AggregateStockByCompany(ctx context.Context, companyID string) ([]domain.CompanyStockGroup, error) {
	if _, err := s.GetCompany(ctx, companyID); err != nil {
		return nil, err
	}

	// Group prices come from the lowest-id lot, the same rule the in-memory
	// store applies when lots of one size carry different historical prices.
	rows, err := s.db.QueryContext(ctx, `
		SELECT p.id, p.name, z.id, z.label,
			COALESCE(SUM(st.quantity),0)::bigint,
			(array_agg(st.buying_price_cents ORDER BY st.id))[1]::bigint,
			(array_agg(st.selling_price_cents ORDER BY st.id))[1]::bigint
		FROM stocks st
		JOIN sizes z ON z.id = st.size_id
		JOIN products p ON p.id = z.product_id
		WHERE p.company_id = $1
		GROUP BY p.id, p.name, z.id, z.label
		ORDER BY p.name, z.label
	`, companyID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	groups := make([]domain.CompanyStockGroup, 0, 32)
	for rows.Next() {
		var g domain.CompanyStockGroup
		var total int64
		if err := rows.Scan(&g.ProductID, &g.ProductName, &g.SizeID, &g.SizeLabel,
			&total, &g.BuyingPriceCents, &g.SellingPriceCents); err != nil {
			return nil, err
		}
		g.TotalQuantity = int(total)
		groups = append(groups, g)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return groups, nil
}

// --- Account ledger ---

func (s *Store) CreateAccount(ctx context.Context, account domain.Account) (*domain.Account, error) {
	if strings.TrimSpace(account.Name) == "" || !domain.ValidAccountType(account.Type) || account.OpeningBalanceCents < 0 {
		return nil, store.ErrInvalidInput
	}
	if account.ID == "" {
		account.ID = xid.New("acc")
	}
	if account.CreatedAt.IsZero() {
		account.CreatedAt = time.Now().UTC()
	}
	account.CurrentBalanceCents = account.OpeningBalanceCents

	tx, err := s.db.BeginTx(ctx, &sql.TxOptions{Isolation: sql.LevelSerializable})
	if err != nil {
		return nil, err
	}
	defer func() { _ = tx.Rollback() }()

	_, err = tx.ExecContext(ctx, `
		INSERT INTO accounts (
			id, name, type, account_number, bank_name,
			opening_balance_cents, current_balance_cents, note, created_at
		)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9)
	`, account.ID, account.Name, account.Type, nullIfEmpty(account.AccountNumber),
		nullIfEmpty(account.BankName), account.OpeningBalanceCents,
		account.CurrentBalanceCents, nullIfEmpty(account.Note), account.CreatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return nil, store.ErrDuplicateKey
		}
		return nil, err
	}

	if account.OpeningBalanceCents > 0 {
		_, err = tx.ExecContext(ctx, `
			INSERT INTO account_transactions (id, account_id, type, amount_cents, reason, note, created_at)
			VALUES ($1,$2,$3,$4,$5,$6,$7)
		`, xid.New("atx"), account.ID, domain.TxTypeCredit, account.OpeningBalanceCents,
			domain.TxReasonAdjustment, "Opening Balance", account.CreatedAt)
		if err != nil {
			return nil, err
		}
	}

	if err := tx.Commit(); err != nil {
		return nil, err
	}
	created := account
	return &created, nil
}

func (s *Store) ListAccounts(ctx context.Context) ([]domain.Account, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, name, type, COALESCE(account_number,''), COALESCE(bank_name,''),
			opening_balance_cents, current_balance_cents, COALESCE(note,''), created_at
		FROM accounts
		ORDER BY name
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	accounts := make([]domain.Account, 0, 16)
	for rows.Next() {
		var a domain.Account
		if err := rows.Scan(&a.ID, &a.Name, &a.Type, &a.AccountNumber, &a.BankName,
			&a.OpeningBalanceCents, &a.CurrentBalanceCents, &a.Note, &a.CreatedAt); err != nil {
			return nil, err
		}
		a.CreatedAt = a.CreatedAt.UTC()
		accounts = append(accounts, a)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return accounts, nil
}

func (s *Store) GetAccount(ctx context.Context, id string) (*domain.Account, error) {
	var a domain.Account
	err := s.db.QueryRowContext(ctx, `
		SELECT id, name, type, COALESCE(account_number,''), COALESCE(bank_name,''),
			opening_balance_cents, current_balance_cents, COALESCE(note,''), created_at
		FROM accounts
		WHERE id = $1
	`, id).Scan(&a.ID, &a.Name, &a.Type, &a.AccountNumber, &a.BankName,
		&a.OpeningBalanceCents, &a.CurrentBalanceCents, &a.Note, &a.CreatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		return nil, err
	}
	a.CreatedAt = a.CreatedAt.UTC()
	return &a, nil
}

func (s *Store) UpdateAccount(ctx context.Context, id string, patch domain.AccountPatch) (*domain.Account, error) {
	if patch.Name != nil && strings.TrimSpace(*patch.Name) == "" {
		return nil, store.ErrInvalidInput
	}

	var a domain.Account
	err := s.db.QueryRowContext(ctx, `
		UPDATE accounts
		SET name = COALESCE($2, name),
			account_number = COALESCE($3, account_number),
			bank_name = COALESCE($4, bank_name),
			note = COALESCE($5, note)
		WHERE id = $1
		RETURNING id, name, type, COALESCE(account_number,''), COALESCE(bank_name,''),
			opening_balance_cents, current_balance_cents, COALESCE(note,''), created_at
	`, id, patch.Name, patch.AccountNumber, patch.BankName, patch.Note).Scan(
		&a.ID, &a.Name, &a.Type, &a.AccountNumber, &a.BankName,
		&a.OpeningBalanceCents, &a.CurrentBalanceCents, &a.Note, &a.CreatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		return nil, err
	}
	a.CreatedAt = a.CreatedAt.UTC()
	return &a, nil
}

func (s *Store) CreateAccountTransaction(ctx context.Context, entry domain.AccountTransaction) (*domain.AccountTransaction, error) {
	if entry.AmountCents <= 0 || !domain.ValidTxType(entry.Type) || !domain.ValidTxReason(entry.Reason) {
		return nil, store.ErrInvalidInput
	}
	if entry.ID == "" {
		entry.ID = xid.New("atx")
	}
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = time.Now().UTC()
	}

	tx, err := s.db.BeginTx(ctx, &sql.TxOptions{Isolation: sql.LevelSerializable})
	if err != nil {
		return nil, err
	}
	defer func() { _ = tx.Rollback() }()

	res, err := tx.ExecContext(ctx, `
		UPDATE accounts
		SET current_balance_cents = current_balance_cents + $2
		WHERE id = $1
	`, entry.AccountID, entry.SignedCents())
	if err != nil {
		return nil, err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return nil, err
	}
	if affected == 0 {
		return nil, store.ErrNotFound
	}

	_, err = tx.ExecContext(ctx, `
		INSERT INTO account_transactions (id, account_id, type, amount_cents, reason, note, created_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7)
	`, entry.ID, entry.AccountID, entry.Type, entry.AmountCents, entry.Reason,
		nullIfEmpty(entry.Note), entry.CreatedAt)
	if err != nil {
		return nil, err
	}

	if err := tx.Commit(); err != nil {
		return nil, err
	}
	created := entry
	return &created, nil
}

func (s *Store) ListAccountTransactions(ctx context.Context, accountID string, page int, limit int) ([]domain.AccountTransaction, int, error) {
	var total int
	err := s.db.QueryRowContext(ctx, `
		SELECT COUNT(*)::int
		FROM account_transactions
		WHERE ($1 = '' OR account_id = $1)
	`, accountID).Scan(&total)
	if err != nil {
		return nil, 0, err
	}

	offset, capped := pageOffset(page, limit)
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, account_id, type, amount_cents, reason, COALESCE(note,''), created_at
		FROM account_transactions
		WHERE ($1 = '' OR account_id = $1)
		ORDER BY created_at DESC, id DESC
		LIMIT $2 OFFSET $3
	`, accountID, capped, offset)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	txs := make([]domain.AccountTransaction, 0, capped)
	for rows.Next() {
		var t domain.AccountTransaction
		if err := rows.Scan(&t.ID, &t.AccountID, &t.Type, &t.AmountCents, &t.Reason, &t.Note, &t.CreatedAt); err != nil {
			return nil, 0, err
		}
		t.CreatedAt = t.CreatedAt.UTC()
		txs = append(txs, t)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, err
	}
	return txs, total, nil
}

func (s *Store) GetAccountTransaction(ctx context.Context, id string) (*domain.AccountTransaction, error) {
	var t domain.AccountTransaction
	err := s.db.QueryRowContext(ctx, `
		SELECT id, account_id, type, amount_cents, reason, COALESCE(note,''), created_at
		FROM account_transactions
		WHERE id = $1
	`, id).Scan(&t.ID, &t.AccountID, &t.Type, &t.AmountCents, &t.Reason, &t.Note, &t.CreatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		return nil, err
	}
	t.CreatedAt = t.CreatedAt.UTC()
	return &t, nil
}

func (s *Store) UpdateAccountTransaction(ctx context.Context, id string, patch domain.TransactionPatch) (*domain.AccountTransaction, error) {
	tx, err := s.db.BeginTx(ctx, &sql.TxOptions{Isolation: sql.LevelSerializable})
	if err != nil {
		return nil, err
	}
	defer func() { _ = tx.Rollback() }()

	var current domain.AccountTransaction
	err = tx.QueryRowContext(ctx, `
		SELECT id, account_id, type, amount_cents, reason, COALESCE(note,''), created_at
		FROM account_transactions
		WHERE id = $1
		FOR UPDATE
	`, id).Scan(&current.ID, &current.AccountID, &current.Type, &current.AmountCents,
		&current.Reason, &current.Note, &current.CreatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		return nil, err
	}

	updated := current
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

	_, err = tx.ExecContext(ctx, `
		UPDATE account_transactions
		SET type = $2, amount_cents = $3, reason = $4, note = $5
		WHERE id = $1
	`, id, updated.Type, updated.AmountCents, updated.Reason, nullIfEmpty(updated.Note))
	if err != nil {
		return nil, err
	}

	// Balance moves by the diff of the old and new signed effects.
	_, err = tx.ExecContext(ctx, `
		UPDATE accounts
		SET current_balance_cents = current_balance_cents + $2
		WHERE id = $1
	`, updated.AccountID, updated.SignedCents()-current.SignedCents())
	if err != nil {
		return nil, err
	}

	if err := tx.Commit(); err != nil {
		return nil, err
	}
	updated.CreatedAt = updated.CreatedAt.UTC()
	return &updated, nil
}

func (s *Store) DeleteAccountTransaction(ctx context.Context, id string) error {
	tx, err := s.db.BeginTx(ctx, &sql.TxOptions{Isolation: sql.LevelSerializable})
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	var current domain.AccountTransaction
	err = tx.QueryRowContext(ctx, `
		SELECT id, account_id, type, amount_cents
		FROM account_transactions
		WHERE id = $1
		FOR UPDATE
	`, id).Scan(&current.ID, &current.AccountID, &current.Type, &current.AmountCents)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return store.ErrNotFound
		}
		return err
	}

	_, err = tx.ExecContext(ctx, `DELETE FROM account_transactions WHERE id = $1`, id)
	if err != nil {
		return err
	}

	_, err = tx.ExecContext(ctx, `
		UPDATE accounts
		SET current_balance_cents = current_balance_cents - $2
		WHERE id = $1
	`, current.AccountID, current.SignedCents())
	if err != nil {
		return err
	}

	return tx.Commit()
}

// --- Request / approval state machine ---

func (s *Store) CreateStockAddRequest(ctx context.Context, req domain.StockAddRequest) (*domain.StockAddRequest, error) {
	if req.Quantity < 1 || req.SizeID == "" {
		return nil, store.ErrInvalidInput
	}
	if _, err := s.GetSize(ctx, req.SizeID); err != nil {
		return nil, err
	}
	if req.ID == "" {
		req.ID = xid.New("sar")
	}
	if req.CreatedAt.IsZero() {
		req.CreatedAt = time.Now().UTC()
	}
	req.Status = domain.RequestStatusPending

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO stock_add_requests (
			id, size_id, quantity, expiry_date, batch_no, buying_price_cents,
			selling_price_cents, img_url, requested_by, status, created_at
		)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11)
	`, req.ID, req.SizeID, req.Quantity, nullDate(req.ExpiryDate), nullIfEmpty(req.BatchNo),
		req.BuyingPriceCents, req.SellingPriceCents, nullIfEmpty(req.ImageURL),
		req.RequestedBy, req.Status, req.CreatedAt)
	if err != nil {
		return nil, err
	}

	created := req
	return &created, nil
}

func (s *Store) ListStockAddRequests(ctx context.Context, status string) ([]domain.StockAddRequest, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, size_id, quantity, expiry_date, COALESCE(batch_no,''),
			buying_price_cents, selling_price_cents, COALESCE(img_url,''),
			requested_by, status, created_at, decided_at
		FROM stock_add_requests
		WHERE ($1 = '' OR status = $1)
		ORDER BY created_at DESC
	`, status)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	reqs := make([]domain.StockAddRequest, 0, 32)
	for rows.Next() {
		req, err := scanStockAddRequest(rows)
		if err != nil {
			return nil, err
		}
		reqs = append(reqs, *req)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return reqs, nil
}

func scanStockAddRequest(row interface {
	Scan(dest ...any) error
}) (*domain.StockAddRequest, error) {
	var req domain.StockAddRequest
	var expiry sql.NullTime
	var decidedAt sql.NullTime
	if err := row.Scan(&req.ID, &req.SizeID, &req.Quantity, &expiry, &req.BatchNo,
		&req.BuyingPriceCents, &req.SellingPriceCents, &req.ImageURL,
		&req.RequestedBy, &req.Status, &req.CreatedAt, &decidedAt); err != nil {
		return nil, err
	}
	req.CreatedAt = req.CreatedAt.UTC()
	if expiry.Valid {
		e := dateUTC(expiry.Time)
		req.ExpiryDate = &e
	}
	if decidedAt.Valid {
		at := decidedAt.Time.UTC()
		req.DecidedAt = &at
	}
	return &req, nil
}

func (s *Store) GetStockAddRequest(ctx context.Context, id string) (*domain.StockAddRequest, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, size_id, quantity, expiry_date, COALESCE(batch_no,''),
			buying_price_cents, selling_price_cents, COALESCE(img_url,''),
			requested_by, status, created_at, decided_at
		FROM stock_add_requests
		WHERE id = $1
	`, id)
	req, err := scanStockAddRequest(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		return nil, err
	}
	return req, nil
}

func (s *Store) AcceptStockAddRequest(ctx context.Context, id string, decidedAt time.Time) (*domain.Stock, error) {
	tx, err := s.db.BeginTx(ctx, &sql.TxOptions{Isolation: sql.LevelSerializable})
	if err != nil {
		return nil, err
	}
	defer func() { _ = tx.Rollback() }()

	row := tx.QueryRowContext(ctx, `
		SELECT id, size_id, quantity, expiry_date, COALESCE(batch_no,''),
			buying_price_cents, selling_price_cents, COALESCE(img_url,''),
			requested_by, status, created_at, decided_at
		FROM stock_add_requests
		WHERE id = $1
		FOR UPDATE
	`, id)
	req, err := scanStockAddRequest(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		return nil, err
	}
	if req.Status != domain.RequestStatusPending {
		return nil, store.ErrAlreadyProcessed
	}

	// Merge into an available lot of the same size and expiry day if one
	// exists, otherwise open a new lot.
	var stockID string
	var mergedQty int
	err = tx.QueryRowContext(ctx, `
		SELECT id, quantity
		FROM stocks
		WHERE size_id = $1
			AND status = $2
			AND (expiry_date IS NOT DISTINCT FROM $3)
		ORDER BY stocked_date ASC
		LIMIT 1
		FOR UPDATE
	`, req.SizeID, domain.StockStatusAvailable, nullDate(req.ExpiryDate)).Scan(&stockID, &mergedQty)
	switch {
	case err == nil:
		mergedQty += req.Quantity
		_, err = tx.ExecContext(ctx, `
			UPDATE stocks SET quantity = $2 WHERE id = $1
		`, stockID, mergedQty)
		if err != nil {
			return nil, err
		}
	case errors.Is(err, sql.ErrNoRows):
		stockID = xid.New("stk")
		mergedQty = req.Quantity
		_, err = tx.ExecContext(ctx, `
			INSERT INTO stocks (
				id, size_id, batch_no, quantity, stocked_by, stocked_date,
				expiry_date, status, buying_price_cents, selling_price_cents, img_url
			)
			VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11)
		`, stockID, req.SizeID, nullIfEmpty(req.BatchNo), req.Quantity, req.RequestedBy,
			decidedAt, nullDate(req.ExpiryDate), domain.StockStatusAvailable,
			req.BuyingPriceCents, req.SellingPriceCents, nullIfEmpty(req.ImageURL))
		if err != nil {
			return nil, err
		}
	default:
		return nil, err
	}

	_, err = tx.ExecContext(ctx, `
		INSERT INTO records (
			id, type, size_id, stock_id, quantity, stocked_date, expiry_date,
			buying_price_cents, selling_price_cents, status, interacted_by, created_at
		)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12)
	`, xid.New("rec"), domain.RecordTypeStockIn, req.SizeID, stockID, req.Quantity,
		decidedAt, nullDate(req.ExpiryDate), req.BuyingPriceCents, req.SellingPriceCents,
		domain.StockStatusAvailable, req.RequestedBy, decidedAt)
	if err != nil {
		return nil, err
	}

	_, err = tx.ExecContext(ctx, `
		UPDATE stock_add_requests
		SET status = $2, decided_at = $3
		WHERE id = $1
	`, id, domain.RequestStatusAccepted, decidedAt)
	if err != nil {
		return nil, err
	}

	if err := tx.Commit(); err != nil {
		return nil, err
	}

	return &domain.Stock{
		ID:                stockID,
		SizeID:            req.SizeID,
		BatchNo:           req.BatchNo,
		Quantity:          mergedQty,
		StockedBy:         req.RequestedBy,
		StockedDate:       decidedAt,
		ExpiryDate:        req.ExpiryDate,
		Status:            domain.StockStatusAvailable,
		BuyingPriceCents:  req.BuyingPriceCents,
		SellingPriceCents: req.SellingPriceCents,
		ImageURL:          req.ImageURL,
	}, nil
}

func (s *Store) RejectStockAddRequest(ctx context.Context, id string, decidedAt time.Time) (*domain.StockAddRequest, error) {
	res, err := s.db.ExecContext(ctx, `
		UPDATE stock_add_requests
		SET status = $2, decided_at = $3
		WHERE id = $1 AND status = $4
	`, id, domain.RequestStatusRejected, decidedAt, domain.RequestStatusPending)
	if err != nil {
		return nil, err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return nil, err
	}
	if affected == 0 {
		// Either missing or no longer pending.
		if _, lookupErr := s.GetStockAddRequest(ctx, id); lookupErr != nil {
			return nil, lookupErr
		}
		return nil, store.ErrAlreadyProcessed
	}
	return s.GetStockAddRequest(ctx, id)
}

func (s *Store) CreateSaleRequest(ctx context.Context, req domain.SaleRequest) (*domain.SaleRequest, error) {
	if len(req.Lines) == 0 || req.AccountID == "" {
		return nil, store.ErrInvalidInput
	}
	for _, line := range req.Lines {
		if line.Quantity < 1 {
			return nil, store.ErrInvalidInput
		}
		if _, err := s.GetStock(ctx, line.StockID); err != nil {
			return nil, err
		}
	}
	if _, err := s.GetAccount(ctx, req.AccountID); err != nil {
		return nil, err
	}
	if req.ID == "" {
		req.ID = xid.New("slr")
	}
	if req.CreatedAt.IsZero() {
		req.CreatedAt = time.Now().UTC()
	}
	req.Status = domain.RequestStatusPending

	linesJSON, err := json.Marshal(req.Lines)
	if err != nil {
		return nil, err
	}
	soldToJSON, err := json.Marshal(req.SoldTo)
	if err != nil {
		return nil, err
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO sale_requests (id, lines, sold_to, account_id, requested_by, status, created_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7)
	`, req.ID, linesJSON, soldToJSON, req.AccountID, req.RequestedBy, req.Status, req.CreatedAt)
	if err != nil {
		return nil, err
	}

	created := req
	return &created, nil
}

func (s *Store) ListSaleRequests(ctx context.Context, status string) ([]domain.SaleRequest, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, lines, sold_to, account_id, requested_by, status, created_at, decided_at
		FROM sale_requests
		WHERE ($1 = '' OR status = $1)
		ORDER BY created_at DESC
	`, status)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	reqs := make([]domain.SaleRequest, 0, 32)
	for rows.Next() {
		req, err := scanSaleRequest(rows)
		if err != nil {
			return nil, err
		}
		reqs = append(reqs, *req)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return reqs, nil
}

func scanSaleRequest(row interface {
	Scan(dest ...any) error
}) (*domain.SaleRequest, error) {
	var req domain.SaleRequest
	var linesRaw []byte
	var soldToRaw []byte
	var decidedAt sql.NullTime
	if err := row.Scan(&req.ID, &linesRaw, &soldToRaw, &req.AccountID,
		&req.RequestedBy, &req.Status, &req.CreatedAt, &decidedAt); err != nil {
		return nil, err
	}
	if len(linesRaw) > 0 {
		if err := json.Unmarshal(linesRaw, &req.Lines); err != nil {
			return nil, err
		}
	}
	if len(soldToRaw) > 0 {
		if err := json.Unmarshal(soldToRaw, &req.SoldTo); err != nil {
			return nil, err
		}
	}
	req.CreatedAt = req.CreatedAt.UTC()
	if decidedAt.Valid {
		at := decidedAt.Time.UTC()
		req.DecidedAt = &at
	}
	return &req, nil
}

func (s *Store) GetSaleRequest(ctx context.Context, id string) (*domain.SaleRequest, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, lines, sold_to, account_id, requested_by, status, created_at, decided_at
		FROM sale_requests
		WHERE id = $1
	`, id)
	req, err := scanSaleRequest(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		return nil, err
	}
	return req, nil
}

func (s *Store) AcceptSaleRequest(ctx context.Context, id string, decidedAt time.Time) ([]domain.Sell, error) {
	tx, err := s.db.BeginTx(ctx, &sql.TxOptions{Isolation: sql.LevelSerializable})
	if err != nil {
		return nil, err
	}
	defer func() { _ = tx.Rollback() }()

	row := tx.QueryRowContext(ctx, `
		SELECT id, lines, sold_to, account_id, requested_by, status, created_at, decided_at
		FROM sale_requests
		WHERE id = $1
		FOR UPDATE
	`, id)
	req, err := scanSaleRequest(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		return nil, err
	}
	if req.Status != domain.RequestStatusPending {
		return nil, store.ErrAlreadyProcessed
	}

	sells, err := applySale(ctx, tx, store.SaleInput{
		Lines:     req.Lines,
		SoldTo:    req.SoldTo,
		AccountID: req.AccountID,
		ActorID:   req.RequestedBy,
		SoldDate:  decidedAt,
	})
	if err != nil {
		return nil, err
	}

	_, err = tx.ExecContext(ctx, `
		UPDATE sale_requests
		SET status = $2, decided_at = $3
		WHERE id = $1
	`, id, domain.RequestStatusAccepted, decidedAt)
	if err != nil {
		return nil, err
	}

	if err := tx.Commit(); err != nil {
		return nil, err
	}
	return sells, nil
}

func (s *Store) RejectSaleRequest(ctx context.Context, id string, decidedAt time.Time) (*domain.SaleRequest, error) {
	res, err := s.db.ExecContext(ctx, `
		UPDATE sale_requests
		SET status = $2, decided_at = $3
		WHERE id = $1 AND status = $4
	`, id, domain.RequestStatusRejected, decidedAt, domain.RequestStatusPending)
	if err != nil {
		return nil, err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return nil, err
	}
	if affected == 0 {
		if _, lookupErr := s.GetSaleRequest(ctx, id); lookupErr != nil {
			return nil, lookupErr
		}
		return nil, store.ErrAlreadyProcessed
	}
	return s.GetSaleRequest(ctx, id)
}

// --- Sales ---

func (s *Store) CreateSale(ctx context.Context, input store.SaleInput) ([]domain.Sell, error) {
	tx, err := s.db.BeginTx(ctx, &sql.TxOptions{Isolation: sql.LevelSerializable})
	if err != nil {
		return nil, err
	}
	defer func() { _ = tx.Rollback() }()

	sells, err := applySale(ctx, tx, input)
	if err != nil {
		return nil, err
	}

	if err := tx.Commit(); err != nil {
		return nil, err
	}
	return sells, nil
}

// applySale runs the unified sale routine inside the caller's transaction:
// lock the lots, guard against overselling, decrement quantities, write the
// sell and record rows, and credit the receiving account.
func applySale(ctx context.Context, tx *sql.Tx, input store.SaleInput) ([]domain.Sell, error) {
	if len(input.Lines) == 0 || input.AccountID == "" {
		return nil, store.ErrInvalidInput
	}

	soldDate := input.SoldDate
	if soldDate.IsZero() {
		soldDate = time.Now().UTC()
	}

	soldToJSON, err := json.Marshal(input.SoldTo)
	if err != nil {
		return nil, err
	}

	var accountID string
	err = tx.QueryRowContext(ctx, `
		SELECT id FROM accounts WHERE id = $1 FOR UPDATE
	`, input.AccountID).Scan(&accountID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		return nil, err
	}

	sells := make([]domain.Sell, 0, len(input.Lines))
	grandTotal := int64(0)
	for _, line := range input.Lines {
		if line.Quantity < 1 {
			return nil, store.ErrInvalidInput
		}

		var stock domain.Stock
		var expiry sql.NullTime
		err := tx.QueryRowContext(ctx, `
			SELECT id, size_id, quantity, status, expiry_date,
				buying_price_cents, selling_price_cents
			FROM stocks
			WHERE id = $1
			FOR UPDATE
		`, line.StockID).Scan(&stock.ID, &stock.SizeID, &stock.Quantity, &stock.Status,
			&expiry, &stock.BuyingPriceCents, &stock.SellingPriceCents)
		if err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return nil, store.ErrNotFound
			}
			return nil, err
		}
		if stock.Quantity < line.Quantity {
			return nil, store.ErrInsufficientStock
		}

		remaining := stock.Quantity - line.Quantity
		nextStatus := stock.Status
		if remaining == 0 {
			nextStatus = domain.StockStatusSold
		}
		_, err = tx.ExecContext(ctx, `
			UPDATE stocks
			SET quantity = $2, status = $3
			WHERE id = $1
		`, stock.ID, remaining, nextStatus)
		if err != nil {
			return nil, err
		}

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
		_, err = tx.ExecContext(ctx, `
			INSERT INTO sells (
				id, stock_id, size_id, quantity, selling_price_cents, buying_price_cents,
				profit_cents, total_cents, sold_to, account_id, sold_by, sold_date
			)
			VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12)
		`, sell.ID, sell.StockID, sell.SizeID, sell.Quantity, sell.SellingPriceCents,
			sell.BuyingPriceCents, sell.ProfitCents, sell.TotalCents, soldToJSON,
			sell.AccountID, nullIfEmpty(sell.SoldBy), sell.SoldDate)
		if err != nil {
			return nil, err
		}

		var expiryPtr *time.Time
		if expiry.Valid {
			e := dateUTC(expiry.Time)
			expiryPtr = &e
		}
		_, err = tx.ExecContext(ctx, `
			INSERT INTO records (
				id, type, size_id, stock_id, quantity, stocked_date, expiry_date,
				buying_price_cents, selling_price_cents, status, interacted_by, created_at
			)
			VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12)
		`, xid.New("rec"), domain.RecordTypeSale, stock.SizeID, stock.ID, line.Quantity,
			soldDate, nullDate(expiryPtr), stock.BuyingPriceCents, stock.SellingPriceCents,
			nextStatus, nullIfEmpty(input.ActorID), soldDate)
		if err != nil {
			return nil, err
		}

		sells = append(sells, sell)
		grandTotal += sell.TotalCents
	}

	_, err = tx.ExecContext(ctx, `
		UPDATE accounts
		SET current_balance_cents = current_balance_cents + $2
		WHERE id = $1
	`, input.AccountID, grandTotal)
	if err != nil {
		return nil, err
	}

	_, err = tx.ExecContext(ctx, `
		INSERT INTO account_transactions (id, account_id, type, amount_cents, reason, note, created_at)
		VALUES ($1,$2,$3,$4,$5,NULL,$6)
	`, xid.New("atx"), input.AccountID, domain.TxTypeCredit, grandTotal, domain.TxReasonSale, soldDate)
	if err != nil {
		return nil, err
	}

	return sells, nil
}

func (s *Store) ListSells(ctx context.Context, page int, limit int) ([]domain.Sell, int, error) {
	var total int
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*)::int FROM sells`).Scan(&total); err != nil {
		return nil, 0, err
	}

	offset, capped := pageOffset(page, limit)
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, stock_id, size_id, quantity, selling_price_cents, buying_price_cents,
			profit_cents, total_cents, sold_to, account_id, COALESCE(sold_by,''), sold_date
		FROM sells
		ORDER BY sold_date DESC, id DESC
		LIMIT $1 OFFSET $2
	`, capped, offset)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	sells := make([]domain.Sell, 0, capped)
	for rows.Next() {
		sell, err := scanSell(rows)
		if err != nil {
			return nil, 0, err
		}
		sells = append(sells, *sell)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, err
	}
	return sells, total, nil
}

func scanSell(row interface {
	Scan(dest ...any) error
}) (*domain.Sell, error) {
	var sell domain.Sell
	var soldToRaw []byte
	if err := row.Scan(&sell.ID, &sell.StockID, &sell.SizeID, &sell.Quantity,
		&sell.SellingPriceCents, &sell.BuyingPriceCents, &sell.ProfitCents,
		&sell.TotalCents, &soldToRaw, &sell.AccountID, &sell.SoldBy, &sell.SoldDate); err != nil {
		return nil, err
	}
	if len(soldToRaw) > 0 {
		if err := json.Unmarshal(soldToRaw, &sell.SoldTo); err != nil {
			return nil, err
		}
	}
	sell.SoldDate = sell.SoldDate.UTC()
	return &sell, nil
}

func (s *Store) GetSell(ctx context.Context, id string) (*domain.Sell, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, stock_id, size_id, quantity, selling_price_cents, buying_price_cents,
			profit_cents, total_cents, sold_to, account_id, COALESCE(sold_by,''), sold_date
		FROM sells
		WHERE id = $1
	`, id)
	sell, err := scanSell(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		return nil, err
	}
	return sell, nil
}

func (s *Store) UpdateSell(ctx context.Context, id string, patch domain.SellPatch) (*domain.Sell, error) {
	tx, err := s.db.BeginTx(ctx, &sql.TxOptions{Isolation: sql.LevelSerializable})
	if err != nil {
		return nil, err
	}
	defer func() { _ = tx.Rollback() }()

	row := tx.QueryRowContext(ctx, `
		SELECT id, stock_id, size_id, quantity, selling_price_cents, buying_price_cents,
			profit_cents, total_cents, sold_to, account_id, COALESCE(sold_by,''), sold_date
		FROM sells
		WHERE id = $1
		FOR UPDATE
	`, id)
	sell, err := scanSell(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		return nil, err
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

	soldToJSON, err := json.Marshal(sell.SoldTo)
	if err != nil {
		return nil, err
	}
	_, err = tx.ExecContext(ctx, `
		UPDATE sells
		SET quantity = $2, selling_price_cents = $3, buying_price_cents = $4,
			profit_cents = $5, total_cents = $6, sold_to = $7
		WHERE id = $1
	`, id, sell.Quantity, sell.SellingPriceCents, sell.BuyingPriceCents,
		sell.ProfitCents, sell.TotalCents, soldToJSON)
	if err != nil {
		return nil, err
	}

	if err := tx.Commit(); err != nil {
		return nil, err
	}
	return sell, nil
}

func (s *Store) DeleteSell(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM sells WHERE id = $1`, id)
	if err != nil {
		return err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return store.ErrNotFound
	}
	return nil
}

func (s *Store) ListRecords(ctx context.Context, recordType string, page int, limit int) ([]domain.Record, int, error) {
	var total int
	err := s.db.QueryRowContext(ctx, `
		SELECT COUNT(*)::int FROM records WHERE ($1 = '' OR type = $1)
	`, recordType).Scan(&total)
	if err != nil {
		return nil, 0, err
	}

	offset, capped := pageOffset(page, limit)
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, type, size_id, stock_id, quantity, stocked_date, expiry_date,
			buying_price_cents, selling_price_cents, status, COALESCE(interacted_by,''), created_at
		FROM records
		WHERE ($1 = '' OR type = $1)
		ORDER BY created_at DESC, id DESC
		LIMIT $2 OFFSET $3
	`, recordType, capped, offset)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	records := make([]domain.Record, 0, capped)
	for rows.Next() {
		var rec domain.Record
		var expiry sql.NullTime
		if err := rows.Scan(&rec.ID, &rec.Type, &rec.SizeID, &rec.StockID, &rec.Quantity,
			&rec.StockedDate, &expiry, &rec.BuyingPriceCents, &rec.SellingPriceCents,
			&rec.Status, &rec.InteractedBy, &rec.CreatedAt); err != nil {
			return nil, 0, err
		}
		rec.StockedDate = rec.StockedDate.UTC()
		rec.CreatedAt = rec.CreatedAt.UTC()
		if expiry.Valid {
			e := dateUTC(expiry.Time)
			rec.ExpiryDate = &e
		}
		records = append(records, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, err
	}
	return records, total, nil
}

// --- Users / customers ---

func (s *Store) CreateUser(ctx context.Context, user domain.User) (*domain.User, error) {
	if strings.TrimSpace(user.Email) == "" || user.Password == "" || !domain.ValidRole(user.Role) {
		return nil, store.ErrInvalidInput
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

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO users (id, name, email, password_hash, role, status, is_deleted, created_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8)
	`, user.ID, user.Name, strings.ToLower(user.Email), user.Password, user.Role,
		user.Status, user.Deleted, user.CreatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return nil, store.ErrDuplicateKey
		}
		return nil, err
	}

	created := user
	return &created, nil
}

func (s *Store) ListUsers(ctx context.Context) ([]domain.User, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, name, email, password_hash, role, status, is_deleted, created_at
		FROM users
		ORDER BY email
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	users := make([]domain.User, 0, 16)
	for rows.Next() {
		var u domain.User
		if err := rows.Scan(&u.ID, &u.Name, &u.Email, &u.Password, &u.Role, &u.Status, &u.Deleted, &u.CreatedAt); err != nil {
			return nil, err
		}
		u.CreatedAt = u.CreatedAt.UTC()
		users = append(users, u)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return users, nil
}

func (s *Store) GetUserByEmail(ctx context.Context, email string) (*domain.User, error) {
	var u domain.User
	err := s.db.QueryRowContext(ctx, `
		SELECT id, name, email, password_hash, role, status, is_deleted, created_at
		FROM users
		WHERE email = $1
	`, strings.ToLower(email)).Scan(&u.ID, &u.Name, &u.Email, &u.Password, &u.Role, &u.Status, &u.Deleted, &u.CreatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		return nil, err
	}
	u.CreatedAt = u.CreatedAt.UTC()
	return &u, nil
}

func (s *Store) UpdateUser(ctx context.Context, id string, patch domain.UserPatch) (*domain.User, error) {
	if patch.Role != nil && !domain.ValidRole(*patch.Role) {
		return nil, store.ErrInvalidInput
	}
	if patch.Status != nil && *patch.Status != domain.UserStatusActive && *patch.Status != domain.UserStatusBlocked {
		return nil, store.ErrInvalidInput
	}

	var u domain.User
	err := s.db.QueryRowContext(ctx, `
		UPDATE users
		SET name = COALESCE($2, name),
			role = COALESCE($3, role),
			status = COALESCE($4, status),
			is_deleted = COALESCE($5, is_deleted)
		WHERE id = $1
		RETURNING id, name, email, password_hash, role, status, is_deleted, created_at
	`, id, patch.Name, patch.Role, patch.Status, patch.Deleted).Scan(
		&u.ID, &u.Name, &u.Email, &u.Password, &u.Role, &u.Status, &u.Deleted, &u.CreatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		return nil, err
	}
	u.CreatedAt = u.CreatedAt.UTC()
	return &u, nil
}

func (s *Store) CreateCustomer(ctx context.Context, customer domain.Customer) (*domain.Customer, error) {
	if strings.TrimSpace(customer.PhoneNumber) == "" {
		return nil, store.ErrInvalidInput
	}
	if customer.ID == "" {
		customer.ID = xid.New("cust")
	}
	if customer.CreatedAt.IsZero() {
		customer.CreatedAt = time.Now().UTC()
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO customers (id, name, email, phone_number, address, created_at)
		VALUES ($1,$2,$3,$4,$5,$6)
	`, customer.ID, nullIfEmpty(customer.Name), nullIfEmpty(customer.Email),
		customer.PhoneNumber, nullIfEmpty(customer.Address), customer.CreatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return nil, store.ErrDuplicateKey
		}
		return nil, err
	}

	created := customer
	return &created, nil
}

func (s *Store) ListCustomers(ctx context.Context) ([]domain.Customer, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, COALESCE(name,''), COALESCE(email,''), phone_number, COALESCE(address,''), created_at
		FROM customers
		ORDER BY phone_number
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	customers := make([]domain.Customer, 0, 32)
	for rows.Next() {
		var c domain.Customer
		if err := rows.Scan(&c.ID, &c.Name, &c.Email, &c.PhoneNumber, &c.Address, &c.CreatedAt); err != nil {
			return nil, err
		}
		c.CreatedAt = c.CreatedAt.UTC()
		customers = append(customers, c)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return customers, nil
}

func (s *Store) GetCustomer(ctx context.Context, id string) (*domain.Customer, error) {
	var c domain.Customer
	err := s.db.QueryRowContext(ctx, `
		SELECT id, COALESCE(name,''), COALESCE(email,''), phone_number, COALESCE(address,''), created_at
		FROM customers
		WHERE id = $1
	`, id).Scan(&c.ID, &c.Name, &c.Email, &c.PhoneNumber, &c.Address, &c.CreatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		return nil, err
	}
	c.CreatedAt = c.CreatedAt.UTC()
	return &c, nil
}

// --- helpers ---

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == "23505"
	}
	return false
}

func dateUTC(t time.Time) time.Time {
	return time.Date(t.UTC().Year(), t.UTC().Month(), t.UTC().Day(), 0, 0, 0, 0, time.UTC)
}

func nullIfEmpty(val string) any {
	if val == "" {
		return nil
	}
	return val
}

func nullDate(val *time.Time) any {
	if val == nil {
		return nil
	}
	return dateUTC(*val)
}

func pageOffset(page int, limit int) (offset int, capped int) {
	if limit < 1 || limit > 200 {
		limit = 50
	}
	if page < 1 {
		page = 1
	}
	return (page - 1) * limit, limit
}
