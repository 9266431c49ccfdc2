package domain

import "time"

const (
	RoleAdmin    = "admin"
	RoleStaff    = "staff"
	RoleSubAdmin = "subAdmin"
	RoleGuest    = "guest"
)

const (
	UserStatusActive  = "active"
	UserStatusBlocked = "blocked"
)

const (
	UnitML  = "ml"
	UnitGM  = "gm"
	UnitKG  = "kg"
	UnitLTR = "ltr"
)

const (
	StockStatusPending   = "pending"
	StockStatusAvailable = "available"
	StockStatusSold      = "sold"
	StockStatusExpired   = "expired"
	StockStatusRejected  = "rejected"
)

const (
	AccountTypeCash       = "cash"
	AccountTypeBank       = "bank"
	AccountTypeMobileBank = "mobile-bank"
)

const (
	TxTypeCredit = "credit"
	TxTypeDebit  = "debit"
)

const (
	TxReasonSale       = "sale"
	TxReasonPurchase   = "purchase"
	TxReasonExpense    = "expense"
	TxReasonAdjustment = "adjustment"
	TxReasonTransfer   = "transfer"
)

const (
	RequestStatusPending  = "pending"
	RequestStatusAccepted = "accepted"
	RequestStatusRejected = "rejected"
)

const (
	RecordTypeStockIn = "stock_in"
	RecordTypeSale    = "sale"
)

const (
	SoldToWalkIn   = "walk_in"
	SoldToCustomer = "customer"
)

type Company struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	Disabled  bool      `json:"is_disabled"`
	CreatedAt time.Time `json:"created_at"`
}

type Product struct {
	ID        string    `json:"id"`
	CompanyID string    `json:"company_id"`
	Name      string    `json:"name"`
	Disabled  bool      `json:"is_disabled"`
	CreatedAt time.Time `json:"created_at"`
}

// ProductView joins a product with its company name for table rendering.
type ProductView struct {
	Product
	CompanyName string `json:"company_name"`
}

type Size struct {
	ID                string    `json:"id"`
	ProductID         string    `json:"product_id"`
	Label             string    `json:"label"`
	Unit              string    `json:"unit"`
	UnitQuantity      int       `json:"unit_quantity"`
	StackCount        int       `json:"stack_count"`
	BuyingPriceCents  int64     `json:"buying_price_cents"`
	SellingPriceCents int64     `json:"selling_price_cents"`
	Active            bool      `json:"is_active"`
	CreatedAt         time.Time `json:"created_at"`
}

type SizeView struct {
	Size
	ProductName string `json:"product_name"`
	CompanyID   string `json:"company_id"`
	CompanyName string `json:"company_name"`
}

// Stock is one physical inventory lot of a size, with its own batch, expiry
// and historical prices. Quantity is in base units.
type Stock struct {
	ID                string     `json:"id"`
	SizeID            string     `json:"size_id"`
	BatchNo           string     `json:"batch_no,omitempty"`
	Quantity          int        `json:"quantity"`
	StockedBy         string     `json:"stocked_by"`
	StockedDate       time.Time  `json:"stocked_date"`
	ExpiryDate        *time.Time `json:"expiry_date,omitempty"`
	Status            string     `json:"status"`
	BuyingPriceCents  int64      `json:"buying_price_cents"`
	SellingPriceCents int64      `json:"selling_price_cents"`
	ImageURL          string     `json:"img_url,omitempty"`
}

type StockView struct {
	Stock
	SizeLabel     string `json:"size_label"`
	ProductID     string `json:"product_id"`
	ProductName   string `json:"product_name"`
	CompanyID     string `json:"company_id"`
	CompanyName   string `json:"company_name"`
	StockedByName string `json:"stocked_by_name"`
}

type StockFilter struct {
	Status string
	SizeID string
	Sort   string
}

// StockPatch is a partial overwrite used by admin corrections. It never
// touches the account ledger.
type StockPatch struct {
	BatchNo           *string    `json:"batch_no,omitempty"`
	Quantity          *int       `json:"quantity,omitempty"`
	ExpiryDate        *time.Time `json:"expiry_date,omitempty"`
	Status            *string    `json:"status,omitempty"`
	BuyingPriceCents  *int64     `json:"buying_price_cents,omitempty"`
	SellingPriceCents *int64     `json:"selling_price_cents,omitempty"`
	ImageURL          *string    `json:"img_url,omitempty"`
}

// CompanyStockGroup is one row of the per-company dashboard: all lots of the
// same (product, size) collapsed into a single total.
type CompanyStockGroup struct {
	ProductID         string `json:"product_id"`
	ProductName       string `json:"product_name"`
	SizeID            string `json:"size_id"`
	SizeLabel         string `json:"size_label"`
	TotalQuantity     int    `json:"total_quantity"`
	BuyingPriceCents  int64  `json:"buying_price_cents"`
	SellingPriceCents int64  `json:"selling_price_cents"`
}

type Account struct {
	ID                  string    `json:"id"`
	Name                string    `json:"name"`
	Type                string    `json:"type"`
	AccountNumber       string    `json:"account_number,omitempty"`
	BankName            string    `json:"bank_name,omitempty"`
	OpeningBalanceCents int64     `json:"opening_balance_cents"`
	CurrentBalanceCents int64     `json:"current_balance_cents"`
	Note                string    `json:"note,omitempty"`
	CreatedAt           time.Time `json:"created_at"`
}

type AccountCreateRequest struct {
	Name                string `json:"name"`
	Type                string `json:"type"`
	AccountNumber       string `json:"account_number"`
	BankName            string `json:"bank_name"`
	OpeningBalanceCents int64  `json:"opening_balance_cents"`
	Note                string `json:"note"`
}

// AccountPatch edits account metadata only; balances move exclusively
// through transactions.
type AccountPatch struct {
	Name          *string `json:"name,omitempty"`
	AccountNumber *string `json:"account_number,omitempty"`
	BankName      *string `json:"bank_name,omitempty"`
	Note          *string `json:"note,omitempty"`
}

type AccountTransaction struct {
	ID          string    `json:"id"`
	AccountID   string    `json:"account_id"`
	Type        string    `json:"type"`
	AmountCents int64     `json:"amount_cents"`
	Reason      string    `json:"reason"`
	Note        string    `json:"note,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
}

type TransactionCreateRequest struct {
	AccountID   string `json:"account_id"`
	Type        string `json:"type"`
	AmountCents int64  `json:"amount_cents"`
	Reason      string `json:"reason"`
	Note        string `json:"note"`
}

type TransactionPatch struct {
	Type        *string `json:"type,omitempty"`
	AmountCents *int64  `json:"amount_cents,omitempty"`
	Reason      *string `json:"reason,omitempty"`
	Note        *string `json:"note,omitempty"`
}

type StockAddRequest struct {
	ID                string     `json:"id"`
	SizeID            string     `json:"size_id"`
	Quantity          int        `json:"quantity"`
	ExpiryDate        *time.Time `json:"expiry_date,omitempty"`
	BatchNo           string     `json:"batch_no,omitempty"`
	BuyingPriceCents  int64      `json:"buying_price_cents"`
	SellingPriceCents int64      `json:"selling_price_cents"`
	ImageURL          string     `json:"img_url,omitempty"`
	RequestedBy       string     `json:"requested_by"`
	Status            string     `json:"status"`
	CreatedAt         time.Time  `json:"created_at"`
	DecidedAt         *time.Time `json:"decided_at,omitempty"`
}

type StockAddRequestCreate struct {
	SizeID            string     `json:"size_id"`
	Quantity          int        `json:"quantity"`
	ExpiryDate        *time.Time `json:"expiry_date,omitempty"`
	BatchNo           string     `json:"batch_no"`
	BuyingPriceCents  int64      `json:"buying_price_cents"`
	SellingPriceCents int64      `json:"selling_price_cents"`
	ImageURL          string     `json:"img_url"`
}

// SoldTo is a tagged variant: a walk-in buyer identified by a free-form name,
// or a registered customer identified by id.
type SoldTo struct {
	Kind       string `json:"kind"`
	Name       string `json:"name,omitempty"`
	CustomerID string `json:"customer_id,omitempty"`
}

type SaleLine struct {
	StockID  string `json:"stock_id"`
	Quantity int    `json:"quantity"`
}

type SaleRequest struct {
	ID          string     `json:"id"`
	Lines       []SaleLine `json:"stocks"`
	SoldTo      SoldTo     `json:"sold_to"`
	AccountID   string     `json:"account_id"`
	RequestedBy string     `json:"requested_by"`
	Status      string     `json:"status"`
	CreatedAt   time.Time  `json:"created_at"`
	DecidedAt   *time.Time `json:"decided_at,omitempty"`
}

type SaleRequestCreate struct {
	Lines     []SaleLine `json:"stocks"`
	SoldTo    SoldTo     `json:"sold_to"`
	AccountID string     `json:"account_id"`
}

type DecisionRequest struct {
	Decision string `json:"decision"`
}

// Sell is the authoritative record of one completed sale line.
type Sell struct {
	ID                string    `json:"id"`
	StockID           string    `json:"stock_id"`
	SizeID            string    `json:"size_id"`
	Quantity          int       `json:"quantity"`
	SellingPriceCents int64     `json:"selling_price_cents"`
	BuyingPriceCents  int64     `json:"buying_price_cents"`
	ProfitCents       int64     `json:"profit_cents"`
	TotalCents        int64     `json:"total_cents"`
	SoldTo            SoldTo    `json:"sold_to"`
	AccountID         string    `json:"account_id"`
	SoldBy            string    `json:"sold_by"`
	SoldDate          time.Time `json:"sold_date"`
}

type SaleCreateRequest struct {
	Lines     []SaleLine `json:"stocks"`
	SoldTo    SoldTo     `json:"sold_to"`
	AccountID string     `json:"account_id"`
}

type SellPatch struct {
	Quantity          *int    `json:"quantity,omitempty"`
	SellingPriceCents *int64  `json:"selling_price_cents,omitempty"`
	BuyingPriceCents  *int64  `json:"buying_price_cents,omitempty"`
	SoldTo            *SoldTo `json:"sold_to,omitempty"`
}

// Record is the append-only audit trail of stock movement, kept separate from
// the authoritative Stock/Sell rows.
type Record struct {
	ID                string     `json:"id"`
	Type              string     `json:"type"`
	SizeID            string     `json:"size_id"`
	StockID           string     `json:"stock_id"`
	Quantity          int        `json:"quantity"`
	StockedDate       time.Time  `json:"stocked_date"`
	ExpiryDate        *time.Time `json:"expiry_date,omitempty"`
	BuyingPriceCents  int64      `json:"buying_price_cents"`
	SellingPriceCents int64      `json:"selling_price_cents"`
	Status            string     `json:"status"`
	InteractedBy      string     `json:"interacted_by"`
	CreatedAt         time.Time  `json:"created_at"`
}

type User struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	Email     string    `json:"email"`
	Password  string    `json:"-"`
	Role      string    `json:"role"`
	Status    string    `json:"status"`
	Deleted   bool      `json:"is_deleted"`
	CreatedAt time.Time `json:"created_at"`
}

type UserCreateRequest struct {
	Name     string `json:"name"`
	Email    string `json:"email"`
	Password string `json:"password"`
	Role     string `json:"role"`
}

type UserPatch struct {
	Name    *string `json:"name,omitempty"`
	Role    *string `json:"role,omitempty"`
	Status  *string `json:"status,omitempty"`
	Deleted *bool   `json:"is_deleted,omitempty"`
}

type Customer struct {
	ID          string    `json:"id"`
	Name        string    `json:"name,omitempty"`
	Email       string    `json:"email,omitempty"`
	PhoneNumber string    `json:"phone_number"`
	Address     string    `json:"address,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
}

type CustomerCreateRequest struct {
	Name        string `json:"name"`
	Email       string `json:"email"`
	PhoneNumber string `json:"phone_number"`
	Address     string `json:"address"`
}

type LoginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type LoginResponse struct {
	AccessToken string `json:"access_token"`
	Role        string `json:"role"`
	Name        string `json:"name"`
	ExpiresAt   string `json:"expires_at"`
}

// Actor is the authenticated caller, extracted from the bearer token and
// carried through the request context.
type Actor struct {
	UserID string
	Name   string
	Role   string
}

// ListMeta is attached to paginated list responses.
type ListMeta struct {
	Page      int `json:"page"`
	Limit     int `json:"limit"`
	TotalPage int `json:"totalPage"`
	TotalData int `json:"totalData"`
}

func ValidUnit(unit string) bool {
	switch unit {
	case UnitML, UnitGM, UnitKG, UnitLTR:
		return true
	}
	return false
}

func ValidAccountType(t string) bool {
	switch t {
	case AccountTypeCash, AccountTypeBank, AccountTypeMobileBank:
		return true
	}
	return false
}

func ValidTxType(t string) bool {
	return t == TxTypeCredit || t == TxTypeDebit
}

func ValidTxReason(r string) bool {
	switch r {
	case TxReasonSale, TxReasonPurchase, TxReasonExpense, TxReasonAdjustment, TxReasonTransfer:
		return true
	}
	return false
}

func ValidRole(role string) bool {
	switch role {
	case RoleAdmin, RoleStaff, RoleSubAdmin, RoleGuest:
		return true
	}
	return false
}

// SignedCents returns the signed balance effect of a transaction:
// positive for credits, negative for debits.
func (t AccountTransaction) SignedCents() int64 {
	if t.Type == TxTypeDebit {
		return -t.AmountCents
	}
	return t.AmountCents
}
