package store

import (
	"context"
	"errors"
	"time"

	"krishantraders/backend/internal/domain"
)

var (
	ErrNotFound          = errors.New("not found")
	ErrDuplicateKey      = errors.New("already exists")
	ErrInsufficientStock = errors.New("insufficient stock")
	ErrAlreadyProcessed  = errors.New("already processed")
	ErrInvalidInput      = errors.New("invalid input")
)

// SaleInput is the unified sale routine's input, shared by the direct admin
// path and SaleRequest acceptance.
type SaleInput struct {
	Lines     []domain.SaleLine
	SoldTo    domain.SoldTo
	AccountID string
	ActorID   string
	SoldDate  time.Time
}

// Repository is the persistence contract. Implementations must make every
// multi-entity mutation atomic: either all of its writes commit or none do.
type Repository interface {
	// Catalog
	CreateCompany(ctx context.Context, company domain.Company) (*domain.Company, error)
	ListCompanies(ctx context.Context) ([]domain.Company, error)
	GetCompany(ctx context.Context, id string) (*domain.Company, error)
	UpdateCompany(ctx context.Context, company domain.Company) (*domain.Company, error)
	DeleteCompany(ctx context.Context, id string) error

	CreateProduct(ctx context.Context, product domain.Product) (*domain.Product, error)
	ListProducts(ctx context.Context, companyID string) ([]domain.ProductView, error)
	GetProduct(ctx context.Context, id string) (*domain.Product, error)
	UpdateProduct(ctx context.Context, product domain.Product) (*domain.Product, error)
	DeleteProduct(ctx context.Context, id string) error

	CreateSize(ctx context.Context, size domain.Size) (*domain.Size, error)
	ListSizes(ctx context.Context, productID string) ([]domain.SizeView, error)
	GetSize(ctx context.Context, id string) (*domain.Size, error)
	UpdateSize(ctx context.Context, size domain.Size) (*domain.Size, error)
	DeleteSize(ctx context.Context, id string) error

	// Inventory ledger
	ListStock(ctx context.Context, filter domain.StockFilter) ([]domain.StockView, error)
	GetStock(ctx context.Context, id string) (*domain.Stock, error)
	UpdateStock(ctx context.Context, id string, patch domain.StockPatch) (*domain.Stock, error)
	DeleteStock(ctx context.Context, id string) error
	AggregateStockByCompany(ctx context.Context, companyID string) ([]domain.CompanyStockGroup, error)

	// Account ledger. Balance updates and transaction rows always land in the
	// same database transaction.
	CreateAccount(ctx context.Context, account domain.Account) (*domain.Account, error)
	ListAccounts(ctx context.Context) ([]domain.Account, error)
	GetAccount(ctx context.Context, id string) (*domain.Account, error)
	UpdateAccount(ctx context.Context, id string, patch domain.AccountPatch) (*domain.Account, error)
	CreateAccountTransaction(ctx context.Context, tx domain.AccountTransaction) (*domain.AccountTransaction, error)
	ListAccountTransactions(ctx context.Context, accountID string, page int, limit int) ([]domain.AccountTransaction, int, error)
	GetAccountTransaction(ctx context.Context, id string) (*domain.AccountTransaction, error)
	UpdateAccountTransaction(ctx context.Context, id string, patch domain.TransactionPatch) (*domain.AccountTransaction, error)
	DeleteAccountTransaction(ctx context.Context, id string) error

	// Request/approval state machine. Accept/Reject fail with
	// ErrAlreadyProcessed when the request has left the pending state.
	CreateStockAddRequest(ctx context.Context, req domain.StockAddRequest) (*domain.StockAddRequest, error)
	ListStockAddRequests(ctx context.Context, status string) ([]domain.StockAddRequest, error)
	GetStockAddRequest(ctx context.Context, id string) (*domain.StockAddRequest, error)
	AcceptStockAddRequest(ctx context.Context, id string, decidedAt time.Time) (*domain.Stock, error)
	RejectStockAddRequest(ctx context.Context, id string, decidedAt time.Time) (*domain.StockAddRequest, error)

	CreateSaleRequest(ctx context.Context, req domain.SaleRequest) (*domain.SaleRequest, error)
	ListSaleRequests(ctx context.Context, status string) ([]domain.SaleRequest, error)
	GetSaleRequest(ctx context.Context, id string) (*domain.SaleRequest, error)
	AcceptSaleRequest(ctx context.Context, id string, decidedAt time.Time) ([]domain.Sell, error)
	RejectSaleRequest(ctx context.Context, id string, decidedAt time.Time) (*domain.SaleRequest, error)

	// Sales
	CreateSale(ctx context.Context, input SaleInput) ([]domain.Sell, error)
	ListSells(ctx context.Context, page int, limit int) ([]domain.Sell, int, error)
	GetSell(ctx context.Context, id string) (*domain.Sell, error)
	UpdateSell(ctx context.Context, id string, patch domain.SellPatch) (*domain.Sell, error)
	DeleteSell(ctx context.Context, id string) error
	ListRecords(ctx context.Context, recordType string, page int, limit int) ([]domain.Record, int, error)

	// Users and customers
	CreateUser(ctx context.Context, user domain.User) (*domain.User, error)
	ListUsers(ctx context.Context) ([]domain.User, error)
	GetUserByEmail(ctx context.Context, email string) (*domain.User, error)
	UpdateUser(ctx context.Context, id string, patch domain.UserPatch) (*domain.User, error)

	CreateCustomer(ctx context.Context, customer domain.Customer) (*domain.Customer, error)
	ListCustomers(ctx context.Context) ([]domain.Customer, error)
	GetCustomer(ctx context.Context, id string) (*domain.Customer, error)
}
