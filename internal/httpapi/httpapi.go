package httpapi

import (
	"encoding/json"
	"errors"
	"log"
	"net/http"
	"net/netip"
	"strconv"
	"strings"
	"sync"
	"time"

	"krishantraders/backend/internal/domain"
	"krishantraders/backend/internal/service"
	"krishantraders/backend/internal/store"
)

type API struct {
	service       *service.Service
	auth          *AuthManager
	allowedOrigin string
	loginLimiter  *attemptLimiter
}

func New(svc *service.Service, auth *AuthManager, allowedOrigin string) *API {
	return &API{
		service:       svc,
		auth:          auth,
		allowedOrigin: allowedOrigin,
		loginLimiter:  newAttemptLimiter(5, time.Minute),
	}
}

// Operation names used by the capability table and the requireCap gate.
const (
	opCompanyList    = "company:list"
	opCompanyCreate  = "company:create"
	opCompanyGet     = "company:get"
	opCompanyUpdate  = "company:update"
	opCompanyDelete  = "company:delete"
	opCompanySummary = "company:stock-summary"

	opProductList   = "product:list"
	opProductCreate = "product:create"
	opProductGet    = "product:get"
	opProductUpdate = "product:update"
	opProductDelete = "product:delete"

	opSizeList   = "size:list"
	opSizeCreate = "size:create"
	opSizeGet    = "size:get"
	opSizeUpdate = "size:update"
	opSizeDelete = "size:delete"

	opStockList   = "stock:list"
	opStockGet    = "stock:get"
	opStockUpdate = "stock:update"
	opStockDelete = "stock:delete"

	opAccountCreate = "account:create"
	opAccountList   = "account:list"
	opAccountGet    = "account:get"
	opAccountUpdate = "account:update"

	opTxCreate = "transaction:create"
	opTxList   = "transaction:list"
	opTxGet    = "transaction:get"
	opTxUpdate = "transaction:update"
	opTxDelete = "transaction:delete"

	opStockReqCreate = "stock-request:create"
	opStockReqList   = "stock-request:list"
	opStockReqGet    = "stock-request:get"
	opStockReqDecide = "stock-request:decide"

	opSaleReqCreate = "sale-request:create"
	opSaleReqList   = "sale-request:list"
	opSaleReqGet    = "sale-request:get"
	opSaleReqDecide = "sale-request:decide"

	opSaleCreate = "sale:create"
	opSellList   = "sell:list"
	opSellGet    = "sell:get"
	opSellUpdate = "sell:update"
	opSellDelete = "sell:delete"
	opRecordList = "record:list"

	opUserCreate = "user:create"
	opUserList   = "user:list"
	opUserUpdate = "user:update"

	opCustomerCreate = "customer:create"
	opCustomerList   = "customer:list"
	opCustomerGet    = "customer:get"
)

var (
	adminOnly   = []string{domain.RoleAdmin}
	adminStaff  = []string{domain.RoleAdmin, domain.RoleStaff}
	stockRoles  = []string{domain.RoleAdmin, domain.RoleStaff, domain.RoleSubAdmin}
	catalogRead = []string{domain.RoleAdmin, domain.RoleStaff, domain.RoleSubAdmin, domain.RoleGuest}
)

// capabilities is the single authorization table: operation -> allowed roles.
// Routes never carry their own role checks; requireCap consults this map.
var capabilities = map[string][]string{
	opCompanyList:    catalogRead,
	opCompanyCreate:  adminOnly,
	opCompanyGet:     catalogRead,
	opCompanyUpdate:  adminOnly,
	opCompanyDelete:  adminOnly,
	opCompanySummary: stockRoles,

	opProductList:   catalogRead,
	opProductCreate: adminOnly,
	opProductGet:    catalogRead,
	opProductUpdate: adminOnly,
	opProductDelete: adminOnly,

	opSizeList:   catalogRead,
	opSizeCreate: adminOnly,
	opSizeGet:    catalogRead,
	opSizeUpdate: adminOnly,
	opSizeDelete: adminOnly,

	opStockList:   stockRoles,
	opStockGet:    stockRoles,
	opStockUpdate: adminOnly,
	opStockDelete: adminOnly,

	opAccountCreate: adminOnly,
	opAccountList:   adminStaff,
	opAccountGet:    adminStaff,
	opAccountUpdate: adminOnly,

	opTxCreate: adminStaff,
	opTxList:   adminStaff,
	opTxGet:    adminStaff,
	opTxUpdate: adminOnly,
	opTxDelete: adminOnly,

	opStockReqCreate: adminStaff,
	opStockReqList:   adminStaff,
	opStockReqGet:    adminStaff,
	opStockReqDecide: adminOnly,

	opSaleReqCreate: adminStaff,
	opSaleReqList:   adminStaff,
	opSaleReqGet:    adminStaff,
	opSaleReqDecide: adminOnly,

	opSaleCreate: adminOnly,
	opSellList:   adminStaff,
	opSellGet:    adminStaff,
	opSellUpdate: adminOnly,
	opSellDelete: adminOnly,
	opRecordList: adminStaff,

	opUserCreate: adminOnly,
	opUserList:   adminOnly,
	opUserUpdate: adminOnly,

	opCustomerCreate: adminStaff,
	opCustomerList:   adminStaff,
	opCustomerGet:    adminStaff,
}

type attemptLimiter struct {
	mu      sync.Mutex
	max     int
	window  time.Duration
	entries map[string][]time.Time
}

func newAttemptLimiter(max int, window time.Duration) *attemptLimiter {
	if max < 1 {
		max = 1
	}
	if window <= 0 {
		window = time.Minute
	}
	return &attemptLimiter{max: max, window: window, entries: make(map[string][]time.Time)}
}

func (l *attemptLimiter) Allow(key string) bool {
	if l == nil {
		return true
	}
	now := time.Now()
	cutoff := now.Add(-l.window)

	l.mu.Lock()
	defer l.mu.Unlock()

	history := l.entries[key]
	kept := make([]time.Time, 0, len(history)+1)
	for _, ts := range history {
		if ts.After(cutoff) {
			kept = append(kept, ts)
		}
	}
	if len(kept) >= l.max {
		l.entries[key] = kept
		return false
	}
	kept = append(kept, now)
	l.entries[key] = kept
	return true
}

func clientKey(r *http.Request) string {
	host := strings.TrimSpace(r.RemoteAddr)
	if host == "" {
		return "unknown"
	}
	if addr, err := netip.ParseAddrPort(host); err == nil {
		return addr.Addr().String()
	}
	if idx := strings.LastIndex(host, ":"); idx > 0 {
		return host[:idx]
	}
	return host
}

func (a *API) Handler() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("/healthz", a.handleHealth)
	mux.HandleFunc("/api/v1/auth/login", a.handleLogin)

	mux.HandleFunc("/api/v1/companies", methods(map[string]http.HandlerFunc{
		http.MethodGet:  a.requireCap(opCompanyList, a.handleCompanyList),
		http.MethodPost: a.requireCap(opCompanyCreate, a.handleCompanyCreate),
	}))
	mux.HandleFunc("/api/v1/companies/", a.handleCompanyActions)

	mux.HandleFunc("/api/v1/products", methods(map[string]http.HandlerFunc{
		http.MethodGet:  a.requireCap(opProductList, a.handleProductList),
		http.MethodPost: a.requireCap(opProductCreate, a.handleProductCreate),
	}))
	mux.HandleFunc("/api/v1/products/", methods(map[string]http.HandlerFunc{
		http.MethodGet:    a.requireCap(opProductGet, a.handleProductGet),
		http.MethodPatch:  a.requireCap(opProductUpdate, a.handleProductUpdate),
		http.MethodDelete: a.requireCap(opProductDelete, a.handleProductDelete),
	}))

	mux.HandleFunc("/api/v1/sizes", methods(map[string]http.HandlerFunc{
		http.MethodGet:  a.requireCap(opSizeList, a.handleSizeList),
		http.MethodPost: a.requireCap(opSizeCreate, a.handleSizeCreate),
	}))
	mux.HandleFunc("/api/v1/sizes/", methods(map[string]http.HandlerFunc{
		http.MethodGet:    a.requireCap(opSizeGet, a.handleSizeGet),
		http.MethodPatch:  a.requireCap(opSizeUpdate, a.handleSizeUpdate),
		http.MethodDelete: a.requireCap(opSizeDelete, a.handleSizeDelete),
	}))

	mux.HandleFunc("/api/v1/stocks", methods(map[string]http.HandlerFunc{
		http.MethodGet: a.requireCap(opStockList, a.handleStockList),
	}))
	mux.HandleFunc("/api/v1/stocks/", methods(map[string]http.HandlerFunc{
		http.MethodGet:    a.requireCap(opStockGet, a.handleStockGet),
		http.MethodPatch:  a.requireCap(opStockUpdate, a.handleStockUpdate),
		http.MethodDelete: a.requireCap(opStockDelete, a.handleStockDelete),
	}))

	mux.HandleFunc("/api/v1/accounts", methods(map[string]http.HandlerFunc{
		http.MethodGet:  a.requireCap(opAccountList, a.handleAccountList),
		http.MethodPost: a.requireCap(opAccountCreate, a.handleAccountCreate),
	}))
	mux.HandleFunc("/api/v1/accounts/", methods(map[string]http.HandlerFunc{
		http.MethodGet:   a.requireCap(opAccountGet, a.handleAccountGet),
		http.MethodPatch: a.requireCap(opAccountUpdate, a.handleAccountUpdate),
	}))

	mux.HandleFunc("/api/v1/account-transactions", methods(map[string]http.HandlerFunc{
		http.MethodGet:  a.requireCap(opTxList, a.handleTxList),
		http.MethodPost: a.requireCap(opTxCreate, a.handleTxCreate),
	}))
	mux.HandleFunc("/api/v1/account-transactions/", methods(map[string]http.HandlerFunc{
		http.MethodGet:    a.requireCap(opTxGet, a.handleTxGet),
		http.MethodPatch:  a.requireCap(opTxUpdate, a.handleTxUpdate),
		http.MethodDelete: a.requireCap(opTxDelete, a.handleTxDelete),
	}))

	mux.HandleFunc("/api/v1/requests/add-stock", methods(map[string]http.HandlerFunc{
		http.MethodGet:  a.requireCap(opStockReqList, a.handleStockReqList),
		http.MethodPost: a.requireCap(opStockReqCreate, a.handleStockReqCreate),
	}))
	mux.HandleFunc("/api/v1/requests/add-stock/", methods(map[string]http.HandlerFunc{
		http.MethodGet:   a.requireCap(opStockReqGet, a.handleStockReqGet),
		http.MethodPatch: a.requireCap(opStockReqDecide, a.handleStockReqDecide),
	}))

	mux.HandleFunc("/api/v1/requests/sell-stock", methods(map[string]http.HandlerFunc{
		http.MethodGet:  a.requireCap(opSaleReqList, a.handleSaleReqList),
		http.MethodPost: a.requireCap(opSaleReqCreate, a.handleSaleReqCreate),
	}))
	mux.HandleFunc("/api/v1/requests/sell-stock/", methods(map[string]http.HandlerFunc{
		http.MethodGet:   a.requireCap(opSaleReqGet, a.handleSaleReqGet),
		http.MethodPatch: a.requireCap(opSaleReqDecide, a.handleSaleReqDecide),
	}))

	mux.HandleFunc("/api/v1/sell", methods(map[string]http.HandlerFunc{
		http.MethodPost: a.requireCap(opSaleCreate, a.handleSaleCreate),
	}))
	mux.HandleFunc("/api/v1/sells", methods(map[string]http.HandlerFunc{
		http.MethodGet: a.requireCap(opSellList, a.handleSellList),
	}))
	mux.HandleFunc("/api/v1/sells/", methods(map[string]http.HandlerFunc{
		http.MethodGet:    a.requireCap(opSellGet, a.handleSellGet),
		http.MethodPatch:  a.requireCap(opSellUpdate, a.handleSellUpdate),
		http.MethodDelete: a.requireCap(opSellDelete, a.handleSellDelete),
	}))
	mux.HandleFunc("/api/v1/records", methods(map[string]http.HandlerFunc{
		http.MethodGet: a.requireCap(opRecordList, a.handleRecordList),
	}))

	mux.HandleFunc("/api/v1/users", methods(map[string]http.HandlerFunc{
		http.MethodGet:  a.requireCap(opUserList, a.handleUserList),
		http.MethodPost: a.requireCap(opUserCreate, a.handleUserCreate),
	}))
	mux.HandleFunc("/api/v1/users/", methods(map[string]http.HandlerFunc{
		http.MethodPatch: a.requireCap(opUserUpdate, a.handleUserUpdate),
	}))

	mux.HandleFunc("/api/v1/customers", methods(map[string]http.HandlerFunc{
		http.MethodGet:  a.requireCap(opCustomerList, a.handleCustomerList),
		http.MethodPost: a.requireCap(opCustomerCreate, a.handleCustomerCreate),
	}))
	mux.HandleFunc("/api/v1/customers/", methods(map[string]http.HandlerFunc{
		http.MethodGet: a.requireCap(opCustomerGet, a.handleCustomerGet),
	}))

	return a.withMiddleware(mux)
}

func methods(handlers map[string]http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if handler, ok := handlers[r.Method]; ok {
			handler(w, r)
			return
		}
		writeMethodNotAllowed(w)
	}
}

// requireCap is the single authorization gate: it authenticates the bearer
// token and checks the actor's role against the capability table entry for op.
func (a *API) requireCap(op string, next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		authorization := strings.TrimSpace(r.Header.Get("Authorization"))
		if !strings.HasPrefix(strings.ToLower(authorization), "bearer ") {
			writeFailure(w, http.StatusUnauthorized, "missing bearer token")
			return
		}

		token := strings.TrimSpace(authorization[len("Bearer "):])
		actor, err := a.auth.ParseToken(token)
		if err != nil {
			writeFailure(w, http.StatusUnauthorized, err.Error())
			return
		}

		allowed, known := capabilities[op]
		if !known || !roleAllowed(actor.Role, allowed) {
			writeFailure(w, http.StatusForbidden, "forbidden")
			return
		}

		next(w, r.WithContext(service.WithActor(r.Context(), actor)))
	}
}

func roleAllowed(role string, allowed []string) bool {
	for _, allow := range allowed {
		if role == allow {
			return true
		}
	}
	return false
}

func (a *API) handleHealth(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeMethodNotAllowed(w)
		return
	}
	writeSuccess(w, http.StatusOK, "ok", map[string]any{
		"at": time.Now().UTC().Format(time.RFC3339),
	})
}

func (a *API) handleLogin(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeMethodNotAllowed(w)
		return
	}
	if !a.loginLimiter.Allow(clientKey(r)) {
		writeFailure(w, http.StatusTooManyRequests, "too many login attempts")
		return
	}

	var req domain.LoginRequest
	if err := decodeJSON(r, &req); err != nil {
		writeFailure(w, http.StatusBadRequest, "invalid request body")
		return
	}

	resp, err := a.auth.Login(r.Context(), req)
	if err != nil {
		writeFailure(w, http.StatusUnauthorized, err.Error())
		return
	}
	writeSuccess(w, http.StatusOK, "login successful", resp)
}

// --- Companies ---

func (a *API) handleCompanyList(w http.ResponseWriter, r *http.Request) {
	companies, err := a.service.ListCompanies(r.Context())
	if err != nil {
		writeStoreError(w, err)
		return
	}
	writeSuccess(w, http.StatusOK, "companies fetched", companies)
}

func (a *API) handleCompanyCreate(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Name string `json:"name"`
	}
	if err := decodeJSON(r, &req); err != nil {
		writeFailure(w, http.StatusBadRequest, "invalid request body")
		return
	}
	company, err := a.service.CreateCompany(r.Context(), req.Name)
	if err != nil {
		writeStoreError(w, err)
		return
	}
	writeSuccess(w, http.StatusCreated, "company created", company)
}

func (a *API) handleCompanyActions(w http.ResponseWriter, r *http.Request) {
	rest := pathRest(r, "/api/v1/companies/")
	if id, found := strings.CutSuffix(rest, "/stock-summary"); found {
		if r.Method != http.MethodGet {
			writeMethodNotAllowed(w)
			return
		}
		a.requireCap(opCompanySummary, func(w http.ResponseWriter, r *http.Request) {
			groups, err := a.service.CompanyStockSummary(r.Context(), id)
			if err != nil {
				writeStoreError(w, err)
				return
			}
			writeSuccess(w, http.StatusOK, "stock summary fetched", groups)
		})(w, r)
		return
	}

	methods(map[string]http.HandlerFunc{
		http.MethodGet: a.requireCap(opCompanyGet, func(w http.ResponseWriter, r *http.Request) {
			company, err := a.service.GetCompany(r.Context(), rest)
			if err != nil {
				writeStoreError(w, err)
				return
			}
			writeSuccess(w, http.StatusOK, "company fetched", company)
		}),
		http.MethodPatch: a.requireCap(opCompanyUpdate, func(w http.ResponseWriter, r *http.Request) {
			var req struct {
				Name     string `json:"name"`
				Disabled *bool  `json:"is_disabled"`
			}
			if err := decodeJSON(r, &req); err != nil {
				writeFailure(w, http.StatusBadRequest, "invalid request body")
				return
			}
			company, err := a.service.UpdateCompany(r.Context(), rest, req.Name, req.Disabled)
			if err != nil {
				writeStoreError(w, err)
				return
			}
			writeSuccess(w, http.StatusOK, "company updated", company)
		}),
		http.MethodDelete: a.requireCap(opCompanyDelete, func(w http.ResponseWriter, r *http.Request) {
			if err := a.service.DeleteCompany(r.Context(), rest); err != nil {
				writeStoreError(w, err)
				return
			}
			writeSuccess(w, http.StatusOK, "company deleted", nil)
		}),
	})(w, r)
}

// --- Products ---

func (a *API) handleProductList(w http.ResponseWriter, r *http.Request) {
	products, err := a.service.ListProducts(r.Context(), r.URL.Query().Get("company_id"))
	if err != nil {
		writeStoreError(w, err)
		return
	}
	writeSuccess(w, http.StatusOK, "products fetched", products)
}

func (a *API) handleProductCreate(w http.ResponseWriter, r *http.Request) {
	var req struct {
		CompanyID string `json:"company_id"`
		Name      string `json:"name"`
	}
	if err := decodeJSON(r, &req); err != nil {
		writeFailure(w, http.StatusBadRequest, "invalid request body")
		return
	}
	product, err := a.service.CreateProduct(r.Context(), req.CompanyID, req.Name)
	if err != nil {
		writeStoreError(w, err)
		return
	}
	writeSuccess(w, http.StatusCreated, "product created", product)
}

func (a *API) handleProductGet(w http.ResponseWriter, r *http.Request) {
	product, err := a.service.GetProduct(r.Context(), pathRest(r, "/api/v1/products/"))
	if err != nil {
		writeStoreError(w, err)
		return
	}
	writeSuccess(w, http.StatusOK, "product fetched", product)
}

func (a *API) handleProductUpdate(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Name     string `json:"name"`
		Disabled *bool  `json:"is_disabled"`
	}
	if err := decodeJSON(r, &req); err != nil {
		writeFailure(w, http.StatusBadRequest, "invalid request body")
		return
	}
	product, err := a.service.UpdateProduct(r.Context(), pathRest(r, "/api/v1/products/"), req.Name, req.Disabled)
	if err != nil {
		writeStoreError(w, err)
		return
	}
	writeSuccess(w, http.StatusOK, "product updated", product)
}

func (a *API) handleProductDelete(w http.ResponseWriter, r *http.Request) {
	if err := a.service.DeleteProduct(r.Context(), pathRest(r, "/api/v1/products/")); err != nil {
		writeStoreError(w, err)
		return
	}
	writeSuccess(w, http.StatusOK, "product deleted", nil)
}

// --- Sizes ---

func (a *API) handleSizeList(w http.ResponseWriter, r *http.Request) {
	sizes, err := a.service.ListSizes(r.Context(), r.URL.Query().Get("product_id"))
	if err != nil {
		writeStoreError(w, err)
		return
	}
	writeSuccess(w, http.StatusOK, "sizes fetched", sizes)
}

func (a *API) handleSizeCreate(w http.ResponseWriter, r *http.Request) {
	var req domain.Size
	if err := decodeJSON(r, &req); err != nil {
		writeFailure(w, http.StatusBadRequest, "invalid request body")
		return
	}
	size, err := a.service.CreateSize(r.Context(), req)
	if err != nil {
		writeStoreError(w, err)
		return
	}
	writeSuccess(w, http.StatusCreated, "size created", size)
}

func (a *API) handleSizeGet(w http.ResponseWriter, r *http.Request) {
	size, err := a.service.GetSize(r.Context(), pathRest(r, "/api/v1/sizes/"))
	if err != nil {
		writeStoreError(w, err)
		return
	}
	writeSuccess(w, http.StatusOK, "size fetched", size)
}

func (a *API) handleSizeUpdate(w http.ResponseWriter, r *http.Request) {
	var req domain.Size
	if err := decodeJSON(r, &req); err != nil {
		writeFailure(w, http.StatusBadRequest, "invalid request body")
		return
	}
	size, err := a.service.UpdateSize(r.Context(), pathRest(r, "/api/v1/sizes/"), req)
	if err != nil {
		writeStoreError(w, err)
		return
	}
	writeSuccess(w, http.StatusOK, "size updated", size)
}

func (a *API) handleSizeDelete(w http.ResponseWriter, r *http.Request) {
	if err := a.service.DeleteSize(r.Context(), pathRest(r, "/api/v1/sizes/")); err != nil {
		writeStoreError(w, err)
		return
	}
	writeSuccess(w, http.StatusOK, "size deleted", nil)
}

// --- Stocks ---

func (a *API) handleStockList(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query()
	stocks, err := a.service.ListStock(r.Context(), domain.StockFilter{
		Status: query.Get("status"),
		SizeID: query.Get("size_id"),
		Sort:   query.Get("sort"),
	})
	if err != nil {
		writeStoreError(w, err)
		return
	}
	writeSuccess(w, http.StatusOK, "stocks fetched", stocks)
}

func (a *API) handleStockGet(w http.ResponseWriter, r *http.Request) {
	stock, err := a.service.GetStock(r.Context(), pathRest(r, "/api/v1/stocks/"))
	if err != nil {
		writeStoreError(w, err)
		return
	}
	writeSuccess(w, http.StatusOK, "stock fetched", stock)
}

func (a *API) handleStockUpdate(w http.ResponseWriter, r *http.Request) {
	var patch domain.StockPatch
	if err := decodeJSON(r, &patch); err != nil {
		writeFailure(w, http.StatusBadRequest, "invalid request body")
		return
	}
	stock, err := a.service.UpdateStock(r.Context(), pathRest(r, "/api/v1/stocks/"), patch)
	if err != nil {
		writeStoreError(w, err)
		return
	}
	writeSuccess(w, http.StatusOK, "stock updated", stock)
}

func (a *API) handleStockDelete(w http.ResponseWriter, r *http.Request) {
	if err := a.service.DeleteStock(r.Context(), pathRest(r, "/api/v1/stocks/")); err != nil {
		writeStoreError(w, err)
		return
	}
	writeSuccess(w, http.StatusOK, "stock deleted", nil)
}

// --- Accounts ---

func (a *API) handleAccountList(w http.ResponseWriter, r *http.Request) {
	accounts, err := a.service.ListAccounts(r.Context())
	if err != nil {
		writeStoreError(w, err)
		return
	}
	writeSuccess(w, http.StatusOK, "accounts fetched", accounts)
}

func (a *API) handleAccountCreate(w http.ResponseWriter, r *http.Request) {
	var req domain.AccountCreateRequest
	if err := decodeJSON(r, &req); err != nil {
		writeFailure(w, http.StatusBadRequest, "invalid request body")
		return
	}
	account, err := a.service.CreateAccount(r.Context(), req)
	if err != nil {
		writeStoreError(w, err)
		return
	}
	writeSuccess(w, http.StatusCreated, "account created", account)
}

func (a *API) handleAccountGet(w http.ResponseWriter, r *http.Request) {
	account, err := a.service.GetAccount(r.Context(), pathRest(r, "/api/v1/accounts/"))
	if err != nil {
		writeStoreError(w, err)
		return
	}
	writeSuccess(w, http.StatusOK, "account fetched", account)
}

func (a *API) handleAccountUpdate(w http.ResponseWriter, r *http.Request) {
	var patch domain.AccountPatch
	if err := decodeJSON(r, &patch); err != nil {
		writeFailure(w, http.StatusBadRequest, "invalid request body")
		return
	}
	account, err := a.service.UpdateAccount(r.Context(), pathRest(r, "/api/v1/accounts/"), patch)
	if err != nil {
		writeStoreError(w, err)
		return
	}
	writeSuccess(w, http.StatusOK, "account updated", account)
}

// --- Account transactions ---

func (a *API) handleTxList(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query()
	txs, meta, err := a.service.ListTransactions(r.Context(),
		query.Get("account_id"), queryInt(query.Get("page"), 1), queryInt(query.Get("limit"), 50))
	if err != nil {
		writeStoreError(w, err)
		return
	}
	writeSuccessMeta(w, http.StatusOK, "transactions fetched", txs, meta)
}

func (a *API) handleTxCreate(w http.ResponseWriter, r *http.Request) {
	var req domain.TransactionCreateRequest
	if err := decodeJSON(r, &req); err != nil {
		writeFailure(w, http.StatusBadRequest, "invalid request body")
		return
	}
	tx, err := a.service.CreateTransaction(r.Context(), req)
	if err != nil {
		writeStoreError(w, err)
		return
	}
	writeSuccess(w, http.StatusCreated, "transaction created", tx)
}

func (a *API) handleTxGet(w http.ResponseWriter, r *http.Request) {
	tx, err := a.service.GetTransaction(r.Context(), pathRest(r, "/api/v1/account-transactions/"))
	if err != nil {
		writeStoreError(w, err)
		return
	}
	writeSuccess(w, http.StatusOK, "transaction fetched", tx)
}

func (a *API) handleTxUpdate(w http.ResponseWriter, r *http.Request) {
	var patch domain.TransactionPatch
	if err := decodeJSON(r, &patch); err != nil {
		writeFailure(w, http.StatusBadRequest, "invalid request body")
		return
	}
	tx, err := a.service.UpdateTransaction(r.Context(), pathRest(r, "/api/v1/account-transactions/"), patch)
	if err != nil {
		writeStoreError(w, err)
		return
	}
	writeSuccess(w, http.StatusOK, "transaction updated", tx)
}

func (a *API) handleTxDelete(w http.ResponseWriter, r *http.Request) {
	if err := a.service.DeleteTransaction(r.Context(), pathRest(r, "/api/v1/account-transactions/")); err != nil {
		writeStoreError(w, err)
		return
	}
	writeSuccess(w, http.StatusOK, "transaction deleted", nil)
}

// --- Stock add requests ---

func (a *API) handleStockReqList(w http.ResponseWriter, r *http.Request) {
	reqs, err := a.service.ListStockAddRequests(r.Context(), r.URL.Query().Get("status"))
	if err != nil {
		writeStoreError(w, err)
		return
	}
	writeSuccess(w, http.StatusOK, "stock requests fetched", reqs)
}

func (a *API) handleStockReqCreate(w http.ResponseWriter, r *http.Request) {
	var req domain.StockAddRequestCreate
	if err := decodeJSON(r, &req); err != nil {
		writeFailure(w, http.StatusBadRequest, "invalid request body")
		return
	}
	created, err := a.service.CreateStockAddRequest(r.Context(), req)
	if err != nil {
		writeStoreError(w, err)
		return
	}
	writeSuccess(w, http.StatusCreated, "stock request created", created)
}

func (a *API) handleStockReqGet(w http.ResponseWriter, r *http.Request) {
	req, err := a.service.GetStockAddRequest(r.Context(), pathRest(r, "/api/v1/requests/add-stock/"))
	if err != nil {
		writeStoreError(w, err)
		return
	}
	writeSuccess(w, http.StatusOK, "stock request fetched", req)
}

func (a *API) handleStockReqDecide(w http.ResponseWriter, r *http.Request) {
	var req domain.DecisionRequest
	if err := decodeJSON(r, &req); err != nil {
		writeFailure(w, http.StatusBadRequest, "invalid request body")
		return
	}
	result, err := a.service.DecideStockAddRequest(r.Context(), pathRest(r, "/api/v1/requests/add-stock/"), req.Decision)
	if err != nil {
		writeStoreError(w, err)
		return
	}
	writeSuccess(w, http.StatusOK, "stock request "+result.Status, result)
}

// --- Sale requests ---

func (a *API) handleSaleReqList(w http.ResponseWriter, r *http.Request) {
	reqs, err := a.service.ListSaleRequests(r.Context(), r.URL.Query().Get("status"))
	if err != nil {
		writeStoreError(w, err)
		return
	}
	writeSuccess(w, http.StatusOK, "sale requests fetched", reqs)
}

func (a *API) handleSaleReqCreate(w http.ResponseWriter, r *http.Request) {
	var req domain.SaleRequestCreate
	if err := decodeJSON(r, &req); err != nil {
		writeFailure(w, http.StatusBadRequest, "invalid request body")
		return
	}
	created, err := a.service.CreateSaleRequest(r.Context(), req)
	if err != nil {
		writeStoreError(w, err)
		return
	}
	writeSuccess(w, http.StatusCreated, "sale request created", created)
}

func (a *API) handleSaleReqGet(w http.ResponseWriter, r *http.Request) {
	req, err := a.service.GetSaleRequest(r.Context(), pathRest(r, "/api/v1/requests/sell-stock/"))
	if err != nil {
		writeStoreError(w, err)
		return
	}
	writeSuccess(w, http.StatusOK, "sale request fetched", req)
}

func (a *API) handleSaleReqDecide(w http.ResponseWriter, r *http.Request) {
	var req domain.DecisionRequest
	if err := decodeJSON(r, &req); err != nil {
		writeFailure(w, http.StatusBadRequest, "invalid request body")
		return
	}
	result, err := a.service.DecideSaleRequest(r.Context(), pathRest(r, "/api/v1/requests/sell-stock/"), req.Decision)
	if err != nil {
		writeStoreError(w, err)
		return
	}
	writeSuccess(w, http.StatusOK, "sale request "+result.Status, result)
}

// --- Sales ---

func (a *API) handleSaleCreate(w http.ResponseWriter, r *http.Request) {
	var req domain.SaleCreateRequest
	if err := decodeJSON(r, &req); err != nil {
		writeFailure(w, http.StatusBadRequest, "invalid request body")
		return
	}
	sells, err := a.service.CreateSale(r.Context(), req)
	if err != nil {
		writeStoreError(w, err)
		return
	}
	writeSuccess(w, http.StatusCreated, "sale completed", sells)
}

func (a *API) handleSellList(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query()
	sells, meta, err := a.service.ListSells(r.Context(), queryInt(query.Get("page"), 1), queryInt(query.Get("limit"), 50))
	if err != nil {
		writeStoreError(w, err)
		return
	}
	writeSuccessMeta(w, http.StatusOK, "sells fetched", sells, meta)
}

func (a *API) handleSellGet(w http.ResponseWriter, r *http.Request) {
	sell, err := a.service.GetSell(r.Context(), pathRest(r, "/api/v1/sells/"))
	if err != nil {
		writeStoreError(w, err)
		return
	}
	writeSuccess(w, http.StatusOK, "sell fetched", sell)
}

func (a *API) handleSellUpdate(w http.ResponseWriter, r *http.Request) {
	var patch domain.SellPatch
	if err := decodeJSON(r, &patch); err != nil {
		writeFailure(w, http.StatusBadRequest, "invalid request body")
		return
	}
	sell, err := a.service.UpdateSell(r.Context(), pathRest(r, "/api/v1/sells/"), patch)
	if err != nil {
		writeStoreError(w, err)
		return
	}
	writeSuccess(w, http.StatusOK, "sell updated", sell)
}

func (a *API) handleSellDelete(w http.ResponseWriter, r *http.Request) {
	if err := a.service.DeleteSell(r.Context(), pathRest(r, "/api/v1/sells/")); err != nil {
		writeStoreError(w, err)
		return
	}
	writeSuccess(w, http.StatusOK, "sell deleted", nil)
}

func (a *API) handleRecordList(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query()
	records, meta, err := a.service.ListRecords(r.Context(),
		query.Get("type"), queryInt(query.Get("page"), 1), queryInt(query.Get("limit"), 50))
	if err != nil {
		writeStoreError(w, err)
		return
	}
	writeSuccessMeta(w, http.StatusOK, "records fetched", records, meta)
}

// --- Users ---

func (a *API) handleUserList(w http.ResponseWriter, r *http.Request) {
	users, err := a.auth.ListUsers(r.Context())
	if err != nil {
		writeStoreError(w, err)
		return
	}
	writeSuccess(w, http.StatusOK, "users fetched", users)
}

func (a *API) handleUserCreate(w http.ResponseWriter, r *http.Request) {
	var req domain.UserCreateRequest
	if err := decodeJSON(r, &req); err != nil {
		writeFailure(w, http.StatusBadRequest, "invalid request body")
		return
	}
	user, err := a.auth.CreateUser(r.Context(), req)
	if err != nil {
		writeStoreError(w, err)
		return
	}
	writeSuccess(w, http.StatusCreated, "user created", user)
}

func (a *API) handleUserUpdate(w http.ResponseWriter, r *http.Request) {
	var patch domain.UserPatch
	if err := decodeJSON(r, &patch); err != nil {
		writeFailure(w, http.StatusBadRequest, "invalid request body")
		return
	}
	user, err := a.auth.UpdateUser(r.Context(), pathRest(r, "/api/v1/users/"), patch)
	if err != nil {
		writeStoreError(w, err)
		return
	}
	writeSuccess(w, http.StatusOK, "user updated", user)
}

// --- Customers ---

func (a *API) handleCustomerList(w http.ResponseWriter, r *http.Request) {
	customers, err := a.service.ListCustomers(r.Context())
	if err != nil {
		writeStoreError(w, err)
		return
	}
	writeSuccess(w, http.StatusOK, "customers fetched", customers)
}

func (a *API) handleCustomerCreate(w http.ResponseWriter, r *http.Request) {
	var req domain.CustomerCreateRequest
	if err := decodeJSON(r, &req); err != nil {
		writeFailure(w, http.StatusBadRequest, "invalid request body")
		return
	}
	customer, err := a.service.CreateCustomer(r.Context(), req)
	if err != nil {
		writeStoreError(w, err)
		return
	}
	writeSuccess(w, http.StatusCreated, "customer created", customer)
}

func (a *API) handleCustomerGet(w http.ResponseWriter, r *http.Request) {
	customer, err := a.service.GetCustomer(r.Context(), pathRest(r, "/api/v1/customers/"))
	if err != nil {
		writeStoreError(w, err)
		return
	}
	writeSuccess(w, http.StatusOK, "customer fetched", customer)
}

// --- Middleware and helpers ---

func (a *API) withMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("X-Content-Type-Options", "nosniff")
		w.Header().Set("X-Frame-Options", "DENY")
		w.Header().Set("Referrer-Policy", "strict-origin-when-cross-origin")
		w.Header().Set("Cross-Origin-Opener-Policy", "same-origin")
		w.Header().Set("Access-Control-Allow-Origin", a.allowedOrigin)
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")
		w.Header().Set("Access-Control-Allow-Methods", "GET,POST,PATCH,DELETE,OPTIONS")
		w.Header().Set("Vary", "Origin")

		if r.Method == http.MethodPost || r.Method == http.MethodPatch || r.Method == http.MethodPut {
			r.Body = http.MaxBytesReader(w, r.Body, 1<<20)
		}

		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}

		startedAt := time.Now()
		next.ServeHTTP(w, r)
		log.Printf("%s %s %s", r.Method, r.URL.Path, time.Since(startedAt))
	})
}

func pathRest(r *http.Request, prefix string) string {
	return strings.Trim(strings.TrimPrefix(r.URL.Path, prefix), "/")
}

func decodeJSON(r *http.Request, dest any) error {
	decoder := json.NewDecoder(r.Body)
	decoder.DisallowUnknownFields()
	return decoder.Decode(dest)
}

func queryInt(raw string, fallback int) int {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return fallback
	}
	parsed, err := strconv.Atoi(trimmed)
	if err != nil || parsed < 1 {
		return fallback
	}
	return parsed
}

func writeMethodNotAllowed(w http.ResponseWriter) {
	writeFailure(w, http.StatusMethodNotAllowed, "method not allowed")
}

// writeStoreError maps the store's sentinel errors onto response statuses.
// Anything unrecognized is a 500 with the detail logged, never leaked.
func writeStoreError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, store.ErrNotFound):
		writeFailure(w, http.StatusNotFound, "not found")
	case errors.Is(err, store.ErrDuplicateKey):
		writeFailure(w, http.StatusBadRequest, "already exists")
	case errors.Is(err, store.ErrAlreadyProcessed):
		writeFailure(w, http.StatusConflict, "already processed")
	case errors.Is(err, store.ErrInsufficientStock):
		writeFailure(w, http.StatusBadRequest, "insufficient stock")
	case errors.Is(err, store.ErrInvalidInput):
		writeFailure(w, http.StatusBadRequest, "invalid input")
	default:
		log.Printf("internal error: %v", err)
		writeFailure(w, http.StatusInternalServerError, "something went wrong")
	}
}

type envelope struct {
	Success bool             `json:"success"`
	Message string           `json:"message"`
	Data    any              `json:"data,omitempty"`
	Meta    *domain.ListMeta `json:"meta,omitempty"`
}

func writeSuccess(w http.ResponseWriter, status int, message string, data any) {
	writeJSON(w, status, envelope{Success: true, Message: message, Data: data})
}

func writeSuccessMeta(w http.ResponseWriter, status int, message string, data any, meta domain.ListMeta) {
	writeJSON(w, status, envelope{Success: true, Message: message, Data: data, Meta: &meta})
}

func writeFailure(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, envelope{Success: false, Message: message})
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}
