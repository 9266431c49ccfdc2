package httpapi

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"krishantraders/backend/internal/cache"
	"krishantraders/backend/internal/domain"
	"krishantraders/backend/internal/service"
	"krishantraders/backend/internal/store/memory"
)

// newTestAPI builds the full API over the seeded in-memory store so handler
// tests exercise the complete request path, auth included.
func newTestAPI(t *testing.T) *API {
	t.Helper()

	repo := memory.NewSeeded()
	svc := service.New(repo, cache.NoopStockSummaryCache{}, 5*time.Second)
	auth := NewAuthManager("test-secret-key", time.Hour, repo)
	return New(svc, auth, "*")
}

type testEnvelope struct {
	Success bool            `json:"success"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data"`
	Meta    *domain.ListMeta `json:"meta"`
}

func doJSON(t *testing.T, api *API, method, path, token string, payload any) (*httptest.ResponseRecorder, testEnvelope) {
	t.Helper()

	var body *bytes.Reader
	if payload != nil {
		raw, err := json.Marshal(payload)
		if err != nil {
			t.Fatalf("marshal payload: %v", err)
		}
		body = bytes.NewReader(raw)
	} else {
		body = bytes.NewReader(nil)
	}

	req := httptest.NewRequest(method, path, body)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	api.Handler().ServeHTTP(rec, req)

	var env testEnvelope
	if rec.Body.Len() > 0 {
		if err := json.NewDecoder(rec.Body).Decode(&env); err != nil {
			t.Fatalf("decode envelope: %v (body %s)", err, rec.Body.String())
		}
	}
	return rec, env
}

func login(t *testing.T, api *API, email, password string) string {
	t.Helper()

	rec, env := doJSON(t, api, http.MethodPost, "/api/v1/auth/login", "", domain.LoginRequest{
		Email:    email,
		Password: password,
	})
	if rec.Code != http.StatusOK {
		t.Fatalf("login failed: %d %s", rec.Code, rec.Body.String())
	}

	var resp domain.LoginResponse
	if err := json.Unmarshal(env.Data, &resp); err != nil {
		t.Fatalf("decode login response: %v", err)
	}
	if resp.AccessToken == "" {
		t.Fatalf("expected access token in login response")
	}
	return resp.AccessToken
}

func TestHandleHealth(t *testing.T) {
	api := newTestAPI(t)

	rec, env := doJSON(t, api, http.MethodGet, "/healthz", "", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	if !env.Success {
		t.Fatalf("expected success envelope, got %s", rec.Body.String())
	}
}

func TestLoginRejectsWrongCredentials(t *testing.T) {
	api := newTestAPI(t)

	rec, env := doJSON(t, api, http.MethodPost, "/api/v1/auth/login", "", domain.LoginRequest{
		Email:    "admin@krishantraders.com",
		Password: "wrong-pass",
	})
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", rec.Code)
	}
	if env.Success {
		t.Fatalf("expected failure envelope")
	}
}

func TestLoginRateLimitReturns429(t *testing.T) {
	api := newTestAPI(t)
	raw, _ := json.Marshal(domain.LoginRequest{Email: "admin@krishantraders.com", Password: "wrong-pass"})

	for i := 0; i < 6; i++ {
		req := httptest.NewRequest(http.MethodPost, "/api/v1/auth/login", bytes.NewReader(raw))
		req.Header.Set("Content-Type", "application/json")
		req.RemoteAddr = "127.0.0.1:5000"
		rec := httptest.NewRecorder()

		api.Handler().ServeHTTP(rec, req)

		if i < 5 && rec.Code != http.StatusUnauthorized {
			t.Fatalf("attempt %d expected 401 before limit, got %d", i+1, rec.Code)
		}
		if i == 5 && rec.Code != http.StatusTooManyRequests {
			t.Fatalf("attempt 6 expected 429, got %d", rec.Code)
		}
	}
}

func TestProtectedRoutesRequireBearerToken(t *testing.T) {
	api := newTestAPI(t)

	rec, _ := doJSON(t, api, http.MethodGet, "/api/v1/stocks", "", nil)
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 without token, got %d", rec.Code)
	}

	rec, _ = doJSON(t, api, http.MethodGet, "/api/v1/stocks", "not-a-real-token", nil)
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 with garbage token, got %d", rec.Code)
	}
}

func TestStaffForbiddenFromAdminOperations(t *testing.T) {
	api := newTestAPI(t)
	staffToken := login(t, api, "staff@krishantraders.com", "staff123")

	rec, _ := doJSON(t, api, http.MethodPost, "/api/v1/sell", staffToken, domain.SaleCreateRequest{
		Lines:     []domain.SaleLine{{StockID: "stk-urea-1kg-a", Quantity: 1}},
		SoldTo:    domain.SoldTo{Kind: domain.SoldToWalkIn, Name: "Walk-in"},
		AccountID: "acc-cash",
	})
	if rec.Code != http.StatusForbidden {
		t.Fatalf("expected 403 for staff direct sale, got %d", rec.Code)
	}

	rec, _ = doJSON(t, api, http.MethodPost, "/api/v1/companies", staffToken, map[string]string{"name": "Rogue Co"})
	if rec.Code != http.StatusForbidden {
		t.Fatalf("expected 403 for staff company create, got %d", rec.Code)
	}

	rec, _ = doJSON(t, api, http.MethodGet, "/api/v1/users", staffToken, nil)
	if rec.Code != http.StatusForbidden {
		t.Fatalf("expected 403 for staff user list, got %d", rec.Code)
	}
}

func TestSaleRequestFlowOverHTTP(t *testing.T) {
	api := newTestAPI(t)
	adminToken := login(t, api, "admin@krishantraders.com", "admin123")
	staffToken := login(t, api, "staff@krishantraders.com", "staff123")

	rec, env := doJSON(t, api, http.MethodPost, "/api/v1/requests/sell-stock", staffToken, domain.SaleRequestCreate{
		Lines:     []domain.SaleLine{{StockID: "stk-urea-1kg-a", Quantity: 5}},
		SoldTo:    domain.SoldTo{Kind: domain.SoldToWalkIn, Name: "Hari"},
		AccountID: "acc-cash",
	})
	if rec.Code != http.StatusCreated {
		t.Fatalf("create sale request failed: %d %s", rec.Code, rec.Body.String())
	}

	var created domain.SaleRequest
	if err := json.Unmarshal(env.Data, &created); err != nil {
		t.Fatalf("decode sale request: %v", err)
	}
	if created.RequestedBy != "user-staff" {
		t.Fatalf("expected requested_by user-staff, got %s", created.RequestedBy)
	}

	// Staff cannot decide their own request.
	rec, _ = doJSON(t, api, http.MethodPatch, "/api/v1/requests/sell-stock/"+created.ID, staffToken,
		domain.DecisionRequest{Decision: domain.RequestStatusAccepted})
	if rec.Code != http.StatusForbidden {
		t.Fatalf("expected 403 for staff decision, got %d", rec.Code)
	}

	rec, env = doJSON(t, api, http.MethodPatch, "/api/v1/requests/sell-stock/"+created.ID, adminToken,
		domain.DecisionRequest{Decision: domain.RequestStatusAccepted})
	if rec.Code != http.StatusOK {
		t.Fatalf("accept failed: %d %s", rec.Code, rec.Body.String())
	}

	var result struct {
		Status string        `json:"status"`
		Sells  []domain.Sell `json:"sells"`
	}
	if err := json.Unmarshal(env.Data, &result); err != nil {
		t.Fatalf("decode decision result: %v", err)
	}
	if len(result.Sells) != 1 || result.Sells[0].Quantity != 5 {
		t.Fatalf("expected 1 sell of quantity 5, got %+v", result.Sells)
	}

	// Decisions are terminal.
	rec, _ = doJSON(t, api, http.MethodPatch, "/api/v1/requests/sell-stock/"+created.ID, adminToken,
		domain.DecisionRequest{Decision: domain.RequestStatusAccepted})
	if rec.Code != http.StatusConflict {
		t.Fatalf("expected 409 on re-accept, got %d", rec.Code)
	}

	rec, env = doJSON(t, api, http.MethodGet, "/api/v1/stocks/stk-urea-1kg-a", adminToken, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("get stock failed: %d", rec.Code)
	}
	var stock domain.Stock
	if err := json.Unmarshal(env.Data, &stock); err != nil {
		t.Fatalf("decode stock: %v", err)
	}
	if stock.Quantity != 35 {
		t.Fatalf("expected remaining quantity 35, got %d", stock.Quantity)
	}

	rec, env = doJSON(t, api, http.MethodGet, "/api/v1/accounts/acc-cash", adminToken, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("get account failed: %d", rec.Code)
	}
	var account domain.Account
	if err := json.Unmarshal(env.Data, &account); err != nil {
		t.Fatalf("decode account: %v", err)
	}
	if account.CurrentBalanceCents != 5*6000 {
		t.Fatalf("expected balance %d, got %d", 5*6000, account.CurrentBalanceCents)
	}
}

func TestDirectSaleOversellReturns400(t *testing.T) {
	api := newTestAPI(t)
	adminToken := login(t, api, "admin@krishantraders.com", "admin123")

	rec, env := doJSON(t, api, http.MethodPost, "/api/v1/sell", adminToken, domain.SaleCreateRequest{
		Lines:     []domain.SaleLine{{StockID: "stk-pesto-500ml-a", Quantity: 999}},
		SoldTo:    domain.SoldTo{Kind: domain.SoldToWalkIn, Name: "Walk-in"},
		AccountID: "acc-cash",
	})
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for oversell, got %d", rec.Code)
	}
	if env.Message != "insufficient stock" {
		t.Fatalf("expected insufficient stock message, got %q", env.Message)
	}
}

func TestStockAddRequestFlowOverHTTP(t *testing.T) {
	api := newTestAPI(t)
	adminToken := login(t, api, "admin@krishantraders.com", "admin123")
	staffToken := login(t, api, "staff@krishantraders.com", "staff123")

	rec, env := doJSON(t, api, http.MethodPost, "/api/v1/requests/add-stock", staffToken, domain.StockAddRequestCreate{
		SizeID:            "size-urea-50kg",
		Quantity:          8,
		BatchNo:           "B-2501",
		BuyingPriceCents:  195000,
		SellingPriceCents: 240000,
	})
	if rec.Code != http.StatusCreated {
		t.Fatalf("create stock request failed: %d %s", rec.Code, rec.Body.String())
	}
	var created domain.StockAddRequest
	if err := json.Unmarshal(env.Data, &created); err != nil {
		t.Fatalf("decode stock request: %v", err)
	}

	rec, env = doJSON(t, api, http.MethodPatch, "/api/v1/requests/add-stock/"+created.ID, adminToken,
		domain.DecisionRequest{Decision: domain.RequestStatusAccepted})
	if rec.Code != http.StatusOK {
		t.Fatalf("accept stock request failed: %d %s", rec.Code, rec.Body.String())
	}
	var result struct {
		Status string        `json:"status"`
		Stock  *domain.Stock `json:"stock"`
	}
	if err := json.Unmarshal(env.Data, &result); err != nil {
		t.Fatalf("decode decision result: %v", err)
	}
	if result.Stock == nil || result.Stock.Quantity != 8 {
		t.Fatalf("expected accepted lot of quantity 8, got %+v", result.Stock)
	}
	if result.Stock.Status != domain.StockStatusAvailable {
		t.Fatalf("expected lot to become available, got %s", result.Stock.Status)
	}
}

func TestCompanyStockSummaryEndpoint(t *testing.T) {
	api := newTestAPI(t)
	staffToken := login(t, api, "staff@krishantraders.com", "staff123")

	rec, env := doJSON(t, api, http.MethodGet, "/api/v1/companies/comp-greengro/stock-summary", staffToken, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("summary failed: %d %s", rec.Code, rec.Body.String())
	}
	var groups []domain.CompanyStockGroup
	if err := json.Unmarshal(env.Data, &groups); err != nil {
		t.Fatalf("decode groups: %v", err)
	}
	if len(groups) == 0 {
		t.Fatalf("expected at least one summary group")
	}
}

func TestListSellsReturnsPaginationMeta(t *testing.T) {
	api := newTestAPI(t)
	adminToken := login(t, api, "admin@krishantraders.com", "admin123")

	rec, _ := doJSON(t, api, http.MethodPost, "/api/v1/sell", adminToken, domain.SaleCreateRequest{
		Lines:     []domain.SaleLine{{StockID: "stk-urea-1kg-a", Quantity: 2}},
		SoldTo:    domain.SoldTo{Kind: domain.SoldToWalkIn, Name: "Walk-in"},
		AccountID: "acc-cash",
	})
	if rec.Code != http.StatusCreated {
		t.Fatalf("sale failed: %d %s", rec.Code, rec.Body.String())
	}

	rec, env := doJSON(t, api, http.MethodGet, "/api/v1/sells?page=1&limit=10", adminToken, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("list sells failed: %d", rec.Code)
	}
	if env.Meta == nil || env.Meta.TotalData != 1 {
		t.Fatalf("expected meta with 1 sell, got %+v", env.Meta)
	}
}

func TestDecodeRejectsUnknownFields(t *testing.T) {
	api := newTestAPI(t)
	adminToken := login(t, api, "admin@krishantraders.com", "admin123")

	rec, _ := doJSON(t, api, http.MethodPost, "/api/v1/companies", adminToken, map[string]any{
		"name":       "New Co",
		"unexpected": true,
	})
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for unknown field, got %d", rec.Code)
	}
}

func TestMethodNotAllowed(t *testing.T) {
	api := newTestAPI(t)
	adminToken := login(t, api, "admin@krishantraders.com", "admin123")

	rec, _ := doJSON(t, api, http.MethodDelete, "/api/v1/sell", adminToken, nil)
	if rec.Code != http.StatusMethodNotAllowed {
		t.Fatalf("expected 405, got %d", rec.Code)
	}
}
