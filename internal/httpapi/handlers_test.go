package httpapi

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"hatid/backend/internal/cache"
	"hatid/backend/internal/domain"
	"hatid/backend/internal/service"
	"hatid/backend/internal/store/memory"
)

// newTestAPI builds a full API with an in-memory store, real AuthManager and
// real Service so handler tests exercise the complete request path.
func newTestAPI(t *testing.T) *API {
	t.Helper()

	repo := memory.NewSeeded()
	svc := service.New(repo, cache.NoopNameCache{}, time.Minute)
	auth := NewAuthManager("test-secret-key", time.Hour, repo)

	return New(svc, auth, "*")
}

// doJSON performs a request against the full handler chain. Token and csrf
// headers are set only when non-empty.
func doJSON(t *testing.T, api *API, method, path, token, csrf string, payload any) *httptest.ResponseRecorder {
	t.Helper()

	var req *http.Request
	if payload != nil {
		body, err := json.Marshal(payload)
		if err != nil {
			t.Fatalf("marshal payload: %v", err)
		}
		req = httptest.NewRequest(method, path, bytes.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	} else {
		req = httptest.NewRequest(method, path, nil)
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	if csrf != "" {
		req.Header.Set("X-CSRF-Token", csrf)
	}

	rec := httptest.NewRecorder()
	api.Handler().ServeHTTP(rec, req)
	return rec
}

func TestHandleHealth(t *testing.T) {
	api := newTestAPI(t)

	rec := doJSON(t, api, http.MethodGet, "/healthz", "", "", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}

	var body map[string]any
	if err := json.NewDecoder(rec.Body).Decode(&body); err != nil {
		t.Fatalf("decode body: %v", err)
	}
	if body["ok"] != true {
		t.Fatalf("expected ok:true, got %v", body["ok"])
	}
}

func TestHandleLogin_Success(t *testing.T) {
	api := newTestAPI(t)

	rec := doJSON(t, api, http.MethodPost, "/api/v1/auth/login", "", "", domain.LoginRequest{
		Username: "admin",
		Password: "admin123",
	})
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d (body: %s)", rec.Code, rec.Body.String())
	}

	var resp domain.LoginResponse
	if err := json.NewDecoder(rec.Body).Decode(&resp); err != nil {
		t.Fatalf("decode login response: %v", err)
	}
	if resp.AccessToken == "" || resp.Role != "admin" {
		t.Fatalf("expected admin token, got %+v", resp)
	}
}

func TestHandleLogin_InvalidCredentials(t *testing.T) {
	api := newTestAPI(t)

	rec := doJSON(t, api, http.MethodPost, "/api/v1/auth/login", "", "", domain.LoginRequest{
		Username: "admin",
		Password: "wrongpassword",
	})
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d (body: %s)", rec.Code, rec.Body.String())
	}
}

func TestHandleStores_RequiresAuth(t *testing.T) {
	api := newTestAPI(t)

	rec := doJSON(t, api, http.MethodGet, "/api/v1/stores", "", "", nil)
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 without token, got %d", rec.Code)
	}

	rec = doJSON(t, api, http.MethodGet, "/api/v1/stores", "not-a-real-token", "", nil)
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 with bad token, got %d", rec.Code)
	}
}

func TestStoreLifecycleOverHTTP(t *testing.T) {
	api := newTestAPI(t)
	adminToken := loginAs(t, api, "admin", "admin123")
	staffToken := loginAs(t, api, "staff", "staff123")
	csrf := fetchCSRFToken(t, api)

	rec := doJSON(t, api, http.MethodPost, "/api/v1/stores", staffToken, csrf, domain.StoreCreateRequest{
		Name: "acme trading",
		Products: []domain.Product{
			{Size: "1kg", Price: decimal.NewFromInt(100)},
		},
	})
	if rec.Code != http.StatusCreated {
		t.Fatalf("create store: expected 201, got %d (body: %s)", rec.Code, rec.Body.String())
	}
	var createBody struct {
		Store domain.Store `json:"store"`
	}
	if err := json.NewDecoder(rec.Body).Decode(&createBody); err != nil {
		t.Fatalf("decode create response: %v", err)
	}
	storeID := createBody.Store.ID
	if storeID == "" || createBody.Store.Name != "ACME TRADING" {
		t.Fatalf("unexpected created store %+v", createBody.Store)
	}

	rec = doJSON(t, api, http.MethodPost, "/api/v1/stores", staffToken, csrf, domain.StoreCreateRequest{Name: "ACME TRADING"})
	if rec.Code != http.StatusConflict {
		t.Fatalf("duplicate store: expected 409, got %d", rec.Code)
	}

	rec = doJSON(t, api, http.MethodGet, "/api/v1/stores?name_starts_with=ACME", staffToken, "", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("list stores: expected 200, got %d", rec.Code)
	}
	var listBody domain.StoreListResponse
	if err := json.NewDecoder(rec.Body).Decode(&listBody); err != nil {
		t.Fatalf("decode list response: %v", err)
	}
	if len(listBody.Records) != 1 || listBody.PageCount != 1 {
		t.Fatalf("expected single matching store, got %+v", listBody)
	}

	newName := "acme trading co"
	rec = doJSON(t, api, http.MethodPatch, "/api/v1/stores/"+storeID, staffToken, csrf, domain.StoreUpdateRequest{Name: &newName})
	if rec.Code != http.StatusOK {
		t.Fatalf("rename store: expected 200, got %d (body: %s)", rec.Code, rec.Body.String())
	}

	// Destructive actions are admin-only.
	rec = doJSON(t, api, http.MethodDelete, "/api/v1/stores/"+storeID, staffToken, csrf, nil)
	if rec.Code != http.StatusForbidden {
		t.Fatalf("staff delete: expected 403, got %d", rec.Code)
	}
	rec = doJSON(t, api, http.MethodDelete, "/api/v1/stores/"+storeID, adminToken, csrf, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("admin delete: expected 200, got %d (body: %s)", rec.Code, rec.Body.String())
	}
	rec = doJSON(t, api, http.MethodGet, "/api/v1/stores/"+storeID, adminToken, "", nil)
	if rec.Code != http.StatusNotFound {
		t.Fatalf("get deleted store: expected 404, got %d", rec.Code)
	}
}

func TestDeliveryPaymentFlowOverHTTP(t *testing.T) {
	api := newTestAPI(t)
	token := loginAs(t, api, "admin", "admin123")
	csrf := fetchCSRFToken(t, api)

	rec := doJSON(t, api, http.MethodPost, "/api/v1/stores", token, csrf, domain.StoreCreateRequest{
		Name: "vendor",
		Products: []domain.Product{
			{Size: "1kg", Price: decimal.NewFromInt(100)},
		},
	})
	if rec.Code != http.StatusCreated {
		t.Fatalf("create store: expected 201, got %d", rec.Code)
	}
	var storeBody struct {
		Store domain.Store `json:"store"`
	}
	if err := json.NewDecoder(rec.Body).Decode(&storeBody); err != nil {
		t.Fatalf("decode store: %v", err)
	}

	rec = doJSON(t, api, http.MethodPost, "/api/v1/deliveries", token, csrf, domain.DeliveryCreateRequest{
		StoreID:        storeBody.Store.ID,
		DeliveryNumber: "DLV-HTTP-1",
		PostingDate:    "2024-05-10",
		Orders:         []domain.OrderLine{{Size: "1kg", Qty: 5}},
	})
	if rec.Code != http.StatusCreated {
		t.Fatalf("create delivery: expected 201, got %d (body: %s)", rec.Code, rec.Body.String())
	}
	var deliveryBody struct {
		Delivery domain.Delivery `json:"delivery"`
	}
	if err := json.NewDecoder(rec.Body).Decode(&deliveryBody); err != nil {
		t.Fatalf("decode delivery: %v", err)
	}
	if !deliveryBody.Delivery.Amount.Equal(decimal.NewFromInt(500)) {
		t.Fatalf("expected amount 500, got %s", deliveryBody.Delivery.Amount)
	}

	rec = doJSON(t, api, http.MethodGet, "/api/v1/deliveries?store_id="+storeBody.Store.ID, token, "", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("list unpaid deliveries: expected 200, got %d", rec.Code)
	}
	var unpaidBody domain.DeliveryListResponse
	if err := json.NewDecoder(rec.Body).Decode(&unpaidBody); err != nil {
		t.Fatalf("decode unpaid deliveries: %v", err)
	}
	if len(unpaidBody.Records) != 1 {
		t.Fatalf("expected 1 unpaid delivery, got %d", len(unpaidBody.Records))
	}

	rec = doJSON(t, api, http.MethodPost, "/api/v1/payments", token, csrf, domain.PaymentCreateRequest{
		StoreID:       storeBody.Store.ID,
		ModeOfPayment: domain.PaymentModeCash,
		RefNo:         "R-HTTP-1",
		RefDate:       "2024-05-10",
		Amount:        decimal.NewFromInt(500),
		DeliveryIDs:   []string{deliveryBody.Delivery.ID},
	})
	if rec.Code != http.StatusCreated {
		t.Fatalf("create payment: expected 201, got %d (body: %s)", rec.Code, rec.Body.String())
	}
	var paymentBody struct {
		Payment domain.Payment `json:"payment"`
	}
	if err := json.NewDecoder(rec.Body).Decode(&paymentBody); err != nil {
		t.Fatalf("decode payment: %v", err)
	}

	rec = doJSON(t, api, http.MethodGet, "/api/v1/deliveries?payment_id="+paymentBody.Payment.ID, token, "", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("list by payment: expected 200, got %d", rec.Code)
	}
	var attachedBody domain.DeliveryListResponse
	if err := json.NewDecoder(rec.Body).Decode(&attachedBody); err != nil {
		t.Fatalf("decode attached deliveries: %v", err)
	}
	if len(attachedBody.Records) != 1 || attachedBody.Records[0].PaymentID != paymentBody.Payment.ID {
		t.Fatalf("expected delivery attached to payment, got %+v", attachedBody.Records)
	}

	rec = doJSON(t, api, http.MethodPost, "/api/v1/deliveries/"+deliveryBody.Delivery.ID+"/detach", token, csrf, struct{}{})
	if rec.Code != http.StatusOK {
		t.Fatalf("detach: expected 200, got %d (body: %s)", rec.Code, rec.Body.String())
	}

	rec = doJSON(t, api, http.MethodPost, "/api/v1/deliveries/"+deliveryBody.Delivery.ID+"/attach", token, csrf, map[string]string{
		"payment_id": paymentBody.Payment.ID,
	})
	if rec.Code != http.StatusOK {
		t.Fatalf("attach: expected 200, got %d (body: %s)", rec.Code, rec.Body.String())
	}
	var reattachedBody struct {
		Delivery domain.Delivery `json:"delivery"`
	}
	if err := json.NewDecoder(rec.Body).Decode(&reattachedBody); err != nil {
		t.Fatalf("decode reattached delivery: %v", err)
	}
	if reattachedBody.Delivery.PaymentID != paymentBody.Payment.ID {
		t.Fatalf("expected payment id %s, got %q", paymentBody.Payment.ID, reattachedBody.Delivery.PaymentID)
	}
}

func TestBillFindRoute(t *testing.T) {
	api := newTestAPI(t)
	token := loginAs(t, api, "admin", "admin123")
	csrf := fetchCSRFToken(t, api)

	rec := doJSON(t, api, http.MethodPost, "/api/v1/accounts", token, csrf, map[string]string{"account_name": "utilities"})
	if rec.Code != http.StatusCreated {
		t.Fatalf("create account: expected 201, got %d", rec.Code)
	}
	var accountBody struct {
		Account domain.Account `json:"account"`
	}
	if err := json.NewDecoder(rec.Body).Decode(&accountBody); err != nil {
		t.Fatalf("decode account: %v", err)
	}

	rec = doJSON(t, api, http.MethodPost, "/api/v1/bills", token, csrf, domain.BillCreateRequest{
		Vendor:       "Power Co",
		Date:         "2024-05-10",
		InvoiceRefNo: "INV-HTTP-1",
		Amount:       decimal.NewFromInt(500),
		Expenses: []domain.ExpenseLine{
			{Date: "2024-05-10", AccountID: accountBody.Account.ID, Amount: decimal.NewFromInt(500)},
		},
	})
	if rec.Code != http.StatusCreated {
		t.Fatalf("create bill: expected 201, got %d (body: %s)", rec.Code, rec.Body.String())
	}

	rec = doJSON(t, api, http.MethodGet, "/api/v1/bills/find?ref_no=INV-HTTP-1", token, "", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("find bill: expected 200, got %d (body: %s)", rec.Code, rec.Body.String())
	}
	var billBody struct {
		Bill domain.Bill `json:"bill"`
	}
	if err := json.NewDecoder(rec.Body).Decode(&billBody); err != nil {
		t.Fatalf("decode bill: %v", err)
	}
	if len(billBody.Bill.Expenses) != 1 || billBody.Bill.Expenses[0].AccountName != "utilities" {
		t.Fatalf("expected joined expense with account name, got %+v", billBody.Bill.Expenses)
	}

	rec = doJSON(t, api, http.MethodGet, fmt.Sprintf("/api/v1/bills/find?ref_no=INV-HTTP-1&bill_id=%s", billBody.Bill.ID), token, "", nil)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("find bill with both selectors: expected 400, got %d", rec.Code)
	}
}

func TestFindBillsWithoutDateRangeReturns400(t *testing.T) {
	api := newTestAPI(t)
	token := loginAs(t, api, "admin", "admin123")

	rec := doJSON(t, api, http.MethodGet, "/api/v1/bills?vendor=Power", token, "", nil)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 without date range, got %d", rec.Code)
	}
}

func TestUnknownJSONFieldRejected(t *testing.T) {
	api := newTestAPI(t)
	token := loginAs(t, api, "admin", "admin123")
	csrf := fetchCSRFToken(t, api)

	rec := doJSON(t, api, http.MethodPost, "/api/v1/stores", token, csrf, map[string]any{
		"name":          "STRICT",
		"no_such_field": true,
	})
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for unknown field, got %d", rec.Code)
	}
}
