package httpapi

import (
	"bytes"
	"encoding/json"
	"fmt"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"

	"pharmpos/internal/domain"
	"pharmpos/internal/invoice"
	"pharmpos/internal/metrics"
	"pharmpos/internal/repository"
	"pharmpos/internal/search"
	"pharmpos/internal/service"
)

func setupServer(t *testing.T) *Server {
	t.Helper()
	gin.SetMode(gin.TestMode)
	store := repository.NewMemoryStore()
	reg := prometheus.NewRegistry()
	m := metrics.New(reg)
	medicinesSvc := service.NewMedicineService(store, search.NewSearcher(0), m)
	billsSvc, err := service.NewBillService(store, repository.NewMemoryBills(), service.BillOptions{
		Policy:  service.DefaultStockPolicy(),
		Metrics: m,
	})
	if err != nil {
		t.Fatal(err)
	}
	return NewServer(medicinesSvc, billsSvc, Options{Pharmacy: invoice.Pharmacy{Name: "Test Pharmacy"}, Gatherer: reg})
}

func doJSON(t *testing.T, s *Server, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatal(err)
		}
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	s.Engine().ServeHTTP(w, req)
	return w
}

func decode[T any](t *testing.T, w *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	if err := json.Unmarshal(w.Body.Bytes(), &v); err != nil {
		t.Fatalf("decode %s: %v", w.Body.String(), err)
	}
	return v
}

func createMedicine(t *testing.T, s *Server, name string, boxes int) domain.Medicine {
	t.Helper()
	w := doJSON(t, s, http.MethodPost, "/api/v1/medicines", map[string]any{
		"name": name, "generic_name": "Generic " + name, "company_name": "Acme", "type": "Tablet",
		"units_per_box": 10,
		"pricing": map[string]any{
			"general": map[string]any{"selling_price": "50", "discount_percentage": "0"},
		},
		"expiry_date": "2027-06-30",
		"stock":       map[string]any{"boxes": boxes, "source": "boxes"},
	})
	if w.Code != http.StatusCreated {
		t.Fatalf("create medicine code %v: %s", w.Code, w.Body.String())
	}
	return decode[domain.Medicine](t, w)
}

func TestMedicineFlow(t *testing.T) {
	s := setupServer(t)
	m := createMedicine(t, s, "Aspirin", 10)
	if m.Quantity != 100 {
		t.Fatalf("expected 100 units, got %d", m.Quantity)
	}
	path := fmt.Sprintf("/api/v1/medicines/%d", m.ID)

	// get
	w := doJSON(t, s, http.MethodGet, path, nil)
	if w.Code != http.StatusOK {
		t.Fatalf("get code %v", w.Code)
	}
	// update without stock keeps quantity
	w = doJSON(t, s, http.MethodPut, path, map[string]any{
		"name": "Aspirin Forte", "type": "Tablet", "units_per_box": 10,
		"pricing": map[string]any{"general": map[string]any{"selling_price": "55"}},
	})
	if w.Code != http.StatusOK {
		t.Fatalf("update code %v: %s", w.Code, w.Body.String())
	}
	if got := decode[domain.Medicine](t, w); got.Quantity != 100 || got.Name != "Aspirin Forte" {
		t.Fatalf("unexpected update: %+v", got)
	}
	// invalid
	w = doJSON(t, s, http.MethodPost, "/api/v1/medicines", map[string]any{"name": "X"})
	if w.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %v", w.Code)
	}
	// list
	w = doJSON(t, s, http.MethodGet, "/api/v1/medicines?q=asp&in_stock=true", nil)
	if w.Code != http.StatusOK || len(decode[[]domain.Medicine](t, w)) != 1 {
		t.Fatalf("list code %v: %s", w.Code, w.Body.String())
	}
	// search
	w = doJSON(t, s, http.MethodGet, "/api/v1/medicines/search?q=asprn", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("search code %v", w.Code)
	}
	if res := decode[[]search.Result](t, w); len(res) != 1 || !res[0].Selectable {
		t.Fatalf("unexpected search result: %s", w.Body.String())
	}
	// delete
	w = doJSON(t, s, http.MethodDelete, path, nil)
	if w.Code != http.StatusNoContent {
		t.Fatalf("delete code %v", w.Code)
	}
	w = doJSON(t, s, http.MethodGet, path, nil)
	if w.Code != http.StatusNotFound {
		t.Fatalf("expected 404 after delete, got %v", w.Code)
	}
}

func TestReconcile(t *testing.T) {
	s := setupServer(t)
	w := doJSON(t, s, http.MethodPost, "/api/v1/stock/reconcile", map[string]any{
		"units": 35, "source": "units", "units_per_box": 10,
	})
	if w.Code != http.StatusOK {
		t.Fatalf("reconcile code %v: %s", w.Code, w.Body.String())
	}
	if !strings.Contains(w.Body.String(), `"boxes":3`) {
		t.Fatalf("expected 3 boxes, got %s", w.Body.String())
	}
	w = doJSON(t, s, http.MethodPost, "/api/v1/stock/reconcile", map[string]any{"units": 35, "source": "units"})
	if w.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for zero factor, got %v", w.Code)
	}
}

func TestBillFlow(t *testing.T) {
	s := setupServer(t)
	m := createMedicine(t, s, "Amoxicillin", 10)

	// add without selection
	w := doJSON(t, s, http.MethodPost, "/api/v1/bill/items", map[string]any{"unit_quantity": 5})
	if w.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 without selection, got %v", w.Code)
	}

	w = doJSON(t, s, http.MethodPut, "/api/v1/bill/customer", map[string]any{"name": "Jane", "phone": "0300", "tier": "general"})
	if w.Code != http.StatusOK {
		t.Fatalf("customer code %v", w.Code)
	}
	w = doJSON(t, s, http.MethodPost, "/api/v1/bill/select", map[string]any{"medicine_id": m.ID})
	if w.Code != http.StatusOK {
		t.Fatalf("select code %v", w.Code)
	}
	w = doJSON(t, s, http.MethodPost, "/api/v1/bill/items", map[string]any{"box_quantity": 2, "selling_price": "50", "discount_percentage": "10"})
	if w.Code != http.StatusCreated {
		t.Fatalf("add code %v: %s", w.Code, w.Body.String())
	}
	b := decode[domain.Bill](t, w)
	if len(b.Items) != 1 || b.GrandTotal.String() != "90" {
		t.Fatalf("unexpected bill: %s", w.Body.String())
	}
	itemPath := "/api/v1/bill/items/" + b.Items[0].ItemID

	// over-deduction
	doJSON(t, s, http.MethodPost, "/api/v1/bill/select", map[string]any{"medicine_id": m.ID})
	w = doJSON(t, s, http.MethodPost, "/api/v1/bill/items", map[string]any{"unit_quantity": 81})
	if w.Code != http.StatusBadRequest || !strings.Contains(w.Body.String(), "available 80 units, requested 81 units") {
		t.Fatalf("expected insufficient stock, got %v %s", w.Code, w.Body.String())
	}

	w = doJSON(t, s, http.MethodPatch, itemPath+"/quantity", map[string]any{"quantity": 3})
	if w.Code != http.StatusOK {
		t.Fatalf("quantity code %v: %s", w.Code, w.Body.String())
	}
	w = doJSON(t, s, http.MethodPatch, itemPath+"/discount", map[string]any{"discount_percentage": "0"})
	if w.Code != http.StatusOK {
		t.Fatalf("discount code %v", w.Code)
	}
	if got := decode[domain.Bill](t, w); got.GrandTotal.String() != "150" {
		t.Fatalf("expected 150, got %s", got.GrandTotal)
	}
	w = doJSON(t, s, http.MethodPatch, "/api/v1/bill/items/nope/discount", map[string]any{"discount_percentage": "5"})
	if w.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %v", w.Code)
	}

	// invoice of the active bill
	w = doJSON(t, s, http.MethodGet, "/api/v1/bill/invoice", nil)
	if w.Code != http.StatusOK || w.Header().Get("Content-Type") != "application/pdf" {
		t.Fatalf("invoice code %v %s", w.Code, w.Header().Get("Content-Type"))
	}

	// save
	w = doJSON(t, s, http.MethodPost, "/api/v1/bill/save", nil)
	if w.Code != http.StatusCreated {
		t.Fatalf("save code %v: %s", w.Code, w.Body.String())
	}
	sb := decode[domain.SavedBill](t, w)
	w = doJSON(t, s, http.MethodPost, "/api/v1/bill/save", nil)
	if w.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 saving empty bill, got %v", w.Code)
	}

	savedPath := fmt.Sprintf("/api/v1/saved-bills/%d", sb.ID)
	w = doJSON(t, s, http.MethodGet, "/api/v1/saved-bills", nil)
	if w.Code != http.StatusOK || len(decode[[]domain.SavedBill](t, w)) != 1 {
		t.Fatalf("list saved: %v %s", w.Code, w.Body.String())
	}
	w = doJSON(t, s, http.MethodGet, savedPath+"/invoice", nil)
	if w.Code != http.StatusOK || !bytes.HasPrefix(w.Body.Bytes(), []byte("%PDF")) {
		t.Fatalf("saved invoice code %v", w.Code)
	}
	w = doJSON(t, s, http.MethodPost, savedPath+"/load", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("load code %v", w.Code)
	}
	if got := decode[domain.Bill](t, w); got.SourceBillID != sb.ID || len(got.Items) != 1 {
		t.Fatalf("unexpected loaded bill: %s", w.Body.String())
	}
	w = doJSON(t, s, http.MethodPost, "/api/v1/bill/clear", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("clear code %v", w.Code)
	}

	// loaded lines are committed: stock stays at 70
	w = doJSON(t, s, http.MethodGet, fmt.Sprintf("/api/v1/medicines/%d", m.ID), nil)
	if got := decode[domain.Medicine](t, w); got.Quantity != 70 {
		t.Fatalf("expected 70, got %d", got.Quantity)
	}

	w = doJSON(t, s, http.MethodDelete, savedPath, nil)
	if w.Code != http.StatusNoContent {
		t.Fatalf("delete saved code %v", w.Code)
	}
	w = doJSON(t, s, http.MethodPost, savedPath+"/load", nil)
	if w.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %v", w.Code)
	}
}

func TestSelectOutOfStock(t *testing.T) {
	s := setupServer(t)
	m := createMedicine(t, s, "Amoxicillin", 1)
	doJSON(t, s, http.MethodPost, "/api/v1/bill/select", map[string]any{"medicine_id": m.ID})
	w := doJSON(t, s, http.MethodPost, "/api/v1/bill/items", map[string]any{"box_quantity": 1})
	if w.Code != http.StatusCreated {
		t.Fatalf("add code %v: %s", w.Code, w.Body.String())
	}
	w = doJSON(t, s, http.MethodPost, "/api/v1/bill/select", map[string]any{"medicine_id": m.ID})
	if w.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for out of stock, got %v", w.Code)
	}
	w = doJSON(t, s, http.MethodDelete, "/api/v1/bill/select", nil)
	if w.Code != http.StatusNoContent {
		t.Fatalf("clear selection code %v", w.Code)
	}
}

func TestImport(t *testing.T) {
	s := setupServer(t)
	csv := "Medicine Name,Units Per Box,Total Stock Units,Customer Selling Price\nPanadol,10,200,35\nBad,x,1,1\n"

	req := httptest.NewRequest(http.MethodPost, "/api/v1/import", strings.NewReader(csv))
	req.Header.Set("Content-Type", "text/csv")
	w := httptest.NewRecorder()
	s.Engine().ServeHTTP(w, req)
	if w.Code != http.StatusOK {
		t.Fatalf("import code %v: %s", w.Code, w.Body.String())
	}
	if !strings.Contains(w.Body.String(), `"imported":1`) {
		t.Fatalf("unexpected import result: %s", w.Body.String())
	}

	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	fw, _ := mw.CreateFormFile("file", "medicines.csv")
	fw.Write([]byte("name;price\nA;1\n"))
	mw.Close()
	req = httptest.NewRequest(http.MethodPost, "/api/v1/import", &body)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	w = httptest.NewRecorder()
	s.Engine().ServeHTTP(w, req)
	if w.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for missing columns, got %v", w.Code)
	}
}

func TestHealthAndMetrics(t *testing.T) {
	s := setupServer(t)
	w := doJSON(t, s, http.MethodGet, "/health", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("health code %v", w.Code)
	}
	doJSON(t, s, http.MethodGet, "/api/v1/medicines/search?q=a", nil)
	w = doJSON(t, s, http.MethodGet, "/metrics", nil)
	if w.Code != http.StatusOK || !strings.Contains(w.Body.String(), "pharmpos_catalog_searches_total 1") {
		t.Fatalf("metrics: %v %s", w.Code, w.Body.String())
	}
}
