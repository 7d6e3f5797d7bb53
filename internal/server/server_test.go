package server

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"carmarket/internal/app"
	"carmarket/internal/store"
	"carmarket/pkg/domain"
)

func newTestServer(t *testing.T) *Server {
	t.Helper()
	catalog, err := app.New(app.Config{Store: store.NewMemoryStore()})
	if err != nil {
		t.Fatalf("new app: %v", err)
	}
	srv, err := New(Config{App: catalog})
	if err != nil {
		t.Fatalf("new server: %v", err)
	}
	return srv
}

func doJSON(t *testing.T, srv *Server, method, target, body string) *httptest.ResponseRecorder {
	t.Helper()
	var reader *bytes.Reader
	if body == "" {
		reader = bytes.NewReader(nil)
	} else {
		reader = bytes.NewReader([]byte(body))
	}
	req := httptest.NewRequest(method, target, reader)
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	rec := httptest.NewRecorder()
	srv.Router().ServeHTTP(rec, req)
	return rec
}

func decodeBody[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var out T
	if err := json.NewDecoder(rec.Body).Decode(&out); err != nil {
		t.Fatalf("decode response: %v (body %q)", err, rec.Body.String())
	}
	return out
}

func createTestListing(t *testing.T, srv *Server) domain.Listing {
	t.Helper()
	rec := doJSON(t, srv, http.MethodPost, "/listings",
		`{"make":"Toyota","model":"Corolla","year":2020,"price":15000,"mileage":42000}`)
	if rec.Code != http.StatusCreated {
		t.Fatalf("create listing: status %d body %s", rec.Code, rec.Body.String())
	}
	return decodeBody[domain.Listing](t, rec)
}

func TestHealthEndpoint(t *testing.T) {
	srv := newTestServer(t)
	rec := doJSON(t, srv, http.MethodGet, "/healthz", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("health status = %d", rec.Code)
	}
	if ct := rec.Header().Get("Content-Type"); ct != "application/json" {
		t.Fatalf("content type = %q", ct)
	}
}

func TestCreateListing(t *testing.T) {
	srv := newTestServer(t)
	listing := createTestListing(t, srv)
	if listing.ID == "" {
		t.Fatal("expected assigned id in response")
	}
	if listing.Status != domain.StatusActive {
		t.Fatalf("status = %q, want active", listing.Status)
	}
	if listing.Mileage == nil || *listing.Mileage != 42000 {
		t.Fatalf("mileage = %v, want 42000", listing.Mileage)
	}
}

func TestCreateListingValidation(t *testing.T) {
	srv := newTestServer(t)
	rec := doJSON(t, srv, http.MethodPost, "/listings",
		`{"make":"","model":"Corolla","year":1850,"price":-1}`)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", rec.Code)
	}
	resp := decodeBody[errorResponse](t, rec)
	if resp.Error != "validation_failed" {
		t.Fatalf("error kind = %q", resp.Error)
	}
	got := make(map[string]bool)
	for _, f := range resp.Fields {
		got[f.Field] = true
	}
	for _, want := range []string{"make", "year", "price"} {
		if !got[want] {
			t.Fatalf("expected field error for %q, got %+v", want, resp.Fields)
		}
	}
}

func TestCreateListingRejectsUnknownField(t *testing.T) {
	srv := newTestServer(t)
	rec := doJSON(t, srv, http.MethodPost, "/listings",
		`{"make":"Toyota","model":"Corolla","year":2020,"price":15000,"color":"red"}`)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", rec.Code)
	}
	resp := decodeBody[errorResponse](t, rec)
	if resp.Error != "validation_failed" {
		t.Fatalf("error kind = %q", resp.Error)
	}
}

func TestCreateListingMalformedJSON(t *testing.T) {
	srv := newTestServer(t)
	rec := doJSON(t, srv, http.MethodPost, "/listings", `{"make":`)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", rec.Code)
	}
}

func TestGetListing(t *testing.T) {
	srv := newTestServer(t)
	created := createTestListing(t, srv)

	rec := doJSON(t, srv, http.MethodGet, "/listings/"+created.ID, "")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d body %s", rec.Code, rec.Body.String())
	}
	got := decodeBody[domain.Listing](t, rec)
	if got.ID != created.ID || got.Make != "Toyota" {
		t.Fatalf("round trip mismatch: %+v", got)
	}
}

func TestGetListingNotFound(t *testing.T) {
	srv := newTestServer(t)
	rec := doJSON(t, srv, http.MethodGet, "/listings/no-such-id", "")
	if rec.Code != http.StatusNotFound {
		t.Fatalf("status = %d, want 404", rec.Code)
	}
	resp := decodeBody[errorResponse](t, rec)
	if resp.Error != "not_found" {
		t.Fatalf("error kind = %q", resp.Error)
	}
}

func TestUpdateListing(t *testing.T) {
	srv := newTestServer(t)
	created := createTestListing(t, srv)

	rec := doJSON(t, srv, http.MethodPatch, "/listings/"+created.ID, `{"price":9000}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d body %s", rec.Code, rec.Body.String())
	}
	got := decodeBody[domain.Listing](t, rec)
	if got.Price != 9000 {
		t.Fatalf("price = %v, want 9000", got.Price)
	}
	if got.Make != "Toyota" || got.Model != "Corolla" {
		t.Fatalf("partial update touched other fields: %+v", got)
	}
}

func TestUpdateListingEmptyBody(t *testing.T) {
	srv := newTestServer(t)
	created := createTestListing(t, srv)

	rec := doJSON(t, srv, http.MethodPatch, "/listings/"+created.ID, `{}`)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", rec.Code)
	}
}

func TestUpdateListingNotFound(t *testing.T) {
	srv := newTestServer(t)
	rec := doJSON(t, srv, http.MethodPatch, "/listings/no-such-id", `{"price":9000}`)
	if rec.Code != http.StatusNotFound {
		t.Fatalf("status = %d, want 404", rec.Code)
	}
}

func TestDeleteListing(t *testing.T) {
	srv := newTestServer(t)
	created := createTestListing(t, srv)

	rec := doJSON(t, srv, http.MethodDelete, "/listings/"+created.ID, "")
	if rec.Code != http.StatusNoContent {
		t.Fatalf("delete status = %d", rec.Code)
	}

	rec = doJSON(t, srv, http.MethodDelete, "/listings/"+created.ID, "")
	if rec.Code != http.StatusNotFound {
		t.Fatalf("second delete status = %d, want 404", rec.Code)
	}

	rec = doJSON(t, srv, http.MethodGet, "/listings/"+created.ID, "")
	if rec.Code != http.StatusNotFound {
		t.Fatalf("deleted listing still readable: %d", rec.Code)
	}
}

func TestMarkSoldEndpoint(t *testing.T) {
	srv := newTestServer(t)
	created := createTestListing(t, srv)

	rec := doJSON(t, srv, http.MethodPost, "/listings/"+created.ID+"/sold", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d body %s", rec.Code, rec.Body.String())
	}
	got := decodeBody[domain.Listing](t, rec)
	if got.Status != domain.StatusSold {
		t.Fatalf("status = %q, want sold", got.Status)
	}

	rec = doJSON(t, srv, http.MethodPost, "/listings/"+created.ID+"/sold", "")
	if rec.Code != http.StatusConflict {
		t.Fatalf("second sold status = %d, want 409", rec.Code)
	}
	resp := decodeBody[errorResponse](t, rec)
	if resp.Error != "conflict" {
		t.Fatalf("error kind = %q", resp.Error)
	}
}

func TestSearchEndpoint(t *testing.T) {
	srv := newTestServer(t)
	createTestListing(t, srv)
	rec := doJSON(t, srv, http.MethodPost, "/listings",
		`{"make":"Honda","model":"Civic","year":2019,"price":18000}`)
	if rec.Code != http.StatusCreated {
		t.Fatalf("create: status %d", rec.Code)
	}

	rec = doJSON(t, srv, http.MethodGet, "/listings?make=Toyota", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("search status = %d body %s", rec.Code, rec.Body.String())
	}
	resp := decodeBody[searchResponse](t, rec)
	if resp.Count != 1 || resp.Total != 1 || len(resp.Items) != 1 {
		t.Fatalf("make filter: count=%d total=%d items=%d", resp.Count, resp.Total, len(resp.Items))
	}
	if resp.Items[0].Make != "Toyota" {
		t.Fatalf("wrong item: %+v", resp.Items[0])
	}

	rec = doJSON(t, srv, http.MethodGet, "/listings?min_price=16000&sort_by=price&sort_dir=asc", "")
	resp = decodeBody[searchResponse](t, rec)
	if resp.Total != 1 || resp.Items[0].Make != "Honda" {
		t.Fatalf("min_price filter: %+v", resp.Items)
	}
}

func TestSearchRejectsMalformedFilter(t *testing.T) {
	srv := newTestServer(t)
	rec := doJSON(t, srv, http.MethodGet, "/listings?min_price=cheap", "")
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", rec.Code)
	}
	resp := decodeBody[errorResponse](t, rec)
	if len(resp.Fields) == 0 || resp.Fields[0].Field != "min_price" {
		t.Fatalf("expected min_price field error, got %+v", resp.Fields)
	}
}

func TestSearchRejectsUnknownParameter(t *testing.T) {
	srv := newTestServer(t)
	rec := doJSON(t, srv, http.MethodGet, "/listings?colour=red", "")
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", rec.Code)
	}
	resp := decodeBody[errorResponse](t, rec)
	if len(resp.Fields) != 1 || resp.Fields[0].Field != "colour" {
		t.Fatalf("expected colour field error, got %+v", resp.Fields)
	}
}

func TestMethodNotAllowed(t *testing.T) {
	srv := newTestServer(t)
	created := createTestListing(t, srv)

	rec := doJSON(t, srv, http.MethodPut, "/listings", "")
	if rec.Code != http.StatusMethodNotAllowed {
		t.Fatalf("PUT /listings status = %d, want 405", rec.Code)
	}
	rec = doJSON(t, srv, http.MethodPut, "/listings/"+created.ID, "")
	if rec.Code != http.StatusMethodNotAllowed {
		t.Fatalf("PUT /listings/{id} status = %d, want 405", rec.Code)
	}
	resp := decodeBody[errorResponse](t, rec)
	if resp.Error != "method_not_allowed" {
		t.Fatalf("error kind = %q", resp.Error)
	}
}

func TestUnknownSubresource(t *testing.T) {
	srv := newTestServer(t)
	created := createTestListing(t, srv)

	rec := doJSON(t, srv, http.MethodPost, "/listings/"+created.ID+"/archive", "")
	if rec.Code != http.StatusNotFound {
		t.Fatalf("status = %d, want 404", rec.Code)
	}
}

func TestResponseHeaders(t *testing.T) {
	srv := newTestServer(t)
	rec := doJSON(t, srv, http.MethodGet, "/listings", "")
	if rec.Header().Get("X-Request-Id") == "" {
		t.Fatal("expected X-Request-Id header")
	}
	if rec.Header().Get("X-Content-Type-Options") != "nosniff" {
		t.Fatal("expected security headers on responses")
	}
}

func TestCreateListingTrimsWhitespace(t *testing.T) {
	srv := newTestServer(t)
	rec := doJSON(t, srv, http.MethodPost, "/listings",
		`{"make":"  Toyota  ","model":" Corolla ","year":2020,"price":15000}`)
	if rec.Code != http.StatusCreated {
		t.Fatalf("status = %d body %s", rec.Code, rec.Body.String())
	}
	got := decodeBody[domain.Listing](t, rec)
	if got.Make != "Toyota" || got.Model != "Corolla" {
		t.Fatalf("expected trimmed fields, got %q %q", got.Make, got.Model)
	}
}

func TestErrorBodyOmitsFieldsWhenEmpty(t *testing.T) {
	srv := newTestServer(t)
	rec := doJSON(t, srv, http.MethodGet, "/listings/no-such-id", "")
	if strings.Contains(rec.Body.String(), "fields") {
		t.Fatalf("not_found body should omit fields: %s", rec.Body.String())
	}
}
