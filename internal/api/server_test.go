package api

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"nations/internal/auth"
	"nations/internal/catalog"
	"nations/internal/game"
	"nations/internal/ledger"
)

const testToken = "service-token"

func newTestServer(t *testing.T) *httptest.Server {
	t.Helper()
	store, err := ledger.OpenMemStore(context.Background(), nil, ledger.Options{})
	if err != nil {
		t.Fatalf("OpenMemStore: %v", err)
	}
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	svc := game.NewService(store, catalog.Default(), logger, game.Options{})
	srv := httptest.NewServer(New(logger, auth.NewTokenVerifier(testToken), svc).Handler())
	t.Cleanup(srv.Close)
	return srv
}

type identity struct {
	owner string
	caps  string
}

func do(t *testing.T, srv *httptest.Server, who identity, method, path string, body any) (int, map[string]any) {
	t.Helper()
	var reader io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("marshal: %v", err)
		}
		reader = bytes.NewReader(raw)
	}
	req, err := http.NewRequest(method, srv.URL+path, reader)
	if err != nil {
		t.Fatalf("new request: %v", err)
	}
	req.Header.Set("Authorization", "Bearer "+testToken)
	req.Header.Set(auth.OwnerHeader, who.owner)
	req.Header.Set(auth.CapabilitiesHeader, who.caps)
	resp, err := srv.Client().Do(req)
	if err != nil {
		t.Fatalf("%s %s: %v", method, path, err)
	}
	defer resp.Body.Close()
	out := map[string]any{}
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		t.Fatalf("decode %s %s: %v", method, path, err)
	}
	return resp.StatusCode, out
}

var (
	atlantis = identity{owner: "100", caps: "create"}
	sparta   = identity{owner: "200", caps: "create"}
	operator = identity{owner: "1", caps: "admin"}
)

func TestHealthzNeedsNoToken(t *testing.T) {
	srv := newTestServer(t)
	resp, err := http.Get(srv.URL + "/healthz")
	if err != nil {
		t.Fatalf("healthz: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d", resp.StatusCode)
	}
}

func TestRejectsBadServiceToken(t *testing.T) {
	srv := newTestServer(t)
	for _, header := range []string{"", "Bearer wrong", "Basic " + testToken} {
		req, _ := http.NewRequest(http.MethodGet, srv.URL+"/v1/shop", nil)
		if header != "" {
			req.Header.Set("Authorization", header)
		}
		resp, err := srv.Client().Do(req)
		if err != nil {
			t.Fatalf("request: %v", err)
		}
		resp.Body.Close()
		if resp.StatusCode != http.StatusUnauthorized {
			t.Fatalf("header %q: status = %d, want 401", header, resp.StatusCode)
		}
	}
}

func TestCountryLifecycle(t *testing.T) {
	srv := newTestServer(t)

	status, body := do(t, srv, atlantis, http.MethodPost, "/v1/countries", map[string]any{"name": "Atlantis"})
	if status != http.StatusCreated || body["wallet"] != float64(1000) {
		t.Fatalf("create: %d %v", status, body)
	}
	status, body = do(t, srv, atlantis, http.MethodPost, "/v1/countries", map[string]any{"name": "Again"})
	if status != http.StatusConflict || body["kind"] != "AlreadyExists" {
		t.Fatalf("duplicate create: %d %v", status, body)
	}

	status, body = do(t, srv, atlantis, http.MethodPost, "/v1/purchases", map[string]any{"item": "farm"})
	if status != http.StatusCreated {
		t.Fatalf("buy: %d %v", status, body)
	}
	country := body["country"].(map[string]any)
	if country["wallet"] != float64(500) || country["income"] != float64(150) {
		t.Fatalf("after buy: %v", country)
	}

	if status, body = do(t, srv, sparta, http.MethodPost, "/v1/countries", map[string]any{"name": "Sparta"}); status != http.StatusCreated {
		t.Fatalf("create sparta: %d %v", status, body)
	}
	status, body = do(t, srv, atlantis, http.MethodPost, "/v1/transfers", map[string]any{"to": "200", "amount": 300})
	if status != http.StatusOK {
		t.Fatalf("transfer: %d %v", status, body)
	}
	if body["sender"].(map[string]any)["wallet"] != float64(200) || body["receiver"].(map[string]any)["wallet"] != float64(1300) {
		t.Fatalf("transfer result: %v", body)
	}

	status, body = do(t, srv, atlantis, http.MethodGet, "/v1/countries/200", nil)
	if status != http.StatusOK || body["name"] != "Sparta" {
		t.Fatalf("balance: %d %v", status, body)
	}

	status, body = do(t, srv, atlantis, http.MethodGet, "/v1/leaderboard?n=1", nil)
	rows := body["rows"].([]any)
	if status != http.StatusOK || len(rows) != 1 || rows[0].(map[string]any)["owner_id"] != "200" {
		t.Fatalf("leaderboard: %d %v", status, body)
	}
}

func TestErrorMapping(t *testing.T) {
	srv := newTestServer(t)
	do(t, srv, atlantis, http.MethodPost, "/v1/countries", map[string]any{"name": "Atlantis"})

	tests := []struct {
		name   string
		who    identity
		method string
		path   string
		body   any
		status int
		kind   string
	}{
		{"missing country", atlantis, http.MethodGet, "/v1/countries/999", nil, http.StatusNotFound, "NotFound"},
		{"create without role", identity{owner: "5"}, http.MethodPost, "/v1/countries", map[string]any{"name": "X"}, http.StatusForbidden, "Unauthorized"},
		{"unknown item", atlantis, http.MethodPost, "/v1/purchases", map[string]any{"item": "castle"}, http.StatusBadRequest, "InvalidArgument"},
		{"too expensive", atlantis, http.MethodPost, "/v1/purchases", map[string]any{"item": "nuke"}, http.StatusBadRequest, "InsufficientFunds"},
		{"transfer to nobody", atlantis, http.MethodPost, "/v1/transfers", map[string]any{"to": "999", "amount": 1}, http.StatusNotFound, "NotFound"},
		{"non-admin list", atlantis, http.MethodGet, "/v1/countries", nil, http.StatusForbidden, "Unauthorized"},
		{"non-admin delete", atlantis, http.MethodDelete, "/v1/countries/100", nil, http.StatusForbidden, "Unauthorized"},
		{"bad field", operator, http.MethodPatch, "/v1/countries/100", map[string]any{"field": "name", "value": 1}, http.StatusBadRequest, "InvalidArgument"},
		{"remove too much", operator, http.MethodPost, "/v1/countries/100/balance", map[string]any{"op": "remove", "amount": 5000}, http.StatusBadRequest, "InsufficientFunds"},
	}
	for _, tc := range tests {
		status, body := do(t, srv, tc.who, tc.method, tc.path, tc.body)
		if status != tc.status || body["kind"] != tc.kind {
			t.Fatalf("%s: got %d %v, want %d %s", tc.name, status, body, tc.status, tc.kind)
		}
	}
}

func TestBadRequestBodies(t *testing.T) {
	srv := newTestServer(t)
	tests := []struct {
		name   string
		method string
		path   string
		body   any
	}{
		{"unknown field", http.MethodPost, "/v1/countries", map[string]any{"name": "A", "extra": 1}},
		{"missing value", http.MethodPatch, "/v1/countries/100", map[string]any{"field": "wallet"}},
		{"bad op", http.MethodPost, "/v1/countries/100/balance", map[string]any{"op": "double", "amount": 1}},
		{"bad n", http.MethodGet, "/v1/leaderboard?n=ten", nil},
	}
	for _, tc := range tests {
		if status, body := do(t, srv, operator, tc.method, tc.path, tc.body); status != http.StatusBadRequest {
			t.Fatalf("%s: got %d %v, want 400", tc.name, status, body)
		}
	}
}

func TestAdminOperations(t *testing.T) {
	srv := newTestServer(t)
	do(t, srv, atlantis, http.MethodPost, "/v1/countries", map[string]any{"name": "Atlantis"})

	status, body := do(t, srv, operator, http.MethodPatch, "/v1/countries/100", map[string]any{"field": "income", "value": 0})
	if status != http.StatusOK || body["income"] != float64(0) {
		t.Fatalf("set income: %d %v", status, body)
	}
	status, body = do(t, srv, operator, http.MethodPost, "/v1/countries/100/balance", map[string]any{"op": "add", "amount": 25})
	if status != http.StatusOK || body["wallet"] != float64(1025) {
		t.Fatalf("add balance: %d %v", status, body)
	}
	status, body = do(t, srv, operator, http.MethodGet, "/v1/countries", nil)
	if status != http.StatusOK || len(body["countries"].([]any)) != 1 {
		t.Fatalf("list: %d %v", status, body)
	}
	if status, body = do(t, srv, operator, http.MethodDelete, "/v1/countries/100", nil); status != http.StatusOK {
		t.Fatalf("delete: %d %v", status, body)
	}
	if status, _ = do(t, srv, operator, http.MethodGet, "/v1/countries/100", nil); status != http.StatusNotFound {
		t.Fatalf("after delete status = %d", status)
	}
}

func TestShop(t *testing.T) {
	srv := newTestServer(t)
	status, body := do(t, srv, identity{}, http.MethodGet, "/v1/shop", nil)
	if status != http.StatusOK || len(body["items"].([]any)) != catalog.Default().Len() {
		t.Fatalf("shop: %d %v", status, body)
	}
}
