package server

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"go.uber.org/zap"

	"ladybug/internal/shared"
)

func newTestAPI(t *testing.T) (*API, *MemStore) {
	t.Helper()
	store := NewMemStore()
	log := zap.NewNop()
	return &API{
		Store:  store,
		Engine: NewEngine(store, log, nil),
		Auth:   NewAuth(store, log, time.Hour, 10),
		Log:    log,
	}, store
}

func doRequest(t *testing.T, api *API, method, path, token string, body any) (*httptest.ResponseRecorder, map[string]any) {
	t.Helper()
	var rd *bytes.Reader
	if body != nil {
		b, _ := json.Marshal(body)
		rd = bytes.NewReader(b)
	} else {
		rd = bytes.NewReader(nil)
	}
	req := httptest.NewRequest(method, path, rd)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	api.Routes().ServeHTTP(rec, req)

	out := map[string]any{}
	_ = json.Unmarshal(rec.Body.Bytes(), &out)
	return rec, out
}

func registerUser(t *testing.T, api *API, username string) (token string) {
	t.Helper()
	rec, _ := doRequest(t, api, http.MethodPost, "/api/auth/register", "", shared.RegisterRequest{
		Username: username,
		Email:    username + "@example.com",
		Password: "hunter22",
	})
	if rec.Code != 201 {
		t.Fatalf("register %s: HTTP %d %s", username, rec.Code, rec.Body.String())
	}
	var resp shared.AuthResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil || resp.Token == "" {
		t.Fatalf("register %s: bad auth response %q", username, rec.Body.String())
	}
	return resp.Token
}

func adminToken(t *testing.T, api *API, store *MemStore) string {
	t.Helper()
	token := registerUser(t, api, "root")
	err := store.Update(func(tx Tx) error {
		acct, err := tx.AccountByUsername("root")
		if err != nil {
			return err
		}
		acct.IsAdmin = true
		return tx.SaveAccount(acct)
	})
	if err != nil {
		t.Fatalf("promote admin: %v", err)
	}
	return token
}

func TestRegisterLoginMe(t *testing.T) {
	api, _ := newTestAPI(t)
	registerUser(t, api, "alice")

	rec, _ := doRequest(t, api, http.MethodPost, "/api/auth/login", "", shared.LoginRequest{
		Username: "alice", Password: "hunter22",
	})
	if rec.Code != 200 {
		t.Fatalf("login: HTTP %d", rec.Code)
	}
	var resp shared.AuthResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("login response: %v", err)
	}

	rec, me := doRequest(t, api, http.MethodGet, "/api/auth/me", resp.Token, nil)
	if rec.Code != 200 || me["username"] != "alice" {
		t.Fatalf("me: HTTP %d body %v", rec.Code, me)
	}
	if me["coins"].(float64) != 10 {
		t.Fatalf("starting coins not applied: %v", me["coins"])
	}

	rec, _ = doRequest(t, api, http.MethodGet, "/api/auth/me", "", nil)
	if rec.Code != 401 {
		t.Fatalf("me without token should be 401, got %d", rec.Code)
	}
	rec, _ = doRequest(t, api, http.MethodPost, "/api/auth/login", "", shared.LoginRequest{
		Username: "alice", Password: "wrong",
	})
	if rec.Code != 401 {
		t.Fatalf("bad password should be 401, got %d", rec.Code)
	}
}

func TestDuplicateUsernameRejected(t *testing.T) {
	api, _ := newTestAPI(t)
	registerUser(t, api, "alice")

	rec, _ := doRequest(t, api, http.MethodPost, "/api/auth/register", "", shared.RegisterRequest{
		Username: "alice", Password: "other",
	})
	if rec.Code != 400 {
		t.Fatalf("duplicate username should be 400, got %d", rec.Code)
	}
}

func TestServerRequestReleaseFlow(t *testing.T) {
	api, store := newTestAPI(t)
	token := registerUser(t, api, "alice")
	seedServer(t, store, "s1", 100)

	rec, _ := doRequest(t, api, http.MethodGet, "/api/servers/my-server", token, nil)
	if rec.Code != 404 {
		t.Fatalf("my-server before grant should be 404, got %d", rec.Code)
	}

	rec, body := doRequest(t, api, http.MethodPost, "/api/servers/request", token, nil)
	if rec.Code != 200 {
		t.Fatalf("request: HTTP %d %v", rec.Code, body)
	}

	rec, body = doRequest(t, api, http.MethodPost, "/api/servers/request", token, nil)
	if rec.Code != 400 {
		t.Fatalf("second request should be 400 (already assigned), got %d %v", rec.Code, body)
	}

	rec, body = doRequest(t, api, http.MethodGet, "/api/servers/my-server", token, nil)
	if rec.Code != 200 || body["serverName"] != "srv-s1" {
		t.Fatalf("my-server: HTTP %d %v", rec.Code, body)
	}
	if _, leaked := body["hostUrl"]; leaked {
		t.Fatal("hosting credentials leaked to renter view")
	}

	rec, _ = doRequest(t, api, http.MethodPost, "/api/servers/release", token, nil)
	if rec.Code != 200 {
		t.Fatalf("release: HTTP %d", rec.Code)
	}
	rec, _ = doRequest(t, api, http.MethodPost, "/api/servers/release", token, nil)
	if rec.Code != 404 {
		t.Fatalf("second release should be 404, got %d", rec.Code)
	}
}

func TestRequestWithEmptyPool(t *testing.T) {
	api, _ := newTestAPI(t)
	token := registerUser(t, api, "alice")

	rec, body := doRequest(t, api, http.MethodPost, "/api/servers/request", token, nil)
	if rec.Code != 404 {
		t.Fatalf("empty pool should be 404, got %d %v", rec.Code, body)
	}
}

func TestAdminGate(t *testing.T) {
	api, store := newTestAPI(t)
	userTok := registerUser(t, api, "alice")

	rec, _ := doRequest(t, api, http.MethodGet, "/api/admin/users", userTok, nil)
	if rec.Code != 403 {
		t.Fatalf("non-admin should get 403, got %d", rec.Code)
	}

	adminTok := adminToken(t, api, store)
	rec, _ = doRequest(t, api, http.MethodGet, "/api/admin/users", adminTok, nil)
	if rec.Code != 200 {
		t.Fatalf("admin list users: HTTP %d", rec.Code)
	}
}

func TestAdminServerLifecycle(t *testing.T) {
	api, store := newTestAPI(t)
	adminTok := adminToken(t, api, store)
	userTok := registerUser(t, api, "alice")

	rec, body := doRequest(t, api, http.MethodPost, "/api/admin/servers", adminTok, shared.AddServerRequest{
		ServerName:   "node-1",
		HostURL:      "https://panel.example",
		HostUsername: "ops",
		HostPassword: "secret",
	})
	if rec.Code != 201 {
		t.Fatalf("add server: HTTP %d %v", rec.Code, body)
	}
	serverID := body["server"].(map[string]any)["id"].(string)

	rec, _ = doRequest(t, api, http.MethodPost, "/api/servers/request", userTok, nil)
	if rec.Code != 200 {
		t.Fatalf("request: HTTP %d", rec.Code)
	}

	// Admin view shows the owner and the credentials.
	rec, _ = doRequest(t, api, http.MethodGet, "/api/admin/servers", adminTok, nil)
	if rec.Code != 200 {
		t.Fatalf("list servers: HTTP %d", rec.Code)
	}
	var views []shared.AdminServerView
	if err := json.Unmarshal(rec.Body.Bytes(), &views); err != nil || len(views) != 1 {
		t.Fatalf("list servers body: %v (%d views)", err, len(views))
	}
	if views[0].Owner == nil || views[0].Owner.Username != "alice" {
		t.Fatalf("owner not populated: %+v", views[0])
	}
	if views[0].HostPassword != "secret" {
		t.Fatal("admin view should include hosting credentials")
	}

	rec, _ = doRequest(t, api, http.MethodPost, "/api/admin/servers/"+serverID+"/release", adminTok, nil)
	if rec.Code != 200 {
		t.Fatalf("force release: HTTP %d", rec.Code)
	}

	rec, _ = doRequest(t, api, http.MethodDelete, "/api/admin/servers/"+serverID, adminTok, nil)
	if rec.Code != 200 {
		t.Fatalf("delete: HTTP %d", rec.Code)
	}
	rec, _ = doRequest(t, api, http.MethodDelete, "/api/admin/servers/"+serverID, adminTok, nil)
	if rec.Code != 404 {
		t.Fatalf("second delete should be 404, got %d", rec.Code)
	}
}

func TestAdminAddCoins(t *testing.T) {
	api, store := newTestAPI(t)
	adminTok := adminToken(t, api, store)
	registerUser(t, api, "alice")

	var aliceID string
	_ = store.View(func(tx Tx) error {
		acct, err := tx.AccountByUsername("alice")
		if err == nil {
			aliceID = acct.ID
		}
		return err
	})

	rec, body := doRequest(t, api, http.MethodPost, "/api/admin/users/"+aliceID+"/coins", adminTok, shared.AddCoinsRequest{Amount: 25})
	if rec.Code != 200 {
		t.Fatalf("add coins: HTTP %d %v", rec.Code, body)
	}
	if body["coins"].(float64) != 35 { // 10 starting + 25
		t.Fatalf("unexpected balance: %v", body["coins"])
	}

	rec, _ = doRequest(t, api, http.MethodPost, "/api/admin/users/nope/coins", adminTok, shared.AddCoinsRequest{Amount: 1})
	if rec.Code != 404 {
		t.Fatalf("unknown user should be 404, got %d", rec.Code)
	}
}

func TestStatsEndpoint(t *testing.T) {
	api, store := newTestAPI(t)
	token := registerUser(t, api, "alice")
	seedServer(t, store, "s1", 100)
	seedServer(t, store, "s2", 200)

	rec, _ := doRequest(t, api, http.MethodPost, "/api/servers/request", token, nil)
	if rec.Code != 200 {
		t.Fatalf("request: HTTP %d", rec.Code)
	}

	rec, body := doRequest(t, api, http.MethodGet, "/api/servers/stats", token, nil)
	if rec.Code != 200 {
		t.Fatalf("stats: HTTP %d", rec.Code)
	}
	if body["totalServers"].(float64) != 2 || body["availableServers"].(float64) != 1 || body["activeServers"].(float64) != 1 {
		t.Fatalf("unexpected stats: %v", body)
	}
}
