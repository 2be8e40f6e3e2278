package server

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strings"

	"go.uber.org/zap"

	"ladybug/internal/shared"
)

type API struct {
	Store  Store
	Engine *Engine
	Auth   *Auth
	Log    *zap.Logger
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

func readBody(r *http.Request) ([]byte, error) {
	defer r.Body.Close()
	return io.ReadAll(io.LimitReader(r.Body, 1<<20))
}

// Routes builds the API mux. Static assets and metrics are mounted by the
// caller.
func (a *API) Routes() *http.ServeMux {
	mux := http.NewServeMux()

	mux.HandleFunc("POST /api/auth/register", a.HandleRegister)
	mux.HandleFunc("POST /api/auth/login", a.HandleLogin)
	mux.HandleFunc("GET /api/auth/me", a.RequireAuth(a.HandleMe))

	mux.HandleFunc("GET /api/servers/my-server", a.RequireAuth(a.HandleMyServer))
	mux.HandleFunc("POST /api/servers/request", a.RequireAuth(a.HandleRequestServer))
	mux.HandleFunc("POST /api/servers/release", a.RequireAuth(a.HandleReleaseServer))
	mux.HandleFunc("GET /api/servers/stats", a.RequireAuth(a.HandleStats))

	mux.HandleFunc("POST /api/admin/servers", a.RequireAdmin(a.HandleAddServer))
	mux.HandleFunc("GET /api/admin/servers", a.RequireAdmin(a.HandleListServers))
	mux.HandleFunc("DELETE /api/admin/servers/{id}", a.RequireAdmin(a.HandleDeleteServer))
	mux.HandleFunc("POST /api/admin/servers/{id}/release", a.RequireAdmin(a.HandleForceRelease))
	mux.HandleFunc("GET /api/admin/users", a.RequireAdmin(a.HandleListUsers))
	mux.HandleFunc("POST /api/admin/users/{id}/coins", a.RequireAdmin(a.HandleAddCoins))

	return mux
}

type authedHandler func(w http.ResponseWriter, r *http.Request, acct *Account)

// RequireAuth resolves the bearer token and hands the account to the handler.
func (a *API) RequireAuth(next authedHandler) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		token := bearerToken(r)
		acct, err := a.Auth.Authenticate(r.Context(), token)
		if err != nil {
			if errors.Is(err, ErrUnauthorized) {
				writeJSON(w, 401, map[string]any{"error": "invalid or expired token"})
				return
			}
			a.Log.Error("auth lookup failed", zap.Error(err))
			writeJSON(w, 500, map[string]any{"error": "internal error"})
			return
		}
		next(w, r, acct)
	}
}

func (a *API) RequireAdmin(next authedHandler) http.HandlerFunc {
	return a.RequireAuth(func(w http.ResponseWriter, r *http.Request, acct *Account) {
		if !acct.IsAdmin {
			writeJSON(w, 403, map[string]any{"error": "Access denied. Admin only."})
			return
		}
		next(w, r, acct)
	})
}

func bearerToken(r *http.Request) string {
	h := r.Header.Get("Authorization")
	if strings.HasPrefix(h, "Bearer ") {
		return strings.TrimPrefix(h, "Bearer ")
	}
	return ""
}

func userView(acct *Account) shared.UserView {
	return shared.UserView{
		ID:              acct.ID,
		Username:        acct.Username,
		Email:           acct.Email,
		Coins:           acct.Coins,
		HasActiveServer: acct.HasActiveServer,
		IsAdmin:         acct.IsAdmin,
		CreatedAt:       acct.CreatedAt,
	}
}

func (a *API) HandleRegister(w http.ResponseWriter, r *http.Request) {
	body, err := readBody(r)
	if err != nil {
		writeJSON(w, 400, map[string]any{"error": "bad body"})
		return
	}
	var req shared.RegisterRequest
	if err := json.Unmarshal(body, &req); err != nil {
		writeJSON(w, 400, map[string]any{"error": "bad json"})
		return
	}

	acct, token, err := a.Auth.Register(r.Context(), req.Username, req.Email, req.Password)
	if err != nil {
		switch {
		case errors.Is(err, ErrUsernameTaken):
			writeJSON(w, 400, map[string]any{"error": "Username already taken"})
		case errors.Is(err, ErrInvalidCredentials):
			writeJSON(w, 400, map[string]any{"error": "Username and password required"})
		default:
			a.Log.Error("register failed", zap.Error(err))
			writeJSON(w, 500, map[string]any{"error": "internal error"})
		}
		return
	}
	writeJSON(w, 201, shared.AuthResponse{Token: token, User: userView(acct)})
}

func (a *API) HandleLogin(w http.ResponseWriter, r *http.Request) {
	body, err := readBody(r)
	if err != nil {
		writeJSON(w, 400, map[string]any{"error": "bad body"})
		return
	}
	var req shared.LoginRequest
	if err := json.Unmarshal(body, &req); err != nil {
		writeJSON(w, 400, map[string]any{"error": "bad json"})
		return
	}

	acct, token, err := a.Auth.Login(r.Context(), req.Username, req.Password)
	if err != nil {
		if errors.Is(err, ErrInvalidCredentials) {
			writeJSON(w, 401, map[string]any{"error": "Invalid username or password"})
			return
		}
		a.Log.Error("login failed", zap.Error(err))
		writeJSON(w, 500, map[string]any{"error": "internal error"})
		return
	}
	writeJSON(w, 200, shared.AuthResponse{Token: token, User: userView(acct)})
}

func (a *API) HandleMe(w http.ResponseWriter, r *http.Request, acct *Account) {
	writeJSON(w, 200, userView(acct))
}

func (a *API) HandleMyServer(w http.ResponseWriter, r *http.Request, acct *Account) {
	srv, err := a.Engine.ServerFor(r.Context(), acct.ID)
	if err != nil {
		if errors.Is(err, ErrNoActiveServer) {
			writeJSON(w, 404, map[string]any{"error": "No active server"})
			return
		}
		a.Log.Error("my-server lookup failed", zap.Error(err))
		writeJSON(w, 500, map[string]any{"error": "internal error"})
		return
	}
	writeJSON(w, 200, shared.MyServerResponse{
		ServerName: srv.Name,
		AssignedAt: srv.AssignedAt,
	})
}

func (a *API) HandleRequestServer(w http.ResponseWriter, r *http.Request, acct *Account) {
	srv, err := a.Engine.Grant(r.Context(), acct.ID)
	if err != nil {
		switch {
		case errors.Is(err, ErrAlreadyAssigned):
			writeJSON(w, 400, map[string]any{"error": "You already have an active server"})
		case errors.Is(err, ErrInsufficientBalance):
			writeJSON(w, 400, map[string]any{"error": "Insufficient coins"})
		case errors.Is(err, ErrPoolExhausted):
			writeJSON(w, 404, map[string]any{"error": "No free servers available at the moment"})
		case errors.Is(err, ErrNotFound):
			writeJSON(w, 404, map[string]any{"error": "User not found"})
		default:
			a.Log.Error("grant failed", zap.String("account_id", acct.ID), zap.Error(err))
			writeJSON(w, 500, map[string]any{"error": "internal error"})
		}
		return
	}
	writeJSON(w, 200, map[string]any{
		"message": "Server assigned successfully",
		"server": shared.MyServerResponse{
			ServerName: srv.Name,
			AssignedAt: srv.AssignedAt,
		},
	})
}

func (a *API) HandleReleaseServer(w http.ResponseWriter, r *http.Request, acct *Account) {
	if err := a.Engine.Release(r.Context(), acct.ID); err != nil {
		if errors.Is(err, ErrNoActiveServer) {
			writeJSON(w, 404, map[string]any{"error": "No active server to release"})
			return
		}
		a.Log.Error("release failed", zap.String("account_id", acct.ID), zap.Error(err))
		writeJSON(w, 500, map[string]any{"error": "internal error"})
		return
	}
	writeJSON(w, 200, map[string]any{"message": "Server released successfully"})
}

func (a *API) HandleStats(w http.ResponseWriter, r *http.Request, acct *Account) {
	st, err := a.Engine.Stats(r.Context())
	if err != nil {
		a.Log.Error("stats failed", zap.Error(err))
		writeJSON(w, 500, map[string]any{"error": "internal error"})
		return
	}
	writeJSON(w, 200, st)
}
