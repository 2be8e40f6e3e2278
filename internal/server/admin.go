package server

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"go.uber.org/zap"

	"ladybug/internal/shared"
)

func (a *API) HandleAddServer(w http.ResponseWriter, r *http.Request, acct *Account) {
	body, err := readBody(r)
	if err != nil {
		writeJSON(w, 400, map[string]any{"error": "bad body"})
		return
	}
	var req shared.AddServerRequest
	if err := json.Unmarshal(body, &req); err != nil {
		writeJSON(w, 400, map[string]any{"error": "bad json"})
		return
	}
	if strings.TrimSpace(req.ServerName) == "" || strings.TrimSpace(req.HostURL) == "" {
		writeJSON(w, 400, map[string]any{"error": "serverName and hostUrl required"})
		return
	}

	srv, err := a.Engine.AddServer(r.Context(), req.ServerName, req.HostURL, req.HostUsername, req.HostPassword)
	if err != nil {
		a.Log.Error("add server failed", zap.Error(err))
		writeJSON(w, 500, map[string]any{"error": "internal error"})
		return
	}
	writeJSON(w, 201, map[string]any{
		"message": "Server added successfully",
		"server":  map[string]any{"id": srv.ID, "serverName": srv.Name, "status": srv.Status},
	})
}

func (a *API) HandleListServers(w http.ResponseWriter, r *http.Request, acct *Account) {
	var views []shared.AdminServerView
	err := a.Store.View(func(tx Tx) error {
		servers, err := tx.Servers()
		if err != nil {
			return err
		}
		for _, s := range servers {
			v := shared.AdminServerView{
				ID:           s.ID,
				ServerName:   s.Name,
				HostURL:      s.HostURL,
				HostUsername: s.HostUsername,
				HostPassword: s.HostPassword,
				Status:       s.Status,
				AssignedAt:   s.AssignedAt,
				CreatedAt:    s.CreatedAt,
			}
			if s.OwnerID != "" {
				owner, err := tx.Account(s.OwnerID)
				if err == nil {
					v.Owner = &shared.OwnerSummary{
						ID:       owner.ID,
						Username: owner.Username,
						Email:    owner.Email,
						Coins:    owner.Coins,
					}
				} else if !errors.Is(err, ErrNotFound) {
					return err
				}
			}
			views = append(views, v)
		}
		return nil
	})
	if err != nil {
		a.Log.Error("list servers failed", zap.Error(err))
		writeJSON(w, 500, map[string]any{"error": "internal error"})
		return
	}
	if views == nil {
		views = []shared.AdminServerView{}
	}
	writeJSON(w, 200, views)
}

func (a *API) HandleDeleteServer(w http.ResponseWriter, r *http.Request, acct *Account) {
	id := r.PathValue("id")
	if err := a.Engine.RemoveServer(r.Context(), id); err != nil {
		if errors.Is(err, ErrNotFound) {
			writeJSON(w, 404, map[string]any{"error": "Server not found"})
			return
		}
		a.Log.Error("delete server failed", zap.String("server_id", id), zap.Error(err))
		writeJSON(w, 500, map[string]any{"error": "internal error"})
		return
	}
	writeJSON(w, 200, map[string]any{"message": "Server deleted successfully"})
}

func (a *API) HandleForceRelease(w http.ResponseWriter, r *http.Request, acct *Account) {
	id := r.PathValue("id")
	if err := a.Engine.ForceRelease(r.Context(), id); err != nil {
		if errors.Is(err, ErrNotFound) {
			writeJSON(w, 404, map[string]any{"error": "Server not found"})
			return
		}
		a.Log.Error("force release failed", zap.String("server_id", id), zap.Error(err))
		writeJSON(w, 500, map[string]any{"error": "internal error"})
		return
	}
	writeJSON(w, 200, map[string]any{"message": "Server released successfully"})
}

func (a *API) HandleListUsers(w http.ResponseWriter, r *http.Request, acct *Account) {
	var views []shared.UserView
	err := a.Store.View(func(tx Tx) error {
		accounts, err := tx.Accounts()
		if err != nil {
			return err
		}
		for _, u := range accounts {
			views = append(views, userView(u))
		}
		return nil
	})
	if err != nil {
		a.Log.Error("list users failed", zap.Error(err))
		writeJSON(w, 500, map[string]any{"error": "internal error"})
		return
	}
	if views == nil {
		views = []shared.UserView{}
	}
	writeJSON(w, 200, views)
}

func (a *API) HandleAddCoins(w http.ResponseWriter, r *http.Request, acct *Account) {
	id := r.PathValue("id")
	body, err := readBody(r)
	if err != nil {
		writeJSON(w, 400, map[string]any{"error": "bad body"})
		return
	}
	var req shared.AddCoinsRequest
	if err := json.Unmarshal(body, &req); err != nil {
		writeJSON(w, 400, map[string]any{"error": "bad json"})
		return
	}

	balance, err := a.Engine.AdjustBalance(r.Context(), id, req.Amount)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			writeJSON(w, 404, map[string]any{"error": "User not found"})
			return
		}
		a.Log.Error("add coins failed", zap.String("account_id", id), zap.Error(err))
		writeJSON(w, 500, map[string]any{"error": "internal error"})
		return
	}
	writeJSON(w, 200, map[string]any{"message": "Coins updated successfully", "coins": balance})
}
