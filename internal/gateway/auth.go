// ABOUTME: Login handlers and the admin Bearer middleware
// ABOUTME: Admin creds come from config; dashboard creds are scrypt hashes in the store

package gateway

import (
	"crypto/subtle"
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/relaymark/teable-gateway/internal/auth"
	"github.com/relaymark/teable-gateway/internal/store"
)

const adminTokenTTL = 24 * time.Hour

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

// handleAdminLogin checks the configured admin credentials and issues a JWT
func (g *Gateway) handleAdminLogin(w http.ResponseWriter, r *http.Request) {
	if g.verifier == nil {
		writeError(w, http.StatusServiceUnavailable, "Admin auth is not configured")
		return
	}

	var req loginRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid JSON body")
		return
	}

	emailOK := subtle.ConstantTimeCompare([]byte(req.Email), []byte(g.config.Auth.AdminEmail)) == 1
	passOK := subtle.ConstantTimeCompare([]byte(req.Password), []byte(g.config.Auth.AdminPassword)) == 1
	if g.config.Auth.AdminEmail == "" || !emailOK || !passOK {
		writeError(w, http.StatusUnauthorized, "Invalid credentials")
		return
	}

	token, err := g.verifier.Issue(req.Email, adminTokenTTL)
	if err != nil {
		g.logger.Error("generating admin token", "error", err)
		writeError(w, http.StatusInternalServerError, "Failed to generate token")
		return
	}

	writeJSON(w, http.StatusOK, map[string]string{"token": token})
}

// requireAdmin guards a handler behind a Bearer JWT issued by handleAdminLogin
func (g *Gateway) requireAdmin(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if g.verifier == nil {
			writeError(w, http.StatusServiceUnavailable, "Admin auth is not configured")
			return
		}

		header := r.Header.Get("Authorization")
		token, ok := strings.CutPrefix(header, "Bearer ")
		if !ok || token == "" {
			writeError(w, http.StatusUnauthorized, "Missing bearer token")
			return
		}

		if _, err := g.verifier.Verify(token); err != nil {
			writeError(w, http.StatusUnauthorized, "Invalid token")
			return
		}

		next.ServeHTTP(w, r)
	})
}

func (g *Gateway) handleAdminListCustomers(w http.ResponseWriter, r *http.Request) {
	g.handleListCustomers(w, r)
}

// handleDashboardLogin authenticates a customer against their stored password
// hash and returns their tenants. Responses never distinguish unknown emails
// from wrong passwords.
func (g *Gateway) handleDashboardLogin(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid JSON body")
		return
	}
	if req.Email == "" || req.Password == "" {
		writeError(w, http.StatusBadRequest, "Email and password are required")
		return
	}

	tenants, err := g.store.GetTenantsByEmail(r.Context(), req.Email)
	if err != nil {
		g.logger.Error("dashboard login lookup", "error", err)
		writeError(w, http.StatusInternalServerError, "Login failed")
		return
	}

	var hash string
	for _, t := range tenants {
		if t.PasswordHash != "" {
			hash = t.PasswordHash
			break
		}
	}
	if hash == "" || !auth.VerifyPassword(req.Password, hash) {
		writeError(w, http.StatusUnauthorized, "Invalid email or password")
		return
	}

	out := make([]CustomerResponse, 0, len(tenants))
	for _, t := range tenants {
		out = append(out, customerResponse(t))
	}
	writeJSON(w, http.StatusOK, map[string]any{"customers": out})
}

// handleSetPassword stores a dashboard password for every tenant under an email
func (g *Gateway) handleSetPassword(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid JSON body")
		return
	}
	if req.Email == "" || len(req.Password) < 8 {
		writeError(w, http.StatusBadRequest, "Email and a password of at least 8 characters are required")
		return
	}

	hash, err := auth.HashPassword(req.Password)
	if err != nil {
		g.logger.Error("hashing password", "error", err)
		writeError(w, http.StatusInternalServerError, "Failed to set password")
		return
	}

	if err := g.store.SetPasswordHash(r.Context(), req.Email, hash); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			writeError(w, http.StatusNotFound, "Customer not found")
			return
		}
		g.logger.Error("storing password hash", "error", err)
		writeError(w, http.StatusInternalServerError, "Failed to set password")
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"success": true})
}
