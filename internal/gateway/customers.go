// ABOUTME: Customer API handlers: provisioning, credential upload, limits
// ABOUTME: Tenant-facing reads never expose the encrypted credential

package gateway

import (
	"crypto/rand"
	"encoding/hex"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/google/uuid"

	"github.com/relaymark/teable-gateway/internal/store"
)

// CustomerResponse is the tenant shape returned by every customer read.
// The encrypted credential never appears here, only whether one exists.
type CustomerResponse struct {
	ID                 string `json:"id"`
	Name               string `json:"name"`
	Email              string `json:"email"`
	McpKey             string `json:"mcp_key"`
	Status             string `json:"status"`
	Tier               string `json:"tier"`
	RecordLimit        int    `json:"record_limit"`
	OnboardingComplete bool   `json:"onboarding_complete"`
	HasToken           bool   `json:"has_token"`
	TeableBaseURL      string `json:"teable_base_url,omitempty"`
	CreatedAt          string `json:"created_at"`
}

func customerResponse(t *store.Tenant) CustomerResponse {
	return CustomerResponse{
		ID:                 t.ID,
		Name:               t.Name,
		Email:              t.Email,
		McpKey:             t.LookupKey,
		Status:             t.Status,
		Tier:               t.Tier,
		RecordLimit:        t.QuotaCeiling,
		OnboardingComplete: t.OnboardingComplete,
		HasToken:           t.EncryptedCredential != "",
		TeableBaseURL:      t.UpstreamBaseURL,
		CreatedAt:          t.CreatedAt.Format(time.RFC3339),
	}
}

// newLookupKey generates a 32-hex-char unguessable tenant key
func newLookupKey() string {
	b := make([]byte, 16)
	if _, err := rand.Read(b); err != nil {
		// rand.Read on supported platforms does not fail; fall back anyway
		return uuid.NewString()
	}
	return hex.EncodeToString(b)
}

// CreateCustomerRequest is the JSON body for POST /api/customers
type CreateCustomerRequest struct {
	Name              string `json:"name"`
	Email             string `json:"email"`
	Tier              string `json:"tier,omitempty"`
	PaymentSessionID  string `json:"paymentSessionId,omitempty"`
	PaymentCustomerID string `json:"paymentCustomerId,omitempty"`
}

func (g *Gateway) handleCreateCustomer(w http.ResponseWriter, r *http.Request) {
	var req CreateCustomerRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid JSON body")
		return
	}
	if req.Name == "" || req.Email == "" {
		writeError(w, http.StatusBadRequest, "Name and email are required")
		return
	}

	tier := store.TierFree
	if req.PaymentSessionID != "" {
		// Paid signup: provision on the base tier unless told otherwise
		tier = store.TierBase
	}
	if req.Tier != "" {
		tier = req.Tier
	}

	tenant := &store.Tenant{
		ID:                uuid.NewString(),
		Name:              req.Name,
		Email:             req.Email,
		LookupKey:         newLookupKey(),
		Tier:              tier,
		QuotaCeiling:      store.TierCeiling(tier),
		PaymentSessionID:  req.PaymentSessionID,
		PaymentCustomerID: req.PaymentCustomerID,
	}

	if err := g.store.CreateTenant(r.Context(), tenant); err != nil {
		if errors.Is(err, store.ErrDuplicateTenant) {
			writeError(w, http.StatusConflict, "Customer already exists")
			return
		}
		g.logger.Error("creating customer", "error", err)
		writeError(w, http.StatusInternalServerError, "Failed to create customer")
		return
	}

	writeJSON(w, http.StatusCreated, customerResponse(tenant))
}

func (g *Gateway) handleListCustomers(w http.ResponseWriter, r *http.Request) {
	limit, offset := pagination(r)

	tenants, err := g.store.ListTenants(r.Context(), limit, offset)
	if err != nil {
		g.logger.Error("listing customers", "error", err)
		writeError(w, http.StatusInternalServerError, "Failed to list customers")
		return
	}

	out := make([]CustomerResponse, 0, len(tenants))
	for _, t := range tenants {
		out = append(out, customerResponse(t))
	}
	writeJSON(w, http.StatusOK, map[string]any{"customers": out})
}

func (g *Gateway) handleGetCustomer(w http.ResponseWriter, r *http.Request) {
	tenant, err := g.store.GetTenantByKey(r.Context(), r.PathValue("mcpKey"))
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			writeError(w, http.StatusNotFound, "Customer not found")
			return
		}
		g.logger.Error("getting customer", "error", err)
		writeError(w, http.StatusInternalServerError, "Failed to get customer")
		return
	}
	writeJSON(w, http.StatusOK, customerResponse(tenant))
}

func (g *Gateway) handleCustomerByEmail(w http.ResponseWriter, r *http.Request) {
	tenants, err := g.store.GetTenantsByEmail(r.Context(), r.PathValue("email"))
	if err != nil {
		g.logger.Error("getting customers by email", "error", err)
		writeError(w, http.StatusInternalServerError, "Failed to get customers")
		return
	}
	if len(tenants) == 0 {
		writeError(w, http.StatusNotFound, "Customer not found")
		return
	}

	out := make([]CustomerResponse, 0, len(tenants))
	for _, t := range tenants {
		out = append(out, customerResponse(t))
	}
	writeJSON(w, http.StatusOK, map[string]any{"customers": out})
}

func (g *Gateway) handleCustomerBySession(w http.ResponseWriter, r *http.Request) {
	tenant, err := g.store.GetTenantByPaymentSession(r.Context(), r.PathValue("sessionID"))
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			writeError(w, http.StatusNotFound, "Customer not found")
			return
		}
		g.logger.Error("getting customer by session", "error", err)
		writeError(w, http.StatusInternalServerError, "Failed to get customer")
		return
	}
	writeJSON(w, http.StatusOK, customerResponse(tenant))
}

// SetTokenRequest is the JSON body for POST /api/customers/{mcpKey}/token
type SetTokenRequest struct {
	Token         string `json:"token"`
	TeableBaseURL string `json:"teableBaseUrl,omitempty"`
}

// handleSetToken encrypts and stores a tenant's Teable credential, which
// activates the tenant.
func (g *Gateway) handleSetToken(w http.ResponseWriter, r *http.Request) {
	var req SetTokenRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid JSON body")
		return
	}
	if req.Token == "" {
		writeError(w, http.StatusBadRequest, "Token is required")
		return
	}

	encrypted, err := g.vault.Encrypt(req.Token)
	if err != nil {
		g.logger.Error("encrypting credential", "error", err)
		writeError(w, http.StatusInternalServerError, "Failed to store token")
		return
	}

	baseURL := req.TeableBaseURL
	if baseURL == "" {
		baseURL = g.config.Teable.DefaultBaseURL
	}

	tenant, err := g.store.SetCredential(r.Context(), r.PathValue("mcpKey"), encrypted, baseURL)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			writeError(w, http.StatusNotFound, "Customer not found")
			return
		}
		g.logger.Error("storing credential", "error", err)
		writeError(w, http.StatusInternalServerError, "Failed to store token")
		return
	}

	writeJSON(w, http.StatusOK, customerResponse(tenant))
}

func (g *Gateway) handleGetLimits(w http.ResponseWriter, r *http.Request) {
	tenant, err := g.store.GetTenantByKey(r.Context(), r.PathValue("mcpKey"))
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			writeError(w, http.StatusNotFound, "Customer not found")
			return
		}
		g.logger.Error("getting customer limits", "error", err)
		writeError(w, http.StatusInternalServerError, "Failed to get limits")
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"tier":         tenant.Tier,
		"record_limit": tenant.QuotaCeiling,
		"upgrade_links": map[string]string{
			"pro":        g.config.Billing.PaymentLinkPro,
			"enterprise": g.config.Billing.PaymentLinkEnterprise,
		},
	})
}

func (g *Gateway) handleOnboardingComplete(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Email string `json:"email"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Email == "" {
		writeError(w, http.StatusBadRequest, "Email is required")
		return
	}

	if err := g.store.SetOnboardingComplete(r.Context(), req.Email); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			writeError(w, http.StatusNotFound, "Customer not found")
			return
		}
		g.logger.Error("marking onboarding complete", "error", err)
		writeError(w, http.StatusInternalServerError, "Failed to update customer")
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"success": true})
}

func pagination(r *http.Request) (limit, offset int) {
	limit = 50
	if v := r.URL.Query().Get("limit"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 && n <= 200 {
			limit = n
		}
	}
	if v := r.URL.Query().Get("offset"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n >= 0 {
			offset = n
		}
	}
	return limit, offset
}
