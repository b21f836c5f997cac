// ABOUTME: Tests for the HTTP front door: customer API, auth, billing webhook.
// ABOUTME: Drives the full route table through httptest against a mock store.

package gateway

import (
	"bytes"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/relaymark/teable-gateway/internal/config"
	"github.com/relaymark/teable-gateway/internal/notify"
	"github.com/relaymark/teable-gateway/internal/store"
	"github.com/relaymark/teable-gateway/internal/vault"
)

const testWebhookSecret = "whsec_test"

func newTestGateway(t *testing.T) (*Gateway, *store.MockStore) {
	t.Helper()

	key := bytes.Repeat([]byte{0x42}, 32)
	v, err := vault.New(key)
	require.NoError(t, err)

	cfg := &config.Config{}
	cfg.Server.HTTPAddr = "127.0.0.1:0"
	cfg.Auth.JWTSecret = "test-jwt-secret"
	cfg.Auth.AdminEmail = "admin@example.com"
	cfg.Auth.AdminPassword = "hunter22hunter22"
	cfg.Sessions.IdleTimeout = 30 * time.Minute
	cfg.Billing.WebhookSecret = testWebhookSecret
	cfg.Billing.PaymentLinkPro = "https://pay.example.com/pro"
	cfg.Billing.PaymentLinkEnterprise = "https://pay.example.com/enterprise"
	cfg.Teable.DefaultBaseURL = "https://app.teable.ai/api"

	s := store.NewMockStore()
	g := New(cfg, s, v, notify.NewLogNotifier())
	return g, s
}

func doJSON(t *testing.T, g *Gateway, method, path string, body any, header http.Header) *httptest.ResponseRecorder {
	t.Helper()

	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	for k, vals := range header {
		for _, v := range vals {
			req.Header.Add(k, v)
		}
	}

	rec := httptest.NewRecorder()
	g.Handler().ServeHTTP(rec, req)
	return rec
}

func decodeBody[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var out T
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&out), "body: %s", rec.Body.String())
	return out
}

func TestHealth(t *testing.T) {
	g, _ := newTestGateway(t)

	rec := doJSON(t, g, http.MethodGet, "/health", nil, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	resp := decodeBody[map[string]string](t, rec)
	if resp["status"] != "ok" {
		t.Errorf("unexpected health body: %v", resp)
	}
}

func TestCreateCustomer(t *testing.T) {
	g, _ := newTestGateway(t)

	rec := doJSON(t, g, http.MethodPost, "/api/customers", CreateCustomerRequest{
		Name:  "Acme",
		Email: "acme@example.com",
	}, nil)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	created := decodeBody[CustomerResponse](t, rec)
	if created.McpKey == "" {
		t.Error("expected a generated mcp key")
	}
	if created.Tier != store.TierFree || created.RecordLimit != 50000 {
		t.Errorf("expected free tier defaults, got %s/%d", created.Tier, created.RecordLimit)
	}
	if created.HasToken {
		t.Error("new customer must not report a token")
	}

	// Same email again conflicts
	rec = doJSON(t, g, http.MethodPost, "/api/customers", CreateCustomerRequest{
		Name:  "Acme",
		Email: "acme@example.com",
	}, nil)
	if rec.Code != http.StatusConflict {
		t.Errorf("expected 409 on duplicate email, got %d", rec.Code)
	}
}

func TestCreateCustomer_PaidSignupGetsBaseTier(t *testing.T) {
	g, _ := newTestGateway(t)

	rec := doJSON(t, g, http.MethodPost, "/api/customers", CreateCustomerRequest{
		Name:             "Paid Co",
		Email:            "paid@example.com",
		PaymentSessionID: "cs_123",
	}, nil)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	created := decodeBody[CustomerResponse](t, rec)
	if created.Tier != store.TierBase || created.RecordLimit != 250000 {
		t.Errorf("expected base tier for paid signup, got %s/%d", created.Tier, created.RecordLimit)
	}

	// And findable by the payment session id
	rec = doJSON(t, g, http.MethodGet, "/api/customers/by-session/cs_123", nil, nil)
	if rec.Code != http.StatusOK {
		t.Errorf("expected 200 by-session lookup, got %d", rec.Code)
	}
}

func TestCreateCustomer_Validation(t *testing.T) {
	g, _ := newTestGateway(t)

	rec := doJSON(t, g, http.MethodPost, "/api/customers", CreateCustomerRequest{Name: "No Email"}, nil)
	if rec.Code != http.StatusBadRequest {
		t.Errorf("expected 400 without email, got %d", rec.Code)
	}
}

func TestSetTokenActivatesAndHidesCredential(t *testing.T) {
	g, s := newTestGateway(t)

	rec := doJSON(t, g, http.MethodPost, "/api/customers", CreateCustomerRequest{
		Name:  "Tok",
		Email: "tok@example.com",
	}, nil)
	created := decodeBody[CustomerResponse](t, rec)
	require.Equal(t, store.StatusPending, created.Status)

	rec = doJSON(t, g, http.MethodPost, "/api/customers/"+created.McpKey+"/token", SetTokenRequest{
		Token: "teable_pat_abc123",
	}, nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	updated := decodeBody[CustomerResponse](t, rec)
	if updated.Status != store.StatusActive {
		t.Errorf("expected active after token upload, got %s", updated.Status)
	}
	if !updated.HasToken {
		t.Error("expected has_token true after upload")
	}
	if updated.TeableBaseURL != "https://app.teable.ai/api" {
		t.Errorf("expected default base url, got %q", updated.TeableBaseURL)
	}

	// The raw response must never contain the credential, plaintext or ciphertext
	tenant, err := s.GetTenantByKey(t.Context(), created.McpKey)
	require.NoError(t, err)
	body := rec.Body.String()
	if bytes.Contains([]byte(body), []byte("teable_pat_abc123")) {
		t.Error("plaintext token leaked in response")
	}
	if tenant.EncryptedCredential == "" || bytes.Contains([]byte(body), []byte(tenant.EncryptedCredential)) {
		t.Error("encrypted credential leaked in response")
	}
	if tenant.EncryptedCredential == "teable_pat_abc123" {
		t.Error("credential stored unencrypted")
	}
}

func TestSetToken_UnknownCustomer(t *testing.T) {
	g, _ := newTestGateway(t)

	rec := doJSON(t, g, http.MethodPost, "/api/customers/nope/token", SetTokenRequest{Token: "x"}, nil)
	if rec.Code != http.StatusNotFound {
		t.Errorf("expected 404, got %d", rec.Code)
	}
}

func TestGetLimits(t *testing.T) {
	g, _ := newTestGateway(t)

	rec := doJSON(t, g, http.MethodPost, "/api/customers", CreateCustomerRequest{
		Name:  "Lim",
		Email: "lim@example.com",
		Tier:  store.TierEnterprise,
	}, nil)
	created := decodeBody[CustomerResponse](t, rec)

	rec = doJSON(t, g, http.MethodGet, "/api/customers/"+created.McpKey+"/limits", nil, nil)
	require.Equal(t, http.StatusOK, rec.Code)

	limits := decodeBody[map[string]any](t, rec)
	if limits["tier"] != store.TierEnterprise {
		t.Errorf("expected enterprise tier, got %v", limits["tier"])
	}
	if limits["record_limit"].(float64) != 1000000 {
		t.Errorf("expected 1000000 limit, got %v", limits["record_limit"])
	}
}

func TestOnboardingComplete(t *testing.T) {
	g, _ := newTestGateway(t)

	rec := doJSON(t, g, http.MethodPost, "/api/customers", CreateCustomerRequest{
		Name:  "Ob",
		Email: "ob@example.com",
	}, nil)
	created := decodeBody[CustomerResponse](t, rec)
	require.False(t, created.OnboardingComplete)

	rec = doJSON(t, g, http.MethodPost, "/api/customers/onboarding-complete",
		map[string]string{"email": "ob@example.com"}, nil)
	require.Equal(t, http.StatusOK, rec.Code)

	rec = doJSON(t, g, http.MethodGet, "/api/customers/"+created.McpKey, nil, nil)
	after := decodeBody[CustomerResponse](t, rec)
	if !after.OnboardingComplete {
		t.Error("expected onboarding_complete after the call")
	}
}

func TestAdminLoginAndListCustomers(t *testing.T) {
	g, _ := newTestGateway(t)

	// Wrong password is rejected
	rec := doJSON(t, g, http.MethodPost, "/api/admin/login",
		loginRequest{Email: "admin@example.com", Password: "wrong"}, nil)
	if rec.Code != http.StatusUnauthorized {
		t.Errorf("expected 401 for bad password, got %d", rec.Code)
	}

	rec = doJSON(t, g, http.MethodPost, "/api/admin/login",
		loginRequest{Email: "admin@example.com", Password: "hunter22hunter22"}, nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	token := decodeBody[map[string]string](t, rec)["token"]
	require.NotEmpty(t, token)

	// List without a token is rejected
	rec = doJSON(t, g, http.MethodGet, "/api/admin/customers", nil, nil)
	if rec.Code != http.StatusUnauthorized {
		t.Errorf("expected 401 without bearer token, got %d", rec.Code)
	}

	// Garbage token is rejected
	rec = doJSON(t, g, http.MethodGet, "/api/admin/customers", nil,
		http.Header{"Authorization": []string{"Bearer not-a-jwt"}})
	if rec.Code != http.StatusUnauthorized {
		t.Errorf("expected 401 for invalid token, got %d", rec.Code)
	}

	rec = doJSON(t, g, http.MethodGet, "/api/admin/customers", nil,
		http.Header{"Authorization": []string{"Bearer " + token}})
	if rec.Code != http.StatusOK {
		t.Errorf("expected 200 with valid token, got %d: %s", rec.Code, rec.Body.String())
	}
}

func TestDashboardLogin(t *testing.T) {
	g, _ := newTestGateway(t)

	rec := doJSON(t, g, http.MethodPost, "/api/customers", CreateCustomerRequest{
		Name:  "Dash",
		Email: "dash@example.com",
	}, nil)
	require.Equal(t, http.StatusCreated, rec.Code)

	rec = doJSON(t, g, http.MethodPost, "/api/auth/set-password",
		loginRequest{Email: "dash@example.com", Password: "correct horse battery"}, nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	rec = doJSON(t, g, http.MethodPost, "/api/auth/dashboard-login",
		loginRequest{Email: "dash@example.com", Password: "wrong password"}, nil)
	if rec.Code != http.StatusUnauthorized {
		t.Errorf("expected 401 for wrong password, got %d", rec.Code)
	}

	// Unknown email reads the same as a wrong password
	rec = doJSON(t, g, http.MethodPost, "/api/auth/dashboard-login",
		loginRequest{Email: "ghost@example.com", Password: "whatever!"}, nil)
	if rec.Code != http.StatusUnauthorized {
		t.Errorf("expected 401 for unknown email, got %d", rec.Code)
	}

	rec = doJSON(t, g, http.MethodPost, "/api/auth/dashboard-login",
		loginRequest{Email: "dash@example.com", Password: "correct horse battery"}, nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	resp := decodeBody[map[string][]CustomerResponse](t, rec)
	if len(resp["customers"]) != 1 {
		t.Errorf("expected one customer in login response, got %d", len(resp["customers"]))
	}
}

func TestCheckout(t *testing.T) {
	g, _ := newTestGateway(t)

	rec := doJSON(t, g, http.MethodPost, "/api/checkout",
		map[string]string{"email": "up@example.com", "tier": "pro"}, nil)
	require.Equal(t, http.StatusOK, rec.Code)

	resp := decodeBody[map[string]string](t, rec)
	if resp["url"] != "https://pay.example.com/pro?prefilled_email=up%40example.com" {
		t.Errorf("unexpected checkout url: %s", resp["url"])
	}

	rec = doJSON(t, g, http.MethodPost, "/api/checkout",
		map[string]string{"tier": "platinum"}, nil)
	if rec.Code != http.StatusBadRequest {
		t.Errorf("expected 400 for unknown tier, got %d", rec.Code)
	}
}

func signBody(body []byte) string {
	mac := hmac.New(sha256.New, []byte(testWebhookSecret))
	mac.Write(body)
	return hex.EncodeToString(mac.Sum(nil))
}

func postWebhook(t *testing.T, g *Gateway, event map[string]any, sign func([]byte) string) *httptest.ResponseRecorder {
	t.Helper()

	body, err := json.Marshal(event)
	require.NoError(t, err)

	req := httptest.NewRequest(http.MethodPost, "/api/webhook/payment", bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	if sign != nil {
		req.Header.Set(HeaderWebhookSignature, sign(body))
	}

	rec := httptest.NewRecorder()
	g.Handler().ServeHTTP(rec, req)
	return rec
}

func TestWebhook_RejectsBadSignature(t *testing.T) {
	g, s := newTestGateway(t)

	event := map[string]any{
		"type": "checkout.completed",
		"data": map[string]any{"email": "evil@example.com", "name": "Evil"},
	}

	// No signature at all
	rec := postWebhook(t, g, event, nil)
	if rec.Code != http.StatusBadRequest {
		t.Errorf("expected 400 without signature, got %d", rec.Code)
	}

	// Wrong signature
	rec = postWebhook(t, g, event, func([]byte) string { return "deadbeef" })
	if rec.Code != http.StatusBadRequest {
		t.Errorf("expected 400 for bad signature, got %d", rec.Code)
	}

	if tenants, _ := s.GetTenantsByEmail(t.Context(), "evil@example.com"); len(tenants) != 0 {
		t.Error("unsigned webhook must not provision a tenant")
	}
}

func TestWebhook_CheckoutCompleted(t *testing.T) {
	g, s := newTestGateway(t)

	event := map[string]any{
		"type": "checkout.completed",
		"data": map[string]any{
			"email":      "buyer@example.com",
			"name":       "Buyer",
			"tier":       "pro",
			"sessionId":  "cs_777",
			"customerId": "cus_777",
		},
	}

	rec := postWebhook(t, g, event, signBody)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	tenants, err := s.GetTenantsByEmail(t.Context(), "buyer@example.com")
	require.NoError(t, err)
	require.Len(t, tenants, 1)

	tenant := tenants[0]
	if tenant.Status != store.StatusActive {
		t.Errorf("expected active tenant from checkout, got %s", tenant.Status)
	}
	if tenant.Tier != store.TierPro || tenant.QuotaCeiling != 250000 {
		t.Errorf("expected pro tier, got %s/%d", tenant.Tier, tenant.QuotaCeiling)
	}
	if tenant.PaymentSessionID != "cs_777" {
		t.Errorf("expected payment session recorded, got %q", tenant.PaymentSessionID)
	}

	// A retried delivery is acknowledged without a second tenant
	rec = postWebhook(t, g, event, signBody)
	if rec.Code != http.StatusOK {
		t.Errorf("expected 200 on retried delivery, got %d", rec.Code)
	}
	tenants, _ = s.GetTenantsByEmail(t.Context(), "buyer@example.com")
	if len(tenants) != 1 {
		t.Errorf("retried delivery must not duplicate the tenant, got %d", len(tenants))
	}
}

func TestWebhook_Upgrade(t *testing.T) {
	g, s := newTestGateway(t)

	rec := doJSON(t, g, http.MethodPost, "/api/customers", CreateCustomerRequest{
		Name:  "Up",
		Email: "up@example.com",
	}, nil)
	created := decodeBody[CustomerResponse](t, rec)
	require.Equal(t, store.TierFree, created.Tier)

	rec = postWebhook(t, g, map[string]any{
		"type": "upgrade",
		"data": map[string]any{"email": "up@example.com", "tier": "enterprise"},
	}, signBody)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	tenant, err := s.GetTenantByKey(t.Context(), created.McpKey)
	require.NoError(t, err)
	if tenant.Tier != store.TierEnterprise || tenant.QuotaCeiling != 1000000 {
		t.Errorf("expected enterprise after upgrade, got %s/%d", tenant.Tier, tenant.QuotaCeiling)
	}
}

func TestWebhook_FailedDeliveryRetryIsProcessed(t *testing.T) {
	g, s := newTestGateway(t)

	// Upgrade for a customer that does not exist yet fails
	event := map[string]any{
		"id":   "evt_upgrade_1",
		"type": "upgrade",
		"data": map[string]any{"email": "late@example.com", "tier": "pro"},
	}
	rec := postWebhook(t, g, event, signBody)
	if rec.Code != http.StatusNotFound {
		t.Fatalf("expected 404 for unknown customer, got %d", rec.Code)
	}

	// Once the customer exists, the provider's retry of the same delivery
	// must be processed, not answered as a duplicate
	rec = doJSON(t, g, http.MethodPost, "/api/customers", CreateCustomerRequest{
		Name:  "Late",
		Email: "late@example.com",
	}, nil)
	created := decodeBody[CustomerResponse](t, rec)
	require.Equal(t, store.TierFree, created.Tier)

	rec = postWebhook(t, g, event, signBody)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	tenant, err := s.GetTenantByKey(t.Context(), created.McpKey)
	require.NoError(t, err)
	if tenant.Tier != store.TierPro {
		t.Errorf("retried delivery must apply the upgrade, got tier %s", tenant.Tier)
	}

	// A retry after success is a duplicate and changes nothing
	rec = postWebhook(t, g, event, signBody)
	if rec.Code != http.StatusOK {
		t.Errorf("expected 200 for post-success retry, got %d", rec.Code)
	}
}

func TestWebhook_UnknownEventIgnored(t *testing.T) {
	g, _ := newTestGateway(t)

	rec := postWebhook(t, g, map[string]any{
		"type": "invoice.finalized",
		"data": map[string]any{"email": "x@example.com"},
	}, signBody)
	if rec.Code != http.StatusOK {
		t.Errorf("unknown events must be acknowledged, got %d", rec.Code)
	}
}

func TestMCPRoutes_ResolutionErrors(t *testing.T) {
	g, _ := newTestGateway(t)

	// Unknown tenant key on the SSE route
	rec := doJSON(t, g, http.MethodGet, "/mcp/mcp_unknown/sse", nil, nil)
	if rec.Code != http.StatusNotFound {
		t.Errorf("expected 404 for unknown tenant on sse, got %d", rec.Code)
	}

	// Pending tenant with no credential on the streamable route
	created := decodeBody[CustomerResponse](t, doJSON(t, g, http.MethodPost, "/api/customers",
		CreateCustomerRequest{Name: "NoCred", Email: "nocred@example.com"}, nil))
	require.NoError(t, g.store.SetStatus(t.Context(), created.McpKey, store.StatusActive))

	rec = doJSON(t, g, http.MethodPost, "/mcp/"+created.McpKey+"/mcp",
		map[string]any{"jsonrpc": "2.0", "id": 1, "method": "initialize"}, nil)
	if rec.Code != http.StatusBadRequest {
		t.Errorf("expected 400 for missing credential, got %d: %s", rec.Code, rec.Body.String())
	}
}
