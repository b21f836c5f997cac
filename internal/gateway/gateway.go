// ABOUTME: HTTP front door wiring the MCP routes, customer API, and billing glue
// ABOUTME: Owns the http.Server lifecycle and the session manager hooks

package gateway

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/relaymark/teable-gateway/internal/auth"
	"github.com/relaymark/teable-gateway/internal/config"
	"github.com/relaymark/teable-gateway/internal/dedupe"
	"github.com/relaymark/teable-gateway/internal/metrics"
	"github.com/relaymark/teable-gateway/internal/notify"
	"github.com/relaymark/teable-gateway/internal/session"
	"github.com/relaymark/teable-gateway/internal/store"
	"github.com/relaymark/teable-gateway/internal/vault"
)

// Gateway is the HTTP front door
type Gateway struct {
	config   *config.Config
	store    store.Store
	vault    *vault.Vault
	sessions *session.Manager
	verifier *auth.SessionTokens
	notifier notify.Notifier
	metrics  *metrics.GatewayMetrics

	// deliveries dedupes webhook retries from the payment provider
	deliveries *dedupe.Cache

	httpServer *http.Server
	logger     *slog.Logger
}

// New creates a Gateway over the given store and vault
func New(cfg *config.Config, s store.Store, v *vault.Vault, notifier notify.Notifier) *Gateway {
	logger := slog.Default().With("component", "gateway")

	m, registry := metrics.New()

	g := &Gateway{
		config:     cfg,
		store:      s,
		vault:      v,
		notifier:   notifier,
		metrics:    m,
		deliveries: dedupe.New(24*time.Hour, 10000),
		logger:     logger,
	}
	if cfg.Auth.JWTSecret != "" {
		g.verifier = auth.NewSessionTokens([]byte(cfg.Auth.JWTSecret))
	} else {
		logger.Warn("admin auth disabled - no jwt_secret configured")
	}

	resolver := session.NewResolver(s, v, cfg.Teable.DefaultBaseURL)
	g.sessions = session.NewManager(resolver, session.Options{
		IdleTimeout:           cfg.Sessions.IdleTimeout,
		RateLimit:             cfg.Sessions.RateLimit,
		RateBurst:             cfg.Sessions.RateBurst,
		PaymentLinkPro:        cfg.Billing.PaymentLinkPro,
		PaymentLinkEnterprise: cfg.Billing.PaymentLinkEnterprise,
		Hooks: session.Hooks{
			OnSessionOpened: func(tenantID string) {
				m.ActiveSessions.Inc()
				m.SessionsTotal.Inc()
				g.recordUsage(tenantID, "connection")
			},
			OnSessionClosed: func(tenantID string) {
				m.ActiveSessions.Dec()
			},
			OnToolCall: func(tenantID, toolName string) {
				m.ToolCallsTotal.WithLabelValues(toolName).Inc()
				g.recordUsage(tenantID, toolName)
			},
			OnQuotaReject: func(tenantID string) {
				m.QuotaRejections.Inc()
			},
		},
	})

	g.httpServer = &http.Server{
		Addr:              cfg.Server.HTTPAddr,
		Handler:           g.routes(registry),
		ReadHeaderTimeout: 10 * time.Second,
	}
	return g
}

// Sessions exposes the session manager for lifecycle wiring
func (g *Gateway) Sessions() *session.Manager {
	return g.sessions
}

func (g *Gateway) routes(registry *prometheus.Registry) *http.ServeMux {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /health", g.handleHealth)
	if g.config.Metrics.Enabled {
		mux.Handle("GET "+g.config.Metrics.Path,
			promhttp.HandlerFor(registry, promhttp.HandlerOpts{}))
	}

	// MCP transports
	mux.HandleFunc("GET /mcp/{mcpKey}/sse", g.handleSSE)
	mux.HandleFunc("POST /mcp/{mcpKey}/messages", g.handleMessages)
	mux.HandleFunc("/mcp/{mcpKey}/mcp", g.handleStreamable)

	// Customer API
	mux.HandleFunc("POST /api/customers", g.handleCreateCustomer)
	mux.HandleFunc("GET /api/customers", g.handleListCustomers)
	mux.HandleFunc("GET /api/customers/by-email/{email}", g.handleCustomerByEmail)
	mux.HandleFunc("GET /api/customers/by-session/{sessionID}", g.handleCustomerBySession)
	mux.HandleFunc("POST /api/customers/onboarding-complete", g.handleOnboardingComplete)
	mux.HandleFunc("GET /api/customers/{mcpKey}", g.handleGetCustomer)
	mux.HandleFunc("POST /api/customers/{mcpKey}/token", g.handleSetToken)
	mux.HandleFunc("GET /api/customers/{mcpKey}/limits", g.handleGetLimits)

	// Auth
	mux.HandleFunc("POST /api/auth/dashboard-login", g.handleDashboardLogin)
	mux.HandleFunc("POST /api/auth/set-password", g.handleSetPassword)
	mux.HandleFunc("POST /api/admin/login", g.handleAdminLogin)
	mux.Handle("GET /api/admin/customers", g.requireAdmin(http.HandlerFunc(g.handleAdminListCustomers)))

	// Billing
	mux.HandleFunc("POST /api/checkout", g.handleCheckout)
	mux.HandleFunc("POST /api/webhook/payment", g.handlePaymentWebhook)

	return mux
}

// Start runs the HTTP server and the idle-session reaper until ctx is done
func (g *Gateway) Start(ctx context.Context) error {
	go g.sessions.Run(ctx)

	errCh := make(chan error, 1)
	go func() {
		g.logger.Info("gateway listening", "addr", g.httpServer.Addr)
		if err := g.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return fmt.Errorf("http server: %w", err)
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	g.sessions.Shutdown()
	g.deliveries.Close()
	if err := g.httpServer.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutting down http server: %w", err)
	}
	g.logger.Info("gateway stopped")
	return nil
}

// Handler returns the HTTP handler, for tests
func (g *Gateway) Handler() http.Handler {
	return g.httpServer.Handler
}

func (g *Gateway) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (g *Gateway) handleSSE(w http.ResponseWriter, r *http.Request) {
	g.sessions.HandleSSE(w, r, r.PathValue("mcpKey"))
}

func (g *Gateway) handleMessages(w http.ResponseWriter, r *http.Request) {
	g.sessions.HandleMessages(w, r, r.PathValue("mcpKey"))
}

func (g *Gateway) handleStreamable(w http.ResponseWriter, r *http.Request) {
	g.sessions.HandleStreamable(w, r, r.PathValue("mcpKey"))
}

// recordUsage writes a usage event without blocking the caller. Failures are
// logged and dropped; the audit log never gates a tool response.
func (g *Gateway) recordUsage(tenantID, toolName string) {
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()

		err := g.store.RecordUsageEvent(ctx, &store.UsageEvent{
			ID:       uuid.NewString(),
			TenantID: tenantID,
			ToolName: toolName,
		})
		if err != nil {
			g.logger.Warn("failed to record usage event", "tenant", tenantID, "tool", toolName, "error", err)
		}
	}()
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"error": message})
}
