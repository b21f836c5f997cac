// ABOUTME: Checkout link handler and the signed payment webhook
// ABOUTME: Webhook bodies are HMAC-verified before any JSON parsing

package gateway

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"

	"github.com/google/uuid"

	"github.com/relaymark/teable-gateway/internal/store"
)

// HeaderWebhookSignature carries the hex HMAC-SHA256 of the raw webhook body
const HeaderWebhookSignature = "X-Webhook-Signature"

const maxWebhookBody = 1 << 20

// handleCheckout returns the configured payment link for the requested tier.
// The payment provider hosts the actual checkout; we only hand out the URL.
func (g *Gateway) handleCheckout(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Email string `json:"email"`
		Tier  string `json:"tier"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid JSON body")
		return
	}

	var link string
	switch req.Tier {
	case store.TierPro:
		link = g.config.Billing.PaymentLinkPro
	case store.TierEnterprise:
		link = g.config.Billing.PaymentLinkEnterprise
	default:
		writeError(w, http.StatusBadRequest, "Unknown tier")
		return
	}
	if link == "" {
		writeError(w, http.StatusServiceUnavailable, "Checkout is not configured")
		return
	}

	if req.Email != "" {
		link += "?prefilled_email=" + url.QueryEscape(req.Email)
	}
	writeJSON(w, http.StatusOK, map[string]string{"url": link})
}

// webhookEvent is the payload the payment provider posts after signing it
type webhookEvent struct {
	ID   string `json:"id"`
	Type string `json:"type"`
	Data struct {
		Email             string `json:"email"`
		Name              string `json:"name"`
		Tier              string `json:"tier"`
		PaymentSessionID  string `json:"sessionId"`
		PaymentCustomerID string `json:"customerId"`
	} `json:"data"`
}

// handlePaymentWebhook verifies the body signature, then provisions or
// upgrades the tenant the event names. Unknown event types are acknowledged
// and ignored so the provider does not retry them forever.
func (g *Gateway) handlePaymentWebhook(w http.ResponseWriter, r *http.Request) {
	if g.config.Billing.WebhookSecret == "" {
		writeError(w, http.StatusServiceUnavailable, "Webhook is not configured")
		return
	}

	body, err := io.ReadAll(io.LimitReader(r.Body, maxWebhookBody))
	if err != nil {
		writeError(w, http.StatusBadRequest, "Failed to read body")
		return
	}

	if !verifySignature(body, r.Header.Get(HeaderWebhookSignature), g.config.Billing.WebhookSecret) {
		g.logger.Warn("webhook signature mismatch", "remote", r.RemoteAddr)
		writeError(w, http.StatusBadRequest, "Invalid signature")
		return
	}

	var event webhookEvent
	if err := json.Unmarshal(body, &event); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid JSON body")
		return
	}

	// Providers retry deliveries; the signature doubles as a body hash when
	// the event carries no id.
	deliveryKey := event.ID
	if deliveryKey == "" {
		deliveryKey = r.Header.Get(HeaderWebhookSignature)
	}
	if g.deliveries.Seen(deliveryKey) {
		g.logger.Info("ignoring duplicate webhook delivery", "id", event.ID, "type", event.Type)
		writeJSON(w, http.StatusOK, map[string]bool{"received": true})
		return
	}

	var procErr error
	switch event.Type {
	case "checkout.completed":
		procErr = g.processCheckoutCompleted(r.Context(), event)
	case "upgrade":
		procErr = g.processUpgrade(r.Context(), event)
	default:
		g.logger.Info("ignoring webhook event", "type", event.Type)
	}

	if procErr != nil {
		// Only successful processing may count as delivered
		g.deliveries.Forget(deliveryKey)
		switch {
		case errors.Is(procErr, errEventInvalid):
			writeError(w, http.StatusBadRequest, procErr.Error())
		case errors.Is(procErr, store.ErrNotFound):
			writeError(w, http.StatusNotFound, "Customer not found")
		default:
			g.logger.Error("processing webhook event", "type", event.Type, "error", procErr)
			writeError(w, http.StatusInternalServerError, "Failed to process event")
		}
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"received": true})
}

func verifySignature(body []byte, signature, secret string) bool {
	if signature == "" {
		return false
	}
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(body)
	expected := hex.EncodeToString(mac.Sum(nil))
	return hmac.Equal([]byte(expected), []byte(signature))
}

// errEventInvalid marks events that will never succeed, however often retried
var errEventInvalid = errors.New("invalid event")

func (g *Gateway) processCheckoutCompleted(ctx context.Context, event webhookEvent) error {
	if event.Data.Email == "" {
		return fmt.Errorf("%w: missing email", errEventInvalid)
	}

	tier := event.Data.Tier
	if tier == "" {
		tier = store.TierBase
	}

	tenant := &store.Tenant{
		ID:                uuid.NewString(),
		Name:              event.Data.Name,
		Email:             event.Data.Email,
		LookupKey:         newLookupKey(),
		Status:            store.StatusActive,
		Tier:              tier,
		QuotaCeiling:      store.TierCeiling(tier),
		PaymentSessionID:  event.Data.PaymentSessionID,
		PaymentCustomerID: event.Data.PaymentCustomerID,
	}

	if err := g.store.CreateTenant(ctx, tenant); err != nil {
		if errors.Is(err, store.ErrDuplicateTenant) {
			// Provider retried a delivery we already processed
			return nil
		}
		return fmt.Errorf("provisioning tenant: %w", err)
	}

	if err := g.notifier.WelcomeEmail(ctx, tenant.Email, tenant.Name, tenant.LookupKey); err != nil {
		g.logger.Warn("welcome notification failed", "email", tenant.Email, "error", err)
	}

	g.logger.Info("provisioned tenant from checkout", "email", tenant.Email, "tier", tier)
	return nil
}

func (g *Gateway) processUpgrade(ctx context.Context, event webhookEvent) error {
	if event.Data.Email == "" || event.Data.Tier == "" {
		return fmt.Errorf("%w: missing email or tier", errEventInvalid)
	}

	ceiling := store.TierCeiling(event.Data.Tier)
	if err := g.store.SetTier(ctx, event.Data.Email, event.Data.Tier, ceiling); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return err
		}
		return fmt.Errorf("updating tier: %w", err)
	}

	if err := g.notifier.UpgradeConfirmation(ctx, event.Data.Email, event.Data.Tier); err != nil {
		g.logger.Warn("upgrade notification failed", "email", event.Data.Email, "error", err)
	}

	g.logger.Info("upgraded tenant from webhook", "email", event.Data.Email, "tier", event.Data.Tier)
	return nil
}
