// ABOUTME: Tenant resolution pipeline: lookup, status check, credential decryption
// ABOUTME: Produces a bound Teable client or one of four typed failures

package session

import (
	"context"
	"errors"
	"fmt"

	"github.com/relaymark/teable-gateway/internal/store"
	"github.com/relaymark/teable-gateway/internal/teable"
	"github.com/relaymark/teable-gateway/internal/vault"
)

// Resolution errors, each mapped to a distinct caller-visible status by the
// HTTP layer. They are never collapsed into a generic failure.
var (
	ErrTenantNotFound       = errors.New("tenant not found")
	ErrSubscriptionInactive = errors.New("subscription not active")
	ErrCredentialMissing    = errors.New("no credential configured")
	ErrCredentialCorrupt    = errors.New("credential cannot be decrypted")
)

// ResolvedTenant is the outcome of a successful resolution: the tenant record
// and a Teable client bound to its decrypted credential.
type ResolvedTenant struct {
	Tenant *store.Tenant
	Client *teable.Client
}

// TenantLookup is the slice of the store the resolver needs
type TenantLookup interface {
	GetTenantByKey(ctx context.Context, lookupKey string) (*store.Tenant, error)
}

// Resolver validates lookup keys and constructs per-tenant Teable clients
type Resolver struct {
	tenants        TenantLookup
	vault          *vault.Vault
	defaultBaseURL string
}

// NewResolver creates a resolver over the given tenant store and vault.
// defaultBaseURL is used for tenants provisioned without an explicit upstream.
func NewResolver(tenants TenantLookup, v *vault.Vault, defaultBaseURL string) *Resolver {
	return &Resolver{tenants: tenants, vault: v, defaultBaseURL: defaultBaseURL}
}

// Resolve runs the pipeline: lookup, active check, credential presence,
// decryption, client construction. Each step short-circuits, so an inactive
// tenant is reported as inactive even if its credential is also corrupt.
func (r *Resolver) Resolve(ctx context.Context, lookupKey string) (*ResolvedTenant, error) {
	tenant, err := r.tenants.GetTenantByKey(ctx, lookupKey)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, ErrTenantNotFound
		}
		return nil, fmt.Errorf("looking up tenant: %w", err)
	}

	if tenant.Status != store.StatusActive {
		return nil, fmt.Errorf("%w: status %s", ErrSubscriptionInactive, tenant.Status)
	}

	if tenant.EncryptedCredential == "" {
		return nil, ErrCredentialMissing
	}

	credential, err := r.vault.Decrypt(tenant.EncryptedCredential)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrCredentialCorrupt, err)
	}

	baseURL := tenant.UpstreamBaseURL
	if baseURL == "" {
		baseURL = r.defaultBaseURL
	}

	client, err := teable.NewClient(credential, baseURL)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrCredentialCorrupt, err)
	}

	return &ResolvedTenant{Tenant: tenant, Client: client}, nil
}
