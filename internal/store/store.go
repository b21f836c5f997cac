// ABOUTME: Store interface and data types for teable-gateway persistence
// ABOUTME: Defines Tenant, UsageEvent and the Store interface for database operations

package store

import (
	"context"
	"errors"
	"time"
)

// ErrNotFound is returned when a requested entity does not exist
var ErrNotFound = errors.New("not found")

// ErrDuplicateTenant is returned when a tenant with the same email already exists
var ErrDuplicateTenant = errors.New("tenant already exists")

// Tenant status constants
const (
	StatusPending   = "pending"
	StatusActive    = "active"
	StatusSuspended = "suspended"
	StatusCancelled = "cancelled"
)

// Tier names and their record ceilings
const (
	TierFree       = "free"
	TierBase       = "base"
	TierPro        = "pro"
	TierEnterprise = "enterprise"
)

// TierCeiling returns the record ceiling for a tier. Unknown tiers get the
// free ceiling.
func TierCeiling(tier string) int {
	switch tier {
	case TierBase, TierPro:
		return 250000
	case TierEnterprise:
		return 1000000
	default:
		return 50000
	}
}

// Tenant is one onboarded customer of the gateway. LookupKey is the only
// identifier untrusted callers present; EncryptedCredential is ciphertext and
// never leaves the store boundary in plaintext.
type Tenant struct {
	ID                  string
	Name                string
	Email               string
	LookupKey           string
	EncryptedCredential string // empty until a credential is supplied
	UpstreamBaseURL     string
	Status              string
	Tier                string
	QuotaCeiling        int
	OnboardingComplete  bool
	PaymentCustomerID   string
	PaymentSessionID    string
	PasswordHash        string
	CreatedAt           time.Time
	UpdatedAt           time.Time
}

// UsageEvent is one audited tool invocation or connection open
type UsageEvent struct {
	ID        string
	TenantID  string
	ToolName  string
	CreatedAt time.Time
}

// Store defines the persistence operations teable-gateway needs
type Store interface {
	// Tenant operations
	CreateTenant(ctx context.Context, t *Tenant) error
	GetTenantByKey(ctx context.Context, lookupKey string) (*Tenant, error)
	GetTenantsByEmail(ctx context.Context, email string) ([]*Tenant, error)
	GetTenantByPaymentSession(ctx context.Context, sessionID string) (*Tenant, error)
	ListTenants(ctx context.Context, limit, offset int) ([]*Tenant, error)
	SetCredential(ctx context.Context, lookupKey, encryptedCredential, upstreamBaseURL string) (*Tenant, error)
	SetTier(ctx context.Context, email, tier string, ceiling int) error
	SetStatus(ctx context.Context, lookupKey, status string) error
	SetPasswordHash(ctx context.Context, email, passwordHash string) error
	SetOnboardingComplete(ctx context.Context, email string) error

	// Usage audit
	RecordUsageEvent(ctx context.Context, event *UsageEvent) error
	CountUsageEvents(ctx context.Context, tenantID string, since time.Time) (int, error)

	// Close releases database resources
	Close() error
}
