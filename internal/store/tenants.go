// ABOUTME: SQLite implementation for tenant CRUD
// ABOUTME: Lookup by key, email, and payment session plus credential/tier mutation

package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"
)

const tenantColumns = `id, name, email, lookup_key, encrypted_credential, upstream_base_url,
	status, tier, quota_ceiling, onboarding_complete, payment_customer_id,
	payment_session_id, password_hash, created_at, updated_at`

// CreateTenant inserts a new tenant record
func (s *SQLiteStore) CreateTenant(ctx context.Context, t *Tenant) error {
	now := time.Now().UTC()
	if t.CreatedAt.IsZero() {
		t.CreatedAt = now
	}
	t.UpdatedAt = now
	if t.Status == "" {
		t.Status = StatusPending
	}
	if t.Tier == "" {
		t.Tier = TierFree
	}
	if t.QuotaCeiling == 0 {
		t.QuotaCeiling = TierCeiling(t.Tier)
	}

	query := `
		INSERT INTO tenants (
			id, name, email, lookup_key, encrypted_credential, upstream_base_url,
			status, tier, quota_ceiling, onboarding_complete, payment_customer_id,
			payment_session_id, password_hash, created_at, updated_at
		)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`

	_, err := s.db.ExecContext(ctx, query,
		t.ID,
		t.Name,
		t.Email,
		t.LookupKey,
		nullString(t.EncryptedCredential),
		t.UpstreamBaseURL,
		t.Status,
		t.Tier,
		t.QuotaCeiling,
		t.OnboardingComplete,
		nullString(t.PaymentCustomerID),
		nullString(t.PaymentSessionID),
		nullString(t.PasswordHash),
		t.CreatedAt.Format(time.RFC3339),
		t.UpdatedAt.Format(time.RFC3339),
	)
	if err != nil {
		if strings.Contains(err.Error(), "UNIQUE constraint failed") {
			return ErrDuplicateTenant
		}
		return fmt.Errorf("inserting tenant: %w", err)
	}

	s.logger.Info("created tenant", "id", t.ID, "email", t.Email, "tier", t.Tier)
	return nil
}

// GetTenantByKey retrieves a tenant by its public lookup key
func (s *SQLiteStore) GetTenantByKey(ctx context.Context, lookupKey string) (*Tenant, error) {
	query := `SELECT ` + tenantColumns + ` FROM tenants WHERE lookup_key = ?`
	return s.scanTenant(s.db.QueryRowContext(ctx, query, lookupKey))
}

// GetTenantsByEmail retrieves all tenants registered under an email address
func (s *SQLiteStore) GetTenantsByEmail(ctx context.Context, email string) ([]*Tenant, error) {
	query := `SELECT ` + tenantColumns + ` FROM tenants WHERE email = ? ORDER BY created_at ASC`

	rows, err := s.db.QueryContext(ctx, query, email)
	if err != nil {
		return nil, fmt.Errorf("querying tenants by email: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var tenants []*Tenant
	for rows.Next() {
		t, err := s.scanTenantRow(rows)
		if err != nil {
			return nil, err
		}
		tenants = append(tenants, t)
	}
	return tenants, rows.Err()
}

// GetTenantByPaymentSession retrieves a tenant by the payment session that provisioned it
func (s *SQLiteStore) GetTenantByPaymentSession(ctx context.Context, sessionID string) (*Tenant, error) {
	query := `SELECT ` + tenantColumns + ` FROM tenants WHERE payment_session_id = ?`
	return s.scanTenant(s.db.QueryRowContext(ctx, query, sessionID))
}

// ListTenants retrieves tenants ordered by creation time, newest first
func (s *SQLiteStore) ListTenants(ctx context.Context, limit, offset int) ([]*Tenant, error) {
	if limit <= 0 {
		limit = 50
	}

	query := `SELECT ` + tenantColumns + ` FROM tenants ORDER BY created_at DESC LIMIT ? OFFSET ?`

	rows, err := s.db.QueryContext(ctx, query, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("querying tenants: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var tenants []*Tenant
	for rows.Next() {
		t, err := s.scanTenantRow(rows)
		if err != nil {
			return nil, err
		}
		tenants = append(tenants, t)
	}
	return tenants, rows.Err()
}

// SetCredential stores an encrypted credential and activates the tenant.
// Returns the updated tenant.
func (s *SQLiteStore) SetCredential(ctx context.Context, lookupKey, encryptedCredential, upstreamBaseURL string) (*Tenant, error) {
	query := `
		UPDATE tenants
		SET encrypted_credential = ?, upstream_base_url = ?, status = ?, updated_at = ?
		WHERE lookup_key = ?
	`

	result, err := s.db.ExecContext(ctx, query,
		encryptedCredential,
		upstreamBaseURL,
		StatusActive,
		time.Now().UTC().Format(time.RFC3339),
		lookupKey,
	)
	if err != nil {
		return nil, fmt.Errorf("updating credential: %w", err)
	}
	if n, _ := result.RowsAffected(); n == 0 {
		return nil, ErrNotFound
	}

	s.logger.Info("stored tenant credential", "lookup_key", lookupKey)
	return s.GetTenantByKey(ctx, lookupKey)
}

// SetTier updates the tier and quota ceiling for every tenant under an email
func (s *SQLiteStore) SetTier(ctx context.Context, email, tier string, ceiling int) error {
	query := `UPDATE tenants SET tier = ?, quota_ceiling = ?, updated_at = ? WHERE email = ?`

	result, err := s.db.ExecContext(ctx, query, tier, ceiling, time.Now().UTC().Format(time.RFC3339), email)
	if err != nil {
		return fmt.Errorf("updating tier: %w", err)
	}
	if n, _ := result.RowsAffected(); n == 0 {
		return ErrNotFound
	}

	s.logger.Info("updated tenant tier", "email", email, "tier", tier, "ceiling", ceiling)
	return nil
}

// SetStatus updates a tenant's subscription status
func (s *SQLiteStore) SetStatus(ctx context.Context, lookupKey, status string) error {
	query := `UPDATE tenants SET status = ?, updated_at = ? WHERE lookup_key = ?`

	result, err := s.db.ExecContext(ctx, query, status, time.Now().UTC().Format(time.RFC3339), lookupKey)
	if err != nil {
		return fmt.Errorf("updating status: %w", err)
	}
	if n, _ := result.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

// SetPasswordHash stores a dashboard password hash for every tenant under an email
func (s *SQLiteStore) SetPasswordHash(ctx context.Context, email, passwordHash string) error {
	query := `UPDATE tenants SET password_hash = ?, updated_at = ? WHERE email = ?`

	result, err := s.db.ExecContext(ctx, query, passwordHash, time.Now().UTC().Format(time.RFC3339), email)
	if err != nil {
		return fmt.Errorf("updating password hash: %w", err)
	}
	if n, _ := result.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

// SetOnboardingComplete marks onboarding finished for every tenant under an email
func (s *SQLiteStore) SetOnboardingComplete(ctx context.Context, email string) error {
	query := `UPDATE tenants SET onboarding_complete = 1, updated_at = ? WHERE email = ?`

	result, err := s.db.ExecContext(ctx, query, time.Now().UTC().Format(time.RFC3339), email)
	if err != nil {
		return fmt.Errorf("updating onboarding flag: %w", err)
	}
	if n, _ := result.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

// rowScanner covers both *sql.Row and *sql.Rows
type rowScanner interface {
	Scan(dest ...any) error
}

func (s *SQLiteStore) scanTenant(row *sql.Row) (*Tenant, error) {
	t, err := s.scanTenantRow(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	return t, err
}

func (s *SQLiteStore) scanTenantRow(row rowScanner) (*Tenant, error) {
	var t Tenant
	var credential, paymentCustomer, paymentSession, passwordHash sql.NullString
	var createdAt, updatedAt string

	err := row.Scan(
		&t.ID,
		&t.Name,
		&t.Email,
		&t.LookupKey,
		&credential,
		&t.UpstreamBaseURL,
		&t.Status,
		&t.Tier,
		&t.QuotaCeiling,
		&t.OnboardingComplete,
		&paymentCustomer,
		&paymentSession,
		&passwordHash,
		&createdAt,
		&updatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("scanning tenant: %w", err)
	}

	t.EncryptedCredential = credential.String
	t.PaymentCustomerID = paymentCustomer.String
	t.PaymentSessionID = paymentSession.String
	t.PasswordHash = passwordHash.String

	if t.CreatedAt, err = time.Parse(time.RFC3339, createdAt); err != nil {
		return nil, fmt.Errorf("parsing created_at: %w", err)
	}
	if t.UpdatedAt, err = time.Parse(time.RFC3339, updatedAt); err != nil {
		return nil, fmt.Errorf("parsing updated_at: %w", err)
	}

	return &t, nil
}
