// ABOUTME: In-memory Store implementation for tests
// ABOUTME: Mirrors SQLite semantics without touching disk

package store

import (
	"context"
	"sync"
	"time"
)

// MockStore is an in-memory Store for tests
type MockStore struct {
	mu      sync.Mutex
	tenants map[string]*Tenant // keyed by lookup key
	events  []*UsageEvent

	// FailUsage makes RecordUsageEvent return an error, for testing
	// fire-and-forget behavior
	FailUsage error
}

var _ Store = (*MockStore)(nil)

// NewMockStore creates an empty in-memory store
func NewMockStore() *MockStore {
	return &MockStore{tenants: make(map[string]*Tenant)}
}

func (m *MockStore) CreateTenant(_ context.Context, t *Tenant) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	for _, existing := range m.tenants {
		if existing.Email == t.Email {
			return ErrDuplicateTenant
		}
	}

	if t.Status == "" {
		t.Status = StatusPending
	}
	if t.Tier == "" {
		t.Tier = TierFree
	}
	if t.QuotaCeiling == 0 {
		t.QuotaCeiling = TierCeiling(t.Tier)
	}
	now := time.Now().UTC()
	if t.CreatedAt.IsZero() {
		t.CreatedAt = now
	}
	t.UpdatedAt = now

	cp := *t
	m.tenants[t.LookupKey] = &cp
	return nil
}

func (m *MockStore) GetTenantByKey(_ context.Context, lookupKey string) (*Tenant, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	t, ok := m.tenants[lookupKey]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *t
	return &cp, nil
}

func (m *MockStore) GetTenantsByEmail(_ context.Context, email string) ([]*Tenant, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var out []*Tenant
	for _, t := range m.tenants {
		if t.Email == email {
			cp := *t
			out = append(out, &cp)
		}
	}
	return out, nil
}

func (m *MockStore) GetTenantByPaymentSession(_ context.Context, sessionID string) (*Tenant, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	for _, t := range m.tenants {
		if t.PaymentSessionID == sessionID {
			cp := *t
			return &cp, nil
		}
	}
	return nil, ErrNotFound
}

func (m *MockStore) ListTenants(_ context.Context, limit, offset int) ([]*Tenant, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var out []*Tenant
	for _, t := range m.tenants {
		cp := *t
		out = append(out, &cp)
	}
	if offset > len(out) {
		offset = len(out)
	}
	out = out[offset:]
	if limit > 0 && limit < len(out) {
		out = out[:limit]
	}
	return out, nil
}

func (m *MockStore) SetCredential(_ context.Context, lookupKey, encryptedCredential, upstreamBaseURL string) (*Tenant, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	t, ok := m.tenants[lookupKey]
	if !ok {
		return nil, ErrNotFound
	}
	t.EncryptedCredential = encryptedCredential
	t.UpstreamBaseURL = upstreamBaseURL
	t.Status = StatusActive
	t.UpdatedAt = time.Now().UTC()
	cp := *t
	return &cp, nil
}

func (m *MockStore) SetTier(_ context.Context, email, tier string, ceiling int) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	found := false
	for _, t := range m.tenants {
		if t.Email == email {
			t.Tier = tier
			t.QuotaCeiling = ceiling
			found = true
		}
	}
	if !found {
		return ErrNotFound
	}
	return nil
}

func (m *MockStore) SetStatus(_ context.Context, lookupKey, status string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	t, ok := m.tenants[lookupKey]
	if !ok {
		return ErrNotFound
	}
	t.Status = status
	return nil
}

func (m *MockStore) SetPasswordHash(_ context.Context, email, passwordHash string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	found := false
	for _, t := range m.tenants {
		if t.Email == email {
			t.PasswordHash = passwordHash
			found = true
		}
	}
	if !found {
		return ErrNotFound
	}
	return nil
}

func (m *MockStore) SetOnboardingComplete(_ context.Context, email string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	found := false
	for _, t := range m.tenants {
		if t.Email == email {
			t.OnboardingComplete = true
			found = true
		}
	}
	if !found {
		return ErrNotFound
	}
	return nil
}

func (m *MockStore) RecordUsageEvent(_ context.Context, event *UsageEvent) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.FailUsage != nil {
		return m.FailUsage
	}
	if event.CreatedAt.IsZero() {
		event.CreatedAt = time.Now().UTC()
	}
	cp := *event
	m.events = append(m.events, &cp)
	return nil
}

func (m *MockStore) CountUsageEvents(_ context.Context, tenantID string, since time.Time) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	count := 0
	for _, e := range m.events {
		if e.TenantID == tenantID && !e.CreatedAt.Before(since) {
			count++
		}
	}
	return count, nil
}

// UsageEvents returns a copy of the recorded events, for assertions
func (m *MockStore) UsageEvents() []*UsageEvent {
	m.mu.Lock()
	defer m.mu.Unlock()

	out := make([]*UsageEvent, len(m.events))
	copy(out, m.events)
	return out
}

func (m *MockStore) Close() error { return nil }
