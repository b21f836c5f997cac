// ABOUTME: SQLite implementation for the usage audit log
// ABOUTME: Records tool invocations per tenant for metering and analytics

package store

import (
	"context"
	"fmt"
	"time"
)

// RecordUsageEvent stores one audited tool invocation. Callers treat failures
// as fire-and-forget: a lost audit row must never block a tool response.
func (s *SQLiteStore) RecordUsageEvent(ctx context.Context, event *UsageEvent) error {
	if event.CreatedAt.IsZero() {
		event.CreatedAt = time.Now().UTC()
	}

	query := `INSERT INTO usage_events (id, tenant_id, tool_name, created_at) VALUES (?, ?, ?, ?)`

	_, err := s.db.ExecContext(ctx, query,
		event.ID,
		event.TenantID,
		event.ToolName,
		event.CreatedAt.Format(time.RFC3339),
	)
	if err != nil {
		return fmt.Errorf("inserting usage event: %w", err)
	}

	s.logger.Debug("recorded usage event",
		"tenant_id", event.TenantID,
		"tool", event.ToolName,
	)
	return nil
}

// CountUsageEvents returns the number of usage events for a tenant since the
// given time
func (s *SQLiteStore) CountUsageEvents(ctx context.Context, tenantID string, since time.Time) (int, error) {
	query := `SELECT COUNT(*) FROM usage_events WHERE tenant_id = ? AND created_at >= ?`

	var count int
	err := s.db.QueryRowContext(ctx, query, tenantID, since.UTC().Format(time.RFC3339)).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("counting usage events: %w", err)
	}
	return count, nil
}
