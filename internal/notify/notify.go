// ABOUTME: Outbound notification contract for billing events
// ABOUTME: Log-only implementation; message content is deliberately out of scope

package notify

import (
	"context"
	"log/slog"
)

// Notifier delivers tenant-facing notifications triggered by billing events.
// Implementations decide the channel; callers only name the event.
type Notifier interface {
	WelcomeEmail(ctx context.Context, email, name, lookupKey string) error
	UpgradeConfirmation(ctx context.Context, email, tier string) error
}

// LogNotifier writes notification events to the log instead of sending
// anything. Used until a real delivery channel is wired in.
type LogNotifier struct {
	logger *slog.Logger
}

var _ Notifier = (*LogNotifier)(nil)

func NewLogNotifier() *LogNotifier {
	return &LogNotifier{logger: slog.Default().With("component", "notify")}
}

func (n *LogNotifier) WelcomeEmail(_ context.Context, email, name, lookupKey string) error {
	n.logger.Info("welcome notification", "email", email, "name", name, "lookup_key", lookupKey)
	return nil
}

func (n *LogNotifier) UpgradeConfirmation(_ context.Context, email, tier string) error {
	n.logger.Info("upgrade notification", "email", email, "tier", tier)
	return nil
}
