package notify

import (
	"context"
	"log/slog"
)

// LogNotifier writes notifications to the structured log at warning level,
// so terminal failures stand out from routine attempt logging.
type LogNotifier struct {
	target string
}

// NewLogNotifier creates a log-backed notifier. target names the operator
// or channel the message is meant for and is carried as a log field.
func NewLogNotifier(target string) *LogNotifier {
	return &LogNotifier{target: target}
}

// Send logs the notification.
func (n *LogNotifier) Send(ctx context.Context, notification Notification) error {
	slog.Warn("operator notification",
		"to", n.target,
		"subject", notification.Subject,
		"body", notification.Body,
	)
	return nil
}
