package notify

import "context"

// Notification represents an operator notification.
type Notification struct {
	Subject string
	Body    string
}

// Notifier is the interface for flagging events that need manual review.
type Notifier interface {
	// Send sends a notification.
	Send(ctx context.Context, notification Notification) error
}
