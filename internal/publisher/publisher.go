package publisher

import (
	"context"
	"fmt"
	"time"
)

// ErrorKind classifies a failed publish attempt.
type ErrorKind string

const (
	KindAuthExpired       ErrorKind = "auth_expired"
	KindRateLimited       ErrorKind = "rate_limited"
	KindTransientNetwork  ErrorKind = "transient_network"
	KindPermanentRejected ErrorKind = "permanent_rejected"
	KindUnknown           ErrorKind = "unknown"
)

// Retryable reports whether attempts of this kind may be retried
// automatically. Permanently rejected posts need operator intervention.
func (k ErrorKind) Retryable() bool {
	return k != KindPermanentRejected
}

// PublishError is a classified publish failure.
type PublishError struct {
	Kind       ErrorKind
	StatusCode int
	Message    string
	// RetryAfter is the platform-advertised minimum wait, if any.
	RetryAfter time.Duration
}

// Error implements the error interface.
func (e *PublishError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("publish failed (%s, status %d): %s", e.Kind, e.StatusCode, e.Message)
	}
	return fmt.Sprintf("publish failed (%s): %s", e.Kind, e.Message)
}

// Outcome is the result of a successful publish.
type Outcome struct {
	PostID  string
	PostURL string
}

// Publisher is the interface for publishing an image post to a platform.
type Publisher interface {
	// Platform returns the name of the platform.
	Platform() string

	// Publish uploads the image with the given caption.
	Publish(ctx context.Context, image []byte, caption string) (*Outcome, error)

	// ValidateCredentials checks if the credentials are valid.
	ValidateCredentials(ctx context.Context) error
}
