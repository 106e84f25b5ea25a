package scheduler

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/ayakin/bookposter/internal/backoff"
	"github.com/ayakin/bookposter/internal/books"
	"github.com/ayakin/bookposter/internal/config"
	"github.com/ayakin/bookposter/internal/cover"
	"github.com/ayakin/bookposter/internal/db"
	"github.com/ayakin/bookposter/internal/notify"
	"github.com/ayakin/bookposter/internal/publisher"
)

// cycleTimeout bounds one full tick, covering cover downloads and the
// publish call.
const cycleTimeout = 5 * time.Minute

// History is the slice of the post history the scheduler needs.
type History interface {
	ExcludedIDs(ctx context.Context) (map[string]bool, error)
	FailedAttempts(ctx context.Context, bookID string) (int, error)
	AppendEntry(ctx context.Context, entry db.Entry) error
}

// Scheduler drives the periodic posting loop: pick a candidate, render its
// cover, publish, record the outcome. One cycle is ever in flight; ticks
// that fire while a cycle runs are dropped.
type Scheduler struct {
	cfg      *config.Config
	history  History
	source   books.Source
	renderer cover.Renderer
	pub      publisher.Publisher
	policy   *backoff.Policy
	notifier notify.Notifier
	health   *Health

	now func() time.Time
}

// Config holds scheduler configuration.
type Config struct {
	Cfg       *config.Config
	History   History
	Source    books.Source
	Renderer  cover.Renderer
	Publisher publisher.Publisher
	Notifier  notify.Notifier
}

// New creates a new scheduler.
func New(cfg Config) *Scheduler {
	notifier := cfg.Notifier
	if notifier == nil {
		notifier = notify.NewLogNotifier(cfg.Cfg.NotifyTarget)
	}
	return &Scheduler{
		cfg:      cfg.Cfg,
		history:  cfg.History,
		source:   cfg.Source,
		renderer: cfg.Renderer,
		pub:      cfg.Publisher,
		policy:   backoff.New(cfg.Cfg.BackoffBase, cfg.Cfg.BackoffMax),
		notifier: notifier,
		health:   NewHealth(),
		now:      time.Now,
	}
}

// Run starts the scheduler main loop. It returns when ctx is cancelled; an
// in-flight cycle always finishes recording its outcome first.
func (s *Scheduler) Run(ctx context.Context) error {
	slog.Info("starting scheduler",
		"post_interval", s.cfg.PostInterval,
		"post_at", s.cfg.PostAt,
		"max_attempts", s.cfg.MaxAttempts,
	)

	// Validate credentials on startup
	if err := s.pub.ValidateCredentials(ctx); err != nil {
		s.health.SetUnhealthy("publisher", err)
		slog.Error("failed to validate publisher credentials", "error", err)
	} else {
		s.health.SetHealthy("publisher", "authenticated")
	}

	if s.cfg.PostAt != "" {
		return s.runFixedTime(ctx)
	}
	return s.runInterval(ctx)
}

// runInterval ticks every PostInterval.
func (s *Scheduler) runInterval(ctx context.Context) error {
	ticker := time.NewTicker(s.cfg.PostInterval)
	defer ticker.Stop()

	var deferred <-chan time.Time
	for {
		select {
		case <-ctx.Done():
			slog.Info("scheduler shutting down")
			return ctx.Err()
		case <-ticker.C:
		case <-deferred:
		}
		deferred = nil

		if wait := s.runCycle(ctx); wait > 0 {
			deferred = time.After(wait)
		}

		// A tick that fired while the cycle ran is coalesced, not queued
		select {
		case <-ticker.C:
		default:
		}
	}
}

// runFixedTime ticks once a day at the configured time.
func (s *Scheduler) runFixedTime(ctx context.Context) error {
	at, err := time.Parse("15:04", s.cfg.PostAt)
	if err != nil {
		return fmt.Errorf("parse POST_AT: %w", err)
	}
	sched, err := cron.ParseStandard(fmt.Sprintf("%d %d * * *", at.Minute(), at.Hour()))
	if err != nil {
		return fmt.Errorf("build cron schedule: %w", err)
	}

	var deferred <-chan time.Time
	for {
		timer := time.NewTimer(sched.Next(s.now()).Sub(s.now()))

		select {
		case <-ctx.Done():
			timer.Stop()
			slog.Info("scheduler shutting down")
			return ctx.Err()
		case <-timer.C:
		case <-deferred:
			timer.Stop()
		}
		deferred = nil

		if wait := s.runCycle(ctx); wait > 0 {
			deferred = time.After(wait)
		}
	}
}

// runCycle executes one tick: SELECTING then PUBLISHING. It returns a
// non-zero duration when the attempt was deferred by the backoff gate, so
// the loop can retry before the next regular tick.
func (s *Scheduler) runCycle(ctx context.Context) time.Duration {
	// Cancellation is honored between cycles, never mid-cycle: a stop
	// signal must not leave a half-recorded attempt behind.
	cctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), cycleTimeout)
	defer cancel()

	excluded, err := s.history.ExcludedIDs(cctx)
	if err != nil {
		s.health.SetUnhealthy("history", err)
		slog.Error("skipping tick: history unavailable", "error", err)
		return 0
	}

	book, err := s.source.NextUnposted(cctx, excluded)
	if errors.Is(err, books.ErrNoCandidate) {
		slog.Info("nothing to post")
		return 0
	}
	if err != nil {
		s.health.SetUnhealthy("source", err)
		slog.Error("skipping tick: candidate selection failed", "error", err)
		return 0
	}

	now := s.now()
	if !s.policy.MayAttempt(now) {
		wait := s.policy.NextAllowedAt().Sub(now)
		slog.Info("backoff window open, deferring attempt",
			"book_id", book.ID, "retry_in", wait)
		return wait
	}

	failed, err := s.history.FailedAttempts(cctx, book.ID)
	if err != nil {
		s.health.SetUnhealthy("history", err)
		slog.Error("skipping tick: attempt count unavailable", "error", err)
		return 0
	}
	attempt := failed + 1

	image, err := s.renderer.Render(cctx, book)
	if err != nil {
		// Render failures count as transient toward the attempt budget
		s.recordFailure(cctx, book, attempt, publisher.KindTransientNetwork, 0, err)
		return 0
	}

	outcome, err := s.pub.Publish(cctx, image, publisher.FormatCaption(book))
	if err != nil {
		kind, retryAfter := classify(err)
		s.recordFailure(cctx, book, attempt, kind, retryAfter, err)
		return 0
	}

	s.policy.OnSuccess(s.now())
	entry := db.Entry{
		BookID:         book.ID,
		Title:          book.Title,
		Status:         db.StatusSuccess,
		AttemptCount:   attempt,
		PlatformPostID: outcome.PostID,
	}
	if err := s.history.AppendEntry(cctx, entry); err != nil {
		s.health.SetUnhealthy("history", err)
		slog.Error("posted but failed to record entry", "book_id", book.ID, "error", err)
		return 0
	}

	s.health.SetHealthy("publish", "posted successfully")
	s.health.SetHealthy("history", "entry recorded")
	slog.Info("posted book",
		"book_id", book.ID,
		"title", book.Title,
		"post_url", outcome.PostURL,
		"attempt", attempt,
	)
	return 0
}

// recordFailure updates the backoff policy, appends the FAILED entry, and
// flags terminal failures for manual review.
func (s *Scheduler) recordFailure(ctx context.Context, book *books.Book, attempt int, kind publisher.ErrorKind, retryAfter time.Duration, cause error) {
	s.health.SetUnhealthy("publish", cause)

	terminal := !kind.Retryable() || attempt >= s.cfg.MaxAttempts
	if kind.Retryable() {
		s.policy.OnFailure(s.now(), kind, retryAfter)
	}

	entry := db.Entry{
		BookID:       book.ID,
		Title:        book.Title,
		Status:       db.StatusFailed,
		ErrorKind:    string(kind),
		AttemptCount: attempt,
		Terminal:     terminal,
	}
	if err := s.history.AppendEntry(ctx, entry); err != nil {
		s.health.SetUnhealthy("history", err)
		slog.Error("failed to record failed attempt", "book_id", book.ID, "error", err)
	}

	if terminal {
		slog.Error("terminal failure, book excluded from automatic posting",
			"book_id", book.ID,
			"error_kind", kind,
			"attempts", attempt,
			"error", cause,
		)
		notification := notify.Notification{
			Subject: "book post needs manual review",
			Body: fmt.Sprintf("%s (%s) failed terminally after %d attempt(s): %s",
				book.Title, book.ID, attempt, kind),
		}
		if err := s.notifier.Send(ctx, notification); err != nil {
			slog.Warn("failed to send operator notification", "error", err)
		}
		return
	}

	slog.Warn("post attempt failed",
		"book_id", book.ID,
		"error_kind", kind,
		"attempt", attempt,
		"next_retry", s.policy.NextAllowedAt(),
		"error", cause,
	)
}

// Health returns the health tracker.
func (s *Scheduler) Health() *Health {
	return s.health
}

// classify extracts the error kind and retry-after hint from a publish error.
func classify(err error) (publisher.ErrorKind, time.Duration) {
	var pubErr *publisher.PublishError
	if errors.As(err, &pubErr) {
		return pubErr.Kind, pubErr.RetryAfter
	}
	return publisher.KindUnknown, 0
}
