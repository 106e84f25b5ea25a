package db

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// ErrStorage marks history store failures. A tick that hits one is skipped;
// the process keeps running.
var ErrStorage = errors.New("history store error")

// Status is the recorded outcome of a post attempt.
type Status string

const (
	StatusSuccess Status = "success"
	StatusFailed  Status = "failed"
)

// Entry is one immutable row of the post history.
type Entry struct {
	ID             string
	BookID         string
	Title          string
	Status         Status
	ErrorKind      string
	AttemptCount   int
	Terminal       bool
	PlatformPostID string
	PostedAt       time.Time
}

// AppendEntry writes one history entry. Entries are never mutated afterwards.
// The unique partial index on (book_id, status='success') rejects a second
// success for the same book.
func (s *Store) AppendEntry(ctx context.Context, e Entry) error {
	if e.ID == "" {
		e.ID = uuid.NewString()
	}
	if e.PostedAt.IsZero() {
		e.PostedAt = time.Now().UTC()
	}
	if e.AttemptCount < 1 {
		e.AttemptCount = 1
	}

	_, err := s.ExecContext(ctx, `
		INSERT INTO post_history
			(id, book_id, title, status, error_kind, attempt_count, terminal, platform_post_id, posted_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		e.ID, e.BookID, e.Title, string(e.Status),
		nullable(e.ErrorKind), e.AttemptCount, boolToInt(e.Terminal),
		nullable(e.PlatformPostID), e.PostedAt,
	)
	if err != nil {
		return fmt.Errorf("%w: append entry for %q: %v", ErrStorage, e.BookID, err)
	}
	return nil
}

// HasSucceeded reports whether a successful post exists for bookID.
func (s *Store) HasSucceeded(ctx context.Context, bookID string) (bool, error) {
	var n int
	err := s.QueryRowContext(ctx,
		"SELECT COUNT(*) FROM post_history WHERE book_id = ? AND status = 'success'",
		bookID).Scan(&n)
	if err != nil {
		return false, fmt.Errorf("%w: has succeeded: %v", ErrStorage, err)
	}
	return n > 0, nil
}

// ExcludedIDs returns the set of book ids no longer eligible for automatic
// posting: those already posted successfully and those with a terminal
// failure awaiting operator review.
func (s *Store) ExcludedIDs(ctx context.Context) (map[string]bool, error) {
	rows, err := s.QueryContext(ctx,
		"SELECT DISTINCT book_id FROM post_history WHERE status = 'success' OR terminal = 1")
	if err != nil {
		return nil, fmt.Errorf("%w: excluded ids: %v", ErrStorage, err)
	}
	defer rows.Close()

	excluded := make(map[string]bool)
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("%w: scan excluded id: %v", ErrStorage, err)
		}
		excluded[id] = true
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%w: iterate excluded ids: %v", ErrStorage, err)
	}
	return excluded, nil
}

// FailedAttempts counts the failed attempts recorded for bookID.
func (s *Store) FailedAttempts(ctx context.Context, bookID string) (int, error) {
	var n int
	err := s.QueryRowContext(ctx,
		"SELECT COUNT(*) FROM post_history WHERE book_id = ? AND status = 'failed'",
		bookID).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("%w: failed attempts: %v", ErrStorage, err)
	}
	return n, nil
}

// CountByStatus returns the number of entries with the given status.
func (s *Store) CountByStatus(ctx context.Context, status Status) (int64, error) {
	var n int64
	err := s.QueryRowContext(ctx,
		"SELECT COUNT(*) FROM post_history WHERE status = ?", string(status)).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("%w: count by status: %v", ErrStorage, err)
	}
	return n, nil
}

// RecentEntries returns the newest entries, most recent first.
func (s *Store) RecentEntries(ctx context.Context, limit int) ([]Entry, error) {
	rows, err := s.QueryContext(ctx, `
		SELECT id, book_id, title, status, error_kind, attempt_count, terminal, platform_post_id, posted_at
		FROM post_history ORDER BY posted_at DESC, id LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("%w: recent entries: %v", ErrStorage, err)
	}
	defer rows.Close()
	return scanEntries(rows)
}

// TerminalEntries returns failed entries excluded from automatic retry,
// flagged for manual review.
func (s *Store) TerminalEntries(ctx context.Context) ([]Entry, error) {
	rows, err := s.QueryContext(ctx, `
		SELECT id, book_id, title, status, error_kind, attempt_count, terminal, platform_post_id, posted_at
		FROM post_history WHERE terminal = 1 ORDER BY posted_at DESC, id`)
	if err != nil {
		return nil, fmt.Errorf("%w: terminal entries: %v", ErrStorage, err)
	}
	defer rows.Close()
	return scanEntries(rows)
}

func scanEntries(rows *sql.Rows) ([]Entry, error) {
	var entries []Entry
	for rows.Next() {
		var (
			e          Entry
			status     string
			errKind    sql.NullString
			terminal   int
			platformID sql.NullString
		)
		if err := rows.Scan(&e.ID, &e.BookID, &e.Title, &status, &errKind,
			&e.AttemptCount, &terminal, &platformID, &e.PostedAt); err != nil {
			return nil, fmt.Errorf("%w: scan entry: %v", ErrStorage, err)
		}
		e.Status = Status(status)
		e.ErrorKind = errKind.String
		e.Terminal = terminal != 0
		e.PlatformPostID = platformID.String
		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%w: iterate entries: %v", ErrStorage, err)
	}
	return entries, nil
}

func nullable(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
