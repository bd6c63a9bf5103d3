// Package repository defines the persistence contracts for users, sessions,
// the activity log and suggestions, and their PostgreSQL implementations.
//
// Counter mutations (failed logins, usage counters, the daily rollover) are
// expressed as single conditional UPDATE statements so concurrent requests
// against the same user cannot lose updates.
package repository

import (
	"context"
	"database/sql"
	"errors"
	"time"
)

// ErrNotFound is returned when a lookup matches no row, including conditional
// single-use token consumption that finds no live token.
var ErrNotFound = errors.New("not found")

// ErrDuplicateEmail is returned when a create collides with the unique email
// constraint.
var ErrDuplicateEmail = errors.New("email already registered")

// DBTX is the subset of database/sql used by the repositories. Both *sql.DB
// and *sql.Tx satisfy it.
type DBTX interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// UserRepository persists user records.
type UserRepository interface {
	Create(ctx context.Context, user *User) error
	GetByID(ctx context.Context, id string) (*User, error)
	GetByEmail(ctx context.Context, email string) (*User, error)
	List(ctx context.Context, limit, offset int) ([]*User, int64, error)

	// RecordFailedLogin atomically increments the failed-attempt counter and,
	// when the new count reaches threshold, sets the lockout deadline. It
	// returns the post-increment count.
	RecordFailedLogin(ctx context.Context, id string, threshold int, lockedUntil time.Time) (int, error)
	// RecordLogin clears the failed-attempt counter and lockout and stamps
	// last_login/last_activity.
	RecordLogin(ctx context.Context, id string) error

	SetVerificationToken(ctx context.Context, id, tok string, expiresAt time.Time) error
	// ConsumeVerificationToken marks the matching user verified and clears the
	// token fields in one statement. ErrNotFound when no unexpired token
	// matches, including tokens already consumed.
	ConsumeVerificationToken(ctx context.Context, tok string) (*User, error)

	SetResetToken(ctx context.Context, id, tok string, expiresAt time.Time) error
	// ConsumeResetToken replaces the password hash and clears the reset token
	// fields in one statement; single-use by construction.
	ConsumeResetToken(ctx context.Context, tok, newHash string) (*User, error)

	// RollUsageWindow performs the lazy quota rollover: it zeroes daily_count
	// (and monthly_count on a month boundary) only when last_reset_date is
	// before today, making repeated calls on the same day no-ops. The
	// post-rollover record is returned.
	RollUsageWindow(ctx context.Context, id string) (*User, error)
	// IncrementUsage adds one to the daily, monthly and total counters and
	// stamps last_usage_date/last_activity.
	IncrementUsage(ctx context.Context, id string) error

	UpdateProfile(ctx context.Context, id string, patch ProfilePatch) error
	SetSuspended(ctx context.Context, id string, suspended bool, reason *string) error
	SetQuota(ctx context.Context, id string, daily, monthly int) error
	SetRole(ctx context.Context, id string, role Role) error
}

// SessionRepository persists device-session audit records.
type SessionRepository interface {
	Create(ctx context.Context, session *Session) error
	GetByID(ctx context.Context, id string) (*Session, error)
	ListByUser(ctx context.Context, userID string) ([]*Session, error)
	Deactivate(ctx context.Context, id string) error
	DeactivateAllForUser(ctx context.Context, userID string) error
	DeleteExpired(ctx context.Context) (int64, error)
}

// ActivityRepository is the append-only activity log.
type ActivityRepository interface {
	Insert(ctx context.Context, entry *ActivityEntry) error
	ListByUser(ctx context.Context, userID string, limit int) ([]*ActivityEntry, error)
	DeleteOlderThan(ctx context.Context, cutoff time.Time) (int64, error)
}

// SuggestionRepository persists user feedback.
type SuggestionRepository interface {
	Create(ctx context.Context, s *Suggestion) error
	GetByID(ctx context.Context, id string) (*Suggestion, error)
	List(ctx context.Context, status *SuggestionStatus, limit, offset int) ([]*Suggestion, error)
	UpdateStatus(ctx context.Context, id string, status SuggestionStatus) error
	SetResponse(ctx context.Context, id, response string) error
}
