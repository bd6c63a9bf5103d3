package service

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/devtoolkit/auth-service/internal/repository"
)

// ActivityLogger appends security-relevant events to the activity log.
// Logging is fire-and-forget: a failed append is reported to the server log
// and never fails the caller's operation.
type ActivityLogger struct {
	repo repository.ActivityRepository
	log  zerolog.Logger
}

func NewActivityLogger(repo repository.ActivityRepository, log zerolog.Logger) *ActivityLogger {
	return &ActivityLogger{repo: repo, log: log}
}

// Log records an event. The result tag drives the severity level: success
// maps to info, failure to error, anything else to warn.
func (a *ActivityLogger) Log(ctx context.Context, userID, action string, category repository.ActivityCategory, details map[string]string, result repository.ActivityResult) {
	entry := &repository.ActivityEntry{
		ID:        uuid.New().String(),
		UserID:    userID,
		Action:    action,
		Category:  category,
		Result:    result,
		Level:     levelFor(result),
		Details:   details,
		CreatedAt: time.Now(),
	}

	if err := a.repo.Insert(ctx, entry); err != nil {
		a.log.Error().Err(err).
			Str("user_id", userID).
			Str("action", action).
			Msg("Failed to append activity entry")
	}
}

// ListByUser returns the most recent entries for a user.
func (a *ActivityLogger) ListByUser(ctx context.Context, userID string, limit int) ([]*repository.ActivityEntry, error) {
	if limit <= 0 || limit > 500 {
		limit = 100
	}
	return a.repo.ListByUser(ctx, userID, limit)
}

// PurgeOlderThan removes entries past their retention window. TTL cleanup is
// the only path that ever deletes activity entries.
func (a *ActivityLogger) PurgeOlderThan(ctx context.Context, cutoff time.Time) (int64, error) {
	n, err := a.repo.DeleteOlderThan(ctx, cutoff)
	if err != nil {
		return 0, err
	}

	if n > 0 {
		a.log.Info().Int64("removed", n).Time("cutoff", cutoff).Msg("Purged activity log")
	}
	return n, nil
}

func levelFor(result repository.ActivityResult) string {
	switch result {
	case repository.ResultSuccess:
		return "info"
	case repository.ResultFailure:
		return "error"
	default:
		return "warn"
	}
}
