package repository

import (
	"context"
	"encoding/json"
	"fmt"
	"time"
)

// PostgresActivityRepository implements ActivityRepository over PostgreSQL.
// The table is append-only; there is no update path.
type PostgresActivityRepository struct {
	db DBTX
}

func NewPostgresActivityRepository(db DBTX) *PostgresActivityRepository {
	return &PostgresActivityRepository{db: db}
}

func (r *PostgresActivityRepository) Insert(ctx context.Context, entry *ActivityEntry) error {
	details, err := json.Marshal(entry.Details)
	if err != nil {
		return fmt.Errorf("failed to encode details: %w", err)
	}

	query := `
		INSERT INTO activity_log (id, user_id, action, category, result, level, details, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`

	_, err = r.db.ExecContext(ctx, query,
		entry.ID, entry.UserID, entry.Action, entry.Category,
		entry.Result, entry.Level, details, entry.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to insert activity entry: %w", err)
	}

	return nil
}

func (r *PostgresActivityRepository) ListByUser(ctx context.Context, userID string, limit int) ([]*ActivityEntry, error) {
	query := `
		SELECT id, user_id, action, category, result, level, details, created_at
		FROM activity_log
		WHERE user_id = $1
		ORDER BY created_at DESC
		LIMIT $2
	`

	rows, err := r.db.QueryContext(ctx, query, userID, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list activity: %w", err)
	}
	defer rows.Close()

	entries := make([]*ActivityEntry, 0)
	for rows.Next() {
		entry := &ActivityEntry{}
		var details []byte
		err := rows.Scan(
			&entry.ID, &entry.UserID, &entry.Action, &entry.Category,
			&entry.Result, &entry.Level, &details, &entry.CreatedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan activity entry: %w", err)
		}
		if len(details) > 0 {
			if err := json.Unmarshal(details, &entry.Details); err != nil {
				return nil, fmt.Errorf("failed to decode details: %w", err)
			}
		}
		entries = append(entries, entry)
	}

	return entries, rows.Err()
}

func (r *PostgresActivityRepository) DeleteOlderThan(ctx context.Context, cutoff time.Time) (int64, error) {
	res, err := r.db.ExecContext(ctx, `DELETE FROM activity_log WHERE created_at < $1`, cutoff)
	if err != nil {
		return 0, fmt.Errorf("failed to purge activity log: %w", err)
	}

	n, _ := res.RowsAffected()
	return n, nil
}
