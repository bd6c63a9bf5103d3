package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
)

const suggestionColumns = `id, user_id, title, message, status, admin_response, responded_at, created_at, updated_at`

// PostgresSuggestionRepository implements SuggestionRepository over PostgreSQL.
type PostgresSuggestionRepository struct {
	db DBTX
}

func NewPostgresSuggestionRepository(db DBTX) *PostgresSuggestionRepository {
	return &PostgresSuggestionRepository{db: db}
}

func (r *PostgresSuggestionRepository) Create(ctx context.Context, s *Suggestion) error {
	query := `
		INSERT INTO suggestions (id, user_id, title, message, status)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING created_at, updated_at
	`

	err := r.db.QueryRowContext(ctx, query, s.ID, s.UserID, s.Title, s.Message, s.Status).
		Scan(&s.CreatedAt, &s.UpdatedAt)
	if err != nil {
		return fmt.Errorf("failed to create suggestion: %w", err)
	}

	return nil
}

func (r *PostgresSuggestionRepository) GetByID(ctx context.Context, id string) (*Suggestion, error) {
	query := `SELECT ` + suggestionColumns + ` FROM suggestions WHERE id = $1`

	s := &Suggestion{}
	err := r.db.QueryRowContext(ctx, query, id).Scan(
		&s.ID, &s.UserID, &s.Title, &s.Message, &s.Status,
		&s.AdminResponse, &s.RespondedAt, &s.CreatedAt, &s.UpdatedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get suggestion: %w", err)
	}

	return s, nil
}

func (r *PostgresSuggestionRepository) List(ctx context.Context, status *SuggestionStatus, limit, offset int) ([]*Suggestion, error) {
	query := `SELECT ` + suggestionColumns + ` FROM suggestions`
	args := []any{}

	if status != nil {
		query += ` WHERE status = $1`
		args = append(args, *status)
	}
	query += fmt.Sprintf(` ORDER BY created_at DESC LIMIT $%d OFFSET $%d`, len(args)+1, len(args)+2)
	args = append(args, limit, offset)

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list suggestions: %w", err)
	}
	defer rows.Close()

	suggestions := make([]*Suggestion, 0)
	for rows.Next() {
		s := &Suggestion{}
		err := rows.Scan(
			&s.ID, &s.UserID, &s.Title, &s.Message, &s.Status,
			&s.AdminResponse, &s.RespondedAt, &s.CreatedAt, &s.UpdatedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan suggestion: %w", err)
		}
		suggestions = append(suggestions, s)
	}

	return suggestions, rows.Err()
}

func (r *PostgresSuggestionRepository) UpdateStatus(ctx context.Context, id string, status SuggestionStatus) error {
	query := `UPDATE suggestions SET status = $2, updated_at = now() WHERE id = $1`

	res, err := r.db.ExecContext(ctx, query, id, status)
	if err != nil {
		return fmt.Errorf("failed to update suggestion status: %w", err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return ErrNotFound
	}

	return nil
}

func (r *PostgresSuggestionRepository) SetResponse(ctx context.Context, id, response string) error {
	query := `UPDATE suggestions SET admin_response = $2, responded_at = now(), updated_at = now() WHERE id = $1`

	res, err := r.db.ExecContext(ctx, query, id, response)
	if err != nil {
		return fmt.Errorf("failed to set suggestion response: %w", err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return ErrNotFound
	}

	return nil
}
