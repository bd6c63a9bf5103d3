package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
)

const userColumns = `id, email, password_hash, first_name, last_name, role,
	is_verified, verification_token, verification_token_expires_at,
	reset_token, reset_token_expires_at, failed_login_attempts, locked_until,
	last_password_change, daily_count, monthly_count, total_count, daily_limit,
	monthly_limit, last_reset_date, last_usage_date, is_active, is_suspended,
	suspension_reason, last_login, last_activity, created_at, updated_at,
	signup_source, signup_ip, signup_user_agent`

// PostgresUserRepository implements UserRepository over PostgreSQL.
type PostgresUserRepository struct {
	db DBTX
}

func NewPostgresUserRepository(db DBTX) *PostgresUserRepository {
	return &PostgresUserRepository{db: db}
}

func (r *PostgresUserRepository) Create(ctx context.Context, user *User) error {
	query := `
		INSERT INTO users (
			id, email, password_hash, first_name, last_name, role,
			is_verified, verification_token, verification_token_expires_at,
			daily_limit, monthly_limit, last_reset_date,
			is_active, is_suspended, signup_source, signup_ip, signup_user_agent
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, CURRENT_DATE, $12, $13, $14, $15, $16)
		RETURNING created_at, updated_at
	`

	err := r.db.QueryRowContext(ctx, query,
		user.ID, user.Email, user.PasswordHash, user.FirstName, user.LastName, user.Role,
		user.IsVerified, user.VerificationToken, user.VerificationTokenExpiresAt,
		user.DailyLimit, user.MonthlyLimit,
		user.IsActive, user.IsSuspended, user.SignupSource, user.SignupIP, user.SignupUserAgent,
	).Scan(&user.CreatedAt, &user.UpdatedAt)

	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return ErrDuplicateEmail
		}
		return fmt.Errorf("failed to create user: %w", err)
	}

	return nil
}

func (r *PostgresUserRepository) GetByID(ctx context.Context, id string) (*User, error) {
	query := `SELECT ` + userColumns + ` FROM users WHERE id = $1`
	return r.scanUser(r.db.QueryRowContext(ctx, query, id))
}

func (r *PostgresUserRepository) GetByEmail(ctx context.Context, email string) (*User, error) {
	// Exact match; email is stored as given at registration.
	query := `SELECT ` + userColumns + ` FROM users WHERE email = $1`
	return r.scanUser(r.db.QueryRowContext(ctx, query, email))
}

func (r *PostgresUserRepository) List(ctx context.Context, limit, offset int) ([]*User, int64, error) {
	var total int64
	if err := r.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM users`).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("failed to count users: %w", err)
	}

	query := `SELECT ` + userColumns + ` FROM users ORDER BY created_at DESC LIMIT $1 OFFSET $2`
	rows, err := r.db.QueryContext(ctx, query, limit, offset)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to list users: %w", err)
	}
	defer rows.Close()

	users := make([]*User, 0)
	for rows.Next() {
		user, err := r.scanUserRow(rows)
		if err != nil {
			return nil, 0, err
		}
		users = append(users, user)
	}

	return users, total, rows.Err()
}

// RecordFailedLogin increments the counter and arms the lockout in one
// statement so concurrent wrong-password attempts cannot lose an increment.
func (r *PostgresUserRepository) RecordFailedLogin(ctx context.Context, id string, threshold int, lockedUntil time.Time) (int, error) {
	query := `
		UPDATE users
		SET failed_login_attempts = failed_login_attempts + 1,
		    locked_until = CASE WHEN failed_login_attempts + 1 >= $2 THEN $3 ELSE locked_until END,
		    updated_at = now()
		WHERE id = $1
		RETURNING failed_login_attempts
	`

	var attempts int
	err := r.db.QueryRowContext(ctx, query, id, threshold, lockedUntil).Scan(&attempts)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, ErrNotFound
	}
	if err != nil {
		return 0, fmt.Errorf("failed to record failed login: %w", err)
	}

	return attempts, nil
}

func (r *PostgresUserRepository) RecordLogin(ctx context.Context, id string) error {
	query := `
		UPDATE users
		SET failed_login_attempts = 0, locked_until = NULL,
		    last_login = now(), last_activity = now(), updated_at = now()
		WHERE id = $1
	`
	return r.exec(ctx, query, id)
}

func (r *PostgresUserRepository) SetVerificationToken(ctx context.Context, id, tok string, expiresAt time.Time) error {
	query := `
		UPDATE users
		SET verification_token = $2, verification_token_expires_at = $3, updated_at = now()
		WHERE id = $1
	`
	return r.exec(ctx, query, id, tok, expiresAt)
}

func (r *PostgresUserRepository) ConsumeVerificationToken(ctx context.Context, tok string) (*User, error) {
	query := `
		UPDATE users
		SET is_verified = true, verification_token = NULL,
		    verification_token_expires_at = NULL, updated_at = now()
		WHERE verification_token = $1 AND verification_token_expires_at > now()
		RETURNING ` + userColumns

	return r.scanUser(r.db.QueryRowContext(ctx, query, tok))
}

func (r *PostgresUserRepository) SetResetToken(ctx context.Context, id, tok string, expiresAt time.Time) error {
	// Overwrites any prior unconsumed reset token; only one can be live.
	query := `
		UPDATE users
		SET reset_token = $2, reset_token_expires_at = $3, updated_at = now()
		WHERE id = $1
	`
	return r.exec(ctx, query, id, tok, expiresAt)
}

func (r *PostgresUserRepository) ConsumeResetToken(ctx context.Context, tok, newHash string) (*User, error) {
	query := `
		UPDATE users
		SET password_hash = $2, reset_token = NULL, reset_token_expires_at = NULL,
		    last_password_change = now(), updated_at = now()
		WHERE reset_token = $1 AND reset_token_expires_at > now()
		RETURNING ` + userColumns

	return r.scanUser(r.db.QueryRowContext(ctx, query, tok, newHash))
}

// RollUsageWindow applies the lazy daily rollover. The WHERE guard makes it
// idempotent: once last_reset_date is today, re-running matches no row, so an
// idle stretch of N days still yields exactly one reset.
func (r *PostgresUserRepository) RollUsageWindow(ctx context.Context, id string) (*User, error) {
	query := `
		UPDATE users
		SET monthly_count = CASE
		        WHEN date_trunc('month', last_reset_date) < date_trunc('month', CURRENT_DATE)
		        THEN 0 ELSE monthly_count END,
		    daily_count = 0,
		    last_reset_date = CURRENT_DATE,
		    updated_at = now()
		WHERE id = $1 AND last_reset_date < CURRENT_DATE
	`

	if _, err := r.db.ExecContext(ctx, query, id); err != nil {
		return nil, fmt.Errorf("failed to roll usage window: %w", err)
	}

	return r.GetByID(ctx, id)
}

func (r *PostgresUserRepository) IncrementUsage(ctx context.Context, id string) error {
	query := `
		UPDATE users
		SET daily_count = daily_count + 1, monthly_count = monthly_count + 1,
		    total_count = total_count + 1, last_usage_date = now(),
		    last_activity = now(), updated_at = now()
		WHERE id = $1
	`
	return r.exec(ctx, query, id)
}

func (r *PostgresUserRepository) UpdateProfile(ctx context.Context, id string, patch ProfilePatch) error {
	query := `
		UPDATE users
		SET first_name = COALESCE($2, first_name),
		    last_name = COALESCE($3, last_name),
		    updated_at = now()
		WHERE id = $1
	`
	return r.exec(ctx, query, id, patch.FirstName, patch.LastName)
}

func (r *PostgresUserRepository) SetSuspended(ctx context.Context, id string, suspended bool, reason *string) error {
	query := `
		UPDATE users
		SET is_suspended = $2, suspension_reason = $3, updated_at = now()
		WHERE id = $1
	`
	return r.exec(ctx, query, id, suspended, reason)
}

func (r *PostgresUserRepository) SetQuota(ctx context.Context, id string, daily, monthly int) error {
	query := `
		UPDATE users
		SET daily_limit = $2, monthly_limit = $3, updated_at = now()
		WHERE id = $1
	`
	return r.exec(ctx, query, id, daily, monthly)
}

func (r *PostgresUserRepository) SetRole(ctx context.Context, id string, role Role) error {
	query := `UPDATE users SET role = $2, updated_at = now() WHERE id = $1`
	return r.exec(ctx, query, id, role)
}

func (r *PostgresUserRepository) exec(ctx context.Context, query string, args ...any) error {
	res, err := r.db.ExecContext(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return ErrNotFound
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func (r *PostgresUserRepository) scanUser(row *sql.Row) (*User, error) {
	return r.scanUserRow(row)
}

func (r *PostgresUserRepository) scanUserRow(row rowScanner) (*User, error) {
	user := &User{}
	err := row.Scan(
		&user.ID, &user.Email, &user.PasswordHash, &user.FirstName, &user.LastName, &user.Role,
		&user.IsVerified, &user.VerificationToken, &user.VerificationTokenExpiresAt,
		&user.ResetToken, &user.ResetTokenExpiresAt, &user.FailedLoginAttempts, &user.LockedUntil,
		&user.LastPasswordChange, &user.DailyCount, &user.MonthlyCount, &user.TotalCount,
		&user.DailyLimit, &user.MonthlyLimit, &user.LastResetDate, &user.LastUsageDate,
		&user.IsActive, &user.IsSuspended, &user.SuspensionReason, &user.LastLogin,
		&user.LastActivity, &user.CreatedAt, &user.UpdatedAt,
		&user.SignupSource, &user.SignupIP, &user.SignupUserAgent,
	)

	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to scan user: %w", err)
	}

	return user, nil
}
