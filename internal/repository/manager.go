package repository

import (
	"context"
	"database/sql"
	"fmt"

	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/pressly/goose/v3"

	"github.com/devtoolkit/auth-service/internal/migrations"
)

// Manager owns the database handle and the concrete repositories.
type Manager struct {
	db          *sql.DB
	users       UserRepository
	sessions    SessionRepository
	activity    ActivityRepository
	suggestions SuggestionRepository
}

// NewManager opens a PostgreSQL connection, applies pending migrations and
// wires the repositories.
func NewManager(ctx context.Context, dsn string) (*Manager, error) {
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, fmt.Errorf("db open error: %w", err)
	}

	if err := db.PingContext(ctx); err != nil {
		return nil, fmt.Errorf("db ping error: %w", err)
	}

	m := &Manager{
		db:          db,
		users:       NewPostgresUserRepository(db),
		sessions:    NewPostgresSessionRepository(db),
		activity:    NewPostgresActivityRepository(db),
		suggestions: NewPostgresSuggestionRepository(db),
	}

	if err := m.runMigrations(ctx); err != nil {
		return nil, fmt.Errorf("migration error: %w", err)
	}

	return m, nil
}

func (m *Manager) runMigrations(ctx context.Context) error {
	goose.SetBaseFS(migrations.FS)

	if err := goose.SetDialect("postgres"); err != nil {
		return err
	}

	return goose.UpContext(ctx, m.db, ".")
}

func (m *Manager) Users() UserRepository             { return m.users }
func (m *Manager) Sessions() SessionRepository       { return m.sessions }
func (m *Manager) Activity() ActivityRepository      { return m.activity }
func (m *Manager) Suggestions() SuggestionRepository { return m.suggestions }

func (m *Manager) Close() error {
	return m.db.Close()
}
