package store

import (
	"context"
	"database/sql"
	"embed"
	"fmt"
	"io/fs"
	"sort"
	"strings"
	"time"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// migration is one embedded schema migration. Only the "-- +up" half is
// kept; any "-- +down" half is discarded.
type migration struct {
	id    string
	upSQL string
}

// Migrator applies the embedded schema migrations to a *sql.DB in order,
// tracking what has already run in a schema_migrations table. Grounded on
// the teacher's internal/sessions.Migrator.
type Migrator struct {
	db         *sql.DB
	migrations []migration
}

// NewMigrator loads the embedded migrations and returns a Migrator bound to
// db.
func NewMigrator(db *sql.DB) (*Migrator, error) {
	if db == nil {
		return nil, fmt.Errorf("db is required")
	}
	migrations, err := loadMigrations()
	if err != nil {
		return nil, err
	}
	return &Migrator{db: db, migrations: migrations}, nil
}

func loadMigrations() ([]migration, error) {
	entries, err := fs.ReadDir(migrationsFS, "migrations")
	if err != nil {
		return nil, fmt.Errorf("read migrations dir: %w", err)
	}
	var names []string
	for _, e := range entries {
		if !e.IsDir() && strings.HasSuffix(e.Name(), ".sql") {
			names = append(names, e.Name())
		}
	}
	sort.Strings(names)

	var out []migration
	for _, name := range names {
		data, err := migrationsFS.ReadFile("migrations/" + name)
		if err != nil {
			return nil, fmt.Errorf("read migration %s: %w", name, err)
		}
		upSQL, _, ok := strings.Cut(string(data), "-- +down")
		if !ok {
			upSQL = string(data)
		}
		upSQL = strings.TrimSpace(strings.TrimPrefix(strings.TrimSpace(upSQL), "-- +up"))
		out = append(out, migration{id: name, upSQL: upSQL})
	}
	return out, nil
}

// EnsureSchema creates the schema_migrations bookkeeping table if missing.
func (m *Migrator) EnsureSchema(ctx context.Context) error {
	_, err := m.db.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS schema_migrations (
			id TEXT PRIMARY KEY,
			applied_at TEXT NOT NULL
		)
	`)
	if err != nil {
		return fmt.Errorf("create schema_migrations: %w", err)
	}
	return nil
}

// Up applies every pending migration in order, each inside its own
// transaction.
func (m *Migrator) Up(ctx context.Context) ([]string, error) {
	if err := m.EnsureSchema(ctx); err != nil {
		return nil, err
	}
	applied, err := m.appliedIDs(ctx)
	if err != nil {
		return nil, err
	}

	var appliedNow []string
	for _, mig := range m.migrations {
		if applied[mig.id] {
			continue
		}
		tx, err := m.db.BeginTx(ctx, nil)
		if err != nil {
			return appliedNow, fmt.Errorf("begin migration %s: %w", mig.id, err)
		}
		if _, err := tx.ExecContext(ctx, mig.upSQL); err != nil {
			tx.Rollback()
			return appliedNow, fmt.Errorf("apply migration %s: %w", mig.id, err)
		}
		if _, err := tx.ExecContext(ctx, `INSERT INTO schema_migrations (id, applied_at) VALUES (?, ?)`,
			mig.id, time.Now().UTC().Format(time.RFC3339Nano)); err != nil {
			tx.Rollback()
			return appliedNow, fmt.Errorf("record migration %s: %w", mig.id, err)
		}
		if err := tx.Commit(); err != nil {
			return appliedNow, fmt.Errorf("commit migration %s: %w", mig.id, err)
		}
		appliedNow = append(appliedNow, mig.id)
	}
	return appliedNow, nil
}

// MigrationStatus reports one migration's id and whether it has been
// applied, in definition order.
type MigrationStatus struct {
	ID      string
	Applied bool
}

// Status reports every known migration and its applied state, for the
// "migrate status" CLI command.
func (m *Migrator) Status(ctx context.Context) ([]MigrationStatus, error) {
	if err := m.EnsureSchema(ctx); err != nil {
		return nil, err
	}
	applied, err := m.appliedIDs(ctx)
	if err != nil {
		return nil, err
	}
	out := make([]MigrationStatus, len(m.migrations))
	for i, mig := range m.migrations {
		out[i] = MigrationStatus{ID: mig.id, Applied: applied[mig.id]}
	}
	return out, nil
}

func (m *Migrator) appliedIDs(ctx context.Context) (map[string]bool, error) {
	rows, err := m.db.QueryContext(ctx, `SELECT id FROM schema_migrations`)
	if err != nil {
		return nil, fmt.Errorf("list applied migrations: %w", err)
	}
	defer rows.Close()

	out := map[string]bool{}
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		out[id] = true
	}
	return out, rows.Err()
}
