package db

import (
	"database/sql"
	"errors"
	"fmt"

	"github.com/marcus/opsdesk/internal/logging"
)

// Migration represents a single schema change.
type Migration struct {
	Version     int
	Description string
	SQL         string
}

var migrations = []Migration{
	{
		Version:     1,
		Description: "initial schema: tasks, reminders, clients",
		SQL:         migration001SQL,
	},
	{
		Version:     2,
		Description: "add route and assignee indexes to tasks",
		SQL:         migration002SQL,
	},
}

// Instants are stored as fixed-width UTC text so string order is time order.
const migration001SQL = `
CREATE TABLE tasks (
    id                  TEXT PRIMARY KEY,
    user_id             TEXT NOT NULL,
    title               TEXT NOT NULL DEFAULT '',
    type                TEXT NOT NULL DEFAULT '',
    source_module       TEXT NOT NULL DEFAULT '',
    client_id           TEXT NOT NULL DEFAULT '',
    status              TEXT NOT NULL CHECK (status IN ('PENDING', 'DONE', 'CANCELLED')),
    completed_at        TEXT,
    due_date            TEXT,
    start_at            TEXT,
    end_at              TEXT,
    estimated_minutes   INTEGER CHECK (estimated_minutes IS NULL OR estimated_minutes > 0),
    priority            TEXT NOT NULL DEFAULT 'LOW' CHECK (priority IN ('LOW', 'MEDIUM', 'HIGH')),
    priority_score      REAL,
    score_calculated_at TEXT,
    is_blocking         INTEGER NOT NULL DEFAULT 0,
    sla_minutes         INTEGER CHECK (sla_minutes IS NULL OR sla_minutes > 0),
    assigned_to         TEXT NOT NULL DEFAULT '',
    latitude            REAL,
    longitude           REAL,
    route_order         INTEGER,
    created_at          TEXT NOT NULL,
    updated_at          TEXT NOT NULL,
    CHECK ((status = 'DONE') = (completed_at IS NOT NULL))
);

CREATE TABLE reminders (
    id       TEXT PRIMARY KEY,
    user_id  TEXT NOT NULL,
    title    TEXT NOT NULL DEFAULT '',
    start_at TEXT NOT NULL,
    end_at   TEXT NOT NULL,
    status   TEXT NOT NULL DEFAULT 'PENDING' CHECK (status IN ('PENDING', 'SENT', 'DISMISSED'))
);

CREATE TABLE clients (
    id          TEXT PRIMARY KEY,
    user_id     TEXT NOT NULL,
    name        TEXT NOT NULL DEFAULT '',
    total_spent REAL NOT NULL DEFAULT 0,
    score       REAL
);

CREATE INDEX idx_tasks_user_status_due ON tasks(user_id, status, due_date);
CREATE INDEX idx_tasks_user_start ON tasks(user_id, start_at);
CREATE INDEX idx_reminders_user_start ON reminders(user_id, start_at);
CREATE INDEX idx_clients_user ON clients(user_id);
`

const migration002SQL = `
CREATE INDEX IF NOT EXISTS idx_tasks_user_assignee ON tasks(user_id, assigned_to);
CREATE INDEX IF NOT EXISTS idx_tasks_user_route ON tasks(user_id, route_order);
`

// Migrate runs all pending migrations inside transactions.
func Migrate(db *sql.DB) error {
	if db == nil {
		return errors.New("db is nil")
	}

	if _, err := db.Exec(`CREATE TABLE IF NOT EXISTS schema_version (version INTEGER PRIMARY KEY, applied_at DATETIME)`); err != nil {
		return fmt.Errorf("create schema_version: %w", err)
	}

	currentVersion, err := CurrentVersion(db)
	if err != nil {
		return err
	}

	log := logging.Component("db")
	for _, migration := range migrations {
		if migration.Version <= currentVersion {
			continue
		}

		tx, err := db.Begin()
		if err != nil {
			return fmt.Errorf("begin migration %d: %w", migration.Version, err)
		}

		if _, err := tx.Exec(migration.SQL); err != nil {
			_ = tx.Rollback()
			return fmt.Errorf("apply migration %d: %w", migration.Version, err)
		}

		if _, err := tx.Exec(`INSERT INTO schema_version (version, applied_at) VALUES (?, CURRENT_TIMESTAMP)`, migration.Version); err != nil {
			_ = tx.Rollback()
			return fmt.Errorf("record migration %d: %w", migration.Version, err)
		}

		if err := tx.Commit(); err != nil {
			return fmt.Errorf("commit migration %d: %w", migration.Version, err)
		}

		log.Debug().Int("version", migration.Version).Str("description", migration.Description).Msg("applied migration")
		currentVersion = migration.Version
	}

	return nil
}

// CurrentVersion returns the current schema version (0 if no migrations applied).
func CurrentVersion(db *sql.DB) (int, error) {
	if db == nil {
		return 0, errors.New("db is nil")
	}

	row := db.QueryRow(`SELECT COALESCE(MAX(version), 0) FROM schema_version`)
	var version int
	if err := row.Scan(&version); err != nil {
		return 0, fmt.Errorf("query schema_version: %w", err)
	}
	return version, nil
}
