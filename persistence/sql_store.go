// Package persistence provides durable storage of team snapshots
// (getCleanedState output) so a workflow survives a process restart,
// across SQLite, PostgreSQL, and MySQL.
package persistence

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "github.com/go-sql-driver/mysql"
	_ "github.com/lib/pq"
	_ "github.com/mattn/go-sqlite3"
)

// Store persists redacted snapshots keyed by team id, and loads the
// most recent one back. Persistence is an observer of the store's
// mutation stream, never a second source of truth for it: Save is
// called after a mutation already committed, and LoadLatest is only
// consulted once, at Team.Start, to resume an interrupted run. Because
// every id is redacted in the persisted snapshot, resume recovers only
// Inputs; task and agent state is not reconstructed from it.
type Store interface {
	Save(ctx context.Context, teamID string, snapshotJSON []byte) error
	LoadLatest(ctx context.Context, teamID string) ([]byte, bool, error)
	Close() error
}

// SQLStore is a dialect-aware database/sql implementation of Store.
type SQLStore struct {
	db      *sql.DB
	dialect string
}

const (
	createSnapshotTableSQL = `
CREATE TABLE IF NOT EXISTS flowcrew_snapshots (
    team_id VARCHAR(255) NOT NULL,
    revision INTEGER NOT NULL,
    snapshot_json TEXT NOT NULL,
    created_at TIMESTAMP NOT NULL,
    PRIMARY KEY (team_id, revision)
)`

	createSnapshotIndexSQL = `
CREATE INDEX IF NOT EXISTS idx_flowcrew_snapshots_team_id ON flowcrew_snapshots(team_id)`
)

// NewSQLStore opens a dialect-aware snapshot store over an existing
// *sql.DB, which should be shared with other components using the same
// database to avoid SQLite "database is locked" errors.
func NewSQLStore(db *sql.DB, dialect string) (*SQLStore, error) {
	if db == nil {
		return nil, fmt.Errorf("persistence: database connection is required")
	}
	normalized := dialect
	if dialect == "sqlite3" {
		normalized = "sqlite"
	}
	switch normalized {
	case "postgres", "mysql", "sqlite":
	default:
		return nil, fmt.Errorf("persistence: unsupported dialect %q (supported: postgres, mysql, sqlite)", dialect)
	}

	s := &SQLStore{db: db, dialect: normalized}
	if err := s.initSchema(); err != nil {
		return nil, fmt.Errorf("persistence: init schema: %w", err)
	}
	return s, nil
}

func (s *SQLStore) initSchema() error {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if _, err := s.db.ExecContext(ctx, createSnapshotTableSQL); err != nil {
		return fmt.Errorf("create flowcrew_snapshots table: %w", err)
	}
	if _, err := s.db.ExecContext(ctx, createSnapshotIndexSQL); err != nil {
		return fmt.Errorf("create team_id index: %w", err)
	}
	return nil
}

// Save inserts the next revision for teamID. Revisions only ever
// increase, so Save never needs an UPSERT: each call gets its own row.
// team.Team calls Save after Start, Stop, ProvideFeedback and
// ValidateTask only.
func (s *SQLStore) Save(ctx context.Context, teamID string, snapshotJSON []byte) error {
	revision, err := s.nextRevision(ctx, teamID)
	if err != nil {
		return fmt.Errorf("persistence: determine next revision: %w", err)
	}

	query := `INSERT INTO flowcrew_snapshots (team_id, revision, snapshot_json, created_at) VALUES (?, ?, ?, ?)`
	if s.dialect == "postgres" {
		query = `INSERT INTO flowcrew_snapshots (team_id, revision, snapshot_json, created_at) VALUES ($1, $2, $3, $4)`
	}

	if _, err := s.db.ExecContext(ctx, query, teamID, revision, string(snapshotJSON), time.Now()); err != nil {
		return fmt.Errorf("persistence: save snapshot: %w", err)
	}
	return nil
}

func (s *SQLStore) nextRevision(ctx context.Context, teamID string) (int64, error) {
	query := `SELECT COALESCE(MAX(revision), -1) FROM flowcrew_snapshots WHERE team_id = ?`
	if s.dialect == "postgres" {
		query = `SELECT COALESCE(MAX(revision), -1) FROM flowcrew_snapshots WHERE team_id = $1`
	}
	var max int64
	if err := s.db.QueryRowContext(ctx, query, teamID).Scan(&max); err != nil {
		return 0, err
	}
	return max + 1, nil
}

// LoadLatest returns the most recent snapshot for teamID, or ok=false
// if none exists.
func (s *SQLStore) LoadLatest(ctx context.Context, teamID string) ([]byte, bool, error) {
	query := `SELECT snapshot_json FROM flowcrew_snapshots WHERE team_id = ? ORDER BY revision DESC LIMIT 1`
	if s.dialect == "postgres" {
		query = `SELECT snapshot_json FROM flowcrew_snapshots WHERE team_id = $1 ORDER BY revision DESC LIMIT 1`
	}

	var snapshotJSON string
	err := s.db.QueryRowContext(ctx, query, teamID).Scan(&snapshotJSON)
	if err == sql.ErrNoRows {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("persistence: load latest snapshot: %w", err)
	}
	return []byte(snapshotJSON), true, nil
}

func (s *SQLStore) Close() error {
	return s.db.Close()
}
