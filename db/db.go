// Package db provides database connection helpers, schema migration, and small data access helpers
// for persisting merge standings.
package db

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib" // pgx postgres driver registered as 'pgx'

	"github.com/ps2assistant/mergetracker/census"
)

// ErrNoDSN is returned by Connect when no DSN is configured.
var ErrNoDSN = errors.New("db: no DSN configured")

// Connect opens a Postgres connection and checks it is reachable.
func Connect(ctx context.Context, dsn string) (*sql.DB, error) {
	if dsn == "" {
		return nil, ErrNoDSN
	}
	database, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, fmt.Errorf("open postgres: %w", err)
	}
	database.SetMaxOpenConns(4)
	database.SetConnMaxIdleTime(5 * time.Minute)
	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := database.PingContext(pingCtx); err != nil {
		_ = database.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}
	return database, nil
}

// Migrate applies idempotent schema changes for all required tables and indices. It is the
// fallback when versioned migrations cannot run (e.g. a schema created by hand).
func Migrate(ctx context.Context, db *sql.DB) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS merge_standings (
			group_name TEXT NOT NULL,
			faction_id INTEGER NOT NULL,
			alert_wins INTEGER NOT NULL DEFAULT 0,
			captures INTEGER NOT NULL DEFAULT 0,
			updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
			PRIMARY KEY (group_name, faction_id)
		)`,
		`CREATE TABLE IF NOT EXISTS kv (
			key TEXT PRIMARY KEY,
			value TEXT,
			updated_at TIMESTAMPTZ DEFAULT NOW()
		)`,
		`ALTER TABLE merge_standings ADD COLUMN IF NOT EXISTS leader BOOLEAN NOT NULL DEFAULT FALSE`,
		`CREATE INDEX IF NOT EXISTS idx_merge_standings_updated ON merge_standings(updated_at)`,
	}
	for i, s := range stmts {
		if _, err := db.ExecContext(ctx, s); err != nil {
			return fmt.Errorf("postgres migrate step %d failed: %w", i, err)
		}
	}
	return nil
}

// StandingRow is one faction's persisted totals within a server group.
type StandingRow struct {
	Group     string
	Faction   census.FactionID
	AlertWins int
	Captures  int
	Leader    bool
	UpdatedAt time.Time
}

// UpsertStandings writes rows in one transaction so a reader never sees a half-updated group.
func UpsertStandings(ctx context.Context, db *sql.DB, rows []StandingRow) error {
	if len(rows) == 0 {
		return nil
	}
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin standings tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	const q = `INSERT INTO merge_standings (group_name, faction_id, alert_wins, captures, leader, updated_at)
		VALUES ($1, $2, $3, $4, $5, NOW())
		ON CONFLICT (group_name, faction_id) DO UPDATE SET
			alert_wins = EXCLUDED.alert_wins,
			captures = EXCLUDED.captures,
			leader = EXCLUDED.leader,
			updated_at = NOW()`
	for _, r := range rows {
		if _, err := tx.ExecContext(ctx, q, r.Group, int(r.Faction), r.AlertWins, r.Captures, r.Leader); err != nil {
			return fmt.Errorf("upsert standing %s/%s: %w", r.Group, r.Faction.Short(), err)
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit standings: %w", err)
	}
	return nil
}

// GetStandings returns the persisted rows of a group ordered by faction id.
func GetStandings(ctx context.Context, db *sql.DB, group string) ([]StandingRow, error) {
	rows, err := db.QueryContext(ctx,
		`SELECT group_name, faction_id, alert_wins, captures, leader, updated_at
		FROM merge_standings WHERE group_name = $1 ORDER BY faction_id`, group)
	if err != nil {
		return nil, fmt.Errorf("query standings: %w", err)
	}
	defer rows.Close()

	var out []StandingRow
	for rows.Next() {
		var (
			r       StandingRow
			faction int
		)
		if err := rows.Scan(&r.Group, &faction, &r.AlertWins, &r.Captures, &r.Leader, &r.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scan standing: %w", err)
		}
		r.Faction = census.FactionID(faction)
		out = append(out, r)
	}
	return out, rows.Err()
}

// SetKV stores a small value such as a job timestamp.
func SetKV(ctx context.Context, db *sql.DB, key, value string) error {
	_, err := db.ExecContext(ctx,
		`INSERT INTO kv (key, value, updated_at) VALUES ($1, $2, NOW())
		ON CONFLICT (key) DO UPDATE SET value = EXCLUDED.value, updated_at = NOW()`, key, value)
	if err != nil {
		return fmt.Errorf("set kv %s: %w", key, err)
	}
	return nil
}

// GetKV returns the value for key; ok is false when the key is absent.
func GetKV(ctx context.Context, db *sql.DB, key string) (value string, ok bool, err error) {
	err = db.QueryRowContext(ctx, `SELECT value FROM kv WHERE key = $1`, key).Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("get kv %s: %w", key, err)
	}
	return value, true, nil
}
