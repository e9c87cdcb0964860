package leads

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"
	_ "modernc.org/sqlite"
)

const leadsSchema = `
CREATE TABLE IF NOT EXISTS leads (
	id             TEXT PRIMARY KEY,
	name           TEXT NOT NULL,
	email          TEXT NOT NULL,
	phone          TEXT NOT NULL DEFAULT '',
	message        TEXT NOT NULL DEFAULT '',
	audience       TEXT NOT NULL DEFAULT '',
	source         TEXT NOT NULL DEFAULT '',
	status         TEXT NOT NULL DEFAULT 'pending',
	segment        TEXT NOT NULL DEFAULT '',
	priority       TEXT NOT NULL DEFAULT '',
	relay_attempts INTEGER NOT NULL DEFAULT 0,
	last_error     TEXT NOT NULL DEFAULT '',
	created_at     TEXT NOT NULL,
	updated_at     TEXT NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_leads_status ON leads(status);
`

// timestampLayout is fixed-width RFC 3339 so created_at sorts as text.
const timestampLayout = "2006-01-02T15:04:05.000000000Z07:00"

// leadRow mirrors the table; timestamps are stored as RFC 3339 text so both
// drivers round-trip them the same way.
type leadRow struct {
	Lead
	CreatedAtText string `db:"created_at"`
	UpdatedAtText string `db:"updated_at"`
}

func (r leadRow) toLead() *Lead {
	l := r.Lead
	l.CreatedAt, _ = time.Parse(time.RFC3339Nano, r.CreatedAtText)
	l.UpdatedAt, _ = time.Parse(time.RFC3339Nano, r.UpdatedAtText)
	return &l
}

// Store persists leads in SQLite (default) or PostgreSQL.
type Store struct {
	db *sqlx.DB
}

// OpenStore opens driver ("sqlite" or "postgres") at dsn and applies the schema.
func OpenStore(driver, dsn string) (*Store, error) {
	driver = strings.ToLower(strings.TrimSpace(driver))
	switch driver {
	case "", "sqlite":
		driver = "sqlite"
		if dir := filepath.Dir(dsn); dir != "." && dsn != ":memory:" {
			if err := os.MkdirAll(dir, 0o755); err != nil {
				return nil, fmt.Errorf("create db dir: %w", err)
			}
		}
		if !strings.Contains(dsn, "?") {
			dsn += "?_pragma=journal_mode(wal)&_pragma=busy_timeout(5000)"
		}
	case "postgres":
	default:
		return nil, fmt.Errorf("unsupported leads db driver %q", driver)
	}

	db, err := sqlx.Open(driver, dsn)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", driver, err)
	}
	if driver == "sqlite" {
		db.SetMaxOpenConns(1)
	}
	if _, err := db.Exec(leadsSchema); err != nil {
		db.Close()
		return nil, fmt.Errorf("create schema: %w", err)
	}
	return &Store{db: db}, nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

func (s *Store) Save(ctx context.Context, l *Lead) error {
	row := leadRow{
		Lead:          *l,
		CreatedAtText: l.CreatedAt.UTC().Format(timestampLayout),
		UpdatedAtText: l.UpdatedAt.UTC().Format(timestampLayout),
	}
	_, err := s.db.NamedExecContext(ctx, `
INSERT INTO leads (id, name, email, phone, message, audience, source, status, segment, priority, relay_attempts, last_error, created_at, updated_at)
VALUES (:id, :name, :email, :phone, :message, :audience, :source, :status, :segment, :priority, :relay_attempts, :last_error, :created_at, :updated_at)`, row)
	if err != nil {
		return fmt.Errorf("insert lead %s: %w", l.ID, err)
	}
	return nil
}

func (s *Store) Get(ctx context.Context, id string) (*Lead, error) {
	var row leadRow
	err := s.db.GetContext(ctx, &row, s.db.Rebind(`SELECT * FROM leads WHERE id = ?`), id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get lead %s: %w", id, err)
	}
	return row.toLead(), nil
}

// MarkRelayed records a successful relay attempt.
func (s *Store) MarkRelayed(ctx context.Context, id string) error {
	return s.update(ctx, id, StatusRelayed, "")
}

// MarkAttemptFailed records a failed relay attempt. Permanent failures stop retries.
func (s *Store) MarkAttemptFailed(ctx context.Context, id, reason string, permanent bool) error {
	status := StatusPending
	if permanent {
		status = StatusFailed
	}
	return s.update(ctx, id, status, reason)
}

func (s *Store) update(ctx context.Context, id string, status Status, lastError string) error {
	res, err := s.db.ExecContext(ctx, s.db.Rebind(`
UPDATE leads SET status = ?, last_error = ?, relay_attempts = relay_attempts + 1, updated_at = ?
WHERE id = ?`), string(status), lastError, time.Now().UTC().Format(timestampLayout), id)
	if err != nil {
		return fmt.Errorf("update lead %s: %w", id, err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return ErrNotFound
	}
	return nil
}

// ListPending returns pending leads with fewer than maxAttempts relay attempts, oldest first.
func (s *Store) ListPending(ctx context.Context, maxAttempts, limit int) ([]*Lead, error) {
	var rows []leadRow
	err := s.db.SelectContext(ctx, &rows, s.db.Rebind(`
SELECT * FROM leads WHERE status = ? AND relay_attempts < ?
ORDER BY created_at ASC LIMIT ?`), string(StatusPending), maxAttempts, limit)
	if err != nil {
		return nil, fmt.Errorf("list pending leads: %w", err)
	}
	out := make([]*Lead, 0, len(rows))
	for _, r := range rows {
		out = append(out, r.toLead())
	}
	return out, nil
}

// CountByStatus is used by the health and metrics endpoints.
func (s *Store) CountByStatus(ctx context.Context) (map[Status]int, error) {
	var rows []struct {
		Status Status `db:"status"`
		N      int    `db:"n"`
	}
	if err := s.db.SelectContext(ctx, &rows, `SELECT status, COUNT(*) AS n FROM leads GROUP BY status`); err != nil {
		return nil, fmt.Errorf("count leads: %w", err)
	}
	out := make(map[Status]int, len(rows))
	for _, r := range rows {
		out[r.Status] = r.N
	}
	return out, nil
}
