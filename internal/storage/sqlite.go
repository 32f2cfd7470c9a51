package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"

	"github.com/NuvoWindows/window-quote-whatsapp-bot/internal/specification"
)

// openDB is swapped in tests.
var openDB = sql.Open

const sqliteSchema = `
CREATE TABLE IF NOT EXISTS conversation_specs (
  user_id TEXT PRIMARY KEY,
  specification TEXT NOT NULL DEFAULT '{}',
  pending_clarification TEXT,
  last_activity_at TEXT,
  updated_at TEXT NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_conversation_specs_last_activity ON conversation_specs (last_activity_at);
`

var sqlitePragmas = []string{
	"PRAGMA journal_mode=WAL",
	"PRAGMA busy_timeout=5000",
	"PRAGMA synchronous=NORMAL",
	"PRAGMA foreign_keys=ON",
}

// SQLiteStore keeps conversations in a local SQLite file.
type SQLiteStore struct {
	db  *sql.DB
	now func() time.Time
}

// NewSQLiteStore opens (or creates) the database at path and applies the
// schema. Use ":memory:" for a throwaway database.
func NewSQLiteStore(path string, opts ...Option) (*SQLiteStore, error) {
	if path != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return nil, fmt.Errorf("storage: create dir: %w", err)
		}
	}

	db, err := openDB("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("storage: open sqlite: %w", err)
	}
	// A single connection keeps ":memory:" databases shared and serializes writers.
	db.SetMaxOpenConns(1)

	for _, p := range sqlitePragmas {
		if _, err := db.Exec(p); err != nil {
			db.Close()
			return nil, fmt.Errorf("storage: pragma %q: %w", p, err)
		}
	}
	if _, err := db.Exec(sqliteSchema); err != nil {
		db.Close()
		return nil, fmt.Errorf("storage: migrate: %w", err)
	}

	o := buildOptions(opts)
	return &SQLiteStore{db: db, now: o.now}, nil
}

func (s *SQLiteStore) stamp() string {
	return s.now().UTC().Format(time.RFC3339Nano)
}

func (s *SQLiteStore) GetPartialSpecification(ctx context.Context, userID string) (specification.Specification, error) {
	id, err := normalizeUserID(userID)
	if err != nil {
		return nil, err
	}
	var raw string
	err = s.db.QueryRowContext(ctx,
		`SELECT specification FROM conversation_specs WHERE user_id = ?`, id,
	).Scan(&raw)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("storage: get specification: %w", err)
	}
	return decodeSpecification([]byte(raw))
}

func (s *SQLiteStore) SavePartialSpecification(ctx context.Context, userID string, spec specification.Specification) error {
	id, err := normalizeUserID(userID)
	if err != nil {
		return err
	}
	raw, err := encodeSpecification(spec)
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO conversation_specs (user_id, specification, updated_at)
		VALUES (?, ?, ?)
		ON CONFLICT (user_id)
		DO UPDATE SET specification = excluded.specification, updated_at = excluded.updated_at`,
		id, string(raw), s.stamp(),
	)
	if err != nil {
		return fmt.Errorf("storage: save specification: %w", err)
	}
	return nil
}

func (s *SQLiteStore) GetLastActivityTime(ctx context.Context, userID string) (time.Time, error) {
	id, err := normalizeUserID(userID)
	if err != nil {
		return time.Time{}, err
	}
	var last sql.NullString
	err = s.db.QueryRowContext(ctx,
		`SELECT last_activity_at FROM conversation_specs WHERE user_id = ?`, id,
	).Scan(&last)
	if errors.Is(err, sql.ErrNoRows) || (err == nil && !last.Valid) {
		return time.Time{}, ErrNotFound
	}
	if err != nil {
		return time.Time{}, fmt.Errorf("storage: get last activity: %w", err)
	}
	t, err := time.Parse(time.RFC3339Nano, last.String)
	if err != nil {
		return time.Time{}, fmt.Errorf("storage: parse last activity %q: %w", last.String, err)
	}
	return t, nil
}

func (s *SQLiteStore) UpdateLastActivity(ctx context.Context, userID string) error {
	id, err := normalizeUserID(userID)
	if err != nil {
		return err
	}
	now := s.stamp()
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO conversation_specs (user_id, last_activity_at, updated_at)
		VALUES (?, ?, ?)
		ON CONFLICT (user_id)
		DO UPDATE SET last_activity_at = excluded.last_activity_at, updated_at = excluded.updated_at`,
		id, now, now,
	)
	if err != nil {
		return fmt.Errorf("storage: update last activity: %w", err)
	}
	return nil
}

func (s *SQLiteStore) ClearPartialSpecification(ctx context.Context, userID string) error {
	id, err := normalizeUserID(userID)
	if err != nil {
		return err
	}
	if _, err := s.db.ExecContext(ctx, `DELETE FROM conversation_specs WHERE user_id = ?`, id); err != nil {
		return fmt.Errorf("storage: clear conversation: %w", err)
	}
	return nil
}

func (s *SQLiteStore) SetPendingClarification(ctx context.Context, userID string, payload []byte) error {
	id, err := normalizeUserID(userID)
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO conversation_specs (user_id, pending_clarification, updated_at)
		VALUES (?, ?, ?)
		ON CONFLICT (user_id)
		DO UPDATE SET pending_clarification = excluded.pending_clarification, updated_at = excluded.updated_at`,
		id, string(payload), s.stamp(),
	)
	if err != nil {
		return fmt.Errorf("storage: set pending clarification: %w", err)
	}
	return nil
}

func (s *SQLiteStore) GetPendingClarification(ctx context.Context, userID string) ([]byte, error) {
	id, err := normalizeUserID(userID)
	if err != nil {
		return nil, err
	}
	var payload sql.NullString
	err = s.db.QueryRowContext(ctx,
		`SELECT pending_clarification FROM conversation_specs WHERE user_id = ?`, id,
	).Scan(&payload)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("storage: get pending clarification: %w", err)
	}
	if !payload.Valid || payload.String == "" {
		return nil, nil
	}
	return []byte(payload.String), nil
}

func (s *SQLiteStore) ClearPendingClarification(ctx context.Context, userID string) error {
	id, err := normalizeUserID(userID)
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx,
		`UPDATE conversation_specs SET pending_clarification = NULL, updated_at = ? WHERE user_id = ?`,
		s.stamp(), id,
	)
	if err != nil {
		return fmt.Errorf("storage: clear pending clarification: %w", err)
	}
	return nil
}

func (s *SQLiteStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}
