package settings

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	_ "modernc.org/sqlite"
)

const schema = `
	CREATE TABLE IF NOT EXISTS settings (
		key   TEXT PRIMARY KEY,
		value TEXT NOT NULL
	)
`

// Store persists settings as key/value rows in SQLite.
type Store struct {
	db *sql.DB
}

// DefaultPath returns $XDG_DATA_HOME/colloquy/settings.db.
func DefaultPath() (string, error) {
	if xdg := strings.TrimSpace(os.Getenv("XDG_DATA_HOME")); xdg != "" {
		return filepath.Join(xdg, "colloquy", "settings.db"), nil
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("resolve home directory: %w", err)
	}
	return filepath.Join(home, ".local", "share", "colloquy", "settings.db"), nil
}

// Open opens (creating when needed) the settings database at path. The
// special path ":memory:" keeps settings for the process lifetime only.
func Open(ctx context.Context, path string) (*Store, error) {
	dsn := ":memory:"
	if path != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
			return nil, fmt.Errorf("create settings directory: %w", err)
		}
		dsn = fmt.Sprintf("file:%s?_pragma=journal_mode(WAL)&_pragma=busy_timeout(2000)", path)
	}

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open settings database: %w", err)
	}
	// One connection keeps :memory: databases shared.
	db.SetMaxOpenConns(1)

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping settings database: %w", err)
	}
	if _, err := db.ExecContext(ctx, schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("create settings schema: %w", err)
	}
	return &Store{db: db}, nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// Load returns stored settings merged over Defaults. found is false when
// nothing was stored. Invalid rows are skipped and reported in err while the
// remaining settings are still returned.
func (s *Store) Load(ctx context.Context) (Settings, bool, error) {
	out := Defaults()

	rows, err := s.db.QueryContext(ctx, `SELECT key, value FROM settings ORDER BY key`)
	if err != nil {
		return out, false, fmt.Errorf("query settings: %w", err)
	}
	defer rows.Close()

	found := false
	var errs []error
	for rows.Next() {
		var key, value string
		if err := rows.Scan(&key, &value); err != nil {
			return Defaults(), false, fmt.Errorf("scan setting: %w", err)
		}
		found = true
		next, err := out.Apply(key, value)
		if err != nil {
			errs = append(errs, fmt.Errorf("stored %s: %w", key, err))
			continue
		}
		out = next
	}
	if err := rows.Err(); err != nil {
		return Defaults(), false, fmt.Errorf("read settings: %w", err)
	}
	return out, found, errors.Join(errs...)
}

// Save writes every setting in one transaction.
func (s *Store) Save(ctx context.Context, v Settings) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin settings transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	for _, kv := range v.Values() {
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO settings (key, value) VALUES (?, ?)
			ON CONFLICT(key) DO UPDATE SET value = excluded.value
		`, kv[0], kv[1]); err != nil {
			return fmt.Errorf("save %s: %w", kv[0], err)
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit settings: %w", err)
	}
	return nil
}
