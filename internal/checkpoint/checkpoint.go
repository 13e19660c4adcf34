// Package checkpoint persists watch cursors so a watch can resume after a
// restart without replaying or skipping messages.
package checkpoint

import (
	"context"
	"database/sql"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/Napageneral/imsg/internal/migrate"
)

// Store is a small read-write SQLite database holding cursors.
type Store struct {
	db *sql.DB
}

// Open opens (creating if needed) the state database at path.
func Open(path string) (*Store, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("failed to create state dir: %w", err)
	}
	abs, err := filepath.Abs(path)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve %s: %w", path, err)
	}
	dsn := url.URL{Scheme: "file", Path: filepath.ToSlash(abs), RawQuery: "_busy_timeout=5000&_journal_mode=WAL"}
	db, err := sql.Open("sqlite3", dsn.String())
	if err != nil {
		return nil, fmt.Errorf("failed to open state db: %w", err)
	}
	db.SetMaxOpenConns(1)

	if err := migrate.MigrateState(context.Background(), db); err != nil {
		_ = db.Close()
		return nil, err
	}
	return &Store{db: db}, nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

// Key identifies a cursor: the chat.db file plus the optional chat filter.
func Key(chatDBPath string, chatID int64) string {
	if abs, err := filepath.Abs(chatDBPath); err == nil {
		chatDBPath = abs
	}
	return fmt.Sprintf("%s#%d", chatDBPath, chatID)
}

// Load returns the saved ROWID for key. ok is false when nothing was saved.
func (s *Store) Load(ctx context.Context, key string) (rowID int64, ok bool, err error) {
	err = s.db.QueryRowContext(ctx, `SELECT last_rowid FROM watch_cursors WHERE cursor_key = ?`, key).Scan(&rowID)
	if err == sql.ErrNoRows {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, fmt.Errorf("failed to load cursor %s: %w", key, err)
	}
	return rowID, true, nil
}

// Save records rowID for key. A saved cursor never moves backwards.
func (s *Store) Save(ctx context.Context, key string, rowID int64) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO watch_cursors (cursor_key, last_rowid, updated_ts)
		VALUES (?, ?, ?)
		ON CONFLICT(cursor_key) DO UPDATE SET
			last_rowid = MAX(watch_cursors.last_rowid, excluded.last_rowid),
			updated_ts = excluded.updated_ts
	`, key, rowID, time.Now().Unix())
	if err != nil {
		return fmt.Errorf("failed to save cursor %s: %w", key, err)
	}
	return nil
}
