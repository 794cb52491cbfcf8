package resultview

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	_ "modernc.org/sqlite"
)

// SQLiteStore persists preferences in a local SQLite file so they survive
// across runs of the command-line tools.
type SQLiteStore struct {
	db      *sql.DB
	session string
}

// OpenSQLiteStore opens (or creates) the preference database at dsn and
// scopes all reads and writes to session.
func OpenSQLiteStore(ctx context.Context, dsn, session string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open preference database: %w", err)
	}

	// Single connection for SQLite to avoid locking issues.
	db.SetMaxOpenConns(1)

	stmts := []string{
		"PRAGMA busy_timeout=5000",
		`CREATE TABLE IF NOT EXISTS view_preferences (
			session TEXT NOT NULL,
			key     TEXT NOT NULL,
			value   TEXT NOT NULL,
			updated_at DATETIME DEFAULT CURRENT_TIMESTAMP,
			PRIMARY KEY (session, key)
		)`,
	}
	for _, s := range stmts {
		if _, err := db.ExecContext(ctx, s); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("init preference database: %w", err)
		}
	}

	return &SQLiteStore{db: db, session: session}, nil
}

func (s *SQLiteStore) Get(ctx context.Context, key string) (string, bool, error) {
	var v string
	err := s.db.QueryRowContext(ctx,
		"SELECT value FROM view_preferences WHERE session = ? AND key = ?",
		s.session, key).Scan(&v)
	if errors.Is(err, sql.ErrNoRows) {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("read preference %q: %w", key, err)
	}
	return v, true, nil
}

func (s *SQLiteStore) Set(ctx context.Context, key, value string) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO view_preferences (session, key, value) VALUES (?, ?, ?)
		ON CONFLICT (session, key) DO UPDATE SET value = excluded.value, updated_at = CURRENT_TIMESTAMP`,
		s.session, key, value)
	if err != nil {
		return fmt.Errorf("write preference %q: %w", key, err)
	}
	return nil
}

// Close closes the underlying database.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

var _ Store = (*SQLiteStore)(nil)
