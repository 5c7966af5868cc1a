package store

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/jmoiron/sqlx"
	_ "modernc.org/sqlite"
)

// Scope identifies one of the four independent persistence units.
type Scope int

const (
	ScopeApp Scope = iota
	ScopeUser
	ScopeMailboxInfo
	ScopeMailboxContent

	numScopes
)

// String returns the scope name used in logs and change notifications.
func (s Scope) String() string {
	switch s {
	case ScopeApp:
		return "app"
	case ScopeUser:
		return "user"
	case ScopeMailboxInfo:
		return "mailbox-info"
	case ScopeMailboxContent:
		return "mailbox-content"
	default:
		return "invalid"
	}
}

// Store is an open handle to one scope database file.
type Store struct {
	db    *sqlx.DB
	path  string
	scope Scope
}

// Open opens (or creates) the scope database at path, enables WAL mode,
// and applies any pending migrations for the scope.
func Open(path string, scope Scope) (*Store, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return nil, fmt.Errorf("failed to create data directory: %w", err)
	}

	db, err := sqlx.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open %s store: %w", scope, err)
	}

	// A single writer keeps transactions serialized at the driver level;
	// readers still proceed thanks to WAL.
	db.SetMaxOpenConns(1)

	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to enable WAL mode: %w", err)
	}
	if _, err := db.Exec("PRAGMA foreign_keys=ON"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to enable foreign keys: %w", err)
	}

	s := &Store{db: db, path: path, scope: scope}
	if err := s.migrate(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to migrate %s store: %w", scope, err)
	}

	return s, nil
}

// Close closes the underlying database handle.
func (s *Store) Close() error {
	return s.db.Close()
}

// Path returns the database file path.
func (s *Store) Path() string {
	return s.path
}

// Scope returns which persistence unit this store holds.
func (s *Store) Scope() Scope {
	return s.scope
}

// WithinTx runs fn inside a single transaction. If fn returns an error the
// transaction is rolled back and the store is left exactly as before the call.
func (s *Store) WithinTx(ctx context.Context, fn func(tx *sqlx.Tx) error) error {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}

	if err := fn(tx); err != nil {
		_ = tx.Rollback()
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}

	return nil
}
