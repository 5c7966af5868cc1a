package store

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"go.uber.org/zap"
)

// ErrScopeOpen is returned when a content database file deletion is requested
// for a scope that could not be closed first.
var ErrScopeOpen = errors.New("scope is open")

// Key identifies which dataset a scope handle is bound to. The app scope
// ignores it, the user and mailbox-info scopes use UserID, and the
// mailbox-content scope uses both fields.
type Key struct {
	UserID    string
	MailboxID string
}

type handle struct {
	key   Key
	store *Store
}

// ScopeManager owns the open/close lifecycle of the four persistence scopes.
// At most one handle is open per scope at a time; opening a scope for a new
// key closes the old key's handle first so two logically different datasets
// never share the same in-memory slot.
type ScopeManager struct {
	dir string
	log *zap.Logger

	mu      [numScopes]sync.Mutex
	handles [numScopes]*handle
}

// NewScopeManager creates a manager whose database files live under dir.
func NewScopeManager(dir string, log *zap.Logger) *ScopeManager {
	return &ScopeManager{dir: dir, log: log}
}

// App returns the app-settings store, opening it on first use. The handle
// lives for the whole process.
func (m *ScopeManager) App() (*Store, error) {
	return m.open(ScopeApp, Key{})
}

// User returns the user-info store for userID.
func (m *ScopeManager) User(userID string) (*Store, error) {
	return m.open(ScopeUser, Key{UserID: userID})
}

// MailboxInfo returns the mailbox-metadata store for userID.
func (m *ScopeManager) MailboxInfo(userID string) (*Store, error) {
	return m.open(ScopeMailboxInfo, Key{UserID: userID})
}

// Content returns the mailbox-content store for (userID, mailboxID).
func (m *ScopeManager) Content(userID, mailboxID string) (*Store, error) {
	return m.open(ScopeMailboxContent, Key{UserID: userID, MailboxID: mailboxID})
}

// open is idempotent per (scope, key): it returns the existing handle when
// the key matches and swaps handles (close old, open new) when it does not.
func (m *ScopeManager) open(scope Scope, key Key) (*Store, error) {
	m.mu[scope].Lock()
	defer m.mu[scope].Unlock()

	if h := m.handles[scope]; h != nil {
		if h.key == key {
			return h.store, nil
		}
		if err := h.store.Close(); err != nil {
			return nil, fmt.Errorf("failed to close %s store before switch: %w", scope, err)
		}
		m.handles[scope] = nil
		m.log.Debug("closed scope for key switch",
			zap.Stringer("scope", scope), zap.String("user_id", h.key.UserID))
	}

	s, err := Open(m.path(scope, key), scope)
	if err != nil {
		return nil, err
	}
	m.handles[scope] = &handle{key: key, store: s}
	return s, nil
}

// CloseScope releases the handle for the scope. Closing an already-closed
// scope is a no-op.
func (m *ScopeManager) CloseScope(scope Scope) error {
	m.mu[scope].Lock()
	defer m.mu[scope].Unlock()
	return m.closeLocked(scope)
}

func (m *ScopeManager) closeLocked(scope Scope) error {
	h := m.handles[scope]
	if h == nil {
		return nil
	}
	m.handles[scope] = nil
	if err := h.store.Close(); err != nil {
		return fmt.Errorf("failed to close %s store: %w", scope, err)
	}
	return nil
}

// Close releases every open handle, deepest scope first.
func (m *ScopeManager) Close() error {
	var firstErr error
	for scope := numScopes - 1; scope >= ScopeApp; scope-- {
		if err := m.CloseScope(scope); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

// SwitchUser closes the user-keyed scopes bound to a different user so the
// next open binds them to userID. Content goes first: it is the deepest scope.
func (m *ScopeManager) SwitchUser(userID string) error {
	for _, scope := range []Scope{ScopeMailboxContent, ScopeMailboxInfo, ScopeUser} {
		m.mu[scope].Lock()
		h := m.handles[scope]
		if h != nil && h.key.UserID != userID {
			if err := m.closeLocked(scope); err != nil {
				m.mu[scope].Unlock()
				return err
			}
		}
		m.mu[scope].Unlock()
	}
	return nil
}

// DeleteContent removes the content database file for (userID, mailboxID).
// The file may only be deleted while its scope is closed; if the handle is
// currently bound to that key it is closed first.
func (m *ScopeManager) DeleteContent(userID, mailboxID string) error {
	key := Key{UserID: userID, MailboxID: mailboxID}

	m.mu[ScopeMailboxContent].Lock()
	defer m.mu[ScopeMailboxContent].Unlock()

	if h := m.handles[ScopeMailboxContent]; h != nil && h.key == key {
		if err := m.closeLocked(ScopeMailboxContent); err != nil {
			return fmt.Errorf("%w: %v", ErrScopeOpen, err)
		}
	}

	path := m.path(ScopeMailboxContent, key)
	for _, p := range []string{path, path + "-wal", path + "-shm"} {
		if err := os.Remove(p); err != nil && !errors.Is(err, os.ErrNotExist) {
			return fmt.Errorf("failed to delete content store file: %w", err)
		}
	}

	m.log.Info("deleted mailbox content store",
		zap.String("user_id", userID), zap.String("mailbox_id", mailboxID))
	return nil
}

// ContentIsOpen reports whether the content scope is currently bound to the
// given key.
func (m *ScopeManager) ContentIsOpen(userID, mailboxID string) bool {
	m.mu[ScopeMailboxContent].Lock()
	defer m.mu[ScopeMailboxContent].Unlock()
	h := m.handles[ScopeMailboxContent]
	return h != nil && h.key == (Key{UserID: userID, MailboxID: mailboxID})
}

func (m *ScopeManager) path(scope Scope, key Key) string {
	switch scope {
	case ScopeApp:
		return filepath.Join(m.dir, "app.db")
	case ScopeUser:
		return filepath.Join(m.dir, fmt.Sprintf("user-%s.db", key.UserID))
	case ScopeMailboxInfo:
		return filepath.Join(m.dir, fmt.Sprintf("mailboxes-%s.db", key.UserID))
	default:
		return filepath.Join(m.dir, fmt.Sprintf("mailbox-%s-%s.db", key.UserID, key.MailboxID))
	}
}
