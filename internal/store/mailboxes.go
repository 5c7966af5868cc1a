package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/mailmirror/mailmirror/internal/models"
)

// ErrMailboxNotFound is returned when a requested mailbox cannot be found.
var ErrMailboxNotFound = errors.New("mailbox not found")

const mailboxColumns = `
	user_id, mailbox_id, uuid, email,
	quota_used_bytes, quota_max_bytes,
	unread_remote, unread_local,
	can_manage_filters, can_manage_signatures,
	signature, feature_flags
`

// UpsertMailboxTx saves or updates a mailbox by its (user_id, mailbox_id)
// key. The locally-computed unread count is preserved on update; the remote
// fetch has no authority over it.
func UpsertMailboxTx(tx *sqlx.Tx, m *models.Mailbox) error {
	_, err := tx.Exec(`
		INSERT INTO mailboxes (
			user_id, mailbox_id, uuid, email,
			quota_used_bytes, quota_max_bytes,
			unread_remote, unread_local,
			can_manage_filters, can_manage_signatures,
			signature, feature_flags, updated_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (user_id, mailbox_id) DO UPDATE SET
			uuid = excluded.uuid,
			email = excluded.email,
			quota_used_bytes = excluded.quota_used_bytes,
			quota_max_bytes = excluded.quota_max_bytes,
			unread_remote = excluded.unread_remote,
			can_manage_filters = excluded.can_manage_filters,
			can_manage_signatures = excluded.can_manage_signatures,
			signature = excluded.signature,
			feature_flags = excluded.feature_flags,
			updated_at = excluded.updated_at
	`,
		m.UserID, m.MailboxID, m.UUID, m.Email,
		m.QuotaUsedBytes, m.QuotaMaxBytes,
		m.UnreadRemote, m.UnreadLocal,
		m.CanManageFilters, m.CanManageSignatures,
		m.Signature, marshalStrings(m.FeatureFlags), time.Now().Unix(),
	)
	if err != nil {
		return fmt.Errorf("failed to save mailbox: %w", err)
	}
	return nil
}

// DeleteMailboxTx removes a mailbox row. The caller is responsible for the
// rest of the cascade (the content-scope database file).
func DeleteMailboxTx(tx *sqlx.Tx, userID, mailboxID string) error {
	if _, err := tx.Exec(
		"DELETE FROM mailboxes WHERE user_id = ? AND mailbox_id = ?",
		userID, mailboxID,
	); err != nil {
		return fmt.Errorf("failed to delete mailbox: %w", err)
	}
	return nil
}

// GetMailboxes returns every mailbox mirrored for the user, ordered by email.
func GetMailboxes(ctx context.Context, s *Store, userID string) ([]*models.Mailbox, error) {
	rows, err := s.db.QueryContext(ctx,
		"SELECT "+mailboxColumns+" FROM mailboxes WHERE user_id = ? ORDER BY email",
		userID,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to get mailboxes: %w", err)
	}
	defer rows.Close()

	var mailboxes []*models.Mailbox
	for rows.Next() {
		m, err := scanMailbox(rows)
		if err != nil {
			return nil, err
		}
		mailboxes = append(mailboxes, m)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating mailboxes: %w", err)
	}
	return mailboxes, nil
}

// GetMailbox returns one mailbox by key.
func GetMailbox(ctx context.Context, s *Store, userID, mailboxID string) (*models.Mailbox, error) {
	row := s.db.QueryRowContext(ctx,
		"SELECT "+mailboxColumns+" FROM mailboxes WHERE user_id = ? AND mailbox_id = ?",
		userID, mailboxID,
	)
	m, err := scanMailbox(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrMailboxNotFound
	}
	return m, err
}

// SetMailboxUnreadLocal writes the locally-computed unread count for a
// mailbox, typically after a message reconciliation committed.
func SetMailboxUnreadLocal(ctx context.Context, s *Store, userID, mailboxID string, unread int) error {
	if _, err := s.db.ExecContext(ctx,
		"UPDATE mailboxes SET unread_local = ?, updated_at = ? WHERE user_id = ? AND mailbox_id = ?",
		unread, time.Now().Unix(), userID, mailboxID,
	); err != nil {
		return fmt.Errorf("failed to set local unread count: %w", err)
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanMailbox(row rowScanner) (*models.Mailbox, error) {
	var m models.Mailbox
	var featureFlags string
	if err := row.Scan(
		&m.UserID, &m.MailboxID, &m.UUID, &m.Email,
		&m.QuotaUsedBytes, &m.QuotaMaxBytes,
		&m.UnreadRemote, &m.UnreadLocal,
		&m.CanManageFilters, &m.CanManageSignatures,
		&m.Signature, &featureFlags,
	); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("failed to scan mailbox: %w", err)
	}
	m.FeatureFlags = unmarshalStrings(featureFlags)
	return &m, nil
}
