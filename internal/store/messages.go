package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/mailmirror/mailmirror/internal/models"
)

// ErrMessageNotFound is returned when a requested message cannot be found.
var ErrMessageNotFound = errors.New("message not found")

const messageColumns = `
	uid, folder_id, thread_uid, imap_uid, subject,
	from_address, to_addresses, cc_addresses,
	sent_at, seen, favorite, spam,
	body_text, unsafe_body_html, fully_downloaded
`

// UpsertMessageTx saves or updates a message by uid. A metadata-only refetch
// must never regress content a full download already stored: when the
// existing row is fully downloaded and the incoming one is not, the body
// columns keep their stored values and the fully_downloaded flag stays set.
func UpsertMessageTx(tx *sqlx.Tx, m *models.Message) error {
	var threadUID interface{}
	if m.ThreadUID != "" {
		threadUID = m.ThreadUID
	}

	_, err := tx.Exec(`
		INSERT INTO messages (
			uid, folder_id, thread_uid, imap_uid, subject,
			from_address, to_addresses, cc_addresses,
			sent_at, seen, favorite, spam,
			body_text, unsafe_body_html, fully_downloaded
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (uid) DO UPDATE SET
			folder_id = excluded.folder_id,
			thread_uid = excluded.thread_uid,
			imap_uid = excluded.imap_uid,
			subject = excluded.subject,
			from_address = excluded.from_address,
			to_addresses = excluded.to_addresses,
			cc_addresses = excluded.cc_addresses,
			sent_at = excluded.sent_at,
			seen = excluded.seen,
			favorite = excluded.favorite,
			spam = excluded.spam,
			body_text = CASE
				WHEN messages.fully_downloaded AND NOT excluded.fully_downloaded
				THEN messages.body_text ELSE excluded.body_text END,
			unsafe_body_html = CASE
				WHEN messages.fully_downloaded AND NOT excluded.fully_downloaded
				THEN messages.unsafe_body_html ELSE excluded.unsafe_body_html END,
			fully_downloaded = messages.fully_downloaded OR excluded.fully_downloaded
	`,
		m.UID, m.FolderID, threadUID, m.IMAPUID, m.Subject,
		m.FromAddress, marshalStrings(m.ToAddresses), marshalStrings(m.CCAddresses),
		nilOrUnix(m.SentAt), m.Seen, m.Favorite, m.Spam,
		m.BodyText, m.UnsafeBodyHTML, m.FullyDownloaded,
	)
	if err != nil {
		return fmt.Errorf("failed to save message: %w", err)
	}

	// Attachment rows follow the same rule: only a full download may replace
	// them, because replacing would drop the local downloaded flags.
	if m.FullyDownloaded && len(m.Attachments) > 0 {
		if err := replaceAttachmentsTx(tx, m.UID, m.Attachments); err != nil {
			return err
		}
	}
	return nil
}

// DeleteMessageTx removes one message and its attachments.
func DeleteMessageTx(tx *sqlx.Tx, messageUID string) error {
	if _, err := tx.Exec(
		"DELETE FROM attachments WHERE message_uid = ?", messageUID,
	); err != nil {
		return fmt.Errorf("failed to delete message attachments: %w", err)
	}
	if _, err := tx.Exec("DELETE FROM messages WHERE uid = ?", messageUID); err != nil {
		return fmt.Errorf("failed to delete message: %w", err)
	}
	return nil
}

// GetMessagesByThread returns the thread's messages, oldest first.
func GetMessagesByThread(ctx context.Context, s *Store, threadUID string) ([]*models.Message, error) {
	rows, err := s.db.QueryContext(ctx,
		"SELECT "+messageColumns+" FROM messages WHERE thread_uid = ? ORDER BY sent_at, uid",
		threadUID)
	if err != nil {
		return nil, fmt.Errorf("failed to get thread messages: %w", err)
	}
	defer rows.Close()

	var messages []*models.Message
	for rows.Next() {
		m, err := scanMessage(rows)
		if err != nil {
			return nil, err
		}
		messages = append(messages, m)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating messages: %w", err)
	}

	for _, m := range messages {
		if m.Attachments, err = getAttachments(ctx, s, m.UID); err != nil {
			return nil, err
		}
	}
	return messages, nil
}

// GetMessage returns one message with its attachments.
func GetMessage(ctx context.Context, s *Store, messageUID string) (*models.Message, error) {
	row := s.db.QueryRowContext(ctx,
		"SELECT "+messageColumns+" FROM messages WHERE uid = ?", messageUID)
	m, err := scanMessage(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrMessageNotFound
	}
	if err != nil {
		return nil, err
	}
	if m.Attachments, err = getAttachments(ctx, s, m.UID); err != nil {
		return nil, err
	}
	return m, nil
}

// GetMessageUIDsByThread returns the uids of the thread's messages in this
// folder, for diffing against a remote listing.
func GetMessageUIDsByThread(ctx context.Context, s *Store, threadUID, folderID string) ([]string, error) {
	var uids []string
	if err := s.db.SelectContext(ctx, &uids,
		"SELECT uid FROM messages WHERE thread_uid = ? AND folder_id = ? ORDER BY uid",
		threadUID, folderID,
	); err != nil {
		return nil, fmt.Errorf("failed to get message uids: %w", err)
	}
	return uids, nil
}

// SetMessageSeen updates the seen flag and the owning thread's aggregates in
// one transaction.
func SetMessageSeen(ctx context.Context, s *Store, messageUID string, seen bool) error {
	return s.WithinTx(ctx, func(tx *sqlx.Tx) error {
		threadUID, err := setMessageFlagTx(tx, "seen", messageUID, seen)
		if err != nil {
			return err
		}
		if threadUID == "" {
			return nil
		}
		return RecomputeThreadAggregatesTx(tx, threadUID)
	})
}

// SetMessageFavorite updates the favorite flag and the owning thread's
// aggregates in one transaction.
func SetMessageFavorite(ctx context.Context, s *Store, messageUID string, favorite bool) error {
	return s.WithinTx(ctx, func(tx *sqlx.Tx) error {
		threadUID, err := setMessageFlagTx(tx, "favorite", messageUID, favorite)
		if err != nil {
			return err
		}
		if threadUID == "" {
			return nil
		}
		return RecomputeThreadAggregatesTx(tx, threadUID)
	})
}

func setMessageFlagTx(tx *sqlx.Tx, column, messageUID string, value bool) (string, error) {
	res, err := tx.Exec(
		"UPDATE messages SET "+column+" = ? WHERE uid = ?", value, messageUID)
	if err != nil {
		return "", fmt.Errorf("failed to update message flag: %w", err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return "", ErrMessageNotFound
	}

	var threadUID sql.NullString
	if err := tx.Get(&threadUID,
		"SELECT thread_uid FROM messages WHERE uid = ?", messageUID,
	); err != nil {
		return "", fmt.Errorf("failed to read message thread: %w", err)
	}
	return threadUID.String, nil
}

// CountUnseenMessages returns how many locally-stored messages are unseen,
// spam and trash folders excluded. This feeds the mailbox's local unread
// count.
func CountUnseenMessages(ctx context.Context, s *Store) (int, error) {
	var n int
	if err := s.db.GetContext(ctx, &n, `
		SELECT COUNT(*) FROM messages
		WHERE seen = 0 AND folder_id NOT IN
			(SELECT id FROM folders WHERE role IN ('spam', 'trash'))
	`); err != nil {
		return 0, fmt.Errorf("failed to count unseen messages: %w", err)
	}
	return n, nil
}

// SetAttachmentDownloaded flips the local-only downloaded flag.
func SetAttachmentDownloaded(ctx context.Context, s *Store, attachmentID string, downloaded bool) error {
	res, err := s.db.ExecContext(ctx,
		"UPDATE attachments SET downloaded = ? WHERE id = ?", downloaded, attachmentID)
	if err != nil {
		return fmt.Errorf("failed to update attachment: %w", err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return ErrMessageNotFound
	}
	return nil
}

func replaceAttachmentsTx(tx *sqlx.Tx, messageUID string, attachments []models.Attachment) error {
	// Carry over downloaded flags keyed by content identity before replacing.
	downloaded := map[string]bool{}
	rows, err := tx.Query(
		"SELECT filename, content_id, downloaded FROM attachments WHERE message_uid = ?",
		messageUID)
	if err != nil {
		return fmt.Errorf("failed to read existing attachments: %w", err)
	}
	for rows.Next() {
		var filename, contentID string
		var d bool
		if err := rows.Scan(&filename, &contentID, &d); err != nil {
			rows.Close()
			return fmt.Errorf("failed to scan attachment: %w", err)
		}
		downloaded[filename+"\x00"+contentID] = d
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return fmt.Errorf("error iterating attachments: %w", err)
	}

	if _, err := tx.Exec(
		"DELETE FROM attachments WHERE message_uid = ?", messageUID,
	); err != nil {
		return fmt.Errorf("failed to clear attachments: %w", err)
	}

	for i := range attachments {
		a := &attachments[i]
		if a.ID == "" {
			a.ID = uuid.NewString()
		}
		if d, ok := downloaded[a.Filename+"\x00"+a.ContentID]; ok && d {
			a.Downloaded = true
		}
		if _, err := tx.Exec(`
			INSERT INTO attachments (id, message_uid, filename, mime_type, size_bytes, is_inline, content_id, downloaded)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		`, a.ID, messageUID, a.Filename, a.MimeType, a.SizeBytes, a.IsInline, a.ContentID, a.Downloaded); err != nil {
			return fmt.Errorf("failed to save attachment: %w", err)
		}
	}
	return nil
}

func getAttachments(ctx context.Context, s *Store, messageUID string) ([]models.Attachment, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, message_uid, filename, mime_type, size_bytes, is_inline, content_id, downloaded
		FROM attachments WHERE message_uid = ? ORDER BY filename
	`, messageUID)
	if err != nil {
		return nil, fmt.Errorf("failed to get attachments: %w", err)
	}
	defer rows.Close()

	var attachments []models.Attachment
	for rows.Next() {
		var a models.Attachment
		if err := rows.Scan(
			&a.ID, &a.MessageUID, &a.Filename, &a.MimeType,
			&a.SizeBytes, &a.IsInline, &a.ContentID, &a.Downloaded,
		); err != nil {
			return nil, fmt.Errorf("failed to scan attachment: %w", err)
		}
		attachments = append(attachments, a)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating attachments: %w", err)
	}
	return attachments, nil
}

func scanMessage(row rowScanner) (*models.Message, error) {
	var (
		m         models.Message
		threadUID sql.NullString
		to, cc    string
		sentAt    sql.NullInt64
	)
	if err := row.Scan(
		&m.UID, &m.FolderID, &threadUID, &m.IMAPUID, &m.Subject,
		&m.FromAddress, &to, &cc,
		&sentAt, &m.Seen, &m.Favorite, &m.Spam,
		&m.BodyText, &m.UnsafeBodyHTML, &m.FullyDownloaded,
	); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("failed to scan message: %w", err)
	}
	m.ThreadUID = threadUID.String
	m.ToAddresses = unmarshalStrings(to)
	m.CCAddresses = unmarshalStrings(cc)
	m.SentAt = unixOrNil(sentAt)
	return &m, nil
}
