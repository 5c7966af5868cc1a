package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/jmoiron/sqlx"

	"github.com/mailmirror/mailmirror/internal/models"
)

// ErrThreadNotFound is returned when a requested thread cannot be found.
var ErrThreadNotFound = errors.New("thread not found")

// UpsertThreadTx saves or updates a thread by uid. Aggregates are written as
// given; callers recompute them with RecomputeThreadAggregatesTx after the
// thread's message set changes.
func UpsertThreadTx(tx *sqlx.Tx, t *models.Thread) error {
	_, err := tx.Exec(`
		INSERT INTO threads (uid, folder_id, subject, unseen_count, is_favorite, last_message_at)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT (uid) DO UPDATE SET
			folder_id = excluded.folder_id,
			subject = excluded.subject,
			unseen_count = excluded.unseen_count,
			is_favorite = excluded.is_favorite,
			last_message_at = excluded.last_message_at
	`, t.UID, t.FolderID, t.Subject, t.UnseenCount, t.IsFavorite, nilOrUnix(t.LastMessageAt))
	if err != nil {
		return fmt.Errorf("failed to save thread: %w", err)
	}
	return nil
}

// DeleteThreadTx removes a thread together with its messages in this folder
// and their attachments. Messages of the same thread living in other folders
// are left alone; only their thread link is cleared.
func DeleteThreadTx(tx *sqlx.Tx, threadUID, folderID string) error {
	if _, err := tx.Exec(`
		DELETE FROM attachments WHERE message_uid IN
			(SELECT uid FROM messages WHERE thread_uid = ? AND folder_id = ?)
	`, threadUID, folderID); err != nil {
		return fmt.Errorf("failed to delete thread attachments: %w", err)
	}
	if _, err := tx.Exec(
		"DELETE FROM messages WHERE thread_uid = ? AND folder_id = ?",
		threadUID, folderID,
	); err != nil {
		return fmt.Errorf("failed to delete thread messages: %w", err)
	}
	if _, err := tx.Exec(
		"UPDATE messages SET thread_uid = NULL WHERE thread_uid = ?",
		threadUID,
	); err != nil {
		return fmt.Errorf("failed to detach thread messages: %w", err)
	}
	if _, err := tx.Exec("DELETE FROM threads WHERE uid = ?", threadUID); err != nil {
		return fmt.Errorf("failed to delete thread: %w", err)
	}
	return nil
}

// RecomputeThreadAggregatesTx rebuilds the thread's unseen count, favorite
// flag, and last-message timestamp from its current message rows.
func RecomputeThreadAggregatesTx(tx *sqlx.Tx, threadUID string) error {
	if _, err := tx.Exec(`
		UPDATE threads SET
			unseen_count = (SELECT COUNT(*) FROM messages
				WHERE thread_uid = threads.uid AND seen = 0),
			is_favorite = EXISTS (SELECT 1 FROM messages
				WHERE thread_uid = threads.uid AND favorite = 1),
			last_message_at = (SELECT MAX(sent_at) FROM messages
				WHERE thread_uid = threads.uid)
		WHERE uid = ?
	`, threadUID); err != nil {
		return fmt.Errorf("failed to recompute thread aggregates: %w", err)
	}
	return nil
}

// GetThreads returns the folder's threads, newest first. Messages are not
// loaded; use GetThread for a single thread with its messages.
func GetThreads(ctx context.Context, s *Store, folderID string, limit, offset int) ([]*models.Thread, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT uid, folder_id, subject, unseen_count, is_favorite, last_message_at
		FROM threads WHERE folder_id = ?
		ORDER BY last_message_at DESC, uid
		LIMIT ? OFFSET ?
	`, folderID, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("failed to get threads: %w", err)
	}
	defer rows.Close()

	var threads []*models.Thread
	for rows.Next() {
		t, err := scanThread(rows)
		if err != nil {
			return nil, err
		}
		threads = append(threads, t)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating threads: %w", err)
	}
	return threads, nil
}

// GetThreadUIDs returns the uids of every thread in the folder. The
// reconciler diffs this set against the remote listing.
func GetThreadUIDs(ctx context.Context, s *Store, folderID string) ([]string, error) {
	var uids []string
	if err := s.db.SelectContext(ctx, &uids,
		"SELECT uid FROM threads WHERE folder_id = ? ORDER BY uid", folderID,
	); err != nil {
		return nil, fmt.Errorf("failed to get thread uids: %w", err)
	}
	return uids, nil
}

// GetThread returns one thread with its messages, oldest message first.
func GetThread(ctx context.Context, s *Store, threadUID string) (*models.Thread, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT uid, folder_id, subject, unseen_count, is_favorite, last_message_at
		FROM threads WHERE uid = ?
	`, threadUID)
	t, err := scanThread(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrThreadNotFound
	}
	if err != nil {
		return nil, err
	}

	t.Messages, err = GetMessagesByThread(ctx, s, threadUID)
	if err != nil {
		return nil, err
	}
	return t, nil
}

// CountThreads returns how many threads the folder holds locally.
func CountThreads(ctx context.Context, s *Store, folderID string) (int, error) {
	var n int
	if err := s.db.GetContext(ctx, &n,
		"SELECT COUNT(*) FROM threads WHERE folder_id = ?", folderID,
	); err != nil {
		return 0, fmt.Errorf("failed to count threads: %w", err)
	}
	return n, nil
}

func scanThread(row rowScanner) (*models.Thread, error) {
	var (
		t             models.Thread
		lastMessageAt sql.NullInt64
	)
	if err := row.Scan(
		&t.UID, &t.FolderID, &t.Subject, &t.UnseenCount, &t.IsFavorite, &lastMessageAt,
	); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("failed to scan thread: %w", err)
	}
	t.LastMessageAt = unixOrNil(lastMessageAt)
	return &t, nil
}
