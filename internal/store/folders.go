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

// ErrFolderNotFound is returned when a requested folder cannot be found.
var ErrFolderNotFound = errors.New("folder not found")

// UpsertFolderTx saves or updates a folder by its server-assigned id. The
// local-only flags (favorite, collapsed) are preserved on update.
func UpsertFolderTx(tx *sqlx.Tx, f *models.Folder) error {
	_, err := tx.Exec(`
		INSERT INTO folders (id, name, path, role, is_favorite, is_collapsed, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (id) DO UPDATE SET
			name = excluded.name,
			path = excluded.path,
			role = excluded.role,
			updated_at = excluded.updated_at
	`, f.ID, f.Name, f.Path, string(f.Role), f.IsFavorite, f.IsCollapsed, time.Now().Unix())
	if err != nil {
		return fmt.Errorf("failed to save folder: %w", err)
	}
	return nil
}

// DeleteFolderTx removes a folder together with its sync state, threads,
// thread messages, and their attachments, all in the caller's transaction.
func DeleteFolderTx(tx *sqlx.Tx, folderID string) error {
	statements := []string{
		`DELETE FROM attachments WHERE message_uid IN
			(SELECT uid FROM messages WHERE folder_id = ?)`,
		"DELETE FROM messages WHERE folder_id = ?",
		"DELETE FROM threads WHERE folder_id = ?",
		"DELETE FROM folder_sync WHERE folder_id = ?",
		"DELETE FROM folders WHERE id = ?",
	}
	for _, stmt := range statements {
		if _, err := tx.Exec(stmt, folderID); err != nil {
			return fmt.Errorf("failed to delete folder %s: %w", folderID, err)
		}
	}
	return nil
}

// GetFolders returns every folder in the mailbox, in no particular order.
// Grouping and sorting happen in models.PartitionFolders.
func GetFolders(ctx context.Context, s *Store) ([]*models.Folder, error) {
	rows, err := s.db.QueryContext(ctx,
		"SELECT id, name, path, role, is_favorite, is_collapsed FROM folders")
	if err != nil {
		return nil, fmt.Errorf("failed to get folders: %w", err)
	}
	defer rows.Close()

	var folders []*models.Folder
	for rows.Next() {
		f, err := scanFolder(rows)
		if err != nil {
			return nil, err
		}
		folders = append(folders, f)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating folders: %w", err)
	}
	return folders, nil
}

// GetFolder returns one folder by id.
func GetFolder(ctx context.Context, s *Store, folderID string) (*models.Folder, error) {
	row := s.db.QueryRowContext(ctx,
		"SELECT id, name, path, role, is_favorite, is_collapsed FROM folders WHERE id = ?",
		folderID)
	f, err := scanFolder(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrFolderNotFound
	}
	return f, err
}

// SetFolderFavorite flips the local-only favorite flag.
func SetFolderFavorite(ctx context.Context, s *Store, folderID string, favorite bool) error {
	return setFolderFlag(ctx, s, "is_favorite", folderID, favorite)
}

// SetFolderCollapsed flips the local-only collapsed flag.
func SetFolderCollapsed(ctx context.Context, s *Store, folderID string, collapsed bool) error {
	return setFolderFlag(ctx, s, "is_collapsed", folderID, collapsed)
}

func setFolderFlag(ctx context.Context, s *Store, column, folderID string, value bool) error {
	res, err := s.db.ExecContext(ctx,
		"UPDATE folders SET "+column+" = ?, updated_at = ? WHERE id = ?",
		value, time.Now().Unix(), folderID)
	if err != nil {
		return fmt.Errorf("failed to update folder flag: %w", err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return ErrFolderNotFound
	}
	return nil
}

// FolderSync is the per-folder incremental fetch state. Cursor is an opaque
// token handed back to the remote fetcher on the next thread fetch.
type FolderSync struct {
	FolderID    string
	Cursor      string
	SyncedAt    *time.Time
	ThreadCount int
}

// GetFolderSync returns the sync state for folderID, or a zero state if the
// folder has never been synced.
func GetFolderSync(ctx context.Context, s *Store, folderID string) (*FolderSync, error) {
	var (
		fs       = FolderSync{FolderID: folderID}
		syncedAt sql.NullInt64
	)
	err := s.db.QueryRowContext(ctx,
		"SELECT cursor, synced_at, thread_count FROM folder_sync WHERE folder_id = ?",
		folderID,
	).Scan(&fs.Cursor, &syncedAt, &fs.ThreadCount)
	if errors.Is(err, sql.ErrNoRows) {
		return &fs, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get folder sync state: %w", err)
	}
	fs.SyncedAt = unixOrNil(syncedAt)
	return &fs, nil
}

// SetFolderSyncTx records the new cursor and thread count after a thread
// reconciliation committed, in the same transaction as the thread changes.
func SetFolderSyncTx(tx *sqlx.Tx, fs *FolderSync) error {
	_, err := tx.Exec(`
		INSERT INTO folder_sync (folder_id, cursor, synced_at, thread_count)
		VALUES (?, ?, ?, ?)
		ON CONFLICT (folder_id) DO UPDATE SET
			cursor = excluded.cursor,
			synced_at = excluded.synced_at,
			thread_count = excluded.thread_count
	`, fs.FolderID, fs.Cursor, nilOrUnix(fs.SyncedAt), fs.ThreadCount)
	if err != nil {
		return fmt.Errorf("failed to save folder sync state: %w", err)
	}
	return nil
}

func scanFolder(row rowScanner) (*models.Folder, error) {
	var (
		f    models.Folder
		role string
	)
	if err := row.Scan(&f.ID, &f.Name, &f.Path, &role, &f.IsFavorite, &f.IsCollapsed); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("failed to scan folder: %w", err)
	}
	f.Role = models.ParseFolderRole(role)
	return &f, nil
}
