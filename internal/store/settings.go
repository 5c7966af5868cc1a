package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/mailmirror/mailmirror/internal/models"
)

// ErrAccountNotFound is returned when no account exists for a mailbox id.
var ErrAccountNotFound = errors.New("account not found")

// GetAppSettings returns the app-scope settings, falling back to defaults
// when nothing has been saved yet.
func GetAppSettings(ctx context.Context, s *Store) (*models.AppSettings, error) {
	var theme, swipeLeft, swipeRight, lastUserID string
	err := s.db.QueryRowContext(ctx,
		"SELECT theme, swipe_left, swipe_right, last_user_id FROM app_settings WHERE id = 1",
	).Scan(&theme, &swipeLeft, &swipeRight, &lastUserID)
	if errors.Is(err, sql.ErrNoRows) {
		return models.DefaultAppSettings(), nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get app settings: %w", err)
	}
	return &models.AppSettings{
		Theme:      models.ParseTheme(theme),
		SwipeLeft:  models.ParseSwipeAction(swipeLeft),
		SwipeRight: models.ParseSwipeAction(swipeRight),
		LastUserID: lastUserID,
	}, nil
}

// SaveAppSettings writes the single settings row.
func SaveAppSettings(ctx context.Context, s *Store, settings *models.AppSettings) error {
	if _, err := s.db.ExecContext(ctx, `
		INSERT INTO app_settings (id, theme, swipe_left, swipe_right, last_user_id, updated_at)
		VALUES (1, ?, ?, ?, ?, ?)
		ON CONFLICT (id) DO UPDATE SET
			theme = excluded.theme,
			swipe_left = excluded.swipe_left,
			swipe_right = excluded.swipe_right,
			last_user_id = excluded.last_user_id,
			updated_at = excluded.updated_at
	`, string(settings.Theme), string(settings.SwipeLeft), string(settings.SwipeRight),
		settings.LastUserID, time.Now().Unix(),
	); err != nil {
		return fmt.Errorf("failed to save app settings: %w", err)
	}
	return nil
}

// GetUserSettings returns the user's settings, or nil when the user has no
// row yet.
func GetUserSettings(ctx context.Context, s *Store, userID string) (*models.UserSettings, error) {
	var (
		us                   models.UserSettings
		createdAt, updatedAt int64
	)
	err := s.db.QueryRowContext(ctx, `
		SELECT user_id, email, threads_per_page, signature_id, last_mailbox_id, created_at, updated_at
		FROM user_settings WHERE user_id = ?
	`, userID).Scan(
		&us.UserID, &us.Email, &us.ThreadsPerPage, &us.SignatureID,
		&us.LastMailboxID, &createdAt, &updatedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get user settings: %w", err)
	}
	us.CreatedAt = time.Unix(createdAt, 0).UTC()
	us.UpdatedAt = time.Unix(updatedAt, 0).UTC()
	return &us, nil
}

// SaveUserSettings writes the user's settings row, creating it on first save.
func SaveUserSettings(ctx context.Context, s *Store, us *models.UserSettings) error {
	now := time.Now().Unix()
	if _, err := s.db.ExecContext(ctx, `
		INSERT INTO user_settings (user_id, email, threads_per_page, signature_id, last_mailbox_id, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (user_id) DO UPDATE SET
			email = excluded.email,
			threads_per_page = excluded.threads_per_page,
			signature_id = excluded.signature_id,
			last_mailbox_id = excluded.last_mailbox_id,
			updated_at = excluded.updated_at
	`, us.UserID, us.Email, us.ThreadsPerPage, us.SignatureID, us.LastMailboxID, now, now,
	); err != nil {
		return fmt.Errorf("failed to save user settings: %w", err)
	}
	return nil
}

// GetAccounts returns every configured account in the user scope.
func GetAccounts(ctx context.Context, s *Store) ([]*models.Account, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT mailbox_id, email, imap_server_hostname, imap_username, encrypted_imap_password, created_at
		FROM accounts ORDER BY email
	`)
	if err != nil {
		return nil, fmt.Errorf("failed to get accounts: %w", err)
	}
	defer rows.Close()

	var accounts []*models.Account
	for rows.Next() {
		a, err := scanAccount(rows)
		if err != nil {
			return nil, err
		}
		accounts = append(accounts, a)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating accounts: %w", err)
	}
	return accounts, nil
}

// GetAccount returns the account for one mailbox.
func GetAccount(ctx context.Context, s *Store, mailboxID string) (*models.Account, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT mailbox_id, email, imap_server_hostname, imap_username, encrypted_imap_password, created_at
		FROM accounts WHERE mailbox_id = ?
	`, mailboxID)
	a, err := scanAccount(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrAccountNotFound
	}
	return a, err
}

// SaveAccount writes the account row for a mailbox.
func SaveAccount(ctx context.Context, s *Store, a *models.Account) error {
	createdAt := a.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now()
	}
	if _, err := s.db.ExecContext(ctx, `
		INSERT INTO accounts (mailbox_id, email, imap_server_hostname, imap_username, encrypted_imap_password, created_at)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT (mailbox_id) DO UPDATE SET
			email = excluded.email,
			imap_server_hostname = excluded.imap_server_hostname,
			imap_username = excluded.imap_username,
			encrypted_imap_password = excluded.encrypted_imap_password
	`, a.MailboxID, a.Email, a.IMAPServerHostname, a.IMAPUsername,
		a.EncryptedIMAPPassword, createdAt.Unix(),
	); err != nil {
		return fmt.Errorf("failed to save account: %w", err)
	}
	return nil
}

// DeleteAccount removes the account row for a mailbox.
func DeleteAccount(ctx context.Context, s *Store, mailboxID string) error {
	if _, err := s.db.ExecContext(ctx,
		"DELETE FROM accounts WHERE mailbox_id = ?", mailboxID,
	); err != nil {
		return fmt.Errorf("failed to delete account: %w", err)
	}
	return nil
}

func scanAccount(row rowScanner) (*models.Account, error) {
	var (
		a         models.Account
		createdAt int64
	)
	if err := row.Scan(
		&a.MailboxID, &a.Email, &a.IMAPServerHostname, &a.IMAPUsername,
		&a.EncryptedIMAPPassword, &createdAt,
	); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("failed to scan account: %w", err)
	}
	a.CreatedAt = time.Unix(createdAt, 0).UTC()
	return &a, nil
}
