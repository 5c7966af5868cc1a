package models

import "time"

// AppSettings is the single-row settings record in the app-settings scope.
type AppSettings struct {
	Theme      Theme       `json:"theme"`
	SwipeLeft  SwipeAction `json:"swipe_left"`
	SwipeRight SwipeAction `json:"swipe_right"`
	LastUserID string      `json:"last_user_id,omitempty"`
}

// DefaultAppSettings returns the settings used before the user changes anything.
func DefaultAppSettings() *AppSettings {
	return &AppSettings{
		Theme:      ThemeSystem,
		SwipeLeft:  SwipeArchive,
		SwipeRight: SwipeMarkAsRead,
	}
}

// UserSettings lives in the user-info scope.
type UserSettings struct {
	UserID         string    `json:"user_id"`
	Email          string    `json:"email"`
	ThreadsPerPage int       `json:"threads_per_page"`
	SignatureID    string    `json:"signature_id,omitempty"`
	LastMailboxID  string    `json:"last_mailbox_id,omitempty"`
	CreatedAt      time.Time `json:"created_at"`
	UpdatedAt      time.Time `json:"updated_at"`
}

// Account holds the remote credentials for one mailbox, stored in the
// user-info scope. The IMAP password is encrypted at rest.
type Account struct {
	MailboxID             string    `json:"mailbox_id"`
	Email                 string    `json:"email"`
	IMAPServerHostname    string    `json:"imap_server_hostname"`
	IMAPUsername          string    `json:"imap_username"`
	EncryptedIMAPPassword []byte    `json:"-"`
	CreatedAt             time.Time `json:"created_at"`
}
