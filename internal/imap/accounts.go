package imap

import (
	"context"
	"fmt"
	"sync"

	"github.com/mailmirror/mailmirror/internal/crypto"
	"github.com/mailmirror/mailmirror/internal/store"
)

// Account is one mailbox's remote endpoint with its decrypted password.
type Account struct {
	MailboxID string
	Email     string
	Hostname  string
	Username  string
	Password  string
}

// AccountSource resolves mailbox ids to remote credentials.
type AccountSource interface {
	// Accounts lists every configured account for the user.
	Accounts(ctx context.Context, userID string) ([]Account, error)

	// Account resolves one mailbox's credentials.
	Account(ctx context.Context, mailboxID string) (Account, error)
}

// StoreAccountSource reads accounts from the user-info scope and decrypts
// their IMAP passwords. Per-mailbox lookups are answered from the last
// listing, so a listing for the owning user must happen first; descents
// always start at the mailbox level, which guarantees that.
type StoreAccountSource struct {
	scopes    *store.ScopeManager
	encryptor *crypto.Encryptor

	mu    sync.Mutex
	cache map[string]Account
}

// NewStoreAccountSource creates an account source over the given scopes.
func NewStoreAccountSource(scopes *store.ScopeManager, encryptor *crypto.Encryptor) *StoreAccountSource {
	return &StoreAccountSource{
		scopes:    scopes,
		encryptor: encryptor,
		cache:     make(map[string]Account),
	}
}

// Accounts lists every configured account for the user.
func (s *StoreAccountSource) Accounts(ctx context.Context, userID string) ([]Account, error) {
	userStore, err := s.scopes.User(userID)
	if err != nil {
		return nil, err
	}

	rows, err := store.GetAccounts(ctx, userStore)
	if err != nil {
		return nil, err
	}

	accounts := make([]Account, 0, len(rows))
	s.mu.Lock()
	defer s.mu.Unlock()
	s.cache = make(map[string]Account, len(rows))
	for _, row := range rows {
		password, err := s.encryptor.Decrypt(row.EncryptedIMAPPassword)
		if err != nil {
			return nil, fmt.Errorf("failed to decrypt IMAP password for mailbox %s: %w", row.MailboxID, err)
		}
		a := Account{
			MailboxID: row.MailboxID,
			Email:     row.Email,
			Hostname:  row.IMAPServerHostname,
			Username:  row.IMAPUsername,
			Password:  password,
		}
		accounts = append(accounts, a)
		s.cache[a.MailboxID] = a
	}
	return accounts, nil
}

// Account resolves one mailbox's credentials from the last listing.
func (s *StoreAccountSource) Account(_ context.Context, mailboxID string) (Account, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	a, ok := s.cache[mailboxID]
	if !ok {
		return Account{}, fmt.Errorf("no account known for mailbox %s", mailboxID)
	}
	return a, nil
}
