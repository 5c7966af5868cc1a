package imap

import (
	"context"
	"fmt"

	"github.com/emersion/go-imap"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/mailmirror/mailmirror/internal/models"
	"github.com/mailmirror/mailmirror/internal/sync"
)

// Fetcher reads remote mail state over IMAP. One mailbox maps to one
// configured account; the mailbox list itself comes from the account
// configuration, so it stays answerable while offline.
type Fetcher struct {
	accounts AccountSource
	pool     *Pool
	log      *zap.Logger
}

// NewFetcher creates a fetcher using pooled IMAP connections.
func NewFetcher(accounts AccountSource, pool *Pool, log *zap.Logger) *Fetcher {
	return &Fetcher{accounts: accounts, pool: pool, log: log}
}

var _ sync.Fetcher = (*Fetcher)(nil)

// FetchMailboxes lists the user's mailboxes from the account configuration
// and enriches each with live counters when the server is reachable. A dead
// server degrades the counters, never the list.
func (f *Fetcher) FetchMailboxes(ctx context.Context, userID string) ([]*models.Mailbox, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	accounts, err := f.accounts.Accounts(ctx, userID)
	if err != nil {
		return nil, err
	}

	mailboxes := make([]*models.Mailbox, 0, len(accounts))
	for _, a := range accounts {
		m := &models.Mailbox{
			UserID:    userID,
			MailboxID: a.MailboxID,
			UUID:      uuid.NewSHA1(uuid.NameSpaceOID, []byte(a.MailboxID)).String(),
			Email:     a.Email,
		}

		if unseen, err := f.statusUnseen(a); err != nil {
			f.log.Debug("mailbox status unavailable",
				zap.String("mailbox_id", a.MailboxID), zap.Error(err))
		} else {
			m.UnreadRemote = unseen
		}

		mailboxes = append(mailboxes, m)
	}
	return mailboxes, nil
}

func (f *Fetcher) statusUnseen(a Account) (int, error) {
	c, err := f.pool.Worker(a.MailboxID, a.Hostname, a.Username, a.Password)
	if err != nil {
		return 0, err
	}
	defer c.Unlock()

	status, err := c.Client().Status("INBOX", []imap.StatusItem{imap.StatusUnseen})
	if err != nil {
		return 0, err
	}
	return int(status.Unseen), nil
}

// FetchFolders lists the mailbox's folders.
func (f *Fetcher) FetchFolders(ctx context.Context, mailboxID string) ([]*models.Folder, error) {
	c, err := f.worker(ctx, mailboxID)
	if err != nil {
		return nil, err
	}
	defer c.Unlock()

	return ListFolders(c.Client())
}

// FetchThreads lists the folder's threads. When the folder's UIDNEXT and
// message count match the cursor, nothing changed and an empty delta is
// returned without running THREAD.
func (f *Fetcher) FetchThreads(ctx context.Context, mailboxID, folderID, cursorToken string) (*sync.ThreadListing, error) {
	c, err := f.worker(ctx, mailboxID)
	if err != nil {
		return nil, err
	}
	defer c.Unlock()

	mbox, err := c.Client().Select(folderID, true)
	if err != nil {
		return nil, fmt.Errorf("failed to select folder %s: %w", folderID, err)
	}

	cur := decodeCursor(cursorToken)
	if cursorToken != "" && cur.UIDNext == mbox.UidNext && cur.Messages == mbox.Messages {
		return &sync.ThreadListing{IsDelta: true, NextCursor: cursorToken}, nil
	}

	next := encodeCursor(cursor{UIDNext: mbox.UidNext, Messages: mbox.Messages})
	if mbox.Messages == 0 {
		return &sync.ThreadListing{Threads: []*models.Thread{}, NextCursor: next}, nil
	}

	threads, err := RunThreadCommand(c.Client())
	if err != nil {
		return nil, err
	}

	rootUIDs := make([]uint32, 0, len(threads))
	for _, t := range threads {
		if t != nil {
			rootUIDs = append(rootUIDs, t.Id)
		}
	}

	roots, err := FetchMessageHeaders(c.Client(), rootUIDs)
	if err != nil {
		return nil, err
	}

	listing := &sync.ThreadListing{Threads: []*models.Thread{}, NextCursor: next}
	for _, root := range roots {
		uid := StableThreadUID(root.Envelope)
		if uid == "" {
			f.log.Warn("thread root without Message-ID, skipping",
				zap.Uint32("imap_uid", root.Uid), zap.String("folder_id", folderID))
			continue
		}
		t := &models.Thread{UID: uid, FolderID: folderID}
		if root.Envelope != nil {
			t.Subject = root.Envelope.Subject
			if !root.Envelope.Date.IsZero() {
				sentAt := root.Envelope.Date.UTC()
				t.LastMessageAt = &sentAt
			}
		}
		listing.Threads = append(listing.Threads, t)
	}
	return listing, nil
}

// FetchThreadMessages lists the metadata of every message in a thread. A
// thread the server no longer knows yields an empty listing, which deletes
// the local copy. Metadata fetches are cheap enough that nothing is marked
// AlreadyLocal; the store's merge keeps downloaded bodies either way.
func (f *Fetcher) FetchThreadMessages(ctx context.Context, mailboxID, folderID, threadUID string) ([]*sync.FetchedMessage, error) {
	c, err := f.worker(ctx, mailboxID)
	if err != nil {
		return nil, err
	}
	defer c.Unlock()

	if _, err := c.Client().Select(folderID, true); err != nil {
		return nil, fmt.Errorf("failed to select folder %s: %w", folderID, err)
	}

	threads, err := RunThreadCommand(c.Client())
	if err != nil {
		return nil, err
	}

	rootUIDs := make([]uint32, 0, len(threads))
	for _, t := range threads {
		if t != nil {
			rootUIDs = append(rootUIDs, t.Id)
		}
	}
	roots, err := FetchMessageHeaders(c.Client(), rootUIDs)
	if err != nil {
		return nil, err
	}

	var memberUIDs []uint32
	for _, t := range threads {
		if t == nil {
			continue
		}
		for _, root := range roots {
			if root.Uid == t.Id && StableThreadUID(root.Envelope) == threadUID {
				memberUIDs = FlattenThread(t)
				break
			}
		}
	}

	result := []*sync.FetchedMessage{}
	if len(memberUIDs) == 0 {
		return result, nil
	}

	headers, err := FetchMessageHeaders(c.Client(), memberUIDs)
	if err != nil {
		return nil, err
	}
	for _, h := range headers {
		msg, err := ParseMessage(h, threadUID, folderID)
		if err != nil {
			f.log.Warn("skipping unparseable message",
				zap.Uint32("imap_uid", h.Uid), zap.Error(err))
			continue
		}
		result = append(result, &sync.FetchedMessage{Message: msg})
	}
	return result, nil
}

// FetchFullMessage downloads one message's body and attachments.
func (f *Fetcher) FetchFullMessage(ctx context.Context, mailboxID, folderID, messageUID string) (*models.Message, error) {
	c, err := f.worker(ctx, mailboxID)
	if err != nil {
		return nil, err
	}
	defer c.Unlock()

	if _, err := c.Client().Select(folderID, false); err != nil {
		return nil, fmt.Errorf("failed to select folder %s: %w", folderID, err)
	}

	imapUID, err := SearchByMessageID(c.Client(), messageUID)
	if err != nil {
		return nil, err
	}
	if imapUID == 0 {
		return nil, fmt.Errorf("message %s not found in folder %s", messageUID, folderID)
	}

	imapMsg, err := FetchFullMessage(c.Client(), imapUID)
	if err != nil {
		return nil, err
	}
	return ParseMessage(imapMsg, "", folderID)
}

// worker resolves credentials and returns a locked pooled client. Connection
// and authentication failures surface as network unavailability so callers
// keep local state instead of wiping it.
func (f *Fetcher) worker(ctx context.Context, mailboxID string) (*threadSafeClient, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	a, err := f.accounts.Account(ctx, mailboxID)
	if err != nil {
		return nil, err
	}

	c, err := f.pool.Worker(a.MailboxID, a.Hostname, a.Username, a.Password)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", sync.ErrNetworkUnavailable, err)
	}
	return c, nil
}
