package sync

import (
	"context"

	"github.com/mailmirror/mailmirror/internal/models"
)

// ThreadListing is the result of one thread fetch for a folder. A fetcher
// that can answer incrementally sets IsDelta and returns only what changed
// since the cursor it was handed; otherwise Threads is the folder's complete
// remote thread set.
type ThreadListing struct {
	// Threads are the remote threads: the full set, or the added/updated
	// ones when IsDelta is set.
	Threads []*models.Thread

	// RemovedUIDs lists threads gone from the remote since the cursor.
	// Only meaningful when IsDelta is set.
	RemovedUIDs []string

	// IsDelta reports whether this listing is relative to the request cursor.
	IsDelta bool

	// NextCursor is the opaque token to hand back on the next fetch.
	NextCursor string
}

// FetchedMessage is one message as the remote reported it. AlreadyLocal
// marks a message the remote confirmed unchanged, so the caller may skip
// writing it.
type FetchedMessage struct {
	*models.Message
	AlreadyLocal bool
}

// Fetcher reads remote mail state. Implementations return
// ErrNetworkUnavailable when the remote cannot be reached; an empty non-nil
// result means the remote genuinely holds nothing, and the reconciler will
// delete accordingly. Fetchers never touch local storage.
type Fetcher interface {
	// FetchMailboxes lists the user's mailboxes.
	FetchMailboxes(ctx context.Context, userID string) ([]*models.Mailbox, error)

	// FetchFolders lists the mailbox's folders.
	FetchFolders(ctx context.Context, mailboxID string) ([]*models.Folder, error)

	// FetchThreads lists the folder's threads. cursor is the opaque token
	// from the previous listing's NextCursor, empty on first fetch.
	FetchThreads(ctx context.Context, mailboxID, folderID, cursor string) (*ThreadListing, error)

	// FetchThreadMessages lists the metadata of every message in a thread.
	FetchThreadMessages(ctx context.Context, mailboxID, folderID, threadUID string) ([]*FetchedMessage, error)

	// FetchFullMessage downloads one message's body and attachments.
	FetchFullMessage(ctx context.Context, mailboxID, folderID, messageUID string) (*models.Message, error)
}
