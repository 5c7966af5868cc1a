package sync

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/jmoiron/sqlx"
	"go.uber.org/zap"

	"github.com/mailmirror/mailmirror/internal/models"
	"github.com/mailmirror/mailmirror/internal/store"
)

// keyedMutex hands out one mutex per string key, so reconciliations against
// different datasets run concurrently while writes to the same dataset are
// serialized.
type keyedMutex struct {
	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

func (k *keyedMutex) get(key string) *sync.Mutex {
	k.mu.Lock()
	defer k.mu.Unlock()
	if k.locks == nil {
		k.locks = make(map[string]*sync.Mutex)
	}
	l, ok := k.locks[key]
	if !ok {
		l = &sync.Mutex{}
		k.locks[key] = l
	}
	return l
}

// Reconciler merges remote fetch results into local storage. Each operation
// runs as a single transaction against one scope: either every change in a
// fetch result lands, or none do. A nil remote result is treated as "no
// data" and leaves local state untouched; only an explicit empty result
// deletes.
type Reconciler struct {
	scopes   *store.ScopeManager
	notifier *store.Notifier
	log      *zap.Logger
	locks    keyedMutex
}

// NewReconciler creates a reconciler over the given scopes.
func NewReconciler(scopes *store.ScopeManager, notifier *store.Notifier, log *zap.Logger) *Reconciler {
	return &Reconciler{scopes: scopes, notifier: notifier, log: log}
}

func (r *Reconciler) lockMailboxes(userID string) *sync.Mutex {
	return r.locks.get("mailboxes/" + userID)
}

func (r *Reconciler) lockContent(userID, mailboxID string) *sync.Mutex {
	return r.locks.get("content/" + userID + "/" + mailboxID)
}

// ReconcileMailboxes merges the remote mailbox list for a user. Mailboxes
// present remotely are upserted (their locally-computed unread counts are
// preserved); mailboxes gone from the remote are deleted together with their
// content database files. If the deleted set includes currentMailboxID the
// commit still happens and ErrCurrentMailboxInvalidated is returned so the
// caller clears its selection.
func (r *Reconciler) ReconcileMailboxes(ctx context.Context, userID string, remote []*models.Mailbox, currentMailboxID string) error {
	if remote == nil {
		return nil
	}

	mu := r.lockMailboxes(userID)
	mu.Lock()
	defer mu.Unlock()

	s, err := r.scopes.MailboxInfo(userID)
	if err != nil {
		return err
	}

	local, err := store.GetMailboxes(ctx, s, userID)
	if err != nil {
		return err
	}

	remoteKeys := make(map[string]bool, len(remote))
	for _, m := range remote {
		remoteKeys[m.MailboxID] = true
	}

	var removed []string
	for _, m := range local {
		if !remoteKeys[m.MailboxID] {
			removed = append(removed, m.MailboxID)
		}
	}

	err = s.WithinTx(ctx, func(tx *sqlx.Tx) error {
		for _, m := range remote {
			if err := store.UpsertMailboxTx(tx, m); err != nil {
				return err
			}
		}
		for _, id := range removed {
			if err := store.DeleteMailboxTx(tx, userID, id); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("mailbox reconciliation failed: %w", err)
	}

	// Content files are dropped only after the commit: a rolled-back delete
	// must not have destroyed the mailbox's messages.
	invalidated := false
	for _, id := range removed {
		if id == currentMailboxID {
			invalidated = true
		}
		if err := r.scopes.DeleteContent(userID, id); err != nil {
			r.log.Warn("failed to delete content store for removed mailbox",
				zap.String("mailbox_id", id), zap.Error(err))
		}
	}

	r.log.Info("reconciled mailboxes",
		zap.String("user_id", userID),
		zap.Int("remote", len(remote)), zap.Int("removed", len(removed)))
	r.notifier.Publish(store.Change{Level: store.LevelMailboxes, UserID: userID})

	if invalidated {
		return ErrCurrentMailboxInvalidated
	}
	return nil
}

// ReconcileFolders merges the remote folder list into the mailbox's content
// scope. Local-only folder flags survive the upsert; folders gone from the
// remote are deleted with their threads, messages, and attachments.
func (r *Reconciler) ReconcileFolders(ctx context.Context, userID, mailboxID string, remote []*models.Folder) error {
	if remote == nil {
		return nil
	}

	mu := r.lockContent(userID, mailboxID)
	mu.Lock()
	defer mu.Unlock()

	s, err := r.scopes.Content(userID, mailboxID)
	if err != nil {
		return err
	}

	local, err := store.GetFolders(ctx, s)
	if err != nil {
		return err
	}

	remoteIDs := make(map[string]bool, len(remote))
	for _, f := range remote {
		remoteIDs[f.ID] = true
	}

	err = s.WithinTx(ctx, func(tx *sqlx.Tx) error {
		for _, f := range remote {
			if err := store.UpsertFolderTx(tx, f); err != nil {
				return err
			}
		}
		for _, f := range local {
			if !remoteIDs[f.ID] {
				if err := store.DeleteFolderTx(tx, f.ID); err != nil {
					return err
				}
			}
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("folder reconciliation failed: %w", err)
	}

	r.notifier.Publish(store.Change{
		Level: store.LevelFolders, UserID: userID, MailboxID: mailboxID,
	})
	return nil
}

// ReconcileThreads merges a thread listing into a folder. A delta listing is
// folded into the locally-known set first, so a thread the remote did not
// mention is kept, not deleted. The folder's cursor advances in the same
// transaction as the thread changes.
func (r *Reconciler) ReconcileThreads(ctx context.Context, userID, mailboxID, folderID string, listing *ThreadListing) error {
	if listing == nil {
		return nil
	}

	mu := r.lockContent(userID, mailboxID)
	mu.Lock()
	defer mu.Unlock()

	s, err := r.scopes.Content(userID, mailboxID)
	if err != nil {
		return err
	}

	localUIDs, err := store.GetThreadUIDs(ctx, s, folderID)
	if err != nil {
		return err
	}
	localSet := make(map[string]bool, len(localUIDs))
	for _, uid := range localUIDs {
		localSet[uid] = true
	}

	var removed []string
	if listing.IsDelta {
		for _, uid := range listing.RemovedUIDs {
			if localSet[uid] {
				removed = append(removed, uid)
			}
		}
	} else {
		remoteSet := make(map[string]bool, len(listing.Threads))
		for _, t := range listing.Threads {
			remoteSet[t.UID] = true
		}
		for _, uid := range localUIDs {
			if !remoteSet[uid] {
				removed = append(removed, uid)
			}
		}
	}

	count := len(localSet) + countNew(localSet, listing.Threads) - len(removed)

	err = s.WithinTx(ctx, func(tx *sqlx.Tx) error {
		for _, t := range listing.Threads {
			t.FolderID = folderID
			if err := store.UpsertThreadTx(tx, t); err != nil {
				return err
			}
		}
		for _, uid := range removed {
			if err := store.DeleteThreadTx(tx, uid, folderID); err != nil {
				return err
			}
		}
		now := time.Now()
		return store.SetFolderSyncTx(tx, &store.FolderSync{
			FolderID:    folderID,
			Cursor:      listing.NextCursor,
			SyncedAt:    &now,
			ThreadCount: count,
		})
	})
	if err != nil {
		return fmt.Errorf("thread reconciliation failed: %w", err)
	}

	r.notifier.Publish(store.Change{
		Level: store.LevelThreads, UserID: userID, MailboxID: mailboxID, FolderID: folderID,
	})
	return nil
}

func countNew(localSet map[string]bool, threads []*models.Thread) int {
	n := 0
	for _, t := range threads {
		if !localSet[t.UID] {
			n++
		}
	}
	return n
}

// ReconcileThreadMessages merges the remote message set of one thread in one
// folder. Messages the remote no longer lists are deleted from this folder
// only; the same message in another folder keeps its row. Messages marked
// AlreadyLocal are skipped. Thread aggregates and the mailbox's local unread
// count are recomputed after the merge.
func (r *Reconciler) ReconcileThreadMessages(ctx context.Context, userID, mailboxID, folderID, threadUID string, remote []*FetchedMessage) error {
	if remote == nil {
		return nil
	}

	mu := r.lockContent(userID, mailboxID)
	mu.Lock()
	defer mu.Unlock()

	s, err := r.scopes.Content(userID, mailboxID)
	if err != nil {
		return err
	}

	localUIDs, err := store.GetMessageUIDsByThread(ctx, s, threadUID, folderID)
	if err != nil {
		return err
	}

	remoteSet := make(map[string]bool, len(remote))
	for _, m := range remote {
		remoteSet[m.UID] = true
	}

	err = s.WithinTx(ctx, func(tx *sqlx.Tx) error {
		for _, m := range remote {
			if m.AlreadyLocal {
				continue
			}
			m.FolderID = folderID
			m.ThreadUID = threadUID
			if err := store.UpsertMessageTx(tx, m.Message); err != nil {
				return err
			}
		}
		for _, uid := range localUIDs {
			if !remoteSet[uid] {
				if err := store.DeleteMessageTx(tx, uid); err != nil {
					return err
				}
			}
		}
		return store.RecomputeThreadAggregatesTx(tx, threadUID)
	})
	if err != nil {
		return fmt.Errorf("message reconciliation failed: %w", err)
	}

	r.refreshUnreadLocal(ctx, userID, mailboxID, s)
	r.notifier.Publish(store.Change{
		Level: store.LevelMessages, UserID: userID, MailboxID: mailboxID,
		FolderID: folderID, ThreadUID: threadUID,
	})
	return nil
}

// ApplyFullMessage stores a fully-downloaded message: body, attachments, and
// the fully_downloaded flag, then recomputes the owning thread's aggregates.
func (r *Reconciler) ApplyFullMessage(ctx context.Context, userID, mailboxID string, m *models.Message) error {
	mu := r.lockContent(userID, mailboxID)
	mu.Lock()
	defer mu.Unlock()

	s, err := r.scopes.Content(userID, mailboxID)
	if err != nil {
		return err
	}

	m.FullyDownloaded = true
	err = s.WithinTx(ctx, func(tx *sqlx.Tx) error {
		if err := store.UpsertMessageTx(tx, m); err != nil {
			return err
		}
		if m.ThreadUID == "" {
			return nil
		}
		return store.RecomputeThreadAggregatesTx(tx, m.ThreadUID)
	})
	if err != nil {
		return fmt.Errorf("full message merge failed: %w", err)
	}

	r.notifier.Publish(store.Change{
		Level: store.LevelMessages, UserID: userID, MailboxID: mailboxID,
		FolderID: m.FolderID, ThreadUID: m.ThreadUID,
	})
	return nil
}

func (r *Reconciler) refreshUnreadLocal(ctx context.Context, userID, mailboxID string, content *store.Store) {
	unread, err := store.CountUnseenMessages(ctx, content)
	if err != nil {
		r.log.Warn("failed to count unseen messages", zap.Error(err))
		return
	}
	info, err := r.scopes.MailboxInfo(userID)
	if err != nil {
		r.log.Warn("failed to open mailbox info scope", zap.Error(err))
		return
	}
	if err := store.SetMailboxUnreadLocal(ctx, info, userID, mailboxID, unread); err != nil {
		r.log.Warn("failed to update local unread count", zap.Error(err))
	}
}
