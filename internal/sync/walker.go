package sync

import (
	"context"
	"errors"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/mailmirror/mailmirror/internal/models"
	"github.com/mailmirror/mailmirror/internal/store"
)

// Selection is the walker's current position in the mail hierarchy. An empty
// field means nothing is selected at that level; a level can only be selected
// when its parent is.
type Selection struct {
	UserID    string `json:"user_id,omitempty"`
	MailboxID string `json:"mailbox_id,omitempty"`
	FolderID  string `json:"folder_id,omitempty"`
	ThreadUID string `json:"thread_uid,omitempty"`
}

// Snapshot is the local view after a walk: whatever is stored locally,
// refreshed with as much remote data as was reachable.
type Snapshot struct {
	Mailboxes []*models.Mailbox      `json:"mailboxes"`
	Mailbox   *models.Mailbox        `json:"mailbox,omitempty"`
	Folders   models.FolderPartition `json:"folders"`
	Folder    *models.Folder         `json:"folder,omitempty"`
	Threads   []*models.Thread       `json:"threads"`
	Selection Selection              `json:"selection"`

	// Stale is set when at least one fetch failed and the snapshot shows
	// last-known-good local data for the affected levels.
	Stale bool `json:"stale,omitempty"`
}

// threadSyncTTL is how long a folder's reconciled thread listing stays fresh.
// Selection changes inside the window serve local data without a remote round
// trip; Refresh always goes to the remote.
const threadSyncTTL = 30 * time.Second

// Walker drives the mailboxes > folders > threads descent: at each level it
// fetches remote state, hands it to the reconciler, reads the merged result
// back from local storage, and picks a selection for the next level when the
// caller has none. A fetch failure stops the descent at that level and the
// walk degrades to local data instead of failing outright.
type Walker struct {
	fetcher Fetcher
	recon   *Reconciler
	scopes  *store.ScopeManager
	log     *zap.Logger

	mu        sync.Mutex
	selection Selection
	cancel    context.CancelFunc
}

// NewWalker creates a walker with an empty selection.
func NewWalker(fetcher Fetcher, recon *Reconciler, scopes *store.ScopeManager, log *zap.Logger) *Walker {
	return &Walker{fetcher: fetcher, recon: recon, scopes: scopes, log: log}
}

// Selection returns the current position.
func (w *Walker) Selection() Selection {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.selection
}

// begin cancels any in-flight walk and claims the walker for a new one.
// Starting a deeper or newer walk always wins over an older in-flight one.
func (w *Walker) begin(ctx context.Context) (context.Context, context.CancelFunc) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.cancel != nil {
		w.cancel()
	}
	ctx, cancel := context.WithCancel(ctx)
	w.cancel = cancel
	return ctx, cancel
}

func (w *Walker) setSelection(sel Selection) {
	w.mu.Lock()
	w.selection = sel
	w.mu.Unlock()
}

// Load performs the full descent for a user: mailboxes, then the selected
// (or auto-picked) mailbox's folders, then the selected folder's threads.
// The mailbox selected before the last shutdown is resumed when it still
// exists.
func (w *Walker) Load(ctx context.Context, userID string) (*Snapshot, error) {
	ctx, cancel := w.begin(ctx)
	defer cancel()

	if err := w.scopes.SwitchUser(userID); err != nil {
		return nil, err
	}
	w.setSelection(Selection{UserID: userID})
	w.rememberUser(ctx, userID)

	return w.walk(ctx, Selection{UserID: userID, MailboxID: w.lastMailboxID(ctx, userID)}, false)
}

// SelectMailbox moves the selection to a mailbox. Folder and thread
// selections are cleared: a selection never points into a mailbox other than
// the selected one.
func (w *Walker) SelectMailbox(ctx context.Context, mailboxID string) (*Snapshot, error) {
	ctx, cancel := w.begin(ctx)
	defer cancel()

	sel := w.Selection()
	if sel.UserID == "" {
		return nil, ErrNoMailboxSelected
	}
	return w.walk(ctx, Selection{UserID: sel.UserID, MailboxID: mailboxID}, false)
}

// SelectFolder moves the selection to a folder inside the current mailbox,
// clearing the thread selection.
func (w *Walker) SelectFolder(ctx context.Context, folderID string) (*Snapshot, error) {
	ctx, cancel := w.begin(ctx)
	defer cancel()

	sel := w.Selection()
	if sel.MailboxID == "" {
		return nil, ErrNoMailboxSelected
	}
	return w.walk(ctx, Selection{UserID: sel.UserID, MailboxID: sel.MailboxID, FolderID: folderID}, false)
}

// Refresh re-runs the descent with the current selection.
func (w *Walker) Refresh(ctx context.Context) (*Snapshot, error) {
	ctx, cancel := w.begin(ctx)
	defer cancel()

	sel := w.Selection()
	if sel.UserID == "" {
		return nil, ErrNoMailboxSelected
	}
	return w.walk(ctx, sel, true)
}

// OpenThread selects a thread and returns it with its messages, refreshed
// from the remote when reachable.
func (w *Walker) OpenThread(ctx context.Context, threadUID string) (*models.Thread, error) {
	ctx, cancel := w.begin(ctx)
	defer cancel()

	sel := w.Selection()
	if sel.MailboxID == "" {
		return nil, ErrNoMailboxSelected
	}
	if sel.FolderID == "" {
		return nil, ErrNoFolderSelected
	}

	remote, err := w.fetcher.FetchThreadMessages(ctx, sel.MailboxID, sel.FolderID, threadUID)
	if err != nil {
		w.log.Warn("thread message fetch failed, serving local data",
			zap.String("thread_uid", threadUID), zap.Error(err))
	} else if err := w.recon.ReconcileThreadMessages(ctx, sel.UserID, sel.MailboxID, sel.FolderID, threadUID, remote); err != nil {
		return nil, err
	}

	content, err := w.scopes.Content(sel.UserID, sel.MailboxID)
	if err != nil {
		return nil, err
	}
	thread, err := store.GetThread(ctx, content, threadUID)
	if err != nil {
		return nil, err
	}

	sel.ThreadUID = threadUID
	w.setSelection(sel)
	return thread, nil
}

// DownloadMessage fetches a message's full body and attachments and stores
// them. The stored message is returned.
func (w *Walker) DownloadMessage(ctx context.Context, messageUID string) (*models.Message, error) {
	sel := w.Selection()
	if sel.MailboxID == "" {
		return nil, ErrNoMailboxSelected
	}

	content, err := w.scopes.Content(sel.UserID, sel.MailboxID)
	if err != nil {
		return nil, err
	}
	local, err := store.GetMessage(ctx, content, messageUID)
	if err != nil {
		return nil, err
	}

	full, err := w.fetcher.FetchFullMessage(ctx, sel.MailboxID, local.FolderID, messageUID)
	if err != nil {
		return nil, err
	}
	// The fetch cannot know the thread link; carry it over from the local row
	// so the merge does not detach the message.
	full.ThreadUID = local.ThreadUID
	full.FolderID = local.FolderID
	if err := w.recon.ApplyFullMessage(ctx, sel.UserID, sel.MailboxID, full); err != nil {
		return nil, err
	}
	return store.GetMessage(ctx, content, messageUID)
}

// walk runs the descent for the wanted selection. Each level first refreshes
// from the remote, then reads the merged local state; the local state is what
// the snapshot shows, so a dead remote still yields the last good view. force
// skips the thread-level freshness gate.
func (w *Walker) walk(ctx context.Context, want Selection, force bool) (*Snapshot, error) {
	snap := &Snapshot{Selection: Selection{UserID: want.UserID}}

	// Mailboxes level.
	remoteMailboxes, err := w.fetcher.FetchMailboxes(ctx, want.UserID)
	if err != nil {
		w.log.Warn("mailbox fetch failed, serving local data", zap.Error(err))
		snap.Stale = true
	} else {
		err = w.recon.ReconcileMailboxes(ctx, want.UserID, remoteMailboxes, want.MailboxID)
		if errors.Is(err, ErrCurrentMailboxInvalidated) {
			// The wanted mailbox is gone. Drop the whole selection below the
			// user and fall through to the tie-break pick.
			w.log.Info("selected mailbox removed by remote",
				zap.String("mailbox_id", want.MailboxID))
			want = Selection{UserID: want.UserID}
		} else if err != nil {
			return nil, err
		}
	}

	info, err := w.scopes.MailboxInfo(want.UserID)
	if err != nil {
		return nil, err
	}
	snap.Mailboxes, err = store.GetMailboxes(ctx, info, want.UserID)
	if err != nil {
		return nil, err
	}

	snap.Mailbox = pickMailbox(snap.Mailboxes, want.MailboxID)
	if snap.Mailbox == nil {
		w.setSelection(snap.Selection)
		return snap, nil
	}
	snap.Selection.MailboxID = snap.Mailbox.MailboxID
	w.rememberMailbox(ctx, want.UserID, snap.Mailbox.MailboxID)

	// Folders level.
	remoteFolders, err := w.fetcher.FetchFolders(ctx, snap.Mailbox.MailboxID)
	if err != nil {
		w.log.Warn("folder fetch failed, serving local data", zap.Error(err))
		snap.Stale = true
	} else if err := w.recon.ReconcileFolders(ctx, want.UserID, snap.Mailbox.MailboxID, remoteFolders); err != nil {
		return nil, err
	}

	content, err := w.scopes.Content(want.UserID, snap.Mailbox.MailboxID)
	if err != nil {
		return nil, err
	}
	folders, err := store.GetFolders(ctx, content)
	if err != nil {
		return nil, err
	}
	snap.Folders = models.PartitionFolders(folders)

	snap.Folder = pickFolder(snap.Folders, want.FolderID)
	if snap.Folder == nil {
		w.setSelection(snap.Selection)
		return snap, nil
	}
	snap.Selection.FolderID = snap.Folder.ID

	// Threads level.
	fs, err := store.GetFolderSync(ctx, content, snap.Folder.ID)
	if err != nil {
		return nil, err
	}
	if force || !threadsFresh(fs) {
		listing, err := w.fetcher.FetchThreads(ctx, snap.Mailbox.MailboxID, snap.Folder.ID, fs.Cursor)
		if err != nil {
			w.log.Warn("thread fetch failed, serving local data",
				zap.String("folder_id", snap.Folder.ID), zap.Error(err))
			snap.Stale = true
		} else if err := w.recon.ReconcileThreads(ctx, want.UserID, snap.Mailbox.MailboxID, snap.Folder.ID, listing); err != nil {
			return nil, err
		}
	}

	snap.Threads, err = store.GetThreads(ctx, content, snap.Folder.ID, 0, 0)
	if err != nil {
		return nil, err
	}

	// The thread selection survives a refresh only if the thread still exists.
	if want.ThreadUID != "" {
		for _, t := range snap.Threads {
			if t.UID == want.ThreadUID {
				snap.Selection.ThreadUID = want.ThreadUID
				break
			}
		}
	}

	w.setSelection(snap.Selection)
	return snap, nil
}

func threadsFresh(fs *store.FolderSync) bool {
	return fs.SyncedAt != nil && time.Since(*fs.SyncedAt) < threadSyncTTL
}

// lastMailboxID reads the mailbox selected in a previous session from the
// user's settings. Empty when none was saved.
func (w *Walker) lastMailboxID(ctx context.Context, userID string) string {
	s, err := w.scopes.User(userID)
	if err != nil {
		w.log.Warn("failed to open user scope", zap.Error(err))
		return ""
	}
	settings, err := store.GetUserSettings(ctx, s, userID)
	if err != nil {
		w.log.Warn("failed to read user settings", zap.Error(err))
		return ""
	}
	if settings == nil {
		return ""
	}
	return settings.LastMailboxID
}

// rememberMailbox persists the selected mailbox so the next Load resumes it.
// Best effort: losing the write only costs the resume.
func (w *Walker) rememberMailbox(ctx context.Context, userID, mailboxID string) {
	s, err := w.scopes.User(userID)
	if err != nil {
		w.log.Warn("failed to open user scope", zap.Error(err))
		return
	}
	settings, err := store.GetUserSettings(ctx, s, userID)
	if err != nil {
		w.log.Warn("failed to read user settings", zap.Error(err))
		return
	}
	if settings == nil {
		settings = &models.UserSettings{UserID: userID, ThreadsPerPage: 50}
	}
	if settings.LastMailboxID == mailboxID {
		return
	}
	settings.LastMailboxID = mailboxID
	if err := store.SaveUserSettings(ctx, s, settings); err != nil {
		w.log.Warn("failed to remember selected mailbox",
			zap.String("mailbox_id", mailboxID), zap.Error(err))
	}
}

// rememberUser persists the loaded user in the app settings.
func (w *Walker) rememberUser(ctx context.Context, userID string) {
	s, err := w.scopes.App()
	if err != nil {
		w.log.Warn("failed to open app scope", zap.Error(err))
		return
	}
	settings, err := store.GetAppSettings(ctx, s)
	if err != nil {
		w.log.Warn("failed to read app settings", zap.Error(err))
		return
	}
	if settings.LastUserID == userID {
		return
	}
	settings.LastUserID = userID
	if err := store.SaveAppSettings(ctx, s, settings); err != nil {
		w.log.Warn("failed to remember loaded user",
			zap.String("user_id", userID), zap.Error(err))
	}
}

// pickMailbox returns the wanted mailbox when it exists, otherwise the first
// mailbox by email order. nil when there are no mailboxes.
func pickMailbox(mailboxes []*models.Mailbox, wantID string) *models.Mailbox {
	if wantID != "" {
		for _, m := range mailboxes {
			if m.MailboxID == wantID {
				return m
			}
		}
	}
	if len(mailboxes) > 0 {
		return mailboxes[0]
	}
	return nil
}

// pickFolder returns the wanted folder when it exists. Otherwise the inbox
// wins, then the first default-role folder, then the first custom folder.
func pickFolder(p models.FolderPartition, wantID string) *models.Folder {
	if wantID != "" {
		for _, f := range allFolders(p) {
			if f.ID == wantID {
				return f
			}
		}
	}
	if p.Inbox != nil {
		return p.Inbox
	}
	if len(p.Default) > 0 {
		return p.Default[0]
	}
	if len(p.Custom) > 0 {
		return p.Custom[0]
	}
	return nil
}

func allFolders(p models.FolderPartition) []*models.Folder {
	var all []*models.Folder
	if p.Inbox != nil {
		all = append(all, p.Inbox)
	}
	all = append(all, p.Default...)
	all = append(all, p.Custom...)
	return all
}
