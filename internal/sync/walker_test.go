package sync

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/mailmirror/mailmirror/internal/models"
	"github.com/mailmirror/mailmirror/internal/store"
	"github.com/mailmirror/mailmirror/internal/testutil"
)

// fakeFetcher serves canned remote state keyed by mailbox and folder. Any
// error set on it is returned from every fetch.
type fakeFetcher struct {
	mailboxes []*models.Mailbox
	folders   map[string][]*models.Folder
	threads   map[string]*ThreadListing
	messages  map[string][]*FetchedMessage
	fullMsgs  map[string]*models.Message

	threadCalls int
	err         error
}

func (f *fakeFetcher) FetchMailboxes(ctx context.Context, userID string) ([]*models.Mailbox, error) {
	if f.err != nil {
		return nil, f.err
	}
	return f.mailboxes, nil
}

func (f *fakeFetcher) FetchFolders(ctx context.Context, mailboxID string) ([]*models.Folder, error) {
	if f.err != nil {
		return nil, f.err
	}
	return f.folders[mailboxID], nil
}

func (f *fakeFetcher) FetchThreads(ctx context.Context, mailboxID, folderID, cursor string) (*ThreadListing, error) {
	f.threadCalls++
	if f.err != nil {
		return nil, f.err
	}
	return f.threads[mailboxID+"/"+folderID], nil
}

func (f *fakeFetcher) FetchThreadMessages(ctx context.Context, mailboxID, folderID, threadUID string) ([]*FetchedMessage, error) {
	if f.err != nil {
		return nil, f.err
	}
	return f.messages[threadUID], nil
}

func (f *fakeFetcher) FetchFullMessage(ctx context.Context, mailboxID, folderID, messageUID string) (*models.Message, error) {
	if f.err != nil {
		return nil, f.err
	}
	m, ok := f.fullMsgs[messageUID]
	if !ok {
		return nil, ErrNetworkUnavailable
	}
	return m, nil
}

func newTestWalker(t *testing.T, fetcher Fetcher) (*Walker, *store.ScopeManager) {
	t.Helper()
	scopes := testutil.NewTestScopes(t)
	t.Cleanup(func() { _ = scopes.Close() })
	recon := NewReconciler(scopes, store.NewNotifier(), zaptest.NewLogger(t))
	return NewWalker(fetcher, recon, scopes, zaptest.NewLogger(t)), scopes
}

func populatedFetcher() *fakeFetcher {
	now := time.Date(2026, 5, 1, 12, 0, 0, 0, time.UTC)
	msgAt := now.Add(-time.Hour)
	return &fakeFetcher{
		mailboxes: []*models.Mailbox{
			{UserID: "alice", MailboxID: "personal", Email: "a@home.test"},
			{UserID: "alice", MailboxID: "work", Email: "a@work.test"},
		},
		folders: map[string][]*models.Folder{
			"personal": {
				{ID: "INBOX", Name: "INBOX", Path: "INBOX", Role: models.RoleInbox},
				{ID: "Archive", Name: "Archive", Path: "Archive", Role: models.RoleArchive},
			},
			"work": {
				{ID: "Reports", Name: "Reports", Path: "Reports"},
			},
		},
		threads: map[string]*ThreadListing{
			"personal/INBOX": {
				Threads:    []*models.Thread{{UID: "<t1@x>", Subject: "hi", LastMessageAt: &now}},
				NextCursor: "c1",
			},
		},
		messages: map[string][]*FetchedMessage{
			"<t1@x>": {
				{Message: &models.Message{UID: "<m1@x>", ThreadUID: "<t1@x>", Subject: "hi", SentAt: &msgAt}},
			},
		},
		fullMsgs: map[string]*models.Message{
			"<m1@x>": {UID: "<m1@x>", Subject: "hi", BodyText: "full body", SentAt: &msgAt},
		},
	}
}

func TestLoadDescendsWithTieBreaks(t *testing.T) {
	w, _ := newTestWalker(t, populatedFetcher())

	snap, err := w.Load(context.Background(), "alice")
	require.NoError(t, err)

	// No selection given: first mailbox by email, then its inbox.
	require.NotNil(t, snap.Mailbox)
	assert.Equal(t, "personal", snap.Mailbox.MailboxID)
	require.NotNil(t, snap.Folder)
	assert.Equal(t, "INBOX", snap.Folder.ID)
	require.Len(t, snap.Threads, 1)
	assert.Equal(t, "<t1@x>", snap.Threads[0].UID)
	assert.False(t, snap.Stale)

	assert.Equal(t, Selection{UserID: "alice", MailboxID: "personal", FolderID: "INBOX"}, w.Selection())
}

func TestSelectMailboxClearsDeeperSelection(t *testing.T) {
	w, _ := newTestWalker(t, populatedFetcher())
	ctx := context.Background()

	_, err := w.Load(ctx, "alice")
	require.NoError(t, err)

	snap, err := w.SelectMailbox(ctx, "work")
	require.NoError(t, err)

	assert.Equal(t, "work", snap.Mailbox.MailboxID)
	// No inbox and no default-role folders: the first custom folder wins.
	require.NotNil(t, snap.Folder)
	assert.Equal(t, "Reports", snap.Folder.ID)
	assert.Empty(t, snap.Selection.ThreadUID)
}

func TestSelectFolderRequiresMailbox(t *testing.T) {
	w, _ := newTestWalker(t, populatedFetcher())

	_, err := w.SelectFolder(context.Background(), "INBOX")
	assert.ErrorIs(t, err, ErrNoMailboxSelected)
}

func TestWalkServesLocalDataWhenRemoteIsDown(t *testing.T) {
	f := populatedFetcher()
	w, _ := newTestWalker(t, f)
	ctx := context.Background()

	_, err := w.Load(ctx, "alice")
	require.NoError(t, err)

	f.err = ErrNetworkUnavailable
	snap, err := w.Refresh(ctx)
	require.NoError(t, err)

	// Everything fetched before is still there, marked stale.
	assert.True(t, snap.Stale)
	assert.Len(t, snap.Mailboxes, 2)
	require.NotNil(t, snap.Folder)
	assert.Equal(t, "INBOX", snap.Folder.ID)
	assert.Len(t, snap.Threads, 1)
}

func TestWalkRepicksAfterMailboxInvalidation(t *testing.T) {
	f := populatedFetcher()
	w, scopes := newTestWalker(t, f)
	ctx := context.Background()

	_, err := w.Load(ctx, "alice")
	require.NoError(t, err)

	content, err := scopes.Content("alice", "personal")
	require.NoError(t, err)
	contentPath := content.Path()

	// The remote drops the selected mailbox.
	f.mailboxes = f.mailboxes[1:]
	snap, err := w.Refresh(ctx)
	require.NoError(t, err)

	assert.Equal(t, "work", snap.Mailbox.MailboxID)
	assert.Equal(t, "work", w.Selection().MailboxID)
	assert.NoFileExists(t, contentPath)
}

func TestOpenThreadReturnsMessages(t *testing.T) {
	w, _ := newTestWalker(t, populatedFetcher())
	ctx := context.Background()

	_, err := w.Load(ctx, "alice")
	require.NoError(t, err)

	thread, err := w.OpenThread(ctx, "<t1@x>")
	require.NoError(t, err)
	require.Len(t, thread.Messages, 1)
	assert.Equal(t, "<m1@x>", thread.Messages[0].UID)
	assert.Equal(t, "<t1@x>", w.Selection().ThreadUID)
}

func TestOpenThreadRequiresFolder(t *testing.T) {
	f := populatedFetcher()
	f.folders = map[string][]*models.Folder{}
	w, _ := newTestWalker(t, f)
	ctx := context.Background()

	_, err := w.Load(ctx, "alice")
	require.NoError(t, err)

	_, err = w.OpenThread(ctx, "<t1@x>")
	assert.ErrorIs(t, err, ErrNoFolderSelected)
}

func TestDownloadMessageKeepsThreadLink(t *testing.T) {
	w, scopes := newTestWalker(t, populatedFetcher())
	ctx := context.Background()

	_, err := w.Load(ctx, "alice")
	require.NoError(t, err)
	_, err = w.OpenThread(ctx, "<t1@x>")
	require.NoError(t, err)

	got, err := w.DownloadMessage(ctx, "<m1@x>")
	require.NoError(t, err)
	assert.Equal(t, "full body", got.BodyText)
	assert.True(t, got.FullyDownloaded)
	assert.Equal(t, "<t1@x>", got.ThreadUID)

	// The thread still lists the message after the download.
	content, err := scopes.Content("alice", "personal")
	require.NoError(t, err)
	thread, err := store.GetThread(ctx, content, "<t1@x>")
	require.NoError(t, err)
	assert.Len(t, thread.Messages, 1)
}

func TestDownloadMessageFailsWhenRemoteIsDown(t *testing.T) {
	f := populatedFetcher()
	w, _ := newTestWalker(t, f)
	ctx := context.Background()

	_, err := w.Load(ctx, "alice")
	require.NoError(t, err)
	_, err = w.OpenThread(ctx, "<t1@x>")
	require.NoError(t, err)

	f.err = ErrNetworkUnavailable
	_, err = w.DownloadMessage(ctx, "<m1@x>")
	assert.ErrorIs(t, err, ErrNetworkUnavailable)
}

func TestSelectFolderReusesFreshThreads(t *testing.T) {
	f := populatedFetcher()
	w, _ := newTestWalker(t, f)
	ctx := context.Background()

	_, err := w.Load(ctx, "alice")
	require.NoError(t, err)
	calls := f.threadCalls

	// Re-selecting the freshly-synced folder serves local data.
	snap, err := w.SelectFolder(ctx, "INBOX")
	require.NoError(t, err)
	assert.Len(t, snap.Threads, 1)
	assert.Equal(t, calls, f.threadCalls)

	// Refresh always goes to the remote.
	_, err = w.Refresh(ctx)
	require.NoError(t, err)
	assert.Equal(t, calls+1, f.threadCalls)
}

func TestLoadResumesLastMailbox(t *testing.T) {
	f := populatedFetcher()
	w, scopes := newTestWalker(t, f)
	ctx := context.Background()

	user, err := scopes.User("alice")
	require.NoError(t, err)
	require.NoError(t, store.SaveUserSettings(ctx, user, &models.UserSettings{
		UserID:         "alice",
		ThreadsPerPage: 50,
		LastMailboxID:  "work",
	}))

	// "personal" sorts first by email; the saved mailbox must win anyway.
	snap, err := w.Load(ctx, "alice")
	require.NoError(t, err)
	require.NotNil(t, snap.Mailbox)
	assert.Equal(t, "work", snap.Mailbox.MailboxID)
}

func TestLoadFallsBackWhenSavedMailboxIsGone(t *testing.T) {
	f := populatedFetcher()
	w, scopes := newTestWalker(t, f)
	ctx := context.Background()

	user, err := scopes.User("alice")
	require.NoError(t, err)
	require.NoError(t, store.SaveUserSettings(ctx, user, &models.UserSettings{
		UserID:         "alice",
		ThreadsPerPage: 50,
		LastMailboxID:  "deleted-elsewhere",
	}))

	snap, err := w.Load(ctx, "alice")
	require.NoError(t, err)
	require.NotNil(t, snap.Mailbox)
	assert.Equal(t, "personal", snap.Mailbox.MailboxID)
}

func TestSelectMailboxSurvivesRestart(t *testing.T) {
	f := populatedFetcher()
	w, scopes := newTestWalker(t, f)
	ctx := context.Background()

	_, err := w.Load(ctx, "alice")
	require.NoError(t, err)
	_, err = w.SelectMailbox(ctx, "work")
	require.NoError(t, err)

	user, err := scopes.User("alice")
	require.NoError(t, err)
	settings, err := store.GetUserSettings(ctx, user, "alice")
	require.NoError(t, err)
	require.NotNil(t, settings)
	assert.Equal(t, "work", settings.LastMailboxID)

	app, err := scopes.App()
	require.NoError(t, err)
	appSettings, err := store.GetAppSettings(ctx, app)
	require.NoError(t, err)
	assert.Equal(t, "alice", appSettings.LastUserID)

	// A fresh walker over the same data resumes the selection.
	recon := NewReconciler(scopes, store.NewNotifier(), zaptest.NewLogger(t))
	restarted := NewWalker(f, recon, scopes, zaptest.NewLogger(t))
	snap, err := restarted.Load(ctx, "alice")
	require.NoError(t, err)
	require.NotNil(t, snap.Mailbox)
	assert.Equal(t, "work", snap.Mailbox.MailboxID)
}

func TestThreadSelectionSurvivesRefreshOnlyIfPresent(t *testing.T) {
	f := populatedFetcher()
	w, _ := newTestWalker(t, f)
	ctx := context.Background()

	_, err := w.Load(ctx, "alice")
	require.NoError(t, err)
	_, err = w.OpenThread(ctx, "<t1@x>")
	require.NoError(t, err)

	// The remote empties the folder: the thread selection must not dangle.
	f.threads["personal/INBOX"] = &ThreadListing{Threads: []*models.Thread{}, NextCursor: "c2"}
	snap, err := w.Refresh(ctx)
	require.NoError(t, err)

	assert.Empty(t, snap.Threads)
	assert.Empty(t, snap.Selection.ThreadUID)
	assert.Empty(t, w.Selection().ThreadUID)
}
