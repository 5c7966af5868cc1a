package api

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/mailmirror/mailmirror/internal/models"
	"github.com/mailmirror/mailmirror/internal/store"
	"github.com/mailmirror/mailmirror/internal/sync"
	"github.com/mailmirror/mailmirror/internal/testutil"
)

// cannedFetcher answers every fetch from fixed data: two mailboxes, an inbox
// with one thread of one message.
type cannedFetcher struct{}

func (cannedFetcher) FetchMailboxes(ctx context.Context, userID string) ([]*models.Mailbox, error) {
	return []*models.Mailbox{
		{UserID: userID, MailboxID: "personal", Email: "a@home.test"},
		{UserID: userID, MailboxID: "work", Email: "a@work.test"},
	}, nil
}

func (cannedFetcher) FetchFolders(ctx context.Context, mailboxID string) ([]*models.Folder, error) {
	return []*models.Folder{
		{ID: "INBOX", Name: "INBOX", Path: "INBOX", Role: models.RoleInbox},
		{ID: "Archive", Name: "Archive", Path: "Archive", Role: models.RoleArchive},
	}, nil
}

func (cannedFetcher) FetchThreads(ctx context.Context, mailboxID, folderID, cursor string) (*sync.ThreadListing, error) {
	if folderID != "INBOX" {
		return &sync.ThreadListing{Threads: []*models.Thread{}}, nil
	}
	now := time.Date(2026, 7, 1, 8, 0, 0, 0, time.UTC)
	return &sync.ThreadListing{
		Threads:    []*models.Thread{{UID: "<t1@x>", Subject: "hi", LastMessageAt: &now}},
		NextCursor: "c1",
	}, nil
}

func (cannedFetcher) FetchThreadMessages(ctx context.Context, mailboxID, folderID, threadUID string) ([]*sync.FetchedMessage, error) {
	at := time.Date(2026, 7, 1, 8, 0, 0, 0, time.UTC)
	return []*sync.FetchedMessage{
		{Message: &models.Message{UID: "<m1@x>", ThreadUID: threadUID, Subject: "hi", SentAt: &at}},
	}, nil
}

func (cannedFetcher) FetchFullMessage(ctx context.Context, mailboxID, folderID, messageUID string) (*models.Message, error) {
	at := time.Date(2026, 7, 1, 8, 0, 0, 0, time.UTC)
	return &models.Message{UID: messageUID, Subject: "hi", BodyText: "full body", SentAt: &at}, nil
}

func newTestMailHandler(t *testing.T) (*MailHandler, *sync.Walker) {
	t.Helper()
	scopes := testutil.NewTestScopes(t)
	t.Cleanup(func() { _ = scopes.Close() })
	log := zaptest.NewLogger(t)
	recon := sync.NewReconciler(scopes, store.NewNotifier(), log)
	walker := sync.NewWalker(cannedFetcher{}, recon, scopes, log)
	return NewMailHandler(walker, scopes, "alice", log), walker
}

func TestGetSnapshotStartsDescent(t *testing.T) {
	h, _ := newTestMailHandler(t)

	rr := httptest.NewRecorder()
	h.GetSnapshot(rr, httptest.NewRequest(http.MethodGet, "/api/v1/snapshot", nil))

	require.Equal(t, http.StatusOK, rr.Code)

	var snap sync.Snapshot
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &snap))
	assert.Len(t, snap.Mailboxes, 2)
	assert.Equal(t, "personal", snap.Selection.MailboxID)
	assert.Equal(t, "INBOX", snap.Selection.FolderID)
	assert.Len(t, snap.Threads, 1)
}

func TestSelectMailbox(t *testing.T) {
	h, walker := newTestMailHandler(t)
	_, err := walker.Load(context.Background(), "alice")
	require.NoError(t, err)

	rr := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/api/v1/selection/mailbox",
		strings.NewReader(`{"mailbox_id":"work"}`))
	h.SelectMailbox(rr, req)

	require.Equal(t, http.StatusOK, rr.Code)

	var snap sync.Snapshot
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &snap))
	assert.Equal(t, "work", snap.Selection.MailboxID)
}

func TestSelectMailboxRequiresID(t *testing.T) {
	h, _ := newTestMailHandler(t)

	rr := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/api/v1/selection/mailbox",
		strings.NewReader(`{"mailbox_id":""}`))
	h.SelectMailbox(rr, req)

	assert.Equal(t, http.StatusBadRequest, rr.Code)
}

func TestSelectMailboxWithoutUserConflicts(t *testing.T) {
	h, _ := newTestMailHandler(t)

	rr := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/api/v1/selection/mailbox",
		strings.NewReader(`{"mailbox_id":"work"}`))
	h.SelectMailbox(rr, req)

	assert.Equal(t, http.StatusConflict, rr.Code)
}

func TestGetThread(t *testing.T) {
	h, walker := newTestMailHandler(t)
	_, err := walker.Load(context.Background(), "alice")
	require.NoError(t, err)

	rr := httptest.NewRecorder()
	h.GetThread(rr, httptest.NewRequest(http.MethodGet, "/api/v1/thread/<t1@x>", nil))

	require.Equal(t, http.StatusOK, rr.Code)

	var thread models.Thread
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &thread))
	assert.Equal(t, "<t1@x>", thread.UID)
	assert.Len(t, thread.Messages, 1)
}

func TestDownloadMessage(t *testing.T) {
	h, walker := newTestMailHandler(t)
	ctx := context.Background()
	_, err := walker.Load(ctx, "alice")
	require.NoError(t, err)
	_, err = walker.OpenThread(ctx, "<t1@x>")
	require.NoError(t, err)

	rr := httptest.NewRecorder()
	h.DownloadMessage(rr, httptest.NewRequest(http.MethodPost, "/api/v1/message/<m1@x>/download", nil))

	require.Equal(t, http.StatusOK, rr.Code)

	var msg models.Message
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &msg))
	assert.Equal(t, "full body", msg.BodyText)
	assert.True(t, msg.FullyDownloaded)
}

func TestUpdateMessageFlags(t *testing.T) {
	h, walker := newTestMailHandler(t)
	ctx := context.Background()
	_, err := walker.Load(ctx, "alice")
	require.NoError(t, err)
	_, err = walker.OpenThread(ctx, "<t1@x>")
	require.NoError(t, err)

	rr := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/api/v1/message/<m1@x>/flags",
		strings.NewReader(`{"seen":true,"favorite":true}`))
	h.UpdateMessageFlags(rr, req)

	require.Equal(t, http.StatusOK, rr.Code)

	var msg models.Message
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &msg))
	assert.True(t, msg.Seen)
	assert.True(t, msg.Favorite)
}

func TestUpdateMessageFlagsUnknownMessage(t *testing.T) {
	h, walker := newTestMailHandler(t)
	_, err := walker.Load(context.Background(), "alice")
	require.NoError(t, err)

	rr := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/api/v1/message/<nope@x>/flags",
		strings.NewReader(`{"seen":true}`))
	h.UpdateMessageFlags(rr, req)

	assert.Equal(t, http.StatusNotFound, rr.Code)
}

func TestUpdateFolderFlags(t *testing.T) {
	h, walker := newTestMailHandler(t)
	_, err := walker.Load(context.Background(), "alice")
	require.NoError(t, err)

	rr := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/api/v1/folder/Archive/flags",
		strings.NewReader(`{"is_favorite":true}`))
	h.UpdateFolderFlags(rr, req)

	require.Equal(t, http.StatusOK, rr.Code)

	var folder models.Folder
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &folder))
	assert.True(t, folder.IsFavorite)

	// The flag survives the next remote refresh.
	snap, err := walker.Refresh(context.Background())
	require.NoError(t, err)
	require.Len(t, snap.Folders.Default, 1)
	assert.True(t, snap.Folders.Default[0].IsFavorite)
}
