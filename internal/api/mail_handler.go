package api

import (
	"net/http"
	"strings"

	"go.uber.org/zap"

	"github.com/mailmirror/mailmirror/internal/store"
	"github.com/mailmirror/mailmirror/internal/sync"
)

// MailHandler serves the mail hierarchy: snapshots of the current view,
// selection changes, thread opening, and message operations. Every read is
// answered from local storage; remote refreshes happen through the walker
// before the read.
type MailHandler struct {
	walker *sync.Walker
	scopes *store.ScopeManager
	userID string
	log    *zap.Logger
}

// NewMailHandler creates a new MailHandler instance.
func NewMailHandler(walker *sync.Walker, scopes *store.ScopeManager, userID string, log *zap.Logger) *MailHandler {
	return &MailHandler{walker: walker, scopes: scopes, userID: userID, log: log}
}

// GetSnapshot refreshes and returns the current view. With no selection yet,
// a fresh descent is started for the configured user.
func (h *MailHandler) GetSnapshot(w http.ResponseWriter, r *http.Request) {
	snap, err := h.walker.Refresh(r.Context())
	if err == sync.ErrNoMailboxSelected {
		snap, err = h.walker.Load(r.Context(), h.userID)
	}
	if err != nil {
		h.log.Error("snapshot failed", zap.Error(err))
		WriteDomainError(w, err)
		return
	}
	WriteJSONResponse(w, snap)
}

// SelectMailbox moves the selection to another mailbox and returns the new
// view.
func (h *MailHandler) SelectMailbox(w http.ResponseWriter, r *http.Request) {
	var req struct {
		MailboxID string `json:"mailbox_id"`
	}
	if !DecodeJSONBody(w, r, &req) {
		return
	}
	if req.MailboxID == "" {
		http.Error(w, "mailbox_id is required", http.StatusBadRequest)
		return
	}

	snap, err := h.walker.SelectMailbox(r.Context(), req.MailboxID)
	if err != nil {
		h.log.Error("mailbox selection failed",
			zap.String("mailbox_id", req.MailboxID), zap.Error(err))
		WriteDomainError(w, err)
		return
	}
	WriteJSONResponse(w, snap)
}

// SelectFolder moves the selection to another folder and returns the new
// view.
func (h *MailHandler) SelectFolder(w http.ResponseWriter, r *http.Request) {
	var req struct {
		FolderID string `json:"folder_id"`
	}
	if !DecodeJSONBody(w, r, &req) {
		return
	}
	if req.FolderID == "" {
		http.Error(w, "folder_id is required", http.StatusBadRequest)
		return
	}

	snap, err := h.walker.SelectFolder(r.Context(), req.FolderID)
	if err != nil {
		h.log.Error("folder selection failed",
			zap.String("folder_id", req.FolderID), zap.Error(err))
		WriteDomainError(w, err)
		return
	}
	WriteJSONResponse(w, snap)
}

// GetThread opens a thread: refreshes its messages and returns the thread
// with its message list. The thread uid is the path suffix.
func (h *MailHandler) GetThread(w http.ResponseWriter, r *http.Request) {
	uid := strings.TrimPrefix(r.URL.Path, "/api/v1/thread/")
	if uid == "" {
		http.Error(w, "thread uid is required", http.StatusBadRequest)
		return
	}

	thread, err := h.walker.OpenThread(r.Context(), uid)
	if err != nil {
		h.log.Error("failed to open thread", zap.String("thread_uid", uid), zap.Error(err))
		WriteDomainError(w, err)
		return
	}
	WriteJSONResponse(w, thread)
}

// DownloadMessage fetches a message's full body and attachments and returns
// the stored message.
func (h *MailHandler) DownloadMessage(w http.ResponseWriter, r *http.Request) {
	uid := strings.TrimPrefix(r.URL.Path, "/api/v1/message/")
	uid = strings.TrimSuffix(uid, "/download")
	if uid == "" {
		http.Error(w, "message uid is required", http.StatusBadRequest)
		return
	}

	msg, err := h.walker.DownloadMessage(r.Context(), uid)
	if err != nil {
		h.log.Error("failed to download message", zap.String("message_uid", uid), zap.Error(err))
		WriteDomainError(w, err)
		return
	}
	WriteJSONResponse(w, msg)
}

// UpdateMessageFlags updates a message's local flags.
func (h *MailHandler) UpdateMessageFlags(w http.ResponseWriter, r *http.Request) {
	uid := strings.TrimPrefix(r.URL.Path, "/api/v1/message/")
	uid = strings.TrimSuffix(uid, "/flags")
	if uid == "" {
		http.Error(w, "message uid is required", http.StatusBadRequest)
		return
	}

	var req struct {
		Seen     *bool `json:"seen,omitempty"`
		Favorite *bool `json:"favorite,omitempty"`
	}
	if !DecodeJSONBody(w, r, &req) {
		return
	}

	sel := h.walker.Selection()
	if sel.MailboxID == "" {
		WriteDomainError(w, sync.ErrNoMailboxSelected)
		return
	}
	content, err := h.scopes.Content(sel.UserID, sel.MailboxID)
	if err != nil {
		WriteDomainError(w, err)
		return
	}

	ctx := r.Context()
	if req.Seen != nil {
		if err := store.SetMessageSeen(ctx, content, uid, *req.Seen); err != nil {
			WriteDomainError(w, err)
			return
		}
	}
	if req.Favorite != nil {
		if err := store.SetMessageFavorite(ctx, content, uid, *req.Favorite); err != nil {
			WriteDomainError(w, err)
			return
		}
	}

	msg, err := store.GetMessage(ctx, content, uid)
	if err != nil {
		WriteDomainError(w, err)
		return
	}
	WriteJSONResponse(w, msg)
}

// UpdateFolderFlags updates a folder's local-only flags.
func (h *MailHandler) UpdateFolderFlags(w http.ResponseWriter, r *http.Request) {
	id := strings.TrimPrefix(r.URL.Path, "/api/v1/folder/")
	id = strings.TrimSuffix(id, "/flags")
	if id == "" {
		http.Error(w, "folder id is required", http.StatusBadRequest)
		return
	}

	var req struct {
		IsFavorite  *bool `json:"is_favorite,omitempty"`
		IsCollapsed *bool `json:"is_collapsed,omitempty"`
	}
	if !DecodeJSONBody(w, r, &req) {
		return
	}

	sel := h.walker.Selection()
	if sel.MailboxID == "" {
		WriteDomainError(w, sync.ErrNoMailboxSelected)
		return
	}
	content, err := h.scopes.Content(sel.UserID, sel.MailboxID)
	if err != nil {
		WriteDomainError(w, err)
		return
	}

	ctx := r.Context()
	if req.IsFavorite != nil {
		if err := store.SetFolderFavorite(ctx, content, id, *req.IsFavorite); err != nil {
			WriteDomainError(w, err)
			return
		}
	}
	if req.IsCollapsed != nil {
		if err := store.SetFolderCollapsed(ctx, content, id, *req.IsCollapsed); err != nil {
			WriteDomainError(w, err)
			return
		}
	}

	folder, err := store.GetFolder(ctx, content, id)
	if err != nil {
		WriteDomainError(w, err)
		return
	}
	WriteJSONResponse(w, folder)
}
