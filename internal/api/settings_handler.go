package api

import (
	"net/http"
	"strings"

	"go.uber.org/zap"

	"github.com/mailmirror/mailmirror/internal/crypto"
	"github.com/mailmirror/mailmirror/internal/models"
	"github.com/mailmirror/mailmirror/internal/store"
)

// SettingsHandler serves app settings, user settings, and account
// configuration. Account passwords are encrypted before they touch disk and
// never leave the server again.
type SettingsHandler struct {
	scopes    *store.ScopeManager
	encryptor *crypto.Encryptor
	userID    string
	log       *zap.Logger
}

// NewSettingsHandler creates a new SettingsHandler instance.
func NewSettingsHandler(scopes *store.ScopeManager, encryptor *crypto.Encryptor, userID string, log *zap.Logger) *SettingsHandler {
	return &SettingsHandler{scopes: scopes, encryptor: encryptor, userID: userID, log: log}
}

// GetAppSettings returns the device-wide settings.
func (h *SettingsHandler) GetAppSettings(w http.ResponseWriter, r *http.Request) {
	s, err := h.scopes.App()
	if err != nil {
		WriteDomainError(w, err)
		return
	}
	settings, err := store.GetAppSettings(r.Context(), s)
	if err != nil {
		h.log.Error("failed to get app settings", zap.Error(err))
		WriteDomainError(w, err)
		return
	}
	WriteJSONResponse(w, settings)
}

// PostAppSettings saves the device-wide settings. Unknown enum values fall
// back to their defaults rather than failing.
func (h *SettingsHandler) PostAppSettings(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Theme      string `json:"theme"`
		SwipeLeft  string `json:"swipe_left"`
		SwipeRight string `json:"swipe_right"`
		LastUserID string `json:"last_user_id"`
	}
	if !DecodeJSONBody(w, r, &req) {
		return
	}

	settings := &models.AppSettings{
		Theme:      models.ParseTheme(req.Theme),
		SwipeLeft:  models.ParseSwipeAction(req.SwipeLeft),
		SwipeRight: models.ParseSwipeAction(req.SwipeRight),
		LastUserID: req.LastUserID,
	}

	s, err := h.scopes.App()
	if err != nil {
		WriteDomainError(w, err)
		return
	}
	if err := store.SaveAppSettings(r.Context(), s, settings); err != nil {
		h.log.Error("failed to save app settings", zap.Error(err))
		WriteDomainError(w, err)
		return
	}
	WriteJSONResponse(w, settings)
}

// GetUserSettings returns the current user's settings.
func (h *SettingsHandler) GetUserSettings(w http.ResponseWriter, r *http.Request) {
	s, err := h.scopes.User(h.userID)
	if err != nil {
		WriteDomainError(w, err)
		return
	}
	settings, err := store.GetUserSettings(r.Context(), s, h.userID)
	if err != nil {
		h.log.Error("failed to get user settings", zap.Error(err))
		WriteDomainError(w, err)
		return
	}
	if settings == nil {
		http.Error(w, "User settings not found", http.StatusNotFound)
		return
	}
	WriteJSONResponse(w, settings)
}

// PostUserSettings saves the current user's settings.
func (h *SettingsHandler) PostUserSettings(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Email          string `json:"email"`
		ThreadsPerPage int    `json:"threads_per_page"`
		SignatureID    string `json:"signature_id"`
		LastMailboxID  string `json:"last_mailbox_id"`
	}
	if !DecodeJSONBody(w, r, &req) {
		return
	}
	if req.ThreadsPerPage <= 0 {
		req.ThreadsPerPage = 50
	}

	settings := &models.UserSettings{
		UserID:         h.userID,
		Email:          req.Email,
		ThreadsPerPage: req.ThreadsPerPage,
		SignatureID:    req.SignatureID,
		LastMailboxID:  req.LastMailboxID,
	}

	s, err := h.scopes.User(h.userID)
	if err != nil {
		WriteDomainError(w, err)
		return
	}
	if err := store.SaveUserSettings(r.Context(), s, settings); err != nil {
		h.log.Error("failed to save user settings", zap.Error(err))
		WriteDomainError(w, err)
		return
	}
	WriteJSONResponse(w, settings)
}

// accountResponse is an account without its encrypted password.
type accountResponse struct {
	MailboxID          string `json:"mailbox_id"`
	Email              string `json:"email"`
	IMAPServerHostname string `json:"imap_server_hostname"`
	IMAPUsername       string `json:"imap_username"`
}

// GetAccounts lists the configured accounts. Passwords are never returned.
func (h *SettingsHandler) GetAccounts(w http.ResponseWriter, r *http.Request) {
	s, err := h.scopes.User(h.userID)
	if err != nil {
		WriteDomainError(w, err)
		return
	}
	accounts, err := store.GetAccounts(r.Context(), s)
	if err != nil {
		h.log.Error("failed to get accounts", zap.Error(err))
		WriteDomainError(w, err)
		return
	}

	resp := make([]accountResponse, 0, len(accounts))
	for _, a := range accounts {
		resp = append(resp, accountResponse{
			MailboxID:          a.MailboxID,
			Email:              a.Email,
			IMAPServerHostname: a.IMAPServerHostname,
			IMAPUsername:       a.IMAPUsername,
		})
	}
	WriteJSONResponse(w, resp)
}

// PostAccount saves an account. The IMAP password arrives in plaintext over
// the local connection and is stored encrypted.
func (h *SettingsHandler) PostAccount(w http.ResponseWriter, r *http.Request) {
	var req struct {
		MailboxID          string `json:"mailbox_id"`
		Email              string `json:"email"`
		IMAPServerHostname string `json:"imap_server_hostname"`
		IMAPUsername       string `json:"imap_username"`
		IMAPPassword       string `json:"imap_password"`
	}
	if !DecodeJSONBody(w, r, &req) {
		return
	}
	if req.MailboxID == "" || req.Email == "" || req.IMAPServerHostname == "" {
		http.Error(w, "mailbox_id, email, and imap_server_hostname are required", http.StatusBadRequest)
		return
	}

	encrypted, err := h.encryptor.Encrypt(req.IMAPPassword)
	if err != nil {
		h.log.Error("failed to encrypt IMAP password", zap.Error(err))
		http.Error(w, "Internal server error", http.StatusInternalServerError)
		return
	}

	account := &models.Account{
		MailboxID:             req.MailboxID,
		Email:                 req.Email,
		IMAPServerHostname:    req.IMAPServerHostname,
		IMAPUsername:          req.IMAPUsername,
		EncryptedIMAPPassword: encrypted,
	}

	s, err := h.scopes.User(h.userID)
	if err != nil {
		WriteDomainError(w, err)
		return
	}
	if err := store.SaveAccount(r.Context(), s, account); err != nil {
		h.log.Error("failed to save account", zap.Error(err))
		WriteDomainError(w, err)
		return
	}

	WriteJSONResponse(w, accountResponse{
		MailboxID:          account.MailboxID,
		Email:              account.Email,
		IMAPServerHostname: account.IMAPServerHostname,
		IMAPUsername:       account.IMAPUsername,
	})
}

// DeleteAccount removes an account. The mailbox id is the path suffix.
func (h *SettingsHandler) DeleteAccount(w http.ResponseWriter, r *http.Request) {
	mailboxID := strings.TrimPrefix(r.URL.Path, "/api/v1/accounts/")
	if mailboxID == "" {
		http.Error(w, "mailbox id is required", http.StatusBadRequest)
		return
	}

	s, err := h.scopes.User(h.userID)
	if err != nil {
		WriteDomainError(w, err)
		return
	}
	if err := store.DeleteAccount(r.Context(), s, mailboxID); err != nil {
		h.log.Error("failed to delete account", zap.Error(err))
		WriteDomainError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
