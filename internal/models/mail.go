package models

import (
	"sort"
	"time"
)

// Mailbox is one remote mail account mirrored locally. Its stable key is
// (UserID, MailboxID); the row id assigned by the store is never used as a key.
type Mailbox struct {
	UserID              string   `json:"user_id"`
	MailboxID           string   `json:"mailbox_id"`
	UUID                string   `json:"uuid"`
	Email               string   `json:"email"`
	QuotaUsedBytes      int64    `json:"quota_used_bytes"`
	QuotaMaxBytes       int64    `json:"quota_max_bytes"`
	UnreadRemote        int      `json:"unread_remote"`
	UnreadLocal         int      `json:"unread_local"`
	CanManageFilters    bool     `json:"can_manage_filters"`
	CanManageSignatures bool     `json:"can_manage_signatures"`
	Signature           string   `json:"signature,omitempty"`
	FeatureFlags        []string `json:"feature_flags,omitempty"`
}

// Key returns the composite stable key of the mailbox.
func (m *Mailbox) Key() string {
	return m.UserID + "/" + m.MailboxID
}

// Folder is a server-side folder, keyed by the server-assigned folder id.
// Child threads are owned by reference (thread rows carry the folder id);
// the folder never holds pointers upward to its mailbox.
type Folder struct {
	ID          string     `json:"id"`
	Name        string     `json:"name"`
	Path        string     `json:"path"`
	Role        FolderRole `json:"role"`
	IsFavorite  bool       `json:"is_favorite"`
	IsCollapsed bool       `json:"is_collapsed"`
	Threads     []*Thread  `json:"threads,omitempty"`
}

// FolderPartition is the three-way split the UI observes: the inbox, folders
// with a well-known role, and custom folders, each sorted independently.
type FolderPartition struct {
	Inbox   *Folder   `json:"inbox,omitempty"`
	Default []*Folder `json:"default"`
	Custom  []*Folder `json:"custom"`
}

// PartitionFolders splits folders into inbox / default-role / custom groups.
// Default-role folders are sorted by role order, custom folders by name.
func PartitionFolders(folders []*Folder) FolderPartition {
	var p FolderPartition
	for _, f := range folders {
		switch {
		case f.Role == RoleInbox:
			p.Inbox = f
		case f.Role != RoleNone && f.Role != RoleUnknown:
			p.Default = append(p.Default, f)
		default:
			p.Custom = append(p.Custom, f)
		}
	}
	sort.SliceStable(p.Default, func(i, j int) bool {
		return p.Default[i].Role.Order() < p.Default[j].Role.Order()
	})
	sort.SliceStable(p.Custom, func(i, j int) bool {
		return p.Custom[i].Name < p.Custom[j].Name
	})
	return p
}

// Thread groups messages under a server thread uid, scoped to a folder.
// UnseenCount and IsFavorite are aggregates recomputed from the current
// message set whenever messages change; they are never authoritative on
// their own.
type Thread struct {
	UID           string     `json:"uid"`
	FolderID      string     `json:"folder_id"`
	Subject       string     `json:"subject"`
	UnseenCount   int        `json:"unseen_count"`
	IsFavorite    bool       `json:"is_favorite"`
	LastMessageAt *time.Time `json:"last_message_at,omitempty"`
	Messages      []*Message `json:"messages,omitempty"`
}

// Message is a single mail message, keyed by its server message uid.
// Body and attachments are nullable until fully fetched; once
// FullyDownloaded is set, a lighter re-fetch must not regress them.
type Message struct {
	UID             string       `json:"uid"`
	FolderID        string       `json:"folder_id"`
	ThreadUID       string       `json:"thread_uid,omitempty"`
	IMAPUID         int64        `json:"imap_uid"`
	Subject         string       `json:"subject"`
	FromAddress     string       `json:"from_address"`
	ToAddresses     []string     `json:"to_addresses"`
	CCAddresses     []string     `json:"cc_addresses"`
	SentAt          *time.Time   `json:"sent_at,omitempty"`
	Seen            bool         `json:"seen"`
	Favorite        bool         `json:"favorite"`
	Spam            bool         `json:"spam"`
	BodyText        string       `json:"body_text,omitempty"`
	UnsafeBodyHTML  string       `json:"unsafe_body_html,omitempty"`
	FullyDownloaded bool         `json:"fully_downloaded"`
	Attachments     []Attachment `json:"attachments,omitempty"`
}

// Attachment belongs to a message. Downloaded tracks local-only download
// state and survives metadata re-fetches of the owning message.
type Attachment struct {
	ID         string `json:"id"`
	MessageUID string `json:"message_uid"`
	Filename   string `json:"filename"`
	MimeType   string `json:"mime_type"`
	SizeBytes  int64  `json:"size_bytes"`
	IsInline   bool   `json:"is_inline"`
	ContentID  string `json:"content_id,omitempty"`
	Downloaded bool   `json:"downloaded"`
}
