package imap

import (
	"testing"

	"github.com/emersion/go-imap"
	"github.com/stretchr/testify/assert"

	"github.com/mailmirror/mailmirror/internal/models"
)

func TestFolderRoleFromSpecialUse(t *testing.T) {
	tests := []struct {
		attr string
		want models.FolderRole
	}{
		{imap.DraftsAttr, models.RoleDrafts},
		{imap.SentAttr, models.RoleSent},
		{imap.JunkAttr, models.RoleSpam},
		{imap.TrashAttr, models.RoleTrash},
		{imap.ArchiveAttr, models.RoleArchive},
	}

	for _, tt := range tests {
		m := &imap.MailboxInfo{Name: "Whatever", Attributes: []string{tt.attr}}
		assert.Equal(t, tt.want, folderRole(m), "attr %s", tt.attr)
	}
}

func TestFolderRoleFromWellKnownName(t *testing.T) {
	tests := []struct {
		name string
		want models.FolderRole
	}{
		{"INBOX", models.RoleInbox},
		{"Drafts", models.RoleDrafts},
		{"Sent Messages", models.RoleSent},
		{"Sent Items", models.RoleSent},
		{"Junk", models.RoleSpam},
		{"Deleted Messages", models.RoleTrash},
		{"Archive", models.RoleArchive},
		{"Receipts", models.RoleNone},
	}

	for _, tt := range tests {
		m := &imap.MailboxInfo{Name: tt.name}
		assert.Equal(t, tt.want, folderRole(m), "name %s", tt.name)
	}
}

func TestFolderRoleSpecialUseWinsOverName(t *testing.T) {
	// A server may name its junk folder "Archive"; the attribute is the truth.
	m := &imap.MailboxInfo{Name: "Archive", Attributes: []string{imap.JunkAttr}}
	assert.Equal(t, models.RoleSpam, folderRole(m))
}

func TestDisplayName(t *testing.T) {
	assert.Equal(t, "Receipts",
		displayName(&imap.MailboxInfo{Name: "Work/2026/Receipts", Delimiter: "/"}))
	assert.Equal(t, "INBOX",
		displayName(&imap.MailboxInfo{Name: "INBOX", Delimiter: "/"}))
	assert.Equal(t, "A.B",
		displayName(&imap.MailboxInfo{Name: "A.B"}))
}
