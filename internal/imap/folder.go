package imap

import (
	"fmt"
	"strings"

	"github.com/emersion/go-imap"
	"github.com/emersion/go-imap/client"

	"github.com/mailmirror/mailmirror/internal/models"
)

// ListFolders lists all folders on the IMAP server and maps them to folder
// models. The folder's full name doubles as its stable id; IMAP has no other
// server-assigned identifier for a mailbox folder.
func ListFolders(c *client.Client) ([]*models.Folder, error) {
	if c == nil {
		return nil, fmt.Errorf("client is nil")
	}

	mailboxes := make(chan *imap.MailboxInfo, 10)
	done := make(chan error, 1)

	go func() {
		done <- c.List("", "*", mailboxes)
	}()

	var folders []*models.Folder
	for m := range mailboxes {
		if hasAttribute(m, imap.NoSelectAttr) {
			continue
		}
		folders = append(folders, &models.Folder{
			ID:   m.Name,
			Name: displayName(m),
			Path: m.Name,
			Role: folderRole(m),
		})
	}

	if err := <-done; err != nil {
		return nil, fmt.Errorf("failed to list folders: %w", err)
	}

	return folders, nil
}

// folderRole maps SPECIAL-USE attributes to a role, falling back to
// well-known folder names for servers that do not advertise the extension.
func folderRole(m *imap.MailboxInfo) models.FolderRole {
	for _, attr := range m.Attributes {
		switch attr {
		case imap.DraftsAttr:
			return models.RoleDrafts
		case imap.SentAttr:
			return models.RoleSent
		case imap.JunkAttr:
			return models.RoleSpam
		case imap.TrashAttr:
			return models.RoleTrash
		case imap.ArchiveAttr:
			return models.RoleArchive
		}
	}

	switch strings.ToLower(m.Name) {
	case "inbox":
		return models.RoleInbox
	case "drafts":
		return models.RoleDrafts
	case "sent", "sent messages", "sent items":
		return models.RoleSent
	case "spam", "junk":
		return models.RoleSpam
	case "trash", "deleted messages":
		return models.RoleTrash
	case "archive":
		return models.RoleArchive
	}
	return models.RoleNone
}

func displayName(m *imap.MailboxInfo) string {
	if m.Delimiter == "" {
		return m.Name
	}
	parts := strings.Split(m.Name, m.Delimiter)
	return parts[len(parts)-1]
}

func hasAttribute(m *imap.MailboxInfo, attr string) bool {
	for _, a := range m.Attributes {
		if a == attr {
			return true
		}
	}
	return false
}
