package imap

import (
	"fmt"
	"io"
	"strings"

	"github.com/emersion/go-imap"
	"github.com/jhillyerd/enmime"

	"github.com/mailmirror/mailmirror/internal/models"
)

// ParseMessage converts an IMAP message to a message model. The Message-ID
// header becomes the model's uid; messages without one cannot be mirrored
// and are rejected.
func ParseMessage(imapMsg *imap.Message, threadUID, folderID string) (*models.Message, error) {
	if imapMsg == nil {
		return nil, fmt.Errorf("imap message is nil")
	}
	if imapMsg.Envelope == nil || imapMsg.Envelope.MessageId == "" {
		return nil, fmt.Errorf("message UID %d has no Message-ID header", imapMsg.Uid)
	}

	seen := false
	favorite := false
	for _, flag := range imapMsg.Flags {
		if flag == imap.SeenFlag {
			seen = true
		}
		if flag == imap.FlaggedFlag {
			favorite = true
		}
	}

	msg := &models.Message{
		UID:       imapMsg.Envelope.MessageId,
		ThreadUID: threadUID,
		FolderID:  folderID,
		IMAPUID:   int64(imapMsg.Uid),
		Seen:      seen,
		Favorite:  favorite,
		Subject:   imapMsg.Envelope.Subject,
	}

	if len(imapMsg.Envelope.From) > 0 {
		msg.FromAddress = formatAddress(imapMsg.Envelope.From[0])
	}
	msg.ToAddresses = formatAddressList(imapMsg.Envelope.To)
	msg.CCAddresses = formatAddressList(imapMsg.Envelope.Cc)
	if !imapMsg.Envelope.Date.IsZero() {
		sentAt := imapMsg.Envelope.Date.UTC()
		msg.SentAt = &sentAt
	}

	// Parse body if available
	if imapMsg.Body != nil && imapMsg.BodyStructure != nil {
		section := &imap.BodySectionName{}
		bodyReader := imapMsg.GetBody(section)
		if bodyReader != nil {
			if err := parseBody(bodyReader, msg); err == nil {
				msg.FullyDownloaded = true
			}
		}
	}

	return msg, nil
}

// parseBody parses the email body using enmime.
func parseBody(bodyReader io.Reader, msg *models.Message) error {
	envelope, err := enmime.ReadEnvelope(bodyReader)
	if err != nil {
		return fmt.Errorf("failed to parse email body: %w", err)
	}

	htmlBody := envelope.HTML
	if htmlBody == "" {
		// If no HTML, convert text to HTML
		htmlBody = strings.ReplaceAll(envelope.Text, "\n", "<br>")
	}
	msg.UnsafeBodyHTML = htmlBody
	msg.BodyText = envelope.Text

	for _, part := range envelope.Attachments {
		attachment := models.Attachment{
			MessageUID: msg.UID,
			Filename:   part.FileName,
			MimeType:   part.ContentType,
			SizeBytes:  int64(len(part.Content)),
			IsInline:   false,
		}

		if part.ContentID != "" {
			attachment.ContentID = part.ContentID
			attachment.IsInline = true
		}

		msg.Attachments = append(msg.Attachments, attachment)
	}

	return nil
}

// formatAddress formats an IMAP address to a string.
func formatAddress(address *imap.Address) string {
	if address == nil {
		return ""
	}

	if address.MailboxName == "" && address.HostName == "" {
		return ""
	}

	if address.PersonalName != "" {
		return fmt.Sprintf("%s <%s@%s>", address.PersonalName, address.MailboxName, address.HostName)
	}

	return fmt.Sprintf("%s@%s", address.MailboxName, address.HostName)
}

// formatAddressList formats a list of IMAP addresses.
func formatAddressList(addresses []*imap.Address) []string {
	result := make([]string, 0, len(addresses))
	for _, address := range addresses {
		formatted := formatAddress(address)
		if formatted != "" {
			result = append(result, formatted)
		}
	}
	return result
}

// StableThreadUID extracts the stable thread uid from a root message's
// envelope: its Message-ID header.
func StableThreadUID(envelope *imap.Envelope) string {
	if envelope == nil {
		return ""
	}
	return envelope.MessageId
}
