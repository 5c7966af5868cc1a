package imap

import (
	"testing"
	"time"

	"github.com/emersion/go-imap"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testEnvelope() *imap.Envelope {
	return &imap.Envelope{
		MessageId: "<m1@example.com>",
		Subject:   "quarterly numbers",
		Date:      time.Date(2026, 6, 1, 9, 30, 0, 0, time.FixedZone("CEST", 2*3600)),
		From: []*imap.Address{
			{PersonalName: "Bob", MailboxName: "bob", HostName: "example.com"},
		},
		To: []*imap.Address{
			{MailboxName: "alice", HostName: "example.com"},
		},
		Cc: []*imap.Address{
			{MailboxName: "carol", HostName: "example.com"},
		},
	}
}

func TestParseMessage(t *testing.T) {
	imapMsg := &imap.Message{
		Uid:      99,
		Envelope: testEnvelope(),
		Flags:    []string{imap.SeenFlag, imap.FlaggedFlag},
	}

	msg, err := ParseMessage(imapMsg, "<root@example.com>", "INBOX")
	require.NoError(t, err)

	assert.Equal(t, "<m1@example.com>", msg.UID)
	assert.Equal(t, "<root@example.com>", msg.ThreadUID)
	assert.Equal(t, "INBOX", msg.FolderID)
	assert.Equal(t, int64(99), msg.IMAPUID)
	assert.True(t, msg.Seen)
	assert.True(t, msg.Favorite)
	assert.Equal(t, "quarterly numbers", msg.Subject)
	assert.Equal(t, "Bob <bob@example.com>", msg.FromAddress)
	assert.Equal(t, []string{"alice@example.com"}, msg.ToAddresses)
	assert.Equal(t, []string{"carol@example.com"}, msg.CCAddresses)

	// Dates are normalized to UTC.
	require.NotNil(t, msg.SentAt)
	assert.Equal(t, time.UTC, msg.SentAt.Location())

	// No body sections fetched: the message is metadata only.
	assert.False(t, msg.FullyDownloaded)
	assert.Empty(t, msg.BodyText)
}

func TestParseMessageRequiresMessageID(t *testing.T) {
	_, err := ParseMessage(&imap.Message{Uid: 7, Envelope: &imap.Envelope{}}, "", "INBOX")
	assert.Error(t, err)

	_, err = ParseMessage(&imap.Message{Uid: 7}, "", "INBOX")
	assert.Error(t, err)

	_, err = ParseMessage(nil, "", "INBOX")
	assert.Error(t, err)
}

func TestFormatAddress(t *testing.T) {
	assert.Equal(t, "Bob <bob@example.com>",
		formatAddress(&imap.Address{PersonalName: "Bob", MailboxName: "bob", HostName: "example.com"}))
	assert.Equal(t, "bob@example.com",
		formatAddress(&imap.Address{MailboxName: "bob", HostName: "example.com"}))
	assert.Empty(t, formatAddress(&imap.Address{}))
	assert.Empty(t, formatAddress(nil))
}

func TestFormatAddressListSkipsEmpty(t *testing.T) {
	got := formatAddressList([]*imap.Address{
		{MailboxName: "bob", HostName: "example.com"},
		{},
		nil,
	})
	assert.Equal(t, []string{"bob@example.com"}, got)
}

func TestStableThreadUID(t *testing.T) {
	assert.Equal(t, "<m1@example.com>", StableThreadUID(testEnvelope()))
	assert.Empty(t, StableThreadUID(nil))
}
