package imap

import (
	"fmt"

	"github.com/emersion/go-imap"
	sortthread "github.com/emersion/go-imap-sortthread"
	"github.com/emersion/go-imap/client"
)

// RunThreadCommand runs the UID THREAD command over the selected folder and
// returns the thread structure. Uses the REFERENCES algorithm to build
// thread relationships.
func RunThreadCommand(c *client.Client) ([]*sortthread.Thread, error) {
	if c == nil {
		return nil, fmt.Errorf("client is nil")
	}

	threadClient := sortthread.NewThreadClient(c)
	searchCriteria := imap.NewSearchCriteria()

	threads, err := threadClient.UidThread(sortthread.References, searchCriteria)
	if err != nil {
		return nil, fmt.Errorf("THREAD command returned error: %w", err)
	}

	return threads, nil
}

// FlattenThread collects every message UID in a thread tree, root included.
func FlattenThread(t *sortthread.Thread) []uint32 {
	if t == nil {
		return nil
	}
	uids := []uint32{t.Id}
	for _, child := range t.Children {
		uids = append(uids, FlattenThread(child)...)
	}
	return uids
}
