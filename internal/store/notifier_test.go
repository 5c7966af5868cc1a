package store

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func drain(sub *Subscription) []Change {
	var out []Change
	for {
		select {
		case c := <-sub.C:
			out = append(out, c)
		default:
			return out
		}
	}
}

func TestNotifierDeliversInCommitOrder(t *testing.T) {
	n := NewNotifier()
	sub := n.Subscribe(16)
	defer sub.Cancel()

	n.Publish(Change{Level: LevelMailboxes, UserID: "alice"})
	n.Publish(Change{Level: LevelThreads, UserID: "alice", FolderID: "INBOX"})
	n.Publish(Change{Level: LevelMessages, UserID: "alice", ThreadUID: "<r@x>"})

	got := drain(sub)
	require.Len(t, got, 3)
	assert.Equal(t, uint64(1), got[0].Seq)
	assert.Equal(t, uint64(2), got[1].Seq)
	assert.Equal(t, uint64(3), got[2].Seq)
	assert.Equal(t, LevelMailboxes, got[0].Level)
	assert.Equal(t, LevelMessages, got[2].Level)
}

func TestNotifierDeliversLatestOnSubscribe(t *testing.T) {
	n := NewNotifier()

	n.Publish(Change{Level: LevelMailboxes, UserID: "alice"})
	n.Publish(Change{Level: LevelFolders, UserID: "alice", MailboxID: "work"})

	sub := n.Subscribe(16)
	defer sub.Cancel()

	got := drain(sub)
	require.Len(t, got, 1)
	assert.Equal(t, LevelFolders, got[0].Level)
	assert.Equal(t, uint64(2), got[0].Seq)
}

func TestNotifierDropsOldestWhenSubscriberLags(t *testing.T) {
	n := NewNotifier()
	sub := n.Subscribe(2)
	defer sub.Cancel()

	for i := 0; i < 5; i++ {
		n.Publish(Change{Level: LevelThreads, UserID: "alice"})
	}

	got := drain(sub)
	require.Len(t, got, 2)

	// The newest changes survive, still in order.
	assert.Equal(t, uint64(4), got[0].Seq)
	assert.Equal(t, uint64(5), got[1].Seq)
}

func TestSubscriptionCancelIsIdempotent(t *testing.T) {
	n := NewNotifier()
	sub := n.Subscribe(1)

	sub.Cancel()
	sub.Cancel()

	// A publish after cancel must not panic on the closed channel.
	n.Publish(Change{Level: LevelMailboxes, UserID: "alice"})
}
