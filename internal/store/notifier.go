package store

import "sync"

// Level names the hierarchy level a committed change applies to.
type Level string

const (
	LevelMailboxes Level = "mailboxes"
	LevelFolders   Level = "folders"
	LevelThreads   Level = "threads"
	LevelMessages  Level = "messages"
)

// Change describes one committed reconciliation. Seq is assigned at publish
// time and is strictly increasing, so consumers observe changes in commit
// order.
type Change struct {
	Seq       uint64 `json:"seq"`
	Level     Level  `json:"level"`
	UserID    string `json:"user_id"`
	MailboxID string `json:"mailbox_id,omitempty"`
	FolderID  string `json:"folder_id,omitempty"`
	ThreadUID string `json:"thread_uid,omitempty"`
}

// Notifier delivers committed changes to subscribers: the latest change at
// subscribe time, then every subsequent one, in commit order. A subscriber
// that falls behind loses its oldest pending changes, never their ordering.
type Notifier struct {
	mu     sync.Mutex
	seq    uint64
	last   *Change
	subs   map[uint64]chan Change
	nextID uint64
}

// NewNotifier creates an empty notifier.
func NewNotifier() *Notifier {
	return &Notifier{subs: make(map[uint64]chan Change)}
}

// Subscription is one consumer's ordered change feed.
type Subscription struct {
	C      <-chan Change
	id     uint64
	n      *Notifier
	cancel sync.Once
}

// Cancel detaches the subscription. Safe to call more than once.
func (s *Subscription) Cancel() {
	s.cancel.Do(func() {
		s.n.mu.Lock()
		defer s.n.mu.Unlock()
		if ch, ok := s.n.subs[s.id]; ok {
			delete(s.n.subs, s.id)
			close(ch)
		}
	})
}

// Subscribe registers a consumer. If a change has already been published the
// latest one is delivered immediately.
func (n *Notifier) Subscribe(buffer int) *Subscription {
	if buffer < 1 {
		buffer = 16
	}

	n.mu.Lock()
	defer n.mu.Unlock()

	ch := make(chan Change, buffer)
	n.nextID++
	id := n.nextID
	n.subs[id] = ch

	if n.last != nil {
		ch <- *n.last
	}

	return &Subscription{C: ch, id: id, n: n}
}

// Publish assigns the next sequence number and fans the change out to every
// subscriber.
func (n *Notifier) Publish(c Change) {
	n.mu.Lock()
	defer n.mu.Unlock()

	n.seq++
	c.Seq = n.seq
	n.last = &c

	for _, ch := range n.subs {
		for {
			select {
			case ch <- c:
			default:
				// Full buffer: drop the oldest pending change and retry so
				// the newest change always lands.
				select {
				case <-ch:
				default:
				}
				continue
			}
			break
		}
	}
}
