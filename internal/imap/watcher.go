package imap

import (
	"context"
	"time"

	idle "github.com/emersion/go-imap-idle"
	imapclient "github.com/emersion/go-imap/client"
	"go.uber.org/zap"
)

// watcherBackoff is the backoff duration after an error before retrying IDLE.
const watcherBackoff = 10 * time.Second

// Watcher runs an IMAP IDLE loop per mailbox and invokes a callback when the
// server signals new activity on the INBOX. The callback is expected to
// trigger a refresh; the watcher itself never touches local storage.
type Watcher struct {
	accounts AccountSource
	pool     *Pool
	log      *zap.Logger
	onUpdate func(mailboxID string)
}

// NewWatcher creates a watcher. onUpdate is called from the watcher's
// goroutine whenever a mailbox's INBOX changes.
func NewWatcher(accounts AccountSource, pool *Pool, log *zap.Logger, onUpdate func(mailboxID string)) *Watcher {
	return &Watcher{accounts: accounts, pool: pool, log: log, onUpdate: onUpdate}
}

// Watch runs the IDLE loop for one mailbox. It blocks until the context is
// canceled, reconnecting with backoff after errors.
func (w *Watcher) Watch(ctx context.Context, mailboxID string) {
	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		listener, err := w.listener(ctx, mailboxID)
		if err != nil {
			w.log.Debug("failed to get IDLE listener",
				zap.String("mailbox_id", mailboxID), zap.Error(err))
			w.sleep(ctx, watcherBackoff)
			continue
		}

		func() {
			defer listener.Unlock()
			w.runIdleLoop(ctx, mailboxID, listener.Client())
		}()
		w.pool.RemoveListener(mailboxID)

		w.sleep(ctx, watcherBackoff)
	}
}

func (w *Watcher) listener(ctx context.Context, mailboxID string) (*threadSafeClient, error) {
	a, err := w.accounts.Account(ctx, mailboxID)
	if err != nil {
		return nil, err
	}
	return w.pool.Listener(a.MailboxID, a.Hostname, a.Username, a.Password)
}

// runIdleLoop runs the IDLE command and dispatches mailbox updates.
func (w *Watcher) runIdleLoop(ctx context.Context, mailboxID string, client *imapclient.Client) {
	if _, err := client.Select("INBOX", false); err != nil {
		w.log.Warn("failed to select INBOX for IDLE",
			zap.String("mailbox_id", mailboxID), zap.Error(err))
		return
	}

	idleClient := idle.NewClient(client)

	updates := make(chan imapclient.Update, 10)
	client.Updates = updates

	stop := make(chan struct{})
	done := make(chan error, 1)
	go func() {
		done <- idleClient.IdleWithFallback(stop, 5*time.Second)
	}()

	for {
		select {
		case <-ctx.Done():
			close(stop)
			return
		case err := <-done:
			if err != nil {
				w.log.Warn("IDLE loop ended with error",
					zap.String("mailbox_id", mailboxID), zap.Error(err))
			}
			return
		case update := <-updates:
			if update == nil {
				continue
			}
			w.handleUpdate(mailboxID, update)
		}
	}
}

// handleUpdate fires the callback for updates that can indicate new messages.
func (w *Watcher) handleUpdate(mailboxID string, update imapclient.Update) {
	mboxUpdate, ok := update.(*imapclient.MailboxUpdate)
	if !ok || mboxUpdate.Mailbox == nil {
		return
	}

	status := mboxUpdate.Mailbox
	if status.Name != "INBOX" || status.Messages == 0 {
		return
	}

	w.log.Debug("INBOX activity", zap.String("mailbox_id", mailboxID))
	if w.onUpdate != nil {
		w.onUpdate(mailboxID)
	}
}

func (w *Watcher) sleep(ctx context.Context, d time.Duration) {
	select {
	case <-ctx.Done():
	case <-time.After(d):
	}
}
