package imap

import (
	"fmt"
	"sync"
	"time"
)

// maxIdleTime is how long a worker client may sit unused before the cleanup
// pass logs it out.
const maxIdleTime = 10 * time.Minute

// Pool caches authenticated IMAP clients per mailbox so consecutive fetches
// reuse connections. Each mailbox gets at most one worker client and one
// listener client; the listener is reserved for IDLE and never handed out as
// a worker.
type Pool struct {
	mu        sync.Mutex
	workers   map[string]*threadSafeClient
	listeners map[string]*threadSafeClient
	useTLS    bool
	stop      chan struct{}
	stopOnce  sync.Once
}

// NewPool creates a pool and starts its idle-connection cleanup loop.
func NewPool(useTLS bool) *Pool {
	p := &Pool{
		workers:   make(map[string]*threadSafeClient),
		listeners: make(map[string]*threadSafeClient),
		useTLS:    useTLS,
		stop:      make(chan struct{}),
	}
	go p.cleanupLoop()
	return p
}

// Worker returns a locked worker client for the mailbox, connecting and
// authenticating if none is cached. The caller must Unlock it when done.
func (p *Pool) Worker(mailboxID, server, username, password string) (*threadSafeClient, error) {
	p.mu.Lock()
	c, ok := p.workers[mailboxID]
	p.mu.Unlock()

	if ok {
		c.Lock()
		// Cheap liveness check; a dead connection gets replaced below.
		if err := c.Client().Noop(); err == nil {
			c.UpdateLastUsed()
			return c, nil
		}
		c.Unlock()
		p.RemoveWorker(mailboxID)
	}

	raw, err := Connect(server, p.useTLS)
	if err != nil {
		return nil, err
	}
	if err := Login(raw, username, password); err != nil {
		_ = raw.Logout()
		return nil, err
	}

	c = &threadSafeClient{client: raw, lastUsed: time.Now(), role: roleWorker}

	winner, installed := p.addWorker(mailboxID, c)
	if !installed {
		// Another caller connected for the same mailbox first. Keep the
		// cached client and drop ours, or the connection leaks.
		_ = raw.Logout()
	}

	winner.Lock()
	winner.UpdateLastUsed()
	return winner, nil
}

// addWorker installs c as the mailbox's worker unless one was cached in the
// meantime, in which case the cached client wins and installed is false.
func (p *Pool) addWorker(mailboxID string, c *threadSafeClient) (winner *threadSafeClient, installed bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if existing, ok := p.workers[mailboxID]; ok {
		return existing, false
	}
	p.workers[mailboxID] = c
	return c, true
}

// Listener returns a locked listener client for the mailbox. A cached
// listener held by an IDLE loop is never handed out twice; the second caller
// gets an error instead of a shared connection.
func (p *Pool) Listener(mailboxID, server, username, password string) (*threadSafeClient, error) {
	p.mu.Lock()
	if _, ok := p.listeners[mailboxID]; ok {
		p.mu.Unlock()
		return nil, fmt.Errorf("listener already active for mailbox %s", mailboxID)
	}
	p.mu.Unlock()

	raw, err := Connect(server, p.useTLS)
	if err != nil {
		return nil, err
	}
	if err := Login(raw, username, password); err != nil {
		_ = raw.Logout()
		return nil, err
	}

	c := &threadSafeClient{client: raw, lastUsed: time.Now(), role: roleListener}

	p.mu.Lock()
	p.listeners[mailboxID] = c
	p.mu.Unlock()

	c.Lock()
	return c, nil
}

// RemoveWorker drops the mailbox's worker client, logging it out.
func (p *Pool) RemoveWorker(mailboxID string) {
	p.mu.Lock()
	c, ok := p.workers[mailboxID]
	delete(p.workers, mailboxID)
	p.mu.Unlock()
	if ok {
		_ = c.Client().Logout()
	}
}

// RemoveListener drops the mailbox's listener client, logging it out.
func (p *Pool) RemoveListener(mailboxID string) {
	p.mu.Lock()
	c, ok := p.listeners[mailboxID]
	delete(p.listeners, mailboxID)
	p.mu.Unlock()
	if ok {
		_ = c.Client().Logout()
	}
}

// Close logs out every cached client and stops the cleanup loop.
func (p *Pool) Close() {
	p.stopOnce.Do(func() { close(p.stop) })

	p.mu.Lock()
	defer p.mu.Unlock()
	for id, c := range p.workers {
		_ = c.Client().Logout()
		delete(p.workers, id)
	}
	for id, c := range p.listeners {
		_ = c.Client().Logout()
		delete(p.listeners, id)
	}
}

func (p *Pool) cleanupLoop() {
	ticker := time.NewTicker(time.Minute)
	defer ticker.Stop()

	for {
		select {
		case <-p.stop:
			return
		case <-ticker.C:
			p.cleanupIdle()
		}
	}
}

// cleanupIdle logs out worker clients that have been idle too long.
// Listeners are exempt: an IDLE connection is supposed to sit quiet.
func (p *Pool) cleanupIdle() {
	cutoff := time.Now().Add(-maxIdleTime)

	p.mu.Lock()
	var stale []*threadSafeClient
	for id, c := range p.workers {
		if c.LastUsed().Before(cutoff) {
			stale = append(stale, c)
			delete(p.workers, id)
		}
	}
	p.mu.Unlock()

	for _, c := range stale {
		c.Lock()
		_ = c.Client().Logout()
		c.Unlock()
	}
}
