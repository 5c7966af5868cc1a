package imap

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

// Two callers racing Worker for the same mailbox both connect; only the first
// insert may stick, the other connection is logged out by Worker.
func TestAddWorkerKeepsFirstClient(t *testing.T) {
	p := &Pool{
		workers:   make(map[string]*threadSafeClient),
		listeners: make(map[string]*threadSafeClient),
	}

	first := &threadSafeClient{role: roleWorker}
	winner, installed := p.addWorker("work", first)
	assert.True(t, installed)
	assert.Same(t, first, winner)

	second := &threadSafeClient{role: roleWorker}
	winner, installed = p.addWorker("work", second)
	assert.False(t, installed)
	assert.Same(t, first, winner)

	p.mu.Lock()
	assert.Same(t, first, p.workers["work"])
	p.mu.Unlock()
}

func TestAddWorkerIsPerMailbox(t *testing.T) {
	p := &Pool{
		workers:   make(map[string]*threadSafeClient),
		listeners: make(map[string]*threadSafeClient),
	}

	work := &threadSafeClient{role: roleWorker}
	personal := &threadSafeClient{role: roleWorker}

	_, installed := p.addWorker("work", work)
	assert.True(t, installed)
	_, installed = p.addWorker("personal", personal)
	assert.True(t, installed)

	winner, installed := p.addWorker("personal", &threadSafeClient{role: roleWorker})
	assert.False(t, installed)
	assert.Same(t, personal, winner)
}
