package imap

import (
	"fmt"
	"net"
	"sync"
	"time"

	"github.com/emersion/go-imap/client"
)

// clientRole indicates the purpose of a client.
type clientRole int

const (
	// roleWorker indicates a worker client. There can be multiple worker
	// clients per mailbox.
	roleWorker clientRole = iota
	// roleListener indicates a listener client. There can be only one
	// listener client per mailbox; it is reserved for IDLE.
	roleListener
)

// threadSafeClient wraps an IMAP client with a mutex for thread-safe access.
// Each client has its own mutex to allow concurrent access to different
// clients while serializing access to the same client.
type threadSafeClient struct {
	client   *client.Client
	mu       sync.Mutex
	lastUsed time.Time
	role     clientRole
}

// Lock acquires the mutex for thread-safe access to the underlying client.
func (c *threadSafeClient) Lock() {
	c.mu.Lock()
}

// Unlock releases the mutex.
func (c *threadSafeClient) Unlock() {
	c.mu.Unlock()
}

// Client returns the underlying IMAP client. Caller must hold the lock.
func (c *threadSafeClient) Client() *client.Client {
	return c.client
}

// UpdateLastUsed updates the lastUsed timestamp to now.
func (c *threadSafeClient) UpdateLastUsed() {
	c.lastUsed = time.Now()
}

// LastUsed returns the lastUsed timestamp.
func (c *threadSafeClient) LastUsed() time.Time {
	return c.lastUsed
}

// Connect connects to the IMAP server with a 5-second timeout.
// useTLS: true for production (TLS), false for tests (non-TLS).
func Connect(server string, useTLS bool) (*client.Client, error) {
	dialer := &net.Dialer{
		Timeout: 5 * time.Second,
	}

	if useTLS {
		c, err := client.DialWithDialerTLS(dialer, server, nil)
		if err != nil {
			return nil, fmt.Errorf("failed to dial with TLS: %w", err)
		}
		return c, nil
	}

	// Non-TLS connection for testing
	c, err := client.DialWithDialer(dialer, server)
	if err != nil {
		return nil, fmt.Errorf("failed to dial: %w", err)
	}

	return c, nil
}

// Login authenticates with the IMAP server.
func Login(c *client.Client, username, password string) error {
	if err := c.Login(username, password); err != nil {
		return fmt.Errorf("failed to authenticate: %w", err)
	}

	return nil
}
