package websocket

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/mailmirror/mailmirror/internal/store"
)

// dialPair spins up a server that registers every incoming connection with
// the hub and returns the client side of one connection.
func dialPair(t *testing.T, hub *Hub, userID string) *websocket.Conn {
	t.Helper()

	upgrader := websocket.Upgrader{CheckOrigin: func(*http.Request) bool { return true }}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		hub.Register(userID, conn)
	}))
	t.Cleanup(srv.Close)

	url := "ws" + strings.TrimPrefix(srv.URL, "http")
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = conn.Close() })
	return conn
}

func waitForConnections(t *testing.T, hub *Hub, userID string, n int) {
	t.Helper()
	require.Eventually(t, func() bool {
		return hub.ActiveConnections(userID) == n
	}, time.Second, 10*time.Millisecond)
}

func TestHubSendReachesUserClients(t *testing.T) {
	hub := NewHub(10, zaptest.NewLogger(t))
	conn := dialPair(t, hub, "alice")
	waitForConnections(t, hub, "alice", 1)

	hub.Send("alice", []byte(`{"level":"threads"}`))

	require.NoError(t, conn.SetReadDeadline(time.Now().Add(time.Second)))
	_, msg, err := conn.ReadMessage()
	require.NoError(t, err)
	assert.JSONEq(t, `{"level":"threads"}`, string(msg))
}

func TestHubSendIgnoresOtherUsers(t *testing.T) {
	hub := NewHub(10, zaptest.NewLogger(t))
	conn := dialPair(t, hub, "alice")
	waitForConnections(t, hub, "alice", 1)

	hub.Send("bob", []byte(`{"level":"threads"}`))

	require.NoError(t, conn.SetReadDeadline(time.Now().Add(200 * time.Millisecond)))
	_, _, err := conn.ReadMessage()
	assert.Error(t, err)
}

func TestHubRunForwardsChanges(t *testing.T) {
	hub := NewHub(10, zaptest.NewLogger(t))
	notifier := store.NewNotifier()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go hub.Run(ctx, notifier)

	conn := dialPair(t, hub, "alice")
	waitForConnections(t, hub, "alice", 1)

	notifier.Publish(store.Change{Level: store.LevelThreads, UserID: "alice", FolderID: "INBOX"})

	require.NoError(t, conn.SetReadDeadline(time.Now().Add(time.Second)))
	_, msg, err := conn.ReadMessage()
	require.NoError(t, err)

	var change store.Change
	require.NoError(t, json.Unmarshal(msg, &change))
	assert.Equal(t, store.LevelThreads, change.Level)
	assert.Equal(t, "INBOX", change.FolderID)
	assert.Equal(t, uint64(1), change.Seq)
}

// Clients keep connecting while broadcasts are in flight. Send must iterate
// a snapshot of the client set, never the live map Register is mutating.
func TestHubSendDuringRegisterChurn(t *testing.T) {
	hub := NewHub(100, zaptest.NewLogger(t))

	upgrader := websocket.Upgrader{CheckOrigin: func(*http.Request) bool { return true }}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		hub.Register("alice", conn)
	}))
	defer srv.Close()
	url := "ws" + strings.TrimPrefix(srv.URL, "http")

	var (
		mu    sync.Mutex
		conns []*websocket.Conn
	)
	defer func() {
		mu.Lock()
		defer mu.Unlock()
		for _, c := range conns {
			_ = c.Close()
		}
	}()

	done := make(chan struct{})
	go func() {
		defer close(done)
		for i := 0; i < 20; i++ {
			conn, _, err := websocket.DefaultDialer.Dial(url, nil)
			if err != nil {
				return
			}
			mu.Lock()
			conns = append(conns, conn)
			mu.Unlock()
			go func(c *websocket.Conn) {
				for {
					if _, _, err := c.ReadMessage(); err != nil {
						return
					}
				}
			}(conn)
		}
	}()

	for i := 0; i < 200; i++ {
		hub.Send("alice", []byte(`{"level":"threads"}`))
	}

	<-done
	waitForConnections(t, hub, "alice", 20)
}

func TestHubUnregisterRemovesClient(t *testing.T) {
	hub := NewHub(10, zaptest.NewLogger(t))

	registered := make(chan *Client, 1)
	upgrader := websocket.Upgrader{CheckOrigin: func(*http.Request) bool { return true }}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		registered <- hub.Register("alice", conn)
	}))
	defer srv.Close()

	url := "ws" + strings.TrimPrefix(srv.URL, "http")
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	defer conn.Close()

	hub.Unregister("alice", <-registered)
	assert.Equal(t, 0, hub.ActiveConnections("alice"))
}
