package server

import (
	"testing"
	"time"

	"github.com/npezzotti/nodechat/internal/chat"
	"github.com/npezzotti/nodechat/internal/database"
	"github.com/npezzotti/nodechat/internal/stats"
	"github.com/npezzotti/nodechat/internal/testutil"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

var baseTime = time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)

// newLenientStats accepts any counter update.
func newLenientStats() *stats.MockStatsUpdater {
	su := &stats.MockStatsUpdater{}
	su.On("RegisterMetric", mock.Anything).Return()
	su.On("Incr", mock.Anything).Return().Maybe()
	su.On("Decr", mock.Anything).Return().Maybe()
	return su
}

// newTestChatServer creates a ChatServer backed by store for testing purposes
func newTestChatServer(t *testing.T, store database.Store, su stats.StatsProvider, opts Options) *ChatServer {
	clock := testutil.NewClock(baseTime)
	svc, err := chat.NewService(store, testutil.TestLogger(t), chat.Options{Now: clock.Now})
	require.NoError(t, err, "failed to create chat service")

	cs, err := NewChatServer(testutil.TestLogger(t), svc, su, opts)
	require.NoError(t, err, "failed to create test ChatServer")
	return cs
}

func newTestClient(t *testing.T, cs *ChatServer) *Client {
	return &Client{
		id:         "test",
		chatServer: cs,
		log:        testutil.TestLogger(t),
		send:       make(chan *ServerMessage, sendBufferSize),
		stop:       make(chan struct{}),
	}
}

// nextMessage pops the next queued message or fails.
func nextMessage(t *testing.T, c *Client) *ServerMessage {
	t.Helper()
	select {
	case msg := <-c.send:
		return msg
	default:
		t.Fatal("expected a queued message, but none was sent")
		return nil
	}
}

func assertNoMessage(t *testing.T, c *Client) {
	t.Helper()
	select {
	case msg := <-c.send:
		t.Fatalf("expected no queued message, got %q", msg.Event)
	default:
	}
}
