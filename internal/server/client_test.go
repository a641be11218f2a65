package server

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/npezzotti/nodechat/internal/database"
	"github.com/npezzotti/nodechat/internal/stats"
	"github.com/npezzotti/nodechat/internal/testutil"
	"github.com/npezzotti/nodechat/internal/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func Test_queueMessage(t *testing.T) {
	t.Run("successful queue", func(t *testing.T) {
		c := &Client{
			send: make(chan *ServerMessage, 1),
			log:  testutil.TestLogger(t),
		}

		res := c.queueMessage(&ServerMessage{})
		assert.True(t, res, "expected queueMessage to return true when channel is not full")
		assert.NotNil(t, nextMessage(t, c))
	})
	t.Run("channel full", func(t *testing.T) {
		c := &Client{
			send: make(chan *ServerMessage, 1),
			log:  testutil.TestLogger(t),
		}

		c.send <- &ServerMessage{}
		res := c.queueMessage(&ServerMessage{})
		assert.False(t, res, "expected queueMessage to return false when channel is full")
	})
}

func Test_stopClient(t *testing.T) {
	c := &Client{
		stop: make(chan struct{}),
	}

	c.stopClient()
	c.stopClient()

	select {
	case <-c.stop:
	default:
		t.Error("expected stop channel to be closed")
	}
}

func TestSessionStateString(t *testing.T) {
	assert.Equal(t, "UNAUTHENTICATED", stateUnauthenticated.String())
	assert.Equal(t, "IDENTIFIED", stateIdentified.String())
	assert.Equal(t, "IN_ROOM", stateInRoom.String())
}

func setup(t *testing.T, c *Client, token, nickname string) Session {
	t.Helper()
	c.handle(&ClientMessage{Event: EventUserSetup, Data: map[string]any{"localToken": token, "nickname": nickname}})
	msg := nextMessage(t, c)
	require.Equal(t, EventSessionEstablished, msg.Event)
	return msg.Data.(Session)
}

func join(t *testing.T, c *Client, userId, from, to string) []types.Message {
	t.Helper()
	c.handle(&ClientMessage{Event: EventJoinRoom, Data: map[string]any{
		"userId":          userId,
		"fromRoomKey":     from,
		"toRoomKey":       to,
		"durationSeconds": 30,
	}})
	msg := nextMessage(t, c)
	require.Equal(t, EventHistory, msg.Event)
	return msg.Data.([]types.Message)
}

func TestHandleUserSetup(t *testing.T) {
	store := database.NewMemStore()
	cs := newTestChatServer(t, store, newLenientStats(), Options{})
	c := newTestClient(t, cs)

	s1 := setup(t, c, "tok-1", "alice")
	assert.Equal(t, "alice", s1.Nickname)
	assert.Equal(t, "tok-1", s1.LocalToken)
	assert.Equal(t, stateIdentified, c.state)

	s2 := setup(t, newTestClient(t, cs), "tok-1", "alice")
	assert.Equal(t, s1.UserId, s2.UserId, "expected same identity for same token")
	assert.Equal(t, 1, store.UserCount())

	fresh := setup(t, newTestClient(t, cs), "", "")
	assert.NotEmpty(t, fresh.LocalToken, "expected a token to be issued")
	assert.NotEmpty(t, fresh.Nickname, "expected a generated nickname")
}

func TestHandleJoinRoom(t *testing.T) {
	t.Run("requires session", func(t *testing.T) {
		store := database.NewMemStore()
		cs := newTestChatServer(t, store, newLenientStats(), Options{})
		c := newTestClient(t, cs)

		c.handle(&ClientMessage{Event: EventJoinRoom, Data: map[string]any{"userId": uuid.NewString(), "toRoomKey": "den"}})
		assertNoMessage(t, c)
		assert.Equal(t, 0, store.RoomCount())
		assert.Empty(t, store.Transitions())
	})

	t.Run("rejects foreign user id", func(t *testing.T) {
		store := database.NewMemStore()
		cs := newTestChatServer(t, store, newLenientStats(), Options{})
		c := newTestClient(t, cs)
		setup(t, c, "tok", "alice")

		c.handle(&ClientMessage{Event: EventJoinRoom, Data: map[string]any{"userId": uuid.NewString(), "toRoomKey": "den"}})
		assertNoMessage(t, c)
		assert.Equal(t, stateIdentified, c.state)
		assert.Empty(t, store.Transitions())
	})

	t.Run("records chain and switches groups", func(t *testing.T) {
		store := database.NewMemStore()
		cs := newTestChatServer(t, store, newLenientStats(), Options{})
		c := newTestClient(t, cs)
		s := setup(t, c, "tok", "alice")

		history := join(t, c, s.UserId, "", "A")
		assert.Empty(t, history)
		assert.Equal(t, stateInRoom, c.state)
		assert.Equal(t, []*Client{c}, cs.groups.clients("A"))

		join(t, c, s.UserId, "A", "B")
		join(t, c, s.UserId, "B", "C")

		assert.Len(t, store.Transitions(), 3)
		assert.Empty(t, cs.groups.clients("A"))
		assert.Empty(t, cs.groups.clients("B"))
		assert.Equal(t, []*Client{c}, cs.groups.clients("C"))
		assert.Equal(t, 1, cs.groups.count())
	})

	t.Run("store failure leaves membership unchanged", func(t *testing.T) {
		store := &database.MockStore{}
		defer store.AssertExpectations(t)
		user := database.User{Id: uuid.New(), LocalToken: "tok", Nickname: "alice"}
		store.On("UpsertUser", mock.Anything, mock.Anything).Return(user, nil)
		store.On("UpsertRoom", mock.Anything, mock.Anything).Return(database.Room{}, errors.New("db down"))

		cs := newTestChatServer(t, store, newLenientStats(), Options{})
		c := newTestClient(t, cs)
		setup(t, c, "tok", "alice")

		c.handle(&ClientMessage{Event: EventJoinRoom, Data: map[string]any{"userId": user.Id.String(), "toRoomKey": "den"}})
		assertNoMessage(t, c)
		assert.Equal(t, stateIdentified, c.state)
		assert.Equal(t, 0, cs.groups.count())
	})
}

func TestHandleSendMessage(t *testing.T) {
	t.Run("broadcast reaches the whole group only", func(t *testing.T) {
		store := database.NewMemStore()
		cs := newTestChatServer(t, store, newLenientStats(), Options{})

		alice, bob, carol := newTestClient(t, cs), newTestClient(t, cs), newTestClient(t, cs)
		sa := setup(t, alice, "a", "alice")
		sb := setup(t, bob, "b", "bob")
		sc := setup(t, carol, "c", "carol")
		join(t, alice, sa.UserId, "", "lobby")
		join(t, bob, sb.UserId, "", "lobby")
		join(t, carol, sc.UserId, "", "den")

		alice.handle(&ClientMessage{Event: EventSendMessage, Data: map[string]any{"userId": sa.UserId, "roomKey": "lobby", "text": "hello"}})

		for _, c := range []*Client{alice, bob} {
			msg := nextMessage(t, c)
			require.Equal(t, EventReceiveMessage, msg.Event)
			got := msg.Data.(types.Message)
			assert.Equal(t, "hello", got.Text)
			assert.Equal(t, "alice", got.SenderNickname)
			assert.Equal(t, sa.UserId, got.SenderId.String())
		}
		assertNoMessage(t, carol)

		history := join(t, carol, sc.UserId, "den", "lobby")
		require.Len(t, history, 1)
		assert.Equal(t, "hello", history[0].Text)
		assert.Equal(t, "alice", history[0].SenderNickname)
	})

	t.Run("requires being in the room", func(t *testing.T) {
		store := database.NewMemStore()
		cs := newTestChatServer(t, store, newLenientStats(), Options{})
		c := newTestClient(t, cs)
		s := setup(t, c, "tok", "alice")

		c.handle(&ClientMessage{Event: EventSendMessage, Data: map[string]any{"userId": s.UserId, "roomKey": "lobby", "text": "early"}})
		assertNoMessage(t, c)

		join(t, c, s.UserId, "", "lobby")
		_, err := store.UpsertRoom(context.Background(), database.UpsertRoomParams{Key: "elsewhere", At: baseTime})
		require.NoError(t, err)

		c.handle(&ClientMessage{Event: EventSendMessage, Data: map[string]any{"userId": s.UserId, "roomKey": "elsewhere", "text": "wrong room"}})
		assertNoMessage(t, c)

		room, err := store.GetRoomByKey(context.Background(), "elsewhere")
		require.NoError(t, err)
		assert.Equal(t, 0, room.MessageCount)
	})

	t.Run("reports errors when enabled", func(t *testing.T) {
		cs := newTestChatServer(t, database.NewMemStore(), newLenientStats(), Options{ReportErrors: true})
		c := newTestClient(t, cs)
		s := setup(t, c, "tok", "alice")
		join(t, c, s.UserId, "", "lobby")

		c.handle(&ClientMessage{Event: EventSendMessage, Data: map[string]any{"userId": s.UserId, "roomKey": "lobby", "text": "  "}})
		msg := nextMessage(t, c)
		require.Equal(t, EventError, msg.Event)
		reply := msg.Data.(ErrorReply)
		assert.Equal(t, EventSendMessage, reply.Event)
		assert.Contains(t, reply.Reason, "empty message")
	})
}

func TestHandleDisconnect(t *testing.T) {
	store := database.NewMemStore()
	cs := newTestChatServer(t, store, newLenientStats(), Options{})
	go cs.Run()
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), time.Second)
		defer cancel()
		cs.Shutdown(ctx)
	})

	alice, bob := newTestClient(t, cs), newTestClient(t, cs)
	require.True(t, cs.Register(alice))
	require.True(t, cs.Register(bob))

	sa := setup(t, alice, "a", "alice")
	sb := setup(t, bob, "b", "bob")
	join(t, alice, sa.UserId, "", "lobby")
	join(t, bob, sb.UserId, "", "lobby")

	lobby, err := store.GetRoomByKey(context.Background(), "lobby")
	require.NoError(t, err)
	transitions := len(store.Transitions())

	alice.cleanup()

	assert.Equal(t, []*Client{bob}, cs.groups.clients("lobby"))
	assert.Empty(t, alice.roomKey)
	assert.Eventually(t, func() bool {
		cs.clientsLock.Lock()
		defer cs.clientsLock.Unlock()
		_, ok := cs.clients[alice]
		return !ok && len(cs.clients) == 1
	}, time.Second, 10*time.Millisecond, "expected alice to be deregistered")

	assert.Len(t, store.Transitions(), transitions, "expected no transition on disconnect")
	assert.Equal(t, 2, store.UserCount())
	assert.Equal(t, 1, store.RoomCount())
	after, err := store.GetRoomByKey(context.Background(), "lobby")
	require.NoError(t, err)
	assert.Equal(t, lobby, after, "expected room counters untouched by disconnect")

	bob.handle(&ClientMessage{Event: EventSendMessage, Data: map[string]any{"userId": sb.UserId, "roomKey": "lobby", "text": "anyone?"}})
	msg := nextMessage(t, bob)
	require.Equal(t, EventReceiveMessage, msg.Event)
	assert.Equal(t, "anyone?", msg.Data.(types.Message).Text)
	assertNoMessage(t, alice)
}

func TestHandleRequestRecommendation(t *testing.T) {
	store := database.NewMemStore()
	cs := newTestChatServer(t, store, newLenientStats(), Options{})
	c := newTestClient(t, cs)

	c.handle(&ClientMessage{Event: EventRequestRecommendation, Data: map[string]any{"roomKey": "lobby"}})
	msg := nextMessage(t, c)
	require.Equal(t, EventRecommendationResult, msg.Event)
	assert.Nil(t, msg.Data.(Recommendation).RecommendedKey, "expected null key with no rooms")

	for _, k := range []string{"lobby", "den"} {
		_, err := store.UpsertRoom(context.Background(), database.UpsertRoomParams{Key: k, At: baseTime})
		require.NoError(t, err)
	}

	c.handle(&ClientMessage{Event: EventRequestRecommendation, Data: map[string]any{"roomKey": "lobby"}})
	msg = nextMessage(t, c)
	key := msg.Data.(Recommendation).RecommendedKey
	require.NotNil(t, key)
	assert.Equal(t, "den", *key)
}

func TestHandleUnknownEvent(t *testing.T) {
	su := &stats.MockStatsUpdater{}
	su.On("RegisterMetric", mock.Anything).Return()
	su.On("Incr", stats.EventsDropped).Return().Once()
	defer su.AssertExpectations(t)

	cs := newTestChatServer(t, database.NewMemStore(), su, Options{ReportErrors: true})
	c := newTestClient(t, cs)

	c.handle(&ClientMessage{Event: "teleport"})
	msg := nextMessage(t, c)
	assert.Equal(t, EventError, msg.Event)
	assert.Equal(t, "teleport", msg.Data.(ErrorReply).Event)
}

func TestStoreFailureReasonIsGeneric(t *testing.T) {
	store := &database.MockStore{}
	store.On("RandomRoomKey", mock.Anything, "lobby").Return("", errors.New("pq: password authentication failed"))

	cs := newTestChatServer(t, store, newLenientStats(), Options{ReportErrors: true})
	c := newTestClient(t, cs)

	c.handle(&ClientMessage{Event: EventRequestRecommendation, Data: map[string]any{"roomKey": "lobby"}})
	msg := nextMessage(t, c)
	require.Equal(t, EventError, msg.Event)
	assert.Equal(t, "internal error", msg.Data.(ErrorReply).Reason)
}

func TestClientWebsocket(t *testing.T) {
	cs := newTestChatServer(t, database.NewMemStore(), newLenientStats(), Options{})
	go cs.Run()

	upgrader := websocket.Upgrader{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		// connection goroutines may outlive the test
		c := NewClient(conn, cs, zap.NewNop())
		cs.Register(c)
		go c.Write()
		go c.Read()
	}))
	defer srv.Close()

	conn, _, err := websocket.DefaultDialer.Dial("ws"+strings.TrimPrefix(srv.URL, "http"), nil)
	require.NoError(t, err)
	defer conn.Close()
	conn.SetReadDeadline(time.Now().Add(5 * time.Second))

	require.NoError(t, conn.WriteJSON(map[string]any{"event": EventUserSetup, "data": map[string]any{"localToken": "ws-tok", "nickname": "wendy"}}))

	var session struct {
		Event string  `json:"event"`
		Data  Session `json:"data"`
	}
	require.NoError(t, conn.ReadJSON(&session))
	assert.Equal(t, EventSessionEstablished, session.Event)
	assert.Equal(t, "wendy", session.Data.Nickname)

	require.NoError(t, conn.WriteMessage(websocket.TextMessage, []byte("not json")))

	require.NoError(t, conn.WriteJSON(map[string]any{"event": EventJoinRoom, "data": map[string]any{
		"userId":          session.Data.UserId,
		"toRoomKey":       "hall",
		"durationSeconds": "0",
	}}))
	var history struct {
		Event string          `json:"event"`
		Data  []types.Message `json:"data"`
	}
	require.NoError(t, conn.ReadJSON(&history))
	assert.Equal(t, EventHistory, history.Event)
	assert.Empty(t, history.Data)

	require.NoError(t, conn.WriteJSON(map[string]any{"event": EventSendMessage, "data": map[string]any{
		"userId":  session.Data.UserId,
		"roomKey": "hall",
		"text":    "echo",
	}}))
	var received struct {
		Event string        `json:"event"`
		Data  types.Message `json:"data"`
	}
	require.NoError(t, conn.ReadJSON(&received))
	assert.Equal(t, EventReceiveMessage, received.Event)
	assert.Equal(t, "echo", received.Data.Text)

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	assert.NoError(t, cs.Shutdown(ctx))
}
