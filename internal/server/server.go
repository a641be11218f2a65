package server

import (
	"context"
	"sync"

	"github.com/npezzotti/nodechat/internal/chat"
	"github.com/npezzotti/nodechat/internal/stats"
	"go.uber.org/zap"
)

type Options struct {
	// ReportErrors replies with an error event when a client event is
	// rejected instead of dropping it silently.
	ReportErrors bool
}

// ChatServer tracks live connections and the room groups used for fan-out.
// Each connection's events are handled on that connection's read goroutine.
type ChatServer struct {
	log            *zap.Logger
	chat           *chat.Service
	stats          stats.StatsProvider
	reportErrors   bool
	clients        map[*Client]struct{}
	clientsLock    sync.Mutex
	groups         *roomGroups
	registerChan   chan *Client
	deRegisterChan chan *Client
	stop           chan stopReq
	done           chan struct{}
}

type stopReq struct {
	done chan struct{}
}

func NewChatServer(logger *zap.Logger, svc *chat.Service, sp stats.StatsProvider, opts Options) (*ChatServer, error) {
	cs := &ChatServer{
		log:            logger,
		chat:           svc,
		stats:          sp,
		reportErrors:   opts.ReportErrors,
		clients:        make(map[*Client]struct{}),
		groups:         newRoomGroups(),
		registerChan:   make(chan *Client),
		deRegisterChan: make(chan *Client),
		stop:           make(chan stopReq),
		done:           make(chan struct{}),
	}

	cs.stats.RegisterMetric(stats.NumActiveClients)
	cs.stats.RegisterMetric(stats.NumActiveRooms)
	cs.stats.RegisterMetric(stats.MessagesSent)
	cs.stats.RegisterMetric(stats.TransitionsRecorded)
	cs.stats.RegisterMetric(stats.EventsDropped)

	return cs, nil
}

func (cs *ChatServer) Run() {
	defer close(cs.done)

	for {
		select {
		case client := <-cs.registerChan:
			cs.log.Debug("adding connection", zap.String("conn_id", client.id))
			cs.addClient(client)
		case client := <-cs.deRegisterChan:
			cs.log.Debug("removing connection", zap.String("conn_id", client.id))
			cs.removeClient(client)
		case req := <-cs.stop:
			cs.log.Info("stopping clients")
			cs.clientsLock.Lock()
			for c := range cs.clients {
				c.stopClient()
			}
			cs.clientsLock.Unlock()

			close(req.done)
			return
		}
	}
}

// Register hands a new connection to the server. It returns false once the
// server has stopped.
func (cs *ChatServer) Register(c *Client) bool {
	select {
	case cs.registerChan <- c:
		return true
	case <-cs.done:
		return false
	}
}

func (cs *ChatServer) deRegister(c *Client) {
	select {
	case cs.deRegisterChan <- c:
	case <-cs.done:
	}
}

func (cs *ChatServer) addClient(c *Client) {
	cs.clientsLock.Lock()
	defer cs.clientsLock.Unlock()

	if _, ok := cs.clients[c]; ok {
		return
	}
	cs.clients[c] = struct{}{}
	cs.stats.Incr(stats.NumActiveClients)
}

func (cs *ChatServer) removeClient(c *Client) {
	cs.clientsLock.Lock()
	defer cs.clientsLock.Unlock()

	if _, ok := cs.clients[c]; !ok {
		return
	}
	delete(cs.clients, c)
	cs.stats.Decr(stats.NumActiveClients)
}

// moveClient switches c's group membership. It runs on c's read goroutine
// while handling joinRoom, so the next event from c already sees the new
// group.
func (cs *ChatServer) moveClient(c *Client, from, to string) {
	created, emptied := cs.groups.move(c, from, to)
	if emptied {
		cs.stats.Decr(stats.NumActiveRooms)
	}
	if created {
		cs.stats.Incr(stats.NumActiveRooms)
	}
}

func (cs *ChatServer) leaveGroup(c *Client, key string) {
	if key == "" {
		return
	}
	if cs.groups.remove(c, key) {
		cs.stats.Decr(stats.NumActiveRooms)
	}
}

// broadcast queues msg for every client in the group, sender included.
func (cs *ChatServer) broadcast(key string, msg *ServerMessage) {
	for _, c := range cs.groups.clients(key) {
		c.queueMessage(msg)
	}
}

// Shutdown stops every client and the run loop, or gives up when ctx ends.
func (cs *ChatServer) Shutdown(ctx context.Context) error {
	cs.log.Info("received shutdown signal")

	req := stopReq{done: make(chan struct{})}
	select {
	case cs.stop <- req:
	case <-ctx.Done():
		return ctx.Err()
	}

	select {
	case <-req.done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
