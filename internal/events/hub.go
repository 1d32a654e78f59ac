// Package events pushes change notifications from the contact directory and
// the current call to connected UI clients over websocket.
package events

import (
	"context"
	"encoding/json"
	"time"

	"github.com/gofiber/websocket/v2"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"favoro/internal/call"
	"favoro/internal/contact"
	"favoro/pkg/logger"
)

const (
	TypeContactsChanged = "contacts_changed"
	TypeCallChanged     = "call_changed"
	TypeCallEnded       = "call_ended"
)

const (
	backlogKey  = "favoro:events:backlog"
	backlogSize = 50
	backlogTTL  = 10 * time.Minute
)

// Event carries no state of its own; clients refetch the snapshot they need.
type Event struct {
	Type   string     `json:"type"`
	CallID string     `json:"call_id,omitempty"`
	State  call.State `json:"state,omitempty"`
	At     time.Time  `json:"at"`
}

// Conn is the part of a websocket connection the hub writes to.
type Conn interface {
	WriteJSON(v interface{}) error
	Close() error
}

type Client struct {
	ID   uuid.UUID
	Conn Conn
}

type Hub struct {
	clients    map[uuid.UUID]Conn
	register   chan *Client
	unregister chan *Client
	broadcast  chan *Event
	done       chan struct{}
	redis      *redis.Client
	log        *logger.Logger
}

// NewHub builds a hub. rdb may be nil, in which case no backlog is kept for
// clients that connect later.
func NewHub(rdb *redis.Client, log *logger.Logger) *Hub {
	if log == nil {
		log = logger.Nop()
	}
	return &Hub{
		clients:    make(map[uuid.UUID]Conn),
		register:   make(chan *Client),
		unregister: make(chan *Client),
		broadcast:  make(chan *Event, 256),
		done:       make(chan struct{}),
		redis:      rdb,
		log:        log.With(zap.String("module", "events")),
	}
}

// Publish queues e without blocking the notifying goroutine. Events are
// dropped when the queue is full.
func (h *Hub) Publish(e *Event) {
	if e.At.IsZero() {
		e.At = time.Now()
	}
	select {
	case h.broadcast <- e:
	default:
		h.log.Warn("event queue full, dropping event", zap.String("type", e.Type))
	}
}

// Run owns the client set until ctx is cancelled. Once it returns, Serve
// stops accepting clients and pending disconnects no longer block.
func (h *Hub) Run(ctx context.Context) {
	defer close(h.done)
	for {
		select {
		case <-ctx.Done():
			for id, conn := range h.clients {
				conn.Close()
				delete(h.clients, id)
			}
			return

		case client := <-h.register:
			h.clients[client.ID] = client.Conn
			h.log.Info("client connected", zap.Stringer("client", client.ID))
			h.replayBacklog(ctx, client)

		case client := <-h.unregister:
			if _, ok := h.clients[client.ID]; ok {
				delete(h.clients, client.ID)
				h.log.Info("client disconnected", zap.Stringer("client", client.ID))
			}

		case event := <-h.broadcast:
			h.storeBacklog(ctx, event)
			for id, conn := range h.clients {
				if err := conn.WriteJSON(event); err != nil {
					h.log.Error("error sending event", zap.Stringer("client", id), zap.Error(err))
					conn.Close()
					delete(h.clients, id)
				}
			}
		}
	}
}

// WatchDirectory publishes an event after every directory mutation.
func (h *Hub) WatchDirectory(d *contact.Directory) func() {
	return d.Subscribe(func() {
		h.Publish(&Event{Type: TypeContactsChanged})
	})
}

// WatchSession announces s and publishes its changes until it ends.
func (h *Hub) WatchSession(s *call.Session) {
	h.Publish(&Event{Type: TypeCallChanged, CallID: s.ID().String(), State: s.State()})

	var unsubscribe func()
	unsubscribe = s.Subscribe(func() {
		state := s.State()
		if state == call.StateEnded {
			h.Publish(&Event{Type: TypeCallEnded, CallID: s.ID().String(), State: state})
			unsubscribe()
			return
		}
		h.Publish(&Event{Type: TypeCallChanged, CallID: s.ID().String(), State: state})
	})
}

// Serve registers conn and blocks until the client goes away.
func (h *Hub) Serve(conn *websocket.Conn) {
	client := &Client{ID: uuid.New(), Conn: conn}
	if !h.join(client) {
		conn.Close()
		return
	}
	defer h.leave(client)

	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				h.log.Warn("websocket error", zap.Error(err))
			}
			return
		}
	}
}

// join hands client to Run. It reports false once the hub has stopped.
func (h *Hub) join(client *Client) bool {
	select {
	case h.register <- client:
		return true
	case <-h.done:
		return false
	}
}

func (h *Hub) leave(client *Client) {
	select {
	case h.unregister <- client:
	case <-h.done:
	}
}

func (h *Hub) storeBacklog(ctx context.Context, event *Event) {
	if h.redis == nil {
		return
	}
	data, _ := json.Marshal(event)

	pipe := h.redis.TxPipeline()
	pipe.LPush(ctx, backlogKey, data)
	pipe.LTrim(ctx, backlogKey, 0, backlogSize-1)
	pipe.Expire(ctx, backlogKey, backlogTTL)
	if _, err := pipe.Exec(ctx); err != nil {
		h.log.Warn("failed to store event backlog", zap.Error(err))
	}
}

func (h *Hub) replayBacklog(ctx context.Context, client *Client) {
	if h.redis == nil {
		return
	}
	data, err := h.redis.LRange(ctx, backlogKey, 0, -1).Result()
	if err != nil {
		h.log.Warn("failed to read event backlog", zap.Error(err))
		return
	}

	// newest first in redis; replay oldest first
	for i := len(data) - 1; i >= 0; i-- {
		var event Event
		if err := json.Unmarshal([]byte(data[i]), &event); err != nil {
			continue
		}
		if err := client.Conn.WriteJSON(&event); err != nil {
			return
		}
	}
}
