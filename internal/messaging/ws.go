package messaging

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/sudo-init-do/freehub/internal/logger"
	"github.com/sudo-init-do/freehub/internal/marketplace"
)

const (
	EventMessageNew    = "message_new"
	EventStatusChanged = "status_changed"
	EventPresenceJoin  = "presence_join"
	EventPresenceLeave = "presence_leave"

	writeWait  = 10 * time.Second
	sendBuffer = 64
)

// Event is the JSON frame pushed to thread subscribers.
type Event struct {
	Type string      `json:"type"`
	Data interface{} `json:"data"`
}

// subscriber owns one connection. Only its writer goroutine touches conn
// for writes; everyone else goes through send.
type subscriber struct {
	conn   *websocket.Conn
	send   chan []byte
	closed sync.Once
}

func (s *subscriber) close() {
	s.closed.Do(func() { close(s.send) })
}

// Hub fans events out to the websocket subscribers of each service request.
type Hub struct {
	mu       sync.Mutex
	rooms    map[string]map[*subscriber]struct{}
	upgrader websocket.Upgrader
	log      *logger.Logger
}

var _ marketplace.Notifier = (*Hub)(nil)

func NewHub(log *logger.Logger) *Hub {
	return &Hub{
		rooms: make(map[string]map[*subscriber]struct{}),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     func(r *http.Request) bool { return true },
		},
		log: log.With("component", "messaging.hub"),
	}
}

// Broadcast queues evt for every subscriber of the thread and never waits
// on the network. A subscriber whose queue is full is dropped.
func (h *Hub) Broadcast(serviceID string, evt Event) {
	payload, err := json.Marshal(evt)
	if err != nil {
		h.log.Error("encoding event", "type", evt.Type, "error", err)
		return
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	for sub := range h.rooms[serviceID] {
		select {
		case sub.send <- payload:
		default:
			h.log.Warn("dropping slow subscriber", "service_id", serviceID)
			h.removeLocked(serviceID, sub)
			sub.close()
		}
	}
}

// Notify pushes lifecycle changes into the thread.
func (h *Hub) Notify(_ context.Context, n marketplace.Notification) error {
	h.Broadcast(n.ServiceID, Event{Type: EventStatusChanged, Data: n})
	return nil
}

// Subscribers returns the number of live connections on a thread.
func (h *Hub) Subscribers(serviceID string) int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.rooms[serviceID])
}

// Serve upgrades the request and blocks until the client goes away. The
// protocol is server push; anything the client sends is discarded.
func (h *Hub) Serve(w http.ResponseWriter, r *http.Request, serviceID, userID string) error {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		return err
	}

	sub := &subscriber{conn: conn, send: make(chan []byte, sendBuffer)}
	h.register(serviceID, sub)
	go h.writeLoop(serviceID, sub)
	h.Broadcast(serviceID, Event{Type: EventPresenceJoin, Data: map[string]string{"user_id": userID}})

	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			break
		}
	}

	h.mu.Lock()
	h.removeLocked(serviceID, sub)
	h.mu.Unlock()
	sub.close()
	h.Broadcast(serviceID, Event{Type: EventPresenceLeave, Data: map[string]string{"user_id": userID}})
	return nil
}

// writeLoop drains the subscriber's queue until it is closed or a write
// fails. Closing the connection also ends the read loop in Serve.
func (h *Hub) writeLoop(serviceID string, sub *subscriber) {
	defer sub.conn.Close()
	for payload := range sub.send {
		_ = sub.conn.SetWriteDeadline(time.Now().Add(writeWait))
		if err := sub.conn.WriteMessage(websocket.TextMessage, payload); err != nil {
			h.log.Debug("write failed", "service_id", serviceID, "error", err)
			return
		}
	}
	_ = sub.conn.SetWriteDeadline(time.Now().Add(writeWait))
	_ = sub.conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
}

func (h *Hub) register(serviceID string, sub *subscriber) {
	h.mu.Lock()
	defer h.mu.Unlock()
	room, ok := h.rooms[serviceID]
	if !ok {
		room = make(map[*subscriber]struct{})
		h.rooms[serviceID] = room
	}
	room[sub] = struct{}{}
}

func (h *Hub) removeLocked(serviceID string, sub *subscriber) {
	room := h.rooms[serviceID]
	delete(room, sub)
	if len(room) == 0 {
		delete(h.rooms, serviceID)
	}
}
