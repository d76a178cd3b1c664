package hub

import (
	"sync"

	"go.uber.org/zap"

	"github.com/fathima-sithara/realtime-service/internal/metrics"
)

// Client is one live authenticated connection subscribed to its user's
// channel. Outbound payloads go through a buffered channel drained by the
// transport's write pump.
type Client struct {
	UserID string

	send   chan []byte
	closed bool
	mu     sync.Mutex
}

func NewClient(userID string) *Client {
	return &Client{
		UserID: userID,
		send:   make(chan []byte, 256),
	}
}

// Outbox exposes the payload stream for the write pump.
func (c *Client) Outbox() <-chan []byte { return c.send }

// Deliver hands a payload to the client without blocking; a slow consumer
// just misses the event.
func (c *Client) Deliver(payload []byte) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return false
	}
	select {
	case c.send <- payload:
		return true
	default:
		return false
	}
}

// Close stops further dispatch to this client. Idempotent.
func (c *Client) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.closed {
		c.closed = true
		close(c.send)
	}
}

// Hub is the session registry: user id -> set of live clients. The user id
// doubles as the broadcast channel name.
type Hub struct {
	mu      sync.RWMutex
	clients map[string]map[*Client]struct{}

	bridge *Bridge
	log    *zap.SugaredLogger
}

func New(log *zap.SugaredLogger) *Hub {
	return &Hub{
		clients: make(map[string]map[*Client]struct{}),
		log:     log,
	}
}

// SetBridge attaches a cross-instance fanout; payloads sent through the hub
// are mirrored to other nodes.
func (h *Hub) SetBridge(b *Bridge) {
	h.bridge = b
	b.deliver = h.deliverLocal
}

// Register adds a client and reports whether it is the user's first live
// session. The count and the map mutation share one lock so presence
// transitions never race.
func (h *Hub) Register(c *Client) (first bool) {
	h.mu.Lock()
	defer h.mu.Unlock()
	set, ok := h.clients[c.UserID]
	if !ok {
		set = make(map[*Client]struct{})
		h.clients[c.UserID] = set
	}
	first = len(set) == 0
	set[c] = struct{}{}
	metrics.ActiveConnections.Inc()
	return first
}

// Deregister removes a client and reports whether it was the user's last
// live session.
func (h *Hub) Deregister(c *Client) (last bool) {
	h.mu.Lock()
	defer h.mu.Unlock()
	set, ok := h.clients[c.UserID]
	if !ok {
		return false
	}
	if _, present := set[c]; !present {
		return false
	}
	delete(set, c)
	metrics.ActiveConnections.Dec()
	if len(set) == 0 {
		delete(h.clients, c.UserID)
		return true
	}
	return false
}

// SessionCount returns the number of live sessions for a user.
func (h *Hub) SessionCount(userID string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients[userID])
}

// IsOnline reports whether the user has at least one live session here.
func (h *Hub) IsOnline(userID string) bool {
	return h.SessionCount(userID) > 0
}

// SendToUser delivers to every live session of one user, locally and on
// peer nodes. Fire and forget.
func (h *Hub) SendToUser(userID string, payload []byte) {
	h.deliverLocal(userID, "", payload)
	if h.bridge != nil {
		h.bridge.publish(userID, "", payload)
	}
}

// BroadcastExcept delivers to every connected user other than exceptID,
// used for presence events.
func (h *Hub) BroadcastExcept(exceptID string, payload []byte) {
	h.deliverLocal("", exceptID, payload)
	if h.bridge != nil {
		h.bridge.publish("", exceptID, payload)
	}
}

// deliverLocal fans out to local sessions only. An empty userID means every
// channel except exceptID.
func (h *Hub) deliverLocal(userID, exceptID string, payload []byte) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	if userID != "" {
		for c := range h.clients[userID] {
			if !c.Deliver(payload) && h.log != nil {
				h.log.Debugw("dropped payload for slow client", "user_id", userID)
			}
		}
		return
	}
	for uid, set := range h.clients {
		if uid == exceptID {
			continue
		}
		for c := range set {
			c.Deliver(payload)
		}
	}
}
