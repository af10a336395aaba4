package accesslog

import (
	"encoding/json"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"linkvault/internal/logger"
)

const (
	writeWait  = 10 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = (pongWait * 9) / 10
	maxMsgSize = 4 * 1024
	sendBuffer = 64
)

// LiveEvent is pushed to every connection of the link owner.
type LiveEvent struct {
	Type    string     `json:"type"`
	Payload *AccessLog `json:"payload,omitempty"`
}

type connection struct {
	ownerID int64
	conn    *websocket.Conn
	send    chan []byte
}

// Hub tracks live websocket connections per owner. An owner may be
// connected from several tabs at once.
type Hub struct {
	mu          sync.RWMutex
	connections map[int64]map[*connection]struct{}
}

func NewHub() *Hub {
	return &Hub{connections: make(map[int64]map[*connection]struct{})}
}

func (h *Hub) register(c *connection) {
	h.mu.Lock()
	defer h.mu.Unlock()
	set, ok := h.connections[c.ownerID]
	if !ok {
		set = make(map[*connection]struct{})
		h.connections[c.ownerID] = set
	}
	set[c] = struct{}{}
}

func (h *Hub) unregister(c *connection) {
	h.mu.Lock()
	defer h.mu.Unlock()
	set, ok := h.connections[c.ownerID]
	if !ok {
		return
	}
	if _, ok := set[c]; !ok {
		return
	}
	delete(set, c)
	close(c.send)
	if len(set) == 0 {
		delete(h.connections, c.ownerID)
	}
}

// Connected returns how many live connections an owner has.
func (h *Hub) Connected(ownerID int64) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.connections[ownerID])
}

// Publish sends ev to all of the owner's connections and reports how many
// accepted it. Slow clients are skipped.
func (h *Hub) Publish(ownerID int64, ev *LiveEvent) int {
	data, err := json.Marshal(ev)
	if err != nil {
		return 0
	}

	h.mu.RLock()
	defer h.mu.RUnlock()
	delivered := 0
	for c := range h.connections[ownerID] {
		select {
		case c.send <- data:
			delivered++
		default:
		}
	}
	return delivered
}

// Close disconnects every client.
func (h *Hub) Close() {
	h.mu.Lock()
	defer h.mu.Unlock()
	for owner, set := range h.connections {
		for c := range set {
			close(c.send)
		}
		delete(h.connections, owner)
	}
}

// ServeWS registers conn and blocks until the client goes away.
func (h *Hub) ServeWS(conn *websocket.Conn, ownerID int64) {
	c := &connection{
		ownerID: ownerID,
		conn:    conn,
		send:    make(chan []byte, sendBuffer),
	}
	h.register(c)
	logger.Component("accesslog").WithField("owner_id", ownerID).Debug("live client connected")

	go h.writePump(c)
	h.readPump(c)
}

// readPump only services control frames; clients do not send events.
func (h *Hub) readPump(c *connection) {
	defer func() {
		h.unregister(c)
		c.conn.Close()
	}()

	c.conn.SetReadLimit(maxMsgSize)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				logger.Component("accesslog").WithError(err).WithField("owner_id", c.ownerID).Debug("live client read failed")
			}
			return
		}
	}
}

func (h *Hub) writePump(c *connection) {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case msg, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, msg); err != nil {
				return
			}
		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
