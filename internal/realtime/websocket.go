package realtime

import (
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
)

// Client actions
const (
	ActionSubscribe   = "subscribe"
	ActionUnsubscribe = "unsubscribe"
)

// allowedFilters lists the columns a client may scope a subscription by,
// per table. Matches the server-side filters of the change feed.
var allowedFilters = map[string]map[string]bool{
	TableRequest: {"id": true, "textbook_id": true, "requester_id": true},
	TableMessage: {"request_id": true},
}

// Client represents a connected websocket client. One user can hold
// several clients (multiple tabs), each with its own subscriptions.
type Client struct {
	ID     uuid.UUID
	UserID uuid.UUID
	Socket *websocket.Conn
	Send   chan []byte

	mu     sync.Mutex
	closed bool
	subs   map[string]*Subscription
}

// Manager maintains the set of active clients and bridges them to the hub
type Manager struct {
	hub        *Hub
	clients    map[uuid.UUID]*Client
	register   chan *Client
	unregister chan *Client
	mutex      sync.Mutex
}

// clientCommand is a subscribe/unsubscribe frame sent by the client.
type clientCommand struct {
	Action string `json:"action"`
	Table  string `json:"table"`
	Filter Filter `json:"filter"`
}

// serverFrame is what the server pushes to the client.
type serverFrame struct {
	Type  string       `json:"type"` // "change" or "error"
	Event *ChangeEvent `json:"event,omitempty"`
	Error string       `json:"error,omitempty"`
}

// NewManager creates a new websocket manager fed by the hub
func NewManager(hub *Hub) *Manager {
	return &Manager{
		hub:        hub,
		clients:    make(map[uuid.UUID]*Client),
		register:   make(chan *Client),
		unregister: make(chan *Client),
	}
}

// Run starts the websocket manager
func (m *Manager) Run() {
	for {
		select {
		case client := <-m.register:
			m.mutex.Lock()
			m.clients[client.ID] = client
			log.Info("Client connected: %s (user %s)", client.ID, client.UserID)
			m.mutex.Unlock()
		case client := <-m.unregister:
			m.mutex.Lock()
			if _, ok := m.clients[client.ID]; ok {
				delete(m.clients, client.ID)
				// Mark closed before closing Send: forward goroutines may
				// still be draining buffered subscription events, and
				// queueFrame refuses once the flag is set.
				client.markClosed()
				client.closeSubscriptions()
				close(client.Send)
				log.Info("Client disconnected: %s", client.ID)
			}
			m.mutex.Unlock()
		}
	}
}

// HandleWebSocket upgrades the request and serves the change feed to the
// client. The auth middleware must have set userID in the context.
func (m *Manager) HandleWebSocket(c *gin.Context) {
	userID, exists := c.Get("userID")
	if !exists {
		log.Warn("No userID in context, rejecting connection from %s", c.Request.RemoteAddr)
		c.JSON(http.StatusUnauthorized, gin.H{"error": "Unauthorized"})
		return
	}

	userUUID, ok := userID.(uuid.UUID)
	if !ok {
		log.Error("Invalid UUID in context from %s", c.Request.RemoteAddr)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Invalid user identification"})
		return
	}

	upgrader := websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin: func(r *http.Request) bool {
			// CORS is enforced on the HTTP routes; the token already
			// gates this endpoint.
			return true
		},
	}

	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		log.Error("Failed to upgrade connection: %v", err)
		return
	}

	client := &Client{
		ID:     uuid.New(),
		UserID: userUUID,
		Socket: conn,
		Send:   make(chan []byte, 256),
		subs:   make(map[string]*Subscription),
	}

	m.register <- client

	go client.readPump(m)
	go client.writePump()
}

// readPump consumes subscribe/unsubscribe frames from the connection.
func (c *Client) readPump(m *Manager) {
	defer func() {
		m.unregister <- c
		c.Socket.Close()
	}()

	c.Socket.SetReadLimit(4 * 1024)
	c.Socket.SetReadDeadline(time.Now().Add(60 * time.Second))
	c.Socket.SetPongHandler(func(string) error {
		c.Socket.SetReadDeadline(time.Now().Add(60 * time.Second))
		return nil
	})

	for {
		_, message, err := c.Socket.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				log.Error("Error reading from client %s: %v", c.ID, err)
			} else {
				log.Info("Client %s closed connection: %v", c.ID, err)
			}
			break
		}

		var cmd clientCommand
		if err := json.Unmarshal(message, &cmd); err != nil {
			c.sendError("Invalid command format")
			continue
		}

		switch cmd.Action {
		case ActionSubscribe:
			if !filterAllowed(cmd.Table, cmd.Filter) {
				c.sendError("Unsupported table or filter")
				continue
			}
			c.subscribe(m.hub, cmd.Table, cmd.Filter)
		case ActionUnsubscribe:
			c.unsubscribe(cmd.Table, cmd.Filter)
		default:
			c.sendError("Unknown action")
		}
	}
}

func filterAllowed(table string, f Filter) bool {
	columns, ok := allowedFilters[table]
	if !ok {
		return false
	}
	if f.Column == "" {
		return false
	}
	return columns[f.Column]
}

func subscriptionKey(table string, f Filter) string {
	return table + "|" + f.Column + "=" + f.Value
}

// subscribe opens a hub subscription for the scope and forwards its
// events onto the client's send buffer. Resubscribing to the same scope
// replaces the previous subscription, so duplicate delivery cannot occur.
func (c *Client) subscribe(hub *Hub, table string, f Filter) {
	key := subscriptionKey(table, f)

	c.mu.Lock()
	if old, ok := c.subs[key]; ok {
		old.Close()
	}
	sub := hub.Subscribe(table, f)
	c.subs[key] = sub
	c.mu.Unlock()

	go c.forward(sub)
}

func (c *Client) unsubscribe(table string, f Filter) {
	key := subscriptionKey(table, f)

	c.mu.Lock()
	if sub, ok := c.subs[key]; ok {
		sub.Close()
		delete(c.subs, key)
	}
	c.mu.Unlock()
}

// forward pushes hub events to the client until the subscription closes.
func (c *Client) forward(sub *Subscription) {
	for ev := range sub.C {
		event := ev
		frame, err := json.Marshal(serverFrame{Type: "change", Event: &event})
		if err != nil {
			continue
		}
		if !c.queueFrame(frame) {
			// Client gone or its buffer full; tear the subscription down
			// instead of leaving it for the hub to drop later.
			c.removeSubscription(sub)
			return
		}
	}
}

// queueFrame enqueues a frame for the write pump. Returns false when the
// client has been unregistered or its buffer is full. The send happens
// under the mutex so it is ordered before markClosed, which means Send is
// never written after the manager closes it.
func (c *Client) queueFrame(frame []byte) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return false
	}
	select {
	case c.Send <- frame:
		return true
	default:
		return false
	}
}

// markClosed stops further queueFrame sends. Must precede close(c.Send).
func (c *Client) markClosed() {
	c.mu.Lock()
	c.closed = true
	c.mu.Unlock()
}

func (c *Client) removeSubscription(sub *Subscription) {
	sub.Close()

	c.mu.Lock()
	for key, s := range c.subs {
		if s == sub {
			delete(c.subs, key)
			break
		}
	}
	c.mu.Unlock()
}

func (c *Client) closeSubscriptions() {
	c.mu.Lock()
	defer c.mu.Unlock()
	for key, sub := range c.subs {
		sub.Close()
		delete(c.subs, key)
	}
}

func (c *Client) sendError(msg string) {
	frame, _ := json.Marshal(serverFrame{Type: "error", Error: msg})
	c.queueFrame(frame)
}

// writePump pumps buffered frames to the websocket connection
func (c *Client) writePump() {
	ticker := time.NewTicker(54 * time.Second)
	defer func() {
		ticker.Stop()
		c.Socket.Close()
	}()

	for {
		select {
		case message, ok := <-c.Send:
			c.Socket.SetWriteDeadline(time.Now().Add(10 * time.Second))
			if !ok {
				// The manager closed the channel
				c.Socket.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}

			w, err := c.Socket.NextWriter(websocket.TextMessage)
			if err != nil {
				return
			}
			w.Write(message)

			// Add queued frames to the current websocket message
			n := len(c.Send)
			for i := 0; i < n; i++ {
				w.Write([]byte{'\n'})
				w.Write(<-c.Send)
			}

			if err := w.Close(); err != nil {
				return
			}
		case <-ticker.C:
			c.Socket.SetWriteDeadline(time.Now().Add(10 * time.Second))
			if err := c.Socket.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
