package orchestrator

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/storyforge/storyforge/internal/logging"
)

// WebSocketHub fans out orchestrator Events to connected clients, each
// optionally scoped to a single RequestID. Grounded on the teacher's
// WebSocketHub/WebSocketObserver (observer/websocket_observer.go),
// generalized from per-execution to per-request scoping.
type WebSocketHub struct {
	clients    map[*WebSocketClient]bool
	broadcast  chan []byte
	register   chan *WebSocketClient
	unregister chan *WebSocketClient
	logger     *logging.Logger
	mu         sync.RWMutex
}

// WebSocketClient is one connected viewer, optionally filtered to a
// single RequestID (the empty string subscribes to every request).
type WebSocketClient struct {
	ID        string
	conn      *websocket.Conn
	send      chan []byte
	hub       *WebSocketHub
	requestID string
}

// NewWebSocketHub starts the hub's broadcast loop in the background.
func NewWebSocketHub(logger *logging.Logger) *WebSocketHub {
	hub := &WebSocketHub{
		clients:    make(map[*WebSocketClient]bool),
		broadcast:  make(chan []byte, 256),
		register:   make(chan *WebSocketClient),
		unregister: make(chan *WebSocketClient),
		logger:     logger,
	}
	go hub.run()
	return hub
}

func (h *WebSocketHub) run() {
	for {
		select {
		case client := <-h.register:
			h.mu.Lock()
			h.clients[client] = true
			h.mu.Unlock()
			h.logger.Info("websocket client connected", "client_id", client.ID, "request_id", client.requestID)

		case client := <-h.unregister:
			h.mu.Lock()
			if _, ok := h.clients[client]; ok {
				delete(h.clients, client)
				close(client.send)
			}
			h.mu.Unlock()
			h.logger.Info("websocket client disconnected", "client_id", client.ID)

		case message := <-h.broadcast:
			h.mu.RLock()
			for client := range h.clients {
				select {
				case client.send <- message:
				default:
					close(client.send)
					delete(h.clients, client)
				}
			}
			h.mu.RUnlock()
		}
	}
}

// Register admits a client into the hub.
func (h *WebSocketHub) Register(client *WebSocketClient) { h.register <- client }

// Unregister removes a client from the hub.
func (h *WebSocketHub) Unregister(client *WebSocketClient) { h.unregister <- client }

// broadcastToRequest delivers message to every client with no RequestID
// filter or one matching requestID.
func (h *WebSocketHub) broadcastToRequest(requestID string, message []byte) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	for client := range h.clients {
		if client.requestID == "" || client.requestID == requestID {
			select {
			case client.send <- message:
			default:
				h.logger.Warn("websocket client send buffer full, dropping message", "client_id", client.ID)
			}
		}
	}
}

// ClientCount reports the number of connected clients.
func (h *WebSocketHub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// NewWebSocketClient wires a raw *websocket.Conn into the hub.
func NewWebSocketClient(id string, conn *websocket.Conn, hub *WebSocketHub, requestID string) *WebSocketClient {
	return &WebSocketClient{ID: id, conn: conn, send: make(chan []byte, 256), hub: hub, requestID: requestID}
}

// ReadPump drains (and discards) inbound frames so ping/pong control
// frames and close handshakes are processed; this connection is
// read-only from the client's perspective.
func (c *WebSocketClient) ReadPump() {
	defer func() {
		c.hub.Unregister(c)
		c.conn.Close()
	}()

	c.conn.SetReadDeadline(time.Now().Add(60 * time.Second))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(60 * time.Second))
		return nil
	})

	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			break
		}
	}
}

// WritePump drains the client's send channel onto the socket and keeps
// the connection alive with periodic pings.
func (c *WebSocketClient) WritePump() {
	ticker := time.NewTicker(54 * time.Second)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case message, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
			if !ok {
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, message); err != nil {
				return
			}

		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// WebSocketObserver is an Observer that broadcasts every published Event
// to the hub as JSON, request-scoped.
type WebSocketObserver struct {
	hub    *WebSocketHub
	logger *logging.Logger
}

func NewWebSocketObserver(hub *WebSocketHub, logger *logging.Logger) *WebSocketObserver {
	return &WebSocketObserver{hub: hub, logger: logger}
}

func (o *WebSocketObserver) Name() string { return "websocket" }

// eventPayload is the wire shape for one Event: error is flattened to a
// string since error values themselves don't marshal meaningfully.
type eventPayload struct {
	Type      EventType `json:"type"`
	RequestID string    `json:"request_id"`
	Phase     string    `json:"phase,omitempty"`
	NodeID    string    `json:"node_id,omitempty"`
	Status    string    `json:"status,omitempty"`
	Error     string    `json:"error,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

func (o *WebSocketObserver) OnEvent(ctx context.Context, event Event) {
	payload := eventPayload{
		Type:      event.Type,
		RequestID: event.RequestID,
		Phase:     string(event.Phase),
		NodeID:    event.NodeID,
		Status:    string(event.Status),
		Timestamp: event.Timestamp,
	}
	if event.Err != nil {
		payload.Error = event.Err.Error()
	}

	data, err := json.Marshal(payload)
	if err != nil {
		o.logger.ErrorContext(ctx, "failed to marshal websocket event", "error", err, "event_type", event.Type)
		return
	}
	o.hub.broadcastToRequest(event.RequestID, data)
}
