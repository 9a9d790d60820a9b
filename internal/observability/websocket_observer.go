package observability

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/wfcore/engine/internal/logger"
)

// WebSocketObserver broadcasts execution events to connected WebSocket
// clients.
type WebSocketObserver struct {
	name string
	filter EventFilter
	log *logger.Logger
	hub *WebSocketHub
}

// WebSocketObserverOption configures a WebSocketObserver.
type WebSocketObserverOption func(*WebSocketObserver)

// WithWebSocketFilter sets the event filter.
func WithWebSocketFilter(filter EventFilter) WebSocketObserverOption {
	return func(o *WebSocketObserver) { o.filter = filter }
}

// WithWebSocketLogger sets the logger instance.
func WithWebSocketLogger(l *logger.Logger) WebSocketObserverOption {
	return func(o *WebSocketObserver) { o.log = l }
}

// NewWebSocketObserver builds a WebSocketObserver broadcasting through hub.
func NewWebSocketObserver(hub *WebSocketHub, opts ...WebSocketObserverOption) *WebSocketObserver {
	obs := &WebSocketObserver{name: "websocket", hub: hub}
	for _, opt := range opts {
		opt(obs)
	}
	return obs
}

func (o *WebSocketObserver) Name() string { return o.name }
func (o *WebSocketObserver) Filter() EventFilter { return o.filter }

func (o *WebSocketObserver) OnEvent(ctx context.Context, event Event) error {
	data, err := json.Marshal(eventPayloadFrom(event))
	if err != nil {
		if o.log != nil {
			o.log.ErrorContext(ctx, "failed to marshal websocket message", "error", err, "event_type", string(event.Type))
		}
		return fmt.Errorf("marshal websocket message: %w", err)
	}
	o.hub.BroadcastToExecution(event.ExecutionID, data)
	return nil
}

// GetHub returns the hub backing this observer, for HTTP upgrade wiring.
func (o *WebSocketObserver) GetHub() *WebSocketHub { return o.hub }

// eventPayload is the WebSocket wire shape for an Event.
type eventPayload struct {
	Type string `json:"event_type"`
	ExecutionID string `json:"execution_id"`
	WorkflowID string `json:"workflow_id"`
	Timestamp time.Time `json:"timestamp"`
	Status string `json:"status"`
	NodeID *string `json:"node_id,omitempty"`
	NodeType *string `json:"node_type,omitempty"`
	DurationMs *int64 `json:"duration_ms,omitempty"`
	Error *string `json:"error,omitempty"`
}

func eventPayloadFrom(event Event) eventPayload {
	p := eventPayload{
		Type: string(event.Type),
		ExecutionID: event.ExecutionID,
		WorkflowID: event.WorkflowID,
		Timestamp: event.Timestamp,
		Status: event.Status,
		NodeID: event.NodeID,
		NodeType: event.NodeType,
		DurationMs: event.DurationMs,
	}
	if event.Error != nil {
		errStr := event.Error.Error()
		p.Error = &errStr
	}
	return p
}

// WebSocketHub tracks connected clients and broadcasts to them.
type WebSocketHub struct {
	clients map[*WebSocketClient]bool
	broadcast chan []byte
	register chan *WebSocketClient
	unregister chan *WebSocketClient
	log *logger.Logger
	mu sync.RWMutex
}

// NewWebSocketHub builds and starts a hub's background loop.
func NewWebSocketHub(log *logger.Logger) *WebSocketHub {
	hub := &WebSocketHub{
		clients: make(map[*WebSocketClient]bool),
		broadcast: make(chan []byte, 256),
		register: make(chan *WebSocketClient),
		unregister: make(chan *WebSocketClient),
		log: log,
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

		case client := <-h.unregister:
			h.mu.Lock()
			if _, ok := h.clients[client]; ok {
				delete(h.clients, client)
				close(client.send)
			}
			h.mu.Unlock()

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

// Register adds a client to the hub.
func (h *WebSocketHub) Register(client *WebSocketClient) { h.register <- client }

// Unregister removes a client from the hub.
func (h *WebSocketHub) Unregister(client *WebSocketClient) { h.unregister <- client }

// BroadcastToExecution sends message to every client with no execution
// filter, or one matching executionID.
func (h *WebSocketHub) BroadcastToExecution(executionID string, message []byte) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	for client := range h.clients {
		if client.executionID == "" || client.executionID == executionID {
			select {
			case client.send <- message:
			default:
				if h.log != nil {
					h.log.Warn("websocket client send buffer full, skipping message", "client_id", client.ID)
				}
			}
		}
	}
}

// ClientCount returns the number of connected clients.
func (h *WebSocketHub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// WebSocketClient is one connected WebSocket subscriber, optionally
// scoped to a single execution.
type WebSocketClient struct {
	ID string
	conn *websocket.Conn
	send chan []byte
	hub *WebSocketHub
	executionID string
}

// NewWebSocketClient builds a client bound to hub, optionally filtering
// to one executionID ("" subscribes to every execution).
func NewWebSocketClient(id string, conn *websocket.Conn, hub *WebSocketHub, executionID string) *WebSocketClient {
	return &WebSocketClient{ID: id, conn: conn, send: make(chan []byte, 256), hub: hub, executionID: executionID}
}

// ReadPump drains and discards inbound control frames, keeping the
// connection's read deadline alive until the client disconnects.
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

// WritePump flushes queued broadcasts to the client and pings it to keep
// the connection alive.
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
