package trader

import (
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/net/websocket"

	"github.com/yourusername/quantlink-tick-engine/pkg/market"
)

// WebSocketMessage represents a message sent to websocket clients
type WebSocketMessage struct {
	Type      string      `json:"type"`      // "decision", "ping"
	Timestamp string      `json:"timestamp"` // ISO 8601 format
	Data      interface{} `json:"data,omitempty"`
}

// WebSocketHub fans every decision out to connected dashboard clients
type WebSocketHub struct {
	clients    map[*websocket.Conn]bool
	broadcast  chan *WebSocketMessage
	register   chan *websocket.Conn
	unregister chan *websocket.Conn
	log        *zap.Logger

	mu      sync.RWMutex
	running bool
	stopCh  chan struct{}
	dropped int64
}

// NewWebSocketHub creates a new WebSocket hub
func NewWebSocketHub(log *zap.Logger) *WebSocketHub {
	if log == nil {
		log = zap.NewNop()
	}
	return &WebSocketHub{
		clients:    make(map[*websocket.Conn]bool),
		broadcast:  make(chan *WebSocketMessage, 100),
		register:   make(chan *websocket.Conn),
		unregister: make(chan *websocket.Conn),
		log:        log.Named("ws"),
		stopCh:     make(chan struct{}),
	}
}

// Start starts the WebSocket hub
func (h *WebSocketHub) Start() {
	h.mu.Lock()
	if h.running {
		h.mu.Unlock()
		return
	}
	h.running = true
	h.mu.Unlock()

	go h.run()
	h.log.Info("hub started")
}

// Stop stops the WebSocket hub and closes all clients
func (h *WebSocketHub) Stop() {
	h.mu.Lock()
	defer h.mu.Unlock()

	if !h.running {
		return
	}
	h.running = false
	close(h.stopCh)

	for client := range h.clients {
		client.Close()
	}
	h.clients = make(map[*websocket.Conn]bool)
	h.log.Info("hub stopped")
}

// Publish queues a decision for broadcast; it never blocks the tick path
func (h *WebSocketHub) Publish(d market.Decision) {
	h.mu.RLock()
	running := h.running
	h.mu.RUnlock()
	if !running {
		return
	}

	msg := &WebSocketMessage{
		Type:      "decision",
		Timestamp: time.Now().Format(time.RFC3339),
		Data:      d,
	}
	select {
	case h.broadcast <- msg:
	default:
		// 队列满时丢弃，慢客户端不能拖住引擎
		h.mu.Lock()
		h.dropped++
		h.mu.Unlock()
	}
}

// Clients returns the number of connected clients
func (h *WebSocketHub) Clients() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// run manages client connections
func (h *WebSocketHub) run() {
	for {
		select {
		case <-h.stopCh:
			return

		case client := <-h.register:
			h.mu.Lock()
			h.clients[client] = true
			n := len(h.clients)
			h.mu.Unlock()
			h.log.Debug("client connected", zap.Int("total", n))

		case client := <-h.unregister:
			h.mu.Lock()
			if _, ok := h.clients[client]; ok {
				delete(h.clients, client)
				client.Close()
			}
			n := len(h.clients)
			h.mu.Unlock()
			h.log.Debug("client disconnected", zap.Int("total", n))

		case message := <-h.broadcast:
			h.mu.RLock()
			for client := range h.clients {
				go func(c *websocket.Conn, msg *WebSocketMessage) {
					if err := websocket.JSON.Send(c, msg); err != nil {
						h.drop(c)
					}
				}(client, message)
			}
			h.mu.RUnlock()
		}
	}
}

// drop unregisters a client unless the hub is already stopped
func (h *WebSocketHub) drop(c *websocket.Conn) {
	select {
	case h.unregister <- c:
	case <-h.stopCh:
	}
}

// HandleWebSocket handles a websocket connection
func (h *WebSocketHub) HandleWebSocket(ws *websocket.Conn) {
	select {
	case h.register <- ws:
	case <-h.stopCh:
		ws.Close()
		return
	}

	// Send heartbeat
	done := make(chan struct{})
	defer close(done)
	go func() {
		ticker := time.NewTicker(30 * time.Second)
		defer ticker.Stop()

		for {
			select {
			case <-h.stopCh:
				return
			case <-done:
				return
			case <-ticker.C:
				if err := websocket.JSON.Send(ws, &WebSocketMessage{
					Type:      "ping",
					Timestamp: time.Now().Format(time.RFC3339),
				}); err != nil {
					h.drop(ws)
					return
				}
			}
		}
	}()

	// 读客户端消息，目前只处理 pong
	for {
		var msg map[string]interface{}
		if err := websocket.JSON.Receive(ws, &msg); err != nil {
			h.drop(ws)
			return
		}
		if msgType, _ := msg["type"].(string); msgType == "pong" {
			continue
		}
	}
}
