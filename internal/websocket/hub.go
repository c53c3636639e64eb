package websocket

import (
	"context"
	"encoding/json"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"eyeparse/internal/infrastructure"
	"eyeparse/internal/pipeline"
)

// Message types sent to clients
const (
	TypeConnection = "connection"
	TypeProgress   = "progress"
)

// Message is the envelope of every frame the hub sends
type Message struct {
	Type      string    `json:"type"`
	Data      any       `json:"data,omitempty"`
	Timestamp time.Time `json:"timestamp"`
	TraceID   string    `json:"trace_id,omitempty"`
}

// Stats is a snapshot of hub counters
type Stats struct {
	ActiveClients    int   `json:"active_clients"`
	TotalConnections int64 `json:"total_connections"`
	MessagesSent     int64 `json:"messages_sent"`
	Dropped          int64 `json:"dropped_clients"`
}

// Hub fans pipeline progress out to connected clients. A client whose send
// buffer is full is disconnected rather than slowing the broadcast down.
type Hub struct {
	clients    map[*Client]struct{}
	broadcast  chan []byte
	register   chan *Client
	unregister chan *Client

	mu      sync.RWMutex
	running bool
	quit    chan struct{}
	done    chan struct{}

	totalConnections atomic.Int64
	messagesSent     atomic.Int64
	dropped          atomic.Int64

	logger *slog.Logger
}

// NewHub creates a stopped hub
func NewHub(logger *slog.Logger) *Hub {
	return &Hub{
		clients:    make(map[*Client]struct{}),
		broadcast:  make(chan []byte, 64),
		register:   make(chan *Client),
		unregister: make(chan *Client),
		quit:       make(chan struct{}),
		done:       make(chan struct{}),
		logger:     infrastructure.WithComponent(logger, "websocket.hub"),
	}
}

// Start runs the hub loop. Calling it twice is a no-op.
func (h *Hub) Start() {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.running {
		return
	}
	h.running = true
	go h.run()
}

// Stop ends the hub loop and closes every client send channel, which makes
// the write pumps close their connections.
func (h *Hub) Stop() {
	h.mu.Lock()
	if !h.running {
		h.mu.Unlock()
		return
	}
	h.running = false
	h.mu.Unlock()

	close(h.quit)
	<-h.done

	h.mu.Lock()
	defer h.mu.Unlock()
	for c := range h.clients {
		close(c.send)
		delete(h.clients, c)
	}
	h.logger.Info("hub stopped")
}

func (h *Hub) run() {
	defer close(h.done)
	for {
		select {
		case <-h.quit:
			return

		case c := <-h.register:
			h.mu.Lock()
			h.clients[c] = struct{}{}
			count := len(h.clients)
			h.mu.Unlock()
			h.totalConnections.Add(1)

			h.logger.InfoContext(c.context(), "client registered",
				slog.String("client_id", c.id),
				slog.String("remote_addr", c.remoteAddr),
				slog.Int("clients", count))

			if data, err := h.encode(TypeConnection, map[string]string{"status": "connected", "client_id": c.id}, c.traceID); err == nil {
				h.deliver(c, data)
			}

		case c := <-h.unregister:
			h.mu.Lock()
			_, ok := h.clients[c]
			if ok {
				delete(h.clients, c)
				close(c.send)
			}
			count := len(h.clients)
			h.mu.Unlock()
			if ok {
				h.logger.InfoContext(c.context(), "client unregistered",
					slog.String("client_id", c.id),
					slog.Duration("connected_for", time.Since(c.connectedAt)),
					slog.Int("clients", count))
			}

		case data := <-h.broadcast:
			h.mu.RLock()
			clients := make([]*Client, 0, len(h.clients))
			for c := range h.clients {
				clients = append(clients, c)
			}
			h.mu.RUnlock()

			for _, c := range clients {
				h.deliver(c, data)
			}
		}
	}
}

// deliver queues data for one client and drops the client when its buffer
// is full. It runs on the hub loop only.
func (h *Hub) deliver(c *Client, data []byte) {
	select {
	case c.send <- data:
		h.messagesSent.Add(1)
	default:
		h.mu.Lock()
		if _, ok := h.clients[c]; ok {
			delete(h.clients, c)
			close(c.send)
		}
		h.mu.Unlock()
		h.dropped.Add(1)
		h.logger.WarnContext(c.context(), "client send buffer full, disconnecting",
			slog.String("client_id", c.id))
	}
}

func (h *Hub) encode(msgType string, data any, traceID string) ([]byte, error) {
	out, err := json.Marshal(Message{
		Type:      msgType,
		Data:      data,
		Timestamp: time.Now().UTC(),
		TraceID:   traceID,
	})
	if err != nil {
		h.logger.Error("failed to encode message",
			slog.String("type", msgType),
			slog.String("error", err.Error()))
	}
	return out, err
}

// Broadcast sends a message to every client. It returns without sending
// once the hub has stopped.
func (h *Hub) Broadcast(msgType string, data any) {
	out, err := h.encode(msgType, data, "")
	if err != nil {
		return
	}
	select {
	case h.broadcast <- out:
	case <-h.quit:
	}
}

// PublishEvent forwards a pipeline progress event. Its signature matches
// pipeline.WithProgress.
func (h *Hub) PublishEvent(e pipeline.Event) {
	h.Broadcast(TypeProgress, e)
}

// Register adds a client to the hub
func (h *Hub) Register(c *Client) {
	select {
	case h.register <- c:
	case <-h.quit:
		close(c.send)
	}
}

// Unregister removes a client. It is safe to call after Stop.
func (h *Hub) Unregister(c *Client) {
	select {
	case h.unregister <- c:
	case <-h.quit:
	}
}

// ClientCount returns the number of connected clients
func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// Stats returns the hub counters
func (h *Hub) Stats() Stats {
	return Stats{
		ActiveClients:    h.ClientCount(),
		TotalConnections: h.totalConnections.Load(),
		MessagesSent:     h.messagesSent.Load(),
		Dropped:          h.dropped.Load(),
	}
}

func (c *Client) context() context.Context {
	ctx := context.Background()
	if c.traceID != "" {
		ctx = infrastructure.WithTraceID(ctx, c.traceID)
	}
	return ctx
}
