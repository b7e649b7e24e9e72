// Package websocket streams save-status events for editor sessions.
package websocket

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"
)

// ClientGauge receives the number of connected clients.
type ClientGauge interface {
	SetWebSocketClients(n int)
}

// Message is the envelope written to clients.
type Message struct {
	SessionID string          `json:"session_id"`
	Type      string          `json:"type"`
	Data      json.RawMessage `json:"data"`
	Timestamp int64           `json:"timestamp"`

	// closeAfter disconnects the session's clients once delivered.
	closeAfter bool
}

// HubMetrics tracks delivery counts.
type HubMetrics struct {
	ActiveConnections int64
	MessagesSent      int64
	MessagesDropped   int64
}

// Hub keeps the connections watching each session.
type Hub struct {
	connections map[string]map[*Client]bool // sessionID -> clients
	mu          sync.RWMutex

	register   chan *Client
	unregister chan *Client
	broadcast  chan *Message

	ctx    context.Context
	cancel context.CancelFunc
	done   chan struct{}
	logger *zap.Logger
	gauge  ClientGauge

	metricsMu sync.Mutex
	metrics   HubMetrics
}

// NewHub creates a hub. gauge may be nil.
func NewHub(logger *zap.Logger, gauge ClientGauge) *Hub {
	ctx, cancel := context.WithCancel(context.Background())
	return &Hub{
		connections: make(map[string]map[*Client]bool),
		register:    make(chan *Client, 100),
		unregister:  make(chan *Client, 100),
		broadcast:   make(chan *Message, 1000),
		ctx:         ctx,
		cancel:      cancel,
		done:        make(chan struct{}),
		logger:      logger,
		gauge:       gauge,
	}
}

// Run is the hub event loop. It returns after Stop.
func (h *Hub) Run() {
	defer close(h.done)
	for {
		select {
		case <-h.ctx.Done():
			h.logger.Info("Hub shutting down")
			h.closeAllConnections()
			return

		case client := <-h.register:
			h.registerClient(client)

		case client := <-h.unregister:
			h.unregisterClient(client)

		case message := <-h.broadcast:
			h.broadcastToSession(message)
			if message.closeAfter {
				h.closeSession(message.SessionID)
			}
		}
	}
}

// Stop shuts the hub down and waits for Run to return.
func (h *Hub) Stop() {
	h.logger.Info("Stopping WebSocket hub")
	h.cancel()
	<-h.done
}

// SendToSession queues a message for every client of a session. It never
// blocks: save callbacks run on the flushing goroutine.
func (h *Hub) SendToSession(sessionID, messageType string, data interface{}) error {
	return h.enqueue(sessionID, messageType, data, false)
}

// CloseSession delivers a final message and then disconnects every client
// of the session.
func (h *Hub) CloseSession(sessionID, messageType string, data interface{}) error {
	return h.enqueue(sessionID, messageType, data, true)
}

func (h *Hub) enqueue(sessionID, messageType string, data interface{}, closeAfter bool) error {
	payload, err := json.Marshal(data)
	if err != nil {
		return fmt.Errorf("failed to marshal data: %w", err)
	}

	message := &Message{
		SessionID:  sessionID,
		Type:       messageType,
		Data:       payload,
		Timestamp:  time.Now().Unix(),
		closeAfter: closeAfter,
	}
	select {
	case h.broadcast <- message:
		return nil
	default:
		h.countDropped(1)
		return fmt.Errorf("broadcast channel full, message dropped")
	}
}

func (h *Hub) registerClient(client *Client) {
	h.mu.Lock()
	if h.connections[client.sessionID] == nil {
		h.connections[client.sessionID] = make(map[*Client]bool)
	}
	h.connections[client.sessionID][client] = true
	perSession := len(h.connections[client.sessionID])
	h.mu.Unlock()

	h.adjustActive(1)
	h.logger.Info("Client registered",
		zap.String("sessionID", client.sessionID),
		zap.String("connectionID", client.id),
		zap.Int("sessionConnections", perSession),
	)
}

func (h *Hub) unregisterClient(client *Client) {
	h.mu.Lock()
	clients, ok := h.connections[client.sessionID]
	if !ok || !clients[client] {
		h.mu.Unlock()
		return
	}
	delete(clients, client)
	close(client.send)
	if len(clients) == 0 {
		delete(h.connections, client.sessionID)
	}
	remaining := len(clients)
	h.mu.Unlock()

	h.adjustActive(-1)
	h.logger.Info("Client unregistered",
		zap.String("sessionID", client.sessionID),
		zap.String("connectionID", client.id),
		zap.Int("remainingConnections", remaining),
	)
}

func (h *Hub) broadcastToSession(message *Message) {
	h.mu.RLock()
	clients := make([]*Client, 0, len(h.connections[message.SessionID]))
	for c := range h.connections[message.SessionID] {
		clients = append(clients, c)
	}
	h.mu.RUnlock()

	if len(clients) == 0 {
		h.logger.Debug("No active connections for session",
			zap.String("sessionID", message.SessionID),
			zap.String("messageType", message.Type),
		)
		return
	}

	data, err := json.Marshal(message)
	if err != nil {
		h.logger.Error("Failed to marshal broadcast message", zap.Error(err))
		return
	}

	sent := 0
	for _, client := range clients {
		select {
		case client.send <- data:
			sent++
		default:
			h.countDropped(1)
			h.logger.Warn("Closing slow client",
				zap.String("sessionID", client.sessionID),
				zap.String("connectionID", client.id),
			)
			h.unregisterClient(client)
		}
	}

	h.metricsMu.Lock()
	h.metrics.MessagesSent += int64(sent)
	h.metricsMu.Unlock()
}

func (h *Hub) closeSession(sessionID string) {
	h.mu.Lock()
	clients := h.connections[sessionID]
	delete(h.connections, sessionID)
	h.mu.Unlock()

	for client := range clients {
		close(client.send)
	}
	if n := len(clients); n > 0 {
		h.adjustActive(-int64(n))
		h.logger.Info("Session connections closed",
			zap.String("sessionID", sessionID),
			zap.Int("connections", n),
		)
	}
}

func (h *Hub) closeAllConnections() {
	h.mu.Lock()
	total := 0
	for sessionID, clients := range h.connections {
		for client := range clients {
			close(client.send)
			total++
		}
		delete(h.connections, sessionID)
	}
	h.mu.Unlock()

	h.adjustActive(-int64(total))
	h.logger.Info("All connections closed", zap.Int("connections", total))
}

func (h *Hub) adjustActive(delta int64) {
	h.metricsMu.Lock()
	h.metrics.ActiveConnections += delta
	active := h.metrics.ActiveConnections
	h.metricsMu.Unlock()
	if h.gauge != nil {
		h.gauge.SetWebSocketClients(int(active))
	}
}

func (h *Hub) countDropped(n int64) {
	h.metricsMu.Lock()
	h.metrics.MessagesDropped += n
	h.metricsMu.Unlock()
}

// GetMetrics returns current hub metrics.
func (h *Hub) GetMetrics() HubMetrics {
	h.metricsMu.Lock()
	defer h.metricsMu.Unlock()
	return h.metrics
}

// GetConnectionCount returns the number of clients watching a session.
func (h *Hub) GetConnectionCount(sessionID string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.connections[sessionID])
}
