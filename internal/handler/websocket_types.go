// internal/handler/websocket_types.go
package handler

import (
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"obd-service/internal/bus"
	"obd-service/internal/model"
)

// Client represents one WebSocket event stream consumer. Engine events reach
// it through its own bus subscription, so a slow client coalesces to the
// latest value per key instead of building a backlog.
type Client struct {
	ID           string
	Connection   *websocket.Conn
	Send         chan []byte // control replies and the initial snapshot
	Subscription *bus.Subscription
	UserAgent    string
	RemoteAddr   string
	ConnectedAt  time.Time

	filterMu sync.Mutex
	filter   map[model.EventType]bool
}

// wants reports whether the client asked for this event type. A client that
// never subscribed explicitly receives everything.
func (c *Client) wants(eventType model.EventType) bool {
	c.filterMu.Lock()
	defer c.filterMu.Unlock()
	if c.filter == nil {
		return true
	}
	return c.filter[eventType]
}

// subscribe narrows the stream to explicitly chosen event types.
func (c *Client) subscribe(eventType model.EventType) {
	c.filterMu.Lock()
	defer c.filterMu.Unlock()
	if c.filter == nil {
		c.filter = make(map[model.EventType]bool)
	}
	c.filter[eventType] = true
}

// unsubscribe removes one event type from an explicit subscription set.
func (c *Client) unsubscribe(eventType model.EventType) {
	c.filterMu.Lock()
	defer c.filterMu.Unlock()
	if c.filter == nil {
		return
	}
	delete(c.filter, eventType)
}

// WebSocketMessage represents a WebSocket message in either direction
type WebSocketMessage struct {
	Type      string      `json:"type"`
	Data      interface{} `json:"data,omitempty"`
	EventID   string      `json:"event_id,omitempty"`
	Timestamp time.Time   `json:"timestamp"`
}

// ConnectionManager manages WebSocket connections
type ConnectionManager struct {
	clients    map[string]*Client
	register   chan *Client
	unregister chan *Client
	mutex      sync.RWMutex
}

// NewConnectionManager creates a new connection manager
func NewConnectionManager() *ConnectionManager {
	manager := &ConnectionManager{
		clients:    make(map[string]*Client),
		register:   make(chan *Client),
		unregister: make(chan *Client),
	}

	go manager.run()
	return manager
}

// run starts the connection manager
func (cm *ConnectionManager) run() {
	for {
		select {
		case client := <-cm.register:
			cm.mutex.Lock()
			cm.clients[client.ID] = client
			cm.mutex.Unlock()

		case client := <-cm.unregister:
			cm.mutex.Lock()
			if _, ok := cm.clients[client.ID]; ok {
				delete(cm.clients, client.ID)
				close(client.Send)
			}
			cm.mutex.Unlock()
		}
	}
}

// Register registers a new client
func (cm *ConnectionManager) Register(client *Client) {
	cm.register <- client
}

// Unregister unregisters a client and closes its send channel
func (cm *ConnectionManager) Unregister(client *Client) {
	cm.unregister <- client
}

// Count returns the number of connected clients
func (cm *ConnectionManager) Count() int {
	cm.mutex.RLock()
	defer cm.mutex.RUnlock()
	return len(cm.clients)
}

// GetStats returns connection statistics
func (cm *ConnectionManager) GetStats() *ConnectionStats {
	cm.mutex.RLock()
	defer cm.mutex.RUnlock()

	stats := &ConnectionStats{
		TotalConnections: len(cm.clients),
		Clients:          make([]ClientInfo, 0, len(cm.clients)),
	}

	for _, client := range cm.clients {
		stats.Clients = append(stats.Clients, ClientInfo{
			ID:          client.ID,
			RemoteAddr:  client.RemoteAddr,
			UserAgent:   client.UserAgent,
			ConnectedAt: client.ConnectedAt,
			Coalesced:   client.Subscription.Coalesced(),
		})
	}

	return stats
}

// ClientInfo describes one connected client
type ClientInfo struct {
	ID          string    `json:"id"`
	RemoteAddr  string    `json:"remote_addr"`
	UserAgent   string    `json:"user_agent"`
	ConnectedAt time.Time `json:"connected_at"`
	Coalesced   uint64    `json:"coalesced_events"`
}

// ConnectionStats represents connection statistics
type ConnectionStats struct {
	TotalConnections int          `json:"total_connections"`
	Clients          []ClientInfo `json:"clients"`
}
