// internal/handler/websocket_handler.go
package handler

import (
	"encoding/json"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"obd-service/internal/bus"
	"obd-service/internal/config"
	"obd-service/internal/model"
	"obd-service/internal/service"
	"obd-service/internal/utils"
)

const (
	wsReadLimit     = 4096
	wsReadDeadline  = 60 * time.Second
	wsWriteDeadline = 10 * time.Second
	wsPingInterval  = 54 * time.Second
)

// WebSocketHandler streams engine events to WebSocket clients
type WebSocketHandler struct {
	upgrader      websocket.Upgrader
	connections   *ConnectionManager
	engineService *service.EngineService
	eventBus      *bus.EventBus
	logger        *utils.ServiceLogger
}

// NewWebSocketHandler creates a new WebSocket handler
func NewWebSocketHandler(
	engineService *service.EngineService,
	eventBus *bus.EventBus,
	cfg *config.Config,
	logger *zap.Logger,
) *WebSocketHandler {
	allowedOrigins := cfg.Security.AllowedOrigins
	upgrader := websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin: func(r *http.Request) bool {
			return originAllowed(allowedOrigins, r.Header.Get("Origin"))
		},
	}

	return &WebSocketHandler{
		upgrader:      upgrader,
		connections:   NewConnectionManager(),
		engineService: engineService,
		eventBus:      eventBus,
		logger:        utils.NewServiceLogger(logger, "websocket-handler"),
	}
}

// originAllowed checks the Origin header against the configured allow list.
// Non-browser clients send no Origin and always pass.
func originAllowed(allowed []string, origin string) bool {
	if origin == "" {
		return true
	}
	for _, entry := range allowed {
		if entry == "*" || strings.EqualFold(entry, origin) {
			return true
		}
	}
	return false
}

// RegisterRoutes registers WebSocket routes
func (h *WebSocketHandler) RegisterRoutes(router *gin.RouterGroup) {
	router.GET("/events", h.HandleEventStream)
	router.GET("/stats", h.HandleStats)
}

// HandleEventStream upgrades the connection and streams engine events
// @Summary Event stream
// @Description Stream engine events (connection changes, metric updates, DTC lists, scan results, raw traces) over WebSocket. Send {"type":"subscribe","data":{"topic":"METRIC_UPDATED"}} to narrow the stream.
// @Tags WebSocket
// @Router /ws/events [get]
func (h *WebSocketHandler) HandleEventStream(c *gin.Context) {
	conn, err := h.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		h.logger.Error("Failed to upgrade WebSocket connection", zap.Error(err))
		return
	}

	client := &Client{
		ID:           uuid.New().String(),
		Connection:   conn,
		Send:         make(chan []byte, 16),
		Subscription: h.eventBus.Subscribe("websocket"),
		UserAgent:    c.Request.UserAgent(),
		RemoteAddr:   c.Request.RemoteAddr,
		ConnectedAt:  time.Now(),
	}

	h.connections.Register(client)
	h.logger.Info("WebSocket client connected",
		zap.String("client_id", client.ID),
		zap.String("remote_addr", client.RemoteAddr),
	)

	h.sendMessage(client, &WebSocketMessage{
		Type:      "initial_status",
		Data:      h.engineService.Status(),
		Timestamp: time.Now(),
	})

	go h.handleClientRead(client)
	go h.handleClientWrite(client)
}

// HandleStats reports connected clients and their coalescing counters
// @Summary WebSocket connection stats
// @Description Get connected WebSocket clients and how many events each has coalesced away
// @Tags WebSocket
// @Produce json
// @Success 200 {object} utils.APIResponse{data=ConnectionStats}
// @Router /ws/stats [get]
func (h *WebSocketHandler) HandleStats(c *gin.Context) {
	utils.SuccessResponse(c, http.StatusOK, "Connection statistics", h.connections.GetStats())
}

// handleClientRead consumes client messages until the connection drops
func (h *WebSocketHandler) handleClientRead(client *Client) {
	defer func() {
		h.connections.Unregister(client)
		h.eventBus.Unsubscribe(client.Subscription)
		client.Connection.Close()
		h.logger.Info("WebSocket client disconnected",
			zap.String("client_id", client.ID),
			zap.Uint64("coalesced_events", client.Subscription.Coalesced()),
		)
	}()

	client.Connection.SetReadLimit(wsReadLimit)
	client.Connection.SetReadDeadline(time.Now().Add(wsReadDeadline))
	client.Connection.SetPongHandler(func(string) error {
		client.Connection.SetReadDeadline(time.Now().Add(wsReadDeadline))
		return nil
	})

	for {
		_, messageBytes, err := client.Connection.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				h.logger.Error("WebSocket read error",
					zap.Error(err),
					zap.String("client_id", client.ID),
				)
			}
			break
		}

		var message WebSocketMessage
		if err := json.Unmarshal(messageBytes, &message); err != nil {
			h.logger.Warn("Failed to parse WebSocket message",
				zap.Error(err),
				zap.String("client_id", client.ID),
			)
			continue
		}

		h.handleClientMessage(client, &message)
	}
}

// handleClientWrite owns all writes on the connection: control replies from
// the send channel, drained engine events, and keepalive pings.
func (h *WebSocketHandler) handleClientWrite(client *Client) {
	ticker := time.NewTicker(wsPingInterval)
	defer func() {
		ticker.Stop()
		client.Connection.Close()
	}()

	for {
		select {
		case message, ok := <-client.Send:
			client.Connection.SetWriteDeadline(time.Now().Add(wsWriteDeadline))
			if !ok {
				client.Connection.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := client.Connection.WriteMessage(websocket.TextMessage, message); err != nil {
				h.logger.Debug("WebSocket write error",
					zap.Error(err),
					zap.String("client_id", client.ID),
				)
				return
			}

		case <-client.Subscription.Ready():
			for _, event := range client.Subscription.Drain() {
				if !client.wants(event.Type) {
					continue
				}
				if err := h.writeEvent(client, event); err != nil {
					return
				}
			}

		case <-ticker.C:
			client.Connection.SetWriteDeadline(time.Now().Add(wsWriteDeadline))
			if err := client.Connection.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// writeEvent sends one engine event as a text frame
func (h *WebSocketHandler) writeEvent(client *Client, event model.Event) error {
	payload, err := json.Marshal(&WebSocketMessage{
		Type:      string(event.Type),
		Data:      event.Data,
		EventID:   event.ID.String(),
		Timestamp: event.Timestamp,
	})
	if err != nil {
		h.logger.Error("Failed to marshal event", zap.Error(err))
		return nil
	}

	client.Connection.SetWriteDeadline(time.Now().Add(wsWriteDeadline))
	if err := client.Connection.WriteMessage(websocket.TextMessage, payload); err != nil {
		h.logger.Debug("WebSocket event write error",
			zap.Error(err),
			zap.String("client_id", client.ID),
		)
		return err
	}
	return nil
}

// handleClientMessage handles incoming client messages
func (h *WebSocketHandler) handleClientMessage(client *Client, message *WebSocketMessage) {
	switch message.Type {
	case "subscribe":
		h.handleSubscription(client, message, true)
	case "unsubscribe":
		h.handleSubscription(client, message, false)
	case "ping":
		h.sendMessage(client, &WebSocketMessage{
			Type:      "pong",
			Timestamp: time.Now(),
		})
	default:
		h.logger.Warn("Unknown message type",
			zap.String("type", message.Type),
			zap.String("client_id", client.ID),
		)
	}
}

// handleSubscription narrows or widens the client's event type filter
func (h *WebSocketHandler) handleSubscription(client *Client, message *WebSocketMessage, subscribe bool) {
	data, ok := message.Data.(map[string]interface{})
	if !ok {
		h.sendError(client, "subscription data is required")
		return
	}
	topic, ok := data["topic"].(string)
	if !ok {
		h.sendError(client, "topic is required")
		return
	}

	eventType := model.EventType(strings.ToUpper(topic))
	if !isKnownEventType(eventType) {
		h.sendError(client, "unknown topic: "+topic)
		return
	}

	confirmation := "subscription_confirmed"
	if subscribe {
		client.subscribe(eventType)
	} else {
		client.unsubscribe(eventType)
		confirmation = "unsubscription_confirmed"
	}

	h.logger.Info("Client subscription changed",
		zap.String("client_id", client.ID),
		zap.String("topic", string(eventType)),
		zap.Bool("subscribed", subscribe),
	)
	h.sendMessage(client, &WebSocketMessage{
		Type:      confirmation,
		Data:      map[string]interface{}{"topic": string(eventType)},
		Timestamp: time.Now(),
	})
}

// isKnownEventType validates a subscription topic
func isKnownEventType(t model.EventType) bool {
	switch t {
	case model.EventConnectionChanged, model.EventMetricUpdated, model.EventDTCListUpdated,
		model.EventRawTrace, model.EventCandidateWarning, model.EventSafetyViolation,
		model.EventScanCompleted:
		return true
	default:
		return false
	}
}

// sendMessage queues a control message, dropping it if the client is stuck
func (h *WebSocketHandler) sendMessage(client *Client, message *WebSocketMessage) {
	messageBytes, err := json.Marshal(message)
	if err != nil {
		h.logger.Error("Failed to marshal WebSocket message", zap.Error(err))
		return
	}

	select {
	case client.Send <- messageBytes:
	default:
		h.logger.Warn("Client send channel full, dropping message",
			zap.String("client_id", client.ID),
		)
	}
}

// sendError sends an error message to a client
func (h *WebSocketHandler) sendError(client *Client, errorMsg string) {
	h.sendMessage(client, &WebSocketMessage{
		Type:      "error",
		Data:      map[string]interface{}{"error": errorMsg},
		Timestamp: time.Now(),
	})
}
