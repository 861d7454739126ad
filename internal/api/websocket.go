package api

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/infinitelandscape/server/internal/auth"
	"github.com/infinitelandscape/server/internal/config"
	"github.com/infinitelandscape/server/internal/performance"
	"github.com/infinitelandscape/server/internal/streaming"
	"github.com/infinitelandscape/server/internal/terrain"
)

const (
	// Supported WebSocket protocol versions
	ProtocolVersion1 = "landscape-v1"

	// Default ping interval (30 seconds)
	defaultPingInterval = 30 * time.Second

	// Pong wait timeout (60 seconds)
	pongWait = 60 * time.Second

	// Write timeout (10 seconds)
	writeTimeout = 10 * time.Second

	// Close reason sent when the hub stops
	shutdownReason = "server shutting down"

	// Largest client frame accepted
	maxMessageSize = 64 << 10

	sendBufferSize = 256
)

// WebSocketConnection represents an active WebSocket connection
type WebSocketConnection struct {
	conn     *websocket.Conn
	viewerID string
	version  string
	send     chan []byte
	hub      *WebSocketHub

	mu            sync.Mutex
	subscriptions map[string]struct{}
}

// WebSocketHub manages all active WebSocket connections
type WebSocketHub struct {
	connections map[*WebSocketConnection]bool
	register    chan *WebSocketConnection
	unregister  chan *WebSocketConnection
	done        chan struct{}
	mu          sync.RWMutex
}

// WebSocketMessage represents a WebSocket message
type WebSocketMessage struct {
	Type string          `json:"type"`
	ID   string          `json:"id,omitempty"`
	Data json.RawMessage `json:"data,omitempty"`
}

// WebSocketError represents an error message sent over WebSocket
type WebSocketError struct {
	Type    string `json:"type"`
	ID      string `json:"id,omitempty"`
	Error   string `json:"error"`
	Message string `json:"message"`
	Code    string `json:"code,omitempty"`
}

// NewWebSocketHub creates a new WebSocket hub
func NewWebSocketHub() *WebSocketHub {
	return &WebSocketHub{
		connections: make(map[*WebSocketConnection]bool),
		register:    make(chan *WebSocketConnection),
		unregister:  make(chan *WebSocketConnection),
		done:        make(chan struct{}),
	}
}

// Run starts the hub's main loop. It returns when ctx is done, sending every
// connection a going-away close frame before hanging up.
//
// A connection's send channel is only closed on unregister, after its read
// pump has stopped; slow consumers are hung up instead so the read pump
// unwinds them.
func (h *WebSocketHub) Run(ctx context.Context) {
	defer close(h.done)
	for {
		select {
		case <-ctx.Done():
			h.mu.Lock()
			for conn := range h.connections {
				delete(h.connections, conn)
				conn.goAway(shutdownReason)
			}
			h.mu.Unlock()
			return

		case conn := <-h.register:
			h.mu.Lock()
			h.connections[conn] = true
			h.mu.Unlock()
			log.Printf("[WS] connection registered: viewer_id=%s, version=%s", conn.viewerID, conn.version)

		case conn := <-h.unregister:
			h.mu.Lock()
			if _, ok := h.connections[conn]; ok {
				delete(h.connections, conn)
				close(conn.send)
			}
			h.mu.Unlock()
			log.Printf("[WS] connection unregistered: viewer_id=%s", conn.viewerID)

		}
	}
}

// Count returns the number of registered connections
func (h *WebSocketHub) Count() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.connections)
}

// WebSocketHandlers handles WebSocket connections
type WebSocketHandlers struct {
	hub           *WebSocketHub
	config        *config.Config
	tokens        *auth.TokenService
	streamManager *streaming.Manager
	encoder       *chunkEncoder
	settings      terrain.Settings
	profiler      *performance.Profiler
	upgrader      websocket.Upgrader
}

// NewWebSocketHandlers creates a new WebSocket handlers instance
func NewWebSocketHandlers(cfg *config.Config, manager *streaming.Manager, tokens *auth.TokenService, profiler *performance.Profiler) (*WebSocketHandlers, error) {
	encoder, err := newChunkEncoder(cfg.Streaming.GeometryFormat, cfg.Streaming.CompressionLevel, profiler)
	if err != nil {
		return nil, fmt.Errorf("failed to create chunk encoder: %w", err)
	}

	allowedOrigins := cfg.Server.AllowedOrigins

	return &WebSocketHandlers{
		hub:           NewWebSocketHub(),
		config:        cfg,
		tokens:        tokens,
		streamManager: manager,
		encoder:       encoder,
		settings:      cfg.Terrain.Settings(),
		profiler:      profiler,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 4096,
			CheckOrigin: func(r *http.Request) bool {
				return originAllowed(r.Header.Get("Origin"), allowedOrigins)
			},
		},
	}, nil
}

// HandleWebSocket handles WebSocket connection upgrades
func (h *WebSocketHandlers) HandleWebSocket(w http.ResponseWriter, r *http.Request) {
	viewerID, err := h.authenticate(r)
	if err != nil {
		log.Printf("[WS] authentication failed: %v", err)
		http.Error(w, "Authentication required", http.StatusUnauthorized)
		return
	}

	requestedVersions := r.Header.Get("Sec-WebSocket-Protocol")
	selectedVersion := h.negotiateVersion(requestedVersions)
	if selectedVersion == "" {
		log.Printf("[WS] version negotiation failed: requested=%s", requestedVersions)
		http.Error(w, "Unsupported protocol version", http.StatusBadRequest)
		return
	}

	responseHeaders := http.Header{}
	if requestedVersions != "" {
		responseHeaders.Set("Sec-WebSocket-Protocol", selectedVersion)
	}

	conn, err := h.upgrader.Upgrade(w, r, responseHeaders)
	if err != nil {
		log.Printf("[WS] upgrade failed: %v", err)
		return
	}

	wsConn := &WebSocketConnection{
		conn:          conn,
		viewerID:      viewerID,
		version:       selectedVersion,
		send:          make(chan []byte, sendBufferSize),
		hub:           h.hub,
		subscriptions: make(map[string]struct{}),
	}

	select {
	case h.hub.register <- wsConn:
	case <-h.hub.done:
		conn.Close()
		return
	}

	go wsConn.writePump()
	go wsConn.readPump(h)
}

// authenticate resolves the viewer for a connection. With tokens enabled a
// valid stream token is required; otherwise the viewer_id query parameter is
// trusted or a fresh ID is assigned.
func (h *WebSocketHandlers) authenticate(r *http.Request) (string, error) {
	if !h.tokens.Enabled() {
		if viewerID := r.URL.Query().Get("viewer_id"); viewerID != "" {
			return viewerID, nil
		}
		return uuid.NewString(), nil
	}

	token, err := h.extractToken(r)
	if err != nil {
		return "", err
	}
	claims, err := h.tokens.ValidateStreamToken(token)
	if err != nil {
		return "", err
	}
	return claims.ViewerID, nil
}

// extractToken extracts the stream token from request (query param or header)
func (h *WebSocketHandlers) extractToken(r *http.Request) (string, error) {
	// Browsers cannot set headers on websocket upgrades.
	token := r.URL.Query().Get("token")
	if token != "" {
		return token, nil
	}

	authHeader := r.Header.Get("Authorization")
	if authHeader != "" {
		parts := strings.Split(authHeader, " ")
		if len(parts) == 2 && parts[0] == "Bearer" {
			return parts[1], nil
		}
	}

	return "", fmt.Errorf("missing authentication token")
}

// negotiateVersion selects the highest supported protocol version
func (h *WebSocketHandlers) negotiateVersion(requested string) string {
	if requested == "" {
		return ProtocolVersion1
	}

	requestedVersions := strings.Split(requested, ",")
	for i := range requestedVersions {
		requestedVersions[i] = strings.TrimSpace(requestedVersions[i])
	}

	// Supported versions in order (highest first)
	supportedVersions := []string{ProtocolVersion1}

	for _, supported := range supportedVersions {
		for _, requested := range requestedVersions {
			if requested == supported {
				return supported
			}
		}
	}

	return ""
}

// readPump handles incoming messages from the WebSocket connection
func (c *WebSocketConnection) readPump(handlers *WebSocketHandlers) {
	defer func() {
		handlers.releaseSubscriptions(c)
		select {
		case c.hub.unregister <- c:
		case <-c.hub.done:
		}
		if err := c.conn.Close(); err != nil {
			log.Printf("[WS] failed to close connection: %v", err)
		}
	}()

	c.conn.SetReadLimit(maxMessageSize)
	if err := c.conn.SetReadDeadline(time.Now().Add(pongWait)); err != nil {
		log.Printf("[WS] failed to set read deadline: %v", err)
		return
	}
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		_, messageBytes, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				log.Printf("[WS] read error: %v", err)
			}
			break
		}

		var msg WebSocketMessage
		if err := json.Unmarshal(messageBytes, &msg); err != nil {
			c.sendError("", "Invalid message format", "InvalidMessageFormat")
			continue
		}

		handlers.handleMessage(c, &msg)
	}
}

// writePump handles outgoing messages to the WebSocket connection.
// Each message is its own frame so clients can parse frames as JSON.
func (c *WebSocketConnection) writePump() {
	ticker := time.NewTicker(defaultPingInterval)
	defer func() {
		ticker.Stop()
		if err := c.conn.Close(); err != nil {
			log.Printf("[WS] failed to close connection: %v", err)
		}
	}()

	for {
		select {
		case message, ok := <-c.send:
			if err := c.conn.SetWriteDeadline(time.Now().Add(writeTimeout)); err != nil {
				return
			}
			if !ok {
				if err := c.conn.WriteMessage(websocket.CloseMessage, []byte{}); err != nil {
					log.Printf("[WS] failed to write close message: %v", err)
				}
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, message); err != nil {
				return
			}

		case <-ticker.C:
			if err := c.conn.SetWriteDeadline(time.Now().Add(writeTimeout)); err != nil {
				return
			}
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}

		case <-c.hub.done:
			return
		}
	}
}

// goAway tells the client the server is leaving, then hangs up.
func (c *WebSocketConnection) goAway(reason string) {
	notice := websocket.FormatCloseMessage(websocket.CloseGoingAway, reason)
	if err := c.conn.WriteControl(websocket.CloseMessage, notice, time.Now().Add(writeTimeout)); err != nil {
		log.Printf("[WS] failed to notify viewer %s of shutdown: %v", c.viewerID, err)
	}
	c.hangUp()
}

// hangUp closes the socket; the read pump then unregisters the connection.
func (c *WebSocketConnection) hangUp() {
	if err := c.conn.Close(); err != nil {
		log.Printf("[WS] failed to hang up viewer %s: %v", c.viewerID, err)
	}
}

// sendMessage marshals data into a typed message and queues it
func (c *WebSocketConnection) sendMessage(messageType, id string, data interface{}) {
	response := WebSocketMessage{Type: messageType, ID: id}
	if data != nil {
		payload, err := json.Marshal(data)
		if err != nil {
			log.Printf("[WS] failed to marshal %s payload: %v", messageType, err)
			c.sendError(id, "Failed to prepare response", "InternalError")
			return
		}
		response.Data = payload
	}

	bytes, err := json.Marshal(response)
	if err != nil {
		log.Printf("[WS] failed to marshal %s response: %v", messageType, err)
		return
	}

	select {
	case c.send <- bytes:
	default:
		log.Printf("[WS] failed to send %s: channel full", messageType)
	}
}

// sendError sends an error message to the client
func (c *WebSocketConnection) sendError(id, errorMsg, code string) {
	errorResp := WebSocketError{
		Type:    "error",
		ID:      id,
		Error:   errorMsg,
		Message: errorMsg,
		Code:    code,
	}

	messageBytes, err := json.Marshal(errorResp)
	if err != nil {
		log.Printf("[WS] failed to marshal error message: %v", err)
		return
	}

	select {
	case c.send <- messageBytes:
	default:
		log.Printf("[WS] failed to send error message: channel full")
	}
}

func (c *WebSocketConnection) trackSubscription(id string) {
	c.mu.Lock()
	c.subscriptions[id] = struct{}{}
	c.mu.Unlock()
}

func (c *WebSocketConnection) untrackSubscription(id string) {
	c.mu.Lock()
	delete(c.subscriptions, id)
	c.mu.Unlock()
}

func (c *WebSocketConnection) subscriptionIDs() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	ids := make([]string, 0, len(c.subscriptions))
	for id := range c.subscriptions {
		ids = append(ids, id)
	}
	return ids
}

// releaseSubscriptions drops the streams of a closing connection
func (h *WebSocketHandlers) releaseSubscriptions(c *WebSocketConnection) {
	for _, id := range c.subscriptionIDs() {
		if err := h.streamManager.Unsubscribe(c.viewerID, id); err != nil {
			log.Printf("[Stream] failed to release subscription %s: %v", id, err)
		}
		c.untrackSubscription(id)
	}
}

// handleMessage routes messages to appropriate handlers
func (h *WebSocketHandlers) handleMessage(conn *WebSocketConnection, msg *WebSocketMessage) {
	switch msg.Type {
	case "ping":
		conn.sendMessage("pong", msg.ID, nil)
	case "stream_subscribe":
		h.handleStreamSubscribe(conn, msg)
	case "stream_update_pose":
		h.handleStreamUpdatePose(conn, msg)
	case "stream_step":
		h.handleStreamStep(conn, msg)
	case "camera_toggle":
		h.handleCameraToggle(conn, msg)
	case "stream_unsubscribe":
		h.handleStreamUnsubscribe(conn, msg)
	default:
		conn.sendError(msg.ID, "Unknown message type", "UnknownMessageType")
	}
}

// handleStreamSubscribe opens a stream and sends the initial window.
func (h *WebSocketHandlers) handleStreamSubscribe(conn *WebSocketConnection, msg *WebSocketMessage) {
	var req streaming.SubscriptionRequest
	if err := decodeData(msg.Data, &req); err != nil {
		conn.sendError(msg.ID, "Invalid stream_subscribe payload", "InvalidMessageFormat")
		return
	}

	plan, err := h.streamManager.PlanSubscription(conn.viewerID, req)
	if err != nil {
		log.Printf("[Stream] PlanSubscription failed: viewer_id=%s: %v", conn.viewerID, err)
		conn.sendError(msg.ID, err.Error(), "InvalidSubscriptionRequest")
		return
	}
	conn.trackSubscription(plan.SubscriptionID)

	conn.sendMessage("stream_ack", msg.ID, StreamAckData{
		SubscriptionID: plan.SubscriptionID,
		Status:         "subscribed",
		ChunkIDs:       plan.ChunkIDs,
		Position:       req.Pose.Position,
		ChunkSize:      h.settings.ChunkSize,
		GeometryFormat: h.encoder.format,
	})

	chunks, err := h.encoder.encode(plan.Chunks, h.settings, req.IncludeGeometry)
	if err != nil {
		log.Printf("[Stream] failed to encode initial window for %s: %v", plan.SubscriptionID, err)
		conn.sendError(msg.ID, "Failed to encode chunks", "InternalError")
		return
	}
	conn.sendMessage("stream_delta", msg.ID, StreamDeltaData{
		SubscriptionID: plan.SubscriptionID,
		Position:       req.Pose.Position,
		AddedChunks:    chunks,
		RemovedChunks:  []int64{},
		CurrentChunks:  plan.ChunkIDs,
	})
}

// StreamUpdatePoseData represents the data payload for a stream_update_pose message
type StreamUpdatePoseData struct {
	SubscriptionID string               `json:"subscription_id"`
	Pose           streaming.CameraPose `json:"pose"`
}

// StreamStepData represents the data payload for a stream_step message
type StreamStepData struct {
	SubscriptionID string `json:"subscription_id"`
	Ticks          int    `json:"ticks"`
}

// SubscriptionData carries just a subscription ID
type SubscriptionData struct {
	SubscriptionID string `json:"subscription_id"`
}

func (h *WebSocketHandlers) handleStreamUpdatePose(conn *WebSocketConnection, msg *WebSocketMessage) {
	var req StreamUpdatePoseData
	if err := decodeData(msg.Data, &req); err != nil {
		conn.sendError(msg.ID, "Invalid stream_update_pose payload", "InvalidMessageFormat")
		return
	}

	delta, err := h.streamManager.UpdatePose(conn.viewerID, req.SubscriptionID, req.Pose)
	if err != nil {
		conn.sendError(msg.ID, err.Error(), "InvalidSubscriptionRequest")
		return
	}
	h.sendDelta(conn, msg.ID, delta)
}

func (h *WebSocketHandlers) handleStreamStep(conn *WebSocketConnection, msg *WebSocketMessage) {
	var req StreamStepData
	if err := decodeData(msg.Data, &req); err != nil {
		conn.sendError(msg.ID, "Invalid stream_step payload", "InvalidMessageFormat")
		return
	}
	if req.Ticks == 0 {
		req.Ticks = 1
	}

	delta, err := h.streamManager.Step(conn.viewerID, req.SubscriptionID, req.Ticks)
	if err != nil {
		conn.sendError(msg.ID, err.Error(), "InvalidSubscriptionRequest")
		return
	}
	h.sendDelta(conn, msg.ID, delta)
}

func (h *WebSocketHandlers) handleCameraToggle(conn *WebSocketConnection, msg *WebSocketMessage) {
	var req SubscriptionData
	if err := decodeData(msg.Data, &req); err != nil {
		conn.sendError(msg.ID, "Invalid camera_toggle payload", "InvalidMessageFormat")
		return
	}

	camera, err := h.streamManager.ToggleCamera(conn.viewerID, req.SubscriptionID)
	if err != nil {
		conn.sendError(msg.ID, err.Error(), "InvalidSubscriptionRequest")
		return
	}
	conn.sendMessage("camera_state", msg.ID, CameraStateData{
		SubscriptionID: req.SubscriptionID,
		Camera:         camera,
	})
}

func (h *WebSocketHandlers) handleStreamUnsubscribe(conn *WebSocketConnection, msg *WebSocketMessage) {
	var req SubscriptionData
	if err := decodeData(msg.Data, &req); err != nil {
		conn.sendError(msg.ID, "Invalid stream_unsubscribe payload", "InvalidMessageFormat")
		return
	}

	if err := h.streamManager.Unsubscribe(conn.viewerID, req.SubscriptionID); err != nil {
		conn.sendError(msg.ID, err.Error(), "InvalidSubscriptionRequest")
		return
	}
	conn.untrackSubscription(req.SubscriptionID)
	conn.sendMessage("stream_ack", msg.ID, StreamAckData{
		SubscriptionID: req.SubscriptionID,
		Status:         "unsubscribed",
	})
}

// sendDelta encodes added chunks and sends a stream_delta.
func (h *WebSocketHandlers) sendDelta(conn *WebSocketConnection, id string, delta *streaming.ChunkDelta) {
	withGeometry := false
	if subscription, err := h.streamManager.GetSubscription(delta.SubscriptionID); err == nil {
		withGeometry = subscription.Request.IncludeGeometry
	}

	chunks, err := h.encoder.encode(delta.AddedChunks, h.settings, withGeometry)
	if err != nil {
		log.Printf("[Stream] failed to encode delta for %s: %v", delta.SubscriptionID, err)
		conn.sendError(id, "Failed to encode chunks", "InternalError")
		return
	}

	removed := delta.RemovedChunks
	if removed == nil {
		removed = []int64{}
	}
	if len(chunks) > 0 || len(removed) > 0 {
		log.Printf("[Stream] delta for %s: position=%.2f added=%d removed=%v",
			delta.SubscriptionID, delta.Position, len(chunks), removed)
	}

	conn.sendMessage("stream_delta", id, StreamDeltaData{
		SubscriptionID: delta.SubscriptionID,
		Position:       delta.Position,
		AddedChunks:    chunks,
		RemovedChunks:  removed,
		CurrentChunks:  delta.CurrentChunks,
	})
}

// GetHub returns the WebSocket hub
func (h *WebSocketHandlers) GetHub() *WebSocketHub {
	return h.hub
}

func decodeData(data json.RawMessage, v interface{}) error {
	if len(data) == 0 {
		return fmt.Errorf("missing data")
	}
	return json.Unmarshal(data, v)
}
