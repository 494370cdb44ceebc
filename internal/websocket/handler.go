package websocket

import (
	"encoding/json"
	"log"
	"net/http"
	"time"

	"github.com/gorilla/websocket"
	"retroboard/pkg/interfaces"
	"retroboard/pkg/types"
)

// Dispatcher receives decoded frames and disconnects from the read pump.
// The hub implements it and runs the work on its own goroutine.
type Dispatcher interface {
	Dispatch(conn interfaces.Connection, env *types.Envelope) error
	Disconnect(conn interfaces.Connection) error
}

// Config holds the heartbeat and buffer settings of the event stream
type Config struct {
	PingInterval   time.Duration
	ReadTimeout    time.Duration // Time allowed between pongs
	WriteTimeout   time.Duration
	BufferSize     int
	MaxMessageSize int64
}

// DefaultConfig returns the heartbeat settings used when none are configured
func DefaultConfig() Config {
	return Config{
		PingInterval:   30 * time.Second,
		ReadTimeout:    60 * time.Second,
		WriteTimeout:   DefaultWriteTimeout,
		BufferSize:     1024,
		MaxMessageSize: 64 * 1024,
	}
}

// Handler upgrades HTTP requests to the event stream and pumps frames from
// each connection to the dispatcher.
type Handler struct {
	registry   *Registry
	dispatcher Dispatcher
	config     Config
	upgrader   websocket.Upgrader
}

// NewHandler creates a new WebSocket handler
func NewHandler(registry *Registry, dispatcher Dispatcher, config Config) *Handler {
	defaults := DefaultConfig()
	if config.PingInterval <= 0 {
		config.PingInterval = defaults.PingInterval
	}
	if config.ReadTimeout <= config.PingInterval {
		config.ReadTimeout = 2 * config.PingInterval
	}
	if config.WriteTimeout <= 0 {
		config.WriteTimeout = defaults.WriteTimeout
	}
	if config.BufferSize <= 0 {
		config.BufferSize = defaults.BufferSize
	}
	if config.MaxMessageSize <= 0 {
		config.MaxMessageSize = defaults.MaxMessageSize
	}

	return &Handler{
		registry:   registry,
		dispatcher: dispatcher,
		config:     config,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  config.BufferSize,
			WriteBufferSize: config.BufferSize,
			// The board is served from other origins in development
			CheckOrigin:      func(r *http.Request) bool { return true },
			HandshakeTimeout: 10 * time.Second,
		},
	}
}

// HandleWebSocket upgrades the request and starts the connection's read pump.
// Connections start unjoined; the first retro:join binds them to a room.
func (h *Handler) HandleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Printf("WebSocket upgrade failed: %v", err)
		return
	}

	wsConn := NewConnection(conn, h.config.WriteTimeout)

	if err := h.registry.Register(wsConn); err != nil {
		log.Printf("Failed to register connection: %v", err)
		_ = wsConn.Close()
		return
	}

	log.Printf("Connection opened: id=%s remote=%s", wsConn.GetID(), r.RemoteAddr)

	go h.handleConnection(wsConn)
}

// handleConnection runs the heartbeat and the read pump until the client goes away
func (h *Handler) handleConnection(conn *Connection) {
	defer func() {
		if err := h.dispatcher.Disconnect(conn); err != nil {
			log.Printf("Disconnect dispatch failed for %s: %v", conn.GetID(), err)
			h.registry.Unregister(conn)
		}
		_ = conn.Close()
	}()

	conn.conn.SetReadLimit(h.config.MaxMessageSize)
	if err := conn.conn.SetReadDeadline(time.Now().Add(h.config.ReadTimeout)); err != nil {
		log.Printf("Failed to set read deadline: %v", err)
		return
	}
	conn.conn.SetPongHandler(func(string) error {
		return conn.conn.SetReadDeadline(time.Now().Add(h.config.ReadTimeout))
	})

	go h.heartbeat(conn)

	for {
		messageType, data, err := conn.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure, websocket.CloseAbnormalClosure) {
				log.Printf("WebSocket error on %s: %v", conn.GetID(), err)
			}
			return
		}

		if messageType != websocket.TextMessage {
			continue
		}

		var env types.Envelope
		if err := json.Unmarshal(data, &env); err != nil || env.Type == "" {
			h.sendError(conn, "Invalid message format")
			continue
		}

		if err := h.dispatcher.Dispatch(conn, &env); err != nil {
			log.Printf("Dispatch failed for %s type=%s: %v", conn.GetID(), env.Type, err)
			h.sendError(conn, "Server is busy, try again")
		}
	}
}

// heartbeat pings the client until the connection closes
func (h *Handler) heartbeat(conn *Connection) {
	ticker := time.NewTicker(h.config.PingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			deadline := time.Now().Add(h.config.WriteTimeout)
			if err := conn.conn.WriteControl(websocket.PingMessage, nil, deadline); err != nil {
				_ = conn.Close()
				return
			}
		case <-conn.Done():
			return
		}
	}
}

func (h *Handler) sendError(conn *Connection, message string) {
	env, err := types.NewEnvelope(types.EventError, types.ErrorPayload{Message: message})
	if err != nil {
		return
	}
	if err := conn.WriteJSON(env); err != nil {
		log.Printf("Failed to send error to %s: %v", conn.GetID(), err)
	}
}
