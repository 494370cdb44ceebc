package websocket

import (
	"context"
	"encoding/json"
	"log"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/oklog/ulid/v2"
)

// DefaultWriteTimeout bounds each socket write.
const DefaultWriteTimeout = 5 * time.Second

// writeBufferSize is the depth of the per-connection outbound queue
const writeBufferSize = 100

// Connection implements the interfaces.Connection interface
// WebSocket writes are serialized through one writer goroutine so frames
// reach the client in the order they were queued.
type Connection struct {
	id           string
	conn         *websocket.Conn
	writeCh      chan []byte
	writeTimeout time.Duration

	sessionID       string // Bound on join
	participantName string // Bound on join
	adminToken      string // Bound on join, may be empty
	joined          bool

	ctx       context.Context
	cancel    context.CancelFunc
	closeOnce sync.Once
	mu        sync.RWMutex // Protects the join context
}

// NewConnection wraps conn and starts its writer goroutine.
// A non-positive writeTimeout falls back to DefaultWriteTimeout.
func NewConnection(conn *websocket.Conn, writeTimeout time.Duration) *Connection {
	if writeTimeout <= 0 {
		writeTimeout = DefaultWriteTimeout
	}
	ctx, cancel := context.WithCancel(context.Background())
	c := &Connection{
		id:           ulid.Make().String(),
		conn:         conn,
		writeCh:      make(chan []byte, writeBufferSize),
		writeTimeout: writeTimeout,
		ctx:          ctx,
		cancel:       cancel,
	}

	go c.writeLoop()

	return c
}

func (c *Connection) writeLoop() {
	for {
		select {
		case data := <-c.writeCh:
			if err := c.conn.SetWriteDeadline(time.Now().Add(c.writeTimeout)); err != nil {
				_ = c.Close()
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, data); err != nil {
				_ = c.Close()
				return
			}

		case <-c.ctx.Done():
			return
		}
	}
}

// GetID returns the connection's ULID
func (c *Connection) GetID() string {
	return c.id
}

// WriteJSON marshals v and queues it for the writer goroutine. It never
// blocks: a client whose queue is full is too slow to keep up and is
// disconnected.
func (c *Connection) WriteJSON(v interface{}) error {
	select {
	case <-c.ctx.Done():
		return ErrConnectionClosed
	default:
	}

	data, err := json.Marshal(v)
	if err != nil {
		return ErrInvalidJSON
	}

	select {
	case c.writeCh <- data:
		return nil
	case <-c.ctx.Done():
		return ErrConnectionClosed
	default:
		log.Printf("Dropping slow connection: id=%s queued=%d", c.id, len(c.writeCh))
		_ = c.Close()
		return ErrSlowConsumer
	}
}

// Close stops the writer and closes the socket. Safe to call repeatedly.
func (c *Connection) Close() error {
	var err error
	c.closeOnce.Do(func() {
		c.cancel()
		if c.conn != nil {
			err = c.conn.Close()
		}
	})
	return err
}

// Done is closed once the connection has been closed
func (c *Connection) Done() <-chan struct{} {
	return c.ctx.Done()
}

// SetCredentials binds the join context. A later join on the same
// connection replaces it.
func (c *Connection) SetCredentials(sessionID, participantName, adminToken string) error {
	if sessionID == "" || participantName == "" {
		return ErrInvalidCredentials
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	c.sessionID = sessionID
	c.participantName = participantName
	c.adminToken = adminToken
	c.joined = true

	return nil
}

func (c *Connection) IsJoined() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.joined
}

func (c *Connection) GetSessionID() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.sessionID
}

func (c *Connection) GetParticipantName() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.participantName
}

func (c *Connection) GetAdminToken() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.adminToken
}
