package client

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"retroboard/internal/projection"
	"retroboard/pkg/types"
)

var (
	ErrAlreadyConnected = errors.New("client already connected")
	ErrNotConnected     = errors.New("client not connected")
	ErrDisconnected     = errors.New("client disconnected")
)

// eventBufferSize is the depth of the received-event queue
const eventBufferSize = 256

// Client is an event stream participant. Every notification it receives is
// folded into a projection mirror and queued for Receive/WaitFor.
type Client struct {
	ServerURL string

	conn    *websocket.Conn
	events  chan *types.Envelope
	errors  chan error
	done    chan struct{}
	onEvent func(projection.Mirror, *types.Envelope)

	mu        sync.RWMutex
	writeMu   sync.Mutex
	mirror    projection.Mirror
	closed    bool
	connected bool
}

// Option configures a Client
type Option func(*Client)

// WithEventHook calls fn with the updated mirror after every event. fn runs
// on the read goroutine and must not block.
func WithEventHook(fn func(projection.Mirror, *types.Envelope)) Option {
	return func(c *Client) { c.onEvent = fn }
}

// New creates a client for the server at serverURL (http or ws scheme)
func New(serverURL string, opts ...Option) *Client {
	c := &Client{
		ServerURL: serverURL,
		events:    make(chan *types.Envelope, eventBufferSize),
		errors:    make(chan error, 10),
		done:      make(chan struct{}),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Connect dials the event stream and starts the read loop
func (c *Client) Connect(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.connected {
		return ErrAlreadyConnected
	}

	u, err := streamURL(c.ServerURL)
	if err != nil {
		return err
	}

	conn, _, err := websocket.DefaultDialer.DialContext(ctx, u, nil)
	if err != nil {
		return fmt.Errorf("failed to connect: %w", err)
	}

	c.conn = conn
	c.connected = true

	go c.readLoop(conn)

	return nil
}

func streamURL(serverURL string) (string, error) {
	u, err := url.Parse(serverURL)
	if err != nil {
		return "", fmt.Errorf("invalid server URL: %w", err)
	}
	switch u.Scheme {
	case "http":
		u.Scheme = "ws"
	case "https":
		u.Scheme = "wss"
	}
	u.Path = "/ws"
	u.RawQuery = ""
	return u.String(), nil
}

func (c *Client) readLoop(conn *websocket.Conn) {
	defer func() {
		c.mu.Lock()
		c.connected = false
		c.mu.Unlock()
		c.signalDone()
	}()

	for {
		var env types.Envelope
		if err := conn.ReadJSON(&env); err != nil {
			c.mu.RLock()
			closed := c.closed
			c.mu.RUnlock()
			if !closed {
				c.pushError(fmt.Errorf("read error: %w", err))
			}
			return
		}

		c.mu.Lock()
		c.mirror = projection.Apply(c.mirror, &env)
		mirror := c.mirror.Clone()
		c.mu.Unlock()

		if c.onEvent != nil {
			c.onEvent(mirror, &env)
		}

		select {
		case c.events <- &env:
		default:
			c.pushError(fmt.Errorf("event queue full, dropped %s", env.Type))
		}
	}
}

func (c *Client) pushError(err error) {
	select {
	case c.errors <- err:
	default:
	}
}

func (c *Client) signalDone() {
	c.mu.Lock()
	defer c.mu.Unlock()
	select {
	case <-c.done:
	default:
		close(c.done)
	}
}

// Send writes a command envelope to the server
func (c *Client) Send(commandType string, payload interface{}) error {
	c.mu.RLock()
	conn := c.conn
	connected := c.connected
	c.mu.RUnlock()

	if !connected || conn == nil {
		return ErrNotConnected
	}

	env, err := types.NewEnvelope(commandType, payload)
	if err != nil {
		return fmt.Errorf("failed to encode %s: %w", commandType, err)
	}

	c.writeMu.Lock()
	defer c.writeMu.Unlock()

	if err := conn.SetWriteDeadline(time.Now().Add(10 * time.Second)); err != nil {
		return err
	}
	if err := conn.WriteJSON(env); err != nil {
		return fmt.Errorf("failed to send %s: %w", commandType, err)
	}
	return nil
}

func (c *Client) Join(retroID, participantName, adminToken string) error {
	return c.Send(types.CommandJoin, types.JoinPayload{
		RetroID:         retroID,
		ParticipantName: participantName,
		AdminToken:      adminToken,
	})
}

func (c *Client) AddItem(text string, category types.Category) error {
	return c.Send(types.CommandAddItem, types.AddItemPayload{Text: text, Category: category})
}

func (c *Client) Vote(itemID string) error {
	return c.Send(types.CommandVote, types.ItemRefPayload{ItemID: itemID})
}

func (c *Client) Unvote(itemID string) error {
	return c.Send(types.CommandUnvote, types.ItemRefPayload{ItemID: itemID})
}

func (c *Client) ChangePhase() error {
	return c.Send(types.CommandChangePhase, nil)
}

// StartTimer starts the shared countdown. seconds must be positive; the
// server rejects zero or negative durations.
func (c *Client) StartTimer(seconds int) error {
	return c.Send(types.CommandStartTimer, types.StartTimerPayload{Duration: seconds})
}

func (c *Client) SelectBrainstormItems(itemIDs []string) error {
	return c.Send(types.CommandSelectBrainstormItems, types.SelectBrainstormItemsPayload{ItemIDs: itemIDs})
}

func (c *Client) AddBrainstormComment(itemID, text string) error {
	return c.Send(types.CommandAddBrainstormComment, types.AddBrainstormCommentPayload{ItemID: itemID, Text: text})
}

func (c *Client) AddActionPoint(text, assignee, itemID string) error {
	return c.Send(types.CommandAddActionPoint, types.AddActionPointPayload{Text: text, Assignee: assignee, ItemID: itemID})
}

func (c *Client) AssignActionPoint(actionPointID, assignee string) error {
	return c.Send(types.CommandAssignActionPoint, types.AssignActionPointPayload{ActionPointID: actionPointID, Assignee: assignee})
}

// Receive returns the next queued event
func (c *Client) Receive(timeout time.Duration) (*types.Envelope, error) {
	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case env := <-c.events:
		return env, nil
	case err := <-c.errors:
		return nil, err
	case <-timer.C:
		return nil, fmt.Errorf("timeout waiting for event")
	case <-c.done:
		// Events read before the disconnect are still delivered
		select {
		case env := <-c.events:
			return env, nil
		default:
			return nil, ErrDisconnected
		}
	}
}

// WaitFor discards queued events until one of eventType arrives
func (c *Client) WaitFor(eventType string, timeout time.Duration) (*types.Envelope, error) {
	deadline := time.Now().Add(timeout)
	for {
		remaining := time.Until(deadline)
		if remaining <= 0 {
			return nil, fmt.Errorf("timeout waiting for %s", eventType)
		}
		env, err := c.Receive(remaining)
		if err != nil {
			return nil, fmt.Errorf("waiting for %s: %w", eventType, err)
		}
		if env.Type == eventType {
			return env, nil
		}
	}
}

// Mirror returns a copy of the client's view of the retro
func (c *Client) Mirror() projection.Mirror {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.mirror.Clone()
}

// WaitForMirror polls the mirror until cond holds
func (c *Client) WaitForMirror(cond func(projection.Mirror) bool, timeout time.Duration) (projection.Mirror, error) {
	deadline := time.Now().Add(timeout)
	for {
		m := c.Mirror()
		if cond(m) {
			return m, nil
		}
		if time.Now().After(deadline) {
			return m, fmt.Errorf("timeout waiting for mirror condition")
		}
		time.Sleep(10 * time.Millisecond)
	}
}

// Drain discards every queued event
func (c *Client) Drain() {
	for {
		select {
		case <-c.events:
		default:
			return
		}
	}
}

// Done is closed when the read loop exits
func (c *Client) Done() <-chan struct{} {
	return c.done
}

func (c *Client) IsConnected() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.connected && !c.closed
}

// Close sends a close frame and tears the connection down. Idempotent.
func (c *Client) Close() error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil
	}
	c.closed = true
	conn := c.conn
	c.mu.Unlock()

	var err error
	if conn != nil {
		c.writeMu.Lock()
		_ = conn.SetWriteDeadline(time.Now().Add(time.Second))
		_ = conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
		c.writeMu.Unlock()
		err = conn.Close()
	}

	c.signalDone()
	return err
}
