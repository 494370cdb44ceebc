package hub

import (
	"context"
	"log"
	"sync"
	"time"

	"retroboard/pkg/interfaces"
	"retroboard/pkg/types"
)

// DefaultQueueSize is the number of pending tasks the hub buffers
const DefaultQueueSize = 1000

// disconnectEnqueueTimeout bounds how long a read pump waits to hand over
// its disconnect when the queue is full
const disconnectEnqueueTimeout = 5 * time.Second

// Processor does the actual relay work. Every call happens on the hub
// goroutine, one at a time.
type Processor interface {
	HandleCommand(ctx context.Context, conn interfaces.Connection, env *types.Envelope)
	HandleDisconnect(ctx context.Context, conn interfaces.Connection)
}

type taskKind int

const (
	taskCommand taskKind = iota
	taskDisconnect
)

// task is one unit of queued relay work
type task struct {
	kind     taskKind
	conn     interfaces.Connection
	envelope *types.Envelope
	queuedAt time.Time
}

// Hub serializes all relay work on a single goroutine so every member of a
// room observes the same event order. Commands and disconnects share one
// FIFO queue, so a connection's disconnect is never handled before the
// commands it sent.
type Hub struct {
	tasks           chan task
	shutdownChannel chan struct{}
	done            chan struct{}

	processor Processor

	running   bool
	processed uint64
	mu        sync.RWMutex
}

// NewHub creates a new hub around processor
func NewHub(processor Processor) *Hub {
	return NewHubWithQueueSize(processor, DefaultQueueSize)
}

// NewHubWithQueueSize creates a hub with a custom queue depth
func NewHubWithQueueSize(processor Processor, size int) *Hub {
	if size <= 0 {
		size = DefaultQueueSize
	}
	return &Hub{
		tasks:     make(chan task, size),
		processor: processor,
	}
}

// Start begins hub processing
func (h *Hub) Start(ctx context.Context) error {
	h.mu.Lock()
	if h.running {
		h.mu.Unlock()
		return ErrHubAlreadyRunning
	}
	h.running = true
	h.shutdownChannel = make(chan struct{})
	h.done = make(chan struct{})
	shutdown, done := h.shutdownChannel, h.done
	h.mu.Unlock()

	log.Println("Starting relay hub...")

	go h.run(ctx, shutdown, done)

	return nil
}

// Stop shuts the hub down and waits for the task in flight to finish
func (h *Hub) Stop() error {
	h.mu.Lock()
	if !h.running {
		h.mu.Unlock()
		return ErrHubNotRunning
	}
	h.running = false
	close(h.shutdownChannel)
	done := h.done
	h.mu.Unlock()

	log.Println("Stopping relay hub...")
	<-done

	return nil
}

// IsRunning reports whether the hub accepts work
func (h *Hub) IsRunning() bool {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.running
}

// Dispatch queues a command frame. It never blocks: a full queue is
// reported to the caller.
func (h *Hub) Dispatch(conn interfaces.Connection, env *types.Envelope) error {
	if conn == nil {
		return ErrNilConnection
	}

	h.mu.RLock()
	defer h.mu.RUnlock()
	if !h.running {
		return ErrHubNotRunning
	}

	select {
	case h.tasks <- task{kind: taskCommand, conn: conn, envelope: env, queuedAt: time.Now()}:
		return nil
	default:
		return ErrQueueFull
	}
}

// Disconnect queues the departure of conn. Unlike commands, a disconnect
// waits for queue space so the room always learns that the member left.
func (h *Hub) Disconnect(conn interfaces.Connection) error {
	if conn == nil {
		return ErrNilConnection
	}

	h.mu.RLock()
	if !h.running {
		h.mu.RUnlock()
		return ErrHubNotRunning
	}
	shutdown := h.shutdownChannel
	h.mu.RUnlock()

	timer := time.NewTimer(disconnectEnqueueTimeout)
	defer timer.Stop()

	select {
	case h.tasks <- task{kind: taskDisconnect, conn: conn, queuedAt: time.Now()}:
		return nil
	case <-shutdown:
		return ErrHubNotRunning
	case <-timer.C:
		return ErrQueueFull
	}
}

// GetStats returns hub statistics for monitoring
func (h *Hub) GetStats() map[string]interface{} {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return map[string]interface{}{
		"running":         h.running,
		"queued":          len(h.tasks),
		"queue_capacity":  cap(h.tasks),
		"tasks_processed": h.processed,
	}
}

// run is the hub processing loop
func (h *Hub) run(ctx context.Context, shutdown <-chan struct{}, done chan<- struct{}) {
	defer close(done)
	defer log.Println("Hub processing stopped")

	for {
		select {
		case t := <-h.tasks:
			h.handle(ctx, t)

		case <-shutdown:
			log.Println("Hub shutdown requested")
			return

		case <-ctx.Done():
			log.Println("Hub context cancelled")
			h.mu.Lock()
			if h.running {
				h.running = false
				close(h.shutdownChannel)
			}
			h.mu.Unlock()
			return
		}
	}
}

// handle runs one task; a panic in the processor is logged and the loop continues
func (h *Hub) handle(ctx context.Context, t task) {
	defer func() {
		if r := recover(); r != nil {
			log.Printf("Relay task panicked: conn=%s kind=%d: %v", t.conn.GetID(), t.kind, r)
		}
		h.mu.Lock()
		h.processed++
		h.mu.Unlock()
	}()

	if wait := time.Since(t.queuedAt); wait > time.Second {
		log.Printf("Slow relay queue: conn=%s waited=%s", t.conn.GetID(), wait)
	}

	switch t.kind {
	case taskCommand:
		h.processor.HandleCommand(ctx, t.conn, t.envelope)
	case taskDisconnect:
		h.processor.HandleDisconnect(ctx, t.conn)
	}
}
