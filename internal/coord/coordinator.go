package coord

import (
	"encoding/json"
	"log"
	"sync"

	"github.com/ledzpl/tabsync/internal/protocol"
)

// Coordinator owns the connection registry, elects the primary and relays
// broadcasts. All operations are serialized by one lock and are total: an id
// that is not registered turns the operation into a no-op.
type Coordinator struct {
	mu      sync.Mutex
	conns   map[ConnectionID]*connection
	order   []*connection
	primary ConnectionID
	lastID  ConnectionID

	name       string
	clock      Clock
	logger     *log.Logger
	outboxSize int
}

// Option configures a Coordinator.
type Option func(*Coordinator)

// WithClock overrides the time source.
func WithClock(clock Clock) Option {
	return func(c *Coordinator) {
		if clock != nil {
			c.clock = clock
		}
	}
}

// WithLogger sets the logger used for registry and delivery events.
func WithLogger(logger *log.Logger) Option {
	return func(c *Coordinator) {
		if logger != nil {
			c.logger = logger
		}
	}
}

// WithName sets the worker label stamped on outgoing messages.
func WithName(name string) Option {
	return func(c *Coordinator) {
		if name != "" {
			c.name = name
		}
	}
}

// WithOutboxSize sets the per-port queue length used by Serve.
func WithOutboxSize(size int) Option {
	return func(c *Coordinator) {
		if size > 0 {
			c.outboxSize = size
		}
	}
}

// New constructs an empty coordinator.
func New(opts ...Option) *Coordinator {
	c := &Coordinator{
		conns:      make(map[ConnectionID]*connection),
		name:       protocol.DefaultWorkerName,
		clock:      systemClock{},
		logger:     log.Default(),
		outboxSize: DefaultOutboxSize,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Register adds a connection for port, re-runs the election preferring the
// newcomer and posts the worker-ready acknowledgment to it.
func (c *Coordinator) Register(port Port) Connection {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.lastID++
	conn := newConnection(c.lastID, port, c.clock.Now())
	c.conns[conn.id] = conn
	c.order = append(c.order, conn)
	c.elect(conn.id)

	c.post(conn, protocol.WorkerReady{
		Worker:       c.name,
		ConnectionID: uint64(conn.id),
		ConnectedAt:  protocol.Millis(conn.connectedAt),
		Connections:  len(c.order),
	})
	c.logger.Printf("coord: connection %d registered (%d connected, primary %d)", conn.id, len(c.order), c.primary)

	return conn.view()
}

// Unregister removes the connection and closes its port. Unknown ids are
// ignored.
func (c *Coordinator) Unregister(id ConnectionID) {
	c.mu.Lock()
	conn, ok := c.conns[id]
	if ok {
		delete(c.conns, id)
		for i, existing := range c.order {
			if existing == conn {
				c.order = append(c.order[:i], c.order[i+1:]...)
				break
			}
		}
	}
	c.elect(NoConnection)
	remaining, primary := len(c.order), c.primary
	c.mu.Unlock()

	if !ok {
		return
	}
	if err := conn.port.Close(); err != nil {
		c.logger.Printf("coord: close port for connection %d: %v", id, err)
	}
	c.logger.Printf("coord: connection %d unregistered (%d connected, primary %d)", id, remaining, primary)
}

// RecordHeartbeat appends a heartbeat for id and answers it with a roster
// snapshot sent to id only.
func (c *Coordinator) RecordHeartbeat(id ConnectionID) {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.clock.Now()
	conn, ok := c.conns[id]
	if ok {
		conn.heartbeats.Append(now)
	}
	c.elect(NoConnection)
	if !ok {
		return
	}

	roster := make([]protocol.ConnectionSummary, 0, len(c.order))
	for _, existing := range c.order {
		roster = append(roster, existing.summary())
	}
	c.post(conn, protocol.Pong{
		Worker:      c.name,
		Timestamp:   protocol.Millis(now),
		Connections: roster,
	})
}

// SetVisibility records whether id is hidden. A connection that just became
// visible is preferred by the election.
func (c *Coordinator) SetVisibility(id ConnectionID, hidden bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	preferred := NoConnection
	if conn, ok := c.conns[id]; ok {
		conn.hidden = hidden
		if !hidden {
			preferred = id
		}
	}
	c.elect(preferred)
}

// Relay forwards payload to every connection except from. An empty payload is
// sent as JSON null.
func (c *Coordinator) Relay(from ConnectionID, payload json.RawMessage) {
	msg := protocol.Relayed{Worker: c.name, Payload: payload}

	c.mu.Lock()
	defer c.mu.Unlock()

	for _, conn := range c.order {
		if conn.id == from {
			continue
		}
		c.post(conn, msg)
	}
}

// Roster returns every registered connection in registration order.
func (c *Coordinator) Roster() []Connection {
	c.mu.Lock()
	defer c.mu.Unlock()

	out := make([]Connection, 0, len(c.order))
	for _, conn := range c.order {
		out = append(out, conn.view())
	}
	return out
}

// Primary reports the current primary, if any connection is registered.
func (c *Coordinator) Primary() (ConnectionID, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.primary, c.primary != NoConnection
}

// Len returns the number of registered connections.
func (c *Coordinator) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.order)
}

// elect re-runs the election and refreshes every primary flag. Callers hold
// c.mu.
func (c *Coordinator) elect(preferred ConnectionID) {
	candidates := make([]Candidate, len(c.order))
	for i, conn := range c.order {
		candidates[i] = Candidate{ID: conn.id, Hidden: conn.hidden}
	}

	c.primary = Elect(candidates, c.primary, preferred)
	for _, conn := range c.order {
		conn.primary = conn.id == c.primary
	}
}

// post delivers msg to one connection. A failing port only affects itself.
func (c *Coordinator) post(conn *connection, msg protocol.CoordinatorMessage) {
	if err := conn.port.Post(msg); err != nil {
		c.logger.Printf("coord: post %s to connection %d: %v", msg.Type(), conn.id, err)
	}
}
