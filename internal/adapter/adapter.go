package adapter

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/ledzpl/tabsync/internal/protocol"
)

// ErrClosed is returned by operations on an adapter that has shut down.
var ErrClosed = errors.New("adapter: closed")

// DefaultInterval is the delay between heartbeats.
const DefaultInterval = time.Second

// State is the adapter lifecycle position.
type State int

const (
	StateConnecting State = iota
	StateReady
	StateHeartbeating
	StateDisconnecting
	StateClosed
)

func (s State) String() string {
	switch s {
	case StateConnecting:
		return "connecting"
	case StateReady:
		return "ready"
	case StateHeartbeating:
		return "heartbeating"
	case StateDisconnecting:
		return "disconnecting"
	case StateClosed:
		return "closed"
	default:
		return fmt.Sprintf("State(%d)", int(s))
	}
}

// EventKind distinguishes adapter notifications.
type EventKind int

const (
	EventRoster EventKind = iota + 1
	EventBroadcast
)

// Event notifies the host that a roster snapshot or a relayed payload arrived.
type Event struct {
	Kind    EventKind
	Roster  []protocol.ConnectionSummary
	Payload json.RawMessage
}

// Adapter is the client side of a coordinator connection.
type Adapter struct {
	conn     protocol.Conn
	name     string
	interval time.Duration
	logger   *log.Logger

	// writeMu orders frames on the wire. It is taken before mu, never after.
	writeMu sync.Mutex

	mu          sync.Mutex
	state       State
	id          uint64
	connectedAt time.Time
	hidden      bool
	reported    *bool
	roster      []protocol.ConnectionSummary
	timer       *time.Timer

	ready     chan struct{}
	readyOnce sync.Once
	events    chan Event
	done      chan struct{}
}

// Option configures an Adapter.
type Option func(*Adapter)

// WithName sets the worker label sent with every message.
func WithName(name string) Option {
	return func(a *Adapter) {
		if name != "" {
			a.name = name
		}
	}
}

// WithInterval sets the heartbeat delay.
func WithInterval(d time.Duration) Option {
	return func(a *Adapter) {
		if d > 0 {
			a.interval = d
		}
	}
}

// WithLogger sets the logger for handshake and send failures.
func WithLogger(logger *log.Logger) Option {
	return func(a *Adapter) {
		if logger != nil {
			a.logger = logger
		}
	}
}

// WithHidden sets the host visibility reported once the handshake completes.
func WithHidden(hidden bool) Option {
	return func(a *Adapter) {
		a.hidden = hidden
	}
}

// WithEventBuffer sets how many undelivered events are kept before new ones
// are dropped.
func WithEventBuffer(size int) Option {
	return func(a *Adapter) {
		if size > 0 {
			a.events = make(chan Event, size)
		}
	}
}

// Connect sends the bootstrap message over conn and starts receiving. A
// failure to bootstrap closes conn and is returned to the caller; the adapter
// never retries.
func Connect(conn protocol.Conn, opts ...Option) (*Adapter, error) {
	a := &Adapter{
		conn:     conn,
		name:     protocol.DefaultWorkerName,
		interval: DefaultInterval,
		logger:   log.Default(),
		state:    StateConnecting,
		ready:    make(chan struct{}),
		events:   make(chan Event, 16),
		done:     make(chan struct{}),
	}
	for _, opt := range opts {
		opt(a)
	}

	if err := a.send(protocol.Bootstrap{Worker: a.name}); err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("adapter: bootstrap: %w", err)
	}

	go a.receive()
	return a, nil
}

// Ready is closed once the coordinator acknowledged the connection.
func (a *Adapter) Ready() <-chan struct{} {
	return a.ready
}

// WaitReady blocks until the handshake completes, the adapter closes or ctx
// ends.
func (a *Adapter) WaitReady(ctx context.Context) error {
	select {
	case <-a.ready:
		return nil
	case <-a.done:
		return ErrClosed
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Done is closed when the adapter reaches StateClosed.
func (a *Adapter) Done() <-chan struct{} {
	return a.done
}

// Events delivers roster and broadcast notifications. Events are dropped when
// the host does not keep up. The channel is closed once the connection ends.
func (a *Adapter) Events() <-chan Event {
	return a.events
}

// State reports the lifecycle state.
func (a *Adapter) State() State {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.state
}

// ConnectionID returns the id assigned by the coordinator, once ready.
func (a *Adapter) ConnectionID() (uint64, bool) {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.id, a.id != 0
}

// ConnectedAt returns the registration time reported by the coordinator.
func (a *Adapter) ConnectedAt() time.Time {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.connectedAt
}

// Roster returns the last snapshot received from the coordinator.
func (a *Adapter) Roster() []protocol.ConnectionSummary {
	a.mu.Lock()
	defer a.mu.Unlock()
	return append([]protocol.ConnectionSummary(nil), a.roster...)
}

// IsPrimary reports whether the last snapshot marked this connection primary.
func (a *Adapter) IsPrimary() bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	for _, c := range a.roster {
		if c.ConnectionID == a.id {
			return c.IsPrimary
		}
	}
	return false
}

// SetHidden records a host visibility change and reports it to the
// coordinator when it differs from the last known value.
func (a *Adapter) SetHidden(hidden bool) {
	a.mu.Lock()
	a.hidden = hidden
	a.mu.Unlock()

	a.reportVisibility()
}

// reportVisibility sends the current host visibility unless the coordinator
// already has it. Reading the value and writing the frame happen under
// writeMu, so the last report on the wire always matches a.hidden.
func (a *Adapter) reportVisibility() {
	a.writeMu.Lock()
	defer a.writeMu.Unlock()

	a.mu.Lock()
	active := a.state == StateReady || a.state == StateHeartbeating
	hidden := a.hidden
	stale := a.reported == nil || *a.reported != hidden
	if active && stale {
		a.reported = &hidden
	}
	a.mu.Unlock()

	if !active || !stale {
		return
	}
	if err := a.writeLocked(protocol.VisibilityChange{Worker: a.name, IsTabHidden: hidden}); err != nil {
		a.logger.Printf("adapter: send %s: %v", protocol.TypeVisibilityChange, err)
	}
}

// Broadcast asks the coordinator to relay payload to every other client.
func (a *Adapter) Broadcast(payload any) error {
	raw, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("adapter: encode payload: %w", err)
	}
	if a.closing() {
		return ErrClosed
	}
	return a.send(protocol.Broadcast{Payload: raw})
}

// Close cancels the heartbeat, tells the coordinator we are leaving and tears
// down the connection. Delivery of the disconnect message is best-effort.
func (a *Adapter) Close() error {
	a.mu.Lock()
	if a.state == StateDisconnecting || a.state == StateClosed {
		a.mu.Unlock()
		return nil
	}
	a.state = StateDisconnecting
	if a.timer != nil {
		a.timer.Stop()
		a.timer = nil
	}
	a.mu.Unlock()

	a.sendBestEffort(protocol.Disconnect{Worker: a.name})
	err := a.conn.Close()
	a.finish()
	return err
}

func (a *Adapter) receive() {
	defer close(a.events)
	defer a.finish()

	for {
		frame, err := a.conn.ReadFrame()
		if err != nil {
			if !a.closing() {
				a.logger.Printf("adapter: connection lost: %v", err)
			}
			return
		}

		msg, ok := protocol.DecodeCoordinator(frame)
		if !ok {
			continue
		}
		switch m := msg.(type) {
		case protocol.WorkerReady:
			a.handleReady(m)
		case protocol.Pong:
			a.mu.Lock()
			a.roster = m.Connections
			a.mu.Unlock()
			a.emit(Event{Kind: EventRoster, Roster: append([]protocol.ConnectionSummary(nil), m.Connections...)})
		case protocol.Relayed:
			a.emit(Event{Kind: EventBroadcast, Payload: m.Payload})
		}
	}
}

func (a *Adapter) handleReady(m protocol.WorkerReady) {
	a.mu.Lock()
	if a.state != StateConnecting {
		a.mu.Unlock()
		return
	}
	a.id = m.ConnectionID
	a.connectedAt = protocol.FromMillis(m.ConnectedAt)
	a.state = StateReady
	a.mu.Unlock()

	a.readyOnce.Do(func() { close(a.ready) })
	a.logger.Printf("adapter: %s ready as connection %d (%d connected)", a.name, m.ConnectionID, m.Connections)

	a.reportVisibility()

	a.mu.Lock()
	if a.state == StateReady {
		a.state = StateHeartbeating
	}
	a.mu.Unlock()
	a.heartbeat()
}

// heartbeat sends one ping and re-arms a single-shot timer for the next, so
// a slow send never overlaps the following one.
func (a *Adapter) heartbeat() {
	a.writeMu.Lock()
	if a.State() != StateHeartbeating {
		// Close already queued disconnect; no ping may follow it.
		a.writeMu.Unlock()
		return
	}
	err := a.writeLocked(protocol.Ping{Worker: a.name, Timestamp: protocol.Millis(time.Now())})
	a.writeMu.Unlock()
	if err != nil {
		a.logger.Printf("adapter: send %s: %v", protocol.TypePing, err)
	}

	a.mu.Lock()
	defer a.mu.Unlock()
	if a.state == StateHeartbeating {
		a.timer = time.AfterFunc(a.interval, a.heartbeat)
	}
}

func (a *Adapter) emit(ev Event) {
	select {
	case a.events <- ev:
	default:
		// Host is not draining events; the snapshot stays readable via Roster.
	}
}

func (a *Adapter) send(msg protocol.ClientMessage) error {
	a.writeMu.Lock()
	defer a.writeMu.Unlock()
	return a.writeLocked(msg)
}

// writeLocked encodes and writes msg. Callers hold writeMu.
func (a *Adapter) writeLocked(msg protocol.ClientMessage) error {
	frame, err := protocol.Encode(msg)
	if err != nil {
		return err
	}
	return a.conn.WriteFrame(frame)
}

func (a *Adapter) sendBestEffort(msg protocol.ClientMessage) {
	if err := a.send(msg); err != nil {
		a.logger.Printf("adapter: send %s: %v", msg.Type(), err)
	}
}

func (a *Adapter) closing() bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.state == StateDisconnecting || a.state == StateClosed
}

// finish moves to StateClosed exactly once.
func (a *Adapter) finish() {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.state == StateClosed {
		return
	}
	a.state = StateClosed
	if a.timer != nil {
		a.timer.Stop()
		a.timer = nil
	}
	close(a.done)
}
