package coord

import (
	"errors"
	"fmt"
	"sync"

	"github.com/ledzpl/tabsync/internal/protocol"
)

var (
	// ErrPortClosed is returned when posting to a port that was closed.
	ErrPortClosed = errors.New("coord: port closed")
	// ErrPortBusy is returned when a port's outbound queue is full.
	ErrPortBusy = errors.New("coord: port outbox full")
)

// Port is the coordinator's handle on one client. Post must not block.
type Port interface {
	Post(msg protocol.CoordinatorMessage) error
	Close() error
}

// DefaultOutboxSize is the number of frames a queuedPort buffers.
const DefaultOutboxSize = 16

// queuedPort buffers encoded frames for a single writer goroutine so a slow
// peer never stalls the coordinator.
type queuedPort struct {
	conn protocol.Conn

	mu     sync.Mutex
	closed bool
	outbox chan []byte
}

func newQueuedPort(conn protocol.Conn, size int) *queuedPort {
	if size <= 0 {
		size = DefaultOutboxSize
	}
	return &queuedPort{
		conn:   conn,
		outbox: make(chan []byte, size),
	}
}

// Post encodes msg and places it on the outbound queue without blocking.
func (p *queuedPort) Post(msg protocol.CoordinatorMessage) error {
	frame, err := protocol.Encode(msg)
	if err != nil {
		return err
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	if p.closed {
		return ErrPortClosed
	}
	select {
	case p.outbox <- frame:
		return nil
	default:
		return fmt.Errorf("%w: dropped %s", ErrPortBusy, msg.Type())
	}
}

// Close stops accepting frames. Frames already queued are still written.
func (p *queuedPort) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if !p.closed {
		p.closed = true
		close(p.outbox)
	}
	return nil
}

// pump writes queued frames until the port is closed or a write fails, then
// closes the underlying connection.
func (p *queuedPort) pump() error {
	defer p.conn.Close()

	for frame := range p.outbox {
		if err := p.conn.WriteFrame(frame); err != nil {
			return err
		}
	}
	return nil
}
