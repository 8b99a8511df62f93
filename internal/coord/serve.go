package coord

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"

	"github.com/ledzpl/tabsync/internal/protocol"
)

// Serve registers conn as a new connection and feeds its frames to the
// coordinator until the peer goes away or ctx is cancelled. The connection is
// unregistered on return whether or not the client said disconnect.
func (c *Coordinator) Serve(ctx context.Context, conn protocol.Conn) error {
	port := newQueuedPort(conn, c.outboxSize)
	pumped := make(chan struct{})
	go func() {
		defer close(pumped)
		_ = port.pump()
	}()

	shutdown := make(chan struct{})
	defer close(shutdown)
	go func() {
		select {
		case <-ctx.Done():
			_ = conn.Close()
		case <-shutdown:
		}
	}()

	self := c.Register(port)
	err := c.readLoop(self.ID, conn)

	c.Unregister(self.ID)
	_ = conn.Close()
	<-pumped

	if err != nil && ctx.Err() != nil {
		return ctx.Err()
	}
	return err
}

func (c *Coordinator) readLoop(id ConnectionID, conn protocol.Conn) error {
	for {
		frame, err := conn.ReadFrame()
		if err != nil {
			if isClosed(err) {
				return nil
			}
			return fmt.Errorf("coord: read from connection %d: %w", id, err)
		}
		c.HandleFrame(id, frame)
	}
}

func isClosed(err error) bool {
	return errors.Is(err, io.EOF) ||
		errors.Is(err, protocol.ErrClosed) ||
		errors.Is(err, net.ErrClosed)
}
