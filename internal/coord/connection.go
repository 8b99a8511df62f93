package coord

import (
	"time"

	"github.com/ledzpl/tabsync/internal/protocol"
)

// Connection is a point-in-time view of one registered client.
type Connection struct {
	ID          ConnectionID
	ConnectedAt time.Time
	Heartbeats  []time.Time
	Hidden      bool
	Primary     bool
}

// connection is the registry entry. Only the coordinator touches it, under
// its lock.
type connection struct {
	id          ConnectionID
	port        Port
	connectedAt time.Time
	heartbeats  *heartbeatLog
	hidden      bool
	primary     bool
}

func newConnection(id ConnectionID, port Port, now time.Time) *connection {
	return &connection{
		id:          id,
		port:        port,
		connectedAt: now,
		heartbeats:  newHeartbeatLog(MaxHeartbeats),
	}
}

func (c *connection) view() Connection {
	return Connection{
		ID:          c.id,
		ConnectedAt: c.connectedAt,
		Heartbeats:  c.heartbeats.Snapshot(),
		Hidden:      c.hidden,
		Primary:     c.primary,
	}
}

func (c *connection) summary() protocol.ConnectionSummary {
	return protocol.ConnectionSummary{
		ConnectionID: uint64(c.id),
		ConnectedAt:  protocol.Millis(c.connectedAt),
		Pings:        c.heartbeats.Millis(),
		IsTabHidden:  c.hidden,
		IsPrimary:    c.primary,
	}
}
