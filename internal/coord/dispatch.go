package coord

import "github.com/ledzpl/tabsync/internal/protocol"

// Dispatch applies one client message sent by connection id.
func (c *Coordinator) Dispatch(id ConnectionID, msg protocol.ClientMessage) {
	switch m := msg.(type) {
	case protocol.Bootstrap:
		// Registration already happened when the port was opened.
	case protocol.Ping:
		c.RecordHeartbeat(id)
	case protocol.VisibilityChange:
		c.SetVisibility(id, m.IsTabHidden)
	case protocol.Broadcast:
		c.Relay(id, m.Payload)
	case protocol.Disconnect:
		c.Unregister(id)
	}
}

// HandleFrame decodes a raw frame from connection id and dispatches it.
// Frames that do not decode are dropped without a reply.
func (c *Coordinator) HandleFrame(id ConnectionID, frame []byte) {
	msg, ok := protocol.DecodeClient(frame)
	if !ok {
		return
	}
	c.Dispatch(id, msg)
}
