package protocol

import (
	"encoding/json"
	"time"
)

// DefaultWorkerName labels messages when no explicit name is configured.
const DefaultWorkerName = "browser tabs shared worker"

// Message type discriminators.
const (
	TypeBootstrap        = "bootstrap"
	TypePing             = "ping"
	TypeVisibilityChange = "visibility-change"
	TypeBroadcast        = "broadcast"
	TypeDisconnect       = "disconnect"
	TypeWorkerReady      = "worker-ready"
	TypePong             = "pong"
)

// Message is any value that can travel over a port.
type Message interface {
	Type() string
}

// ClientMessage is sent by a client adapter to the coordinator.
type ClientMessage interface {
	Message
	clientMessage()
}

// CoordinatorMessage is sent by the coordinator to a client adapter.
type CoordinatorMessage interface {
	Message
	coordinatorMessage()
}

// Bootstrap announces that a client intends to join.
type Bootstrap struct {
	Worker string `json:"worker,omitempty"`
}

// Ping is the periodic heartbeat.
type Ping struct {
	Worker    string `json:"worker,omitempty"`
	Timestamp int64  `json:"timestamp,omitempty"`
}

// VisibilityChange reports whether the client is currently hidden.
type VisibilityChange struct {
	Worker      string `json:"worker,omitempty"`
	IsTabHidden bool   `json:"isTabHidden"`
}

// Broadcast asks the coordinator to relay Payload to every other client.
type Broadcast struct {
	Payload json.RawMessage `json:"payload"`
}

// Disconnect is a graceful leave.
type Disconnect struct {
	Worker string `json:"worker,omitempty"`
}

// WorkerReady acknowledges a registration. It is always the first message a
// connection receives.
type WorkerReady struct {
	Worker       string `json:"worker"`
	ConnectionID uint64 `json:"connectionId"`
	ConnectedAt  int64  `json:"connectedAt"`
	Connections  int    `json:"connections"`
}

// Pong carries the roster snapshot in answer to a Ping.
type Pong struct {
	Worker      string              `json:"worker"`
	Timestamp   int64               `json:"timestamp"`
	Connections []ConnectionSummary `json:"connections"`
}

// Relayed is a broadcast payload forwarded from another client.
type Relayed struct {
	Worker  string          `json:"worker"`
	Payload json.RawMessage `json:"payload"`
}

// ConnectionSummary describes one registered connection inside a Pong.
type ConnectionSummary struct {
	ConnectionID uint64  `json:"connectionId"`
	ConnectedAt  int64   `json:"connectedAt"`
	Pings        []int64 `json:"pings"`
	IsTabHidden  bool    `json:"isTabHidden"`
	IsPrimary    bool    `json:"isPrimary"`
}

func (Bootstrap) Type() string        { return TypeBootstrap }
func (Ping) Type() string             { return TypePing }
func (VisibilityChange) Type() string { return TypeVisibilityChange }
func (Broadcast) Type() string        { return TypeBroadcast }
func (Disconnect) Type() string       { return TypeDisconnect }
func (WorkerReady) Type() string      { return TypeWorkerReady }
func (Pong) Type() string             { return TypePong }
func (Relayed) Type() string          { return TypeBroadcast }

func (Bootstrap) clientMessage()        {}
func (Ping) clientMessage()             {}
func (VisibilityChange) clientMessage() {}
func (Broadcast) clientMessage()        {}
func (Disconnect) clientMessage()       {}

func (WorkerReady) coordinatorMessage() {}
func (Pong) coordinatorMessage()        {}
func (Relayed) coordinatorMessage()     {}

// Millis converts t to the Unix millisecond timestamps used on the wire.
func Millis(t time.Time) int64 {
	return t.UnixMilli()
}

// FromMillis is the inverse of Millis.
func FromMillis(ms int64) time.Time {
	return time.UnixMilli(ms)
}
