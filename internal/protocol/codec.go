package protocol

import (
	"bytes"
	"encoding/json"
	"fmt"
)

var null = json.RawMessage("null")

// Encode serializes m as a JSON object whose "type" field carries the
// discriminator.
func Encode(m Message) ([]byte, error) {
	switch v := m.(type) {
	case Bootstrap:
		return tag(v.Type(), v)
	case Ping:
		return tag(v.Type(), v)
	case VisibilityChange:
		return tag(v.Type(), v)
	case Broadcast:
		if len(v.Payload) == 0 {
			v.Payload = null
		}
		return tag(v.Type(), v)
	case Disconnect:
		return tag(v.Type(), v)
	case WorkerReady:
		return tag(v.Type(), v)
	case Pong:
		if v.Connections == nil {
			v.Connections = []ConnectionSummary{}
		}
		return tag(v.Type(), v)
	case Relayed:
		if len(v.Payload) == 0 {
			v.Payload = null
		}
		return tag(v.Type(), v)
	default:
		return nil, fmt.Errorf("protocol: cannot encode %T", m)
	}
}

// tag marshals body and prepends the type field. body always encodes to a
// JSON object.
func tag(typ string, body any) ([]byte, error) {
	raw, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("protocol: encode %s: %w", typ, err)
	}
	head, err := json.Marshal(typ)
	if err != nil {
		return nil, err
	}

	var buf bytes.Buffer
	buf.Grow(len(raw) + len(head) + 10)
	buf.WriteString(`{"type":`)
	buf.Write(head)
	if len(raw) > 2 {
		buf.WriteByte(',')
		buf.Write(raw[1:])
	} else {
		buf.WriteByte('}')
	}
	return buf.Bytes(), nil
}

// DecodeClient parses a frame sent by a client adapter. ok is false for
// anything the coordinator should ignore: frames that are not JSON objects,
// frames without a string "type", unknown types, and known types missing a
// required field.
func DecodeClient(data []byte) (msg ClientMessage, ok bool) {
	typ, fields, ok := envelope(data)
	if !ok {
		return nil, false
	}

	switch typ {
	case TypeBootstrap:
		var m Bootstrap
		optional(fields, "worker", &m.Worker)
		return m, true
	case TypePing:
		var m Ping
		optional(fields, "worker", &m.Worker)
		optional(fields, "timestamp", &m.Timestamp)
		return m, true
	case TypeVisibilityChange:
		var hidden *bool
		if raw, found := fields["isTabHidden"]; !found || json.Unmarshal(raw, &hidden) != nil || hidden == nil {
			return nil, false
		}
		m := VisibilityChange{IsTabHidden: *hidden}
		optional(fields, "worker", &m.Worker)
		return m, true
	case TypeBroadcast:
		payload, found := fields["payload"]
		if !found {
			payload = null
		}
		return Broadcast{Payload: payload}, true
	case TypeDisconnect:
		var m Disconnect
		optional(fields, "worker", &m.Worker)
		return m, true
	default:
		return nil, false
	}
}

// DecodeCoordinator parses a frame sent by the coordinator, with the same
// leniency rules as DecodeClient.
func DecodeCoordinator(data []byte) (msg CoordinatorMessage, ok bool) {
	typ, fields, ok := envelope(data)
	if !ok {
		return nil, false
	}

	switch typ {
	case TypeWorkerReady:
		var m WorkerReady
		if !required(fields, "connectionId", &m.ConnectionID) {
			return nil, false
		}
		optional(fields, "worker", &m.Worker)
		optional(fields, "connectedAt", &m.ConnectedAt)
		optional(fields, "connections", &m.Connections)
		return m, true
	case TypePong:
		var m Pong
		if !required(fields, "connections", &m.Connections) {
			return nil, false
		}
		if m.Connections == nil {
			m.Connections = []ConnectionSummary{}
		}
		optional(fields, "worker", &m.Worker)
		optional(fields, "timestamp", &m.Timestamp)
		return m, true
	case TypeBroadcast:
		m := Relayed{Payload: null}
		if payload, found := fields["payload"]; found {
			m.Payload = payload
		}
		optional(fields, "worker", &m.Worker)
		return m, true
	default:
		return nil, false
	}
}

func envelope(data []byte) (string, map[string]json.RawMessage, bool) {
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(data, &fields); err != nil || fields == nil {
		return "", nil, false
	}
	var typ string
	if !required(fields, "type", &typ) {
		return "", nil, false
	}
	return typ, fields, true
}

func required(fields map[string]json.RawMessage, key string, dst any) bool {
	raw, found := fields[key]
	if !found || bytes.Equal(raw, null) {
		return false
	}
	return json.Unmarshal(raw, dst) == nil
}

// optional leaves dst untouched when the field is absent or mistyped.
func optional(fields map[string]json.RawMessage, key string, dst any) {
	_ = required(fields, key, dst)
}
