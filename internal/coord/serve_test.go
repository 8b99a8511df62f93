package coord

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/ledzpl/tabsync/internal/protocol"
)

func TestServeHandshakeHeartbeatAndDisconnect(t *testing.T) {
	coord := newTestCoordinator()
	client, server := protocol.Pipe()

	served := make(chan error, 1)
	go func() { served <- coord.Serve(context.Background(), server) }()

	ready := readCoordinatorMessage(t, client)
	require.IsType(t, protocol.WorkerReady{}, ready)
	id := ready.(protocol.WorkerReady).ConnectionID

	writeClientMessage(t, client, protocol.Ping{Worker: "tab"})
	pong := readCoordinatorMessage(t, client).(protocol.Pong)
	require.Len(t, pong.Connections, 1)
	require.Equal(t, id, pong.Connections[0].ConnectionID)
	require.True(t, pong.Connections[0].IsPrimary)
	require.Len(t, pong.Connections[0].Pings, 1)

	writeClientMessage(t, client, protocol.Disconnect{Worker: "tab"})

	select {
	case err := <-served:
		require.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for Serve to return")
	}
	require.Zero(t, coord.Len())
}

func TestServeUnregistersWhenPeerVanishes(t *testing.T) {
	coord := newTestCoordinator()
	clientA, serverA := protocol.Pipe()
	clientB, serverB := protocol.Pipe()

	servedA := make(chan error, 1)
	go func() { servedA <- coord.Serve(context.Background(), serverA) }()
	readCoordinatorMessage(t, clientA)
	go func() { _ = coord.Serve(context.Background(), serverB) }()
	readyB := readCoordinatorMessage(t, clientB).(protocol.WorkerReady)

	require.NoError(t, clientA.Close())

	select {
	case err := <-servedA:
		require.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for Serve to return")
	}

	require.Equal(t, 1, coord.Len())
	primary, ok := coord.Primary()
	require.True(t, ok)
	require.Equal(t, ConnectionID(readyB.ConnectionID), primary)
	require.NoError(t, clientB.Close())
}

func TestServeRelaysBetweenPorts(t *testing.T) {
	coord := newTestCoordinator()
	clientA, serverA := protocol.Pipe()
	clientB, serverB := protocol.Pipe()
	defer clientA.Close()
	defer clientB.Close()

	go func() { _ = coord.Serve(context.Background(), serverA) }()
	readCoordinatorMessage(t, clientA)
	go func() { _ = coord.Serve(context.Background(), serverB) }()
	readCoordinatorMessage(t, clientB)

	writeClientMessage(t, clientA, protocol.Broadcast{Payload: []byte(`{"n":1}`)})

	relayed, ok := readCoordinatorMessage(t, clientB).(protocol.Relayed)
	require.True(t, ok)
	require.JSONEq(t, `{"n":1}`, string(relayed.Payload))
}

func TestServeStopsOnContextCancel(t *testing.T) {
	coord := newTestCoordinator()
	client, server := protocol.Pipe()
	defer client.Close()

	ctx, cancel := context.WithCancel(context.Background())
	served := make(chan error, 1)
	go func() { served <- coord.Serve(ctx, server) }()
	readCoordinatorMessage(t, client)

	cancel()

	select {
	case <-served:
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for Serve to return")
	}
	require.Zero(t, coord.Len())
}

func TestQueuedPortDropsWhenFull(t *testing.T) {
	_, server := protocol.Pipe()
	port := newQueuedPort(server, 1)

	require.NoError(t, port.Post(protocol.Relayed{Worker: "w"}))
	require.ErrorIs(t, port.Post(protocol.Relayed{Worker: "w"}), ErrPortBusy)

	require.NoError(t, port.Close())
	require.ErrorIs(t, port.Post(protocol.Relayed{Worker: "w"}), ErrPortClosed)
	require.NoError(t, port.Close())
}

func readCoordinatorMessage(t *testing.T, conn protocol.Conn) protocol.CoordinatorMessage {
	t.Helper()

	type result struct {
		frame []byte
		err   error
	}
	done := make(chan result, 1)
	go func() {
		frame, err := conn.ReadFrame()
		done <- result{frame, err}
	}()

	select {
	case res := <-done:
		require.NoError(t, res.err)
		msg, ok := protocol.DecodeCoordinator(res.frame)
		require.True(t, ok, "undecodable frame %q", res.frame)
		return msg
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for frame")
		return nil
	}
}

func writeClientMessage(t *testing.T, conn protocol.Conn, msg protocol.ClientMessage) {
	t.Helper()
	frame, err := protocol.Encode(msg)
	require.NoError(t, err)
	require.NoError(t, conn.WriteFrame(frame))
}
