package wsport

import (
	"context"
	"io"
	"log"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/require"

	"github.com/ledzpl/tabsync/internal/protocol"
)

func TestDialExchangesFrames(t *testing.T) {
	url := startEchoServer(t, nil)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	conn, err := Dial(ctx, url)
	require.NoError(t, err)
	defer conn.Close()

	require.NoError(t, conn.WriteFrame([]byte(`{"type":"ping"}`)))
	frame, err := conn.ReadFrame()
	require.NoError(t, err)
	require.Equal(t, `{"type":"ping"}`, string(frame))
}

func TestPeerCloseReadsAsEOF(t *testing.T) {
	server := httptest.NewServer(NewHandler(func(_ *http.Request, conn *Conn) {
		_ = conn.WriteFrame([]byte("bye"))
	}, nil, quietLogger()))
	t.Cleanup(server.Close)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	conn, err := Dial(ctx, wsURL(server))
	require.NoError(t, err)
	defer conn.Close()

	frame, err := conn.ReadFrame()
	require.NoError(t, err)
	require.Equal(t, "bye", string(frame))

	_, err = conn.ReadFrame()
	require.ErrorIs(t, err, io.EOF)
}

func TestReadFrameRejectsOversizedMessage(t *testing.T) {
	server := httptest.NewServer(NewHandler(func(_ *http.Request, conn *Conn) {
		_ = conn.WriteFrame([]byte(strings.Repeat("x", protocol.MaxFrameSize+1)))
		_, _ = conn.ReadFrame()
	}, nil, quietLogger()))
	t.Cleanup(server.Close)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	conn, err := Dial(ctx, wsURL(server))
	require.NoError(t, err)
	defer conn.Close()

	_, err = conn.ReadFrame()
	require.ErrorIs(t, err, websocket.ErrReadLimit)
}

func TestHandlerRejectsUnknownOrigin(t *testing.T) {
	url := startEchoServer(t, []string{"https://app.example"})

	header := http.Header{"Origin": []string{"https://evil.example"}}
	_, resp, err := websocket.DefaultDialer.Dial(url, header)
	require.Error(t, err)
	require.NotNil(t, resp)
	require.Equal(t, http.StatusForbidden, resp.StatusCode)

	header.Set("Origin", "https://app.example")
	ws, _, err := websocket.DefaultDialer.Dial(url, header)
	require.NoError(t, err)
	require.NoError(t, ws.Close())
}

func startEchoServer(t *testing.T, origins []string) string {
	t.Helper()

	handler := NewHandler(func(_ *http.Request, conn *Conn) {
		for {
			frame, err := conn.ReadFrame()
			if err != nil {
				return
			}
			if err := conn.WriteFrame(frame); err != nil {
				return
			}
		}
	}, origins, quietLogger())

	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)
	return wsURL(server)
}

func wsURL(server *httptest.Server) string {
	return "ws" + strings.TrimPrefix(server.URL, "http")
}

func quietLogger() *log.Logger {
	return log.New(io.Discard, "", 0)
}
