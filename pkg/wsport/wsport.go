package wsport

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/ledzpl/tabsync/internal/protocol"
)

const writeWait = 10 * time.Second

// Conn frames a WebSocket connection: one text message per frame.
type Conn struct {
	ws *websocket.Conn

	mu        sync.Mutex
	closeOnce sync.Once
	closeErr  error
}

func wrap(ws *websocket.Conn) *Conn {
	ws.SetReadLimit(protocol.MaxFrameSize)
	return &Conn{ws: ws}
}

// ReadFrame returns the next text or binary message. A close from the peer is
// reported as io.EOF.
func (c *Conn) ReadFrame() ([]byte, error) {
	for {
		kind, data, err := c.ws.ReadMessage()
		if err != nil {
			var closeErr *websocket.CloseError
			if errors.As(err, &closeErr) {
				return nil, io.EOF
			}
			return nil, err
		}
		if kind == websocket.TextMessage || kind == websocket.BinaryMessage {
			return data, nil
		}
	}
}

// WriteFrame sends frame as a text message.
func (c *Conn) WriteFrame(frame []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if err := c.ws.SetWriteDeadline(time.Now().Add(writeWait)); err != nil {
		return err
	}
	return c.ws.WriteMessage(websocket.TextMessage, frame)
}

// Close sends a normal close frame and closes the socket.
func (c *Conn) Close() error {
	c.closeOnce.Do(func() {
		c.mu.Lock()
		_ = c.ws.WriteControl(
			websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
			time.Now().Add(time.Second),
		)
		c.mu.Unlock()
		c.closeErr = c.ws.Close()
	})
	return c.closeErr
}

// ConnHandler serves one upgraded connection. The connection is closed when
// it returns.
type ConnHandler func(r *http.Request, conn *Conn)

// Handler upgrades HTTP requests to WebSocket ports.
type Handler struct {
	upgrader websocket.Upgrader
	serve    ConnHandler
	logger   *log.Logger
}

// NewHandler builds a Handler. Requests from any origin are accepted when
// origins is empty.
func NewHandler(serve ConnHandler, origins []string, logger *log.Logger) *Handler {
	if logger == nil {
		logger = log.Default()
	}
	h := &Handler{serve: serve, logger: logger}
	h.upgrader.CheckOrigin = func(r *http.Request) bool {
		if len(origins) == 0 {
			return true
		}
		origin := r.Header.Get("Origin")
		for _, allowed := range origins {
			if origin == allowed {
				return true
			}
		}
		return false
	}
	return h
}

func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	ws, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		// Upgrade already replied with an HTTP error.
		h.logger.Printf("wsport: upgrade %s: %v", r.RemoteAddr, err)
		return
	}
	h.logger.Printf("wsport: new connection from %s", ws.RemoteAddr())

	conn := wrap(ws)
	defer conn.Close()
	h.serve(r, conn)
}

// Dial opens a WebSocket port at url (ws:// or wss://).
func Dial(ctx context.Context, url string) (*Conn, error) {
	ws, resp, err := websocket.DefaultDialer.DialContext(ctx, url, nil)
	if err != nil {
		if resp != nil {
			return nil, fmt.Errorf("wsport: dial %q: %w (status %s)", url, err, resp.Status)
		}
		return nil, fmt.Errorf("wsport: dial %q: %w", url, err)
	}
	return wrap(ws), nil
}
