package server

import (
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

const (
	maxMessageSize = 10 << 20
	pongWait       = 20 * time.Second
	writeWait      = 10 * time.Second
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  4096,
	WriteBufferSize: 64 << 10,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

// handleWS upgrades any request on the WebSocket port and serves it until
// the client goes away.
func (s *Server) handleWS(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.log.Debug().Err(err).Str("remote", r.RemoteAddr).Msg("websocket upgrade failed")
		return
	}
	ch := newWSChannel(conn, s.pingInterval+pongWait)
	if err := s.manager.Serve(r.Context(), ch); err != nil {
		s.log.Debug().Err(err).Str("remote", r.RemoteAddr).Msg("session refused")
	}
}

// wsChannel adapts a gorilla connection to clients.Channel.
type wsChannel struct {
	conn *websocket.Conn

	// mu orders Interrupt against the pong handler so a late pong cannot
	// push the deadline back out after an interrupt.
	mu          sync.Mutex
	interrupted bool

	closeOnce sync.Once
	closeErr  error
}

func newWSChannel(conn *websocket.Conn, readWait time.Duration) *wsChannel {
	conn.SetReadLimit(maxMessageSize)
	_ = conn.SetReadDeadline(time.Now().Add(readWait))
	c := &wsChannel{conn: conn}
	conn.SetPongHandler(func(string) error {
		c.mu.Lock()
		defer c.mu.Unlock()
		if c.interrupted {
			return nil
		}
		return conn.SetReadDeadline(time.Now().Add(readWait))
	})
	return c
}

func (c *wsChannel) ReadMessage() ([]byte, error) {
	_, data, err := c.conn.ReadMessage()
	return data, err
}

func (c *wsChannel) WriteFrame(frame []byte) error {
	_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
	return c.conn.WriteMessage(websocket.BinaryMessage, frame)
}

func (c *wsChannel) Ping() error {
	return c.conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(writeWait))
}

func (c *wsChannel) Interrupt() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.interrupted = true
	_ = c.conn.SetReadDeadline(time.Now())
}

func (c *wsChannel) CloseWithReason(code int, reason string) error {
	msg := websocket.FormatCloseMessage(code, reason)
	_ = c.conn.WriteControl(websocket.CloseMessage, msg, time.Now().Add(writeWait))
	return c.Close()
}

func (c *wsChannel) Close() error {
	c.closeOnce.Do(func() { c.closeErr = c.conn.Close() })
	return c.closeErr
}

func (c *wsChannel) RemoteAddr() string { return c.conn.RemoteAddr().String() }
