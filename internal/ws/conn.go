package ws

import (
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
)

const (
	writeTimeout = 10 * time.Second
	pingInterval = 54 * time.Second
	readTimeout  = 60 * time.Second
)

// Conn is the in-process handle for one client socket. Outbound events are
// enqueued on Send and drained by WritePump so a slow peer never blocks the
// goroutine doing the broadcast.
type Conn struct {
	ID   string
	Send chan []byte

	ws  *websocket.Conn
	log zerolog.Logger

	mu            sync.Mutex
	sessionID     string
	participantID string
	nickname      string

	closeOnce sync.Once
	done      chan struct{}
}

func NewConn(socket *websocket.Conn, buffer int, logger zerolog.Logger) *Conn {
	return &Conn{
		ID:   uuid.NewString(),
		Send: make(chan []byte, buffer),
		ws:   socket,
		log:  logger,
		done: make(chan struct{}),
	}
}

func (c *Conn) SetIdentity(sessionID, participantID, nickname string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.sessionID = sessionID
	c.participantID = participantID
	c.nickname = nickname
}

func (c *Conn) ClearIdentity() {
	c.SetIdentity("", "", "")
}

func (c *Conn) Identity() (sessionID, participantID, nickname string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.sessionID, c.participantID, c.nickname
}

// enqueue reports false when the conn is closed or its queue is full; the
// caller treats either as a dead connection.
func (c *Conn) enqueue(data []byte) bool {
	select {
	case <-c.done:
		return false
	default:
	}
	select {
	case c.Send <- data:
		return true
	default:
		return false
	}
}

func (c *Conn) Close() {
	c.closeOnce.Do(func() {
		close(c.done)
		if c.ws != nil {
			c.ws.Close()
		}
	})
}

func (c *Conn) Closed() bool {
	select {
	case <-c.done:
		return true
	default:
		return false
	}
}

// WritePump drains the send queue onto the socket and keeps the peer alive
// with pings. Run as a goroutine per connection; exits on write failure or
// Close.
func (c *Conn) WritePump() {
	ticker := time.NewTicker(pingInterval)
	defer func() {
		ticker.Stop()
		c.Close()
	}()

	for {
		select {
		case <-c.done:
			c.ws.SetWriteDeadline(time.Now().Add(writeTimeout))
			c.ws.WriteMessage(websocket.CloseMessage, []byte{})
			return
		case data := <-c.Send:
			c.ws.SetWriteDeadline(time.Now().Add(writeTimeout))
			if err := c.ws.WriteMessage(websocket.TextMessage, data); err != nil {
				c.log.Debug().Err(err).Str("conn_id", c.ID).Msg("ws: write failed")
				return
			}
		case <-ticker.C:
			c.ws.SetWriteDeadline(time.Now().Add(writeTimeout))
			if err := c.ws.WriteMessage(websocket.PingMessage, nil); err != nil {
				c.log.Debug().Err(err).Str("conn_id", c.ID).Msg("ws: ping failed")
				return
			}
		}
	}
}

// ReadMessage blocks for the next text frame, renewing the read deadline per
// frame and on pongs.
func (c *Conn) ReadMessage() ([]byte, error) {
	c.ws.SetReadDeadline(time.Now().Add(readTimeout))
	_, data, err := c.ws.ReadMessage()
	return data, err
}

// SetupRead applies the read limits once before the read loop starts.
func (c *Conn) SetupRead() {
	c.ws.SetReadLimit(64 << 10)
	c.ws.SetReadDeadline(time.Now().Add(readTimeout))
	c.ws.SetPongHandler(func(string) error {
		c.ws.SetReadDeadline(time.Now().Add(readTimeout))
		return nil
	})
}
