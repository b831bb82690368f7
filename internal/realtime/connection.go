package realtime

import (
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
)

const (
	writeWait  = 10 * time.Second
	pingPeriod = 30 * time.Second

	// sendBuffer is how many frames may queue for a slow client before the
	// connection is dropped.
	sendBuffer = 128
)

var (
	ErrSessionClosed  = errors.New("session closed")
	ErrSendBufferFull = errors.New("send buffer full")
)

// Session is one connected client as seen by the Hub.
type Session interface {
	ID() string
	Send(payload []byte) error
}

// Connection is a websocket Session. Writes go through a buffered channel
// drained by a single goroutine, since gorilla allows one concurrent writer.
type Connection struct {
	id     string
	userID uuid.UUID

	ws   *websocket.Conn
	send chan []byte
	once sync.Once
	done chan struct{}
}

// NewConnection wraps ws. userID may be uuid.Nil when auth is disabled.
func NewConnection(userID uuid.UUID, ws *websocket.Conn) *Connection {
	return &Connection{
		id:     uuid.NewString(),
		userID: userID,
		ws:     ws,
		send:   make(chan []byte, sendBuffer),
		done:   make(chan struct{}),
	}
}

func (c *Connection) ID() string { return c.id }

func (c *Connection) UserID() uuid.UUID { return c.userID }

// Start launches the write loop. Call it once.
func (c *Connection) Start() {
	go c.writeLoop()
}

// Send queues payload. A full buffer closes the connection: the client is
// too slow to keep up and will have to reload history.
func (c *Connection) Send(payload []byte) error {
	select {
	case <-c.done:
		return ErrSessionClosed
	default:
	}

	select {
	case <-c.done:
		return ErrSessionClosed
	case c.send <- payload:
		return nil
	default:
		c.CloseWith(websocket.ClosePolicyViolation, "send buffer full")
		return ErrSendBufferFull
	}
}

// Done is closed once the connection is closed.
func (c *Connection) Done() <-chan struct{} { return c.done }

// Close sends a normal close frame and releases the socket.
func (c *Connection) Close() {
	c.CloseWith(websocket.CloseNormalClosure, "")
}

// CloseWith closes with the given code. Only the first call has an effect.
// The send channel is never closed, so a racing Send cannot panic.
func (c *Connection) CloseWith(code int, reason string) {
	c.once.Do(func() {
		close(c.done)
		_ = c.ws.WriteControl(websocket.CloseMessage, websocket.FormatCloseMessage(code, reason), time.Now().Add(writeWait))
		_ = c.ws.Close()
	})
}

func (c *Connection) writeLoop() {
	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()

	for {
		select {
		case <-c.done:
			return
		case msg := <-c.send:
			if err := c.write(websocket.TextMessage, msg); err != nil {
				c.CloseWith(websocket.CloseAbnormalClosure, "write failed")
				return
			}
		case <-ticker.C:
			if err := c.write(websocket.PingMessage, nil); err != nil {
				c.CloseWith(websocket.CloseAbnormalClosure, "ping failed")
				return
			}
		}
	}
}

func (c *Connection) write(messageType int, payload []byte) error {
	if err := c.ws.SetWriteDeadline(time.Now().Add(writeWait)); err != nil {
		return err
	}
	return c.ws.WriteMessage(messageType, payload)
}
