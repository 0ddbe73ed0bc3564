package gateway

import (
	"sync"
	"sync/atomic"
	"time"

	"NotifyGate/logger"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
)

// Connection lifecycle. Any failure before Subscribed goes straight to
// Closed without touching the presence registry.
type ConnState int32

const (
	StateConnecting ConnState = iota
	StateAuthenticated
	StateSubscribed
	StateClosed
)

const (
	writeWait  = 5 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = 25 * time.Second
)

// Client is one live transport session. A principal may own any number of
// them (multi-tab, multi-device); guests own one with an empty principal.
type Client struct {
	ConnID      string
	PrincipalID string // empty for public-only guests
	CreatedAt   time.Time

	ws    *websocket.Conn
	send  chan []byte
	state atomic.Int32

	closeOnce sync.Once
	done      chan struct{}
}

func NewClient(principalID string, ws *websocket.Conn, sendQueueSize int) *Client {
	if sendQueueSize <= 0 {
		sendQueueSize = 256
	}
	return &Client{
		ConnID:      uuid.NewString(),
		PrincipalID: principalID,
		CreatedAt:   time.Now(),
		ws:          ws,
		send:        make(chan []byte, sendQueueSize),
		done:        make(chan struct{}),
	}
}

func (c *Client) State() ConnState     { return ConnState(c.state.Load()) }
func (c *Client) setState(s ConnState) { c.state.Store(int32(s)) }

// TrySend enqueues without blocking. False means the outbound queue is
// full: the consumer is too slow and must be dropped, not waited on.
func (c *Client) TrySend(payload []byte) bool {
	select {
	case <-c.done:
		return true // already closing, nothing to report
	default:
	}
	select {
	case c.send <- payload:
		return true
	default:
		return false
	}
}

// Close is idempotent; it stops the writer and closes the socket, which
// unblocks the read loop.
func (c *Client) Close() {
	c.closeOnce.Do(func() {
		c.setState(StateClosed)
		close(c.done)
		if c.ws != nil {
			_ = c.ws.Close()
		}
	})
}

// WritePump is the single writer goroutine for the connection; channel
// order is delivery order.
func (c *Client) WritePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.Close()
	}()

	for {
		select {
		case payload := <-c.send:
			_ = c.ws.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.ws.WriteMessage(websocket.TextMessage, payload); err != nil {
				logger.Debug("[gateway] write failed, closing")
				return
			}
		case <-ticker.C:
			_ = c.ws.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.ws.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		case <-c.done:
			return
		}
	}
}
