package gateway

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"exec-guard/internal/auth"
	"exec-guard/internal/protocol"
)

const (
	maxPayload   int64         = 4 << 20
	writeTimeout time.Duration = 10 * time.Second
	eventBuffer                = 256
)

// conn is one socket generation. A reconnect always builds a new conn, so
// callbacks holding a stale conn can tell they are no longer current.
type conn struct {
	ws *websocket.Conn

	device *auth.Device
	token  string

	sendMu sync.Mutex

	pendingMu sync.Mutex
	pending   map[string]chan protocol.Frame

	events chan protocol.Frame
	done   chan struct{}

	closed atomic.Bool
}

func newConn(ws *websocket.Conn, device *auth.Device, token string) *conn {
	ws.SetReadLimit(maxPayload)
	return &conn{
		ws:      ws,
		device:  device,
		token:   token,
		pending: make(map[string]chan protocol.Frame),
		events:  make(chan protocol.Frame, eventBuffer),
		done:    make(chan struct{}),
	}
}

func (c *conn) isClosed() bool {
	return c.closed.Load()
}

// close shuts the socket and releases every waiter with a closed channel.
func (c *conn) close() {
	if c.closed.Swap(true) {
		return
	}
	close(c.done)
	_ = c.ws.Close()

	c.pendingMu.Lock()
	pending := c.pending
	c.pending = make(map[string]chan protocol.Frame)
	c.pendingMu.Unlock()
	for _, ch := range pending {
		close(ch)
	}
}

func (c *conn) writeText(data []byte) error {
	if c.isClosed() {
		return ErrConnectionClosed
	}
	c.sendMu.Lock()
	defer c.sendMu.Unlock()
	if err := c.ws.SetWriteDeadline(time.Now().Add(writeTimeout)); err != nil {
		return err
	}
	msg := make([]byte, 0, len(data)+1)
	msg = append(msg, data...)
	msg = append(msg, '\n')
	return c.ws.WriteMessage(websocket.TextMessage, msg)
}

func (c *conn) addPending() (string, chan protocol.Frame, error) {
	id := uuid.NewString()
	ch := make(chan protocol.Frame, 1)

	c.pendingMu.Lock()
	defer c.pendingMu.Unlock()
	if c.isClosed() {
		return "", nil, ErrNotConnected
	}
	c.pending[id] = ch
	return id, ch, nil
}

func (c *conn) removePending(id string) {
	c.pendingMu.Lock()
	delete(c.pending, id)
	c.pendingMu.Unlock()
}

// resolve hands a response to its waiter. Responses for unknown ids, including
// ones whose request already timed out, are dropped.
func (c *conn) resolve(f protocol.Frame) bool {
	c.pendingMu.Lock()
	ch, ok := c.pending[f.ID]
	delete(c.pending, f.ID)
	c.pendingMu.Unlock()
	if !ok {
		return false
	}
	select {
	case ch <- f:
	default:
	}
	return true
}

func (c *conn) pendingCount() int {
	c.pendingMu.Lock()
	defer c.pendingMu.Unlock()
	return len(c.pending)
}
