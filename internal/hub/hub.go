package hub

import "sync"

type Writer interface {
	Write(message []byte) error
	Close() error
}

// Connection is one subscribed dashboard socket.
type Connection struct {
	ID       string
	Operator string
	Writer   Writer
}

type Hub struct {
	mu          sync.RWMutex
	connections map[*Connection]struct{}
}

func New() *Hub {
	return &Hub{connections: make(map[*Connection]struct{})}
}

func (h *Hub) Register(conn *Connection) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.connections[conn] = struct{}{}
}

func (h *Hub) Unregister(conn *Connection) {
	h.mu.Lock()
	defer h.mu.Unlock()
	delete(h.connections, conn)
}

func (h *Hub) Count() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.connections)
}

// Broadcast writes message to every connection and drops the ones that fail.
func (h *Hub) Broadcast(message []byte) {
	h.mu.RLock()
	conns := make([]*Connection, 0, len(h.connections))
	for c := range h.connections {
		conns = append(conns, c)
	}
	h.mu.RUnlock()

	var failed []*Connection
	for _, c := range conns {
		if err := c.Writer.Write(message); err != nil {
			failed = append(failed, c)
		}
	}
	for _, c := range failed {
		_ = c.Writer.Close()
		h.Unregister(c)
	}
}
