package handler

import (
	"context"
	"encoding/json"
	"log"
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"exec-guard/internal/auth"
	"exec-guard/internal/hub"
	"exec-guard/internal/model"
)

const (
	pongWait     = 60 * time.Second
	writeWait    = 10 * time.Second
	maxFrameSize = 1024 * 1024
)

// WebSocketHandler streams hub notifications to dashboards. Each socket
// receives a snapshot first and may submit decisions over the same socket.
type WebSocketHandler struct {
	Hub         *hub.Hub
	Gateway     GatewayControl
	Approvals   Approvals
	TokenConfig auth.TokenConfig
}

type clientMessage struct {
	Type     string         `json:"type"`
	ID       string         `json:"id,omitempty"`
	Decision model.Decision `json:"decision,omitempty"`
}

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool { return true },
}

type wsWriter struct {
	mu   sync.Mutex
	conn *websocket.Conn
}

func (w *wsWriter) Write(message []byte) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.writeLocked(message)
}

func (w *wsWriter) writeLocked(message []byte) error {
	_ = w.conn.SetWriteDeadline(time.Now().Add(writeWait))
	return w.conn.WriteMessage(websocket.TextMessage, message)
}

func (w *wsWriter) writeJSON(v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return err
	}
	return w.Write(data)
}

func (w *wsWriter) Close() error {
	return w.conn.Close()
}

func (h *WebSocketHandler) Serve(c *gin.Context) {
	tokenString := c.Query("token")
	if tokenString == "" {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "Invalid authentication token"})
		return
	}
	claims, err := auth.VerifyToken(tokenString, h.TokenConfig)
	if err != nil {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "Invalid authentication token"})
		return
	}

	ws, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		return
	}

	writer := &wsWriter{conn: ws}
	conn := &hub.Connection{ID: uuid.NewString(), Operator: claims.Operator, Writer: writer}
	defer func() {
		h.Hub.Unregister(conn)
		_ = ws.Close()
	}()

	// Register and send the snapshot under the writer lock so broadcasts
	// that race the snapshot are delivered after it.
	writer.mu.Lock()
	h.Hub.Register(conn)
	msg := snapshot(h.Gateway, h.Approvals)
	msg["type"] = hub.TypeSnapshot
	data, err := json.Marshal(msg)
	if err == nil {
		err = writer.writeLocked(data)
	}
	writer.mu.Unlock()
	if err != nil {
		log.Printf("handler: snapshot to %s failed: %v", conn.ID, err)
		return
	}

	ws.SetReadLimit(maxFrameSize)
	pingPeriod := (pongWait * 9) / 10

	_ = ws.SetReadDeadline(time.Now().Add(pongWait))
	ws.SetPongHandler(func(string) error {
		return ws.SetReadDeadline(time.Now().Add(pongWait))
	})

	done := make(chan struct{})
	var closeOnce sync.Once
	closeDone := func() {
		closeOnce.Do(func() {
			close(done)
		})
	}
	defer closeDone()

	go func() {
		ticker := time.NewTicker(pingPeriod)
		defer ticker.Stop()

		for {
			select {
			case <-done:
				return
			case <-ticker.C:
				deadline := time.Now().Add(writeWait)
				if err := ws.WriteControl(websocket.PingMessage, nil, deadline); err != nil {
					_ = ws.Close()
					return
				}
			}
		}
	}()

	for {
		_, data, err := ws.ReadMessage()
		if err != nil {
			return
		}

		var msg clientMessage
		if err := json.Unmarshal(data, &msg); err != nil {
			continue
		}

		switch msg.Type {
		case "ping":
			_ = writer.writeJSON(gin.H{"type": "pong"})
		case "decision":
			h.decide(c.Request.Context(), writer, claims.Operator, msg)
		}
	}
}

func (h *WebSocketHandler) decide(ctx context.Context, w *wsWriter, operator string, msg clientMessage) {
	reply := gin.H{"type": "decision-result", "id": msg.ID}
	resolved, err := h.Approvals.HandleDecision(ctx, msg.ID, msg.Decision)
	switch {
	case err != nil:
		reply["error"] = err.Error()
	case !resolved:
		reply["error"] = "approval not pending"
	default:
		reply["decision"] = msg.Decision
		log.Printf("handler: %s decided %s for %s", operator, msg.Decision, msg.ID)
	}
	_ = w.writeJSON(reply)
}
