// Package gateway is the client side of the agent gateway protocol: one
// reconnecting websocket, a device-signed handshake, id-correlated requests
// and in-order event dispatch.
package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"net/http"
	"runtime"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"exec-guard/internal/auth"
	"exec-guard/internal/model"
	"exec-guard/internal/protocol"
)

const (
	DefaultRequestTimeout       = 10 * time.Second
	DefaultBaseDelay            = 2 * time.Second
	DefaultMaxDelay             = 30 * time.Second
	DefaultMaxReconnectAttempts = 20

	DefaultClientID   = "exec-guard"
	DefaultClientMode = "backend"
	DefaultRole       = "operator"
)

var DefaultScopes = []string{"operator.read", "operator.approvals"}

var (
	ErrNotConfigured    = errors.New("gateway: not configured")
	ErrNotConnected     = errors.New("gateway: not connected")
	ErrRequestTimeout   = errors.New("gateway: request timed out")
	ErrConnectionClosed = errors.New("gateway: connection closed")
)

// RequestError is a response the gateway answered with ok=false.
type RequestError struct {
	Method  string
	Code    string
	Message string
}

func (e *RequestError) Error() string {
	if e.Code != "" {
		return fmt.Sprintf("gateway: %s rejected: %s (%s)", e.Method, e.Message, e.Code)
	}
	return fmt.Sprintf("gateway: %s rejected: %s", e.Method, e.Message)
}

type IdentitySource interface {
	Load() (*model.DeviceIdentity, error)
}

// TokenSource returns the gateway auth token, or "" when none is configured.
type TokenSource func() string

// Notifier receives connection and session lifecycle changes. Calls are made
// in transition order and must not call back into the Client.
type Notifier interface {
	GatewayStatusChanged(status model.GatewayStatus)
	SessionStarted(sessionKey string)
	SessionEnded(sessionKey string)
}

type ApprovalHandler interface {
	HandleRequest(ctx context.Context, req model.ExecApprovalRequest)
}

// ActivityRecorder receives every event that is not part of the handshake or
// the approval flow.
type ActivityRecorder interface {
	Record(event string, payload json.RawMessage)
}

type Options struct {
	URL      string
	Identity IdentitySource
	Token    TokenSource

	ClientID      string
	ClientMode    string
	ClientVersion string
	DisplayName   string
	Role          string
	Scopes        []string

	RequestTimeout       time.Duration
	BaseDelay            time.Duration
	MaxDelay             time.Duration
	MaxReconnectAttempts int

	Dialer   *websocket.Dialer
	Header   http.Header
	Notifier Notifier
	Activity ActivityRecorder
	Now      func() time.Time
}

type Client struct {
	opts Options

	mu             sync.Mutex
	conn           *conn
	dialing        bool
	closed         bool
	attempts       int
	reconnectTimer *time.Timer
	sessions       map[string]struct{}
	approvals      ApprovalHandler

	statusMu sync.Mutex
	status   model.GatewayStatus
}

func NewClient(opts Options) *Client {
	if opts.ClientID == "" {
		opts.ClientID = DefaultClientID
	}
	if opts.ClientMode == "" {
		opts.ClientMode = DefaultClientMode
	}
	if opts.ClientVersion == "" {
		opts.ClientVersion = "dev"
	}
	if opts.Role == "" {
		opts.Role = DefaultRole
	}
	if opts.Scopes == nil {
		opts.Scopes = DefaultScopes
	}
	if opts.RequestTimeout <= 0 {
		opts.RequestTimeout = DefaultRequestTimeout
	}
	if opts.BaseDelay <= 0 {
		opts.BaseDelay = DefaultBaseDelay
	}
	if opts.MaxDelay <= 0 {
		opts.MaxDelay = DefaultMaxDelay
	}
	if opts.MaxReconnectAttempts <= 0 {
		opts.MaxReconnectAttempts = DefaultMaxReconnectAttempts
	}
	if opts.Dialer == nil {
		opts.Dialer = &websocket.Dialer{HandshakeTimeout: 10 * time.Second}
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	return &Client{
		opts:     opts,
		sessions: make(map[string]struct{}),
		status:   model.StatusDisconnected,
	}
}

// SetApprovalHandler installs the receiver of exec.approval.requested events.
func (c *Client) SetApprovalHandler(h ApprovalHandler) {
	c.mu.Lock()
	c.approvals = h
	c.mu.Unlock()
}

func (c *Client) Status() model.GatewayStatus {
	c.statusMu.Lock()
	defer c.statusMu.Unlock()
	return c.status
}

func (c *Client) setStatus(status model.GatewayStatus) {
	c.statusMu.Lock()
	defer c.statusMu.Unlock()
	if c.status == status {
		return
	}
	c.status = status
	if c.opts.Notifier != nil {
		c.opts.Notifier.GatewayStatusChanged(status)
	}
}

// Connect opens the gateway socket. Without a device identity and an auth
// token it parks the client in not_configured and does not dial.
func (c *Client) Connect() error {
	c.mu.Lock()
	if c.conn != nil || c.dialing {
		c.mu.Unlock()
		return nil
	}
	c.closed = false
	c.stopReconnectLocked()
	c.mu.Unlock()
	return c.dial()
}

// Reconnect drops any current socket, resets the attempt counter and dials
// again. It also restarts a client that gave up after too many attempts.
func (c *Client) Reconnect() error {
	c.mu.Lock()
	c.closed = false
	c.attempts = 0
	c.stopReconnectLocked()
	cn, sessions := c.detachLocked()
	dialing := c.dialing
	c.mu.Unlock()

	c.teardown(cn, sessions)
	if dialing {
		return nil
	}
	return c.dial()
}

// Close stops reconnecting, closes the socket and fails every in-flight
// request. Pending state is dropped, not flushed.
func (c *Client) Close() {
	c.mu.Lock()
	c.closed = true
	c.stopReconnectLocked()
	cn, sessions := c.detachLocked()
	c.mu.Unlock()

	c.teardown(cn, sessions)
}

func (c *Client) stopReconnectLocked() {
	if c.reconnectTimer != nil {
		c.reconnectTimer.Stop()
		c.reconnectTimer = nil
	}
}

func (c *Client) detachLocked() (*conn, map[string]struct{}) {
	cn := c.conn
	c.conn = nil
	sessions := c.sessions
	c.sessions = make(map[string]struct{})
	return cn, sessions
}

func (c *Client) teardown(cn *conn, sessions map[string]struct{}) {
	if cn != nil {
		cn.close()
	}
	c.endSessions(sessions)
	c.setStatus(model.StatusDisconnected)
}

func (c *Client) credentials() (*auth.Device, string, error) {
	if c.opts.Identity == nil {
		return nil, "", fmt.Errorf("%w: no device identity store", ErrNotConfigured)
	}
	stored, err := c.opts.Identity.Load()
	if err != nil {
		return nil, "", fmt.Errorf("%w: %v", ErrNotConfigured, err)
	}
	if stored == nil {
		return nil, "", fmt.Errorf("%w: no device identity", ErrNotConfigured)
	}
	device, err := auth.ParseIdentity(*stored)
	if err != nil {
		return nil, "", fmt.Errorf("%w: %v", ErrNotConfigured, err)
	}
	token := ""
	if c.opts.Token != nil {
		token = c.opts.Token()
	}
	if token == "" {
		return nil, "", fmt.Errorf("%w: no gateway token", ErrNotConfigured)
	}
	return device, token, nil
}

func (c *Client) dial() error {
	device, token, err := c.credentials()
	if err != nil {
		log.Printf("gateway: %v", err)
		c.setStatus(model.StatusNotConfigured)
		return err
	}

	c.mu.Lock()
	if c.dialing || c.conn != nil || c.closed {
		c.mu.Unlock()
		return nil
	}
	c.dialing = true
	c.mu.Unlock()

	c.setStatus(model.StatusConnecting)
	ws, _, err := c.opts.Dialer.Dial(c.opts.URL, c.opts.Header)

	c.mu.Lock()
	c.dialing = false
	if err != nil {
		c.mu.Unlock()
		log.Printf("gateway: dial %s failed: %v", c.opts.URL, err)
		c.setStatus(model.StatusDisconnected)
		c.scheduleReconnect()
		return err
	}
	if c.closed {
		c.mu.Unlock()
		_ = ws.Close()
		return ErrConnectionClosed
	}
	cn := newConn(ws, device, token)
	c.conn = cn
	c.mu.Unlock()

	go c.dispatchLoop(cn)
	go c.readLoop(cn)
	return nil
}

func (c *Client) handleClose(cn *conn) {
	cn.close()

	c.mu.Lock()
	if c.conn != cn {
		c.mu.Unlock()
		return
	}
	_, sessions := c.detachLocked()
	c.mu.Unlock()

	c.endSessions(sessions)
	c.setStatus(model.StatusDisconnected)
	c.scheduleReconnect()
}

func (c *Client) scheduleReconnect() {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed || c.reconnectTimer != nil {
		return
	}
	if c.attempts >= c.opts.MaxReconnectAttempts {
		log.Printf("gateway: giving up after %d reconnect attempts", c.attempts)
		return
	}
	delay := backoffDelay(c.attempts, c.opts.BaseDelay, c.opts.MaxDelay)
	c.attempts++
	log.Printf("gateway: reconnecting in %s (attempt %d/%d)", delay, c.attempts, c.opts.MaxReconnectAttempts)

	var timer *time.Timer
	timer = time.AfterFunc(delay, func() {
		c.mu.Lock()
		if c.reconnectTimer != timer {
			c.mu.Unlock()
			return
		}
		c.reconnectTimer = nil
		closed := c.closed
		c.mu.Unlock()
		if closed {
			return
		}
		_ = c.dial()
	})
	c.reconnectTimer = timer
}

func (c *Client) markConnected(cn *conn) bool {
	c.mu.Lock()
	if c.conn != cn {
		c.mu.Unlock()
		return false
	}
	c.attempts = 0
	c.mu.Unlock()
	c.setStatus(model.StatusConnected)
	return true
}

func (c *Client) currentConn() *conn {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.conn
}

// SendRequest sends a correlated request and waits for its response payload.
// It fails without sending when no socket is open.
func (c *Client) SendRequest(ctx context.Context, method string, params any) (json.RawMessage, error) {
	cn := c.currentConn()
	if cn == nil || cn.isClosed() {
		return nil, ErrNotConnected
	}
	return c.request(ctx, cn, method, params)
}

func (c *Client) request(ctx context.Context, cn *conn, method string, params any) (json.RawMessage, error) {
	if ctx == nil {
		ctx = context.Background()
	}
	id, ch, err := cn.addPending()
	if err != nil {
		return nil, err
	}

	data, err := protocol.BuildRequest(id, method, params)
	if err != nil {
		cn.removePending(id)
		return nil, err
	}
	if err := cn.writeText(data); err != nil {
		cn.removePending(id)
		return nil, fmt.Errorf("gateway: send %s: %w", method, err)
	}

	timer := time.NewTimer(c.opts.RequestTimeout)
	defer timer.Stop()

	select {
	case f, ok := <-ch:
		if !ok {
			return nil, ErrConnectionClosed
		}
		if !f.OK {
			rerr := &RequestError{Method: method, Message: "request failed"}
			if f.Error != nil {
				rerr.Code = f.Error.Code
				if f.Error.Message != "" {
					rerr.Message = f.Error.Message
				}
			}
			return nil, rerr
		}
		return f.Payload, nil
	case <-timer.C:
		cn.removePending(id)
		return nil, fmt.Errorf("%w: %s after %s", ErrRequestTimeout, method, c.opts.RequestTimeout)
	case <-ctx.Done():
		cn.removePending(id)
		return nil, ctx.Err()
	}
}

func (c *Client) platform() string {
	return runtime.GOOS
}
