package gateway

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"exec-guard/internal/auth"
	"exec-guard/internal/model"
	"exec-guard/internal/protocol"
)

type fakeGateway struct {
	t        *testing.T
	srv      *httptest.Server
	upgrader websocket.Upgrader

	mu              sync.Mutex
	conns           int
	rejectHandshake bool
	connectParams   []protocol.ConnectParams
	current         *fakeConn
	onRequest       func(fc *fakeConn, f protocol.Frame)
}

type fakeConn struct {
	ws *websocket.Conn
	mu sync.Mutex
}

func (fc *fakeConn) write(t *testing.T, data []byte) {
	fc.mu.Lock()
	defer fc.mu.Unlock()
	if err := fc.ws.WriteMessage(websocket.TextMessage, data); err != nil {
		t.Logf("fake gateway write: %v", err)
	}
}

func (fc *fakeConn) sendEvent(t *testing.T, event string, payload any) {
	data, err := protocol.BuildEvent(event, payload)
	if err != nil {
		t.Fatalf("BuildEvent: %v", err)
	}
	fc.write(t, data)
}

func (fc *fakeConn) respond(t *testing.T, id string, ok bool, payload any, errShape *protocol.ErrorShape) {
	data, err := protocol.BuildResponse(id, ok, payload, errShape)
	if err != nil {
		t.Fatalf("BuildResponse: %v", err)
	}
	fc.write(t, data)
}

func newFakeGateway(t *testing.T) *fakeGateway {
	t.Helper()
	fg := &fakeGateway{t: t}
	fg.srv = httptest.NewServer(http.HandlerFunc(fg.serve))
	t.Cleanup(fg.srv.Close)
	return fg
}

func (fg *fakeGateway) url() string {
	return "ws" + strings.TrimPrefix(fg.srv.URL, "http")
}

func (fg *fakeGateway) serve(w http.ResponseWriter, r *http.Request) {
	ws, err := fg.upgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}
	fc := &fakeConn{ws: ws}
	defer ws.Close()

	fg.mu.Lock()
	fg.conns++
	fg.current = fc
	fg.mu.Unlock()

	fc.sendEvent(fg.t, protocol.EventConnectChallenge, protocol.ChallengePayload{Nonce: "n", TS: 1})

	for {
		_, data, err := ws.ReadMessage()
		if err != nil {
			return
		}
		for _, raw := range protocol.SplitFrames(data) {
			f, err := protocol.ParseFrame(raw)
			if err != nil || f.Type != protocol.FrameRequest {
				continue
			}
			if f.Method == protocol.MethodConnect {
				fg.handleConnect(fc, f)
				continue
			}
			fg.mu.Lock()
			h := fg.onRequest
			fg.mu.Unlock()
			if h != nil {
				h(fc, f)
			}
		}
	}
}

func (fg *fakeGateway) handleConnect(fc *fakeConn, f protocol.Frame) {
	var params protocol.ConnectParams
	_ = json.Unmarshal(f.Params, &params)

	fg.mu.Lock()
	fg.connectParams = append(fg.connectParams, params)
	reject := fg.rejectHandshake
	fg.mu.Unlock()

	if reject {
		fc.respond(fg.t, f.ID, false, nil, &protocol.ErrorShape{Code: "UNAUTHORIZED", Message: "device rejected"})
		return
	}
	fc.respond(fg.t, f.ID, true, protocol.HelloPayload{Type: protocol.HelloOK, Protocol: protocol.ProtocolVersion}, nil)
}

func (fg *fakeGateway) setOnRequest(h func(fc *fakeConn, f protocol.Frame)) {
	fg.mu.Lock()
	fg.onRequest = h
	fg.mu.Unlock()
}

func (fg *fakeGateway) connCount() int {
	fg.mu.Lock()
	defer fg.mu.Unlock()
	return fg.conns
}

func (fg *fakeGateway) currentConn() *fakeConn {
	fg.mu.Lock()
	defer fg.mu.Unlock()
	return fg.current
}

func (fg *fakeGateway) lastConnectParams() (protocol.ConnectParams, bool) {
	fg.mu.Lock()
	defer fg.mu.Unlock()
	if len(fg.connectParams) == 0 {
		return protocol.ConnectParams{}, false
	}
	return fg.connectParams[len(fg.connectParams)-1], true
}

type staticIdentity struct {
	id  *model.DeviceIdentity
	err error
}

func (s staticIdentity) Load() (*model.DeviceIdentity, error) { return s.id, s.err }

func testIdentity(t *testing.T) *model.DeviceIdentity {
	t.Helper()
	id, err := auth.GenerateIdentity()
	if err != nil {
		t.Fatalf("GenerateIdentity: %v", err)
	}
	return &id
}

type recordingNotifier struct {
	mu       sync.Mutex
	statuses []model.GatewayStatus
	started  []string
	ended    []string
}

func (n *recordingNotifier) GatewayStatusChanged(s model.GatewayStatus) {
	n.mu.Lock()
	n.statuses = append(n.statuses, s)
	n.mu.Unlock()
}

func (n *recordingNotifier) SessionStarted(key string) {
	n.mu.Lock()
	n.started = append(n.started, key)
	n.mu.Unlock()
}

func (n *recordingNotifier) SessionEnded(key string) {
	n.mu.Lock()
	n.ended = append(n.ended, key)
	n.mu.Unlock()
}

func (n *recordingNotifier) snapshot() ([]model.GatewayStatus, []string, []string) {
	n.mu.Lock()
	defer n.mu.Unlock()
	return append([]model.GatewayStatus(nil), n.statuses...), append([]string(nil), n.started...), append([]string(nil), n.ended...)
}

type recordingActivity struct {
	mu     sync.Mutex
	events []string
}

func (a *recordingActivity) Record(event string, _ json.RawMessage) {
	a.mu.Lock()
	a.events = append(a.events, event)
	a.mu.Unlock()
}

func (a *recordingActivity) list() []string {
	a.mu.Lock()
	defer a.mu.Unlock()
	return append([]string(nil), a.events...)
}

func waitFor(t *testing.T, timeout time.Duration, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("timeout waiting for %s", what)
}

func newTestClient(t *testing.T, fg *fakeGateway, mutate func(*Options)) (*Client, *recordingNotifier) {
	t.Helper()
	n := &recordingNotifier{}
	opts := Options{
		URL:            fg.url(),
		Identity:       staticIdentity{id: testIdentity(t)},
		Token:          func() string { return "gw-token" },
		RequestTimeout: time.Second,
		BaseDelay:      10 * time.Millisecond,
		MaxDelay:       50 * time.Millisecond,
		Notifier:       n,
	}
	if mutate != nil {
		mutate(&opts)
	}
	c := NewClient(opts)
	t.Cleanup(c.Close)
	return c, n
}
