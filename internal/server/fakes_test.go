package server

import (
	"context"
	"errors"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gin-gonic/gin"

	"exec-guard/internal/access"
	"exec-guard/internal/activity"
	"exec-guard/internal/approval"
	"exec-guard/internal/auth"
	"exec-guard/internal/hub"
	"exec-guard/internal/model"
	"exec-guard/internal/store"
)

type fakeGateway struct {
	mu           sync.Mutex
	status       model.GatewayStatus
	sessions     []string
	reconnectErr error
	reconnects   int
	resolved     map[string]model.Decision
}

func (g *fakeGateway) Status() model.GatewayStatus {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.status
}

func (g *fakeGateway) ActiveSessions() []string {
	g.mu.Lock()
	defer g.mu.Unlock()
	return append([]string{}, g.sessions...)
}

func (g *fakeGateway) Reconnect() error {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.reconnects++
	return g.reconnectErr
}

func (g *fakeGateway) ResolveExecApproval(_ context.Context, id string, decision model.Decision) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.resolved == nil {
		g.resolved = make(map[string]model.Decision)
	}
	g.resolved[id] = decision
	return nil
}

func (g *fakeGateway) resolvedDecision(id string) (model.Decision, bool) {
	g.mu.Lock()
	defer g.mu.Unlock()
	d, ok := g.resolved[id]
	return d, ok
}

func (g *fakeGateway) GetExecApprovals(context.Context) (model.RemoteApprovalsSnapshot, error) {
	return model.RemoteApprovalsSnapshot{}, errors.New("no allowlist")
}

func (g *fakeGateway) SetExecApprovals(context.Context, model.RemoteApprovalsFile, string) error {
	return errors.New("no allowlist")
}

type testEnv struct {
	router   *gin.Engine
	engine   *approval.Engine
	gateway  *fakeGateway
	store    *store.Store
	access   *access.FileProvider
	activity *activity.LogStore
	hub      *hub.Hub
	token    string
	tokenCfg auth.TokenConfig
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	gin.SetMode(gin.TestMode)

	env := &testEnv{
		gateway:  &fakeGateway{status: model.StatusConnected, sessions: []string{"agent:main:main"}},
		store:    store.New(),
		access:   access.NewFileProvider(t.TempDir() + "/access-control.yaml"),
		hub:      hub.New(),
		tokenCfg: auth.TokenConfig{Secret: "secret", Expiry: time.Hour, Issuer: "test"},
	}
	notifier := hub.NewNotifier(env.hub)
	env.activity = activity.NewLogStore(activity.Options{Listener: notifier})
	env.engine = approval.NewEngine(approval.Options{
		Gateway:  env.gateway,
		Store:    env.store,
		Access:   env.access,
		Notifier: notifier,
		Timeout:  time.Minute,
	})
	t.Cleanup(env.engine.Close)

	env.router = NewRouter(Deps{
		Gateway:     env.gateway,
		Approvals:   env.engine,
		History:     env.store,
		Access:      env.access,
		Activity:    env.activity,
		Hub:         env.hub,
		TokenConfig: env.tokenCfg,
	})

	tok, err := auth.CreateToken("alice", env.tokenCfg)
	if err != nil {
		t.Fatalf("CreateToken: %v", err)
	}
	env.token = tok
	return env
}

func (env *testEnv) do(t *testing.T, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	w := httptest.NewRecorder()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("Authorization", "Bearer "+env.token)
	env.router.ServeHTTP(w, req)
	return w
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
