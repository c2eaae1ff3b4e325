package approval

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"exec-guard/internal/model"
)

type resolveCall struct {
	id       string
	decision model.Decision
}

type setCall struct {
	file     model.RemoteApprovalsFile
	baseHash string
}

type fakeGateway struct {
	mu         sync.Mutex
	resolves   []resolveCall
	resolveErr error
	gates      map[string]chan struct{}
	started    chan string

	file      model.RemoteApprovalsFile
	hash      int
	gets      int
	getErr    error
	sets      []setCall
	conflicts int
}

// ResolveExecApproval records the call once it completes. A gated id blocks
// until its gate is closed or ctx ends; the latter is not recorded.
func (g *fakeGateway) ResolveExecApproval(ctx context.Context, id string, decision model.Decision) error {
	g.mu.Lock()
	gate := g.gates[id]
	started := g.started
	g.mu.Unlock()

	if started != nil {
		started <- id
	}
	if gate != nil {
		select {
		case <-gate:
		case <-ctx.Done():
			return ctx.Err()
		}
	}

	g.mu.Lock()
	defer g.mu.Unlock()
	g.resolves = append(g.resolves, resolveCall{id: id, decision: decision})
	return g.resolveErr
}

// gate makes resolves of id block until the returned channel is closed.
func (g *fakeGateway) gate(id string) chan struct{} {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.gates == nil {
		g.gates = make(map[string]chan struct{})
	}
	if g.started == nil {
		g.started = make(chan string, 64)
	}
	ch := make(chan struct{})
	g.gates[id] = ch
	return ch
}

func (g *fakeGateway) resolvedIDs() map[string]model.Decision {
	g.mu.Lock()
	defer g.mu.Unlock()
	out := make(map[string]model.Decision, len(g.resolves))
	for _, c := range g.resolves {
		out[c.id] = c.decision
	}
	return out
}

func (g *fakeGateway) GetExecApprovals(context.Context) (model.RemoteApprovalsSnapshot, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.gets++
	if g.getErr != nil {
		return model.RemoteApprovalsSnapshot{}, g.getErr
	}
	return model.RemoteApprovalsSnapshot{Hash: hashOf(g.hash), Exists: true, File: g.file}, nil
}

func (g *fakeGateway) SetExecApprovals(_ context.Context, file model.RemoteApprovalsFile, baseHash string) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.sets = append(g.sets, setCall{file: file, baseHash: baseHash})
	if g.conflicts > 0 {
		g.conflicts--
		g.hash++
		return errors.New("exec approvals changed; reload and retry")
	}
	if baseHash != hashOf(g.hash) {
		return errors.New("stale hash")
	}
	g.file = file
	g.hash++
	return nil
}

func (g *fakeGateway) resolveCalls() []resolveCall {
	g.mu.Lock()
	defer g.mu.Unlock()
	return append([]resolveCall(nil), g.resolves...)
}

func (g *fakeGateway) setCalls() []setCall {
	g.mu.Lock()
	defer g.mu.Unlock()
	return append([]setCall(nil), g.sets...)
}

func (g *fakeGateway) getCount() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.gets
}

func hashOf(v int) string {
	return "hash-" + string(rune('0'+v))
}

type memStore struct {
	mu         sync.Mutex
	patterns   []string
	approvals  []model.ExecApprovalEntry
	listErr    error
	persistErr error
}

func (s *memStore) ListPatterns() ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.patterns...), s.listErr
}

func (s *memStore) AddPattern(p string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.persistErr != nil {
		return s.persistErr
	}
	for _, existing := range s.patterns {
		if existing == p {
			return nil
		}
	}
	s.patterns = append(s.patterns, p)
	return nil
}

func (s *memStore) RemovePattern(p string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.persistErr != nil {
		return s.persistErr
	}
	for i, existing := range s.patterns {
		if existing == p {
			s.patterns = append(s.patterns[:i], s.patterns[i+1:]...)
			return nil
		}
	}
	return nil
}

func (s *memStore) InsertApproval(e model.ExecApprovalEntry) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.persistErr != nil {
		return s.persistErr
	}
	s.approvals = append(s.approvals, e)
	return nil
}

func (s *memStore) entries() []model.ExecApprovalEntry {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]model.ExecApprovalEntry(nil), s.approvals...)
}

type staticAccess struct {
	enabled bool
	err     error
}

func (a staticAccess) NetworkAccessEnabled() (bool, error) { return a.enabled, a.err }

type recordingNotifier struct {
	mu        sync.Mutex
	requested []model.ExecApprovalEntry
	resolved  []model.ExecApprovalEntry
	allowlist [][]string
}

func (n *recordingNotifier) ApprovalRequested(e model.ExecApprovalEntry) {
	n.mu.Lock()
	n.requested = append(n.requested, e)
	n.mu.Unlock()
}

func (n *recordingNotifier) ApprovalResolved(e model.ExecApprovalEntry) {
	n.mu.Lock()
	n.resolved = append(n.resolved, e)
	n.mu.Unlock()
}

func (n *recordingNotifier) AllowlistChanged(p []string) {
	n.mu.Lock()
	n.allowlist = append(n.allowlist, p)
	n.mu.Unlock()
}

func (n *recordingNotifier) resolvedEntries() []model.ExecApprovalEntry {
	n.mu.Lock()
	defer n.mu.Unlock()
	return append([]model.ExecApprovalEntry(nil), n.resolved...)
}

type fixture struct {
	engine   *Engine
	gateway  *fakeGateway
	store    *memStore
	notifier *recordingNotifier
}

func newFixture(t *testing.T, mutate func(*Options)) *fixture {
	t.Helper()
	f := &fixture{
		gateway:  &fakeGateway{},
		store:    &memStore{},
		notifier: &recordingNotifier{},
	}
	opts := Options{
		Gateway:          f.gateway,
		Store:            f.store,
		Access:           staticAccess{enabled: true},
		Notifier:         f.notifier,
		Timeout:          time.Minute,
		ReconcileRetries: DefaultReconcileRetries,
		Now:              func() time.Time { return time.UnixMilli(1700000000000) },
	}
	if mutate != nil {
		mutate(&opts)
	}
	f.engine = NewEngine(opts)
	t.Cleanup(f.engine.Close)
	return f
}

func request(id, command string) model.ExecApprovalRequest {
	return model.ExecApprovalRequest{ID: id, Command: command, Cwd: "/work", Security: "allowlist", SessionKey: "agent:main:main"}
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
