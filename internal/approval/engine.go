// Package approval decides what happens to each exec request the gateway
// forwards: hold it for a human, deny it, or let it run.
package approval

import (
	"context"
	"errors"
	"log"
	"sort"
	"strings"
	"sync"
	"time"

	"exec-guard/internal/model"
)

const (
	DefaultTimeout          = 10 * time.Minute
	DefaultReconcileRetries = 2
)

var (
	ErrEmptyPattern    = errors.New("approval: empty pattern")
	ErrInvalidDecision = errors.New("approval: invalid decision")
)

// Gateway is the part of the gateway client the engine drives.
type Gateway interface {
	ResolveExecApproval(ctx context.Context, id string, decision model.Decision) error
	AllowlistGateway
}

// Store persists patterns and terminal approval entries. Failures are logged
// by the engine and never change its in-memory state.
type Store interface {
	ListPatterns() ([]string, error)
	AddPattern(pattern string) error
	RemovePattern(pattern string) error
	InsertApproval(entry model.ExecApprovalEntry) error
}

// AccessProvider reports the network-access toggle. An error means the
// toggle is unknown and the network check is skipped.
type AccessProvider interface {
	NetworkAccessEnabled() (bool, error)
}

type Notifier interface {
	ApprovalRequested(entry model.ExecApprovalEntry)
	ApprovalResolved(entry model.ExecApprovalEntry)
	AllowlistChanged(patterns []string)
}

type Options struct {
	Gateway  Gateway
	Store    Store
	Access   AccessProvider
	Notifier Notifier

	Timeout          time.Duration
	ReconcileRetries int
	Now              func() time.Time
}

type pendingApproval struct {
	entry   model.ExecApprovalEntry
	pattern string
	timer   *time.Timer
}

type Engine struct {
	opts       Options
	reconciler *Reconciler

	ctx    context.Context
	cancel context.CancelFunc
	bg     sync.WaitGroup

	// patternMu orders pattern changes with their store writes and
	// notifications. It is taken before mu.
	patternMu sync.Mutex

	mu       sync.Mutex
	closed   bool
	patterns []string
	pending  map[string]*pendingApproval
}

// NewEngine builds an engine and loads the restricted patterns persisted in
// opts.Store. A store read failure leaves the pattern list empty.
func NewEngine(opts Options) *Engine {
	if opts.Timeout <= 0 {
		opts.Timeout = DefaultTimeout
	}
	if opts.ReconcileRetries < 0 {
		opts.ReconcileRetries = 0
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	ctx, cancel := context.WithCancel(context.Background())
	e := &Engine{
		opts:    opts,
		ctx:     ctx,
		cancel:  cancel,
		pending: make(map[string]*pendingApproval),
	}
	if opts.Gateway != nil {
		e.reconciler = NewReconciler(opts.Gateway, opts.ReconcileRetries)
	}

	if opts.Store != nil {
		stored, err := opts.Store.ListPatterns()
		if err != nil {
			log.Printf("approval: failed to load patterns: %v", err)
		}
		for _, p := range stored {
			p = strings.TrimSpace(p)
			if p != "" && indexOf(e.patterns, p) < 0 {
				e.patterns = append(e.patterns, p)
			}
		}
	}
	return e
}

func indexOf(patterns []string, p string) int {
	for i, existing := range patterns {
		if existing == p {
			return i
		}
	}
	return -1
}

func (e *Engine) nowMs() int64 {
	return e.opts.Now().UnixMilli()
}

// HandleRequest classifies one exec request. Restricted commands wait for a
// decision or the timeout; network commands are denied while network access
// is off; empty commands are denied; everything else is approved once.
//
// It returns once the request is classified. Immediate outcomes are sent to
// the gateway in the background, so the caller's event loop never waits on a
// gateway reply.
func (e *Engine) HandleRequest(_ context.Context, req model.ExecApprovalRequest) {
	now := e.nowMs()
	entry := model.ExecApprovalEntry{
		ID:          req.ID,
		Command:     req.Command,
		Cwd:         req.Cwd,
		Security:    req.Security,
		SessionKey:  req.SessionKey,
		RequestedAt: now,
		ExpiresAt:   now + e.opts.Timeout.Milliseconds(),
	}

	e.mu.Lock()
	if e.closed {
		e.mu.Unlock()
		log.Printf("approval: engine closed, ignoring request %s", req.ID)
		return
	}
	if _, dup := e.pending[req.ID]; dup {
		e.mu.Unlock()
		log.Printf("approval: request %s is already pending", req.ID)
		return
	}
	if strings.TrimSpace(req.Command) == "" {
		e.mu.Unlock()
		log.Printf("approval: %s has no command, denying", req.ID)
		e.resolveAsync(entry, model.DecisionDeny, model.DecidedByAutoDeny)
		return
	}
	if pattern, ok := firstMatch(req.Command, e.patterns); ok {
		id := req.ID
		p := &pendingApproval{entry: entry, pattern: pattern}
		p.timer = time.AfterFunc(e.opts.Timeout, func() { e.HandleTimeout(id) })
		e.pending[id] = p
		e.mu.Unlock()

		log.Printf("approval: %s held for decision (pattern %q)", id, pattern)
		if e.opts.Notifier != nil {
			e.opts.Notifier.ApprovalRequested(entry)
		}
		return
	}
	e.mu.Unlock()

	if IsNetworkCommand(req.Command) && e.opts.Access != nil {
		enabled, err := e.opts.Access.NetworkAccessEnabled()
		switch {
		case err != nil:
			log.Printf("approval: access control unavailable, skipping network check: %v", err)
		case !enabled:
			e.resolveAsync(entry, model.DecisionDeny, model.DecidedByAccessControl)
			return
		}
	}
	e.resolveAsync(entry, model.DecisionAllowOnce, model.DecidedByAutoApprove)
}

// resolveAsync delivers an immediate outcome on its own goroutine. Close
// waits for it.
func (e *Engine) resolveAsync(entry model.ExecApprovalEntry, decision model.Decision, by model.DecidedBy) {
	e.mu.Lock()
	if e.closed {
		e.mu.Unlock()
		log.Printf("approval: engine closed, dropping %s for %s", decision, entry.ID)
		return
	}
	e.bg.Add(1)
	e.mu.Unlock()

	go func() {
		defer e.bg.Done()
		e.finish(e.ctx, entry, decision, by)
	}()
}

// HandleDecision applies a user decision to a pending approval. It reports
// false for ids that are unknown or already resolved. Canceling ctx does not
// abort the gateway resolution: once an entry is taken, the gateway has to
// hear the outcome.
func (e *Engine) HandleDecision(ctx context.Context, id string, decision model.Decision) (bool, error) {
	if !decision.Valid() {
		return false, ErrInvalidDecision
	}
	p := e.take(id)
	if p == nil {
		log.Printf("approval: decision for unknown approval %s ignored", id)
		return false, nil
	}
	p.timer.Stop()

	e.finish(context.WithoutCancel(ctx), p.entry, decision, model.DecidedByUser)

	if decision == model.DecisionAllowAlways && p.pattern != "" {
		if e.RemoveRestrictedPattern(p.pattern) {
			e.reconcileAsync(e.GetRestrictedPatterns())
		}
	}
	return true, nil
}

// HandleTimeout denies a pending approval whose deadline passed. It is a
// no-op when a decision already resolved the id.
func (e *Engine) HandleTimeout(id string) {
	p := e.take(id)
	if p == nil {
		return
	}
	log.Printf("approval: %s timed out", id)
	e.finish(e.ctx, p.entry, model.DecisionDeny, model.DecidedByAutoDeny)
}

// take removes and returns the pending approval for id. Whoever takes it owns
// the only terminal outcome.
func (e *Engine) take(id string) *pendingApproval {
	e.mu.Lock()
	defer e.mu.Unlock()
	p, ok := e.pending[id]
	if !ok {
		return nil
	}
	delete(e.pending, id)
	return p
}

func (e *Engine) finish(ctx context.Context, entry model.ExecApprovalEntry, decision model.Decision, by model.DecidedBy) {
	decidedAt := e.nowMs()
	entry.Decision = &decision
	entry.DecidedBy = &by
	entry.DecidedAt = &decidedAt

	if e.opts.Gateway != nil {
		if err := e.opts.Gateway.ResolveExecApproval(ctx, entry.ID, decision); err != nil {
			log.Printf("approval: resolve %s (%s) failed: %v", entry.ID, decision, err)
		}
	}
	if e.opts.Store != nil {
		if err := e.opts.Store.InsertApproval(entry); err != nil {
			log.Printf("approval: persist %s failed: %v", entry.ID, err)
		}
	}
	if e.opts.Notifier != nil {
		e.opts.Notifier.ApprovalResolved(entry)
	}
}

// AddRestrictedPattern adds a pattern and, in the background, prunes the
// gateway allowlist of entries it covers. Adding an existing pattern changes
// nothing.
func (e *Engine) AddRestrictedPattern(pattern string) error {
	pattern = strings.TrimSpace(pattern)
	if pattern == "" {
		return ErrEmptyPattern
	}

	e.patternMu.Lock()
	defer e.patternMu.Unlock()

	e.mu.Lock()
	if indexOf(e.patterns, pattern) >= 0 {
		e.mu.Unlock()
		return nil
	}
	e.patterns = append(e.patterns, pattern)
	snapshot := append([]string(nil), e.patterns...)
	e.mu.Unlock()

	if e.opts.Store != nil {
		if err := e.opts.Store.AddPattern(pattern); err != nil {
			log.Printf("approval: persist pattern %q failed: %v", pattern, err)
		}
	}
	if e.opts.Notifier != nil {
		e.opts.Notifier.AllowlistChanged(snapshot)
	}
	e.reconcileAsync([]string{pattern})
	return nil
}

// RemoveRestrictedPattern reports whether the pattern was present.
func (e *Engine) RemoveRestrictedPattern(pattern string) bool {
	pattern = strings.TrimSpace(pattern)

	e.patternMu.Lock()
	defer e.patternMu.Unlock()

	e.mu.Lock()
	i := indexOf(e.patterns, pattern)
	if i < 0 {
		e.mu.Unlock()
		return false
	}
	e.patterns = append(e.patterns[:i:i], e.patterns[i+1:]...)
	snapshot := append([]string(nil), e.patterns...)
	e.mu.Unlock()

	if e.opts.Store != nil {
		if err := e.opts.Store.RemovePattern(pattern); err != nil {
			log.Printf("approval: remove pattern %q failed: %v", pattern, err)
		}
	}
	if e.opts.Notifier != nil {
		e.opts.Notifier.AllowlistChanged(snapshot)
	}
	return true
}

func (e *Engine) GetRestrictedPatterns() []string {
	e.mu.Lock()
	defer e.mu.Unlock()
	return append([]string(nil), e.patterns...)
}

// GetPendingApprovals returns undecided entries, oldest first.
func (e *Engine) GetPendingApprovals() []model.ExecApprovalEntry {
	e.mu.Lock()
	out := make([]model.ExecApprovalEntry, 0, len(e.pending))
	for _, p := range e.pending {
		out = append(out, p.entry)
	}
	e.mu.Unlock()

	sort.Slice(out, func(i, j int) bool {
		if out[i].RequestedAt != out[j].RequestedAt {
			return out[i].RequestedAt < out[j].RequestedAt
		}
		return out[i].ID < out[j].ID
	})
	return out
}

func (e *Engine) reconcileAsync(patterns []string) {
	if e.reconciler == nil || len(patterns) == 0 {
		return
	}
	e.mu.Lock()
	if e.closed {
		e.mu.Unlock()
		return
	}
	e.bg.Add(1)
	e.mu.Unlock()

	go func() {
		defer e.bg.Done()
		removed, err := e.reconciler.Reconcile(e.ctx, patterns)
		if err != nil {
			log.Printf("reconcile: giving up: %v", err)
			return
		}
		if removed > 0 {
			log.Printf("reconcile: removed %d gateway allowlist entries", removed)
		}
	}()
}

// Close stops every approval timer and drops pending state without resolving
// it. In-flight reconciliation is canceled and waited for.
func (e *Engine) Close() {
	e.mu.Lock()
	if e.closed {
		e.mu.Unlock()
		return
	}
	e.closed = true
	for id, p := range e.pending {
		p.timer.Stop()
		delete(e.pending, id)
	}
	e.mu.Unlock()

	e.cancel()
	e.bg.Wait()
}
