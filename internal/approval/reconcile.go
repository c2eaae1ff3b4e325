package approval

import (
	"context"
	"path"
	"strings"

	"exec-guard/internal/model"
	"exec-guard/internal/retry"
)

// AllowlistGateway reads and conditionally rewrites the gateway's exec
// approvals file.
type AllowlistGateway interface {
	GetExecApprovals(ctx context.Context) (model.RemoteApprovalsSnapshot, error)
	SetExecApprovals(ctx context.Context, file model.RemoteApprovalsFile, baseHash string) error
}

// Reconciler removes gateway allowlist entries that a local restricted
// pattern covers, so the gateway cannot auto-run what we now require a human for.
type Reconciler struct {
	gw      AllowlistGateway
	retries int
}

func NewReconciler(gw AllowlistGateway, retries int) *Reconciler {
	return &Reconciler{gw: gw, retries: retries}
}

// Reconcile prunes entries covered by any of patterns and writes the file
// back under the hash it was read with, re-reading on conflict. It returns
// how many entries the successful write removed.
func (r *Reconciler) Reconcile(ctx context.Context, patterns []string) (int, error) {
	removed := 0
	read := func(ctx context.Context) (retry.Versioned[model.RemoteApprovalsFile], error) {
		snap, err := r.gw.GetExecApprovals(ctx)
		if err != nil {
			return retry.Versioned[model.RemoteApprovalsFile]{}, err
		}
		return retry.Versioned[model.RemoteApprovalsFile]{Value: snap.File, Version: snap.Hash}, nil
	}
	modify := func(file model.RemoteApprovalsFile) (model.RemoteApprovalsFile, bool) {
		next, n := pruneAllowlist(file, patterns)
		removed = n
		return next, n > 0
	}
	res, err := retry.Optimistic[model.RemoteApprovalsFile](ctx, r.retries, read, modify, r.gw.SetExecApprovals)
	if err != nil {
		return 0, err
	}
	if !res.Written {
		return 0, nil
	}
	return removed, nil
}

// pruneAllowlist returns a copy of file without the entries any pattern
// covers. The input is not modified.
func pruneAllowlist(file model.RemoteApprovalsFile, patterns []string) (model.RemoteApprovalsFile, int) {
	if len(file.Agents) == 0 {
		return file, 0
	}
	next := file
	next.Agents = make(map[string]*model.RemoteAgentApprovals, len(file.Agents))
	removed := 0
	for name, agent := range file.Agents {
		if agent == nil {
			next.Agents[name] = nil
			continue
		}
		copied := *agent
		copied.Allowlist = nil
		for _, entry := range agent.Allowlist {
			if coveredByAny(entry, patterns) {
				removed++
				continue
			}
			copied.Allowlist = append(copied.Allowlist, entry)
		}
		next.Agents[name] = &copied
	}
	return next, removed
}

func coveredByAny(entry model.RemoteAllowlistEntry, patterns []string) bool {
	for _, p := range patterns {
		if entryCovered(entry, p) {
			return true
		}
	}
	return false
}

// entryCovered applies the four removal rules: the entry's pattern basename
// or resolved-path basename starts with the pattern's program prefix, or the
// last-used command or the entry pattern matches the full glob.
func entryCovered(entry model.RemoteAllowlistEntry, pattern string) bool {
	if prefix := programPrefix(pattern); prefix != "" {
		if basenameHasPrefix(entry.Pattern, prefix) || basenameHasPrefix(entry.LastResolvedPath, prefix) {
			return true
		}
	}
	if entry.LastUsedCommand != "" && MatchesPattern(entry.LastUsedCommand, pattern) {
		return true
	}
	return entry.Pattern != "" && MatchesPattern(entry.Pattern, pattern)
}

// programPrefix is the pattern's first token with trailing '*' removed,
// lowercased. "curl *" gives "curl"; "*" gives "".
func programPrefix(pattern string) string {
	fields := strings.Fields(pattern)
	if len(fields) == 0 {
		return ""
	}
	return strings.ToLower(strings.TrimRight(fields[0], "*"))
}

func basenameHasPrefix(p, prefix string) bool {
	if p == "" {
		return false
	}
	return strings.HasPrefix(strings.ToLower(path.Base(p)), prefix)
}
