package handler

import (
	"context"

	"exec-guard/internal/access"
	"exec-guard/internal/model"
	"exec-guard/internal/store"
)

// GatewayControl is the slice of the gateway client the API exposes.
type GatewayControl interface {
	Status() model.GatewayStatus
	ActiveSessions() []string
	Reconnect() error
}

// Approvals is the slice of the approval engine the API exposes.
type Approvals interface {
	GetPendingApprovals() []model.ExecApprovalEntry
	HandleDecision(ctx context.Context, id string, decision model.Decision) (bool, error)
	GetRestrictedPatterns() []string
	AddRestrictedPattern(pattern string) error
	RemoveRestrictedPattern(pattern string) bool
}

type ApprovalHistory interface {
	ListApprovals(f store.ApprovalFilter) []model.ExecApprovalEntry
}

type AccessControl interface {
	State() (access.State, error)
	SetNetworkAccess(on bool) (access.State, error)
}
