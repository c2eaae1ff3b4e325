package model

import "encoding/json"

type DeviceIdentity struct {
	DeviceID      string `json:"deviceId"`
	PublicKeyPEM  string `json:"publicKeyPem"`
	PrivateKeyPEM string `json:"privateKeyPem"`
}

type GatewayStatus string

const (
	StatusDisconnected  GatewayStatus = "disconnected"
	StatusConnecting    GatewayStatus = "connecting"
	StatusConnected     GatewayStatus = "connected"
	StatusNotConfigured GatewayStatus = "not_configured"
)

type Decision string

const (
	DecisionAllowOnce   Decision = "allow-once"
	DecisionAllowAlways Decision = "allow-always"
	DecisionDeny        Decision = "deny"
)

func (d Decision) Valid() bool {
	switch d {
	case DecisionAllowOnce, DecisionAllowAlways, DecisionDeny:
		return true
	}
	return false
}

type DecidedBy string

const (
	DecidedByUser          DecidedBy = "user"
	DecidedByAutoDeny      DecidedBy = "auto-deny"
	DecidedByAutoApprove   DecidedBy = "auto-approve"
	DecidedByAccessControl DecidedBy = "access-control"
)

type ExecApprovalRequest struct {
	ID         string
	Command    string
	Cwd        string
	Security   string
	SessionKey string
}

// ExecApprovalEntry is the persisted record of one exec request. Decision and
// DecidedBy are either both nil or both set, and never change once set.
type ExecApprovalEntry struct {
	ID          string     `json:"id"`
	Command     string     `json:"command"`
	Cwd         string     `json:"cwd"`
	Security    string     `json:"security"`
	SessionKey  string     `json:"sessionKey"`
	RequestedAt int64      `json:"requestedAt"`
	ExpiresAt   int64      `json:"expiresAt"`
	Decision    *Decision  `json:"decision"`
	DecidedBy   *DecidedBy `json:"decidedBy"`
	DecidedAt   *int64     `json:"decidedAt"`
}

func (e ExecApprovalEntry) Decided() bool {
	return e.Decision != nil && e.DecidedBy != nil
}

type RemoteAllowlistEntry struct {
	ID               string `json:"id,omitempty"`
	Pattern          string `json:"pattern"`
	LastUsedAt       *int64 `json:"lastUsedAt,omitempty"`
	LastUsedCommand  string `json:"lastUsedCommand,omitempty"`
	LastResolvedPath string `json:"lastResolvedPath,omitempty"`
}

type RemoteAgentApprovals struct {
	Security        string                 `json:"security,omitempty"`
	Ask             string                 `json:"ask,omitempty"`
	AskFallback     string                 `json:"askFallback,omitempty"`
	AutoAllowSkills *bool                  `json:"autoAllowSkills,omitempty"`
	Allowlist       []RemoteAllowlistEntry `json:"allowlist,omitempty"`
}

// RemoteApprovalsFile is the gateway-owned exec approvals file. Socket and
// Defaults are carried through untouched on rewrite.
type RemoteApprovalsFile struct {
	Version  int                              `json:"version"`
	Socket   json.RawMessage                  `json:"socket,omitempty"`
	Defaults json.RawMessage                  `json:"defaults,omitempty"`
	Agents   map[string]*RemoteAgentApprovals `json:"agents,omitempty"`
}

// RemoteApprovalsSnapshot is a read of the remote file plus the version hash
// that must accompany the next write.
type RemoteApprovalsSnapshot struct {
	Path   string              `json:"path,omitempty"`
	Exists bool                `json:"exists,omitempty"`
	Hash   string              `json:"hash"`
	File   RemoteApprovalsFile `json:"file"`
}
