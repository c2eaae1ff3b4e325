package protocol

import (
	"encoding/json"
	"errors"
	"strings"

	"exec-guard/internal/model"
)

const (
	ProtocolVersion = 3
	HelloOK         = "hello-ok"
)

type ChallengePayload struct {
	Nonce string `json:"nonce,omitempty"`
	TS    int64  `json:"ts,omitempty"`
}

type ClientInfo struct {
	ID          string `json:"id"`
	DisplayName string `json:"displayName,omitempty"`
	Version     string `json:"version"`
	Platform    string `json:"platform"`
	Mode        string `json:"mode"`
}

type DeviceProof struct {
	ID        string `json:"id"`
	PublicKey string `json:"publicKey"`
	Signature string `json:"signature"`
	SignedAt  int64  `json:"signedAt"`
}

type ConnectAuth struct {
	Token string `json:"token,omitempty"`
}

type ConnectParams struct {
	MinProtocol int         `json:"minProtocol"`
	MaxProtocol int         `json:"maxProtocol"`
	Client      ClientInfo  `json:"client"`
	Role        string      `json:"role"`
	Scopes      []string    `json:"scopes"`
	Device      DeviceProof `json:"device"`
	Auth        ConnectAuth `json:"auth"`
}

type HelloPayload struct {
	Type     string          `json:"type"`
	Protocol int             `json:"protocol,omitempty"`
	Server   json.RawMessage `json:"server,omitempty"`
	Features json.RawMessage `json:"features,omitempty"`
}

type ResolveApprovalParams struct {
	ID       string         `json:"id"`
	Decision model.Decision `json:"decision"`
}

type SetApprovalsParams struct {
	File     model.RemoteApprovalsFile `json:"file"`
	BaseHash string                    `json:"baseHash"`
}

type execApprovalFields struct {
	Command    string `json:"command"`
	Cwd        string `json:"cwd"`
	Security   string `json:"security"`
	SessionKey string `json:"sessionKey"`
}

type execApprovalPayload struct {
	ID      string              `json:"id"`
	Request *execApprovalFields `json:"request"`
	execApprovalFields
	CreatedAtMs int64 `json:"createdAtMs"`
	ExpiresAtMs int64 `json:"expiresAtMs"`
}

var ErrInvalidApprovalRequest = errors.New("invalid exec approval request")

// ParseExecApprovalRequest accepts both the nested {id, request:{...}} shape
// and the flat shape where command fields sit next to id. Only a missing id
// is an error.
func ParseExecApprovalRequest(raw json.RawMessage) (model.ExecApprovalRequest, error) {
	var p execApprovalPayload
	if err := json.Unmarshal(raw, &p); err != nil {
		return model.ExecApprovalRequest{}, err
	}
	fields := p.execApprovalFields
	if p.Request != nil {
		fields = *p.Request
	}
	// Without an id the request cannot be resolved. An empty command is
	// passed through so the engine can deny it.
	if strings.TrimSpace(p.ID) == "" {
		return model.ExecApprovalRequest{}, ErrInvalidApprovalRequest
	}
	return model.ExecApprovalRequest{
		ID:         p.ID,
		Command:    fields.Command,
		Cwd:        fields.Cwd,
		Security:   fields.Security,
		SessionKey: fields.SessionKey,
	}, nil
}

type AgentPayload struct {
	RunID      string          `json:"runId,omitempty"`
	SessionKey string          `json:"sessionKey,omitempty"`
	Stream     string          `json:"stream,omitempty"`
	Seq        int64           `json:"seq,omitempty"`
	Data       json.RawMessage `json:"data,omitempty"`
}

// LifecyclePhase returns the phase of an agent lifecycle event, or "" when the
// payload is some other agent stream.
func (p AgentPayload) LifecyclePhase() string {
	if p.Stream != "lifecycle" || len(p.Data) == 0 {
		return ""
	}
	var data struct {
		Phase string `json:"phase"`
	}
	if err := json.Unmarshal(p.Data, &data); err != nil {
		return ""
	}
	return data.Phase
}
