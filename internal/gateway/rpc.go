package gateway

import (
	"context"
	"encoding/json"
	"fmt"

	"exec-guard/internal/model"
	"exec-guard/internal/protocol"
)

func (c *Client) ResolveExecApproval(ctx context.Context, id string, decision model.Decision) error {
	_, err := c.SendRequest(ctx, protocol.MethodExecApprovalResolve, protocol.ResolveApprovalParams{
		ID:       id,
		Decision: decision,
	})
	return err
}

// GetExecApprovals reads the gateway's allowlist file together with the hash
// a later SetExecApprovals must quote.
func (c *Client) GetExecApprovals(ctx context.Context) (model.RemoteApprovalsSnapshot, error) {
	raw, err := c.SendRequest(ctx, protocol.MethodExecApprovalsGet, struct{}{})
	if err != nil {
		return model.RemoteApprovalsSnapshot{}, err
	}
	var snap model.RemoteApprovalsSnapshot
	if err := json.Unmarshal(raw, &snap); err != nil {
		return model.RemoteApprovalsSnapshot{}, fmt.Errorf("gateway: decode %s: %w", protocol.MethodExecApprovalsGet, err)
	}
	return snap, nil
}

// SetExecApprovals writes file if the gateway's current hash still equals
// baseHash. A stale hash comes back as a *RequestError.
func (c *Client) SetExecApprovals(ctx context.Context, file model.RemoteApprovalsFile, baseHash string) error {
	_, err := c.SendRequest(ctx, protocol.MethodExecApprovalsSet, protocol.SetApprovalsParams{
		File:     file,
		BaseHash: baseHash,
	})
	return err
}
