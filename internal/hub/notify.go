package hub

import (
	"encoding/json"
	"log"

	"exec-guard/internal/activity"
	"exec-guard/internal/model"
)

const (
	TypeSnapshot          = "snapshot"
	TypeGatewayStatus     = "gateway-status"
	TypeApprovalRequested = "exec-approval-requested"
	TypeApprovalResolved  = "exec-approval-resolved"
	TypeAllowlistState    = "allowlist-state"
	TypeSessionStart      = "session-start"
	TypeSessionEnd        = "session-end"
	TypeActivity          = "activity"
)

// Notifier turns gateway, engine and activity callbacks into typed JSON
// messages on the hub.
type Notifier struct {
	Hub *Hub
}

func NewNotifier(h *Hub) *Notifier {
	return &Notifier{Hub: h}
}

func (n *Notifier) send(msg map[string]any) {
	data, err := json.Marshal(msg)
	if err != nil {
		log.Printf("hub: marshal %v failed: %v", msg["type"], err)
		return
	}
	n.Hub.Broadcast(data)
}

func (n *Notifier) GatewayStatusChanged(status model.GatewayStatus) {
	n.send(map[string]any{"type": TypeGatewayStatus, "status": status})
}

func (n *Notifier) SessionStarted(sessionKey string) {
	n.send(map[string]any{"type": TypeSessionStart, "sessionKey": sessionKey})
}

func (n *Notifier) SessionEnded(sessionKey string) {
	n.send(map[string]any{"type": TypeSessionEnd, "sessionKey": sessionKey})
}

func (n *Notifier) ApprovalRequested(entry model.ExecApprovalEntry) {
	n.send(map[string]any{"type": TypeApprovalRequested, "approval": entry})
}

func (n *Notifier) ApprovalResolved(entry model.ExecApprovalEntry) {
	n.send(map[string]any{"type": TypeApprovalResolved, "approval": entry})
}

func (n *Notifier) AllowlistChanged(patterns []string) {
	if patterns == nil {
		patterns = []string{}
	}
	n.send(map[string]any{"type": TypeAllowlistState, "patterns": patterns})
}

func (n *Notifier) ActivityRecorded(entry activity.Entry) {
	n.send(map[string]any{"type": TypeActivity, "event": entry})
}
