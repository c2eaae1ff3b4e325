package gateway

import (
	"context"
	"encoding/json"
	"log"
	"sort"

	"exec-guard/internal/protocol"
)

func (c *Client) readLoop(cn *conn) {
	defer c.handleClose(cn)
	for {
		_, data, err := cn.ws.ReadMessage()
		if err != nil {
			if !cn.isClosed() {
				log.Printf("gateway: read failed: %v", err)
			}
			return
		}
		for _, raw := range protocol.SplitFrames(data) {
			f, err := protocol.ParseFrame(raw)
			if err != nil {
				log.Printf("gateway: dropping malformed frame: %v", err)
				continue
			}
			switch f.Type {
			case protocol.FrameResponse:
				cn.resolve(f)
			case protocol.FrameEvent:
				select {
				case cn.events <- f:
				case <-cn.done:
					return
				}
			case protocol.FrameRequest:
				log.Printf("gateway: ignoring inbound request %q", f.Method)
			}
		}
	}
}

// dispatchLoop handles events one at a time in delivery order. Responses are
// resolved by readLoop, so a handler here may block on SendRequest.
func (c *Client) dispatchLoop(cn *conn) {
	for {
		select {
		case f := <-cn.events:
			c.dispatch(cn, f)
		case <-cn.done:
			return
		}
	}
}

func (c *Client) dispatch(cn *conn, f protocol.Frame) {
	switch f.Event {
	case protocol.EventConnectChallenge:
		c.handshake(cn, f.Payload)

	case protocol.EventExecApprovalRequested:
		req, err := protocol.ParseExecApprovalRequest(f.Payload)
		if err != nil {
			log.Printf("gateway: dropping exec approval request: %v", err)
			return
		}
		c.mu.Lock()
		h := c.approvals
		c.mu.Unlock()
		if h == nil {
			log.Printf("gateway: no approval handler for %s", req.ID)
			return
		}
		h.HandleRequest(context.Background(), req)

	case protocol.EventAgent:
		c.trackSession(cn, f.Payload)
		c.recordActivity(f)

	case protocol.EventShutdown:
		log.Printf("gateway: gateway announced shutdown")
		c.recordActivity(f)

	default:
		c.recordActivity(f)
	}
}

func (c *Client) recordActivity(f protocol.Frame) {
	if c.opts.Activity == nil {
		return
	}
	c.opts.Activity.Record(f.Event, f.Payload)
}

func (c *Client) trackSession(cn *conn, raw json.RawMessage) {
	var p protocol.AgentPayload
	if err := json.Unmarshal(raw, &p); err != nil || p.SessionKey == "" {
		return
	}

	switch p.LifecyclePhase() {
	case "start":
		c.mu.Lock()
		if c.conn != cn {
			c.mu.Unlock()
			return
		}
		if _, active := c.sessions[p.SessionKey]; active {
			c.mu.Unlock()
			return
		}
		c.sessions[p.SessionKey] = struct{}{}
		c.mu.Unlock()
		if c.opts.Notifier != nil {
			c.opts.Notifier.SessionStarted(p.SessionKey)
		}

	case "end", "error":
		c.mu.Lock()
		if c.conn != cn {
			c.mu.Unlock()
			return
		}
		if _, active := c.sessions[p.SessionKey]; !active {
			c.mu.Unlock()
			return
		}
		delete(c.sessions, p.SessionKey)
		c.mu.Unlock()
		if c.opts.Notifier != nil {
			c.opts.Notifier.SessionEnded(p.SessionKey)
		}
	}
}

// ActiveSessions returns the session keys currently running on the gateway.
func (c *Client) ActiveSessions() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]string, 0, len(c.sessions))
	for k := range c.sessions {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

func (c *Client) endSessions(sessions map[string]struct{}) {
	if c.opts.Notifier == nil {
		return
	}
	for key := range sessions {
		c.opts.Notifier.SessionEnded(key)
	}
}
