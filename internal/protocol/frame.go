package protocol

import (
	"bytes"
	"encoding/json"
	"errors"
)

type FrameType string

const (
	FrameRequest  FrameType = "req"
	FrameResponse FrameType = "res"
	FrameEvent    FrameType = "event"
)

const (
	MethodConnect             = "connect"
	MethodExecApprovalResolve = "exec.approval.resolve"
	MethodExecApprovalsGet    = "exec.approvals.get"
	MethodExecApprovalsSet    = "exec.approvals.set"
)

const (
	EventConnectChallenge      = "connect.challenge"
	EventTick                  = "tick"
	EventAgent                 = "agent"
	EventChat                  = "chat"
	EventPresence              = "presence"
	EventExecApprovalRequested = "exec.approval.requested"
	EventShutdown              = "shutdown"
)

var (
	ErrEmptyFrame       = errors.New("empty frame")
	ErrUnknownFrameType = errors.New("unknown frame type")
	ErrMissingID        = errors.New("missing frame id")
	ErrMissingEvent     = errors.New("missing event name")
)

type ErrorShape struct {
	Code    string `json:"code,omitempty"`
	Message string `json:"message,omitempty"`
}

// Frame is the union of the three wire frame kinds. Only the fields that
// belong to Type are meaningful.
type Frame struct {
	Type FrameType `json:"type"`

	ID     string          `json:"id,omitempty"`
	Method string          `json:"method,omitempty"`
	Params json.RawMessage `json:"params,omitempty"`

	OK      bool            `json:"ok,omitempty"`
	Payload json.RawMessage `json:"payload,omitempty"`
	Error   *ErrorShape     `json:"error,omitempty"`

	Event        string          `json:"event,omitempty"`
	Seq          *int64          `json:"seq,omitempty"`
	StateVersion json.RawMessage `json:"stateVersion,omitempty"`
}

// ParseFrame decodes a single frame and checks the fields its type requires.
func ParseFrame(data []byte) (Frame, error) {
	data = bytes.TrimSpace(data)
	if len(data) == 0 {
		return Frame{}, ErrEmptyFrame
	}
	var f Frame
	if err := json.Unmarshal(data, &f); err != nil {
		return Frame{}, err
	}
	switch f.Type {
	case FrameRequest, FrameResponse:
		if f.ID == "" {
			return Frame{}, ErrMissingID
		}
	case FrameEvent:
		if f.Event == "" {
			return Frame{}, ErrMissingEvent
		}
	default:
		return Frame{}, ErrUnknownFrameType
	}
	return f, nil
}

// SplitFrames breaks a message into its newline-delimited frames, skipping
// blank lines.
func SplitFrames(message []byte) [][]byte {
	var out [][]byte
	for _, line := range bytes.Split(message, []byte{'\n'}) {
		line = bytes.TrimSpace(line)
		if len(line) == 0 {
			continue
		}
		out = append(out, line)
	}
	return out
}

func BuildRequest(id, method string, params any) ([]byte, error) {
	if id == "" {
		return nil, ErrMissingID
	}
	var raw json.RawMessage
	if params != nil {
		data, err := json.Marshal(params)
		if err != nil {
			return nil, err
		}
		raw = data
	}
	return json.Marshal(Frame{Type: FrameRequest, ID: id, Method: method, Params: raw})
}

func BuildResponse(id string, ok bool, payload any, errShape *ErrorShape) ([]byte, error) {
	if id == "" {
		return nil, ErrMissingID
	}
	var raw json.RawMessage
	if payload != nil {
		data, err := json.Marshal(payload)
		if err != nil {
			return nil, err
		}
		raw = data
	}
	return json.Marshal(Frame{Type: FrameResponse, ID: id, OK: ok, Payload: raw, Error: errShape})
}

func BuildEvent(event string, payload any) ([]byte, error) {
	if event == "" {
		return nil, ErrMissingEvent
	}
	var raw json.RawMessage
	if payload != nil {
		data, err := json.Marshal(payload)
		if err != nil {
			return nil, err
		}
		raw = data
	}
	return json.Marshal(Frame{Type: FrameEvent, Event: event, Payload: raw})
}
