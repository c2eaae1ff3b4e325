// Package activity keeps a bounded, in-memory trail of gateway events that
// are not part of the approval flow.
package activity

import (
	"encoding/json"
	"sync"
	"time"
)

const DefaultLimit = 2000

// Entry is one recorded gateway event.
type Entry struct {
	Seq        int64           `json:"seq"`
	Event      string          `json:"event"`
	SessionKey string          `json:"sessionKey,omitempty"`
	Stream     string          `json:"stream,omitempty"`
	Payload    json.RawMessage `json:"payload,omitempty"`
	ReceivedAt int64           `json:"receivedAt"`
}

// Listener is told about every entry after it is stored.
type Listener interface {
	ActivityRecorded(entry Entry)
}

type LogStore struct {
	mu      sync.RWMutex
	entries []Entry
	limit   int
	seq     int64

	now      func() time.Time
	listener Listener
	skip     map[string]struct{}
}

type Options struct {
	Limit    int
	Now      func() time.Time
	Listener Listener
	// Skip lists event names that are dropped instead of stored.
	Skip []string
}

func NewLogStore(opts Options) *LogStore {
	if opts.Limit <= 0 {
		opts.Limit = DefaultLimit
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if opts.Skip == nil {
		opts.Skip = []string{"tick"}
	}
	s := &LogStore{
		entries:  make([]Entry, 0, 64),
		limit:    opts.Limit,
		now:      opts.Now,
		listener: opts.Listener,
		skip:     make(map[string]struct{}, len(opts.Skip)),
	}
	for _, name := range opts.Skip {
		s.skip[name] = struct{}{}
	}
	return s
}

// SetListener replaces the listener. Used when the listener is built after the store.
func (s *LogStore) SetListener(l Listener) {
	s.mu.Lock()
	s.listener = l
	s.mu.Unlock()
}

// Record stores an event. It satisfies the gateway's activity recorder.
func (s *LogStore) Record(event string, payload json.RawMessage) {
	if _, skip := s.skip[event]; skip {
		return
	}

	var meta struct {
		SessionKey string `json:"sessionKey"`
		Stream     string `json:"stream"`
	}
	if len(payload) > 0 {
		_ = json.Unmarshal(payload, &meta)
	}

	s.mu.Lock()
	s.seq++
	entry := Entry{
		Seq:        s.seq,
		Event:      event,
		SessionKey: meta.SessionKey,
		Stream:     meta.Stream,
		Payload:    append(json.RawMessage(nil), payload...),
		ReceivedAt: s.now().UnixMilli(),
	}
	s.entries = append(s.entries, entry)
	if len(s.entries) > s.limit {
		s.entries = s.entries[len(s.entries)-s.limit:]
	}
	l := s.listener
	s.mu.Unlock()

	if l != nil {
		l.ActivityRecorded(entry)
	}
}

// List returns a page of entries, oldest first, and the number stored.
func (s *LogStore) List(offset, limit int) ([]Entry, int) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	total := len(s.entries)
	if offset < 0 {
		offset = 0
	}
	if limit <= 0 {
		limit = total
	}
	start := offset
	if start > total {
		start = total
	}
	end := start + limit
	if end > total {
		end = total
	}

	result := make([]Entry, end-start)
	copy(result, s.entries[start:end])
	return result, total
}

// Since returns the entries with a sequence number greater than seq.
func (s *LogStore) Since(seq int64) []Entry {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]Entry, 0)
	for _, e := range s.entries {
		if e.Seq > seq {
			out = append(out, e)
		}
	}
	return out
}
