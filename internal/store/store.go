package store

import (
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"exec-guard/internal/model"
)

const (
	DefaultMaxApprovals = 1000
	stateVersion        = 1
)

var (
	ErrEmptyPattern     = errors.New("store: empty pattern")
	ErrMissingID        = errors.New("store: approval id is required")
	ErrApprovalExists   = errors.New("store: approval already exists")
	ErrApprovalNotFound = errors.New("store: approval not found")
	ErrApprovalDecided  = errors.New("store: approval already decided")
)

// Store keeps restricted patterns and approval history in memory and, when a
// state file is configured, mirrors every change to it.
type Store struct {
	mu sync.RWMutex

	stateFile string
	persistMu sync.Mutex

	patterns     []string
	approvals    []model.ExecApprovalEntry // oldest first
	maxApprovals int
	now          func() time.Time
}

type Options struct {
	StateFile    string
	MaxApprovals int
	Now          func() time.Time
}

func New() *Store {
	return NewWithOptions(Options{})
}

func NewWithOptions(opts Options) *Store {
	if opts.MaxApprovals <= 0 {
		opts.MaxApprovals = DefaultMaxApprovals
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	s := &Store{
		stateFile:    opts.StateFile,
		maxApprovals: opts.MaxApprovals,
		now:          opts.Now,
	}

	if s.stateFile != "" {
		if err := s.loadFromFile(s.stateFile); err != nil {
			log.Printf("store: load failed (%s): %v", s.stateFile, err)
		}
	}
	return s
}

type persistedState struct {
	Version   int                       `json:"version"`
	Patterns  []string                  `json:"patterns"`
	Approvals []model.ExecApprovalEntry `json:"approvals"`
	SavedAt   int64                     `json:"savedAt"`
}

func (s *Store) loadFromFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return err
	}
	if len(data) == 0 {
		return nil
	}

	var file persistedState
	if err := json.Unmarshal(data, &file); err != nil {
		return err
	}
	if file.Version != stateVersion {
		return fmt.Errorf("unsupported state version %d", file.Version)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	for _, p := range file.Patterns {
		p = strings.TrimSpace(p)
		if p != "" && indexOf(s.patterns, p) < 0 {
			s.patterns = append(s.patterns, p)
		}
	}
	for _, e := range file.Approvals {
		if e.ID == "" || s.approvalIndexLocked(e.ID) >= 0 {
			continue
		}
		s.approvals = append(s.approvals, e)
	}
	s.trimApprovalsLocked()
	return nil
}

func indexOf(list []string, v string) int {
	for i, existing := range list {
		if existing == v {
			return i
		}
	}
	return -1
}

// commitLocked persists the current state. It must be called with s.mu held
// and releases it, so snapshots reach the file in mutation order.
func (s *Store) commitLocked() error {
	if s.stateFile == "" {
		s.mu.Unlock()
		return nil
	}
	state := persistedState{
		Version:   stateVersion,
		Patterns:  append([]string{}, s.patterns...),
		Approvals: append([]model.ExecApprovalEntry{}, s.approvals...),
		SavedAt:   s.now().UnixMilli(),
	}
	s.persistMu.Lock()
	s.mu.Unlock()
	defer s.persistMu.Unlock()

	if err := writeFileAtomic(s.stateFile, state); err != nil {
		log.Printf("store: persist failed (%s): %v", s.stateFile, err)
		return err
	}
	return nil
}

func writeFileAtomic(path string, v any) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return fmt.Errorf("mkdir: %w", err)
	}

	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal: %w", err)
	}
	data = append(data, '\n')

	tmp, err := os.CreateTemp(dir, filepath.Base(path)+".tmp-*")
	if err != nil {
		return fmt.Errorf("create temp: %w", err)
	}
	tmpName := tmp.Name()
	defer func() { _ = os.Remove(tmpName) }()

	if err := tmp.Chmod(0o600); err != nil {
		_ = tmp.Close()
		return fmt.Errorf("chmod temp: %w", err)
	}
	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		return fmt.Errorf("write temp: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		_ = tmp.Close()
		return fmt.Errorf("sync temp: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close temp: %w", err)
	}
	if err := os.Rename(tmpName, path); err != nil {
		return fmt.Errorf("rename: %w", err)
	}
	return nil
}

func (s *Store) ListPatterns() ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]string{}, s.patterns...), nil
}

// AddPattern appends pattern unless it is already present.
func (s *Store) AddPattern(pattern string) error {
	pattern = strings.TrimSpace(pattern)
	if pattern == "" {
		return ErrEmptyPattern
	}
	s.mu.Lock()
	if indexOf(s.patterns, pattern) >= 0 {
		s.mu.Unlock()
		return nil
	}
	s.patterns = append(s.patterns, pattern)
	return s.commitLocked()
}

func (s *Store) RemovePattern(pattern string) error {
	pattern = strings.TrimSpace(pattern)
	s.mu.Lock()
	i := indexOf(s.patterns, pattern)
	if i < 0 {
		s.mu.Unlock()
		return nil
	}
	s.patterns = append(s.patterns[:i:i], s.patterns[i+1:]...)
	return s.commitLocked()
}

func (s *Store) approvalIndexLocked(id string) int {
	for i := len(s.approvals) - 1; i >= 0; i-- {
		if s.approvals[i].ID == id {
			return i
		}
	}
	return -1
}

func (s *Store) trimApprovalsLocked() {
	if over := len(s.approvals) - s.maxApprovals; over > 0 {
		s.approvals = append([]model.ExecApprovalEntry(nil), s.approvals[over:]...)
	}
}

// InsertApproval records a new entry, dropping the oldest entries beyond the
// history limit.
func (s *Store) InsertApproval(entry model.ExecApprovalEntry) error {
	if entry.ID == "" {
		return ErrMissingID
	}
	s.mu.Lock()
	if s.approvalIndexLocked(entry.ID) >= 0 {
		s.mu.Unlock()
		return ErrApprovalExists
	}
	s.approvals = append(s.approvals, entry)
	s.trimApprovalsLocked()
	return s.commitLocked()
}

// UpdateApproval replaces the entry with the same id. A decided entry is
// final and cannot be updated.
func (s *Store) UpdateApproval(entry model.ExecApprovalEntry) error {
	s.mu.Lock()
	i := s.approvalIndexLocked(entry.ID)
	if i < 0 {
		s.mu.Unlock()
		return ErrApprovalNotFound
	}
	if s.approvals[i].Decided() {
		s.mu.Unlock()
		return ErrApprovalDecided
	}
	s.approvals[i] = entry
	return s.commitLocked()
}

func (s *Store) GetApproval(id string) (model.ExecApprovalEntry, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	i := s.approvalIndexLocked(id)
	if i < 0 {
		return model.ExecApprovalEntry{}, false
	}
	return s.approvals[i], true
}

type ApprovalFilter struct {
	Decision   model.Decision
	SessionKey string
	Limit      int
}

// ListApprovals returns matching entries, newest first.
func (s *Store) ListApprovals(f ApprovalFilter) []model.ExecApprovalEntry {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]model.ExecApprovalEntry, 0)
	for i := len(s.approvals) - 1; i >= 0; i-- {
		e := s.approvals[i]
		if f.Decision != "" && (e.Decision == nil || *e.Decision != f.Decision) {
			continue
		}
		if f.SessionKey != "" && e.SessionKey != f.SessionKey {
			continue
		}
		out = append(out, e)
		if f.Limit > 0 && len(out) >= f.Limit {
			break
		}
	}
	return out
}
