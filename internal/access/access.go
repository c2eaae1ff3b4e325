// Package access reads the local access-control toggles the approval engine
// consults before auto-approving network commands.
package access

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"gopkg.in/yaml.v3"
)

// State is the decoded access-control file. A toggle left out of the file
// is enabled.
type State struct {
	NetworkAccess    *bool `yaml:"network_access,omitempty" json:"networkAccess"`
	FilesystemAccess *bool `yaml:"filesystem_access,omitempty" json:"filesystemAccess"`
}

func enabled(b *bool) bool {
	return b == nil || *b
}

func (s State) NetworkEnabled() bool    { return enabled(s.NetworkAccess) }
func (s State) FilesystemEnabled() bool { return enabled(s.FilesystemAccess) }

// FileProvider reads the toggles from a YAML file on every call, so edits
// made outside this process apply to the next request.
type FileProvider struct {
	Path string

	mu sync.Mutex
}

func NewFileProvider(path string) *FileProvider {
	return &FileProvider{Path: path}
}

// LoadFromBytes parses an access-control document.
func LoadFromBytes(data []byte) (State, error) {
	var s State
	if err := yaml.Unmarshal(data, &s); err != nil {
		return State{}, fmt.Errorf("failed to parse access YAML: %w", err)
	}
	return s, nil
}

// State returns the current toggles. A missing file yields the defaults; an
// unreadable or malformed one is an error.
func (p *FileProvider) State() (State, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.readLocked()
}

func (p *FileProvider) readLocked() (State, error) {
	data, err := os.ReadFile(p.Path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return State{}, nil
		}
		return State{}, fmt.Errorf("failed to read access file: %w", err)
	}
	return LoadFromBytes(data)
}

func (p *FileProvider) NetworkAccessEnabled() (bool, error) {
	s, err := p.State()
	if err != nil {
		return false, err
	}
	return s.NetworkEnabled(), nil
}

// SetNetworkAccess rewrites the file with the network toggle set, keeping
// the other toggles.
func (p *FileProvider) SetNetworkAccess(on bool) (State, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	s, err := p.readLocked()
	if err != nil {
		return State{}, err
	}
	s.NetworkAccess = &on

	data, err := yaml.Marshal(s)
	if err != nil {
		return State{}, fmt.Errorf("failed to marshal access state: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(p.Path), 0o700); err != nil {
		return State{}, fmt.Errorf("failed to create access dir: %w", err)
	}
	if err := os.WriteFile(p.Path, data, 0o600); err != nil {
		return State{}, fmt.Errorf("failed to write access file: %w", err)
	}
	return s, nil
}
