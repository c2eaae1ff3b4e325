package store

import (
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

// PatternsFile is the YAML seed format:
//
//	patterns:
//	  - "sudo *"
//	  - "rm -rf *"
type PatternsFile struct {
	Patterns []string `yaml:"patterns"`
}

func LoadPatternsFile(path string) (PatternsFile, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return PatternsFile{}, err
	}
	var f PatternsFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return PatternsFile{}, fmt.Errorf("parse %s: %w", path, err)
	}
	return f, nil
}

// ImportPatternsYAML adds every pattern listed in a YAML seed file and
// returns how many were new.
func (s *Store) ImportPatternsYAML(path string) (int, error) {
	f, err := LoadPatternsFile(path)
	if err != nil {
		return 0, err
	}

	s.mu.Lock()
	added := 0
	for _, p := range f.Patterns {
		p = strings.TrimSpace(p)
		if p == "" || indexOf(s.patterns, p) >= 0 {
			continue
		}
		s.patterns = append(s.patterns, p)
		added++
	}
	if added == 0 {
		s.mu.Unlock()
		return 0, nil
	}
	return added, s.commitLocked()
}
