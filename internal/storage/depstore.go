package storage

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"gopkg.in/yaml.v3"
)

// DependencyEdge records that TaskID cannot cross a forward stage
// boundary until DependsOn has reached the terminal stage.
type DependencyEdge struct {
	TaskID    string    `yaml:"task_id" json:"taskId"`
	DependsOn string    `yaml:"depends_on" json:"dependsOn"`
	CreatedAt time.Time `yaml:"created_at" json:"createdAt"`
}

// DependencyFile is the top-level structure of data/dependencies.yaml.
type DependencyFile struct {
	Version string           `yaml:"version"`
	Edges   []DependencyEdge `yaml:"edges"`
}

// DependencyStore manages the whole-document dependency edge list.
type DependencyStore interface {
	All() ([]DependencyEdge, error)
	EdgesFor(taskID string) ([]DependencyEdge, error)
	Add(taskID, dependsOn string) error
	Remove(taskID, dependsOn string) error
	// RemoveAllFor drops every edge touching taskID, in either direction.
	RemoveAllFor(taskID string) error
}

type fileDependencyStore struct {
	path string
	mu   sync.Mutex
}

// NewDependencyStore creates a DependencyStore backed by the YAML
// document at path.
func NewDependencyStore(path string) DependencyStore {
	return &fileDependencyStore{path: path}
}

func (s *fileDependencyStore) load() ([]DependencyEdge, error) {
	data, err := os.ReadFile(s.path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("loading dependency store: %w", err)
	}

	var df DependencyFile
	if err := yaml.Unmarshal(data, &df); err != nil {
		return nil, fmt.Errorf("loading dependency store: parsing YAML: %w", err)
	}
	return df.Edges, nil
}

func (s *fileDependencyStore) save(edges []DependencyEdge) error {
	if err := os.MkdirAll(dirOf(s.path), 0o750); err != nil {
		return fmt.Errorf("saving dependency store: creating directory: %w", err)
	}
	data, err := yaml.Marshal(&DependencyFile{Version: "1.0", Edges: edges})
	if err != nil {
		return fmt.Errorf("saving dependency store: marshaling YAML: %w", err)
	}
	if err := os.WriteFile(s.path, data, 0o600); err != nil {
		return fmt.Errorf("saving dependency store: writing file: %w", err)
	}
	return nil
}

func (s *fileDependencyStore) All() ([]DependencyEdge, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.load()
}

func (s *fileDependencyStore) EdgesFor(taskID string) ([]DependencyEdge, error) {
	all, err := s.All()
	if err != nil {
		return nil, err
	}
	var result []DependencyEdge
	for _, e := range all {
		if e.TaskID == taskID {
			result = append(result, e)
		}
	}
	return result, nil
}

func (s *fileDependencyStore) Add(taskID, dependsOn string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	edges, err := s.load()
	if err != nil {
		return err
	}
	for _, e := range edges {
		if e.TaskID == taskID && e.DependsOn == dependsOn {
			return nil // already present
		}
	}
	edges = append(edges, DependencyEdge{
		TaskID:    taskID,
		DependsOn: dependsOn,
		CreatedAt: time.Now().UTC(),
	})
	return s.save(edges)
}

func (s *fileDependencyStore) Remove(taskID, dependsOn string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	edges, err := s.load()
	if err != nil {
		return err
	}
	kept := edges[:0]
	found := false
	for _, e := range edges {
		if e.TaskID == taskID && e.DependsOn == dependsOn {
			found = true
			continue
		}
		kept = append(kept, e)
	}
	if !found {
		return fmt.Errorf("dependency %s -> %s: %w", taskID, dependsOn, ErrNotFound)
	}
	return s.save(kept)
}

func (s *fileDependencyStore) RemoveAllFor(taskID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	edges, err := s.load()
	if err != nil {
		return err
	}
	kept := edges[:0]
	for _, e := range edges {
		if e.TaskID == taskID || e.DependsOn == taskID {
			continue
		}
		kept = append(kept, e)
	}
	return s.save(kept)
}

// dirOf is a small helper shared by the document stores.
func dirOf(path string) string {
	return filepath.Dir(path)
}
