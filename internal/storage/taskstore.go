// Package storage provides the file-backed stores for the ops pipeline:
// the whole-document task and dependency stores, the append-only
// checkpoint and audit stores, the notification store, and the archive.
//
// The task list and dependency list are persisted as single YAML
// documents, so every mutation is read-entire-store, mutate-in-memory,
// write-entire-store. Each store serializes its mutations behind one
// mutex; concurrent callers cannot lose updates.
package storage

import (
	"fmt"
	"os"
	"sort"
	"strings"
	"sync"

	"github.com/openclaw/opsd/pkg/models"
	"gopkg.in/yaml.v3"
)

// ErrNotFound is returned when a requested record does not exist.
var ErrNotFound = fmt.Errorf("not found")

// TaskFilter specifies criteria for filtering tasks. All specified
// fields use AND logic; Text matches title and description,
// case-insensitive.
type TaskFilter struct {
	Stage          string
	Agent          string
	Classification string
	Priority       models.Priority
	Text           string
}

// TaskFile is the top-level structure of data/tasks.yaml.
type TaskFile struct {
	Version string        `yaml:"version"`
	Tasks   []models.Task `yaml:"tasks"`
}

// TaskStore manages the whole-document active task list.
type TaskStore interface {
	All() ([]models.Task, error)
	Get(taskID string) (*models.Task, error)
	Filter(filter TaskFilter) ([]models.Task, error)
	// Mutate loads the task list, applies fn, and persists the result.
	// Calls are serialized; fn returning an error aborts without writing.
	Mutate(fn func(tasks []models.Task) ([]models.Task, error)) error
}

type fileTaskStore struct {
	path string
	mu   sync.Mutex
}

// NewTaskStore creates a TaskStore backed by the YAML document at path.
func NewTaskStore(path string) TaskStore {
	return &fileTaskStore{path: path}
}

func (s *fileTaskStore) load() ([]models.Task, error) {
	data, err := os.ReadFile(s.path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("loading task store: %w", err)
	}

	var tf TaskFile
	if err := yaml.Unmarshal(data, &tf); err != nil {
		return nil, fmt.Errorf("loading task store: parsing YAML: %w", err)
	}
	return tf.Tasks, nil
}

func (s *fileTaskStore) save(tasks []models.Task) error {
	if err := os.MkdirAll(dirOf(s.path), 0o750); err != nil {
		return fmt.Errorf("saving task store: creating directory: %w", err)
	}
	data, err := yaml.Marshal(&TaskFile{Version: "1.0", Tasks: tasks})
	if err != nil {
		return fmt.Errorf("saving task store: marshaling YAML: %w", err)
	}
	if err := os.WriteFile(s.path, data, 0o600); err != nil {
		return fmt.Errorf("saving task store: writing file: %w", err)
	}
	return nil
}

func (s *fileTaskStore) All() ([]models.Task, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	tasks, err := s.load()
	if err != nil {
		return nil, err
	}
	sort.Slice(tasks, func(i, j int) bool { return tasks[i].ID < tasks[j].ID })
	return tasks, nil
}

func (s *fileTaskStore) Get(taskID string) (*models.Task, error) {
	tasks, err := s.All()
	if err != nil {
		return nil, err
	}
	for i := range tasks {
		if tasks[i].ID == taskID {
			return &tasks[i], nil
		}
	}
	return nil, fmt.Errorf("task %s: %w", taskID, ErrNotFound)
}

func (s *fileTaskStore) Filter(filter TaskFilter) ([]models.Task, error) {
	all, err := s.All()
	if err != nil {
		return nil, err
	}

	var result []models.Task
	for _, task := range all {
		if matchesTaskFilter(task, filter) {
			result = append(result, task)
		}
	}
	return result, nil
}

func (s *fileTaskStore) Mutate(fn func(tasks []models.Task) ([]models.Task, error)) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	tasks, err := s.load()
	if err != nil {
		return err
	}
	updated, err := fn(tasks)
	if err != nil {
		return err
	}
	return s.save(updated)
}

func matchesTaskFilter(task models.Task, filter TaskFilter) bool {
	if filter.Stage != "" && task.Stage != filter.Stage {
		return false
	}
	if filter.Agent != "" && task.AssignedAgent != filter.Agent {
		return false
	}
	if filter.Classification != "" && task.Classification != filter.Classification {
		return false
	}
	if filter.Priority != "" && task.Priority != filter.Priority {
		return false
	}
	if filter.Text != "" {
		needle := strings.ToLower(filter.Text)
		title := strings.ToLower(task.Title)
		desc := strings.ToLower(task.Description)
		if !strings.Contains(title, needle) && !strings.Contains(desc, needle) {
			return false
		}
	}
	return true
}
