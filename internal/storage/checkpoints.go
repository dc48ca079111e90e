package storage

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/openclaw/opsd/pkg/models"
)

// checkpointFilename zero-pads the message count so that lexicographic
// sort of filenames equals numeric sort of counts.
func checkpointFilename(messageCount int) string {
	return fmt.Sprintf("checkpoint-%06d.json", messageCount)
}

// CheckpointStore persists immutable, sequence-numbered task snapshots.
// There is no update or delete; checkpoints are append-only history.
type CheckpointStore interface {
	Create(task models.Task, messageCount int) (string, error)
	// List returns checkpoint filenames for a task in ascending order.
	List(taskID string) ([]string, error)
	// Latest returns the checkpoint with the largest message count, or
	// (nil, nil) when the task has no checkpoints.
	Latest(taskID string) (*models.Checkpoint, error)
	Get(taskID string, messageCount int) (*models.Checkpoint, error)
}

type fileCheckpointStore struct {
	ws models.Workspace
}

// NewCheckpointStore creates a CheckpointStore writing under the
// workspace checkpoints directory.
func NewCheckpointStore(ws models.Workspace) CheckpointStore {
	return &fileCheckpointStore{ws: ws}
}

func (s *fileCheckpointStore) Create(task models.Task, messageCount int) (string, error) {
	if messageCount < 0 {
		return "", fmt.Errorf("checkpoint message count %d: must be non-negative", messageCount)
	}
	dir := s.ws.CheckpointsDir(task.ID)
	if err := os.MkdirAll(dir, 0o750); err != nil {
		return "", fmt.Errorf("creating checkpoint directory: %w", err)
	}

	cp := models.Checkpoint{
		TaskID:       task.ID,
		MessageCount: messageCount,
		Timestamp:    time.Now().UTC(),
		Stage:        task.Stage,
		Manifest:     task.Manifest,
		Gates:        task.Gates,
		Progress:     task.Progress,
		Metadata:     task.Metadata,
	}

	data, err := json.MarshalIndent(cp, "", "  ")
	if err != nil {
		return "", fmt.Errorf("marshaling checkpoint: %w", err)
	}

	path := filepath.Join(dir, checkpointFilename(messageCount))
	if err := os.WriteFile(path, data, 0o600); err != nil {
		return "", fmt.Errorf("writing checkpoint: %w", err)
	}
	return path, nil
}

func (s *fileCheckpointStore) List(taskID string) ([]string, error) {
	entries, err := os.ReadDir(s.ws.CheckpointsDir(taskID))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("listing checkpoints for %s: %w", taskID, err)
	}

	var names []string
	for _, e := range entries {
		name := e.Name()
		if strings.HasPrefix(name, "checkpoint-") && strings.HasSuffix(name, ".json") {
			names = append(names, name)
		}
	}
	// Zero-padded counts make this numeric order.
	sort.Strings(names)
	return names, nil
}

func (s *fileCheckpointStore) Latest(taskID string) (*models.Checkpoint, error) {
	names, err := s.List(taskID)
	if err != nil {
		return nil, err
	}
	if len(names) == 0 {
		return nil, nil
	}
	return s.read(taskID, names[len(names)-1])
}

func (s *fileCheckpointStore) Get(taskID string, messageCount int) (*models.Checkpoint, error) {
	name := checkpointFilename(messageCount)
	path := filepath.Join(s.ws.CheckpointsDir(taskID), name)
	if _, err := os.Stat(path); err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("checkpoint %s/%s: %w", taskID, name, ErrNotFound)
		}
		return nil, fmt.Errorf("reading checkpoint %s/%s: %w", taskID, name, err)
	}
	return s.read(taskID, name)
}

func (s *fileCheckpointStore) read(taskID, name string) (*models.Checkpoint, error) {
	data, err := os.ReadFile(filepath.Join(s.ws.CheckpointsDir(taskID), name))
	if err != nil {
		return nil, fmt.Errorf("reading checkpoint %s/%s: %w", taskID, name, err)
	}
	var cp models.Checkpoint
	if err := json.Unmarshal(data, &cp); err != nil {
		return nil, fmt.Errorf("parsing checkpoint %s/%s: %w", taskID, name, err)
	}
	return &cp, nil
}
