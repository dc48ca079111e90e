package storage

import (
	"errors"
	"testing"

	"github.com/openclaw/opsd/pkg/models"
)

func newTestCheckpointStore(t *testing.T) CheckpointStore {
	t.Helper()
	return NewCheckpointStore(models.Workspace{Root: t.TempDir()})
}

func checkpointFixture(id string) models.Task {
	return models.Task{
		ID:       id,
		Title:    "Checkpointed task",
		Stage:    "BUILD",
		Gates:    map[string]bool{"tests": true},
		Manifest: map[string]string{"build": "Half done."},
		Progress: models.Progress{CompletedSteps: 2, TotalSteps: 5},
	}
}

func TestCheckpointFilenameZeroPadded(t *testing.T) {
	if got := checkpointFilename(42); got != "checkpoint-000042.json" {
		t.Errorf("expected checkpoint-000042.json, got %s", got)
	}
}

func TestCheckpointCreateRejectsNegativeCount(t *testing.T) {
	store := newTestCheckpointStore(t)
	task := checkpointFixture("TASK-1-aaaaaa")

	if _, err := store.Create(task, 0); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if _, err := store.Create(task, -1); err == nil {
		t.Fatalf("expected a negative message count to be rejected")
	}

	// The zero checkpoint is untouched by the rejected write.
	cp, err := store.Get("TASK-1-aaaaaa", 0)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cp.MessageCount != 0 {
		t.Errorf("expected message count 0, got %d", cp.MessageCount)
	}
}

func TestCheckpointCreateAndGet(t *testing.T) {
	store := newTestCheckpointStore(t)
	task := checkpointFixture("TASK-1-aaaaaa")

	path, err := store.Create(task, 12)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if path == "" {
		t.Fatalf("expected a checkpoint path")
	}

	cp, err := store.Get("TASK-1-aaaaaa", 12)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cp.Stage != "BUILD" {
		t.Errorf("expected stage BUILD, got %s", cp.Stage)
	}
	if !cp.Gates["tests"] {
		t.Errorf("expected gate snapshot to survive")
	}
	if cp.Manifest["build"] != "Half done." {
		t.Errorf("expected manifest snapshot to survive, got %q", cp.Manifest["build"])
	}
	if cp.Timestamp.IsZero() {
		t.Errorf("expected checkpoint timestamp to be stamped")
	}
}

func TestCheckpointListAscending(t *testing.T) {
	store := newTestCheckpointStore(t)
	task := checkpointFixture("TASK-1-aaaaaa")

	for _, count := range []int{30, 5, 120} {
		if _, err := store.Create(task, count); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
	}

	names, err := store.List("TASK-1-aaaaaa")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	want := []string{"checkpoint-000005.json", "checkpoint-000030.json", "checkpoint-000120.json"}
	if len(names) != len(want) {
		t.Fatalf("expected %d checkpoints, got %d", len(want), len(names))
	}
	for i := range want {
		if names[i] != want[i] {
			t.Errorf("expected %s at position %d, got %s", want[i], i, names[i])
		}
	}
}

func TestCheckpointLatest(t *testing.T) {
	store := newTestCheckpointStore(t)
	task := checkpointFixture("TASK-1-aaaaaa")

	latest, err := store.Latest("TASK-1-aaaaaa")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if latest != nil {
		t.Fatalf("expected nil latest for a task with no checkpoints")
	}

	for _, count := range []int{10, 45, 20} {
		if _, err := store.Create(task, count); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
	}

	latest, err = store.Latest("TASK-1-aaaaaa")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if latest == nil || latest.MessageCount != 45 {
		t.Errorf("expected latest checkpoint at count 45, got %+v", latest)
	}
}

func TestCheckpointGetMissing(t *testing.T) {
	store := newTestCheckpointStore(t)

	_, err := store.Get("TASK-1-aaaaaa", 7)
	if !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}
