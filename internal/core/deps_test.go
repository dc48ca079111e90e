package core

import (
	"testing"

	"github.com/openclaw/opsd/pkg/models"
)

func TestUnresolvedDependenciesMissingTarget(t *testing.T) {
	task := models.Task{ID: "TASK-2-bbbbbb", Dependencies: []string{"TASK-1-aaaaaa"}}

	blocked := UnresolvedDependencies(task, []models.Task{task}, "ARCHIVE")
	if len(blocked) != 1 || blocked[0] != "TASK-1-aaaaaa" {
		t.Errorf("expected a missing target to block, got %v", blocked)
	}
}

func TestUnresolvedDependenciesNotTerminal(t *testing.T) {
	dep := models.Task{ID: "TASK-1-aaaaaa", Stage: "BUILD"}
	task := models.Task{ID: "TASK-2-bbbbbb", Dependencies: []string{"TASK-1-aaaaaa"}}

	blocked := UnresolvedDependencies(task, []models.Task{dep, task}, "ARCHIVE")
	if len(blocked) != 1 {
		t.Errorf("expected a non-terminal dependency to block, got %v", blocked)
	}
}

func TestUnresolvedDependenciesResolved(t *testing.T) {
	dep := models.Task{ID: "TASK-1-aaaaaa", Stage: "ARCHIVE"}
	task := models.Task{ID: "TASK-2-bbbbbb", Dependencies: []string{"TASK-1-aaaaaa"}}

	blocked := UnresolvedDependencies(task, []models.Task{dep, task}, "ARCHIVE")
	if len(blocked) != 0 {
		t.Errorf("expected a terminal dependency to resolve, got %v", blocked)
	}
}

func TestUnresolvedDependenciesOneLevelOnly(t *testing.T) {
	// C depends on B, B depends on A. A is nowhere near terminal, but B
	// is; C is unblocked because resolution does not recurse.
	a := models.Task{ID: "TASK-1-aaaaaa", Stage: "SPEC"}
	b := models.Task{ID: "TASK-2-bbbbbb", Stage: "ARCHIVE", Dependencies: []string{"TASK-1-aaaaaa"}}
	c := models.Task{ID: "TASK-3-cccccc", Dependencies: []string{"TASK-2-bbbbbb"}}

	blocked := UnresolvedDependencies(c, []models.Task{a, b, c}, "ARCHIVE")
	if len(blocked) != 0 {
		t.Errorf("expected one-level resolution, got %v", blocked)
	}
}

func TestUnresolvedDependenciesSorted(t *testing.T) {
	task := models.Task{ID: "TASK-9-zzzzzz", Dependencies: []string{"TASK-3-cccccc", "TASK-1-aaaaaa", "TASK-2-bbbbbb"}}

	blocked := UnresolvedDependencies(task, []models.Task{task}, "ARCHIVE")
	want := []string{"TASK-1-aaaaaa", "TASK-2-bbbbbb", "TASK-3-cccccc"}
	if len(blocked) != len(want) {
		t.Fatalf("expected %d blockers, got %d", len(want), len(blocked))
	}
	for i := range want {
		if blocked[i] != want[i] {
			t.Errorf("expected sorted output, got %v", blocked)
			break
		}
	}
}

func TestUnresolvedDependenciesNone(t *testing.T) {
	task := models.Task{ID: "TASK-1-aaaaaa"}

	if blocked := UnresolvedDependencies(task, []models.Task{task}, "ARCHIVE"); len(blocked) != 0 {
		t.Errorf("expected no blockers without dependencies, got %v", blocked)
	}
}
