package core

import (
	"sort"

	"github.com/openclaw/opsd/pkg/models"
)

// UnresolvedDependencies returns the subset of task.Dependencies whose
// target task either does not exist in tasks or has not reached the
// terminal stage. Resolution is one level deep: a dependency's own
// dependencies are not consulted. Always recomputed from the live task
// set, never read from a persisted cache.
func UnresolvedDependencies(task models.Task, tasks []models.Task, terminalStage string) []string {
	byID := make(map[string]models.Task, len(tasks))
	for _, t := range tasks {
		byID[t.ID] = t
	}

	var blocked []string
	for _, depID := range task.Dependencies {
		dep, ok := byID[depID]
		if !ok || dep.Stage != terminalStage {
			blocked = append(blocked, depID)
		}
	}
	sort.Strings(blocked)
	return blocked
}
