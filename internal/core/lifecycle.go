package core

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/openclaw/opsd/internal/storage"
	"github.com/openclaw/opsd/pkg/models"
)

// RestoreOverrides optionally replace fields of a restored task.
type RestoreOverrides struct {
	Title          string
	Classification string
	Priority       models.Priority
	Actor          string
}

// ArchiveTask removes a task from the active store and relocates its
// manifest into the current month's archive bucket, returning the
// archive location.
func (e *Engine) ArchiveTask(taskID, actor string) (string, error) {
	task, err := e.GetTask(taskID)
	if err != nil {
		return "", err
	}

	// The manifest is the archived artifact; make sure it exists.
	manifestPath := e.manifests.workspace.ManifestPath(taskID)
	if _, err := os.Stat(manifestPath); os.IsNotExist(err) {
		if _, err := e.manifests.Write(*task); err != nil {
			return "", err
		}
	}

	location, err := e.archive.StoreManifest(taskID, manifestPath)
	if err != nil {
		return "", err
	}

	err = e.tasks.Mutate(func(tasks []models.Task) ([]models.Task, error) {
		idx := indexOfTask(tasks, taskID)
		if idx < 0 {
			return nil, fmt.Errorf("task %s: %w", taskID, ErrNotFound)
		}
		return append(tasks[:idx], tasks[idx+1:]...), nil
	})
	if err != nil {
		return "", err
	}

	e.auditLine(taskID, actor, "archived to "+location)
	e.emit(EventTaskArchived, taskID+" archived", map[string]any{
		"taskId":   taskID,
		"location": location,
		"actor":    actor,
	})

	return location, nil
}

// RestoreTask reconstructs an archived task at the terminal stage with
// the archived document folded into the retrospective section. Fails
// with AlreadyActive when the id is already in the active store.
func (e *Engine) RestoreTask(taskID string, overrides RestoreOverrides) (*models.Task, error) {
	pipeline, err := e.config.LoadPipeline()
	if err != nil {
		return nil, err
	}
	if len(pipeline.Stages) == 0 {
		return nil, fmt.Errorf("pipeline config has no stages")
	}
	wsCfg, err := e.config.LoadWorkspaceConfig()
	if err != nil {
		return nil, err
	}

	if _, err := e.GetTask(taskID); err == nil {
		return nil, fmt.Errorf("task %s: %w", taskID, ErrAlreadyActive)
	} else if !errors.Is(err, ErrNotFound) {
		return nil, err
	}

	_, content, err := e.archive.Find(taskID)
	if err != nil {
		return nil, err
	}

	title := overrides.Title
	if title == "" {
		title = titleFromManifest(content, taskID)
	}
	priority := overrides.Priority
	if priority == "" {
		priority = wsCfg.DefaultPriority
	}
	if !models.ValidPriorities[priority] {
		return nil, &ValidationError{Field: "priority", Message: fmt.Sprintf("unknown priority %q", priority)}
	}

	now := time.Now().UTC()
	terminal := pipeline.TerminalStage()
	task := models.Task{
		ID:             taskID,
		Title:          title,
		Classification: overrides.Classification,
		Priority:       priority,
		Stage:          terminal,
		AssignedAgent:  pipeline.AgentForStage(terminal),
		Manifest:       map[string]string{"retrospective": content},
		Gates:          map[string]bool{},
		StageHistory:   []models.StageVisit{{Stage: terminal, EnteredAt: now}},
		CreatedAt:      now,
		UpdatedAt:      now,
	}
	ensureStageGates(&task, pipeline)

	err = e.tasks.Mutate(func(tasks []models.Task) ([]models.Task, error) {
		if indexOfTask(tasks, taskID) >= 0 {
			return nil, fmt.Errorf("task %s: %w", taskID, ErrAlreadyActive)
		}
		return append(tasks, task), nil
	})
	if err != nil {
		return nil, err
	}

	if _, err := e.manifests.Write(task); err != nil {
		e.emit("", fmt.Sprintf("manifest write failed for %s: %v", taskID, err), nil)
	}
	if err := e.archive.Remove(taskID); err != nil {
		e.emit("", fmt.Sprintf("removing archived manifest for %s: %v", taskID, err), nil)
	}
	e.auditLine(taskID, overrides.Actor, "restored to "+terminal)
	e.emit(EventTaskRestored, taskID+" restored", map[string]any{
		"taskId": taskID,
		"stage":  terminal,
		"actor":  overrides.Actor,
	})

	return &task, nil
}

// ListArchive returns the archived manifests, newest bucket first.
func (e *Engine) ListArchive() ([]storage.ArchiveEntry, error) {
	return e.archive.List()
}

// GetArchivedManifest returns the archived document for a task.
func (e *Engine) GetArchivedManifest(taskID string) (*storage.ArchiveEntry, string, error) {
	return e.archive.Find(taskID)
}

// CreateCheckpoint snapshots the task's current state under the given
// message count. Checkpoints are immutable, append-only history.
func (e *Engine) CreateCheckpoint(taskID string, messageCount int) (string, error) {
	task, err := e.GetTask(taskID)
	if err != nil {
		return "", err
	}
	path, err := e.checkpoints.Create(*task, messageCount)
	if err != nil {
		return "", err
	}
	e.auditLine(taskID, "system", fmt.Sprintf("checkpoint %d created", messageCount))
	return path, nil
}

// ListCheckpoints returns checkpoint names for a task in ascending order.
func (e *Engine) ListCheckpoints(taskID string) ([]string, error) {
	return e.checkpoints.List(taskID)
}

// LatestCheckpoint returns the newest checkpoint, or NotFound when the
// task has none.
func (e *Engine) LatestCheckpoint(taskID string) (*models.Checkpoint, error) {
	cp, err := e.checkpoints.Latest(taskID)
	if err != nil {
		return nil, err
	}
	if cp == nil {
		return nil, fmt.Errorf("checkpoints for %s: %w", taskID, ErrNotFound)
	}
	return cp, nil
}

// GetCheckpoint returns one checkpoint by message count.
func (e *Engine) GetCheckpoint(taskID string, messageCount int) (*models.Checkpoint, error) {
	return e.checkpoints.Get(taskID, messageCount)
}

// AddDependency records that taskID cannot move forward until dependsOn
// reaches the terminal stage, then recomputes the task's blockedBy.
func (e *Engine) AddDependency(taskID, dependsOn, actor string) (*models.Task, error) {
	if taskID == dependsOn {
		return nil, &ValidationError{Field: "dependsOn", Message: "a task cannot depend on itself"}
	}
	pipeline, err := e.config.LoadPipeline()
	if err != nil {
		return nil, err
	}

	var updated models.Task
	err = e.tasks.Mutate(func(tasks []models.Task) ([]models.Task, error) {
		idx := indexOfTask(tasks, taskID)
		if idx < 0 {
			return nil, fmt.Errorf("task %s: %w", taskID, ErrNotFound)
		}
		if indexOfTask(tasks, dependsOn) < 0 {
			return nil, fmt.Errorf("dependency target %s: %w", dependsOn, ErrNotFound)
		}
		task := tasks[idx]

		if !containsString(task.Dependencies, dependsOn) {
			task.Dependencies = append(task.Dependencies, dependsOn)
		}
		task.BlockedBy = UnresolvedDependencies(task, tasks, pipeline.TerminalStage())
		task.UpdatedAt = time.Now().UTC()
		tasks[idx] = task
		updated = task
		return tasks, nil
	})
	if err != nil {
		return nil, err
	}

	if err := e.deps.Add(taskID, dependsOn); err != nil {
		e.emit("", fmt.Sprintf("recording dependency edge %s -> %s: %v", taskID, dependsOn, err), nil)
	}
	if _, err := e.manifests.Write(updated); err != nil {
		e.emit("", fmt.Sprintf("manifest write failed for %s: %v", taskID, err), nil)
	}
	e.auditLine(taskID, actor, "dependency added: "+dependsOn)
	return &updated, nil
}

// RemoveDependency drops a dependency edge and recomputes blockedBy.
func (e *Engine) RemoveDependency(taskID, dependsOn, actor string) (*models.Task, error) {
	pipeline, err := e.config.LoadPipeline()
	if err != nil {
		return nil, err
	}

	var updated models.Task
	err = e.tasks.Mutate(func(tasks []models.Task) ([]models.Task, error) {
		idx := indexOfTask(tasks, taskID)
		if idx < 0 {
			return nil, fmt.Errorf("task %s: %w", taskID, ErrNotFound)
		}
		task := tasks[idx]

		var remaining []string
		for _, dep := range task.Dependencies {
			if dep != dependsOn {
				remaining = append(remaining, dep)
			}
		}
		task.Dependencies = remaining
		task.BlockedBy = UnresolvedDependencies(task, tasks, pipeline.TerminalStage())
		task.UpdatedAt = time.Now().UTC()
		tasks[idx] = task
		updated = task
		return tasks, nil
	})
	if err != nil {
		return nil, err
	}

	if err := e.deps.Remove(taskID, dependsOn); err != nil && !errors.Is(err, ErrNotFound) {
		e.emit("", fmt.Sprintf("removing dependency edge %s -> %s: %v", taskID, dependsOn, err), nil)
	}
	if _, err := e.manifests.Write(updated); err != nil {
		e.emit("", fmt.Sprintf("manifest write failed for %s: %v", taskID, err), nil)
	}
	e.auditLine(taskID, actor, "dependency removed: "+dependsOn)
	return &updated, nil
}

// DependencyGraph returns every recorded dependency edge.
func (e *Engine) DependencyGraph() ([]storage.DependencyEdge, error) {
	return e.deps.All()
}

// AuditTrail returns the audit log lines for a task.
func (e *Engine) AuditTrail(taskID string) ([]string, error) {
	return e.audit.Entries(taskID)
}

// titleFromManifest extracts the title from a manifest heading of the
// form "# <id>: <title>", falling back to the task id.
func titleFromManifest(content, taskID string) string {
	firstLine, _, _ := strings.Cut(content, "\n")
	if rest, ok := strings.CutPrefix(firstLine, "# "+taskID+": "); ok && strings.TrimSpace(rest) != "" {
		return strings.TrimSpace(rest)
	}
	return taskID
}

func containsString(values []string, target string) bool {
	for _, v := range values {
		if v == target {
			return true
		}
	}
	return false
}
