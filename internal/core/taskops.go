package core

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/openclaw/opsd/internal/storage"
	"github.com/openclaw/opsd/pkg/models"
)

// CreateTaskRequest carries the fields for a new task. Title is
// required; Priority defaults from workspace config; Classification is
// validated against the configured list when one exists.
type CreateTaskRequest struct {
	Title          string
	Description    string
	Classification string
	Priority       models.Priority
	Dependencies   []string
	Manifest       map[string]string
	Metadata       map[string]any
	Actor          string
}

// UpdateTaskRequest carries optional field updates. Nil pointers leave
// the field unchanged; Metadata keys are merged into the existing map.
type UpdateTaskRequest struct {
	Title          *string
	Description    *string
	Classification *string
	Priority       *models.Priority
	AssignedAgent  *string
	Progress       *models.Progress
	Metadata       map[string]any
	Actor          string
}

// CreateTask validates the request, places the task in the first
// configured stage with its gates initialized, and persists it.
func (e *Engine) CreateTask(req CreateTaskRequest) (*models.Task, error) {
	if strings.TrimSpace(req.Title) == "" {
		return nil, &ValidationError{Field: "title", Message: "is required"}
	}

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

	priority := req.Priority
	if priority == "" {
		priority = wsCfg.DefaultPriority
	}
	if !models.ValidPriorities[priority] {
		return nil, &ValidationError{Field: "priority", Message: fmt.Sprintf("unknown priority %q", priority)}
	}

	if req.Classification != "" {
		classifications, err := e.config.LoadClassifications()
		if err != nil {
			return nil, err
		}
		if len(classifications.Classifications) > 0 && !classifications.Contains(req.Classification) {
			return nil, &ValidationError{Field: "classification", Message: fmt.Sprintf("unknown classification %q", req.Classification)}
		}
	}

	manifest := map[string]string{}
	for section, content := range req.Manifest {
		normalized := NormalizeManifestSection(section)
		if normalized == "" {
			return nil, &ValidationError{Field: "manifest", Message: fmt.Sprintf("unknown section %q", section)}
		}
		manifest[normalized] = content
	}

	id, err := GenerateTaskID(wsCfg.TaskIDPrefix)
	if err != nil {
		return nil, err
	}

	now := time.Now().UTC()
	firstStage := pipeline.Stages[0].ID
	task := models.Task{
		ID:             id,
		Title:          strings.TrimSpace(req.Title),
		Description:    req.Description,
		Classification: req.Classification,
		Priority:       priority,
		Stage:          firstStage,
		AssignedAgent:  pipeline.AgentForStage(firstStage),
		Manifest:       manifest,
		Gates:          map[string]bool{},
		StageHistory:   []models.StageVisit{{Stage: firstStage, EnteredAt: now}},
		Dependencies:   append([]string(nil), req.Dependencies...),
		Metadata:       req.Metadata,
		CreatedAt:      now,
		UpdatedAt:      now,
	}
	ensureStageGates(&task, pipeline)

	err = e.tasks.Mutate(func(tasks []models.Task) ([]models.Task, error) {
		task.BlockedBy = UnresolvedDependencies(task, tasks, pipeline.TerminalStage())
		return append(tasks, task), nil
	})
	if err != nil {
		return nil, err
	}

	for _, depID := range task.Dependencies {
		if err := e.deps.Add(task.ID, depID); err != nil {
			e.emit("", fmt.Sprintf("recording dependency edge %s -> %s: %v", task.ID, depID, err), nil)
		}
	}

	if _, err := e.manifests.Write(task); err != nil {
		e.emit("", fmt.Sprintf("manifest write failed for %s: %v", task.ID, err), nil)
	}
	e.auditLine(task.ID, req.Actor, "created in "+task.Stage)
	e.emit(EventTaskCreated, fmt.Sprintf("%s created: %s", task.ID, task.Title), map[string]any{
		"taskId": task.ID,
		"stage":  task.Stage,
		"actor":  req.Actor,
	})

	return &task, nil
}

// GetTask returns a task by id.
func (e *Engine) GetTask(taskID string) (*models.Task, error) {
	return e.tasks.Get(taskID)
}

// ListTasks returns tasks matching the filter, sorted by id.
func (e *Engine) ListTasks(filter storage.TaskFilter) ([]models.Task, error) {
	return e.tasks.Filter(filter)
}

// UpdateTask applies field updates, recomputes blockedBy, and
// regenerates the manifest document.
func (e *Engine) UpdateTask(taskID string, req UpdateTaskRequest) (*models.Task, error) {
	pipeline, err := e.config.LoadPipeline()
	if err != nil {
		return nil, err
	}
	if req.Priority != nil && !models.ValidPriorities[*req.Priority] {
		return nil, &ValidationError{Field: "priority", Message: fmt.Sprintf("unknown priority %q", *req.Priority)}
	}
	if req.Classification != nil && *req.Classification != "" {
		classifications, err := e.config.LoadClassifications()
		if err != nil {
			return nil, err
		}
		if len(classifications.Classifications) > 0 && !classifications.Contains(*req.Classification) {
			return nil, &ValidationError{Field: "classification", Message: fmt.Sprintf("unknown classification %q", *req.Classification)}
		}
	}

	var updated models.Task
	err = e.tasks.Mutate(func(tasks []models.Task) ([]models.Task, error) {
		idx := indexOfTask(tasks, taskID)
		if idx < 0 {
			return nil, fmt.Errorf("task %s: %w", taskID, ErrNotFound)
		}
		task := tasks[idx]

		if req.Title != nil {
			if strings.TrimSpace(*req.Title) == "" {
				return nil, &ValidationError{Field: "title", Message: "cannot be empty"}
			}
			task.Title = strings.TrimSpace(*req.Title)
		}
		if req.Description != nil {
			task.Description = *req.Description
		}
		if req.Classification != nil {
			task.Classification = *req.Classification
		}
		if req.Priority != nil {
			task.Priority = *req.Priority
		}
		if req.AssignedAgent != nil {
			task.AssignedAgent = *req.AssignedAgent
		}
		if req.Progress != nil {
			task.Progress = *req.Progress
		}
		if len(req.Metadata) > 0 {
			if task.Metadata == nil {
				task.Metadata = map[string]any{}
			}
			for k, v := range req.Metadata {
				task.Metadata[k] = v
			}
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

	if _, err := e.manifests.Write(updated); err != nil {
		e.emit("", fmt.Sprintf("manifest write failed for %s: %v", updated.ID, err), nil)
	}
	e.auditLine(updated.ID, req.Actor, "updated")
	e.emit(EventTaskUpdated, updated.ID+" updated", map[string]any{"taskId": updated.ID, "actor": req.Actor})

	return &updated, nil
}

// DeleteTask force-removes a task at any stage, dropping its dependency
// edges and manifest document.
func (e *Engine) DeleteTask(taskID, actor string) error {
	err := e.tasks.Mutate(func(tasks []models.Task) ([]models.Task, error) {
		idx := indexOfTask(tasks, taskID)
		if idx < 0 {
			return nil, fmt.Errorf("task %s: %w", taskID, ErrNotFound)
		}
		return append(tasks[:idx], tasks[idx+1:]...), nil
	})
	if err != nil {
		return err
	}

	if err := e.deps.RemoveAllFor(taskID); err != nil {
		e.emit("", fmt.Sprintf("removing dependency edges for %s: %v", taskID, err), nil)
	}
	if err := os.Remove(e.manifests.workspace.ManifestPath(taskID)); err != nil && !os.IsNotExist(err) {
		e.emit("", fmt.Sprintf("removing manifest for %s: %v", taskID, err), nil)
	}
	e.auditLine(taskID, actor, "deleted")
	return nil
}

// GetManifest returns the persisted manifest document, regenerating it
// from the task when the file is missing.
func (e *Engine) GetManifest(taskID string) (string, error) {
	content, err := e.manifests.Read(taskID)
	if err == nil {
		return content, nil
	}
	task, getErr := e.GetTask(taskID)
	if getErr != nil {
		return "", getErr
	}
	if _, err := e.manifests.Write(*task); err != nil {
		return "", err
	}
	return e.manifests.Render(*task), nil
}

// UpdateManifestSection replaces one section's content and re-renders
// the whole document. The section name is matched case-insensitively
// against the fixed section list.
func (e *Engine) UpdateManifestSection(taskID, section, content, actor string) (*models.Task, error) {
	normalized := NormalizeManifestSection(section)
	if normalized == "" {
		return nil, &ValidationError{Field: "section", Message: fmt.Sprintf("unknown section %q", section)}
	}

	var updated models.Task
	err := e.tasks.Mutate(func(tasks []models.Task) ([]models.Task, error) {
		idx := indexOfTask(tasks, taskID)
		if idx < 0 {
			return nil, fmt.Errorf("task %s: %w", taskID, ErrNotFound)
		}
		task := tasks[idx]
		if task.Manifest == nil {
			task.Manifest = map[string]string{}
		}
		task.Manifest[normalized] = content
		task.UpdatedAt = time.Now().UTC()
		tasks[idx] = task
		updated = task
		return tasks, nil
	})
	if err != nil {
		return nil, err
	}

	if _, err := e.manifests.Write(updated); err != nil {
		return nil, err
	}
	e.auditLine(taskID, actor, "manifest section "+normalized+" updated")
	e.emit(EventManifestUpdated, fmt.Sprintf("%s manifest %s updated", taskID, normalized), map[string]any{
		"taskId":  taskID,
		"section": normalized,
		"actor":   actor,
	})

	return &updated, nil
}
