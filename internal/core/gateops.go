package core

import (
	"context"
	"fmt"
	"time"

	"github.com/openclaw/opsd/pkg/models"
)

// GateStatus reports a task's gate state alongside the configuration
// for its current stage.
type GateStatus struct {
	TaskID     string                           `json:"taskId"`
	Stage      string                           `json:"stage"`
	Gates      map[string]bool                  `json:"gates"`
	Configured map[string]models.GateDefinition `json:"configured,omitempty"`
	Missing    []string                         `json:"missing,omitempty"`
}

// GateSetOptions carry attribution for a manual gate change.
type GateSetOptions struct {
	Actor  string
	Reason string
}

// ValidateGates runs the gate validator for the task's current stage,
// persists automated gate outcomes, and attempts auto-advance when
// everything passes.
func (e *Engine) ValidateGates(ctx context.Context, taskID string) (*GateValidation, error) {
	pipeline, err := e.config.LoadPipeline()
	if err != nil {
		return nil, err
	}
	task, err := e.GetTask(taskID)
	if err != nil {
		return nil, err
	}

	validation := e.gates.ValidateStageGates(ctx, task, pipeline)

	// Merge only the automated outcomes into the live task. A manual
	// gate set while the commands were running must not be reverted by
	// the pre-run snapshot.
	err = e.tasks.Mutate(func(tasks []models.Task) ([]models.Task, error) {
		idx := indexOfTask(tasks, taskID)
		if idx < 0 {
			return nil, fmt.Errorf("task %s: %w", taskID, ErrNotFound)
		}
		if tasks[idx].Gates == nil {
			tasks[idx].Gates = map[string]bool{}
		}
		for name, passed := range validation.Results {
			detail := validation.Details[name]
			if detail.Type != models.GateAutomated || detail.Command == "" {
				continue
			}
			tasks[idx].Gates[name] = passed
		}
		tasks[idx].UpdatedAt = time.Now().UTC()
		return tasks, nil
	})
	if err != nil {
		return nil, err
	}

	e.auditLine(taskID, "system", fmt.Sprintf("gates validated on %s (passed=%t)", task.Stage, validation.AllPassed))
	if validation.AllPassed {
		e.tryAutoAdvance(ctx, taskID)
	}

	return &validation, nil
}

// GateStatus returns the task's gate state and the current stage's gate
// configuration.
func (e *Engine) GateStatus(taskID string) (*GateStatus, error) {
	pipeline, err := e.config.LoadPipeline()
	if err != nil {
		return nil, err
	}
	task, err := e.GetTask(taskID)
	if err != nil {
		return nil, err
	}

	status := &GateStatus{
		TaskID:  task.ID,
		Stage:   task.Stage,
		Gates:   task.Gates,
		Missing: missingGates(*task, pipeline),
	}
	if stage := pipeline.Stage(task.Stage); stage != nil {
		status.Configured = stage.Gates
	}
	return status, nil
}

// SetGate records a manual gate decision. A rejection (passed=false)
// increments the task's rejection count, raises a notification, and is
// audited with the supplied reason; a pass may trigger auto-advance.
func (e *Engine) SetGate(ctx context.Context, taskID, gateName string, passed bool, opts GateSetOptions) (*models.Task, error) {
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

		stage := pipeline.Stage(task.Stage)
		if stage == nil {
			return nil, fmt.Errorf("stage %s: %w", task.Stage, ErrInvalidStage)
		}
		if _, ok := stage.Gates[gateName]; !ok {
			return nil, &ValidationError{Field: "gate", Message: fmt.Sprintf("gate %q not configured for stage %s", gateName, task.Stage)}
		}

		if task.Gates == nil {
			task.Gates = map[string]bool{}
		}
		task.Gates[gateName] = passed
		if !passed {
			if task.Metadata == nil {
				task.Metadata = map[string]any{}
			}
			task.Metadata["rejections"] = rejectionCount(task.Metadata) + 1
		}
		task.UpdatedAt = time.Now().UTC()
		tasks[idx] = task
		updated = task
		return tasks, nil
	})
	if err != nil {
		return nil, err
	}

	verdict := "passed"
	eventType := EventGatePassed
	if !passed {
		verdict = "rejected"
		eventType = EventGateFailed
	}
	action := fmt.Sprintf("gate %s %s", gateName, verdict)
	if opts.Reason != "" {
		action += ": " + opts.Reason
	}
	e.auditLine(taskID, opts.Actor, action)
	e.emit(eventType, fmt.Sprintf("%s gate %s %s", taskID, gateName, verdict), map[string]any{
		"taskId": taskID,
		"stage":  updated.Stage,
		"gate":   gateName,
		"actor":  opts.Actor,
		"reason": opts.Reason,
	})

	if !passed && e.notifier != nil {
		_ = e.notifier.Notify(models.Notification{
			Title:       fmt.Sprintf("Gate rejected on %s", taskID),
			Description: fmt.Sprintf("Gate %s on stage %s rejected by %s: %s", gateName, updated.Stage, opts.Actor, opts.Reason),
			Type:        models.NotifyWarning,
			Meta: map[string]any{
				"taskId": taskID,
				"stage":  updated.Stage,
				"gate":   gateName,
			},
		})
	}

	if passed {
		e.tryAutoAdvance(ctx, taskID)
		if task, err := e.GetTask(taskID); err == nil {
			updated = *task
		}
	}

	return &updated, nil
}

func rejectionCount(metadata map[string]any) int {
	switch v := metadata["rejections"].(type) {
	case int:
		return v
	case float64:
		return int(v)
	default:
		return 0
	}
}
