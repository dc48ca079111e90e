package core

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/openclaw/opsd/internal/storage"
	"github.com/openclaw/opsd/pkg/models"
)

// Engine orchestrates stage transitions and the task lifecycle. All
// task-list writes go through the store's Mutate so a single writer
// owns the document at any time.
type Engine struct {
	tasks       storage.TaskStore
	deps        storage.DependencyStore
	checkpoints storage.CheckpointStore
	archive     storage.ArchiveStore
	audit       storage.AuditLog
	config      ConfigManager
	manifests   *ManifestRenderer
	handoffs    *HandoffGenerator
	gates       *GateValidator
	events      EventEmitter
	notifier    NotificationSender
}

// EngineDeps bundles the collaborators an Engine needs. Events and
// Notifier are best-effort and may be nil.
type EngineDeps struct {
	Tasks       storage.TaskStore
	Deps        storage.DependencyStore
	Checkpoints storage.CheckpointStore
	Archive     storage.ArchiveStore
	Audit       storage.AuditLog
	Config      ConfigManager
	Manifests   *ManifestRenderer
	Handoffs    *HandoffGenerator
	Gates       *GateValidator
	Events      EventEmitter
	Notifier    NotificationSender
}

// NewEngine creates an Engine from its collaborators.
func NewEngine(deps EngineDeps) *Engine {
	return &Engine{
		tasks:       deps.Tasks,
		deps:        deps.Deps,
		checkpoints: deps.Checkpoints,
		archive:     deps.Archive,
		audit:       deps.Audit,
		config:      deps.Config,
		manifests:   deps.Manifests,
		handoffs:    deps.Handoffs,
		gates:       deps.Gates,
		events:      deps.Events,
		notifier:    deps.Notifier,
	}
}

// TransitionOptions modify a stage transition request.
type TransitionOptions struct {
	// Force permits non-adjacent jumps and skips gate and dependency
	// checks. Used for manual overrides and restores.
	Force  bool
	Reason string
	Actor  string
}

// Transition moves a task to targetStage after the ordered precondition
// checks. On refusal the returned error wraps the matching sentinel; a
// dependency refusal still persists the recomputed blockedBy list so
// polling callers can see why the task is stuck.
func (e *Engine) Transition(ctx context.Context, taskID, targetStage string, opts TransitionOptions) (*models.Task, error) {
	pipeline, err := e.config.LoadPipeline()
	if err != nil {
		return nil, err
	}

	var updated models.Task
	var fromStage string
	var refusal *TransitionError

	err = e.tasks.Mutate(func(tasks []models.Task) ([]models.Task, error) {
		idx := indexOfTask(tasks, taskID)
		if idx < 0 {
			return nil, fmt.Errorf("task %s: %w", taskID, ErrNotFound)
		}
		task := tasks[idx]
		fromStage = task.Stage

		targetIdx := pipeline.StageIndex(targetStage)
		if targetIdx < 0 {
			return nil, &TransitionError{TaskID: taskID, FromStage: task.Stage, TargetStage: targetStage, Reason: ErrInvalidStage}
		}
		if targetStage == task.Stage {
			return nil, &TransitionError{TaskID: taskID, FromStage: task.Stage, TargetStage: targetStage, Reason: ErrNoOpTransition}
		}
		currentIdx := pipeline.StageIndex(task.Stage)
		if !opts.Force && abs(targetIdx-currentIdx) != 1 {
			return nil, &TransitionError{TaskID: taskID, FromStage: task.Stage, TargetStage: targetStage, Reason: ErrNonAdjacentTransition}
		}

		if targetIdx > currentIdx && !opts.Force {
			if missing := missingGates(task, pipeline); len(missing) > 0 {
				return nil, &TransitionError{
					TaskID:       taskID,
					FromStage:    task.Stage,
					TargetStage:  targetStage,
					Reason:       ErrGatesNotPassed,
					MissingGates: missing,
				}
			}
			if blocked := UnresolvedDependencies(task, tasks, pipeline.TerminalStage()); len(blocked) > 0 {
				// The one refusal that still writes state: persist the
				// blocked-by list for polling callers.
				task.BlockedBy = blocked
				task.UpdatedAt = time.Now().UTC()
				tasks[idx] = task
				refusal = &TransitionError{
					TaskID:      taskID,
					FromStage:   task.Stage,
					TargetStage: targetStage,
					Reason:      ErrDependencyBlocked,
					BlockedBy:   blocked,
				}
				return tasks, nil
			}
		}

		now := time.Now().UTC()
		if visit := task.CurrentVisit(); visit != nil {
			exited := now
			visit.ExitedAt = &exited
			duration := int64(now.Sub(visit.EnteredAt).Seconds())
			if duration < 0 {
				duration = 0
			}
			visit.DurationSeconds = duration
		}
		task.StageHistory = append(task.StageHistory, models.StageVisit{Stage: targetStage, EnteredAt: now})
		task.Stage = targetStage
		task.AssignedAgent = pipeline.AgentForStage(targetStage)
		ensureStageGates(&task, pipeline)
		task.BlockedBy = UnresolvedDependencies(task, tasks, pipeline.TerminalStage())
		task.UpdatedAt = now

		tasks[idx] = task
		updated = task
		return tasks, nil
	})
	if err != nil {
		return nil, err
	}
	if refusal != nil {
		if e.notifier != nil {
			_ = e.notifier.Notify(models.Notification{
				Title:       fmt.Sprintf("Transition blocked on %s", taskID),
				Description: fmt.Sprintf("Move %s -> %s blocked by: %s", refusal.FromStage, refusal.TargetStage, strings.Join(refusal.BlockedBy, ", ")),
				Type:        models.NotifyWarning,
				Meta: map[string]any{
					"taskId":    taskID,
					"stage":     refusal.FromStage,
					"blockedBy": refusal.BlockedBy,
				},
			})
		}
		return nil, refusal
	}

	// Documentation and telemetry never roll back a completed transition.
	if _, err := e.manifests.Write(updated); err != nil {
		e.emit("", fmt.Sprintf("manifest regeneration failed for %s: %v", updated.ID, err), nil)
	}
	e.auditLine(updated.ID, opts.Actor, transitionAuditLine(fromStage, targetStage, opts))
	excerpt := strings.TrimSpace(updated.Manifest[strings.ToLower(fromStage)])
	if _, err := e.handoffs.Create(updated, fromStage, targetStage, HandoffContext{Manifest: excerpt}); err != nil {
		e.emit("", fmt.Sprintf("handoff generation failed for %s: %v", updated.ID, err), nil)
	}
	e.emit(EventStageChanged, fmt.Sprintf("%s moved %s -> %s", updated.ID, fromStage, targetStage), map[string]any{
		"taskId":    updated.ID,
		"fromStage": fromStage,
		"toStage":   targetStage,
		"forced":    opts.Force,
		"actor":     opts.Actor,
	})

	return &updated, nil
}

// Advance moves a task one stage forward.
func (e *Engine) Advance(ctx context.Context, taskID string, opts TransitionOptions) (*models.Task, error) {
	pipeline, err := e.config.LoadPipeline()
	if err != nil {
		return nil, err
	}
	task, err := e.GetTask(taskID)
	if err != nil {
		return nil, err
	}

	idx := pipeline.StageIndex(task.Stage)
	if idx < 0 || idx >= len(pipeline.Stages)-1 {
		return nil, &TransitionError{TaskID: taskID, FromStage: task.Stage, TargetStage: "", Reason: ErrInvalidStage}
	}
	return e.Transition(ctx, taskID, pipeline.Stages[idx+1].ID, opts)
}

// tryAutoAdvance attempts one forward transition when the current stage
// is marked auto-advance and every configured gate passes. Failures are
// absorbed: auto-advance is opportunistic, never an error for the
// caller that changed gate state.
func (e *Engine) tryAutoAdvance(ctx context.Context, taskID string) {
	pipeline, err := e.config.LoadPipeline()
	if err != nil {
		return
	}
	task, err := e.GetTask(taskID)
	if err != nil {
		return
	}

	stage := pipeline.Stage(task.Stage)
	if stage == nil || !stage.AutoAdvance {
		return
	}
	if len(missingGates(*task, pipeline)) > 0 {
		return
	}
	_, _ = e.Advance(ctx, taskID, TransitionOptions{Actor: "auto-advance"})
}

// missingGates returns the gates configured for the task's current
// stage that are not true, sorted by name.
func missingGates(task models.Task, pipeline *models.PipelineConfig) []string {
	stage := pipeline.Stage(task.Stage)
	if stage == nil {
		return nil
	}
	var missing []string
	for _, name := range sortedGateNames(stage.Gates) {
		if !task.Gates[name] {
			missing = append(missing, name)
		}
	}
	return missing
}

// ensureStageGates initializes the current stage's configured gate keys
// to false without touching keys accumulated from earlier stages.
func ensureStageGates(task *models.Task, pipeline *models.PipelineConfig) {
	stage := pipeline.Stage(task.Stage)
	if stage == nil {
		return
	}
	if task.Gates == nil {
		task.Gates = map[string]bool{}
	}
	for name := range stage.Gates {
		if _, ok := task.Gates[name]; !ok {
			task.Gates[name] = false
		}
	}
}

func transitionAuditLine(fromStage, toStage string, opts TransitionOptions) string {
	line := fmt.Sprintf("stage %s -> %s", fromStage, toStage)
	if opts.Force {
		line += " (forced)"
	}
	if opts.Reason != "" {
		line += ": " + opts.Reason
	}
	return line
}

// auditLine appends to the per-task audit log, swallowing failures.
func (e *Engine) auditLine(taskID, actor, action string) {
	if actor == "" {
		actor = "system"
	}
	if err := e.audit.Append(taskID, actor, action); err != nil {
		e.emit("", fmt.Sprintf("audit append failed for %s: %v", taskID, err), nil)
	}
}

// emit writes to the event feed, swallowing failures. An empty event
// type logs an internal warning instead.
func (e *Engine) emit(eventType, message string, data map[string]any) {
	if e.events == nil {
		return
	}
	if eventType == "" {
		eventType = "internal.warning"
	}
	_ = e.events.Emit(eventType, message, data)
}

func indexOfTask(tasks []models.Task, taskID string) int {
	for i := range tasks {
		if tasks[i].ID == taskID {
			return i
		}
	}
	return -1
}

func abs(n int) int {
	if n < 0 {
		return -n
	}
	return n
}
