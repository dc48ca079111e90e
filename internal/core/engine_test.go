package core

import (
	"context"
	"errors"
	"os"
	"strings"
	"testing"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/openclaw/opsd/internal/integration"
	"github.com/openclaw/opsd/internal/storage"
	"github.com/openclaw/opsd/pkg/models"
)

type recordedEvent struct {
	Type    string
	Message string
	Data    map[string]any
}

type memEvents struct {
	events []recordedEvent
}

func (m *memEvents) Emit(eventType, message string, data map[string]any) error {
	m.events = append(m.events, recordedEvent{Type: eventType, Message: message, Data: data})
	return nil
}

func (m *memEvents) byType(eventType string) []recordedEvent {
	var matched []recordedEvent
	for _, e := range m.events {
		if e.Type == eventType {
			matched = append(matched, e)
		}
	}
	return matched
}

type memNotifier struct {
	sent []models.Notification
}

func (m *memNotifier) Notify(n models.Notification) error {
	m.sent = append(m.sent, n)
	return nil
}

// stubRunner returns canned results per command, defaulting to success.
// onRun, when set, is called before returning so a test can park a
// command mid-run.
type stubRunner struct {
	results map[string]integration.GateRunResult
	onRun   func(command string)
}

func (r *stubRunner) Run(ctx context.Context, command string, opts integration.GateRunOptions) integration.GateRunResult {
	if r.onRun != nil {
		r.onRun(command)
	}
	if res, ok := r.results[command]; ok {
		res.Command = command
		return res
	}
	return integration.GateRunResult{Success: true, Command: command}
}

type engineFixture struct {
	ws       models.Workspace
	engine   *Engine
	tasks    storage.TaskStore
	deps     storage.DependencyStore
	events   *memEvents
	notifier *memNotifier
	runner   *stubRunner
}

func newEngineFixture(t *testing.T) *engineFixture {
	t.Helper()

	ws := models.Workspace{Root: t.TempDir()}
	if _, err := BootstrapWorkspace(ws); err != nil {
		t.Fatalf("bootstrapping workspace: %v", err)
	}

	tasks := storage.NewTaskStore(ws.TasksFile())
	deps := storage.NewDependencyStore(ws.DependenciesFile())
	events := &memEvents{}
	notifier := &memNotifier{}
	runner := &stubRunner{results: map[string]integration.GateRunResult{}}

	validator := NewGateValidator(runner, events, notifier, models.GateRunConfig{
		TimeoutSeconds: 5,
		OutputCapBytes: 4096,
	})

	engine := NewEngine(EngineDeps{
		Tasks:       tasks,
		Deps:        deps,
		Checkpoints: storage.NewCheckpointStore(ws),
		Archive:     storage.NewArchiveStore(ws),
		Audit:       storage.NewAuditLog(ws),
		Config:      NewConfigManager(ws),
		Manifests:   NewManifestRenderer(ws),
		Handoffs:    NewHandoffGenerator(ws),
		Gates:       validator,
		Events:      events,
		Notifier:    notifier,
	})

	return &engineFixture{
		ws:       ws,
		engine:   engine,
		tasks:    tasks,
		deps:     deps,
		events:   events,
		notifier: notifier,
		runner:   runner,
	}
}

// setPipeline overwrites config/pipeline.yaml; the config manager
// re-reads it on every operation.
func (f *engineFixture) setPipeline(t *testing.T, cfg *models.PipelineConfig) {
	t.Helper()
	data, err := yaml.Marshal(cfg)
	if err != nil {
		t.Fatalf("marshaling pipeline config: %v", err)
	}
	if err := os.WriteFile(f.ws.PipelineConfigFile(), data, 0o600); err != nil {
		t.Fatalf("writing pipeline config: %v", err)
	}
}

func (f *engineFixture) mustCreate(t *testing.T, title string) *models.Task {
	t.Helper()
	task, err := f.engine.CreateTask(CreateTaskRequest{Title: title, Actor: "test"})
	if err != nil {
		t.Fatalf("creating task: %v", err)
	}
	return task
}

// gatedPipeline puts a manual gate on SPEC, auto-advance on PLANNING,
// and an automated gate on BUILD.
func gatedPipeline() *models.PipelineConfig {
	return &models.PipelineConfig{Stages: []models.StageDefinition{
		{ID: "SPEC", Gates: map[string]models.GateDefinition{
			"approval": {Type: models.GateManual, Approver: "dano", Description: "spec approved"},
		}},
		{ID: "PLANNING", AutoAdvance: true, AssignedAgents: []string{"clawd"}, Gates: map[string]models.GateDefinition{
			"plan_review": {Type: models.GateManual},
		}},
		{ID: "BUILD", AssignedAgents: []string{"codex"}, Gates: map[string]models.GateDefinition{
			"tests": {Type: models.GateAutomated, Command: "run-tests"},
		}},
		{ID: "VALIDATE"},
		{ID: "DEPLOY"},
		{ID: "MONITOR"},
		{ID: "ARCHIVE"},
	}}
}

func TestCreateTaskDefaults(t *testing.T) {
	f := newEngineFixture(t)

	task, err := f.engine.CreateTask(CreateTaskRequest{Title: "  Ship the thing  ", Actor: "dano"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !ValidTaskID(task.ID) {
		t.Errorf("expected a well-formed task ID, got %s", task.ID)
	}
	if task.Title != "Ship the thing" {
		t.Errorf("expected the title trimmed, got %q", task.Title)
	}
	if task.Stage != "SPEC" {
		t.Errorf("expected the first stage, got %s", task.Stage)
	}
	if task.Priority != models.PriorityMedium {
		t.Errorf("expected the default priority, got %s", task.Priority)
	}
	if len(task.StageHistory) != 1 || task.StageHistory[0].ExitedAt != nil {
		t.Errorf("expected one open stage history entry, got %v", task.StageHistory)
	}

	if _, err := os.Stat(f.ws.ManifestPath(task.ID)); err != nil {
		t.Errorf("expected a manifest on disk: %v", err)
	}
	if len(f.events.byType(EventTaskCreated)) != 1 {
		t.Errorf("expected a task.created event")
	}

	trail, err := f.engine.AuditTrail(task.ID)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(trail) != 1 || !strings.Contains(trail[0], "dano: created in SPEC") {
		t.Errorf("expected a creation audit line, got %v", trail)
	}
}

func TestCreateTaskValidation(t *testing.T) {
	f := newEngineFixture(t)

	_, err := f.engine.CreateTask(CreateTaskRequest{Title: "   "})
	if !errors.Is(err, ErrValidation) {
		t.Errorf("expected a validation error for a blank title, got %v", err)
	}

	_, err = f.engine.CreateTask(CreateTaskRequest{Title: "x", Priority: "critical"})
	if !errors.Is(err, ErrValidation) {
		t.Errorf("expected a validation error for an unknown priority, got %v", err)
	}

	_, err = f.engine.CreateTask(CreateTaskRequest{Title: "x", Classification: "WIDGET"})
	if !errors.Is(err, ErrValidation) {
		t.Errorf("expected a validation error for an unknown classification, got %v", err)
	}

	_, err = f.engine.CreateTask(CreateTaskRequest{Title: "x", Manifest: map[string]string{"roadmap": "nope"}})
	if !errors.Is(err, ErrValidation) {
		t.Errorf("expected a validation error for an unknown manifest section, got %v", err)
	}
}

func TestCreateTaskInitializesStageGates(t *testing.T) {
	f := newEngineFixture(t)
	f.setPipeline(t, gatedPipeline())

	task := f.mustCreate(t, "Gated task")
	passed, ok := task.Gates["approval"]
	if !ok || passed {
		t.Errorf("expected the approval gate initialized to false, got %v", task.Gates)
	}
}

func TestTransitionForward(t *testing.T) {
	f := newEngineFixture(t)
	task := f.mustCreate(t, "Moves forward")

	moved, err := f.engine.Transition(context.Background(), task.ID, "PLANNING", TransitionOptions{Actor: "dano"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if moved.Stage != "PLANNING" {
		t.Errorf("expected PLANNING, got %s", moved.Stage)
	}

	if len(moved.StageHistory) != 2 {
		t.Fatalf("expected 2 history entries, got %d", len(moved.StageHistory))
	}
	first, second := moved.StageHistory[0], moved.StageHistory[1]
	if first.ExitedAt == nil {
		t.Errorf("expected the SPEC visit closed")
	}
	if first.DurationSeconds < 0 {
		t.Errorf("expected a non-negative duration, got %d", first.DurationSeconds)
	}
	if second.Stage != "PLANNING" || second.ExitedAt != nil {
		t.Errorf("expected an open PLANNING visit, got %+v", second)
	}

	if _, err := os.Stat(f.ws.HandoffPath(task.ID, "SPEC", "PLANNING")); err != nil {
		t.Errorf("expected a handoff document: %v", err)
	}
	changes := f.events.byType(EventStageChanged)
	if len(changes) != 1 {
		t.Fatalf("expected one stage change event, got %d", len(changes))
	}
	if changes[0].Data["fromStage"] != "SPEC" || changes[0].Data["toStage"] != "PLANNING" {
		t.Errorf("expected stage data on the event, got %v", changes[0].Data)
	}
}

func TestTransitionReassignsAgent(t *testing.T) {
	f := newEngineFixture(t)
	f.setPipeline(t, gatedPipeline())
	task := f.mustCreate(t, "Gets reassigned")

	moved, err := f.engine.Transition(context.Background(), task.ID, "PLANNING", TransitionOptions{Force: true})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if moved.AssignedAgent != "clawd" {
		t.Errorf("expected the PLANNING agent, got %q", moved.AssignedAgent)
	}
}

func TestTransitionRefusals(t *testing.T) {
	f := newEngineFixture(t)
	task := f.mustCreate(t, "Refused")

	_, err := f.engine.Transition(context.Background(), task.ID, "SHIPPING", TransitionOptions{})
	if !errors.Is(err, ErrInvalidStage) {
		t.Errorf("expected ErrInvalidStage, got %v", err)
	}

	_, err = f.engine.Transition(context.Background(), task.ID, "SPEC", TransitionOptions{})
	if !errors.Is(err, ErrNoOpTransition) {
		t.Errorf("expected ErrNoOpTransition, got %v", err)
	}

	_, err = f.engine.Transition(context.Background(), task.ID, "BUILD", TransitionOptions{})
	if !errors.Is(err, ErrNonAdjacentTransition) {
		t.Errorf("expected ErrNonAdjacentTransition, got %v", err)
	}

	var terr *TransitionError
	if !errors.As(err, &terr) {
		t.Fatalf("expected a TransitionError, got %T", err)
	}
	if terr.TaskID != task.ID || terr.TargetStage != "BUILD" {
		t.Errorf("expected refusal details, got %+v", terr)
	}

	got, err := f.engine.GetTask(task.ID)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got.Stage != "SPEC" {
		t.Errorf("expected refusals to leave the task in place, got %s", got.Stage)
	}
}

func TestTransitionForceJumps(t *testing.T) {
	f := newEngineFixture(t)
	f.setPipeline(t, gatedPipeline())
	task := f.mustCreate(t, "Jumps")

	moved, err := f.engine.Transition(context.Background(), task.ID, "MONITOR", TransitionOptions{Force: true, Reason: "hotfix went straight out"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if moved.Stage != "MONITOR" {
		t.Errorf("expected MONITOR after a forced jump, got %s", moved.Stage)
	}

	trail, err := f.engine.AuditTrail(task.ID)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	last := trail[len(trail)-1]
	if !strings.Contains(last, "(forced)") || !strings.Contains(last, "hotfix went straight out") {
		t.Errorf("expected the forced reason audited, got %q", last)
	}
}

func TestTransitionBackwardSkipsGateChecks(t *testing.T) {
	f := newEngineFixture(t)
	f.setPipeline(t, gatedPipeline())
	task := f.mustCreate(t, "Goes back")

	if _, err := f.engine.Transition(context.Background(), task.ID, "BUILD", TransitionOptions{Force: true}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	// BUILD's automated gate has not run, yet moving backward is allowed.
	moved, err := f.engine.Transition(context.Background(), task.ID, "PLANNING", TransitionOptions{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if moved.Stage != "PLANNING" {
		t.Errorf("expected PLANNING, got %s", moved.Stage)
	}
}

func TestTransitionGatesNotPassed(t *testing.T) {
	f := newEngineFixture(t)
	f.setPipeline(t, gatedPipeline())
	task := f.mustCreate(t, "Gated")

	_, err := f.engine.Transition(context.Background(), task.ID, "PLANNING", TransitionOptions{})
	if !errors.Is(err, ErrGatesNotPassed) {
		t.Fatalf("expected ErrGatesNotPassed, got %v", err)
	}
	var terr *TransitionError
	if !errors.As(err, &terr) {
		t.Fatalf("expected a TransitionError, got %T", err)
	}
	if len(terr.MissingGates) != 1 || terr.MissingGates[0] != "approval" {
		t.Errorf("expected the missing gate named, got %v", terr.MissingGates)
	}

	if _, err := f.engine.SetGate(context.Background(), task.ID, "approval", true, GateSetOptions{Actor: "dano"}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	moved, err := f.engine.Transition(context.Background(), task.ID, "PLANNING", TransitionOptions{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if moved.Stage != "PLANNING" {
		t.Errorf("expected PLANNING once the gate passed, got %s", moved.Stage)
	}
}

func TestTransitionGatesCheckedBeforeDependencies(t *testing.T) {
	f := newEngineFixture(t)
	f.setPipeline(t, gatedPipeline())
	blocker := f.mustCreate(t, "Blocker")
	task := f.mustCreate(t, "Blocked and gated")
	if _, err := f.engine.AddDependency(task.ID, blocker.ID, "test"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	_, err := f.engine.Transition(context.Background(), task.ID, "PLANNING", TransitionOptions{})
	if !errors.Is(err, ErrGatesNotPassed) {
		t.Errorf("expected the gate refusal to win, got %v", err)
	}
}

func TestTransitionDependencyBlockedPersistsBlockedBy(t *testing.T) {
	f := newEngineFixture(t)
	blocker := f.mustCreate(t, "Blocker")
	task := f.mustCreate(t, "Blocked")
	if _, err := f.engine.AddDependency(task.ID, blocker.ID, "test"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	_, err := f.engine.Transition(context.Background(), task.ID, "PLANNING", TransitionOptions{})
	if !errors.Is(err, ErrDependencyBlocked) {
		t.Fatalf("expected ErrDependencyBlocked, got %v", err)
	}
	var terr *TransitionError
	if !errors.As(err, &terr) {
		t.Fatalf("expected a TransitionError, got %T", err)
	}
	if len(terr.BlockedBy) != 1 || terr.BlockedBy[0] != blocker.ID {
		t.Errorf("expected the blocker named, got %v", terr.BlockedBy)
	}

	// The refusal still persisted the blocked-by list.
	stored, err := f.engine.GetTask(task.ID)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if stored.Stage != "SPEC" {
		t.Errorf("expected the task to stay in SPEC, got %s", stored.Stage)
	}
	if len(stored.BlockedBy) != 1 || stored.BlockedBy[0] != blocker.ID {
		t.Errorf("expected blockedBy persisted, got %v", stored.BlockedBy)
	}

	// The refusal raises a notification naming the blocker.
	if len(f.notifier.sent) != 1 {
		t.Fatalf("expected one notification, got %d", len(f.notifier.sent))
	}
	blockedNote := f.notifier.sent[0]
	if blockedNote.Type != models.NotifyWarning {
		t.Errorf("expected a warning notification, got %s", blockedNote.Type)
	}
	if !strings.Contains(blockedNote.Description, blocker.ID) {
		t.Errorf("expected the blocker named in %q", blockedNote.Description)
	}
	if blockedNote.Meta["taskId"] != task.ID {
		t.Errorf("expected the blocked task tagged, got %v", blockedNote.Meta["taskId"])
	}

	// Resolving the blocker unblocks the transition.
	if _, err := f.engine.Transition(context.Background(), blocker.ID, "ARCHIVE", TransitionOptions{Force: true}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	moved, err := f.engine.Transition(context.Background(), task.ID, "PLANNING", TransitionOptions{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(moved.BlockedBy) != 0 {
		t.Errorf("expected blockedBy cleared, got %v", moved.BlockedBy)
	}
}

func TestAdvanceAtTerminalStage(t *testing.T) {
	f := newEngineFixture(t)
	task := f.mustCreate(t, "Done")
	if _, err := f.engine.Transition(context.Background(), task.ID, "ARCHIVE", TransitionOptions{Force: true}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	_, err := f.engine.Advance(context.Background(), task.ID, TransitionOptions{})
	if !errors.Is(err, ErrInvalidStage) {
		t.Errorf("expected ErrInvalidStage past the last stage, got %v", err)
	}
}

func TestValidateGatesPersistsAutomatedOutcomes(t *testing.T) {
	f := newEngineFixture(t)
	f.setPipeline(t, gatedPipeline())
	task := f.mustCreate(t, "Automated")
	if _, err := f.engine.Transition(context.Background(), task.ID, "BUILD", TransitionOptions{Force: true}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	f.runner.results["run-tests"] = integration.GateRunResult{Success: false, ExitCode: 2, Stderr: "3 tests failed"}
	validation, err := f.engine.ValidateGates(context.Background(), task.ID)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if validation.AllPassed {
		t.Errorf("expected a failing validation")
	}
	if validation.Details["tests"].ExitCode != 2 {
		t.Errorf("expected diagnostics preserved, got %+v", validation.Details["tests"])
	}
	stored, err := f.engine.GetTask(task.ID)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if stored.Gates["tests"] {
		t.Errorf("expected the failed outcome written back")
	}
	if len(f.notifier.sent) == 0 {
		t.Errorf("expected a gate failure notification")
	}

	f.runner.results["run-tests"] = integration.GateRunResult{Success: true, Stdout: "ok\n"}
	validation, err = f.engine.ValidateGates(context.Background(), task.ID)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !validation.AllPassed {
		t.Errorf("expected a passing validation")
	}
	stored, err = f.engine.GetTask(task.ID)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !stored.Gates["tests"] {
		t.Errorf("expected the passing outcome written back")
	}
}

func TestValidateGatesKeepsConcurrentManualApproval(t *testing.T) {
	f := newEngineFixture(t)
	f.setPipeline(t, &models.PipelineConfig{Stages: []models.StageDefinition{
		{ID: "SPEC", Gates: map[string]models.GateDefinition{
			"approval": {Type: models.GateManual, Approver: "dano"},
			"tests":    {Type: models.GateAutomated, Command: "run-tests"},
		}},
		{ID: "PLANNING"},
		{ID: "ARCHIVE"},
	}})
	task := f.mustCreate(t, "Raced")

	started := make(chan struct{})
	release := make(chan struct{})
	f.runner.onRun = func(string) {
		close(started)
		<-release
	}

	done := make(chan error, 1)
	go func() {
		_, err := f.engine.ValidateGates(context.Background(), task.ID)
		done <- err
	}()

	// Approve the manual gate while the automated command is running.
	<-started
	if _, err := f.engine.SetGate(context.Background(), task.ID, "approval", true, GateSetOptions{Actor: "dano"}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	close(release)
	if err := <-done; err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	stored, err := f.engine.GetTask(task.ID)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !stored.Gates["approval"] {
		t.Errorf("expected the mid-run approval kept, got %v", stored.Gates)
	}
	if !stored.Gates["tests"] {
		t.Errorf("expected the automated outcome written back, got %v", stored.Gates)
	}
}

func TestAutoAdvanceOnGatePass(t *testing.T) {
	f := newEngineFixture(t)
	f.setPipeline(t, gatedPipeline())
	task := f.mustCreate(t, "Auto")
	if _, err := f.engine.Transition(context.Background(), task.ID, "PLANNING", TransitionOptions{Force: true}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	// PLANNING is auto-advance; passing its only gate moves the task on.
	updated, err := f.engine.SetGate(context.Background(), task.ID, "plan_review", true, GateSetOptions{Actor: "clawd"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if updated.Stage != "BUILD" {
		t.Errorf("expected auto-advance to BUILD, got %s", updated.Stage)
	}
}

func TestAutoAdvanceNotTriggeredOnPlainStages(t *testing.T) {
	f := newEngineFixture(t)
	f.setPipeline(t, gatedPipeline())
	task := f.mustCreate(t, "Stays put")

	// SPEC is not auto-advance; a passing gate leaves the task in place.
	updated, err := f.engine.SetGate(context.Background(), task.ID, "approval", true, GateSetOptions{Actor: "dano"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if updated.Stage != "SPEC" {
		t.Errorf("expected the task to stay in SPEC, got %s", updated.Stage)
	}
}

func TestSetGateRejection(t *testing.T) {
	f := newEngineFixture(t)
	f.setPipeline(t, gatedPipeline())
	task := f.mustCreate(t, "Rejected")

	_, err := f.engine.SetGate(context.Background(), task.ID, "nonexistent", true, GateSetOptions{})
	if !errors.Is(err, ErrValidation) {
		t.Errorf("expected a validation error for an unconfigured gate, got %v", err)
	}

	for i := 1; i <= 2; i++ {
		updated, err := f.engine.SetGate(context.Background(), task.ID, "approval", false, GateSetOptions{Actor: "dano", Reason: "needs rework"})
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if got := rejectionCount(updated.Metadata); got != i {
			t.Errorf("expected rejection count %d, got %d", i, got)
		}
	}

	if len(f.notifier.sent) != 2 {
		t.Fatalf("expected a notification per rejection, got %d", len(f.notifier.sent))
	}
	if f.notifier.sent[0].Type != models.NotifyWarning {
		t.Errorf("expected a warning notification, got %s", f.notifier.sent[0].Type)
	}
	if len(f.events.byType(EventGateFailed)) != 2 {
		t.Errorf("expected gate failure events")
	}
}

func TestGateStatus(t *testing.T) {
	f := newEngineFixture(t)
	f.setPipeline(t, gatedPipeline())
	task := f.mustCreate(t, "Status")

	status, err := f.engine.GateStatus(task.ID)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if status.Stage != "SPEC" {
		t.Errorf("expected SPEC, got %s", status.Stage)
	}
	if len(status.Missing) != 1 || status.Missing[0] != "approval" {
		t.Errorf("expected the unmet gate listed, got %v", status.Missing)
	}
	if _, ok := status.Configured["approval"]; !ok {
		t.Errorf("expected the stage gate configuration, got %v", status.Configured)
	}
}

func TestUpdateTask(t *testing.T) {
	f := newEngineFixture(t)
	task := f.mustCreate(t, "Original title")

	title := "New title"
	priority := models.PriorityUrgent
	agent := "codex"
	updated, err := f.engine.UpdateTask(task.ID, UpdateTaskRequest{
		Title:         &title,
		Priority:      &priority,
		AssignedAgent: &agent,
		Metadata:      map[string]any{"sprint": "2026-35"},
		Actor:         "dano",
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if updated.Title != "New title" || updated.Priority != models.PriorityUrgent || updated.AssignedAgent != "codex" {
		t.Errorf("expected fields applied, got %+v", updated)
	}
	if updated.Description != task.Description {
		t.Errorf("expected untouched fields preserved")
	}
	if updated.Metadata["sprint"] != "2026-35" {
		t.Errorf("expected metadata merged, got %v", updated.Metadata)
	}

	empty := "  "
	_, err = f.engine.UpdateTask(task.ID, UpdateTaskRequest{Title: &empty})
	if !errors.Is(err, ErrValidation) {
		t.Errorf("expected a validation error for a blank title, got %v", err)
	}
}

func TestDeleteTask(t *testing.T) {
	f := newEngineFixture(t)
	blocker := f.mustCreate(t, "Blocker")
	task := f.mustCreate(t, "Doomed")
	if _, err := f.engine.AddDependency(task.ID, blocker.ID, "test"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if err := f.engine.DeleteTask(task.ID, "dano"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	_, err := f.engine.GetTask(task.ID)
	if !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound after delete, got %v", err)
	}
	if _, err := os.Stat(f.ws.ManifestPath(task.ID)); !os.IsNotExist(err) {
		t.Errorf("expected the manifest removed")
	}
	edges, err := f.engine.DependencyGraph()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(edges) != 0 {
		t.Errorf("expected dependency edges dropped, got %v", edges)
	}

	if err := f.engine.DeleteTask(task.ID, "dano"); !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound deleting twice, got %v", err)
	}
}

func TestUpdateManifestSection(t *testing.T) {
	f := newEngineFixture(t)
	task := f.mustCreate(t, "Documented")

	_, err := f.engine.UpdateManifestSection(task.ID, "roadmap", "x", "dano")
	if !errors.Is(err, ErrValidation) {
		t.Errorf("expected a validation error for an unknown section, got %v", err)
	}

	updated, err := f.engine.UpdateManifestSection(task.ID, "BUILD", "Wired the storage layer.", "dano")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if updated.Manifest["build"] != "Wired the storage layer." {
		t.Errorf("expected the section stored lowercase, got %v", updated.Manifest)
	}

	content, err := f.engine.GetManifest(task.ID)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !strings.Contains(content, "Wired the storage layer.") {
		t.Errorf("expected the re-rendered document to carry the section")
	}
	if len(f.events.byType(EventManifestUpdated)) != 1 {
		t.Errorf("expected a manifest update event")
	}
}

func TestGetManifestRegeneratesMissingFile(t *testing.T) {
	f := newEngineFixture(t)
	task := f.mustCreate(t, "Regenerated")

	if err := os.Remove(f.ws.ManifestPath(task.ID)); err != nil {
		t.Fatalf("removing manifest: %v", err)
	}

	content, err := f.engine.GetManifest(task.ID)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !strings.Contains(content, task.ID) {
		t.Errorf("expected a regenerated manifest, got %q", content)
	}
	if _, err := os.Stat(f.ws.ManifestPath(task.ID)); err != nil {
		t.Errorf("expected the manifest back on disk: %v", err)
	}
}

func TestAddDependencyValidation(t *testing.T) {
	f := newEngineFixture(t)
	task := f.mustCreate(t, "Self")

	_, err := f.engine.AddDependency(task.ID, task.ID, "test")
	if !errors.Is(err, ErrValidation) {
		t.Errorf("expected a validation error for a self-dependency, got %v", err)
	}

	_, err = f.engine.AddDependency(task.ID, "TASK-0-000000", "test")
	if !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound for a missing target, got %v", err)
	}
}

func TestRemoveDependency(t *testing.T) {
	f := newEngineFixture(t)
	blocker := f.mustCreate(t, "Blocker")
	task := f.mustCreate(t, "Depends")
	if _, err := f.engine.AddDependency(task.ID, blocker.ID, "test"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	updated, err := f.engine.RemoveDependency(task.ID, blocker.ID, "test")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(updated.Dependencies) != 0 || len(updated.BlockedBy) != 0 {
		t.Errorf("expected the dependency gone, got %+v", updated)
	}

	// Removing an edge that is already gone is tolerated.
	if _, err := f.engine.RemoveDependency(task.ID, blocker.ID, "test"); err != nil {
		t.Errorf("unexpected error removing twice: %v", err)
	}
}

func TestCheckpointsThroughEngine(t *testing.T) {
	f := newEngineFixture(t)
	task := f.mustCreate(t, "Snapshotted")

	_, err := f.engine.LatestCheckpoint(task.ID)
	if !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound with no checkpoints, got %v", err)
	}

	if _, err := f.engine.CreateCheckpoint(task.ID, 10); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if _, err := f.engine.CreateCheckpoint(task.ID, 25); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	names, err := f.engine.ListCheckpoints(task.ID)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(names) != 2 {
		t.Errorf("expected 2 checkpoints, got %d", len(names))
	}

	latest, err := f.engine.LatestCheckpoint(task.ID)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if latest.MessageCount != 25 {
		t.Errorf("expected the latest checkpoint, got %d", latest.MessageCount)
	}
	if latest.Stage != "SPEC" {
		t.Errorf("expected the stage snapshotted, got %s", latest.Stage)
	}
}

func TestArchiveAndRestore(t *testing.T) {
	f := newEngineFixture(t)
	task := f.mustCreate(t, "Finished work")
	if _, err := f.engine.UpdateManifestSection(task.ID, "monitor", "No incidents for two weeks.", "kyle"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	location, err := f.engine.ArchiveTask(task.ID, "kyle")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if location == "" {
		t.Fatalf("expected an archive location")
	}

	_, err = f.engine.GetTask(task.ID)
	if !errors.Is(err, ErrNotFound) {
		t.Errorf("expected the task out of the active store, got %v", err)
	}
	if _, err := os.Stat(f.ws.ManifestPath(task.ID)); !os.IsNotExist(err) {
		t.Errorf("expected the manifest relocated out of manifests/")
	}

	entries, err := f.engine.ListArchive()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(entries) != 1 || entries[0].TaskID != task.ID {
		t.Errorf("expected the task in the archive listing, got %v", entries)
	}

	restored, err := f.engine.RestoreTask(task.ID, RestoreOverrides{Actor: "kyle"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if restored.Stage != "ARCHIVE" {
		t.Errorf("expected restore at the terminal stage, got %s", restored.Stage)
	}
	if restored.Title != "Finished work" {
		t.Errorf("expected the title recovered from the manifest heading, got %q", restored.Title)
	}
	if !strings.Contains(restored.Manifest["retrospective"], "No incidents for two weeks.") {
		t.Errorf("expected the archived document folded into the retrospective")
	}

	// The archive copy is consumed by the restore.
	_, _, err = f.engine.GetArchivedManifest(task.ID)
	if !errors.Is(err, ErrNotFound) {
		t.Errorf("expected the archive entry consumed, got %v", err)
	}
	_, err = f.engine.RestoreTask(task.ID, RestoreOverrides{})
	if !errors.Is(err, ErrAlreadyActive) {
		t.Errorf("expected a second restore to fail with ErrAlreadyActive, got %v", err)
	}
}

func TestRestoreRefusedWhileActive(t *testing.T) {
	f := newEngineFixture(t)
	task := f.mustCreate(t, "Still active")

	// Plant an archive copy while the task is still in the active store.
	month := time.Now().UTC().Format("2006-01")
	bucket := f.ws.ArchiveBucket(month)
	if err := os.MkdirAll(bucket, 0o750); err != nil {
		t.Fatalf("creating bucket: %v", err)
	}
	if err := os.WriteFile(f.ws.ArchiveBucket(month)+"/"+task.ID+".md", []byte("# "+task.ID+": Still active\n"), 0o600); err != nil {
		t.Fatalf("planting archive copy: %v", err)
	}

	_, err := f.engine.RestoreTask(task.ID, RestoreOverrides{})
	if !errors.Is(err, ErrAlreadyActive) {
		t.Errorf("expected ErrAlreadyActive, got %v", err)
	}
}

func TestRestoreOverrides(t *testing.T) {
	f := newEngineFixture(t)
	task := f.mustCreate(t, "Overridden")
	if _, err := f.engine.ArchiveTask(task.ID, "test"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	restored, err := f.engine.RestoreTask(task.ID, RestoreOverrides{
		Title:          "Back from the archive",
		Classification: "BACKEND",
		Priority:       models.PriorityHigh,
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if restored.Title != "Back from the archive" {
		t.Errorf("expected the override title, got %q", restored.Title)
	}
	if restored.Classification != "BACKEND" || restored.Priority != models.PriorityHigh {
		t.Errorf("expected the overrides applied, got %+v", restored)
	}
}
