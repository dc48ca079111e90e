package core

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/openclaw/opsd/internal/integration"
	"github.com/openclaw/opsd/pkg/models"
)

// CommandRunner is the subset of the integration gate runner that the
// validator needs.
type CommandRunner interface {
	Run(ctx context.Context, command string, opts integration.GateRunOptions) integration.GateRunResult
}

// EventEmitter is the subset of the observability event log that core
// services need. Defining it here avoids importing the observability
// package.
type EventEmitter interface {
	Emit(eventType, message string, data map[string]any) error
}

// NotificationSender delivers notifications. Satisfied by the
// observability notifiers.
type NotificationSender interface {
	Notify(notification models.Notification) error
}

// GateDetail is the per-gate diagnostic record from a validation run.
type GateDetail struct {
	Type        models.GateType `json:"type"`
	Description string          `json:"description"`
	Approver    string          `json:"approver,omitempty"`
	Success     bool            `json:"success"`
	Command     string          `json:"command,omitempty"`
	WorkDir     string          `json:"workDir,omitempty"`
	Stdout      string          `json:"stdout,omitempty"`
	Stderr      string          `json:"stderr,omitempty"`
	ExitCode    int             `json:"exitCode"`
	TimedOut    bool            `json:"timedOut,omitempty"`
}

// GateValidation is the definite result of validating a stage's gates.
// Automated command failures of every kind (non-zero exit, timeout,
// spawn failure) are normalized into a false result with diagnostics,
// never an error.
type GateValidation struct {
	AllPassed bool                  `json:"allPassed"`
	Results   map[string]bool       `json:"results"`
	Details   map[string]GateDetail `json:"details"`
}

// GateValidator validates the gates configured for a task's current
// stage. Gates from prior stages are not re-validated.
type GateValidator struct {
	runner   CommandRunner
	events   EventEmitter
	notifier NotificationSender
	runCfg   models.GateRunConfig
}

// NewGateValidator creates a GateValidator. events and notifier are
// best-effort collaborators and may be nil.
func NewGateValidator(runner CommandRunner, events EventEmitter, notifier NotificationSender, runCfg models.GateRunConfig) *GateValidator {
	return &GateValidator{runner: runner, events: events, notifier: notifier, runCfg: runCfg}
}

// ValidateStageGates validates every gate configured for the task's
// current stage. Automated gate outcomes are written back into
// task.Gates; manual gates reflect the stored approval value.
func (v *GateValidator) ValidateStageGates(ctx context.Context, task *models.Task, pipeline *models.PipelineConfig) GateValidation {
	validation := GateValidation{
		AllPassed: true,
		Results:   map[string]bool{},
		Details:   map[string]GateDetail{},
	}

	stage := pipeline.Stage(task.Stage)
	if stage == nil || len(stage.Gates) == 0 {
		return validation
	}

	if task.Gates == nil {
		task.Gates = map[string]bool{}
	}

	for _, gateName := range sortedGateNames(stage.Gates) {
		gateCfg := stage.Gates[gateName]

		var passed bool
		var detail GateDetail
		if gateCfg.Type == models.GateAutomated && gateCfg.Command != "" {
			passed, detail = v.runAutomatedGate(ctx, task.ID, gateName, gateCfg)
			task.Gates[gateName] = passed
		} else {
			passed = task.Gates[gateName]
			detail = GateDetail{
				Type:        gateType(gateCfg),
				Description: gateDescription(gateName, gateCfg),
				Approver:    gateCfg.Approver,
				Success:     passed,
			}
		}

		validation.Results[gateName] = passed
		validation.Details[gateName] = detail
		if !passed {
			validation.AllPassed = false
		}

		v.emitGateEvent(task.ID, task.Stage, gateName, passed)
	}

	if !validation.AllPassed {
		v.notifyGateFailure(*task, validation)
	}

	return validation
}

// runAutomatedGate executes the gate command and replays its captured
// stdout line by line to the event feed.
func (v *GateValidator) runAutomatedGate(ctx context.Context, taskID, gateName string, gateCfg models.GateDefinition) (bool, GateDetail) {
	opts := integration.GateRunOptions{
		Timeout:   time.Duration(v.runCfg.TimeoutSeconds) * time.Second,
		WorkDir:   v.runCfg.WorkDir,
		OutputCap: v.runCfg.OutputCapBytes,
	}
	result := v.runner.Run(ctx, gateCfg.Command, opts)

	if v.events != nil {
		for _, line := range strings.Split(strings.TrimRight(result.Stdout, "\n"), "\n") {
			if line == "" {
				continue
			}
			_ = v.events.Emit(EventGateLogLine, line, map[string]any{
				"taskId": taskID,
				"gate":   gateName,
			})
		}
	}

	return result.Success, GateDetail{
		Type:        models.GateAutomated,
		Description: gateDescription(gateName, gateCfg),
		Success:     result.Success,
		Command:     result.Command,
		WorkDir:     result.WorkDir,
		Stdout:      result.Stdout,
		Stderr:      result.Stderr,
		ExitCode:    result.ExitCode,
		TimedOut:    result.TimedOut,
	}
}

func (v *GateValidator) emitGateEvent(taskID, stage, gateName string, passed bool) {
	if v.events == nil {
		return
	}
	eventType := EventGatePassed
	if !passed {
		eventType = EventGateFailed
	}
	_ = v.events.Emit(eventType, fmt.Sprintf("gate %s on %s", gateName, stage), map[string]any{
		"taskId": taskID,
		"stage":  stage,
		"gate":   gateName,
	})
}

func (v *GateValidator) notifyGateFailure(task models.Task, validation GateValidation) {
	if v.notifier == nil {
		return
	}

	var failing []string
	for name, passed := range validation.Results {
		if !passed {
			failing = append(failing, name)
		}
	}
	sort.Strings(failing)

	_ = v.notifier.Notify(models.Notification{
		Title:       fmt.Sprintf("Gate failure on %s", task.ID),
		Description: fmt.Sprintf("Stage %s gates failed: %s", task.Stage, strings.Join(failing, ", ")),
		Type:        models.NotifyError,
		Meta: map[string]any{
			"taskId": task.ID,
			"stage":  task.Stage,
			"gates":  failing,
		},
	})
}

func sortedGateNames(gates map[string]models.GateDefinition) []string {
	names := make([]string, 0, len(gates))
	for name := range gates {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func gateType(gateCfg models.GateDefinition) models.GateType {
	if gateCfg.Type == "" {
		return models.GateManual
	}
	return gateCfg.Type
}

func gateDescription(gateName string, gateCfg models.GateDefinition) string {
	if gateCfg.Description != "" {
		return gateCfg.Description
	}
	return gateName
}
