package models

import "time"

// Priority represents the urgency level of a task.
type Priority string

const (
	PriorityLow    Priority = "low"
	PriorityMedium Priority = "medium"
	PriorityHigh   Priority = "high"
	PriorityUrgent Priority = "urgent"
)

// ValidPriorities is the set of allowed Priority values.
var ValidPriorities = map[Priority]bool{
	PriorityLow:    true,
	PriorityMedium: true,
	PriorityHigh:   true,
	PriorityUrgent: true,
}

// StageVisit records one stay in a pipeline stage. ExitedAt is nil while
// the task is still in the stage; exactly one visit per task is open at
// any time after creation.
type StageVisit struct {
	Stage           string     `yaml:"stage" json:"stage"`
	EnteredAt       time.Time  `yaml:"entered_at" json:"enteredAt"`
	ExitedAt        *time.Time `yaml:"exited_at,omitempty" json:"exitedAt,omitempty"`
	DurationSeconds int64      `yaml:"duration_seconds" json:"durationSeconds"`
}

// Progress is caller-supplied, free-form progress reporting.
type Progress struct {
	CurrentStep    string `yaml:"current_step,omitempty" json:"currentStep,omitempty"`
	TotalSteps     int    `yaml:"total_steps" json:"totalSteps"`
	CompletedSteps int    `yaml:"completed_steps" json:"completedSteps"`
	Percentage     int    `yaml:"percentage" json:"percentage"`
}

// Task is the unit of work moving through the pipeline. Stage is always a
// member of the configured stage order; Gates accumulates keys as the
// task visits stages with gates; BlockedBy is derived from Dependencies
// and recomputed on every mutation, never trusted from disk.
type Task struct {
	ID             string            `yaml:"id" json:"id"`
	Title          string            `yaml:"title" json:"title"`
	Description    string            `yaml:"description,omitempty" json:"description,omitempty"`
	Classification string            `yaml:"classification" json:"classification"`
	Priority       Priority          `yaml:"priority" json:"priority"`
	Stage          string            `yaml:"stage" json:"stage"`
	AssignedAgent  string            `yaml:"assigned_agent,omitempty" json:"assignedAgent,omitempty"`
	Manifest       map[string]string `yaml:"manifest" json:"manifest"`
	Gates          map[string]bool   `yaml:"gates" json:"gates"`
	StageHistory   []StageVisit      `yaml:"stage_history" json:"stageHistory"`
	Dependencies   []string          `yaml:"dependencies,omitempty" json:"dependencies,omitempty"`
	BlockedBy      []string          `yaml:"blocked_by,omitempty" json:"blockedBy,omitempty"`
	Progress       Progress          `yaml:"progress" json:"progress"`
	Metadata       map[string]any    `yaml:"metadata,omitempty" json:"metadata,omitempty"`
	CreatedAt      time.Time         `yaml:"created_at" json:"createdAt"`
	UpdatedAt      time.Time         `yaml:"updated_at" json:"updatedAt"`
}

// CurrentVisit returns the open stage history entry, or nil if the
// history is empty.
func (t *Task) CurrentVisit() *StageVisit {
	for i := len(t.StageHistory) - 1; i >= 0; i-- {
		if t.StageHistory[i].ExitedAt == nil {
			return &t.StageHistory[i]
		}
	}
	return nil
}
