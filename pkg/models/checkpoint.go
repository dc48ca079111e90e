package models

import "time"

// Checkpoint is an immutable snapshot of task state keyed by
// (taskId, messageCount). Checkpoints are append-only history; files are
// never rewritten once created.
type Checkpoint struct {
	TaskID       string            `json:"taskId"`
	MessageCount int               `json:"messageCount"`
	Timestamp    time.Time         `json:"timestamp"`
	Stage        string            `json:"stage"`
	Manifest     map[string]string `json:"manifest"`
	Gates        map[string]bool   `json:"gates"`
	Progress     Progress          `json:"progress"`
	Metadata     map[string]any    `json:"metadata"`
}
