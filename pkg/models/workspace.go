package models

import "path/filepath"

// Workspace resolves every persisted location from a single root
// directory. Components receive a Workspace at construction instead of
// reading process-wide path constants.
type Workspace struct {
	Root string
}

// NewWorkspace creates a Workspace rooted at dir.
func NewWorkspace(dir string) Workspace {
	return Workspace{Root: dir}
}

func (w Workspace) ConfigDir() string    { return filepath.Join(w.Root, "config") }
func (w Workspace) DataDir() string      { return filepath.Join(w.Root, "data") }
func (w Workspace) ManifestsDir() string { return filepath.Join(w.Root, "manifests") }
func (w Workspace) HandoffsDir() string  { return filepath.Join(w.Root, "handoffs") }
func (w Workspace) AuditDir() string     { return filepath.Join(w.Root, "audit") }
func (w Workspace) ArchiveDir() string   { return filepath.Join(w.Root, "archive") }
func (w Workspace) LogsDir() string      { return filepath.Join(w.Root, "logs") }

// HandoffTemplatesDir holds the per-stage-pair handoff templates.
func (w Workspace) HandoffTemplatesDir() string {
	return filepath.Join(w.Root, "templates", "handoffs")
}

// CheckpointsDir returns the checkpoint directory for a task.
func (w Workspace) CheckpointsDir(taskID string) string {
	return filepath.Join(w.Root, "checkpoints", taskID)
}

func (w Workspace) PipelineConfigFile() string {
	return filepath.Join(w.ConfigDir(), "pipeline.yaml")
}

func (w Workspace) AgentsConfigFile() string {
	return filepath.Join(w.ConfigDir(), "agents.yaml")
}

func (w Workspace) ClassificationsConfigFile() string {
	return filepath.Join(w.ConfigDir(), "classifications.yaml")
}

// TasksFile is the whole-document active task store.
func (w Workspace) TasksFile() string {
	return filepath.Join(w.DataDir(), "tasks.yaml")
}

// DependenciesFile is the whole-document dependency edge list.
func (w Workspace) DependenciesFile() string {
	return filepath.Join(w.DataDir(), "dependencies.yaml")
}

// NotificationsFile is the file-backed notification store.
func (w Workspace) NotificationsFile() string {
	return filepath.Join(w.DataDir(), "notifications.yaml")
}

// EventLogFile is the append-only JSONL event feed.
func (w Workspace) EventLogFile() string {
	return filepath.Join(w.Root, ".opsd_events.jsonl")
}

// ManifestPath returns the rendered manifest document for a task.
func (w Workspace) ManifestPath(taskID string) string {
	return filepath.Join(w.ManifestsDir(), taskID+".md")
}

// AuditLogPath returns the per-task audit log file.
func (w Workspace) AuditLogPath(taskID string) string {
	return filepath.Join(w.AuditDir(), taskID+".log")
}

// HandoffPath returns the handoff document for a stage crossing. One
// file per (task, from, to); repeated crossings overwrite it.
func (w Workspace) HandoffPath(taskID, fromStage, toStage string) string {
	return filepath.Join(w.HandoffsDir(), taskID+"-"+fromStage+"-"+toStage+".md")
}

// ArchiveBucket returns the dated archive directory for a year-month
// label such as "2026-08".
func (w Workspace) ArchiveBucket(month string) string {
	return filepath.Join(w.ArchiveDir(), month)
}
