package core

// Event types emitted to the external event feed. Consumers filter on
// these names, so they are part of the persisted format.
const (
	EventTaskCreated     = "task.created"
	EventTaskUpdated     = "task.updated"
	EventTaskArchived    = "task.archived"
	EventTaskRestored    = "task.restored"
	EventStageChanged    = "task.stage.changed"
	EventManifestUpdated = "manifest.section.updated"
	EventGatePassed      = "gate.passed"
	EventGateFailed      = "gate.failed"
	EventGateLogLine     = "gate.log.line"
)
