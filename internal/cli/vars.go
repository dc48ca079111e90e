package cli

import (
	"github.com/openclaw/opsd/internal/core"
	"github.com/openclaw/opsd/internal/observability"
	"github.com/openclaw/opsd/internal/storage"
	"github.com/openclaw/opsd/pkg/models"
)

// Service instances, set during app initialization in app.go.
var (
	BasePath      string
	Workspace     models.Workspace
	Engine        *core.Engine
	ConfigMgr     core.ConfigManager
	Checkpoints   storage.CheckpointStore
	Notifications storage.NotificationStore
	EventLog      observability.EventLog
)
