// Package internal provides the App struct that wires all components of
// the ops pipeline engine together and initializes the CLI layer.
package internal

import (
	"os"
	"path/filepath"

	"github.com/openclaw/opsd/internal/cli"
	"github.com/openclaw/opsd/internal/core"
	"github.com/openclaw/opsd/internal/integration"
	"github.com/openclaw/opsd/internal/observability"
	"github.com/openclaw/opsd/internal/storage"
	"github.com/openclaw/opsd/pkg/models"
)

// App holds all service dependencies for the pipeline engine.
type App struct {
	Workspace models.Workspace

	ConfigMgr core.ConfigManager

	Tasks         storage.TaskStore
	Deps          storage.DependencyStore
	Checkpoints   storage.CheckpointStore
	Archive       storage.ArchiveStore
	Audit         storage.AuditLog
	Notifications storage.NotificationStore

	GateRunner integration.GateRunner

	EventLog observability.EventLog
	Notifier observability.Notifier

	Engine *core.Engine
}

// NewApp creates and wires all components. basePath is the workspace
// root directory (typically the directory containing .opsconfig).
func NewApp(basePath string) (*App, error) {
	ws := models.NewWorkspace(basePath)
	app := &App{Workspace: ws}

	app.ConfigMgr = core.NewConfigManager(ws)
	wsCfg, err := app.ConfigMgr.LoadWorkspaceConfig()
	if err != nil {
		return nil, err
	}

	app.Tasks = storage.NewTaskStore(ws.TasksFile())
	app.Deps = storage.NewDependencyStore(ws.DependenciesFile())
	app.Checkpoints = storage.NewCheckpointStore(ws)
	app.Archive = storage.NewArchiveStore(ws)
	app.Audit = storage.NewAuditLog(ws)
	app.Notifications = storage.NewNotificationStore(ws.NotificationsFile())

	app.GateRunner = integration.NewGateRunner()

	app.EventLog, err = observability.NewJSONLEventLog(ws.EventLogFile())
	if err != nil {
		// Non-fatal: run without the event feed.
		app.EventLog = nil
	}

	notifiers := []observability.Notifier{observability.NewStoreNotifier(app.Notifications)}
	if wsCfg.Notifications.Enabled && wsCfg.Notifications.Slack.WebhookURL != "" {
		notifiers = append(notifiers, observability.NewSlackNotifier(wsCfg.Notifications.Slack.WebhookURL))
	}
	app.Notifier = observability.NewMultiNotifier(notifiers...)

	var events core.EventEmitter
	if app.EventLog != nil {
		events = app.EventLog
	}

	validator := core.NewGateValidator(app.GateRunner, events, app.Notifier, wsCfg.Gates)

	app.Engine = core.NewEngine(core.EngineDeps{
		Tasks:       app.Tasks,
		Deps:        app.Deps,
		Checkpoints: app.Checkpoints,
		Archive:     app.Archive,
		Audit:       app.Audit,
		Config:      app.ConfigMgr,
		Manifests:   core.NewManifestRenderer(ws),
		Handoffs:    core.NewHandoffGenerator(ws),
		Gates:       validator,
		Events:      events,
		Notifier:    app.Notifier,
	})

	// Expose services to the CLI layer.
	cli.BasePath = basePath
	cli.Engine = app.Engine
	cli.ConfigMgr = app.ConfigMgr
	cli.Checkpoints = app.Checkpoints
	cli.Notifications = app.Notifications
	cli.EventLog = app.EventLog
	cli.Workspace = ws

	return app, nil
}

// ResolveBasePath returns the workspace root: OPSD_HOME when set,
// otherwise the nearest ancestor directory containing .opsconfig,
// falling back to the current directory.
func ResolveBasePath() string {
	if home := os.Getenv("OPSD_HOME"); home != "" {
		return home
	}
	dir, err := os.Getwd()
	if err != nil {
		return "."
	}
	for {
		if _, err := os.Stat(filepath.Join(dir, ".opsconfig")); err == nil {
			return dir
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			break
		}
		dir = parent
	}
	cwd, _ := os.Getwd()
	return cwd
}
