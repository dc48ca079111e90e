package core

import (
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"

	"github.com/openclaw/opsd/pkg/models"
)

// defaultHandoffTemplates are seeded into templates/handoffs/ for the
// standard stage crossings. Users edit or add pair files freely; the
// generator falls back to a generic template for unknown pairs.
var defaultHandoffTemplates = map[string]string{
	"SPEC_TO_PLANNING.md":    "# Handoff: SPEC -> PLANNING\n\n**Task:** {taskId} - {title}\n\n## Context\n{manifest}\n\n## Notes\n- Refine architecture and implementation plan.\n",
	"PLANNING_TO_BUILD.md":   "# Handoff: PLANNING -> BUILD\n\n**Task:** {taskId} - {title}\n\n## Planning Summary\n{manifest}\n\n## Build Checklist\n- [ ] Create files listed in planning section\n- [ ] Implement listed steps\n- [ ] Run local tests\n- [ ] Ensure build succeeds\n",
	"BUILD_TO_VALIDATE.md":   "# Handoff: BUILD -> VALIDATE\n\n**Task:** {taskId} - {title}\n\n## Build Summary\n{manifest}\n\n## Validation Focus\n- [ ] Verify build and tests\n- [ ] Review security scan\n",
	"VALIDATE_TO_DEPLOY.md":  "# Handoff: VALIDATE -> DEPLOY\n\n**Task:** {taskId} - {title}\n\n## Validation Summary\n{manifest}\n\n## Deploy Checklist\n- [ ] Execute deploy workflow\n- [ ] Verify health checks\n",
	"DEPLOY_TO_MONITOR.md":   "# Handoff: DEPLOY -> MONITOR\n\n**Task:** {taskId} - {title}\n\n## Deploy Summary\n{manifest}\n\n## Monitoring Checklist\n- [ ] Track error rate\n- [ ] Track uptime\n",
	"MONITOR_TO_ARCHIVE.md":  "# Handoff: MONITOR -> ARCHIVE\n\n**Task:** {taskId} - {title}\n\n## Monitoring Summary\n{manifest}\n\n## Archive Checklist\n- [ ] Capture retrospective\n- [ ] Archive manifest\n",
}

// BootstrapResult reports what the bootstrap created or seeded.
type BootstrapResult struct {
	Root               string
	DirectoriesCreated int
	FilesSeeded        []string
	Stages             int
	Agents             int
	Classifications    int
}

// BootstrapWorkspace creates the workspace directory tree and seeds
// missing configuration, data, and handoff template files. It is
// idempotent: existing files are never overwritten.
func BootstrapWorkspace(ws models.Workspace) (*BootstrapResult, error) {
	result := &BootstrapResult{Root: ws.Root}

	dirs := []string{
		ws.Root,
		ws.ConfigDir(),
		ws.DataDir(),
		ws.ManifestsDir(),
		ws.HandoffsDir(),
		ws.HandoffTemplatesDir(),
		ws.AuditDir(),
		ws.ArchiveDir(),
		ws.LogsDir(),
		filepath.Join(ws.Root, "checkpoints"),
	}
	for _, dir := range dirs {
		if _, err := os.Stat(dir); os.IsNotExist(err) {
			result.DirectoriesCreated++
		}
		if err := os.MkdirAll(dir, 0o750); err != nil {
			return nil, fmt.Errorf("creating directory %s: %w", dir, err)
		}
	}

	pipeline := DefaultPipelineConfig()
	agents := DefaultAgentsConfig()
	classifications := DefaultClassificationsConfig()

	seeds := []struct {
		path  string
		label string
		data  any
	}{
		{ws.PipelineConfigFile(), "config/pipeline.yaml", pipeline},
		{ws.AgentsConfigFile(), "config/agents.yaml", agents},
		{ws.ClassificationsConfigFile(), "config/classifications.yaml", classifications},
		{ws.TasksFile(), "data/tasks.yaml", map[string]any{"version": "1.0", "tasks": []any{}}},
		{ws.DependenciesFile(), "data/dependencies.yaml", map[string]any{"version": "1.0", "edges": []any{}}},
		{ws.NotificationsFile(), "data/notifications.yaml", map[string]any{"version": "1.0", "notifications": []any{}}},
	}
	for _, seed := range seeds {
		created, err := seedYAMLIfMissing(seed.path, seed.data)
		if err != nil {
			return nil, err
		}
		if created {
			result.FilesSeeded = append(result.FilesSeeded, seed.label)
		}
	}

	for name, template := range defaultHandoffTemplates {
		path := filepath.Join(ws.HandoffTemplatesDir(), name)
		if _, err := os.Stat(path); err == nil {
			continue
		}
		if err := os.WriteFile(path, []byte(template), 0o600); err != nil {
			return nil, fmt.Errorf("seeding handoff template %s: %w", name, err)
		}
		result.FilesSeeded = append(result.FilesSeeded, "templates/handoffs/"+name)
	}

	// Report counts from what is actually on disk, seeded or not.
	cm := NewConfigManager(ws)
	if p, err := cm.LoadPipeline(); err == nil {
		result.Stages = len(p.Stages)
	}
	if a, err := cm.LoadAgents(); err == nil {
		result.Agents = len(a.Agents)
	}
	if c, err := cm.LoadClassifications(); err == nil {
		result.Classifications = len(c.Classifications)
	}

	return result, nil
}

func seedYAMLIfMissing(path string, data any) (bool, error) {
	if _, err := os.Stat(path); err == nil {
		return false, nil
	}
	out, err := yaml.Marshal(data)
	if err != nil {
		return false, fmt.Errorf("marshalling seed for %s: %w", path, err)
	}
	if err := os.WriteFile(path, out, 0o600); err != nil {
		return false, fmt.Errorf("seeding %s: %w", path, err)
	}
	return true, nil
}
