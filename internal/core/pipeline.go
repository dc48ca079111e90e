// Package core contains the business logic for the ops task pipeline,
// including the transition engine, gate validation, dependency
// resolution, manifest rendering, handoffs, and workspace bootstrap.
package core

import (
	"fmt"
	"os"

	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"

	"github.com/openclaw/opsd/pkg/models"
)

// ConfigManager loads the workspace configuration set. Pipeline, agent,
// and classification config is re-read on every call: the files may be
// hand-edited between operations, so no cached copy is trusted.
type ConfigManager interface {
	LoadPipeline() (*models.PipelineConfig, error)
	LoadAgents() (*models.AgentsConfig, error)
	LoadClassifications() (*models.ClassificationsConfig, error)
	LoadWorkspaceConfig() (*models.WorkspaceConfig, error)
}

// fileConfigManager implements ConfigManager over the workspace's
// config directory, falling back to seeded defaults for missing files.
type fileConfigManager struct {
	workspace models.Workspace
}

// NewConfigManager creates a ConfigManager for the given workspace.
func NewConfigManager(workspace models.Workspace) ConfigManager {
	return &fileConfigManager{workspace: workspace}
}

// DefaultPipelineConfig returns the seeded stage order. The last stage
// is terminal: dependencies resolve when their target reaches it.
func DefaultPipelineConfig() *models.PipelineConfig {
	return &models.PipelineConfig{Stages: []models.StageDefinition{
		{ID: "SPEC"},
		{ID: "PLANNING"},
		{ID: "BUILD"},
		{ID: "VALIDATE"},
		{ID: "DEPLOY"},
		{ID: "MONITOR"},
		{ID: "ARCHIVE"},
	}}
}

// DefaultAgentsConfig returns the seeded agent roster.
func DefaultAgentsConfig() *models.AgentsConfig {
	return &models.AgentsConfig{Agents: []models.Agent{
		{ID: "dano", Name: "DANO", Role: "owner"},
		{ID: "clawd", Name: "Clawd", Role: "coordinator"},
		{ID: "codex", Name: "Codex", Role: "builder"},
		{ID: "sentinel", Name: "Sentinel", Role: "validator"},
		{ID: "kyle", Name: "Kyle", Role: "operator"},
	}}
}

// DefaultClassificationsConfig returns the seeded classification list.
func DefaultClassificationsConfig() *models.ClassificationsConfig {
	return &models.ClassificationsConfig{Classifications: []string{
		"FRONTEND", "BACKEND", "FULLSTACK", "AGENT-CONFIG", "RESEARCH",
	}}
}

// LoadPipeline reads config/pipeline.yaml. A missing file yields the
// default pipeline; an empty stage list is returned as-is so callers
// can report the misconfiguration.
func (cm *fileConfigManager) LoadPipeline() (*models.PipelineConfig, error) {
	var cfg models.PipelineConfig
	found, err := readYAMLFile(cm.workspace.PipelineConfigFile(), &cfg)
	if err != nil {
		return nil, fmt.Errorf("loading pipeline config: %w", err)
	}
	if !found {
		return DefaultPipelineConfig(), nil
	}
	return &cfg, nil
}

// LoadAgents reads config/agents.yaml, defaulting when missing.
func (cm *fileConfigManager) LoadAgents() (*models.AgentsConfig, error) {
	var cfg models.AgentsConfig
	found, err := readYAMLFile(cm.workspace.AgentsConfigFile(), &cfg)
	if err != nil {
		return nil, fmt.Errorf("loading agents config: %w", err)
	}
	if !found {
		return DefaultAgentsConfig(), nil
	}
	return &cfg, nil
}

// LoadClassifications reads config/classifications.yaml, defaulting
// when missing.
func (cm *fileConfigManager) LoadClassifications() (*models.ClassificationsConfig, error) {
	var cfg models.ClassificationsConfig
	found, err := readYAMLFile(cm.workspace.ClassificationsConfigFile(), &cfg)
	if err != nil {
		return nil, fmt.Errorf("loading classifications config: %w", err)
	}
	if !found {
		return DefaultClassificationsConfig(), nil
	}
	return &cfg, nil
}

// LoadWorkspaceConfig reads the .opsconfig file from the workspace root
// using Viper. Missing keys and a missing file fall back to defaults.
func (cm *fileConfigManager) LoadWorkspaceConfig() (*models.WorkspaceConfig, error) {
	cfg := &models.WorkspaceConfig{
		TaskIDPrefix:    "TASK",
		DefaultPriority: models.PriorityMedium,
		Gates: models.GateRunConfig{
			TimeoutSeconds: 60,
			OutputCapBytes: 64 * 1024,
		},
	}

	v := viper.New()
	v.SetConfigName(".opsconfig")
	v.SetConfigType("yaml")
	v.AddConfigPath(cm.workspace.Root)

	v.SetDefault("task_id.prefix", cfg.TaskIDPrefix)
	v.SetDefault("defaults.priority", string(cfg.DefaultPriority))
	v.SetDefault("gates.timeout_seconds", cfg.Gates.TimeoutSeconds)
	v.SetDefault("gates.work_dir", cfg.Gates.WorkDir)
	v.SetDefault("gates.output_cap_bytes", cfg.Gates.OutputCapBytes)
	v.SetDefault("notifications.enabled", cfg.Notifications.Enabled)
	v.SetDefault("notifications.slack.webhook_url", "")

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); ok {
			return cfg, nil
		}
		return nil, fmt.Errorf("reading .opsconfig: %w", err)
	}

	cfg.TaskIDPrefix = v.GetString("task_id.prefix")
	cfg.DefaultPriority = models.Priority(v.GetString("defaults.priority"))
	cfg.Gates.TimeoutSeconds = v.GetInt("gates.timeout_seconds")
	cfg.Gates.WorkDir = v.GetString("gates.work_dir")
	cfg.Gates.OutputCapBytes = v.GetInt("gates.output_cap_bytes")
	cfg.Notifications.Enabled = v.GetBool("notifications.enabled")
	cfg.Notifications.Slack.WebhookURL = v.GetString("notifications.slack.webhook_url")

	return cfg, nil
}

// readYAMLFile unmarshals path into out. Returns found=false when the
// file does not exist.
func readYAMLFile(path string, out any) (bool, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return false, nil
		}
		return false, fmt.Errorf("reading %s: %w", path, err)
	}
	if err := yaml.Unmarshal(data, out); err != nil {
		return false, fmt.Errorf("parsing %s: %w", path, err)
	}
	return true, nil
}
