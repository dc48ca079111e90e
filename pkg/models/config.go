package models

// GateRunConfig controls automated gate command execution.
type GateRunConfig struct {
	TimeoutSeconds int    `yaml:"timeout_seconds" mapstructure:"timeout_seconds"`
	WorkDir        string `yaml:"work_dir" mapstructure:"work_dir"`
	OutputCapBytes int    `yaml:"output_cap_bytes" mapstructure:"output_cap_bytes"`
}

// SlackConfig holds the optional Slack webhook sink.
type SlackConfig struct {
	WebhookURL string `yaml:"webhook_url" mapstructure:"webhook_url"`
}

// NotificationConfig controls notification delivery.
type NotificationConfig struct {
	Enabled bool        `yaml:"enabled" mapstructure:"enabled"`
	Slack   SlackConfig `yaml:"slack" mapstructure:"slack"`
}

// WorkspaceConfig holds workspace-wide settings read from .opsconfig via
// Viper. Pipeline, agent, and classification configuration live in their
// own files under config/ and are re-read per operation.
type WorkspaceConfig struct {
	TaskIDPrefix    string             `yaml:"task_id_prefix" mapstructure:"task_id_prefix"`
	DefaultPriority Priority           `yaml:"default_priority" mapstructure:"default_priority"`
	Gates           GateRunConfig      `yaml:"gates" mapstructure:"gates"`
	Notifications   NotificationConfig `yaml:"notifications" mapstructure:"notifications"`
}
