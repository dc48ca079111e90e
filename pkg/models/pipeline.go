package models

// GateType distinguishes command-driven gates from human approvals.
type GateType string

const (
	GateAutomated GateType = "automated"
	GateManual    GateType = "manual"
)

// GateDefinition configures a single pass/fail condition on a stage.
// Command is only meaningful for automated gates; Approver only for
// manual ones.
type GateDefinition struct {
	Type        GateType `yaml:"type" mapstructure:"type" json:"type"`
	Command     string   `yaml:"command,omitempty" mapstructure:"command" json:"command,omitempty"`
	Description string   `yaml:"description,omitempty" mapstructure:"description" json:"description,omitempty"`
	Approver    string   `yaml:"approver,omitempty" mapstructure:"approver" json:"approver,omitempty"`
}

// StageDefinition describes one position in the ordered pipeline.
type StageDefinition struct {
	ID             string                    `yaml:"id" mapstructure:"id" json:"id"`
	Gates          map[string]GateDefinition `yaml:"gates,omitempty" mapstructure:"gates" json:"gates,omitempty"`
	AssignedAgents []string                  `yaml:"assigned_agents,omitempty" mapstructure:"assigned_agents" json:"assignedAgents,omitempty"`
	AutoAdvance    bool                      `yaml:"auto_advance" mapstructure:"auto_advance" json:"autoAdvance"`
}

// PipelineConfig is the ordered stage list. The last stage in the order
// is the terminal stage for dependency resolution.
type PipelineConfig struct {
	Stages []StageDefinition `yaml:"stages" mapstructure:"stages" json:"stages"`
}

// StageOrder returns the configured stage ids in pipeline order.
func (p *PipelineConfig) StageOrder() []string {
	order := make([]string, len(p.Stages))
	for i, s := range p.Stages {
		order[i] = s.ID
	}
	return order
}

// StageIndex returns the position of stageID in the pipeline, or -1.
func (p *PipelineConfig) StageIndex(stageID string) int {
	for i, s := range p.Stages {
		if s.ID == stageID {
			return i
		}
	}
	return -1
}

// Stage returns the definition for stageID, or nil if not configured.
func (p *PipelineConfig) Stage(stageID string) *StageDefinition {
	for i := range p.Stages {
		if p.Stages[i].ID == stageID {
			return &p.Stages[i]
		}
	}
	return nil
}

// TerminalStage returns the last configured stage id, or "" when the
// pipeline is empty.
func (p *PipelineConfig) TerminalStage() string {
	if len(p.Stages) == 0 {
		return ""
	}
	return p.Stages[len(p.Stages)-1].ID
}

// AgentForStage returns the first assigned agent for a stage, or "".
func (p *PipelineConfig) AgentForStage(stageID string) string {
	stage := p.Stage(stageID)
	if stage == nil || len(stage.AssignedAgents) == 0 {
		return ""
	}
	return stage.AssignedAgents[0]
}

// Agent describes a pipeline worker (human or daemon) from agents.yaml.
type Agent struct {
	ID   string `yaml:"id" mapstructure:"id" json:"id"`
	Name string `yaml:"name,omitempty" mapstructure:"name" json:"name,omitempty"`
	Role string `yaml:"role,omitempty" mapstructure:"role" json:"role,omitempty"`
}

// AgentsConfig is the seeded agent roster.
type AgentsConfig struct {
	Agents []Agent `yaml:"agents" mapstructure:"agents" json:"agents"`
}

// ClassificationsConfig enumerates the allowed task classifications.
type ClassificationsConfig struct {
	Classifications []string `yaml:"classifications" mapstructure:"classifications" json:"classifications"`
}

// Contains reports whether classification is configured.
func (c *ClassificationsConfig) Contains(classification string) bool {
	for _, v := range c.Classifications {
		if v == classification {
			return true
		}
	}
	return false
}
