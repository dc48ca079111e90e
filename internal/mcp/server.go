// Package mcp provides an MCP (Model Context Protocol) server that
// exposes the pipeline engine as MCP tools for AI coding assistants.
package mcp

import (
	"context"
	"fmt"
	"time"

	gomcp "github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/openclaw/opsd/internal/core"
	"github.com/openclaw/opsd/internal/storage"
	"github.com/openclaw/opsd/pkg/models"
)

// Server wraps the pipeline engine and exposes it as MCP tools.
type Server struct {
	server *gomcp.Server
	engine *core.Engine
}

// NewServer creates a new MCP server over the given engine.
func NewServer(engine *core.Engine, version string) *Server {
	if version == "" {
		version = "dev"
	}

	s := &Server{engine: engine}
	s.server = gomcp.NewServer(
		&gomcp.Implementation{Name: "opsd", Version: version},
		nil,
	)
	s.registerTools()
	return s
}

// Run starts the MCP server on stdio, blocking until the client
// disconnects or the context is cancelled.
func (s *Server) Run(ctx context.Context) error {
	return s.server.Run(ctx, &gomcp.StdioTransport{})
}

// MCPServer returns the underlying mcp.Server for testing purposes.
func (s *Server) MCPServer() *gomcp.Server {
	return s.server
}

// --- Tool input/output types ---

type taskIDInput struct {
	TaskID string `json:"task_id" jsonschema:"required,the unique task identifier (e.g. TASK-1714761600000-a1b2c3)"`
}

type taskOutput struct {
	ID             string          `json:"id"`
	Title          string          `json:"title"`
	Classification string          `json:"classification,omitempty"`
	Priority       string          `json:"priority"`
	Stage          string          `json:"stage"`
	AssignedAgent  string          `json:"assigned_agent,omitempty"`
	Gates          map[string]bool `json:"gates,omitempty"`
	Dependencies   []string        `json:"dependencies,omitempty"`
	BlockedBy      []string        `json:"blocked_by,omitempty"`
	Created        string          `json:"created"`
	Updated        string          `json:"updated"`
}

type createTaskInput struct {
	Title          string `json:"title" jsonschema:"required,task title"`
	Description    string `json:"description,omitempty" jsonschema:"task description"`
	Classification string `json:"classification,omitempty" jsonschema:"task classification from the configured list"`
	Priority       string `json:"priority,omitempty" jsonschema:"priority (low, medium, high, urgent)"`
}

type listTasksInput struct {
	Stage string `json:"stage,omitempty" jsonschema:"filter tasks by pipeline stage"`
	Agent string `json:"agent,omitempty" jsonschema:"filter tasks by assigned agent"`
}

type listTasksOutput struct {
	Tasks []taskOutput `json:"tasks"`
	Count int          `json:"count"`
}

type transitionInput struct {
	TaskID      string `json:"task_id" jsonschema:"required,the unique task identifier"`
	TargetStage string `json:"target_stage" jsonschema:"required,the stage to move the task to"`
	Force       bool   `json:"force,omitempty" jsonschema:"skip gate and dependency checks and allow non-adjacent jumps"`
	Reason      string `json:"reason,omitempty" jsonschema:"reason recorded in the audit trail"`
}

type messageOutput struct {
	Message string `json:"message"`
}

type validateGatesOutput struct {
	AllPassed bool            `json:"all_passed"`
	Results   map[string]bool `json:"results"`
}

type setGateInput struct {
	TaskID string `json:"task_id" jsonschema:"required,the unique task identifier"`
	Gate   string `json:"gate" jsonschema:"required,the gate name on the task's current stage"`
	Passed bool   `json:"passed" jsonschema:"required,true to approve the gate and false to reject it"`
	Reason string `json:"reason,omitempty" jsonschema:"reason recorded in the audit trail"`
}

type manifestSectionInput struct {
	TaskID  string `json:"task_id" jsonschema:"required,the unique task identifier"`
	Section string `json:"section" jsonschema:"required,manifest section (spec, planning, build, validate, deploy, monitor, retrospective)"`
	Content string `json:"content" jsonschema:"required,the new section content"`
}

type manifestOutput struct {
	Content string `json:"content"`
}

type auditOutput struct {
	Lines []string `json:"lines"`
}

// --- Tool registration ---

func (s *Server) registerTools() {
	gomcp.AddTool(s.server, &gomcp.Tool{
		Name:        "create_task",
		Description: "Create a new task in the first pipeline stage.",
	}, s.handleCreateTask)

	gomcp.AddTool(s.server, &gomcp.Tool{
		Name:        "get_task",
		Description: "Get task details by ID, including stage, gates, and blocking dependencies.",
	}, s.handleGetTask)

	gomcp.AddTool(s.server, &gomcp.Tool{
		Name:        "list_tasks",
		Description: "List tasks with optional stage and agent filters.",
	}, s.handleListTasks)

	gomcp.AddTool(s.server, &gomcp.Tool{
		Name:        "transition_task",
		Description: "Move a task to a stage. Forward moves require the current stage's gates to pass and dependencies to be resolved; use force for manual overrides.",
	}, s.handleTransition)

	gomcp.AddTool(s.server, &gomcp.Tool{
		Name:        "validate_gates",
		Description: "Run gate validation for the task's current stage. Automated gates execute their command; all failures come back as a false result with diagnostics.",
	}, s.handleValidateGates)

	gomcp.AddTool(s.server, &gomcp.Tool{
		Name:        "set_gate",
		Description: "Approve or reject a manual gate on the task's current stage.",
	}, s.handleSetGate)

	gomcp.AddTool(s.server, &gomcp.Tool{
		Name:        "get_manifest",
		Description: "Get the rendered manifest document for a task.",
	}, s.handleGetManifest)

	gomcp.AddTool(s.server, &gomcp.Tool{
		Name:        "update_manifest_section",
		Description: "Replace one manifest section (spec, planning, build, validate, deploy, monitor, retrospective) and re-render the document.",
	}, s.handleUpdateManifestSection)

	gomcp.AddTool(s.server, &gomcp.Tool{
		Name:        "get_audit_trail",
		Description: "Get the audit log lines for a task.",
	}, s.handleAuditTrail)
}

// --- Tool handlers ---

func (s *Server) handleCreateTask(_ context.Context, _ *gomcp.CallToolRequest, input createTaskInput) (*gomcp.CallToolResult, taskOutput, error) {
	if input.Title == "" {
		return errorResult("title is required"), taskOutput{}, nil
	}

	task, err := s.engine.CreateTask(core.CreateTaskRequest{
		Title:          input.Title,
		Description:    input.Description,
		Classification: input.Classification,
		Priority:       models.Priority(input.Priority),
		Actor:          "mcp",
	})
	if err != nil {
		return errorResult(fmt.Sprintf("creating task: %v", err)), taskOutput{}, nil
	}
	return nil, toTaskOutput(task), nil
}

func (s *Server) handleGetTask(_ context.Context, _ *gomcp.CallToolRequest, input taskIDInput) (*gomcp.CallToolResult, taskOutput, error) {
	if input.TaskID == "" {
		return errorResult("task_id is required"), taskOutput{}, nil
	}

	task, err := s.engine.GetTask(input.TaskID)
	if err != nil {
		return errorResult(fmt.Sprintf("getting task: %v", err)), taskOutput{}, nil
	}
	return nil, toTaskOutput(task), nil
}

func (s *Server) handleListTasks(_ context.Context, _ *gomcp.CallToolRequest, input listTasksInput) (*gomcp.CallToolResult, listTasksOutput, error) {
	tasks, err := s.engine.ListTasks(storage.TaskFilter{Stage: input.Stage, Agent: input.Agent})
	if err != nil {
		return errorResult(fmt.Sprintf("listing tasks: %v", err)), listTasksOutput{}, nil
	}

	out := listTasksOutput{Count: len(tasks)}
	for i := range tasks {
		out.Tasks = append(out.Tasks, toTaskOutput(&tasks[i]))
	}
	return nil, out, nil
}

func (s *Server) handleTransition(ctx context.Context, _ *gomcp.CallToolRequest, input transitionInput) (*gomcp.CallToolResult, messageOutput, error) {
	if input.TaskID == "" {
		return errorResult("task_id is required"), messageOutput{}, nil
	}
	if input.TargetStage == "" {
		return errorResult("target_stage is required"), messageOutput{}, nil
	}

	task, err := s.engine.Transition(ctx, input.TaskID, input.TargetStage, core.TransitionOptions{
		Force:  input.Force,
		Reason: input.Reason,
		Actor:  "mcp",
	})
	if err != nil {
		return errorResult(fmt.Sprintf("transition refused: %v", err)), messageOutput{}, nil
	}
	return nil, messageOutput{Message: fmt.Sprintf("%s is now in %s", task.ID, task.Stage)}, nil
}

func (s *Server) handleValidateGates(ctx context.Context, _ *gomcp.CallToolRequest, input taskIDInput) (*gomcp.CallToolResult, validateGatesOutput, error) {
	if input.TaskID == "" {
		return errorResult("task_id is required"), validateGatesOutput{}, nil
	}

	validation, err := s.engine.ValidateGates(ctx, input.TaskID)
	if err != nil {
		return errorResult(fmt.Sprintf("validating gates: %v", err)), validateGatesOutput{}, nil
	}
	return nil, validateGatesOutput{AllPassed: validation.AllPassed, Results: validation.Results}, nil
}

func (s *Server) handleSetGate(ctx context.Context, _ *gomcp.CallToolRequest, input setGateInput) (*gomcp.CallToolResult, messageOutput, error) {
	if input.TaskID == "" {
		return errorResult("task_id is required"), messageOutput{}, nil
	}
	if input.Gate == "" {
		return errorResult("gate is required"), messageOutput{}, nil
	}

	task, err := s.engine.SetGate(ctx, input.TaskID, input.Gate, input.Passed, core.GateSetOptions{
		Actor:  "mcp",
		Reason: input.Reason,
	})
	if err != nil {
		return errorResult(fmt.Sprintf("setting gate: %v", err)), messageOutput{}, nil
	}
	verdict := "rejected"
	if input.Passed {
		verdict = "approved"
	}
	return nil, messageOutput{Message: fmt.Sprintf("gate %s %s on %s (stage %s)", input.Gate, verdict, task.ID, task.Stage)}, nil
}

func (s *Server) handleGetManifest(_ context.Context, _ *gomcp.CallToolRequest, input taskIDInput) (*gomcp.CallToolResult, manifestOutput, error) {
	if input.TaskID == "" {
		return errorResult("task_id is required"), manifestOutput{}, nil
	}

	content, err := s.engine.GetManifest(input.TaskID)
	if err != nil {
		return errorResult(fmt.Sprintf("getting manifest: %v", err)), manifestOutput{}, nil
	}
	return nil, manifestOutput{Content: content}, nil
}

func (s *Server) handleUpdateManifestSection(_ context.Context, _ *gomcp.CallToolRequest, input manifestSectionInput) (*gomcp.CallToolResult, messageOutput, error) {
	if input.TaskID == "" {
		return errorResult("task_id is required"), messageOutput{}, nil
	}
	if input.Section == "" {
		return errorResult("section is required"), messageOutput{}, nil
	}

	if _, err := s.engine.UpdateManifestSection(input.TaskID, input.Section, input.Content, "mcp"); err != nil {
		return errorResult(fmt.Sprintf("updating manifest section: %v", err)), messageOutput{}, nil
	}
	return nil, messageOutput{Message: fmt.Sprintf("section %s of %s updated", input.Section, input.TaskID)}, nil
}

func (s *Server) handleAuditTrail(_ context.Context, _ *gomcp.CallToolRequest, input taskIDInput) (*gomcp.CallToolResult, auditOutput, error) {
	if input.TaskID == "" {
		return errorResult("task_id is required"), auditOutput{}, nil
	}

	lines, err := s.engine.AuditTrail(input.TaskID)
	if err != nil {
		return errorResult(fmt.Sprintf("reading audit trail: %v", err)), auditOutput{}, nil
	}
	return nil, auditOutput{Lines: lines}, nil
}

func toTaskOutput(task *models.Task) taskOutput {
	return taskOutput{
		ID:             task.ID,
		Title:          task.Title,
		Classification: task.Classification,
		Priority:       string(task.Priority),
		Stage:          task.Stage,
		AssignedAgent:  task.AssignedAgent,
		Gates:          task.Gates,
		Dependencies:   task.Dependencies,
		BlockedBy:      task.BlockedBy,
		Created:        task.CreatedAt.UTC().Format(time.RFC3339),
		Updated:        task.UpdatedAt.UTC().Format(time.RFC3339),
	}
}

func errorResult(msg string) *gomcp.CallToolResult {
	return &gomcp.CallToolResult{
		Content: []gomcp.Content{&gomcp.TextContent{Text: msg}},
		IsError: true,
	}
}
