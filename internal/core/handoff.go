package core

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/openclaw/opsd/pkg/models"
)

// HandoffGenerator renders stage-crossing documents from per-pair
// templates. A repeated crossing overwrites the prior handoff for the
// same (task, fromStage, toStage) key.
type HandoffGenerator struct {
	workspace models.Workspace
}

// NewHandoffGenerator creates a HandoffGenerator for the workspace.
func NewHandoffGenerator(workspace models.Workspace) *HandoffGenerator {
	return &HandoffGenerator{workspace: workspace}
}

// HandoffContext carries caller-supplied substitution values.
type HandoffContext struct {
	Manifest string
}

// Create renders and writes the handoff document for a stage crossing,
// returning the file path.
func (g *HandoffGenerator) Create(task models.Task, fromStage, toStage string, ctx HandoffContext) (string, error) {
	template, err := g.loadTemplate(fromStage, toStage)
	if err != nil {
		return "", err
	}

	agent := task.AssignedAgent
	if agent == "" {
		agent = "unassigned"
	}

	replacer := strings.NewReplacer(
		"{taskId}", task.ID,
		"{title}", task.Title,
		"{fromStage}", fromStage,
		"{toStage}", toStage,
		"{agent}", agent,
		"{manifest}", ctx.Manifest,
	)
	content := replacer.Replace(template)

	path := g.workspace.HandoffPath(task.ID, fromStage, toStage)
	if err := os.MkdirAll(filepath.Dir(path), 0o750); err != nil {
		return "", fmt.Errorf("creating handoffs directory: %w", err)
	}
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		return "", fmt.Errorf("writing handoff for %s: %w", task.ID, err)
	}
	return path, nil
}

// List returns the handoff file paths for a task, sorted by name.
func (g *HandoffGenerator) List(taskID string) ([]string, error) {
	entries, err := os.ReadDir(g.workspace.HandoffsDir())
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("listing handoffs: %w", err)
	}

	var paths []string
	for _, entry := range entries {
		name := entry.Name()
		if strings.HasPrefix(name, taskID+"-") && strings.HasSuffix(name, ".md") {
			paths = append(paths, filepath.Join(g.workspace.HandoffsDir(), name))
		}
	}
	sort.Strings(paths)
	return paths, nil
}

// Get returns the handoff content for a stage crossing.
func (g *HandoffGenerator) Get(taskID, fromStage, toStage string) (string, error) {
	data, err := os.ReadFile(g.workspace.HandoffPath(taskID, fromStage, toStage))
	if err != nil {
		if os.IsNotExist(err) {
			return "", fmt.Errorf("handoff %s %s->%s: %w", taskID, fromStage, toStage, ErrNotFound)
		}
		return "", fmt.Errorf("reading handoff for %s: %w", taskID, err)
	}
	return string(data), nil
}

// loadTemplate reads the template for a stage pair, falling back to a
// generic default when no pair-specific file exists.
func (g *HandoffGenerator) loadTemplate(fromStage, toStage string) (string, error) {
	path := filepath.Join(g.workspace.HandoffTemplatesDir(), fmt.Sprintf("%s_TO_%s.md", fromStage, toStage))
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return defaultHandoffTemplate(fromStage, toStage), nil
		}
		return "", fmt.Errorf("reading handoff template %s: %w", path, err)
	}
	return string(data), nil
}

func defaultHandoffTemplate(fromStage, toStage string) string {
	return fmt.Sprintf("# Handoff: %s -> %s\n\n**Task:** {taskId} - {title}\n\n## Summary\n{manifest}\n", fromStage, toStage)
}
