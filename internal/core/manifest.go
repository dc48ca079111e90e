package core

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/openclaw/opsd/pkg/models"
)

// ManifestSections is the fixed section list, in render order.
var ManifestSections = []string{
	"spec",
	"planning",
	"build",
	"validate",
	"deploy",
	"monitor",
	"retrospective",
}

// PendingSentinel fills sections with no content yet.
const PendingSentinel = "_Pending_"

// NormalizeManifestSection lowercases section and validates it against
// the fixed section list. Returns "" for unknown sections.
func NormalizeManifestSection(section string) string {
	normalized := strings.ToLower(section)
	for _, s := range ManifestSections {
		if s == normalized {
			return normalized
		}
	}
	return ""
}

// ManifestRenderer renders and persists per-task manifest documents.
type ManifestRenderer struct {
	workspace models.Workspace
}

// NewManifestRenderer creates a ManifestRenderer for the workspace.
func NewManifestRenderer(workspace models.Workspace) *ManifestRenderer {
	return &ManifestRenderer{workspace: workspace}
}

// Render produces the manifest document for a task. Rendering is total
// and idempotent: the same task always yields byte-identical output.
func (r *ManifestRenderer) Render(task models.Task) string {
	var b strings.Builder

	fmt.Fprintf(&b, "# %s: %s\n\n", task.ID, task.Title)
	b.WriteString("## METADATA\n")
	fmt.Fprintf(&b, "- **ID:** %s\n", task.ID)
	fmt.Fprintf(&b, "- **Classification:** %s\n", task.Classification)
	fmt.Fprintf(&b, "- **Stage:** %s\n", task.Stage)
	fmt.Fprintf(&b, "- **Assigned Agent:** %s\n", orNone(task.AssignedAgent))
	fmt.Fprintf(&b, "- **Priority:** %s\n", task.Priority)
	fmt.Fprintf(&b, "- **Created:** %s\n", task.CreatedAt.UTC().Format(time.RFC3339))
	fmt.Fprintf(&b, "- **Last Updated:** %s\n", task.UpdatedAt.UTC().Format(time.RFC3339))
	fmt.Fprintf(&b, "- **Git Branch:** %s\n", gitBranch(task))
	fmt.Fprintf(&b, "- **Dependencies:** %s\n", orNone(strings.Join(task.Dependencies, ", ")))

	for _, section := range ManifestSections {
		b.WriteString("\n---\n\n")
		fmt.Fprintf(&b, "## %s\n\n", strings.ToUpper(section))
		b.WriteString(sectionContent(task, section))
		b.WriteString("\n")
	}

	return b.String()
}

// Write renders the task's manifest and persists it, returning the path.
func (r *ManifestRenderer) Write(task models.Task) (string, error) {
	path := r.workspace.ManifestPath(task.ID)
	if err := os.MkdirAll(filepath.Dir(path), 0o750); err != nil {
		return "", fmt.Errorf("creating manifests directory: %w", err)
	}
	if err := os.WriteFile(path, []byte(r.Render(task)), 0o600); err != nil {
		return "", fmt.Errorf("writing manifest for %s: %w", task.ID, err)
	}
	return path, nil
}

// Read returns the persisted manifest document for a task.
func (r *ManifestRenderer) Read(taskID string) (string, error) {
	data, err := os.ReadFile(r.workspace.ManifestPath(taskID))
	if err != nil {
		if os.IsNotExist(err) {
			return "", fmt.Errorf("manifest for %s: %w", taskID, ErrNotFound)
		}
		return "", fmt.Errorf("reading manifest for %s: %w", taskID, err)
	}
	return string(data), nil
}

func sectionContent(task models.Task, section string) string {
	content := strings.TrimSpace(task.Manifest[section])
	if content == "" {
		return PendingSentinel
	}
	return content
}

func orNone(s string) string {
	if s == "" {
		return "None"
	}
	return s
}

func gitBranch(task models.Task) string {
	if branch, ok := task.Metadata["gitBranch"].(string); ok && branch != "" {
		return branch
	}
	return "ops/" + task.ID
}
