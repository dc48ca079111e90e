package storage

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/openclaw/opsd/pkg/models"
)

// AuditLog appends timestamped action lines to a per-task log file.
// Entries are never mutated or deleted; on archive the manifest is
// relocated, not the audit log.
type AuditLog interface {
	Append(taskID, actor, action string) error
	Read(taskID string) (string, error)
	Entries(taskID string) ([]string, error)
}

type fileAuditLog struct {
	ws models.Workspace
}

// NewAuditLog creates an AuditLog writing under the workspace audit
// directory.
func NewAuditLog(ws models.Workspace) AuditLog {
	return &fileAuditLog{ws: ws}
}

func (l *fileAuditLog) Append(taskID, actor, action string) error {
	if err := os.MkdirAll(l.ws.AuditDir(), 0o750); err != nil {
		return fmt.Errorf("creating audit directory: %w", err)
	}

	line := fmt.Sprintf("[%s] %s: %s\n",
		time.Now().UTC().Format(time.RFC3339), actor, action)

	f, err := os.OpenFile(l.ws.AuditLogPath(taskID), os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o600)
	if err != nil {
		return fmt.Errorf("opening audit log for %s: %w", taskID, err)
	}
	defer f.Close()

	if _, err := f.WriteString(line); err != nil {
		return fmt.Errorf("appending audit line for %s: %w", taskID, err)
	}
	return nil
}

func (l *fileAuditLog) Read(taskID string) (string, error) {
	data, err := os.ReadFile(l.ws.AuditLogPath(taskID))
	if err != nil {
		if os.IsNotExist(err) {
			return "", nil
		}
		return "", fmt.Errorf("reading audit log for %s: %w", taskID, err)
	}
	return string(data), nil
}

func (l *fileAuditLog) Entries(taskID string) ([]string, error) {
	content, err := l.Read(taskID)
	if err != nil {
		return nil, err
	}
	if content == "" {
		return nil, nil
	}
	var entries []string
	for _, line := range strings.Split(strings.TrimRight(content, "\n"), "\n") {
		if line != "" {
			entries = append(entries, line)
		}
	}
	return entries, nil
}
