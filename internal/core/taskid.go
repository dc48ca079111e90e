package core

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"regexp"
	"time"
)

// taskIDPattern matches IDs produced by GenerateTaskID.
var taskIDPattern = regexp.MustCompile(`^[A-Z]+-\d+-[0-9a-f]{6}$`)

// GenerateTaskID returns a new task ID of the form
// {prefix}-{unix millis}-{6 hex chars}, e.g. TASK-1714761600000-a1b2c3.
// The timestamp keeps IDs roughly ordered by creation; the random suffix
// disambiguates tasks created in the same millisecond.
func GenerateTaskID(prefix string) (string, error) {
	if prefix == "" {
		prefix = "TASK"
	}

	suffix := make([]byte, 3)
	if _, err := rand.Read(suffix); err != nil {
		return "", fmt.Errorf("generating task ID suffix: %w", err)
	}

	return fmt.Sprintf("%s-%d-%s", prefix, time.Now().UnixMilli(), hex.EncodeToString(suffix)), nil
}

// ValidTaskID reports whether id has the shape GenerateTaskID produces.
func ValidTaskID(id string) bool {
	return taskIDPattern.MatchString(id)
}
