package models

import "time"

// NotificationType classifies a notification for display.
type NotificationType string

const (
	NotifyInfo    NotificationType = "info"
	NotifyWarning NotificationType = "warning"
	NotifyError   NotificationType = "error"
)

// Notification is one entry in the notification store. Gate failures and
// dependency blocks produce these; the store keeps newest first.
type Notification struct {
	ID          string           `yaml:"id" json:"id"`
	Title       string           `yaml:"title" json:"title"`
	Description string           `yaml:"description,omitempty" json:"description,omitempty"`
	Type        NotificationType `yaml:"type" json:"type"`
	Read        bool             `yaml:"read" json:"read"`
	CreatedAt   time.Time        `yaml:"created_at" json:"createdAt"`
	Meta        map[string]any   `yaml:"meta,omitempty" json:"meta,omitempty"`
}
