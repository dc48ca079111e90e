package storage

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"os"
	"sync"
	"time"

	"github.com/openclaw/opsd/pkg/models"
	"gopkg.in/yaml.v3"
)

// maxNotifications caps the store; older entries fall off the end.
const maxNotifications = 200

// NotificationFile is the top-level structure of data/notifications.yaml.
type NotificationFile struct {
	Version       string                `yaml:"version"`
	Notifications []models.Notification `yaml:"notifications"`
}

// NotificationStore keeps a newest-first, capped list of notifications.
type NotificationStore interface {
	Add(n models.Notification) (*models.Notification, error)
	List() ([]models.Notification, error)
	MarkRead(id string) error
}

type fileNotificationStore struct {
	path string
	mu   sync.Mutex
}

// NewNotificationStore creates a NotificationStore backed by the YAML
// document at path.
func NewNotificationStore(path string) NotificationStore {
	return &fileNotificationStore{path: path}
}

func notificationID() string {
	b := make([]byte, 8)
	_, _ = rand.Read(b)
	return "notif_" + hex.EncodeToString(b)
}

func (s *fileNotificationStore) load() ([]models.Notification, error) {
	data, err := os.ReadFile(s.path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("loading notifications: %w", err)
	}
	var nf NotificationFile
	if err := yaml.Unmarshal(data, &nf); err != nil {
		return nil, fmt.Errorf("loading notifications: parsing YAML: %w", err)
	}
	return nf.Notifications, nil
}

func (s *fileNotificationStore) save(notifications []models.Notification) error {
	if err := os.MkdirAll(dirOf(s.path), 0o750); err != nil {
		return fmt.Errorf("saving notifications: creating directory: %w", err)
	}
	data, err := yaml.Marshal(&NotificationFile{Version: "1.0", Notifications: notifications})
	if err != nil {
		return fmt.Errorf("saving notifications: marshaling YAML: %w", err)
	}
	if err := os.WriteFile(s.path, data, 0o600); err != nil {
		return fmt.Errorf("saving notifications: writing file: %w", err)
	}
	return nil
}

func (s *fileNotificationStore) Add(n models.Notification) (*models.Notification, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	existing, err := s.load()
	if err != nil {
		return nil, err
	}

	if n.ID == "" {
		n.ID = notificationID()
	}
	if n.Type == "" {
		n.Type = models.NotifyInfo
	}
	if n.Title == "" {
		n.Title = "Notification"
	}
	n.Read = false
	n.CreatedAt = time.Now().UTC()

	updated := append([]models.Notification{n}, existing...)
	if len(updated) > maxNotifications {
		updated = updated[:maxNotifications]
	}
	if err := s.save(updated); err != nil {
		return nil, err
	}
	return &n, nil
}

func (s *fileNotificationStore) List() ([]models.Notification, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.load()
}

func (s *fileNotificationStore) MarkRead(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	notifications, err := s.load()
	if err != nil {
		return err
	}
	for i := range notifications {
		if notifications[i].ID == id {
			notifications[i].Read = true
			return s.save(notifications)
		}
	}
	return fmt.Errorf("notification %s: %w", id, ErrNotFound)
}
