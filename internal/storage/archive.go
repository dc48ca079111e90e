package storage

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/openclaw/opsd/pkg/models"
)

// ArchiveEntry describes one relocated manifest in the archive.
type ArchiveEntry struct {
	TaskID     string    `json:"taskId"`
	Month      string    `json:"month"`
	Path       string    `json:"path"`
	ArchivedAt time.Time `json:"archivedAt"`
}

// ArchiveStore relocates manifests of archived tasks into dated
// year-month buckets and retrieves them for listing and restore.
type ArchiveStore interface {
	// StoreManifest moves the manifest file into the current month's
	// bucket, falling back to copy+delete when rename fails (e.g.
	// cross-device). It returns the archive location.
	StoreManifest(taskID, manifestPath string) (string, error)
	List() ([]ArchiveEntry, error)
	// Find returns the archived manifest for taskID, newest bucket
	// first, or ErrNotFound.
	Find(taskID string) (*ArchiveEntry, string, error)
	// Remove deletes the archived manifest for taskID after a restore.
	Remove(taskID string) error
}

type fileArchiveStore struct {
	ws models.Workspace
}

// NewArchiveStore creates an ArchiveStore rooted at the workspace
// archive directory.
func NewArchiveStore(ws models.Workspace) ArchiveStore {
	return &fileArchiveStore{ws: ws}
}

func currentMonth() string {
	now := time.Now().UTC()
	return fmt.Sprintf("%04d-%02d", now.Year(), int(now.Month()))
}

func (s *fileArchiveStore) StoreManifest(taskID, manifestPath string) (string, error) {
	bucket := s.ws.ArchiveBucket(currentMonth())
	if err := os.MkdirAll(bucket, 0o750); err != nil {
		return "", fmt.Errorf("creating archive bucket: %w", err)
	}
	target := filepath.Join(bucket, taskID+".md")

	if err := os.Rename(manifestPath, target); err != nil {
		// Atomic move unavailable; copy the content and delete the source.
		content, readErr := os.ReadFile(manifestPath)
		if readErr != nil {
			content = []byte(fmt.Sprintf("# %s\n\n_Manifest unavailable during archive._\n", taskID))
		}
		if writeErr := os.WriteFile(target, content, 0o600); writeErr != nil {
			return "", fmt.Errorf("archiving manifest for %s: %w", taskID, writeErr)
		}
		if readErr == nil {
			_ = os.Remove(manifestPath)
		}
	}

	return target, nil
}

func (s *fileArchiveStore) List() ([]ArchiveEntry, error) {
	months, err := os.ReadDir(s.ws.ArchiveDir())
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("listing archive: %w", err)
	}

	names := make([]string, 0, len(months))
	for _, m := range months {
		if m.IsDir() {
			names = append(names, m.Name())
		}
	}
	// Newest month first.
	sort.Sort(sort.Reverse(sort.StringSlice(names)))

	var entries []ArchiveEntry
	for _, month := range names {
		dir := s.ws.ArchiveBucket(month)
		files, err := os.ReadDir(dir)
		if err != nil {
			continue
		}
		for _, f := range files {
			if !strings.HasSuffix(f.Name(), ".md") {
				continue
			}
			full := filepath.Join(dir, f.Name())
			info, err := f.Info()
			archivedAt := time.Time{}
			if err == nil {
				archivedAt = info.ModTime().UTC()
			}
			entries = append(entries, ArchiveEntry{
				TaskID:     strings.TrimSuffix(f.Name(), ".md"),
				Month:      month,
				Path:       full,
				ArchivedAt: archivedAt,
			})
		}
	}
	return entries, nil
}

func (s *fileArchiveStore) Find(taskID string) (*ArchiveEntry, string, error) {
	entries, err := s.List()
	if err != nil {
		return nil, "", err
	}
	for _, e := range entries {
		if e.TaskID != taskID {
			continue
		}
		content, err := os.ReadFile(e.Path)
		if err != nil {
			return nil, "", fmt.Errorf("reading archived manifest for %s: %w", taskID, err)
		}
		return &e, string(content), nil
	}
	return nil, "", fmt.Errorf("archive entry %s: %w", taskID, ErrNotFound)
}

func (s *fileArchiveStore) Remove(taskID string) error {
	entry, _, err := s.Find(taskID)
	if err != nil {
		return err
	}
	if err := os.Remove(entry.Path); err != nil {
		return fmt.Errorf("removing archived manifest for %s: %w", taskID, err)
	}
	return nil
}
