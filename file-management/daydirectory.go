package filemanagement

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/conservacam/fieldcam/capture"
	"github.com/conservacam/fieldcam/logging"
)

// DayDirectoryManager places captures into one directory per calendar day.
type DayDirectoryManager interface {
	// DayDirectory returns the directory for the local calendar day of t without touching disk.
	DayDirectory(t time.Time) string
	// EnsureDayDirectory creates the directory for the day of t if absent and returns its path.
	EnsureDayDirectory(t time.Time) (string, error)
}

// LocalDayDirectoryManager implements DayDirectoryManager below a root directory.
type LocalDayDirectoryManager struct {
	root   string
	logger logging.Logger
	mu     sync.Mutex
	known  map[string]bool
}

// NewLocalDayDirectoryManager creates a manager rooted at root
func NewLocalDayDirectoryManager(root string, logger logging.Logger) *LocalDayDirectoryManager {
	return &LocalDayDirectoryManager{
		root:   root,
		logger: logging.OrNop(logger),
		known:  make(map[string]bool),
	}
}

// Root returns the directory holding all day directories.
func (m *LocalDayDirectoryManager) Root() string {
	return m.root
}

func (m *LocalDayDirectoryManager) DayDirectory(t time.Time) string {
	return filepath.Join(m.root, capture.DayDirName(t))
}

// EnsureDayDirectory is idempotent. It fails if the path exists and is not a
// directory or cannot be created.
func (m *LocalDayDirectoryManager) EnsureDayDirectory(t time.Time) (string, error) {
	dir := m.DayDirectory(t)

	m.mu.Lock()
	defer m.mu.Unlock()

	if err := os.MkdirAll(dir, 0755); err != nil {
		return "", fmt.Errorf("failed to create day directory %s: %w", dir, err)
	}

	info, err := os.Stat(dir)
	if err != nil {
		return "", fmt.Errorf("failed to stat day directory %s: %w", dir, err)
	}
	if !info.IsDir() {
		return "", fmt.Errorf("day directory %s is not a directory", dir)
	}

	if !m.known[dir] {
		m.known[dir] = true
		m.logger.Info("Day directory ready", "path", dir)
	}

	return dir, nil
}

var imageExtensions = map[string]bool{
	".jpg":  true,
	".jpeg": true,
	".png":  true,
}

// IsImageFile reports whether name has a supported image extension, in any case.
func IsImageFile(name string) bool {
	return imageExtensions[strings.ToLower(filepath.Ext(name))]
}

// ListImages returns the image files directly inside folder, sorted by name.
// Subdirectories and other files are skipped.
func ListImages(folder string) ([]string, error) {
	entries, err := os.ReadDir(folder)
	if err != nil {
		return nil, fmt.Errorf("failed to read folder %s: %w", folder, err)
	}

	var images []string
	for _, entry := range entries {
		if entry.IsDir() || !IsImageFile(entry.Name()) {
			continue
		}
		images = append(images, filepath.Join(folder, entry.Name()))
	}
	sort.Strings(images)

	return images, nil
}
