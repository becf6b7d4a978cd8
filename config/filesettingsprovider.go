package config

import (
	"fmt"
	"os"
	"sync"
	"time"

	"github.com/conservacam/fieldcam/logging"
)

const (
	// DefaultSettingsCacheTimeout is the default cache timeout period
	DefaultSettingsCacheTimeout = 5 * time.Minute
)

// FileSettingsProvider serves the configuration file and re-reads it when the
// cached copy is older than the cache timeout and the file has changed on disk.
// Field technicians can retune resolution or warm-up without restarting the
// capture loop. Mode, interval and roots are read once by the loop and are
// not affected by a reload.
type FileSettingsProvider struct {
	path            string
	logger          logging.Logger
	mutex           sync.RWMutex
	cachedSettings  *Config
	modTime         time.Time
	lastFetchTime   time.Time
	fetchInProgress bool
	cacheTimeout    time.Duration
	layers          []Layer // re-applied on top of every reloaded file
	now             func() time.Time
}

// NewFileSettingsProvider creates a new FileSettingsProvider seeded with initial.
// layers are the environment and CLI layers initial was built with; they are
// applied again after every reload so the file never wins over them.
// If cacheTimeout is 0, DefaultSettingsCacheTimeout is used
func NewFileSettingsProvider(path string, initial *Config, cacheTimeout time.Duration, logger logging.Logger, layers ...Layer) (*FileSettingsProvider, error) {
	if initial == nil {
		return nil, fmt.Errorf("initial settings are required")
	}
	if cacheTimeout == 0 {
		cacheTimeout = DefaultSettingsCacheTimeout
	}

	provider := &FileSettingsProvider{
		path:           path,
		logger:         logging.OrNop(logger),
		cachedSettings: initial,
		cacheTimeout:   cacheTimeout,
		layers:         layers,
		now:            time.Now,
	}

	if info, err := os.Stat(path); err == nil {
		provider.modTime = info.ModTime()
	}
	provider.lastFetchTime = provider.now()

	return provider, nil
}

// GetSettings returns the current settings, implementing SettingsProvider interface
func (p *FileSettingsProvider) GetSettings() Config {
	p.mutex.RLock()

	needsRefresh := p.now().Sub(p.lastFetchTime) > p.cacheTimeout
	fetchInProgress := p.fetchInProgress
	currentSettings := *p.cachedSettings

	p.mutex.RUnlock()

	// Stale settings are returned while the reload runs
	if needsRefresh && !fetchInProgress {
		go p.Reload()
	}

	return currentSettings
}

// Reload re-reads the file if it changed. Invalid files are logged and the
// previous settings are kept.
func (p *FileSettingsProvider) Reload() {
	p.mutex.Lock()
	if p.fetchInProgress {
		p.mutex.Unlock()
		return
	}
	p.fetchInProgress = true
	lastModTime := p.modTime
	p.mutex.Unlock()

	defer func() {
		p.mutex.Lock()
		p.fetchInProgress = false
		p.lastFetchTime = p.now()
		p.mutex.Unlock()
	}()

	info, err := os.Stat(p.path)
	if err != nil {
		p.logger.Warn("Failed to stat config file", "path", p.path, "error", err)
		return
	}
	if !info.ModTime().After(lastModTime) {
		return
	}

	settings, err := LoadLayered(p.path, p.layers...)
	if err == nil {
		err = settings.Validate()
	}
	if err != nil {
		p.logger.Warn("Ignoring changed config file", "path", p.path, "error", err)
		return
	}

	p.mutex.Lock()
	p.cachedSettings = settings
	p.modTime = info.ModTime()
	p.mutex.Unlock()

	p.logger.Info("Reloaded config file", "path", p.path)
}
