package config

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"replydraft/internal/logging"

	"github.com/fsnotify/fsnotify"
	"gopkg.in/yaml.v3"
)

// Settings is the user-facing switchboard read at the start of every cycle.
type Settings struct {
	Enabled   bool   `yaml:"enabled"`
	APIURL    string `yaml:"api_url"`
	APISecret string `yaml:"api_secret"`
}

// Configured reports whether a draft request can be attempted.
func (s Settings) Configured() bool {
	return s.APIURL != "" && s.APISecret != ""
}

// SettingsProvider serves the latest settings snapshot.
type SettingsProvider interface {
	Settings(ctx context.Context) (Settings, error)
}

// DefaultSettings returns settings for a fresh install: enabled, not configured.
func DefaultSettings() Settings {
	return Settings{Enabled: true}
}

// LoadSettings reads a settings file. A missing file yields DefaultSettings.
// REPLYDRAFT_API_URL and API_SECRET override the file.
func LoadSettings(path string) (Settings, error) {
	s, err := ReadSettings(path)
	if err != nil {
		return s, err
	}
	if url := os.Getenv("REPLYDRAFT_API_URL"); url != "" {
		s.APIURL = url
	}
	if secret := os.Getenv("API_SECRET"); secret != "" {
		s.APISecret = secret
	}
	return s, nil
}

// ReadSettings reads a settings file without environment overrides.
func ReadSettings(path string) (Settings, error) {
	s := DefaultSettings()

	data, err := os.ReadFile(path)
	if err != nil {
		if !os.IsNotExist(err) {
			return s, fmt.Errorf("failed to read settings: %w", err)
		}
	} else if err := yaml.Unmarshal(data, &s); err != nil {
		return s, fmt.Errorf("failed to parse settings: %w", err)
	}
	return s, nil
}

// SaveSettings writes s to path.
func SaveSettings(path string, s Settings) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("failed to create settings directory: %w", err)
	}
	data, err := yaml.Marshal(s)
	if err != nil {
		return fmt.Errorf("failed to marshal settings: %w", err)
	}
	if err := os.WriteFile(path, data, 0600); err != nil {
		return fmt.Errorf("failed to write settings: %w", err)
	}
	return nil
}

// FileSettings serves a settings file and reloads it when it changes on disk.
type FileSettings struct {
	mu      sync.RWMutex
	path    string
	current Settings
	loadErr error

	watcher *fsnotify.Watcher
	stopCh  chan struct{}
	doneCh  chan struct{}
	running bool
}

// NewFileSettings loads path once. Call Start to follow later edits.
func NewFileSettings(path string) (*FileSettings, error) {
	s, err := LoadSettings(path)
	if err != nil {
		return nil, err
	}
	return &FileSettings{
		path:    path,
		current: s,
		stopCh:  make(chan struct{}),
		doneCh:  make(chan struct{}),
	}, nil
}

// Settings implements SettingsProvider. A file that fails to parse leaves the
// last good snapshot in place; the failure is only reported by LoadError.
func (f *FileSettings) Settings(ctx context.Context) (Settings, error) {
	if err := ctx.Err(); err != nil {
		return Settings{}, err
	}
	f.mu.RLock()
	defer f.mu.RUnlock()
	return f.current, nil
}

// LoadError returns the error from the most recent reload, or nil.
func (f *FileSettings) LoadError() error {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return f.loadErr
}

// Start watches the settings file's directory. Non-blocking.
func (f *FileSettings) Start(ctx context.Context) error {
	f.mu.Lock()
	if f.running {
		f.mu.Unlock()
		return nil
	}

	dir := filepath.Dir(f.path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		f.mu.Unlock()
		return fmt.Errorf("failed to create settings directory: %w", err)
	}
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		f.mu.Unlock()
		return fmt.Errorf("failed to create settings watcher: %w", err)
	}
	// Watch the directory: editors replace files by rename.
	if err := watcher.Add(dir); err != nil {
		watcher.Close()
		f.mu.Unlock()
		return fmt.Errorf("failed to watch %s: %w", dir, err)
	}
	f.watcher = watcher
	f.running = true
	f.mu.Unlock()

	logging.Config("settings: watching %s", f.path)
	go f.run(ctx)
	return nil
}

// Stop stops the watcher and waits for the loop to exit.
func (f *FileSettings) Stop() {
	f.mu.Lock()
	if !f.running {
		f.mu.Unlock()
		return
	}
	f.running = false
	f.mu.Unlock()

	close(f.stopCh)
	<-f.doneCh

	if err := f.watcher.Close(); err != nil {
		logging.ConfigWarn("settings: error closing watcher: %v", err)
	}
}

func (f *FileSettings) run(ctx context.Context) {
	defer close(f.doneCh)

	for {
		select {
		case <-ctx.Done():
			return
		case <-f.stopCh:
			return
		case event, ok := <-f.watcher.Events:
			if !ok {
				return
			}
			if filepath.Clean(event.Name) != filepath.Clean(f.path) {
				continue
			}
			if event.Op&(fsnotify.Create|fsnotify.Write|fsnotify.Rename|fsnotify.Remove) == 0 {
				continue
			}
			f.reload()
		case err, ok := <-f.watcher.Errors:
			if !ok {
				return
			}
			logging.ConfigWarn("settings watcher error: %v", err)
		}
	}
}

func (f *FileSettings) reload() {
	s, err := LoadSettings(f.path)

	f.mu.Lock()
	defer f.mu.Unlock()
	if err != nil {
		// Keep serving the last good snapshot but surface the error.
		f.loadErr = err
		logging.ConfigWarn("settings: reload failed: %v", err)
		return
	}
	f.current = s
	f.loadErr = nil
	logging.Config("settings: reloaded (enabled=%v configured=%v)", s.Enabled, s.Configured())
}

// StaticSettings is a fixed SettingsProvider.
type StaticSettings Settings

// Settings implements SettingsProvider.
func (s StaticSettings) Settings(ctx context.Context) (Settings, error) {
	return Settings(s), ctx.Err()
}
