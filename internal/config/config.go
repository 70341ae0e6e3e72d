package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"
)

// Config holds all replydraft configuration.
type Config struct {
	// Browser hosting the messaging page
	Browser BrowserConfig `yaml:"browser"`

	// Selector Registry overrides (role -> CSS rule)
	Selectors SelectorsConfig `yaml:"selectors"`

	// Observer and readiness timings
	Observer ObserverConfig `yaml:"observer"`

	// Presenter timings
	Presenter PresenterConfig `yaml:"presenter"`

	// Draft request client
	Drafts DraftsConfig `yaml:"drafts"`

	// Path to the settings file (enabled, api_url, api_secret)
	SettingsFile string `yaml:"settings_file"`

	// Durable draft record store
	Store StoreConfig `yaml:"store"`

	// Drafting service (serve command)
	Server ServerConfig `yaml:"server"`

	// Prometheus listener for the watch command; empty disables it
	MetricsAddr string `yaml:"metrics_addr"`

	// Logging
	Logging LoggingConfig `yaml:"logging"`
}

// BrowserConfig configures the Chrome connection.
type BrowserConfig struct {
	DebuggerURL       string   `yaml:"debugger_url"`
	Launch            []string `yaml:"launch"`
	Headless          bool     `yaml:"headless"`
	UserDataDir       string   `yaml:"user_data_dir"`
	StartURL          string   `yaml:"start_url"`
	NavigationTimeout string   `yaml:"navigation_timeout"`
	SessionStore      string   `yaml:"session_store"`
}

// SelectorsConfig overrides Selector Registry rules.
type SelectorsConfig struct {
	Rules      map[string]string `yaml:"rules"`
	ThreadPath string            `yaml:"thread_path"`
}

// ObserverConfig holds the Readiness Gate and Change Observer timings.
type ObserverConfig struct {
	ReadyPoll     string `yaml:"ready_poll"`
	Debounce      string `yaml:"debounce"`
	AttachRetry   string `yaml:"attach_retry"`
	DrainInterval string `yaml:"drain_interval"`
}

// PresenterConfig holds badge timings.
type PresenterConfig struct {
	NoResponseFade string `yaml:"no_response_fade"`
}

// DraftsConfig configures the draft request client.
type DraftsConfig struct {
	StatusTimeout  string `yaml:"status_timeout"`
	RequestTimeout string `yaml:"request_timeout"`
}

// StoreConfig configures the record store.
type StoreConfig struct {
	Path      string `yaml:"path"`
	CacheSize int    `yaml:"cache_size"`
}

// DefaultConfig returns the default configuration.
func DefaultConfig() *Config {
	home := defaultHome()
	return &Config{
		Browser: BrowserConfig{
			Headless:          false,
			StartURL:          "https://www.linkedin.com/messaging/",
			NavigationTimeout: "30s",
			SessionStore:      filepath.Join(home, "browser", "sessions.json"),
		},
		Observer: ObserverConfig{
			ReadyPoll:     "500ms",
			Debounce:      "800ms",
			AttachRetry:   "1s",
			DrainInterval: "100ms",
		},
		Presenter: PresenterConfig{
			NoResponseFade: "10s",
		},
		Drafts: DraftsConfig{
			StatusTimeout:  "5s",
			RequestTimeout: "60s",
		},
		SettingsFile: filepath.Join(home, "settings.yaml"),
		Store: StoreConfig{
			Path:      filepath.Join(home, "drafts.db"),
			CacheSize: 512,
		},
		Server: ServerConfig{
			Addr:     ":8000",
			Provider: "anthropic",
			Model:    "claude-sonnet-4-20250514",
		},
		Logging: LoggingConfig{
			Level:   "info",
			LogsDir: filepath.Join(home, "logs"),
		},
	}
}

func defaultHome() string {
	if dir, err := os.UserHomeDir(); err == nil {
		return filepath.Join(dir, ".replydraft")
	}
	return ".replydraft"
}

// Load loads configuration from a YAML file.
func Load(path string) (*Config, error) {
	cfg := DefaultConfig()

	data, err := os.ReadFile(path)
	if err != nil {
		if !os.IsNotExist(err) {
			return nil, fmt.Errorf("failed to read config: %w", err)
		}
		// Defaults if the file doesn't exist
	} else if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	cfg.applyEnvOverrides()
	return cfg, nil
}

// Save saves configuration to a YAML file.
func (c *Config) Save(path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("failed to write config: %w", err)
	}
	return nil
}

// applyEnvOverrides applies environment variable overrides.
func (c *Config) applyEnvOverrides() {
	if url := os.Getenv("CHROME_DEBUGGER_URL"); url != "" {
		c.Browser.DebuggerURL = url
	}
	if path := os.Getenv("DB_PATH"); path != "" {
		c.Store.Path = path
	}

	// Drafting service keys; the later provider wins when both are set
	if key := os.Getenv("ANTHROPIC_API_KEY"); key != "" {
		c.Server.APIKey = key
		c.Server.Provider = "anthropic"
	}
	if key := os.Getenv("GEMINI_API_KEY"); key != "" {
		c.Server.APIKey = key
		c.Server.Provider = "gemini"
	}
	if model := os.Getenv("MODEL"); model != "" {
		c.Server.Model = model
	}
	if secret := os.Getenv("API_SECRET"); secret != "" {
		c.Server.APISecret = secret
	}
	if persona := os.Getenv("REPLYDRAFT_PERSONA"); persona != "" {
		c.Server.Persona = persona
	}
	if addr := os.Getenv("REPLYDRAFT_METRICS_ADDR"); addr != "" {
		c.MetricsAddr = addr
	}
}

func parseDuration(s string, fallback time.Duration) time.Duration {
	d, err := time.ParseDuration(s)
	if err != nil || d <= 0 {
		return fallback
	}
	return d
}

// GetNavigationTimeout returns the page navigation timeout.
func (c *Config) GetNavigationTimeout() time.Duration {
	return parseDuration(c.Browser.NavigationTimeout, 30*time.Second)
}

// GetReadyPoll returns the Readiness Gate poll interval.
func (c *Config) GetReadyPoll() time.Duration {
	return parseDuration(c.Observer.ReadyPoll, 500*time.Millisecond)
}

// GetDebounce returns the quiet period required before a content change is evaluated.
func (c *Config) GetDebounce() time.Duration {
	return parseDuration(c.Observer.Debounce, 800*time.Millisecond)
}

// GetAttachRetry returns how often the thread watcher re-probes its container.
func (c *Config) GetAttachRetry() time.Duration {
	return parseDuration(c.Observer.AttachRetry, time.Second)
}

// GetDrainInterval returns how often hook events are drained from the page.
func (c *Config) GetDrainInterval() time.Duration {
	return parseDuration(c.Observer.DrainInterval, 100*time.Millisecond)
}

// GetNoResponseFade returns how long an informational badge stays up.
func (c *Config) GetNoResponseFade() time.Duration {
	return parseDuration(c.Presenter.NoResponseFade, 10*time.Second)
}

// GetStatusTimeout returns the drafting service health check bound.
func (c *Config) GetStatusTimeout() time.Duration {
	return parseDuration(c.Drafts.StatusTimeout, 5*time.Second)
}

// GetRequestTimeout returns the draft request bound.
func (c *Config) GetRequestTimeout() time.Duration {
	return parseDuration(c.Drafts.RequestTimeout, 60*time.Second)
}
