package config

import "replydraft/internal/logging"

// LoggingConfig configures logging.
type LoggingConfig struct {
	Level      string          `yaml:"level"`      // debug, info, warn, error
	DebugMode  bool            `yaml:"debug_mode"` // Master toggle - false = no file logging (production)
	JSONFormat bool            `yaml:"json_format"`
	LogsDir    string          `yaml:"logs_dir"`
	Categories map[string]bool `yaml:"categories"` // Per-category toggles
}

// IsCategoryEnabled returns whether logging is enabled for a category.
// Returns false if debug_mode is false (production mode).
func (c *LoggingConfig) IsCategoryEnabled(category string) bool {
	if !c.DebugMode {
		return false
	}
	if c.Categories == nil {
		return true
	}
	enabled, exists := c.Categories[category]
	if !exists {
		return true
	}
	return enabled
}

// Options converts the section for logging.Initialize.
func (c *LoggingConfig) Options() logging.Options {
	return logging.Options{
		DebugMode:  c.DebugMode,
		Categories: c.Categories,
		Level:      c.Level,
		JSONFormat: c.JSONFormat,
	}
}
