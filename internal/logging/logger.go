// Package logging provides config-driven categorized file logging for replydraft.
// Each category writes to <logs_dir>/<date>_<category>.log through its own zap core.
// Nothing is written unless debug_mode is on.
package logging

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Category represents a log category/system
type Category string

const (
	CategoryBoot      Category = "boot"      // Startup, config resolution
	CategoryConfig    Category = "config"    // Settings file watching
	CategoryBrowser   Category = "browser"   // Chrome connection, tab attach, hook install
	CategoryObserver  Category = "observer"  // Readiness, mutation batches, navigation
	CategoryExtract   Category = "extract"   // Snapshot extraction decisions
	CategoryPipeline  Category = "pipeline"  // Evaluation cycles, dedup gate
	CategoryDrafts    Category = "drafts"    // Drafting service round trips
	CategoryStore     Category = "store"     // Draft record persistence
	CategoryPresenter Category = "presenter" // Composer injection, badges
	CategoryServer    Category = "server"    // Drafting service (serve command)
)

// Options mirrors config.LoggingConfig to avoid circular imports.
type Options struct {
	DebugMode  bool
	Categories map[string]bool
	Level      string
	JSONFormat bool
}

// Logger is a category logger. The zero value discards everything.
type Logger struct {
	category Category
	sugar    *zap.SugaredLogger
	file     *os.File
}

var (
	loggers   = make(map[Category]*Logger)
	loggersMu sync.RWMutex

	state   Options
	logsDir string
	stateMu sync.RWMutex

	// shared by every category core so a level change applies everywhere
	level = zap.NewAtomicLevelAt(zapcore.InfoLevel)
)

// Initialize sets up the logging directory. Call once at startup.
func Initialize(dir string, opts Options) error {
	if dir == "" {
		return fmt.Errorf("logs directory required")
	}

	stateMu.Lock()
	state = opts
	logsDir = dir
	stateMu.Unlock()
	level.SetLevel(parseLevel(opts.Level))

	if !opts.DebugMode {
		return nil
	}
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create logs directory: %w", err)
	}

	boot := Get(CategoryBoot)
	boot.Info("=== replydraft logging initialized ===")
	boot.Info("logs directory: %s, level: %s", dir, level.Level())
	if len(opts.Categories) == 0 {
		boot.Info("all categories enabled")
	}
	return nil
}

func parseLevel(s string) zapcore.Level {
	if s == "warning" {
		s = "warn"
	}
	l, err := zapcore.ParseLevel(s)
	if err != nil {
		return zapcore.InfoLevel
	}
	return l
}

// IsDebugMode reports whether file logging is on.
func IsDebugMode() bool {
	stateMu.RLock()
	defer stateMu.RUnlock()
	return state.DebugMode
}

// IsCategoryEnabled returns whether a specific category is enabled
func IsCategoryEnabled(category Category) bool {
	stateMu.RLock()
	defer stateMu.RUnlock()

	if !state.DebugMode {
		return false
	}
	enabled, exists := state.Categories[string(category)]
	return !exists || enabled
}

// Get returns (or creates) the logger for category. Disabled categories get a
// no-op logger.
func Get(category Category) *Logger {
	if !IsCategoryEnabled(category) {
		return &Logger{category: category}
	}

	loggersMu.RLock()
	l, ok := loggers[category]
	loggersMu.RUnlock()
	if ok {
		return l
	}

	loggersMu.Lock()
	defer loggersMu.Unlock()
	if l, ok := loggers[category]; ok {
		return l
	}

	stateMu.RLock()
	dir, jsonFormat := logsDir, state.JSONFormat
	stateMu.RUnlock()

	path := filepath.Join(dir, fmt.Sprintf("%s_%s.log", time.Now().Format("2006-01-02"), category))
	file, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
	if err != nil {
		fmt.Fprintf(os.Stderr, "[logging] could not open %s: %v\n", path, err)
		return &Logger{category: category}
	}

	core := zapcore.NewCore(newEncoder(jsonFormat), zapcore.AddSync(file), level)
	l = &Logger{
		category: category,
		sugar:    zap.New(core).Named(string(category)).Sugar(),
		file:     file,
	}
	loggers[category] = l
	return l
}

func newEncoder(jsonFormat bool) zapcore.Encoder {
	cfg := zapcore.EncoderConfig{
		TimeKey:        "ts",
		LevelKey:       "lvl",
		NameKey:        "cat",
		MessageKey:     "msg",
		LineEnding:     zapcore.DefaultLineEnding,
		EncodeLevel:    zapcore.CapitalLevelEncoder,
		EncodeDuration: zapcore.StringDurationEncoder,
		EncodeName:     zapcore.FullNameEncoder,
	}
	if jsonFormat {
		cfg.EncodeTime = zapcore.EpochMillisTimeEncoder
		return zapcore.NewJSONEncoder(cfg)
	}
	cfg.EncodeTime = zapcore.TimeEncoderOfLayout("2006/01/02 15:04:05.000000")
	cfg.ConsoleSeparator = " "
	return zapcore.NewConsoleEncoder(cfg)
}

func (l *Logger) Debug(format string, args ...interface{}) {
	if l.sugar != nil {
		l.sugar.Debugf(format, args...)
	}
}

func (l *Logger) Info(format string, args ...interface{}) {
	if l.sugar != nil {
		l.sugar.Infof(format, args...)
	}
}

func (l *Logger) Warn(format string, args ...interface{}) {
	if l.sugar != nil {
		l.sugar.Warnf(format, args...)
	}
}

func (l *Logger) Error(format string, args ...interface{}) {
	if l.sugar != nil {
		l.sugar.Errorf(format, args...)
	}
}

// Infow logs msg with structured key/value pairs.
func (l *Logger) Infow(msg string, keysAndValues ...interface{}) {
	if l.sugar != nil {
		l.sugar.Infow(msg, keysAndValues...)
	}
}

// CloseAll flushes and closes every open log file.
func CloseAll() {
	loggersMu.Lock()
	defer loggersMu.Unlock()

	for _, l := range loggers {
		_ = l.sugar.Sync()
		l.file.Close()
	}
	loggers = make(map[Category]*Logger)
}

// Convenience functions; no-ops when the category is disabled.

func Boot(format string, args ...interface{})     { Get(CategoryBoot).Info(format, args...) }
func BootWarn(format string, args ...interface{}) { Get(CategoryBoot).Warn(format, args...) }

func Config(format string, args ...interface{})     { Get(CategoryConfig).Info(format, args...) }
func ConfigWarn(format string, args ...interface{}) { Get(CategoryConfig).Warn(format, args...) }

func Browser(format string, args ...interface{})      { Get(CategoryBrowser).Info(format, args...) }
func BrowserDebug(format string, args ...interface{}) { Get(CategoryBrowser).Debug(format, args...) }
func BrowserWarn(format string, args ...interface{})  { Get(CategoryBrowser).Warn(format, args...) }

func Observer(format string, args ...interface{})      { Get(CategoryObserver).Info(format, args...) }
func ObserverDebug(format string, args ...interface{}) { Get(CategoryObserver).Debug(format, args...) }
func ObserverWarn(format string, args ...interface{})  { Get(CategoryObserver).Warn(format, args...) }

func ExtractDebug(format string, args ...interface{}) { Get(CategoryExtract).Debug(format, args...) }

func Pipeline(format string, args ...interface{})      { Get(CategoryPipeline).Info(format, args...) }
func PipelineDebug(format string, args ...interface{}) { Get(CategoryPipeline).Debug(format, args...) }
func PipelineError(format string, args ...interface{}) { Get(CategoryPipeline).Error(format, args...) }

func Drafts(format string, args ...interface{})      { Get(CategoryDrafts).Info(format, args...) }
func DraftsError(format string, args ...interface{}) { Get(CategoryDrafts).Error(format, args...) }

func Store(format string, args ...interface{})      { Get(CategoryStore).Info(format, args...) }
func StoreDebug(format string, args ...interface{}) { Get(CategoryStore).Debug(format, args...) }

func Presenter(format string, args ...interface{})     { Get(CategoryPresenter).Info(format, args...) }
func PresenterWarn(format string, args ...interface{}) { Get(CategoryPresenter).Warn(format, args...) }

func Server(format string, args ...interface{})      { Get(CategoryServer).Info(format, args...) }
func ServerError(format string, args ...interface{}) { Get(CategoryServer).Error(format, args...) }
