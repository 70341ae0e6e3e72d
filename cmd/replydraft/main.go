// Package main implements the replydraft CLI.
package main

import (
	"fmt"
	"os"
	"path/filepath"

	"replydraft/internal/config"
	"replydraft/internal/logging"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// app carries state shared by every subcommand of one invocation.
type app struct {
	verbose    bool
	configPath string

	cfg    *config.Config
	logger *zap.Logger
}

func defaultConfigPath() string {
	if dir, err := os.UserHomeDir(); err == nil {
		return filepath.Join(dir, ".replydraft", "config.yaml")
	}
	return filepath.Join(".replydraft", "config.yaml")
}

func newRootCmd() *cobra.Command {
	a := &app{}

	root := &cobra.Command{
		Use:   "replydraft",
		Short: "Drafts replies to unanswered LinkedIn messages in your browser",
		Long: `replydraft attaches to a Chrome tab showing LinkedIn messaging, watches the
open thread, and when the latest message is from the other person asks the
drafting service for a reply. Drafts are placed in the composer for you to
review; nothing is ever sent automatically.

Run "replydraft serve" to host the drafting service and "replydraft watch"
to attach to the browser.`,
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return a.setup()
		},
		PersistentPostRun: func(cmd *cobra.Command, args []string) {
			a.close()
		},
	}

	root.PersistentFlags().BoolVarP(&a.verbose, "verbose", "v", false, "Enable verbose logging")
	root.PersistentFlags().StringVarP(&a.configPath, "config", "c", defaultConfigPath(), "Config file")

	root.AddCommand(
		newWatchCmd(a),
		newServeCmd(a),
		newStatusCmd(a),
		newEnableCmd(a, true),
		newEnableCmd(a, false),
		newExtractCmd(a),
		newRecordsCmd(a),
	)
	return root
}

// setup loads .env, the config file and the loggers.
func (a *app) setup() error {
	// .env is optional
	_ = godotenv.Load()

	zcfg := zap.NewProductionConfig()
	if a.verbose {
		zcfg.Level = zap.NewAtomicLevelAt(zapcore.DebugLevel)
	}
	logger, err := zcfg.Build()
	if err != nil {
		return fmt.Errorf("failed to initialize logger: %w", err)
	}
	a.logger = logger

	cfg, err := config.Load(a.configPath)
	if err != nil {
		return err
	}
	if a.verbose {
		cfg.Logging.DebugMode = true
		cfg.Logging.Level = "debug"
	}
	a.cfg = cfg

	if err := logging.Initialize(cfg.Logging.LogsDir, cfg.Logging.Options()); err != nil {
		a.logger.Warn("file logging disabled", zap.Error(err))
	}
	logging.Boot("config loaded from %s", a.configPath)
	return nil
}

func (a *app) close() {
	logging.CloseAll()
	if a.logger != nil {
		_ = a.logger.Sync()
	}
}

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, errorStyle.Render("Error: "+err.Error()))
		os.Exit(1)
	}
}
