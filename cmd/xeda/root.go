package main

import (
	"os"
	"time"

	"github.com/spf13/cobra"
	"github.com/trickstertwo/xlog"
	"github.com/trickstertwo/xlog/adapter/zerolog"

	"github.com/trickstertwo/xeda/internal/config"
)

// app is the state shared by every subcommand once the root pre-run has
// loaded the configuration.
type app struct {
	configPath string
	logLevel   string

	cfg    *config.Config
	logger *xlog.Logger
}

func newRootCmd() *cobra.Command {
	a := &app{}
	root := &cobra.Command{
		Use:   "xeda",
		Short: "Event notification bridge for calendar-event content",
		Long: `xeda turns lifecycle changes of event content into CloudEvents
envelopes and hands them to a message broker.

  emit      fire a lifecycle operation for a node
  consume   print envelopes arriving on the event topics
  schedule  publish nodes whose publication time has passed
  flag      report content and apply moderation
  put       store a node for the scheduler and moderation`,
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			return a.load(cmd)
		},
	}
	root.PersistentFlags().StringVar(&a.configPath, "config", config.DefaultPath, "path to the YAML configuration")
	root.PersistentFlags().StringVar(&a.logLevel, "log-level", "", "override log.level (debug, info, warn, error)")

	root.AddCommand(
		newEmitCmd(a),
		newConsumeCmd(a),
		newScheduleCmd(a),
		newFlagCmd(a),
		newPutCmd(a),
		newVersionCmd(),
	)
	return root
}

func (a *app) load(cmd *cobra.Command) error {
	cfg, err := config.Load(a.configPath)
	if err != nil {
		return err
	}
	if a.logLevel != "" {
		cfg.Log.Level = a.logLevel
		if err := cfg.Validate(); err != nil {
			return err
		}
	}
	a.cfg = cfg

	zc := zerolog.Config{
		Console:           cfg.Log.Console,
		ConsoleTimeFormat: time.RFC3339,
		Writer:            os.Stderr,
	}
	switch cfg.Log.Level {
	case "debug":
		zc.MinLevel = xlog.LevelDebug
	case "warn":
		zc.MinLevel = xlog.LevelWarn
	case "error":
		zc.MinLevel = xlog.LevelError
	default:
		zc.MinLevel = xlog.LevelInfo
	}
	a.logger = zerolog.Use(zc).With(xlog.Str("app", "xeda"), xlog.Str("cmd", cmd.Name()))
	return nil
}
