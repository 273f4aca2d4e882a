package main

import (
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/statspub/publisher/internal/config"
	"github.com/statspub/publisher/pkg/log"
)

var rootCmd = &cobra.Command{
	Use:          "publisher-api",
	Short:        "Release publishing service",
	SilenceUsage: true,
}

func init() {
	rootCmd.AddCommand(migrateCmd)
	rootCmd.AddCommand(runCmd)
	rootCmd.AddCommand(triggerCmd)
}

// setup reads the configuration and installs the global zap logger. The
// returned func restores the previous logger and flushes.
func setup() (*config.Config, func(), error) {
	cfg, err := config.New()
	if err != nil {
		return nil, nil, err
	}

	logger, err := log.InitLog(log.ParseLevel(cfg.Service.LogLevel), cfg.Service.LogFormat)
	if err != nil {
		return nil, nil, err
	}
	undo := zap.ReplaceGlobals(logger)

	return cfg, func() {
		_ = logger.Sync()
		undo()
	}, nil
}
