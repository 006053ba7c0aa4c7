package main

import (
	"os"
	"strings"
	"time"

	"venuebook/internal/config"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
)

var configPath string

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           "venuebook",
		Short:         "Venue availability and booking lifecycle engine",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVar(&configPath, "config", "", "config file (default $VENUEBOOK_CONFIG or "+config.DefaultPath+")")

	root.AddCommand(newServeCmd())
	root.AddCommand(newJobsCmd())
	root.AddCommand(newLifecycleCmd())
	root.AddCommand(newDBCmd())
	return root
}

// loadConfig reads the config file and builds the process logger from it.
func loadConfig() (*config.Config, zerolog.Logger, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, zerolog.Nop(), err
	}
	return cfg, newLogger(cfg.Logging.Level, cfg.Logging.Pretty), nil
}

func newLogger(level string, pretty bool) zerolog.Logger {
	lvl, err := zerolog.ParseLevel(strings.ToLower(level))
	if err != nil || level == "" {
		lvl = zerolog.InfoLevel
	}

	var logger zerolog.Logger
	if pretty {
		output := zerolog.ConsoleWriter{Out: os.Stdout, TimeFormat: time.RFC3339}
		logger = zerolog.New(output)
	} else {
		logger = zerolog.New(os.Stdout)
	}
	return logger.Level(lvl).With().Timestamp().Logger()
}
