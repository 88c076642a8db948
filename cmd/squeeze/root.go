package main

import (
	"context"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"squeeze-worker/internal/config"
	"squeeze-worker/internal/hardware"
	"squeeze-worker/internal/logging"
	"squeeze-worker/pkg/models"
)

// commandContext lazily loads shared state for subcommands.
type commandContext struct {
	configPath *string
	verbose    *bool

	cfg    *config.Config
	logger *logrus.Logger
}

func (c *commandContext) loadConfig() (*config.Config, error) {
	if c.cfg != nil {
		return c.cfg, nil
	}
	cfg, err := config.LoadConfig(*c.configPath)
	if err != nil {
		return nil, err
	}
	c.cfg = cfg
	return cfg, nil
}

// loadLogger is quiet unless --verbose: the CLI reports through its own output.
func (c *commandContext) loadLogger() (*logrus.Logger, error) {
	if c.logger != nil {
		return c.logger, nil
	}
	cfg, err := c.loadConfig()
	if err != nil {
		return nil, err
	}
	level := "warn"
	if *c.verbose {
		level = "debug"
	}
	logger, err := logging.New(level, cfg.LogFormat)
	if err != nil {
		return nil, err
	}
	c.logger = logger
	return logger, nil
}

func (c *commandContext) detect(ctx context.Context, disableHW bool) (models.HardwareCapabilities, error) {
	cfg, err := c.loadConfig()
	if err != nil {
		return models.HardwareCapabilities{}, err
	}
	logger, err := c.loadLogger()
	if err != nil {
		return models.HardwareCapabilities{}, err
	}
	registry := hardware.NewRegistry(hardware.Options{
		FFmpegPath:    cfg.FFmpegPath,
		EnableHWAccel: cfg.EnableHWAccel && !disableHW,
		ProbeTimeout:  time.Duration(cfg.ProbeTimeoutSec) * time.Second,
	}, logger)
	return registry.Capabilities(ctx), nil
}

func newRootCommand() *cobra.Command {
	var configFlag string
	var verboseFlag bool
	ctx := &commandContext{configPath: &configFlag, verbose: &verboseFlag}

	rootCmd := &cobra.Command{
		Use:           "squeeze",
		Short:         "Compress videos to a target file size",
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return cmd.Help()
		},
	}

	rootCmd.PersistentFlags().StringVarP(&configFlag, "config", "c", "", "Configuration file path")
	rootCmd.PersistentFlags().BoolVarP(&verboseFlag, "verbose", "v", false, "Log encoder activity")

	rootCmd.AddCommand(newCompressCommand(ctx))
	rootCmd.AddCommand(newEstimateCommand(ctx))
	rootCmd.AddCommand(newListHardwareCommand(ctx))
	rootCmd.AddCommand(newPresetsCommand())

	return rootCmd
}
