package main

import (
	"fmt"
	"log/slog"
	"os"
	"strings"
	"sync"

	"github.com/spf13/cobra"

	"github.com/trajcut/trajcut-agent/internal/config"
	"github.com/trajcut/trajcut-agent/internal/logging"
	"github.com/trajcut/trajcut-agent/internal/service"
)

type commandContext struct {
	configFlag *string

	configOnce sync.Once
	config     *config.EnvConfig
	configErr  error
}

func newCommandContext(configFlag *string) *commandContext {
	return &commandContext{configFlag: configFlag}
}

func (c *commandContext) ensureConfig() (*config.EnvConfig, error) {
	c.configOnce.Do(func() {
		var path string
		if c.configFlag != nil {
			path = strings.TrimSpace(*c.configFlag)
		}
		cfg, err := config.New(path)
		if err != nil {
			c.configErr = fmt.Errorf("failed to load config: %w", err)
			return
		}
		c.config = cfg
	})
	return c.config, c.configErr
}

func newRootCommand() *cobra.Command {
	var configFlag string
	ctx := newCommandContext(&configFlag)

	rootCmd := &cobra.Command{
		Use:           "trajcut",
		Short:         "Trajectory editing agent for stabilized clip composition",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if cmd.Annotations["skipConfigLoad"] == "true" {
				return nil
			}
			_, err := ctx.ensureConfig()
			return err
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			return cmd.Help()
		},
	}

	rootCmd.PersistentFlags().StringVarP(&configFlag, "config", "c", "", "Configuration file path (TOML)")

	rootCmd.AddCommand(newServeCommand(ctx))
	rootCmd.AddCommand(newInspectCommand(ctx))
	rootCmd.AddCommand(newVersionCommand())

	return rootCmd
}

// newServiceClient talks to the configured stabilization service, or
// returns the stub when no URL is set.
func newServiceClient(cfg config.Config, logger *slog.Logger) service.Client {
	if cfg.ServiceURL() == "" {
		logger.Warn("no stabilization service configured; round trips will fail")
		return service.NewStubClient(logger)
	}
	return service.NewHTTPClient(cfg.ServiceURL(), cfg.ServiceToken(), cfg.ServiceTimeout(), logger)
}

// cliLogger logs to stderr so command output stays clean.
func cliLogger(cfg config.Config) *slog.Logger {
	return logging.New(logging.Options{Level: cfg.LogLevel(), Format: cfg.LogFormat(), Output: os.Stderr})
}
