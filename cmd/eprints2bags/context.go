package main

import (
	"log/slog"
	"strings"
	"sync"

	"github.com/spf13/cobra"

	"eprints2bags/internal/config"
	"eprints2bags/internal/logging"
	"eprints2bags/internal/network"
)

type commandContext struct {
	configFlag *string

	configOnce sync.Once
	config     *config.Config
	configErr  error
}

func newCommandContext(configFlag *string) *commandContext {
	return &commandContext{configFlag: configFlag}
}

// ensureConfig loads the configuration once per process. Commands that
// override values from flags mutate the returned config and call
// Normalize and Validate again.
func (c *commandContext) ensureConfig() (*config.Config, error) {
	c.configOnce.Do(func() {
		var path string
		if c.configFlag != nil {
			path = strings.TrimSpace(*c.configFlag)
		}
		cfg, _, _, err := config.Load(path)
		if err != nil {
			c.configErr = err
			return
		}
		c.config = cfg
	})
	return c.config, c.configErr
}

// newLogger builds the command logger; quiet and debug override the
// configured level.
func newLogger(cfg *config.Config, quiet, debug bool) (*slog.Logger, error) {
	switch {
	case debug:
		cfg.Logging.Level = "debug"
	case quiet:
		cfg.Logging.Level = "warn"
	}
	return logging.NewFromConfig(cfg)
}

func newClient(cfg *config.Config, logger *slog.Logger) *network.Client {
	return network.NewClient(network.Options{
		Timeout:       cfg.Timeout(),
		RetryAttempts: cfg.Fetch.RetryAttempts,
		RetryDelay:    cfg.RetryDelay(),
		ProbeURL:      cfg.Fetch.ProbeURL,
		Logger:        logger,
	})
}

func shouldSkipConfig(cmd *cobra.Command) bool {
	for c := cmd; c != nil; c = c.Parent() {
		if c.Annotations != nil && c.Annotations["skipConfigLoad"] == "true" {
			return true
		}
	}
	return false
}

func yesNo(value bool) string {
	if value {
		return "yes"
	}
	return "no"
}
