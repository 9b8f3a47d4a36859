package config

import (
	"errors"
	"fmt"
	"net/url"
	"strings"

	"eprints2bags/internal/services"
)

// Validate ensures the configuration is usable. An empty API URL is accepted
// here because it is usually supplied on the command line; RequireServer
// enforces it before a run.
func (c *Config) Validate() error {
	if err := c.validateServer(); err != nil {
		return err
	}
	if err := c.validateFetch(); err != nil {
		return err
	}
	return c.validateLogging()
}

// RequireServer reports an error when no API URL has been configured.
func (c *Config) RequireServer() error {
	if strings.TrimSpace(c.Server.APIURL) == "" {
		return services.Wrap(services.ErrConfiguration, "config", "", "an EPrints API URL is required (server.api_url or --api-url)", nil)
	}
	return c.validateServer()
}

func (c *Config) validateServer() error {
	raw := c.Server.APIURL
	if raw == "" {
		return nil
	}
	parsed, err := url.Parse(raw)
	if err != nil {
		return services.Wrap(services.ErrBadURL, "config", "server.api_url", fmt.Sprintf("unable to parse %q as a URL", raw), err)
	}
	if parsed.Scheme != "http" && parsed.Scheme != "https" {
		return services.Wrap(services.ErrBadURL, "config", "server.api_url", fmt.Sprintf("%q must be a full http(s) URL", raw), nil)
	}
	if parsed.Host == "" {
		return services.Wrap(services.ErrBadURL, "config", "server.api_url", fmt.Sprintf("%q has no host", raw), nil)
	}
	if parsed.User != nil {
		return services.Wrap(services.ErrBadURL, "config", "server.api_url", "credentials belong in server.user and server.password, not the URL", nil)
	}
	return nil
}

func (c *Config) validateFetch() error {
	if c.Fetch.DelayMS < 0 {
		return errors.New("fetch.delay_ms must be zero or positive")
	}
	if c.Fetch.TimeoutSeconds <= 0 {
		return errors.New("fetch.timeout_seconds must be positive")
	}
	if c.Fetch.RetryAttempts < 1 {
		return errors.New("fetch.retry_attempts must be at least 1")
	}
	if c.Fetch.RetryDelayMS < 0 {
		return errors.New("fetch.retry_delay_ms must be zero or positive")
	}
	return nil
}

func (c *Config) validateLogging() error {
	switch c.Logging.Format {
	case "console", "json":
	default:
		return fmt.Errorf("logging.format: unsupported value %q (use console or json)", c.Logging.Format)
	}
	switch c.Logging.Level {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("logging.level: unsupported value %q", c.Logging.Level)
	}
	return nil
}
