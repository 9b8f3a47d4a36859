package config

import (
	"fmt"
	"os"
	"strings"
)

// Normalize trims values, applies environment fallbacks, and expands paths.
// Load calls it automatically; callers that override fields after loading
// (for example from CLI flags) should call it again before Validate.
func (c *Config) Normalize() error {
	c.normalizeServer()
	if err := c.normalizeOutput(); err != nil {
		return err
	}
	c.normalizeFetch()
	if err := c.normalizeJournal(); err != nil {
		return err
	}
	return c.normalizeLogging()
}

func (c *Config) normalizeServer() {
	c.Server.APIURL = strings.TrimRight(strings.TrimSpace(c.Server.APIURL), "/")
	c.Server.User = strings.TrimSpace(c.Server.User)
	if c.Server.User == "" {
		if value, ok := os.LookupEnv("EPRINTS_USER"); ok {
			c.Server.User = strings.TrimSpace(value)
		}
	}
	if c.Server.Password == "" {
		if value, ok := os.LookupEnv("EPRINTS_PASSWORD"); ok {
			c.Server.Password = value
		}
	}
}

func (c *Config) normalizeOutput() error {
	if strings.TrimSpace(c.Output.Dir) == "" {
		c.Output.Dir = "."
	}
	var err error
	if c.Output.Dir, err = expandPath(strings.TrimSpace(c.Output.Dir)); err != nil {
		return fmt.Errorf("output.dir: %w", err)
	}
	c.Output.NamePrefix = strings.TrimSpace(c.Output.NamePrefix)
	return nil
}

func (c *Config) normalizeFetch() {
	c.Fetch.ProbeURL = strings.TrimSpace(c.Fetch.ProbeURL)
	if c.Fetch.ProbeURL == "" {
		c.Fetch.ProbeURL = defaultProbeURL
	}
	if c.Fetch.TimeoutSeconds == 0 {
		c.Fetch.TimeoutSeconds = defaultTimeoutSeconds
	}
}

func (c *Config) normalizeJournal() error {
	c.Journal.Path = strings.TrimSpace(c.Journal.Path)
	if c.Journal.Path == "" {
		c.Journal.Path = defaultJournalPath
	}
	var err error
	if c.Journal.Path, err = expandPath(c.Journal.Path); err != nil {
		return fmt.Errorf("journal.path: %w", err)
	}
	return nil
}

func (c *Config) normalizeLogging() error {
	c.Logging.Format = strings.ToLower(strings.TrimSpace(c.Logging.Format))
	if c.Logging.Format == "" {
		c.Logging.Format = defaultLogFormat
	}
	c.Logging.Level = strings.ToLower(strings.TrimSpace(c.Logging.Level))
	if c.Logging.Level == "" {
		c.Logging.Level = defaultLogLevel
	}
	if strings.TrimSpace(c.Logging.Dir) != "" {
		var err error
		if c.Logging.Dir, err = expandPath(strings.TrimSpace(c.Logging.Dir)); err != nil {
			return fmt.Errorf("logging.dir: %w", err)
		}
	}
	return nil
}
