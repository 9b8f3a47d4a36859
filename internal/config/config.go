package config

import (
	_ "embed"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/pelletier/go-toml/v2"
)

//go:embed sample_config.toml
var sampleConfig string

// Server describes the EPrints REST endpoint and the credentials used for it.
type Server struct {
	APIURL   string `toml:"api_url"`
	User     string `toml:"user"`
	Password string `toml:"password"`
	// Keyring looks up missing credentials in the OS keyring and stores
	// credentials entered at the prompt there.
	Keyring bool `toml:"keyring"`
}

// Output controls where records land and how they are packaged.
type Output struct {
	Dir        string `toml:"dir"`
	NamePrefix string `toml:"name_prefix"`
	// Bags turns record directories into BagIt bags. When false the plain
	// record directories are left in place.
	Bags bool `toml:"bags"`
	// Archive serializes each bag into a .tgz and removes the bag directory.
	Archive bool `toml:"archive"`
}

// Fetch contains network pacing and retry settings.
type Fetch struct {
	DelayMS        int    `toml:"delay_ms"`
	MissingOK      bool   `toml:"missing_ok"`
	TimeoutSeconds int    `toml:"timeout_seconds"`
	RetryAttempts  int    `toml:"retry_attempts"`
	RetryDelayMS   int    `toml:"retry_delay_ms"`
	ProbeURL       string `toml:"probe_url"`
}

// Journal configures the SQLite record of archived records.
type Journal struct {
	Enabled bool   `toml:"enabled"`
	Path    string `toml:"path"`
}

// Logging contains configuration for log output.
type Logging struct {
	Format string `toml:"format"`
	Level  string `toml:"level"`
	Dir    string `toml:"dir"`
}

// Config encapsulates all configuration values for eprints2bags.
//
// Configuration sections by subsystem:
//   - Server: EPrints REST API URL and credentials
//   - Output: output directory, record name prefix, bag/archive toggles
//   - Fetch: pacing delay, missing-record policy, timeouts and retry budget
//   - Journal: SQLite audit trail of archived records
//   - Logging: log format, level, and optional log directory
type Config struct {
	Server  Server  `toml:"server"`
	Output  Output  `toml:"output"`
	Fetch   Fetch   `toml:"fetch"`
	Journal Journal `toml:"journal"`
	Logging Logging `toml:"logging"`
}

// DefaultConfigPath returns the absolute path to the default configuration file location.
func DefaultConfigPath() (string, error) {
	return expandPath(defaultConfigPath)
}

// Load locates, parses, and validates a configuration file. The returned config has all
// path fields expanded and normalized.
func Load(path string) (*Config, string, bool, error) {
	cfg := Default()

	resolvedPath, exists, err := resolveConfigPath(path)
	if err != nil {
		return nil, "", false, err
	}

	if exists {
		file, err := os.Open(resolvedPath)
		if err != nil {
			return nil, "", false, fmt.Errorf("open config: %w", err)
		}
		defer file.Close()

		decoder := toml.NewDecoder(file)
		decoder.DisallowUnknownFields()
		if err := decoder.Decode(&cfg); err != nil {
			return nil, "", false, fmt.Errorf("parse config: %w", err)
		}
	}

	if err := cfg.Normalize(); err != nil {
		return nil, "", false, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, "", false, err
	}

	return &cfg, resolvedPath, exists, nil
}

func resolveConfigPath(path string) (string, bool, error) {
	if path != "" {
		expanded, err := expandPath(path)
		if err != nil {
			return "", false, err
		}
		_, err = os.Stat(expanded)
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				return expanded, false, nil
			}
			return "", false, fmt.Errorf("stat config: %w", err)
		}
		return expanded, true, nil
	}

	defaultPath, err := expandPath(defaultConfigPath)
	if err != nil {
		return "", false, err
	}

	projectPath, err := filepath.Abs("eprints2bags.toml")
	if err != nil {
		return "", false, err
	}

	if info, err := os.Stat(defaultPath); err == nil && !info.IsDir() {
		return defaultPath, true, nil
	}
	if info, err := os.Stat(projectPath); err == nil && !info.IsDir() {
		return projectPath, true, nil
	}

	return defaultPath, false, nil
}

// EnsureDirectories creates the output directory and, when enabled, the
// journal and log directories.
func (c *Config) EnsureDirectories() error {
	dirs := []string{c.Output.Dir}
	if c.Journal.Enabled && c.Journal.Path != "" {
		dirs = append(dirs, filepath.Dir(c.Journal.Path))
	}
	if c.Logging.Dir != "" {
		dirs = append(dirs, c.Logging.Dir)
	}
	for _, dir := range dirs {
		if strings.TrimSpace(dir) == "" {
			continue
		}
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create directory %q: %w", dir, err)
		}
	}
	return nil
}

// RecordPrefix returns the text prepended to identifiers when naming record
// directories and metadata files: "" or "<name_prefix>-".
func (c *Config) RecordPrefix() string {
	prefix := strings.TrimSpace(c.Output.NamePrefix)
	if prefix == "" {
		return ""
	}
	return prefix + "-"
}

// Delay is the pacing pause inserted between records.
func (c *Config) Delay() time.Duration {
	return time.Duration(c.Fetch.DelayMS) * time.Millisecond
}

// Timeout is the per-request network timeout.
func (c *Config) Timeout() time.Duration {
	return time.Duration(c.Fetch.TimeoutSeconds) * time.Second
}

// RetryDelay is the pause before retrying a reset or 202-pending request.
func (c *Config) RetryDelay() time.Duration {
	return time.Duration(c.Fetch.RetryDelayMS) * time.Millisecond
}

func expandPath(pathValue string) (string, error) {
	if pathValue == "" {
		return pathValue, nil
	}
	if strings.HasPrefix(pathValue, "~") {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("resolve home directory: %w", err)
		}
		if pathValue == "~" {
			pathValue = home
		} else if len(pathValue) > 1 && (pathValue[1] == '/' || pathValue[1] == '\\') {
			pathValue = filepath.Join(home, pathValue[2:])
		}
	}
	cleaned := filepath.Clean(pathValue)
	absolute, err := filepath.Abs(cleaned)
	if err != nil {
		return "", fmt.Errorf("resolve absolute path for %q: %w", cleaned, err)
	}
	return absolute, nil
}

// ExpandPath exposes the repository path expansion rules for other packages.
func ExpandPath(pathValue string) (string, error) {
	return expandPath(pathValue)
}

// CreateSample writes a sample configuration file to the specified location.
func CreateSample(path string) error {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create config directory: %w", err)
		}
	}

	if err := os.WriteFile(path, []byte(sampleConfig), 0o600); err != nil {
		return fmt.Errorf("write sample config: %w", err)
	}
	return nil
}
