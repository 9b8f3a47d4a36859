package config

const (
	defaultConfigPath     = "~/.config/eprints2bags/config.toml"
	defaultJournalPath    = "~/.local/share/eprints2bags/journal.db"
	defaultDelayMS        = 100
	defaultTimeoutSeconds = 10
	defaultRetryAttempts  = 5
	defaultRetryDelayMS   = 1000
	defaultProbeURL       = "http://www.google.com"
	defaultLogFormat      = "console"
	defaultLogLevel       = "info"
)

// Default returns a Config populated with repository defaults. The output
// directory defaults to the working directory.
func Default() Config {
	return Config{
		Server: Server{
			Keyring: true,
		},
		Output: Output{
			Dir:     ".",
			Bags:    true,
			Archive: true,
		},
		Fetch: Fetch{
			DelayMS:        defaultDelayMS,
			TimeoutSeconds: defaultTimeoutSeconds,
			RetryAttempts:  defaultRetryAttempts,
			RetryDelayMS:   defaultRetryDelayMS,
			ProbeURL:       defaultProbeURL,
		},
		Journal: Journal{
			Enabled: true,
			Path:    defaultJournalPath,
		},
		Logging: Logging{
			Format: defaultLogFormat,
			Level:  defaultLogLevel,
		},
	}
}
