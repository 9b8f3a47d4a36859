// Package config loads, normalizes, and validates eprints2bags configuration.
//
// It supplies repository defaults, expands user paths (including tilde
// shortcuts), reads TOML files, and honours EPRINTS_USER/EPRINTS_PASSWORD
// environment fallbacks. The Config type centralizes every knob the CLI and
// pipeline need: server URL and credentials, output layout, pacing and retry
// settings, the run journal, and logging.
package config
