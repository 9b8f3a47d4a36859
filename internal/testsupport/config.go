package testsupport

import (
	"path/filepath"
	"testing"

	"eprints2bags/internal/config"
)

// ConfigOption allows callers to customize the generated test configuration.
type ConfigOption func(*configBuilder)

type configBuilder struct {
	t       testing.TB
	baseDir string
	cfg     *config.Config
}

// NewConfig produces a config whose output, journal, and log locations live
// under a per-test temp directory. Pacing and retry delays are zeroed so
// tests run without sleeping.
func NewConfig(t testing.TB, opts ...ConfigOption) *config.Config {
	t.Helper()

	base := t.TempDir()
	cfgVal := config.Default()
	cfgVal.Output.Dir = filepath.Join(base, "output")
	cfgVal.Journal.Path = filepath.Join(base, "journal", "journal.db")
	cfgVal.Logging.Dir = filepath.Join(base, "logs")
	cfgVal.Fetch.DelayMS = 0
	cfgVal.Fetch.RetryDelayMS = 0
	cfgVal.Server.Keyring = false

	builder := &configBuilder{
		t:       t,
		baseDir: base,
		cfg:     &cfgVal,
	}

	for _, opt := range opts {
		opt(builder)
	}

	return builder.cfg
}

// WithServer points the config at an EPrints REST root.
func WithServer(apiURL string) ConfigOption {
	return func(b *configBuilder) {
		b.cfg.Server.APIURL = apiURL
	}
}

// WithCredentials sets the server user and password.
func WithCredentials(user, password string) ConfigOption {
	return func(b *configBuilder) {
		b.cfg.Server.User = user
		b.cfg.Server.Password = password
	}
}

// WithMissingOK enables the skip policy for absent records.
func WithMissingOK() ConfigOption {
	return func(b *configBuilder) {
		b.cfg.Fetch.MissingOK = true
	}
}

// WithNamePrefix sets the record directory prefix.
func WithNamePrefix(prefix string) ConfigOption {
	return func(b *configBuilder) {
		b.cfg.Output.NamePrefix = prefix
	}
}

// WithoutArchive keeps bags as directories.
func WithoutArchive() ConfigOption {
	return func(b *configBuilder) {
		b.cfg.Output.Archive = false
	}
}

// WithoutBags keeps plain record directories.
func WithoutBags() ConfigOption {
	return func(b *configBuilder) {
		b.cfg.Output.Bags = false
	}
}

// WithJournal enables the run journal at its temp location.
func WithJournal() ConfigOption {
	return func(b *configBuilder) {
		b.cfg.Journal.Enabled = true
	}
}
