package config_test

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/pelletier/go-toml/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"eprints2bags/internal/config"
	"eprints2bags/internal/services"
)

func TestLoadDefaultsWhenFileAbsent(t *testing.T) {
	tempHome := t.TempDir()
	t.Setenv("HOME", tempHome)
	t.Setenv("EPRINTS_USER", "")
	t.Setenv("EPRINTS_PASSWORD", "")
	t.Chdir(t.TempDir())

	cfg, resolved, exists, err := config.Load("")
	require.NoError(t, err)
	assert.False(t, exists)
	assert.Equal(t, filepath.Join(tempHome, ".config", "eprints2bags", "config.toml"), resolved)

	assert.True(t, cfg.Output.Bags)
	assert.True(t, cfg.Output.Archive)
	assert.True(t, cfg.Server.Keyring)
	assert.Equal(t, 100*time.Millisecond, cfg.Delay())
	assert.Equal(t, 10*time.Second, cfg.Timeout())
	assert.Equal(t, 5, cfg.Fetch.RetryAttempts)
	assert.Equal(t, filepath.Join(tempHome, ".local", "share", "eprints2bags", "journal.db"), cfg.Journal.Path)
	assert.True(t, filepath.IsAbs(cfg.Output.Dir))
}

func TestLoadFromFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.toml")

	payload := map[string]any{
		"server": map[string]any{"api_url": "https://eprints.example.edu/rest/", "user": "archivist", "password": "s3cret"},
		"output": map[string]any{"dir": dir, "name_prefix": "caltechauthors", "archive": false},
		"fetch":  map[string]any{"delay_ms": 0, "missing_ok": true},
	}
	data, err := toml.Marshal(payload)
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(path, data, 0o600))

	cfg, resolved, exists, err := config.Load(path)
	require.NoError(t, err)
	assert.True(t, exists)
	assert.Equal(t, path, resolved)
	assert.Equal(t, "https://eprints.example.edu/rest", cfg.Server.APIURL, "trailing slash trimmed")
	assert.Equal(t, "archivist", cfg.Server.User)
	assert.Equal(t, "caltechauthors-", cfg.RecordPrefix())
	assert.False(t, cfg.Output.Archive)
	assert.True(t, cfg.Output.Bags, "unset keys keep defaults")
	assert.True(t, cfg.Fetch.MissingOK)
	assert.Equal(t, time.Duration(0), cfg.Delay())
}

func TestLoadRejectsUnknownKeys(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.toml")
	require.NoError(t, os.WriteFile(path, []byte("[fetch]\nworkers = 4\n"), 0o600))

	_, _, _, err := config.Load(path)
	require.Error(t, err)
}

func TestEnvironmentCredentials(t *testing.T) {
	t.Setenv("EPRINTS_USER", "envuser")
	t.Setenv("EPRINTS_PASSWORD", "envpass")

	cfg := config.Default()
	require.NoError(t, cfg.Normalize())
	assert.Equal(t, "envuser", cfg.Server.User)
	assert.Equal(t, "envpass", cfg.Server.Password)
}

func TestValidateServerURL(t *testing.T) {
	cases := []struct {
		name    string
		url     string
		wantErr error
	}{
		{name: "empty allowed", url: ""},
		{name: "https", url: "https://eprints.example.edu/rest"},
		{name: "not http", url: "ftp://eprints.example.edu/rest", wantErr: services.ErrBadURL},
		{name: "no scheme", url: "eprints.example.edu/rest", wantErr: services.ErrBadURL},
		{name: "embedded credentials", url: "https://u:p@eprints.example.edu/rest", wantErr: services.ErrBadURL},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			cfg := config.Default()
			cfg.Server.APIURL = tc.url
			require.NoError(t, cfg.Normalize())
			err := cfg.Validate()
			if tc.wantErr == nil {
				require.NoError(t, err)
				return
			}
			require.ErrorIs(t, err, tc.wantErr)
		})
	}
}

func TestRequireServer(t *testing.T) {
	cfg := config.Default()
	require.ErrorIs(t, cfg.RequireServer(), services.ErrConfiguration)

	cfg.Server.APIURL = "https://eprints.example.edu/rest"
	require.NoError(t, cfg.RequireServer())
}

func TestValidateFetch(t *testing.T) {
	cfg := config.Default()
	cfg.Fetch.RetryAttempts = 0
	require.Error(t, cfg.Validate())

	cfg = config.Default()
	cfg.Fetch.DelayMS = -1
	require.Error(t, cfg.Validate())
}

func TestCreateSampleLoads(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "config.toml")
	require.NoError(t, config.CreateSample(path))

	cfg, _, exists, err := config.Load(path)
	require.NoError(t, err)
	assert.True(t, exists)
	assert.Equal(t, 5, cfg.Fetch.RetryAttempts)
}

func TestEnsureDirectories(t *testing.T) {
	base := t.TempDir()
	cfg := config.Default()
	cfg.Output.Dir = filepath.Join(base, "out")
	cfg.Journal.Path = filepath.Join(base, "state", "journal.db")
	cfg.Logging.Dir = filepath.Join(base, "logs")

	require.NoError(t, cfg.EnsureDirectories())
	for _, dir := range []string{cfg.Output.Dir, filepath.Join(base, "state"), cfg.Logging.Dir} {
		info, err := os.Stat(dir)
		require.NoError(t, err)
		assert.True(t, info.IsDir())
	}
}
