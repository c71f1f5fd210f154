package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const minimalYAML = `
catalog:
  path: config/catalog.yaml
`

func TestParse_Defaults(t *testing.T) {
	cfg, err := Parse([]byte(minimalYAML))
	require.NoError(t, err)

	assert.Equal(t, ":8080", cfg.Server.Addr)
	assert.Empty(t, cfg.Server.APIToken)
	assert.Empty(t, cfg.Server.AllowedOrigins)
	assert.Equal(t, "stdout", cfg.Log.Output)
	assert.Equal(t, "info", cfg.Log.Level)
	assert.Equal(t, 50*time.Millisecond, cfg.TickInterval())
	assert.Equal(t, 5*time.Second, cfg.DefaultPageDuration())
	assert.Equal(t, 300*time.Millisecond, cfg.ResortDelay())
	assert.False(t, cfg.Playback.UnmarkOnPrevious)
	assert.Equal(t, "storybox.events", cfg.Events.SubjectPrefix)
	assert.Empty(t, cfg.Events.NATSURL)
}

func TestParse_ExplicitValues(t *testing.T) {
	cfg, err := Parse([]byte(`
server:
  addr: 127.0.0.1:9000
  api_token: secret
  allowed_origins:
    - https://app.example.com
catalog:
  path: stories.yaml
playback:
  tick_interval_ms: 100
  default_page_duration_ms: 7000
  unmark_on_previous: true
carousel:
  resort_delay_ms: 0
events:
  nats_url: nats://localhost:4222
  subject_prefix: app.stories
`))
	require.NoError(t, err)

	assert.Equal(t, "127.0.0.1:9000", cfg.Server.Addr)
	assert.Equal(t, "secret", cfg.Server.APIToken)
	assert.Equal(t, []string{"https://app.example.com"}, cfg.Server.AllowedOrigins)
	assert.Equal(t, 100*time.Millisecond, cfg.TickInterval())
	assert.Equal(t, 7*time.Second, cfg.DefaultPageDuration())
	assert.True(t, cfg.Playback.UnmarkOnPrevious)
	assert.Equal(t, time.Duration(0), cfg.ResortDelay(), "explicit zero is kept")
	assert.Equal(t, "nats://localhost:4222", cfg.Events.NATSURL)
	assert.Equal(t, "app.stories", cfg.Events.SubjectPrefix)
}

func TestParse_Validation(t *testing.T) {
	tests := []struct {
		name   string
		yaml   string
		errMsg string
	}{
		{
			name:   "missing catalog path",
			yaml:   `server: {addr: ":8080"}`,
			errMsg: "Path",
		},
		{
			name:   "tick interval too small",
			yaml:   minimalYAML + "playback:\n  tick_interval_ms: 1\n",
			errMsg: "TickIntervalMs",
		},
		{
			name:   "negative resort delay",
			yaml:   minimalYAML + "carousel:\n  resort_delay_ms: -5\n",
			errMsg: "ResortDelayMs",
		},
		{
			name:   "bad log level",
			yaml:   minimalYAML + "log:\n  level: verbose\n",
			errMsg: "Level",
		},
		{
			name:   "file output without file",
			yaml:   minimalYAML + "log:\n  output: file\n",
			errMsg: "File",
		},
		{
			name:   "malformed nats url",
			yaml:   minimalYAML + "events:\n  nats_url: not a url\n",
			errMsg: "NATSURL",
		},
		{
			name:   "broken yaml",
			yaml:   "catalog: [",
			errMsg: "failed to parse config file",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Parse([]byte(tt.yaml))
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.errMsg)
		})
	}
}

func TestLoad_EnvOverrides(t *testing.T) {
	t.Setenv(EnvAddr, ":7070")
	t.Setenv(EnvAPIToken, "from-env")
	t.Setenv(EnvNATSURL, "nats://bus:4222")
	t.Setenv(EnvCatalog, "/srv/catalog.yaml")

	path := filepath.Join(t.TempDir(), "server.yaml")
	require.NoError(t, os.WriteFile(path, []byte("server:\n  addr: \":8080\"\n"), 0o600))

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, ":7070", cfg.Server.Addr)
	assert.Equal(t, "from-env", cfg.Server.APIToken)
	assert.Equal(t, "nats://bus:4222", cfg.Events.NATSURL)
	assert.Equal(t, "/srv/catalog.yaml", cfg.Catalog.Path)
}

func TestLoad_MissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))

	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to read config file")
}
