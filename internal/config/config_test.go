package config_test

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Raikerian/meetingmind-streamer/internal/config"
)

func writeConfig(t *testing.T, body string) config.Path {
	t.Helper()

	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))

	return config.Path(path)
}

func TestLoadConfig_MissingFileUsesDefaults(t *testing.T) {
	cfg, err := config.LoadConfig(config.Path(filepath.Join(t.TempDir(), "absent.yaml")))
	require.NoError(t, err)

	assert.Equal(t, config.Default(), cfg)
	assert.Equal(t, "/api/v1", cfg.Server.APIPrefix)
	assert.Equal(t, "/api/v1/ws", cfg.Server.StreamPath)
	assert.Equal(t, 3200, cfg.Session.UploadChunkBytes)
	assert.Equal(t, 100*time.Millisecond, cfg.Session.UploadInterval)
}

func TestLoadConfig_FileOverridesDefaults(t *testing.T) {
	path := writeConfig(t, `
server:
  base_url: https://meetings.example.com
  request_timeout: 3s
  write_timeout: 250ms
audio:
  gain: 2.5
  echo_cancellation: false
session:
  participants: [alice, bob]
  upload_interval: 50ms
log_level: debug
`)

	cfg, err := config.LoadConfig(path)
	require.NoError(t, err)

	assert.Equal(t, "https://meetings.example.com", cfg.Server.BaseURL)
	assert.Equal(t, 3*time.Second, cfg.Server.RequestTimeout)
	assert.Equal(t, 250*time.Millisecond, cfg.Server.WriteTimeout)
	assert.Equal(t, "/api/v1", cfg.Server.APIPrefix, "absent keys keep defaults")
	assert.Equal(t, 2.5, cfg.Audio.Gain)
	assert.False(t, cfg.Audio.EchoCancellation)
	assert.True(t, cfg.Audio.NoiseSuppression)
	assert.Equal(t, []string{"alice", "bob"}, cfg.Session.Participants)
	assert.Equal(t, 50*time.Millisecond, cfg.Session.UploadInterval)
	assert.Equal(t, "debug", cfg.LogLevel)
}

func TestLoadConfig_EnvironmentOverrides(t *testing.T) {
	t.Setenv(config.EnvAPIPrefix, "/api/v2")
	t.Setenv(config.EnvStreamPath, "/stream")
	t.Setenv(config.EnvLogLevel, "warn")
	t.Setenv(config.EnvBaseURL, "  ")

	cfg, err := config.LoadConfig(writeConfig(t, "log_level: error\n"))
	require.NoError(t, err)

	assert.Equal(t, "/api/v2", cfg.Server.APIPrefix)
	assert.Equal(t, "/stream", cfg.Server.StreamPath)
	assert.Equal(t, "warn", cfg.LogLevel)
	assert.Equal(t, config.DefaultBaseURL, cfg.Server.BaseURL, "blank values are ignored")
}

func TestLoadConfig_Invalid(t *testing.T) {
	tests := map[string]string{
		"malformed_yaml":  "server: [",
		"bad_scheme":      "server:\n  base_url: ftp://host\n",
		"relative_prefix": "server:\n  api_prefix: api\n",
		"odd_chunk":       "session:\n  upload_chunk_bytes: 3201\n",
		"zero_gain":       "audio:\n  gain: 0\n",
		"zero_interval":   "session:\n  upload_interval: 0s\n",
		"zero_write":      "server:\n  write_timeout: 0s\n",
	}

	for name, body := range tests {
		t.Run(name, func(t *testing.T) {
			_, err := config.LoadConfig(writeConfig(t, body))
			assert.Error(t, err)
		})
	}
}

func TestServerConfig_URLs(t *testing.T) {
	tests := map[string]struct {
		server  config.ServerConfig
		wantAPI string
		wantWS  string
	}{
		"defaults": {
			server:  config.Default().Server,
			wantAPI: "http://localhost:9528/api/v1/meetings/m-1/stop",
			wantWS:  "ws://localhost:9528/api/v1/ws",
		},
		"tls": {
			server:  config.ServerConfig{BaseURL: "https://example.com/", APIPrefix: "/api/v1", StreamPath: "/api/v1/ws"},
			wantAPI: "https://example.com/api/v1/meetings/m-1/stop",
			wantWS:  "wss://example.com/api/v1/ws",
		},
		"absolute_stream_url": {
			server:  config.ServerConfig{BaseURL: "http://a", APIPrefix: "/p", StreamPath: "wss://b/ws"},
			wantAPI: "http://a/p/meetings/m-1/stop",
			wantWS:  "wss://b/ws",
		},
	}

	for name, tt := range tests {
		t.Run(name, func(t *testing.T) {
			api, err := tt.server.APIURL("meetings", "m-1", "stop")
			require.NoError(t, err)
			assert.Equal(t, tt.wantAPI, api)

			ws, err := tt.server.StreamURL()
			require.NoError(t, err)
			assert.Equal(t, tt.wantWS, ws)
		})
	}
}
