package config

import (
	"encoding/json"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"
)

func TestDefaultIsValid(t *testing.T) {
	cfg := Default()
	assert.NoError(t, cfg.Validate())
	assert.True(t, cfg.PodpingWriter.DryRun, "default config must not publish")
}

func TestLoad_JSON(t *testing.T) {
	cfg, err := Load(filepath.Join("testdata", "full.json"))
	require.NoError(t, err)

	assert.Equal(t, "debug", cfg.Logging.Level)
	assert.Equal(t, "json", cfg.Logging.Format)
	assert.Equal(t, "ppbot", cfg.Transport.Nick)
	assert.Equal(t, "pi-key", cfg.PodcastIndex.Key)
	assert.True(t, cfg.PodcastIndex.Configured())
	assert.Equal(t, "https://podping.example/publish", cfg.PodpingWriter.Endpoint)
	assert.False(t, cfg.PodpingWriter.DryRun)
	assert.Equal(t, WatcherWebSocket, cfg.Watcher.Kind)
	assert.Equal(t, 45*time.Second, cfg.Watcher.PingInterval.Std())
	assert.Equal(t, []string{"alice", "bob"}, cfg.Behavior.AuthorizedUsers)
	assert.Equal(t, 2*time.Second, cfg.Behavior.MessageDelay.Std())
	assert.Equal(t, 5*time.Second, cfg.Behavior.APITimeout.Std(), "numeric durations are seconds")
	assert.Equal(t, time.Minute, cfg.Behavior.CommandTimeout.Std())
	assert.Len(t, cfg.ChannelSubscriptions["#podcasts"], 2)
	assert.Equal(t, ":9100", cfg.Monitoring.ListenAddr)
}

func TestLoad_YAML(t *testing.T) {
	cfg, err := Load(filepath.Join("testdata", "full.yaml"))
	require.NoError(t, err)

	assert.Equal(t, "warn", cfg.Logging.Level)
	assert.Equal(t, WatcherNATS, cfg.Watcher.Kind)
	assert.Equal(t, "nats://localhost:4222", cfg.Watcher.NATSURL)
	assert.Equal(t, "pw", cfg.Behavior.CommandName)
	assert.Equal(t, 500*time.Millisecond, cfg.Behavior.MessageDelay.Std())

	// Defaults survive for sections the file omits
	assert.True(t, cfg.PodpingWriter.DryRun)
	assert.Equal(t, "https://api.hive.blog", cfg.PodpingWriter.HiveAPIURL)
}

func TestLoad_MissingFile(t *testing.T) {
	_, err := Load(filepath.Join("testdata", "does-not-exist.json"))
	assert.Error(t, err)
}

func TestLoad_EnvOverrides(t *testing.T) {
	t.Setenv("PPWATCH_PODCAST_INDEX_KEY", "env-key")
	t.Setenv("PPWATCH_PODCAST_INDEX_SECRET", "env-secret")
	t.Setenv("PPWATCH_WATCHER_URL", "wss://override.example/ws")
	t.Setenv("PPWATCH_LOG_LEVEL", "error")

	cfg, err := Load(filepath.Join("testdata", "full.yaml"))
	require.NoError(t, err)

	assert.Equal(t, "env-key", cfg.PodcastIndex.Key)
	assert.Equal(t, "env-secret", cfg.PodcastIndex.Secret)
	assert.Equal(t, "wss://override.example/ws", cfg.Watcher.URL)
	assert.Equal(t, "error", cfg.Logging.Level)
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{
			"bad log level",
			func(c *Config) { c.Logging.Level = "verbose" },
			"logging.level",
		},
		{
			"bad transport kind",
			func(c *Config) { c.Transport.Kind = "irc" },
			"transport.kind",
		},
		{
			"bad watcher kind",
			func(c *Config) { c.Watcher.Kind = "zmq" },
			"watcher.kind",
		},
		{
			"websocket watcher needs ws url",
			func(c *Config) { c.Watcher.URL = "https://example.com" },
			"watcher.url",
		},
		{
			"nats watcher needs url",
			func(c *Config) { c.Watcher.Kind = WatcherNATS },
			"watcher.nats_url",
		},
		{
			"empty command name",
			func(c *Config) { c.Behavior.CommandName = "" },
			"command_name",
		},
		{
			"key without secret",
			func(c *Config) { c.PodcastIndex.Key = "only-key" },
			"must be set together",
		},
		{
			"publishing needs endpoint",
			func(c *Config) { c.PodpingWriter.DryRun = false },
			"podping_writer.endpoint",
		},
		{
			"zero api timeout",
			func(c *Config) { c.Behavior.APITimeout = 0 },
			"api_timeout",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(&cfg)
			err := cfg.Validate()
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestDuration_JSON(t *testing.T) {
	var d Duration

	require.NoError(t, json.Unmarshal([]byte(`"1.5s"`), &d))
	assert.Equal(t, 1500*time.Millisecond, d.Std())

	require.NoError(t, json.Unmarshal([]byte(`2`), &d))
	assert.Equal(t, 2*time.Second, d.Std())

	assert.Error(t, json.Unmarshal([]byte(`"soon"`), &d))
	assert.Error(t, json.Unmarshal([]byte(`true`), &d))

	out, err := json.Marshal(Duration(time.Minute))
	require.NoError(t, err)
	assert.Equal(t, `"1m0s"`, string(out))
}

func TestDuration_YAML(t *testing.T) {
	var holder struct {
		D Duration `yaml:"d"`
	}

	require.NoError(t, yaml.Unmarshal([]byte("d: 250ms"), &holder))
	assert.Equal(t, 250*time.Millisecond, holder.D.Std())

	require.NoError(t, yaml.Unmarshal([]byte("d: 3"), &holder))
	assert.Equal(t, 3*time.Second, holder.D.Std())

	require.NoError(t, yaml.Unmarshal([]byte("d: 0.25"), &holder))
	assert.Equal(t, 250*time.Millisecond, holder.D.Std())
}
