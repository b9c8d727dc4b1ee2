// Package config loads and validates ppwatch configuration from JSON or
// YAML files, with defaults applied first and PPWATCH_* environment
// variables applied last. The loaded Config is immutable; runtime state
// such as the live subscription registry is seeded from it, never
// written back.
package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	pperrors "github.com/ericpp/ppwatch/errors"
)

// Watcher kinds
const (
	WatcherWebSocket = "websocket"
	WatcherNATS      = "nats"
)

// Config is the full ppwatch configuration
type Config struct {
	Logging              Logging             `json:"logging" yaml:"logging"`
	Transport            Transport           `json:"transport" yaml:"transport"`
	PodcastIndex         PodcastIndex        `json:"podcast_index" yaml:"podcast_index"`
	PodpingWriter        PodpingWriter       `json:"podping_writer" yaml:"podping_writer"`
	Watcher              Watcher             `json:"watcher" yaml:"watcher"`
	ChannelSubscriptions map[string][]string `json:"channel_subscriptions" yaml:"channel_subscriptions"`
	Behavior             Behavior            `json:"behavior" yaml:"behavior"`
	Monitoring           Monitoring          `json:"monitoring" yaml:"monitoring"`
}

// Logging controls slog setup
type Logging struct {
	Level  string `json:"level" yaml:"level"`   // debug, info, warn, error
	Format string `json:"format" yaml:"format"` // text, json
}

// Transport selects the chat transport. The console transport is the
// only one built in; other transports plug in behind the Messenger
// interface.
type Transport struct {
	Kind string `json:"kind" yaml:"kind"`
	Nick string `json:"nick" yaml:"nick"`
}

// PodcastIndex holds Podcast Index API credentials
type PodcastIndex struct {
	Key       string `json:"key" yaml:"key"`
	Secret    string `json:"secret" yaml:"secret"`
	BaseURL   string `json:"base_url" yaml:"base_url"`
	UserAgent string `json:"user_agent" yaml:"user_agent"`
}

// Configured reports whether credentials are present
func (p PodcastIndex) Configured() bool {
	return p.Key != "" && p.Secret != ""
}

// PodpingWriter holds event-sink settings
type PodpingWriter struct {
	Endpoint    string `json:"endpoint" yaml:"endpoint"`
	AuthToken   string `json:"auth_token" yaml:"auth_token"`
	HiveAccount string `json:"hive_account" yaml:"hive_account"`
	HiveAPIURL  string `json:"hive_api_url" yaml:"hive_api_url"`
	DryRun      bool   `json:"dry_run" yaml:"dry_run"`
}

// Configured reports whether the writer can be constructed
func (p PodpingWriter) Configured() bool {
	return p.Endpoint != "" || p.DryRun
}

// Watcher selects and configures the podping event source
type Watcher struct {
	Kind string `json:"kind" yaml:"kind"` // websocket, nats

	// websocket
	URL          string   `json:"url" yaml:"url"`
	PingInterval Duration `json:"ping_interval" yaml:"ping_interval"`

	// nats
	NATSURL     string `json:"nats_url" yaml:"nats_url"`
	NATSSubject string `json:"nats_subject" yaml:"nats_subject"`
}

// Behavior holds the bot's command-surface settings
type Behavior struct {
	CommandName               string   `json:"command_name" yaml:"command_name"`
	AllowRuntimeSubscriptions bool     `json:"allow_runtime_subscriptions" yaml:"allow_runtime_subscriptions"`
	AuthorizedUsers           []string `json:"authorized_users" yaml:"authorized_users"`
	MessageDelay              Duration `json:"message_delay" yaml:"message_delay"`
	APITimeout                Duration `json:"api_timeout" yaml:"api_timeout"`
	CommandTimeout            Duration `json:"command_timeout" yaml:"command_timeout"`
}

// Monitoring configures the metrics/health HTTP listener
type Monitoring struct {
	ListenAddr string `json:"listen_addr" yaml:"listen_addr"`
}

// Default returns the baseline configuration files override
func Default() Config {
	return Config{
		Logging: Logging{
			Level:  "info",
			Format: "text",
		},
		Transport: Transport{
			Kind: "console",
			Nick: "ppwatch",
		},
		PodpingWriter: PodpingWriter{
			HiveAPIURL: "https://api.hive.blog",
			DryRun:     true,
		},
		Watcher: Watcher{
			Kind:         WatcherWebSocket,
			URL:          "wss://api.livewire.io/ws/podping",
			PingInterval: Duration(30 * time.Second),
			NATSSubject:  "podping.events",
		},
		Behavior: Behavior{
			CommandName:    "ppwatch",
			MessageDelay:   Duration(time.Second),
			APITimeout:     Duration(10 * time.Second),
			CommandTimeout: Duration(30 * time.Second),
		},
		Monitoring: Monitoring{
			ListenAddr: ":2112",
		},
	}
}

// Load reads a config file (JSON or YAML by extension), applies
// defaults, environment overrides, and validates the result.
func Load(path string) (Config, error) {
	cfg := Default()

	data, err := os.ReadFile(path) // #nosec G304 -- operator-supplied path
	if err != nil {
		return cfg, pperrors.WrapInvalid(err, "config", "Load", "read config file")
	}

	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		err = yaml.Unmarshal(data, &cfg)
	default:
		err = json.Unmarshal(data, &cfg)
	}
	if err != nil {
		return cfg, pperrors.WrapInvalid(err, "config", "Load", "parse config file")
	}

	cfg.applyEnv()

	if err := cfg.Validate(); err != nil {
		return cfg, err
	}
	return cfg, nil
}

// envOverrides maps PPWATCH_* variables onto config fields. Secrets are
// the main use; operators keep them out of the config file.
func (c *Config) applyEnv() {
	overrides := []struct {
		key string
		set func(string)
	}{
		{"PPWATCH_LOG_LEVEL", func(v string) { c.Logging.Level = v }},
		{"PPWATCH_LOG_FORMAT", func(v string) { c.Logging.Format = v }},
		{"PPWATCH_PODCAST_INDEX_KEY", func(v string) { c.PodcastIndex.Key = v }},
		{"PPWATCH_PODCAST_INDEX_SECRET", func(v string) { c.PodcastIndex.Secret = v }},
		{"PPWATCH_PODPING_ENDPOINT", func(v string) { c.PodpingWriter.Endpoint = v }},
		{"PPWATCH_PODPING_AUTH_TOKEN", func(v string) { c.PodpingWriter.AuthToken = v }},
		{"PPWATCH_WATCHER_URL", func(v string) { c.Watcher.URL = v }},
		{"PPWATCH_NATS_URL", func(v string) { c.Watcher.NATSURL = v }},
		{"PPWATCH_MONITORING_ADDR", func(v string) { c.Monitoring.ListenAddr = v }},
		{"PPWATCH_DRY_RUN", func(v string) {
			if parsed, err := strconv.ParseBool(v); err == nil {
				c.PodpingWriter.DryRun = parsed
			}
		}},
	}

	for _, o := range overrides {
		if v := os.Getenv(o.key); v != "" {
			o.set(v)
		}
	}
}

// Validate checks the configuration for contradictions and missing
// required values.
func (c *Config) Validate() error {
	var problems []string

	switch c.Logging.Level {
	case "debug", "info", "warn", "error":
	default:
		problems = append(problems, fmt.Sprintf("logging.level %q must be debug, info, warn, or error", c.Logging.Level))
	}
	if c.Logging.Format != "text" && c.Logging.Format != "json" {
		problems = append(problems, fmt.Sprintf("logging.format %q must be text or json", c.Logging.Format))
	}

	if c.Transport.Kind != "console" {
		problems = append(problems, fmt.Sprintf("transport.kind %q is not built in", c.Transport.Kind))
	}

	switch c.Watcher.Kind {
	case WatcherWebSocket:
		if !strings.HasPrefix(c.Watcher.URL, "ws://") && !strings.HasPrefix(c.Watcher.URL, "wss://") {
			problems = append(problems, fmt.Sprintf("watcher.url %q must use ws or wss scheme", c.Watcher.URL))
		}
	case WatcherNATS:
		if c.Watcher.NATSURL == "" {
			problems = append(problems, "watcher.nats_url is required for the nats watcher")
		}
		if c.Watcher.NATSSubject == "" {
			problems = append(problems, "watcher.nats_subject is required for the nats watcher")
		}
	default:
		problems = append(problems, fmt.Sprintf("watcher.kind %q must be websocket or nats", c.Watcher.Kind))
	}

	if c.Behavior.CommandName == "" {
		problems = append(problems, "behavior.command_name cannot be empty")
	}
	if c.Behavior.MessageDelay < 0 {
		problems = append(problems, "behavior.message_delay cannot be negative")
	}
	if c.Behavior.APITimeout.Std() <= 0 {
		problems = append(problems, "behavior.api_timeout must be positive")
	}
	if c.Behavior.CommandTimeout.Std() <= 0 {
		problems = append(problems, "behavior.command_timeout must be positive")
	}

	if (c.PodcastIndex.Key == "") != (c.PodcastIndex.Secret == "") {
		problems = append(problems, "podcast_index.key and podcast_index.secret must be set together")
	}

	if !c.PodpingWriter.DryRun && c.PodpingWriter.Endpoint == "" {
		problems = append(problems, "podping_writer.endpoint is required unless dry_run is set")
	}

	if len(problems) > 0 {
		return pperrors.WrapInvalid(
			fmt.Errorf("%s", strings.Join(problems, "; ")),
			"config", "Validate", "check configuration")
	}
	return nil
}
