// Package main implements the entry point for ppwatch, a bot that
// watches the podping firehose for podcast feed updates and relays
// them to subscribed chat channels.
package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"runtime"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/ericpp/ppwatch/bot"
	"github.com/ericpp/ppwatch/component"
	"github.com/ericpp/ppwatch/config"
	"github.com/ericpp/ppwatch/feed"
	"github.com/ericpp/ppwatch/health"
	"github.com/ericpp/ppwatch/messenger"
	"github.com/ericpp/ppwatch/metric"
	"github.com/ericpp/ppwatch/podcastindex"
	"github.com/ericpp/ppwatch/podping"
	"github.com/ericpp/ppwatch/subscription"
	"github.com/ericpp/ppwatch/watcher"
)

// Build information constants
const (
	Version   = "0.1.0"
	BuildTime = "dev"
	appName   = "ppwatch"
)

func main() {
	defer func() {
		if r := recover(); r != nil {
			buf := make([]byte, 4096)
			n := runtime.Stack(buf, false)
			_, _ = fmt.Fprintf(os.Stderr, "PANIC: %v\nStack trace:\n%s\n", r, string(buf[:n]))
			os.Exit(2)
		}
	}()

	if err := run(); err != nil {
		slog.Error("Application failed", "error", err, "exit_code", 1)
		os.Exit(1)
	}
}

func run() error {
	cliCfg := parseFlags()
	if err := validateFlags(cliCfg); err != nil {
		return fmt.Errorf("invalid flags: %w", err)
	}

	if cliCfg.ShowVersion {
		fmt.Printf("%s version %s\n", appName, Version)
		return nil
	}
	if cliCfg.ShowHelp {
		printDetailedHelp()
		return nil
	}

	cfg, err := loadConfig(cliCfg.ConfigPath)
	if err != nil {
		return err
	}

	// Flags win over the config file for logging
	level := cfg.Logging.Level
	if cliCfg.LogLevel != "" {
		level = cliCfg.LogLevel
	}
	format := cfg.Logging.Format
	if cliCfg.LogFormat != "" {
		format = cliCfg.LogFormat
	}
	logger := setupLogger(level, format)
	slog.SetDefault(logger)

	if cliCfg.Validate {
		slog.Info("Configuration is valid", "config_path", cliCfg.ConfigPath)
		return nil
	}

	slog.Info("Starting ppwatch",
		"version", Version,
		"build_time", BuildTime,
		"config_path", cliCfg.ConfigPath,
		"watcher", cfg.Watcher.Kind,
		"dry_run", cfg.PodpingWriter.DryRun,
	)

	metrics := metric.NewRegistry()
	monitor := health.NewMonitor()

	console := messenger.NewConsole(cfg.Transport.Nick, os.Stdin, logger)

	b, err := buildBot(cfg, console, metrics, logger)
	if err != nil {
		return err
	}

	source, err := buildWatcher(cfg, metrics, logger)
	if err != nil {
		return err
	}
	source.SetHandler(b.HandlePodping)

	monitor.Register(b)
	monitor.Register(source)

	// Start order matters: the bot's event queue must be accepting
	// before the watcher connects to the firehose.
	manager := component.NewManager(logger)
	manager.Register(b)
	manager.Register(source)

	return runWithSignalHandling(cfg, manager, console, metrics, monitor, cliCfg.ShutdownTimeout)
}

// loadConfig loads the config file, or the built-in defaults when no
// path is given (secrets still arrive via PPWATCH_* variables).
func loadConfig(path string) (config.Config, error) {
	if path == "" {
		cfg := config.Default()
		if err := cfg.Validate(); err != nil {
			return cfg, err
		}
		return cfg, nil
	}
	cfg, err := config.Load(path)
	if err != nil {
		return cfg, fmt.Errorf("load config: %w", err)
	}
	return cfg, nil
}

// buildBot assembles the bot with whatever collaborators the config
// enables. Missing Podcast Index credentials or podping sink degrade
// the features that need them instead of failing startup.
func buildBot(cfg config.Config, transport messenger.Messenger, metrics *metric.Registry, logger *slog.Logger) (*bot.Bot, error) {
	var lookup bot.MetadataLookup
	if cfg.PodcastIndex.Configured() {
		client, err := podcastindex.NewClient(podcastindex.Config{
			Key:       cfg.PodcastIndex.Key,
			Secret:    cfg.PodcastIndex.Secret,
			BaseURL:   cfg.PodcastIndex.BaseURL,
			UserAgent: cfg.PodcastIndex.UserAgent,
			Timeout:   cfg.Behavior.APITimeout.Std(),
		}, logger)
		if err != nil {
			return nil, fmt.Errorf("create podcast index client: %w", err)
		}
		lookup = client
	} else {
		slog.Warn("Podcast Index credentials not configured, feed lookups disabled")
	}

	var writer podping.Writer
	if cfg.PodpingWriter.Configured() {
		w, err := podping.NewHTTPWriter(podping.HTTPWriterConfig{
			Endpoint:    cfg.PodpingWriter.Endpoint,
			AuthToken:   cfg.PodpingWriter.AuthToken,
			HiveAccount: cfg.PodpingWriter.HiveAccount,
			HiveAPIURL:  cfg.PodpingWriter.HiveAPIURL,
			DryRun:      cfg.PodpingWriter.DryRun,
		}, logger)
		if err != nil {
			return nil, fmt.Errorf("create podping writer: %w", err)
		}
		writer = w
	} else {
		slog.Warn("Podping writer not configured, pp command disabled")
	}

	return bot.New("bot",
		bot.Options{
			CommandName:               cfg.Behavior.CommandName,
			AllowRuntimeSubscriptions: cfg.Behavior.AllowRuntimeSubscriptions,
			AuthorizedUsers:           cfg.Behavior.AuthorizedUsers,
			MessageDelay:              cfg.Behavior.MessageDelay.Std(),
			APITimeout:                cfg.Behavior.APITimeout.Std(),
			CommandTimeout:            cfg.Behavior.CommandTimeout.Std(),
		},
		bot.Dependencies{
			Messenger: transport,
			Registry:  subscription.NewFromMap(cfg.ChannelSubscriptions),
			Lookup:    lookup,
			Writer:    writer,
			Verifier:  feed.NewChecker(cfg.Behavior.APITimeout.Std(), logger),
		},
		metrics, logger)
}

// buildWatcher creates the configured podping event source
func buildWatcher(cfg config.Config, metrics *metric.Registry, logger *slog.Logger) (watcher.Source, error) {
	switch cfg.Watcher.Kind {
	case config.WatcherNATS:
		return watcher.NewNATSSource("watcher", watcher.NATSConfig{
			URL:        cfg.Watcher.NATSURL,
			Subject:    cfg.Watcher.NATSSubject,
			ClientName: appName,
		}, metrics, logger)
	default:
		return watcher.NewWebSocketSource("watcher", watcher.WebSocketConfig{
			URL:          cfg.Watcher.URL,
			PingInterval: cfg.Watcher.PingInterval.Std(),
		}, metrics, logger)
	}
}

// runWithSignalHandling starts everything and blocks until a shutdown
// signal or a fatal transport error.
func runWithSignalHandling(
	cfg config.Config,
	manager *component.Manager,
	console *messenger.Console,
	metrics *metric.Registry,
	monitor *health.Monitor,
	shutdownTimeout time.Duration,
) error {
	signalCtx, signalCancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer signalCancel()

	if err := manager.StartAll(signalCtx); err != nil {
		return fmt.Errorf("start components: %w", err)
	}

	srv := &http.Server{
		Addr:              cfg.Monitoring.ListenAddr,
		Handler:           monitoringMux(metrics, monitor),
		ReadHeaderTimeout: 5 * time.Second,
	}

	g, gctx := errgroup.WithContext(signalCtx)

	g.Go(func() error {
		slog.Info("Monitoring listener started", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("monitoring listener: %w", err)
		}
		return nil
	})

	// The console reader blocks on stdin, which has no cancellable read;
	// it runs detached so shutdown never waits on it. EOF is not fatal,
	// the bot keeps relaying events.
	go func() {
		if err := console.Run(gctx); err != nil && !errors.Is(err, context.Canceled) {
			slog.Error("console transport stopped", "error", err)
		}
	}()

	slog.Info("ppwatch started")
	<-gctx.Done()
	slog.Info("Received shutdown signal")

	manager.StopAll(shutdownTimeout)

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer shutdownCancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		slog.Error("monitoring listener shutdown failed", "error", err)
	}

	if err := g.Wait(); err != nil {
		return err
	}
	slog.Info("ppwatch shutdown complete")
	return nil
}

// monitoringMux serves Prometheus metrics and aggregate health
func monitoringMux(metrics *metric.Registry, monitor *health.Monitor) http.Handler {
	mux := http.NewServeMux()
	mux.Handle("/metrics", metrics.Handler())
	mux.Handle("/healthz", monitor.Handler())
	return mux
}
