// Package main runs the tool execution core: the agent-facing surface
// that submits, dispatches, and resolves tool invocations.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"golang.org/x/sync/errgroup"

	"github.com/nugget/agentfabric/internal/agent"
	"github.com/nugget/agentfabric/internal/boot"
	"github.com/nugget/agentfabric/internal/buildinfo"
	"github.com/nugget/agentfabric/internal/config"
	"github.com/nugget/agentfabric/internal/connwatch"
	"github.com/nugget/agentfabric/internal/toolcore"
)

// pythonSandboxSchema is the parameter schema for the one sandbox tool
// every deployment registers: a script body to run out-of-process.
const pythonSandboxSchema = `{
	"type": "object",
	"properties": {"script": {"type": "string"}},
	"required": ["script"]
}`

func main() {
	configPath := flag.String("config", "", "path to config file")
	flag.Parse()

	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))
	logger.Info("starting toolcore", "version", buildinfo.Version, "commit", buildinfo.GitCommit)

	cfg, err := loadConfig(*configPath, logger)
	if err != nil {
		logger.Error("config", "error", err)
		os.Exit(1)
	}
	if cfg.LogLevel != "" {
		level, err := config.ParseLogLevel(cfg.LogLevel)
		if err != nil {
			logger.Error("invalid log_level in config", "error", err)
			os.Exit(1)
		}
		logger = slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{
			Level:       level,
			ReplaceAttr: config.ReplaceLogLevelNames,
		}))
	}

	dataDir := cfg.DataDir
	if dataDir == "" {
		dataDir = "./data"
	}
	if err := os.MkdirAll(dataDir, 0o755); err != nil {
		logger.Error("failed to create data directory", "path", dataDir, "error", err)
		os.Exit(1)
	}

	registry := toolcore.NewRegistry()
	if err := toolcore.RegisterDefaultLocalTools(registry, dataDir); err != nil {
		logger.Error("failed to register local tools", "error", err)
		os.Exit(1)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigCh
		logger.Info("shutdown signal received")
		cancel()
	}()

	watchers := connwatch.NewManager(logger)
	defer watchers.Stop()

	var sandbox *toolcore.SandboxClient
	if cfg.Sandbox.APIURL != "" {
		sandbox = toolcore.NewSandboxClient(cfg.Sandbox.APIURL)
		if err := registry.RegisterSandbox("python_sandbox", json.RawMessage(pythonSandboxSchema)); err != nil {
			logger.Error("failed to register sandbox tool", "error", err)
			os.Exit(1)
		}
		watchers.Watch(ctx, connwatch.WatcherConfig{
			Name:    "sandbox",
			Probe:   sandbox.Ping,
			Backoff: connwatch.DefaultBackoffConfig(),
			Logger:  logger,
			OnDown: func(err error) {
				logger.Warn("sandbox service unreachable", "error", err)
			},
			OnReady: func() {
				logger.Info("sandbox service reachable")
			},
		})
	} else {
		logger.Warn("sandbox.api_url not configured, python_sandbox unavailable")
	}

	b := boot.NewBus(cfg.Bus, logger)
	defer b.Close()

	core := toolcore.New(registry, b, sandbox, logger)
	if cfg.Sandbox.PollInterval > 0 {
		core.PollInterval = cfg.Sandbox.PollInterval
	}

	handler := toolcore.Handler{Core: core}
	rt := agent.NewRuntime(toolcore.Name, b, handler, logger)
	rt.HeartbeatInterval = cfg.Bus.HeartbeatInterval
	rt.HeartbeatTTL = cfg.Bus.HeartbeatTTL

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return rt.Start(gctx) })
	g.Go(func() error {
		core.RunSandboxPollLoop(gctx)
		return nil
	})

	if err := g.Wait(); err != nil {
		logger.Error("toolcore stopped with error", "error", err)
	}
	logger.Info("toolcore stopped")
}

func loadConfig(explicit string, logger *slog.Logger) (*config.Config, error) {
	path, err := config.FindConfig(explicit)
	if err != nil {
		logger.Warn("no config file found, using defaults", "error", err)
		return config.Default(), nil
	}
	return config.Load(path)
}
