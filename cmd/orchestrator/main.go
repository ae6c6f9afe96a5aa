// Package main runs the orchestrator: the sole authority over task
// transitions and the debate workflow.
package main

import (
	"context"
	"flag"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/nugget/agentfabric/internal/agent"
	"github.com/nugget/agentfabric/internal/boot"
	"github.com/nugget/agentfabric/internal/buildinfo"
	"github.com/nugget/agentfabric/internal/config"
	"github.com/nugget/agentfabric/internal/effort"
	"github.com/nugget/agentfabric/internal/orchestrator"
	"github.com/nugget/agentfabric/internal/router"
)

const orchestratorName = "orchestrator"

func main() {
	configPath := flag.String("config", "", "path to config file")
	flag.Parse()

	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))
	logger.Info("starting orchestrator", "version", buildinfo.Version, "commit", buildinfo.GitCommit)

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

	b := boot.NewBus(cfg.Bus, logger)
	defer b.Close()

	routerCfg := router.DefaultConfig()
	if cfg.Router.LearningRate > 0 {
		routerCfg.LearningRate = cfg.Router.LearningRate
	}
	if cfg.Router.MaxAuditLog > 0 {
		routerCfg.MaxAuditLog = cfg.Router.MaxAuditLog
	}
	r := router.NewRouter(logger, routerCfg)

	estimator := effort.New()

	orchCfg := orchestrator.DefaultConfig()
	if cfg.Orchestrator.MaxDebateRounds > 0 {
		orchCfg.MaxRounds = cfg.Orchestrator.MaxDebateRounds
	}
	if cfg.Orchestrator.MinDebateRounds > 0 {
		orchCfg.MinRounds = cfg.Orchestrator.MinDebateRounds
	}

	orch := orchestrator.New(orchestratorName, b, r, estimator, logger, orchCfg)
	rt := agent.NewRuntime(orchestratorName, b, orch, logger)
	rt.HeartbeatInterval = cfg.Bus.HeartbeatInterval
	rt.HeartbeatTTL = cfg.Bus.HeartbeatTTL

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigCh
		logger.Info("shutdown signal received")
		cancel()
	}()

	if err := rt.Start(ctx); err != nil {
		logger.Error("orchestrator stopped with error", "error", err)
	}
	logger.Info("orchestrator stopped")
}

func loadConfig(explicit string, logger *slog.Logger) (*config.Config, error) {
	path, err := config.FindConfig(explicit)
	if err != nil {
		logger.Warn("no config file found, using defaults", "error", err)
		return config.Default(), nil
	}
	return config.Load(path)
}
