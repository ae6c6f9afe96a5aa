// Package coordinator aggregates per-agent heartbeats into one
// system-wide readiness signal, published on the frontend channel so
// clients don't have to poll every agent's heartbeat key themselves.
package coordinator

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"github.com/nugget/agentfabric/internal/agent"
	"github.com/nugget/agentfabric/internal/bus"
	"github.com/nugget/agentfabric/internal/envelope"
)

// SystemStatusKey is the keyed bus state the coordinator refreshes every
// Check tick, with a TTL long enough to survive one missed tick.
const SystemStatusKey = "system_status"

// SystemStatusTTL is how long SystemStatusKey lives without a refresh
// before a reader must treat it as stale.
const SystemStatusTTL = 30 * time.Second

// DefaultCheckInterval is how often the coordinator re-aggregates
// heartbeats.
const DefaultCheckInterval = 5 * time.Second

// DefaultReadyTimeout bounds how long Run's initial wait blocks for
// every required agent to report in before giving up and starting the
// aggregation loop anyway.
const DefaultReadyTimeout = 60 * time.Second

// SystemStatus is the aggregate written to SystemStatusKey and broadcast
// as a system_status_update: per-agent alive/offline, overall readiness,
// and the names still missing.
type SystemStatus struct {
	Agents      map[string]string `json:"agent"`
	SystemReady bool              `json:"system_ready"`
	Missing     []string          `json:"missing,omitempty"`
	CheckedAt   time.Time         `json:"checked_at"`
}

// Config controls which agents are tracked and how often.
type Config struct {
	// RequiredAgents lists every agent name whose heartbeat must be
	// present for the system to be considered ready.
	RequiredAgents []string
	CheckInterval  time.Duration
	ReadyTimeout   time.Duration
}

// Coordinator runs the heartbeat-aggregation loop described for the
// platform's own health surface: one activity, ticker-driven, reading
// every required agent's "<agent>_heartbeat" key and republishing the
// combined result.
type Coordinator struct {
	Bus    bus.Bus
	Logger *slog.Logger
	Config Config
}

// New constructs a Coordinator. Zero-value CheckInterval/ReadyTimeout
// fall back to the package defaults.
func New(b bus.Bus, logger *slog.Logger, cfg Config) *Coordinator {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.CheckInterval <= 0 {
		cfg.CheckInterval = DefaultCheckInterval
	}
	if cfg.ReadyTimeout <= 0 {
		cfg.ReadyTimeout = DefaultReadyTimeout
	}
	return &Coordinator{Bus: b, Logger: logger, Config: cfg}
}

// Run blocks until ctx is cancelled. It first waits (up to
// Config.ReadyTimeout) for every required agent to report a heartbeat,
// logging whichever are still missing once the wait gives up, then
// starts the steady-state aggregation loop.
func (c *Coordinator) Run(ctx context.Context) {
	c.awaitReady(ctx)

	ticker := time.NewTicker(c.Config.CheckInterval)
	defer ticker.Stop()

	c.check(ctx)
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			c.check(ctx)
		}
	}
}

// awaitReady polls every required agent's heartbeat key at a tenth of
// CheckInterval until all are present or ReadyTimeout elapses.
func (c *Coordinator) awaitReady(ctx context.Context) {
	deadline := time.Now().Add(c.Config.ReadyTimeout)
	pollInterval := c.Config.CheckInterval / 10
	if pollInterval <= 0 {
		pollInterval = 500 * time.Millisecond
	}

	for {
		status := c.gather(ctx)
		if status.SystemReady {
			c.Logger.Info("all required agents reported in", "agents", c.Config.RequiredAgents)
			return
		}
		if time.Now().After(deadline) {
			c.Logger.Warn("ready_timeout elapsed with agents still missing", "missing", status.Missing)
			return
		}
		select {
		case <-ctx.Done():
			return
		case <-time.After(pollInterval):
		}
	}
}

func (c *Coordinator) check(ctx context.Context) {
	status := c.gather(ctx)

	payload, err := json.Marshal(status)
	if err != nil {
		c.Logger.Error("marshal system status failed", "error", err)
		return
	}
	if err := c.Bus.SetState(ctx, SystemStatusKey, payload, SystemStatusTTL); err != nil {
		c.Logger.Error("write system_status key failed", "error", err)
	}

	msg := systemStatusMessage(status)
	if err := agent.PublishToFrontend(ctx, c.Bus, msg); err != nil {
		c.Logger.Error("publish system_status_update failed", "error", err)
	}
}

// gather reads every required agent's heartbeat key and reports whether
// all of them are currently present.
func (c *Coordinator) gather(ctx context.Context) SystemStatus {
	status := SystemStatus{
		Agents:      make(map[string]string, len(c.Config.RequiredAgents)),
		SystemReady: true,
		CheckedAt:   time.Now(),
	}

	for _, name := range c.Config.RequiredAgents {
		_, ok, err := c.Bus.GetState(ctx, heartbeatKey(name))
		if ok && err == nil {
			status.Agents[name] = "alive"
			continue
		}
		status.Agents[name] = "offline"
		status.SystemReady = false
		status.Missing = append(status.Missing, name)
	}
	return status
}

func heartbeatKey(agentName string) string {
	return agentName + "_heartbeat"
}

const coordinatorName = "coordinator"

// systemStatusMessage wraps status as a system_status_update broadcast
// on the frontend channel.
func systemStatusMessage(status SystemStatus) envelope.Message {
	content, err := json.Marshal(status)
	if err != nil {
		content = []byte(`{}`)
	}
	return envelope.Message{
		Base: envelope.Base{
			Type: envelope.VariantMessage, Timestamp: envelope.Now(),
			Agent: coordinatorName, Intent: envelope.IntentSystem,
			Content: string(content),
		},
	}
}
