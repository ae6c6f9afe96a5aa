// Package config handles agentfabric configuration loading.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"
)

// DefaultSearchPaths returns the config file search order.
// An explicit path (from -config flag) is checked first.
// Then: ./config.yaml, ~/.config/agentfabric/config.yaml, /config/config.yaml,
// /etc/agentfabric/config.yaml.
func DefaultSearchPaths() []string {
	paths := []string{"config.yaml"}

	if home, err := os.UserHomeDir(); err == nil {
		paths = append(paths, filepath.Join(home, ".config", "agentfabric", "config.yaml"))
	}

	paths = append(paths, "/config/config.yaml") // Container convention
	paths = append(paths, "/etc/agentfabric/config.yaml")
	return paths
}

// searchPathsFunc is indirected so tests can point it at a temp
// directory instead of walking the real filesystem search order.
var searchPathsFunc = DefaultSearchPaths

// FindConfig locates a config file. If explicit is non-empty, it must exist.
// Otherwise, searches searchPathsFunc and returns the first that exists.
// Returns the path found, or an error if nothing was found.
func FindConfig(explicit string) (string, error) {
	if explicit != "" {
		if _, err := os.Stat(explicit); err != nil {
			return "", fmt.Errorf("config file not found: %s", explicit)
		}
		return explicit, nil
	}

	paths := searchPathsFunc()
	for _, p := range paths {
		if _, err := os.Stat(p); err == nil {
			return p, nil
		}
	}

	return "", fmt.Errorf("no config file found (searched: %v)", paths)
}

// Config holds all agentfabric configuration.
type Config struct {
	Listen       ListenConfig       `yaml:"listen"`
	Bus          BusConfig          `yaml:"bus"`
	Agents       AgentsConfig       `yaml:"agents"`
	Orchestrator OrchestratorConfig `yaml:"orchestrator"`
	Router       RouterConfig       `yaml:"router"`
	Sandbox      SandboxConfig      `yaml:"sandbox"`
	Coordinator  CoordinatorConfig  `yaml:"coordinator"`
	DataDir      string             `yaml:"data_dir"`
	LogLevel     string             `yaml:"log_level"`
}

// ListenConfig defines an HTTP or websocket server's bind settings.
type ListenConfig struct {
	Address string `yaml:"address"` // Bind address (default: "" = all interfaces)
	Port    int    `yaml:"port"`
}

// BusConfig selects and configures the pub/sub bus backend.
type BusConfig struct {
	// Driver is "redis" or "inmem". inmem is for local development and
	// tests; it never survives a process restart.
	Driver             string        `yaml:"driver"`
	RedisAddr          string        `yaml:"redis_addr"`
	RedisPassword      string        `yaml:"redis_password"`
	RedisDB            int           `yaml:"redis_db"`
	FrontendChannel    string        `yaml:"frontend_channel"`
	ToolRequestChannel string        `yaml:"tool_request_channel"`
	HeartbeatInterval  time.Duration `yaml:"heartbeat_interval"`
	HeartbeatTTL       time.Duration `yaml:"heartbeat_ttl"`
}

// AgentsConfig lists the agent runtimes this deployment expects to run
// and the required set the coordinator waits for at startup.
type AgentsConfig struct {
	Names    []string `yaml:"names"`
	Required []string `yaml:"required"`
}

// OrchestratorConfig bounds the debate workflow.
type OrchestratorConfig struct {
	MaxDebateRounds int `yaml:"max_debate_rounds"`
	MinDebateRounds int `yaml:"min_debate_rounds"`
}

// RouterConfig configures the task router's selection policy.
type RouterConfig struct {
	LearningRate              float64       `yaml:"learning_rate"`
	ClusteringUpdateFrequency time.Duration `yaml:"clustering_update_frequency"`
	MaxAuditLog               int           `yaml:"max_audit_log"`
}

// SandboxConfig points at the external code-execution sandbox the tool
// core submits python_sandbox executions to.
type SandboxConfig struct {
	APIURL       string        `yaml:"api_url"`
	PollInterval time.Duration `yaml:"poll_interval"`
}

// CoordinatorConfig bounds the system-readiness wait at startup and the
// heartbeat-aggregation loop afterward.
type CoordinatorConfig struct {
	ReadyTimeout  time.Duration `yaml:"ready_timeout"`
	CheckInterval time.Duration `yaml:"check_interval"`
}

// Load reads configuration from a YAML file, expands environment
// variables, applies defaults for any unset fields, and validates
// the result. After Load returns successfully, all fields are usable
// without additional nil/empty checks.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	// Expand environment variables (e.g., ${REDIS_ADDR}). This is a
	// convenience for container deployments; the recommended approach is
	// to put values directly in the config file.
	expanded := os.ExpandEnv(string(data))

	cfg := &Config{}
	if err := yaml.Unmarshal([]byte(expanded), cfg); err != nil {
		return nil, err
	}

	cfg.applyDefaults()

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation: %w", err)
	}

	return cfg, nil
}

// applyDefaults fills in zero-value fields with sensible defaults.
// Called automatically by Load. After this, callers can read any field
// without checking for empty strings or zero values.
func (c *Config) applyDefaults() {
	if c.Listen.Port == 0 {
		c.Listen.Port = 8080
	}
	if c.DataDir == "" {
		c.DataDir = "./data"
	}
	if c.Bus.Driver == "" {
		c.Bus.Driver = "redis"
	}
	if c.Bus.RedisAddr == "" {
		c.Bus.RedisAddr = "localhost:6379"
	}
	if c.Bus.FrontendChannel == "" {
		c.Bus.FrontendChannel = "FRONTEND_CHANNEL"
	}
	if c.Bus.ToolRequestChannel == "" {
		c.Bus.ToolRequestChannel = "tool_requests"
	}
	if c.Bus.HeartbeatInterval == 0 {
		c.Bus.HeartbeatInterval = 10 * time.Second
	}
	if c.Bus.HeartbeatTTL == 0 {
		c.Bus.HeartbeatTTL = 30 * time.Second
	}
	if c.Orchestrator.MaxDebateRounds == 0 {
		c.Orchestrator.MaxDebateRounds = 3
	}
	if c.Orchestrator.MinDebateRounds == 0 {
		c.Orchestrator.MinDebateRounds = 1
	}
	if c.Router.LearningRate == 0 {
		c.Router.LearningRate = 0.1
	}
	if c.Router.ClusteringUpdateFrequency == 0 {
		c.Router.ClusteringUpdateFrequency = time.Hour
	}
	if c.Router.MaxAuditLog == 0 {
		c.Router.MaxAuditLog = 1000
	}
	if c.Sandbox.PollInterval == 0 {
		c.Sandbox.PollInterval = 1 * time.Second
	}
	if c.Coordinator.ReadyTimeout == 0 {
		c.Coordinator.ReadyTimeout = 60 * time.Second
	}
	if c.Coordinator.CheckInterval == 0 {
		c.Coordinator.CheckInterval = 5 * time.Second
	}
	if len(c.Agents.Required) == 0 {
		c.Agents.Required = c.Agents.Names
	}
}

// Validate checks that the configuration is internally consistent.
// It runs after applyDefaults, so it can assume defaults are populated.
// Returns an error describing the first problem found, or nil.
func (c *Config) Validate() error {
	if c.Listen.Port < 1 || c.Listen.Port > 65535 {
		return fmt.Errorf("listen.port %d out of range (1-65535)", c.Listen.Port)
	}
	if c.Bus.Driver != "redis" && c.Bus.Driver != "inmem" {
		return fmt.Errorf("bus.driver %q must be \"redis\" or \"inmem\"", c.Bus.Driver)
	}
	if c.Router.LearningRate < 0 || c.Router.LearningRate > 1 {
		return fmt.Errorf("router.learning_rate %v out of range (0-1)", c.Router.LearningRate)
	}
	if c.Orchestrator.MinDebateRounds > c.Orchestrator.MaxDebateRounds {
		return fmt.Errorf("orchestrator.min_debate_rounds (%d) exceeds max_debate_rounds (%d)",
			c.Orchestrator.MinDebateRounds, c.Orchestrator.MaxDebateRounds)
	}
	if c.LogLevel != "" {
		if _, err := ParseLogLevel(c.LogLevel); err != nil {
			return err
		}
	}
	return nil
}

// Default returns a default configuration suitable for local development
// against an in-memory bus. All defaults are already applied.
func Default() *Config {
	cfg := &Config{
		Bus: BusConfig{
			Driver: "inmem",
		},
		Agents: AgentsConfig{
			Names: []string{"proposer", "critic", "orchestrator"},
		},
	}
	cfg.applyDefaults()
	return cfg
}
