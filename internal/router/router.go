// Package router implements the task router: given a task and the set
// of agents eligible to take it, pick one and record why, in priority
// order (cluster model, performance statistics, random), with an
// exploration mechanism that occasionally overrides the pick to keep
// the performance statistics honest.
package router

import (
	"log/slog"
	"math/rand/v2"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/nugget/agentfabric/internal/effort"
)

// Method names which selection policy produced a Decision.
type Method string

const (
	MethodClusterBased     Method = "cluster_based"
	MethodPerformanceBased Method = "performance_based"
	MethodRandom           Method = "random"
)

// ClusterModel is consumed only through this interface: the ML-driven
// clustering model itself (embeddings, sklearn or otherwise) is out of
// scope for this core, the same way LLM providers and the sandbox are. A
// nil ClusterModel always falls through to the performance-based or
// random tiers.
type ClusterModel interface {
	Recommend(taskID, content string, available []string) (agentName string, ok bool)
}

// Decision records why an agent was selected: method, chosen agent,
// confidence, the alternatives it was chosen from, and whether the
// learning-rate exploration mechanism overrode the original pick.
type Decision struct {
	DecisionID   string    `json:"decision_id"`
	Timestamp    time.Time `json:"timestamp"`
	TaskID       string    `json:"task_id"`
	Method       Method    `json:"method"`
	Chosen       string    `json:"chosen"`
	Confidence   float64   `json:"confidence"`
	Alternatives []string  `json:"alternatives"`
	Exploration  bool      `json:"exploration"`

	EffortDiagnostics *effort.Diagnostics `json:"effort_diagnostics,omitempty"`

	// Filled in later by RecordOutcome.
	DurationMS int64 `json:"duration_ms,omitempty"`
	Success    *bool `json:"success,omitempty"`
}

// AgentStats tracks one agent's incrementally-updated performance
// statistics, used by the performance_based selection tier.
type AgentStats struct {
	TasksCompleted     int64   `json:"tasks_completed"`
	SuccessRate        float64 `json:"success_rate"`
	AvgDurationMS      float64 `json:"avg_duration_ms"`
	NormalizedDuration float64 `json:"normalized_duration"`
}

// normalizationBaselineMS is the duration (in ms) treated as
// "normalized_duration == 1.0" when no better baseline is available.
const normalizationBaselineMS = 60_000

// Config holds router configuration.
type Config struct {
	// LearningRate is the probability, in every selection, that the
	// chosen agent is replaced by a uniformly-random alternative from
	// the remaining candidates. Defaults to 0.1.
	LearningRate float64
	// Cluster is consulted first when non-nil.
	Cluster ClusterModel
	// MaxAuditLog bounds the in-memory decision log.
	MaxAuditLog int
}

// DefaultConfig matches the spec's default learning_rate of 0.1.
func DefaultConfig() Config {
	return Config{LearningRate: 0.1, MaxAuditLog: 1000}
}

// Router selects agents for tasks and records routing decisions.
type Router struct {
	logger *slog.Logger
	cfg    Config

	mu       sync.RWMutex
	stats    map[string]*AgentStats
	auditLog []Decision
}

// NewRouter constructs a Router.
func NewRouter(logger *slog.Logger, cfg Config) *Router {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.MaxAuditLog <= 0 {
		cfg.MaxAuditLog = 1000
	}
	return &Router{
		logger:   logger,
		cfg:      cfg,
		stats:    make(map[string]*AgentStats),
		auditLog: make([]Decision, 0, cfg.MaxAuditLog),
	}
}

// Route selects an agent for taskID from available, in priority order:
// cluster model, then performance statistics (if every candidate has
// them), then uniform random. diag is the effort estimator's
// diagnostics for this task, if any, recorded on the Decision for
// traceability; it may be nil.
func (r *Router) Route(taskID, content string, available []string, diag *effort.Diagnostics) (string, Decision) {
	if len(available) == 0 {
		return "", Decision{}
	}

	var chosen string
	var method Method
	var confidence float64

	if r.cfg.Cluster != nil {
		if agent, ok := r.cfg.Cluster.Recommend(taskID, content, available); ok && contains(available, agent) {
			chosen = agent
			method = MethodClusterBased
			confidence = 0.8
		}
	}

	if chosen == "" {
		r.mu.RLock()
		allHaveStats := true
		for _, a := range available {
			if _, ok := r.stats[a]; !ok {
				allHaveStats = false
				break
			}
		}
		if allHaveStats {
			best := ""
			bestScore := -1.0
			for _, a := range available {
				s := r.stats[a]
				score := 0.6*s.SuccessRate + 0.4*(1/(s.NormalizedDuration+1))
				if score > bestScore {
					bestScore = score
					best = a
				}
			}
			r.mu.RUnlock()
			chosen = best
			method = MethodPerformanceBased
			confidence = clamp01(bestScore)
		} else {
			r.mu.RUnlock()
		}
	}

	if chosen == "" {
		chosen = available[rand.IntN(len(available))]
		method = MethodRandom
		confidence = 1.0 / float64(len(available))
	}

	exploration := false
	if rand.Float64() < r.cfg.LearningRate {
		alternatives := remove(available, chosen)
		if len(alternatives) > 0 {
			chosen = alternatives[rand.IntN(len(alternatives))]
			exploration = true
		}
	}

	decision := Decision{
		DecisionID:        uuid.NewString(),
		Timestamp:         time.Now(),
		TaskID:            taskID,
		Method:            method,
		Chosen:            chosen,
		Confidence:        confidence,
		Alternatives:      remove(available, chosen),
		Exploration:       exploration,
		EffortDiagnostics: diag,
	}

	r.recordDecision(decision)
	r.logger.Info("task routed", "task_id", taskID, "agent", chosen, "method", method, "exploration", exploration)

	return chosen, decision
}

// RecordOutcome incrementally updates agent's performance statistics
// after a task it handled finishes.
func (r *Router) RecordOutcome(agentName string, durationMS int64, success bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	s, ok := r.stats[agentName]
	if !ok {
		s = &AgentStats{}
		r.stats[agentName] = s
	}

	n := float64(s.TasksCompleted)
	s.AvgDurationMS = (s.AvgDurationMS*n + float64(durationMS)) / (n + 1)
	successVal := 0.0
	if success {
		successVal = 1.0
	}
	s.SuccessRate = (s.SuccessRate*n + successVal) / (n + 1)
	s.TasksCompleted++
	s.NormalizedDuration = s.AvgDurationMS / normalizationBaselineMS

	for i := len(r.auditLog) - 1; i >= 0; i-- {
		if r.auditLog[i].Chosen == agentName && r.auditLog[i].Success == nil {
			r.auditLog[i].DurationMS = durationMS
			success := success
			r.auditLog[i].Success = &success
			break
		}
	}
}

func (r *Router) recordDecision(d Decision) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.auditLog) >= r.cfg.MaxAuditLog {
		r.auditLog = r.auditLog[1:]
	}
	r.auditLog = append(r.auditLog, d)
}

// GetAuditLog returns the most recent limit decisions (or all of them
// when limit <= 0).
func (r *Router) GetAuditLog(limit int) []Decision {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if limit <= 0 || limit > len(r.auditLog) {
		limit = len(r.auditLog)
	}
	start := len(r.auditLog) - limit
	out := make([]Decision, limit)
	copy(out, r.auditLog[start:])
	return out
}

// GetStats returns a snapshot of every agent's current statistics.
func (r *Router) GetStats() map[string]AgentStats {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make(map[string]AgentStats, len(r.stats))
	for k, v := range r.stats {
		out[k] = *v
	}
	return out
}

// Explain returns the decision with the given id, or nil if not found.
func (r *Router) Explain(decisionID string) *Decision {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for i := len(r.auditLog) - 1; i >= 0; i-- {
		if r.auditLog[i].DecisionID == decisionID {
			d := r.auditLog[i]
			return &d
		}
	}
	return nil
}

func contains(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}

func remove(list []string, s string) []string {
	out := make([]string, 0, len(list))
	for _, v := range list {
		if v != s {
			out = append(out, v)
		}
	}
	return out
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
