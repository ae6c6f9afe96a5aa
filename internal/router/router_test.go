package router

import (
	"log/slog"
	"testing"

	"github.com/nugget/agentfabric/internal/effort"
)

func newTestRouter(cfg Config) *Router {
	return NewRouter(slog.Default(), cfg)
}

func TestRouteRandomWhenNoStatsAndNoCluster(t *testing.T) {
	r := newTestRouter(Config{LearningRate: 0, MaxAuditLog: 10})

	chosen, decision := r.Route("t1", "do something", []string{"proposer", "critic"}, nil)

	if chosen != "proposer" && chosen != "critic" {
		t.Fatalf("chosen = %q, want one of proposer/critic", chosen)
	}
	if decision.Method != MethodRandom {
		t.Errorf("method = %q, want %q", decision.Method, MethodRandom)
	}
	if decision.Exploration {
		t.Errorf("exploration = true with learning_rate 0")
	}
	if decision.DecisionID == "" {
		t.Errorf("expected a non-empty decision id")
	}
}

func TestRoutePerformanceBasedWhenAllCandidatesHaveStats(t *testing.T) {
	r := newTestRouter(Config{LearningRate: 0, MaxAuditLog: 10})

	r.RecordOutcome("proposer", 1000, true)
	r.RecordOutcome("critic", 1000, false)

	chosen, decision := r.Route("t1", "do something", []string{"proposer", "critic"}, nil)

	if decision.Method != MethodPerformanceBased {
		t.Fatalf("method = %q, want %q", decision.Method, MethodPerformanceBased)
	}
	if chosen != "proposer" {
		t.Errorf("chosen = %q, want proposer (higher success rate)", chosen)
	}
}

func TestRouteClusterBasedTakesPrecedence(t *testing.T) {
	cluster := stubCluster{agent: "critic", ok: true}
	r := newTestRouter(Config{LearningRate: 0, MaxAuditLog: 10, Cluster: cluster})

	r.RecordOutcome("proposer", 1000, true)
	r.RecordOutcome("critic", 1000, false)

	chosen, decision := r.Route("t1", "do something", []string{"proposer", "critic"}, nil)

	if decision.Method != MethodClusterBased {
		t.Fatalf("method = %q, want %q", decision.Method, MethodClusterBased)
	}
	if chosen != "critic" {
		t.Errorf("chosen = %q, want critic (cluster recommendation)", chosen)
	}
}

func TestRouteClusterRecommendationOutsideAvailableFallsThrough(t *testing.T) {
	cluster := stubCluster{agent: "ghost", ok: true}
	r := newTestRouter(Config{LearningRate: 0, MaxAuditLog: 10, Cluster: cluster})

	chosen, decision := r.Route("t1", "do something", []string{"proposer", "critic"}, nil)

	if decision.Method == MethodClusterBased {
		t.Fatalf("method = cluster_based, want fallthrough since ghost is unavailable")
	}
	if chosen != "proposer" && chosen != "critic" {
		t.Errorf("chosen = %q, want one of proposer/critic", chosen)
	}
}

func TestRouteIsDeterministicAtZeroLearningRate(t *testing.T) {
	r := newTestRouter(Config{LearningRate: 0, MaxAuditLog: 10})
	r.RecordOutcome("proposer", 500, true)
	r.RecordOutcome("critic", 500, true)

	first, _ := r.Route("t1", "content", []string{"proposer", "critic"}, nil)
	for i := 0; i < 20; i++ {
		got, _ := r.Route("t1", "content", []string{"proposer", "critic"}, nil)
		if got != first {
			t.Fatalf("route %d changed from %q to %q at learning_rate 0", i, first, got)
		}
	}
}

func TestRouteExplorationAlwaysFiresAtLearningRateOne(t *testing.T) {
	r := newTestRouter(Config{LearningRate: 1, MaxAuditLog: 10})
	r.RecordOutcome("proposer", 500, true)
	r.RecordOutcome("critic", 500, false)

	_, decision := r.Route("t1", "content", []string{"proposer", "critic"}, nil)
	if !decision.Exploration {
		t.Errorf("expected exploration at learning_rate 1")
	}
}

func TestRouteEmptyAvailableReturnsZeroValue(t *testing.T) {
	r := newTestRouter(Config{MaxAuditLog: 10})
	chosen, decision := r.Route("t1", "content", nil, nil)
	if chosen != "" {
		t.Errorf("chosen = %q, want empty", chosen)
	}
	if decision.Method != "" {
		t.Errorf("method = %q, want empty", decision.Method)
	}
}

func TestRecordOutcomeUpdatesRunningStats(t *testing.T) {
	r := newTestRouter(Config{MaxAuditLog: 10})

	r.RecordOutcome("proposer", 1000, true)
	r.RecordOutcome("proposer", 3000, false)

	stats := r.GetStats()["proposer"]
	if stats.TasksCompleted != 2 {
		t.Errorf("tasks_completed = %d, want 2", stats.TasksCompleted)
	}
	if stats.SuccessRate != 0.5 {
		t.Errorf("success_rate = %v, want 0.5", stats.SuccessRate)
	}
	if stats.AvgDurationMS != 2000 {
		t.Errorf("avg_duration_ms = %v, want 2000", stats.AvgDurationMS)
	}
}

func TestAuditLogRespectsMaxAndExplain(t *testing.T) {
	r := newTestRouter(Config{LearningRate: 0, MaxAuditLog: 3})

	var lastID string
	for i := 0; i < 5; i++ {
		_, d := r.Route("t1", "content", []string{"proposer", "critic"}, nil)
		lastID = d.DecisionID
	}

	log := r.GetAuditLog(0)
	if len(log) != 3 {
		t.Fatalf("audit log length = %d, want 3 (capped)", len(log))
	}

	got := r.Explain(lastID)
	if got == nil || got.DecisionID != lastID {
		t.Errorf("Explain(%q) = %+v, want matching decision", lastID, got)
	}
}

func TestRouteCarriesEffortDiagnostics(t *testing.T) {
	r := newTestRouter(Config{LearningRate: 0, MaxAuditLog: 10})
	diag := &effort.Diagnostics{Score: 12.5, FinalEffort: "high"}

	_, decision := r.Route("t1", "content", []string{"proposer"}, diag)

	if decision.EffortDiagnostics != diag {
		t.Errorf("EffortDiagnostics not carried through to decision")
	}
}

type stubCluster struct {
	agent string
	ok    bool
}

func (s stubCluster) Recommend(taskID, content string, available []string) (string, bool) {
	return s.agent, s.ok
}
