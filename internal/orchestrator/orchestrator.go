// Package orchestrator implements the debate finite-state machine: the
// per-task record, the literal workflow transition table, and the
// Handler that drives both forward from inbound envelopes.
package orchestrator

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/nugget/agentfabric/internal/agent"
	"github.com/nugget/agentfabric/internal/bus"
	"github.com/nugget/agentfabric/internal/effort"
	"github.com/nugget/agentfabric/internal/envelope"
	"github.com/nugget/agentfabric/internal/router"
)

// Step names the orchestrator's position within one task's debate.
type Step string

const (
	StepInitialProposal Step = "initial_proposal"
	StepCritique        Step = "critique"
	StepRefine          Step = "refine"
	StepConclude        Step = "conclude"
)

// TaskState is the per-task orchestrator record from the data model: who
// asked, where the debate currently stands, and how it got there. Each
// TaskState has its own mutex so distinct task ids update in parallel
// while a single task id's updates serialize internally.
type TaskState struct {
	mu sync.Mutex

	TaskID            string
	Status            envelope.TaskEvent
	OriginalRequester string
	CurrentStep       Step
	Round             int
	ActiveAgent       string
	History           []string
	StartTime         time.Time
	Dependencies      []string
	PendingDependents []envelope.Task
	ResponseStatus    envelope.ResponseStatus
}

func newTaskState(taskID, requester string) *TaskState {
	return &TaskState{
		TaskID:            taskID,
		Status:            envelope.EventPlan,
		OriginalRequester: requester,
		CurrentStep:       StepInitialProposal,
		Round:             1,
		StartTime:         time.Now(),
	}
}

func (ts *TaskState) record(summary string) {
	ts.History = append(ts.History, summary)
}

// transitionRule is one row of the literal workflow table from the
// component design: given the sender and their current step, it names
// the next target agent, the next event, and the step that follows.
// applyWorkflowTable walks this table; there is no per-branch logic.
type transitionRule struct {
	Sender      string
	Step        Step
	RoundAtMost bool // true: rule applies only while round < MaxRounds
	Next        string
	NextEvent   envelope.TaskEvent
	NextStep    Step
	IncRound    bool
}

// Config bounds the debate's configurable behavior.
type Config struct {
	MaxRounds int
	MinRounds int
}

// DefaultConfig matches the spec's default max_rounds of 3.
func DefaultConfig() Config {
	return Config{MaxRounds: 3, MinRounds: 1}
}

// Orchestrator implements agent.Handler for the orchestrator agent: the
// sole authority over task transitions, consulted by every modify_task
// or TaskResult referring to a known task_id.
type Orchestrator struct {
	agent.BaseHandler

	Name   string
	Bus    bus.Bus
	Router *router.Router
	Effort *effort.Estimator
	Logger *slog.Logger
	Config Config

	mu    sync.Mutex
	tasks map[string]*TaskState
}

// New constructs an Orchestrator ready to be wrapped in an agent.Runtime.
func New(name string, b bus.Bus, r *router.Router, es *effort.Estimator, logger *slog.Logger, cfg Config) *Orchestrator {
	if logger == nil {
		logger = slog.Default()
	}
	if es == nil {
		es = effort.New()
	}
	return &Orchestrator{
		Name:   name,
		Bus:    b,
		Router: r,
		Effort: es,
		Logger: logger,
		Config: cfg,
		tasks:  make(map[string]*TaskState),
	}
}

// HandleStartTask creates a new per-task record, picks the initial
// executor via the router, and republishes the task as a plan step.
func (o *Orchestrator) HandleStartTask(ctx context.Context, rt *agent.Runtime, t envelope.Task) error {
	o.mu.Lock()
	existing := o.tasks[t.TaskID]
	o.mu.Unlock()
	if existing != nil {
		// A dependent task arriving before its parent completes: hold it.
		existing.mu.Lock()
		existing.PendingDependents = append(existing.PendingDependents, t)
		existing.mu.Unlock()
		return nil
	}

	requester := t.Agent
	// The workflow table only has a proposer@initial_proposal row (see
	// workflowTable below); a fresh task must always start with the
	// proposer, per §4.4, so the router is only ever offered that one
	// candidate here.
	available := []string{"proposer"}

	reasoningEffort, diag := o.Effort.EffortOf(t.Content, effort.Signals{
		Event: t.Event, Intent: t.Intent,
		Confidence: t.Confidence, HasConfidence: t.Confidence > 0,
	})
	chosen, decision := o.Router.Route(t.TaskID, t.Content, available, &diag)

	state := newTaskState(t.TaskID, requester)
	state.ActiveAgent = chosen
	state.record(fmt.Sprintf("start_task from %s, routed to %s via %s", requester, chosen, decision.Method))

	o.mu.Lock()
	o.tasks[t.TaskID] = state
	o.mu.Unlock()

	next := envelope.Task{
		Base: envelope.Base{
			Type: envelope.VariantTask, Timestamp: envelope.Now(),
			TaskID: t.TaskID, Agent: o.Name, TargetAgent: chosen,
			Intent: envelope.IntentStartTask, Content: t.Content,
		},
		Event:             envelope.EventPlan,
		Confidence:        0.9,
		ReasoningEffort:   reasoningEffort,
		ReasoningStrategy: envelope.StrategyFor(reasoningEffort),
		Metadata: map[string]any{
			"routing_method": string(decision.Method),
			"exploration":    decision.Exploration,
		},
	}
	if err := agent.PublishToAgent(ctx, o.Bus, chosen, next); err != nil {
		return err
	}
	return agent.PublishToFrontend(ctx, o.Bus, next)
}

// HandleModifyTask is the ongoing-update path: apply the priority rules
// from the component design, in order, for any modify_task or TaskResult
// referring to a known task_id.
func (o *Orchestrator) HandleModifyTask(ctx context.Context, rt *agent.Runtime, e envelope.Envelope) error {
	meta := e.Meta()

	o.mu.Lock()
	state := o.tasks[meta.TaskID]
	o.mu.Unlock()
	if state == nil {
		o.Logger.Info("modify_task for unknown task_id, ignoring", "task_id", meta.TaskID)
		return nil
	}

	state.mu.Lock()
	defer state.mu.Unlock()

	var event envelope.TaskEvent
	var outcome envelope.TaskOutcome
	var content string
	switch v := e.(type) {
	case envelope.TaskResult:
		event, outcome, content = v.Event, v.Outcome, v.Content
	case envelope.Task:
		event, content = v.Event, v.Content
	}

	switch {
	case event == envelope.EventFail || outcome == envelope.OutcomeFailure:
		state.record(fmt.Sprintf("%s reported fail/failure, discarding task state", meta.Agent))
		if err := agent.PublishError(ctx, o.Bus, o.Name, state.TaskID, content, state.OriginalRequester); err != nil {
			return err
		}
		o.discard(state.TaskID)
		return nil

	case event == envelope.EventComplete && outcome == envelope.OutcomeSuccess:
		state.record(fmt.Sprintf("%s reported complete/success", meta.Agent))
		if err := agent.PublishCompletion(ctx, o.Bus, o.Name, state.TaskID, content, state.OriginalRequester, 0.9, []string{meta.Agent}); err != nil {
			return err
		}
		o.discard(state.TaskID)
		return o.publishPendingDependents(ctx, state)

	case event == envelope.EventToolComplete:
		state.record(fmt.Sprintf("tool_complete forwarded to active agent %s", state.ActiveAgent))
		return agent.PublishToAgent(ctx, o.Bus, state.ActiveAgent, e)

	default:
		return o.applyWorkflowTable(ctx, state, meta.Agent, content)
	}
}

// applyWorkflowTable is the single function that walks the literal
// workflow table; no branch inside it has ad-hoc routing logic.
func (o *Orchestrator) applyWorkflowTable(ctx context.Context, state *TaskState, sender, content string) error {
	rules := workflowTable(o.Config.MaxRounds)

	for _, rule := range rules {
		if rule.Sender != sender || rule.Step != state.CurrentStep {
			continue
		}
		if rule.RoundAtMost && state.Round >= o.Config.MaxRounds {
			continue
		}
		if !rule.RoundAtMost && rule.Step == StepRefine && state.Round < o.Config.MaxRounds {
			// This is the "round >= max_rounds" branch of the refine row;
			// skip it while still under the cap.
			continue
		}

		state.CurrentStep = rule.NextStep
		state.ActiveAgent = rule.Next
		if rule.IncRound {
			state.Round++
		}
		state.record(fmt.Sprintf("%s@%s -> %s (%s), round=%d", sender, rule.Step, rule.Next, rule.NextEvent, state.Round))

		task := envelope.Task{
			Base: envelope.Base{
				Type: envelope.VariantTask, Timestamp: envelope.Now(),
				TaskID: state.TaskID, Agent: o.Name, TargetAgent: rule.Next,
				Intent: envelope.IntentStartTask, Content: content,
			},
			Event:      rule.NextEvent,
			Confidence: 0.9,
			Metadata:   map[string]any{"round": float64(state.Round)},
		}
		if err := agent.PublishToAgent(ctx, o.Bus, rule.Next, task); err != nil {
			return err
		}
		return agent.PublishToFrontend(ctx, o.Bus, task)
	}

	o.Logger.Info("no workflow rule matched, ignoring", "task_id", state.TaskID, "sender", sender, "step", state.CurrentStep)
	return nil
}

// workflowTable returns the literal transition table from the component
// design. The rows do not depend on maxRounds: applyWorkflowTable applies
// the round cap, so round overflow always forces conclude rather than
// failing.
func workflowTable(maxRounds int) []transitionRule {
	return []transitionRule{
		{Sender: "proposer", Step: StepInitialProposal, Next: "critic", NextEvent: envelope.EventCritique, NextStep: StepCritique},
		{Sender: "critic", Step: StepCritique, Next: "proposer", NextEvent: envelope.EventRefine, NextStep: StepRefine, IncRound: true},
		{Sender: "proposer", Step: StepRefine, RoundAtMost: true, Next: "critic", NextEvent: envelope.EventCritique, NextStep: StepCritique},
		{Sender: "proposer", Step: StepRefine, Next: "critic", NextEvent: envelope.EventConclude, NextStep: StepConclude},
	}
}

func (o *Orchestrator) discard(taskID string) {
	o.mu.Lock()
	delete(o.tasks, taskID)
	o.mu.Unlock()
}

// publishPendingDependents republishes every Task envelope held for a
// task that was waiting on the one that just completed.
func (o *Orchestrator) publishPendingDependents(ctx context.Context, state *TaskState) error {
	for _, dep := range state.PendingDependents {
		if err := agent.PublishToAgent(ctx, o.Bus, dep.TargetAgent, dep); err != nil {
			return err
		}
	}
	return nil
}
