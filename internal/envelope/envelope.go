// Package envelope defines the wire format shared by every bus message in
// agentfabric: a small family of tagged-variant envelopes (message, task,
// task_result, stream_update, ws_envelope) that agents, the orchestrator,
// the tool core, and the websocket gateway all exchange over the bus.
//
// Decoding never probes multiple target types by trial and error. The
// discriminator fields (type, intent) are read once and used to pick the
// exact concrete type to decode into, per the rules in Decode.
package envelope

// Variant tags the concrete shape of an envelope on the wire.
type Variant string

const (
	VariantMessage      Variant = "message"
	VariantTask         Variant = "task"
	VariantTaskResult   Variant = "task_result"
	VariantStreamUpdate Variant = "stream_update"
	VariantWS           Variant = "ws_envelope"
)

// MessageIntent classifies why an envelope was sent.
type MessageIntent string

const (
	IntentChat             MessageIntent = "chat"
	IntentStartTask        MessageIntent = "start_task"
	IntentModifyTask       MessageIntent = "modify_task"
	IntentCheckStatus      MessageIntent = "check_status"
	IntentToolRequest      MessageIntent = "tool_request"
	IntentToolResponse     MessageIntent = "tool_response"
	IntentHeartbeat        MessageIntent = "heartbeat"
	IntentSystem           MessageIntent = "system"
	IntentOrchestration    MessageIntent = "orchestration"
	IntentGenerateWorkflow MessageIntent = "generate_workflow"
)

var validIntents = map[MessageIntent]bool{
	IntentChat: true, IntentStartTask: true, IntentModifyTask: true,
	IntentCheckStatus: true, IntentToolRequest: true, IntentToolResponse: true,
	IntentHeartbeat: true, IntentSystem: true, IntentOrchestration: true,
	IntentGenerateWorkflow: true,
}

// TaskEvent marks the lifecycle step a Task envelope represents.
type TaskEvent string

const (
	EventPlan         TaskEvent = "plan"
	EventExecute      TaskEvent = "execute"
	EventCritique     TaskEvent = "critique"
	EventRefine       TaskEvent = "refine"
	EventConclude     TaskEvent = "conclude"
	EventComplete     TaskEvent = "complete"
	EventFail         TaskEvent = "fail"
	EventEscalate     TaskEvent = "escalate"
	EventInfo         TaskEvent = "info"
	EventAwaitingTool TaskEvent = "awaiting_tool"
	EventToolComplete TaskEvent = "tool_complete"
)

var validEvents = map[TaskEvent]bool{
	EventPlan: true, EventExecute: true, EventCritique: true, EventRefine: true,
	EventConclude: true, EventComplete: true, EventFail: true, EventEscalate: true,
	EventInfo: true, EventAwaitingTool: true, EventToolComplete: true,
}

// TaskOutcome is the terminal (or in-flight) disposition recorded on a
// TaskResult.
type TaskOutcome string

const (
	OutcomeSuccess    TaskOutcome = "success"
	OutcomeFailure    TaskOutcome = "failure"
	OutcomePending    TaskOutcome = "pending"
	OutcomeInProgress TaskOutcome = "in_progress"
	OutcomeTimeout    TaskOutcome = "timeout"
	OutcomeCancelled  TaskOutcome = "cancelled"
)

var validOutcomes = map[TaskOutcome]bool{
	OutcomeSuccess: true, OutcomeFailure: true, OutcomePending: true,
	OutcomeInProgress: true, OutcomeTimeout: true, OutcomeCancelled: true,
}

// ReasoningEffort is the coarse effort tier the router assigns a task.
type ReasoningEffort string

const (
	EffortLow    ReasoningEffort = "low"
	EffortMedium ReasoningEffort = "medium"
	EffortHigh   ReasoningEffort = "high"
)

var validEfforts = map[ReasoningEffort]bool{
	EffortLow: true, EffortMedium: true, EffortHigh: true,
}

// ReasoningStrategy is the prompting strategy implied by a ReasoningEffort.
type ReasoningStrategy string

const (
	StrategyDirectAnswer   ReasoningStrategy = "direct_answer"
	StrategyChainOfThought ReasoningStrategy = "chain-of-thought"
	StrategyChainOfDraft   ReasoningStrategy = "chain-of-draft"
)

// StrategyFor returns the prompting strategy implied by effort. Low effort
// skips reasoning entirely; medium walks a full chain-of-thought; high
// drafts and revises (chain-of-draft).
func StrategyFor(e ReasoningEffort) ReasoningStrategy {
	switch e {
	case EffortLow:
		return StrategyDirectAnswer
	case EffortMedium:
		return StrategyChainOfThought
	default:
		return StrategyChainOfDraft
	}
}

// ResponseStatus is an informational debate-outcome label an orchestrator
// may attach to a TaskResult's metadata under key "response_status". It
// never drives a transition; the workflow table in package orchestrator is
// the sole transition authority. Supplements arbitration.py's
// ResponseStatus enum from the original source, dropped by the
// distillation but useful for operators reading the event stream.
type ResponseStatus string

const (
	ResponseConsensus           ResponseStatus = "consensus"
	ResponseStrongConfidence    ResponseStatus = "strong_confidence"
	ResponseDebating            ResponseStatus = "debating"
	ResponseReconciled          ResponseStatus = "reconciled"
	ResponseMajorityWithDissent ResponseStatus = "majority_with_dissent"
	ResponseDeadlocked          ResponseStatus = "deadlocked"
	ResponsePartialConsensus    ResponseStatus = "partial_consensus"
)

// CritiqueImpact is the severity a CritiquePoint carries.
type CritiqueImpact string

const (
	ImpactLow    CritiqueImpact = "low"
	ImpactMedium CritiqueImpact = "medium"
	ImpactHigh   CritiqueImpact = "high"
)

// CritiquePointType distinguishes a strength from a weakness.
type CritiquePointType string

const (
	PointStrength CritiquePointType = "strength"
	PointWeakness CritiquePointType = "weakness"
)

// CritiquePoint is a single structured annotation a critic agent attaches
// to a critique event's metadata under key "critique_points". Supplements
// the bare content string with the strength/weakness structure carried by
// reconciliation.py's AgentCritique in the original source.
type CritiquePoint struct {
	FromAgent   string            `json:"from_agent"`
	ToAgent     string            `json:"to_agent"`
	PointType   CritiquePointType `json:"point_type"`
	Description string            `json:"description"`
	ImpactLevel CritiqueImpact    `json:"impact_level"`
}

// Base carries the fields common to every envelope variant.
type Base struct {
	Type        Variant       `json:"type"`
	Timestamp   Timestamp     `json:"timestamp"`
	TaskID      string        `json:"task_id,omitempty"`
	Agent       string        `json:"agent"`
	TargetAgent string        `json:"target_agent,omitempty"`
	Content     string        `json:"content,omitempty"`
	Intent      MessageIntent `json:"intent"`
}

// Envelope is implemented by every concrete variant. It lets bus and
// agent-runtime code handle a decoded envelope generically without a type
// switch at every call site, while still allowing callers that need the
// concrete fields to type-assert.
type Envelope interface {
	Meta() Base
	Variant() Variant
}

// Message is a plain chat, system, or orchestration note with no task
// lifecycle attached.
type Message struct {
	Base
}

func (m Message) Meta() Base       { return m.Base }
func (m Message) Variant() Variant { return VariantMessage }

// Task represents one step of a task's lifecycle: a plan, an execution
// request, a critique, a refinement, or a conclusion.
type Task struct {
	Base
	Event             TaskEvent         `json:"event"`
	Confidence        float64           `json:"confidence,omitempty"`
	ReasoningEffort   ReasoningEffort   `json:"reasoning_effort,omitempty"`
	ReasoningStrategy ReasoningStrategy `json:"reasoning_strategy,omitempty"`
	Metadata          map[string]any    `json:"metadata,omitempty"`
}

func (t Task) Meta() Base       { return t.Base }
func (t Task) Variant() Variant { return VariantTask }

// TaskResult is a Task carrying a terminal or in-flight outcome, plus the
// set of agents that contributed to it.
type TaskResult struct {
	Task
	Outcome            TaskOutcome `json:"outcome"`
	ContributingAgents []string    `json:"contributing_agents,omitempty"`
}

func (r TaskResult) Variant() Variant { return VariantTaskResult }

// StreamUpdate carries one partial-content chunk of a streaming response.
// Kept distinct from Task/TaskResult per the REDESIGN note: streaming
// deltas must never be mistaken for a final content value.
type StreamUpdate struct {
	Base
	Delta string `json:"delta"`
}

func (s StreamUpdate) Meta() Base       { return s.Base }
func (s StreamUpdate) Variant() Variant { return VariantStreamUpdate }

// WSEnvelope wraps an opaque client payload that does not fit any other
// variant, letting the gateway forward it onto the bus verbatim.
type WSEnvelope struct {
	Base
	Payload map[string]any `json:"payload,omitempty"`
}

func (w WSEnvelope) Meta() Base       { return w.Base }
func (w WSEnvelope) Variant() Variant { return VariantWS }
