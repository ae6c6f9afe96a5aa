package toolcore

import (
	"context"
	"sync"

	"github.com/google/uuid"

	"github.com/nugget/agentfabric/internal/agent"
	"github.com/nugget/agentfabric/internal/bus"
	"github.com/nugget/agentfabric/internal/envelope"
)

// PendingCall is the requesting agent's own bookkeeping for one tool
// invocation it is waiting on, per §4.6's requesting-agent-side
// protocol. OnSuccess/OnFailure continue whatever task logic was
// suspended awaiting this tool.
type PendingCall struct {
	ExecutionID string
	TaskID      string
	ToolName    string
	OnSuccess   func(content string)
	OnFailure   func(content string)
}

// Client is embedded by an agent runtime's handler to invoke tools
// without duplicating the execution_id/publish_update/pending-record
// protocol at every call site.
type Client struct {
	AgentName string
	Bus       bus.Bus

	mu      sync.Mutex
	pending map[string]*PendingCall
}

// NewClient constructs a tool-invocation client for agentName.
func NewClient(agentName string, b bus.Bus) *Client {
	return &Client{AgentName: agentName, Bus: b, pending: make(map[string]*PendingCall)}
}

// Invoke runs the requesting-agent-side protocol steps 1-4 from §4.6:
// generate an execution_id, announce awaiting_tool to the orchestrator,
// store the pending_call_record, and submit to the tool core over the
// bus. onSuccess/onFailure are invoked later by Resolve when the
// matching tool_response/tool_complete envelope arrives.
func (c *Client) Invoke(ctx context.Context, taskID, toolName string, params map[string]any, onSuccess, onFailure func(content string)) (string, error) {
	executionID := uuid.NewString()

	if err := agent.PublishUpdate(ctx, c.Bus, c.AgentName, taskID, envelope.EventAwaitingTool,
		"Requesting execution of tool "+toolName, orchestratorAgentName, 0); err != nil {
		return "", err
	}

	c.mu.Lock()
	c.pending[executionID] = &PendingCall{
		ExecutionID: executionID, TaskID: taskID, ToolName: toolName,
		OnSuccess: onSuccess, OnFailure: onFailure,
	}
	c.mu.Unlock()

	payload := envelope.WSEnvelope{
		Base: envelope.Base{
			Type: envelope.VariantWS, Timestamp: envelope.Now(),
			TaskID: taskID, Agent: c.AgentName, Intent: envelope.IntentToolRequest,
		},
		Payload: map[string]any{
			"execution_id": executionID,
			"tool_name":    toolName,
			"params":       params,
		},
	}
	return executionID, agent.PublishToAgent(ctx, c.Bus, toolCoreAgentName, payload)
}

// Resolve dispatches a tool_response/tool_complete envelope arriving on
// this agent's own channel to the matching pending call's callback, per
// step 5 of the requesting-agent-side protocol. It reports whether a
// pending call was found and resolved.
func (c *Client) Resolve(e envelope.TaskResult) bool {
	c.mu.Lock()
	var match *PendingCall
	for id, pc := range c.pending {
		if pc.TaskID == e.TaskID {
			match = pc
			delete(c.pending, id)
			break
		}
	}
	c.mu.Unlock()
	if match == nil {
		return false
	}

	if e.Outcome == envelope.OutcomeSuccess && match.OnSuccess != nil {
		match.OnSuccess(e.Content)
	} else if match.OnFailure != nil {
		match.OnFailure(e.Content)
	}
	return true
}

const (
	orchestratorAgentName = "orchestrator"
	toolCoreAgentName     = Name
)
