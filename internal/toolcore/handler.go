package toolcore

import (
	"context"

	"github.com/nugget/agentfabric/internal/agent"
	"github.com/nugget/agentfabric/internal/envelope"
)

// Handler adapts Core to agent.Handler so it can run inside an
// agent.Runtime and receive bus-originated tool_request envelopes on
// its own "toolcore_channel", per §4.6's "both HTTP and bus-originated"
// submission path.
type Handler struct {
	agent.BaseHandler
	Core *Core
}

// HandleUnknown is where tool_request envelopes land: tool_request has
// no dedicated intent case in the runtime's dispatch table, so it falls
// through to HandleUnknown like any other envelope the runtime doesn't
// recognize by name.
func (h Handler) HandleUnknown(ctx context.Context, rt *agent.Runtime, e envelope.Envelope) error {
	if e.Meta().Intent != envelope.IntentToolRequest {
		return nil
	}
	ws, ok := e.(envelope.WSEnvelope)
	if !ok {
		return nil
	}

	toolName, _ := ws.Payload["tool_name"].(string)
	params, _ := ws.Payload["params"].(map[string]any)
	dryRun, _ := ws.Payload["dry_run"].(bool)

	h.Core.Submit(ctx, SubmitRequest{
		TaskID:          e.Meta().TaskID,
		RequestingAgent: e.Meta().Agent,
		ToolName:        toolName,
		Params:          params,
		DryRun:          dryRun,
	})
	return nil
}
