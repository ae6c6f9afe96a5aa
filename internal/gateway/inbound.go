package gateway

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/nugget/agentfabric/internal/agent"
	"github.com/nugget/agentfabric/internal/envelope"
)

// chat_message and start_task are the only inbound types that get
// wrapped into a Task envelope and forwarded to the orchestrator;
// get_agent_status is answered synchronously without touching the bus's
// publish path at all.
const (
	typeChatMessage    = "chat_message"
	typeStartTask      = "start_task"
	typeGetAgentStatus = "get_agent_status"
)

// SetKnownAgents records the agent names get_agent_status should report
// heartbeat state for, from the same agents.names config every other
// component uses.
func (g *Gateway) SetKnownAgents(names []string) {
	g.mu.Lock()
	g.knownAgents = append([]string(nil), names...)
	g.mu.Unlock()
}

// handleInbound implements §4.7's inbound rules: wrap chat_message/
// start_task as a Task addressed to the orchestrator, answer
// get_agent_status synchronously, and reject anything else.
func (g *Gateway) handleInbound(ctx context.Context, c *client, msg WebSocketMessage) error {
	switch msg.Type {
	case typeChatMessage, typeStartTask:
		return g.forwardToOrchestrator(ctx, c, msg)
	case typeGetAgentStatus:
		return g.answerAgentStatus(ctx, c)
	default:
		return fmt.Errorf("unknown message type %q", msg.Type)
	}
}

func (g *Gateway) forwardToOrchestrator(ctx context.Context, c *client, msg WebSocketMessage) error {
	intent := envelope.IntentChat
	if msg.Type == typeStartTask {
		intent = envelope.IntentStartTask
	}

	content, _ := msg.Payload["content"].(string)
	taskID, _ := msg.Payload["task_id"].(string)

	task := envelope.Task{
		Base: envelope.Base{
			Type: envelope.VariantTask, Timestamp: envelope.Now(),
			TaskID: taskID, Agent: c.id, TargetAgent: orchestratorAgentName,
			Intent: intent, Content: content,
		},
		Event:    envelope.EventPlan,
		Metadata: msg.Payload,
	}
	return agent.PublishToAgent(ctx, g.Bus, orchestratorAgentName, task)
}

func (g *Gateway) answerAgentStatus(ctx context.Context, c *client) error {
	g.mu.RLock()
	names := append([]string(nil), g.knownAgents...)
	g.mu.RUnlock()

	status := make(map[string]string, len(names))
	for _, name := range names {
		_, ok, err := g.Bus.GetState(ctx, name+"_heartbeat")
		if err == nil && ok {
			status[name] = "alive"
		} else {
			status[name] = "offline"
		}
	}

	payload, err := json.Marshal(map[string]any{"class": classSystemInfo, "agent": status})
	if err != nil {
		return err
	}
	select {
	case c.send <- payload:
	default:
	}
	return nil
}
