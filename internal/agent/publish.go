package agent

import (
	"context"

	"github.com/nugget/agentfabric/internal/bus"
	"github.com/nugget/agentfabric/internal/envelope"
)

// FrontendChannel is the process-wide broadcast topic the gateway
// subscribes to for everything that must reach connected clients.
const FrontendChannel = "FRONTEND_CHANNEL"

// ToolRequestChannel is the process-wide topic agents may use to address
// the tool core without holding its channel name directly.
const ToolRequestChannel = "tool_requests"

// ChannelFor returns the dedicated inbound topic name for agentName.
func ChannelFor(agentName string) string {
	return agentName + "_channel"
}

// Publishing helpers are free functions rather than base-class methods,
// per the REDESIGN note: any agent can call these against its own bus
// handle without inheriting from a shared base type.

// PublishToAgent publishes env on target's dedicated channel.
func PublishToAgent(ctx context.Context, b bus.Bus, target string, env envelope.Envelope) error {
	data, err := envelope.Encode(env)
	if err != nil {
		return err
	}
	return b.Publish(ctx, ChannelFor(target), data)
}

// PublishToFrontend publishes env on FrontendChannel for the gateway to
// fan out to connected clients.
func PublishToFrontend(ctx context.Context, b bus.Bus, env envelope.Envelope) error {
	data, err := envelope.Encode(env)
	if err != nil {
		return err
	}
	return b.Publish(ctx, FrontendChannel, data)
}

// PublishUpdate emits a transitional TaskResult (outcome=in_progress) to
// both target's channel and the frontend. A zero confidence is sent as 0.9.
func PublishUpdate(ctx context.Context, b bus.Bus, fromAgent, taskID string, event envelope.TaskEvent, content, target string, confidence float64) error {
	if confidence == 0 {
		confidence = 0.9
	}
	r := envelope.TaskResult{
		Task: envelope.Task{
			Base: envelope.Base{
				Type: envelope.VariantTaskResult, Timestamp: envelope.Now(),
				TaskID: taskID, Agent: fromAgent, TargetAgent: target,
				Intent: envelope.IntentModifyTask, Content: content,
			},
			Event:      event,
			Confidence: confidence,
		},
		Outcome: envelope.OutcomeInProgress,
	}
	if err := PublishToAgent(ctx, b, target, r); err != nil {
		return err
	}
	return PublishToFrontend(ctx, b, r)
}

// PublishCompletion emits a terminal TaskResult (event=complete,
// outcome=success) to both target's channel and the frontend.
func PublishCompletion(ctx context.Context, b bus.Bus, fromAgent, taskID, content, target string, confidence float64, contributing []string) error {
	r := envelope.TaskResult{
		Task: envelope.Task{
			Base: envelope.Base{
				Type: envelope.VariantTaskResult, Timestamp: envelope.Now(),
				TaskID: taskID, Agent: fromAgent, TargetAgent: target,
				Intent: envelope.IntentModifyTask, Content: content,
			},
			Event:      envelope.EventComplete,
			Confidence: confidence,
		},
		Outcome:            envelope.OutcomeSuccess,
		ContributingAgents: contributing,
	}
	if target != "" {
		if err := PublishToAgent(ctx, b, target, r); err != nil {
			return err
		}
	}
	return PublishToFrontend(ctx, b, r)
}

// PublishError emits a terminal TaskResult (event=fail, outcome=failure,
// confidence=0). target is optional; when empty the error is only
// broadcast to the frontend.
func PublishError(ctx context.Context, b bus.Bus, fromAgent, taskID, content, target string) error {
	r := envelope.TaskResult{
		Task: envelope.Task{
			Base: envelope.Base{
				Type: envelope.VariantTaskResult, Timestamp: envelope.Now(),
				TaskID: taskID, Agent: fromAgent, TargetAgent: target,
				Intent: envelope.IntentModifyTask, Content: content,
			},
			Event:      envelope.EventFail,
			Confidence: 0,
		},
		Outcome: envelope.OutcomeFailure,
	}
	if target != "" {
		if err := PublishToAgent(ctx, b, target, r); err != nil {
			return err
		}
	}
	return PublishToFrontend(ctx, b, r)
}
