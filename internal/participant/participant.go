// Package participant implements a generic debate-participant Handler:
// the plumbing every proposer/critic-style agent shares (acknowledge a
// task, optionally call a tool, report completion to the orchestrator).
// Content generation — what a proposer actually proposes, what a critic
// actually critiques — is model-driven and out of this core's scope; a
// deployment supplies it by replacing Respond.
package participant

import (
	"context"
	"log/slog"

	"github.com/nugget/agentfabric/internal/agent"
	"github.com/nugget/agentfabric/internal/envelope"
	"github.com/nugget/agentfabric/internal/toolcore"
)

// RespondFunc produces an agent's contribution for a task. The default,
// DefaultRespond, acknowledges the task without generating any real
// content — a deployment wires in its own model-backed RespondFunc.
type RespondFunc func(ctx context.Context, task envelope.Task) (string, error)

// DefaultRespond is the zero-intelligence stand-in: it always succeeds
// and echoes the task's content back, so the runtime and bus wiring can
// be exercised end to end without a model in the loop.
func DefaultRespond(ctx context.Context, task envelope.Task) (string, error) {
	return task.Content, nil
}

// Participant is an agent.Handler for a proposer/critic-style debate
// role: it reacts to start_task and modify_task by calling Respond and
// reporting the result back to the orchestrator, and to tool_response by
// resolving the matching pending tool call on its Tools client.
type Participant struct {
	agent.BaseHandler

	Name    string
	Logger  *slog.Logger
	Tools   *toolcore.Client
	Respond RespondFunc
}

// New constructs a Participant. respond may be nil, in which case
// DefaultRespond is used.
func New(name string, tools *toolcore.Client, logger *slog.Logger, respond RespondFunc) *Participant {
	if logger == nil {
		logger = slog.Default()
	}
	if respond == nil {
		respond = DefaultRespond
	}
	return &Participant{Name: name, Logger: logger, Tools: tools, Respond: respond}
}

func (p *Participant) HandleStartTask(ctx context.Context, rt *agent.Runtime, t envelope.Task) error {
	return p.respondAndComplete(ctx, rt, t)
}

func (p *Participant) HandleModifyTask(ctx context.Context, rt *agent.Runtime, e envelope.Envelope) error {
	t, ok := e.(envelope.Task)
	if !ok {
		return nil
	}
	return p.respondAndComplete(ctx, rt, t)
}

func (p *Participant) HandleChatMessage(ctx context.Context, rt *agent.Runtime, m envelope.Message) error {
	content, err := p.Respond(ctx, envelope.Task{Base: m.Base})
	if err != nil {
		return agent.PublishError(ctx, rt.Bus, p.Name, m.TaskID, err.Error(), m.Agent)
	}
	return agent.PublishCompletion(ctx, rt.Bus, p.Name, m.TaskID, content, m.Agent, 1.0, nil)
}

func (p *Participant) HandleToolResponse(ctx context.Context, rt *agent.Runtime, r envelope.TaskResult) error {
	if p.Tools == nil {
		return nil
	}
	p.Tools.Resolve(r)
	return nil
}

// respondAndComplete drives the debate table from the agent side: a
// plan/critique/refine step is only ever transitional, so it reports
// back as in_progress via PublishUpdate and lets the orchestrator's
// workflow table decide what comes next. Only a conclude step is
// terminal, so only it reports back via PublishCompletion.
func (p *Participant) respondAndComplete(ctx context.Context, rt *agent.Runtime, t envelope.Task) error {
	content, err := p.Respond(ctx, t)
	if err != nil {
		p.Logger.Warn("participant: respond failed", "task_id", t.TaskID, "error", err)
		return agent.PublishError(ctx, rt.Bus, p.Name, t.TaskID, err.Error(), t.Agent)
	}
	if t.Event == envelope.EventConclude {
		return agent.PublishCompletion(ctx, rt.Bus, p.Name, t.TaskID, content, t.Agent, t.Confidence, nil)
	}
	return agent.PublishUpdate(ctx, rt.Bus, p.Name, t.TaskID, t.Event, content, t.Agent, t.Confidence)
}
