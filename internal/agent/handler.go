// Package agent implements the per-agent runtime lifecycle: the
// created -> initialized -> running -> stopping -> stopped state
// machine, the heartbeat loop, the listener loop, and per-envelope
// dispatch. Concrete agents (proposer, critic, orchestrator, ...) supply
// a Handler; Runtime supplies everything ambient around it.
package agent

import (
	"context"

	"github.com/nugget/agentfabric/internal/envelope"
)

// Handler implements the behavior of one agent kind. A concrete agent
// only implements the methods it cares about by embedding BaseHandler,
// which no-ops the rest. This replaces the source's inheritance-based
// agent base class with composition, per the REDESIGN note: Go has no
// base classes, and a Handler-interface-plus-embedding gets the same
// "only override what you need" ergonomics without one.
type Handler interface {
	HandleStartTask(ctx context.Context, rt *Runtime, t envelope.Task) error
	HandleModifyTask(ctx context.Context, rt *Runtime, e envelope.Envelope) error
	HandleChatMessage(ctx context.Context, rt *Runtime, m envelope.Message) error
	HandleCheckStatus(ctx context.Context, rt *Runtime, e envelope.Envelope) error
	HandleToolResponse(ctx context.Context, rt *Runtime, r envelope.TaskResult) error
	HandleSystemMessage(ctx context.Context, rt *Runtime, m envelope.Message) error
	HandleOrchestrationMessage(ctx context.Context, rt *Runtime, m envelope.Message) error
	HandleUnknown(ctx context.Context, rt *Runtime, e envelope.Envelope) error
}

// BaseHandler gives every method of Handler a no-op default. Concrete
// agents embed BaseHandler and override only the handlers they need.
type BaseHandler struct{}

func (BaseHandler) HandleStartTask(ctx context.Context, rt *Runtime, t envelope.Task) error {
	return nil
}

func (BaseHandler) HandleModifyTask(ctx context.Context, rt *Runtime, e envelope.Envelope) error {
	return nil
}

func (BaseHandler) HandleChatMessage(ctx context.Context, rt *Runtime, m envelope.Message) error {
	return nil
}

func (BaseHandler) HandleCheckStatus(ctx context.Context, rt *Runtime, e envelope.Envelope) error {
	return nil
}

func (BaseHandler) HandleToolResponse(ctx context.Context, rt *Runtime, r envelope.TaskResult) error {
	return nil
}

func (BaseHandler) HandleSystemMessage(ctx context.Context, rt *Runtime, m envelope.Message) error {
	return nil
}

func (BaseHandler) HandleOrchestrationMessage(ctx context.Context, rt *Runtime, m envelope.Message) error {
	return nil
}

func (BaseHandler) HandleUnknown(ctx context.Context, rt *Runtime, e envelope.Envelope) error {
	return nil
}
