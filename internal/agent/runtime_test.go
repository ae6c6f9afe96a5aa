package agent

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/nugget/agentfabric/internal/bus"
	"github.com/nugget/agentfabric/internal/envelope"
)

type recordingHandler struct {
	BaseHandler
	startTaskCount atomic.Int32
	chatCount      atomic.Int32
}

func (h *recordingHandler) HandleStartTask(ctx context.Context, rt *Runtime, t envelope.Task) error {
	h.startTaskCount.Add(1)
	return nil
}

func (h *recordingHandler) HandleChatMessage(ctx context.Context, rt *Runtime, m envelope.Message) error {
	h.chatCount.Add(1)
	return nil
}

func TestRuntimeDispatchesByIntent(t *testing.T) {
	b := bus.NewInMem()
	defer b.Close()

	h := &recordingHandler{}
	rt := NewRuntime("proposer", b, h, nil)
	rt.HeartbeatInterval = 10 * time.Millisecond

	ctx, cancel := context.WithCancel(context.Background())
	errCh := make(chan error, 1)
	go func() { errCh <- rt.Start(ctx) }()

	// Give the listener loop a moment to subscribe.
	time.Sleep(20 * time.Millisecond)

	task := envelope.Task{
		Base: envelope.Base{
			Type: envelope.VariantTask, Timestamp: envelope.Now(),
			TaskID: "t-1", Agent: "user", Intent: envelope.IntentStartTask,
		},
		Event: envelope.EventPlan,
	}
	data, err := envelope.Encode(task)
	if err != nil {
		t.Fatalf("Encode: %v", err)
	}
	if err := b.Publish(ctx, ChannelFor("proposer"), data); err != nil {
		t.Fatalf("Publish: %v", err)
	}

	msg := envelope.Message{Base: envelope.Base{
		Type: envelope.VariantMessage, Timestamp: envelope.Now(),
		Agent: "user", Intent: envelope.IntentChat, Content: "hi",
	}}
	data, err = envelope.Encode(msg)
	if err != nil {
		t.Fatalf("Encode: %v", err)
	}
	if err := b.Publish(ctx, ChannelFor("proposer"), data); err != nil {
		t.Fatalf("Publish: %v", err)
	}

	deadline := time.After(time.Second)
	for h.startTaskCount.Load() == 0 || h.chatCount.Load() == 0 {
		select {
		case <-deadline:
			t.Fatalf("handlers not invoked: startTask=%d chat=%d", h.startTaskCount.Load(), h.chatCount.Load())
		case <-time.After(5 * time.Millisecond):
		}
	}

	cancel()
	select {
	case <-errCh:
	case <-time.After(time.Second):
		t.Fatal("runtime did not stop after context cancellation")
	}
}

func TestLifecycleTransitionsRejectInvalidMoves(t *testing.T) {
	b := bus.NewInMem()
	defer b.Close()
	rt := NewRuntime("critic", b, &BaseHandler{}, nil)

	if err := rt.transition(StateRunning); err == nil {
		t.Fatal("expected created -> running to be rejected")
	}
	if err := rt.transition(StateInitialized); err != nil {
		t.Fatalf("created -> initialized: %v", err)
	}
	if err := rt.transition(StateInitialized); err == nil {
		t.Fatal("expected initialized -> initialized to be rejected")
	}
}

func TestHeartbeatMaintainsBusState(t *testing.T) {
	b := bus.NewInMem()
	defer b.Close()
	rt := NewRuntime("orchestrator", b, &BaseHandler{}, nil)
	rt.HeartbeatInterval = 10 * time.Millisecond

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go rt.Start(ctx)

	deadline := time.After(time.Second)
	for {
		if _, ok, _ := b.GetState(ctx, "orchestrator_heartbeat"); ok {
			break
		}
		select {
		case <-deadline:
			t.Fatal("heartbeat key never appeared")
		case <-time.After(5 * time.Millisecond):
		}
	}
}
