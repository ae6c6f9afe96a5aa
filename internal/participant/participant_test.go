package participant

import (
	"context"
	"testing"
	"time"

	"github.com/nugget/agentfabric/internal/agent"
	"github.com/nugget/agentfabric/internal/bus"
	"github.com/nugget/agentfabric/internal/envelope"
	"github.com/nugget/agentfabric/internal/toolcore"
)

func TestHandleStartTaskPublishesCompletionOnConclude(t *testing.T) {
	b := bus.NewInMem()
	defer b.Close()
	ctx := context.Background()

	sub, err := b.Subscribe(ctx, agent.ChannelFor("orchestrator"))
	if err != nil {
		t.Fatalf("Subscribe: %v", err)
	}
	defer b.Unsubscribe(sub)

	p := New("proposer", toolcore.NewClient("proposer", b), nil, nil)
	rt := agent.NewRuntime("proposer", b, p, nil)

	task := envelope.Task{Base: envelope.Base{
		TaskID: "t1", Agent: "orchestrator", TargetAgent: "proposer",
		Intent: envelope.IntentStartTask, Content: "final plan",
	}, Event: envelope.EventConclude}
	if err := p.HandleStartTask(ctx, rt, task); err != nil {
		t.Fatalf("HandleStartTask: %v", err)
	}

	select {
	case raw := <-sub.C:
		env, err := envelope.Decode(raw)
		if err != nil {
			t.Fatalf("decode: %v", err)
		}
		tr, ok := env.(envelope.TaskResult)
		if !ok {
			t.Fatalf("expected a TaskResult, got %T", env)
		}
		if tr.Content != "final plan" || tr.Outcome != envelope.OutcomeSuccess || tr.Event != envelope.EventComplete {
			t.Fatalf("unexpected completion: %+v", tr)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for completion")
	}
}

func TestHandleStartTaskPublishesUpdateForTransitionalStep(t *testing.T) {
	b := bus.NewInMem()
	defer b.Close()
	ctx := context.Background()

	sub, err := b.Subscribe(ctx, agent.ChannelFor("orchestrator"))
	if err != nil {
		t.Fatalf("Subscribe: %v", err)
	}
	defer b.Unsubscribe(sub)

	p := New("proposer", toolcore.NewClient("proposer", b), nil, nil)
	rt := agent.NewRuntime("proposer", b, p, nil)

	task := envelope.Task{Base: envelope.Base{
		TaskID: "t1", Agent: "orchestrator", TargetAgent: "proposer",
		Intent: envelope.IntentStartTask, Content: "draft a plan",
	}, Event: envelope.EventPlan}
	if err := p.HandleStartTask(ctx, rt, task); err != nil {
		t.Fatalf("HandleStartTask: %v", err)
	}

	select {
	case raw := <-sub.C:
		env, err := envelope.Decode(raw)
		if err != nil {
			t.Fatalf("decode: %v", err)
		}
		tr, ok := env.(envelope.TaskResult)
		if !ok {
			t.Fatalf("expected a TaskResult, got %T", env)
		}
		if tr.Content != "draft a plan" || tr.Outcome != envelope.OutcomeInProgress || tr.Event != envelope.EventPlan {
			t.Fatalf("unexpected update: %+v", tr)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for update")
	}
}

func TestHandleStartTaskPublishesErrorWhenRespondFails(t *testing.T) {
	b := bus.NewInMem()
	defer b.Close()
	ctx := context.Background()

	sub, err := b.Subscribe(ctx, agent.ChannelFor("orchestrator"))
	if err != nil {
		t.Fatalf("Subscribe: %v", err)
	}
	defer b.Unsubscribe(sub)

	p := New("critic", nil, nil, func(ctx context.Context, task envelope.Task) (string, error) {
		return "", errBoom
	})
	rt := agent.NewRuntime("critic", b, p, nil)

	task := envelope.Task{Base: envelope.Base{
		TaskID: "t1", Agent: "orchestrator", TargetAgent: "critic",
		Intent: envelope.IntentStartTask, Content: "critique this",
	}}
	if err := p.HandleStartTask(ctx, rt, task); err != nil {
		t.Fatalf("HandleStartTask: %v", err)
	}

	select {
	case raw := <-sub.C:
		env, _ := envelope.Decode(raw)
		tr := env.(envelope.TaskResult)
		if tr.Outcome != envelope.OutcomeFailure {
			t.Fatalf("expected a failure outcome, got %+v", tr)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for error result")
	}
}

func TestHandleToolResponseResolvesPendingCall(t *testing.T) {
	b := bus.NewInMem()
	defer b.Close()
	ctx := context.Background()

	client := toolcore.NewClient("proposer", b)
	p := New("proposer", client, nil, nil)
	rt := agent.NewRuntime("proposer", b, p, nil)

	var succeeded string
	if _, err := client.Invoke(ctx, "t1", "echo", map[string]any{"msg": "hi"},
		func(content string) { succeeded = content },
		func(content string) {},
	); err != nil {
		t.Fatalf("Invoke: %v", err)
	}

	result := envelope.TaskResult{
		Task: envelope.Task{Base: envelope.Base{
			TaskID: "t1", Agent: toolcore.Name, Intent: envelope.IntentToolResponse, Content: "done",
		}},
		Outcome: envelope.OutcomeSuccess,
	}
	if err := p.HandleToolResponse(ctx, rt, result); err != nil {
		t.Fatalf("HandleToolResponse: %v", err)
	}
	if succeeded != "done" {
		t.Fatalf("onSuccess content = %q, want %q", succeeded, "done")
	}
}

type boomErr struct{}

func (boomErr) Error() string { return "deliberate failure" }

var errBoom = boomErr{}
