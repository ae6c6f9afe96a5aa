package bus

import (
	"context"
	"testing"
	"time"
)

// TestInMemPublishSubscribe exercises the in-process Bus directly; the
// Redis-backed implementation has no tests in this package.
func TestInMemPublishSubscribe(t *testing.T) {
	b := NewInMem()
	defer b.Close()
	ctx := context.Background()

	sub, err := b.Subscribe(ctx, "agent_channel")
	if err != nil {
		t.Fatalf("Subscribe: %v", err)
	}
	defer b.Unsubscribe(sub)

	if err := b.Publish(ctx, "agent_channel", []byte("hello")); err != nil {
		t.Fatalf("Publish: %v", err)
	}

	select {
	case msg := <-sub.C:
		if string(msg) != "hello" {
			t.Errorf("got %q, want %q", msg, "hello")
		}
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for message")
	}
}

func TestInMemTopicsDisjoint(t *testing.T) {
	b := NewInMem()
	defer b.Close()
	ctx := context.Background()

	subA, _ := b.Subscribe(ctx, "topic_a")
	defer b.Unsubscribe(subA)
	subB, _ := b.Subscribe(ctx, "topic_b")
	defer b.Unsubscribe(subB)

	if err := b.Publish(ctx, "topic_a", []byte("only a")); err != nil {
		t.Fatalf("Publish: %v", err)
	}

	select {
	case msg := <-subA.C:
		if string(msg) != "only a" {
			t.Errorf("got %q", msg)
		}
	case <-time.After(time.Second):
		t.Fatal("topic_a subscriber never received its message")
	}

	select {
	case msg := <-subB.C:
		t.Fatalf("topic_b subscriber unexpectedly received %q", msg)
	case <-time.After(50 * time.Millisecond):
	}
}

func TestInMemStateTTLExpiry(t *testing.T) {
	b := NewInMem()
	defer b.Close()
	ctx := context.Background()

	if err := b.SetState(ctx, "proposer_heartbeat", []byte("alive"), 30*time.Millisecond); err != nil {
		t.Fatalf("SetState: %v", err)
	}

	val, ok, err := b.GetState(ctx, "proposer_heartbeat")
	if err != nil || !ok || string(val) != "alive" {
		t.Fatalf("GetState before expiry: val=%q ok=%v err=%v", val, ok, err)
	}

	time.Sleep(80 * time.Millisecond)

	_, ok, err = b.GetState(ctx, "proposer_heartbeat")
	if err != nil {
		t.Fatalf("GetState after expiry: %v", err)
	}
	if ok {
		t.Fatal("expected key to have expired")
	}
}

func TestInMemStateNoTTLNeverExpires(t *testing.T) {
	b := NewInMem()
	defer b.Close()
	ctx := context.Background()

	if err := b.SetState(ctx, "system_ready", []byte("true"), 0); err != nil {
		t.Fatalf("SetState: %v", err)
	}

	time.Sleep(20 * time.Millisecond)

	val, ok, err := b.GetState(ctx, "system_ready")
	if err != nil || !ok || string(val) != "true" {
		t.Fatalf("GetState: val=%q ok=%v err=%v", val, ok, err)
	}
}

func TestInMemPublishNeverBlocksOnSlowSubscriber(t *testing.T) {
	b := NewInMem()
	defer b.Close()
	ctx := context.Background()

	sub, _ := b.Subscribe(ctx, "frontend_channel")
	defer b.Unsubscribe(sub)

	done := make(chan struct{})
	go func() {
		defer close(done)
		for i := 0; i < subscriberBufferSize*2; i++ {
			if err := b.Publish(ctx, "frontend_channel", []byte("x")); err != nil {
				t.Errorf("Publish: %v", err)
			}
		}
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Publish blocked past a slow subscriber's buffer")
	}
}

func TestInMemUnsubscribeClosesChannel(t *testing.T) {
	b := NewInMem()
	defer b.Close()
	ctx := context.Background()

	sub, _ := b.Subscribe(ctx, "t")
	b.Unsubscribe(sub)

	select {
	case _, ok := <-sub.C:
		if ok {
			t.Fatal("expected channel to be closed")
		}
	case <-time.After(time.Second):
		t.Fatal("channel was never closed")
	}
}
