package agent

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/nugget/agentfabric/internal/bus"
	"github.com/nugget/agentfabric/internal/envelope"
)

// State is a position in the agent lifecycle.
type State int

const (
	StateCreated State = iota
	StateInitialized
	StateRunning
	StateStopping
	StateStopped
)

func (s State) String() string {
	switch s {
	case StateCreated:
		return "created"
	case StateInitialized:
		return "initialized"
	case StateRunning:
		return "running"
	case StateStopping:
		return "stopping"
	case StateStopped:
		return "stopped"
	default:
		return "unknown"
	}
}

// validTransitions enumerates the only legal lifecycle moves.
var validTransitions = map[State][]State{
	StateCreated:     {StateInitialized},
	StateInitialized: {StateRunning},
	StateRunning:     {StateStopping},
	StateStopping:    {StateStopped},
	StateStopped:     {},
}

// DefaultGracePeriod bounds how long Stop waits for in-flight handler
// goroutines before giving up. Go has no forced-kill for a goroutine, so
// past this bound Stop returns anyway and logs what is still running.
const DefaultGracePeriod = 5 * time.Second

// DefaultHeartbeatInterval and DefaultHeartbeatTTL govern the keyed
// "<agent>_heartbeat" bus state every running agent maintains so the
// coordinator can tell it apart from a crashed or unstarted one.
const (
	DefaultHeartbeatInterval = 10 * time.Second
	DefaultHeartbeatTTL      = 30 * time.Second
)

// Runtime owns one agent's lifecycle: the heartbeat loop, the listener
// loop, and dispatch of each inbound envelope to its Handler. Concrete
// agent behavior lives entirely in the Handler; Runtime is the same for
// every agent kind.
type Runtime struct {
	Name    string
	Bus     bus.Bus
	Handler Handler
	Logger  *slog.Logger

	InboundTopic      string
	HeartbeatInterval time.Duration
	HeartbeatTTL      time.Duration
	GracePeriod       time.Duration

	mu     sync.Mutex
	state  State
	cancel context.CancelFunc
	done   chan struct{}

	inflight sync.WaitGroup
}

// NewRuntime constructs a Runtime in StateCreated. Call Start to bring it
// to StateRunning.
func NewRuntime(name string, b bus.Bus, h Handler, logger *slog.Logger) *Runtime {
	if logger == nil {
		logger = slog.Default()
	}
	return &Runtime{
		Name:              name,
		Bus:               b,
		Handler:           h,
		Logger:            logger.With("agent", name),
		InboundTopic:      ChannelFor(name),
		HeartbeatInterval: DefaultHeartbeatInterval,
		HeartbeatTTL:      DefaultHeartbeatTTL,
		GracePeriod:       DefaultGracePeriod,
		state:             StateCreated,
	}
}

func (rt *Runtime) transition(next State) error {
	rt.mu.Lock()
	defer rt.mu.Unlock()
	for _, allowed := range validTransitions[rt.state] {
		if allowed == next {
			rt.state = next
			return nil
		}
	}
	return fmt.Errorf("agent: invalid lifecycle transition %s -> %s", rt.state, next)
}

// State returns the runtime's current lifecycle state.
func (rt *Runtime) State() State {
	rt.mu.Lock()
	defer rt.mu.Unlock()
	return rt.state
}

// Start initializes the runtime and launches the heartbeat and listener
// loops. It blocks until ctx is cancelled or a loop returns a fatal
// error, so callers typically run it in its own goroutine or as the last
// call in main.
func (rt *Runtime) Start(ctx context.Context) error {
	if err := rt.transition(StateInitialized); err != nil {
		return err
	}
	if err := rt.transition(StateRunning); err != nil {
		return err
	}

	runCtx, cancel := context.WithCancel(ctx)
	rt.mu.Lock()
	rt.cancel = cancel
	rt.done = make(chan struct{})
	rt.mu.Unlock()
	defer close(rt.done)

	g, gctx := errgroup.WithContext(runCtx)
	g.Go(func() error { return rt.heartbeatLoop(gctx) })
	g.Go(func() error { return rt.listenLoop(gctx) })

	err := g.Wait()
	_ = rt.transition(StateStopping)
	_ = rt.transition(StateStopped)
	return err
}

// Stop signals the runtime to shut down and waits up to GracePeriod for
// in-flight handler goroutines to finish.
func (rt *Runtime) Stop() {
	rt.mu.Lock()
	cancel := rt.cancel
	rt.mu.Unlock()
	if cancel != nil {
		cancel()
	}

	waitDone := make(chan struct{})
	go func() {
		rt.inflight.Wait()
		close(waitDone)
	}()

	select {
	case <-waitDone:
	case <-time.After(rt.GracePeriod):
		rt.Logger.Warn("stop: grace period elapsed with handlers still in flight")
	}
}

func (rt *Runtime) heartbeatLoop(ctx context.Context) error {
	ticker := time.NewTicker(rt.HeartbeatInterval)
	defer ticker.Stop()

	beat := func() {
		if err := rt.Bus.SetState(ctx, rt.Name+"_heartbeat", []byte("alive"), rt.HeartbeatTTL); err != nil {
			rt.Logger.Warn("heartbeat: failed to publish", "error", err)
		}
	}
	beat()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			beat()
		}
	}
}

func (rt *Runtime) listenLoop(ctx context.Context) error {
	sub, err := rt.Bus.Subscribe(ctx, rt.InboundTopic)
	if err != nil {
		return fmt.Errorf("agent: subscribe %s: %w", rt.InboundTopic, err)
	}
	defer rt.Bus.Unsubscribe(sub)

	for {
		select {
		case <-ctx.Done():
			return nil
		case payload, ok := <-sub.C:
			if !ok {
				return nil
			}
			env, err := envelope.Decode(payload)
			if err != nil {
				rt.Logger.Warn("listen: decode_error", "error", err)
				continue
			}

			rt.inflight.Add(1)
			go rt.dispatchOne(ctx, env)
		}
	}
}

// dispatchOne runs a single envelope's handler in its own goroutine: one
// activity per inbound envelope being handled. A panic is recovered,
// logged, and reported as publish_error best-effort rather than taking
// down the runtime.
func (rt *Runtime) dispatchOne(ctx context.Context, env envelope.Envelope) {
	defer rt.inflight.Done()
	defer func() {
		if r := recover(); r != nil {
			rt.Logger.Error("agent_handler_crash", "panic", r, "intent", env.Meta().Intent)
			_ = PublishError(ctx, rt.Bus, rt.Name, env.Meta().TaskID, fmt.Sprintf("handler panic: %v", r), "")
		}
	}()

	if err := rt.dispatch(ctx, env); err != nil {
		rt.Logger.Warn("handler error", "intent", env.Meta().Intent, "error", err)
		_ = PublishError(ctx, rt.Bus, rt.Name, env.Meta().TaskID, err.Error(), "")
	}
}

func (rt *Runtime) dispatch(ctx context.Context, env envelope.Envelope) error {
	switch env.Meta().Intent {
	case envelope.IntentStartTask:
		t, ok := env.(envelope.Task)
		if !ok {
			return rt.Handler.HandleUnknown(ctx, rt, env)
		}
		return rt.Handler.HandleStartTask(ctx, rt, t)
	case envelope.IntentModifyTask:
		return rt.Handler.HandleModifyTask(ctx, rt, env)
	case envelope.IntentChat:
		m, ok := env.(envelope.Message)
		if !ok {
			return rt.Handler.HandleUnknown(ctx, rt, env)
		}
		return rt.Handler.HandleChatMessage(ctx, rt, m)
	case envelope.IntentCheckStatus:
		return rt.Handler.HandleCheckStatus(ctx, rt, env)
	case envelope.IntentToolResponse:
		r, ok := env.(envelope.TaskResult)
		if !ok {
			return rt.Handler.HandleUnknown(ctx, rt, env)
		}
		return rt.Handler.HandleToolResponse(ctx, rt, r)
	case envelope.IntentSystem:
		m, ok := env.(envelope.Message)
		if !ok {
			return rt.Handler.HandleUnknown(ctx, rt, env)
		}
		return rt.Handler.HandleSystemMessage(ctx, rt, m)
	case envelope.IntentOrchestration:
		m, ok := env.(envelope.Message)
		if !ok {
			return rt.Handler.HandleUnknown(ctx, rt, env)
		}
		return rt.Handler.HandleOrchestrationMessage(ctx, rt, m)
	default:
		return rt.Handler.HandleUnknown(ctx, rt, env)
	}
}
