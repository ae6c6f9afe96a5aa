package toolcore

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os/exec"
	"time"

	"github.com/google/uuid"

	"github.com/nugget/agentfabric/internal/agent"
	"github.com/nugget/agentfabric/internal/bus"
	"github.com/nugget/agentfabric/internal/envelope"
)

// Name is the tool core's canonical agent identity on the bus: the
// "agent" field on every result it publishes.
const Name = "toolcore"

// DefaultPollInterval matches the §4.6 default of 1 second.
const DefaultPollInterval = time.Second

// maxPollAttempts bounds retries on a poll error before the execution is
// given up as failed, per the "bounded count" requirement in §4.6.
const maxPollAttempts = 10

// SubmitRequest is the parsed form of a tool invocation. Submissions
// arrive only as tool_request bus envelopes on the tool core's own
// channel (see Handler); the tool core serves no HTTP submission API.
type SubmitRequest struct {
	TaskID          string
	RequestingAgent string
	ToolName        string
	Params          map[string]any
	DryRun          bool
}

// SubmitResponse is what the submission path returns synchronously.
type SubmitResponse struct {
	Status           Status            `json:"status"`
	ExecutionID      string            `json:"execution_id,omitempty"`
	DryRunStatus     string            `json:"dry_run_status,omitempty"`
	ValidationErrors []ValidationError `json:"validation_errors,omitempty"`
	Reason           string            `json:"reason,omitempty"`
}

// Core runs the submission path, background execution, sandbox poll
// loop, and result publication described in §4.6.
type Core struct {
	Registry *Registry
	Bus      bus.Bus
	Sandbox  *SandboxClient
	Logger   *slog.Logger

	PollInterval time.Duration

	pending *pendingTable
}

// New constructs a Core. sandbox may be nil if python_sandbox is never
// registered.
func New(registry *Registry, b bus.Bus, sandbox *SandboxClient, logger *slog.Logger) *Core {
	if logger == nil {
		logger = slog.Default()
	}
	return &Core{
		Registry:     registry,
		Bus:          b,
		Sandbox:      sandbox,
		Logger:       logger,
		PollInterval: DefaultPollInterval,
		pending:      newPendingTable(),
	}
}

// Submit runs the submission path from §4.6: schema validation, dry-run
// short-circuit, then background handoff. It never blocks on the tool's
// actual execution.
func (c *Core) Submit(ctx context.Context, req SubmitRequest) SubmitResponse {
	tool, ok := c.Registry.Lookup(req.ToolName)
	if !ok {
		return SubmitResponse{Status: StatusFailed, Reason: fmt.Sprintf("unknown tool %q", req.ToolName)}
	}
	if !tool.Active {
		return SubmitResponse{Status: StatusFailed, Reason: fmt.Sprintf("tool %q is not active", req.ToolName)}
	}

	if errs := tool.Validate(req.Params); len(errs) > 0 {
		return SubmitResponse{Status: StatusValidationError, ValidationErrors: errs}
	}

	if req.DryRun {
		return SubmitResponse{Status: StatusSuccess, DryRunStatus: "valid"}
	}

	executionID := uuid.NewString()
	c.pending.put(&PendingExecution{
		ExecutionID:     executionID,
		TaskID:          req.TaskID,
		RequestingAgent: req.RequestingAgent,
		ToolName:        req.ToolName,
		StartedAt:       time.Now(),
	})

	go c.execute(context.WithoutCancel(ctx), executionID, tool, req)

	return SubmitResponse{Status: StatusAcknowledged, ExecutionID: executionID}
}

// execute runs one background execution activity: local invocation,
// sandbox submission, or script spawn, per §4.6.
func (c *Core) execute(ctx context.Context, executionID string, tool Tool, req SubmitRequest) {
	switch tool.Kind {
	case KindLocal:
		result := tool.Local(ctx, req.Params)
		c.pending.remove(executionID)
		c.publishResult(ctx, req, result)

	case KindScript:
		result := c.runScript(ctx, tool, req.Params)
		c.pending.remove(executionID)
		c.publishResult(ctx, req, result)

	case KindSandbox:
		if c.Sandbox == nil {
			c.pending.remove(executionID)
			c.publishResult(ctx, req, Result{Status: StatusError, Error: "sandbox not configured"})
			return
		}
		sandboxID, err := c.Sandbox.Submit(ctx, req.Params)
		if err != nil {
			c.pending.remove(executionID)
			c.publishResult(ctx, req, Result{Status: StatusError, Error: err.Error()})
			return
		}
		// Re-key the pending entry under the sandbox's own execution id
		// so the poll loop can address it directly.
		c.pending.remove(executionID)
		c.pending.put(&PendingExecution{
			ExecutionID:     sandboxID,
			TaskID:          req.TaskID,
			RequestingAgent: req.RequestingAgent,
			ToolName:        req.ToolName,
			StartedAt:       time.Now(),
		})

	default:
		c.pending.remove(executionID)
		c.publishResult(ctx, req, Result{Status: StatusError, Error: fmt.Sprintf("unhandled tool kind %q", tool.Kind)})
	}
}

// runScript spawns the interpreter with the script path, pipes params as
// JSON on stdin, reads JSON from stdout, and treats a non-zero exit as
// failure.
func (c *Core) runScript(ctx context.Context, tool Tool, params map[string]any) Result {
	interp := tool.ScriptInterp
	if interp == "" {
		interp = "python3"
	}

	stdin, err := json.Marshal(params)
	if err != nil {
		return Result{Status: StatusError, Error: fmt.Sprintf("marshal script params: %v", err)}
	}

	cmd := exec.CommandContext(ctx, interp, tool.ScriptPath)
	cmd.Stdin = bytes.NewReader(stdin)
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		return Result{Status: StatusError, Error: fmt.Sprintf("script %s failed: %v: %s", tool.Name, err, stderr.String())}
	}

	var result Result
	if err := json.Unmarshal(stdout.Bytes(), &result); err != nil {
		return Result{Status: StatusError, Error: fmt.Sprintf("script %s produced invalid JSON: %v", tool.Name, err)}
	}
	return result
}

// publishResult emits the TaskResult described in §4.6's "Result
// publication" to both the requesting agent's channel and the frontend.
func (c *Core) publishResult(ctx context.Context, req SubmitRequest, result Result) {
	event := envelope.EventToolComplete
	outcome := envelope.OutcomeSuccess
	content := ""

	if result.Status == StatusSuccess {
		payload, err := json.Marshal(result.Data)
		if err != nil {
			payload = []byte(`{}`)
		}
		content = string(payload)
	} else {
		event = envelope.EventFail
		outcome = envelope.OutcomeFailure
		content = result.Error
		if content == "" {
			content = "tool execution failed"
		}
	}

	r := envelope.TaskResult{
		Task: envelope.Task{
			Base: envelope.Base{
				Type: envelope.VariantTaskResult, Timestamp: envelope.Now(),
				TaskID: req.TaskID, Agent: Name, TargetAgent: req.RequestingAgent,
				Intent: envelope.IntentToolResponse, Content: content,
			},
			Event:      event,
			Confidence: 0.9,
			Metadata:   map[string]any{"tool_name": req.ToolName},
		},
		Outcome: outcome,
	}

	if err := agent.PublishToAgent(ctx, c.Bus, req.RequestingAgent, r); err != nil {
		c.Logger.Error("publish tool result to requesting agent failed", "error", err, "agent", req.RequestingAgent)
	}
	if err := agent.PublishToFrontend(ctx, c.Bus, r); err != nil {
		c.Logger.Error("publish tool result to frontend failed", "error", err)
	}
}

// RunSandboxPollLoop is the single background activity per §5 that
// inspects the pending table every PollInterval. It runs until ctx is
// cancelled.
func (c *Core) RunSandboxPollLoop(ctx context.Context) {
	interval := c.PollInterval
	if interval <= 0 {
		interval = DefaultPollInterval
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			c.pollOnce(ctx)
		}
	}
}

func (c *Core) pollOnce(ctx context.Context) {
	if c.Sandbox == nil {
		return
	}
	for _, entry := range c.pending.snapshot() {
		outcome, result, err := c.Sandbox.Poll(ctx, entry.ExecutionID)
		req := SubmitRequest{TaskID: entry.TaskID, RequestingAgent: entry.RequestingAgent, ToolName: entry.ToolName}

		switch outcome {
		case PollPending:
			// still running; nothing to do this tick.
		case PollDone:
			c.pending.remove(entry.ExecutionID)
			c.publishResult(ctx, req, result)
		case PollLost:
			c.pending.remove(entry.ExecutionID)
			c.publishResult(ctx, req, Result{Status: StatusError, Error: "execution result not found"})
		case PollError:
			attempts := c.pending.incrementAttempts(entry.ExecutionID)
			c.Logger.Warn("sandbox poll error", "execution_id", entry.ExecutionID, "attempt", attempts, "error", err)
			if attempts >= maxPollAttempts {
				c.pending.remove(entry.ExecutionID)
				c.publishResult(ctx, req, Result{Status: StatusError, Error: fmt.Sprintf("sandbox unreachable after %d attempts: %v", attempts, err)})
			}
		}
	}
}
