// Package toolcore implements the tool execution core: local tools, the
// python_sandbox external executor, registered tools looked up by name,
// and the submission/background-execution/result-publication pipeline
// shared by all three kinds.
package toolcore

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync"

	"github.com/santhosh-tekuri/jsonschema/v6"
)

// Status is the outcome of a tool invocation, reported on the result
// envelope and in the synchronous acknowledgment.
type Status string

const (
	StatusSuccess         Status = "success"
	StatusError           Status = "error"
	StatusValidationError Status = "validation_error"
	StatusAcknowledged    Status = "acknowledged"
	StatusFailed          Status = "failed"
)

// Result is what a local tool function or script tool returns.
type Result struct {
	Status Status `json:"status"`
	Data   any    `json:"data,omitempty"`
	Error  string `json:"error,omitempty"`
}

// LocalFunc is a local tool's pure async implementation: params in,
// Result out. It must not block past ctx's deadline.
type LocalFunc func(ctx context.Context, params map[string]any) Result

// ToolKind distinguishes how a registered tool is actually invoked.
type ToolKind string

const (
	KindLocal   ToolKind = "local"
	KindSandbox ToolKind = "sandbox"
	KindScript  ToolKind = "script"
)

// Tool is one entry in the registry: its kind, how to invoke it, its
// parameter schema, and whether it is currently enabled.
type Tool struct {
	Name   string
	Kind   ToolKind
	Active bool

	// Local holds the implementation when Kind == KindLocal.
	Local LocalFunc

	// ScriptPath holds the interpreter-spawned script path when
	// Kind == KindScript.
	ScriptPath     string
	ScriptInterp   string // e.g. "python3"; defaults to "python3" if empty
	schema         *jsonschema.Schema
	parameterSchema json.RawMessage
}

// ParameterSchema returns the tool's raw JSON schema, or nil if none was
// registered.
func (t Tool) ParameterSchema() json.RawMessage {
	return t.parameterSchema
}

// Registry is the tool execution core's tool table: a fixed set of local
// tools, plus any number of registered script/sandbox tools loaded at
// runtime. Safe for concurrent use.
type Registry struct {
	mu    sync.RWMutex
	tools map[string]*Tool
}

// NewRegistry returns an empty registry. Callers typically follow with
// RegisterLocal calls for the fixed local tools and RegisterScript or
// RegisterSandbox for any other tools.
func NewRegistry() *Registry {
	return &Registry{tools: make(map[string]*Tool)}
}

// RegisterLocal adds a local tool. schemaJSON may be nil when the tool
// takes no constrained parameters.
func (r *Registry) RegisterLocal(name string, fn LocalFunc, schemaJSON json.RawMessage) error {
	t := &Tool{Name: name, Kind: KindLocal, Active: true, Local: fn, parameterSchema: schemaJSON}
	if err := compileSchema(t, schemaJSON); err != nil {
		return fmt.Errorf("register local tool %q: %w", name, err)
	}
	r.mu.Lock()
	r.tools[name] = t
	r.mu.Unlock()
	return nil
}

// RegisterScript adds a process-spawn script tool (§4.6 "Script tool").
func (r *Registry) RegisterScript(name, interpreter, scriptPath string, active bool, schemaJSON json.RawMessage) error {
	t := &Tool{
		Name: name, Kind: KindScript, Active: active,
		ScriptPath: scriptPath, ScriptInterp: interpreter,
		parameterSchema: schemaJSON,
	}
	if err := compileSchema(t, schemaJSON); err != nil {
		return fmt.Errorf("register script tool %q: %w", name, err)
	}
	r.mu.Lock()
	r.tools[name] = t
	r.mu.Unlock()
	return nil
}

// RegisterSandbox adds the python_sandbox entry. There is exactly one:
// execution is delegated to the external sandbox service, not invoked
// in-process.
func (r *Registry) RegisterSandbox(name string, schemaJSON json.RawMessage) error {
	t := &Tool{Name: name, Kind: KindSandbox, Active: true, parameterSchema: schemaJSON}
	if err := compileSchema(t, schemaJSON); err != nil {
		return fmt.Errorf("register sandbox tool %q: %w", name, err)
	}
	r.mu.Lock()
	r.tools[name] = t
	r.mu.Unlock()
	return nil
}

// SetActive toggles a registered tool's availability without removing it
// from the table.
func (r *Registry) SetActive(name string, active bool) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	t, ok := r.tools[name]
	if !ok {
		return false
	}
	t.Active = active
	return true
}

// Lookup returns the named tool and whether it exists.
func (r *Registry) Lookup(name string) (Tool, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	t, ok := r.tools[name]
	if !ok {
		return Tool{}, false
	}
	return *t, true
}

// Names returns every registered tool name, active or not.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.tools))
	for n := range r.tools {
		names = append(names, n)
	}
	return names
}

func compileSchema(t *Tool, schemaJSON json.RawMessage) error {
	if len(schemaJSON) == 0 {
		return nil
	}
	doc, err := jsonschema.UnmarshalJSON(strings.NewReader(string(schemaJSON)))
	if err != nil {
		return fmt.Errorf("unmarshal parameter schema: %w", err)
	}
	c := jsonschema.NewCompiler()
	resourceID := t.Name + ".schema.json"
	if err := c.AddResource(resourceID, doc); err != nil {
		return fmt.Errorf("add schema resource: %w", err)
	}
	schema, err := c.Compile(resourceID)
	if err != nil {
		return fmt.Errorf("compile parameter schema: %w", err)
	}
	t.schema = schema
	return nil
}

// ValidationError describes one JSON-schema validation failure, shaped
// for a validation_error result's "path/message details" per the
// submission-path contract.
type ValidationError struct {
	Path    string `json:"path"`
	Message string `json:"message"`
}

// Validate checks params against the tool's compiled schema, if any. A
// tool with no schema always validates. The jsonschema library's error
// already names the failing instance path in its message, so a single
// top-level ValidationError carries it rather than walking the cause
// tree ourselves.
func (t Tool) Validate(params map[string]any) []ValidationError {
	if t.schema == nil {
		return nil
	}
	if err := t.schema.Validate(params); err != nil {
		return []ValidationError{{Path: "/", Message: err.Error()}}
	}
	return nil
}
