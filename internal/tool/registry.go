// Package tool declares the side-effecting operations the model can call,
// with JSON-schema parameter contracts independent of the provider in use.
package tool

import (
	"context"
	"encoding/json"

	"github.com/sashabaranov/go-openai/jsonschema"
	"go.uber.org/zap"

	"github.com/konsul-ai/reply-engine/pkg/logger"
	"github.com/konsul-ai/reply-engine/pkg/metrics"
)

// Handler executes one tool call. It receives the raw JSON arguments the
// model produced and returns a JSON-serializable result.
type Handler func(ctx context.Context, args json.RawMessage) (any, error)

// Tool is one callable operation: name, description and parameter schema as
// exposed to the model, plus the handler that performs the side effect.
type Tool struct {
	Name        string
	Description string
	Parameters  jsonschema.Definition
	Handler     Handler
}

// Registry holds the tools available for one reply turn.
type Registry struct {
	tools  []Tool
	logger *logger.Logger
}

// NewRegistry creates an empty registry.
func NewRegistry(log *logger.Logger) *Registry {
	return &Registry{logger: log}
}

// Register adds a tool.
func (r *Registry) Register(t Tool) {
	r.tools = append(r.tools, t)
}

// Tools returns the registered tools in registration order.
func (r *Registry) Tools() []Tool {
	return r.tools
}

// Empty reports whether no tools are registered.
func (r *Registry) Empty() bool {
	return len(r.tools) == 0
}

// failure is the structured payload fed back to the model when a handler
// fails. Handler errors never abort the turn.
type failure struct {
	Success bool   `json:"success"`
	Error   string `json:"error"`
}

// Execute runs the named tool and returns the JSON payload for the tool
// response. Unknown tools and handler errors are converted into
// {"success":false,"error":...} payloads rather than propagated.
func (r *Registry) Execute(ctx context.Context, name string, args json.RawMessage) json.RawMessage {
	var t *Tool
	for i := range r.tools {
		if r.tools[i].Name == name {
			t = &r.tools[i]
			break
		}
	}
	if t == nil {
		r.logger.Warn("model requested unknown tool", zap.String("tool", name))
		metrics.RecordToolExecution(name, "unknown")
		return mustMarshal(failure{Error: "unknown tool: " + name})
	}

	result, err := t.Handler(ctx, args)
	if err != nil {
		r.logger.Warn("tool execution failed",
			zap.String("tool", name), zap.Error(err))
		metrics.RecordToolExecution(name, "error")
		return mustMarshal(failure{Error: err.Error()})
	}

	metrics.RecordToolExecution(name, "success")
	return mustMarshal(result)
}

func mustMarshal(v any) json.RawMessage {
	data, err := json.Marshal(v)
	if err != nil {
		// Handlers return plain structs and maps; this only fires on a
		// programming error.
		return json.RawMessage(`{"success":false,"error":"unserializable tool result"}`)
	}
	return data
}
