// Package llm abstracts the LLM providers behind one session contract.
//
// A Session is created per reply turn. It holds the provider-specific
// conversation state (message list or chat session), supports multiple
// sequential tool-call rounds, and accumulates token usage across every call
// it makes.
package llm

import (
	"context"
	"encoding/json"
	"errors"

	"github.com/sashabaranov/go-openai/jsonschema"

	"github.com/konsul-ai/reply-engine/internal/model"
)

// ErrProviderNotConfigured is returned when an agent's provider family has
// no API key configured. Fatal for the current turn.
var ErrProviderNotConfigured = errors.New("llm provider not configured")

// ToolDefinition is the provider-independent declaration of one callable
// tool.
type ToolDefinition struct {
	Name        string
	Description string
	Parameters  jsonschema.Definition
}

// ToolCall is a model-initiated request to execute a tool.
type ToolCall struct {
	// ID keys the tool response back to the call. Providers without call
	// ids (Gemini) use the function name.
	ID        string
	Name      string
	Arguments json.RawMessage
}

// ToolResult is the outcome of executing one tool call, fed back to the
// model.
type ToolResult struct {
	CallID  string
	Name    string
	Payload json.RawMessage
}

// ModelTurn is the normalized provider response: either a text reply, tool
// calls, or both.
type ModelTurn struct {
	Content   string
	ToolCalls []ToolCall
}

// Usage is the accumulated token consumption of a session.
type Usage struct {
	PromptTokens     int
	CompletionTokens int
}

// Total returns the combined token count.
func (u Usage) Total() int {
	return u.PromptTokens + u.CompletionTokens
}

func (u *Usage) add(promptTokens, completionTokens int) {
	u.PromptTokens += promptTokens
	u.CompletionTokens += completionTokens
}

// SessionRequest carries everything a provider needs to open a session for
// one reply turn.
type SessionRequest struct {
	Model        string
	SystemPrompt string
	History      []model.Message
	Tools        []ToolDefinition
	Temperature  float64
	MaxTokens    int
}

// Session drives one reply turn against a provider.
type Session interface {
	// Send appends the user message and requests a model turn.
	Send(ctx context.Context, userMessage string) (*ModelTurn, error)

	// SubmitToolResults feeds tool outcomes back and requests the next
	// model turn.
	SubmitToolResults(ctx context.Context, results []ToolResult) (*ModelTurn, error)

	// Usage returns the tokens consumed by every call so far.
	Usage() Usage
}

// Provider creates sessions for one provider family.
type Provider interface {
	Family() model.ProviderFamily
	NewSession(req *SessionRequest) Session
}
