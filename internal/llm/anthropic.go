package llm

import (
	"context"
	"encoding/json"
	"errors"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"

	"github.com/konsul-ai/reply-engine/internal/model"
	"github.com/konsul-ai/reply-engine/pkg/metrics"
)

// AnthropicProvider serves the Anthropic provider family.
type AnthropicProvider struct {
	client *anthropic.Client
}

// NewAnthropicProvider creates an Anthropic provider.
func NewAnthropicProvider(apiKey string) (*AnthropicProvider, error) {
	if apiKey == "" {
		return nil, errors.New("Anthropic API key is required")
	}
	return &AnthropicProvider{
		client: anthropic.NewClient(option.WithAPIKey(apiKey)),
	}, nil
}

// Family returns the provider family.
func (p *AnthropicProvider) Family() model.ProviderFamily {
	return model.ProviderAnthropic
}

// NewSession seeds a message list with the prior history. Anthropic carries
// the system prompt as a request parameter, not a message.
func (p *AnthropicProvider) NewSession(req *SessionRequest) Session {
	messages := make([]anthropic.MessageParam, 0, len(req.History)+1)
	for _, msg := range req.History {
		messages = append(messages, textMessage(anthropicRole(msg.Role), msg.Content))
	}

	maxTokens := req.MaxTokens
	if maxTokens == 0 {
		maxTokens = 4096
	}

	return &anthropicSession{
		client:       p.client,
		model:        req.Model,
		systemPrompt: req.SystemPrompt,
		temperature:  req.Temperature,
		maxTokens:    maxTokens,
		tools:        toAnthropicTools(req.Tools),
		messages:     messages,
	}
}

func anthropicRole(role model.Role) anthropic.MessageParamRole {
	if role == model.RoleUser {
		return anthropic.MessageParamRoleUser
	}
	return anthropic.MessageParamRoleAssistant
}

func textMessage(role anthropic.MessageParamRole, content string) anthropic.MessageParam {
	return anthropic.MessageParam{
		Role: anthropic.F(role),
		Content: anthropic.F([]anthropic.ContentBlockParamUnion{
			anthropic.TextBlockParam{
				Type: anthropic.F(anthropic.TextBlockParamTypeText),
				Text: anthropic.F(content),
			},
		}),
	}
}

func toAnthropicTools(defs []ToolDefinition) []anthropic.ToolParam {
	if len(defs) == 0 {
		return nil
	}
	tools := make([]anthropic.ToolParam, 0, len(defs))
	for _, d := range defs {
		tools = append(tools, anthropic.ToolParam{
			Name:        anthropic.F(d.Name),
			Description: anthropic.F(d.Description),
			InputSchema: anthropic.F[interface{}](d.Parameters),
		})
	}
	return tools
}

type anthropicSession struct {
	client       *anthropic.Client
	model        string
	systemPrompt string
	temperature  float64
	maxTokens    int
	tools        []anthropic.ToolParam
	messages     []anthropic.MessageParam
	usage        Usage
}

// Send appends the user turn and requests a message.
func (s *anthropicSession) Send(ctx context.Context, userMessage string) (*ModelTurn, error) {
	s.messages = append(s.messages, textMessage(anthropic.MessageParamRoleUser, userMessage))
	return s.complete(ctx)
}

// SubmitToolResults sends one tool_result block per call in a single user
// message, then requests the next model turn.
func (s *anthropicSession) SubmitToolResults(ctx context.Context, results []ToolResult) (*ModelTurn, error) {
	blocks := make([]anthropic.ContentBlockParamUnion, 0, len(results))
	for _, res := range results {
		blocks = append(blocks, anthropic.ToolResultBlockParam{
			Type:      anthropic.F(anthropic.ToolResultBlockParamTypeToolResult),
			ToolUseID: anthropic.F(res.CallID),
			Content: anthropic.F([]anthropic.ToolResultBlockParamContentUnion{
				anthropic.TextBlockParam{
					Type: anthropic.F(anthropic.TextBlockParamTypeText),
					Text: anthropic.F(string(res.Payload)),
				},
			}),
		})
	}
	s.messages = append(s.messages, anthropic.MessageParam{
		Role:    anthropic.F(anthropic.MessageParamRoleUser),
		Content: anthropic.F(blocks),
	})
	return s.complete(ctx)
}

func (s *anthropicSession) complete(ctx context.Context) (*ModelTurn, error) {
	params := anthropic.MessageNewParams{
		Model:     anthropic.F(s.model),
		MaxTokens: anthropic.F(int64(s.maxTokens)),
		System: anthropic.F([]anthropic.TextBlockParam{{
			Type: anthropic.F(anthropic.TextBlockParamTypeText),
			Text: anthropic.F(s.systemPrompt),
		}}),
		Messages:    anthropic.F(s.messages),
		Temperature: anthropic.F(s.temperature),
	}
	if len(s.tools) > 0 {
		params.Tools = anthropic.F(s.tools)
	}

	var resp *anthropic.Message
	err := withRetry(ctx, func() error {
		var callErr error
		resp, callErr = s.client.Messages.New(ctx, params)
		return callErr
	})
	if err != nil {
		metrics.RecordModelCall("anthropic", s.model, "error", 0, 0)
		return nil, err
	}

	s.usage.add(int(resp.Usage.InputTokens), int(resp.Usage.OutputTokens))
	metrics.RecordModelCall("anthropic", s.model, "success",
		int(resp.Usage.InputTokens), int(resp.Usage.OutputTokens))

	// Echo the assistant message, tool_use blocks included, so subsequent
	// tool_result blocks have their antecedent.
	turn := &ModelTurn{}
	echo := make([]anthropic.ContentBlockParamUnion, 0, len(resp.Content))
	for _, block := range resp.Content {
		switch block.Type {
		case anthropic.ContentBlockTypeText:
			turn.Content += block.Text
			echo = append(echo, anthropic.TextBlockParam{
				Type: anthropic.F(anthropic.TextBlockParamTypeText),
				Text: anthropic.F(block.Text),
			})
		case anthropic.ContentBlockTypeToolUse:
			turn.ToolCalls = append(turn.ToolCalls, ToolCall{
				ID:        block.ID,
				Name:      block.Name,
				Arguments: json.RawMessage(block.Input),
			})
			echo = append(echo, anthropic.ToolUseBlockParam{
				Type:  anthropic.F(anthropic.ToolUseBlockParamTypeToolUse),
				ID:    anthropic.F(block.ID),
				Name:  anthropic.F(block.Name),
				Input: anthropic.F[interface{}](json.RawMessage(block.Input)),
			})
		}
	}
	s.messages = append(s.messages, anthropic.MessageParam{
		Role:    anthropic.F(anthropic.MessageParamRoleAssistant),
		Content: anthropic.F(echo),
	})

	return turn, nil
}

// Usage returns the tokens consumed so far.
func (s *anthropicSession) Usage() Usage {
	return s.usage
}
