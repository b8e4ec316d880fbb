package llm

import (
	"context"
	"encoding/json"
	"errors"

	"github.com/sashabaranov/go-openai"

	"github.com/konsul-ai/reply-engine/internal/model"
	"github.com/konsul-ai/reply-engine/pkg/metrics"
)

// defaultOpenAIEmbeddingModel is used when no embedding model is configured.
const defaultOpenAIEmbeddingModel = openai.SmallEmbedding3

// OpenAIProvider serves the OpenAI provider family.
type OpenAIProvider struct {
	client         *openai.Client
	embeddingModel openai.EmbeddingModel
}

// NewOpenAIProvider creates an OpenAI provider. An empty embeddingModel
// selects the default.
func NewOpenAIProvider(apiKey, embeddingModel string) (*OpenAIProvider, error) {
	if apiKey == "" {
		return nil, errors.New("OpenAI API key is required")
	}
	em := defaultOpenAIEmbeddingModel
	if embeddingModel != "" {
		em = openai.EmbeddingModel(embeddingModel)
	}
	return &OpenAIProvider{
		client:         openai.NewClient(apiKey),
		embeddingModel: em,
	}, nil
}

// Family returns the provider family.
func (p *OpenAIProvider) Family() model.ProviderFamily {
	return model.ProviderOpenAI
}

// NewSession seeds a flat message list with the system prompt and history.
func (p *OpenAIProvider) NewSession(req *SessionRequest) Session {
	messages := make([]openai.ChatCompletionMessage, 0, len(req.History)+2)
	messages = append(messages, openai.ChatCompletionMessage{
		Role:    openai.ChatMessageRoleSystem,
		Content: req.SystemPrompt,
	})
	for _, msg := range req.History {
		messages = append(messages, openai.ChatCompletionMessage{
			Role:    openaiRole(msg.Role),
			Content: msg.Content,
		})
	}

	return &openaiSession{
		client:      p.client,
		model:       req.Model,
		temperature: float32(req.Temperature),
		maxTokens:   req.MaxTokens,
		tools:       toOpenAITools(req.Tools),
		messages:    messages,
	}
}

func openaiRole(role model.Role) string {
	if role == model.RoleUser {
		return openai.ChatMessageRoleUser
	}
	// AGENT turns and human-operator turns both read as assistant output.
	return openai.ChatMessageRoleAssistant
}

func toOpenAITools(defs []ToolDefinition) []openai.Tool {
	if len(defs) == 0 {
		return nil
	}
	tools := make([]openai.Tool, 0, len(defs))
	for _, d := range defs {
		tools = append(tools, openai.Tool{
			Type: openai.ToolTypeFunction,
			Function: &openai.FunctionDefinition{
				Name:        d.Name,
				Description: d.Description,
				Parameters:  d.Parameters,
			},
		})
	}
	return tools
}

type openaiSession struct {
	client      *openai.Client
	model       string
	temperature float32
	maxTokens   int
	tools       []openai.Tool
	messages    []openai.ChatCompletionMessage
	usage       Usage
}

// Send appends the user turn and requests a completion.
func (s *openaiSession) Send(ctx context.Context, userMessage string) (*ModelTurn, error) {
	s.messages = append(s.messages, openai.ChatCompletionMessage{
		Role:    openai.ChatMessageRoleUser,
		Content: userMessage,
	})
	return s.complete(ctx)
}

// SubmitToolResults appends one tool-role message per result, keyed by call
// id, and requests the next completion. The assistant message carrying the
// raw tool calls was already appended by complete.
func (s *openaiSession) SubmitToolResults(ctx context.Context, results []ToolResult) (*ModelTurn, error) {
	for _, res := range results {
		s.messages = append(s.messages, openai.ChatCompletionMessage{
			Role:       openai.ChatMessageRoleTool,
			Content:    string(res.Payload),
			ToolCallID: res.CallID,
		})
	}
	return s.complete(ctx)
}

func (s *openaiSession) complete(ctx context.Context) (*ModelTurn, error) {
	req := openai.ChatCompletionRequest{
		Model:       s.model,
		Messages:    s.messages,
		Temperature: s.temperature,
		MaxTokens:   s.maxTokens,
		Tools:       s.tools,
	}

	var resp openai.ChatCompletionResponse
	err := withRetry(ctx, func() error {
		var callErr error
		resp, callErr = s.client.CreateChatCompletion(ctx, req)
		return callErr
	})
	if err != nil {
		metrics.RecordModelCall("openai", s.model, "error", 0, 0)
		return nil, err
	}

	s.usage.add(resp.Usage.PromptTokens, resp.Usage.CompletionTokens)
	metrics.RecordModelCall("openai", s.model, "success",
		resp.Usage.PromptTokens, resp.Usage.CompletionTokens)

	if len(resp.Choices) == 0 {
		return &ModelTurn{}, nil
	}
	msg := resp.Choices[0].Message

	// Keep the assistant message, raw tool calls included, so the
	// follow-up tool-role messages have their antecedent.
	s.messages = append(s.messages, msg)

	turn := &ModelTurn{Content: msg.Content}
	for _, tc := range msg.ToolCalls {
		turn.ToolCalls = append(turn.ToolCalls, ToolCall{
			ID:        tc.ID,
			Name:      tc.Function.Name,
			Arguments: json.RawMessage(tc.Function.Arguments),
		})
	}
	return turn, nil
}

// Usage returns the tokens consumed so far.
func (s *openaiSession) Usage() Usage {
	return s.usage
}

// Embed produces an embedding for semantic retrieval.
func (p *OpenAIProvider) Embed(ctx context.Context, text string) ([]float32, error) {
	resp, err := p.client.CreateEmbeddings(ctx, openai.EmbeddingRequest{
		Model: p.embeddingModel,
		Input: []string{text},
	})
	if err != nil {
		return nil, err
	}
	if len(resp.Data) == 0 {
		return nil, errors.New("no embedding data in response")
	}
	return resp.Data[0].Embedding, nil
}
