package llm

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/google/generative-ai-go/genai"
	"google.golang.org/api/option"

	"github.com/konsul-ai/reply-engine/internal/model"
	"github.com/konsul-ai/reply-engine/pkg/metrics"
)

// defaultGeminiEmbeddingModel is used when no embedding model is configured.
const defaultGeminiEmbeddingModel = "text-embedding-004"

// GeminiProvider serves the Gemini provider family.
type GeminiProvider struct {
	client         *genai.Client
	embeddingModel string
}

// NewGeminiProvider creates a Gemini provider. An empty embeddingModel
// selects the default.
func NewGeminiProvider(ctx context.Context, apiKey, embeddingModel string) (*GeminiProvider, error) {
	if apiKey == "" {
		return nil, errors.New("Gemini API key is required")
	}
	client, err := genai.NewClient(ctx, option.WithAPIKey(apiKey))
	if err != nil {
		return nil, fmt.Errorf("create Gemini client: %w", err)
	}
	if embeddingModel == "" {
		embeddingModel = defaultGeminiEmbeddingModel
	}
	return &GeminiProvider{client: client, embeddingModel: embeddingModel}, nil
}

// Family returns the provider family.
func (p *GeminiProvider) Family() model.ProviderFamily {
	return model.ProviderGemini
}

// Close releases the underlying client.
func (p *GeminiProvider) Close() error {
	return p.client.Close()
}

// NewSession starts a chat session seeded with the prior history. Gemini
// carries the system prompt on the model, not in the message list.
func (p *GeminiProvider) NewSession(req *SessionRequest) Session {
	gm := p.client.GenerativeModel(req.Model)
	gm.SystemInstruction = &genai.Content{
		Parts: []genai.Part{genai.Text(req.SystemPrompt)},
	}

	temp := float32(req.Temperature)
	gm.GenerationConfig.Temperature = &temp
	if req.MaxTokens > 0 {
		maxTokens := int32(req.MaxTokens)
		gm.GenerationConfig.MaxOutputTokens = &maxTokens
	}

	if len(req.Tools) > 0 {
		decls := make([]*genai.FunctionDeclaration, 0, len(req.Tools))
		for _, d := range req.Tools {
			decls = append(decls, &genai.FunctionDeclaration{
				Name:        d.Name,
				Description: d.Description,
				Parameters:  toGeminiSchema(d.Parameters),
			})
		}
		gm.Tools = []*genai.Tool{{FunctionDeclarations: decls}}
	}

	chat := gm.StartChat()
	for _, msg := range req.History {
		chat.History = append(chat.History, &genai.Content{
			Role:  geminiRole(msg.Role),
			Parts: []genai.Part{genai.Text(msg.Content)},
		})
	}

	return &geminiSession{chat: chat, model: req.Model}
}

func geminiRole(role model.Role) string {
	if role == model.RoleUser {
		return "user"
	}
	return "model"
}

type geminiSession struct {
	chat  *genai.ChatSession
	model string
	usage Usage
}

// Send sends the user turn through the chat session.
func (s *geminiSession) Send(ctx context.Context, userMessage string) (*ModelTurn, error) {
	return s.send(ctx, genai.Text(userMessage))
}

// SubmitToolResults sends one functionResponse part per result, each wrapping
// the payload under a result key.
func (s *geminiSession) SubmitToolResults(ctx context.Context, results []ToolResult) (*ModelTurn, error) {
	parts := make([]genai.Part, 0, len(results))
	for _, res := range results {
		var payload any
		if err := json.Unmarshal(res.Payload, &payload); err != nil {
			payload = string(res.Payload)
		}
		parts = append(parts, genai.FunctionResponse{
			Name:     res.Name,
			Response: map[string]any{"result": payload},
		})
	}
	return s.send(ctx, parts...)
}

func (s *geminiSession) send(ctx context.Context, parts ...genai.Part) (*ModelTurn, error) {
	var resp *genai.GenerateContentResponse
	err := withRetry(ctx, func() error {
		var callErr error
		resp, callErr = s.chat.SendMessage(ctx, parts...)
		return callErr
	})
	if err != nil {
		metrics.RecordModelCall("gemini", s.model, "error", 0, 0)
		return nil, err
	}

	if resp.UsageMetadata != nil {
		s.usage.add(int(resp.UsageMetadata.PromptTokenCount), int(resp.UsageMetadata.CandidatesTokenCount))
		metrics.RecordModelCall("gemini", s.model, "success",
			int(resp.UsageMetadata.PromptTokenCount), int(resp.UsageMetadata.CandidatesTokenCount))
	} else {
		metrics.RecordModelCall("gemini", s.model, "success", 0, 0)
	}

	turn := &ModelTurn{}
	if len(resp.Candidates) == 0 || resp.Candidates[0].Content == nil {
		return turn, nil
	}

	var text strings.Builder
	for _, part := range resp.Candidates[0].Content.Parts {
		switch v := part.(type) {
		case genai.Text:
			text.WriteString(string(v))
		case genai.FunctionCall:
			args, err := json.Marshal(v.Args)
			if err != nil {
				args = json.RawMessage("{}")
			}
			turn.ToolCalls = append(turn.ToolCalls, ToolCall{
				// Gemini has no call ids; the function name keys the
				// response.
				ID:        v.Name,
				Name:      v.Name,
				Arguments: args,
			})
		}
	}
	turn.Content = text.String()
	return turn, nil
}

// Usage returns the tokens consumed so far.
func (s *geminiSession) Usage() Usage {
	return s.usage
}

// Embed produces an embedding for semantic retrieval.
func (p *GeminiProvider) Embed(ctx context.Context, text string) ([]float32, error) {
	em := p.client.EmbeddingModel(p.embeddingModel)
	res, err := em.EmbedContent(ctx, genai.Text(text))
	if err != nil {
		return nil, fmt.Errorf("gemini embedding request failed: %w", err)
	}
	if res.Embedding == nil || len(res.Embedding.Values) == 0 {
		return nil, errors.New("no embedding data received from gemini")
	}
	return res.Embedding.Values, nil
}
