package llm

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/konsul-ai/reply-engine/internal/model"
	"github.com/konsul-ai/reply-engine/pkg/logger"
)

// Embedder produces an embedding vector for a text.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
}

// Config holds the API keys for every provider family. A family with an
// empty key is simply not registered.
type Config struct {
	OpenAIAPIKey    string
	GeminiAPIKey    string
	AnthropicAPIKey string

	// EmbeddingModel overrides the provider's default embedding model.
	EmbeddingModel string
}

// Resolver maps an agent's provider family to a constructed provider. All
// keys are resolved once at construction; agents whose family has no key
// fail their turn with ErrProviderNotConfigured.
type Resolver struct {
	providers map[model.ProviderFamily]Provider
}

// NewResolver constructs every provider with a configured key.
func NewResolver(ctx context.Context, cfg Config, log *logger.Logger) (*Resolver, error) {
	providers := make(map[model.ProviderFamily]Provider)

	if cfg.OpenAIAPIKey != "" {
		p, err := NewOpenAIProvider(cfg.OpenAIAPIKey, cfg.EmbeddingModel)
		if err != nil {
			return nil, err
		}
		providers[model.ProviderOpenAI] = p
	}
	if cfg.GeminiAPIKey != "" {
		p, err := NewGeminiProvider(ctx, cfg.GeminiAPIKey, cfg.EmbeddingModel)
		if err != nil {
			return nil, err
		}
		providers[model.ProviderGemini] = p
	}
	if cfg.AnthropicAPIKey != "" {
		p, err := NewAnthropicProvider(cfg.AnthropicAPIKey)
		if err != nil {
			return nil, err
		}
		providers[model.ProviderAnthropic] = p
	}

	families := make([]string, 0, len(providers))
	for f := range providers {
		families = append(families, string(f))
	}
	log.Info("LLM providers configured", zap.Strings("families", families))

	return &Resolver{providers: providers}, nil
}

// Resolve returns the provider serving a family.
func (r *Resolver) Resolve(family model.ProviderFamily) (Provider, error) {
	p, ok := r.providers[family]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrProviderNotConfigured, family)
	}
	return p, nil
}

// Embedder returns an embedding-capable provider when one is configured.
// OpenAI is preferred, then Gemini.
func (r *Resolver) Embedder() (Embedder, bool) {
	if p, ok := r.providers[model.ProviderOpenAI]; ok {
		return p.(*OpenAIProvider), true
	}
	if p, ok := r.providers[model.ProviderGemini]; ok {
		return p.(*GeminiProvider), true
	}
	return nil, false
}
