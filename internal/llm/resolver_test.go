package llm

import (
	"context"
	"testing"

	"github.com/sashabaranov/go-openai"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/konsul-ai/reply-engine/internal/model"
	"github.com/konsul-ai/reply-engine/pkg/logger"
)

func TestResolverOnlyConfiguredFamilies(t *testing.T) {
	r, err := NewResolver(context.Background(), Config{OpenAIAPIKey: "sk-test"}, logger.NewNop())
	require.NoError(t, err)

	p, err := r.Resolve(model.ProviderOpenAI)
	require.NoError(t, err)
	assert.Equal(t, model.ProviderOpenAI, p.Family())

	_, err = r.Resolve(model.ProviderGemini)
	assert.ErrorIs(t, err, ErrProviderNotConfigured)

	_, err = r.Resolve(model.ProviderAnthropic)
	assert.ErrorIs(t, err, ErrProviderNotConfigured)
}

func TestResolverNoKeysConfigured(t *testing.T) {
	r, err := NewResolver(context.Background(), Config{}, logger.NewNop())
	require.NoError(t, err)

	_, err = r.Resolve(model.ProviderOpenAI)
	assert.ErrorIs(t, err, ErrProviderNotConfigured)
}

func TestResolverEmbedderPrefersOpenAI(t *testing.T) {
	r, err := NewResolver(context.Background(), Config{OpenAIAPIKey: "sk-test"}, logger.NewNop())
	require.NoError(t, err)

	embedder, ok := r.Embedder()
	assert.True(t, ok)
	assert.IsType(t, &OpenAIProvider{}, embedder)
}

func TestEmbeddingModelConfiguration(t *testing.T) {
	p, err := NewOpenAIProvider("sk-test", "")
	require.NoError(t, err)
	assert.Equal(t, defaultOpenAIEmbeddingModel, p.embeddingModel)

	p, err = NewOpenAIProvider("sk-test", "text-embedding-3-large")
	require.NoError(t, err)
	assert.Equal(t, openai.EmbeddingModel("text-embedding-3-large"), p.embeddingModel)

	g, err := NewGeminiProvider(context.Background(), "key", "")
	require.NoError(t, err)
	assert.Equal(t, defaultGeminiEmbeddingModel, g.embeddingModel)

	g, err = NewGeminiProvider(context.Background(), "key", "gemini-embedding-001")
	require.NoError(t, err)
	assert.Equal(t, "gemini-embedding-001", g.embeddingModel)
}

func TestResolverPassesEmbeddingModel(t *testing.T) {
	r, err := NewResolver(context.Background(),
		Config{OpenAIAPIKey: "sk-test", EmbeddingModel: "text-embedding-3-large"},
		logger.NewNop())
	require.NoError(t, err)

	embedder, ok := r.Embedder()
	require.True(t, ok)
	assert.Equal(t, openai.EmbeddingModel("text-embedding-3-large"),
		embedder.(*OpenAIProvider).embeddingModel)
}

func TestResolverEmbedderAbsent(t *testing.T) {
	r, err := NewResolver(context.Background(), Config{AnthropicAPIKey: "sk-ant"}, logger.NewNop())
	require.NoError(t, err)

	_, ok := r.Embedder()
	assert.False(t, ok)
}
