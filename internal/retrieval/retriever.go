// Package retrieval ranks an agent's knowledge chunks against a query.
//
// The default strategy is keyword overlap scoring. When the retriever is
// constructed with an Embedder it ranks by cosine similarity instead; chunks
// without a stored embedding fall out of the semantic ranking.
package retrieval

import (
	"context"
	"sort"
	"strings"

	"go.uber.org/zap"

	"github.com/konsul-ai/reply-engine/internal/model"
	"github.com/konsul-ai/reply-engine/pkg/logger"
	"github.com/konsul-ai/reply-engine/pkg/metrics"
)

const (
	// DefaultLimit is the number of chunks returned when the caller does
	// not specify one.
	DefaultLimit = 5

	// phraseBonus is added when the whole query appears verbatim in a
	// chunk, so exact-phrase hits always outrank partial keyword overlap.
	phraseBonus = 5

	// similarityFloor filters weak semantic matches.
	similarityFloor = 0.4
)

// ChunkSource provides the retrieval-eligible chunks for an agent.
type ChunkSource interface {
	ReadyChunks(ctx context.Context, agentID string) ([]model.DocumentChunk, error)
}

// Embedder produces an embedding vector for a text.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
}

// Retriever returns the top chunks for a query. It never fails the caller's
// turn: on any error it logs and yields an empty context.
type Retriever struct {
	chunks   ChunkSource
	embedder Embedder // nil selects keyword scoring
	logger   *logger.Logger
}

// New creates a keyword-scoring retriever.
func New(chunks ChunkSource, log *logger.Logger) *Retriever {
	return &Retriever{chunks: chunks, logger: log}
}

// NewSemantic creates a retriever ranking by embedding similarity.
func NewSemantic(chunks ChunkSource, embedder Embedder, log *logger.Logger) *Retriever {
	return &Retriever{chunks: chunks, embedder: embedder, logger: log}
}

// Retrieve returns up to limit chunk texts ordered by relevance, best first.
// An empty slice means the turn proceeds without knowledge augmentation.
func (r *Retriever) Retrieve(ctx context.Context, agentID, query string, limit int) []string {
	if limit <= 0 {
		limit = DefaultLimit
	}

	chunks, err := r.chunks.ReadyChunks(ctx, agentID)
	if err != nil {
		r.logger.Warn("chunk load failed, continuing without context",
			zap.String("agent_id", agentID), zap.Error(err))
		return nil
	}
	if len(chunks) == 0 {
		return nil
	}

	var ranked []string
	if r.embedder != nil {
		ranked = r.rankBySimilarity(ctx, query, chunks)
	} else {
		ranked = rankByKeywords(query, chunks)
	}

	if len(ranked) > limit {
		ranked = ranked[:limit]
	}
	metrics.RetrievalChunks.Observe(float64(len(ranked)))
	return ranked
}

type scoredChunk struct {
	content string
	score   float64
}

// rankByKeywords scores each chunk by the number of query words appearing as
// substrings, plus a flat bonus when the whole query appears verbatim.
// Zero-score chunks are discarded.
func rankByKeywords(query string, chunks []model.DocumentChunk) []string {
	q := strings.ToLower(strings.TrimSpace(query))
	if q == "" {
		return nil
	}
	words := strings.Fields(q)

	scored := make([]scoredChunk, 0, len(chunks))
	for _, chunk := range chunks {
		content := strings.ToLower(chunk.Content)

		score := 0.0
		for _, w := range words {
			if strings.Contains(content, w) {
				score++
			}
		}
		if strings.Contains(content, q) {
			score += phraseBonus
		}
		if score > 0 {
			scored = append(scored, scoredChunk{content: chunk.Content, score: score})
		}
	}

	sort.SliceStable(scored, func(i, j int) bool { return scored[i].score > scored[j].score })

	out := make([]string, len(scored))
	for i, s := range scored {
		out[i] = s.content
	}
	return out
}

// rankBySimilarity embeds the query and ranks chunks by cosine similarity,
// dropping everything below the floor. Errors degrade to an empty context.
func (r *Retriever) rankBySimilarity(ctx context.Context, query string, chunks []model.DocumentChunk) []string {
	queryVec, err := r.embedder.Embed(ctx, query)
	if err != nil {
		r.logger.Warn("query embedding failed, continuing without context", zap.Error(err))
		return nil
	}

	scored := make([]scoredChunk, 0, len(chunks))
	for _, chunk := range chunks {
		if len(chunk.Embedding) == 0 {
			continue
		}
		sim, ok := cosineSimilarity(queryVec, chunk.Embedding)
		if !ok || sim <= similarityFloor {
			continue
		}
		scored = append(scored, scoredChunk{content: chunk.Content, score: sim})
	}

	sort.SliceStable(scored, func(i, j int) bool { return scored[i].score > scored[j].score })

	out := make([]string, len(scored))
	for i, s := range scored {
		out[i] = s.content
	}
	return out
}
