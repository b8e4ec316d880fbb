package retrieval

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/konsul-ai/reply-engine/internal/model"
	"github.com/konsul-ai/reply-engine/internal/store"
	"github.com/konsul-ai/reply-engine/pkg/logger"
)

type stubChunks struct {
	chunks []model.DocumentChunk
	err    error
}

func (s *stubChunks) ReadyChunks(ctx context.Context, agentID string) ([]model.DocumentChunk, error) {
	return s.chunks, s.err
}

type stubEmbedder struct {
	vectors map[string][]float32
	err     error
}

func (s *stubEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	if s.err != nil {
		return nil, s.err
	}
	return s.vectors[text], nil
}

func chunk(id, content string) model.DocumentChunk {
	return model.DocumentChunk{ID: id, Content: content}
}

func TestRetrieveRanksByKeywordHits(t *testing.T) {
	source := &stubChunks{chunks: []model.DocumentChunk{
		chunk("1", "Aceptamos pagos con tarjeta y transferencia."),
		chunk("2", "El horario de apertura es de 9 a 18."),
		chunk("3", "Los pagos con tarjeta tienen un recargo, consulta el horario bancario."),
	}}
	r := New(source, logger.NewNop())

	got := r.Retrieve(context.Background(), "agent-1", "horario pagos tarjeta", DefaultLimit)

	// Chunk 3 hits all three words, chunk 1 hits two, chunk 2 hits one.
	require.Len(t, got, 3)
	assert.Equal(t, source.chunks[2].Content, got[0])
	assert.Equal(t, source.chunks[0].Content, got[1])
	assert.Equal(t, source.chunks[1].Content, got[2])
}

func TestRetrievePhraseBonusOutranksWordHits(t *testing.T) {
	source := &stubChunks{chunks: []model.DocumentChunk{
		chunk("1", "política devolución envío garantía cambio"),
		chunk("2", "Nuestra política de envíos cubre toda la península."),
	}}
	r := New(source, logger.NewNop())

	got := r.Retrieve(context.Background(), "agent-1", "política de envíos", DefaultLimit)

	// Chunk 2 contains the verbatim phrase and takes the flat bonus even
	// though chunk 1 matches more individual words.
	require.NotEmpty(t, got)
	assert.Equal(t, source.chunks[1].Content, got[0])
}

func TestRetrieveDropsZeroScoreChunks(t *testing.T) {
	source := &stubChunks{chunks: []model.DocumentChunk{
		chunk("1", "totally unrelated text"),
		chunk("2", "el horario es de 9 a 18"),
	}}
	r := New(source, logger.NewNop())

	got := r.Retrieve(context.Background(), "agent-1", "horario", DefaultLimit)

	require.Len(t, got, 1)
	assert.Equal(t, source.chunks[1].Content, got[0])
}

func TestRetrieveHonorsLimit(t *testing.T) {
	var chunks []model.DocumentChunk
	for _, id := range []string{"1", "2", "3", "4", "5", "6", "7"} {
		chunks = append(chunks, chunk(id, "horario "+id))
	}
	r := New(&stubChunks{chunks: chunks}, logger.NewNop())

	got := r.Retrieve(context.Background(), "agent-1", "horario", 0)
	assert.Len(t, got, DefaultLimit)

	got = r.Retrieve(context.Background(), "agent-1", "horario", 2)
	assert.Len(t, got, 2)
}

func TestRetrieveStableOrderOnTies(t *testing.T) {
	source := &stubChunks{chunks: []model.DocumentChunk{
		chunk("1", "horario uno"),
		chunk("2", "horario dos"),
		chunk("3", "horario tres"),
	}}
	r := New(source, logger.NewNop())

	// Equal scores keep the store's order.
	for i := 0; i < 5; i++ {
		got := r.Retrieve(context.Background(), "agent-1", "horario", DefaultLimit)
		require.Equal(t, []string{"horario uno", "horario dos", "horario tres"}, got)
	}
}

func TestRetrieveNeverErrors(t *testing.T) {
	r := New(&stubChunks{err: errors.New("db down")}, logger.NewNop())

	got := r.Retrieve(context.Background(), "agent-1", "horario", DefaultLimit)
	assert.Empty(t, got)
}

func TestRetrieveEmptyQuery(t *testing.T) {
	source := &stubChunks{chunks: []model.DocumentChunk{chunk("1", "algo")}}
	r := New(source, logger.NewNop())

	assert.Empty(t, r.Retrieve(context.Background(), "agent-1", "   ", DefaultLimit))
}

func TestSemanticRetrieveRanksByCosine(t *testing.T) {
	source := &stubChunks{chunks: []model.DocumentChunk{
		{ID: "1", Content: "far", Embedding: []float32{0, 1, 0}},
		{ID: "2", Content: "near", Embedding: []float32{0.9, 0.1, 0}},
		{ID: "3", Content: "close", Embedding: []float32{1, 0, 0}},
	}}
	embedder := &stubEmbedder{vectors: map[string][]float32{
		"query": {1, 0, 0},
	}}
	r := NewSemantic(source, embedder, logger.NewNop())

	got := r.Retrieve(context.Background(), "agent-1", "query", DefaultLimit)

	// "far" is orthogonal to the query and falls below the floor.
	require.Len(t, got, 2)
	assert.Equal(t, "close", got[0])
	assert.Equal(t, "near", got[1])
}

func TestSemanticRetrieveOverStoredChunks(t *testing.T) {
	mem := store.NewMemory()
	mem.PutChunks("agent-1",
		&model.KnowledgeSource{ID: "src-1", Status: model.SourceReady},
		[]model.DocumentChunk{
			{ID: "c1", SourceID: "src-1", Content: "Aceptamos pagos con tarjeta.", Embedding: []float32{1, 0, 0}},
			{ID: "c2", SourceID: "src-1", Content: "El horario es de 9 a 18.", Embedding: []float32{0, 1, 0}},
			{ID: "c3", SourceID: "src-1", Content: "Chunk aún sin procesar."},
		},
	)
	embedder := &stubEmbedder{vectors: map[string][]float32{
		"Aceptamos pagos con tarjeta.": {1, 0, 0},
	}}
	r := NewSemantic(mem, embedder, logger.NewNop())

	// The embeddings must survive the trip through the store for a
	// verbatim query to rank its own chunk first.
	got := r.Retrieve(context.Background(), "agent-1", "Aceptamos pagos con tarjeta.", DefaultLimit)

	require.NotEmpty(t, got)
	assert.Equal(t, "Aceptamos pagos con tarjeta.", got[0])
	assert.NotContains(t, got, "Chunk aún sin procesar.")
}

func TestSemanticRetrieveDegradesOnEmbedError(t *testing.T) {
	source := &stubChunks{chunks: []model.DocumentChunk{
		{ID: "1", Content: "algo", Embedding: []float32{1, 0}},
	}}
	r := NewSemantic(source, &stubEmbedder{err: errors.New("quota")}, logger.NewNop())

	assert.Empty(t, r.Retrieve(context.Background(), "agent-1", "query", DefaultLimit))
}

func TestCosineSimilarity(t *testing.T) {
	tests := []struct {
		name   string
		a, b   []float32
		want   float64
		wantOK bool
	}{
		{"identical", []float32{1, 0}, []float32{1, 0}, 1, true},
		{"orthogonal", []float32{1, 0}, []float32{0, 1}, 0, true},
		{"opposite", []float32{1, 0}, []float32{-1, 0}, -1, true},
		{"length mismatch", []float32{1, 0}, []float32{1}, 0, false},
		{"zero vector", []float32{0, 0}, []float32{1, 0}, 0, false},
		{"empty", nil, nil, 0, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := cosineSimilarity(tt.a, tt.b)
			assert.Equal(t, tt.wantOK, ok)
			assert.InDelta(t, tt.want, got, 1e-9)
		})
	}
}
