package store

import (
	"context"
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/konsul-ai/reply-engine/internal/model"
)

func TestGetAgentNotFound(t *testing.T) {
	mem := NewMemory()

	_, err := mem.GetAgent(context.Background(), "missing")
	assert.ErrorIs(t, err, ErrAgentNotFound)
}

func TestLinkContactFirstWriterWins(t *testing.T) {
	mem := NewMemory()
	mem.PutConversation(&model.Conversation{ID: "conv-1", WorkspaceID: "ws-1"})

	winner, err := mem.LinkContact(context.Background(), "conv-1", "contact-a")
	require.NoError(t, err)
	assert.Equal(t, "contact-a", winner)

	// A lost race returns the already-linked id, not an error.
	winner, err = mem.LinkContact(context.Background(), "conv-1", "contact-b")
	require.NoError(t, err)
	assert.Equal(t, "contact-a", winner)

	conv, err := mem.GetConversation(context.Background(), "conv-1")
	require.NoError(t, err)
	require.NotNil(t, conv.ContactID)
	assert.Equal(t, "contact-a", *conv.ContactID)
}

func TestLinkContactConcurrentConvergesOnOneWinner(t *testing.T) {
	mem := NewMemory()
	mem.PutConversation(&model.Conversation{ID: "conv-1", WorkspaceID: "ws-1"})

	const racers = 20
	winners := make([]string, racers)

	var wg sync.WaitGroup
	for i := 0; i < racers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			winner, err := mem.LinkContact(context.Background(), "conv-1", fmt.Sprintf("contact-%d", i))
			assert.NoError(t, err)
			winners[i] = winner
		}(i)
	}
	wg.Wait()

	for i := 1; i < racers; i++ {
		assert.Equal(t, winners[0], winners[i])
	}
}

func TestUpdateContactDataMerges(t *testing.T) {
	mem := NewMemory()
	contact := &model.Contact{WorkspaceID: "ws-1"}
	require.NoError(t, mem.CreateContact(context.Background(), contact))

	require.NoError(t, mem.UpdateContactData(context.Background(), contact.ID, map[string]any{"a": "1", "b": "2"}))
	require.NoError(t, mem.UpdateContactData(context.Background(), contact.ID, map[string]any{"b": "3", "c": "4"}))

	got, err := mem.GetContact(context.Background(), contact.ID)
	require.NoError(t, err)
	assert.Equal(t, map[string]any{"a": "1", "b": "3", "c": "4"}, got.CustomData)
}

func TestReadyChunksFiltersByStatus(t *testing.T) {
	mem := NewMemory()

	mem.PutChunks("agent-1",
		&model.KnowledgeSource{ID: "src-ready", Status: model.SourceReady},
		[]model.DocumentChunk{{ID: "c1", Content: "ready chunk"}},
	)
	mem.PutChunks("agent-1",
		&model.KnowledgeSource{ID: "src-pending", Status: model.SourcePending},
		[]model.DocumentChunk{{ID: "c2", Content: "pending chunk"}},
	)
	mem.PutChunks("agent-2",
		&model.KnowledgeSource{ID: "src-other", Status: model.SourceReady},
		[]model.DocumentChunk{{ID: "c3", Content: "other agent"}},
	)

	chunks, err := mem.ReadyChunks(context.Background(), "agent-1")
	require.NoError(t, err)
	require.Len(t, chunks, 1)
	assert.Equal(t, "ready chunk", chunks[0].Content)
}

func TestRecordUsageKeepsLogAndBalanceInStep(t *testing.T) {
	mem := NewMemory()
	mem.SetBalance("ws-1", 10)

	rec := &model.UsageLog{WorkspaceID: "ws-1", TokensUsed: 300, CreditsUsed: 3}
	require.NoError(t, mem.RecordUsage(context.Background(), rec))
	assert.NotEmpty(t, rec.ID)
	assert.False(t, rec.CreatedAt.IsZero())

	bal, err := mem.GetBalance(context.Background(), "ws-1")
	require.NoError(t, err)
	assert.Equal(t, int64(7), bal.Balance)
	assert.Equal(t, int64(3), bal.TotalUsed)
	assert.Len(t, mem.UsageLogs(), 1)
}

func TestGetBalanceUnknownWorkspaceIsZero(t *testing.T) {
	mem := NewMemory()

	bal, err := mem.GetBalance(context.Background(), "ws-new")
	require.NoError(t, err)
	assert.Equal(t, int64(0), bal.Balance)
	assert.Equal(t, int64(0), bal.TotalUsed)
}

func TestMessageLogLastNWindow(t *testing.T) {
	mem := NewMemory()
	ctx := context.Background()

	for i := 0; i < 6; i++ {
		require.NoError(t, mem.Append(ctx, &model.Message{
			ConversationID: "conv-1",
			Role:           model.RoleUser,
			Content:        fmt.Sprintf("msg %d", i),
		}))
	}

	got, err := mem.LastN(ctx, "conv-1", 4)
	require.NoError(t, err)
	require.Len(t, got, 4)

	// Ascending order, oldest of the window first.
	assert.Equal(t, "msg 2", got[0].Content)
	assert.Equal(t, "msg 5", got[3].Content)
}

func TestMessageLogAssignsIDs(t *testing.T) {
	mem := NewMemory()
	msg := &model.Message{ConversationID: "conv-1", Role: model.RoleAgent, Content: "hola"}

	require.NoError(t, mem.Append(context.Background(), msg))
	assert.NotEmpty(t, msg.ID)
	assert.False(t, msg.CreatedAt.IsZero())
}
