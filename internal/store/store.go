// Package store defines the data-access contracts the reply engine consumes,
// plus an in-memory implementation used for development and tests. The
// Postgres implementation lives in the postgres subpackage.
package store

import (
	"context"
	"errors"

	"github.com/konsul-ai/reply-engine/internal/model"
)

// Sentinel errors surfaced to the orchestrator. Missing agent or conversation
// is fatal for the current turn.
var (
	ErrAgentNotFound        = errors.New("agent not found")
	ErrConversationNotFound = errors.New("conversation not found")
	ErrContactNotFound      = errors.New("contact not found")
)

// AgentStore reads agent configuration. The engine reads an agent once per
// turn and caches it for the duration of the call.
type AgentStore interface {
	GetAgent(ctx context.Context, agentID string) (*model.Agent, error)
}

// ConversationStore reads conversation threads and manages the lazy
// contact link.
type ConversationStore interface {
	GetConversation(ctx context.Context, conversationID string) (*model.Conversation, error)

	// LinkContact attaches a contact to a conversation if and only if no
	// contact is linked yet, and returns the contact id actually linked
	// afterwards. Under a race the first writer wins and both callers see
	// the same id.
	LinkContact(ctx context.Context, conversationID, contactID string) (string, error)

	// TouchConversation bumps LastMessageAt.
	TouchConversation(ctx context.Context, conversationID string) error
}

// ContactStore creates and mutates workspace-scoped contacts.
type ContactStore interface {
	CreateContact(ctx context.Context, contact *model.Contact) error
	GetContact(ctx context.Context, contactID string) (*model.Contact, error)

	// UpdateContactData merges the given keys into the contact's custom
	// data map. Callers are responsible for only passing recognized keys.
	UpdateContactData(ctx context.Context, contactID string, updates map[string]any) error
}

// ChunkStore returns the retrieval-eligible chunks for an agent: every chunk
// across the agent's knowledge bases whose parent source is READY.
type ChunkStore interface {
	ReadyChunks(ctx context.Context, agentID string) ([]model.DocumentChunk, error)
}

// Ledger persists usage and bills it. RecordUsage writes one append-only
// UsageLog row and applies balance -= credits, totalUsed += credits on the
// workspace's CreditBalance as a single atomic unit; concurrent turns for
// the same workspace must not lose decrements.
type Ledger interface {
	RecordUsage(ctx context.Context, rec *model.UsageLog) error
	GetBalance(ctx context.Context, workspaceID string) (*model.CreditBalance, error)
}

// MessageLog is the append-only conversation history. LastN returns the most
// recent n messages in CreatedAt ascending order.
type MessageLog interface {
	Append(ctx context.Context, msg *model.Message) error
	LastN(ctx context.Context, conversationID string, n int) ([]model.Message, error)
}

// Store is the full persistence contract the engine is constructed with.
type Store interface {
	AgentStore
	ConversationStore
	ContactStore
	ChunkStore
	Ledger
}
