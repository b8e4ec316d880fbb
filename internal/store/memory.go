package store

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/konsul-ai/reply-engine/internal/model"
)

// Memory is an in-memory Store and MessageLog. It is safe for concurrent use
// and backs development mode and the test suite.
type Memory struct {
	mu sync.RWMutex

	agents        map[string]*model.Agent
	conversations map[string]*model.Conversation
	contacts      map[string]*model.Contact
	sources       map[string]*model.KnowledgeSource
	chunks        map[string][]model.DocumentChunk // knowledge source ID -> chunks
	sourceAgents  map[string]string                // knowledge source ID -> agent ID
	usageLogs     []model.UsageLog
	balances      map[string]*model.CreditBalance
	messages      map[string][]model.Message // conversation ID -> ordered turns
}

// NewMemory creates an empty in-memory store.
func NewMemory() *Memory {
	return &Memory{
		agents:        make(map[string]*model.Agent),
		conversations: make(map[string]*model.Conversation),
		contacts:      make(map[string]*model.Contact),
		sources:       make(map[string]*model.KnowledgeSource),
		chunks:        make(map[string][]model.DocumentChunk),
		sourceAgents:  make(map[string]string),
		balances:      make(map[string]*model.CreditBalance),
		messages:      make(map[string][]model.Message),
	}
}

// PutAgent stores an agent configuration.
func (m *Memory) PutAgent(agent *model.Agent) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.agents[agent.ID] = agent
}

// GetAgent returns the agent or ErrAgentNotFound.
func (m *Memory) GetAgent(ctx context.Context, agentID string) (*model.Agent, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	agent, ok := m.agents[agentID]
	if !ok {
		return nil, ErrAgentNotFound
	}
	cp := *agent
	return &cp, nil
}

// PutConversation stores a conversation thread.
func (m *Memory) PutConversation(conv *model.Conversation) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.conversations[conv.ID] = conv
}

// GetConversation returns the conversation or ErrConversationNotFound.
func (m *Memory) GetConversation(ctx context.Context, conversationID string) (*model.Conversation, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	conv, ok := m.conversations[conversationID]
	if !ok {
		return nil, ErrConversationNotFound
	}
	cp := *conv
	if conv.ContactID != nil {
		id := *conv.ContactID
		cp.ContactID = &id
	}
	return &cp, nil
}

// LinkContact attaches a contact if none is linked yet; first writer wins.
func (m *Memory) LinkContact(ctx context.Context, conversationID, contactID string) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	conv, ok := m.conversations[conversationID]
	if !ok {
		return "", ErrConversationNotFound
	}
	if conv.ContactID != nil {
		return *conv.ContactID, nil
	}
	conv.ContactID = &contactID
	return contactID, nil
}

// TouchConversation bumps LastMessageAt.
func (m *Memory) TouchConversation(ctx context.Context, conversationID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	conv, ok := m.conversations[conversationID]
	if !ok {
		return ErrConversationNotFound
	}
	conv.LastMessageAt = time.Now()
	return nil
}

// CreateContact stores a new contact.
func (m *Memory) CreateContact(ctx context.Context, contact *model.Contact) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if contact.ID == "" {
		contact.ID = uuid.Must(uuid.NewV7()).String()
	}
	now := time.Now()
	contact.CreatedAt = now
	contact.UpdatedAt = now
	if contact.CustomData == nil {
		contact.CustomData = make(map[string]any)
	}
	m.contacts[contact.ID] = contact
	return nil
}

// GetContact returns the contact or ErrContactNotFound.
func (m *Memory) GetContact(ctx context.Context, contactID string) (*model.Contact, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	contact, ok := m.contacts[contactID]
	if !ok {
		return nil, ErrContactNotFound
	}
	cp := *contact
	cp.CustomData = make(map[string]any, len(contact.CustomData))
	for k, v := range contact.CustomData {
		cp.CustomData[k] = v
	}
	return &cp, nil
}

// UpdateContactData merges keys into the contact's custom data map.
func (m *Memory) UpdateContactData(ctx context.Context, contactID string, updates map[string]any) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	contact, ok := m.contacts[contactID]
	if !ok {
		return ErrContactNotFound
	}
	if contact.CustomData == nil {
		contact.CustomData = make(map[string]any)
	}
	for k, v := range updates {
		contact.CustomData[k] = v
	}
	contact.UpdatedAt = time.Now()
	return nil
}

// ContactCount reports how many contacts exist. Test helper.
func (m *Memory) ContactCount() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.contacts)
}

// PutChunks registers a knowledge source for an agent together with its
// chunks.
func (m *Memory) PutChunks(agentID string, source *model.KnowledgeSource, chunks []model.DocumentChunk) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.sources[source.ID] = source
	m.sourceAgents[source.ID] = agentID
	m.chunks[source.ID] = chunks
}

// ReadyChunks returns every chunk of the agent whose source is READY.
func (m *Memory) ReadyChunks(ctx context.Context, agentID string) ([]model.DocumentChunk, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var out []model.DocumentChunk
	for sourceID, owner := range m.sourceAgents {
		if owner != agentID {
			continue
		}
		source, ok := m.sources[sourceID]
		if !ok || source.Status != model.SourceReady {
			continue
		}
		out = append(out, m.chunks[sourceID]...)
	}
	// Stable order for deterministic retrieval ties.
	sort.SliceStable(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

// SetBalance seeds a workspace credit balance.
func (m *Memory) SetBalance(workspaceID string, balance int64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.balances[workspaceID] = &model.CreditBalance{
		WorkspaceID: workspaceID,
		Balance:     balance,
		UpdatedAt:   time.Now(),
	}
}

// RecordUsage appends the usage log row and applies the balance decrement
// under one lock, so concurrent turns never lose a decrement. The balance
// has no floor and may go negative.
func (m *Memory) RecordUsage(ctx context.Context, rec *model.UsageLog) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if rec.ID == "" {
		rec.ID = uuid.Must(uuid.NewV7()).String()
	}
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = time.Now()
	}
	m.usageLogs = append(m.usageLogs, *rec)

	bal, ok := m.balances[rec.WorkspaceID]
	if !ok {
		bal = &model.CreditBalance{WorkspaceID: rec.WorkspaceID}
		m.balances[rec.WorkspaceID] = bal
	}
	bal.Balance -= int64(rec.CreditsUsed)
	bal.TotalUsed += int64(rec.CreditsUsed)
	bal.UpdatedAt = time.Now()
	return nil
}

// GetBalance returns the workspace credit balance, zero-valued if the
// workspace has never been billed.
func (m *Memory) GetBalance(ctx context.Context, workspaceID string) (*model.CreditBalance, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	bal, ok := m.balances[workspaceID]
	if !ok {
		return &model.CreditBalance{WorkspaceID: workspaceID}, nil
	}
	cp := *bal
	return &cp, nil
}

// UsageLogs returns a copy of all recorded usage rows. Test helper.
func (m *Memory) UsageLogs() []model.UsageLog {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]model.UsageLog, len(m.usageLogs))
	copy(out, m.usageLogs)
	return out
}

// Append adds a message to the conversation's history.
func (m *Memory) Append(ctx context.Context, msg *model.Message) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if msg.ID == "" {
		msg.ID = uuid.Must(uuid.NewV7()).String()
	}
	if msg.CreatedAt.IsZero() {
		msg.CreatedAt = time.Now()
	}
	m.messages[msg.ConversationID] = append(m.messages[msg.ConversationID], *msg)
	return nil
}

// LastN returns the most recent n messages in ascending order.
func (m *Memory) LastN(ctx context.Context, conversationID string, n int) ([]model.Message, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	history := m.messages[conversationID]
	if len(history) > n {
		history = history[len(history)-n:]
	}
	out := make([]model.Message, len(history))
	copy(out, history)
	return out, nil
}
