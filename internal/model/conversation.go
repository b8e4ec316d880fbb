package model

import (
	"time"
)

// ConversationStatus is the lifecycle state of a conversation thread.
type ConversationStatus string

const (
	ConversationOpen   ConversationStatus = "OPEN"
	ConversationClosed ConversationStatus = "CLOSED"
)

// Conversation is a thread between one external visitor and one agent over
// one channel. The Contact link is lazily established: it is nullable at
// creation and set by the linker the first time a reply turn needs it.
type Conversation struct {
	ID          string `json:"id"`
	WorkspaceID string `json:"workspace_id"`
	AgentID     string `json:"agent_id"`
	ChannelID   string `json:"channel_id,omitempty"`

	// ExternalID is the channel-specific visitor identifier.
	ExternalID string `json:"external_id,omitempty"`

	// Denormalized convenience copies used when creating the Contact.
	ContactName  string `json:"contact_name,omitempty"`
	ContactEmail string `json:"contact_email,omitempty"`

	ContactID *string `json:"contact_id,omitempty"`

	Status        ConversationStatus `json:"status"`
	LastMessageAt time.Time          `json:"last_message_at"`
	CreatedAt     time.Time          `json:"created_at"`
}

// Contact is a workspace-scoped person record. CustomData is keyed by
// CustomFieldDefinition.Key; the orchestration layer only writes recognized
// keys (the store does not enforce this).
type Contact struct {
	ID          string         `json:"id"`
	WorkspaceID string         `json:"workspace_id"`
	Name        string         `json:"name,omitempty"`
	Email       string         `json:"email,omitempty"`
	ExternalID  string         `json:"external_id,omitempty"`
	CustomData  map[string]any `json:"custom_data,omitempty"`
	CreatedAt   time.Time      `json:"created_at"`
	UpdatedAt   time.Time      `json:"updated_at"`
}
