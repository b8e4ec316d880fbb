package model

import (
	"time"
)

// Role identifies who produced a conversation turn.
type Role string

const (
	RoleUser  Role = "USER"  // external visitor
	RoleAgent Role = "AGENT" // AI agent
	RoleHuman Role = "HUMAN" // human operator who took over
)

// MessageMetadata carries optional attachment information.
type MessageMetadata struct {
	AttachmentType string `json:"attachment_type,omitempty"`
	AttachmentURL  string `json:"attachment_url,omitempty"`
	Filename       string `json:"filename,omitempty"`
}

// Message is one immutable turn in a conversation, ordered strictly by
// CreatedAt ascending.
type Message struct {
	ID             string           `json:"id"`
	ConversationID string           `json:"conversation_id"`
	WorkspaceID    string           `json:"workspace_id"`
	Role           Role             `json:"role"`
	Content        string           `json:"content"`
	Metadata       *MessageMetadata `json:"metadata,omitempty"`
	CreatedAt      time.Time        `json:"created_at"`

	// Sequence is populated on read when the message log backend assigns
	// one (JetStream stream sequence).
	Sequence uint64 `json:"sequence,omitempty"`
}
