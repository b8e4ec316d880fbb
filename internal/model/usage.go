package model

import (
	"time"
)

// UsageLog is the append-only record of one LLM invocation turn. It is never
// mutated after creation.
type UsageLog struct {
	ID             string    `json:"id"`
	WorkspaceID    string    `json:"workspace_id"`
	AgentID        string    `json:"agent_id"`
	ConversationID string    `json:"conversation_id,omitempty"`
	ChannelID      string    `json:"channel_id,omitempty"`
	Model          string    `json:"model"`
	TokensUsed     int       `json:"tokens_used"`
	CreditsUsed    int       `json:"credits_used"`
	CreatedAt      time.Time `json:"created_at"`
}

// CreditBalance is the per-workspace credit ledger row. Balance has no floor:
// it may go negative, soft overage is allowed. TotalUsed only ever grows.
// Both fields are mutated exclusively through an atomic decrement/increment
// tied 1:1 to a UsageLog write.
type CreditBalance struct {
	WorkspaceID string    `json:"workspace_id"`
	Balance     int64     `json:"balance"`
	TotalUsed   int64     `json:"total_used"`
	UpdatedAt   time.Time `json:"updated_at"`
}
