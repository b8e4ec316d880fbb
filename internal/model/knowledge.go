package model

import (
	"time"
)

// SourceType is the kind of knowledge source that was ingested.
type SourceType string

const (
	SourceText     SourceType = "TEXT"
	SourceWebsite  SourceType = "WEBSITE"
	SourceDocument SourceType = "DOCUMENT"
)

// SourceStatus is the ingestion state of a knowledge source. Only chunks
// whose parent source is READY are eligible for retrieval.
type SourceStatus string

const (
	SourcePending    SourceStatus = "PENDING"
	SourceProcessing SourceStatus = "PROCESSING"
	SourceReady      SourceStatus = "READY"
	SourceFailed     SourceStatus = "FAILED"
)

// KnowledgeBase groups knowledge sources under one agent.
type KnowledgeBase struct {
	ID        string    `json:"id"`
	AgentID   string    `json:"agent_id"`
	Name      string    `json:"name"`
	CreatedAt time.Time `json:"created_at"`
}

// KnowledgeSource is one ingested document, website or text blob.
type KnowledgeSource struct {
	ID              string       `json:"id"`
	KnowledgeBaseID string       `json:"knowledge_base_id"`
	Type            SourceType   `json:"type"`
	Status          SourceStatus `json:"status"`
	Name            string       `json:"name,omitempty"`
	CreatedAt       time.Time    `json:"created_at"`
}

// DocumentChunk is a fragment of ingested knowledge text with its embedding
// vector. The embedding may be empty when no embedding provider was
// configured at ingestion time.
type DocumentChunk struct {
	ID        string    `json:"id"`
	SourceID  string    `json:"source_id"`
	Content   string    `json:"content"`
	Embedding []float32 `json:"-"`
	CreatedAt time.Time `json:"created_at"`
}
