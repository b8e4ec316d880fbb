// Package postgres provides the PostgreSQL implementation of the engine's
// data-access contracts, backed by pgxpool. Chunk embeddings are stored as
// pgvector columns.
package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/pgvector/pgvector-go"
	pgxvector "github.com/pgvector/pgvector-go/pgx"

	"github.com/konsul-ai/reply-engine/internal/model"
	"github.com/konsul-ai/reply-engine/internal/store"
	"github.com/konsul-ai/reply-engine/pkg/logger"
)

// DB wraps a pgxpool.Pool and implements store.Store and store.MessageLog.
type DB struct {
	pool   *pgxpool.Pool
	logger *logger.Logger
}

// New creates a DB with a connection pool and verifies connectivity.
func New(ctx context.Context, dsn string, log *logger.Logger) (*DB, error) {
	poolCfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("postgres: parse DSN: %w", err)
	}

	// Register pgvector types on each new connection. Best effort: the
	// extension may not exist before migrations have run.
	poolCfg.AfterConnect = func(ctx context.Context, conn *pgx.Conn) error {
		if err := pgxvector.RegisterTypes(ctx, conn); err != nil {
			log.Debug("postgres: pgvector types not registered")
		}
		return nil
	}

	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("postgres: create pool: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("postgres: ping: %w", err)
	}

	return &DB{pool: pool, logger: log}, nil
}

// Close releases the connection pool.
func (db *DB) Close() {
	db.pool.Close()
}

// Ping checks connectivity. Used by the readiness endpoint.
func (db *DB) Ping(ctx context.Context) error {
	return db.pool.Ping(ctx)
}

// GetAgent loads the agent row plus its custom field definitions and
// calendar integration.
func (db *DB) GetAgent(ctx context.Context, agentID string) (*model.Agent, error) {
	var a model.Agent
	err := db.pool.QueryRow(ctx,
		`SELECT id, workspace_id, name, provider, model, temperature,
		 personality, style, job_type,
		 COALESCE(job_company, ''), COALESCE(job_website, ''), COALESCE(job_description, ''),
		 allow_emojis, sign_messages, restrict_topics, split_long_messages,
		 allow_reminders, smart_retrieval, transfer_to_human,
		 timezone, created_at, updated_at
		 FROM agents WHERE id = $1`, agentID,
	).Scan(
		&a.ID, &a.WorkspaceID, &a.Name, &a.Provider, &a.Model, &a.Temperature,
		&a.Personality, &a.Style, &a.JobType,
		&a.JobCompany, &a.JobWebsite, &a.JobDescription,
		&a.AllowEmojis, &a.SignMessages, &a.RestrictTopics, &a.SplitLongMessages,
		&a.AllowReminders, &a.SmartRetrieval, &a.TransferToHuman,
		&a.Timezone, &a.CreatedAt, &a.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, store.ErrAgentNotFound
		}
		return nil, fmt.Errorf("postgres: get agent: %w", err)
	}

	rows, err := db.pool.Query(ctx,
		`SELECT key, label, type, COALESCE(description, ''), COALESCE(options, '{}')
		 FROM custom_field_definitions WHERE agent_id = $1 ORDER BY position, key`, agentID,
	)
	if err != nil {
		return nil, fmt.Errorf("postgres: get custom fields: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var f model.CustomFieldDefinition
		if err := rows.Scan(&f.Key, &f.Label, &f.Type, &f.Description, &f.Options); err != nil {
			return nil, fmt.Errorf("postgres: scan custom field: %w", err)
		}
		a.CustomFields = append(a.CustomFields, f)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("postgres: custom fields rows: %w", err)
	}

	var cal model.CalendarIntegration
	err = db.pool.QueryRow(ctx,
		`SELECT enabled, calendar_id, COALESCE(timezone, '')
		 FROM calendar_integrations WHERE agent_id = $1`, agentID,
	).Scan(&cal.Enabled, &cal.CalendarID, &cal.Timezone)
	switch {
	case err == nil:
		a.Calendar = &cal
	case errors.Is(err, pgx.ErrNoRows):
		// no integration configured
	default:
		return nil, fmt.Errorf("postgres: get calendar integration: %w", err)
	}

	return &a, nil
}

// GetConversation loads a conversation thread.
func (db *DB) GetConversation(ctx context.Context, conversationID string) (*model.Conversation, error) {
	var c model.Conversation
	err := db.pool.QueryRow(ctx,
		`SELECT id, workspace_id, agent_id, COALESCE(channel_id, ''),
		 COALESCE(external_id, ''), COALESCE(contact_name, ''), COALESCE(contact_email, ''),
		 contact_id, status, last_message_at, created_at
		 FROM conversations WHERE id = $1`, conversationID,
	).Scan(
		&c.ID, &c.WorkspaceID, &c.AgentID, &c.ChannelID,
		&c.ExternalID, &c.ContactName, &c.ContactEmail,
		&c.ContactID, &c.Status, &c.LastMessageAt, &c.CreatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, store.ErrConversationNotFound
		}
		return nil, fmt.Errorf("postgres: get conversation: %w", err)
	}
	return &c, nil
}

// LinkContact attaches a contact only if none is linked yet; under a race
// the first writer wins and the winning id is returned to both callers.
func (db *DB) LinkContact(ctx context.Context, conversationID, contactID string) (string, error) {
	tag, err := db.pool.Exec(ctx,
		`UPDATE conversations SET contact_id = $2
		 WHERE id = $1 AND contact_id IS NULL`,
		conversationID, contactID,
	)
	if err != nil {
		return "", fmt.Errorf("postgres: link contact: %w", err)
	}
	if tag.RowsAffected() == 1 {
		return contactID, nil
	}

	// Lost the race (or already linked): read the winner.
	var linked *string
	err = db.pool.QueryRow(ctx,
		`SELECT contact_id FROM conversations WHERE id = $1`, conversationID,
	).Scan(&linked)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return "", store.ErrConversationNotFound
		}
		return "", fmt.Errorf("postgres: read linked contact: %w", err)
	}
	if linked == nil {
		return "", fmt.Errorf("postgres: conversation %s has no linked contact after link attempt", conversationID)
	}
	return *linked, nil
}

// TouchConversation bumps LastMessageAt.
func (db *DB) TouchConversation(ctx context.Context, conversationID string) error {
	_, err := db.pool.Exec(ctx,
		`UPDATE conversations SET last_message_at = now() WHERE id = $1`, conversationID,
	)
	if err != nil {
		return fmt.Errorf("postgres: touch conversation: %w", err)
	}
	return nil
}

// CreateContact inserts a new contact.
func (db *DB) CreateContact(ctx context.Context, contact *model.Contact) error {
	if contact.ID == "" {
		contact.ID = uuid.Must(uuid.NewV7()).String()
	}
	now := time.Now().UTC()
	contact.CreatedAt = now
	contact.UpdatedAt = now
	if contact.CustomData == nil {
		contact.CustomData = make(map[string]any)
	}

	_, err := db.pool.Exec(ctx,
		`INSERT INTO contacts (id, workspace_id, name, email, external_id, custom_data, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		contact.ID, contact.WorkspaceID, contact.Name, contact.Email,
		contact.ExternalID, contact.CustomData, contact.CreatedAt, contact.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("postgres: create contact: %w", err)
	}
	return nil
}

// GetContact retrieves a contact by id.
func (db *DB) GetContact(ctx context.Context, contactID string) (*model.Contact, error) {
	var c model.Contact
	err := db.pool.QueryRow(ctx,
		`SELECT id, workspace_id, COALESCE(name, ''), COALESCE(email, ''),
		 COALESCE(external_id, ''), custom_data, created_at, updated_at
		 FROM contacts WHERE id = $1`, contactID,
	).Scan(&c.ID, &c.WorkspaceID, &c.Name, &c.Email, &c.ExternalID, &c.CustomData, &c.CreatedAt, &c.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, store.ErrContactNotFound
		}
		return nil, fmt.Errorf("postgres: get contact: %w", err)
	}
	return &c, nil
}

// UpdateContactData merges keys into the contact's custom_data jsonb.
func (db *DB) UpdateContactData(ctx context.Context, contactID string, updates map[string]any) error {
	tag, err := db.pool.Exec(ctx,
		`UPDATE contacts SET custom_data = custom_data || $2::jsonb, updated_at = now()
		 WHERE id = $1`,
		contactID, updates,
	)
	if err != nil {
		return fmt.Errorf("postgres: update contact data: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return store.ErrContactNotFound
	}
	return nil
}

// ReadyChunks returns every chunk of the agent whose parent source is READY.
func (db *DB) ReadyChunks(ctx context.Context, agentID string) ([]model.DocumentChunk, error) {
	rows, err := db.pool.Query(ctx,
		`SELECT c.id, c.source_id, c.content, c.embedding, c.created_at
		 FROM document_chunks c
		 JOIN knowledge_sources s ON s.id = c.source_id
		 JOIN knowledge_bases kb ON kb.id = s.knowledge_base_id
		 WHERE kb.agent_id = $1 AND s.status = 'READY'
		 ORDER BY c.created_at, c.id`, agentID,
	)
	if err != nil {
		return nil, fmt.Errorf("postgres: ready chunks: %w", err)
	}
	defer rows.Close()

	var chunks []model.DocumentChunk
	for rows.Next() {
		var ch model.DocumentChunk
		// Embedding is nullable: chunks ingested before the embedding
		// pass have no vector yet.
		var embedding *pgvector.Vector
		if err := rows.Scan(&ch.ID, &ch.SourceID, &ch.Content, &embedding, &ch.CreatedAt); err != nil {
			return nil, fmt.Errorf("postgres: scan chunk: %w", err)
		}
		if embedding != nil {
			ch.Embedding = embedding.Slice()
		}
		chunks = append(chunks, ch)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("postgres: chunk rows: %w", err)
	}
	return chunks, nil
}

// RecordUsage writes the usage log row and applies the balance decrement in
// one transaction. The decrement is a relative UPDATE, not read-modify-write,
// so concurrent turns for one workspace serialize at the row level.
func (db *DB) RecordUsage(ctx context.Context, rec *model.UsageLog) error {
	if rec.ID == "" {
		rec.ID = uuid.Must(uuid.NewV7()).String()
	}
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = time.Now().UTC()
	}

	tx, err := db.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("postgres: begin usage tx: %w", err)
	}
	defer tx.Rollback(ctx)

	_, err = tx.Exec(ctx,
		`INSERT INTO usage_logs (id, workspace_id, agent_id, conversation_id, channel_id, model, tokens_used, credits_used, created_at)
		 VALUES ($1, $2, $3, NULLIF($4, ''), NULLIF($5, ''), $6, $7, $8, $9)`,
		rec.ID, rec.WorkspaceID, rec.AgentID, rec.ConversationID, rec.ChannelID,
		rec.Model, rec.TokensUsed, rec.CreditsUsed, rec.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("postgres: insert usage log: %w", err)
	}

	_, err = tx.Exec(ctx,
		`INSERT INTO credit_balances (workspace_id, balance, total_used, updated_at)
		 VALUES ($1, -$2, $2, now())
		 ON CONFLICT (workspace_id) DO UPDATE SET
		   balance = credit_balances.balance - $2,
		   total_used = credit_balances.total_used + $2,
		   updated_at = now()`,
		rec.WorkspaceID, rec.CreditsUsed,
	)
	if err != nil {
		return fmt.Errorf("postgres: apply balance: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("postgres: commit usage tx: %w", err)
	}
	return nil
}

// GetBalance returns the workspace credit balance, zero-valued if the
// workspace has never been billed.
func (db *DB) GetBalance(ctx context.Context, workspaceID string) (*model.CreditBalance, error) {
	var b model.CreditBalance
	err := db.pool.QueryRow(ctx,
		`SELECT workspace_id, balance, total_used, updated_at
		 FROM credit_balances WHERE workspace_id = $1`, workspaceID,
	).Scan(&b.WorkspaceID, &b.Balance, &b.TotalUsed, &b.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return &model.CreditBalance{WorkspaceID: workspaceID}, nil
		}
		return nil, fmt.Errorf("postgres: get balance: %w", err)
	}
	return &b, nil
}

// Append stores one conversation turn.
func (db *DB) Append(ctx context.Context, msg *model.Message) error {
	if msg.ID == "" {
		msg.ID = uuid.Must(uuid.NewV7()).String()
	}
	if msg.CreatedAt.IsZero() {
		msg.CreatedAt = time.Now().UTC()
	}

	_, err := db.pool.Exec(ctx,
		`INSERT INTO messages (id, conversation_id, workspace_id, role, content, metadata, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		msg.ID, msg.ConversationID, msg.WorkspaceID, msg.Role, msg.Content, msg.Metadata, msg.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("postgres: append message: %w", err)
	}
	return nil
}

// LastN returns the most recent n messages in ascending order.
func (db *DB) LastN(ctx context.Context, conversationID string, n int) ([]model.Message, error) {
	rows, err := db.pool.Query(ctx,
		`SELECT id, conversation_id, workspace_id, role, content, metadata, created_at FROM (
		   SELECT id, conversation_id, workspace_id, role, content, metadata, created_at
		   FROM messages WHERE conversation_id = $1
		   ORDER BY created_at DESC, id DESC LIMIT $2
		 ) recent ORDER BY created_at ASC, id ASC`,
		conversationID, n,
	)
	if err != nil {
		return nil, fmt.Errorf("postgres: last messages: %w", err)
	}
	defer rows.Close()

	var out []model.Message
	for rows.Next() {
		var m model.Message
		if err := rows.Scan(&m.ID, &m.ConversationID, &m.WorkspaceID, &m.Role, &m.Content, &m.Metadata, &m.CreatedAt); err != nil {
			return nil, fmt.Errorf("postgres: scan message: %w", err)
		}
		out = append(out, m)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("postgres: message rows: %w", err)
	}
	return out, nil
}
