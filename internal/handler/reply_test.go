package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/konsul-ai/reply-engine/internal/billing"
	"github.com/konsul-ai/reply-engine/internal/llm"
	"github.com/konsul-ai/reply-engine/internal/middleware"
	"github.com/konsul-ai/reply-engine/internal/model"
	"github.com/konsul-ai/reply-engine/internal/orchestrator"
	"github.com/konsul-ai/reply-engine/internal/retrieval"
	"github.com/konsul-ai/reply-engine/internal/store"
	"github.com/konsul-ai/reply-engine/pkg/logger"
)

type fixedSession struct {
	reply string
}

func (s *fixedSession) Send(ctx context.Context, userMessage string) (*llm.ModelTurn, error) {
	return &llm.ModelTurn{Content: s.reply}, nil
}

func (s *fixedSession) SubmitToolResults(ctx context.Context, results []llm.ToolResult) (*llm.ModelTurn, error) {
	return &llm.ModelTurn{Content: s.reply}, nil
}

func (s *fixedSession) Usage() llm.Usage {
	return llm.Usage{PromptTokens: 100, CompletionTokens: 50}
}

type fixedProvider struct {
	session llm.Session
}

func (p *fixedProvider) Family() model.ProviderFamily { return model.ProviderOpenAI }

func (p *fixedProvider) NewSession(req *llm.SessionRequest) llm.Session { return p.session }

type fixedResolver struct {
	provider llm.Provider
	err      error
}

func (r *fixedResolver) Resolve(family model.ProviderFamily) (llm.Provider, error) {
	return r.provider, r.err
}

func newTestRouter(t *testing.T, mem *store.Memory, resolver orchestrator.ProviderResolver, workspaceID string) http.Handler {
	t.Helper()

	log := logger.NewNop()
	retriever := retrieval.New(mem, log)
	engine := orchestrator.NewEngine(
		mem, mem,
		retriever, retriever,
		resolver,
		nil,
		billing.NewMeter(mem, log),
		log,
		orchestrator.Options{TurnTimeout: 5 * time.Second, CallTimeout: time.Second},
	)

	h := NewReplyHandler(engine, mem, mem, log)

	r := chi.NewRouter()
	if workspaceID != "" {
		r.Use(func(next http.Handler) http.Handler {
			return http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
				ctx := context.WithValue(req.Context(), middleware.WorkspaceIDKey, workspaceID)
				next.ServeHTTP(w, req.WithContext(ctx))
			})
		})
	}
	r.Post("/api/v1/agents/{agentID}/conversations/{conversationID}/reply", h.Reply)
	r.Post("/api/v1/agents/{agentID}/sandbox", h.Sandbox)
	return r
}

func seedAgentAndConversation(mem *store.Memory) {
	mem.PutAgent(&model.Agent{
		ID:          "agent-1",
		WorkspaceID: "ws-1",
		Name:        "Lucía",
		Provider:    model.ProviderOpenAI,
		Model:       "gpt-4o",
		Style:       model.StyleNormal,
		JobType:     model.JobSupport,
	})
	mem.PutConversation(&model.Conversation{
		ID:          "conv-1",
		WorkspaceID: "ws-1",
		AgentID:     "agent-1",
	})
}

func postJSON(t *testing.T, router http.Handler, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, path, bytes.NewBufferString(body))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	return rec
}

func TestReplyEndpoint(t *testing.T) {
	mem := store.NewMemory()
	seedAgentAndConversation(mem)
	resolver := &fixedResolver{provider: &fixedProvider{session: &fixedSession{reply: "¡Hola!"}}}
	router := newTestRouter(t, mem, resolver, "ws-1")

	rec := postJSON(t, router, "/api/v1/agents/agent-1/conversations/conv-1/reply", `{"message":"hola"}`)
	require.Equal(t, http.StatusOK, rec.Code)

	var result orchestrator.ReplyResult
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &result))
	assert.Equal(t, "¡Hola!", result.Reply)
	assert.Equal(t, 150, result.TokensUsed)
	assert.Equal(t, 2, result.CreditsUsed)

	// Both the inbound turn and the reply are in the log.
	msgs, err := mem.LastN(context.Background(), "conv-1", 10)
	require.NoError(t, err)
	require.Len(t, msgs, 2)
	assert.Equal(t, model.RoleUser, msgs[0].Role)
	assert.Equal(t, "hola", msgs[0].Content)
	assert.Equal(t, model.RoleAgent, msgs[1].Role)
	assert.Equal(t, "¡Hola!", msgs[1].Content)
}

func TestReplyEndpointValidation(t *testing.T) {
	mem := store.NewMemory()
	seedAgentAndConversation(mem)
	resolver := &fixedResolver{provider: &fixedProvider{session: &fixedSession{reply: "ok"}}}
	router := newTestRouter(t, mem, resolver, "ws-1")

	tests := []struct {
		name string
		body string
	}{
		{"empty body", `{}`},
		{"blank message", `{"message":"   "}`},
		{"malformed json", `{"message":`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := postJSON(t, router, "/api/v1/agents/agent-1/conversations/conv-1/reply", tt.body)
			assert.Equal(t, http.StatusBadRequest, rec.Code)
		})
	}
}

func TestReplyEndpointUnknownAgent(t *testing.T) {
	mem := store.NewMemory()
	resolver := &fixedResolver{provider: &fixedProvider{session: &fixedSession{reply: "ok"}}}
	router := newTestRouter(t, mem, resolver, "ws-1")

	rec := postJSON(t, router, "/api/v1/agents/missing/conversations/conv-1/reply", `{"message":"hola"}`)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestReplyEndpointForeignWorkspace(t *testing.T) {
	mem := store.NewMemory()
	seedAgentAndConversation(mem)
	resolver := &fixedResolver{provider: &fixedProvider{session: &fixedSession{reply: "ok"}}}
	router := newTestRouter(t, mem, resolver, "ws-other")

	rec := postJSON(t, router, "/api/v1/agents/agent-1/conversations/conv-1/reply", `{"message":"hola"}`)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestReplyEndpointProviderNotConfigured(t *testing.T) {
	mem := store.NewMemory()
	seedAgentAndConversation(mem)
	resolver := &fixedResolver{err: llm.ErrProviderNotConfigured}
	router := newTestRouter(t, mem, resolver, "ws-1")

	rec := postJSON(t, router, "/api/v1/agents/agent-1/conversations/conv-1/reply", `{"message":"hola"}`)
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

func TestSandboxEndpoint(t *testing.T) {
	mem := store.NewMemory()
	seedAgentAndConversation(mem)
	resolver := &fixedResolver{provider: &fixedProvider{session: &fixedSession{reply: "desde el sandbox"}}}
	router := newTestRouter(t, mem, resolver, "ws-1")

	rec := postJSON(t, router, "/api/v1/agents/agent-1/sandbox",
		`{"message":"hola","history":[{"role":"USER","content":"hey"},{"role":"AGENT","content":"buenas"}]}`)
	require.Equal(t, http.StatusOK, rec.Code)

	var result orchestrator.ReplyResult
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &result))
	assert.Equal(t, "desde el sandbox", result.Reply)

	// Sandbox turns leave no trace in any conversation log.
	msgs, err := mem.LastN(context.Background(), "conv-1", 10)
	require.NoError(t, err)
	assert.Empty(t, msgs)

	// But usage is metered.
	assert.Len(t, mem.UsageLogs(), 1)
}
