package handler

import (
	"encoding/json"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/konsul-ai/reply-engine/internal/middleware"
	"github.com/konsul-ai/reply-engine/internal/model"
	"github.com/konsul-ai/reply-engine/internal/orchestrator"
	"github.com/konsul-ai/reply-engine/internal/store"
	"github.com/konsul-ai/reply-engine/pkg/logger"
)

const maxMessageLength = 8192

// ReplyRequest is the body of a live reply invocation.
type ReplyRequest struct {
	Message  string                 `json:"message"`
	Metadata *model.MessageMetadata `json:"metadata,omitempty"`
}

// SandboxRequest is the body of a playground invocation. History is held by
// the caller; nothing is persisted server-side.
type SandboxRequest struct {
	Message string           `json:"message"`
	History []SandboxMessage `json:"history,omitempty"`
}

// SandboxMessage is one prior playground turn.
type SandboxMessage struct {
	Role    model.Role `json:"role"`
	Content string     `json:"content"`
}

// ReplyHandler handles reply generation endpoints.
type ReplyHandler struct {
	engine   *orchestrator.Engine
	agents   store.AgentStore
	messages store.MessageLog
	logger   *logger.Logger
}

// NewReplyHandler creates a new reply handler.
func NewReplyHandler(engine *orchestrator.Engine, agents store.AgentStore, messages store.MessageLog, log *logger.Logger) *ReplyHandler {
	return &ReplyHandler{
		engine:   engine,
		agents:   agents,
		messages: messages,
		logger:   log,
	}
}

// Reply handles POST /api/v1/agents/{agentID}/conversations/{conversationID}/reply
//
// The inbound user message is persisted to the conversation log first, so a
// failed generation never loses the visitor's turn.
func (h *ReplyHandler) Reply(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	agentID := chi.URLParam(r, "agentID")
	conversationID := chi.URLParam(r, "conversationID")

	agent, ok := h.authorizeAgent(w, r, agentID)
	if !ok {
		return
	}

	req, ok := decodeMessage(w, r)
	if !ok {
		return
	}

	if err := h.messages.Append(ctx, &model.Message{
		ConversationID: conversationID,
		WorkspaceID:    agent.WorkspaceID,
		Role:           model.RoleUser,
		Content:        req.Message,
		Metadata:       req.Metadata,
	}); err != nil {
		h.logger.Error("failed to persist inbound message", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "failed to persist message")
		return
	}

	result, err := h.engine.Reply(ctx, agentID, conversationID, req.Message)
	if err != nil {
		h.logger.Error("reply generation failed",
			zap.String("agent_id", agentID),
			zap.String("conversation_id", conversationID),
			zap.Error(err),
		)
		writeEngineError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, result)
}

// Sandbox handles POST /api/v1/agents/{agentID}/sandbox
func (h *ReplyHandler) Sandbox(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	agentID := chi.URLParam(r, "agentID")

	if _, ok := h.authorizeAgent(w, r, agentID); !ok {
		return
	}

	var req SandboxRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if strings.TrimSpace(req.Message) == "" {
		writeError(w, http.StatusBadRequest, "message is required")
		return
	}
	if len(req.Message) > maxMessageLength {
		writeError(w, http.StatusBadRequest, "message too long")
		return
	}

	history := make([]model.Message, 0, len(req.History))
	for _, m := range req.History {
		history = append(history, model.Message{Role: m.Role, Content: m.Content})
	}

	result, err := h.engine.SandboxReply(ctx, agentID, history, req.Message)
	if err != nil {
		h.logger.Error("sandbox reply failed", zap.String("agent_id", agentID), zap.Error(err))
		writeEngineError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, result)
}

// authorizeAgent loads the agent and checks it belongs to the caller's
// workspace. It writes the error response itself on failure.
func (h *ReplyHandler) authorizeAgent(w http.ResponseWriter, r *http.Request, agentID string) (*model.Agent, bool) {
	agent, err := h.agents.GetAgent(r.Context(), agentID)
	if err != nil {
		writeEngineError(w, err)
		return nil, false
	}

	if workspaceID := middleware.GetWorkspaceID(r.Context()); workspaceID != "" && workspaceID != agent.WorkspaceID {
		writeError(w, http.StatusNotFound, "agent not found")
		return nil, false
	}
	return agent, true
}

func decodeMessage(w http.ResponseWriter, r *http.Request) (*ReplyRequest, bool) {
	var req ReplyRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return nil, false
	}
	if strings.TrimSpace(req.Message) == "" {
		writeError(w, http.StatusBadRequest, "message is required")
		return nil, false
	}
	if len(req.Message) > maxMessageLength {
		writeError(w, http.StatusBadRequest, "message too long")
		return nil, false
	}
	return &req, true
}
