// Package orchestrator drives one reply turn: contact linking, knowledge
// retrieval, prompt assembly, the bounded model/tool-call loop, persistence
// and usage metering — in that order, always.
package orchestrator

import (
	"context"
	"fmt"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"

	"github.com/konsul-ai/reply-engine/internal/billing"
	"github.com/konsul-ai/reply-engine/internal/calendar"
	"github.com/konsul-ai/reply-engine/internal/llm"
	"github.com/konsul-ai/reply-engine/internal/model"
	"github.com/konsul-ai/reply-engine/internal/prompt"
	"github.com/konsul-ai/reply-engine/internal/retrieval"
	"github.com/konsul-ai/reply-engine/internal/store"
	"github.com/konsul-ai/reply-engine/internal/tool"
	"github.com/konsul-ai/reply-engine/pkg/logger"
	"github.com/konsul-ai/reply-engine/pkg/metrics"
)

// Mode selects between the live chat path and the playground path. Both run
// the same loop; sandbox additionally registers the calendar tools and skips
// conversation persistence.
type Mode string

const (
	ModeLive    Mode = "live"
	ModeSandbox Mode = "sandbox"
)

const (
	// maxModelCalls bounds the tool-call loop. When the model still
	// requests tools after the last call, the turn exits best effort with
	// whatever content is present, possibly empty, rather than failing.
	maxModelCalls = 3

	// historyLimit is how many prior turns are replayed to the model.
	historyLimit = 20

	defaultMaxTokens = 4096
)

// ProviderResolver maps an agent's provider family to a provider.
type ProviderResolver interface {
	Resolve(family model.ProviderFamily) (llm.Provider, error)
}

// ReplyResult is the outcome of one reply turn.
type ReplyResult struct {
	Reply       string `json:"reply"`
	TokensUsed  int    `json:"tokens_used"`
	CreditsUsed int    `json:"credits_used"`
}

// Options tunes the engine's timeouts.
type Options struct {
	// TurnTimeout caps one full reply turn including the tool loop.
	TurnTimeout time.Duration

	// CallTimeout caps a single model call.
	CallTimeout time.Duration
}

// Engine is the reply orchestrator. It is safe for concurrent use; turns on
// the same conversation are serialized.
type Engine struct {
	store            store.Store
	messages         store.MessageLog
	retriever        *retrieval.Retriever
	sandboxRetriever *retrieval.Retriever
	providers        ProviderResolver
	calendar         calendar.Client // nil when no calendar credentials are configured
	meter            *billing.Meter
	linker           *Linker
	logger           *logger.Logger
	locks            *conversationLocks
	opts             Options
}

// NewEngine wires the orchestrator. sandboxRetriever may equal retriever
// when no embedding provider is configured.
func NewEngine(
	st store.Store,
	messages store.MessageLog,
	retriever, sandboxRetriever *retrieval.Retriever,
	providers ProviderResolver,
	cal calendar.Client,
	meter *billing.Meter,
	log *logger.Logger,
	opts Options,
) *Engine {
	if opts.TurnTimeout == 0 {
		opts.TurnTimeout = 90 * time.Second
	}
	if opts.CallTimeout == 0 {
		opts.CallTimeout = 45 * time.Second
	}
	return &Engine{
		store:            st,
		messages:         messages,
		retriever:        retriever,
		sandboxRetriever: sandboxRetriever,
		providers:        providers,
		calendar:         cal,
		meter:            meter,
		linker:           NewLinker(st, st),
		logger:           log,
		locks:            newConversationLocks(),
		opts:             opts,
	}
}

// Reply handles one inbound user message on a live conversation. The caller
// has already persisted the inbound message. Exactly one assistant-visible
// reply string is produced (it may be empty when the tool-loop bound is hit).
func (e *Engine) Reply(ctx context.Context, agentID, conversationID, userMessage string) (*ReplyResult, error) {
	start := time.Now()
	ctx, span := otel.Tracer("orchestrator").Start(ctx, "engine.Reply")
	defer span.End()
	span.SetAttributes(
		attribute.String("agent.id", agentID),
		attribute.String("conversation.id", conversationID),
	)

	// Serialize turns per conversation: concurrent inbound messages on one
	// thread would otherwise race on history reads and contact linking.
	e.locks.lock(conversationID)
	defer e.locks.unlock(conversationID)

	ctx, cancel := context.WithTimeout(ctx, e.opts.TurnTimeout)
	defer cancel()

	agent, err := e.store.GetAgent(ctx, agentID)
	if err != nil {
		return nil, err
	}
	conv, err := e.store.GetConversation(ctx, conversationID)
	if err != nil {
		return nil, err
	}

	log := e.logger.WithTurn(agent.WorkspaceID, agentID, conversationID)

	// Ensure the contact link before any tool can target it. A linking
	// failure is not fatal: update_contact calls will fail structurally
	// and the model can still reply.
	if _, err := e.linker.EnsureContact(ctx, conv); err != nil {
		log.Warn("contact linking failed, continuing", zap.Error(err))
	}

	var chunks []string
	if agent.SmartRetrieval {
		chunks = e.retriever.Retrieve(ctx, agentID, userMessage, retrieval.DefaultLimit)
	}

	history, err := e.history(ctx, conversationID, userMessage)
	if err != nil {
		log.Warn("history read failed, continuing without history", zap.Error(err))
		history = nil
	}

	registry := e.buildRegistry(ModeLive, agent, conv, log)

	session, err := e.newSession(agent, prompt.Build(agent, chunks), history, registry)
	if err != nil {
		metrics.RecordReply(string(ModeLive), "error", time.Since(start).Seconds())
		return nil, err
	}

	reply, err := e.runToolLoop(ctx, session, registry, userMessage, log)
	if err != nil {
		metrics.RecordReply(string(ModeLive), "error", time.Since(start).Seconds())
		return nil, fmt.Errorf("model loop: %w", err)
	}

	if err := e.persistReply(ctx, conv, reply); err != nil {
		log.Error("failed to persist reply", zap.Error(err))
		return nil, err
	}

	usage := session.Usage()
	credits, err := e.meter.Record(ctx, model.UsageLog{
		WorkspaceID:    agent.WorkspaceID,
		AgentID:        agent.ID,
		ConversationID: conv.ID,
		ChannelID:      conv.ChannelID,
		Model:          agent.Model,
		TokensUsed:     usage.Total(),
	})
	if err != nil {
		// A silently dropped decrement would corrupt billing; surface it.
		return nil, err
	}

	metrics.RecordReply(string(ModeLive), "success", time.Since(start).Seconds())
	log.Info("reply turn completed",
		zap.Int("tokens_used", usage.Total()),
		zap.Int("credits_used", credits),
		zap.Int("reply_len", len(reply)),
	)

	return &ReplyResult{Reply: reply, TokensUsed: usage.Total(), CreditsUsed: credits}, nil
}

// SandboxReply runs the playground path: history is supplied by the caller,
// nothing is persisted to the conversation log, and calendar tools are
// available when the agent has an enabled integration. Usage is still
// metered against the workspace.
func (e *Engine) SandboxReply(ctx context.Context, agentID string, history []model.Message, userMessage string) (*ReplyResult, error) {
	start := time.Now()
	ctx, span := otel.Tracer("orchestrator").Start(ctx, "engine.SandboxReply")
	defer span.End()
	span.SetAttributes(attribute.String("agent.id", agentID))

	ctx, cancel := context.WithTimeout(ctx, e.opts.TurnTimeout)
	defer cancel()

	agent, err := e.store.GetAgent(ctx, agentID)
	if err != nil {
		return nil, err
	}

	log := e.logger.WithTurn(agent.WorkspaceID, agentID, "sandbox")

	var chunks []string
	if agent.SmartRetrieval {
		chunks = e.sandboxRetriever.Retrieve(ctx, agentID, userMessage, retrieval.DefaultLimit)
	}

	registry := e.buildRegistry(ModeSandbox, agent, nil, log)

	session, err := e.newSession(agent, prompt.Build(agent, chunks), history, registry)
	if err != nil {
		metrics.RecordReply(string(ModeSandbox), "error", time.Since(start).Seconds())
		return nil, err
	}

	reply, err := e.runToolLoop(ctx, session, registry, userMessage, log)
	if err != nil {
		metrics.RecordReply(string(ModeSandbox), "error", time.Since(start).Seconds())
		return nil, fmt.Errorf("model loop: %w", err)
	}

	usage := session.Usage()
	credits, err := e.meter.Record(ctx, model.UsageLog{
		WorkspaceID: agent.WorkspaceID,
		AgentID:     agent.ID,
		ChannelID:   "sandbox",
		Model:       agent.Model,
		TokensUsed:  usage.Total(),
	})
	if err != nil {
		return nil, err
	}

	metrics.RecordReply(string(ModeSandbox), "success", time.Since(start).Seconds())
	return &ReplyResult{Reply: reply, TokensUsed: usage.Total(), CreditsUsed: credits}, nil
}

// history returns the conversation's recent turns, excluding the inbound
// user message the caller just persisted: it is sent as the live turn.
func (e *Engine) history(ctx context.Context, conversationID, userMessage string) ([]model.Message, error) {
	msgs, err := e.messages.LastN(ctx, conversationID, historyLimit)
	if err != nil {
		return nil, err
	}
	if n := len(msgs); n > 0 && msgs[n-1].Role == model.RoleUser && msgs[n-1].Content == userMessage {
		msgs = msgs[:n-1]
	}
	return msgs, nil
}

func (e *Engine) buildRegistry(mode Mode, agent *model.Agent, conv *model.Conversation, log *logger.Logger) *tool.Registry {
	registry := tool.NewRegistry(log)
	registry.Register(tool.NewUpdateContact(e.store, agent, conv))

	if mode == ModeSandbox && agent.CalendarEnabled() && e.calendar != nil {
		registry.Register(tool.NewCheckAvailability(e.calendar, agent.Calendar))
		registry.Register(tool.NewScheduleEvent(e.calendar, agent.Calendar))
	}
	return registry
}

func (e *Engine) newSession(agent *model.Agent, systemPrompt string, history []model.Message, registry *tool.Registry) (llm.Session, error) {
	provider, err := e.providers.Resolve(agent.Provider)
	if err != nil {
		return nil, err
	}

	var defs []llm.ToolDefinition
	for _, t := range registry.Tools() {
		defs = append(defs, llm.ToolDefinition{
			Name:        t.Name,
			Description: t.Description,
			Parameters:  t.Parameters,
		})
	}

	return provider.NewSession(&llm.SessionRequest{
		Model:        agent.Model,
		SystemPrompt: systemPrompt,
		History:      history,
		Tools:        defs,
		Temperature:  agent.Temperature,
		MaxTokens:    defaultMaxTokens,
	}), nil
}

// runToolLoop drives the bounded model/tool-call loop: at most maxModelCalls
// model invocations per turn. If the model still requests tools afterwards,
// the loop exits with whatever content the last call carried.
func (e *Engine) runToolLoop(ctx context.Context, session llm.Session, registry *tool.Registry, userMessage string, log *logger.Logger) (string, error) {
	turn, err := e.modelCall(ctx, func(callCtx context.Context) (*llm.ModelTurn, error) {
		return session.Send(callCtx, userMessage)
	})
	if err != nil {
		return "", err
	}

	for calls := 1; calls < maxModelCalls && len(turn.ToolCalls) > 0; calls++ {
		results := make([]llm.ToolResult, 0, len(turn.ToolCalls))
		for _, tc := range turn.ToolCalls {
			log.Info("executing tool call", zap.String("tool", tc.Name))
			payload := registry.Execute(ctx, tc.Name, tc.Arguments)
			results = append(results, llm.ToolResult{
				CallID:  tc.ID,
				Name:    tc.Name,
				Payload: payload,
			})
		}

		turn, err = e.modelCall(ctx, func(callCtx context.Context) (*llm.ModelTurn, error) {
			return session.SubmitToolResults(callCtx, results)
		})
		if err != nil {
			return "", err
		}
	}

	if len(turn.ToolCalls) > 0 {
		log.Warn("tool loop bound reached, returning last content as-is")
	}
	return turn.Content, nil
}

func (e *Engine) modelCall(ctx context.Context, call func(context.Context) (*llm.ModelTurn, error)) (*llm.ModelTurn, error) {
	callCtx, cancel := context.WithTimeout(ctx, e.opts.CallTimeout)
	defer cancel()
	return call(callCtx)
}

func (e *Engine) persistReply(ctx context.Context, conv *model.Conversation, reply string) error {
	if err := e.messages.Append(ctx, &model.Message{
		ConversationID: conv.ID,
		WorkspaceID:    conv.WorkspaceID,
		Role:           model.RoleAgent,
		Content:        reply,
	}); err != nil {
		return fmt.Errorf("append reply: %w", err)
	}
	if err := e.store.TouchConversation(ctx, conv.ID); err != nil {
		return fmt.Errorf("touch conversation: %w", err)
	}
	return nil
}
