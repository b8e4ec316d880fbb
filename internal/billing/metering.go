// Package billing converts token consumption into credits and records it
// against the workspace ledger.
package billing

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/konsul-ai/reply-engine/internal/model"
	"github.com/konsul-ai/reply-engine/internal/store"
	"github.com/konsul-ai/reply-engine/pkg/logger"
	"github.com/konsul-ai/reply-engine/pkg/metrics"
)

// tokensPerCredit is the platform's billing ratio: one credit per started
// block of 100 tokens.
const tokensPerCredit = 100

// CreditsForTokens returns ceil(tokens / 100). Zero tokens bill zero
// credits.
func CreditsForTokens(tokens int) int {
	if tokens <= 0 {
		return 0
	}
	return (tokens + tokensPerCredit - 1) / tokensPerCredit
}

// Meter persists usage records and bills them. The ledger applies the
// UsageLog write and the balance decrement as one atomic unit, so a metering
// error never leaves a log without its decrement.
type Meter struct {
	ledger store.Ledger
	logger *logger.Logger
}

// NewMeter creates a meter over a ledger.
func NewMeter(ledger store.Ledger, log *logger.Logger) *Meter {
	return &Meter{ledger: ledger, logger: log}
}

// Record computes the credits for the turn's token total and persists the
// usage row plus the balance decrement. The balance has no floor; workspaces
// may go negative.
func (m *Meter) Record(ctx context.Context, rec model.UsageLog) (int, error) {
	rec.CreditsUsed = CreditsForTokens(rec.TokensUsed)

	if err := m.ledger.RecordUsage(ctx, &rec); err != nil {
		return 0, fmt.Errorf("record usage: %w", err)
	}

	metrics.CreditsConsumedTotal.WithLabelValues(rec.WorkspaceID).Add(float64(rec.CreditsUsed))
	m.logger.Info("usage recorded",
		zap.String("workspace_id", rec.WorkspaceID),
		zap.String("agent_id", rec.AgentID),
		zap.String("model", rec.Model),
		zap.Int("tokens_used", rec.TokensUsed),
		zap.Int("credits_used", rec.CreditsUsed),
	)

	return rec.CreditsUsed, nil
}
