package ports

import (
	"context"

	"github.com/eleven-am/warden/internal/domain"
)

// BudgetPort accumulates per-run cost, call and latency metrics. AddCost and
// IncrementLLMCalls are fire-and-forget: they no-op for runs that were never
// initialized or already cleaned up.
type BudgetPort interface {
	Initialize(runID string)
	AddCost(runID string, cents int64)
	IncrementLLMCalls(runID string)

	// CheckBudget compares accumulated metrics against the run's configured
	// limits in cost, llm-calls, latency order and reports the first
	// violated dimension.
	CheckBudget(ctx context.Context, runID string) (*domain.BudgetCheck, error)

	Snapshot(runID string) (domain.BudgetMetrics, bool)

	// Cleanup discards the in-memory record. The orchestrator calls it on
	// every terminal transition, including cancellation.
	Cleanup(runID string)
}
