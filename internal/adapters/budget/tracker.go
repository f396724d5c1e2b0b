package budget

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/eleven-am/warden/internal/domain"
	"github.com/eleven-am/warden/internal/ports"
)

// Tracker accumulates per-run metrics in memory. The map is the only state
// shared across concurrently executing runs, so every access holds the
// mutex; accumulators and checks for the same run can race when an agent
// call spawns nested work.
type Tracker struct {
	mu      sync.Mutex
	metrics map[string]*domain.BudgetMetrics

	runs   ports.RunRepository
	sink   ports.EventSink
	now    func() time.Time
	logger *slog.Logger
}

func NewTracker(runs ports.RunRepository, sink ports.EventSink, logger *slog.Logger) *Tracker {
	if logger == nil {
		logger = slog.Default()
	}
	return &Tracker{
		metrics: make(map[string]*domain.BudgetMetrics),
		runs:    runs,
		sink:    sink,
		now:     time.Now,
		logger:  logger.With("component", "budget"),
	}
}

// Initialize creates a zeroed record for the run. Idempotent: resuming a
// paused run re-initializes only if the record is gone.
func (t *Tracker) Initialize(runID string) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if _, ok := t.metrics[runID]; ok {
		return
	}
	t.metrics[runID] = &domain.BudgetMetrics{
		RunID:     runID,
		StartTime: t.now(),
	}
	t.logger.Debug("budget initialized", "run_id", runID)
}

func (t *Tracker) AddCost(runID string, cents int64) {
	t.mu.Lock()
	defer t.mu.Unlock()

	m, ok := t.metrics[runID]
	if !ok {
		return
	}
	m.CostCents += cents
}

func (t *Tracker) IncrementLLMCalls(runID string) {
	t.mu.Lock()
	defer t.mu.Unlock()

	m, ok := t.metrics[runID]
	if !ok {
		return
	}
	m.LLMCalls++
}

func (t *Tracker) Snapshot(runID string) (domain.BudgetMetrics, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()

	m, ok := t.metrics[runID]
	if !ok {
		return domain.BudgetMetrics{}, false
	}
	return *m, true
}

// CheckBudget compares accumulated metrics against the run's configured
// limits in cost, llm-calls, latency order. A violation is also logged as a
// policy_eval event naming the violated dimension.
func (t *Tracker) CheckBudget(ctx context.Context, runID string) (*domain.BudgetCheck, error) {
	snapshot, ok := t.Snapshot(runID)
	if !ok {
		return &domain.BudgetCheck{}, nil
	}

	run, err := t.runs.FindByID(ctx, runID)
	if err != nil {
		return nil, err
	}

	check := &domain.BudgetCheck{}
	switch {
	case run.CostLimitCents != nil && snapshot.CostCents > *run.CostLimitCents:
		check = &domain.BudgetCheck{
			Exceeded: true,
			Reason:   domain.BudgetReasonCost,
			Limit:    *run.CostLimitCents,
			Actual:   snapshot.CostCents,
		}
	case run.LLMCallsLimit != nil && snapshot.LLMCalls > *run.LLMCallsLimit:
		check = &domain.BudgetCheck{
			Exceeded: true,
			Reason:   domain.BudgetReasonLLMCalls,
			Limit:    int64(*run.LLMCallsLimit),
			Actual:   int64(snapshot.LLMCalls),
		}
	case run.LatencySLOMs != nil:
		elapsed := t.now().Sub(snapshot.StartTime).Milliseconds()
		if elapsed > *run.LatencySLOMs {
			check = &domain.BudgetCheck{
				Exceeded: true,
				Reason:   domain.BudgetReasonLatency,
				Limit:    *run.LatencySLOMs,
				Actual:   elapsed,
			}
		}
	}

	if check.Exceeded {
		t.logger.Warn("budget exceeded",
			"run_id", runID,
			"reason", check.Reason,
			"limit", check.Limit,
			"actual", check.Actual)

		event := &domain.Event{
			RunID: runID,
			Kind:  domain.EventPolicyEval,
			Payload: map[string]interface{}{
				"action": "budget_check",
				"reason": check.Reason,
				"limit":  check.Limit,
				"actual": check.Actual,
			},
		}
		if err := t.sink.Emit(ctx, event); err != nil {
			t.logger.Error("failed to log budget violation", "run_id", runID, "error", err.Error())
		}
	}

	return check, nil
}

// Cleanup discards the record. Skipping it leaks the entry for the process
// lifetime, so the orchestrator calls it on every terminal transition.
func (t *Tracker) Cleanup(runID string) {
	t.mu.Lock()
	defer t.mu.Unlock()

	delete(t.metrics, runID)
	t.logger.Debug("budget cleaned up", "run_id", runID)
}
