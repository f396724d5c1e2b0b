package domain

import (
	"time"
)

// BudgetMetrics is the transient per-run accumulator held only while a run
// is live and discarded on every terminal transition.
type BudgetMetrics struct {
	RunID     string    `json:"run_id"`
	CostCents int64     `json:"cost_cents"`
	LLMCalls  int       `json:"llm_calls"`
	StartTime time.Time `json:"start_time"`
}

// BudgetCheck reports the first violated budget dimension, checked in
// cost, llm_calls, latency order.
type BudgetCheck struct {
	Exceeded bool   `json:"exceeded"`
	Reason   string `json:"reason,omitempty"`
	Limit    int64  `json:"limit,omitempty"`
	Actual   int64  `json:"actual,omitempty"`
}

const (
	BudgetReasonCost     = "cost"
	BudgetReasonLLMCalls = "llm_calls"
	BudgetReasonLatency  = "latency"
)
