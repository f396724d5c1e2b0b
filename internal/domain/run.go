package domain

import (
	"time"
)

type Run struct {
	ID          string                 `json:"id"`
	WorkflowID  string                 `json:"workflow_id"`
	TenantID    string                 `json:"tenant_id"`
	UserID      string                 `json:"user_id,omitempty"`
	AppID       string                 `json:"app_id,omitempty"`
	AppActionID string                 `json:"app_action_id,omitempty"`
	Mode        RunMode                `json:"mode"`
	Status      RunStatus              `json:"status"`
	Input       map[string]interface{} `json:"input,omitempty"`
	Result      map[string]interface{} `json:"result,omitempty"`

	CostLimitCents *int64 `json:"cost_limit_cents,omitempty"`
	LLMCallsLimit  *int   `json:"llm_calls_limit,omitempty"`
	LatencySLOMs   *int64 `json:"latency_slo_ms,omitempty"`

	CreatedAt   time.Time  `json:"created_at"`
	StartedAt   *time.Time `json:"started_at,omitempty"`
	CompletedAt *time.Time `json:"completed_at,omitempty"`
}

type RunMode string

const (
	RunModeDraft RunMode = "draft"
	RunModeAuto  RunMode = "auto"
)

type RunStatus string

const (
	RunStatusPending   RunStatus = "pending"
	RunStatusRunning   RunStatus = "running"
	RunStatusPaused    RunStatus = "paused"
	RunStatusCompleted RunStatus = "completed"
	RunStatusFailed    RunStatus = "failed"
	RunStatusCancelled RunStatus = "cancelled"
)

// IsTerminal reports whether no further status transition is allowed.
// Cancellation is terminal and must never be overwritten by a late
// completion or failure write.
func (s RunStatus) IsTerminal() bool {
	switch s {
	case RunStatusCompleted, RunStatusFailed, RunStatusCancelled:
		return true
	}
	return false
}
