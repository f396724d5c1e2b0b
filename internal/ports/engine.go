package ports

import (
	"context"

	"github.com/eleven-am/warden/internal/domain"
)

type EnginePort interface {
	// StartRun validates and gates the request, persists the run as pending
	// and launches traversal asynchronously. It returns before the run
	// completes.
	StartRun(ctx context.Context, req StartRunRequest) (*domain.Run, error)

	// ResumeRun completes the single pending step of a paused run with the
	// approval payload merged into its output and continues traversal from
	// the node after it.
	ResumeRun(ctx context.Context, runID string, approval map[string]interface{}) (*domain.Run, error)

	// CancelRun marks a run cancelled. Cooperative: an in-flight node
	// finishes, but no terminal write may overwrite the cancellation.
	CancelRun(ctx context.Context, runID string) (*domain.Run, error)

	GetRun(ctx context.Context, runID string) (*domain.Run, error)

	// Wait blocks until all in-flight traversals finish. Shutdown helper.
	Wait()
}

type StartRunRequest struct {
	WorkflowID  string                 `json:"workflow_id"`
	Input       map[string]interface{} `json:"input,omitempty"`
	Mode        domain.RunMode         `json:"mode"`
	TenantID    string                 `json:"tenant_id"`
	UserID      string                 `json:"user_id,omitempty"`
	AppID       string                 `json:"app_id,omitempty"`
	AppActionID string                 `json:"app_action_id,omitempty"`

	CostLimitCents *int64 `json:"cost_limit_cents,omitempty"`
	LLMCallsLimit  *int   `json:"llm_calls_limit,omitempty"`
	LatencySLOMs   *int64 `json:"latency_slo_ms,omitempty"`
}
