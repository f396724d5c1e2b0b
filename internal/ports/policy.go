package ports

import (
	"context"

	"github.com/eleven-am/warden/internal/domain"
)

// PolicyPort gates every run start, agent call and tool call. Evaluation
// never returns an error for a denial; errors mean the pipeline itself
// failed, and the engine's failure contract (fail closed by default)
// already converted that into a decision.
type PolicyPort interface {
	Evaluate(ctx context.Context, pctx *domain.PolicyContext) (*domain.Decision, error)

	CheckRunStart(ctx context.Context, check RunStartCheck) (*domain.Decision, error)
	CheckToolCall(ctx context.Context, check ToolCallCheck) (*domain.Decision, error)
	CheckAgentCall(ctx context.Context, check AgentCallCheck) (*domain.Decision, error)
	CheckObjectAccess(ctx context.Context, check ObjectAccessCheck) (*domain.Decision, error)
}

type RunStartCheck struct {
	WorkflowID string
	TenantID   string
	UserID     string
	AppID      string
	Mode       domain.RunMode
	Input      map[string]interface{}
}

type ToolCallCheck struct {
	ToolID   string
	RunID    string
	TenantID string
	UserID   string
	AppID    string
	Mode     domain.RunMode
	Args     map[string]interface{}
}

type AgentCallCheck struct {
	AgentID    string
	RunID      string
	TenantID   string
	UserID     string
	AppID      string
	Mode       domain.RunMode
	WorkflowID string
	// ToolID is set when the agent asks to invoke a tool; contract
	// allow-lists are enforced against it.
	ToolID string
	// Metrics is the run's current budget snapshot, checked against the
	// agent contract's per-run caps before the rule engine.
	Metrics *domain.BudgetMetrics
}

type ObjectAccessCheck struct {
	Object   domain.ObjectRef
	Access   string
	TenantID string
	UserID   string
	AppID    string
}
