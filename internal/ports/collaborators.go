package ports

import (
	"context"

	"github.com/eleven-am/warden/internal/domain"
)

// AgentRunner is the LLM-backed agent execution collaborator. It performs
// its own model invocation and may return a not-found or execution error.
type AgentRunner interface {
	RunStep(ctx context.Context, agentID string, agentCtx domain.AgentContext, input map[string]interface{}) (*domain.AgentResult, error)
}

// ToolDispatcher executes a registered tool. A *domain.ApprovalRequiredError
// return is control flow: the orchestrator pauses the run instead of
// failing the step.
type ToolDispatcher interface {
	Call(ctx context.Context, toolID string, args map[string]interface{}, toolCtx domain.ToolContext) (map[string]interface{}, error)
}
