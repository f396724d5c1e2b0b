package engine

import (
	"context"

	"github.com/eleven-am/warden/internal/domain"
	"github.com/eleven-am/warden/internal/ports"
)

// nodeExecutor is the closed dispatch surface for node types: one variant
// per declared type, uniform signature, no type-string switches in the
// traversal loop.
type nodeExecutor interface {
	Execute(ctx context.Context, ec *executionContext) (map[string]interface{}, error)
}

type executionContext struct {
	workflow *domain.Workflow
	run      *domain.Run
	node     *domain.Node
	step     *domain.Step
}

func (o *Orchestrator) buildExecutors() map[domain.NodeType]nodeExecutor {
	return map[domain.NodeType]nodeExecutor{
		domain.NodeTypeStatic:    &staticExecutor{},
		domain.NodeTypeAgent:     &agentExecutor{o: o},
		domain.NodeTypeTool:      &toolExecutor{o: o},
		domain.NodeTypeRouter:    &routerExecutor{},
		domain.NodeTypeHumanGate: &humanGateExecutor{},
	}
}

// staticExecutor returns the node's configured output verbatim.
type staticExecutor struct{}

func (e *staticExecutor) Execute(ctx context.Context, ec *executionContext) (map[string]interface{}, error) {
	value, ok := ec.node.Config["output"]
	if !ok {
		return map[string]interface{}{}, nil
	}
	if m, ok := value.(map[string]interface{}); ok {
		return m, nil
	}
	return map[string]interface{}{"output": value}, nil
}

// agentExecutor gates the call against the policy engine (contract scope
// first), delegates to the agent-execution collaborator and accounts the
// reported usage.
type agentExecutor struct {
	o *Orchestrator
}

func (e *agentExecutor) Execute(ctx context.Context, ec *executionContext) (map[string]interface{}, error) {
	agentID, ok := ec.node.Config["agent_id"].(string)
	if !ok || agentID == "" {
		return nil, domain.NewValidationError("agent_id", "agent node requires config.agent_id")
	}
	if e.o.agents == nil {
		return nil, domain.NewNotFoundError("agent runner", agentID)
	}

	run := ec.run
	var metrics *domain.BudgetMetrics
	if snapshot, ok := e.o.budget.Snapshot(run.ID); ok {
		metrics = &snapshot
	}

	decision, err := e.o.policy.CheckAgentCall(ctx, ports.AgentCallCheck{
		AgentID:    agentID,
		RunID:      run.ID,
		TenantID:   run.TenantID,
		UserID:     run.UserID,
		AppID:      run.AppID,
		Mode:       run.Mode,
		WorkflowID: run.WorkflowID,
		Metrics:    metrics,
	})
	if err != nil {
		return nil, err
	}
	if !decision.Allowed {
		return nil, domain.NewPolicyDeniedError(decision.Reason, decision.PolicyID, decision.RequiresApproval)
	}

	agentCtx := domain.AgentContext{
		RunID:         run.ID,
		StepID:        ec.step.ID,
		TenantID:      run.TenantID,
		UserID:        run.UserID,
		AppID:         run.AppID,
		WorkflowInput: run.Input,
		PreviousSteps: e.o.completedHistory(ctx, run.ID),
	}

	var input map[string]interface{}
	if m, ok := ec.node.Config["input"].(map[string]interface{}); ok {
		input = m
	}

	result, err := e.o.agents.RunStep(ctx, agentID, agentCtx, input)
	if err != nil {
		return nil, err
	}

	e.o.budget.AddCost(run.ID, result.Usage.CostCents)
	calls := result.Usage.LLMCalls
	if calls == 0 {
		calls = 1
	}
	for i := 0; i < calls; i++ {
		e.o.budget.IncrementLLMCalls(run.ID)
	}

	e.o.emit(ctx, run.ID, ec.step.ID, domain.EventLLMCall, map[string]interface{}{
		"agent_id":      agentID,
		"finish_reason": result.FinishReason,
		"cost_cents":    result.Usage.CostCents,
		"llm_calls":     calls,
	})

	output := map[string]interface{}{
		"text":          result.Text,
		"finish_reason": result.FinishReason,
	}
	if len(result.ToolCalls) > 0 {
		output["tool_calls"] = result.ToolCalls
	}
	return output, nil
}

// toolExecutor gates the call, then delegates to the tool dispatcher. An
// approval requirement from either the gate or the dispatcher propagates as
// control flow and pauses the run.
type toolExecutor struct {
	o *Orchestrator
}

func (e *toolExecutor) Execute(ctx context.Context, ec *executionContext) (map[string]interface{}, error) {
	toolID, ok := ec.node.Config["tool_id"].(string)
	if !ok || toolID == "" {
		return nil, domain.NewValidationError("tool_id", "tool node requires config.tool_id")
	}

	run := ec.run
	var args map[string]interface{}
	if m, ok := ec.node.Config["args"].(map[string]interface{}); ok {
		args = m
	}

	decision, err := e.o.policy.CheckToolCall(ctx, ports.ToolCallCheck{
		ToolID:   toolID,
		RunID:    run.ID,
		TenantID: run.TenantID,
		UserID:   run.UserID,
		AppID:    run.AppID,
		Mode:     run.Mode,
		Args:     args,
	})
	if err != nil {
		return nil, err
	}
	if decision.RequiresApproval {
		return nil, &domain.ApprovalRequiredError{RunID: run.ID, StepID: ec.step.ID, ToolID: toolID, Reason: decision.Reason}
	}
	if !decision.Allowed {
		return nil, domain.NewPolicyDeniedError(decision.Reason, decision.PolicyID, false)
	}

	if e.o.tools == nil {
		return nil, domain.NewNotFoundError("tool dispatcher", toolID)
	}

	e.o.emit(ctx, run.ID, ec.step.ID, domain.EventToolCall, map[string]interface{}{
		"tool_id": toolID,
	})

	result, err := e.o.tools.Call(ctx, toolID, args, domain.ToolContext{
		RunID:    run.ID,
		StepID:   ec.step.ID,
		TenantID: run.TenantID,
		UserID:   run.UserID,
		AppID:    run.AppID,
	})
	if err != nil {
		return nil, err
	}

	if result == nil {
		result = map[string]interface{}{}
	}
	return result, nil
}

// routerExecutor produces no output of its own; the routing decision is
// made during next-node resolution.
type routerExecutor struct{}

func (e *routerExecutor) Execute(ctx context.Context, ec *executionContext) (map[string]interface{}, error) {
	return map[string]interface{}{}, nil
}

// humanGateExecutor is a pass-through marker. Blocking gate semantics are an
// extension point; execution continues past the node.
type humanGateExecutor struct{}

func (e *humanGateExecutor) Execute(ctx context.Context, ec *executionContext) (map[string]interface{}, error) {
	return map[string]interface{}{"acknowledged": true}, nil
}
