package policy

import (
	"context"
	"log/slog"
	"sort"

	"github.com/eleven-am/warden/internal/domain"
	"github.com/eleven-am/warden/internal/ports"
)

// Control fields a modify-effect policy may override. Anything else in the
// policy's modifications block is discarded.
var modifiableFields = map[string]struct{}{
	"mode":  {},
	"input": {},
}

// Engine gates run starts, agent calls and tool calls against scoped,
// prioritized rules. Within the matching scope set, the lowest-priority
// enabled policy wins; no match defaults to allow. If the pipeline itself
// errors, the engine fails closed unless the fail-open override is set.
type Engine struct {
	policies ports.PolicyRepository
	tools    ports.ToolRepository
	agents   ports.AgentRepository
	sink     ports.EventSink
	failOpen bool
	logger   *slog.Logger
}

func NewEngine(policies ports.PolicyRepository, tools ports.ToolRepository, agents ports.AgentRepository, sink ports.EventSink, failOpen bool, logger *slog.Logger) *Engine {
	if logger == nil {
		logger = slog.Default()
	}
	return &Engine{
		policies: policies,
		tools:    tools,
		agents:   agents,
		sink:     sink,
		failOpen: failOpen,
		logger:   logger.With("component", "policy"),
	}
}

func (e *Engine) Evaluate(ctx context.Context, pctx *domain.PolicyContext) (*domain.Decision, error) {
	policies, err := e.policies.ListEnabled(ctx)
	if err != nil {
		return nil, err
	}

	matching := make([]domain.Policy, 0, len(policies))
	for _, policy := range policies {
		if scopeMatches(policy, pctx) {
			matching = append(matching, policy)
		}
	}

	sort.SliceStable(matching, func(i, j int) bool {
		return matching[i].Priority < matching[j].Priority
	})

	ctxMap := pctx.AsMap()
	for _, policy := range matching {
		if !Matches(policy.Rules, ctxMap) {
			continue
		}

		e.logger.Debug("policy matched",
			"policy_id", policy.ID,
			"effect", policy.Effect,
			"priority", policy.Priority,
			"action", pctx.Action)

		switch policy.Effect {
		case domain.EffectAllow:
			return &domain.Decision{Allowed: true, Reason: "allowed by policy " + policy.Name, PolicyID: policy.ID}, nil
		case domain.EffectDeny:
			return &domain.Decision{Allowed: false, Reason: "denied by policy " + policy.Name, PolicyID: policy.ID}, nil
		case domain.EffectRequireApproval:
			return &domain.Decision{
				Allowed:          false,
				RequiresApproval: true,
				Reason:           "approval required by policy " + policy.Name,
				PolicyID:         policy.ID,
			}, nil
		case domain.EffectModify:
			return &domain.Decision{
				Allowed:         true,
				Reason:          "modified by policy " + policy.Name,
				PolicyID:        policy.ID,
				ModifiedContext: filterModifications(policy.Modifications),
			}, nil
		}
	}

	return &domain.Decision{Allowed: true, Reason: "no matching policy"}, nil
}

func (e *Engine) CheckRunStart(ctx context.Context, check ports.RunStartCheck) (*domain.Decision, error) {
	pctx := &domain.PolicyContext{
		Action:     "run_start",
		WorkflowID: check.WorkflowID,
		TenantID:   check.TenantID,
		UserID:     check.UserID,
		AppID:      check.AppID,
		Mode:       check.Mode,
		Input:      check.Input,
	}
	return e.decide(ctx, pctx, nil), nil
}

func (e *Engine) CheckToolCall(ctx context.Context, check ports.ToolCallCheck) (*domain.Decision, error) {
	pctx := &domain.PolicyContext{
		Action:   "tool_call",
		ToolID:   check.ToolID,
		RunID:    check.RunID,
		TenantID: check.TenantID,
		UserID:   check.UserID,
		AppID:    check.AppID,
		Mode:     check.Mode,
		Input:    check.Args,
	}

	tool, err := e.tools.FindByID(ctx, check.ToolID)
	if err != nil {
		return e.decideFailure(ctx, pctx, err), nil
	}
	pctx.RiskLevel = tool.RiskLevel

	return e.decide(ctx, pctx, nil), nil
}

func (e *Engine) CheckAgentCall(ctx context.Context, check ports.AgentCallCheck) (*domain.Decision, error) {
	pctx := &domain.PolicyContext{
		Action:     "agent_call",
		AgentID:    check.AgentID,
		RunID:      check.RunID,
		TenantID:   check.TenantID,
		UserID:     check.UserID,
		AppID:      check.AppID,
		Mode:       check.Mode,
		WorkflowID: check.WorkflowID,
		ToolID:     check.ToolID,
	}

	// Contract scope is enforced before the rule engine and short-circuits
	// it on violation.
	contract, err := e.agents.FindContract(ctx, check.AgentID)
	if err != nil && !domain.IsNotFound(err) {
		return e.decideFailure(ctx, pctx, err), nil
	}
	if contract != nil {
		if denial := checkContract(contract, check); denial != nil {
			return e.decide(ctx, pctx, denial), nil
		}
	}

	return e.decide(ctx, pctx, nil), nil
}

func (e *Engine) CheckObjectAccess(ctx context.Context, check ports.ObjectAccessCheck) (*domain.Decision, error) {
	pctx := &domain.PolicyContext{
		Action:   "object_access",
		TenantID: check.TenantID,
		UserID:   check.UserID,
		AppID:    check.AppID,
		Extra: map[string]interface{}{
			"object_kind": check.Object.Kind,
			"object_id":   check.Object.ID,
			"access":      check.Access,
			"visibility":  check.Object.Visibility,
		},
	}

	// Ownership and custody short-circuit the rules entirely.
	if check.UserID != "" && (check.UserID == check.Object.OwnerID || check.UserID == check.Object.CustodianID) {
		return e.decide(ctx, pctx, &domain.Decision{Allowed: true, Reason: "owner or custodian"}), nil
	}
	if check.Access == "read" {
		if check.Object.Visibility == domain.VisibilityPublic {
			return e.decide(ctx, pctx, &domain.Decision{Allowed: true, Reason: "public object"}), nil
		}
		if check.Object.Visibility == domain.VisibilityTenant && check.TenantID != "" && check.TenantID == check.Object.TenantID {
			return e.decide(ctx, pctx, &domain.Decision{Allowed: true, Reason: "tenant-visible object"}), nil
		}
	}

	return e.decide(ctx, pctx, nil), nil
}

// decide runs the rule engine (unless a short-circuit decision is supplied),
// applies the failure contract and logs the outcome as a policy_eval event.
func (e *Engine) decide(ctx context.Context, pctx *domain.PolicyContext, short *domain.Decision) *domain.Decision {
	decision := short
	if decision == nil {
		var err error
		decision, err = e.Evaluate(ctx, pctx)
		if err != nil {
			return e.decideFailure(ctx, pctx, err)
		}
	}

	e.logDecision(ctx, pctx, decision, nil)
	return decision
}

// decideFailure applies the failure contract: deny by default, allow only
// under the explicit fail-open override, which is logged distinctly.
func (e *Engine) decideFailure(ctx context.Context, pctx *domain.PolicyContext, cause error) *domain.Decision {
	var decision *domain.Decision
	if e.failOpen {
		e.logger.Warn("policy pipeline failed, fail-open override active",
			"action", pctx.Action,
			"error", cause.Error())
		decision = &domain.Decision{Allowed: true, Reason: "fail-open override: " + cause.Error()}
	} else {
		decision = &domain.Decision{Allowed: false, Reason: "policy evaluation failed: " + cause.Error()}
	}

	e.logDecision(ctx, pctx, decision, cause)
	return decision
}

func (e *Engine) logDecision(ctx context.Context, pctx *domain.PolicyContext, decision *domain.Decision, cause error) {
	payload := map[string]interface{}{
		"action":  pctx.Action,
		"allowed": decision.Allowed,
		"reason":  decision.Reason,
	}
	if decision.PolicyID != "" {
		payload["policy_id"] = decision.PolicyID
	}
	if decision.RequiresApproval {
		payload["requires_approval"] = true
	}
	if pctx.ToolID != "" {
		payload["tool_id"] = pctx.ToolID
	}
	if pctx.AgentID != "" {
		payload["agent_id"] = pctx.AgentID
	}
	if pctx.WorkflowID != "" {
		payload["workflow_id"] = pctx.WorkflowID
	}
	if cause != nil {
		payload["pipeline_error"] = cause.Error()
		payload["fail_open"] = e.failOpen
	}

	event := &domain.Event{
		RunID:   pctx.RunID,
		Kind:    domain.EventPolicyEval,
		Payload: payload,
	}
	if err := e.sink.Emit(ctx, event); err != nil {
		e.logger.Error("failed to log policy decision",
			"action", pctx.Action,
			"error", err.Error())
	}
}

func checkContract(contract *domain.AgentContract, check ports.AgentCallCheck) *domain.Decision {
	if check.ToolID != "" && len(contract.AllowedTools) > 0 && !containsString(contract.AllowedTools, check.ToolID) {
		return &domain.Decision{
			Allowed: false,
			Reason:  "tool " + check.ToolID + " outside agent contract scope",
		}
	}
	if check.WorkflowID != "" && len(contract.AllowedWorkflows) > 0 && !containsString(contract.AllowedWorkflows, check.WorkflowID) {
		return &domain.Decision{
			Allowed: false,
			Reason:  "workflow " + check.WorkflowID + " outside agent contract scope",
		}
	}
	if check.Metrics != nil {
		if contract.MaxCostCentsPerRun > 0 && check.Metrics.CostCents >= contract.MaxCostCentsPerRun {
			return &domain.Decision{
				Allowed: false,
				Reason:  "agent contract cost cap reached",
			}
		}
		if contract.MaxLLMCallsPerRun > 0 && check.Metrics.LLMCalls >= contract.MaxLLMCallsPerRun {
			return &domain.Decision{
				Allowed: false,
				Reason:  "agent contract llm call cap reached",
			}
		}
	}
	return nil
}

func scopeMatches(policy domain.Policy, pctx *domain.PolicyContext) bool {
	switch policy.Scope {
	case domain.ScopeGlobal:
		return true
	case domain.ScopeTenant:
		return pctx.TenantID != "" && policy.ScopeID == pctx.TenantID
	case domain.ScopeApp:
		return pctx.AppID != "" && policy.ScopeID == pctx.AppID
	case domain.ScopeTool:
		return pctx.ToolID != "" && policy.ScopeID == pctx.ToolID
	case domain.ScopeWorkflow:
		return pctx.WorkflowID != "" && policy.ScopeID == pctx.WorkflowID
	case domain.ScopeAgent:
		return pctx.AgentID != "" && policy.ScopeID == pctx.AgentID
	}
	return false
}

func filterModifications(mods map[string]interface{}) map[string]interface{} {
	if len(mods) == 0 {
		return nil
	}
	out := make(map[string]interface{}, len(mods))
	for key, value := range mods {
		if _, ok := modifiableFields[key]; ok {
			out[key] = value
		}
	}
	if len(out) == 0 {
		return nil
	}
	return out
}

func containsString(list []string, value string) bool {
	for _, item := range list {
		if item == value {
			return true
		}
	}
	return false
}
