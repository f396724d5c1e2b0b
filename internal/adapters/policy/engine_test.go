package policy

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/eleven-am/warden/internal/domain"
	"github.com/eleven-am/warden/internal/ports"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakePolicyRepo struct {
	policies []domain.Policy
	err      error
}

func (f *fakePolicyRepo) Save(ctx context.Context, p *domain.Policy) error {
	f.policies = append(f.policies, *p)
	return nil
}

func (f *fakePolicyRepo) ListEnabled(ctx context.Context) ([]domain.Policy, error) {
	if f.err != nil {
		return nil, f.err
	}
	var enabled []domain.Policy
	for _, p := range f.policies {
		if p.Enabled {
			enabled = append(enabled, p)
		}
	}
	return enabled, nil
}

type fakeToolRepo struct {
	tools map[string]domain.Tool
}

func (f *fakeToolRepo) Save(ctx context.Context, tool *domain.Tool) error {
	if f.tools == nil {
		f.tools = map[string]domain.Tool{}
	}
	f.tools[tool.ID] = *tool
	return nil
}

func (f *fakeToolRepo) FindByID(ctx context.Context, id string) (*domain.Tool, error) {
	tool, ok := f.tools[id]
	if !ok {
		return nil, domain.NewNotFoundError("tool", id)
	}
	return &tool, nil
}

type fakeAgentRepo struct {
	contracts map[string]domain.AgentContract
}

func (f *fakeAgentRepo) SaveContract(ctx context.Context, contract *domain.AgentContract) error {
	if f.contracts == nil {
		f.contracts = map[string]domain.AgentContract{}
	}
	f.contracts[contract.AgentID] = *contract
	return nil
}

func (f *fakeAgentRepo) FindContract(ctx context.Context, agentID string) (*domain.AgentContract, error) {
	contract, ok := f.contracts[agentID]
	if !ok {
		return nil, domain.NewNotFoundError("agent contract", agentID)
	}
	return &contract, nil
}

type captureSink struct {
	mu     sync.Mutex
	events []domain.Event
}

func (c *captureSink) Emit(ctx context.Context, event *domain.Event) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.events = append(c.events, *event)
	return nil
}

func (c *captureSink) byKind(kind domain.EventKind) []domain.Event {
	c.mu.Lock()
	defer c.mu.Unlock()
	var out []domain.Event
	for _, e := range c.events {
		if e.Kind == kind {
			out = append(out, e)
		}
	}
	return out
}

func newTestEngine(policies []domain.Policy, failOpen bool) (*Engine, *fakeToolRepo, *fakeAgentRepo, *captureSink) {
	repo := &fakePolicyRepo{policies: policies}
	tools := &fakeToolRepo{}
	agents := &fakeAgentRepo{}
	sink := &captureSink{}
	return NewEngine(repo, tools, agents, sink, failOpen, nil), tools, agents, sink
}

func denyPolicy(id string, priority int) domain.Policy {
	return domain.Policy{
		ID:       id,
		Name:     id,
		Scope:    domain.ScopeGlobal,
		Effect:   domain.EffectDeny,
		Priority: priority,
		Enabled:  true,
	}
}

func TestEngine_Evaluate_DefaultAllowWithNoPolicies(t *testing.T) {
	engine, _, _, _ := newTestEngine(nil, false)

	decision, err := engine.Evaluate(context.Background(), &domain.PolicyContext{Action: "run_start"})
	require.NoError(t, err)
	assert.True(t, decision.Allowed)
	assert.Equal(t, "no matching policy", decision.Reason)
}

func TestEngine_Evaluate_LowestPriorityWins(t *testing.T) {
	allow := domain.Policy{
		ID: "allow-first", Name: "allow-first",
		Scope: domain.ScopeGlobal, Effect: domain.EffectAllow,
		Priority: 10, Enabled: true,
	}
	deny := denyPolicy("deny-later", 100)

	engine, _, _, _ := newTestEngine([]domain.Policy{deny, allow}, false)

	decision, err := engine.Evaluate(context.Background(), &domain.PolicyContext{Action: "run_start"})
	require.NoError(t, err)
	assert.True(t, decision.Allowed)
	assert.Equal(t, "allow-first", decision.PolicyID)
}

func TestEngine_Evaluate_DisabledPoliciesIgnored(t *testing.T) {
	deny := denyPolicy("deny", 1)
	deny.Enabled = false

	engine, _, _, _ := newTestEngine([]domain.Policy{deny}, false)

	decision, err := engine.Evaluate(context.Background(), &domain.PolicyContext{Action: "run_start"})
	require.NoError(t, err)
	assert.True(t, decision.Allowed)
}

func TestEngine_Evaluate_ScopeFiltering(t *testing.T) {
	deny := denyPolicy("tenant-deny", 1)
	deny.Scope = domain.ScopeTenant
	deny.ScopeID = "acme"

	engine, _, _, _ := newTestEngine([]domain.Policy{deny}, false)

	decision, err := engine.Evaluate(context.Background(), &domain.PolicyContext{Action: "run_start", TenantID: "acme"})
	require.NoError(t, err)
	assert.False(t, decision.Allowed)

	decision, err = engine.Evaluate(context.Background(), &domain.PolicyContext{Action: "run_start", TenantID: "other"})
	require.NoError(t, err)
	assert.True(t, decision.Allowed)
}

func TestEngine_Evaluate_RuleConditionsGateTheEffect(t *testing.T) {
	deny := denyPolicy("deny-prod", 1)
	deny.Rules = domain.RuleExpr{Conditions: []domain.Condition{
		{Field: "input.env", Operator: domain.OpEquals, Value: "prod"},
	}}

	engine, _, _, _ := newTestEngine([]domain.Policy{deny}, false)

	decision, err := engine.Evaluate(context.Background(), &domain.PolicyContext{
		Action: "run_start",
		Input:  map[string]interface{}{"env": "prod"},
	})
	require.NoError(t, err)
	assert.False(t, decision.Allowed)

	decision, err = engine.Evaluate(context.Background(), &domain.PolicyContext{
		Action: "run_start",
		Input:  map[string]interface{}{"env": "staging"},
	})
	require.NoError(t, err)
	assert.True(t, decision.Allowed)
}

func TestEngine_Evaluate_ModifyOnlyTouchesControlFields(t *testing.T) {
	modify := domain.Policy{
		ID: "force-draft", Name: "force-draft",
		Scope: domain.ScopeGlobal, Effect: domain.EffectModify,
		Modifications: map[string]interface{}{
			"mode":      "draft",
			"tenant_id": "hijacked",
		},
		Priority: 1, Enabled: true,
	}

	engine, _, _, _ := newTestEngine([]domain.Policy{modify}, false)

	decision, err := engine.Evaluate(context.Background(), &domain.PolicyContext{Action: "run_start"})
	require.NoError(t, err)
	assert.True(t, decision.Allowed)
	assert.Equal(t, "draft", decision.ModifiedContext["mode"])
	assert.NotContains(t, decision.ModifiedContext, "tenant_id")
}

func TestEngine_CheckRunStart_FailsClosedOnRepositoryError(t *testing.T) {
	repo := &fakePolicyRepo{err: errors.New("storage down")}
	sink := &captureSink{}
	engine := NewEngine(repo, &fakeToolRepo{}, &fakeAgentRepo{}, sink, false, nil)

	decision, err := engine.CheckRunStart(context.Background(), ports.RunStartCheck{WorkflowID: "wf-1"})
	require.NoError(t, err)
	assert.False(t, decision.Allowed)
	assert.Contains(t, decision.Reason, "policy evaluation failed")

	events := sink.byKind(domain.EventPolicyEval)
	require.NotEmpty(t, events)
	assert.Equal(t, false, events[0].Payload["fail_open"])
}

func TestEngine_CheckRunStart_FailOpenOverride(t *testing.T) {
	repo := &fakePolicyRepo{err: errors.New("storage down")}
	sink := &captureSink{}
	engine := NewEngine(repo, &fakeToolRepo{}, &fakeAgentRepo{}, sink, true, nil)

	decision, err := engine.CheckRunStart(context.Background(), ports.RunStartCheck{WorkflowID: "wf-1"})
	require.NoError(t, err)
	assert.True(t, decision.Allowed)
	assert.Contains(t, decision.Reason, "fail-open override")
}

func TestEngine_CheckToolCall_ResolvesRiskLevel(t *testing.T) {
	requireApproval := domain.Policy{
		ID: "approve-high-risk", Name: "approve-high-risk",
		Scope: domain.ScopeGlobal, Effect: domain.EffectRequireApproval,
		Rules: domain.RuleExpr{Conditions: []domain.Condition{
			{Field: "risk_level", Operator: domain.OpEquals, Value: "high"},
		}},
		Priority: 1, Enabled: true,
	}

	engine, tools, _, _ := newTestEngine([]domain.Policy{requireApproval}, false)
	require.NoError(t, tools.Save(context.Background(), &domain.Tool{ID: "deploy", RiskLevel: "high"}))
	require.NoError(t, tools.Save(context.Background(), &domain.Tool{ID: "echo", RiskLevel: "low"}))

	decision, err := engine.CheckToolCall(context.Background(), ports.ToolCallCheck{ToolID: "deploy"})
	require.NoError(t, err)
	assert.False(t, decision.Allowed)
	assert.True(t, decision.RequiresApproval)

	decision, err = engine.CheckToolCall(context.Background(), ports.ToolCallCheck{ToolID: "echo"})
	require.NoError(t, err)
	assert.True(t, decision.Allowed)
}

func TestEngine_CheckToolCall_UnknownToolFailsClosed(t *testing.T) {
	engine, _, _, _ := newTestEngine(nil, false)

	decision, err := engine.CheckToolCall(context.Background(), ports.ToolCallCheck{ToolID: "ghost"})
	require.NoError(t, err)
	assert.False(t, decision.Allowed)
}

func TestEngine_CheckAgentCall_ContractToolScope(t *testing.T) {
	engine, _, agents, _ := newTestEngine(nil, false)
	require.NoError(t, agents.SaveContract(context.Background(), &domain.AgentContract{
		AgentID:      "triage",
		AllowedTools: []string{"search", "summarize"},
	}))

	decision, err := engine.CheckAgentCall(context.Background(), ports.AgentCallCheck{AgentID: "triage", ToolID: "deploy"})
	require.NoError(t, err)
	assert.False(t, decision.Allowed)
	assert.Contains(t, decision.Reason, "outside agent contract scope")

	decision, err = engine.CheckAgentCall(context.Background(), ports.AgentCallCheck{AgentID: "triage", ToolID: "search"})
	require.NoError(t, err)
	assert.True(t, decision.Allowed)
}

func TestEngine_CheckAgentCall_ContractCostCap(t *testing.T) {
	engine, _, agents, _ := newTestEngine(nil, false)
	require.NoError(t, agents.SaveContract(context.Background(), &domain.AgentContract{
		AgentID:            "triage",
		MaxCostCentsPerRun: 100,
	}))

	decision, err := engine.CheckAgentCall(context.Background(), ports.AgentCallCheck{
		AgentID: "triage",
		Metrics: &domain.BudgetMetrics{CostCents: 100},
	})
	require.NoError(t, err)
	assert.False(t, decision.Allowed)
	assert.Contains(t, decision.Reason, "cost cap")

	decision, err = engine.CheckAgentCall(context.Background(), ports.AgentCallCheck{
		AgentID: "triage",
		Metrics: &domain.BudgetMetrics{CostCents: 99},
	})
	require.NoError(t, err)
	assert.True(t, decision.Allowed)
}

func TestEngine_CheckAgentCall_NoContractFallsThroughToRules(t *testing.T) {
	engine, _, _, _ := newTestEngine(nil, false)

	decision, err := engine.CheckAgentCall(context.Background(), ports.AgentCallCheck{AgentID: "unknown"})
	require.NoError(t, err)
	assert.True(t, decision.Allowed)
}

func TestEngine_CheckObjectAccess_OwnerAndVisibility(t *testing.T) {
	engine, _, _, _ := newTestEngine(nil, false)
	ctx := context.Background()

	decision, err := engine.CheckObjectAccess(ctx, ports.ObjectAccessCheck{
		UserID: "u-1",
		Access: "write",
		Object: domain.ObjectRef{Kind: "doc", ID: "d-1", OwnerID: "u-1", Visibility: domain.VisibilityPrivate},
	})
	require.NoError(t, err)
	assert.True(t, decision.Allowed)
	assert.Equal(t, "owner or custodian", decision.Reason)

	decision, err = engine.CheckObjectAccess(ctx, ports.ObjectAccessCheck{
		UserID:   "u-2",
		TenantID: "acme",
		Access:   "read",
		Object:   domain.ObjectRef{Kind: "doc", ID: "d-1", TenantID: "acme", Visibility: domain.VisibilityTenant},
	})
	require.NoError(t, err)
	assert.True(t, decision.Allowed)
}

func TestEngine_EveryDecisionEmitsPolicyEval(t *testing.T) {
	engine, _, _, sink := newTestEngine([]domain.Policy{denyPolicy("deny", 1)}, false)

	_, err := engine.CheckRunStart(context.Background(), ports.RunStartCheck{WorkflowID: "wf-1"})
	require.NoError(t, err)

	events := sink.byKind(domain.EventPolicyEval)
	require.Len(t, events, 1)
	assert.Equal(t, "run_start", events[0].Payload["action"])
	assert.Equal(t, false, events[0].Payload["allowed"])
	assert.Equal(t, "deny", events[0].Payload["policy_id"])
}
