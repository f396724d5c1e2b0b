package policy

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/eleven-am/warden/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const packYAML = `
policies:
  - id: deny-prod-deploy
    name: deny prod deploys in draft
    scope: tool
    scope_id: deploy
    effect: require_approval
    priority: 10
    enabled: true
    rules:
      logic: AND
      conditions:
        - field: input.env
          operator: equals
          value: prod
tools:
  - id: deploy
    name: Deployment tool
    risk_level: high
agent_contracts:
  - agent_id: triage
    allowed_tools: [search, summarize]
    max_cost_cents_per_run: 500
    max_llm_calls_per_run: 20
`

func TestLoadPack_PersistsEverything(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "pack.yaml")
	require.NoError(t, os.WriteFile(path, []byte(packYAML), 0o600))

	policies := &fakePolicyRepo{}
	tools := &fakeToolRepo{}
	agents := &fakeAgentRepo{}

	pack, err := LoadPack(context.Background(), path, policies, tools, agents)
	require.NoError(t, err)
	require.Len(t, pack.Policies, 1)
	require.Len(t, pack.Tools, 1)
	require.Len(t, pack.Contracts, 1)

	policy := pack.Policies[0]
	assert.Equal(t, "deny-prod-deploy", policy.ID)
	assert.Equal(t, domain.ScopeTool, policy.Scope)
	assert.Equal(t, domain.EffectRequireApproval, policy.Effect)
	require.Len(t, policy.Rules.Conditions, 1)
	assert.Equal(t, domain.OpEquals, policy.Rules.Conditions[0].Operator)
	assert.Equal(t, "prod", policy.Rules.Conditions[0].Value)

	tool, err := tools.FindByID(context.Background(), "deploy")
	require.NoError(t, err)
	assert.Equal(t, "high", tool.RiskLevel)

	contract, err := agents.FindContract(context.Background(), "triage")
	require.NoError(t, err)
	assert.Equal(t, int64(500), contract.MaxCostCentsPerRun)
	assert.Equal(t, []string{"search", "summarize"}, contract.AllowedTools)
}

func TestLoadPack_MissingFile(t *testing.T) {
	_, err := LoadPack(context.Background(), "/nonexistent/pack.yaml", &fakePolicyRepo{}, &fakeToolRepo{}, &fakeAgentRepo{})
	require.Error(t, err)
}

func TestLoadPack_MalformedYAML(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "bad.yaml")
	require.NoError(t, os.WriteFile(path, []byte("policies: {not a list"), 0o600))

	_, err := LoadPack(context.Background(), path, &fakePolicyRepo{}, &fakeToolRepo{}, &fakeAgentRepo{})
	require.Error(t, err)
}
