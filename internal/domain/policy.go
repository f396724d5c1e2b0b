package domain

type Policy struct {
	ID      string      `json:"id" yaml:"id"`
	Name    string      `json:"name" yaml:"name"`
	Scope   PolicyScope `json:"scope" yaml:"scope"`
	ScopeID string      `json:"scope_id,omitempty" yaml:"scope_id"`
	Rules   RuleExpr    `json:"rules" yaml:"rules"`
	Effect  PolicyEffect `json:"effect" yaml:"effect"`
	// Modifications is applied to the evaluation context when Effect is
	// modify. Only control fields survive the merge.
	Modifications map[string]interface{} `json:"modifications,omitempty" yaml:"modifications"`
	// Priority orders evaluation; the lowest matching priority wins.
	Priority int  `json:"priority" yaml:"priority"`
	Enabled  bool `json:"enabled" yaml:"enabled"`
}

type PolicyScope string

const (
	ScopeGlobal   PolicyScope = "global"
	ScopeTenant   PolicyScope = "tenant"
	ScopeApp      PolicyScope = "app"
	ScopeTool     PolicyScope = "tool"
	ScopeWorkflow PolicyScope = "workflow"
	ScopeAgent    PolicyScope = "agent"
)

type PolicyEffect string

const (
	EffectAllow           PolicyEffect = "allow"
	EffectDeny            PolicyEffect = "deny"
	EffectRequireApproval PolicyEffect = "require_approval"
	EffectModify          PolicyEffect = "modify"
)

type RuleExpr struct {
	Conditions []Condition `json:"conditions" yaml:"conditions"`
	// Logic combines conditions: "AND" (default) or "OR". An empty
	// condition list always matches.
	Logic string `json:"logic,omitempty" yaml:"logic"`
}

type Condition struct {
	Field    string      `json:"field" yaml:"field"`
	Operator Operator    `json:"operator" yaml:"operator"`
	Value    interface{} `json:"value,omitempty" yaml:"value"`
}

type Operator string

const (
	OpEquals      Operator = "equals"
	OpNotEquals   Operator = "not_equals"
	OpIn          Operator = "in"
	OpNotIn       Operator = "not_in"
	OpGreaterThan Operator = "greater_than"
	OpLessThan    Operator = "less_than"
	OpContains    Operator = "contains"
	OpStartsWith  Operator = "starts_with"
	OpEndsWith    Operator = "ends_with"
	OpExists      Operator = "exists"
	OpNotExists   Operator = "not_exists"
)

// PolicyContext carries the subject, action and resource identifiers a
// decision is made against. Extra holds arbitrary situational fields
// addressable by dot-path conditions under "extra.".
type PolicyContext struct {
	UserID     string                 `json:"user_id,omitempty"`
	TenantID   string                 `json:"tenant_id,omitempty"`
	AppID      string                 `json:"app_id,omitempty"`
	Action     string                 `json:"action"`
	ToolID     string                 `json:"tool_id,omitempty"`
	WorkflowID string                 `json:"workflow_id,omitempty"`
	AgentID    string                 `json:"agent_id,omitempty"`
	RunID      string                 `json:"run_id,omitempty"`
	Mode       RunMode                `json:"mode,omitempty"`
	RiskLevel  string                 `json:"risk_level,omitempty"`
	Input      map[string]interface{} `json:"input,omitempty"`
	Extra      map[string]interface{} `json:"extra,omitempty"`
}

// AsMap projects the context into the flat namespace conditions resolve
// their dot-path fields against.
func (c *PolicyContext) AsMap() map[string]interface{} {
	m := map[string]interface{}{
		"user_id":     c.UserID,
		"tenant_id":   c.TenantID,
		"app_id":      c.AppID,
		"action":      c.Action,
		"tool_id":     c.ToolID,
		"workflow_id": c.WorkflowID,
		"agent_id":    c.AgentID,
		"run_id":      c.RunID,
		"mode":        string(c.Mode),
		"risk_level":  c.RiskLevel,
	}
	if c.Input != nil {
		m["input"] = c.Input
	}
	if c.Extra != nil {
		m["extra"] = c.Extra
	}
	return m
}

// Decision is the outcome of a policy evaluation. RequiresApproval
// distinguishes a soft denial (pause and ask a human) from a hard one.
type Decision struct {
	Allowed          bool                   `json:"allowed"`
	Reason           string                 `json:"reason,omitempty"`
	RequiresApproval bool                   `json:"requires_approval,omitempty"`
	ModifiedContext  map[string]interface{} `json:"modified_context,omitempty"`
	PolicyID         string                 `json:"policy_id,omitempty"`
}

// AgentContract is the per-agent execution envelope enforced before the
// generic rule engine on every agent call.
type AgentContract struct {
	AgentID           string   `json:"agent_id" yaml:"agent_id"`
	AllowedTools      []string `json:"allowed_tools,omitempty" yaml:"allowed_tools"`
	AllowedWorkflows  []string `json:"allowed_workflows,omitempty" yaml:"allowed_workflows"`
	MaxCostCentsPerRun int64   `json:"max_cost_cents_per_run,omitempty" yaml:"max_cost_cents_per_run"`
	MaxLLMCallsPerRun  int     `json:"max_llm_calls_per_run,omitempty" yaml:"max_llm_calls_per_run"`
}

// Tool is the registry record consulted for risk-level resolution.
type Tool struct {
	ID        string `json:"id" yaml:"id"`
	Name      string `json:"name" yaml:"name"`
	RiskLevel string `json:"risk_level,omitempty" yaml:"risk_level"`
}

// ObjectRef describes a governed resource for ownership-aware access checks.
type ObjectRef struct {
	Kind        string `json:"kind"`
	ID          string `json:"id"`
	TenantID    string `json:"tenant_id,omitempty"`
	OwnerID     string `json:"owner_id,omitempty"`
	CustodianID string `json:"custodian_id,omitempty"`
	Visibility  string `json:"visibility,omitempty"`
}

const (
	VisibilityPrivate = "private"
	VisibilityTenant  = "tenant"
	VisibilityPublic  = "public"
)
