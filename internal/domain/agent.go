package domain

// AgentContext is handed to the agent-execution collaborator for one step.
// PreviousSteps carries the last completed steps of the run as conversation
// history, newest last.
type AgentContext struct {
	RunID         string                 `json:"run_id"`
	StepID        string                 `json:"step_id"`
	TenantID      string                 `json:"tenant_id"`
	UserID        string                 `json:"user_id,omitempty"`
	AppID         string                 `json:"app_id,omitempty"`
	WorkflowInput map[string]interface{} `json:"workflow_input,omitempty"`
	PreviousSteps []Step                 `json:"previous_steps,omitempty"`
}

type AgentResult struct {
	Text         string     `json:"text"`
	ToolCalls    []ToolCall `json:"tool_calls,omitempty"`
	FinishReason string     `json:"finish_reason,omitempty"`
	Usage        AgentUsage `json:"usage"`
}

type ToolCall struct {
	ToolID    string                 `json:"tool_id"`
	Arguments map[string]interface{} `json:"arguments,omitempty"`
}

// AgentUsage reports what one agent invocation consumed so the budget
// tracker can accumulate it.
type AgentUsage struct {
	CostCents int64 `json:"cost_cents"`
	LLMCalls  int   `json:"llm_calls"`
}

// ToolContext identifies the run a tool call executes within.
type ToolContext struct {
	RunID    string `json:"run_id"`
	StepID   string `json:"step_id,omitempty"`
	TenantID string `json:"tenant_id"`
	UserID   string `json:"user_id,omitempty"`
	AppID    string `json:"app_id,omitempty"`
}
