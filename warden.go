// Package warden provides a policy-governed workflow execution engine for Go
// applications.
//
// Warden executes graph-shaped workflows whose nodes delegate to agents and
// tools, and wraps every execution in a governance envelope:
//   - Declarative policies evaluated before runs, tool calls and agent calls
//   - Per-run budgets for cost, model calls and wall-clock latency
//   - Human-approval pauses with explicit resume
//   - A hash-linked, append-only audit chain over every step and event
//
// Basic usage:
//
//	manager, err := warden.New("./data", logger)
//	manager.SetAgentRunner(&MyAgentRunner{})
//	manager.SetToolDispatcher(&MyToolDispatcher{})
//	manager.SaveWorkflow(ctx, workflow)
//
//	run, err := manager.StartRun(ctx, warden.StartRunRequest{
//	    WorkflowID: "triage",
//	    TenantID:   "acme",
//	    Mode:       warden.RunModeDraft,
//	    Input:      map[string]interface{}{"ticket": "T-1042"},
//	})
package warden

import (
	"log/slog"

	"github.com/eleven-am/warden/internal/core"
	"github.com/eleven-am/warden/internal/domain"
	"github.com/eleven-am/warden/internal/ports"
)

// Manager is the orchestration engine: workflow storage, run lifecycle,
// policy evaluation, budget tracking and audit-chain assembly.
type Manager = core.Manager

// Config controls storage location, traversal bounds, routing agents and
// the policy failure posture.
type Config = domain.Config

// Workflow is a directed graph of nodes and edges with a single entry node.
type Workflow = domain.Workflow

// Node is one unit of work in a workflow graph.
type Node = domain.Node

// Edge connects two nodes, optionally guarded by a natural-language
// condition.
type Edge = domain.Edge

// Route is one declared outcome of a router node.
type Route = domain.Route

// Run is a single execution of a workflow.
type Run = domain.Run

// Step records the execution of one node within a run.
type Step = domain.Step

// Event is one entry in a run's append-only activity log.
type Event = domain.Event

// Policy is a declarative governance rule scoped to a tenant, app, tool,
// workflow or agent.
type Policy = domain.Policy

// PolicyContext carries the attributes a policy evaluation sees.
type PolicyContext = domain.PolicyContext

// Decision is the outcome of a policy evaluation.
type Decision = domain.Decision

// AgentContract bounds what an agent may touch and spend per run.
type AgentContract = domain.AgentContract

// Tool describes a callable tool and its risk level.
type Tool = domain.Tool

// AtomicRecord is one hash-linked entry of a run's audit chain.
type AtomicRecord = domain.AtomicRecord

// Chain is the assembled audit chain of a run.
type Chain = domain.Chain

// BudgetMetrics is a point-in-time snapshot of a run's spend.
type BudgetMetrics = domain.BudgetMetrics

// StartRunRequest carries everything needed to gate and launch a run.
type StartRunRequest = ports.StartRunRequest

// AgentRunner executes agent steps. Implemented by the embedding
// application.
type AgentRunner = ports.AgentRunner

// ToolDispatcher performs tool calls. Implemented by the embedding
// application.
type ToolDispatcher = ports.ToolDispatcher

// AgentContext is what an AgentRunner sees about the surrounding run.
type AgentContext = domain.AgentContext

// AgentResult is an AgentRunner's reply, including usage accounting.
type AgentResult = domain.AgentResult

// ToolContext is what a ToolDispatcher sees about the surrounding run.
type ToolContext = domain.ToolContext

const (
	RunModeDraft = domain.RunModeDraft
	RunModeAuto  = domain.RunModeAuto

	RunStatusPending   = domain.RunStatusPending
	RunStatusRunning   = domain.RunStatusRunning
	RunStatusPaused    = domain.RunStatusPaused
	RunStatusCompleted = domain.RunStatusCompleted
	RunStatusFailed    = domain.RunStatusFailed
	RunStatusCancelled = domain.RunStatusCancelled

	NodeTypeStatic    = domain.NodeTypeStatic
	NodeTypeAgent     = domain.NodeTypeAgent
	NodeTypeTool      = domain.NodeTypeTool
	NodeTypeRouter    = domain.NodeTypeRouter
	NodeTypeHumanGate = domain.NodeTypeHumanGate
)

// New creates a Manager backed by a badger database at dataDir with default
// limits.
func New(dataDir string, logger *slog.Logger) (*Manager, error) {
	return core.New(dataDir, logger)
}

// NewWithConfig creates a Manager with explicit configuration.
func NewWithConfig(config *Config) (*Manager, error) {
	return core.NewWithConfig(config)
}

// DefaultConfig returns the default configuration.
func DefaultConfig() *Config {
	return domain.DefaultConfig()
}

// IsNotFound reports whether err is a lookup miss.
func IsNotFound(err error) bool { return domain.IsNotFound(err) }

// IsPolicyDenied reports whether err is a policy denial.
func IsPolicyDenied(err error) bool { return domain.IsPolicyDenied(err) }

// IsBudgetExceeded reports whether err is a budget violation.
func IsBudgetExceeded(err error) bool { return domain.IsBudgetExceeded(err) }

// IsApprovalRequired reports whether err signals a human-approval pause.
func IsApprovalRequired(err error) bool { return domain.IsApprovalRequired(err) }
