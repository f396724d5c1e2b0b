package core

import (
	"context"
	"log/slog"

	"github.com/eleven-am/warden/internal/adapters/budget"
	"github.com/eleven-am/warden/internal/adapters/chain"
	"github.com/eleven-am/warden/internal/adapters/engine"
	"github.com/eleven-am/warden/internal/adapters/events"
	"github.com/eleven-am/warden/internal/adapters/policy"
	"github.com/eleven-am/warden/internal/adapters/storage"
	"github.com/eleven-am/warden/internal/domain"
	"github.com/eleven-am/warden/internal/ports"
)

// Manager wires storage, policy, budget, chain and engine adapters into a
// single embeddable surface. One Manager per process; runs execute on its
// goroutines and stop accepting work after Close.
type Manager struct {
	engine       *engine.Orchestrator
	store        ports.StoragePort
	repos        *storage.Repositories
	policy       ports.PolicyPort
	budget       ports.BudgetPort
	chain        ports.ChainPort
	eventManager ports.EventManager
	sink         ports.EventSink

	agentRunner ports.AgentRunner
	toolDisp    ports.ToolDispatcher

	config *domain.Config
	logger *slog.Logger
}

func New(dataDir string, logger *slog.Logger) (*Manager, error) {
	config := domain.DefaultConfig()
	config.DataDir = dataDir
	config.Logger = logger
	return NewWithConfig(config)
}

func NewWithConfig(config *domain.Config) (*Manager, error) {
	config.Normalize()
	logger := config.Logger.With("component", "warden")

	store, err := storage.NewAdapter(config.DataDir, config.InMemory, config.Logger)
	if err != nil {
		return nil, err
	}

	repos := storage.NewRepositories(store, config.Logger)
	eventManager := events.NewManager(config.Logger)
	sink := events.NewRecorder(repos.Events, eventManager, config.Logger)

	policyEngine := policy.NewEngine(repos.Policies, repos.Tools, repos.Agents, sink, config.PolicyFailOpen, config.Logger)
	budgetTracker := budget.NewTracker(repos.Runs, sink, config.Logger)
	chainBuilder := chain.NewBuilder(config.Logger)

	orchestrator := engine.NewOrchestrator(engine.Deps{
		Workflows: repos.Workflows,
		Runs:      repos.Runs,
		Steps:     repos.Steps,
		Events:    repos.Events,
		Policy:    policyEngine,
		Budget:    budgetTracker,
		Chain:     chainBuilder,
		Sink:      sink,
	}, config)

	return &Manager{
		engine:       orchestrator,
		store:        store,
		repos:        repos,
		policy:       policyEngine,
		budget:       budgetTracker,
		chain:        chainBuilder,
		eventManager: eventManager,
		sink:         sink,
		config:       config,
		logger:       logger,
	}, nil
}

// SetAgentRunner installs the collaborator that executes agent nodes and
// answers routing prompts. Must be called before starting runs that use
// agent or router nodes.
func (m *Manager) SetAgentRunner(runner ports.AgentRunner) {
	m.agentRunner = runner
	m.engine.SetCollaborators(runner, m.toolDisp)
}

// SetToolDispatcher installs the collaborator that performs tool calls.
func (m *Manager) SetToolDispatcher(dispatcher ports.ToolDispatcher) {
	m.toolDisp = dispatcher
	m.engine.SetCollaborators(m.agentRunner, dispatcher)
}

// SaveWorkflow validates and persists a workflow definition.
func (m *Manager) SaveWorkflow(ctx context.Context, workflow *domain.Workflow) error {
	if err := workflow.Validate(); err != nil {
		return err
	}
	return m.repos.Workflows.Save(ctx, workflow)
}

func (m *Manager) GetWorkflow(ctx context.Context, id string) (*domain.Workflow, error) {
	return m.repos.Workflows.FindByID(ctx, id)
}

// SavePolicy persists a governance policy. It takes effect on the next
// evaluation; decisions in flight are not revisited.
func (m *Manager) SavePolicy(ctx context.Context, p *domain.Policy) error {
	return m.repos.Policies.Save(ctx, p)
}

func (m *Manager) SaveTool(ctx context.Context, tool *domain.Tool) error {
	return m.repos.Tools.Save(ctx, tool)
}

func (m *Manager) SaveAgentContract(ctx context.Context, contract *domain.AgentContract) error {
	return m.repos.Agents.SaveContract(ctx, contract)
}

// LoadPolicyPack reads a YAML pack of policies, tools and agent contracts
// from disk and persists its contents.
func (m *Manager) LoadPolicyPack(ctx context.Context, path string) error {
	pack, err := policy.LoadPack(ctx, path, m.repos.Policies, m.repos.Tools, m.repos.Agents)
	if err != nil {
		return err
	}
	m.logger.Info("policy pack loaded",
		"path", path,
		"policies", len(pack.Policies),
		"tools", len(pack.Tools),
		"contracts", len(pack.Contracts))
	return nil
}

func (m *Manager) StartRun(ctx context.Context, req ports.StartRunRequest) (*domain.Run, error) {
	return m.engine.StartRun(ctx, req)
}

func (m *Manager) ResumeRun(ctx context.Context, runID string, approval map[string]interface{}) (*domain.Run, error) {
	return m.engine.ResumeRun(ctx, runID, approval)
}

func (m *Manager) CancelRun(ctx context.Context, runID string) (*domain.Run, error) {
	return m.engine.CancelRun(ctx, runID)
}

func (m *Manager) GetRun(ctx context.Context, runID string) (*domain.Run, error) {
	return m.engine.GetRun(ctx, runID)
}

func (m *Manager) ListRunSteps(ctx context.Context, runID string) ([]domain.Step, error) {
	return m.repos.Steps.ListByRun(ctx, runID)
}

func (m *Manager) ListRunEvents(ctx context.Context, runID string) ([]domain.Event, error) {
	return m.repos.Events.ListByRun(ctx, runID)
}

// SubscribeRunEvents streams live events for one run, or all runs when
// runID is empty. The cancel func must be called to release the
// subscription.
func (m *Manager) SubscribeRunEvents(runID string) (<-chan domain.Event, func()) {
	return m.eventManager.Subscribe(runID)
}

// BuildChain assembles the hash-linked audit chain over everything the run
// has recorded so far.
func (m *Manager) BuildChain(ctx context.Context, runID string) (*domain.Chain, error) {
	run, err := m.repos.Runs.FindByID(ctx, runID)
	if err != nil {
		return nil, err
	}
	steps, err := m.repos.Steps.ListByRun(ctx, runID)
	if err != nil {
		return nil, err
	}
	events, err := m.repos.Events.ListByRun(ctx, runID)
	if err != nil {
		return nil, err
	}
	return m.chain.Build(steps, events, run), nil
}

// RenderChain renders the run's audit chain as numbered natural-language
// lines suitable for human review or LLM context.
func (m *Manager) RenderChain(ctx context.Context, runID string) (string, error) {
	built, err := m.BuildChain(ctx, runID)
	if err != nil {
		return "", err
	}
	return m.chain.Render(built), nil
}

func (m *Manager) EvaluatePolicy(ctx context.Context, pctx *domain.PolicyContext) (*domain.Decision, error) {
	return m.policy.Evaluate(ctx, pctx)
}

func (m *Manager) BudgetSnapshot(runID string) (domain.BudgetMetrics, bool) {
	return m.budget.Snapshot(runID)
}

// Close waits for in-flight runs, then releases the event manager and the
// store, in that order so late events still persist.
func (m *Manager) Close() error {
	m.engine.Wait()
	if err := m.eventManager.Close(); err != nil {
		m.logger.Warn("event manager close failed", "error", err.Error())
	}
	return m.store.Close()
}
