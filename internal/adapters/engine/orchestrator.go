package engine

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/eleven-am/warden/internal/domain"
	"github.com/eleven-am/warden/internal/ports"
	"github.com/google/uuid"
)

// Orchestrator walks workflow graphs one run at a time. Runs execute
// concurrently with each other, but node execution within a run is strictly
// sequential: next-node resolution depends on the just-produced step output.
type Orchestrator struct {
	workflows ports.WorkflowRepository
	runs      ports.RunRepository
	steps     ports.StepRepository
	events    ports.EventRepository

	policy ports.PolicyPort
	budget ports.BudgetPort
	chain  ports.ChainPort
	sink   ports.EventSink

	agents ports.AgentRunner
	tools  ports.ToolDispatcher

	executors map[domain.NodeType]nodeExecutor

	cfg    *domain.Config
	logger *slog.Logger
	now    func() time.Time
	wg     sync.WaitGroup
}

type Deps struct {
	Workflows ports.WorkflowRepository
	Runs      ports.RunRepository
	Steps     ports.StepRepository
	Events    ports.EventRepository
	Policy    ports.PolicyPort
	Budget    ports.BudgetPort
	Chain     ports.ChainPort
	Sink      ports.EventSink
	Agents    ports.AgentRunner
	Tools     ports.ToolDispatcher
}

func NewOrchestrator(deps Deps, cfg *domain.Config) *Orchestrator {
	cfg.Normalize()

	o := &Orchestrator{
		workflows: deps.Workflows,
		runs:      deps.Runs,
		steps:     deps.Steps,
		events:    deps.Events,
		policy:    deps.Policy,
		budget:    deps.Budget,
		chain:     deps.Chain,
		sink:      deps.Sink,
		agents:    deps.Agents,
		tools:     deps.Tools,
		cfg:       cfg,
		logger:    cfg.Logger.With("component", "orchestrator"),
		now:       time.Now,
	}
	o.executors = o.buildExecutors()
	return o
}

// SetCollaborators installs the agent and tool collaborators. Nil values
// leave the corresponding node types unservable, which surfaces as
// not-found step failures rather than panics.
func (o *Orchestrator) SetCollaborators(agents ports.AgentRunner, tools ports.ToolDispatcher) {
	o.agents = agents
	o.tools = tools
}

// StartRun gates the request, persists a pending run and launches traversal
// in the background. The returned run reflects the pre-traversal state.
func (o *Orchestrator) StartRun(ctx context.Context, req ports.StartRunRequest) (*domain.Run, error) {
	workflow, err := o.workflows.FindByID(ctx, req.WorkflowID)
	if err != nil {
		return nil, err
	}

	mode := req.Mode
	if mode == "" {
		mode = domain.RunModeDraft
	}

	decision, err := o.policy.CheckRunStart(ctx, ports.RunStartCheck{
		WorkflowID: req.WorkflowID,
		TenantID:   req.TenantID,
		UserID:     req.UserID,
		AppID:      req.AppID,
		Mode:       mode,
		Input:      req.Input,
	})
	if err != nil {
		return nil, err
	}
	if !decision.Allowed {
		return nil, domain.NewPolicyDeniedError(decision.Reason, decision.PolicyID, decision.RequiresApproval)
	}

	input := req.Input
	if decision.ModifiedContext != nil {
		if forced, ok := decision.ModifiedContext["mode"].(string); ok && forced != "" {
			mode = domain.RunMode(forced)
		}
		if extra, ok := decision.ModifiedContext["input"].(map[string]interface{}); ok {
			merged, err := domain.MergeMaps(input, extra)
			if err != nil {
				return nil, err
			}
			input = merged
		}
	}

	run := &domain.Run{
		ID:             uuid.New().String(),
		WorkflowID:     req.WorkflowID,
		TenantID:       req.TenantID,
		UserID:         req.UserID,
		AppID:          req.AppID,
		AppActionID:    req.AppActionID,
		Mode:           mode,
		Status:         domain.RunStatusPending,
		Input:          input,
		CostLimitCents: req.CostLimitCents,
		LLMCallsLimit:  req.LLMCallsLimit,
		LatencySLOMs:   req.LatencySLOMs,
		CreatedAt:      o.now(),
	}
	if err := o.runs.Save(ctx, run); err != nil {
		return nil, err
	}

	o.budget.Initialize(run.ID)
	o.emit(ctx, run.ID, "", domain.EventRunStarted, map[string]interface{}{
		"workflow_id": run.WorkflowID,
		"tenant_id":   run.TenantID,
		"mode":        string(run.Mode),
	})

	o.logger.Info("run started",
		"run_id", run.ID,
		"workflow_id", run.WorkflowID,
		"tenant_id", run.TenantID,
		"mode", run.Mode)

	returned := *run
	o.wg.Add(1)
	go func() {
		defer o.wg.Done()
		o.executeWorkflow(workflow, run)
	}()

	return &returned, nil
}

func (o *Orchestrator) GetRun(ctx context.Context, runID string) (*domain.Run, error) {
	return o.runs.FindByID(ctx, runID)
}

// CancelRun marks a run cancelled. Cooperative: an in-flight node finishes
// first, but the cancellation can never be overwritten by a late terminal
// write from the traversal.
func (o *Orchestrator) CancelRun(ctx context.Context, runID string) (*domain.Run, error) {
	run, err := o.runs.FindByID(ctx, runID)
	if err != nil {
		return nil, err
	}
	if run.Status.IsTerminal() {
		return nil, fmt.Errorf("%w: run %s is already %s", domain.ErrBadRequest, runID, run.Status)
	}

	now := o.now()
	run.Status = domain.RunStatusCancelled
	run.CompletedAt = &now
	if err := o.runs.Save(ctx, run); err != nil {
		return nil, err
	}

	o.emit(ctx, run.ID, "", domain.EventError, map[string]interface{}{
		"action": "run_cancelled",
	})
	o.budget.Cleanup(run.ID)

	o.logger.Info("run cancelled", "run_id", runID)
	return run, nil
}

// ResumeRun completes the single pending step of a paused run with the
// approval payload merged into its output, then continues traversal from
// the node after it rather than from the workflow entry.
func (o *Orchestrator) ResumeRun(ctx context.Context, runID string, approval map[string]interface{}) (*domain.Run, error) {
	run, err := o.runs.FindByID(ctx, runID)
	if err != nil {
		return nil, err
	}
	if run.Status != domain.RunStatusPaused {
		return nil, fmt.Errorf("%w: run %s is %s, not paused", domain.ErrBadRequest, runID, run.Status)
	}

	pending, err := o.steps.FindPending(ctx, runID)
	if err != nil {
		return nil, err
	}
	if len(pending) != 1 {
		return nil, fmt.Errorf("%w: expected exactly one pending step, found %d", domain.ErrBadRequest, len(pending))
	}

	step := pending[0]
	merged, err := domain.MergeMaps(step.Output, approval)
	if err != nil {
		return nil, err
	}
	now := o.now()
	step.Output = merged
	step.Status = domain.StepStatusCompleted
	step.FinishedAt = &now
	if err := o.steps.Save(ctx, &step); err != nil {
		return nil, err
	}

	run.Status = domain.RunStatusRunning
	if err := o.runs.Save(ctx, run); err != nil {
		return nil, err
	}

	// The metrics record survives a pause, but not a process restart.
	o.budget.Initialize(run.ID)

	o.emit(ctx, run.ID, step.ID, domain.EventPolicyEval, map[string]interface{}{
		"action":  "approval_granted",
		"node_id": step.NodeID,
	})

	workflow, err := o.workflows.FindByID(ctx, run.WorkflowID)
	if err != nil {
		return nil, err
	}
	node, ok := workflow.NodeByID(step.NodeID)
	if !ok {
		return nil, domain.NewValidationError("node", "approved step references undeclared node: "+step.NodeID)
	}

	executed, err := o.steps.ListByRun(ctx, runID)
	if err != nil {
		return nil, err
	}
	count := len(executed)

	o.logger.Info("run resumed", "run_id", runID, "node_id", step.NodeID)

	returned := *run
	o.wg.Add(1)
	go func() {
		defer o.wg.Done()
		defer o.recoverPanic(run)

		bg := context.Background()
		next := o.nextNode(bg, workflow, run, node, step.Output)
		if next == "" {
			o.completeRun(bg, run)
			return
		}
		o.traverse(bg, workflow, run, next, count)
	}()

	return &returned, nil
}

// Wait blocks until all in-flight traversals finish.
func (o *Orchestrator) Wait() {
	o.wg.Wait()
}

func (o *Orchestrator) executeWorkflow(workflow *domain.Workflow, run *domain.Run) {
	ctx := context.Background()
	defer o.recoverPanic(run)

	// A cancellation may have landed between StartRun and here.
	latest, err := o.runs.FindByID(ctx, run.ID)
	if err != nil {
		o.failRun(ctx, run, err)
		return
	}
	if latest.Status == domain.RunStatusCancelled {
		o.budget.Cleanup(run.ID)
		return
	}

	now := o.now()
	run.Status = domain.RunStatusRunning
	run.StartedAt = &now
	if err := o.runs.Save(ctx, run); err != nil {
		o.failRun(ctx, run, err)
		return
	}

	o.traverse(ctx, workflow, run, workflow.EntryNode, 0)
}

// traverse executes nodes sequentially from current until the graph runs
// out of edges, a budget or step limit trips, a failure propagates, or an
// approval requirement pauses the run.
func (o *Orchestrator) traverse(ctx context.Context, workflow *domain.Workflow, run *domain.Run, current string, executed int) {
	for count := executed; ; count++ {
		if count >= o.cfg.MaxStepsPerRun {
			o.failRun(ctx, run, &domain.MaxStepsExceededError{RunID: run.ID, Limit: o.cfg.MaxStepsPerRun})
			return
		}

		check, err := o.budget.CheckBudget(ctx, run.ID)
		if err != nil {
			o.failRun(ctx, run, err)
			return
		}
		if check.Exceeded {
			o.failRun(ctx, run, &domain.BudgetExceededError{
				RunID:  run.ID,
				Reason: check.Reason,
				Limit:  check.Limit,
				Actual: check.Actual,
			})
			return
		}

		node, ok := workflow.NodeByID(current)
		if !ok {
			o.failRun(ctx, run, domain.NewValidationError("node", "traversal reached undeclared node: "+current))
			return
		}

		step, output, err := o.executeStep(ctx, workflow, run, node)
		if err != nil {
			if approval, ok := domain.AsApprovalRequired(err); ok {
				o.pauseRun(ctx, run, step, approval)
				return
			}
			o.failRun(ctx, run, err)
			return
		}

		next := o.nextNode(ctx, workflow, run, node, output)
		if next == "" {
			o.completeRun(ctx, run)
			return
		}
		current = next
	}
}

func (o *Orchestrator) executeStep(ctx context.Context, workflow *domain.Workflow, run *domain.Run, node *domain.Node) (*domain.Step, map[string]interface{}, error) {
	step := &domain.Step{
		RunID:  run.ID,
		NodeID: node.ID,
		Type:   node.Type,
		Status: domain.StepStatusPending,
		Input:  node.Config,
	}
	if err := o.steps.Save(ctx, step); err != nil {
		return nil, nil, err
	}

	o.emit(ctx, run.ID, step.ID, domain.EventStepStarted, map[string]interface{}{
		"node_id":   node.ID,
		"node_type": string(node.Type),
	})

	started := o.now()
	step.Status = domain.StepStatusRunning
	step.StartedAt = &started
	if err := o.steps.Save(ctx, step); err != nil {
		return step, nil, err
	}

	executor, ok := o.executors[node.Type]
	if !ok {
		err := domain.NewValidationError("type", "unknown node type: "+string(node.Type))
		o.failStep(ctx, run, step, err)
		return step, nil, err
	}

	output, err := executor.Execute(ctx, &executionContext{
		workflow: workflow,
		run:      run,
		node:     node,
		step:     step,
	})
	if err != nil {
		if approval, ok := domain.AsApprovalRequired(err); ok {
			// The step stays pending until the approval lands.
			approval.RunID = run.ID
			approval.StepID = step.ID
			step.Status = domain.StepStatusPending
			if saveErr := o.steps.Save(ctx, step); saveErr != nil {
				return step, nil, saveErr
			}
			return step, nil, err
		}
		o.failStep(ctx, run, step, err)
		return step, nil, err
	}

	finished := o.now()
	step.Status = domain.StepStatusCompleted
	step.Output = output
	step.FinishedAt = &finished
	if err := o.steps.Save(ctx, step); err != nil {
		return step, nil, err
	}

	o.emit(ctx, run.ID, step.ID, domain.EventStepCompleted, map[string]interface{}{
		"node_id": node.ID,
	})

	o.logger.Debug("step completed",
		"run_id", run.ID,
		"node_id", node.ID,
		"step_id", step.ID)

	return step, output, nil
}

func (o *Orchestrator) failStep(ctx context.Context, run *domain.Run, step *domain.Step, cause error) {
	detail := domain.NewErrorDetail(cause)
	finished := o.now()
	step.Status = domain.StepStatusFailed
	step.Output = detail.AsMap()
	step.FinishedAt = &finished
	if err := o.steps.Save(ctx, step); err != nil {
		o.logger.Error("failed to persist failed step", "run_id", run.ID, "step_id", step.ID, "error", err.Error())
	}

	o.emit(ctx, run.ID, step.ID, domain.EventStepFailed, map[string]interface{}{
		"node_id": step.NodeID,
		"error":   detail.AsMap(),
	})
}

func (o *Orchestrator) pauseRun(ctx context.Context, run *domain.Run, step *domain.Step, approval *domain.ApprovalRequiredError) {
	run.Status = domain.RunStatusPaused
	run.Result = map[string]interface{}{
		"paused":          true,
		"pending_step_id": step.ID,
		"node_id":         step.NodeID,
		"tool_id":         approval.ToolID,
		"reason":          approval.Reason,
	}
	if err := o.runs.Save(ctx, run); err != nil {
		o.logger.Error("failed to pause run", "run_id", run.ID, "error", err.Error())
		return
	}

	o.emit(ctx, run.ID, step.ID, domain.EventPolicyEval, map[string]interface{}{
		"action":  "approval_pending",
		"tool_id": approval.ToolID,
		"reason":  approval.Reason,
	})

	o.logger.Info("run paused for approval",
		"run_id", run.ID,
		"step_id", step.ID,
		"tool_id", approval.ToolID)
}

// completeRun writes the terminal result unless the run was cancelled in
// the meantime: cancellation always wins over a late completion.
func (o *Orchestrator) completeRun(ctx context.Context, run *domain.Run) {
	latest, err := o.runs.FindByID(ctx, run.ID)
	if err != nil {
		o.logger.Error("failed to reload run for completion", "run_id", run.ID, "error", err.Error())
		o.budget.Cleanup(run.ID)
		return
	}
	if latest.Status == domain.RunStatusCancelled {
		o.logger.Debug("skipping completion write, run was cancelled", "run_id", run.ID)
		o.budget.Cleanup(run.ID)
		return
	}

	now := o.now()
	result := map[string]interface{}{}
	if snapshot, ok := o.budget.Snapshot(run.ID); ok {
		result["cost_cents"] = snapshot.CostCents
		result["llm_calls"] = snapshot.LLMCalls
		result["duration_ms"] = now.Sub(snapshot.StartTime).Milliseconds()
	}

	latest.Status = domain.RunStatusCompleted
	latest.Result = result
	latest.CompletedAt = &now
	if err := o.runs.Save(ctx, latest); err != nil {
		o.logger.Error("failed to complete run", "run_id", run.ID, "error", err.Error())
	}

	o.emit(ctx, run.ID, "", domain.EventRunCompleted, result)
	o.budget.Cleanup(run.ID)

	o.logger.Info("run completed", "run_id", run.ID)
}

// failRun mirrors completeRun's cancellation check: a late failure write
// never overwrites an external cancellation.
func (o *Orchestrator) failRun(ctx context.Context, run *domain.Run, cause error) {
	latest, err := o.runs.FindByID(ctx, run.ID)
	if err != nil {
		o.logger.Error("failed to reload run for failure", "run_id", run.ID, "error", err.Error())
		o.budget.Cleanup(run.ID)
		return
	}
	if latest.Status == domain.RunStatusCancelled {
		o.logger.Debug("skipping failure write, run was cancelled", "run_id", run.ID)
		o.budget.Cleanup(run.ID)
		return
	}

	detail := domain.NewErrorDetail(cause)
	now := o.now()
	latest.Status = domain.RunStatusFailed
	latest.Result = map[string]interface{}{"error": detail.AsMap()}
	latest.CompletedAt = &now
	if err := o.runs.Save(ctx, latest); err != nil {
		o.logger.Error("failed to persist run failure", "run_id", run.ID, "error", err.Error())
	}

	o.emit(ctx, run.ID, "", domain.EventRunFailed, map[string]interface{}{
		"error": detail.AsMap(),
	})
	o.budget.Cleanup(run.ID)

	o.logger.Warn("run failed", "run_id", run.ID, "error", cause.Error())
}

func (o *Orchestrator) recoverPanic(run *domain.Run) {
	if r := recover(); r != nil {
		o.logger.Error("traversal panicked", "run_id", run.ID, "panic", fmt.Sprintf("%v", r))
		o.failRun(context.Background(), run, fmt.Errorf("traversal panic: %v", r))
	}
}

// completedHistory returns the run's last completed steps, oldest first,
// bounded by the configured history depth.
func (o *Orchestrator) completedHistory(ctx context.Context, runID string) []domain.Step {
	steps, err := o.steps.ListByRun(ctx, runID)
	if err != nil {
		o.logger.Warn("failed to load step history", "run_id", runID, "error", err.Error())
		return nil
	}

	var completed []domain.Step
	for _, step := range steps {
		if step.Status == domain.StepStatusCompleted {
			completed = append(completed, step)
		}
	}
	if len(completed) > o.cfg.HistoryDepth {
		completed = completed[len(completed)-o.cfg.HistoryDepth:]
	}
	return completed
}

func (o *Orchestrator) emit(ctx context.Context, runID, stepID string, kind domain.EventKind, payload map[string]interface{}) {
	event := &domain.Event{
		RunID:   runID,
		StepID:  stepID,
		Kind:    kind,
		Payload: payload,
	}
	if err := o.sink.Emit(ctx, event); err != nil {
		o.logger.Error("failed to emit event",
			"run_id", runID,
			"kind", kind,
			"error", err.Error())
	}
}
